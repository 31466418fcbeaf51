package rpc

import (
	"github.com/jmerrifield20/blockguardian/internal/identity"
	"github.com/jmerrifield20/blockguardian/internal/ledger"
	"github.com/jmerrifield20/blockguardian/internal/merkle"
	"github.com/jmerrifield20/blockguardian/internal/proofs/model"
)

// StoreProofRequest stores Commitment at RecordID. The submitter and admin
// come from call metadata.
type StoreProofRequest struct {
	RecordID   identity.PublicKey `json:"record_id"`
	Commitment []byte             `json:"commitment"`
}

// QueryRecordsRequest is a raw size plus byte-range lookup.
type QueryRecordsRequest struct {
	Size   int    `json:"size"`
	Offset int    `json:"offset"`
	Value  []byte `json:"value,omitempty"`
}

// QueryRecordsResponse holds the matching accounts, undecoded.
type QueryRecordsResponse struct {
	Accounts []*ledger.Account `json:"accounts"`
}

// FindByCommitmentRequest looks up proofs by exact commitment.
type FindByCommitmentRequest struct {
	Commitment []byte `json:"commitment"`
}

// FindByCommitmentResponse holds the decoded proofs.
type FindByCommitmentResponse struct {
	Proofs []*model.Proof `json:"proofs"`
}

// GetRecordRequest fetches the raw account at ID.
type GetRecordRequest struct {
	ID identity.PublicKey `json:"id"`
}

// SendMessageRequest posts Content at RecordID as the calling signer.
type SendMessageRequest struct {
	RecordID identity.PublicKey `json:"record_id"`
	Content  string             `json:"content"`
}

// ListMessagesRequest lists messages, optionally for one author.
type ListMessagesRequest struct {
	Author *identity.PublicKey `json:"author,omitempty"`
}

// ListMessagesResponse holds the decoded messages.
type ListMessagesResponse struct {
	Messages []*model.Message `json:"messages"`
}

// VerifyInclusionRequest checks a Merkle proof against Root.
type VerifyInclusionRequest struct {
	Root  merkle.Hash   `json:"root"`
	Types []string      `json:"types"`
	Value []string      `json:"value"`
	Proof []merkle.Hash `json:"proof"`
}

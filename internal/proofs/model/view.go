package model

import (
	"time"

	"github.com/jmerrifield20/blockguardian/internal/identity"
	"github.com/jmerrifield20/blockguardian/internal/ledger"
)

// Proof is a decoded ProofRecord together with its ledger metadata.
type Proof struct {
	ID         identity.PublicKey  `json:"id"`
	Commitment Commitment          `json:"commitment"`
	Submitter  identity.PublicKey  `json:"submitter"`
	Admin      *identity.PublicKey `json:"admin,omitempty"`
	Timestamp  time.Time           `json:"timestamp"`
	Size       int                 `json:"size"`
	Seq        int64               `json:"seq"`
	Hash       string              `json:"hash"`
}

// ProofFromAccount decodes acct, which must hold a ProofRecord of size bytes.
func ProofFromAccount(acct *ledger.Account, size int) (*Proof, error) {
	rec, err := DecodeProofRecord(acct.Data, size)
	if err != nil {
		return nil, err
	}
	return &Proof{
		ID:         acct.ID,
		Commitment: rec.Commitment,
		Submitter:  rec.Submitter,
		Admin:      rec.Admin,
		Timestamp:  rec.Time(),
		Size:       acct.Size(),
		Seq:        acct.Seq,
		Hash:       acct.Hash,
	}, nil
}

// Message is a decoded MessageRecord together with its ledger metadata.
type Message struct {
	ID        identity.PublicKey `json:"id"`
	Author    identity.PublicKey `json:"author"`
	Content   string             `json:"content"`
	Timestamp time.Time          `json:"timestamp"`
	Seq       int64              `json:"seq"`
	Hash      string             `json:"hash"`
}

// MessageFromAccount decodes acct, which must hold a MessageRecord.
func MessageFromAccount(acct *ledger.Account) (*Message, error) {
	var rec MessageRecord
	if err := rec.UnmarshalBinary(acct.Data); err != nil {
		return nil, err
	}
	return &Message{
		ID:        acct.ID,
		Author:    rec.Author,
		Content:   rec.Content,
		Timestamp: rec.Time(),
		Seq:       acct.Seq,
		Hash:      acct.Hash,
	}, nil
}

// Receipt acknowledges a committed write.
type Receipt struct {
	TxID      string             `json:"tx_id"`
	RecordID  identity.PublicKey `json:"record_id"`
	Size      int                `json:"size"`
	Seq       int64              `json:"seq"`
	Hash      string             `json:"hash"`
	CreatedAt time.Time          `json:"created_at"`
}

// ProofReceipt acknowledges a stored commitment and reports how the input
// was normalised.
type ProofReceipt struct {
	Receipt
	Commitment Commitment `json:"commitment"`
	Truncated  bool       `json:"truncated,omitempty"`
	Padded     bool       `json:"padded,omitempty"`
}

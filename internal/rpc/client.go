package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/jmerrifield20/blockguardian/internal/identity"
	"github.com/jmerrifield20/blockguardian/internal/ledger"
	"github.com/jmerrifield20/blockguardian/internal/proofs/model"
	"github.com/jmerrifield20/blockguardian/internal/proofs/service"
)

// Client calls the Ledger service. Signer and admin keys, when set, mint a
// fresh short-lived token for every call.
type Client struct {
	cc     *grpc.ClientConn
	signer *identity.Keypair
	admin  *identity.Keypair
}

// Dial creates a client for addr. The JSON codec is forced on every call.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append(opts, grpc.WithDefaultCallOptions(grpc.ForceCodec(JSONCodec{})))
	cc, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("rpc client: dial %s: %w", addr, err)
	}
	return &Client{cc: cc}, nil
}

// SetSigner sets the key that authenticates writes.
func (c *Client) SetSigner(kp *identity.Keypair) { c.signer = kp }

// SetAdmin sets the key that co-signs gated writes.
func (c *Client) SetAdmin(kp *identity.Keypair) { c.admin = kp }

// Close closes the underlying connection.
func (c *Client) Close() error { return c.cc.Close() }

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	if c.signer != nil {
		tok, err := identity.IssueSignerToken(c.signer, method, 0)
		if err != nil {
			return err
		}
		ctx = metadata.AppendToOutgoingContext(ctx, AuthorizationKey, "Bearer "+tok)
	}
	if c.admin != nil {
		tok, err := identity.IssueSignerToken(c.admin, method, 0)
		if err != nil {
			return err
		}
		ctx = metadata.AppendToOutgoingContext(ctx, AdminTokenKey, tok)
	}
	var trailer metadata.MD
	err := c.cc.Invoke(ctx, fullMethod(method), req, resp, grpc.Trailer(&trailer))
	return fromStatus(err, trailer)
}

// StoreProof stores commitment at recordID.
func (c *Client) StoreProof(ctx context.Context, recordID identity.PublicKey, commitment []byte) (*model.ProofReceipt, error) {
	resp := new(model.ProofReceipt)
	if err := c.invoke(ctx, "StoreProof", &StoreProofRequest{RecordID: recordID, Commitment: commitment}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// QueryRecords runs a raw size plus byte-range lookup.
func (c *Client) QueryRecords(ctx context.Context, size, offset int, value []byte) ([]*ledger.Account, error) {
	resp := new(QueryRecordsResponse)
	if err := c.invoke(ctx, "QueryRecords", &QueryRecordsRequest{Size: size, Offset: offset, Value: value}, resp); err != nil {
		return nil, err
	}
	return resp.Accounts, nil
}

// FindByCommitment returns the proofs whose commitment equals value.
func (c *Client) FindByCommitment(ctx context.Context, value []byte) ([]*model.Proof, error) {
	resp := new(FindByCommitmentResponse)
	if err := c.invoke(ctx, "FindByCommitment", &FindByCommitmentRequest{Commitment: value}, resp); err != nil {
		return nil, err
	}
	return resp.Proofs, nil
}

// GetRecord returns the raw account at id.
func (c *Client) GetRecord(ctx context.Context, id identity.PublicKey) (*ledger.Account, error) {
	resp := new(ledger.Account)
	if err := c.invoke(ctx, "GetRecord", &GetRecordRequest{ID: id}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// SendMessage posts content at recordID.
func (c *Client) SendMessage(ctx context.Context, recordID identity.PublicKey, content string) (*model.Receipt, error) {
	resp := new(model.Receipt)
	if err := c.invoke(ctx, "SendMessage", &SendMessageRequest{RecordID: recordID, Content: content}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ListMessages lists messages, filtered by author when non-nil.
func (c *Client) ListMessages(ctx context.Context, author *identity.PublicKey) ([]*model.Message, error) {
	resp := new(ListMessagesResponse)
	if err := c.invoke(ctx, "ListMessages", &ListMessagesRequest{Author: author}, resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// VerifyInclusion checks a Merkle proof and reports anchoring records.
func (c *Client) VerifyInclusion(ctx context.Context, req *VerifyInclusionRequest) (*service.VerifyResult, error) {
	resp := new(service.VerifyResult)
	if err := c.invoke(ctx, "VerifyInclusion", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jmerrifield20/blockguardian/internal/identity"
	"github.com/jmerrifield20/blockguardian/internal/ledger"
	"github.com/jmerrifield20/blockguardian/internal/merkle"
	"github.com/jmerrifield20/blockguardian/internal/proofs/model"
)

// StoreProofRequest is the input to StoreProof. Admin is the identity that
// co-signed the request, already authenticated by the transport.
type StoreProofRequest struct {
	RecordID   identity.PublicKey
	Submitter  identity.PublicKey
	Admin      *identity.PublicKey
	Commitment []byte
}

// Query is a raw record lookup: a total size plus an exact byte range.
type Query struct {
	Size   int
	Offset int
	Value  []byte
}

// VerifyRequest asks whether Value is a leaf of the tree with Root.
type VerifyRequest struct {
	Root  merkle.Hash
	Types []string
	Value []string
	Proof []merkle.Hash
}

// VerifyResult reports the Merkle check and any ledger records anchoring Root.
type VerifyResult struct {
	Valid    bool           `json:"valid"`
	Anchored bool           `json:"anchored"`
	Records  []*model.Proof `json:"records"`
}

// ProofService implements the proof write and read paths over a ledger.Store.
type ProofService struct {
	store    ledger.Store
	cfg      ProofConfig
	now      func() time.Time
	notifier Notifier
	logger   *zap.Logger
}

// NewProofService creates a ProofService. It fails when cfg is invalid, for
// instance a gated variant without an admin.
func NewProofService(store ledger.Store, cfg ProofConfig, logger *zap.Logger) (*ProofService, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &ProofService{store: store, cfg: cfg, now: time.Now, logger: logger}, nil
}

// SetClock overrides the timestamp source.
func (s *ProofService) SetClock(now func() time.Time) { s.now = now }

// SetNotifier publishes EventProofStored for every committed proof.
func (s *ProofService) SetNotifier(n Notifier) { s.notifier = n }

// Config returns the effective configuration.
func (s *ProofService) Config() ProofConfig { return s.cfg }

// RecordSize returns the ProofRecord size for the configured variant.
func (s *ProofService) RecordSize() int {
	if s.cfg.Variant == VariantGated {
		return model.GatedProofRecordSize
	}
	return model.ProofRecordSize
}

// NormalizeCommitment maps arbitrary input onto exactly 32 bytes. Input longer
// than 32 bytes keeps its first 32 bytes. Shorter input is rejected or
// zero-padded according to policy; empty input is always rejected.
func NormalizeCommitment(raw []byte, policy ShortPolicy) (c model.Commitment, truncated, padded bool, err error) {
	switch {
	case len(raw) == 0:
		return c, false, false, fmt.Errorf("%w: commitment is empty", ErrInvalidLength)
	case len(raw) >= model.CommitmentSize:
		copy(c[:], raw[:model.CommitmentSize])
		return c, len(raw) > model.CommitmentSize, false, nil
	case policy == ShortPad:
		copy(c[:], raw)
		return c, false, true, nil
	default:
		return c, false, false, fmt.Errorf("%w: got %d bytes, want at least %d",
			ErrInvalidLength, len(raw), model.CommitmentSize)
	}
}

// StoreProof validates the caller, normalises the commitment and creates a
// ProofRecord at req.RecordID. Nothing is written on any error.
func (s *ProofService) StoreProof(ctx context.Context, req StoreProofRequest) (*model.ProofReceipt, error) {
	if s.cfg.Variant == VariantGated {
		if req.Admin == nil || *req.Admin != s.cfg.Admin {
			s.logger.Warn("rejected proof from non-admin",
				zap.Stringer("submitter", req.Submitter),
				zap.Stringer("record_id", req.RecordID),
			)
			return nil, ErrUnauthorized
		}
	}
	if req.RecordID.IsZero() {
		return nil, ErrMissingID
	}

	commitment, truncated, padded, err := NormalizeCommitment(req.Commitment, s.cfg.ShortPolicy)
	if err != nil {
		return nil, err
	}

	rec := &model.ProofRecord{
		Commitment: commitment,
		Submitter:  req.Submitter,
		Timestamp:  s.now().Unix(),
	}
	if s.cfg.Variant == VariantGated {
		admin := s.cfg.Admin
		rec.Admin = &admin
	}
	data, err := rec.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode proof record: %w", err)
	}

	acct, err := s.store.Create(ctx, req.RecordID, req.Submitter, data)
	if err != nil {
		return nil, fmt.Errorf("store proof: %w", err)
	}

	receipt := &model.ProofReceipt{
		Receipt:    receiptFor(acct),
		Commitment: commitment,
		Truncated:  truncated,
		Padded:     padded,
	}
	s.logger.Info("proof stored",
		zap.String("tx_id", receipt.TxID),
		zap.Stringer("record_id", acct.ID),
		zap.Stringer("commitment", commitment),
		zap.Bool("truncated", truncated),
		zap.Bool("padded", padded),
		zap.Int64("seq", acct.Seq),
	)
	if s.notifier != nil {
		payload := receiptPayload(receipt.Receipt)
		payload["commitment"] = commitment.String()
		payload["submitter"] = req.Submitter.String()
		s.notifier.Dispatch(ctx, EventProofStored, payload)
	}
	return receipt, nil
}

// QueryRecords returns every account whose data is exactly q.Size bytes and
// holds q.Value at q.Offset. A zero Size or empty Value drops that filter.
func (s *ProofService) QueryRecords(ctx context.Context, q Query) ([]*ledger.Account, error) {
	var filters []ledger.Filter
	if q.Size > 0 {
		filters = append(filters, ledger.DataSize(q.Size))
	}
	if len(q.Value) > 0 {
		filters = append(filters, ledger.Memcmp(q.Offset, q.Value))
	}
	if len(filters) == 0 {
		return nil, fmt.Errorf("%w: at least one of size or value is required", ErrInvalidFilter)
	}
	return s.store.Scan(ctx, filters...)
}

// FindByCommitment returns every ProofRecord whose stored commitment equals
// value exactly. Values that are not 32 bytes can never match, so they yield
// an empty result rather than an error.
func (s *ProofService) FindByCommitment(ctx context.Context, value []byte) ([]*model.Proof, error) {
	out := make([]*model.Proof, 0)
	if len(value) != model.CommitmentSize {
		return out, nil
	}
	accts, err := s.QueryRecords(ctx, Query{Size: s.RecordSize(), Offset: model.CommitmentOffset, Value: value})
	if err != nil {
		return nil, err
	}
	for _, acct := range accts {
		p, err := model.ProofFromAccount(acct, s.RecordSize())
		if err != nil {
			// Same size and offset but another record type.
			s.logger.Debug("skipping undecodable account", zap.Stringer("id", acct.ID), zap.Error(err))
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Get returns the ProofRecord stored at id.
func (s *ProofService) Get(ctx context.Context, id identity.PublicKey) (*model.Proof, error) {
	acct, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	p, err := model.ProofFromAccount(acct, acct.Size())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWrongType, err)
	}
	return p, nil
}

// VerifyInclusion checks a Merkle proof and looks up ledger records anchoring
// the claimed root.
func (s *ProofService) VerifyInclusion(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	valid, err := merkle.Verify(req.Root, req.Types, req.Value, req.Proof)
	if err != nil {
		return nil, err
	}
	records, err := s.FindByCommitment(ctx, req.Root[:])
	if err != nil {
		return nil, err
	}
	return &VerifyResult{Valid: valid, Anchored: len(records) > 0, Records: records}, nil
}

func receiptFor(acct *ledger.Account) model.Receipt {
	return model.Receipt{
		TxID:      uuid.NewString(),
		RecordID:  acct.ID,
		Size:      acct.Size(),
		Seq:       acct.Seq,
		Hash:      acct.Hash,
		CreatedAt: acct.CreatedAt,
	}
}

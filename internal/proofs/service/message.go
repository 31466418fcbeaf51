package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jmerrifield20/blockguardian/internal/identity"
	"github.com/jmerrifield20/blockguardian/internal/ledger"
	"github.com/jmerrifield20/blockguardian/internal/proofs/model"
)

// SendMessageRequest is the input to SendMessage.
type SendMessageRequest struct {
	RecordID identity.PublicKey
	Author   identity.PublicKey
	Content  string
}

// MessageService writes and reads MessageRecords. Any signer may post.
type MessageService struct {
	store    ledger.Store
	now      func() time.Time
	notifier Notifier
	logger   *zap.Logger
}

// NewMessageService creates a MessageService.
func NewMessageService(store ledger.Store, logger *zap.Logger) *MessageService {
	return &MessageService{store: store, now: time.Now, logger: logger}
}

// SetNotifier publishes EventMessageSent for every committed message.
func (s *MessageService) SetNotifier(n Notifier) { s.notifier = n }

// SetClock overrides the timestamp source.
func (s *MessageService) SetClock(now func() time.Time) { s.now = now }

// SendMessage validates content and creates a MessageRecord at req.RecordID.
func (s *MessageService) SendMessage(ctx context.Context, req SendMessageRequest) (*model.Receipt, error) {
	if err := model.ValidateContent(req.Content); err != nil {
		return nil, err
	}
	if req.RecordID.IsZero() {
		return nil, ErrMissingID
	}

	rec := &model.MessageRecord{Author: req.Author, Timestamp: s.now().Unix(), Content: req.Content}
	data, err := rec.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode message record: %w", err)
	}
	acct, err := s.store.Create(ctx, req.RecordID, req.Author, data)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}

	receipt := receiptFor(acct)
	s.logger.Info("message stored",
		zap.String("tx_id", receipt.TxID),
		zap.Stringer("record_id", acct.ID),
		zap.Stringer("author", req.Author),
		zap.Int64("seq", acct.Seq),
	)
	if s.notifier != nil {
		payload := receiptPayload(receipt)
		payload["author"] = req.Author.String()
		s.notifier.Dispatch(ctx, EventMessageSent, payload)
	}
	return &receipt, nil
}

// Get returns the MessageRecord stored at id.
func (s *MessageService) Get(ctx context.Context, id identity.PublicKey) (*model.Message, error) {
	acct, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	m, err := model.MessageFromAccount(acct)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWrongType, err)
	}
	return m, nil
}

// List returns every message in creation order.
func (s *MessageService) List(ctx context.Context) ([]*model.Message, error) {
	return s.scan(ctx, ledger.DataSize(model.MessageRecordSize))
}

// ListByAuthor returns every message written by author, in creation order.
func (s *MessageService) ListByAuthor(ctx context.Context, author identity.PublicKey) ([]*model.Message, error) {
	return s.scan(ctx,
		ledger.DataSize(model.MessageRecordSize),
		ledger.Memcmp(model.AuthorOffset, author[:]),
	)
}

func (s *MessageService) scan(ctx context.Context, filters ...ledger.Filter) ([]*model.Message, error) {
	accts, err := s.store.Scan(ctx, filters...)
	if err != nil {
		return nil, err
	}
	out := make([]*model.Message, 0, len(accts))
	for _, acct := range accts {
		m, err := model.MessageFromAccount(acct)
		if err != nil {
			s.logger.Debug("skipping undecodable account", zap.Stringer("id", acct.ID), zap.Error(err))
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

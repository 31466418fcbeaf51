package service_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jmerrifield20/blockguardian/internal/ledger"
	"github.com/jmerrifield20/blockguardian/internal/proofs/service"
)

type recordedEvent struct {
	kind    string
	payload map[string]string
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (n *recordingNotifier) Dispatch(_ context.Context, eventType string, payload map[string]string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{kind: eventType, payload: payload})
}

func TestProofStoredEvent(t *testing.T) {
	svc, _ := newProofService(t, service.ProofConfig{})
	n := &recordingNotifier{}
	svc.SetNotifier(n)

	submitter := newKey(t)
	receipt, err := svc.StoreProof(ctx, service.StoreProofRequest{
		RecordID: newKey(t), Submitter: submitter, Commitment: commitment(t, rootHex),
	})
	require.NoError(t, err)

	require.Len(t, n.events, 1)
	ev := n.events[0]
	assert.Equal(t, service.EventProofStored, ev.kind)
	assert.Equal(t, receipt.TxID, ev.payload["tx_id"])
	assert.Equal(t, receipt.RecordID.String(), ev.payload["record_id"])
	assert.Equal(t, rootHex, ev.payload["commitment"])
	assert.Equal(t, submitter.String(), ev.payload["submitter"])
}

func TestRejectedWritesPublishNothing(t *testing.T) {
	admin := newKey(t)
	svc, _ := newProofService(t, service.ProofConfig{Variant: service.VariantGated, Admin: admin})
	n := &recordingNotifier{}
	svc.SetNotifier(n)

	_, err := svc.StoreProof(ctx, service.StoreProofRequest{
		RecordID: newKey(t), Submitter: newKey(t), Commitment: commitment(t, rootHex),
	})
	require.ErrorIs(t, err, service.ErrUnauthorized)

	msgs := service.NewMessageService(ledger.NewMemoryStore(), zap.NewNop())
	msgs.SetNotifier(n)
	_, err = msgs.SendMessage(ctx, service.SendMessageRequest{
		RecordID: newKey(t), Author: newKey(t), Content: strings.Repeat("a", 281),
	})
	require.ErrorIs(t, err, service.ErrContentTooLong)

	assert.Empty(t, n.events)
}

func TestMessageSentEvent(t *testing.T) {
	msgs := service.NewMessageService(ledger.NewMemoryStore(), zap.NewNop())
	n := &recordingNotifier{}
	msgs.SetNotifier(n)

	author := newKey(t)
	_, err := msgs.SendMessage(ctx, service.SendMessageRequest{RecordID: newKey(t), Author: author, Content: "gm"})
	require.NoError(t, err)

	require.Len(t, n.events, 1)
	assert.Equal(t, service.EventMessageSent, n.events[0].kind)
	assert.Equal(t, author.String(), n.events[0].payload["author"])
	assert.Equal(t, "1", n.events[0].payload["seq"])
}

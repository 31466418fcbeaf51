package service_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jmerrifield20/blockguardian/internal/ledger"
	"github.com/jmerrifield20/blockguardian/internal/proofs/model"
	"github.com/jmerrifield20/blockguardian/internal/proofs/service"
)

func TestSendMessageLengthCap(t *testing.T) {
	store := ledger.NewMemoryStore()
	svc := service.NewMessageService(store, zap.NewNop())
	author := newKey(t)

	receipt, err := svc.SendMessage(ctx, service.SendMessageRequest{
		RecordID: newKey(t), Author: author, Content: strings.Repeat("a", 280),
	})
	require.NoError(t, err)
	assert.Equal(t, model.MessageRecordSize, receipt.Size)

	_, err = svc.SendMessage(ctx, service.SendMessageRequest{
		RecordID: newKey(t), Author: author, Content: strings.Repeat("a", 281),
	})
	assert.ErrorIs(t, err, service.ErrContentTooLong)

	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMessagesByAuthor(t *testing.T) {
	svc := service.NewMessageService(ledger.NewMemoryStore(), zap.NewNop())
	alice, bob := newKey(t), newKey(t)

	for _, m := range []struct {
		author  [32]byte
		content string
	}{{alice, "one"}, {bob, "two"}, {alice, "three"}} {
		_, err := svc.SendMessage(ctx, service.SendMessageRequest{RecordID: newKey(t), Author: m.author, Content: m.content})
		require.NoError(t, err)
	}

	got, err := svc.ListByAuthor(ctx, alice)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "one", got[0].Content)
	assert.Equal(t, "three", got[1].Content)

	all, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := svc.ListByAuthor(ctx, newKey(t))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGetMessage(t *testing.T) {
	store := ledger.NewMemoryStore()
	msgs := service.NewMessageService(store, zap.NewNop())
	proofs, err := service.NewProofService(store, service.ProofConfig{}, zap.NewNop())
	require.NoError(t, err)

	receipt, err := msgs.SendMessage(ctx, service.SendMessageRequest{RecordID: newKey(t), Author: newKey(t), Content: "hello"})
	require.NoError(t, err)

	m, err := msgs.Get(ctx, receipt.RecordID)
	require.NoError(t, err)
	assert.Equal(t, "hello", m.Content)

	_, err = proofs.Get(ctx, receipt.RecordID)
	assert.ErrorIs(t, err, service.ErrWrongType)

	_, err = msgs.SendMessage(ctx, service.SendMessageRequest{RecordID: receipt.RecordID, Author: newKey(t), Content: "again"})
	assert.ErrorIs(t, err, service.ErrAlreadyExists)
}

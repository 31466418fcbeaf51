package service_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jmerrifield20/blockguardian/internal/identity"
	"github.com/jmerrifield20/blockguardian/internal/ledger"
	"github.com/jmerrifield20/blockguardian/internal/merkle"
	"github.com/jmerrifield20/blockguardian/internal/proofs/model"
	"github.com/jmerrifield20/blockguardian/internal/proofs/service"
)

var ctx = context.Background()

func newKey(t *testing.T) identity.PublicKey {
	t.Helper()
	kp, err := identity.GenerateKeypair()
	require.NoError(t, err)
	return kp.PublicKey()
}

func newProofService(t *testing.T, cfg service.ProofConfig) (*service.ProofService, *ledger.MemoryStore) {
	t.Helper()
	store := ledger.NewMemoryStore()
	svc, err := service.NewProofService(store, cfg, zap.NewNop())
	require.NoError(t, err)
	svc.SetClock(func() time.Time { return time.Unix(1_700_000_000, 0) })
	return svc, store
}

func commitment(t *testing.T, s string) []byte {
	t.Helper()
	b, err := model.DecodeHex(s)
	require.NoError(t, err)
	return b
}

const rootHex = "0xa2d25b3f1c6e8d4a9b7f0e2c5d8a1b4e7f0a3d6c9b2e5f8a1d4c7b0e3f688bab"

func TestStoreThenFindExactCommitment(t *testing.T) {
	svc, _ := newProofService(t, service.ProofConfig{})
	submitter := newKey(t)
	c := commitment(t, rootHex)

	receipt, err := svc.StoreProof(ctx, service.StoreProofRequest{
		RecordID: newKey(t), Submitter: submitter, Commitment: c,
	})
	require.NoError(t, err)
	assert.Equal(t, model.ProofRecordSize, receipt.Size)
	assert.False(t, receipt.Truncated)
	assert.NotEmpty(t, receipt.TxID)

	found, err := svc.FindByCommitment(ctx, c)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, c, found[0].Commitment[:])
	assert.Equal(t, submitter, found[0].Submitter)
	assert.Equal(t, receipt.RecordID, found[0].ID)
	assert.Nil(t, found[0].Admin)
	assert.Equal(t, int64(1_700_000_000), found[0].Timestamp.Unix())
}

func TestOversizedCommitmentIsTruncated(t *testing.T) {
	svc, _ := newProofService(t, service.ProofConfig{})
	long := append(commitment(t, rootHex), 0xde, 0xad, 0xbe)

	receipt, err := svc.StoreProof(ctx, service.StoreProofRequest{
		RecordID: newKey(t), Submitter: newKey(t), Commitment: long,
	})
	require.NoError(t, err)
	assert.True(t, receipt.Truncated)
	assert.Equal(t, long[:32], receipt.Commitment[:])

	full, err := svc.FindByCommitment(ctx, long)
	require.NoError(t, err)
	assert.Empty(t, full)

	prefix, err := svc.FindByCommitment(ctx, long[:32])
	require.NoError(t, err)
	require.Len(t, prefix, 1)
	assert.Equal(t, long[:32], prefix[0].Commitment[:])
}

func TestShortCommitmentRejectPolicy(t *testing.T) {
	svc, store := newProofService(t, service.ProofConfig{ShortPolicy: service.ShortReject})

	_, err := svc.StoreProof(ctx, service.StoreProofRequest{
		RecordID: newKey(t), Submitter: newKey(t), Commitment: []byte{1, 2, 3},
	})
	assert.ErrorIs(t, err, service.ErrInvalidLength)

	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestShortCommitmentPadPolicy(t *testing.T) {
	svc, _ := newProofService(t, service.ProofConfig{ShortPolicy: service.ShortPad})

	receipt, err := svc.StoreProof(ctx, service.StoreProofRequest{
		RecordID: newKey(t), Submitter: newKey(t), Commitment: []byte{1, 2, 3},
	})
	require.NoError(t, err)
	assert.True(t, receipt.Padded)

	want := make([]byte, 32)
	copy(want, []byte{1, 2, 3})
	assert.Equal(t, want, receipt.Commitment[:])

	found, err := svc.FindByCommitment(ctx, want)
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestEmptyCommitmentAlwaysRejected(t *testing.T) {
	for _, policy := range []service.ShortPolicy{service.ShortReject, service.ShortPad} {
		svc, _ := newProofService(t, service.ProofConfig{ShortPolicy: policy})
		_, err := svc.StoreProof(ctx, service.StoreProofRequest{RecordID: newKey(t), Submitter: newKey(t)})
		assert.ErrorIs(t, err, service.ErrInvalidLength, policy)
	}
}

func TestGatedRejectsNonAdmin(t *testing.T) {
	admin := newKey(t)
	svc, store := newProofService(t, service.ProofConfig{Variant: service.VariantGated, Admin: admin})
	c := commitment(t, rootHex)
	impostor := newKey(t)

	for _, claimed := range []*identity.PublicKey{nil, &impostor} {
		_, err := svc.StoreProof(ctx, service.StoreProofRequest{
			RecordID: newKey(t), Submitter: newKey(t), Admin: claimed, Commitment: c,
		})
		assert.ErrorIs(t, err, service.ErrUnauthorized)
	}

	found, err := svc.FindByCommitment(ctx, c)
	require.NoError(t, err)
	assert.Empty(t, found)
	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGatedAcceptsAdmin(t *testing.T) {
	admin := newKey(t)
	svc, _ := newProofService(t, service.ProofConfig{Variant: service.VariantGated, Admin: admin})
	c := commitment(t, rootHex)

	receipt, err := svc.StoreProof(ctx, service.StoreProofRequest{
		RecordID: newKey(t), Submitter: newKey(t), Admin: &admin, Commitment: c,
	})
	require.NoError(t, err)
	assert.Equal(t, model.GatedProofRecordSize, receipt.Size)

	found, err := svc.FindByCommitment(ctx, c)
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.NotNil(t, found[0].Admin)
	assert.Equal(t, admin, *found[0].Admin)
}

func TestGatedFindSkipsOpenRecords(t *testing.T) {
	admin := newKey(t)
	gated, store := newProofService(t, service.ProofConfig{Variant: service.VariantGated, Admin: admin})
	openSvc, err := service.NewProofService(store, service.ProofConfig{}, zap.NewNop())
	require.NoError(t, err)
	c := commitment(t, rootHex)

	openReceipt, err := openSvc.StoreProof(ctx, service.StoreProofRequest{
		RecordID: newKey(t), Submitter: newKey(t), Commitment: c,
	})
	require.NoError(t, err)
	require.Equal(t, model.ProofRecordSize, openReceipt.Size)

	gatedReceipt, err := gated.StoreProof(ctx, service.StoreProofRequest{
		RecordID: newKey(t), Submitter: newKey(t), Admin: &admin, Commitment: c,
	})
	require.NoError(t, err)

	found, err := gated.FindByCommitment(ctx, c)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, gatedReceipt.RecordID, found[0].ID)
	assert.Equal(t, model.GatedProofRecordSize, found[0].Size)

	found, err = openSvc.FindByCommitment(ctx, c)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, openReceipt.RecordID, found[0].ID)
}

func TestGatedRequiresConfiguredAdmin(t *testing.T) {
	_, err := service.NewProofService(ledger.NewMemoryStore(), service.ProofConfig{Variant: service.VariantGated}, zap.NewNop())
	assert.Error(t, err)

	_, err = service.NewProofService(ledger.NewMemoryStore(), service.ProofConfig{Variant: "closed"}, zap.NewNop())
	assert.Error(t, err)
}

func TestCreateOnce(t *testing.T) {
	svc, _ := newProofService(t, service.ProofConfig{})
	id := newKey(t)
	req := service.StoreProofRequest{RecordID: id, Submitter: newKey(t), Commitment: commitment(t, rootHex)}

	_, err := svc.StoreProof(ctx, req)
	require.NoError(t, err)
	_, err = svc.StoreProof(ctx, req)
	assert.ErrorIs(t, err, service.ErrAlreadyExists)

	_, err = svc.StoreProof(ctx, service.StoreProofRequest{Submitter: newKey(t), Commitment: req.Commitment})
	assert.ErrorIs(t, err, service.ErrMissingID)
}

func TestDuplicateCommitmentsAcrossSubmitters(t *testing.T) {
	svc, _ := newProofService(t, service.ProofConfig{})
	c := commitment(t, rootHex)
	for i := 0; i < 3; i++ {
		_, err := svc.StoreProof(ctx, service.StoreProofRequest{RecordID: newKey(t), Submitter: newKey(t), Commitment: c})
		require.NoError(t, err)
	}
	found, err := svc.FindByCommitment(ctx, c)
	require.NoError(t, err)
	assert.Len(t, found, 3)
}

func TestQueryIsIdempotentAndReadOnly(t *testing.T) {
	svc, store := newProofService(t, service.ProofConfig{})
	c := commitment(t, rootHex)
	_, err := svc.StoreProof(ctx, service.StoreProofRequest{RecordID: newKey(t), Submitter: newKey(t), Commitment: c})
	require.NoError(t, err)
	rootBefore, err := store.Root(ctx)
	require.NoError(t, err)

	q := service.Query{Size: model.ProofRecordSize, Offset: model.CommitmentOffset, Value: c}
	first, err := svc.QueryRecords(ctx, q)
	require.NoError(t, err)
	second, err := svc.QueryRecords(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	rootAfter, err := store.Root(ctx)
	require.NoError(t, err)
	assert.Equal(t, rootBefore, rootAfter)
}

func TestQueryNeverWrittenIsEmpty(t *testing.T) {
	svc, _ := newProofService(t, service.ProofConfig{})
	got, err := svc.QueryRecords(ctx, service.Query{
		Size: model.ProofRecordSize, Offset: model.CommitmentOffset, Value: bytes.Repeat([]byte{7}, 32),
	})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	found, err := svc.FindByCommitment(ctx, []byte{1})
	require.NoError(t, err)
	assert.Empty(t, found)

	_, err = svc.QueryRecords(ctx, service.Query{})
	assert.ErrorIs(t, err, service.ErrInvalidFilter)
}

func TestQuerySizeSeparatesRecordKinds(t *testing.T) {
	store := ledger.NewMemoryStore()
	proofs, err := service.NewProofService(store, service.ProofConfig{}, zap.NewNop())
	require.NoError(t, err)
	msgs := service.NewMessageService(store, zap.NewNop())

	author := newKey(t)
	_, err = msgs.SendMessage(ctx, service.SendMessageRequest{RecordID: newKey(t), Author: author, Content: "gm"})
	require.NoError(t, err)

	// The message's author bytes sit at offset 8, same as a commitment.
	found, err := proofs.FindByCommitment(ctx, author[:])
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestGetProof(t *testing.T) {
	svc, _ := newProofService(t, service.ProofConfig{})
	receipt, err := svc.StoreProof(ctx, service.StoreProofRequest{
		RecordID: newKey(t), Submitter: newKey(t), Commitment: commitment(t, rootHex),
	})
	require.NoError(t, err)

	p, err := svc.Get(ctx, receipt.RecordID)
	require.NoError(t, err)
	assert.Equal(t, receipt.Commitment, p.Commitment)
	assert.Equal(t, receipt.Seq, p.Seq)

	_, err = svc.Get(ctx, newKey(t))
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestCancelledWriteLeavesNothing(t *testing.T) {
	svc, store := newProofService(t, service.ProofConfig{})
	cctx, cancel := context.WithCancel(ctx)
	cancel()

	_, err := svc.StoreProof(cctx, service.StoreProofRequest{
		RecordID: newKey(t), Submitter: newKey(t), Commitment: commitment(t, rootHex),
	})
	assert.ErrorIs(t, err, service.ErrUnavailable)

	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestVerifyInclusion(t *testing.T) {
	svc, _ := newProofService(t, service.ProofConfig{})
	values := [][]string{{"car"}, {"case"}, {"bat"}, {"ball"}, {"foo"}, {"lee"}}
	tree, err := merkle.New(values, []string{"string"})
	require.NoError(t, err)
	proof, err := tree.Proof(3)
	require.NoError(t, err)

	req := service.VerifyRequest{Root: tree.Root(), Types: []string{"string"}, Value: []string{"ball"}, Proof: proof}
	res, err := svc.VerifyInclusion(ctx, req)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.False(t, res.Anchored)

	root := tree.Root()
	_, err = svc.StoreProof(ctx, service.StoreProofRequest{RecordID: newKey(t), Submitter: newKey(t), Commitment: root[:]})
	require.NoError(t, err)

	res, err = svc.VerifyInclusion(ctx, req)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.True(t, res.Anchored)
	assert.Len(t, res.Records, 1)

	req.Value = []string{"bell"}
	res, err = svc.VerifyInclusion(ctx, req)
	require.NoError(t, err)
	assert.False(t, res.Valid)
}

func TestParseConfigValues(t *testing.T) {
	v, err := service.ParseVariant("")
	require.NoError(t, err)
	assert.Equal(t, service.VariantOpen, v)
	v, err = service.ParseVariant("GATED")
	require.NoError(t, err)
	assert.Equal(t, service.VariantGated, v)
	_, err = service.ParseVariant("x")
	assert.Error(t, err)

	p, err := service.ParseShortPolicy("pad")
	require.NoError(t, err)
	assert.Equal(t, service.ShortPad, p)
	_, err = service.ParseShortPolicy("truncate")
	assert.Error(t, err)
}

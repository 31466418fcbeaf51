package rpc_test

import (
	"bytes"
	"context"
	"math"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/jmerrifield20/blockguardian/internal/identity"
	"github.com/jmerrifield20/blockguardian/internal/ledger"
	"github.com/jmerrifield20/blockguardian/internal/merkle"
	"github.com/jmerrifield20/blockguardian/internal/proofs/model"
	"github.com/jmerrifield20/blockguardian/internal/proofs/service"
	"github.com/jmerrifield20/blockguardian/internal/rpc"
)

type fixture struct {
	addr  string
	admin *identity.Keypair
}

// startServer starts a gRPC server on a random port and stops it when the
// test ends.
func startServer(t *testing.T, variant service.Variant) *fixture {
	t.Helper()
	admin := keypair(t)
	store := ledger.NewMemoryStore()
	proofs, err := service.NewProofService(store, service.ProofConfig{Variant: variant, Admin: admin.PublicKey()}, zap.NewNop())
	require.NoError(t, err)
	msgs := service.NewMessageService(store, zap.NewNop())

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	gs := rpc.NewGRPCServer(zap.NewNop())
	rpc.NewServer(proofs, msgs, store, zap.NewNop()).Register(gs)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.GracefulStop)

	return &fixture{addr: lis.Addr().String(), admin: admin}
}

func keypair(t *testing.T) *identity.Keypair {
	t.Helper()
	kp, err := identity.GenerateKeypair()
	require.NoError(t, err)
	return kp
}

func dial(t *testing.T, addr string, signer *identity.Keypair) *rpc.Client {
	t.Helper()
	c, err := rpc.Dial(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	if signer != nil {
		c.SetSigner(signer)
	}
	return c
}

func callCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestStoreAndFind(t *testing.T) {
	f := startServer(t, service.VariantOpen)
	signer := keypair(t)
	c := dial(t, f.addr, signer)
	ctx := callCtx(t)

	commitment := bytes.Repeat([]byte{0xab}, 35)
	receipt, err := c.StoreProof(ctx, keypair(t).PublicKey(), commitment)
	require.NoError(t, err)
	assert.True(t, receipt.Truncated)
	assert.Equal(t, model.ProofRecordSize, receipt.Size)

	proofs, err := c.FindByCommitment(ctx, commitment[:32])
	require.NoError(t, err)
	require.Len(t, proofs, 1)
	assert.Equal(t, signer.PublicKey(), proofs[0].Submitter)

	none, err := c.FindByCommitment(ctx, commitment)
	require.NoError(t, err)
	assert.Empty(t, none)

	accts, err := c.QueryRecords(ctx, model.ProofRecordSize, model.CommitmentOffset, commitment[:32])
	require.NoError(t, err)
	require.Len(t, accts, 1)
	assert.Equal(t, receipt.RecordID, accts[0].ID)

	acct, err := c.GetRecord(ctx, receipt.RecordID)
	require.NoError(t, err)
	assert.Equal(t, accts[0].Hash, acct.Hash)
}

func TestErrorsRoundTrip(t *testing.T) {
	f := startServer(t, service.VariantOpen)
	c := dial(t, f.addr, keypair(t))
	ctx := callCtx(t)
	id := keypair(t).PublicKey()

	_, err := c.StoreProof(ctx, id, bytes.Repeat([]byte{1}, 32))
	require.NoError(t, err)

	_, err = c.StoreProof(ctx, id, bytes.Repeat([]byte{1}, 32))
	assert.ErrorIs(t, err, service.ErrAlreadyExists)

	_, err = c.StoreProof(ctx, keypair(t).PublicKey(), []byte{1})
	assert.ErrorIs(t, err, service.ErrInvalidLength)

	_, err = c.SendMessage(ctx, keypair(t).PublicKey(), strings.Repeat("x", 281))
	assert.ErrorIs(t, err, service.ErrContentTooLong)

	_, err = c.GetRecord(ctx, keypair(t).PublicKey())
	assert.ErrorIs(t, err, service.ErrNotFound)

	_, err = c.QueryRecords(ctx, 0, 0, nil)
	assert.ErrorIs(t, err, service.ErrInvalidFilter)
}

func TestQueryHugeOffsetIsEmpty(t *testing.T) {
	f := startServer(t, service.VariantOpen)
	c := dial(t, f.addr, keypair(t))
	ctx := callCtx(t)

	_, err := c.StoreProof(ctx, keypair(t).PublicKey(), bytes.Repeat([]byte{0}, 32))
	require.NoError(t, err)

	accts, err := c.QueryRecords(ctx, model.ProofRecordSize, math.MaxInt, []byte{0})
	require.NoError(t, err)
	assert.Empty(t, accts)

	// The server is still answering.
	accts, err = c.QueryRecords(ctx, model.ProofRecordSize, 0, nil)
	require.NoError(t, err)
	assert.Len(t, accts, 1)
}

func TestUnauthenticated(t *testing.T) {
	f := startServer(t, service.VariantOpen)
	c := dial(t, f.addr, nil)

	_, err := c.StoreProof(callCtx(t), keypair(t).PublicKey(), bytes.Repeat([]byte{1}, 32))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signer token required")
}

func TestGatedVariant(t *testing.T) {
	f := startServer(t, service.VariantGated)
	c := dial(t, f.addr, keypair(t))
	ctx := callCtx(t)
	commitment := bytes.Repeat([]byte{9}, 32)

	_, err := c.StoreProof(ctx, keypair(t).PublicKey(), commitment)
	assert.ErrorIs(t, err, service.ErrUnauthorized)

	c.SetAdmin(keypair(t))
	_, err = c.StoreProof(ctx, keypair(t).PublicKey(), commitment)
	assert.ErrorIs(t, err, service.ErrUnauthorized)

	none, err := c.FindByCommitment(ctx, commitment)
	require.NoError(t, err)
	assert.Empty(t, none)

	c.SetAdmin(f.admin)
	receipt, err := c.StoreProof(ctx, keypair(t).PublicKey(), commitment)
	require.NoError(t, err)
	assert.Equal(t, model.GatedProofRecordSize, receipt.Size)
}

func TestMessages(t *testing.T) {
	f := startServer(t, service.VariantOpen)
	author := keypair(t)
	c := dial(t, f.addr, author)
	ctx := callCtx(t)

	_, err := c.SendMessage(ctx, keypair(t).PublicKey(), strings.Repeat("x", 280))
	require.NoError(t, err)

	other := dial(t, f.addr, keypair(t))
	_, err = other.SendMessage(ctx, keypair(t).PublicKey(), "hi")
	require.NoError(t, err)

	pk := author.PublicKey()
	mine, err := c.ListMessages(ctx, &pk)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Len(t, mine[0].Content, 280)

	all, err := c.ListMessages(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestVerifyInclusion(t *testing.T) {
	f := startServer(t, service.VariantOpen)
	c := dial(t, f.addr, keypair(t))
	ctx := callCtx(t)

	tree, err := merkle.New([][]string{{"car"}, {"case"}, {"bat"}, {"ball"}, {"foo"}, {"lee"}}, []string{"string"})
	require.NoError(t, err)
	proof, err := tree.Proof(5)
	require.NoError(t, err)
	root := tree.Root()
	_, err = c.StoreProof(ctx, keypair(t).PublicKey(), root[:])
	require.NoError(t, err)

	res, err := c.VerifyInclusion(ctx, &rpc.VerifyInclusionRequest{Root: root, Value: []string{"lee"}, Proof: proof})
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.True(t, res.Anchored)
}

func TestHealthService(t *testing.T) {
	f := startServer(t, service.VariantOpen)
	cc, err := grpc.NewClient(f.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer cc.Close()

	resp, err := grpc_health_v1.NewHealthClient(cc).Check(callCtx(t), &grpc_health_v1.HealthCheckRequest{Service: rpc.ServiceName})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.Status)
}

// panickingStore fails every scan with a panic.
type panickingStore struct {
	*ledger.MemoryStore
}

func (panickingStore) Scan(context.Context, ...ledger.Filter) ([]*ledger.Account, error) {
	panic("scan exploded")
}

func TestRecoveryInterceptor(t *testing.T) {
	intercept := rpc.RecoveryInterceptor(zap.NewNop())
	info := &grpc.UnaryServerInfo{FullMethod: "/blockguardian.Ledger/QueryRecords"}

	resp, err := intercept(context.Background(), nil, info, func(context.Context, any) (any, error) {
		panic("boom")
	})
	assert.Nil(t, resp)
	assert.Equal(t, codes.Internal, status.Code(err))

	resp, err = intercept(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
}

func TestPanicDoesNotStopServer(t *testing.T) {
	store := panickingStore{ledger.NewMemoryStore()}
	proofs, err := service.NewProofService(store, service.ProofConfig{Variant: service.VariantOpen}, zap.NewNop())
	require.NoError(t, err)
	msgs := service.NewMessageService(store, zap.NewNop())

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	gs := rpc.NewGRPCServer(zap.NewNop())
	rpc.NewServer(proofs, msgs, store, zap.NewNop()).Register(gs)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.GracefulStop)

	c := dial(t, lis.Addr().String(), keypair(t))
	ctx := callCtx(t)

	_, err = c.QueryRecords(ctx, model.ProofRecordSize, 0, nil)
	require.Error(t, err)

	receipt, err := c.StoreProof(ctx, keypair(t).PublicKey(), bytes.Repeat([]byte{3}, 32))
	require.NoError(t, err)
	acct, err := c.GetRecord(ctx, receipt.RecordID)
	require.NoError(t, err)
	assert.Equal(t, receipt.RecordID, acct.ID)
}

// Package ledgertest provides a compliance suite every ledger.Store
// implementation must pass.
package ledgertest

import (
	"bytes"
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/jmerrifield20/blockguardian/internal/identity"
	"github.com/jmerrifield20/blockguardian/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) ledger.Store

// RandomKey returns a fresh random identity.
func RandomKey(t *testing.T) identity.PublicKey {
	t.Helper()
	kp, err := identity.GenerateKeypair()
	require.NoError(t, err)
	return kp.PublicKey()
}

// Run executes the compliance suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s ledger.Store)
	}{
		{"EmptyStore", testEmptyStore},
		{"CreateAndGet", testCreateAndGet},
		{"CreateOnce", testCreateOnce},
		{"ScanFilters", testScanFilters},
		{"ScanInvalidFilter", testScanInvalidFilter},
		{"ScanOffsetOutOfRange", testScanOffsetOutOfRange},
		{"ScanIsReadOnly", testScanIsReadOnly},
		{"ChainLinks", testChainLinks},
		{"ConcurrentCreates", testConcurrentCreates},
		{"ConcurrentSameID", testConcurrentSameID},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tc.fn(t, s)
		})
	}
}

func testEmptyStore(t *testing.T, s ledger.Store) {
	ctx := context.Background()

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	root, err := s.Root(ctx)
	require.NoError(t, err)
	assert.Equal(t, ledger.GenesisHash, root)

	require.NoError(t, s.Verify(ctx))
	require.NoError(t, s.Ping(ctx))

	out, err := s.Scan(ctx, ledger.DataSize(80))
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)

	_, err = s.Get(ctx, RandomKey(t))
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func testCreateAndGet(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	id, creator := RandomKey(t), RandomKey(t)
	data := bytes.Repeat([]byte{0xab}, 80)

	acct, err := s.Create(ctx, id, creator, data)
	require.NoError(t, err)
	assert.Equal(t, id, acct.ID)
	assert.Equal(t, creator, acct.Creator)
	assert.Equal(t, int64(1), acct.Seq)
	assert.Equal(t, ledger.GenesisHash, acct.PrevHash)
	assert.Equal(t, data, acct.Data)

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, acct.Hash, got.Hash)
	assert.Equal(t, data, got.Data)
	assert.True(t, acct.CreatedAt.Equal(got.CreatedAt))

	root, err := s.Root(ctx)
	require.NoError(t, err)
	assert.Equal(t, acct.Hash, root)
}

func testCreateOnce(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	id := RandomKey(t)

	first, err := s.Create(ctx, id, RandomKey(t), []byte("first"))
	require.NoError(t, err)

	_, err = s.Create(ctx, id, RandomKey(t), []byte("second"))
	require.ErrorIs(t, err, ledger.ErrAlreadyExists)

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, first.Data, got.Data, "rejected create must not overwrite")

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func testScanFilters(t *testing.T, s ledger.Store) {
	ctx := context.Background()

	needle := bytes.Repeat([]byte{0x11}, 32)
	other := bytes.Repeat([]byte{0x22}, 32)

	mk := func(size int, at8 []byte) []byte {
		b := make([]byte, size)
		copy(b[8:], at8)
		return b
	}

	a, err := s.Create(ctx, RandomKey(t), RandomKey(t), mk(80, needle))
	require.NoError(t, err)
	_, err = s.Create(ctx, RandomKey(t), RandomKey(t), mk(80, other))
	require.NoError(t, err)
	c, err := s.Create(ctx, RandomKey(t), RandomKey(t), mk(113, needle))
	require.NoError(t, err)

	out, err := s.Scan(ctx, ledger.DataSize(80), ledger.Memcmp(8, needle))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, a.ID, out[0].ID)

	out, err = s.Scan(ctx, ledger.Memcmp(8, needle))
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, a.ID, out[0].ID, "results come back in creation order")
	assert.Equal(t, c.ID, out[1].ID)

	out, err = s.Scan(ctx, ledger.DataSize(81))
	require.NoError(t, err)
	assert.Empty(t, out)

	// A memcmp that runs past the end of the data never matches.
	out, err = s.Scan(ctx, ledger.Memcmp(79, []byte{0, 0}), ledger.DataSize(80))
	require.NoError(t, err)
	assert.Empty(t, out)

	all, err := s.Scan(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func testScanInvalidFilter(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	_, err := s.Scan(ctx, ledger.Memcmp(-1, []byte{1}))
	assert.ErrorIs(t, err, ledger.ErrInvalidFilter)
	_, err = s.Scan(ctx, ledger.Memcmp(8, nil))
	assert.ErrorIs(t, err, ledger.ErrInvalidFilter)
	_, err = s.Scan(ctx, ledger.DataSize(-5))
	assert.ErrorIs(t, err, ledger.ErrInvalidFilter)
}

func testScanOffsetOutOfRange(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	_, err := s.Create(ctx, RandomKey(t), RandomKey(t), make([]byte, 80))
	require.NoError(t, err)

	for _, offset := range []int{math.MaxInt, math.MaxInt - 1, math.MaxInt32, 80, 81} {
		out, err := s.Scan(ctx, ledger.Memcmp(offset, []byte{0}))
		require.NoError(t, err, "offset %d", offset)
		assert.Empty(t, out, "offset %d", offset)
	}

	out, err := s.Scan(ctx, ledger.DataSize(80), ledger.Memcmp(math.MaxInt, []byte{0xab}))
	require.NoError(t, err)
	assert.Empty(t, out)
}

func testScanIsReadOnly(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	data := bytes.Repeat([]byte{0x42}, 40)
	_, err := s.Create(ctx, RandomKey(t), RandomKey(t), data)
	require.NoError(t, err)

	first, err := s.Scan(ctx, ledger.DataSize(40))
	require.NoError(t, err)
	require.Len(t, first, 1)
	first[0].Data[0] = 0x00 // mutating a result must not reach the store

	second, err := s.Scan(ctx, ledger.DataSize(40))
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, data, second[0].Data)
	assert.Equal(t, first[0].Hash, second[0].Hash)
}

func testChainLinks(t *testing.T, s ledger.Store) {
	ctx := context.Background()

	var prev *ledger.Account
	for i := 0; i < 5; i++ {
		acct, err := s.Create(ctx, RandomKey(t), RandomKey(t), []byte{byte(i)})
		require.NoError(t, err)
		if prev != nil {
			assert.Equal(t, prev.Hash, acct.PrevHash)
			assert.Equal(t, prev.Seq+1, acct.Seq)
		}
		prev = acct
	}
	require.NoError(t, s.Verify(ctx))

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func testConcurrentCreates(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	const workers = 16

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Create(ctx, RandomKey(t), RandomKey(t), []byte("parallel"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, workers, n)
	require.NoError(t, s.Verify(ctx))
}

func testConcurrentSameID(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	id := RandomKey(t)
	const workers = 8

	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Create(ctx, id, RandomKey(t), []byte{byte(i)})
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ledger.ErrAlreadyExists):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins, "exactly one create at the same identity must succeed")
}

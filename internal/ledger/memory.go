package ledger

import (
	"context"
	"sync"

	"github.com/jmerrifield20/blockguardian/internal/identity"
)

// MemoryStore is an in-memory, thread-safe Store implementation.
// It is primarily useful for testing and for single-process deployments
// that do not require durable persistence across restarts.
type MemoryStore struct {
	mu       sync.RWMutex
	byID     map[identity.PublicKey]*Account
	accounts []*Account
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[identity.PublicKey]*Account)}
}

// Create implements Store.
func (s *MemoryStore) Create(ctx context.Context, id, creator identity.PublicKey, data []byte) (*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("create account", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[id]; ok {
		return nil, ErrAlreadyExists
	}

	prevSeq, prevHash := int64(0), GenesisHash
	if n := len(s.accounts); n > 0 {
		prevSeq, prevHash = s.accounts[n-1].Seq, s.accounts[n-1].Hash
	}
	acct := newAccount(id, creator, data, prevSeq, prevHash)
	s.byID[id] = acct
	s.accounts = append(s.accounts, acct)
	return acct.clone(), nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id identity.PublicKey) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return acct.clone(), nil
}

// Scan implements Store.
func (s *MemoryStore) Scan(_ context.Context, filters ...Filter) ([]*Account, error) {
	if err := validateFilters(filters); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Account, 0)
	for _, acct := range s.accounts {
		if matchAll(filters, acct.Data) {
			out = append(out, acct.clone())
		}
	}
	return out, nil
}

// Len implements Store.
func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts), nil
}

// Root implements Store.
func (s *MemoryStore) Root(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.accounts) == 0 {
		return GenesisHash, nil
	}
	return s.accounts[len(s.accounts)-1].Hash, nil
}

// Verify implements Store.
func (s *MemoryStore) Verify(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return verifySlice(s.accounts)
}

// Ping implements Store.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

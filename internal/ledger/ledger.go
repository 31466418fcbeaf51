// Package ledger implements the append-only, create-once account store the
// proof ledger writes records to.
//
// Every account is written exactly once under a caller-chosen identity and is
// immutable afterwards. Each creation is appended to a SHA-256 hash chain that
// starts from GenesisHash, so any tampering with stored accounts is detectable
// via Verify.
//
// Implementations of the Store interface:
//   - MemoryStore:   in-process, for testing and development.
//   - LevelStore:    embedded durable store on goleveldb.
//   - PostgresStore: durable, for production use.
//   - RedisStore:    shared store on Redis.
//   - GormStore:     MySQL through gorm.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmerrifield20/blockguardian/internal/identity"
)

var (
	// ErrAlreadyExists is returned when an account already exists at an identity.
	ErrAlreadyExists = errors.New("account already exists")

	// ErrNotFound is returned when no account exists at an identity.
	ErrNotFound = errors.New("account not found")

	// ErrUnavailable wraps transient backend failures. Callers may retry the
	// whole submission.
	ErrUnavailable = errors.New("ledger backend unavailable")

	// ErrInvalidFilter is returned by Scan for malformed filters.
	ErrInvalidFilter = errors.New("invalid filter")
)

// Store is the ledger backend. All implementations are safe for concurrent use.
type Store interface {
	// Create atomically writes data at id. It fails with ErrAlreadyExists
	// when id is taken; a failed Create leaves no trace.
	Create(ctx context.Context, id, creator identity.PublicKey, data []byte) (*Account, error)

	// Get returns the account at id or ErrNotFound.
	Get(ctx context.Context, id identity.PublicKey) (*Account, error)

	// Scan returns every account matching all filters, in creation order.
	// No matches yields an empty slice and a nil error.
	Scan(ctx context.Context, filters ...Filter) ([]*Account, error)

	// Len returns the number of accounts.
	Len(ctx context.Context) (int, error)

	// Root returns the hash of the most recently created account, or
	// GenesisHash when the store is empty.
	Root(ctx context.Context) (string, error)

	// Verify walks the hash chain and checks every link.
	Verify(ctx context.Context) error

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

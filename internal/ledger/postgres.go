package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/blockguardian/internal/identity"
	"go.uber.org/zap"
)

// advisoryLockKey is a stable PostgreSQL advisory lock key used to serialise
// concurrent Create calls. The value is arbitrary but must be consistent
// across all ledgerd instances.
const advisoryLockKey = int64(1_159_876_544)

const accountColumns = `seq, id, creator, data, created_at, prev_hash, hash`

// PostgresStore persists ledger accounts to PostgreSQL. It implements Store.
// The schema lives in migrations/001_ledger_accounts.up.sql.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates a PostgresStore backed by the given connection pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// Create implements Store.
// It acquires a transaction-scoped advisory lock, reads the chain tail,
// computes the new link, and inserts it within a single transaction. The
// unique index on id turns identity reuse into ErrAlreadyExists.
func (s *PostgresStore) Create(ctx context.Context, id, creator identity.PublicKey, data []byte) (*Account, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, unavailable("begin tx", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return nil, unavailable("acquire advisory lock", err)
	}

	var exists bool
	if err := tx.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM ledger_accounts WHERE id = $1)", id[:],
	).Scan(&exists); err != nil {
		return nil, unavailable("check account", err)
	}
	if exists {
		return nil, ErrAlreadyExists
	}

	prevSeq, prevHash := int64(0), GenesisHash
	if err := tx.QueryRow(ctx,
		"SELECT seq, hash FROM ledger_accounts ORDER BY seq DESC LIMIT 1",
	).Scan(&prevSeq, &prevHash); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, unavailable("read ledger tail", err)
	}

	acct := newAccount(id, creator, data, prevSeq, prevHash)
	if _, err := tx.Exec(ctx,
		`INSERT INTO ledger_accounts (`+accountColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		acct.Seq, acct.ID[:], acct.Creator[:], acct.Data,
		acct.CreatedAt, acct.PrevHash, acct.Hash,
	); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "ledger_accounts_id_key" {
			return nil, ErrAlreadyExists
		}
		return nil, unavailable("insert account", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, unavailable("commit account tx", err)
	}

	s.logger.Debug("ledger account created",
		zap.Int64("seq", acct.Seq),
		zap.String("id", acct.ID.String()),
		zap.Int("size", len(acct.Data)),
	)
	return acct, nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, id identity.PublicKey) (*Account, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM ledger_accounts WHERE id = $1`, id[:])
	acct, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, unavailable(fmt.Sprintf("get account %s", id), err)
	}
	return acct, nil
}

// Scan implements Store. Filters compile to SQL predicates so the database
// does the byte comparison: octet_length for DataSize and substring for
// Memcmp (1-based offsets).
func (s *PostgresStore) Scan(ctx context.Context, filters ...Filter) ([]*Account, error) {
	if err := validateFilters(filters); err != nil {
		return nil, err
	}
	if anyUnreachable(filters) {
		return []*Account{}, nil
	}

	var (
		where []string
		args  []any
	)
	for _, f := range filters {
		switch f.Kind {
		case FilterDataSize:
			args = append(args, f.Size)
			where = append(where, fmt.Sprintf("octet_length(data) = $%d", len(args)))
		case FilterMemcmp:
			args = append(args, f.Offset+1, len(f.Bytes), f.Bytes)
			n := len(args)
			where = append(where, fmt.Sprintf("substring(data from $%d for $%d) = $%d", n-2, n-1, n))
		}
	}

	query := `SELECT ` + accountColumns + ` FROM ledger_accounts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, unavailable("scan accounts", err)
	}
	defer rows.Close()

	out := make([]*Account, 0)
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, unavailable("scan account row", err)
		}
		out = append(out, acct)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("scan accounts", err)
	}
	return out, nil
}

// Len implements Store.
func (s *PostgresStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM ledger_accounts").Scan(&n); err != nil {
		return 0, unavailable("count accounts", err)
	}
	return n, nil
}

// Root implements Store.
func (s *PostgresStore) Root(ctx context.Context) (string, error) {
	var hash string
	err := s.pool.QueryRow(ctx,
		"SELECT hash FROM ledger_accounts ORDER BY seq DESC LIMIT 1",
	).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return GenesisHash, nil
	}
	if err != nil {
		return "", unavailable("get ledger root", err)
	}
	return hash, nil
}

// Verify implements Store. It streams all rows ordered by seq and validates
// the hash chain. O(n) in ledger length.
func (s *PostgresStore) Verify(ctx context.Context) error {
	rows, err := s.pool.Query(ctx,
		`SELECT `+accountColumns+` FROM ledger_accounts ORDER BY seq ASC`)
	if err != nil {
		return unavailable("query ledger", err)
	}
	defer rows.Close()

	err = verifyChain(func() (*Account, error) {
		if !rows.Next() {
			return nil, rows.Err()
		}
		return scanAccount(rows)
	})
	if err != nil {
		return fmt.Errorf("verify ledger: %w", err)
	}
	return nil
}

// Ping implements Store.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return unavailable("ping postgres", err)
	}
	return nil
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanAccount(row pgx.Row) (*Account, error) {
	var (
		acct        Account
		id, creator []byte
	)
	if err := row.Scan(
		&acct.Seq, &id, &creator, &acct.Data,
		&acct.CreatedAt, &acct.PrevHash, &acct.Hash,
	); err != nil {
		return nil, err
	}
	var err error
	if acct.ID, err = identity.PublicKeyFromBytes(id); err != nil {
		return nil, fmt.Errorf("account id: %w", err)
	}
	if acct.Creator, err = identity.PublicKeyFromBytes(creator); err != nil {
		return nil, fmt.Errorf("account creator: %w", err)
	}
	acct.CreatedAt = acct.CreatedAt.UTC()
	return &acct, nil
}

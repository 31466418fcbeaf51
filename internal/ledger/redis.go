package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmerrifield20/blockguardian/internal/identity"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// maxTxRetries bounds optimistic-lock retries when concurrent creators race
// on the chain tail.
const maxTxRetries = 16

// RedisStore keeps ledger accounts in Redis. Creation uses WATCH/MULTI on the
// chain tail and the target account key, so at most one racing creator wins.
//
// Key layout (prefix configurable):
//
//	<prefix>acct:<base58 id> -> JSON Account
//	<prefix>order            -> sorted set of base58 ids scored by seq
//	<prefix>tip              -> JSON {seq, hash}
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	logger *zap.Logger
}

type redisTip struct {
	Seq  int64  `json:"seq"`
	Hash string `json:"hash"`
}

// NewRedisStore creates a RedisStore. prefix namespaces every key; an empty
// prefix defaults to "blockguardian:".
func NewRedisStore(rdb *redis.Client, prefix string, logger *zap.Logger) *RedisStore {
	if prefix == "" {
		prefix = "blockguardian:"
	}
	return &RedisStore{rdb: rdb, prefix: prefix, logger: logger}
}

// NewRedisClient parses a redis:// URL and returns a client.
func NewRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opt), nil
}

func (s *RedisStore) acctKey(id identity.PublicKey) string { return s.prefix + "acct:" + id.String() }
func (s *RedisStore) orderKey() string                     { return s.prefix + "order" }
func (s *RedisStore) tipKey() string                       { return s.prefix + "tip" }

// Create implements Store.
func (s *RedisStore) Create(ctx context.Context, id, creator identity.PublicKey, data []byte) (*Account, error) {
	acctKey := s.acctKey(id)
	var created *Account

	txf := func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, acctKey).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrAlreadyExists
		}

		tip := redisTip{Hash: GenesisHash}
		raw, err := tx.Get(ctx, s.tipKey()).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if err := json.Unmarshal(raw, &tip); err != nil {
				return fmt.Errorf("decode tip: %w", err)
			}
		}

		acct := newAccount(id, creator, data, tip.Seq, tip.Hash)
		acctJSON, err := json.Marshal(acct)
		if err != nil {
			return fmt.Errorf("marshal account: %w", err)
		}
		tipJSON, err := json.Marshal(redisTip{Seq: acct.Seq, Hash: acct.Hash})
		if err != nil {
			return fmt.Errorf("marshal tip: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, acctKey, acctJSON, 0)
			pipe.ZAdd(ctx, s.orderKey(), redis.Z{Score: float64(acct.Seq), Member: id.String()})
			pipe.Set(ctx, s.tipKey(), tipJSON, 0)
			return nil
		})
		if err == nil {
			created = acct
		}
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, acctKey, s.tipKey())
		switch {
		case err == nil:
			s.logger.Debug("ledger account created",
				zap.Int64("seq", created.Seq),
				zap.String("id", id.String()),
			)
			return created, nil
		case errors.Is(err, ErrAlreadyExists):
			return nil, ErrAlreadyExists
		case errors.Is(err, redis.TxFailedErr):
			continue
		default:
			return nil, unavailable("create account", err)
		}
	}
	return nil, unavailable("create account", fmt.Errorf("tail contention after %d attempts", maxTxRetries))
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, id identity.PublicKey) (*Account, error) {
	raw, err := s.rdb.Get(ctx, s.acctKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get account", err)
	}
	return decodeAccountJSON(raw)
}

// all loads every account in seq order.
func (s *RedisStore) all(ctx context.Context) ([]*Account, error) {
	ids, err := s.rdb.ZRange(ctx, s.orderKey(), 0, -1).Result()
	if err != nil {
		return nil, unavailable("list accounts", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.prefix + "acct:" + id
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, unavailable("load accounts", err)
	}
	out := make([]*Account, 0, len(vals))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("account %s indexed but missing", ids[i])
		}
		acct, err := decodeAccountJSON([]byte(str))
		if err != nil {
			return nil, err
		}
		out = append(out, acct)
	}
	return out, nil
}

// Scan implements Store.
func (s *RedisStore) Scan(ctx context.Context, filters ...Filter) ([]*Account, error) {
	if err := validateFilters(filters); err != nil {
		return nil, err
	}
	accounts, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Account, 0)
	for _, a := range accounts {
		if matchAll(filters, a.Data) {
			out = append(out, a)
		}
	}
	return out, nil
}

// Len implements Store.
func (s *RedisStore) Len(ctx context.Context) (int, error) {
	n, err := s.rdb.ZCard(ctx, s.orderKey()).Result()
	if err != nil {
		return 0, unavailable("count accounts", err)
	}
	return int(n), nil
}

// Root implements Store.
func (s *RedisStore) Root(ctx context.Context) (string, error) {
	raw, err := s.rdb.Get(ctx, s.tipKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return GenesisHash, nil
	}
	if err != nil {
		return "", unavailable("get ledger root", err)
	}
	var tip redisTip
	if err := json.Unmarshal(raw, &tip); err != nil {
		return "", fmt.Errorf("decode tip: %w", err)
	}
	return tip.Hash, nil
}

// Verify implements Store.
func (s *RedisStore) Verify(ctx context.Context) error {
	accounts, err := s.all(ctx)
	if err != nil {
		return err
	}
	if err := verifySlice(accounts); err != nil {
		return fmt.Errorf("verify ledger: %w", err)
	}
	return nil
}

// Ping implements Store.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return unavailable("ping redis", err)
	}
	return nil
}

// Close implements Store.
func (s *RedisStore) Close() error { return s.rdb.Close() }

package ledger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jmerrifield20/blockguardian/internal/identity"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
	"go.uber.org/zap"
)

// Key layout:
//
//	s/<seq big-endian u64> -> JSON Account
//	i/<32-byte id>         -> seq big-endian u64
var (
	seqPrefix = []byte("s/")
	idxPrefix = []byte("i/")
)

// LevelStore is an embedded, durable Store on goleveldb. Writes are
// serialised in-process; the database directory must not be shared between
// processes.
type LevelStore struct {
	mu     sync.Mutex
	db     *leveldb.DB
	logger *zap.Logger
}

// OpenLevelStore opens (or creates) a LevelDB database at path.
func OpenLevelStore(path string, logger *zap.Logger) (*LevelStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, unavailable("open leveldb "+path, err)
	}
	return &LevelStore{db: db, logger: logger}, nil
}

// NewMemLevelStore opens a LevelStore on volatile in-memory storage.
func NewMemLevelStore(logger *zap.Logger) (*LevelStore, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, unavailable("open in-memory leveldb", err)
	}
	return &LevelStore{db: db, logger: logger}, nil
}

func seqKey(seq int64) []byte {
	k := make([]byte, len(seqPrefix)+8)
	copy(k, seqPrefix)
	binary.BigEndian.PutUint64(k[len(seqPrefix):], uint64(seq))
	return k
}

func idxKey(id identity.PublicKey) []byte {
	return append(append([]byte{}, idxPrefix...), id[:]...)
}

// Create implements Store.
func (s *LevelStore) Create(ctx context.Context, id, creator identity.PublicKey, data []byte) (*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("create account", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.db.Has(idxKey(id), nil)
	if err != nil {
		return nil, unavailable("check account", err)
	}
	if exists {
		return nil, ErrAlreadyExists
	}

	prevSeq, prevHash := int64(0), GenesisHash
	if tail, err := s.tail(); err != nil {
		return nil, err
	} else if tail != nil {
		prevSeq, prevHash = tail.Seq, tail.Hash
	}

	acct := newAccount(id, creator, data, prevSeq, prevHash)
	raw, err := json.Marshal(acct)
	if err != nil {
		return nil, fmt.Errorf("marshal account: %w", err)
	}

	batch := new(leveldb.Batch)
	batch.Put(seqKey(acct.Seq), raw)
	batch.Put(idxKey(id), seqKey(acct.Seq)[len(seqPrefix):])
	if err := s.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return nil, unavailable("write account", err)
	}

	s.logger.Debug("ledger account created",
		zap.Int64("seq", acct.Seq),
		zap.String("id", acct.ID.String()),
	)
	return acct, nil
}

// tail returns the highest-seq account, or nil when empty.
func (s *LevelStore) tail() (*Account, error) {
	it := s.db.NewIterator(util.BytesPrefix(seqPrefix), nil)
	defer it.Release()
	if !it.Last() {
		return nil, it.Error()
	}
	return decodeAccountJSON(it.Value())
}

// Get implements Store.
func (s *LevelStore) Get(_ context.Context, id identity.PublicKey) (*Account, error) {
	seq, err := s.db.Get(idxKey(id), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get account index", err)
	}
	raw, err := s.db.Get(append(append([]byte{}, seqPrefix...), seq...), nil)
	if err != nil {
		return nil, unavailable("get account", err)
	}
	return decodeAccountJSON(raw)
}

// Scan implements Store.
func (s *LevelStore) Scan(_ context.Context, filters ...Filter) ([]*Account, error) {
	if err := validateFilters(filters); err != nil {
		return nil, err
	}
	out := make([]*Account, 0)
	err := s.iterate(func(acct *Account) error {
		if matchAll(filters, acct.Data) {
			out = append(out, acct)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// iterate visits accounts in seq order from a consistent snapshot.
func (s *LevelStore) iterate(fn func(*Account) error) error {
	snap, err := s.db.GetSnapshot()
	if err != nil {
		return unavailable("snapshot", err)
	}
	defer snap.Release()

	it := snap.NewIterator(util.BytesPrefix(seqPrefix), nil)
	defer it.Release()
	for it.Next() {
		acct, err := decodeAccountJSON(it.Value())
		if err != nil {
			return err
		}
		if err := fn(acct); err != nil {
			return err
		}
	}
	if err := it.Error(); err != nil {
		return unavailable("iterate accounts", err)
	}
	return nil
}

// Len implements Store.
func (s *LevelStore) Len(context.Context) (int, error) {
	tail, err := s.tail()
	if err != nil || tail == nil {
		return 0, err
	}
	return int(tail.Seq), nil
}

// Root implements Store.
func (s *LevelStore) Root(context.Context) (string, error) {
	tail, err := s.tail()
	if err != nil {
		return "", err
	}
	if tail == nil {
		return GenesisHash, nil
	}
	return tail.Hash, nil
}

// Verify implements Store.
func (s *LevelStore) Verify(context.Context) error {
	var accounts []*Account
	if err := s.iterate(func(a *Account) error {
		accounts = append(accounts, a)
		return nil
	}); err != nil {
		return err
	}
	if err := verifySlice(accounts); err != nil {
		return fmt.Errorf("verify ledger: %w", err)
	}
	return nil
}

// Ping implements Store.
func (s *LevelStore) Ping(context.Context) error {
	if _, err := s.db.GetProperty("leveldb.num-files-at-level0"); err != nil {
		return unavailable("ping leveldb", err)
	}
	return nil
}

// Close implements Store.
func (s *LevelStore) Close() error { return s.db.Close() }

func decodeAccountJSON(raw []byte) (*Account, error) {
	var acct Account
	if err := json.Unmarshal(raw, &acct); err != nil {
		return nil, fmt.Errorf("decode account: %w", err)
	}
	return &acct, nil
}

package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmerrifield20/blockguardian/internal/identity"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// gormAccount is the MySQL row for an Account.
type gormAccount struct {
	Seq       int64     `gorm:"primaryKey;autoIncrement:false"`
	AccountID []byte    `gorm:"column:account_id;type:binary(32);uniqueIndex;not null"`
	Creator   []byte    `gorm:"type:binary(32);not null"`
	Data      []byte    `gorm:"type:blob;not null"`
	CreatedAt time.Time `gorm:"type:datetime(6);not null"`
	PrevHash  string    `gorm:"type:char(64);not null"`
	Hash      string    `gorm:"type:char(64);not null"`
}

func (gormAccount) TableName() string { return "ledger_accounts" }

func (r *gormAccount) toAccount() (*Account, error) {
	id, err := identity.PublicKeyFromBytes(r.AccountID)
	if err != nil {
		return nil, fmt.Errorf("account id: %w", err)
	}
	creator, err := identity.PublicKeyFromBytes(r.Creator)
	if err != nil {
		return nil, fmt.Errorf("account creator: %w", err)
	}
	return &Account{
		ID:        id,
		Creator:   creator,
		Data:      r.Data,
		Seq:       r.Seq,
		CreatedAt: r.CreatedAt.UTC(),
		PrevHash:  r.PrevHash,
		Hash:      r.Hash,
	}, nil
}

// GormStore persists ledger accounts to MySQL through gorm. It implements Store.
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// OpenGormStore connects to MySQL using dsn and migrates the accounts table.
// The DSN must set parseTime=true.
func OpenGormStore(dsn string, logger *zap.Logger) (*GormStore, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, unavailable("open mysql", err)
	}
	return NewGormStore(db, logger)
}

// NewGormStore wraps an existing gorm handle and migrates the accounts table.
func NewGormStore(db *gorm.DB, logger *zap.Logger) (*GormStore, error) {
	if err := db.AutoMigrate(&gormAccount{}); err != nil {
		return nil, unavailable("migrate ledger_accounts", err)
	}
	return &GormStore{db: db, logger: logger}, nil
}

// Create implements Store. The tail row is locked FOR UPDATE; a concurrent
// creator that still collides on seq gets ErrUnavailable and may retry.
func (s *GormStore) Create(ctx context.Context, id, creator identity.PublicKey, data []byte) (*Account, error) {
	var acct *Account
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&gormAccount{}).Where("account_id = ?", id[:]).Count(&n).Error; err != nil {
			return unavailable("check account", err)
		}
		if n > 0 {
			return ErrAlreadyExists
		}

		prevSeq, prevHash := int64(0), GenesisHash
		var tail gormAccount
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Order("seq DESC").Take(&tail).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
		case err != nil:
			return unavailable("read ledger tail", err)
		default:
			prevSeq, prevHash = tail.Seq, tail.Hash
		}

		acct = newAccount(id, creator, data, prevSeq, prevHash)
		row := gormAccount{
			Seq:       acct.Seq,
			AccountID: acct.ID[:],
			Creator:   acct.Creator[:],
			Data:      acct.Data,
			CreatedAt: acct.CreatedAt,
			PrevHash:  acct.PrevHash,
			Hash:      acct.Hash,
		}
		if err := tx.Create(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) && strings.Contains(err.Error(), "account_id") {
				return ErrAlreadyExists
			}
			return unavailable("insert account", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyExists) || errors.Is(err, ErrUnavailable) {
			return nil, err
		}
		return nil, unavailable("create account", err)
	}

	s.logger.Debug("ledger account created",
		zap.Int64("seq", acct.Seq),
		zap.String("id", acct.ID.String()),
	)
	return acct, nil
}

// Get implements Store.
func (s *GormStore) Get(ctx context.Context, id identity.PublicKey) (*Account, error) {
	var row gormAccount
	err := s.db.WithContext(ctx).Where("account_id = ?", id[:]).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get account", err)
	}
	return row.toAccount()
}

// Scan implements Store. Filters compile to LENGTH and SUBSTRING predicates.
func (s *GormStore) Scan(ctx context.Context, filters ...Filter) ([]*Account, error) {
	if err := validateFilters(filters); err != nil {
		return nil, err
	}
	if anyUnreachable(filters) {
		return []*Account{}, nil
	}
	q := s.db.WithContext(ctx).Model(&gormAccount{})
	for _, f := range filters {
		switch f.Kind {
		case FilterDataSize:
			q = q.Where("LENGTH(data) = ?", f.Size)
		case FilterMemcmp:
			q = q.Where("SUBSTRING(data, ?, ?) = ?", f.Offset+1, len(f.Bytes), f.Bytes)
		}
	}
	var rows []gormAccount
	if err := q.Order("seq ASC").Find(&rows).Error; err != nil {
		return nil, unavailable("scan accounts", err)
	}
	out := make([]*Account, 0, len(rows))
	for i := range rows {
		acct, err := rows[i].toAccount()
		if err != nil {
			return nil, err
		}
		out = append(out, acct)
	}
	return out, nil
}

// Len implements Store.
func (s *GormStore) Len(ctx context.Context) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&gormAccount{}).Count(&n).Error; err != nil {
		return 0, unavailable("count accounts", err)
	}
	return int(n), nil
}

// Root implements Store.
func (s *GormStore) Root(ctx context.Context) (string, error) {
	var tail gormAccount
	err := s.db.WithContext(ctx).Order("seq DESC").Take(&tail).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return GenesisHash, nil
	}
	if err != nil {
		return "", unavailable("get ledger root", err)
	}
	return tail.Hash, nil
}

// Verify implements Store.
func (s *GormStore) Verify(ctx context.Context) error {
	var rows []gormAccount
	if err := s.db.WithContext(ctx).Order("seq ASC").Find(&rows).Error; err != nil {
		return unavailable("query ledger", err)
	}
	accounts := make([]*Account, 0, len(rows))
	for i := range rows {
		acct, err := rows[i].toAccount()
		if err != nil {
			return err
		}
		accounts = append(accounts, acct)
	}
	if err := verifySlice(accounts); err != nil {
		return fmt.Errorf("verify ledger: %w", err)
	}
	return nil
}

// Ping implements Store.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return unavailable("ping mysql", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return unavailable("ping mysql", err)
	}
	return nil
}

// Close implements Store.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

package service

import (
	"errors"

	"github.com/jmerrifield20/blockguardian/internal/ledger"
	"github.com/jmerrifield20/blockguardian/internal/proofs/model"
)

// Error taxonomy of the write and read paths. Ledger and codec sentinels are
// re-exported so callers only need this package for errors.Is checks.
var (
	ErrUnauthorized   = errors.New("unauthorized: admin identity does not match the trusted admin")
	ErrInvalidLength  = errors.New("invalid commitment length")
	ErrMissingID      = errors.New("record identity is required")
	ErrWrongType      = errors.New("account holds a different record type")
	ErrAlreadyExists  = ledger.ErrAlreadyExists
	ErrNotFound       = ledger.ErrNotFound
	ErrUnavailable    = ledger.ErrUnavailable
	ErrInvalidFilter  = ledger.ErrInvalidFilter
	ErrContentTooLong = model.ErrContentTooLong
)

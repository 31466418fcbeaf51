package ledger

import (
	"bytes"
	"fmt"
	"math"
)

// maxSQLOffset bounds memcmp ranges handed to SQL backends, whose substring
// positions are 32-bit.
const maxSQLOffset = math.MaxInt32

// FilterKind discriminates the two raw-byte filters a Scan understands.
type FilterKind int

const (
	// FilterDataSize matches accounts whose data is exactly Size bytes.
	FilterDataSize FilterKind = iota + 1
	// FilterMemcmp matches accounts whose data holds Bytes at Offset.
	FilterMemcmp
)

// Filter is a raw-byte predicate over account data. Filters never
// deserialize records; they only compare sizes and byte ranges.
type Filter struct {
	Kind   FilterKind
	Size   int
	Offset int
	Bytes  []byte
}

// DataSize returns a filter matching accounts of exactly n data bytes.
func DataSize(n int) Filter { return Filter{Kind: FilterDataSize, Size: n} }

// Memcmp returns a filter matching accounts holding b at offset.
func Memcmp(offset int, b []byte) Filter {
	return Filter{Kind: FilterMemcmp, Offset: offset, Bytes: bytes.Clone(b)}
}

// Validate reports malformed filters.
func (f Filter) Validate() error {
	switch f.Kind {
	case FilterDataSize:
		if f.Size < 0 {
			return fmt.Errorf("%w: negative data size %d", ErrInvalidFilter, f.Size)
		}
	case FilterMemcmp:
		if f.Offset < 0 {
			return fmt.Errorf("%w: negative memcmp offset %d", ErrInvalidFilter, f.Offset)
		}
		if len(f.Bytes) == 0 {
			return fmt.Errorf("%w: empty memcmp bytes", ErrInvalidFilter)
		}
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrInvalidFilter, f.Kind)
	}
	return nil
}

// Match reports whether data satisfies the filter.
func (f Filter) Match(data []byte) bool {
	switch f.Kind {
	case FilterDataSize:
		return len(data) == f.Size
	case FilterMemcmp:
		if f.Offset > len(data) || len(f.Bytes) > len(data)-f.Offset {
			return false
		}
		return bytes.Equal(data[f.Offset:f.Offset+len(f.Bytes)], f.Bytes)
	}
	return false
}

// unreachable reports a memcmp range that ends beyond any position a SQL
// backend can address. No stored record is that large, so the filter can
// never match.
func (f Filter) unreachable() bool {
	return f.Kind == FilterMemcmp && (f.Offset >= maxSQLOffset || len(f.Bytes) > maxSQLOffset-f.Offset)
}

func anyUnreachable(filters []Filter) bool {
	for _, f := range filters {
		if f.unreachable() {
			return true
		}
	}
	return false
}

func validateFilters(filters []Filter) error {
	for _, f := range filters {
		if err := f.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func matchAll(filters []Filter, data []byte) bool {
	for _, f := range filters {
		if !f.Match(data) {
			return false
		}
	}
	return true
}

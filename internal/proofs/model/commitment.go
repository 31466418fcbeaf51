package model

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// CommitmentSize is the stored width of every commitment.
const CommitmentSize = 32

// Commitment is a 32-byte cryptographic digest or Merkle root.
type Commitment [CommitmentSize]byte

// DecodeHex decodes a hex string with an optional 0x prefix. It accepts any
// length; normalisation to 32 bytes is the write path's job.
func DecodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode hex: %w", err)
	}
	return b, nil
}

// ParseCommitment decodes exactly 32 hex-encoded bytes.
func ParseCommitment(s string) (Commitment, error) {
	b, err := DecodeHex(s)
	if err != nil {
		return Commitment{}, err
	}
	if len(b) != CommitmentSize {
		return Commitment{}, fmt.Errorf("commitment must be %d bytes, got %d", CommitmentSize, len(b))
	}
	var c Commitment
	copy(c[:], b)
	return c, nil
}

// String returns the 0x-prefixed hex form.
func (c Commitment) String() string { return "0x" + hex.EncodeToString(c[:]) }

// Bytes returns a copy of the raw commitment.
func (c Commitment) Bytes() []byte { return append([]byte(nil), c[:]...) }

// MarshalText implements encoding.TextMarshaler.
func (c Commitment) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Commitment) UnmarshalText(text []byte) error {
	parsed, err := ParseCommitment(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

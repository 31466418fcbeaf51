package identity

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mr-tron/base58"
)

// PublicKeySize is the size in bytes of an account identity.
const PublicKeySize = ed25519.PublicKeySize

// ErrInvalidPublicKey is returned when a key does not decode to exactly 32 bytes.
var ErrInvalidPublicKey = errors.New("invalid public key")

// PublicKey is the opaque fixed-size identity of an account or caller.
type PublicKey [PublicKeySize]byte

// ParsePublicKey decodes a base58 public key.
func ParsePublicKey(s string) (PublicKey, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return PublicKeyFromBytes(raw)
}

// MustParsePublicKey is like ParsePublicKey but panics on error.
func MustParsePublicKey(s string) PublicKey {
	k, err := ParsePublicKey(s)
	if err != nil {
		panic(err)
	}
	return k
}

// PublicKeyFromBytes copies b into a PublicKey.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	var k PublicKey
	if len(b) != PublicKeySize {
		return k, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidPublicKey, len(b), PublicKeySize)
	}
	copy(k[:], b)
	return k, nil
}

// String returns the base58 form of the key.
func (k PublicKey) String() string { return base58.Encode(k[:]) }

// Bytes returns a copy of the raw key bytes.
func (k PublicKey) Bytes() []byte {
	out := make([]byte, PublicKeySize)
	copy(out, k[:])
	return out
}

// IsZero reports whether k is the all-zero key.
func (k PublicKey) IsZero() bool { return k == PublicKey{} }

// Equal reports whether k and other are the same key.
func (k PublicKey) Equal(other PublicKey) bool { return bytes.Equal(k[:], other[:]) }

// Verify reports whether sig is a valid Ed25519 signature of msg by k.
func (k PublicKey) Verify(msg, sig []byte) bool {
	return ed25519.Verify(ed25519.PublicKey(k[:]), msg, sig)
}

// MarshalText implements encoding.TextMarshaler.
func (k PublicKey) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *PublicKey) UnmarshalText(text []byte) error {
	parsed, err := ParsePublicKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Keypair is an Ed25519 signing key.
type Keypair struct {
	priv ed25519.PrivateKey
}

// GenerateKeypair creates a new random keypair.
func GenerateKeypair() (*Keypair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	return &Keypair{priv: priv}, nil
}

// KeypairFromPrivateKey wraps a 64-byte Ed25519 private key.
func KeypairFromPrivateKey(priv []byte) (*Keypair, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(priv))
	}
	k := make(ed25519.PrivateKey, ed25519.PrivateKeySize)
	copy(k, priv)
	return &Keypair{priv: k}, nil
}

// PublicKey returns the identity of the keypair.
func (kp *Keypair) PublicKey() PublicKey {
	var k PublicKey
	copy(k[:], kp.priv.Public().(ed25519.PublicKey))
	return k
}

// PrivateKey returns the underlying signing key.
func (kp *Keypair) PrivateKey() ed25519.PrivateKey { return kp.priv }

// Sign signs msg with the keypair.
func (kp *Keypair) Sign(msg []byte) []byte { return ed25519.Sign(kp.priv, msg) }

// LoadKeypair reads a key file holding the 64-byte private key as a JSON
// array of integers, the format produced by common wallet tooling.
func LoadKeypair(path string) (*Keypair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return nil, fmt.Errorf("decode key file %s: %w", path, err)
	}
	raw := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("decode key file %s: byte %d out of range", path, i)
		}
		raw[i] = byte(v)
	}
	return KeypairFromPrivateKey(raw)
}

// Save writes the keypair to path in the format read by LoadKeypair.
// The file is created with 0600 permissions.
func (kp *Keypair) Save(path string) error {
	ints := make([]int, len(kp.priv))
	for i, b := range kp.priv {
		ints[i] = int(b)
	}
	data, err := json.Marshal(ints)
	if err != nil {
		return fmt.Errorf("encode key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create key dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	return nil
}

package client

import (
	"crypto/ed25519"
	"fmt"

	"github.com/jmerrifield20/blockguardian/internal/identity"
)

// NewRecordID returns a fresh, random record identity in base58.
func NewRecordID() (string, error) {
	kp, err := identity.GenerateKeypair()
	if err != nil {
		return "", err
	}
	return kp.PublicKey().String(), nil
}

// LoadKey reads a keypair file (a JSON array of the 64-byte Ed25519 private
// key, as written by 'proofctl keygen').
func LoadKey(path string) (ed25519.PrivateKey, error) {
	kp, err := identity.LoadKeypair(path)
	if err != nil {
		return nil, err
	}
	return kp.PrivateKey(), nil
}

// NewFromKeyfile creates a signing client by loading the key at path.
//
// Additional options (e.g. WithAdmin) can be appended:
//
//	c, err := client.NewFromKeyfile(base, keyPath, client.WithAdmin(adminKey))
func NewFromKeyfile(base, path string, opts ...Option) (*Client, error) {
	return New(base, append([]Option{WithKeyfile(path)}, opts...)...)
}

// WithKeyfile is the functional-option form of NewFromKeyfile.
func WithKeyfile(path string) Option {
	return func(c *Client) error {
		key, err := LoadKey(path)
		if err != nil {
			return fmt.Errorf("load key from %q: %w", path, err)
		}
		return WithSigner(key)(c)
	}
}

// PublicKey returns the base58 identity of an Ed25519 private key.
func PublicKey(key ed25519.PrivateKey) (string, error) {
	kp, err := identity.KeypairFromPrivateKey(key)
	if err != nil {
		return "", err
	}
	return kp.PublicKey().String(), nil
}

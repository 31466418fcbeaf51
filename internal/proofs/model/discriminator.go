package model

import "crypto/sha256"

// DiscriminatorSize is the width of the type tag at offset 0 of every record.
const DiscriminatorSize = 8

// Discriminator is the fixed-offset tag identifying a record's schema within
// the shared account space.
type Discriminator [DiscriminatorSize]byte

// AccountDiscriminator derives the tag for a record type: the first eight
// bytes of SHA-256("account:<name>").
func AccountDiscriminator(name string) Discriminator {
	sum := sha256.Sum256([]byte("account:" + name))
	var d Discriminator
	copy(d[:], sum[:DiscriminatorSize])
	return d
}

var (
	// ProofDiscriminator tags ProofRecord accounts.
	ProofDiscriminator = AccountDiscriminator("ProofRecord")

	// MessageDiscriminator tags MessageRecord accounts.
	MessageDiscriminator = AccountDiscriminator("MessageRecord")
)

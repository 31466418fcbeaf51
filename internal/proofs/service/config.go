package service

import (
	"fmt"
	"strings"

	"github.com/jmerrifield20/blockguardian/internal/identity"
)

// Variant selects the ProofRecord layout and whether writes need an admin.
type Variant string

const (
	// VariantOpen lets any signer store a proof; records are 80 bytes.
	VariantOpen Variant = "open"
	// VariantGated requires the trusted admin to co-sign; records are 113 bytes.
	VariantGated Variant = "gated"
)

// ParseVariant parses a configuration value. Empty means open.
func ParseVariant(s string) (Variant, error) {
	switch v := Variant(strings.ToLower(strings.TrimSpace(s))); v {
	case "", VariantOpen:
		return VariantOpen, nil
	case VariantGated:
		return VariantGated, nil
	default:
		return "", fmt.Errorf("unknown ledger variant %q (want open or gated)", s)
	}
}

// ShortPolicy decides what happens to commitments shorter than 32 bytes.
type ShortPolicy string

const (
	// ShortReject fails short commitments with ErrInvalidLength.
	ShortReject ShortPolicy = "reject"
	// ShortPad right-pads short commitments with zero bytes.
	ShortPad ShortPolicy = "pad"
)

// ParseShortPolicy parses a configuration value. Empty means reject.
func ParseShortPolicy(s string) (ShortPolicy, error) {
	switch p := ShortPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", ShortReject:
		return ShortReject, nil
	case ShortPad:
		return ShortPad, nil
	default:
		return "", fmt.Errorf("unknown short commitment policy %q (want reject or pad)", s)
	}
}

// ProofConfig configures a ProofService.
type ProofConfig struct {
	Variant     Variant
	Admin       identity.PublicKey // required when Variant is gated
	ShortPolicy ShortPolicy
}

func (c *ProofConfig) normalize() error {
	if c.Variant == "" {
		c.Variant = VariantOpen
	}
	if c.ShortPolicy == "" {
		c.ShortPolicy = ShortReject
	}
	if _, err := ParseVariant(string(c.Variant)); err != nil {
		return err
	}
	if _, err := ParseShortPolicy(string(c.ShortPolicy)); err != nil {
		return err
	}
	if c.Variant == VariantGated && c.Admin.IsZero() {
		return fmt.Errorf("gated variant requires an admin identity")
	}
	return nil
}

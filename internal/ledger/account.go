package ledger

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/jmerrifield20/blockguardian/internal/identity"
)

// GenesisHash is the well-known anchor of the account hash chain. The first
// account's PrevHash is always GenesisHash.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Account is a single create-once record in the ledger.
type Account struct {
	ID        identity.PublicKey `json:"id"`
	Creator   identity.PublicKey `json:"creator"`
	Data      []byte             `json:"data"`
	Seq       int64              `json:"seq"`
	CreatedAt time.Time          `json:"created_at"`
	PrevHash  string             `json:"prev_hash"`
	Hash      string             `json:"hash"`
}

// Size returns the encoded size of the account data.
func (a *Account) Size() int { return len(a.Data) }

// clone returns a deep copy so callers can never mutate stored data.
func (a *Account) clone() *Account {
	c := *a
	c.Data = bytes.Clone(a.Data)
	return &c
}

// newAccount builds the next chain link after prevSeq/prevHash. CreatedAt is
// truncated to microseconds so the hash survives SQL timestamp round trips.
func newAccount(id, creator identity.PublicKey, data []byte, prevSeq int64, prevHash string) *Account {
	a := &Account{
		ID:        id,
		Creator:   creator,
		Data:      bytes.Clone(data),
		Seq:       prevSeq + 1,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
		PrevHash:  prevHash,
	}
	a.Hash = hashAccount(a)
	return a
}

// hashAccount computes the deterministic SHA-256 link hash of an account.
func hashAccount(a *Account) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%s|%s|%x|%s",
		a.Seq, a.CreatedAt.UTC().Format(time.RFC3339Nano),
		a.ID, a.Creator, a.Data, a.PrevHash,
	)
	return hex.EncodeToString(h.Sum(nil))
}

// verifyChain checks links in seq order. next must return accounts in
// ascending seq and (nil, nil) when exhausted.
func verifyChain(next func() (*Account, error)) error {
	prevSeq := int64(0)
	prevHash := GenesisHash
	for {
		curr, err := next()
		if err != nil {
			return err
		}
		if curr == nil {
			return nil
		}
		if curr.Seq != prevSeq+1 {
			return fmt.Errorf("sequence gap at %d (previous %d)", curr.Seq, prevSeq)
		}
		if curr.PrevHash != prevHash {
			return fmt.Errorf("hash chain broken at seq %d", curr.Seq)
		}
		if curr.Hash != hashAccount(curr) {
			return fmt.Errorf("account %d has invalid hash", curr.Seq)
		}
		prevSeq, prevHash = curr.Seq, curr.Hash
	}
}

// verifySlice is verifyChain over an in-memory, seq-ordered slice.
func verifySlice(accounts []*Account) error {
	i := 0
	return verifyChain(func() (*Account, error) {
		if i >= len(accounts) {
			return nil, nil
		}
		a := accounts[i]
		i++
		return a, nil
	})
}

// Package merkle builds Merkle trees compatible with OpenZeppelin's
// StandardMerkleTree, so roots computed off-ledger by JavaScript tooling can be
// anchored and verified here.
//
// Leaves are ABI-encoded tuples hashed twice with keccak256. Leaf hashes are
// sorted before the tree is built and every internal node hashes its two
// children in ascending byte order, so proofs carry no direction bits.
package merkle

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/crypto/sha3"
)

// HashSize is the width of every node in the tree.
const HashSize = 32

// Hash is a tree node.
type Hash [HashSize]byte

var (
	// ErrEmptyTree is returned when a tree is built from no values.
	ErrEmptyTree = errors.New("merkle: expected non-zero number of leaves")

	// ErrIndexOutOfRange is returned by Proof for an unknown value index.
	ErrIndexOutOfRange = errors.New("merkle: index out of range")

	// ErrInvalidHash is returned when a hex node does not decode to 32 bytes.
	ErrInvalidHash = errors.New("merkle: invalid hash")
)

// Keccak256 hashes the concatenation of data with legacy (pre-NIST) Keccak.
func Keccak256(data ...[]byte) Hash {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	var out Hash
	h.Sum(out[:0])
	return out
}

// String returns the 0x-prefixed hex form.
func (h Hash) String() string { return "0x" + hex.EncodeToString(h[:]) }

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHash decodes a 0x-prefixed (or bare) 32-byte hex string.
func ParseHash(s string) (Hash, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil || len(b) != HashSize {
		return Hash{}, fmt.Errorf("%w: %q", ErrInvalidHash, s)
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

// LeafHash returns keccak256(keccak256(abi.encode(values))).
func LeafHash(types []string, values []string) (Hash, error) {
	enc, err := EncodeABI(types, values)
	if err != nil {
		return Hash{}, err
	}
	inner := Keccak256(enc)
	return Keccak256(inner[:]), nil
}

func hashPair(a, b Hash) Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return Keccak256(a[:], b[:])
}

func leftChild(i int) int  { return 2*i + 1 }
func rightChild(i int) int { return 2*i + 2 }
func parent(i int) int     { return (i - 1) / 2 }

func sibling(i int) int {
	if i%2 == 1 {
		return i + 1
	}
	return i - 1
}

// Tree is a complete binary tree laid out in an array. The root is at index 0
// and leaves occupy the tail of the array in ascending hash order.
type Tree struct {
	types  []string
	values []Value
	nodes  []Hash
}

// Value is one leaf's input tuple and the array slot its hash occupies.
type Value struct {
	Value     []string `json:"value"`
	TreeIndex int      `json:"treeIndex"`
}

// New builds a tree over values, each a tuple matching types.
func New(values [][]string, types []string) (*Tree, error) {
	if len(values) == 0 {
		return nil, ErrEmptyTree
	}

	type hashed struct {
		index int
		hash  Hash
	}
	leaves := make([]hashed, len(values))
	for i, v := range values {
		h, err := LeafHash(types, v)
		if err != nil {
			return nil, fmt.Errorf("leaf %d: %w", i, err)
		}
		leaves[i] = hashed{index: i, hash: h}
	}
	sort.SliceStable(leaves, func(i, j int) bool {
		return bytes.Compare(leaves[i].hash[:], leaves[j].hash[:]) < 0
	})

	nodes := make([]Hash, 2*len(leaves)-1)
	t := &Tree{
		types:  append([]string(nil), types...),
		values: make([]Value, len(values)),
		nodes:  nodes,
	}
	for i, leaf := range leaves {
		slot := len(nodes) - 1 - i
		nodes[slot] = leaf.hash
		t.values[leaf.index] = Value{Value: append([]string(nil), values[leaf.index]...), TreeIndex: slot}
	}
	for i := len(nodes) - 1 - len(leaves); i >= 0; i-- {
		nodes[i] = hashPair(nodes[leftChild(i)], nodes[rightChild(i)])
	}
	return t, nil
}

// Root returns the tree root.
func (t *Tree) Root() Hash { return t.nodes[0] }

// Len returns the number of leaves.
func (t *Tree) Len() int { return len(t.values) }

// Types returns the leaf encoding.
func (t *Tree) Types() []string { return append([]string(nil), t.types...) }

// Proof returns the sibling path for the value at index (input order).
func (t *Tree) Proof(index int) ([]Hash, error) {
	if index < 0 || index >= len(t.values) {
		return nil, fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	var proof []Hash
	for i := t.values[index].TreeIndex; i > 0; i = parent(i) {
		proof = append(proof, t.nodes[sibling(i)])
	}
	return proof, nil
}

// Find returns the input index of the first leaf equal to value, or -1.
func (t *Tree) Find(value []string) int {
	for i, v := range t.values {
		if equalStrings(v.Value, value) {
			return i
		}
	}
	return -1
}

// ProcessProof folds proof into leaf and returns the implied root.
func ProcessProof(leaf Hash, proof []Hash) Hash {
	acc := leaf
	for _, p := range proof {
		acc = hashPair(acc, p)
	}
	return acc
}

// Verify reports whether value, encoded with types, is a leaf of the tree
// with the given root.
func Verify(root Hash, types []string, value []string, proof []Hash) (bool, error) {
	leaf, err := LeafHash(types, value)
	if err != nil {
		return false, err
	}
	return ProcessProof(leaf, proof) == root, nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

package merkle

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// ErrUnsupportedType is returned for ABI types EncodeABI does not handle.
var ErrUnsupportedType = errors.New("merkle: unsupported abi type")

const word = 32

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// EncodeABI encodes values as a Solidity abi.encode tuple. Supported types are
// string, bytes, bytes32, address, uint256 and bool. Values are given in their
// textual form: hex for bytes-like types, decimal for uint256.
func EncodeABI(types []string, values []string) ([]byte, error) {
	if len(types) != len(values) {
		return nil, fmt.Errorf("merkle: %d types for %d values", len(types), len(values))
	}

	head := make([]byte, 0, word*len(types))
	var tail []byte
	for i, typ := range types {
		v := values[i]
		switch typ {
		case "string", "bytes":
			data := []byte(v)
			if typ == "bytes" {
				b, err := decodeHex(v)
				if err != nil {
					return nil, fmt.Errorf("value %d: %w", i, err)
				}
				data = b
			}
			head = append(head, uintWord(uint64(word*len(types)+len(tail)))...)
			tail = append(tail, uintWord(uint64(len(data)))...)
			tail = append(tail, padRight(data)...)
		case "bytes32":
			b, err := decodeHex(v)
			if err != nil || len(b) != word {
				return nil, fmt.Errorf("value %d: invalid bytes32 %q", i, v)
			}
			head = append(head, b...)
		case "address":
			b, err := decodeHex(v)
			if err != nil || len(b) != 20 {
				return nil, fmt.Errorf("value %d: invalid address %q", i, v)
			}
			head = append(head, padLeft(b)...)
		case "uint256":
			n, ok := new(big.Int).SetString(v, 10)
			if !ok || n.Sign() < 0 || n.Cmp(maxUint256) > 0 {
				return nil, fmt.Errorf("value %d: invalid uint256 %q", i, v)
			}
			head = append(head, n.FillBytes(make([]byte, word))...)
		case "bool":
			switch v {
			case "true":
				head = append(head, uintWord(1)...)
			case "false":
				head = append(head, uintWord(0)...)
			default:
				return nil, fmt.Errorf("value %d: invalid bool %q", i, v)
			}
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, typ)
		}
	}
	return append(head, tail...), nil
}

func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}

func uintWord(n uint64) []byte {
	return new(big.Int).SetUint64(n).FillBytes(make([]byte, word))
}

func padLeft(b []byte) []byte {
	out := make([]byte, word)
	copy(out[word-len(b):], b)
	return out
}

func padRight(b []byte) []byte {
	n := (len(b) + word - 1) / word * word
	out := make([]byte, n)
	copy(out, b)
	return out
}

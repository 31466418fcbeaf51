package merkle

import "fmt"

// DumpFormat is the format tag written by OpenZeppelin's tree.dump().
const DumpFormat = "standard-v1"

// Dump is the JSON-serialisable form of a tree.
type Dump struct {
	Format       string   `json:"format"`
	LeafEncoding []string `json:"leafEncoding"`
	Tree         []Hash   `json:"tree"`
	Values       []Value  `json:"values"`
}

// Dump returns the serialisable form of t.
func (t *Tree) Dump() Dump {
	values := make([]Value, len(t.values))
	for i, v := range t.values {
		values[i] = Value{Value: append([]string(nil), v.Value...), TreeIndex: v.TreeIndex}
	}
	return Dump{
		Format:       DumpFormat,
		LeafEncoding: t.Types(),
		Tree:         append([]Hash(nil), t.nodes...),
		Values:       values,
	}
}

// Load rebuilds a tree from a dump and checks its internal consistency.
func Load(d Dump) (*Tree, error) {
	if d.Format != DumpFormat {
		return nil, fmt.Errorf("merkle: unknown dump format %q", d.Format)
	}
	if len(d.Values) == 0 || len(d.Tree) != 2*len(d.Values)-1 {
		return nil, fmt.Errorf("merkle: dump has %d nodes for %d values", len(d.Tree), len(d.Values))
	}
	t := &Tree{
		types:  append([]string(nil), d.LeafEncoding...),
		values: make([]Value, len(d.Values)),
		nodes:  append([]Hash(nil), d.Tree...),
	}
	for i, v := range d.Values {
		if v.TreeIndex < len(t.nodes)-len(d.Values) || v.TreeIndex >= len(t.nodes) {
			return nil, fmt.Errorf("merkle: value %d has tree index %d outside the leaf range", i, v.TreeIndex)
		}
		leaf, err := LeafHash(t.types, v.Value)
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
		if leaf != t.nodes[v.TreeIndex] {
			return nil, fmt.Errorf("merkle: value %d does not match its leaf", i)
		}
		t.values[i] = Value{Value: append([]string(nil), v.Value...), TreeIndex: v.TreeIndex}
	}
	for i := len(t.nodes) - 1 - len(d.Values); i >= 0; i-- {
		if t.nodes[i] != hashPair(t.nodes[leftChild(i)], t.nodes[rightChild(i)]) {
			return nil, fmt.Errorf("merkle: node %d does not match its children", i)
		}
	}
	return t, nil
}

package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Tree is an opaque hierarchical configuration, backed by a YAML node.
// A nil *Tree behaves like an empty one.
type Tree struct {
	node *yaml.Node
}

// NewTree returns an empty tree.
func NewTree() *Tree {
	return &Tree{node: &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}}
}

// ParseTree parses a YAML document into a tree.
func ParseTree(data []byte) (*Tree, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}
	return TreeFromNode(&doc), nil
}

// MustParseTree is ParseTree panicking on error. Meant for literals in tests
// and built-in defaults.
func MustParseTree(data string) *Tree {
	t, err := ParseTree([]byte(data))
	if err != nil {
		panic(err)
	}
	return t
}

// TreeFromNode wraps an existing node. Document nodes are unwrapped.
func TreeFromNode(n *yaml.Node) *Tree {
	if n == nil {
		return NewTree()
	}
	if n.Kind == yaml.DocumentNode {
		if len(n.Content) == 0 {
			return NewTree()
		}
		n = n.Content[0]
	}
	if n.Kind == 0 {
		return NewTree()
	}
	return &Tree{node: n}
}

// IsEmpty reports whether the tree holds no value.
func (t *Tree) IsEmpty() bool {
	if t == nil || t.node == nil {
		return true
	}
	switch t.node.Kind {
	case yaml.MappingNode, yaml.SequenceNode:
		return len(t.node.Content) == 0
	case yaml.ScalarNode:
		return t.node.Tag == "!!null"
	}
	return false
}

func mappingValue(n *yaml.Node, key string) *yaml.Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			v := n.Content[i+1]
			if v.Kind == yaml.AliasNode {
				return v.Alias
			}
			return v
		}
	}
	return nil
}

// lookup resolves a dotted path.
func (t *Tree) lookup(path string) *yaml.Node {
	if t == nil || t.node == nil {
		return nil
	}
	n := t.node
	if path == "" {
		return n
	}
	for _, part := range strings.Split(path, ".") {
		n = mappingValue(n, part)
		if n == nil {
			return nil
		}
	}
	return n
}

// Has reports whether path resolves to a value.
func (t *Tree) Has(path string) bool {
	return t.lookup(path) != nil
}

// Child returns the subtree at path, or an empty tree.
func (t *Tree) Child(path string) *Tree {
	n := t.lookup(path)
	if n == nil {
		return NewTree()
	}
	return &Tree{node: n}
}

// Children returns the elements of the sequence at path. A mapping at path
// yields a single-element slice.
func (t *Tree) Children(path string) []*Tree {
	n := t.lookup(path)
	if n == nil {
		return nil
	}
	if n.Kind != yaml.SequenceNode {
		return []*Tree{{node: n}}
	}
	children := make([]*Tree, 0, len(n.Content))
	for _, c := range n.Content {
		children = append(children, &Tree{node: c})
	}
	return children
}

// Keys returns the top-level mapping keys, sorted.
func (t *Tree) Keys() []string {
	if t == nil || t.node == nil || t.node.Kind != yaml.MappingNode {
		return nil
	}
	keys := make([]string, 0, len(t.node.Content)/2)
	for i := 0; i+1 < len(t.node.Content); i += 2 {
		keys = append(keys, t.node.Content[i].Value)
	}
	sort.Strings(keys)
	return keys
}

func (t *Tree) scalar(path string) (string, bool) {
	n := t.lookup(path)
	if n == nil || n.Kind != yaml.ScalarNode || n.Tag == "!!null" {
		return "", false
	}
	return n.Value, true
}

// String returns the scalar at path, or def.
func (t *Tree) String(path, def string) string {
	if v, ok := t.scalar(path); ok {
		return v
	}
	return def
}

// Strings returns the scalars of the sequence at path.
func (t *Tree) Strings(path string) []string {
	var out []string
	for _, c := range t.Children(path) {
		if c.node.Kind == yaml.ScalarNode {
			out = append(out, c.node.Value)
		}
	}
	return out
}

// Int returns the integer at path, or def when missing or malformed.
func (t *Tree) Int(path string, def int) int {
	v, ok := t.scalar(path)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

// Bool returns the boolean at path, or def when missing or malformed.
func (t *Tree) Bool(path string, def bool) bool {
	v, ok := t.scalar(path)
	if !ok {
		return def
	}
	var b bool
	if err := yaml.Unmarshal([]byte(v), &b); err != nil {
		return def
	}
	return b
}

// Duration returns the duration at path ("250ms", "2s"), or def.
func (t *Tree) Duration(path string, def time.Duration) time.Duration {
	v, ok := t.scalar(path)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// Decode decodes the whole tree into v.
func (t *Tree) Decode(v any) error {
	if t.IsEmpty() {
		return nil
	}
	return t.node.Decode(v)
}

// Set stores value at a top-level key, replacing any existing entry.
func (t *Tree) Set(key string, value any) error {
	if t.node == nil || t.node.Kind != yaml.MappingNode {
		t.node = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	}
	var v yaml.Node
	if err := v.Encode(value); err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	for i := 0; i+1 < len(t.node.Content); i += 2 {
		if t.node.Content[i].Value == key {
			t.node.Content[i+1] = &v
			return nil
		}
	}
	k := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}
	t.node.Content = append(t.node.Content, k, &v)
	return nil
}

// Bytes renders the tree back to YAML.
func (t *Tree) Bytes() ([]byte, error) {
	if t.IsEmpty() {
		return []byte("{}\n"), nil
	}
	return yaml.Marshal(t.node)
}

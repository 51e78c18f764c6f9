package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Tree is an insertion-ordered nested mapping. Values are either scalars
// decoded from a config file or nested *Tree values.
//
// Reads never create anything; Subtree is the only get-or-create accessor.
type Tree struct {
	keys   []string
	values map[string]interface{}
}

// NewTree creates an empty tree
func NewTree() *Tree {
	return &Tree{values: make(map[string]interface{})}
}

// Keys returns the keys in insertion order
func (t *Tree) Keys() []string {
	return append([]string(nil), t.keys...)
}

// Len returns the number of keys
func (t *Tree) Len() int {
	return len(t.keys)
}

// Has reports whether key is present, even with a null value
func (t *Tree) Has(key string) bool {
	_, ok := t.values[key]
	return ok
}

// Get returns the raw value stored under key
func (t *Tree) Get(key string) (interface{}, bool) {
	v, ok := t.values[key]
	return v, ok
}

// Set stores value under key. An existing key keeps its position.
func (t *Tree) Set(key string, value interface{}) {
	if _, exists := t.values[key]; !exists {
		t.keys = append(t.keys, key)
	}
	t.values[key] = value
}

// Subtree returns the tree stored under key, creating an empty one when the
// key is missing or holds a scalar.
func (t *Tree) Subtree(key string) *Tree {
	if sub, ok := t.values[key].(*Tree); ok {
		return sub
	}
	sub := NewTree()
	t.Set(key, sub)
	return sub
}

// Lookup walks path and returns the tree found at its end
func (t *Tree) Lookup(path ...string) (*Tree, bool) {
	cur := t
	for _, key := range path {
		next, ok := cur.values[key].(*Tree)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Value returns the value at the end of path
func (t *Tree) Value(path ...string) (interface{}, bool) {
	if len(path) == 0 {
		return t, true
	}
	parent, ok := t.Lookup(path[:len(path)-1]...)
	if !ok {
		return nil, false
	}
	return parent.Get(path[len(path)-1])
}

// Merge deep-merges src into t. Mappings merge key by key; any other value
// from src replaces the value in t.
func (t *Tree) Merge(src *Tree) {
	for _, key := range src.keys {
		sv := src.values[key]
		st, srcIsTree := sv.(*Tree)
		if !srcIsTree {
			t.Set(key, sv)
			continue
		}
		if dt, ok := t.values[key].(*Tree); ok {
			dt.Merge(st)
			continue
		}
		t.Set(key, st.Clone())
	}
}

// Clone returns a deep copy of the tree
func (t *Tree) Clone() *Tree {
	c := NewTree()
	for _, key := range t.keys {
		v := t.values[key]
		if sub, ok := v.(*Tree); ok {
			v = sub.Clone()
		}
		c.Set(key, v)
	}
	return c
}

// UnmarshalYAML decodes a YAML mapping keeping the document key order
func (t *Tree) UnmarshalYAML(node *yaml.Node) error {
	if t.values == nil {
		t.values = make(map[string]interface{})
	}

	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			return nil
		}
		return t.UnmarshalYAML(node.Content[0])
	case yaml.AliasNode:
		return t.UnmarshalYAML(node.Alias)
	case yaml.ScalarNode:
		if node.ShortTag() == "!!null" {
			return nil
		}
	case yaml.MappingNode:
		return t.decodeMapping(node)
	}

	return fmt.Errorf("line %d: expected a mapping", node.Line)
}

func (t *Tree) decodeMapping(node *yaml.Node) error {
	var merges []*yaml.Node

	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valueNode := node.Content[i], node.Content[i+1]
		if valueNode.Kind == yaml.AliasNode {
			valueNode = valueNode.Alias
		}

		if keyNode.ShortTag() == "!!merge" {
			merges = append(merges, valueNode)
			continue
		}

		if valueNode.Kind == yaml.MappingNode {
			sub := NewTree()
			if err := sub.decodeMapping(valueNode); err != nil {
				return err
			}
			t.Set(keyNode.Value, sub)
			continue
		}

		var value interface{}
		if err := valueNode.Decode(&value); err != nil {
			return fmt.Errorf("line %d: %w", valueNode.Line, err)
		}
		t.Set(keyNode.Value, value)
	}

	for _, m := range merges {
		if err := t.mergeKey(m); err != nil {
			return err
		}
	}
	return nil
}

// mergeKey applies a "<<" value. The merge is shallow: keys written in the
// mapping itself win, and in a list of mappings the first one wins.
func (t *Tree) mergeKey(node *yaml.Node) error {
	sources := []*yaml.Node{node}
	if node.Kind == yaml.SequenceNode {
		sources = node.Content
	}

	for _, src := range sources {
		merged := NewTree()
		if err := merged.UnmarshalYAML(src); err != nil {
			return err
		}
		for _, key := range merged.keys {
			if !t.Has(key) {
				t.Set(key, merged.values[key])
			}
		}
	}
	return nil
}

// MarshalYAML encodes the tree as a mapping keeping key order
func (t *Tree) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, key := range t.keys {
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}

		valueNode := &yaml.Node{}
		if sub, ok := t.values[key].(*Tree); ok {
			encoded, err := sub.MarshalYAML()
			if err != nil {
				return nil, err
			}
			valueNode = encoded.(*yaml.Node)
		} else if err := valueNode.Encode(t.values[key]); err != nil {
			return nil, fmt.Errorf("failed to encode %q: %w", key, err)
		}

		node.Content = append(node.Content, keyNode, valueNode)
	}
	return node, nil
}

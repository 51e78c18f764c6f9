package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// LoadFile reads a config file into a tree. Files ending in ".toml" are
// decoded as TOML, anything else as YAML.
func LoadFile(path string) (*Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return DecodeTOML(data)
	}
	return DecodeYAML(data)
}

// DecodeYAML decodes a YAML document into a tree
func DecodeYAML(data []byte) (*Tree, error) {
	tree := NewTree()
	if len(bytes.TrimSpace(data)) == 0 {
		return tree, nil
	}
	if err := yaml.Unmarshal(data, tree); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return tree, nil
}

// DecodeTOML decodes a TOML document into a tree, keeping the order in
// which keys appear in the document.
func DecodeTOML(data []byte) (*Tree, error) {
	var raw map[string]interface{}
	md, err := toml.Decode(string(data), &raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	tree := NewTree()
	for _, key := range md.Keys() {
		value, ok := lookupRaw(raw, key)
		if !ok {
			// part of an array of tables, kept with its parent
			continue
		}

		parent := tree
		for _, part := range key[:len(key)-1] {
			parent = parent.Subtree(part)
		}

		last := key[len(key)-1]
		if _, isTable := value.(map[string]interface{}); isTable {
			parent.Subtree(last)
			continue
		}
		parent.Set(last, value)
	}

	// inline tables are not always reported key by key
	fillFromMap(tree, raw)
	return tree, nil
}

func lookupRaw(raw map[string]interface{}, key toml.Key) (interface{}, bool) {
	var cur interface{} = raw
	for _, part := range key {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func fillFromMap(tree *Tree, m map[string]interface{}) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if sub, isTable := m[k].(map[string]interface{}); isTable {
			fillFromMap(tree.Subtree(k), sub)
			continue
		}
		if !tree.Has(k) {
			tree.Set(k, m[k])
		}
	}
}

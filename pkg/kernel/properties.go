// Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package kernel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefinePrefix marks property keys that become compiler defines.
const DefinePrefix = "defines/"

// Property is one key/value pair of a Properties list.
type Property struct {
	Key   string
	Value any
}

// Properties is an insertion-ordered mapping from string keys to scalar,
// string or string-list values. The zero value is an empty list ready to use.
type Properties struct {
	entries []Property
}

// NewProperties returns Properties holding pairs in order. Later pairs with
// a repeated key replace the earlier value in place.
func NewProperties(pairs ...Property) Properties {
	var p Properties
	for _, kv := range pairs {
		p.Set(kv.Key, kv.Value)
	}
	return p
}

// Set stores value under key, keeping the original position if key exists.
func (p *Properties) Set(key string, value any) {
	value = normalizeValue(value)
	for i := range p.entries {
		if p.entries[i].Key == key {
			p.entries[i].Value = value
			return
		}
	}
	p.entries = append(p.entries, Property{Key: key, Value: value})
}

// Get returns the value stored under key.
func (p Properties) Get(key string) (any, bool) {
	for _, e := range p.entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// Text returns the rendered value stored under key, or "" when absent.
func (p Properties) Text(key string) string {
	v, ok := p.Get(key)
	if !ok {
		return ""
	}
	return formatValue(v)
}

// Strings returns a list value. Scalars are returned as a single element.
func (p Properties) Strings(key string) []string {
	v, ok := p.Get(key)
	if !ok {
		return nil
	}
	if list, ok := v.([]string); ok {
		return append([]string(nil), list...)
	}
	return []string{formatValue(v)}
}

// Delete removes key if present.
func (p *Properties) Delete(key string) {
	for i := range p.entries {
		if p.entries[i].Key == key {
			p.entries = append(p.entries[:i], p.entries[i+1:]...)
			return
		}
	}
}

// Len returns the number of entries.
func (p Properties) Len() int {
	return len(p.entries)
}

// IsZero reports whether the list is empty.
func (p Properties) IsZero() bool {
	return len(p.entries) == 0
}

// Entries returns a copy of the entries in insertion order.
func (p Properties) Entries() []Property {
	return p.Clone().entries
}

// Clone returns a deep copy.
func (p Properties) Clone() Properties {
	out := Properties{entries: make([]Property, len(p.entries))}
	for i, e := range p.entries {
		if list, ok := e.Value.([]string); ok {
			e.Value = append([]string(nil), list...)
		}
		out.entries[i] = e
	}
	return out
}

// Merge copies every entry of other into p; other wins on conflicts.
func (p *Properties) Merge(other Properties) {
	for _, e := range other.Clone().entries {
		p.Set(e.Key, e.Value)
	}
}

// Defines returns the compiler defines in insertion order with the
// "defines/" prefix stripped from the keys.
func (p Properties) Defines() []Property {
	var out []Property
	for _, e := range p.entries {
		if name, ok := strings.CutPrefix(e.Key, DefinePrefix); ok {
			out = append(out, Property{Key: name, Value: e.Value})
		}
	}
	return out
}

// Equal reports whether both lists hold the same keys with the same rendered
// values. Order does not matter.
func (p Properties) Equal(other Properties) bool {
	return p.Canonical() == other.Canonical()
}

// Canonical renders the properties as sorted "key=value" lines. It is the
// form used for equality and for cache fingerprints.
func (p Properties) Canonical() string {
	lines := make([]string, 0, len(p.entries))
	for _, e := range p.entries {
		lines = append(lines, e.Key+"="+formatValue(e.Value))
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}

// MarshalJSON renders the properties as a JSON object in insertion order.
func (p Properties) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range p.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(e.Value)
		if err != nil {
			return nil, fmt.Errorf("property %s: %w", e.Key, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalYAML renders the properties as a flat mapping in insertion order.
func (p Properties) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, e := range p.entries {
		var val yaml.Node
		if err := val.Encode(e.Value); err != nil {
			return nil, fmt.Errorf("property %s: %w", e.Key, err)
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: e.Key},
			&val,
		)
	}
	return node, nil
}

// UnmarshalYAML reads a mapping, flattening nested mappings into
// slash-separated keys so that
//
//	defines:
//	  p_N: 4
//
// and "defines/p_N: 4" are equivalent.
func (p *Properties) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("properties must be a mapping, got line %d", node.Line)
	}
	return p.readMapping("", node)
}

func (p *Properties) readMapping(prefix string, node *yaml.Node) error {
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := prefix + node.Content[i].Value
		val := node.Content[i+1]
		switch val.Kind {
		case yaml.MappingNode:
			if err := p.readMapping(key+"/", val); err != nil {
				return err
			}
		case yaml.SequenceNode:
			var list []any
			if err := val.Decode(&list); err != nil {
				return fmt.Errorf("property %s: %w", key, err)
			}
			strs := make([]string, len(list))
			for j, item := range list {
				strs[j] = formatValue(item)
			}
			p.Set(key, strs)
		default:
			var scalar any
			if err := val.Decode(&scalar); err != nil {
				return fmt.Errorf("property %s: %w", key, err)
			}
			p.Set(key, scalar)
		}
	}
	return nil
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...)
	case []any:
		out := make([]string, len(t))
		for i, item := range t {
			out[i] = formatValue(item)
		}
		return out
	default:
		return v
	}
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []string:
		return "[" + strings.Join(t, ",") + "]"
	default:
		return fmt.Sprint(t)
	}
}

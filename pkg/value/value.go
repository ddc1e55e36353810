// Package value implements the canonical tree type used for container tags
// and assembled log events: an order-preserving mapping over scalars,
// nested mappings and sequences, plus a deep-merge operation.
package value

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Map is an insertion-ordered string-keyed mapping. Its JSON encoding
// preserves key order, which plain map[string]interface{} values do not
// (encoding/json sorts map keys), and the document-id hash depends on a
// stable serialization order.
type Map struct {
	keys []string
	vals map[string]interface{}
}

// NewMap returns an empty ordered mapping.
func NewMap() *Map {
	return &Map{vals: make(map[string]interface{})}
}

// Set inserts or replaces key with val, preserving first-insertion order.
func (m *Map) Set(key string, val interface{}) *Map {
	if _, exists := m.vals[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.vals[key] = val
	return m
}

// Get returns the value for key and whether it was present.
func (m *Map) Get(key string) (interface{}, bool) {
	v, ok := m.vals[key]
	return v, ok
}

// Keys returns keys in insertion order.
func (m *Map) Keys() []string {
	return append([]string(nil), m.keys...)
}

// Len returns the number of keys.
func (m *Map) Len() int {
	return len(m.keys)
}

// Clone returns a deep copy of m.
func (m *Map) Clone() *Map {
	out := NewMap()
	for _, k := range m.keys {
		switch v := m.vals[k].(type) {
		case *Map:
			out.Set(k, v.Clone())
		default:
			out.Set(k, v)
		}
	}
	return out
}

// Merge deep-merges src into dst and returns dst: for each key in src, if
// both dst and src hold a *Map at that key they are merged recursively;
// otherwise src's value wins (spec §8 property 6: "right wins at leaves").
// dst is mutated; pass a Clone if the original must be preserved.
func Merge(dst, src *Map) *Map {
	if dst == nil {
		dst = NewMap()
	}
	if src == nil {
		return dst
	}
	for _, k := range src.keys {
		sv := src.vals[k]
		if dv, exists := dst.vals[k]; exists {
			dm, dIsMap := dv.(*Map)
			sm, sIsMap := sv.(*Map)
			if dIsMap && sIsMap {
				Merge(dm, sm)
				continue
			}
		}
		if sm, ok := sv.(*Map); ok {
			dst.Set(k, sm.Clone())
		} else {
			dst.Set(k, sv)
		}
	}
	return dst
}

// MarshalJSON renders the mapping as a JSON object with keys in insertion
// order.
func (m *Map) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(m.vals[k])
		if err != nil {
			return nil, fmt.Errorf("value: marshal key %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// SetPath deep-merges a single scalar value at the dotted path described by
// segs, creating intermediate *Map nodes as needed. Used to turn a label
// like "tag.app.env=prod" (segs = ["app", "env"]) into {app:{env:"prod"}}.
func (m *Map) SetPath(segs []string, val interface{}) {
	if len(segs) == 0 {
		return
	}
	if len(segs) == 1 {
		m.Set(segs[0], val)
		return
	}
	head, rest := segs[0], segs[1:]
	existing, ok := m.Get(head)
	child, isMap := existing.(*Map)
	if !ok || !isMap {
		child = NewMap()
		m.Set(head, child)
	}
	child.SetPath(rest, val)
}

package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// NoMetadata is rendered for nodes that carry no metadata entries.
const NoMetadata = "No metadata."

// Metadata is an ordered string-to-string mapping. Keys keep the order in
// which they were first set (or decoded); setting an existing key replaces
// its value in place.
type Metadata struct {
	keys   []string
	values map[string]string
}

// NewMetadata builds Metadata from alternating key/value pairs.
// A trailing key without a value is ignored.
func NewMetadata(pairs ...string) Metadata {
	var m Metadata
	for i := 0; i+1 < len(pairs); i += 2 {
		m.Set(pairs[i], pairs[i+1])
	}
	return m
}

// Set stores value under key.
func (m *Metadata) Set(key, value string) {
	if m.values == nil {
		m.values = make(map[string]string)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value for key and whether it was present.
func (m Metadata) Get(key string) (string, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Len returns the number of entries.
func (m Metadata) Len() int {
	return len(m.keys)
}

// IsZero reports whether the mapping has no entries.
func (m Metadata) IsZero() bool {
	return m.Len() == 0
}

// Keys returns the keys in insertion order. The slice is a copy.
func (m Metadata) Keys() []string {
	return append([]string(nil), m.keys...)
}

// String renders one "key: value" line per entry, or NoMetadata when empty.
func (m Metadata) String() string {
	if m.Len() == 0 {
		return NoMetadata
	}
	var b strings.Builder
	for _, k := range m.keys {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(m.values[k])
		b.WriteByte('\n')
	}
	return b.String()
}

// MarshalJSON encodes the mapping as a JSON object in key order.
func (m Metadata) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(m.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object keeping the document's key order.
// Non-string values are kept as their compact JSON text; null yields an
// empty mapping.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	*m = Metadata{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("metadata: expected object, got %v", tok)
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("metadata: expected string key, got %v", tok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("metadata: value for %q: %w", key, err)
		}

		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			m.Set(key, s)
			continue
		}
		var compact bytes.Buffer
		if err := json.Compact(&compact, raw); err != nil {
			return fmt.Errorf("metadata: value for %q: %w", key, err)
		}
		m.Set(key, compact.String())
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// Package document models article-json as a closed tree of nodes and provides a generic,
// order-preserving recursive matcher over that tree.
//
// A document is parsed once from raw JSON into three node kinds:
//   - *Map: object with keys kept in document order
//   - List: array
//   - Scalar: string, json.Number, bool or null
//
// Matching code works on these types with a type switch instead of probing arbitrary
// interface{} values at every level.
package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrInvalidJSON is returned when raw bytes cannot be parsed into a document.
var ErrInvalidJSON = errors.New("invalid JSON document")

type (
	// Node is a document tree node: *Map, List or Scalar.
	Node interface {
		isNode()
	}

	// Map is a JSON object whose keys keep their document order.
	// The zero value is an empty map ready for use.
	Map struct {
		keys   []string
		values map[string]Node
	}

	// List is a JSON array.
	List []Node

	// Scalar is a JSON leaf value: string, json.Number, bool or nil (null).
	Scalar struct {
		Value any
	}
)

func (*Map) isNode()  {}
func (List) isNode()  {}
func (Scalar) isNode() {}

// NewMap returns an empty Map.
func NewMap() *Map {
	return &Map{values: make(map[string]Node)}
}

// String returns a string Scalar.
func String(s string) Scalar {
	return Scalar{Value: s}
}

// Null returns the null Scalar.
func Null() Scalar {
	return Scalar{}
}

// Set stores value under key. A new key is appended to the key order; an existing key keeps
// its position.
func (m *Map) Set(key string, value Node) {
	if m.values == nil {
		m.values = make(map[string]Node)
	}

	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}

	m.values[key] = value
}

// Get returns the node stored under key.
func (m *Map) Get(key string) (Node, bool) {
	if m == nil || m.values == nil {
		return nil, false
	}

	value, ok := m.values[key]

	return value, ok
}

// GetString returns the value under key when it is a string Scalar.
func (m *Map) GetString(key string) (string, bool) {
	node, ok := m.Get(key)
	if !ok {
		return "", false
	}

	return AsString(node)
}

// Keys returns a copy of the keys in document order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}

	keys := make([]string, len(m.keys))
	copy(keys, m.keys)

	return keys
}

// Len returns the number of keys.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}

	return len(m.keys)
}

// Subset returns a new Map holding only the listed keys that are present, in document order.
func (m *Map) Subset(keys ...string) *Map {
	wanted := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		wanted[k] = struct{}{}
	}

	subset := NewMap()

	for _, k := range m.Keys() {
		if _, ok := wanted[k]; ok {
			subset.Set(k, m.values[k])
		}
	}

	return subset
}

// AsString reports whether node is a string Scalar and returns its value.
func AsString(node Node) (string, bool) {
	scalar, ok := node.(Scalar)
	if !ok {
		return "", false
	}

	s, ok := scalar.Value.(string)

	return s, ok
}

// MarshalJSON writes the map with its keys in document order.
func (m *Map) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte('{')

	for i, k := range m.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}

		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}

		value, err := marshalNode(m.values[k])
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}

		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// MarshalJSON writes the list elements in order.
func (l List) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte('[')

	for i, item := range l {
		if i > 0 {
			buf.WriteByte(',')
		}

		value, err := marshalNode(item)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}

		buf.Write(value)
	}

	buf.WriteByte(']')

	return buf.Bytes(), nil
}

// MarshalJSON writes the scalar value.
func (s Scalar) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Value)
}

func marshalNode(node Node) ([]byte, error) {
	if node == nil {
		return []byte("null"), nil
	}

	return json.Marshal(node)
}

// Parse decodes raw JSON into a document tree. Numbers are kept as json.Number.
// Trailing data after the first JSON value is rejected.
func Parse(data []byte) (Node, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	node, err := parseValue(decoder)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}

	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: unexpected data after top-level value", ErrInvalidJSON)
	}

	return node, nil
}

func parseValue(decoder *json.Decoder) (Node, error) {
	token, err := decoder.Token()
	if err != nil {
		return nil, err
	}

	switch t := token.(type) {
	case json.Delim:
		switch t {
		case '{':
			return parseObject(decoder)
		case '[':
			return parseArray(decoder)
		default:
			return nil, fmt.Errorf("unexpected delimiter %q", t)
		}
	default:
		// string, json.Number, bool or nil
		return Scalar{Value: t}, nil
	}
}

func parseObject(decoder *json.Decoder) (Node, error) {
	m := NewMap()

	for decoder.More() {
		token, err := decoder.Token()
		if err != nil {
			return nil, err
		}

		key, ok := token.(string)
		if !ok {
			return nil, fmt.Errorf("object key is %T, not string", token)
		}

		value, err := parseValue(decoder)
		if err != nil {
			return nil, err
		}

		m.Set(key, value)
	}

	// closing '}'
	if _, err := decoder.Token(); err != nil {
		return nil, err
	}

	return m, nil
}

func parseArray(decoder *json.Decoder) (Node, error) {
	list := List{}

	for decoder.More() {
		value, err := parseValue(decoder)
		if err != nil {
			return nil, err
		}

		list = append(list, value)
	}

	// closing ']'
	if _, err := decoder.Token(); err != nil {
		return nil, err
	}

	return list, nil
}

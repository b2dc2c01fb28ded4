// Package keymap provides the key renaming and case conversion rules shared by the inbound
// (partner → store) and outbound (article → partner) transforms.
//
// The partner's wire format keys records in TitleCase ("ProtocolSequencingNumber"); the internal
// representation is snake_case ("protocol_sequencing_number").
package keymap

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"
)

var (
	// ErrKeyNotFound is returned when a key expected by a rename is absent.
	ErrKeyNotFound = errors.New("key not found")

	// ErrKeyCollision is returned when two distinct keys convert to the same snake_case key.
	ErrKeyCollision = errors.New("key collision")
)

// TitleCaseToSnakeCase converts a TitleCase key to snake_case.
//
// Every upper-case letter starts a new word; words are joined with "_" and lower-cased.
// A leading lower-case run is kept as the first word, so already-snake or lower-case keys
// survive unchanged.
//
// Examples:
//   - "ProtocolSequencingNumber" → "protocol_sequencing_number"
//   - "IsProtocol" → "is_protocol"
//   - "Uri" → "uri"
//   - "URI" → "u_r_i" (callers rename acronyms first, see RenameKey)
//   - "foo" → "foo"
func TitleCaseToSnakeCase(key string) string {
	if key == "" {
		return ""
	}

	var (
		words   []string
		current strings.Builder
	)

	for _, r := range key {
		if unicode.IsUpper(r) && current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}

		current.WriteRune(unicode.ToLower(r))
	}

	if current.Len() > 0 {
		words = append(words, current.String())
	}

	return strings.Join(words, "_")
}

// RenameKey returns a copy of m with the value stored under from moved to to.
// The input map is not modified. A missing from key yields ErrKeyNotFound.
func RenameKey[V any](m map[string]V, from, to string) (map[string]V, error) {
	value, ok := m[from]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, from)
	}

	renamed := make(map[string]V, len(m))
	for k, v := range m {
		if k == from {
			continue
		}

		renamed[k] = v
	}

	renamed[to] = value

	return renamed, nil
}

// SnakeCaseKeys returns a copy of m with every key converted by TitleCaseToSnakeCase.
// Two keys converting to the same result yield ErrKeyCollision rather than silently dropping one.
func SnakeCaseKeys[V any](m map[string]V) (map[string]V, error) {
	converted := make(map[string]V, len(m))
	origins := make(map[string]string, len(m))

	for _, k := range SortedKeys(m) {
		snake := TitleCaseToSnakeCase(k)
		if prev, exists := origins[snake]; exists {
			return nil, fmt.Errorf("%w: %q and %q both map to %q", ErrKeyCollision, prev, k, snake)
		}

		origins[snake] = k
		converted[snake] = m[k]
	}

	return converted, nil
}

// SortedKeys returns the keys of m in lexical order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// KeyDiff compares the keys present against the keys wanted.
// missing holds wanted keys that are absent, extra holds present keys that are not wanted.
// Both are sorted; both empty means the key sets are equal.
func KeyDiff(present, wanted []string) (missing, extra []string) {
	presentSet := make(map[string]struct{}, len(present))
	for _, k := range present {
		presentSet[k] = struct{}{}
	}

	wantedSet := make(map[string]struct{}, len(wanted))
	for _, k := range wanted {
		wantedSet[k] = struct{}{}
	}

	for k := range wantedSet {
		if _, ok := presentSet[k]; !ok {
			missing = append(missing, k)
		}
	}

	for k := range presentSet {
		if _, ok := wantedSet[k]; !ok {
			extra = append(extra, k)
		}
	}

	sort.Strings(missing)
	sort.Strings(extra)

	return missing, extra
}

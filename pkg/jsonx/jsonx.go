// Package jsonx provides thin wrappers around encoding/json and some fast-path helpers.
package jsonx

// Thin wrapper to centralize JSON usage and allow future drop-in acceleration.

import (
	stdjson "encoding/json"
)

// Marshal encodes v into JSON using the standard library.
func Marshal(v any) ([]byte, error) {
	return stdjson.Marshal(v)
}

// Unmarshal decodes JSON data into v using the standard library.
func Unmarshal(data []byte, v any) error {
	return stdjson.Unmarshal(data, v)
}

// IsLikelyJSONBytes checks if data appears to be a JSON value (cheap heuristic).
func IsLikelyJSONBytes(b []byte) bool {
	i := 0
	for i < len(b) {
		switch b[i] {
		case ' ', '\n', '\r', '\t':
			i++
		default:
			goto CHECK
		}
	}
CHECK:
	if i >= len(b) {
		return false
	}
	switch b[i] {
	case '{', '[', '"', 't', 'f', 'n':
		return true
	default:
		return b[i] >= '0' && b[i] <= '9'
	}
}

// IsLikelyJSONString checks if s appears to be a JSON value (cheap heuristic).
func IsLikelyJSONString(s string) bool {
	return IsLikelyJSONBytes([]byte(s))
}

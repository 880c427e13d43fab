// Package hexutil provides utilities for parsing hex-encoded values returned by
// the price service and EVM nodes.
//
// This package is intentionally placed in internal/pkg to allow imports from
// both adapters and services without violating hexagonal architecture principles.
package hexutil

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Trim0x removes an optional "0x" or "0X" prefix.
func Trim0x(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// DecodeBytes decodes a hex string to bytes.
// Handles both "0x" prefixed and non-prefixed hex strings.
func DecodeBytes(s string) ([]byte, error) {
	raw := Trim0x(strings.TrimSpace(s))
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("odd length hex string %q", s)
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding hex %q: %w", s, err)
	}
	return b, nil
}

// DecodeFixed32 decodes a hex string that must hold exactly 32 bytes.
func DecodeFixed32(s string) ([32]byte, error) {
	var out [32]byte
	b, err := DecodeBytes(s)
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

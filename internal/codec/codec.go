// Package codec converts between byte buffers and their text representations.
// Every function is pure and safe for concurrent use.
package codec

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// EncodeBase64 returns the standard, padded base64 encoding of b.
func EncodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeBase64 decodes standard, padded base64. ASCII whitespace anywhere in
// the input is ignored so that folded PEM bodies decode the same as a single
// line.
func DecodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		if r < utf8.RuneSelf && unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)

	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}

	return b, nil
}

// EncodeText returns the UTF-8 bytes of s.
func EncodeText(s string) []byte {
	return []byte(s)
}

// DecodeText interprets b as UTF-8 text. Invalid sequences are an error
// rather than being replaced.
func DecodeText(b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", fmt.Errorf("input is not valid UTF-8")
	}
	return string(b), nil
}

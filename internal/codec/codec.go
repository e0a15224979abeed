// Package codec converts between document text and the transport encodings
// of the store, and between document text and records.
//
// Encode and Decode operate on the UTF-8 bytes of the text in both
// directions, so Decode(Encode(s)) == s for any valid UTF-8 string and
// repeated round trips never drift.
package codec

import (
	"encoding/base64"
	"errors"
	"strings"
	"unicode/utf8"
)

var ErrInvalidUTF8 = errors.New("decoded payload is not valid UTF-8")

// Encode returns the standard base64 encoding of the UTF-8 bytes of text.
func Encode(text string) string {
	return base64.StdEncoding.EncodeToString([]byte(text))
}

// Decode reverses Encode. Line breaks and other whitespace that stores
// insert into inline payloads are ignored.
func Decode(payload string) (string, error) {
	b, err := base64.StdEncoding.DecodeString(stripSpace(payload))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", ErrInvalidUTF8
	}
	return string(b), nil
}

func stripSpace(s string) string {
	if !strings.ContainsAny(s, " \t\r\n") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case ' ', '\t', '\r', '\n':
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

package codec

import (
	"strings"
	"unicode/utf8"
)

// Level grades how much double-encoded UTF-8 a text contains.
type Level int

const (
	Clean Level = iota
	Light
	Moderate
	Severe
)

func (l Level) String() string {
	switch l {
	case Light:
		return "light"
	case Moderate:
		return "moderate"
	case Severe:
		return "severe"
	default:
		return "clean"
	}
}

// CorruptionLevel counts 'Ã' markers in text: more than 20 is Severe, more
// than 5 Moderate, any Light.
func CorruptionLevel(text string) Level {
	n := strings.Count(text, "Ã")
	switch {
	case n > 20:
		return Severe
	case n > 5:
		return Moderate
	case n > 0:
		return Light
	default:
		return Clean
	}
}

// Signatures counts the places where text looks like UTF-8 that was decoded
// as Latin-1 and encoded again: 'Ã' or 'Â' followed by a character in
// U+0080..U+00BF.
func Signatures(text string) int {
	n := 0
	var prev rune
	for _, r := range text {
		if (prev == 'Ã' || prev == 'Â') && r >= 0x80 && r <= 0xBF {
			n++
		}
		prev = r
	}
	return n
}

// Repair undoes layers of Latin-1 double encoding. It returns text unchanged
// and false when text contains a character outside Latin-1 or when reading
// it back as UTF-8 does not produce valid text.
func Repair(text string) (string, bool) {
	out := text
	fixed := false
	for Signatures(out) > 0 {
		next, ok := undoLatin1(out)
		if !ok || next == out {
			break
		}
		out, fixed = next, true
	}
	return out, fixed
}

func undoLatin1(s string) (string, bool) {
	b := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0xFF {
			return s, false
		}
		b = append(b, byte(r))
	}
	if !utf8.Valid(b) {
		return s, false
	}
	return string(b), true
}

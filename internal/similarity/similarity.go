// Package similarity scores how alike two normalised strings are, on a scale
// from 0 (unrelated) to 1 (identical).
//
// Two interchangeable algorithms are provided:
//
//   - [Orthographic] converts the Levenshtein edit distance into a similarity:
//     1 - distance / max(len(a), len(b), 1), with lengths counted in runes.
//     Identical strings (including two empty strings) score 1.
//
//   - [Phonetic] encodes both strings as four-character Soundex codes and
//     scores the fraction of code positions that agree (0, 0.25, … 1). Soundex
//     only understands the Latin alphabet; input without Latin letters scores 0.
//
// Every function in this package is pure and safe for concurrent use.
package similarity

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

// soundexLen is the length of a Soundex code.
const soundexLen = 4

// Algorithm selects how similarity is computed.
type Algorithm int

const (
	// Orthographic compares spelling via edit distance. It is the default.
	Orthographic Algorithm = iota

	// Phonetic compares pronunciation via Soundex codes (English only).
	Phonetic
)

// String returns the configuration form of a.
func (a Algorithm) String() string {
	switch a {
	case Orthographic:
		return "orthographic"
	case Phonetic:
		return "phonetic"
	default:
		return fmt.Sprintf("Algorithm(%d)", int(a))
	}
}

// IsValid reports whether a is a recognised algorithm.
func (a Algorithm) IsValid() bool {
	return a == Orthographic || a == Phonetic
}

// ParseAlgorithm converts "orthographic" or "phonetic" (case-insensitive) into
// an [Algorithm].
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "orthographic":
		return Orthographic, nil
	case "phonetic":
		return Phonetic, nil
	}
	return Orthographic, fmt.Errorf("similarity: unknown algorithm %q; valid values: orthographic, phonetic", s)
}

// MarshalText implements [encoding.TextMarshaler].
func (a Algorithm) MarshalText() ([]byte, error) {
	if !a.IsValid() {
		return nil, fmt.Errorf("similarity: cannot marshal %s", a)
	}
	return []byte(a.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (a *Algorithm) UnmarshalText(b []byte) error {
	v, err := ParseAlgorithm(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Score returns the similarity of a and b under alg. Unrecognised algorithms
// are scored orthographically.
func Score(a, b string, alg Algorithm) float64 {
	switch alg {
	case Phonetic:
		return PhoneticScore(a, b)
	default:
		return OrthographicScore(a, b)
	}
}

// OrthographicScore is the edit-distance similarity of a and b.
func OrthographicScore(a, b string) float64 {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b), 1)
	dist := matchr.Levenshtein(a, b)
	return clamp(1 - float64(dist)/float64(longest))
}

// PhoneticScore is the fraction of agreeing Soundex code positions of a and b.
func PhoneticScore(a, b string) float64 {
	ca, cb := soundex(a), soundex(b)
	n := min(len(ca), len(cb), soundexLen)
	if n == 0 {
		return 0
	}
	dist, err := matchr.Hamming(ca[:n], cb[:n])
	if err != nil {
		return 0
	}
	return clamp(float64(n-dist) / soundexLen)
}

// soundex encodes the Latin letters of s. It returns "" when s has none.
func soundex(s string) string {
	letters := latinLetters(s)
	if letters == "" {
		return ""
	}
	return matchr.Soundex(letters)
}

// latinLetters keeps only the ASCII letters of s, upper-cased.
func latinLetters(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - 'a' + 'A')
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		}
	}
	return b.String()
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

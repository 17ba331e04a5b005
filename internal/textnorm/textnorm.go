// Package textnorm canonicalises strings before they are compared.
//
// Normalisation is deliberately minimal: surrounding whitespace is trimmed and
// the text is lower-cased using the case-folding rules of an explicit
// language. No diacritics are stripped and no punctuation is removed.
//
// The fold language is a parameter rather than ambient process state, so the
// same input always normalises the same way regardless of the host locale.
// Some languages fold differently from the root rules; Turkish, for example,
// lowers "I" to dotless "ı".
package textnorm

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultLanguage is the fold language used by [Default] and [Normalize].
var DefaultLanguage = language.Korean

// Default is the package-level normalizer using [DefaultLanguage].
var Default = New(DefaultLanguage)

// Normalizer trims and lower-cases text for one fold language.
// A Normalizer is immutable and safe for concurrent use.
type Normalizer struct {
	tag language.Tag
}

// New returns a Normalizer folding with the rules of tag.
func New(tag language.Tag) Normalizer {
	return Normalizer{tag: tag}
}

// Parse returns a Normalizer for a BCP-47 tag such as "ko" or "tr-TR". An
// empty tag selects [DefaultLanguage].
func Parse(bcp47 string) (Normalizer, error) {
	if strings.TrimSpace(bcp47) == "" {
		return Default, nil
	}
	tag, err := language.Parse(bcp47)
	if err != nil {
		return Normalizer{}, err
	}
	return New(tag), nil
}

// Language returns the fold language.
func (n Normalizer) Language() language.Tag {
	return n.tag
}

// Normalize trims surrounding whitespace and lower-cases text.
func (n Normalizer) Normalize(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ""
	}
	// Casers carry state and must not be shared between goroutines.
	return cases.Lower(n.tag).String(trimmed)
}

// Normalize is shorthand for Default.Normalize(text).
func Normalize(text string) string {
	return Default.Normalize(text)
}

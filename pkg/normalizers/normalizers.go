package normalizers

import (
	"strings"
	"unicode"
)

// Normalizer transforms a string value to a normalized form
type Normalizer func(string) string

var registry = map[string]Normalizer{
	"lowercase":          Lowercase,
	"trim":               Trim,
	"email":              NormalizeEmail,
	"email_domain":       EmailDomain,
	"domain":             NormalizeDomain,
	"name":               NormalizeName,
	"company_name":       NormalizeCompanyName,
	"remove_punctuation": RemovePunctuation,
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// ApplyChain applies the named normalizers in order. Unknown names are skipped.
func ApplyChain(value string, names ...string) string {
	for _, name := range names {
		if fn, ok := registry[name]; ok {
			value = fn(value)
		}
	}
	return value
}

func Lowercase(s string) string {
	return strings.ToLower(s)
}

func Trim(s string) string {
	return strings.TrimSpace(s)
}

func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// RemovePunctuation drops every rune that is not a letter, digit or space.
func RemovePunctuation(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// NormalizeName normalizes a person's name for fuzzy comparison
func NormalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	for _, suffix := range []string{" jr.", " jr", " sr.", " sr", " iii", " ii", " iv", " phd", " md"} {
		if strings.HasSuffix(s, suffix) {
			s = s[:len(s)-len(suffix)]
		}
	}

	return collapse(s, false)
}

// collapse keeps letters and digits, turns whitespace (and, when
// punctuationIsSpace, punctuation) into single spaces and trims the result.
func collapse(s string, punctuationIsSpace bool) string {
	var result strings.Builder
	prevSpace := true
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			result.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r) || punctuationIsSpace:
			if !prevSpace {
				result.WriteRune(' ')
				prevSpace = true
			}
		}
	}
	return strings.TrimSpace(result.String())
}

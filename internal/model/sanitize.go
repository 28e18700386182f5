package model

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fallback tokens for names that sanitize to nothing.
const (
	DefaultTitle    = "challenge"
	DefaultCategory = "Uncategorized"
	DefaultFilename = "file"
)

// unsafeRun matches every run of characters not allowed in a path component.
var unsafeRun = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// SafeName turns name into a single path component made of [A-Za-z0-9_.-].
// Accents are folded first (Crème becomes Creme), other runs become "_",
// and leading or trailing dots and underscores are trimmed.
// When nothing is left the sanitized fallback is returned, and DefaultTitle
// when even the fallback is empty.
func SafeName(name, fallback string) string {
	if s := sanitize(name); s != "" {
		return s
	}
	if s := sanitize(fallback); s != "" {
		return s
	}
	return DefaultTitle
}

func sanitize(s string) string {
	// transform.Chain keeps state, so it is built per call.
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(fold, s)
	if err != nil {
		folded = s
	}
	return strings.Trim(unsafeRun.ReplaceAllString(folded, "_"), "._")
}

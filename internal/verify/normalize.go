// Package verify decides whether claimed values (names, dates, amounts)
// are actually present in a source document, tolerating the formatting
// variants legal documents use. All functions are pure and deterministic.
package verify

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

// foldCaser is a package-level Unicode case folder shared by all matchers.
var foldCaser = cases.Fold()

var multiSpaceRe = regexp.MustCompile(`\s+`)

// NormalizeText lowers case (Unicode fold) and collapses all whitespace runs
// to single spaces. Both the document and the needle pass through this before
// any substring test.
func NormalizeText(s string) string {
	s = foldCaser.String(s)
	s = multiSpaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// ContainsNormalized reports whether needle appears in haystack after both
// sides are normalized.
func ContainsNormalized(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	return strings.Contains(NormalizeText(haystack), NormalizeText(needle))
}

// Tokens splits s into matching tokens, dropping punctuation and anything of
// two characters or fewer. Titles like "Mr." and initials never decide a
// party match on their own.
func Tokens(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !isWordRune(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) > 2 {
			out = append(out, f)
		}
	}
	return out
}

func isWordRune(r rune) bool {
	return r == '-' || r == '\'' ||
		(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') || r > 127
}

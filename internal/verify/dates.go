package verify

import (
	"strings"
	"time"
)

// dateParseLayouts are the input formats extraction models emit dates in.
var dateParseLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"01/02/06",
	"January 2, 2006",
	"Jan 2, 2006",
	"January 02, 2006",
	"2 January 2006",
	"02 January 2006",
	"2006/01/02",
	"01-02-2006",
}

// dateVariantLayouts are the written forms a date is searched under in the
// document text.
var dateVariantLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"01/02/06",
	"1/2/06",
	"January 2, 2006",
	"January 02, 2006",
	"Jan 2, 2006",
	"Jan. 2, 2006",
	"2 January 2006",
	"02 January 2006",
	"2 Jan 2006",
}

// ParseDate parses a claimed date into a calendar day. Returns false for
// anything that matches no known layout (relative phrases, quarters, "upon
// execution", ...).
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateParseLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// DateVariants renders every common written form of the date.
func DateVariants(t time.Time) []string {
	variants := make([]string, 0, len(dateVariantLayouts))
	for _, layout := range dateVariantLayouts {
		variants = append(variants, t.Format(layout))
	}
	return dedupe(variants)
}

// Date checks a claimed date against the document. Every common written form
// of the parsed day is tested. A date that parses under no known layout is
// treated as verified, the lenient default for non-calendar deadlines like
// "upon execution".
func Date(document, date string) (bool, Method) {
	if ContainsNormalized(document, date) {
		return true, MethodExact
	}

	t, ok := ParseDate(date)
	if !ok {
		return true, MethodFailOpen
	}

	doc := NormalizeText(document)
	for _, variant := range DateVariants(t) {
		if strings.Contains(doc, NormalizeText(variant)) {
			return true, MethodVariant
		}
	}
	return false, MethodUnmatched
}

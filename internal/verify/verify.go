package verify

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// Method describes how a value was verified against the document.
type Method string

const (
	MethodExact     Method = "exact_match"
	MethodPartial   Method = "partial_match"
	MethodVariant   Method = "format_variant"
	MethodFailOpen  Method = "unparsed_default"
	MethodUnmatched Method = ""
)

// minExcerptLen is the shortest source excerpt worth testing. Shorter
// excerpts verify by default: they are too ambiguous to either confirm or
// refute, so we preserve the lenient policy rather than flag on noise.
const minExcerptLen = 4

// Party checks a party name against the document: exact case-insensitive
// substring first, then a partial match requiring every name token longer
// than two characters to appear (small typos tolerated via edit distance).
func Party(document, name string) (bool, Method) {
	if ContainsNormalized(document, name) {
		return true, MethodExact
	}

	tokens := Tokens(name)
	if len(tokens) == 0 {
		return true, MethodFailOpen
	}

	doc := NormalizeText(document)
	docTokens := Tokens(doc)
	for _, tok := range tokens {
		if !tokenPresent(doc, docTokens, NormalizeText(tok)) {
			return false, MethodUnmatched
		}
	}
	return true, MethodPartial
}

// tokenPresent checks a single normalized token against the document, first
// as a substring, then within edit distance 1 of any document token of five
// or more characters (OCR and pluralization noise).
func tokenPresent(doc string, docTokens []string, tok string) bool {
	if tok == "" {
		return true
	}
	if strings.Contains(doc, tok) {
		return true
	}
	if len(tok) < 5 {
		return false
	}
	for _, dt := range docTokens {
		if len(dt) < 5 {
			continue
		}
		if levenshtein.ComputeDistance(tok, NormalizeText(dt)) <= 1 {
			return true
		}
	}
	return false
}

// Excerpt checks a quoted source excerpt against the document, mod
// normalization. Excerpts below minExcerptLen verify by default.
func Excerpt(document, excerpt string) (bool, Method) {
	if len(NormalizeText(excerpt)) < minExcerptLen {
		return true, MethodFailOpen
	}
	if ContainsNormalized(document, excerpt) {
		return true, MethodExact
	}
	return false, MethodUnmatched
}

// Value dispatches on item type: "party" → Party, "amount" → Amount,
// "date" → Date, anything else → Excerpt semantics on the value itself.
func Value(document, itemType, value string) (bool, Method) {
	switch itemType {
	case "party":
		return Party(document, value)
	case "amount":
		return Amount(document, value)
	case "date", "deadline":
		return Date(document, value)
	default:
		return Excerpt(document, value)
	}
}

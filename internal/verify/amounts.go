package verify

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// amountRe finds the first money-looking number in a string, with or without
// a currency symbol, thousands separators, and decimals.
var amountRe = regexp.MustCompile(`[$€£]?\s*\d{1,3}(?:,\d{3})*(?:\.\d+)?|[$€£]?\s*\d+(?:\.\d+)?`)

// ParseAmount extracts the numeric value from an amount string like
// "$5,000.00", "5000", or "USD 5,000". Returns false when no number is found.
func ParseAmount(s string) (float64, bool) {
	m := amountRe.FindString(s)
	if m == "" {
		return 0, false
	}
	m = strings.TrimLeft(m, "$€£ \t")
	m = strings.ReplaceAll(m, ",", "")
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// AmountVariants returns the written forms an amount is searched under:
// the original, symbol-stripped, comma-stripped, and canonical numeric
// renderings ("$1,234.00", "1234", "1,234", "1234.00").
func AmountVariants(s string) []string {
	variants := []string{strings.TrimSpace(s)}

	noSymbol := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(s), "$€£"))
	variants = append(variants, noSymbol)
	variants = append(variants, strings.ReplaceAll(strings.TrimSpace(s), ",", ""))
	variants = append(variants, strings.ReplaceAll(noSymbol, ",", ""))

	if v, ok := ParseAmount(s); ok {
		grouped := groupThousands(v)
		variants = append(variants,
			"$"+grouped,
			grouped,
			fmt.Sprintf("%.2f", v),
			"$"+fmt.Sprintf("%.2f", v),
			strconv.FormatFloat(v, 'f', -1, 64),
		)
		// Whole-dollar amounts also appear without cents.
		if v == float64(int64(v)) {
			bare := strconv.FormatInt(int64(v), 10)
			groupedBare := groupThousandsInt(int64(v))
			variants = append(variants, bare, "$"+bare, groupedBare, "$"+groupedBare)
		}
	}

	return dedupe(variants)
}

// Amount checks a claimed amount against the document by testing every
// written variant as a normalized substring.
func Amount(document, amount string) (bool, Method) {
	if strings.TrimSpace(amount) == "" {
		return true, MethodFailOpen
	}
	doc := NormalizeText(document)
	for i, variant := range AmountVariants(amount) {
		if variant == "" {
			continue
		}
		if strings.Contains(doc, NormalizeText(variant)) {
			if i == 0 {
				return true, MethodExact
			}
			return true, MethodVariant
		}
	}
	return false, MethodUnmatched
}

// NormalizeAmountKey renders an amount as a canonical key for duplicate
// grouping: numeric value with two decimals, no symbol, no separators.
func NormalizeAmountKey(s string) (string, bool) {
	v, ok := ParseAmount(s)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%.2f", v), true
}

func groupThousands(v float64) string {
	whole := int64(v)
	cents := fmt.Sprintf("%.2f", v-float64(whole))
	return groupThousandsInt(whole) + cents[1:]
}

func groupThousandsInt(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	out := strings.Join(parts, ",")
	if neg {
		out = "-" + out
	}
	return out
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

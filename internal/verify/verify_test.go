package verify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const sampleDoc = `SETTLEMENT AGREEMENT

Defendant John Smith owes $5,000.00 due by January 15, 2026. Payment shall be
made to Acme Holdings LLC at the address listed below. The parties executed
this agreement on November 24, 2025.

Total settlement: $300, including $100 for costs and $200 for fees.`

func TestParty(t *testing.T) {
	tests := []struct {
		name   string
		party  string
		want   bool
		method Method
	}{
		{"exact match", "John Smith", true, MethodExact},
		{"case insensitive", "JOHN SMITH", true, MethodExact},
		{"partial tokens", "Mr. John Smith", true, MethodPartial},
		{"entity name", "Acme Holdings LLC", true, MethodExact},
		{"absent party", "Jane Doe", false, MethodUnmatched},
		{"token typo tolerated", "John Smithe", true, MethodPartial},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, method := Party(sampleDoc, tt.party)
			assert.Equal(t, tt.want, ok)
			assert.Equal(t, tt.method, method)
		})
	}
}

func TestAmount(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		want   bool
	}{
		{"exact with symbol", "$5,000.00", true},
		{"no commas", "$5000.00", true},
		{"no symbol", "5,000.00", true},
		{"bare number", "5000", true},
		{"whole dollars", "$5,000", true},
		{"small exact", "$300", true},
		{"absent amount", "$9,999.99", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, _ := Amount(sampleDoc, tt.amount)
			assert.Equal(t, tt.want, ok, "amount %q", tt.amount)
		})
	}
}

func TestDate_FormatEquivalence(t *testing.T) {
	// ISO claim verified against a long-form document date.
	ok, method := Date(sampleDoc, "2025-11-24")
	assert.True(t, ok)
	assert.Equal(t, MethodVariant, method)

	ok, method = Date(sampleDoc, "2026-01-15")
	assert.True(t, ok)
	assert.Equal(t, MethodVariant, method)

	ok, method = Date(sampleDoc, "01/15/2026")
	assert.True(t, ok)
	assert.Equal(t, MethodVariant, method)
}

func TestDate_AbsentAndFailOpen(t *testing.T) {
	ok, method := Date(sampleDoc, "2030-06-01")
	assert.False(t, ok)
	assert.Equal(t, MethodUnmatched, method)

	// Non-calendar deadlines verify by default.
	ok, method = Date(sampleDoc, "upon execution of this agreement")
	assert.True(t, ok)
	assert.Equal(t, MethodFailOpen, method)
}

func TestDateVariants(t *testing.T) {
	d, ok := ParseDate("2025-11-24")
	assert.True(t, ok)
	variants := DateVariants(d)
	assert.Contains(t, variants, "November 24, 2025")
	assert.Contains(t, variants, "11/24/2025")
	assert.Contains(t, variants, "2025-11-24")
	assert.Contains(t, variants, "24 November 2025")
}

func TestExcerpt(t *testing.T) {
	ok, _ := Excerpt(sampleDoc, "owes $5,000.00 due by")
	assert.True(t, ok)

	ok, _ = Excerpt(sampleDoc, "never appears anywhere in the text")
	assert.False(t, ok)

	// Short excerpts are too ambiguous to flag.
	ok, method := Excerpt(sampleDoc, "a")
	assert.True(t, ok)
	assert.Equal(t, MethodFailOpen, method)
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"$5,000.00", 5000, true},
		{"5000", 5000, true},
		{"USD 1,234.56", 1234.56, true},
		{"roughly $1.5k", 1.5, true},
		{"no number here", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseAmount(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		if ok {
			assert.InDelta(t, tt.want, got, 0.001, tt.in)
		}
	}
}

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "john smith", NormalizeText("  John\n\tSMITH "))
}

// Verification is deterministic: repeated runs on identical input agree.
func TestDeterminism(t *testing.T) {
	for i := 0; i < 3; i++ {
		ok1, m1 := Party(sampleDoc, "John Smith")
		ok2, m2 := Party(sampleDoc, "John Smith")
		assert.Equal(t, ok1, ok2)
		assert.Equal(t, m1, m2)
	}
}

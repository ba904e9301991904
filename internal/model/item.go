package model

// MaxUnverifiedConfidence caps the confidence of any item whose value could
// not be located in the source document. Only document-verified items may
// carry a score of 100.
const MaxUnverifiedConfidence = 95

// ExtractedItem is a single claim extracted from a document: a party name, a
// date, an amount, an obligation. Immutable once attached to a
// VerifiedAnalysis; corrections produce a new item carrying CorrectedFrom.
type ExtractedItem struct {
	// Value is the extracted value. Usually a string; obligations and key
	// terms may carry structured maps passed through from the model output.
	Value any `json:"value"`

	// SourceText is the document excerpt the value was extracted from, as
	// reported by the extraction model.
	SourceText string `json:"sourceText,omitempty"`

	// ConfidenceScore is 0-100. Exactly 100 means the value (or its source
	// excerpt) was located in the document text; anything unverified is
	// capped at MaxUnverifiedConfidence and carries a Provenance note.
	ConfidenceScore int `json:"confidenceScore"`

	// VerifiedBy lists the mechanisms that vouched for the item, e.g.
	// "document_match", "cross_model", "expert_review".
	VerifiedBy []string `json:"verifiedBy,omitempty"`

	// Provenance explains a sub-100 score or a correction source.
	Provenance string `json:"provenance,omitempty"`

	// CorrectedFrom holds the original value when this item supersedes a
	// flagged one. Nil for items extracted directly.
	CorrectedFrom *string `json:"correctedFrom,omitempty"`
}

// VerifiedItem builds an item whose value was located in the document.
func VerifiedItem(value any, sourceText string, verifiedBy ...string) ExtractedItem {
	return ExtractedItem{
		Value:           value,
		SourceText:      sourceText,
		ConfidenceScore: 100,
		VerifiedBy:      verifiedBy,
	}
}

// UnverifiedItem builds an item that could not be located in the document.
// The score is capped at MaxUnverifiedConfidence.
func UnverifiedItem(value any, sourceText string, score int, provenance string) ExtractedItem {
	if score > MaxUnverifiedConfidence {
		score = MaxUnverifiedConfidence
	}
	if score < 0 {
		score = 0
	}
	return ExtractedItem{
		Value:           value,
		SourceText:      sourceText,
		ConfidenceScore: score,
		Provenance:      provenance,
	}
}

// CorrectedItem builds a verified replacement for a flagged item, recording
// the original value it supersedes.
func CorrectedItem(value any, sourceText, original, source string) ExtractedItem {
	item := VerifiedItem(value, sourceText, "correction")
	item.CorrectedFrom = &original
	item.Provenance = source
	return item
}

// ValueString returns the item's value as a string when it is one, else "".
func (i ExtractedItem) ValueString() string {
	s, _ := i.Value.(string)
	return s
}

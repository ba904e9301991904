package pipeline

import (
	"time"

	"github.com/sells-group/legal-analyzer/internal/model"
	"github.com/sells-group/legal-analyzer/internal/verify"
)

// summaryConfidence is the fixed score for the generated summary. A summary
// is interpretive text, so it can never reach the verified ceiling.
const summaryConfidence = 90

// assemble builds the final VerifiedAnalysis from the merged stage outputs.
// Only items located in the document carry a score of 100; everything
// generated or unlocated is capped below it.
func (r *run) assemble() *model.VerifiedAnalysis {
	final := r.merged.Final

	analysis := &model.VerifiedAnalysis{
		DocumentID:   r.req.DocumentID,
		Filename:     r.req.Filename,
		DocumentType: final.DocumentType,

		Summary:     model.UnverifiedItem(final.Summary, "", summaryConfidence, "model-generated summary"),
		Parties:     final.Parties,
		Dates:       final.Dates,
		Amounts:     final.Amounts,
		KeyTerms:    final.KeyTerms,
		Obligations: final.Obligations,
		Deadlines:   final.Deadlines,
		Keywords:    r.keywordItems(final.Keywords),

		OverallConfidenceScore: r.merged.VerificationScore,
		HallucinationsDetected: len(r.detection.Hallucinations),
		CorrectionsMade:        r.merged.ItemsCorrected,
		Warnings:               r.warnings,

		Layers:     r.layers,
		AnalyzedAt: time.Now().UTC(),
	}
	return analysis
}

// keywordItems promotes extracted keywords to items, verified by normalized
// document presence.
func (r *run) keywordItems(keywords []string) []model.ExtractedItem {
	if len(keywords) == 0 {
		return nil
	}
	out := make([]model.ExtractedItem, 0, len(keywords))
	for _, kw := range keywords {
		if verify.ContainsNormalized(r.req.Text, kw) {
			out = append(out, model.VerifiedItem(kw, kw, "document_check"))
			continue
		}
		out = append(out, model.UnverifiedItem(kw, "", 70, "keyword not found in document"))
	}
	return out
}

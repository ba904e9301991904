package pipeline

import (
	"context"
	"strings"

	"github.com/sells-group/legal-analyzer/internal/audit"
	"github.com/sells-group/legal-analyzer/internal/model"
	"github.com/sells-group/legal-analyzer/internal/verify"
)

// runValidation performs stage 4: apply stage 3's verdicts to produce the
// final item set, fold in what the cross-verifier found missing, cross-check
// the financial figures, and compute the verification score.
func (r *run) runValidation(ctx context.Context) (*model.LayerResult, audit.StageCounters, error) {
	layer := &model.LayerResult{StageName: string(model.StageLayer4Validation)}

	verdicts := r.hallucinationVerdicts()
	verified := make(map[string]bool, len(r.detection.VerifiedItems))
	for _, v := range r.detection.VerifiedItems {
		verified[v] = true
	}
	out := &model.MergeOutput{
		Final: &model.ExtractionOutput{
			DocumentType: r.extraction.DocumentType,
			Summary:      r.extraction.Summary,
			Keywords:     r.extraction.Keywords,
			Extra:        r.extraction.Extra,
		},
	}

	out.Final.Parties = r.mergeFactual("party", r.extraction.Parties, verdicts, verified, out)
	out.Final.Dates = r.mergeFactual("date", r.extraction.Dates, verdicts, verified, out)
	out.Final.Amounts = r.mergeFactual("amount", r.extraction.Amounts, verdicts, verified, out)
	out.Final.Deadlines = r.mergeFactual("deadline", r.extraction.Deadlines, verdicts, verified, out)

	// Interpretive items are never removed. They score 100 only when their
	// supporting excerpt is really in the document.
	out.Final.KeyTerms = r.capInterpretive(r.extraction.KeyTerms)
	out.Final.Obligations = r.capInterpretive(r.extraction.Obligations)

	r.appendMissed(out)

	out.Financial = verify.CrossValidate(out.Final.Amounts, r.req.Text)
	for _, inc := range out.Financial.Inconsistencies {
		if inc.Severity == "high" {
			r.warn("financial inconsistency: " + inc.Description)
		}
	}

	out.VerificationScore = r.verificationScore(out.Financial)
	r.merged = out
	layer.Data = out

	return layer, audit.StageCounters{
		ItemsCorrected: out.ItemsCorrected,
		ItemsRemoved:   out.ItemsRemoved,
		ItemsExtracted: out.ItemsAppended,
	}, nil
}

// hallucinationVerdicts indexes stage 3's records by item type and value.
func (r *run) hallucinationVerdicts() map[string]model.HallucinationRecord {
	out := make(map[string]model.HallucinationRecord)
	for _, rec := range r.detection.Hallucinations {
		out[rec.ItemType+"\x00"+rec.OriginalValue] = rec
	}
	return out
}

// mergeFactual applies the verdicts to one factual category: verified items
// are re-issued as document-verified, corrected items carry their
// replacement and provenance, removed items are dropped, and items the rules
// could not check keep their capped score.
func (r *run) mergeFactual(itemType string, items []model.ExtractedItem, verdicts map[string]model.HallucinationRecord, verified map[string]bool, out *model.MergeOutput) []model.ExtractedItem {
	merged := make([]model.ExtractedItem, 0, len(items))
	for _, item := range items {
		value := item.ValueString()
		verdict, hallucinated := verdicts[itemType+"\x00"+value]
		if !hallucinated {
			if verified[itemType+": "+value] {
				merged = append(merged, model.VerifiedItem(item.Value, item.SourceText, "document_check"))
			} else {
				merged = append(merged, model.UnverifiedItem(item.Value, item.SourceText, item.ConfidenceScore, "presence in document could not be determined"))
			}
			continue
		}

		if verdict.ActionTaken == model.ActionCorrected {
			corrected := model.CorrectedItem(verdict.CorrectedValue, item.SourceText, value, verdict.CorrectionSource)
			merged = append(merged, corrected)
			out.ItemsCorrected++

			evidence := ""
			if corr, ok := r.correctionFor(value); ok {
				evidence = corr.DocumentEvidence
			}
			r.rec.RecordCorrection(model.CorrectionRecord{
				Stage:                   string(model.StageLayer4Validation),
				FieldPath:               itemType,
				OriginalValue:           value,
				CorrectedValue:          verdict.CorrectedValue,
				Reason:                  verdict.ReasonFlagged,
				Source:                  verdict.CorrectionSource,
				VerifiedAgainstDocument: true,
				DocumentEvidence:        evidence,
			})
			continue
		}

		out.ItemsRemoved++
	}
	return merged
}

// capInterpretive verifies interpretive items by their supporting excerpt.
// Only an excerpt actually located in the document earns a verified score.
func (r *run) capInterpretive(items []model.ExtractedItem) []model.ExtractedItem {
	out := make([]model.ExtractedItem, 0, len(items))
	for _, item := range items {
		if ok, method := verify.Excerpt(r.req.Text, item.SourceText); ok && method == verify.MethodExact {
			out = append(out, model.VerifiedItem(item.Value, item.SourceText, "document_check"))
			continue
		}
		out = append(out, model.UnverifiedItem(item.Value, item.SourceText, item.ConfidenceScore, "excerpt not found in document"))
	}
	return out
}

// appendMissed folds the cross-verifier's missed items into the final set.
// Each is re-verified against the document before it may score 100.
func (r *run) appendMissed(out *model.MergeOutput) {
	if r.verification == nil {
		return
	}
	for _, missed := range r.verification.MissedItems {
		itemType := normalizeItemType(missed.ItemType)
		target := categorySlot(out.Final, itemType)
		if target == nil {
			continue
		}

		var item model.ExtractedItem
		if ok, method := verify.Value(r.req.Text, itemType, missed.Value); ok && method != verify.MethodFailOpen {
			item = model.VerifiedItem(missed.Value, missed.SourceText, "cross_verification", "document_check")
		} else {
			item = model.UnverifiedItem(missed.Value, missed.SourceText, 75, "suggested by cross-verification, not found in document")
		}
		*target = append(*target, item)
		out.ItemsAppended++
	}
}

func normalizeItemType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	return strings.TrimSuffix(t, "s")
}

func categorySlot(out *model.ExtractionOutput, itemType string) *[]model.ExtractedItem {
	switch itemType {
	case "party", "partie":
		return &out.Parties
	case "date":
		return &out.Dates
	case "amount":
		return &out.Amounts
	case "keyterm", "key term", "key_term":
		return &out.KeyTerms
	case "obligation":
		return &out.Obligations
	case "deadline":
		return &out.Deadlines
	default:
		return nil
	}
}

// verificationScore combines the cross-verifier's accuracy, the
// hallucination penalty, and the financial penalty into a 0-100 score.
func (r *run) verificationScore(financial *model.FinancialFindings) int {
	accuracy := degradedAccuracyScore
	if r.verification != nil {
		accuracy = r.verification.AccuracyScore
	}

	score := accuracy + r.detection.ConfidenceAdjustment
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}

	score -= financial.Penalty()
	if score < 0 {
		score = 0
	}
	return score
}

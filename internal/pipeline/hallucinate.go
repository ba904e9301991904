package pipeline

import (
	"context"

	"github.com/sells-group/legal-analyzer/internal/audit"
	"github.com/sells-group/legal-analyzer/internal/model"
	"github.com/sells-group/legal-analyzer/internal/verify"
)

// hallucinationPenalty is the confidence reduction per detected
// hallucination.
const hallucinationPenalty = 5

// factualCategories are the item groups subject to removal when their value
// cannot be located in the document. Key terms, obligations, and the summary
// are interpretive and are capped instead, never removed.
var factualCategories = []struct {
	itemType string
	items    func(*model.ExtractionOutput) []model.ExtractedItem
}{
	{"party", func(o *model.ExtractionOutput) []model.ExtractedItem { return o.Parties }},
	{"date", func(o *model.ExtractionOutput) []model.ExtractedItem { return o.Dates }},
	{"amount", func(o *model.ExtractionOutput) []model.ExtractedItem { return o.Amounts }},
	{"deadline", func(o *model.ExtractionOutput) []model.ExtractedItem { return o.Deadlines }},
}

// runDetection performs stage 3: every factual value is checked against the
// document with deterministic rules. The cross-verifier's flags are a
// secondary signal only; document presence always wins, and a flagged item
// that re-verifies is cleared as a false positive.
func (r *run) runDetection(ctx context.Context) (*model.LayerResult, audit.StageCounters, error) {
	layer := &model.LayerResult{StageName: string(model.StageLayer3Hallucination)}

	out := &model.HallucinationOutput{}
	flagged := r.flaggedReasons()

	for _, cat := range factualCategories {
		for _, item := range cat.items(r.extraction) {
			value := item.ValueString()
			ok, method := verify.Value(r.req.Text, cat.itemType, value)
			reason, wasFlagged := flagged[value]

			if ok {
				// Fail-open means the rules could not check the value. The
				// item survives but is never counted as document-verified.
				if method == verify.MethodFailOpen {
					if wasFlagged {
						r.warn(cat.itemType + " " + value + " flagged by verifier but not checkable by rules")
					}
					continue
				}
				out.VerifiedItems = append(out.VerifiedItems, cat.itemType+": "+value)
				if wasFlagged {
					r.rec.RecordFalsePositive(string(model.StageLayer3Hallucination),
						cat.itemType, value, reason)
				}
				continue
			}

			rec := model.HallucinationRecord{
				DetectedAtStage: string(model.StageLayer3Hallucination),
				ItemType:        cat.itemType,
				OriginalValue:   value,
				ReasonFlagged:   "value not found in document",
				DetectionMethod: "document_check",
				ActionTaken:     model.ActionRemoved,
			}
			if wasFlagged {
				rec.ReasonFlagged = "value not found in document; verifier: " + reason
				rec.DetectionMethod = "document_check+cross_verification"
			}

			// A verifier correction rescues the item when its replacement
			// actually appears in the document.
			if corr, found := r.correctionFor(value); found {
				if corrOK, corrMethod := verify.Value(r.req.Text, cat.itemType, corr.CorrectedValue); corrOK && corrMethod != verify.MethodFailOpen {
					rec.ActionTaken = model.ActionCorrected
					rec.CorrectedValue = corr.CorrectedValue
					rec.CorrectionSource = "cross_verification"
					rec.VerifiedInDocument = true
				}
			}

			rec.ID = r.rec.RecordHallucination(rec)
			out.Hallucinations = append(out.Hallucinations, rec)
		}
	}

	out.ConfidenceAdjustment = -hallucinationPenalty * len(out.Hallucinations)
	if out.ConfidenceAdjustment != 0 {
		r.rec.RecordConfidenceChange(string(model.StageLayer3Hallucination),
			0, out.ConfidenceAdjustment, "hallucination penalty")
	}

	r.detection = out
	layer.Data = out
	return layer, audit.StageCounters{ItemsFlagged: len(out.Hallucinations)}, nil
}

// flaggedReasons indexes the cross-verifier's flags by value.
func (r *run) flaggedReasons() map[string]string {
	out := make(map[string]string)
	if r.verification == nil {
		return out
	}
	for _, f := range r.verification.FlaggedItems {
		out[f.Value] = f.Reason
	}
	return out
}

// correctionFor looks up a cross-verifier correction for the given value.
func (r *run) correctionFor(value string) (model.Correction, bool) {
	if r.verification == nil {
		return model.Correction{}, false
	}
	corr, ok := r.verification.Corrections[value]
	return corr, ok
}

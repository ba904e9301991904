package pipeline

import (
	"context"
	"embed"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/legal-analyzer/internal/audit"
	"github.com/sells-group/legal-analyzer/internal/generate"
	"github.com/sells-group/legal-analyzer/internal/model"
	"github.com/sells-group/legal-analyzer/internal/verify"
)

//go:embed checklists/*.yaml
var checklistFS embed.FS

// checklist is a reviewer checklist for one document type.
type checklist struct {
	Name  string   `yaml:"name"`
	Items []string `yaml:"items"`
}

// loadChecklist returns the checklist for the document type, falling back to
// the general checklist for unknown types.
func loadChecklist(docType model.DocumentType) (*checklist, error) {
	name := string(docType)
	data, err := checklistFS.ReadFile("checklists/" + name + ".yaml")
	if err != nil {
		data, err = checklistFS.ReadFile("checklists/general.yaml")
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: load checklist")
		}
	}

	var cl checklist
	if err := yaml.Unmarshal(data, &cl); err != nil {
		return nil, eris.Wrapf(err, "pipeline: parse checklist %s", name)
	}
	return &cl, nil
}

// runExpertReview performs the thorough-mode attorney-style review: the
// secondary model applies the document-type checklist to the merged result.
// Expert corrections are advisory and are applied only when they verify
// against the document.
func (r *run) runExpertReview(ctx context.Context) (*model.LayerResult, audit.StageCounters, error) {
	layer := &model.LayerResult{StageName: string(model.StageExpertReview)}

	cl, err := loadChecklist(r.merged.Final.DocumentType)
	if err != nil {
		return layer, audit.StageCounters{}, err
	}

	gen := r.p.secondary
	if gen == nil {
		gen = r.p.primary
	}

	res, err := gen.Generate(ctx, generate.Request{
		System:    expertSystem + "\n\n<document>\n" + r.req.Text + "\n</document>",
		Prompt:    expertPrompt(r.merged.Final.DocumentType, cl.Items, r.merged.Final),
		Stage:     string(model.StageExpertReview),
		MaxTokens: extractionMaxTokens,
	})
	if err != nil {
		return layer, audit.StageCounters{}, err
	}

	out, err := parseExpert(res.Text)
	if err != nil {
		layer.RawResponse = res.Text
		return layer, audit.StageCounters{}, err
	}
	if out.ChecklistApplied == "" {
		out.ChecklistApplied = cl.Name
	}

	applied := r.applyExpertCorrections(out)
	for _, missing := range out.MissingItems {
		r.warn("expert review: analysis may be missing: " + missing)
	}

	r.expert = out
	layer.Data = out
	layer.ModelUsed = res.Model
	return layer, audit.StageCounters{ItemsCorrected: applied}, nil
}

// applyExpertCorrections applies the expert's correction notes to the merged
// result. A note only takes effect when the corrected value can be located
// in the document; otherwise it is surfaced as a warning.
func (r *run) applyExpertCorrections(out *model.ExpertOutput) int {
	applied := 0
	for _, note := range out.Corrections {
		itemType := normalizeItemType(fieldRoot(note.FieldPath))
		target := categorySlot(r.merged.Final, itemType)
		if target == nil {
			continue
		}

		ok, method := verify.Value(r.req.Text, itemType, note.CorrectedValue)
		if !ok || method == verify.MethodFailOpen {
			r.warn("expert correction not verifiable against document: " + note.OriginalValue + " -> " + note.CorrectedValue)
			continue
		}

		for i, item := range *target {
			if item.ValueString() != note.OriginalValue {
				continue
			}
			(*target)[i] = model.CorrectedItem(note.CorrectedValue, item.SourceText, note.OriginalValue, "expert_review")
			r.rec.RecordCorrection(model.CorrectionRecord{
				Stage:                   string(model.StageExpertReview),
				FieldPath:               note.FieldPath,
				OriginalValue:           note.OriginalValue,
				CorrectedValue:          note.CorrectedValue,
				Reason:                  note.Reason,
				Source:                  "expert_review",
				VerifiedAgainstDocument: true,
			})
			r.merged.ItemsCorrected++
			applied++
			break
		}
	}
	return applied
}

// fieldRoot returns the category part of a field path like "parties.value".
func fieldRoot(path string) string {
	for i := 0; i < len(path); i++ {
		if path[i] == '.' || path[i] == '[' {
			return path[:i]
		}
	}
	return path
}

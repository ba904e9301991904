package pipeline

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/legal-analyzer/internal/audit"
	"github.com/sells-group/legal-analyzer/internal/generate"
	"github.com/sells-group/legal-analyzer/internal/model"
)

// inspectionPassThreshold is the minimum quality score before an inspection
// verdict adds a warning to the run.
const inspectionPassThreshold = 70

// inspectStage runs a thorough-mode quality inspection over one stage's
// output. Inspection is best effort: a failed inspection call degrades to a
// warning and never stops the run.
func (r *run) inspectStage(ctx context.Context, stage model.AnalysisStage, inspected string, output any) {
	err := r.trackStage(ctx, stage, func(ctx context.Context) (*model.LayerResult, audit.StageCounters, error) {
		layer := &model.LayerResult{StageName: string(stage)}

		gen := r.p.secondary
		if gen == nil {
			gen = r.p.primary
		}
		if gen == nil {
			return layer, audit.StageCounters{}, eris.New("pipeline: no generator available for inspection")
		}

		res, err := gen.Generate(ctx, generate.Request{
			System:    inspectionSystem,
			Prompt:    inspectionPrompt(inspected, output),
			Stage:     string(stage),
			MaxTokens: inspectionMaxTokens,
		})
		if err != nil {
			return layer, audit.StageCounters{}, err
		}

		out, err := parseInspection(res.Text, inspected)
		if err != nil {
			layer.RawResponse = res.Text
			return layer, audit.StageCounters{}, err
		}

		if !out.Passed || out.QualityScore < inspectionPassThreshold {
			for _, issue := range out.Issues {
				r.warn("inspection of " + inspected + ": " + issue)
			}
			if len(out.Issues) == 0 {
				r.warn("inspection of " + inspected + " scored below threshold")
			}
		}

		layer.Data = out
		layer.ModelUsed = res.Model
		return layer, audit.StageCounters{ItemsFlagged: len(out.Issues)}, nil
	})
	if err != nil {
		r.warn("inspection of " + inspected + " unavailable: " + err.Error())
	}
}

const inspectionMaxTokens = 1024

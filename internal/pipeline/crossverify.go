package pipeline

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/legal-analyzer/internal/audit"
	"github.com/sells-group/legal-analyzer/internal/generate"
	"github.com/sells-group/legal-analyzer/internal/model"
)

// degradedAccuracyScore stands in for the verifier's judgment when
// cross-verification is unavailable. Mid-range on purpose: the extraction is
// neither endorsed nor condemned.
const degradedAccuracyScore = 70

// verifier picks the generator for stage 2. It is never the instance that
// produced the extraction.
func (r *run) verifier() generate.Generator {
	if r.extractGen != r.p.primary && r.p.primary != nil {
		return r.p.primary
	}
	return r.p.secondary
}

// runVerification performs stage 2: an independent model re-reads the
// document and grades the extraction.
func (r *run) runVerification(ctx context.Context) (*model.LayerResult, audit.StageCounters, error) {
	layer := &model.LayerResult{StageName: string(model.StageLayer2Verification)}

	gen := r.verifier()
	if gen == nil {
		return layer, audit.StageCounters{}, eris.New("pipeline: no independent verifier available")
	}

	res, err := gen.Generate(ctx, generate.Request{
		System:    verificationSystem + "\n\n<document>\n" + r.req.Text + "\n</document>",
		Prompt:    verificationPrompt(r.extraction),
		Stage:     string(model.StageLayer2Verification),
		MaxTokens: extractionMaxTokens,
	})
	if err != nil {
		return layer, audit.StageCounters{}, err
	}

	out, err := parseVerification(res.Text)
	if err != nil {
		layer.RawResponse = res.Text
		return layer, audit.StageCounters{}, err
	}

	r.verification = out
	layer.Data = out
	layer.ModelUsed = res.Model
	return layer, audit.StageCounters{ItemsFlagged: len(out.FlaggedItems)}, nil
}

// degradeVerification substitutes a neutral verification result when stage 2
// failed. The run continues on rule-based detection alone.
func (r *run) degradeVerification(err error) {
	r.warn("cross-verification unavailable, continuing with rule-based detection only: " + err.Error())
	r.verification = &model.VerificationOutput{
		AccuracyScore: degradedAccuracyScore,
	}
}

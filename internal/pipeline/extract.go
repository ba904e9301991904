package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/legal-analyzer/internal/audit"
	"github.com/sells-group/legal-analyzer/internal/generate"
	"github.com/sells-group/legal-analyzer/internal/model"
)

var errEmptyDocument = eris.New("pipeline: document contains no extractable text")

// runExtraction performs stage 1: structured extraction by the primary
// generator, falling back to the secondary and then the configured fallback
// provider. The accepted generator is remembered so cross-verification can
// pick a different one.
func (r *run) runExtraction(ctx context.Context) (*model.LayerResult, audit.StageCounters, error) {
	layer := &model.LayerResult{StageName: string(model.StageLayer1Extraction)}

	chain := make([]generate.Generator, 0, 3)
	for _, g := range []generate.Generator{r.p.primary, r.p.secondary, r.p.fallback} {
		if g != nil {
			chain = append(chain, g)
		}
	}
	if len(chain) == 0 {
		return layer, audit.StageCounters{}, eris.New("pipeline: no generators configured")
	}

	var lastErr error
	for i, gen := range chain {
		if err := ctx.Err(); err != nil {
			return layer, audit.StageCounters{}, err
		}

		res, err := gen.Generate(ctx, generate.Request{
			System:    extractionSystem + "\n\n<document>\n" + r.req.Text + "\n</document>",
			Prompt:    extractionPrompt(),
			Stage:     string(model.StageLayer1Extraction),
			MaxTokens: extractionMaxTokens,
		})
		if err != nil {
			lastErr = err
			r.log.Warn("extraction generator failed",
				zap.String("generator", gen.Name()),
				zap.Error(err))
			continue
		}

		out, err := parseExtraction(res.Text)
		if err != nil {
			lastErr = err
			layer.RawResponse = res.Text
			r.log.Warn("extraction response unparseable",
				zap.String("generator", gen.Name()),
				zap.Error(err))
			continue
		}

		if i > 0 {
			// Exact text: downstream consumers match on this warning.
			r.warn("Used fallback extraction")
			r.log.Info("extraction fell back",
				zap.String("generator", gen.Name()))
		}
		r.extractGen = gen
		r.extraction = out
		layer.Data = out
		layer.ModelUsed = res.Model
		layer.RawResponse = ""

		return layer, audit.StageCounters{ItemsExtracted: countItems(out)}, nil
	}

	return layer, audit.StageCounters{}, eris.Wrap(lastErr, "pipeline: all extraction providers failed")
}

const extractionMaxTokens = 8192

func countItems(out *model.ExtractionOutput) int {
	return len(out.Parties) + len(out.Dates) + len(out.Amounts) +
		len(out.KeyTerms) + len(out.Obligations) + len(out.Deadlines) +
		len(out.Keywords)
}

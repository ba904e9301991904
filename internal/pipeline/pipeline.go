// Package pipeline orchestrates the layered analysis of a legal document:
// extraction, independent cross-verification, rule-based hallucination
// detection, merge and financial validation, and in thorough mode expert
// review and per-stage quality inspection. Every run produces an append-only
// audit trail alongside the verified result.
package pipeline

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/legal-analyzer/internal/audit"
	"github.com/sells-group/legal-analyzer/internal/generate"
	"github.com/sells-group/legal-analyzer/internal/model"
	"github.com/sells-group/legal-analyzer/internal/progress"
)

// Pipeline runs verified analyses. Safe for concurrent Run calls; all
// per-run state lives on the run, not the Pipeline.
type Pipeline struct {
	primary   generate.Generator
	secondary generate.Generator
	fallback  generate.Generator // optional, may be nil
	registry  *progress.Registry
}

// New builds a pipeline. primary and secondary must be independent model
// instances; fallback is optional and used only when both Anthropic
// generators fail extraction.
func New(primary, secondary, fallback generate.Generator, registry *progress.Registry) *Pipeline {
	return &Pipeline{
		primary:   primary,
		secondary: secondary,
		fallback:  fallback,
		registry:  registry,
	}
}

// Request identifies one document to analyze.
type Request struct {
	DocumentID string
	Filename   string
	Text       string
	Mode       model.AnalysisMode
	JobID      string
}

// run is the per-analysis state. Owned by a single goroutine.
type run struct {
	p   *Pipeline
	req Request
	rec *audit.Recorder
	log *zap.Logger

	layers   []model.LayerResult
	warnings []string

	// extractGen is the generator that produced the accepted extraction.
	// The cross-verifier must be a different instance.
	extractGen generate.Generator

	extraction   *model.ExtractionOutput
	verification *model.VerificationOutput
	detection    *model.HallucinationOutput
	merged       *model.MergeOutput
	expert       *model.ExpertOutput
}

// Run analyzes one document end to end. It returns a partial analysis with
// the sealed audit trail even when it also returns an error, so callers can
// persist what the run proved before it failed.
func (p *Pipeline) Run(ctx context.Context, req Request) (*model.VerifiedAnalysis, error) {
	if req.Mode == "" {
		req.Mode = model.ModeQuick
	}

	r := &run{
		p:   p,
		req: req,
		rec: audit.NewRecorder(req.JobID, req.DocumentID, req.Filename),
		log: zap.L().With(
			zap.String("jobId", req.JobID),
			zap.String("documentId", req.DocumentID),
			zap.String("mode", string(req.Mode)),
		),
	}

	r.log.Info("analysis started", zap.String("filename", req.Filename))
	analysis, err := r.execute(ctx)
	if err != nil {
		r.fail(err)
		return analysis, err
	}

	p.registry.CompleteJob(req.JobID, progress.StageUpdate{
		Detail: "analysis complete",
	})
	r.log.Info("analysis complete",
		zap.Int("confidence", analysis.OverallConfidenceScore),
		zap.Int("hallucinations", analysis.HallucinationsDetected))
	return analysis, nil
}

func (r *run) execute(ctx context.Context) (*model.VerifiedAnalysis, error) {
	if strings.TrimSpace(r.req.Text) == "" {
		return r.partial(), &fatalError{stage: model.StageExtractingText, err: errEmptyDocument}
	}
	r.progress(model.StageExtractingText, "document text ready", progress.StageUpdate{})

	// Stage 1: extraction with provider fallback. The only fatal model stage.
	if err := r.trackStage(ctx, model.StageLayer1Extraction, r.runExtraction); err != nil {
		return r.partial(), &fatalError{stage: model.StageLayer1Extraction, err: err}
	}

	if r.req.Mode == model.ModeThorough {
		r.inspectStage(ctx, model.StageLayer1Inspection, string(model.StageLayer1Extraction), r.extraction)
	}
	if err := ctx.Err(); err != nil {
		return r.partial(), &fatalError{stage: model.StageLayer2Verification, err: err}
	}

	// Stage 2: independent cross-verification. Degrades, never fatal.
	if err := r.trackStage(ctx, model.StageLayer2Verification, r.runVerification); err != nil {
		r.degradeVerification(err)
	}
	if r.req.Mode == model.ModeThorough {
		r.inspectStage(ctx, model.StageLayer2Inspection, string(model.StageLayer2Verification), r.verification)
	}
	if err := ctx.Err(); err != nil {
		return r.partial(), &fatalError{stage: model.StageLayer3Hallucination, err: err}
	}

	// Stage 3: deterministic hallucination detection. No model call.
	if err := r.trackStage(ctx, model.StageLayer3Hallucination, r.runDetection); err != nil {
		return r.partial(), &fatalError{stage: model.StageLayer3Hallucination, err: err}
	}
	if r.req.Mode == model.ModeThorough {
		r.inspectStage(ctx, model.StageLayer3Inspection, string(model.StageLayer3Hallucination), r.detection)
	}

	// Stage 4: merge, correct, and financially cross-validate. Deterministic.
	if err := r.trackStage(ctx, model.StageLayer4Validation, r.runValidation); err != nil {
		return r.partial(), &fatalError{stage: model.StageLayer4Validation, err: err}
	}
	if err := ctx.Err(); err != nil {
		return r.partial(), &fatalError{stage: model.StageExpertReview, err: err}
	}

	if r.req.Mode == model.ModeThorough {
		// Expert review and final inspection degrade, never fail the run.
		if err := r.trackStage(ctx, model.StageExpertReview, r.runExpertReview); err != nil {
			r.warn("expert review unavailable: " + err.Error())
		}
		r.inspectStage(ctx, model.StageFinalInspection, "final", r.merged)
	}

	analysis := r.assemble()
	r.rec.CompleteAnalysis(analysis.OverallConfidenceScore)
	analysis.AuditTrail = r.rec.Trail()
	return analysis, nil
}

// trackStage runs one stage and owns its bookkeeping: progress update, audit
// stage lifecycle, timing, and appending the LayerResult. The stage fn
// returns its LayerResult (possibly with a preserved raw response on parse
// failure) plus counters for the audit snapshot.
func (r *run) trackStage(ctx context.Context, stage model.AnalysisStage, fn func(ctx context.Context) (*model.LayerResult, audit.StageCounters, error)) error {
	r.progress(stage, "", progress.StageUpdate{})
	r.rec.StartStage(string(stage), "")

	start := time.Now()
	layer, counters, err := fn(ctx)
	elapsed := time.Since(start)

	if layer == nil {
		layer = &model.LayerResult{StageName: string(stage)}
	}
	layer.ProcessingTime = elapsed

	if err != nil {
		layer.Status = model.LayerFailed
		layer.Errors = append(layer.Errors, err.Error())
		r.layers = append(r.layers, *layer)
		r.rec.FailStage(string(stage), err)
		r.log.Error("stage failed",
			zap.String("stage", string(stage)),
			zap.Duration("duration", elapsed),
			zap.Error(err))
		return err
	}

	layer.Status = model.LayerCompleted
	r.layers = append(r.layers, *layer)
	r.rec.CompleteStage(string(stage), counters)
	r.progress(stage, "", progress.StageUpdate{
		ItemsExtracted: counters.ItemsExtracted,
		ItemsFlagged:   counters.ItemsFlagged,
		ItemsCorrected: counters.ItemsCorrected,
	})
	r.log.Info("stage complete",
		zap.String("stage", string(stage)),
		zap.String("model", layer.ModelUsed),
		zap.Duration("duration", elapsed))
	return nil
}

func (r *run) progress(stage model.AnalysisStage, detail string, upd progress.StageUpdate) {
	if r.p.registry == nil {
		return
	}
	upd.Detail = detail
	r.p.registry.UpdateStage(r.req.JobID, stage, upd)
}

func (r *run) warn(msg string) {
	r.warnings = append(r.warnings, msg)
	r.log.Warn(msg)
}

// fail marks the job failed and seals the audit trail so the partial record
// survives the run.
func (r *run) fail(err error) {
	r.log.Error("analysis failed", zap.Error(err))
	if r.p.registry != nil {
		r.p.registry.FailJob(r.req.JobID, err)
	}
	if !r.rec.Sealed() {
		r.rec.CompleteAnalysis(0)
	}
}

// partial packages whatever the run produced before failing, audit trail
// included.
func (r *run) partial() *model.VerifiedAnalysis {
	analysis := &model.VerifiedAnalysis{
		DocumentID: r.req.DocumentID,
		Filename:   r.req.Filename,
		Warnings:   r.warnings,
		Layers:     r.layers,
		AnalyzedAt: time.Now().UTC(),
	}
	if r.extraction != nil {
		analysis.DocumentType = r.extraction.DocumentType
	}
	if !r.rec.Sealed() {
		r.rec.CompleteAnalysis(0)
	}
	analysis.AuditTrail = r.rec.Trail()
	return analysis
}

type fatalError struct {
	stage model.AnalysisStage
	err   error
}

func (e *fatalError) Error() string {
	return "pipeline: " + string(e.stage) + ": " + e.err.Error()
}

func (e *fatalError) Unwrap() error {
	return e.err
}

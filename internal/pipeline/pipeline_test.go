package pipeline

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/legal-analyzer/internal/generate"
	"github.com/sells-group/legal-analyzer/internal/model"
	"github.com/sells-group/legal-analyzer/internal/progress"
)

const settlementDoc = `SETTLEMENT AGREEMENT

This Settlement Agreement is entered into between John Smith ("Plaintiff") and Acme Corporation ("Defendant").

Total settlement amount: $50,000, consisting of $20,000 in attorney fees and $30,000 in damages.

Payment is due by March 15, 2024. This agreement is governed by the laws of Ohio.`

// extractionWithHallucination is a stage-1 response containing one invented
// party alongside correct items.
const extractionWithHallucination = `{
  "documentType": "settlement",
  "summary": "Settlement of $50,000 between John Smith and Acme Corporation, payable by March 15, 2024.",
  "parties": [
    {"value": "John Smith", "sourceText": "between John Smith (\"Plaintiff\")", "confidenceScore": 95},
    {"value": "Acme Corporation", "sourceText": "and Acme Corporation (\"Defendant\")", "confidenceScore": 95},
    {"value": "Jane Doe", "sourceText": "Jane Doe, as guarantor", "confidenceScore": 90}
  ],
  "dates": [
    {"value": "March 15, 2024", "sourceText": "Payment is due by March 15, 2024", "confidenceScore": 92}
  ],
  "amounts": [
    {"value": "$50,000", "sourceText": "Total settlement amount: $50,000", "confidenceScore": 95},
    {"value": "$20,000", "sourceText": "consisting of $20,000 in attorney fees", "confidenceScore": 93},
    {"value": "$30,000", "sourceText": "consisting of $30,000 in damages", "confidenceScore": 93}
  ],
  "keyTerms": [
    {"value": "governing law", "sourceText": "governed by the laws of Ohio", "confidenceScore": 88}
  ],
  "keywords": ["settlement"]
}`

const verificationFlaggingJaneDoe = `{
  "accuracyScore": 90,
  "flaggedItems": [
    {"itemType": "party", "value": "Jane Doe", "reason": "no guarantor appears in the document"}
  ],
  "corrections": {},
  "missedItems": []
}`

const passingInspection = `{"qualityScore": 85, "issues": [], "passed": true}`

// fakeGen is a scripted generator. Responses are keyed by request stage and
// are stable across calls, so repeated runs see identical model behavior.
type fakeGen struct {
	name string

	mu        sync.Mutex
	calls     []generate.Request
	responses map[string]string
	errors    map[string]error
}

func newFakeGen(name string) *fakeGen {
	return &fakeGen{
		name:      name,
		responses: make(map[string]string),
		errors:    make(map[string]error),
	}
}

func (f *fakeGen) Name() string { return f.name }

func (f *fakeGen) Generate(_ context.Context, req generate.Request) (*generate.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()

	if err, ok := f.errors[req.Stage]; ok {
		return nil, &generate.GenerationError{Provider: f.name, Err: err}
	}
	text, ok := f.responses[req.Stage]
	if !ok {
		return nil, &generate.GenerationError{Provider: f.name, Err: eris.Errorf("no scripted response for stage %s", req.Stage)}
	}
	return &generate.Result{Text: text, Model: f.name + "-model"}, nil
}

func (f *fakeGen) stages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.Stage)
	}
	return out
}

func newTestPipeline(primary, secondary *fakeGen) (*Pipeline, *progress.Registry) {
	reg := progress.NewRegistry()
	return New(primary, secondary, nil, reg), reg
}

func startJob(t *testing.T, reg *progress.Registry, jobID string) {
	t.Helper()
	_, err := reg.CreateJob(jobID, "doc-1", "settlement.pdf", "")
	require.NoError(t, err)
}

func TestRun_RemovesHallucinatedParty(t *testing.T) {
	primary := newFakeGen("anthropic-primary")
	primary.responses[string(model.StageLayer1Extraction)] = extractionWithHallucination
	secondary := newFakeGen("anthropic-secondary")
	secondary.responses[string(model.StageLayer2Verification)] = verificationFlaggingJaneDoe

	p, reg := newTestPipeline(primary, secondary)
	startJob(t, reg, "job-1")

	analysis, err := p.Run(context.Background(), Request{
		DocumentID: "doc-1",
		Filename:   "settlement.pdf",
		Text:       settlementDoc,
		Mode:       model.ModeQuick,
		JobID:      "job-1",
	})
	require.NoError(t, err)

	require.Len(t, analysis.Parties, 2)
	for _, party := range analysis.Parties {
		assert.NotEqual(t, "Jane Doe", party.ValueString())
		assert.Equal(t, 100, party.ConfidenceScore)
		assert.Contains(t, party.VerifiedBy, "document_check")
	}

	assert.Equal(t, 1, analysis.HallucinationsDetected)
	assert.Equal(t, 0, analysis.CorrectionsMade)
	assert.Equal(t, model.DocTypeSettlement, analysis.DocumentType)

	// accuracy 90 minus one hallucination penalty, no financial penalty
	assert.Equal(t, 85, analysis.OverallConfidenceScore)

	require.NotNil(t, analysis.AuditTrail)
	require.Len(t, analysis.AuditTrail.Hallucinations, 1)
	rec := analysis.AuditTrail.Hallucinations[0]
	assert.Equal(t, "Jane Doe", rec.OriginalValue)
	assert.Equal(t, model.ActionRemoved, rec.ActionTaken)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, 85, analysis.AuditTrail.FinalConfidence)
	assert.NotNil(t, analysis.AuditTrail.CompletedAt)

	job := reg.Get("job-1")
	require.NotNil(t, job)
	assert.Equal(t, model.StageCompleted, job.Stage)
	assert.Equal(t, 100, job.ProgressPercent)
}

func TestRun_OnlyDocumentVerifiedItemsScore100(t *testing.T) {
	primary := newFakeGen("anthropic-primary")
	primary.responses[string(model.StageLayer1Extraction)] = extractionWithHallucination
	secondary := newFakeGen("anthropic-secondary")
	secondary.responses[string(model.StageLayer2Verification)] = verificationFlaggingJaneDoe

	p, reg := newTestPipeline(primary, secondary)
	startJob(t, reg, "job-1")

	analysis, err := p.Run(context.Background(), Request{
		DocumentID: "doc-1", Filename: "settlement.pdf", Text: settlementDoc,
		Mode: model.ModeQuick, JobID: "job-1",
	})
	require.NoError(t, err)

	for _, item := range analysis.AllItems() {
		if item.ConfidenceScore == 100 {
			assert.NotEmpty(t, item.VerifiedBy, "item %v scored 100 without verification", item.Value)
		} else {
			assert.LessOrEqual(t, item.ConfidenceScore, model.MaxUnverifiedConfidence)
		}
	}

	// The generated summary can never be document-verified.
	assert.LessOrEqual(t, analysis.Summary.ConfidenceScore, model.MaxUnverifiedConfidence)
}

func TestRun_VerifierIsIndependentOfExtractor(t *testing.T) {
	primary := newFakeGen("anthropic-primary")
	primary.responses[string(model.StageLayer1Extraction)] = extractionWithHallucination
	secondary := newFakeGen("anthropic-secondary")
	secondary.responses[string(model.StageLayer2Verification)] = verificationFlaggingJaneDoe

	p, reg := newTestPipeline(primary, secondary)
	startJob(t, reg, "job-1")

	_, err := p.Run(context.Background(), Request{
		DocumentID: "doc-1", Filename: "settlement.pdf", Text: settlementDoc,
		Mode: model.ModeQuick, JobID: "job-1",
	})
	require.NoError(t, err)

	assert.NotContains(t, primary.stages(), string(model.StageLayer2Verification))
	assert.Contains(t, secondary.stages(), string(model.StageLayer2Verification))
}

func TestRun_FallbackExtractionUsesPrimaryAsVerifier(t *testing.T) {
	primary := newFakeGen("anthropic-primary")
	primary.errors[string(model.StageLayer1Extraction)] = eris.New("overloaded")
	primary.responses[string(model.StageLayer2Verification)] = verificationFlaggingJaneDoe
	secondary := newFakeGen("anthropic-secondary")
	secondary.responses[string(model.StageLayer1Extraction)] = extractionWithHallucination

	p, reg := newTestPipeline(primary, secondary)
	startJob(t, reg, "job-1")

	analysis, err := p.Run(context.Background(), Request{
		DocumentID: "doc-1", Filename: "settlement.pdf", Text: settlementDoc,
		Mode: model.ModeQuick, JobID: "job-1",
	})
	require.NoError(t, err)

	assert.Contains(t, secondary.stages(), string(model.StageLayer1Extraction))
	assert.Contains(t, primary.stages(), string(model.StageLayer2Verification))
	assert.NotContains(t, secondary.stages(), string(model.StageLayer2Verification))

	// The warning is a fixed literal consumers can match on.
	assert.Contains(t, analysis.Warnings, "Used fallback extraction")
}

func TestRun_AllExtractorsFail(t *testing.T) {
	primary := newFakeGen("anthropic-primary")
	primary.errors[string(model.StageLayer1Extraction)] = eris.New("overloaded")
	secondary := newFakeGen("anthropic-secondary")
	secondary.errors[string(model.StageLayer1Extraction)] = eris.New("overloaded")

	p, reg := newTestPipeline(primary, secondary)
	startJob(t, reg, "job-1")

	analysis, err := p.Run(context.Background(), Request{
		DocumentID: "doc-1", Filename: "settlement.pdf", Text: settlementDoc,
		Mode: model.ModeQuick, JobID: "job-1",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all extraction providers failed")

	// The partial record still carries the sealed audit trail.
	require.NotNil(t, analysis)
	require.NotNil(t, analysis.AuditTrail)
	assert.NotNil(t, analysis.AuditTrail.CompletedAt)

	job := reg.Get("job-1")
	require.NotNil(t, job)
	assert.Equal(t, model.StageFailed, job.Stage)
	assert.NotEmpty(t, job.Error)
}

func TestRun_VerificationFailureDegrades(t *testing.T) {
	primary := newFakeGen("anthropic-primary")
	primary.responses[string(model.StageLayer1Extraction)] = extractionWithHallucination
	secondary := newFakeGen("anthropic-secondary")
	secondary.errors[string(model.StageLayer2Verification)] = eris.New("unavailable")

	p, reg := newTestPipeline(primary, secondary)
	startJob(t, reg, "job-1")

	analysis, err := p.Run(context.Background(), Request{
		DocumentID: "doc-1", Filename: "settlement.pdf", Text: settlementDoc,
		Mode: model.ModeQuick, JobID: "job-1",
	})
	require.NoError(t, err)

	// Rule-based detection still removes Jane Doe without the verifier.
	assert.Equal(t, 1, analysis.HallucinationsDetected)
	require.Len(t, analysis.Parties, 2)

	// Neutral accuracy minus the hallucination penalty.
	assert.Equal(t, degradedAccuracyScore-hallucinationPenalty, analysis.OverallConfidenceScore)

	found := false
	for _, w := range analysis.Warnings {
		if strings.Contains(w, "cross-verification unavailable") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRun_VerifierCorrectionApplied(t *testing.T) {
	extraction := strings.Replace(extractionWithHallucination, `"Jane Doe"`, `"Jon Smyth"`, 1)
	verification := `{
	  "accuracyScore": 92,
	  "flaggedItems": [
	    {"itemType": "party", "value": "Jon Smyth", "reason": "misread of John Smith"}
	  ],
	  "corrections": {
	    "Jon Smyth": {"correctedValue": "John Smith", "documentEvidence": "between John Smith (\"Plaintiff\")"}
	  },
	  "missedItems": []
	}`

	primary := newFakeGen("anthropic-primary")
	primary.responses[string(model.StageLayer1Extraction)] = extraction
	secondary := newFakeGen("anthropic-secondary")
	secondary.responses[string(model.StageLayer2Verification)] = verification

	p, reg := newTestPipeline(primary, secondary)
	startJob(t, reg, "job-1")

	analysis, err := p.Run(context.Background(), Request{
		DocumentID: "doc-1", Filename: "settlement.pdf", Text: settlementDoc,
		Mode: model.ModeQuick, JobID: "job-1",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, analysis.CorrectionsMade)
	assert.Equal(t, 1, analysis.HallucinationsDetected)

	var corrected *model.ExtractedItem
	for i := range analysis.Parties {
		if analysis.Parties[i].CorrectedFrom != nil {
			corrected = &analysis.Parties[i]
		}
	}
	require.NotNil(t, corrected, "expected a corrected party")
	assert.Equal(t, "John Smith", corrected.ValueString())
	assert.Equal(t, "Jon Smyth", *corrected.CorrectedFrom)
	assert.Equal(t, 100, corrected.ConfidenceScore)

	require.NotNil(t, analysis.AuditTrail)
	require.Len(t, analysis.AuditTrail.Corrections, 1)
	assert.Equal(t, "John Smith", analysis.AuditTrail.Corrections[0].CorrectedValue)
	assert.True(t, analysis.AuditTrail.Corrections[0].VerifiedAgainstDocument)
}

func TestRun_FinancialMismatchLowersScore(t *testing.T) {
	doc := strings.Replace(settlementDoc, "$30,000 in damages", "$35,000 in damages", 1)
	extraction := strings.Replace(extractionWithHallucination, "$30,000", "$35,000", -1)

	primary := newFakeGen("anthropic-primary")
	primary.responses[string(model.StageLayer1Extraction)] = extraction
	secondary := newFakeGen("anthropic-secondary")
	secondary.responses[string(model.StageLayer2Verification)] = verificationFlaggingJaneDoe

	p, reg := newTestPipeline(primary, secondary)
	startJob(t, reg, "job-1")

	analysis, err := p.Run(context.Background(), Request{
		DocumentID: "doc-1", Filename: "settlement.pdf", Text: doc,
		Mode: model.ModeQuick, JobID: "job-1",
	})
	require.NoError(t, err)

	// 90 accuracy - 5 hallucination - 5 financial (one total mismatch)
	assert.Equal(t, 80, analysis.OverallConfidenceScore)

	found := false
	for _, w := range analysis.Warnings {
		if strings.Contains(w, "financial inconsistency") {
			found = true
		}
	}
	assert.True(t, found, "expected financial warning, got %v", analysis.Warnings)
}

func TestRun_IdenticalInputsProduceIdenticalDetection(t *testing.T) {
	for _, jobID := range []string{"job-a", "job-b"} {
		primary := newFakeGen("anthropic-primary")
		primary.responses[string(model.StageLayer1Extraction)] = extractionWithHallucination
		secondary := newFakeGen("anthropic-secondary")
		secondary.responses[string(model.StageLayer2Verification)] = verificationFlaggingJaneDoe

		p, reg := newTestPipeline(primary, secondary)
		startJob(t, reg, jobID)

		analysis, err := p.Run(context.Background(), Request{
			DocumentID: "doc-1", Filename: "settlement.pdf", Text: settlementDoc,
			Mode: model.ModeQuick, JobID: jobID,
		})
		require.NoError(t, err)
		assert.Equal(t, 1, analysis.HallucinationsDetected)
		assert.Equal(t, 85, analysis.OverallConfidenceScore)
		assert.Len(t, analysis.Parties, 2)
	}
}

func TestRun_ThoroughModeRunsInspectionsAndExpert(t *testing.T) {
	primary := newFakeGen("anthropic-primary")
	primary.responses[string(model.StageLayer1Extraction)] = extractionWithHallucination
	secondary := newFakeGen("anthropic-secondary")
	secondary.responses[string(model.StageLayer2Verification)] = verificationFlaggingJaneDoe
	secondary.responses[string(model.StageExpertReview)] = `{
	  "checklistApplied": "settlement-review",
	  "missingItems": [],
	  "corrections": [],
	  "notes": "analysis is consistent with the agreement"
	}`
	for _, stage := range []model.AnalysisStage{
		model.StageLayer1Inspection, model.StageLayer2Inspection,
		model.StageLayer3Inspection, model.StageFinalInspection,
	} {
		secondary.responses[string(stage)] = passingInspection
	}

	p, reg := newTestPipeline(primary, secondary)
	startJob(t, reg, "job-1")

	analysis, err := p.Run(context.Background(), Request{
		DocumentID: "doc-1", Filename: "settlement.pdf", Text: settlementDoc,
		Mode: model.ModeThorough, JobID: "job-1",
	})
	require.NoError(t, err)

	stageNames := make([]string, 0, len(analysis.Layers))
	for _, l := range analysis.Layers {
		stageNames = append(stageNames, l.StageName)
	}
	assert.Contains(t, stageNames, string(model.StageLayer1Inspection))
	assert.Contains(t, stageNames, string(model.StageFinalInspection))
	assert.Contains(t, stageNames, string(model.StageExpertReview))
	// Expert review runs on the secondary instance.
	assert.Contains(t, secondary.stages(), string(model.StageExpertReview))
	assert.NotContains(t, primary.stages(), string(model.StageExpertReview))
}

func TestRun_InspectionFailureIsNotFatal(t *testing.T) {
	primary := newFakeGen("anthropic-primary")
	primary.responses[string(model.StageLayer1Extraction)] = extractionWithHallucination
	secondary := newFakeGen("anthropic-secondary")
	secondary.responses[string(model.StageLayer2Verification)] = verificationFlaggingJaneDoe
	secondary.errors[string(model.StageExpertReview)] = eris.New("unavailable")
	// no scripted inspection responses: every inspection call fails

	p, reg := newTestPipeline(primary, secondary)
	startJob(t, reg, "job-1")

	analysis, err := p.Run(context.Background(), Request{
		DocumentID: "doc-1", Filename: "settlement.pdf", Text: settlementDoc,
		Mode: model.ModeThorough, JobID: "job-1",
	})
	require.NoError(t, err)
	assert.Equal(t, 85, analysis.OverallConfidenceScore)
	assert.NotEmpty(t, analysis.Warnings)
}

func TestRun_EmptyDocumentFails(t *testing.T) {
	primary := newFakeGen("anthropic-primary")
	secondary := newFakeGen("anthropic-secondary")

	p, reg := newTestPipeline(primary, secondary)
	startJob(t, reg, "job-1")

	_, err := p.Run(context.Background(), Request{
		DocumentID: "doc-1", Filename: "empty.pdf", Text: "   ",
		Mode: model.ModeQuick, JobID: "job-1",
	})
	require.Error(t, err)
	assert.True(t, eris.Is(err, errEmptyDocument))

	job := reg.Get("job-1")
	require.NotNil(t, job)
	assert.Equal(t, model.StageFailed, job.Stage)
}

func TestRun_FencedJSONResponse(t *testing.T) {
	primary := newFakeGen("anthropic-primary")
	primary.responses[string(model.StageLayer1Extraction)] = "```json\n" + extractionWithHallucination + "\n```"
	secondary := newFakeGen("anthropic-secondary")
	secondary.responses[string(model.StageLayer2Verification)] = "Here is my assessment:\n" + verificationFlaggingJaneDoe

	p, reg := newTestPipeline(primary, secondary)
	startJob(t, reg, "job-1")

	analysis, err := p.Run(context.Background(), Request{
		DocumentID: "doc-1", Filename: "settlement.pdf", Text: settlementDoc,
		Mode: model.ModeQuick, JobID: "job-1",
	})
	require.NoError(t, err)
	assert.Equal(t, 85, analysis.OverallConfidenceScore)
}

func TestRun_CancelledContext(t *testing.T) {
	primary := newFakeGen("anthropic-primary")
	primary.responses[string(model.StageLayer1Extraction)] = extractionWithHallucination
	secondary := newFakeGen("anthropic-secondary")
	secondary.responses[string(model.StageLayer2Verification)] = verificationFlaggingJaneDoe

	p, reg := newTestPipeline(primary, secondary)
	startJob(t, reg, "job-1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	analysis, err := p.Run(ctx, Request{
		DocumentID: "doc-1", Filename: "settlement.pdf", Text: settlementDoc,
		Mode: model.ModeQuick, JobID: "job-1",
	})
	require.Error(t, err)

	require.NotNil(t, analysis)
	require.NotNil(t, analysis.AuditTrail)
	assert.NotNil(t, analysis.AuditTrail.CompletedAt)

	job := reg.Get("job-1")
	require.NotNil(t, job)
	assert.Equal(t, model.StageFailed, job.Stage)
}

package audit

import (
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/legal-analyzer/internal/model"
)

func TestRecorder_StageLifecycle(t *testing.T) {
	r := NewRecorder("", "doc-1", "lease.pdf")
	require.NotEmpty(t, r.Trail().AnalysisID)

	r.StartStage("layer1_extraction", "claude-sonnet-4-5")
	r.CompleteStage("layer1_extraction", StageCounters{ItemsExtracted: 12})

	trail := r.Trail()
	require.Len(t, trail.Events, 2)
	assert.Equal(t, model.EventStageStarted, trail.Events[0].EventType)
	assert.Equal(t, model.EventStageCompleted, trail.Events[1].EventType)

	require.Len(t, trail.Snapshots, 1)
	snap := trail.Snapshots[0]
	assert.Equal(t, "layer1_extraction", snap.Stage)
	require.NotNil(t, snap.CompletedAt)
	assert.Equal(t, 12, snap.ItemsExtracted)
	assert.GreaterOrEqual(t, snap.DurationMS, int64(0))
}

func TestRecorder_FailStageSealsSnapshot(t *testing.T) {
	r := NewRecorder("run-1", "doc-1", "a.txt")
	r.StartStage("layer2_verification", "gpt-4o")
	r.FailStage("layer2_verification", eris.New("generation timed out"))

	trail := r.Trail()
	require.Len(t, trail.Snapshots, 1)
	assert.NotNil(t, trail.Snapshots[0].CompletedAt)

	last := trail.Events[len(trail.Events)-1]
	assert.Equal(t, model.EventStageFailed, last.EventType)
	assert.Contains(t, last.AfterValue, "generation timed out")
}

func TestRecorder_HallucinationAndCorrectionIDs(t *testing.T) {
	r := NewRecorder("run-1", "doc-1", "a.txt")

	hid := r.RecordHallucination(model.HallucinationRecord{
		DetectedAtStage: "layer3_hallucination",
		ItemType:        "party",
		OriginalValue:   "Jane Doe",
		ReasonFlagged:   "not found in document",
		DetectionMethod: "substring",
		ActionTaken:     model.ActionRemoved,
	})
	cid := r.RecordCorrection(model.CorrectionRecord{
		Stage:          "layer4_validation",
		FieldPath:      "parties[0]",
		OriginalValue:  "Jane Doe",
		CorrectedValue: "John Smith",
		Reason:         "cross-verification evidence",
		Source:         "layer2",
	})

	require.NotEmpty(t, hid)
	require.NotEmpty(t, cid)
	trail := r.Trail()
	require.Len(t, trail.Hallucinations, 1)
	require.Len(t, trail.Corrections, 1)
	assert.Equal(t, hid, trail.Hallucinations[0].ID)
	assert.Equal(t, cid, trail.Corrections[0].ID)

	types := []model.AuditEventType{trail.Events[0].EventType, trail.Events[1].EventType}
	assert.Equal(t, []model.AuditEventType{model.EventHallucination, model.EventCorrection}, types)
}

func TestRecorder_CompleteAnalysisFirstCallWins(t *testing.T) {
	r := NewRecorder("run-1", "doc-1", "a.txt")
	r.StartStage("layer1_extraction", "m")
	r.CompleteStage("layer1_extraction", StageCounters{})

	r.CompleteAnalysis(87)
	require.True(t, r.Sealed())
	first := *r.Trail().CompletedAt
	events := len(r.Trail().Events)

	time.Sleep(5 * time.Millisecond)
	r.CompleteAnalysis(12)

	assert.Equal(t, first, *r.Trail().CompletedAt)
	assert.Equal(t, 87, r.Trail().FinalConfidence)
	assert.Equal(t, events, len(r.Trail().Events))
}

func TestRecorder_WritesAfterSealDropped(t *testing.T) {
	r := NewRecorder("run-1", "doc-1", "a.txt")
	r.CompleteAnalysis(90)

	r.StartStage("layer1_extraction", "m")
	r.RecordHallucination(model.HallucinationRecord{ItemType: "date"})
	r.RecordFalsePositive("layer3_hallucination", "amount", "$5", "re-verified")

	trail := r.Trail()
	assert.Len(t, trail.Events, 1) // only analysis_completed
	assert.Empty(t, trail.Hallucinations)
	assert.Empty(t, trail.FalsePositives)
	assert.Empty(t, trail.Snapshots)
}

func TestRecorder_EventOrderPreserved(t *testing.T) {
	r := NewRecorder("run-1", "doc-1", "a.txt")
	stages := []string{"layer1_extraction", "layer2_verification", "layer3_hallucination"}
	for _, s := range stages {
		r.StartStage(s, "m")
		r.CompleteStage(s, StageCounters{})
	}

	var got []string
	for _, ev := range r.Trail().Events {
		if ev.EventType == model.EventStageCompleted {
			got = append(got, ev.Stage)
		}
	}
	assert.Equal(t, stages, got)
}

func TestRecorder_ConfidenceChangeImpact(t *testing.T) {
	r := NewRecorder("run-1", "doc-1", "a.txt")
	r.RecordConfidenceChange("layer4_validation", 95, 85, "hallucination penalty")

	ev := r.Trail().Events[0]
	assert.Equal(t, model.EventConfidenceChange, ev.EventType)
	assert.Equal(t, -10, ev.ConfidenceImpact)
	assert.Equal(t, "95", ev.BeforeValue)
	assert.Equal(t, "85", ev.AfterValue)
}

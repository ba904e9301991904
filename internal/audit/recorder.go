// Package audit records the append-only trail of one analysis run: stage
// events, hallucinations, corrections, and confidence changes. A Recorder is
// owned by exactly one pipeline run and is not safe for concurrent use.
package audit

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/legal-analyzer/internal/model"
)

// StageCounters are the per-stage tallies sealed into a StageSnapshot when
// the stage completes.
type StageCounters struct {
	ItemsExtracted int
	ItemsFlagged   int
	ItemsCorrected int
	ItemsRemoved   int
}

// Recorder accumulates the audit trail for a single analysis run. Events are
// append-only; nothing recorded is ever rewritten. After CompleteAnalysis the
// trail is sealed and further writes are dropped with a warning.
type Recorder struct {
	trail *model.AuditTrail

	// openSnapshots maps stage name to its index in trail.Snapshots so
	// CompleteStage can seal the snapshot StartStage opened.
	openSnapshots map[string]int
	sealed        bool
}

// NewRecorder starts a trail for one analysis run.
func NewRecorder(analysisID, documentID, filename string) *Recorder {
	if analysisID == "" {
		analysisID = uuid.NewString()
	}
	return &Recorder{
		trail: &model.AuditTrail{
			AnalysisID: analysisID,
			DocumentID: documentID,
			Filename:   filename,
			StartedAt:  time.Now().UTC(),
		},
		openSnapshots: make(map[string]int),
	}
}

// Trail returns the underlying trail. Callers must treat it as read-only
// once CompleteAnalysis has been called.
func (r *Recorder) Trail() *model.AuditTrail {
	return r.trail
}

// StartStage records a stage_started event and opens the stage's snapshot.
func (r *Recorder) StartStage(stage, modelUsed string) {
	if r.dropIfSealed("StartStage", stage) {
		return
	}
	r.append(model.AuditEvent{
		EventType:   model.EventStageStarted,
		Stage:       stage,
		Description: fmt.Sprintf("stage %s started", stage),
		ModelUsed:   modelUsed,
	})
	r.openSnapshots[stage] = len(r.trail.Snapshots)
	r.trail.Snapshots = append(r.trail.Snapshots, model.StageSnapshot{
		Stage:     stage,
		StartedAt: time.Now().UTC(),
	})
}

// CompleteStage records a stage_completed event and seals the snapshot
// opened by StartStage. Completing a stage that was never started still
// records the event but logs the mismatch.
func (r *Recorder) CompleteStage(stage string, counters StageCounters) {
	if r.dropIfSealed("CompleteStage", stage) {
		return
	}
	r.append(model.AuditEvent{
		EventType:   model.EventStageCompleted,
		Stage:       stage,
		Description: fmt.Sprintf("stage %s completed", stage),
	})
	idx, ok := r.openSnapshots[stage]
	if !ok {
		zap.L().Warn("audit: completing stage with no open snapshot",
			zap.String("analysisId", r.trail.AnalysisID),
			zap.String("stage", stage))
		return
	}
	delete(r.openSnapshots, stage)

	snap := &r.trail.Snapshots[idx]
	now := time.Now().UTC()
	snap.CompletedAt = &now
	snap.DurationMS = now.Sub(snap.StartedAt).Milliseconds()
	snap.ItemsExtracted = counters.ItemsExtracted
	snap.ItemsFlagged = counters.ItemsFlagged
	snap.ItemsCorrected = counters.ItemsCorrected
	snap.ItemsRemoved = counters.ItemsRemoved
}

// FailStage records a stage_failed event carrying the raw error text for
// later diagnosis, and seals the stage's snapshot if one is open.
func (r *Recorder) FailStage(stage string, err error) {
	if r.dropIfSealed("FailStage", stage) {
		return
	}
	desc := fmt.Sprintf("stage %s failed", stage)
	var after string
	if err != nil {
		after = err.Error()
	}
	r.append(model.AuditEvent{
		EventType:   model.EventStageFailed,
		Stage:       stage,
		Description: desc,
		AfterValue:  after,
	})
	if idx, ok := r.openSnapshots[stage]; ok {
		delete(r.openSnapshots, stage)
		now := time.Now().UTC()
		snap := &r.trail.Snapshots[idx]
		snap.CompletedAt = &now
		snap.DurationMS = now.Sub(snap.StartedAt).Milliseconds()
	}
}

// RecordHallucination appends a hallucination record, assigning it an id,
// and mirrors it as a hallucination_detected event. Returns the id.
func (r *Recorder) RecordHallucination(rec model.HallucinationRecord) string {
	if r.dropIfSealed("RecordHallucination", rec.DetectedAtStage) {
		return ""
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	r.trail.Hallucinations = append(r.trail.Hallucinations, rec)
	r.append(model.AuditEvent{
		EventType: model.EventHallucination,
		Stage:     rec.DetectedAtStage,
		Description: fmt.Sprintf("%s %q flagged: %s",
			rec.ItemType, rec.OriginalValue, rec.ReasonFlagged),
		BeforeValue: rec.OriginalValue,
		AfterValue:  rec.CorrectedValue,
	})
	return rec.ID
}

// RecordCorrection appends a correction record, assigning it an id, and
// mirrors it as a correction_applied event. Returns the id.
func (r *Recorder) RecordCorrection(rec model.CorrectionRecord) string {
	if r.dropIfSealed("RecordCorrection", rec.Stage) {
		return ""
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	r.trail.Corrections = append(r.trail.Corrections, rec)
	r.append(model.AuditEvent{
		EventType:   model.EventCorrection,
		Stage:       rec.Stage,
		Description: fmt.Sprintf("%s corrected: %s", rec.FieldPath, rec.Reason),
		BeforeValue: rec.OriginalValue,
		AfterValue:  rec.CorrectedValue,
	})
	return rec.ID
}

// RecordFalsePositive notes a flagged item that re-verification cleared.
func (r *Recorder) RecordFalsePositive(stage, itemType, value, reason string) {
	if r.dropIfSealed("RecordFalsePositive", stage) {
		return
	}
	r.trail.FalsePositives = append(r.trail.FalsePositives,
		fmt.Sprintf("%s: %s", itemType, value))
	r.append(model.AuditEvent{
		EventType:   model.EventFalsePositive,
		Stage:       stage,
		Description: fmt.Sprintf("%s %q cleared: %s", itemType, value, reason),
		BeforeValue: value,
	})
}

// RecordConfidenceChange notes a confidence score adjustment and its impact.
func (r *Recorder) RecordConfidenceChange(stage string, before, after int, reason string) {
	if r.dropIfSealed("RecordConfidenceChange", stage) {
		return
	}
	r.append(model.AuditEvent{
		EventType:        model.EventConfidenceChange,
		Stage:            stage,
		Description:      reason,
		BeforeValue:      fmt.Sprintf("%d", before),
		AfterValue:       fmt.Sprintf("%d", after),
		ConfidenceImpact: after - before,
	})
}

// CompleteAnalysis seals the trail with the final confidence score. The
// first call wins: repeat calls leave completedAt and finalConfidence
// untouched and are logged.
func (r *Recorder) CompleteAnalysis(finalConfidence int) {
	if r.sealed {
		zap.L().Warn("audit: trail already sealed",
			zap.String("analysisId", r.trail.AnalysisID))
		return
	}
	r.append(model.AuditEvent{
		EventType:   model.EventAnalysisComplete,
		Description: fmt.Sprintf("analysis completed with confidence %d", finalConfidence),
	})
	now := time.Now().UTC()
	r.trail.CompletedAt = &now
	r.trail.FinalConfidence = finalConfidence
	r.sealed = true
}

// Sealed reports whether CompleteAnalysis has been called.
func (r *Recorder) Sealed() bool {
	return r.sealed
}

func (r *Recorder) append(ev model.AuditEvent) {
	ev.Timestamp = time.Now().UTC()
	r.trail.Events = append(r.trail.Events, ev)
}

func (r *Recorder) dropIfSealed(op, stage string) bool {
	if !r.sealed {
		return false
	}
	zap.L().Warn("audit: write after seal dropped",
		zap.String("analysisId", r.trail.AnalysisID),
		zap.String("op", op),
		zap.String("stage", stage))
	return true
}

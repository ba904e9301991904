package model

import "time"

// HallucinationAction is what the pipeline did about a flagged item.
type HallucinationAction string

const (
	ActionCorrected HallucinationAction = "corrected"
	ActionRemoved   HallucinationAction = "removed"
)

// HallucinationRecord documents one extracted value that could not be
// verified against the source document. Append-only.
type HallucinationRecord struct {
	ID                 string              `json:"id"`
	DetectedAtStage    string              `json:"detectedAtStage"`
	ItemType           string              `json:"itemType"`
	OriginalValue      string              `json:"originalValue"`
	ReasonFlagged      string              `json:"reasonFlagged"`
	DetectionMethod    string              `json:"detectionMethod"`
	ActionTaken        HallucinationAction `json:"actionTaken"`
	CorrectedValue     string              `json:"correctedValue,omitempty"`
	CorrectionSource   string              `json:"correctionSource,omitempty"`
	VerifiedInDocument bool                `json:"verifiedInDocument"`
}

// CorrectionRecord documents one value replacement, with the document
// evidence that justified it. Append-only.
type CorrectionRecord struct {
	ID                      string `json:"id"`
	Stage                   string `json:"stage"`
	FieldPath               string `json:"fieldPath"`
	OriginalValue           string `json:"originalValue"`
	CorrectedValue          string `json:"correctedValue"`
	Reason                  string `json:"reason"`
	Source                  string `json:"source"`
	VerifiedAgainstDocument bool   `json:"verifiedAgainstDocument"`
	DocumentEvidence        string `json:"documentEvidence,omitempty"`
}

// AuditEventType categorizes audit trail events.
type AuditEventType string

const (
	EventStageStarted     AuditEventType = "stage_started"
	EventStageCompleted   AuditEventType = "stage_completed"
	EventStageFailed      AuditEventType = "stage_failed"
	EventHallucination    AuditEventType = "hallucination_detected"
	EventCorrection       AuditEventType = "correction_applied"
	EventFalsePositive    AuditEventType = "false_positive_cleared"
	EventConfidenceChange AuditEventType = "confidence_changed"
	EventAnalysisComplete AuditEventType = "analysis_completed"
)

// AuditEvent is one entry in the ordered audit trail. Never mutated after
// being recorded.
type AuditEvent struct {
	EventType        AuditEventType `json:"eventType"`
	Stage            string         `json:"stage"`
	Timestamp        time.Time      `json:"timestamp"`
	Description      string         `json:"description"`
	BeforeValue      string         `json:"beforeValue,omitempty"`
	AfterValue       string         `json:"afterValue,omitempty"`
	ModelUsed        string         `json:"modelUsed,omitempty"`
	ConfidenceImpact int            `json:"confidenceImpact,omitempty"`
}

// StageSnapshot is per-stage timing and counters, started when the stage
// begins and sealed when it completes.
type StageSnapshot struct {
	Stage          string     `json:"stage"`
	StartedAt      time.Time  `json:"startedAt"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	DurationMS     int64      `json:"durationMs"`
	ItemsExtracted int        `json:"itemsExtracted"`
	ItemsFlagged   int        `json:"itemsFlagged"`
	ItemsCorrected int        `json:"itemsCorrected"`
	ItemsRemoved   int        `json:"itemsRemoved"`
}

// AuditTrail is the complete append-only record of one analysis run: ordered
// events plus hallucination, correction, and snapshot lists. Write-once /
// read-many after the run completes.
type AuditTrail struct {
	AnalysisID      string                `json:"analysisId"`
	DocumentID      string                `json:"documentId"`
	Filename        string                `json:"filename"`
	StartedAt       time.Time             `json:"startedAt"`
	CompletedAt     *time.Time            `json:"completedAt,omitempty"`
	FinalConfidence int                   `json:"finalConfidence"`
	Events          []AuditEvent          `json:"events"`
	Hallucinations  []HallucinationRecord `json:"hallucinations"`
	Corrections     []CorrectionRecord    `json:"corrections"`
	FalsePositives  []string              `json:"falsePositives,omitempty"`
	Snapshots       []StageSnapshot       `json:"snapshots"`
}

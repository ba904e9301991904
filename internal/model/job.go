package model

import "time"

// AnalysisStage is the orchestrator's state machine position, as reported
// through the progress registry.
type AnalysisStage string

const (
	StageQueued             AnalysisStage = "queued"
	StageExtractingText     AnalysisStage = "extracting_text"
	StageLayer1Extraction   AnalysisStage = "layer1_extraction"
	StageLayer1Inspection   AnalysisStage = "layer1_inspection"
	StageLayer2Verification AnalysisStage = "layer2_verification"
	StageLayer2Inspection   AnalysisStage = "layer2_inspection"
	StageLayer3Hallucination AnalysisStage = "layer3_hallucination"
	StageLayer3Inspection   AnalysisStage = "layer3_inspection"
	StageLayer4Validation   AnalysisStage = "layer4_validation"
	StageExpertReview       AnalysisStage = "expert_review"
	StageFinalInspection    AnalysisStage = "final_inspection"
	StageCompleted          AnalysisStage = "completed"
	StageFailed             AnalysisStage = "failed"
)

// stagePercent is the fixed stage-to-progress table. Failed carries no entry:
// a failed job keeps the percent it last reached.
var stagePercent = map[AnalysisStage]int{
	StageQueued:              0,
	StageExtractingText:      5,
	StageLayer1Extraction:    15,
	StageLayer1Inspection:    25,
	StageLayer2Verification:  35,
	StageLayer2Inspection:    45,
	StageLayer3Hallucination: 55,
	StageLayer3Inspection:    65,
	StageLayer4Validation:    75,
	StageExpertReview:        85,
	StageFinalInspection:     92,
	StageCompleted:           100,
}

// Percent returns the fixed progress value for the stage, or -1 when the
// stage has no entry (Failed).
func (s AnalysisStage) Percent() int {
	if p, ok := stagePercent[s]; ok {
		return p
	}
	return -1
}

// Terminal reports whether the stage permits no further transitions.
func (s AnalysisStage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// AnalysisJob is the concurrency-visible progress entity for one analysis
// request. Mutated only through the progress registry.
type AnalysisJob struct {
	JobID      string `json:"jobId"`
	DocumentID string `json:"documentId"`
	Filename   string `json:"filename"`
	UserInfo   string `json:"userInfo,omitempty"`

	Stage           AnalysisStage `json:"stage"`
	Detail          string        `json:"detail,omitempty"`
	ProgressPercent int           `json:"progressPercent"`
	StagesCompleted []string      `json:"stagesCompleted,omitempty"`

	StartedAt   time.Time  `json:"startedAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Error       string     `json:"error,omitempty"`

	HallucinationReports []HallucinationRecord `json:"hallucinationReports,omitempty"`

	ItemsExtracted int `json:"itemsExtracted,omitempty"`
	ItemsFlagged   int `json:"itemsFlagged,omitempty"`
	ItemsCorrected int `json:"itemsCorrected,omitempty"`
}

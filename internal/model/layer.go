package model

import "time"

// LayerStatus tracks the lifecycle of a single pipeline stage.
type LayerStatus string

const (
	LayerPending    LayerStatus = "pending"
	LayerInProgress LayerStatus = "in_progress"
	LayerCompleted  LayerStatus = "completed"
	LayerFailed     LayerStatus = "failed"
)

// LayerResult is the record of one pipeline stage. Owned exclusively by the
// orchestrator for the run's lifetime.
type LayerResult struct {
	StageName      string        `json:"stageName"`
	Status         LayerStatus   `json:"status"`
	Data           StageData     `json:"data,omitempty"`
	Errors         []string      `json:"errors,omitempty"`
	Warnings       []string      `json:"warnings,omitempty"`
	ModelUsed      string        `json:"modelUsed,omitempty"`
	ProcessingTime time.Duration `json:"processingTime"`

	// RawResponse preserves the model's unparsed text when structured
	// parsing failed. Never silently dropped.
	RawResponse string `json:"rawResponse,omitempty"`
}

// StageData is the typed payload of a LayerResult. Each stage produces
// exactly one of the concrete output types below.
type StageData interface {
	stageData()
}

// ExtractionOutput is stage 1's first-pass structured extraction.
type ExtractionOutput struct {
	DocumentType DocumentType    `json:"documentType"`
	Summary      string          `json:"summary"`
	Parties      []ExtractedItem `json:"parties"`
	Dates        []ExtractedItem `json:"dates"`
	Amounts      []ExtractedItem `json:"amounts"`
	KeyTerms     []ExtractedItem `json:"keyTerms"`
	Obligations  []ExtractedItem `json:"obligations"`
	Deadlines    []ExtractedItem `json:"deadlines"`
	Keywords     []string        `json:"keywords"`

	// Extra preserves fields the model returned that we do not model,
	// e.g. five-W summaries. Passed through to the final result untouched.
	Extra map[string]any `json:"extra,omitempty"`
}

func (*ExtractionOutput) stageData() {}

// VerificationOutput is stage 2's independent cross-check of stage 1.
type VerificationOutput struct {
	// AccuracyScore is the verifier's 0-100 judgment of the extraction.
	AccuracyScore int `json:"accuracyScore"`

	// FlaggedItems lists values the verifier believes are wrong or invented.
	FlaggedItems []FlaggedItem `json:"flaggedItems"`

	// Corrections maps an original value to its corrected replacement.
	Corrections map[string]Correction `json:"corrections"`

	// MissedItems lists values present in the document that stage 1 missed.
	MissedItems []MissedItem `json:"missedItems"`

	Extra map[string]any `json:"extra,omitempty"`
}

func (*VerificationOutput) stageData() {}

// FlaggedItem is a stage-2 flag on a stage-1 value.
type FlaggedItem struct {
	ItemType string `json:"itemType"` // party, date, amount, obligation, deadline
	Value    string `json:"value"`
	Reason   string `json:"reason"`
}

// Correction is a replacement value proposed by the cross-verification model,
// with the document evidence supporting it.
type Correction struct {
	CorrectedValue   string `json:"correctedValue"`
	DocumentEvidence string `json:"documentEvidence,omitempty"`
}

// MissedItem is a value the cross-verification model found in the document
// that stage 1 did not extract.
type MissedItem struct {
	ItemType   string `json:"itemType"`
	Value      string `json:"value"`
	SourceText string `json:"sourceText,omitempty"`
}

// HallucinationOutput is stage 3's rule-based detection result.
type HallucinationOutput struct {
	Hallucinations       []HallucinationRecord `json:"hallucinations"`
	VerifiedItems        []string              `json:"verifiedItems"`
	ConfidenceAdjustment int                   `json:"confidenceAdjustment"`
}

func (*HallucinationOutput) stageData() {}

// MergeOutput is stage 4's merged, corrected, financially cross-checked data.
type MergeOutput struct {
	Final             *ExtractionOutput  `json:"final"`
	ItemsRemoved      int                `json:"itemsRemoved"`
	ItemsCorrected    int                `json:"itemsCorrected"`
	ItemsAppended     int                `json:"itemsAppended"`
	VerificationScore int                `json:"verificationScore"`
	Financial         *FinancialFindings `json:"financial,omitempty"`
}

func (*MergeOutput) stageData() {}

// ExpertOutput is the thorough-mode expert review result.
type ExpertOutput struct {
	ChecklistApplied string           `json:"checklistApplied"`
	MissingItems     []string         `json:"missingItems"`
	Corrections      []CorrectionNote `json:"corrections"`
	Notes            string           `json:"notes,omitempty"`
	Extra            map[string]any   `json:"extra,omitempty"`
}

func (*ExpertOutput) stageData() {}

// CorrectionNote is an expert-suggested correction that has not yet been
// verified against the document.
type CorrectionNote struct {
	FieldPath      string `json:"fieldPath"`
	OriginalValue  string `json:"originalValue"`
	CorrectedValue string `json:"correctedValue"`
	Reason         string `json:"reason"`
}

// InspectionOutput is a stage quality inspector's verdict on one stage.
type InspectionOutput struct {
	Stage        string   `json:"stage"`
	QualityScore int      `json:"qualityScore"`
	Issues       []string `json:"issues,omitempty"`
	Passed       bool     `json:"passed"`
}

func (*InspectionOutput) stageData() {}

// FinancialFindings is the financial cross-validator's report.
type FinancialFindings struct {
	InconsistenciesFound   int                   `json:"inconsistenciesFound"`
	VerifiedAmounts        []string              `json:"verifiedAmounts"`
	UnverifiedAmounts      []string              `json:"unverifiedAmounts"`
	DuplicateAmounts       []DuplicateAmount     `json:"duplicateAmounts,omitempty"`
	TotalVsBreakdownChecks []TotalBreakdownCheck `json:"totalVsBreakdownChecks,omitempty"`
	Inconsistencies        []Inconsistency       `json:"inconsistencies,omitempty"`
}

// Penalty is the verification-score reduction for the inconsistencies found,
// capped at 15.
func (f *FinancialFindings) Penalty() int {
	p := f.InconsistenciesFound * 5
	if p > 15 {
		p = 15
	}
	return p
}

// Inconsistency is one problem found by the financial cross-validator.
type Inconsistency struct {
	Type        string `json:"type"` // unverified_amount, total_mismatch
	Severity    string `json:"severity"`
	Description string `json:"description"`
	Difference  string `json:"difference,omitempty"` // "$X.XX" for total_mismatch
}

// DuplicateAmount reports two amounts normalizing to the same numeric value
// under different descriptions. Informational only.
type DuplicateAmount struct {
	Amount       string   `json:"amount"`
	Descriptions []string `json:"descriptions"`
}

// TotalBreakdownCheck records one total-vs-itemized comparison.
type TotalBreakdownCheck struct {
	TotalDescription string  `json:"totalDescription"`
	TotalAmount      float64 `json:"totalAmount"`
	BreakdownSum     float64 `json:"breakdownSum"`
	Matched          bool    `json:"matched"`
}

// Package model contains the data types shared across the analysis pipeline:
// extracted items, stage results, audit records, job progress, and the final
// verified analysis handed to persistence.
package model

import "time"

// AnalysisMode selects how much verification the pipeline performs.
type AnalysisMode string

const (
	// ModeQuick runs extraction, cross-verification, hallucination detection,
	// and validation only.
	ModeQuick AnalysisMode = "quick"
	// ModeThorough additionally runs per-stage quality inspection, expert
	// review, and a final inspection pass.
	ModeThorough AnalysisMode = "thorough"
)

// DocumentType classifies the legal document under analysis.
type DocumentType string

const (
	DocTypeContract   DocumentType = "contract"
	DocTypeLease      DocumentType = "lease"
	DocTypeComplaint  DocumentType = "complaint"
	DocTypeSettlement DocumentType = "settlement"
	DocTypeGeneral    DocumentType = "general"
)

// VerifiedAnalysis is the pipeline's final output: every extracted item either
// verified against the source document or corrected/removed, plus the audit
// trail proving it. Immutable once returned.
type VerifiedAnalysis struct {
	DocumentID   string       `json:"documentId"`
	Filename     string       `json:"filename"`
	DocumentType DocumentType `json:"documentType"`

	Summary     ExtractedItem   `json:"summary"`
	Parties     []ExtractedItem `json:"parties"`
	Dates       []ExtractedItem `json:"dates"`
	Amounts     []ExtractedItem `json:"amounts"`
	KeyTerms    []ExtractedItem `json:"keyTerms"`
	Obligations []ExtractedItem `json:"obligations"`
	Deadlines   []ExtractedItem `json:"deadlines"`
	Keywords    []ExtractedItem `json:"keywords"`

	OverallConfidenceScore int      `json:"overallConfidenceScore"`
	HallucinationsDetected int      `json:"hallucinationsDetected"`
	CorrectionsMade        int      `json:"correctionsMade"`
	Warnings               []string `json:"warnings,omitempty"`

	Layers     []LayerResult `json:"layers"`
	AuditTrail *AuditTrail   `json:"auditTrail,omitempty"`

	AnalyzedAt time.Time `json:"analyzedAt"`
}

// AllItems returns every extracted item attached to the analysis, summary
// included. Used by verification-invariant checks and persistence.
func (va *VerifiedAnalysis) AllItems() []ExtractedItem {
	items := make([]ExtractedItem, 0,
		1+len(va.Parties)+len(va.Dates)+len(va.Amounts)+
			len(va.KeyTerms)+len(va.Obligations)+len(va.Deadlines)+len(va.Keywords))
	items = append(items, va.Summary)
	for _, group := range [][]ExtractedItem{
		va.Parties, va.Dates, va.Amounts, va.KeyTerms,
		va.Obligations, va.Deadlines, va.Keywords,
	} {
		items = append(items, group...)
	}
	return items
}

package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sells-group/legal-analyzer/internal/model"
)

const extractionSystem = `You are a legal document analyst. Extract structured facts from the document you are given. Every extracted item must include the exact sentence or phrase from the document it came from as sourceText. Never invent facts that are not in the document. Respond with JSON only, no prose.`

func extractionPrompt() string {
	return `Extract the following from the document and respond with a single JSON object:

{
  "documentType": "contract|lease|complaint|settlement|general",
  "summary": "2-3 sentence summary of the document",
  "parties": [{"value": "party name", "sourceText": "exact quote", "confidenceScore": 0-100}],
  "dates": [{"value": "date as written", "sourceText": "exact quote", "confidenceScore": 0-100}],
  "amounts": [{"value": "monetary amount as written", "sourceText": "exact quote", "confidenceScore": 0-100}],
  "keyTerms": [{"value": "defined term or clause", "sourceText": "exact quote", "confidenceScore": 0-100}],
  "obligations": [{"value": "who must do what", "sourceText": "exact quote", "confidenceScore": 0-100}],
  "deadlines": [{"value": "deadline as written", "sourceText": "exact quote", "confidenceScore": 0-100}],
  "keywords": ["significant legal keywords found in the document"]
}

sourceText must be copied verbatim from the document. Omit categories that do not apply rather than guessing.`
}

const verificationSystem = `You are an independent reviewer checking another model's extraction against the original document. You did not produce the extraction. Be skeptical: flag anything not supported by the document, supply corrections with document evidence, and list anything important the extraction missed. Respond with JSON only.`

func verificationPrompt(extraction *model.ExtractionOutput) string {
	encoded, _ := json.MarshalIndent(extraction, "", "  ")

	var b strings.Builder
	b.WriteString("Here is an extraction produced from the document:\n\n")
	b.Write(encoded)
	b.WriteString(`

Verify every item against the document and respond with a single JSON object:

{
  "accuracyScore": 0-100,
  "flaggedItems": [{"itemType": "parties|dates|amounts|keyTerms|obligations|deadlines", "value": "the flagged value", "reason": "why it is not supported"}],
  "corrections": {"value to correct": {"correctedValue": "the correct value", "documentEvidence": "exact quote supporting the correction"}},
  "missedItems": [{"itemType": "category", "value": "the missed item", "sourceText": "exact quote"}]
}

accuracyScore reflects what fraction of the extraction is supported by the document. Only correct an item when the document contains clear evidence for the correction.`)
	return b.String()
}

const expertSystem = `You are a senior attorney reviewing an analysis of a legal document. Apply the review checklist for this document type, note anything the analysis missed, and correct anything misread. Respond with JSON only.`

func expertPrompt(docType model.DocumentType, checklist []string, extraction *model.ExtractionOutput) string {
	encoded, _ := json.MarshalIndent(extraction, "", "  ")

	var b strings.Builder
	fmt.Fprintf(&b, "Document type: %s\n\nReview checklist:\n", docType)
	for _, item := range checklist {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteString("\n")
	}
	b.WriteString("\nCurrent analysis:\n\n")
	b.Write(encoded)
	b.WriteString(`

Apply the checklist and respond with a single JSON object:

{
  "checklistApplied": "name of the checklist applied",
  "missingItems": ["checklist items the document addresses but the analysis missed"],
  "corrections": [{"fieldPath": "category.value", "originalValue": "current value", "correctedValue": "correct value", "reason": "why, citing the document"}],
  "notes": "observations a client should know about"
}`)
	return b.String()
}

const inspectionSystem = `You are a quality inspector for a document analysis pipeline. Judge whether a stage's output is well formed, internally consistent, and plausible for the document. Respond with JSON only.`

func inspectionPrompt(stage string, stageOutput any) string {
	encoded, _ := json.MarshalIndent(stageOutput, "", "  ")

	var b strings.Builder
	fmt.Fprintf(&b, "Inspect the output of the %s stage:\n\n", stage)
	b.Write(encoded)
	b.WriteString(`

Respond with a single JSON object:

{
  "qualityScore": 0-100,
  "issues": ["specific problems found, empty if none"],
  "passed": true|false
}`)
	return b.String()
}

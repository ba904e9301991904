package pipeline

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"

	"github.com/sells-group/legal-analyzer/internal/model"
)

// ParseError marks a model response that was not valid structured JSON even
// after best-effort extraction. The raw text is preserved on the stage's
// LayerResult, never dropped.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return "pipeline: parse model response: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsParseFailure reports whether the error chain contains a ParseError.
func IsParseFailure(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

var validate = validator.New()

// cleanJSON extracts a JSON object from text that may contain markdown code
// fences or prose wrapping.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}

// wireItem is the shape extraction models return for one item.
type wireItem struct {
	Value           any    `json:"value" validate:"required"`
	SourceText      string `json:"sourceText"`
	ConfidenceScore int    `json:"confidenceScore" validate:"min=0,max=100"`
}

// wireExtraction is the raw stage-1 response shape.
type wireExtraction struct {
	DocumentType string     `json:"documentType" validate:"omitempty,oneof=contract lease complaint settlement general"`
	Summary      string     `json:"summary"`
	Parties      []wireItem `json:"parties" validate:"dive"`
	Dates        []wireItem `json:"dates" validate:"dive"`
	Amounts      []wireItem `json:"amounts" validate:"dive"`
	KeyTerms     []wireItem `json:"keyTerms" validate:"dive"`
	Obligations  []wireItem `json:"obligations" validate:"dive"`
	Deadlines    []wireItem `json:"deadlines" validate:"dive"`
	Keywords     []string   `json:"keywords"`
}

// extractionKnownKeys are the wireExtraction fields; anything else the model
// returned is preserved in Extra.
var extractionKnownKeys = map[string]bool{
	"documentType": true, "summary": true, "parties": true, "dates": true,
	"amounts": true, "keyTerms": true, "obligations": true,
	"deadlines": true, "keywords": true,
}

func parseExtraction(raw string) (*model.ExtractionOutput, error) {
	cleaned := cleanJSON(raw)

	var wire wireExtraction
	if err := json.Unmarshal([]byte(cleaned), &wire); err != nil {
		return nil, &ParseError{Raw: raw, Err: eris.Wrap(err, "extraction json")}
	}
	if err := validate.Struct(&wire); err != nil {
		return nil, &ParseError{Raw: raw, Err: eris.Wrap(err, "extraction shape")}
	}

	out := &model.ExtractionOutput{
		DocumentType: model.DocumentType(wire.DocumentType),
		Summary:      wire.Summary,
		Parties:      itemsFromWire(wire.Parties),
		Dates:        itemsFromWire(wire.Dates),
		Amounts:      itemsFromWire(wire.Amounts),
		KeyTerms:     itemsFromWire(wire.KeyTerms),
		Obligations:  itemsFromWire(wire.Obligations),
		Deadlines:    itemsFromWire(wire.Deadlines),
		Keywords:     wire.Keywords,
	}
	if out.DocumentType == "" {
		out.DocumentType = model.DocTypeGeneral
	}

	// Preserve fields we do not model.
	var all map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &all); err == nil {
		for k, v := range all {
			if extractionKnownKeys[k] {
				continue
			}
			var val any
			if err := json.Unmarshal(v, &val); err == nil {
				if out.Extra == nil {
					out.Extra = make(map[string]any)
				}
				out.Extra[k] = val
			}
		}
	}

	return out, nil
}

func itemsFromWire(items []wireItem) []model.ExtractedItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]model.ExtractedItem, 0, len(items))
	for _, w := range items {
		score := w.ConfidenceScore
		if score == 0 {
			score = 80
		}
		out = append(out, model.ExtractedItem{
			Value:           w.Value,
			SourceText:      w.SourceText,
			ConfidenceScore: score,
		})
	}
	return out
}

// wireVerification is the raw stage-2 response shape.
type wireVerification struct {
	AccuracyScore int                          `json:"accuracyScore" validate:"min=0,max=100"`
	FlaggedItems  []model.FlaggedItem          `json:"flaggedItems" validate:"dive"`
	Corrections   map[string]model.Correction  `json:"corrections"`
	MissedItems   []model.MissedItem           `json:"missedItems" validate:"dive"`
}

func parseVerification(raw string) (*model.VerificationOutput, error) {
	cleaned := cleanJSON(raw)

	var wire wireVerification
	if err := json.Unmarshal([]byte(cleaned), &wire); err != nil {
		return nil, &ParseError{Raw: raw, Err: eris.Wrap(err, "verification json")}
	}
	if err := validate.Struct(&wire); err != nil {
		return nil, &ParseError{Raw: raw, Err: eris.Wrap(err, "verification shape")}
	}

	return &model.VerificationOutput{
		AccuracyScore: wire.AccuracyScore,
		FlaggedItems:  wire.FlaggedItems,
		Corrections:   wire.Corrections,
		MissedItems:   wire.MissedItems,
	}, nil
}

func parseExpert(raw string) (*model.ExpertOutput, error) {
	cleaned := cleanJSON(raw)

	var out model.ExpertOutput
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return nil, &ParseError{Raw: raw, Err: eris.Wrap(err, "expert json")}
	}
	return &out, nil
}

func parseInspection(raw, stage string) (*model.InspectionOutput, error) {
	cleaned := cleanJSON(raw)

	var out model.InspectionOutput
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return nil, &ParseError{Raw: raw, Err: eris.Wrap(err, "inspection json")}
	}
	if out.QualityScore < 0 || out.QualityScore > 100 {
		return nil, &ParseError{Raw: raw, Err: eris.Errorf("inspection quality score %d out of range", out.QualityScore)}
	}
	out.Stage = stage
	return &out, nil
}

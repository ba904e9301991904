// Package ocr turns legal document files into plain text for analysis.
// PDFs go through a configurable extractor (local pdftotext or the
// Mistral OCR API); plain-text documents are read as-is.
package ocr

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/legal-analyzer/internal/config"
)

// Extractor extracts text content from PDF files.
type Extractor interface {
	ExtractText(ctx context.Context, pdfPath string) (string, error)
}

// NewExtractor creates an Extractor based on config.
func NewExtractor(cfg config.OCRConfig) (Extractor, error) {
	switch cfg.Provider {
	case "local", "":
		return NewPdfToText(cfg.PdfToTextPath), nil
	case "mistral":
		if cfg.MistralKey == "" {
			return nil, eris.New("ocr: mistral provider requires ocr.mistral_key")
		}
		return NewMistralOCR(cfg.MistralKey, cfg.MistralModel), nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
}

// ReadDocument returns the text of the document at path. PDFs go through
// the extractor; .txt and .md files are read directly.
func ReadDocument(ctx context.Context, ex Extractor, path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return ex.ExtractText(ctx, path)
	case ".txt", ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", eris.Wrapf(err, "ocr: read document %s", path)
		}
		return string(data), nil
	default:
		return "", eris.Errorf("ocr: unsupported document type %q", filepath.Ext(path))
	}
}

package ocr

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/legal-analyzer/internal/config"
)

func TestNewExtractor_Local(t *testing.T) {
	ex, err := NewExtractor(config.OCRConfig{Provider: "local"})
	require.NoError(t, err)
	assert.IsType(t, &PdfToText{}, ex)
}

func TestNewExtractor_DefaultsToLocal(t *testing.T) {
	ex, err := NewExtractor(config.OCRConfig{})
	require.NoError(t, err)
	assert.IsType(t, &PdfToText{}, ex)
}

func TestNewExtractor_Mistral(t *testing.T) {
	ex, err := NewExtractor(config.OCRConfig{Provider: "mistral", MistralKey: "test-key"})
	require.NoError(t, err)
	assert.IsType(t, &MistralOCR{}, ex)
}

func TestNewExtractor_MistralRequiresKey(t *testing.T) {
	_, err := NewExtractor(config.OCRConfig{Provider: "mistral"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mistral_key")
}

func TestNewExtractor_UnknownProvider(t *testing.T) {
	_, err := NewExtractor(config.OCRConfig{Provider: "tesseract"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}

func TestReadDocument_PlainText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settlement.txt")
	require.NoError(t, os.WriteFile(path, []byte("Total settlement amount: $50,000"), 0644))

	text, err := ReadDocument(context.Background(), NewPdfToText(""), path)
	require.NoError(t, err)
	assert.Equal(t, "Total settlement amount: $50,000", text)
}

func TestReadDocument_Markdown(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lease.md")
	require.NoError(t, os.WriteFile(path, []byte("# Lease Agreement"), 0644))

	text, err := ReadDocument(context.Background(), NewPdfToText(""), path)
	require.NoError(t, err)
	assert.Equal(t, "# Lease Agreement", text)
}

func TestReadDocument_UnsupportedExtension(t *testing.T) {
	_, err := ReadDocument(context.Background(), NewPdfToText(""), "complaint.docx")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported document type")
}

func TestPdfToText_DefaultBinPath(t *testing.T) {
	p := NewPdfToText("")
	assert.Equal(t, "pdftotext", p.binPath)
}

func TestPdfToText_MissingBinary(t *testing.T) {
	p := NewPdfToText("/nonexistent/pdftotext")
	_, err := p.ExtractText(context.Background(), "doc.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pdftotext failed")
}

func TestMistralOCR_ExtractText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"pages":[{"index":0,"markdown":"Page one."},{"index":1,"markdown":"Page two."}]}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "scan.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 fake"), 0644))

	m := NewMistralOCR("test-key", "")
	m.endpoint = srv.URL

	text, err := m.ExtractText(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "Page one.\n\nPage two.", text)
}

func TestMistralOCR_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "scan.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 fake"), 0644))

	m := NewMistralOCR("test-key", "")
	m.endpoint = srv.URL

	_, err := m.ExtractText(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestMistralOCR_MissingFile(t *testing.T) {
	m := NewMistralOCR("test-key", "")
	_, err := m.ExtractText(context.Background(), "/nonexistent/scan.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read PDF")
}

func TestMistralOCR_DefaultModel(t *testing.T) {
	m := NewMistralOCR("k", "")
	assert.Equal(t, defaultMistralModel, m.model)
}

// Package store persists completed analyses and their audit trails. Two
// backends are provided: embedded SQLite for single-node deployments and
// Postgres for shared ones.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/legal-analyzer/internal/model"
)

// ErrNotFound is returned when no record exists for the requested analysis.
var ErrNotFound = eris.New("store: analysis not found")

// AnalysisSummary is one row of a listing, without the full payload.
type AnalysisSummary struct {
	AnalysisID             string             `json:"analysisId"`
	DocumentID             string             `json:"documentId"`
	Filename               string             `json:"filename"`
	DocumentType           model.DocumentType `json:"documentType"`
	OverallConfidenceScore int                `json:"overallConfidenceScore"`
	HallucinationsDetected int                `json:"hallucinationsDetected"`
	AnalyzedAt             time.Time          `json:"analyzedAt"`
}

// Store defines the persistence interface for verified analyses. Audit
// trails are stored separately from results so a failed run's trail survives
// even when no result was produced.
type Store interface {
	SaveAnalysis(ctx context.Context, analysisID string, a *model.VerifiedAnalysis) error
	GetAnalysis(ctx context.Context, analysisID string) (*model.VerifiedAnalysis, error)
	ListAnalyses(ctx context.Context, limit int) ([]AnalysisSummary, error)

	SaveAuditTrail(ctx context.Context, analysisID string, t *model.AuditTrail) error
	GetAuditTrail(ctx context.Context, analysisID string) (*model.AuditTrail, error)

	Migrate(ctx context.Context) error
	Close() error
}

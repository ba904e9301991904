package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/legal-analyzer/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS analyses (
	id             TEXT PRIMARY KEY,
	document_id    TEXT NOT NULL,
	filename       TEXT NOT NULL,
	document_type  TEXT NOT NULL,
	confidence     INTEGER NOT NULL,
	hallucinations INTEGER NOT NULL,
	payload        TEXT NOT NULL,
	analyzed_at    DATETIME NOT NULL,
	saved_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS audit_trails (
	analysis_id TEXT PRIMARY KEY,
	trail       TEXT NOT NULL,
	saved_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_analyses_document_id ON analyses(document_id);
CREATE INDEX IF NOT EXISTS idx_analyses_analyzed_at ON analyses(analyzed_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveAnalysis(ctx context.Context, analysisID string, a *model.VerifiedAnalysis) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal analysis")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO analyses (id, document_id, filename, document_type, confidence, hallucinations, payload, analyzed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			document_type = excluded.document_type,
			confidence = excluded.confidence,
			hallucinations = excluded.hallucinations,
			payload = excluded.payload,
			analyzed_at = excluded.analyzed_at`,
		analysisID, a.DocumentID, a.Filename, string(a.DocumentType),
		a.OverallConfidenceScore, a.HallucinationsDetected, string(payload), a.AnalyzedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: save analysis %s", analysisID)
}

func (s *SQLiteStore) GetAnalysis(ctx context.Context, analysisID string) (*model.VerifiedAnalysis, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM analyses WHERE id = ?`, analysisID,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "analysis %s", analysisID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get analysis %s", analysisID)
	}

	var a model.VerifiedAnalysis
	if err := json.Unmarshal([]byte(payload), &a); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal analysis")
	}
	return &a, nil
}

func (s *SQLiteStore) ListAnalyses(ctx context.Context, limit int) ([]AnalysisSummary, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, filename, document_type, confidence, hallucinations, analyzed_at
		 FROM analyses ORDER BY analyzed_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list analyses")
	}
	defer rows.Close()

	var out []AnalysisSummary
	for rows.Next() {
		var sum AnalysisSummary
		var docType string
		var analyzedAt time.Time
		if err := rows.Scan(&sum.AnalysisID, &sum.DocumentID, &sum.Filename, &docType,
			&sum.OverallConfidenceScore, &sum.HallucinationsDetected, &analyzedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan analysis summary")
		}
		sum.DocumentType = model.DocumentType(docType)
		sum.AnalyzedAt = analyzedAt
		out = append(out, sum)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list analyses iterate")
}

func (s *SQLiteStore) SaveAuditTrail(ctx context.Context, analysisID string, t *model.AuditTrail) error {
	trail, err := json.Marshal(t)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal audit trail")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_trails (analysis_id, trail) VALUES (?, ?)
		 ON CONFLICT(analysis_id) DO UPDATE SET trail = excluded.trail`,
		analysisID, string(trail),
	)
	return eris.Wrapf(err, "sqlite: save audit trail %s", analysisID)
}

func (s *SQLiteStore) GetAuditTrail(ctx context.Context, analysisID string) (*model.AuditTrail, error) {
	var trail string
	err := s.db.QueryRowContext(ctx,
		`SELECT trail FROM audit_trails WHERE analysis_id = ?`, analysisID,
	).Scan(&trail)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "audit trail %s", analysisID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get audit trail %s", analysisID)
	}

	var t model.AuditTrail
	if err := json.Unmarshal([]byte(trail), &t); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal audit trail")
	}
	return &t, nil
}

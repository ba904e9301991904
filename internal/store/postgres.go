package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/legal-analyzer/internal/db"
	"github.com/sells-group/legal-analyzer/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_analysis":    `SELECT payload FROM analyses WHERE id = $1`,
	"get_audit_trail": `SELECT trail FROM audit_trails WHERE analysis_id = $1`,
	"save_audit_trail": `INSERT INTO audit_trails (analysis_id, trail) VALUES ($1, $2)
		ON CONFLICT (analysis_id) DO UPDATE SET trail = EXCLUDED.trail`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// Pool returns the underlying database pool for subsystems that need direct
// query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS analyses (
	id             TEXT PRIMARY KEY,
	document_id    TEXT NOT NULL,
	filename       TEXT NOT NULL,
	document_type  TEXT NOT NULL,
	confidence     INTEGER NOT NULL,
	hallucinations INTEGER NOT NULL,
	payload        JSONB NOT NULL,
	analyzed_at    TIMESTAMPTZ NOT NULL,
	saved_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS audit_trails (
	analysis_id TEXT PRIMARY KEY,
	trail       JSONB NOT NULL,
	saved_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS audit_events (
	analysis_id TEXT NOT NULL,
	seq         INTEGER NOT NULL,
	event       JSONB NOT NULL,
	PRIMARY KEY (analysis_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_analyses_document_id ON analyses(document_id);
CREATE INDEX IF NOT EXISTS idx_analyses_analyzed_at ON analyses(analyzed_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveAnalysis(ctx context.Context, analysisID string, a *model.VerifiedAnalysis) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal analysis")
	}

	_, err = db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "analyses",
		Columns:      []string{"id", "document_id", "filename", "document_type", "confidence", "hallucinations", "payload", "analyzed_at"},
		ConflictKeys: []string{"id"},
	}, [][]any{{
		analysisID, a.DocumentID, a.Filename, string(a.DocumentType),
		a.OverallConfidenceScore, a.HallucinationsDetected, payload, a.AnalyzedAt.UTC(),
	}})
	return eris.Wrapf(err, "postgres: save analysis %s", analysisID)
}

func (s *PostgresStore) GetAnalysis(ctx context.Context, analysisID string) (*model.VerifiedAnalysis, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM analyses WHERE id = $1`, analysisID,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "analysis %s", analysisID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get analysis %s", analysisID)
	}

	var a model.VerifiedAnalysis
	if err := json.Unmarshal(payload, &a); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal analysis")
	}
	return &a, nil
}

func (s *PostgresStore) ListAnalyses(ctx context.Context, limit int) ([]AnalysisSummary, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, document_id, filename, document_type, confidence, hallucinations, analyzed_at
		 FROM analyses ORDER BY analyzed_at DESC LIMIT $1`, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list analyses")
	}
	defer rows.Close()

	var out []AnalysisSummary
	for rows.Next() {
		var sum AnalysisSummary
		var docType string
		if err := rows.Scan(&sum.AnalysisID, &sum.DocumentID, &sum.Filename, &docType,
			&sum.OverallConfidenceScore, &sum.HallucinationsDetected, &sum.AnalyzedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan analysis summary")
		}
		sum.DocumentType = model.DocumentType(docType)
		out = append(out, sum)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list analyses iterate")
}

// SaveAuditTrail stores the full trail document and bulk-copies the ordered
// events into audit_events for queryability.
func (s *PostgresStore) SaveAuditTrail(ctx context.Context, analysisID string, t *model.AuditTrail) error {
	trail, err := json.Marshal(t)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal audit trail")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO audit_trails (analysis_id, trail) VALUES ($1, $2)
		 ON CONFLICT (analysis_id) DO UPDATE SET trail = EXCLUDED.trail`,
		analysisID, trail,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save audit trail %s", analysisID)
	}

	if _, err := s.pool.Exec(ctx, `DELETE FROM audit_events WHERE analysis_id = $1`, analysisID); err != nil {
		return eris.Wrapf(err, "postgres: clear audit events %s", analysisID)
	}

	rows := make([][]any, 0, len(t.Events))
	for i, ev := range t.Events {
		event, err := json.Marshal(ev)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal audit event")
		}
		rows = append(rows, []any{analysisID, i, event})
	}
	_, err = db.CopyFrom(ctx, s.pool, "audit_events", []string{"analysis_id", "seq", "event"}, rows)
	return eris.Wrapf(err, "postgres: copy audit events %s", analysisID)
}

func (s *PostgresStore) GetAuditTrail(ctx context.Context, analysisID string) (*model.AuditTrail, error) {
	var trail []byte
	err := s.pool.QueryRow(ctx,
		`SELECT trail FROM audit_trails WHERE analysis_id = $1`, analysisID,
	).Scan(&trail)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "audit trail %s", analysisID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get audit trail %s", analysisID)
	}

	var t model.AuditTrail
	if err := json.Unmarshal(trail, &t); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal audit trail")
	}
	return &t, nil
}

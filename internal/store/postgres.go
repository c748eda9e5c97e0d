package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/email-analyzer/internal/db"
	"github.com/sells-group/email-analyzer/internal/model"
	"github.com/sells-group/email-analyzer/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

var _ Store = (*PostgresStore)(nil)

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"upsert_analysis": postgresUpsertAnalysis,
	"get_analysis":    `SELECT result FROM analyses WHERE message_id = $1`,
	"count_dlq":       `SELECT COUNT(*) FROM dead_letter_queue`,
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
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. The store does not close it.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS analyses (
	id           TEXT NOT NULL,
	message_id   TEXT PRIMARY KEY,
	final_phase  SMALLINT NOT NULL,
	priority     TEXT NOT NULL,
	degraded     BOOLEAN NOT NULL DEFAULT false,
	decision     TEXT NOT NULL,
	cost_usd     DOUBLE PRECISION NOT NULL DEFAULT 0,
	result       JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_analyses_created_at ON analyses(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_analyses_priority ON analyses(priority);

CREATE TABLE IF NOT EXISTS quality_records (
	id                TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	message_id        TEXT NOT NULL,
	phase             SMALLINT NOT NULL,
	model             TEXT NOT NULL,
	response_length   INTEGER NOT NULL,
	score             DOUBLE PRECISION NOT NULL,
	provenance        TEXT NOT NULL,
	used_fallback     BOOLEAN NOT NULL,
	extraction_failed BOOLEAN NOT NULL,
	transport_error   TEXT NOT NULL DEFAULT '',
	elapsed_ms        BIGINT NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_quality_records_message_id ON quality_records(message_id);
CREATE INDEX IF NOT EXISTS idx_quality_records_created_at ON quality_records(created_at DESC);

CREATE TABLE IF NOT EXISTS dead_letter_queue (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	message_id     TEXT NOT NULL UNIQUE,
	message        JSONB NOT NULL,
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL DEFAULT 'transient',
	failed_phase   SMALLINT NOT NULL,
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  TIMESTAMPTZ NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_failed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_dlq_error_type ON dead_letter_queue(error_type);
CREATE INDEX IF NOT EXISTS idx_dlq_next_retry ON dead_letter_queue(next_retry_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// analysisColumns is the column order of analysisRow values.
var analysisColumns = []string{
	"id", "message_id", "final_phase", "priority", "degraded", "decision",
	"cost_usd", "result", "created_at", "completed_at",
}

const postgresUpsertAnalysis = `INSERT INTO analyses
	(id, message_id, final_phase, priority, degraded, decision, cost_usd, result, created_at, completed_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (message_id) DO UPDATE SET
	  id = EXCLUDED.id, final_phase = EXCLUDED.final_phase, priority = EXCLUDED.priority,
	  degraded = EXCLUDED.degraded, decision = EXCLUDED.decision, cost_usd = EXCLUDED.cost_usd,
	  result = EXCLUDED.result, created_at = EXCLUDED.created_at, completed_at = EXCLUDED.completed_at`

func (r analysisRow) values() []any {
	return []any{
		r.id, r.messageID, r.finalPhase, r.priority, r.degraded, r.decision,
		r.costUSD, r.result, r.createdAt, r.completedAt,
	}
}

func (s *PostgresStore) SaveAnalysis(ctx context.Context, a *model.Analysis) error {
	row, err := toRow(a)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, postgresUpsertAnalysis, row.values()...)
	return eris.Wrapf(err, "postgres: save analysis %s", a.MessageID)
}

// SaveAnalyses upserts a batch through COPY into a temp table. A message id
// repeated in the batch keeps its last analysis.
func (s *PostgresStore) SaveAnalyses(ctx context.Context, as []*model.Analysis) error {
	rows := make([][]any, 0, len(as))
	for _, a := range as {
		row, err := toRow(a)
		if err != nil {
			return err
		}
		rows = append(rows, row.values())
	}
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "analyses",
		Columns:      analysisColumns,
		ConflictKeys: []string{"message_id"},
	}, rows)
	return eris.Wrap(err, "postgres: save analyses")
}

func (s *PostgresStore) GetAnalysis(ctx context.Context, messageID string) (*model.Analysis, error) {
	var result []byte
	err := s.pool.QueryRow(ctx, `SELECT result FROM analyses WHERE message_id = $1`, messageID).Scan(&result)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: analysis %s", messageID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get analysis %s", messageID)
	}
	return decodeAnalysis(result)
}

func (s *PostgresStore) ListAnalyses(ctx context.Context, filter AnalysisFilter) ([]model.Analysis, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.Priority != "" {
		where = append(where, "priority = "+arg(string(filter.Priority)))
	}
	if filter.FinalPhase != 0 {
		where = append(where, "final_phase = "+arg(int(filter.FinalPhase)))
	}
	if filter.DegradedOnly {
		where = append(where, "degraded")
	}
	if !filter.Since.IsZero() {
		where = append(where, "created_at >= "+arg(filter.Since))
	}

	query := `SELECT result FROM analyses`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, message_id ASC LIMIT ` + arg(listLimit(filter.Limit)) + ` OFFSET ` + arg(filter.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list analyses")
	}
	defer rows.Close()

	out := []model.Analysis{}
	for rows.Next() {
		var result []byte
		if err := rows.Scan(&result); err != nil {
			return nil, eris.Wrap(err, "postgres: scan analysis")
		}
		a, err := decodeAnalysis(result)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list analyses iterate")
}

var qualityColumns = []string{
	"id", "message_id", "phase", "model", "response_length", "score", "provenance",
	"used_fallback", "extraction_failed", "transport_error", "elapsed_ms", "created_at",
}

// SaveQualityRecords appends records with COPY.
func (s *PostgresStore) SaveQualityRecords(ctx context.Context, recs []model.QualityRecord) error {
	rows := make([][]any, 0, len(recs))
	for _, r := range recs {
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		rows = append(rows, []any{
			r.ID, r.MessageID, int16(r.Phase), r.Model, int32(r.ResponseLength), r.Score, string(r.Provenance),
			r.UsedFallback, r.ExtractionFailed, r.TransportError, r.Elapsed.Milliseconds(), r.CreatedAt.UTC(),
		})
	}
	_, err := db.CopyFrom(ctx, s.pool, "quality_records", qualityColumns, rows)
	return eris.Wrap(err, "postgres: save quality records")
}

func (s *PostgresStore) ListQualityRecords(ctx context.Context, filter QualityFilter) ([]model.QualityRecord, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.MessageID != "" {
		where = append(where, "message_id = "+arg(filter.MessageID))
	}
	if filter.Phase != 0 {
		where = append(where, "phase = "+arg(int(filter.Phase)))
	}
	if !filter.Since.IsZero() {
		where = append(where, "created_at >= "+arg(filter.Since))
	}

	query := `SELECT ` + strings.Join(qualityColumns, ", ") + ` FROM quality_records`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC LIMIT ` + arg(listLimit(filter.Limit))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list quality records")
	}
	defer rows.Close()

	out := []model.QualityRecord{}
	for rows.Next() {
		var r model.QualityRecord
		var phase int16
		var length int32
		var provenance string
		var elapsedMs int64
		if err := rows.Scan(&r.ID, &r.MessageID, &phase, &r.Model, &length, &r.Score, &provenance,
			&r.UsedFallback, &r.ExtractionFailed, &r.TransportError, &elapsedMs, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan quality record")
		}
		r.Phase = model.Phase(phase)
		r.ResponseLength = int(length)
		r.Provenance = model.Provenance(provenance)
		r.Elapsed = time.Duration(elapsedMs) * time.Millisecond
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list quality records iterate")
}

// Dead letter queue methods

func (s *PostgresStore) EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error {
	msgJSON, err := json.Marshal(entry.Message)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal dlq message")
	}

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO dead_letter_queue
		 (id, message_id, message, error, error_type, failed_phase, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (message_id) DO UPDATE SET
		   message = $3, error = $4, error_type = $5, failed_phase = $6,
		   next_retry_at = $9, last_failed_at = $11`,
		entry.ID, entry.Message.ID, msgJSON, entry.Error, entry.ErrorType,
		int16(entry.FailedPhase), entry.RetryCount, entry.MaxRetries,
		entry.NextRetryAt, entry.CreatedAt, entry.LastFailedAt,
	)
	return eris.Wrap(err, "postgres: enqueue dlq")
}

func (s *PostgresStore) ListDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT id, message, error, error_type, failed_phase, retry_count, max_retries, next_retry_at, created_at, last_failed_at
	          FROM dead_letter_queue WHERE true`
	args := []any{}
	argIdx := 1

	if filter.ErrorType != "" {
		query += fmt.Sprintf(` AND error_type = $%d`, argIdx)
		args = append(args, filter.ErrorType)
		argIdx++
	}
	if !filter.DueBefore.IsZero() {
		query += fmt.Sprintf(` AND next_retry_at <= $%d AND retry_count < max_retries`, argIdx)
		args = append(args, filter.DueBefore)
		argIdx++
	}

	query += ` ORDER BY next_retry_at ASC, id ASC`
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list dlq")
	}
	defer rows.Close()

	entries := []resilience.DLQEntry{}
	for rows.Next() {
		var e resilience.DLQEntry
		var msgJSON []byte
		var phase int16
		if err := rows.Scan(&e.ID, &msgJSON, &e.Error, &e.ErrorType,
			&phase, &e.RetryCount, &e.MaxRetries,
			&e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan dlq entry")
		}
		e.FailedPhase = model.Phase(phase)
		if err := json.Unmarshal(msgJSON, &e.Message); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal dlq message")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list dlq iterate")
}

func (s *PostgresStore) IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE dead_letter_queue
		 SET retry_count = retry_count + 1, next_retry_at = $1, error = $2, last_failed_at = now()
		 WHERE id = $3`,
		nextRetryAt, lastErr, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: increment dlq retry %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: dlq entry %s", id)
	}
	return nil
}

func (s *PostgresStore) RemoveDLQ(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM dead_letter_queue WHERE id = $1`, id)
	return eris.Wrap(err, "postgres: remove dlq")
}

func (s *PostgresStore) CountDLQ(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM dead_letter_queue`).Scan(&count)
	return count, eris.Wrap(err, "postgres: count dlq")
}

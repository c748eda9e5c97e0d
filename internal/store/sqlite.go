package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/email-analyzer/internal/model"
	"github.com/sells-group/email-analyzer/internal/resilience"
)

// sqliteTimeLayout is fixed-width UTC so stored timestamps compare
// correctly as text.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

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
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS analyses (
	id           TEXT NOT NULL,
	message_id   TEXT PRIMARY KEY,
	final_phase  INTEGER NOT NULL,
	priority     TEXT NOT NULL,
	degraded     INTEGER NOT NULL DEFAULT 0,
	decision     TEXT NOT NULL,
	cost_usd     REAL NOT NULL DEFAULT 0,
	result       TEXT NOT NULL,
	created_at   TEXT NOT NULL,
	completed_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analyses_created_at ON analyses(created_at);
CREATE INDEX IF NOT EXISTS idx_analyses_priority ON analyses(priority);

CREATE TABLE IF NOT EXISTS quality_records (
	id                TEXT PRIMARY KEY,
	message_id        TEXT NOT NULL,
	phase             INTEGER NOT NULL,
	model             TEXT NOT NULL,
	response_length   INTEGER NOT NULL,
	score             REAL NOT NULL,
	provenance        TEXT NOT NULL,
	used_fallback     INTEGER NOT NULL,
	extraction_failed INTEGER NOT NULL,
	transport_error   TEXT NOT NULL DEFAULT '',
	elapsed_ms        INTEGER NOT NULL,
	created_at        TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_quality_records_message_id ON quality_records(message_id);
CREATE INDEX IF NOT EXISTS idx_quality_records_created_at ON quality_records(created_at);

CREATE TABLE IF NOT EXISTS dead_letter_queue (
	id             TEXT PRIMARY KEY,
	message_id     TEXT NOT NULL UNIQUE,
	message        TEXT NOT NULL,
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL DEFAULT 'transient',
	failed_phase   INTEGER NOT NULL,
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  TEXT NOT NULL,
	created_at     TEXT NOT NULL,
	last_failed_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_dlq_next_retry ON dead_letter_queue(next_retry_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteUpsertAnalysis = `INSERT INTO analyses
	(id, message_id, final_phase, priority, degraded, decision, cost_usd, result, created_at, completed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (message_id) DO UPDATE SET
	  id = excluded.id, final_phase = excluded.final_phase, priority = excluded.priority,
	  degraded = excluded.degraded, decision = excluded.decision, cost_usd = excluded.cost_usd,
	  result = excluded.result, created_at = excluded.created_at, completed_at = excluded.completed_at`

func (s *SQLiteStore) SaveAnalysis(ctx context.Context, a *model.Analysis) error {
	return s.SaveAnalyses(ctx, []*model.Analysis{a})
}

func (s *SQLiteStore) SaveAnalyses(ctx context.Context, as []*model.Analysis) error {
	if len(as) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save analyses")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, sqliteUpsertAnalysis)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare save analysis")
	}
	defer stmt.Close() //nolint:errcheck

	for _, a := range as {
		row, err := toRow(a)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			row.id, row.messageID, row.finalPhase, row.priority, row.degraded, row.decision,
			row.costUSD, string(row.result), sqliteTime(row.createdAt), sqliteTime(row.completedAt),
		); err != nil {
			return eris.Wrapf(err, "sqlite: save analysis %s", row.messageID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit save analyses")
}

func (s *SQLiteStore) GetAnalysis(ctx context.Context, messageID string) (*model.Analysis, error) {
	var result string
	err := s.db.QueryRowContext(ctx, `SELECT result FROM analyses WHERE message_id = ?`, messageID).Scan(&result)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: analysis %s", messageID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get analysis %s", messageID)
	}
	return decodeAnalysis([]byte(result))
}

func (s *SQLiteStore) ListAnalyses(ctx context.Context, filter AnalysisFilter) ([]model.Analysis, error) {
	var where []string
	var args []any
	if filter.Priority != "" {
		where = append(where, "priority = ?")
		args = append(args, string(filter.Priority))
	}
	if filter.FinalPhase != 0 {
		where = append(where, "final_phase = ?")
		args = append(args, int(filter.FinalPhase))
	}
	if filter.DegradedOnly {
		where = append(where, "degraded = 1")
	}
	if !filter.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, sqliteTime(filter.Since))
	}

	query := `SELECT result FROM analyses`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, message_id ASC LIMIT ? OFFSET ?`
	args = append(args, listLimit(filter.Limit), filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list analyses")
	}
	defer rows.Close() //nolint:errcheck

	out := []model.Analysis{}
	for rows.Next() {
		var result string
		if err := rows.Scan(&result); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan analysis")
		}
		a, err := decodeAnalysis([]byte(result))
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list analyses iterate")
}

func (s *SQLiteStore) SaveQualityRecords(ctx context.Context, recs []model.QualityRecord) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save quality records")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, r := range recs {
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO quality_records
			 (id, message_id, phase, model, response_length, score, provenance, used_fallback,
			  extraction_failed, transport_error, elapsed_ms, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.MessageID, int(r.Phase), r.Model, r.ResponseLength, r.Score, string(r.Provenance),
			r.UsedFallback, r.ExtractionFailed, r.TransportError, r.Elapsed.Milliseconds(), sqliteTime(r.CreatedAt),
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert quality record %s", r.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit quality records")
}

func (s *SQLiteStore) ListQualityRecords(ctx context.Context, filter QualityFilter) ([]model.QualityRecord, error) {
	var where []string
	var args []any
	if filter.MessageID != "" {
		where = append(where, "message_id = ?")
		args = append(args, filter.MessageID)
	}
	if filter.Phase != 0 {
		where = append(where, "phase = ?")
		args = append(args, int(filter.Phase))
	}
	if !filter.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, sqliteTime(filter.Since))
	}

	query := `SELECT id, message_id, phase, model, response_length, score, provenance, used_fallback,
	          extraction_failed, transport_error, elapsed_ms, created_at FROM quality_records`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list quality records")
	}
	defer rows.Close() //nolint:errcheck

	out := []model.QualityRecord{}
	for rows.Next() {
		var r model.QualityRecord
		var phase int
		var provenance, createdAt string
		var elapsedMs int64
		if err := rows.Scan(&r.ID, &r.MessageID, &phase, &r.Model, &r.ResponseLength, &r.Score,
			&provenance, &r.UsedFallback, &r.ExtractionFailed, &r.TransportError, &elapsedMs, &createdAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan quality record")
		}
		r.Phase = model.Phase(phase)
		r.Provenance = model.Provenance(provenance)
		r.Elapsed = time.Duration(elapsedMs) * time.Millisecond
		if r.CreatedAt, err = parseSQLiteTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list quality records iterate")
}

func (s *SQLiteStore) EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error {
	msgJSON, err := json.Marshal(entry.Message)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal dlq message")
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO dead_letter_queue
		 (id, message_id, message, error, error_type, failed_phase, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (message_id) DO UPDATE SET
		   message = excluded.message, error = excluded.error, error_type = excluded.error_type,
		   failed_phase = excluded.failed_phase, next_retry_at = excluded.next_retry_at,
		   last_failed_at = excluded.last_failed_at`,
		entry.ID, entry.Message.ID, string(msgJSON), entry.Error, entry.ErrorType, int(entry.FailedPhase),
		entry.RetryCount, entry.MaxRetries, sqliteTime(entry.NextRetryAt), sqliteTime(entry.CreatedAt),
		sqliteTime(entry.LastFailedAt),
	)
	return eris.Wrap(err, "sqlite: enqueue dlq")
}

func (s *SQLiteStore) ListDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	var where []string
	var args []any
	if filter.ErrorType != "" {
		where = append(where, "error_type = ?")
		args = append(args, filter.ErrorType)
	}
	if !filter.DueBefore.IsZero() {
		where = append(where, "next_retry_at <= ? AND retry_count < max_retries")
		args = append(args, sqliteTime(filter.DueBefore))
	}

	query := `SELECT id, message, error, error_type, failed_phase, retry_count, max_retries,
	          next_retry_at, created_at, last_failed_at FROM dead_letter_queue`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += ` ORDER BY next_retry_at ASC, id ASC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list dlq")
	}
	defer rows.Close() //nolint:errcheck

	out := []resilience.DLQEntry{}
	for rows.Next() {
		var e resilience.DLQEntry
		var msgJSON, nextRetry, created, lastFailed string
		var phase int
		if err := rows.Scan(&e.ID, &msgJSON, &e.Error, &e.ErrorType, &phase, &e.RetryCount,
			&e.MaxRetries, &nextRetry, &created, &lastFailed); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan dlq entry")
		}
		e.FailedPhase = model.Phase(phase)
		if err := json.Unmarshal([]byte(msgJSON), &e.Message); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal dlq message")
		}
		if e.NextRetryAt, err = parseSQLiteTime(nextRetry); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = parseSQLiteTime(created); err != nil {
			return nil, err
		}
		if e.LastFailedAt, err = parseSQLiteTime(lastFailed); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list dlq iterate")
}

func (s *SQLiteStore) IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE dead_letter_queue
		 SET retry_count = retry_count + 1, next_retry_at = ?, error = ?, last_failed_at = ?
		 WHERE id = ?`,
		sqliteTime(nextRetryAt), lastErr, sqliteTime(time.Now()), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: increment dlq retry %s", id)
	}
	return checkRowsAffected(res, "dlq entry", id)
}

func (s *SQLiteStore) RemoveDLQ(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM dead_letter_queue WHERE id = ?`, id)
	return eris.Wrap(err, "sqlite: remove dlq")
}

func (s *SQLiteStore) CountDLQ(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dead_letter_queue`).Scan(&count)
	return count, eris.Wrap(err, "sqlite: count dlq")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: %s %s", entity, id)
	}
	return nil
}

func sqliteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseSQLiteTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeLayout, s)
	return t, eris.Wrapf(err, "sqlite: parse time %q", s)
}

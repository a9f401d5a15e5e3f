package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"cordflow/internal/pipeline"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Batch is one recorded batch invocation.
type Batch struct {
	ID                    string
	StartedAt             time.Time
	FinishedAt            *time.Time
	Subjects              int
	Jobs                  int
	Succeeded             int
	Failed                int
	Aborted               int
	PostconditionsMissing int
	Cancelled             bool
	ErrorLog              string
}

// Run is one recorded subject pipeline run.
type Run struct {
	BatchID         string
	Subject         string
	Status          pipeline.Status
	CompletedStages int
	FailedStage     string
	ErrorKind       string
	Reason          string
	ManualArtifacts int
	Missing         []string
	StartedAt       *time.Time
	FinishedAt      *time.Time
}

// Store persists batch history in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the ledger database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to reset history)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// BeginBatch records the start of a batch.
func (s *Store) BeginBatch(ctx context.Context, id string, subjects, jobs int, errorLog string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO batches (id, started_at, subjects, jobs, error_log) VALUES (?, ?, ?, ?, ?)`,
		id, formatTime(time.Now()), subjects, jobs, nullableString(errorLog),
	)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

// RecordRun stores or replaces a subject run.
func (s *Store) RecordRun(ctx context.Context, batchID string, run *pipeline.Run) error {
	manual := 0
	for _, stage := range run.Stages {
		manual += stage.Manual
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (
            batch_id, subject, status, completed_stages, failed_stage, error_kind, reason,
            manual_artifacts, missing, started_at, finished_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		batchID,
		run.Subject,
		string(run.Status),
		run.CompletedStageCount(),
		nullableString(run.FailedStage),
		nullableString(run.Kind),
		nullableString(run.Reason),
		manual,
		nullableString(strings.Join(run.Missing, "\n")),
		nullableTime(run.Started),
		nullableTime(run.Finished),
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", run.Subject, err)
	}
	return nil
}

// FinishBatch stores the final counts.
func (s *Store) FinishBatch(ctx context.Context, id string, succeeded, failed, aborted, missing int, cancelled bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE batches SET finished_at = ?, succeeded = ?, failed = ?, aborted = ?,
            postconditions_missing = ?, cancelled = ? WHERE id = ?`,
		formatTime(time.Now()), succeeded, failed, aborted, missing, boolToInt(cancelled), id,
	)
	if err != nil {
		return fmt.Errorf("finish batch: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish batch: %s not found", id)
	}
	return nil
}

const batchColumns = `id, started_at, finished_at, subjects, jobs, succeeded, failed, aborted,
    postconditions_missing, cancelled, error_log`

// LatestBatch returns the most recently started batch, or nil.
func (s *Store) LatestBatch(ctx context.Context) (*Batch, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM batches ORDER BY started_at DESC, rowid DESC LIMIT 1`)
	return scanBatchRow(row)
}

// Batch returns the batch with id, or nil.
func (s *Store) Batch(ctx context.Context, id string) (*Batch, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM batches WHERE id = ?`, id)
	return scanBatchRow(row)
}

// Batches lists the most recent batches, newest first.
func (s *Store) Batches(ctx context.Context, limit int) ([]Batch, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+batchColumns+` FROM batches ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()
	var out []Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// Runs lists the runs of a batch ordered by subject.
func (s *Store) Runs(ctx context.Context, batchID string) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT batch_id, subject, status, completed_stages, failed_stage, error_kind, reason,
            manual_artifacts, missing, started_at, finished_at
         FROM runs WHERE batch_id = ? ORDER BY subject`, batchID)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r                                  Run
			status                             string
			failedStage, kind, reason, missing sql.NullString
			startedAt, finishedAt              sql.NullString
		)
		if err := rows.Scan(&r.BatchID, &r.Subject, &status, &r.CompletedStages, &failedStage, &kind, &reason,
			&r.ManualArtifacts, &missing, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Status = pipeline.Status(status)
		r.FailedStage = failedStage.String
		r.ErrorKind = kind.String
		r.Reason = reason.String
		if missing.String != "" {
			r.Missing = strings.Split(missing.String, "\n")
		}
		r.StartedAt = parseNullTime(startedAt)
		r.FinishedAt = parseNullTime(finishedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// SubjectHistory lists every recorded run of subject, newest first.
func (s *Store) SubjectHistory(ctx context.Context, subject string) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.batch_id FROM runs r JOIN batches b ON b.id = r.batch_id
         WHERE r.subject = ? ORDER BY b.started_at DESC, b.rowid DESC`, subject)
	if err != nil {
		return nil, fmt.Errorf("subject history: %w", err)
	}
	var batchIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		batchIDs = append(batchIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []Run
	for _, id := range batchIDs {
		runs, err := s.Runs(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, r := range runs {
			if r.Subject == subject {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

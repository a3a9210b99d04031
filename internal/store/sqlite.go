package store

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

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/dshills/docreview/internal/review"
)

//go:embed migrations/001_initial_schema.sql
var migrationV1 string

// SQLite is a Store backed by a SQLite database file. Writes go through a
// single connection; reads use a separate read-only pool.
type SQLite struct {
	path   string
	db     *sql.DB
	readDB *sql.DB

	maxRetries    int
	baseRetryWait time.Duration
}

// NewSQLite opens (creating if needed) the database at path and applies
// pending migrations.
func NewSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening write database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLite{
		path:          path,
		db:            db,
		maxRetries:    5,
		baseRetryWait: 50 * time.Millisecond,
	}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	readDB, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(1000)&mode=ro")
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("opening read database: %w", err)
	}
	readDB.SetMaxOpenConns(8)
	readDB.SetConnMaxLifetime(5 * time.Minute)
	s.readDB = readDB

	return s, nil
}

// Path returns the database file.
func (s *SQLite) Path() string { return s.path }

func (s *SQLite) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("checking schema version: %w", err)
	}

	for i, migration := range []string{migrationV1} {
		version := i + 1
		if version <= current {
			continue
		}
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration v%d: %w", version, err)
		}
		for _, stmt := range splitStatements(migration) {
			if _, err := tx.Exec(stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("executing migration v%d: %w", version, err)
			}
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
			version, formatTime(time.Now()),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("recording migration v%d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration v%d: %w", version, err)
		}
	}
	return nil
}

// splitStatements splits a script on semicolons and drops comment lines.
func splitStatements(script string) []string {
	var out []string
	for _, stmt := range strings.Split(script, ";") {
		var lines []string
		for _, line := range strings.Split(stmt, "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed != "" && !strings.HasPrefix(trimmed, "--") {
				lines = append(lines, line)
			}
		}
		if len(lines) > 0 {
			out = append(out, strings.Join(lines, "\n"))
		}
	}
	return out
}

// retryWrite retries fn while the database reports it is busy.
func (s *SQLite) retryWrite(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !isBusy(err) {
			return fmt.Errorf("%s: %w", op, err)
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.baseRetryWait * time.Duration(1<<attempt)):
		}
	}
	return fmt.Errorf("%s failed after %d retries: %w", op, s.maxRetries, lastErr)
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "SQLITE_LOCKED")
}

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func (s *SQLite) SaveDocumentCache(ctx context.Context, runID string, doc review.Document) (string, error) {
	id := uuid.NewString()
	err := s.retryWrite(ctx, "saving document cache", func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO document_caches (id, run_id, document_id, name, kind, content, pages, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, runID, doc.ID, doc.Name, documentKind(doc), doc.Text, len(doc.Images), formatTime(time.Now()),
		)
		return err
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *SQLite) SavePartialResult(ctx context.Context, rec review.PartialRecord) error {
	return s.retryWrite(ctx, "saving partial result", func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO partial_results (run_id, cache_id, checklist_id, evaluation, comment, total_chunks, chunk_index, part_label)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.RunID, rec.CacheID, rec.ChecklistID, rec.Evaluation, rec.Comment, rec.TotalChunks, rec.ChunkIndex, rec.PartLabel,
		)
		return err
	})
}

func (s *SQLite) SaveFinalResult(ctx context.Context, rec review.FinalRecord) error {
	return s.retryWrite(ctx, "saving final result", func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO final_results (run_id, checklist_id, evaluation, comment)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(run_id, checklist_id) DO UPDATE SET
				evaluation = excluded.evaluation,
				comment = excluded.comment`,
			rec.RunID, rec.ChecklistID, string(rec.Evaluation), rec.Comment,
		)
		return err
	})
}

func (s *SQLite) CreateRun(ctx context.Context, run Run) error {
	if run.Status == "" {
		run.Status = StatusRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	return s.retryWrite(ctx, "creating run", func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO runs (id, status, mode, provider, model, documents, items, error, started_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, string(run.Status), run.Mode, run.Provider, run.Model, run.Documents, run.Items, run.Error, formatTime(run.StartedAt),
		)
		return err
	})
}

func (s *SQLite) FinishRun(ctx context.Context, id string, status RunStatus, errMsg string) error {
	var affected int64
	err := s.retryWrite(ctx, "finishing run", func() error {
		res, err := s.db.ExecContext(ctx,
			"UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?",
			string(status), errMsg, formatTime(time.Now()), id,
		)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

const runColumns = "id, status, mode, provider, model, documents, items, error, started_at, finished_at"

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run       Run
		status    string
		startedAt string
		finished  sql.NullString
	)
	if err := row.Scan(&run.ID, &status, &run.Mode, &run.Provider, &run.Model,
		&run.Documents, &run.Items, &run.Error, &startedAt, &finished); err != nil {
		return Run{}, err
	}
	run.Status = RunStatus(status)
	run.StartedAt = parseTime(startedAt)
	if finished.Valid {
		t := parseTime(finished.String)
		run.FinishedAt = &t
	}
	return run, nil
}

func (s *SQLite) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.readDB.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("scanning run: %w", err)
	}
	return run, nil
}

func (s *SQLite) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := "SELECT " + runColumns + " FROM runs ORDER BY started_at DESC, id"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *SQLite) PartialResults(ctx context.Context, runID string) ([]review.PartialRecord, error) {
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT run_id, cache_id, checklist_id, evaluation, comment, total_chunks, chunk_index, part_label
		FROM partial_results WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying partial results: %w", err)
	}
	defer rows.Close()

	var out []review.PartialRecord
	for rows.Next() {
		var rec review.PartialRecord
		if err := rows.Scan(&rec.RunID, &rec.CacheID, &rec.ChecklistID, &rec.Evaluation,
			&rec.Comment, &rec.TotalChunks, &rec.ChunkIndex, &rec.PartLabel); err != nil {
			return nil, fmt.Errorf("scanning partial result: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLite) FinalResults(ctx context.Context, runID string) ([]review.FinalRecord, error) {
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT run_id, checklist_id, evaluation, comment
		FROM final_results WHERE run_id = ? ORDER BY checklist_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying final results: %w", err)
	}
	defer rows.Close()

	var out []review.FinalRecord
	for rows.Next() {
		var (
			rec  review.FinalRecord
			eval string
		)
		if err := rows.Scan(&rec.RunID, &rec.ChecklistID, &eval, &rec.Comment); err != nil {
			return nil, fmt.Errorf("scanning final result: %w", err)
		}
		rec.Evaluation = review.Evaluation(eval)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes both connections.
func (s *SQLite) Close() error {
	var errs []error
	if s.readDB != nil {
		errs = append(errs, s.readDB.Close())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	return errors.Join(errs...)
}

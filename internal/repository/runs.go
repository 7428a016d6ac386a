package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/docextract/internal/common"
)

// Run is one processed document.
type Run struct {
	ID         string
	Source     string
	SourceType string // constants.PDF | constants.IMAGE
	Status     string // constants.RunStatus
	PageCount  int
	StartedAt  time.Time
	FinishedAt *time.Time
}

// PageRecord is the ledger row for one page outcome.
type PageRecord struct {
	RunID         string
	Page          int
	Status        string // constants.PageStatus
	OutputPath    string
	Error         string
	Retryable     bool
	WordCount     int
	AvgConfidence float64
	DurationMS    int64
	CreatedAt     time.Time
}

type RunRepository interface {
	StartRun(ctx context.Context, run Run) error
	RecordPage(ctx context.Context, rec PageRecord) error
	FinishRun(ctx context.Context, runID, status string, pageCount int) error
	GetRun(ctx context.Context, runID string) (Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	ListOutcomes(ctx context.Context, runID string) ([]PageRecord, error)
}

type runRepo struct {
	db  *DB
	log *slog.Logger
}

func NewRunRepository(db *DB, log *slog.Logger) RunRepository {
	if log == nil {
		log = slog.Default()
	}
	return &runRepo{db: db, log: log}
}

func (r *runRepo) StartRun(ctx context.Context, run Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	_, err := r.db.SQL.ExecContext(ctx, r.db.rebind(
		`INSERT INTO runs (id, source, source_type, status, page_count, started_at) VALUES (?, ?, ?, ?, ?, ?)`),
		run.ID, run.Source, run.SourceType, run.Status, run.PageCount, run.StartedAt.UTC(),
	)
	if err != nil {
		r.log.Error("ledger.run.start_failed", "run_id", run.ID, "error", err)
		return fmt.Errorf("%w: start run: %w", common.ErrDatabase, err)
	}
	r.log.Debug("ledger.run.started", "run_id", run.ID, "source", run.Source)
	return nil
}

func (r *runRepo) RecordPage(ctx context.Context, rec PageRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := r.db.SQL.ExecContext(ctx, r.db.rebind(
		`INSERT INTO page_outcomes
			(run_id, page, status, output_path, error, retryable, word_count, avg_confidence, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, page) DO UPDATE SET
			status = excluded.status,
			output_path = excluded.output_path,
			error = excluded.error,
			retryable = excluded.retryable,
			word_count = excluded.word_count,
			avg_confidence = excluded.avg_confidence,
			duration_ms = excluded.duration_ms,
			created_at = excluded.created_at`),
		rec.RunID, rec.Page, rec.Status, rec.OutputPath, rec.Error, rec.Retryable,
		rec.WordCount, rec.AvgConfidence, rec.DurationMS, rec.CreatedAt.UTC(),
	)
	if err != nil {
		r.log.Error("ledger.page.record_failed", "run_id", rec.RunID, "page", rec.Page, "error", err)
		return fmt.Errorf("%w: record page: %w", common.ErrDatabase, err)
	}
	return nil
}

func (r *runRepo) FinishRun(ctx context.Context, runID, status string, pageCount int) error {
	res, err := r.db.SQL.ExecContext(ctx, r.db.rebind(
		`UPDATE runs SET status = ?, page_count = ?, finished_at = ? WHERE id = ?`),
		status, pageCount, time.Now().UTC(), runID,
	)
	if err != nil {
		r.log.Error("ledger.run.finish_failed", "run_id", runID, "error", err)
		return fmt.Errorf("%w: finish run: %w", common.ErrDatabase, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: run %s not found", common.ErrDatabase, runID)
	}
	r.log.Debug("ledger.run.finished", "run_id", runID, "status", status)
	return nil
}

func (r *runRepo) GetRun(ctx context.Context, runID string) (Run, error) {
	row := r.db.SQL.QueryRowContext(ctx, r.db.rebind(
		`SELECT id, source, source_type, status, page_count, started_at, finished_at FROM runs WHERE id = ?`), runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: run %s not found", common.ErrInvalidInput, runID)
	}
	if err != nil {
		return Run{}, fmt.Errorf("%w: get run: %w", common.ErrDatabase, err)
	}
	return run, nil
}

// ListRuns returns the newest runs first; limit <= 0 returns all.
func (r *runRepo) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	q := `SELECT id, source, source_type, status, page_count, started_at, finished_at FROM runs ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.db.SQL.QueryContext(ctx, r.db.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list runs: %w", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan run: %w", common.ErrDatabase, err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// ListOutcomes returns a run's page outcomes in page order.
func (r *runRepo) ListOutcomes(ctx context.Context, runID string) ([]PageRecord, error) {
	rows, err := r.db.SQL.QueryContext(ctx, r.db.rebind(
		`SELECT run_id, page, status, output_path, error, retryable, word_count, avg_confidence, duration_ms, created_at
		FROM page_outcomes WHERE run_id = ? ORDER BY page`), runID)
	if err != nil {
		return nil, fmt.Errorf("%w: list outcomes: %w", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []PageRecord
	for rows.Next() {
		var rec PageRecord
		if err := rows.Scan(&rec.RunID, &rec.Page, &rec.Status, &rec.OutputPath, &rec.Error, &rec.Retryable,
			&rec.WordCount, &rec.AvgConfidence, &rec.DurationMS, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan outcome: %w", common.ErrDatabase, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		run      Run
		finished sql.NullTime
	)
	if err := s.Scan(&run.ID, &run.Source, &run.SourceType, &run.Status, &run.PageCount, &run.StartedAt, &finished); err != nil {
		return Run{}, err
	}
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	return run, nil
}

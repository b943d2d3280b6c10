package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/modality/internal/common"
	"github.com/Veraticus/modality/internal/model"
)

// SaveRun stores an evaluation run with its per-case results. A version tag
// that already exists returns common.ErrDuplicateEntry.
func (s *SQLiteStorage) SaveRun(ctx context.Context, run *model.EvalRun) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRun(run); err != nil {
		return err
	}

	cfg, err := json.Marshal(run.Metrics.Config)
	if err != nil {
		return fmt.Errorf("failed to encode run config: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	m := run.Metrics
	_, err = tx.ExecContext(ctx, `
		INSERT INTO eval_runs (id, version, created_at, accuracy, avg_confidence, total, correct, config)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Version, run.CreatedAt.UTC(), m.Accuracy, m.AvgConfidence, m.Total, m.Correct, string(cfg))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("run version %q: %w", run.Version, common.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to save run: %w", err)
	}

	for i, r := range m.Results {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO eval_case_results (run_id, position, case_id, query, expected, predicted, source, confidence, correct)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, i, r.CaseID, r.Query, string(r.Expected), string(r.Predicted), string(r.Source), r.Confidence, r.Correct)
		if err != nil {
			return fmt.Errorf("failed to save case result %s: %w", r.CaseID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

const runColumns = `id, version, created_at, accuracy, avg_confidence, total, correct, config`

// GetRun returns the run tagged version with its case results.
func (s *SQLiteStorage) GetRun(ctx context.Context, version string) (*model.EvalRun, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(version, "version"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM eval_runs WHERE version = ?`, version)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %q: %w", version, common.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadResults(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// LatestRunBefore returns the most recent run stored before run. When run
// itself has not been stored, the latest stored run is returned.
func (s *SQLiteStorage) LatestRunBefore(ctx context.Context, run *model.EvalRun) (*model.EvalRun, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("%w: run", ErrNilParameter)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+` FROM eval_runs
		WHERE id <> ?
		  AND rowid < COALESCE((SELECT rowid FROM eval_runs WHERE id = ?), 9223372036854775807)
		ORDER BY rowid DESC LIMIT 1`, run.ID, run.ID)
	prev, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run before %q: %w", run.Version, common.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadResults(ctx, prev); err != nil {
		return nil, err
	}
	return prev, nil
}

// ListRuns returns up to limit runs, newest first, without case results.
// A limit of zero or less lists every run.
func (s *SQLiteStorage) ListRuns(ctx context.Context, limit int) ([]model.EvalRun, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM eval_runs ORDER BY rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	runs := []model.EvalRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*model.EvalRun, error) {
	var (
		run       model.EvalRun
		createdAt time.Time
		cfg       string
	)
	m := &run.Metrics
	err := row.Scan(&run.ID, &run.Version, &createdAt, &m.Accuracy, &m.AvgConfidence, &m.Total, &m.Correct, &cfg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	if err := json.Unmarshal([]byte(cfg), &m.Config); err != nil {
		return nil, fmt.Errorf("run %s has a malformed config: %w", run.Version, err)
	}
	run.CreatedAt = createdAt.UTC()
	return &run, nil
}

func (s *SQLiteStorage) loadResults(ctx context.Context, run *model.EvalRun) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT case_id, query, expected, predicted, source, confidence, correct
		FROM eval_case_results WHERE run_id = ? ORDER BY position`, run.ID)
	if err != nil {
		return fmt.Errorf("failed to read case results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	run.Metrics.Results = []model.CaseResult{}
	for rows.Next() {
		var (
			r                           model.CaseResult
			expected, predicted, source string
		)
		if err := rows.Scan(&r.CaseID, &r.Query, &expected, &predicted, &source, &r.Confidence, &r.Correct); err != nil {
			return fmt.Errorf("failed to scan case result: %w", err)
		}
		r.Expected = model.Category(expected)
		r.Predicted = model.Category(predicted)
		r.Source = model.Source(source)
		run.Metrics.Results = append(run.Metrics.Results, r)
	}
	return rows.Err()
}

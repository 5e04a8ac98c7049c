package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openmave/mavemeter/internal/analysis"
)

// ErrRunNotFound is returned when a run id has no row.
var ErrRunNotFound = errors.New("run not found")

// RunSummary is the listing row for a persisted run.
type RunSummary struct {
	ID               string    `json:"id"`
	CreatedAt        time.Time `json:"created_at"`
	Experiments      int       `json:"experiments"`
	Variants         int       `json:"variants"`
	Observations     int       `json:"observations"`
	ParseFailures    int       `json:"parse_failures"`
	Missingness      float64   `json:"missingness"`
	SelectedK        int       `json:"selected_k"`
	ImputedCells     int       `json:"imputed_cells"`
	UnimputableCells int       `json:"unimputable_cells"`
	LowConfidence    bool      `json:"low_confidence"`
}

// Run is a fully hydrated persisted run.
type Run struct {
	RunSummary
	Result *analysis.Result `json:"result"`
}

// Store provides run persistence over the database.
type Store struct {
	db *DB
}

// NewStore creates a store over an open database.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// SaveRun persists a pipeline result and its per-variant summaries in one
// transaction, returning the generated run id.
func (s *Store) SaveRun(ctx context.Context, res *analysis.Result) (*RunSummary, error) {
	report, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("failed to encode run report: %w", err)
	}

	summary := &RunSummary{
		ID:               uuid.New().String(),
		CreatedAt:        time.Now().UTC(),
		Experiments:      res.BuildStats.Experiments,
		Variants:         res.BuildStats.Variants,
		Observations:     res.BuildStats.Observations,
		ParseFailures:    res.BuildStats.ParseFailures,
		Missingness:      res.Validation.Missingness,
		SelectedK:        res.Validation.SelectedK,
		ImputedCells:     res.Validation.ImputedCells,
		UnimputableCells: res.Validation.UnimputableCells,
		LowConfidence:    res.Validation.LowConfidence,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	insertRun, err := s.db.stmt("insert_run")
	if err != nil {
		return nil, err
	}
	if _, err := tx.StmtContext(ctx, insertRun).ExecContext(ctx,
		summary.ID, summary.CreatedAt, summary.Experiments, summary.Variants,
		summary.Observations, summary.ParseFailures, summary.Missingness,
		summary.SelectedK, summary.ImputedCells, summary.UnimputableCells,
		summary.LowConfidence, string(report),
	); err != nil {
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}

	insertVariant, err := s.db.stmt("insert_run_variant")
	if err != nil {
		return nil, err
	}
	stmt := tx.StmtContext(ctx, insertVariant)
	for _, vs := range res.Summaries {
		if _, err := stmt.ExecContext(ctx,
			summary.ID, vs.Variant.String(), vs.NPresent, vs.NImputed,
			vs.MeanEffect, vs.StdEffect, string(vs.Category),
		); err != nil {
			return nil, fmt.Errorf("failed to insert run variant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit run: %w", err)
	}
	return summary, nil
}

// GetRun loads one run with its full report.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	getRun, err := s.db.stmt("get_run")
	if err != nil {
		return nil, err
	}

	var run Run
	var report string
	err = getRun.QueryRowContext(ctx, id).Scan(
		&run.ID, &run.CreatedAt, &run.Experiments, &run.Variants,
		&run.Observations, &run.ParseFailures, &run.Missingness,
		&run.SelectedK, &run.ImputedCells, &run.UnimputableCells,
		&run.LowConfidence, &report,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}

	var res analysis.Result
	if err := json.Unmarshal([]byte(report), &res); err != nil {
		return nil, fmt.Errorf("failed to decode run report: %w", err)
	}
	run.Result = &res
	return &run, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit < 1 || limit > 500 {
		limit = 50
	}
	listRuns, err := s.db.stmt("list_runs")
	if err != nil {
		return nil, err
	}

	rows, err := listRuns.QueryContext(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	summaries := make([]RunSummary, 0, limit)
	for rows.Next() {
		var s RunSummary
		if err := rows.Scan(
			&s.ID, &s.CreatedAt, &s.Experiments, &s.Variants, &s.Observations,
			&s.ParseFailures, &s.Missingness, &s.SelectedK, &s.ImputedCells,
			&s.UnimputableCells, &s.LowConfidence,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// RunVariant is one persisted per-variant summary row.
type RunVariant struct {
	Variant    string  `json:"variant"`
	NPresent   int     `json:"n_present"`
	NImputed   int     `json:"n_imputed"`
	MeanEffect float64 `json:"mean_effect"`
	StdEffect  float64 `json:"std_effect"`
	Category   string  `json:"category"`
}

// GetRunVariants loads the per-variant rows of a run in variant order.
func (s *Store) GetRunVariants(ctx context.Context, runID string) ([]RunVariant, error) {
	getVariants, err := s.db.stmt("get_run_variants")
	if err != nil {
		return nil, err
	}

	rows, err := getVariants.QueryContext(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run variants: %w", err)
	}
	defer rows.Close()

	var variants []RunVariant
	for rows.Next() {
		var v RunVariant
		if err := rows.Scan(&v.Variant, &v.NPresent, &v.NImputed,
			&v.MeanEffect, &v.StdEffect, &v.Category); err != nil {
			return nil, fmt.Errorf("failed to scan run variant: %w", err)
		}
		variants = append(variants, v)
	}
	return variants, rows.Err()
}

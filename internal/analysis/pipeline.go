// Package analysis implements the cross-experiment consistency and
// imputation core: per-experiment z-score normalization, a per-variant
// agreement metric tolerant of missing data, and neighbor-based imputation
// validated by cross-validation.
package analysis

import (
	"log/slog"
	"time"

	"github.com/openmave/mavemeter/internal/matrix"
)

// Pipeline runs the full core in order over in-memory tables. All stages
// are pure transformations; each produces a new matrix, so the raw scores
// survive unchanged for audit.
type Pipeline struct {
	cfg Config
}

// NewPipeline creates a pipeline with the given configuration.
func NewPipeline(cfg Config) *Pipeline {
	if len(cfg.KCandidates) == 0 {
		cfg.KCandidates = DefaultConfig().KCandidates
	}
	return &Pipeline{cfg: cfg}
}

// Result bundles everything a run produces.
type Result struct {
	BuildStats       matrix.BuildStats   `json:"build_stats"`
	FlaggedColumns   []ColumnFlag        `json:"flagged_columns,omitempty"`
	Consistency      []ConsistencyRecord `json:"consistency"`
	ConsistencyTiers TierBreakdown       `json:"consistency_tiers"`
	Summaries        []VariantSummary    `json:"summaries"`
	Distribution     Distribution        `json:"distribution"`
	Validation       ValidationReport    `json:"validation"`

	Raw        *matrix.ScoreMatrix      `json:"-"`
	Normalized *matrix.NormalizedMatrix `json:"-"`
	Imputed    *matrix.ImputedMatrix    `json:"-"`
}

// Run executes assemble → normalize → consistency → impute. The only
// error it can return is an unusable input collection; every data-quality
// problem inside a usable collection is reported in the Result instead.
func (p *Pipeline) Run(tables []matrix.ExperimentTable) (*Result, error) {
	start := time.Now()

	raw, buildStats, err := matrix.Build(tables)
	if err != nil {
		return nil, err
	}

	normalized, flags := Normalize(raw)
	for _, f := range flags {
		slog.Warn("degenerate experiment column excluded",
			"experiment", string(f.Experiment),
			"observed", f.Observed,
			"reason", f.Reason)
	}

	consistency := ScoreConsistency(normalized, p.cfg)

	imputed, validation, err := FitAndImpute(normalized, p.cfg)
	if err != nil {
		return nil, err
	}
	if validation.LowConfidence {
		slog.Warn("imputation is low-confidence at this sparsity",
			"missingness", validation.Missingness,
			"threshold", p.cfg.ReliabilityThreshold)
	}

	summaries := Summarize(imputed)

	slog.Info("pipeline run complete",
		"variants", buildStats.Variants,
		"experiments", buildStats.Experiments,
		"missingness", validation.Missingness,
		"selected_k", validation.SelectedK,
		"imputed_cells", validation.ImputedCells,
		"duration_ms", time.Since(start).Milliseconds())

	return &Result{
		BuildStats:       buildStats,
		FlaggedColumns:   flags,
		Consistency:      consistency,
		ConsistencyTiers: BreakdownTiers(consistency),
		Summaries:        summaries,
		Distribution:     Distribute(summaries),
		Validation:       validation,
		Raw:              raw,
		Normalized:       normalized,
		Imputed:          imputed,
	}, nil
}

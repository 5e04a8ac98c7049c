package analysis

import "runtime"

// Config holds every tunable of the consistency and imputation core.
// Defaults follow the parameters the pipeline was validated with.
type Config struct {
	// Consistency tiering.
	HighThreshold     float64 `json:"high_threshold"`
	ModerateThreshold float64 `json:"moderate_threshold"`
	MinObservations   int     `json:"min_observations"`

	// Imputation engine.
	KCandidates  []int   `json:"k_candidates"`
	CVFolds      int     `json:"cv_folds"`
	MaskFraction float64 `json:"mask_fraction"`
	MinCoverage  int     `json:"min_coverage"`
	MinDonors    int     `json:"min_donors"`
	Seed         int64   `json:"seed"`

	// Missingness above this fraction marks the whole imputation run
	// low-confidence.
	ReliabilityThreshold float64 `json:"missingness_reliability_threshold"`

	// Worker goroutines for per-row imputation and CV folds. Zero means
	// one per CPU.
	Workers int `json:"-"`
}

// DefaultConfig returns the validated defaults: tiers at 0.7/0.5, k drawn
// from {3,5,7,10} by 5-fold cross-validation masking 20% of observed
// cells, imputation restricted to variants seen in at least 5 experiments.
func DefaultConfig() Config {
	return Config{
		HighThreshold:        0.7,
		ModerateThreshold:    0.5,
		MinObservations:      2,
		KCandidates:          []int{3, 5, 7, 10},
		CVFolds:              5,
		MaskFraction:         0.2,
		MinCoverage:          5,
		MinDonors:            2,
		Seed:                 1,
		ReliabilityThreshold: 0.85,
	}
}

func (c Config) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}

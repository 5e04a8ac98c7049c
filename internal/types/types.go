// Package types holds the API request and response shapes.
package types

import (
	"github.com/openmave/mavemeter/internal/analysis"
	"github.com/openmave/mavemeter/internal/store"
)

// RecordPayload is one scored variant row in a submitted experiment.
type RecordPayload struct {
	HgvsPro string   `json:"hgvs_pro" binding:"required"`
	Score   *float64 `json:"score"`
}

// ExperimentPayload is one experiment table in a submission.
type ExperimentPayload struct {
	ID      string          `json:"id" binding:"required"`
	Records []RecordPayload `json:"records" binding:"required"`
}

// AnalysisOptions overrides pipeline parameters per request. Zero values
// keep the server defaults.
type AnalysisOptions struct {
	KCandidates          []int   `json:"k_candidates,omitempty"`
	CVFolds              int     `json:"cv_folds,omitempty"`
	MaskFraction         float64 `json:"mask_fraction,omitempty"`
	MinCoverage          int     `json:"min_coverage,omitempty"`
	Seed                 *int64  `json:"seed,omitempty"`
	HighThreshold        float64 `json:"high_threshold,omitempty"`
	ModerateThreshold    float64 `json:"moderate_threshold,omitempty"`
	ReliabilityThreshold float64 `json:"reliability_threshold,omitempty"`
}

// IntegrateRequest is the POST /integrate body.
type IntegrateRequest struct {
	Experiments []ExperimentPayload `json:"experiments" binding:"required"`
	Options     *AnalysisOptions    `json:"options,omitempty"`
}

// IntegrateResponse returns the run id with the full result.
type IntegrateResponse struct {
	RunID  string           `json:"run_id"`
	Result *analysis.Result `json:"result"`
}

// RunListResponse is the GET /runs body.
type RunListResponse struct {
	Runs []store.RunSummary `json:"runs"`
}

// HealthResponse is the GET /health body.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Version   string                 `json:"version"`
	Redis     bool                   `json:"redis"`
	Metrics   map[string]interface{} `json:"metrics,omitempty"`
}

package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openmave/mavemeter/internal/analysis"
	"github.com/openmave/mavemeter/internal/apperr"
	"github.com/openmave/mavemeter/internal/matrix"
	"github.com/openmave/mavemeter/internal/store"
	"github.com/openmave/mavemeter/internal/types"
)

type handlers struct {
	deps *serverDeps
}

func newHandlers(deps *serverDeps) *handlers {
	return &handlers{deps: deps}
}

// integrate runs the full pipeline over the submitted experiment tables and
// persists the result.
func (h *handlers) integrate(c *gin.Context) {
	start := time.Now()

	var req types.IntegrateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperr.NewValidationError("invalid request body", map[string]string{
			"body": err.Error(),
		}))
		return
	}
	if len(req.Experiments) == 0 {
		c.Error(apperr.NewValidationError("at least one experiment is required", nil))
		return
	}

	tables := make([]matrix.ExperimentTable, 0, len(req.Experiments))
	for _, exp := range req.Experiments {
		table := matrix.ExperimentTable{ID: matrix.ExperimentID(exp.ID)}
		for _, rec := range exp.Records {
			table.Records = append(table.Records, matrix.Record{
				Notation: rec.HgvsPro,
				Score:    rec.Score,
			})
		}
		tables = append(tables, table)
	}

	cfg := h.analysisConfig(req.Options)
	result, err := analysis.NewPipeline(cfg).Run(tables)
	if err != nil {
		h.deps.metrics.RecordRunFailure()
		c.Error(err)
		return
	}

	saved, err := h.deps.store.SaveRun(c.Request.Context(), result)
	if err != nil {
		c.Error(apperr.NewStorageError("save_run", err))
		return
	}

	h.deps.metrics.RecordRun(
		result.BuildStats.Variants,
		result.Validation.ImputedCells,
		result.Validation.LowConfidence,
	)
	h.deps.logger.RunLogger(saved.ID,
		result.BuildStats.Experiments,
		result.BuildStats.Variants,
		result.Validation.ImputedCells,
		result.Validation.Missingness,
		result.Validation.LowConfidence,
		time.Since(start),
	)

	c.JSON(http.StatusOK, types.IntegrateResponse{
		RunID:  saved.ID,
		Result: result,
	})
}

// analysisConfig merges per-request overrides onto the server defaults.
func (h *handlers) analysisConfig(opts *types.AnalysisOptions) analysis.Config {
	cfg := h.deps.cfg.AnalysisConfig()
	if opts == nil {
		return cfg
	}
	if len(opts.KCandidates) > 0 {
		cfg.KCandidates = opts.KCandidates
	}
	if opts.CVFolds > 0 {
		cfg.CVFolds = opts.CVFolds
	}
	if opts.MaskFraction > 0 && opts.MaskFraction < 1 {
		cfg.MaskFraction = opts.MaskFraction
	}
	if opts.MinCoverage > 0 {
		cfg.MinCoverage = opts.MinCoverage
	}
	if opts.Seed != nil {
		cfg.Seed = *opts.Seed
	}
	if opts.HighThreshold > 0 {
		cfg.HighThreshold = opts.HighThreshold
	}
	if opts.ModerateThreshold > 0 {
		cfg.ModerateThreshold = opts.ModerateThreshold
	}
	if opts.ReliabilityThreshold > 0 {
		cfg.ReliabilityThreshold = opts.ReliabilityThreshold
	}
	return cfg
}

func (h *handlers) listRuns(c *gin.Context) {
	limit := 50
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 500 {
			limit = l
		}
	}

	runs, err := h.deps.store.ListRuns(c.Request.Context(), limit)
	if err != nil {
		c.Error(apperr.NewStorageError("list_runs", err))
		return
	}
	c.JSON(http.StatusOK, types.RunListResponse{Runs: runs})
}

func (h *handlers) getRun(c *gin.Context) {
	id := c.Param("id")

	run, err := h.deps.store.GetRun(c.Request.Context(), id)
	if errors.Is(err, store.ErrRunNotFound) {
		c.Error(apperr.NewNotFoundError("run", id))
		return
	}
	if err != nil {
		c.Error(apperr.NewStorageError("get_run", err))
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *handlers) getRunVariants(c *gin.Context) {
	id := c.Param("id")

	// Confirm the run exists so unknown ids return 404, not an empty list.
	if _, err := h.deps.store.GetRun(c.Request.Context(), id); err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			c.Error(apperr.NewNotFoundError("run", id))
		} else {
			c.Error(apperr.NewStorageError("get_run", err))
		}
		return
	}

	variants, err := h.deps.store.GetRunVariants(c.Request.Context(), id)
	if err != nil {
		c.Error(apperr.NewStorageError("get_run_variants", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": id, "variants": variants})
}

// getRunHighlights returns the most extreme variants of a stored run.
func (h *handlers) getRunHighlights(c *gin.Context) {
	id := c.Param("id")

	run, err := h.deps.store.GetRun(c.Request.Context(), id)
	if errors.Is(err, store.ErrRunNotFound) {
		c.Error(apperr.NewNotFoundError("run", id))
		return
	}
	if err != nil {
		c.Error(apperr.NewStorageError("get_run", err))
		return
	}

	n := 10
	if nStr := c.Query("n"); nStr != "" {
		if v, err := strconv.Atoi(nStr); err == nil && v > 0 && v <= 100 {
			n = v
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id":          id,
		"highlights":      analysis.TopVariants(run.Result.Summaries, n),
		"most_consistent": analysis.TopConsistent(run.Result.Consistency, n),
	})
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, types.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().Format(time.RFC3339),
		Version:   "1.0.0",
		Redis:     h.deps.redis.IsEnabled(),
		Metrics:   h.deps.metrics.GetStats(),
	})
}

func (h *handlers) metricsStats(c *gin.Context) {
	stats := h.deps.metrics.GetStats()
	stats["database_pool"] = h.deps.db.PoolStats()
	stats["rate_limiter"] = h.deps.limiter.Stats()
	stats["cache"] = h.deps.runCache.Stats()
	stats["compression"] = h.deps.compressor.Stats()
	c.JSON(http.StatusOK, stats)
}

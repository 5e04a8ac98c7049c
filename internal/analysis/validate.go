package analysis

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/openmave/mavemeter/internal/matrix"
)

// KError is the cross-validated reconstruction error for one candidate k.
type KError struct {
	K           int     `json:"k"`
	MAE         float64 `json:"mae"`
	MSE         float64 `json:"mse"`
	MaskedCells int     `json:"masked_cells"`
}

// ValidationReport describes how imputation parameters were chosen and how
// much the result can be trusted.
type ValidationReport struct {
	SelectedK        int      `json:"selected_k"`
	PerK             []KError `json:"per_k"`
	Folds            int      `json:"folds"`
	MaskFraction     float64  `json:"mask_fraction"`
	Seed             int64    `json:"seed"`
	Missingness      float64  `json:"missingness"`
	ImputedCells     int      `json:"imputed_cells"`
	UnimputableCells int      `json:"unimputable_cells"`
	SkippedRows      int      `json:"skipped_rows"`
	// LowConfidence is set whenever missingness exceeds the reliability
	// threshold. Downstream consumers must treat imputed values as weakly
	// supported when this is raised.
	LowConfidence bool `json:"low_confidence"`
}

type foldResult struct {
	mae, mse float64
	masked   int
}

// FitAndImpute selects k by cross-validation and then fills the matrix.
//
// For each candidate k and each fold, a fold-seeded RNG masks a fraction of
// the observed cells in well-covered rows; the masked matrix is imputed and
// the reconstruction error against the held-out truth is recorded. Masks
// depend only on (seed, fold), so every k is scored on identical holdouts
// and the whole report is reproducible for a fixed seed. Folds run
// concurrently; the per-k error is the mean over folds, so fold completion
// order cannot change the result.
//
// The returned matrix is imputed with the k of smallest cross-validated
// MAE (ties go to the smaller k). If the matrix is too sparse to mask any
// cell, validation is skipped and the first candidate is used as-is.
func FitAndImpute(nm *matrix.NormalizedMatrix, cfg Config) (*matrix.ImputedMatrix, ValidationReport, error) {
	if len(cfg.KCandidates) == 0 {
		return nil, ValidationReport{}, fmt.Errorf("no imputation k candidates configured")
	}
	folds := cfg.CVFolds
	if folds < 1 {
		folds = 1
	}
	maskFrac := cfg.MaskFraction
	if maskFrac <= 0 || maskFrac >= 1 {
		maskFrac = DefaultConfig().MaskFraction
	}

	report := ValidationReport{
		Folds:        folds,
		MaskFraction: maskFrac,
		Seed:         cfg.Seed,
		Missingness:  nm.Missingness(),
	}
	report.LowConfidence = report.Missingness > cfg.ReliabilityThreshold

	for _, k := range cfg.KCandidates {
		results := make([]foldResult, folds)
		var wg sync.WaitGroup
		for f := 0; f < folds; f++ {
			wg.Add(1)
			go func(f int) {
				defer wg.Done()
				results[f] = runFold(nm, k, f, maskFrac, cfg)
			}(f)
		}
		wg.Wait()

		ke := KError{K: k}
		contributing := 0
		for _, r := range results {
			if r.masked == 0 {
				continue
			}
			ke.MAE += r.mae
			ke.MSE += r.mse
			ke.MaskedCells += r.masked
			contributing++
		}
		if contributing == 0 {
			continue
		}
		ke.MAE /= float64(contributing)
		ke.MSE /= float64(contributing)
		report.PerK = append(report.PerK, ke)
	}

	report.SelectedK = selectK(report.PerK, cfg.KCandidates)

	imputed, stats := Impute(nm, report.SelectedK, cfg)
	report.ImputedCells = stats.ImputedCells
	report.UnimputableCells = stats.UnimputableCells
	report.SkippedRows = stats.SkippedRows

	return imputed, report, nil
}

// runFold masks observed cells in well-covered rows with a fold-seeded RNG,
// imputes the rest, and scores the reconstruction.
func runFold(nm *matrix.NormalizedMatrix, k, fold int, maskFrac float64, cfg Config) foldResult {
	rng := rand.New(rand.NewSource(cfg.Seed + int64(fold)))

	masked := nm.Clone()
	type holdout struct {
		i, j  int
		truth float64
	}
	var held []holdout

	for i := 0; i < nm.NRows(); i++ {
		if nm.ObservedInRow(i) < cfg.MinCoverage {
			continue
		}
		for j := 0; j < nm.NCols(); j++ {
			v, ok := nm.At(i, j)
			if !ok {
				continue
			}
			if rng.Float64() < maskFrac {
				masked.Clear(i, j)
				held = append(held, holdout{i: i, j: j, truth: v})
			}
		}
	}
	if len(held) == 0 {
		return foldResult{}
	}

	foldCfg := cfg
	foldCfg.Workers = 1 // folds already run in parallel
	imputed, _ := Impute(&matrix.NormalizedMatrix{Grid: masked}, k, foldCfg)

	truth := make([]float64, 0, len(held))
	pred := make([]float64, 0, len(held))
	for _, h := range held {
		if v, ok := imputed.At(h.i, h.j); ok && imputed.Origin(h.i, h.j) == matrix.OriginImputed {
			truth = append(truth, h.truth)
			pred = append(pred, v)
		}
	}
	if len(truth) == 0 {
		return foldResult{}
	}
	return foldResult{
		mae:    meanAbsError(truth, pred),
		mse:    meanSquaredError(truth, pred),
		masked: len(truth),
	}
}

func selectK(perK []KError, candidates []int) int {
	if len(perK) == 0 {
		return candidates[0]
	}
	best := perK[0]
	for _, ke := range perK[1:] {
		if ke.MAE < best.MAE {
			best = ke
		}
	}
	return best.K
}

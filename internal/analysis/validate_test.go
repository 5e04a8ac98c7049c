package analysis

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmave/mavemeter/internal/matrix"
)

// denseNormalized builds a mostly-dense matrix with a deterministic pattern
// of gaps, big enough that cross-validation has cells to hold out.
func denseNormalized(t *testing.T, nRows, nCols int, seed int64) *matrix.NormalizedMatrix {
	t.Helper()
	cols := make([]matrix.ExperimentID, nCols)
	for j := range cols {
		cols[j] = matrix.ExperimentID(string(rune('a' + j)))
	}
	rows := make([][]float64, nRows)
	rng := rand.New(rand.NewSource(seed))
	for i := range rows {
		rows[i] = make([]float64, nCols)
		for j := range rows[i] {
			if (i+j)%7 == 0 {
				rows[i][j] = nan
				continue
			}
			rows[i][j] = rng.NormFloat64()
		}
	}
	return newNormalized(t, cols, rows)
}

func validateCfg() Config {
	cfg := DefaultConfig()
	cfg.KCandidates = []int{2, 3}
	cfg.CVFolds = 3
	cfg.MinCoverage = 2
	cfg.Workers = 2
	return cfg
}

func TestFitAndImputeReproducibleForFixedSeed(t *testing.T) {
	nm := denseNormalized(t, 30, 6, 11)
	cfg := validateCfg()

	imA, repA, err := FitAndImpute(nm, cfg)
	require.NoError(t, err)
	imB, repB, err := FitAndImpute(nm, cfg)
	require.NoError(t, err)

	assert.Equal(t, repA, repB)
	for i := 0; i < nm.NRows(); i++ {
		for j := 0; j < nm.NCols(); j++ {
			va, oka := imA.At(i, j)
			vb, okb := imB.At(i, j)
			assert.Equal(t, oka, okb, "cell (%d,%d)", i, j)
			assert.Equal(t, va, vb, "cell (%d,%d)", i, j)
		}
	}
}

func TestFitAndImputePreservesObservedCells(t *testing.T) {
	nm := denseNormalized(t, 20, 5, 3)

	im, rep, err := FitAndImpute(nm, validateCfg())
	require.NoError(t, err)
	require.Contains(t, validateCfg().KCandidates, rep.SelectedK)

	for i := 0; i < nm.NRows(); i++ {
		for j := 0; j < nm.NCols(); j++ {
			if want, ok := nm.At(i, j); ok {
				got, stillOk := im.At(i, j)
				require.True(t, stillOk)
				assert.Equal(t, want, got, "observed cell (%d,%d)", i, j)
			}
		}
	}
}

func TestFitAndImputeScoresEveryCandidate(t *testing.T) {
	nm := denseNormalized(t, 40, 6, 5)
	cfg := validateCfg()
	cfg.KCandidates = []int{2, 3, 5}

	_, rep, err := FitAndImpute(nm, cfg)
	require.NoError(t, err)
	require.Len(t, rep.PerK, 3)
	for i, k := range cfg.KCandidates {
		assert.Equal(t, k, rep.PerK[i].K)
		assert.Greater(t, rep.PerK[i].MaskedCells, 0)
		assert.GreaterOrEqual(t, rep.PerK[i].MSE, 0.0)
	}
	assert.Equal(t, cfg.CVFolds, rep.Folds)
	assert.Equal(t, cfg.MaskFraction, rep.MaskFraction)
}

func TestFitAndImputeFlagsLowConfidenceRuns(t *testing.T) {
	// 20x4 grid with four observed cells: missingness 0.95, far past the
	// reliability threshold.
	rows := make([][]float64, 20)
	for i := range rows {
		rows[i] = []float64{nan, nan, nan, nan}
	}
	rows[0][0], rows[1][1], rows[2][2], rows[3][3] = 0.1, -0.2, 0.3, -0.4
	nm := newNormalized(t, []matrix.ExperimentID{"a", "b", "c", "d"}, rows)

	cfg := validateCfg()
	_, rep, err := FitAndImpute(nm, cfg)
	require.NoError(t, err)

	assert.InDelta(t, 0.95, rep.Missingness, 1e-12)
	assert.True(t, rep.LowConfidence)
	// Nothing can be masked or estimated here, so validation degrades to
	// the first candidate rather than failing.
	assert.Empty(t, rep.PerK)
	assert.Equal(t, cfg.KCandidates[0], rep.SelectedK)
}

func TestFitAndImputeRejectsEmptyCandidateList(t *testing.T) {
	nm := denseNormalized(t, 10, 4, 1)
	cfg := validateCfg()
	cfg.KCandidates = nil

	_, _, err := FitAndImpute(nm, cfg)
	assert.Error(t, err)
}

func TestSelectKPrefersSmallestError(t *testing.T) {
	perK := []KError{
		{K: 3, MAE: 0.5},
		{K: 5, MAE: 0.2},
		{K: 7, MAE: 0.4},
	}
	assert.Equal(t, 5, selectK(perK, []int{3, 5, 7}))
}

func TestSelectKBreaksTiesTowardSmallerK(t *testing.T) {
	perK := []KError{
		{K: 3, MAE: 0.2},
		{K: 5, MAE: 0.2},
	}
	assert.Equal(t, 3, selectK(perK, []int{3, 5}))
}

func TestSelectKFallsBackWhenNothingScored(t *testing.T) {
	assert.Equal(t, 7, selectK(nil, []int{7, 10}))
}

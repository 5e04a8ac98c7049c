package analysis

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/openmave/mavemeter/internal/matrix"
)

// ImputeStats tallies the outcome of one imputation pass.
type ImputeStats struct {
	// ImputedCells were filled from neighbor estimates.
	ImputedCells int `json:"imputed_cells"`
	// UnimputableCells were attempted but had too few usable donors; they
	// stay missing in the output rather than being dropped or defaulted.
	UnimputableCells int `json:"unimputable_cells"`
	// SkippedRows fell below the coverage floor and were not attempted.
	SkippedRows int `json:"skipped_rows"`
}

type donor struct {
	row  int
	dist float64
}

// Impute fills missing cells of the normalized matrix with a k-nearest-
// neighbor estimate. Distance between two variants is euclidean over the
// experiments where both are observed, scaled by nColumns/nCoObserved so
// sparsely co-observed pairs are not rewarded for hiding disagreement.
// A donor must be observed in the target's missing column and share at
// least one co-observed column with the target. Cells with fewer than
// cfg.MinDonors usable donors are left missing and tallied.
//
// Observed cells are copied through untouched; the input is never modified.
// Rows observed in fewer than cfg.MinCoverage experiments are skipped, as
// neighbor estimates for them are unsupportable at this sparsity.
func Impute(nm *matrix.NormalizedMatrix, k int, cfg Config) (*matrix.ImputedMatrix, ImputeStats) {
	nRows, nCols := nm.NRows(), nm.NCols()
	out := nm.Clone()
	origins := matrix.NewOrigins(out)
	for i := 0; i < nRows; i++ {
		for j := 0; j < nCols; j++ {
			if _, ok := nm.At(i, j); ok {
				origins[i][j] = matrix.OriginObserved
			}
		}
	}

	minDonors := cfg.MinDonors
	if minDonors < 1 {
		minDonors = 1
	}

	var imputed, unimputable, skipped atomic.Int64

	rowCh := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < cfg.workers(); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range rowCh {
				observed := nm.ObservedInRow(i)
				if observed == nCols {
					continue
				}
				if observed < cfg.MinCoverage {
					skipped.Add(1)
					continue
				}

				donors := rankDonors(nm, i)
				for j := 0; j < nCols; j++ {
					if _, ok := nm.At(i, j); ok {
						continue
					}
					if v, ok := estimate(nm, donors, j, k, minDonors); ok {
						out.Set(i, j, v)
						origins[i][j] = matrix.OriginImputed
						imputed.Add(1)
					} else {
						unimputable.Add(1)
					}
				}
			}
		}()
	}
	for i := 0; i < nRows; i++ {
		rowCh <- i
	}
	close(rowCh)
	wg.Wait()

	stats := ImputeStats{
		ImputedCells:     int(imputed.Load()),
		UnimputableCells: int(unimputable.Load()),
		SkippedRows:      int(skipped.Load()),
	}
	return &matrix.ImputedMatrix{Grid: out, Origins: origins}, stats
}

// rankDonors orders every other variant by co-observed distance to the
// target row. Rows with no co-observed column are excluded. Ties break on
// row index so results do not depend on scheduling.
func rankDonors(nm *matrix.NormalizedMatrix, target int) []donor {
	nRows, nCols := nm.NRows(), nm.NCols()
	donors := make([]donor, 0, nRows-1)

	for r := 0; r < nRows; r++ {
		if r == target {
			continue
		}
		shared := 0
		sumSq := 0.0
		for j := 0; j < nCols; j++ {
			a, okA := nm.At(target, j)
			b, okB := nm.At(r, j)
			if okA && okB {
				d := a - b
				sumSq += d * d
				shared++
			}
		}
		if shared == 0 {
			continue
		}
		dist := math.Sqrt(sumSq * float64(nCols) / float64(shared))
		donors = append(donors, donor{row: r, dist: dist})
	}

	sort.Slice(donors, func(a, b int) bool {
		if donors[a].dist != donors[b].dist {
			return donors[a].dist < donors[b].dist
		}
		return donors[a].row < donors[b].row
	})
	return donors
}

// estimate averages the k nearest ranked donors that are observed in
// column j. Fewer than minDonors usable donors means no estimate.
func estimate(nm *matrix.NormalizedMatrix, donors []donor, j, k, minDonors int) (float64, bool) {
	sum := 0.0
	used := 0
	for _, d := range donors {
		v, ok := nm.At(d.row, j)
		if !ok {
			continue
		}
		sum += v
		used++
		if used == k {
			break
		}
	}
	if used < minDonors {
		return 0, false
	}
	return sum / float64(used), true
}

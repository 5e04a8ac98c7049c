// Package matrix holds the variant-by-experiment score grids the pipeline
// transforms. Every stage returns a new matrix; nothing mutates a value it
// did not allocate.
package matrix

import (
	"github.com/openmave/mavemeter/internal/variant"
)

// ExperimentID identifies one MAVE dataset. The set of experiments is fixed
// once raw inputs are assembled.
type ExperimentID string

// Origin tags where a cell's value came from.
type Origin uint8

const (
	OriginMissing Origin = iota
	OriginObserved
	OriginImputed
)

func (o Origin) String() string {
	switch o {
	case OriginObserved:
		return "observed"
	case OriginImputed:
		return "imputed"
	default:
		return "missing"
	}
}

// Grid is a dense variant-by-experiment table with an observed mask.
// Row and column order is fixed at construction.
type Grid struct {
	rows   []variant.Key
	cols   []ExperimentID
	rowIdx map[variant.Key]int
	colIdx map[ExperimentID]int
	vals   [][]float64
	seen   [][]bool
}

// NewGrid allocates a grid with every cell missing. The row and column
// slices are copied; later mutation of the arguments has no effect.
func NewGrid(rows []variant.Key, cols []ExperimentID) *Grid {
	g := &Grid{
		rows:   append([]variant.Key(nil), rows...),
		cols:   append([]ExperimentID(nil), cols...),
		rowIdx: make(map[variant.Key]int, len(rows)),
		colIdx: make(map[ExperimentID]int, len(cols)),
		vals:   make([][]float64, len(rows)),
		seen:   make([][]bool, len(rows)),
	}
	for i, r := range g.rows {
		g.rowIdx[r] = i
		g.vals[i] = make([]float64, len(cols))
		g.seen[i] = make([]bool, len(cols))
	}
	for j, c := range g.cols {
		g.colIdx[c] = j
	}
	return g
}

// NRows returns the number of variants.
func (g *Grid) NRows() int { return len(g.rows) }

// NCols returns the number of experiments.
func (g *Grid) NCols() int { return len(g.cols) }

// Row returns the variant key at row index i.
func (g *Grid) Row(i int) variant.Key { return g.rows[i] }

// Col returns the experiment ID at column index j.
func (g *Grid) Col(j int) ExperimentID { return g.cols[j] }

// Rows returns a copy of the row keys in order.
func (g *Grid) Rows() []variant.Key {
	return append([]variant.Key(nil), g.rows...)
}

// Cols returns a copy of the experiment IDs in order.
func (g *Grid) Cols() []ExperimentID {
	return append([]ExperimentID(nil), g.cols...)
}

// RowIndex looks up a variant's row index.
func (g *Grid) RowIndex(key variant.Key) (int, bool) {
	i, ok := g.rowIdx[key]
	return i, ok
}

// ColIndex looks up an experiment's column index.
func (g *Grid) ColIndex(id ExperimentID) (int, bool) {
	j, ok := g.colIdx[id]
	return j, ok
}

// At returns the value at (i, j) and whether it is present.
func (g *Grid) At(i, j int) (float64, bool) {
	if !g.seen[i][j] {
		return 0, false
	}
	return g.vals[i][j], true
}

// Set stores a value at (i, j), marking the cell present.
func (g *Grid) Set(i, j int, v float64) {
	g.vals[i][j] = v
	g.seen[i][j] = true
}

// Clear marks the cell at (i, j) missing.
func (g *Grid) Clear(i, j int) {
	g.vals[i][j] = 0
	g.seen[i][j] = false
}

// ObservedInRow counts present cells in row i.
func (g *Grid) ObservedInRow(i int) int {
	n := 0
	for j := range g.cols {
		if g.seen[i][j] {
			n++
		}
	}
	return n
}

// ObservedInCol counts present cells in column j.
func (g *Grid) ObservedInCol(j int) int {
	n := 0
	for i := range g.rows {
		if g.seen[i][j] {
			n++
		}
	}
	return n
}

// ObservedCount counts all present cells.
func (g *Grid) ObservedCount() int {
	n := 0
	for i := range g.rows {
		for j := range g.cols {
			if g.seen[i][j] {
				n++
			}
		}
	}
	return n
}

// Size returns the total number of cells.
func (g *Grid) Size() int { return len(g.rows) * len(g.cols) }

// Missingness returns the fraction of cells that are missing, in [0, 1].
// An empty grid reports 0.
func (g *Grid) Missingness() float64 {
	size := g.Size()
	if size == 0 {
		return 0
	}
	return 1 - float64(g.ObservedCount())/float64(size)
}

// CloneShape returns a new grid with the same rows and columns and every
// cell missing.
func (g *Grid) CloneShape() *Grid {
	return NewGrid(g.rows, g.cols)
}

// Clone returns a deep copy of the grid.
func (g *Grid) Clone() *Grid {
	out := g.CloneShape()
	for i := range g.rows {
		copy(out.vals[i], g.vals[i])
		copy(out.seen[i], g.seen[i])
	}
	return out
}

// ScoreMatrix holds raw observed scores, one column per experiment. Built
// once from raw inputs and retained unmodified for audit.
type ScoreMatrix struct {
	*Grid
}

// NormalizedMatrix holds per-experiment z-scores. The distinct type keeps a
// matrix from being normalized twice in one pipeline run.
type NormalizedMatrix struct {
	*Grid
}

// ImputedMatrix is a NormalizedMatrix with missing cells filled where the
// imputation engine could support an estimate. Origins records, per cell,
// whether the value was observed, imputed, or is still missing.
type ImputedMatrix struct {
	*Grid
	Origins [][]Origin
}

// Origin reports the provenance of the cell at (i, j).
func (m *ImputedMatrix) Origin(i, j int) Origin {
	return m.Origins[i][j]
}

// NewOrigins allocates an all-missing origin table shaped like g.
func NewOrigins(g *Grid) [][]Origin {
	out := make([][]Origin, g.NRows())
	for i := range out {
		out[i] = make([]Origin, g.NCols())
	}
	return out
}

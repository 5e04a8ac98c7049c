package analysis

import (
	"github.com/openmave/mavemeter/internal/matrix"
)

// Reasons a column is flagged degenerate.
const (
	FlagUnderPopulated = "fewer than 2 observed values"
	FlagZeroVariance   = "zero variance"
)

// ColumnFlag marks an experiment column that could not be normalized.
type ColumnFlag struct {
	Experiment matrix.ExperimentID `json:"experiment"`
	Observed   int                 `json:"observed"`
	Reason     string              `json:"reason"`
}

// Normalize converts each experiment column to z-scores over that column's
// observed values only. Columns with fewer than 2 observations or zero
// variance are flagged and left entirely missing in the output, so no
// undefined z-score ever reaches consistency scoring or imputation.
//
// The input is never modified; missing cells stay missing.
func Normalize(sm *matrix.ScoreMatrix) (*matrix.NormalizedMatrix, []ColumnFlag) {
	out := sm.CloneShape()
	var flags []ColumnFlag

	for j := 0; j < sm.NCols(); j++ {
		col := make([]float64, 0, sm.NRows())
		for i := 0; i < sm.NRows(); i++ {
			if v, ok := sm.At(i, j); ok {
				col = append(col, v)
			}
		}

		if len(col) < 2 {
			flags = append(flags, ColumnFlag{
				Experiment: sm.Col(j),
				Observed:   len(col),
				Reason:     FlagUnderPopulated,
			})
			continue
		}

		m := mean(col)
		s := sampleStd(col)
		if s == 0 {
			flags = append(flags, ColumnFlag{
				Experiment: sm.Col(j),
				Observed:   len(col),
				Reason:     FlagZeroVariance,
			})
			continue
		}

		for i := 0; i < sm.NRows(); i++ {
			if v, ok := sm.At(i, j); ok {
				out.Set(i, j, (v-m)/s)
			}
		}
	}

	return &matrix.NormalizedMatrix{Grid: out}, flags
}

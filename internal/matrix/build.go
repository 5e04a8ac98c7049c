package matrix

import (
	"errors"
	"sort"

	"github.com/openmave/mavemeter/internal/variant"
)

// ErrEmptyInput is the one fatal condition in the core: a collection with
// zero experiments or zero resolvable scored variants.
var ErrEmptyInput = errors.New("empty input: no experiments or no resolvable variants")

// Record is one raw row from an experiment table: protein notation plus an
// optional effect score.
type Record struct {
	Notation string
	Score    *float64
}

// ExperimentTable is the raw input for one experiment.
type ExperimentTable struct {
	ID      ExperimentID
	Records []Record
}

// BuildStats reports what happened while assembling the score matrix.
type BuildStats struct {
	Experiments      int `json:"experiments"`
	Variants         int `json:"variants"`
	Observations     int `json:"observations"`
	ParseFailures    int `json:"parse_failures"`
	MissingScores    int `json:"missing_scores"`
	DuplicatesMerged int `json:"duplicates_merged"`
}

// Build assembles the raw ScoreMatrix from per-experiment tables.
//
// Composite notation is expanded so each constituent mutation carries the
// row's score. Unparseable notation and rows without a score are dropped
// and counted, never defaulted. Repeat observations of the same (variant,
// experiment) pair are averaged. Rows are ordered by (position, ref, alt)
// and columns by experiment ID so the matrix is deterministic regardless of
// input order.
func Build(tables []ExperimentTable) (*ScoreMatrix, BuildStats, error) {
	stats := BuildStats{Experiments: len(tables)}
	if len(tables) == 0 {
		return nil, stats, ErrEmptyInput
	}

	type cell struct {
		sum   float64
		count int
	}
	acc := make(map[variant.Key]map[ExperimentID]*cell)
	cols := make([]ExperimentID, 0, len(tables))
	colSeen := make(map[ExperimentID]bool, len(tables))

	for _, table := range tables {
		if !colSeen[table.ID] {
			colSeen[table.ID] = true
			cols = append(cols, table.ID)
		}
		for _, rec := range table.Records {
			if rec.Score == nil {
				stats.MissingScores++
				continue
			}
			tokens := variant.Split(rec.Notation)
			if len(tokens) == 0 {
				stats.ParseFailures++
				continue
			}
			for _, token := range tokens {
				key, err := variant.Resolve(token)
				if err != nil {
					stats.ParseFailures++
					continue
				}
				byCol := acc[key]
				if byCol == nil {
					byCol = make(map[ExperimentID]*cell)
					acc[key] = byCol
				}
				c := byCol[table.ID]
				if c == nil {
					c = &cell{}
					byCol[table.ID] = c
				} else {
					stats.DuplicatesMerged++
				}
				c.sum += *rec.Score
				c.count++
			}
		}
	}

	if len(acc) == 0 {
		return nil, stats, ErrEmptyInput
	}

	rows := make([]variant.Key, 0, len(acc))
	for key := range acc {
		rows = append(rows, key)
	}
	sort.Slice(rows, func(a, b int) bool { return rows[a].Less(rows[b]) })
	sort.Slice(cols, func(a, b int) bool { return cols[a] < cols[b] })

	g := NewGrid(rows, cols)
	for i, key := range rows {
		for id, c := range acc[key] {
			j, _ := g.ColIndex(id)
			g.Set(i, j, c.sum/float64(c.count))
			stats.Observations++
		}
	}
	stats.Variants = len(rows)

	return &ScoreMatrix{Grid: g}, stats, nil
}

package analysis

import (
	"sort"

	"github.com/openmave/mavemeter/internal/matrix"
	"github.com/openmave/mavemeter/internal/variant"
)

// Tier buckets a variant's cross-experiment agreement.
type Tier string

const (
	TierHigh         Tier = "high"
	TierModerate     Tier = "moderate"
	TierLow          Tier = "low"
	TierInsufficient Tier = "insufficient"
)

// ConsistencyRecord is the per-variant agreement result. Agreement is nil,
// not zero, when fewer than the minimum observations are present.
type ConsistencyRecord struct {
	Variant   variant.Key `json:"variant"`
	NObserved int         `json:"n_observed"`
	Agreement *float64    `json:"agreement,omitempty"`
	Tier      Tier        `json:"tier"`
}

// Agree computes the agreement metric for a set of present normalized
// scores: 1/(1+s) where s is the sample standard deviation. Identical
// scores give 1; the metric strictly decreases as dispersion grows, and it
// only depends on the multiset of values, never on experiment order.
func Agree(scores []float64) float64 {
	return 1 / (1 + sampleStd(scores))
}

// ScoreRow classifies one variant's row of normalized scores.
func ScoreRow(key variant.Key, scores []float64, cfg Config) ConsistencyRecord {
	rec := ConsistencyRecord{Variant: key, NObserved: len(scores)}

	minObs := cfg.MinObservations
	if minObs < 2 {
		minObs = 2
	}
	if len(scores) < minObs {
		rec.Tier = TierInsufficient
		return rec
	}

	a := Agree(scores)
	rec.Agreement = &a
	switch {
	case a >= cfg.HighThreshold:
		rec.Tier = TierHigh
	case a >= cfg.ModerateThreshold:
		rec.Tier = TierModerate
	default:
		rec.Tier = TierLow
	}
	return rec
}

// TierBreakdown aggregates consistency records per tier.
type TierBreakdown struct {
	Total        int          `json:"total"`
	ByTier       map[Tier]int `json:"by_tier"`
	HighFraction float64      `json:"high_fraction"`
}

// BreakdownTiers tallies records per tier. HighFraction is over scorable
// records only, so insufficient rows do not dilute it.
func BreakdownTiers(records []ConsistencyRecord) TierBreakdown {
	b := TierBreakdown{
		Total:  len(records),
		ByTier: make(map[Tier]int),
	}
	scorable := 0
	for _, r := range records {
		b.ByTier[r.Tier]++
		if r.Tier != TierInsufficient {
			scorable++
		}
	}
	if scorable > 0 {
		b.HighFraction = float64(b.ByTier[TierHigh]) / float64(scorable)
	}
	return b
}

// TopConsistent returns the n records with the highest agreement.
// Insufficient rows carry no agreement and are excluded.
func TopConsistent(records []ConsistencyRecord, n int) []ConsistencyRecord {
	scored := make([]ConsistencyRecord, 0, len(records))
	for _, r := range records {
		if r.Agreement != nil {
			scored = append(scored, r)
		}
	}
	sort.SliceStable(scored, func(a, b int) bool {
		return *scored[a].Agreement > *scored[b].Agreement
	})
	if n > len(scored) {
		n = len(scored)
	}
	return append([]ConsistencyRecord(nil), scored[:n]...)
}

// ScoreConsistency scores every row of the normalized matrix. Degenerate
// columns were blanked during normalization, so they contribute nothing
// here for any variant.
func ScoreConsistency(nm *matrix.NormalizedMatrix, cfg Config) []ConsistencyRecord {
	records := make([]ConsistencyRecord, nm.NRows())
	for i := 0; i < nm.NRows(); i++ {
		scores := make([]float64, 0, nm.NCols())
		for j := 0; j < nm.NCols(); j++ {
			if v, ok := nm.At(i, j); ok {
				scores = append(scores, v)
			}
		}
		records[i] = ScoreRow(nm.Row(i), scores, cfg)
	}
	return records
}

package analysis

import (
	"sort"

	"github.com/openmave/mavemeter/internal/matrix"
	"github.com/openmave/mavemeter/internal/variant"
)

// EffectCategory buckets a variant by its mean normalized effect.
type EffectCategory string

const (
	StrongDeleterious EffectCategory = "strong_deleterious"
	Deleterious       EffectCategory = "deleterious"
	Neutral           EffectCategory = "neutral"
	Beneficial        EffectCategory = "beneficial"
	StrongBeneficial  EffectCategory = "strong_beneficial"
)

// Categorize maps a mean z-score onto an effect category. Cut points are
// the ones the integrated maps were published with.
func Categorize(meanEffect float64) EffectCategory {
	switch {
	case meanEffect <= -1:
		return StrongDeleterious
	case meanEffect <= -0.5:
		return Deleterious
	case meanEffect < 0.5:
		return Neutral
	case meanEffect < 1:
		return Beneficial
	default:
		return StrongBeneficial
	}
}

// VariantSummary is the per-variant rollup over the imputed matrix.
type VariantSummary struct {
	Variant    variant.Key    `json:"variant"`
	NPresent   int            `json:"n_present"`
	NImputed   int            `json:"n_imputed"`
	MeanEffect float64        `json:"mean_effect"`
	StdEffect  float64        `json:"std_effect"`
	Category   EffectCategory `json:"category"`
}

// Summarize rolls each imputed row up to its mean and dispersion. Rows with
// no present cells at all are skipped.
func Summarize(im *matrix.ImputedMatrix) []VariantSummary {
	summaries := make([]VariantSummary, 0, im.NRows())
	for i := 0; i < im.NRows(); i++ {
		vals := make([]float64, 0, im.NCols())
		imputedN := 0
		for j := 0; j < im.NCols(); j++ {
			v, ok := im.At(i, j)
			if !ok {
				continue
			}
			vals = append(vals, v)
			if im.Origin(i, j) == matrix.OriginImputed {
				imputedN++
			}
		}
		if len(vals) == 0 {
			continue
		}
		m := mean(vals)
		summaries = append(summaries, VariantSummary{
			Variant:    im.Row(i),
			NPresent:   len(vals),
			NImputed:   imputedN,
			MeanEffect: m,
			StdEffect:  sampleStd(vals),
			Category:   Categorize(m),
		})
	}
	return summaries
}

// Distribution counts summaries per category.
type Distribution struct {
	Total       int                    `json:"total"`
	ByCategory  map[EffectCategory]int `json:"by_category"`
	Deleterious int                    `json:"deleterious"`
	Neutral     int                    `json:"neutral"`
	Beneficial  int                    `json:"beneficial"`
}

// Distribute tallies the category distribution of a summary set.
func Distribute(summaries []VariantSummary) Distribution {
	d := Distribution{
		Total:      len(summaries),
		ByCategory: make(map[EffectCategory]int),
	}
	for _, s := range summaries {
		d.ByCategory[s.Category]++
		switch s.Category {
		case StrongDeleterious, Deleterious:
			d.Deleterious++
		case Neutral:
			d.Neutral++
		default:
			d.Beneficial++
		}
	}
	return d
}

// Highlights lists the extremes of a run for reporting.
type Highlights struct {
	MostDeleterious []VariantSummary `json:"most_deleterious"`
	MostBeneficial  []VariantSummary `json:"most_beneficial"`
	MostVariable    []VariantSummary `json:"most_variable"`
}

// TopVariants extracts the n most extreme variants along each axis.
func TopVariants(summaries []VariantSummary, n int) Highlights {
	if n > len(summaries) {
		n = len(summaries)
	}
	byMeanAsc := append([]VariantSummary(nil), summaries...)
	sort.Slice(byMeanAsc, func(a, b int) bool {
		return byMeanAsc[a].MeanEffect < byMeanAsc[b].MeanEffect
	})
	byStdDesc := append([]VariantSummary(nil), summaries...)
	sort.Slice(byStdDesc, func(a, b int) bool {
		return byStdDesc[a].StdEffect > byStdDesc[b].StdEffect
	})

	h := Highlights{
		MostDeleterious: append([]VariantSummary(nil), byMeanAsc[:n]...),
		MostVariable:    append([]VariantSummary(nil), byStdDesc[:n]...),
	}
	desc := make([]VariantSummary, n)
	for i := 0; i < n; i++ {
		desc[i] = byMeanAsc[len(byMeanAsc)-1-i]
	}
	h.MostBeneficial = desc
	return h
}

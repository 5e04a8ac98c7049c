package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmave/mavemeter/internal/matrix"
)

func TestCategorizeBins(t *testing.T) {
	tests := []struct {
		mean float64
		want EffectCategory
	}{
		{-3.0, StrongDeleterious},
		{-1.0, StrongDeleterious}, // boundary belongs to the stronger bin
		{-0.99, Deleterious},
		{-0.5, Deleterious},
		{-0.49, Neutral},
		{0.0, Neutral},
		{0.49, Neutral},
		{0.5, Beneficial},
		{0.99, Beneficial},
		{1.0, StrongBeneficial},
		{2.5, StrongBeneficial},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Categorize(tt.mean), "mean %v", tt.mean)
	}
}

func TestSummarizeCountsOrigins(t *testing.T) {
	nm := newNormalized(t, []matrix.ExperimentID{"a", "b", "c"}, [][]float64{
		{1, 1, nan},
		{1, 1, 2},
		{1, 1, 2},
	})
	cfg := imputeCfg()
	im, _ := Impute(nm, 2, cfg)

	summaries := Summarize(im)
	require.Len(t, summaries, 3)

	first := summaries[0]
	assert.Equal(t, 3, first.NPresent)
	assert.Equal(t, 1, first.NImputed)
	assert.InDelta(t, 4.0/3.0, first.MeanEffect, 1e-12)
	assert.Equal(t, StrongBeneficial, first.Category)

	assert.Equal(t, 0, summaries[1].NImputed)
}

func TestSummarizeSkipsEmptyRows(t *testing.T) {
	nm := newNormalized(t, []matrix.ExperimentID{"a", "b"}, [][]float64{
		{nan, nan},
		{0.2, 0.4},
	})
	im, _ := Impute(nm, 1, imputeCfg())

	summaries := Summarize(im)
	require.Len(t, summaries, 1)
	assert.Equal(t, im.Row(1), summaries[0].Variant)
}

func TestDistributeTalliesCategories(t *testing.T) {
	summaries := []VariantSummary{
		{Category: StrongDeleterious},
		{Category: Deleterious},
		{Category: Deleterious},
		{Category: Neutral},
		{Category: Beneficial},
		{Category: StrongBeneficial},
	}
	d := Distribute(summaries)

	assert.Equal(t, 6, d.Total)
	assert.Equal(t, 3, d.Deleterious)
	assert.Equal(t, 1, d.Neutral)
	assert.Equal(t, 2, d.Beneficial)
	assert.Equal(t, 2, d.ByCategory[Deleterious])
	assert.Equal(t, 1, d.ByCategory[StrongBeneficial])
}

func TestTopVariants(t *testing.T) {
	summaries := []VariantSummary{
		{Variant: key(1, "A", "G"), MeanEffect: -2.0, StdEffect: 0.1},
		{Variant: key(2, "C", "S"), MeanEffect: 0.0, StdEffect: 1.5},
		{Variant: key(3, "D", "E"), MeanEffect: 1.8, StdEffect: 0.3},
		{Variant: key(4, "E", "D"), MeanEffect: 0.4, StdEffect: 0.2},
	}

	h := TopVariants(summaries, 2)

	require.Len(t, h.MostDeleterious, 2)
	assert.Equal(t, key(1, "A", "G"), h.MostDeleterious[0].Variant)
	assert.Equal(t, key(3, "D", "E"), h.MostBeneficial[0].Variant)
	assert.Equal(t, key(2, "C", "S"), h.MostVariable[0].Variant)

	// Asking for more than exists just returns everything.
	all := TopVariants(summaries, 10)
	assert.Len(t, all.MostDeleterious, 4)
}

package matrix

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmave/mavemeter/internal/variant"
)

func score(v float64) *float64 { return &v }

func TestBuildAssemblesMatrix(t *testing.T) {
	tables := []ExperimentTable{
		{
			ID: "exp_b",
			Records: []Record{
				{Notation: "p.Val57Gln", Score: score(1.5)},
				{Notation: "p.Tyr9Pro", Score: score(-0.5)},
			},
		},
		{
			ID: "exp_a",
			Records: []Record{
				{Notation: "V57Q", Score: score(2.0)},
			},
		},
	}

	sm, stats, err := Build(tables)
	require.NoError(t, err)

	assert.Equal(t, 2, sm.NRows())
	assert.Equal(t, 2, sm.NCols())
	// Columns sorted by ID, rows by (position, ref, alt).
	assert.Equal(t, ExperimentID("exp_a"), sm.Col(0))
	assert.Equal(t, ExperimentID("exp_b"), sm.Col(1))
	assert.Equal(t, variant.Key{Position: 9, Ref: "Y", Alt: "P"}, sm.Row(0))
	assert.Equal(t, variant.Key{Position: 57, Ref: "V", Alt: "Q"}, sm.Row(1))

	// "p.Val57Gln" and "V57Q" collapse onto one row.
	v, ok := sm.At(1, 0)
	require.True(t, ok)
	assert.Equal(t, 2.0, v)
	v, ok = sm.At(1, 1)
	require.True(t, ok)
	assert.Equal(t, 1.5, v)

	_, ok = sm.At(0, 0)
	assert.False(t, ok, "Tyr9Pro was not observed in exp_a")

	assert.Equal(t, 3, stats.Observations)
	assert.Equal(t, 2, stats.Variants)
	assert.Equal(t, 0, stats.ParseFailures)
}

func TestBuildExpandsCompositeNotation(t *testing.T) {
	tables := []ExperimentTable{
		{
			ID: "exp_a",
			Records: []Record{
				{Notation: "p.[Val57Gln;Tyr9Pro]", Score: score(3.0)},
			},
		},
	}

	sm, stats, err := Build(tables)
	require.NoError(t, err)
	require.Equal(t, 2, sm.NRows())

	// Both constituents carry the row's score.
	for i := 0; i < 2; i++ {
		v, ok := sm.At(i, 0)
		require.True(t, ok)
		assert.Equal(t, 3.0, v)
	}
	assert.Equal(t, 2, stats.Observations)
}

func TestBuildAveragesDuplicates(t *testing.T) {
	tables := []ExperimentTable{
		{
			ID: "exp_a",
			Records: []Record{
				{Notation: "V57Q", Score: score(2.0)},
				{Notation: "p.Val57Gln", Score: score(4.0)},
			},
		},
	}

	sm, stats, err := Build(tables)
	require.NoError(t, err)

	v, ok := sm.At(0, 0)
	require.True(t, ok)
	assert.Equal(t, 3.0, v)
	assert.Equal(t, 1, stats.DuplicatesMerged)
}

func TestBuildDropsBadRecords(t *testing.T) {
	tables := []ExperimentTable{
		{
			ID: "exp_a",
			Records: []Record{
				{Notation: "V57Q", Score: score(1.0)},
				{Notation: "not-a-variant", Score: score(2.0)},
				{Notation: "p.=", Score: score(3.0)},
				{Notation: "Y9P", Score: nil},
			},
		},
	}

	sm, stats, err := Build(tables)
	require.NoError(t, err)

	assert.Equal(t, 1, sm.NRows())
	assert.Equal(t, 2, stats.ParseFailures)
	assert.Equal(t, 1, stats.MissingScores)
}

func TestBuildEmptyInput(t *testing.T) {
	_, _, err := Build(nil)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, _, err = Build([]ExperimentTable{{ID: "exp_a"}})
	assert.ErrorIs(t, err, ErrEmptyInput)

	// Records present but nothing resolvable.
	_, _, err = Build([]ExperimentTable{{
		ID:      "exp_a",
		Records: []Record{{Notation: "garbage", Score: score(1.0)}},
	}})
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestBuildDeterministicOrdering(t *testing.T) {
	forward := []ExperimentTable{
		{ID: "exp_a", Records: []Record{{Notation: "V57Q", Score: score(1)}}},
		{ID: "exp_b", Records: []Record{{Notation: "Y9P", Score: score(2)}}},
	}
	reversed := []ExperimentTable{forward[1], forward[0]}

	a, _, err := Build(forward)
	require.NoError(t, err)
	b, _, err := Build(reversed)
	require.NoError(t, err)

	assert.Equal(t, a.Rows(), b.Rows())
	assert.Equal(t, a.Cols(), b.Cols())
}

func TestGridMissingness(t *testing.T) {
	g := NewGrid(
		[]variant.Key{{Position: 1, Ref: "A", Alt: "G"}, {Position: 2, Ref: "C", Alt: "S"}},
		[]ExperimentID{"a", "b"},
	)
	assert.Equal(t, 1.0, g.Missingness())

	g.Set(0, 0, 1.0)
	assert.InDelta(t, 0.75, g.Missingness(), 1e-12)

	g.Clear(0, 0)
	assert.Equal(t, 1.0, g.Missingness())
}

func TestGridCloneIsIndependent(t *testing.T) {
	g := NewGrid(
		[]variant.Key{{Position: 1, Ref: "A", Alt: "G"}},
		[]ExperimentID{"a"},
	)
	g.Set(0, 0, 5.0)

	cp := g.Clone()
	cp.Set(0, 0, 9.0)

	v, _ := g.At(0, 0)
	assert.Equal(t, 5.0, v, "mutating the clone must not touch the original")
}

package dataset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmave/mavemeter/internal/analysis"
	"github.com/openmave/mavemeter/internal/matrix"
)

func writeCSV(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "dms_alpha.csv", strings.Join([]string{
		"hgvs_pro,score,extra",
		"p.Val57Gln,2.5,ignored",
		"p.Tyr9Pro,-1.25,",
		"p.Gly12Asp,,",
		"p.Leu3Arg,not-a-number,",
	}, "\n"))

	table, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, matrix.ExperimentID("dms_alpha"), table.ID)
	require.Len(t, table.Records, 4)

	require.NotNil(t, table.Records[0].Score)
	assert.Equal(t, 2.5, *table.Records[0].Score)
	require.NotNil(t, table.Records[1].Score)
	assert.Equal(t, -1.25, *table.Records[1].Score)

	// Empty and unparseable scores load as scoreless records.
	assert.Nil(t, table.Records[2].Score)
	assert.Nil(t, table.Records[3].Score)
}

func TestLoadFileRejectsMissingColumns(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "bad.csv", "variant,value\np.Val57Gln,1.0\n")

	_, err := LoadFile(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "hgvs_pro")
}

func TestLoadDirSortsAndSkipsNonCSV(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "zeta.csv", "hgvs_pro,score\np.Val57Gln,1.0\n")
	writeCSV(t, dir, "alpha.csv", "hgvs_pro,score\np.Val57Gln,2.0\n")
	writeCSV(t, dir, "notes.txt", "not a dataset")

	tables, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.Equal(t, matrix.ExperimentID("alpha"), tables[0].ID)
	assert.Equal(t, matrix.ExperimentID("zeta"), tables[1].ID)
}

func TestLoadDirEmpty(t *testing.T) {
	_, err := LoadDir(t.TempDir())
	assert.Error(t, err)
}

func TestWriteResultRoundTrip(t *testing.T) {
	score := func(v float64) *float64 { return &v }
	tables := []matrix.ExperimentTable{
		{ID: "exp_a", Records: []matrix.Record{
			{Notation: "p.Val57Gln", Score: score(2.0)},
			{Notation: "p.Tyr9Pro", Score: score(-1.0)},
			{Notation: "p.Gly12Asp", Score: score(0.5)},
		}},
		{ID: "exp_b", Records: []matrix.Record{
			{Notation: "p.Val57Gln", Score: score(4.0)},
			{Notation: "p.Tyr9Pro", Score: score(-2.0)},
			{Notation: "p.Gly12Asp", Score: score(1.0)},
		}},
	}

	cfg := analysis.DefaultConfig()
	cfg.KCandidates = []int{2}
	cfg.CVFolds = 2
	cfg.MinCoverage = 1
	cfg.MinDonors = 1
	res, err := analysis.NewPipeline(cfg).Run(tables)
	require.NoError(t, err)

	outDir := filepath.Join(t.TempDir(), "out")
	require.NoError(t, WriteResult(outDir, res))

	for _, name := range []string{
		"normalized_matrix.csv",
		"imputed_matrix.csv",
		"variant_analysis.csv",
		"validation_report.json",
	} {
		info, err := os.Stat(filepath.Join(outDir, name))
		require.NoError(t, err, name)
		assert.Greater(t, info.Size(), int64(0), name)
	}

	normalized, err := os.ReadFile(filepath.Join(outDir, "normalized_matrix.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(normalized), "variant,exp_a,exp_b")
	assert.Contains(t, string(normalized), "V57Q")

	imputed, err := os.ReadFile(filepath.Join(outDir, "imputed_matrix.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(imputed), "exp_a_origin")
	assert.Contains(t, string(imputed), "observed")

	summary, err := os.ReadFile(filepath.Join(outDir, "variant_analysis.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "mean_effect")

	report, err := os.ReadFile(filepath.Join(outDir, "validation_report.json"))
	require.NoError(t, err)
	assert.Contains(t, string(report), "selected_k")
}

package dataset

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/openmave/mavemeter/internal/analysis"
	"github.com/openmave/mavemeter/internal/matrix"
)

// WriteResult writes all run outputs under dir: the normalized and imputed
// matrices, the per-variant analysis table, and the validation report.
func WriteResult(dir string, res *analysis.Result) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := writeGrid(filepath.Join(dir, "normalized_matrix.csv"), res.Normalized.Grid, nil); err != nil {
		return err
	}
	if err := writeGrid(filepath.Join(dir, "imputed_matrix.csv"), res.Imputed.Grid, res.Imputed.Origins); err != nil {
		return err
	}
	if err := writeSummaries(filepath.Join(dir, "variant_analysis.csv"), res); err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, "validation_report.json"), res.Validation)
}

// writeGrid writes a matrix as CSV with variants as rows and experiments as
// columns. Missing cells stay empty. When origins are given, an extra
// companion column per experiment marks imputed cells.
func writeGrid(path string, g *matrix.Grid, origins [][]matrix.Origin) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{"variant"}
	for _, col := range g.Cols() {
		header = append(header, string(col))
		if origins != nil {
			header = append(header, string(col)+"_origin")
		}
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i := 0; i < g.NRows(); i++ {
		row := []string{g.Row(i).String()}
		for j := 0; j < g.NCols(); j++ {
			if v, ok := g.At(i, j); ok {
				row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
			} else {
				row = append(row, "")
			}
			if origins != nil {
				row = append(row, origins[i][j].String())
			}
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	return w.Error()
}

func writeSummaries(path string, res *analysis.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{
		"variant", "n_present", "n_imputed", "mean_effect", "std_effect",
		"category", "n_observed", "agreement", "tier",
	}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	consistency := make(map[string]analysis.ConsistencyRecord, len(res.Consistency))
	for _, rec := range res.Consistency {
		consistency[rec.Variant.String()] = rec
	}

	for _, s := range res.Summaries {
		name := s.Variant.String()
		row := []string{
			name,
			strconv.Itoa(s.NPresent),
			strconv.Itoa(s.NImputed),
			strconv.FormatFloat(s.MeanEffect, 'g', -1, 64),
			strconv.FormatFloat(s.StdEffect, 'g', -1, 64),
			string(s.Category),
		}
		if rec, ok := consistency[name]; ok {
			row = append(row, strconv.Itoa(rec.NObserved))
			if rec.Agreement != nil {
				row = append(row, strconv.FormatFloat(*rec.Agreement, 'g', -1, 64))
			} else {
				row = append(row, "")
			}
			row = append(row, string(rec.Tier))
		} else {
			row = append(row, "", "", "")
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	return w.Error()
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

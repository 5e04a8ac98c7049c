// Package dataset loads experiment tables from CSV files and writes run
// outputs back to disk. Each input file is one experiment; the experiment id
// is the file name without extension.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/openmave/mavemeter/internal/matrix"
)

// LoadDir reads every .csv file in dir into an experiment table, sorted by
// experiment id so runs over the same directory are deterministic.
func LoadDir(dir string) ([]matrix.ExperimentTable, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset directory: %w", err)
	}

	var tables []matrix.ExperimentTable
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".csv") {
			continue
		}
		table, err := LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		tables = append(tables, table)
	}
	if len(tables) == 0 {
		return nil, fmt.Errorf("no csv files in %s", dir)
	}

	sort.Slice(tables, func(i, j int) bool { return tables[i].ID < tables[j].ID })
	return tables, nil
}

// LoadFile reads one experiment CSV. The header must contain hgvs_pro and
// score columns; extra columns are ignored. An empty or non-numeric score
// cell yields a record with no score, which the assembler tallies rather
// than failing the load.
func LoadFile(path string) (matrix.ExperimentTable, error) {
	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	table := matrix.ExperimentTable{ID: matrix.ExperimentID(id)}

	f, err := os.Open(path)
	if err != nil {
		return table, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return table, fmt.Errorf("failed to read header of %s: %w", path, err)
	}

	notationCol, scoreCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "hgvs_pro":
			notationCol = i
		case "score":
			scoreCol = i
		}
	}
	if notationCol < 0 || scoreCol < 0 {
		return table, fmt.Errorf("%s: header must contain hgvs_pro and score columns", path)
	}

	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return table, fmt.Errorf("failed to read row in %s: %w", path, err)
		}
		if notationCol >= len(row) {
			continue
		}

		rec := matrix.Record{Notation: strings.TrimSpace(row[notationCol])}
		if scoreCol < len(row) {
			if v, err := strconv.ParseFloat(strings.TrimSpace(row[scoreCol]), 64); err == nil {
				rec.Score = &v
			}
		}
		table.Records = append(table.Records, rec)
	}

	return table, nil
}

package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openmave/mavemeter/internal/analysis"
	"github.com/openmave/mavemeter/internal/dataset"
	"github.com/openmave/mavemeter/internal/matrix"
)

var (
	validateInputDir string
	validateCV       bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check experiment CSVs without running the full pipeline",
	Long: `Validate loads the experiment CSVs, assembles the score matrix, and
normalizes it, then reports parse failures, coverage, and degenerate
experiments. With --cv it also runs the cross-validation sweep and prints
the validation report as JSON. Nothing is written to disk.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidation(validateInputDir)
	},
}

func init() {
	validateCmd.Flags().StringVarP(&validateInputDir, "input", "i", "", "directory of experiment CSV files (required)")
	validateCmd.Flags().BoolVar(&validateCV, "cv", false, "also run the cross-validation sweep")
	validateCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(validateCmd)
}

func runValidation(inputDir string) error {
	tables, err := dataset.LoadDir(inputDir)
	if err != nil {
		return err
	}

	raw, stats, err := matrix.Build(tables)
	if err != nil {
		return fmt.Errorf("input is unusable: %w", err)
	}
	normalized, flags := analysis.Normalize(raw)

	green.Printf("✓ %d experiments, %d variants, %d observations\n",
		stats.Experiments, stats.Variants, stats.Observations)

	total := stats.Variants * stats.Experiments
	missingness := 0.0
	if total > 0 {
		missingness = 1 - float64(stats.Observations)/float64(total)
	}
	fmt.Printf("  missingness:       %.1f%%\n", missingness*100)
	fmt.Printf("  parse failures:    %d\n", stats.ParseFailures)
	fmt.Printf("  missing scores:    %d\n", stats.MissingScores)
	fmt.Printf("  duplicates merged: %d\n", stats.DuplicatesMerged)

	for _, flag := range flags {
		yellow.Printf("⚠  experiment %s would be excluded: %s (%d observed)\n",
			flag.Experiment, flag.Reason, flag.Observed)
	}
	if stats.ParseFailures > 0 {
		yellow.Printf("⚠  %d records carry notation that does not parse\n", stats.ParseFailures)
	}
	if len(flags) == 0 && stats.ParseFailures == 0 {
		green.Println("✓ input is clean")
	}

	if validateCV {
		cfg, err := loadAnalysisConfig()
		if err != nil {
			return err
		}
		_, report, err := analysis.FitAndImpute(normalized, cfg)
		if err != nil {
			return fmt.Errorf("cross-validation failed: %w", err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	return nil
}

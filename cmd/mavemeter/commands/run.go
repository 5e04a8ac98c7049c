package commands

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/openmave/mavemeter/internal/analysis"
	"github.com/openmave/mavemeter/internal/config"
	"github.com/openmave/mavemeter/internal/dataset"
)

var (
	runInputDir  string
	runOutputDir string
	runSeed      int64
	runKList     []int
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	cyan   = color.New(color.FgCyan)
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Integrate experiment CSVs and write the imputed map",
	Long: `Run loads every experiment CSV in the input directory (columns
hgvs_pro and score), runs the full integration pipeline, and writes the
normalized matrix, imputed matrix, per-variant analysis, and validation
report to the output directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIntegration(runInputDir, runOutputDir)
	},
}

func init() {
	runCmd.Flags().StringVarP(&runInputDir, "input", "i", "", "directory of experiment CSV files (required)")
	runCmd.Flags().StringVarP(&runOutputDir, "output", "o", "./mavemeter-out", "output directory")
	runCmd.Flags().Int64Var(&runSeed, "seed", 0, "random seed for cross-validation masking (0 uses config)")
	runCmd.Flags().IntSliceVar(&runKList, "k", nil, "candidate neighbor counts (default from config)")
	runCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(runCmd)
}

func runIntegration(inputDir, outputDir string) error {
	start := time.Now()

	cfg, err := loadAnalysisConfig()
	if err != nil {
		return err
	}

	tables, err := dataset.LoadDir(inputDir)
	if err != nil {
		return err
	}
	cyan.Printf("loaded %d experiments from %s\n", len(tables), inputDir)

	result, err := analysis.NewPipeline(cfg).Run(tables)
	if err != nil {
		return fmt.Errorf("integration failed: %w", err)
	}

	if err := dataset.WriteResult(outputDir, result); err != nil {
		return err
	}

	printRunSummary(result, outputDir, time.Since(start))
	return nil
}

func loadAnalysisConfig() (analysis.Config, error) {
	fileCfg, err := config.Load(configFile)
	if err != nil {
		return analysis.Config{}, err
	}
	cfg := fileCfg.AnalysisConfig()
	if runSeed != 0 {
		cfg.Seed = runSeed
	}
	if len(runKList) > 0 {
		cfg.KCandidates = runKList
	}
	return cfg, nil
}

func printRunSummary(result *analysis.Result, outputDir string, elapsed time.Duration) {
	green.Printf("✓ integrated %d variants across %d experiments in %s\n",
		result.BuildStats.Variants,
		result.BuildStats.Experiments,
		elapsed.Round(time.Millisecond))

	fmt.Printf("  observations:      %d (missingness %.1f%%)\n",
		result.BuildStats.Observations, result.Validation.Missingness*100)
	fmt.Printf("  selected k:        %d over %d folds\n",
		result.Validation.SelectedK, result.Validation.Folds)
	fmt.Printf("  imputed cells:     %d (%d unimputable, %d rows skipped)\n",
		result.Validation.ImputedCells,
		result.Validation.UnimputableCells,
		result.Validation.SkippedRows)

	if result.BuildStats.ParseFailures > 0 {
		yellow.Printf("⚠  %d records with unparseable notation were dropped\n",
			result.BuildStats.ParseFailures)
	}
	for _, flag := range result.FlaggedColumns {
		yellow.Printf("⚠  experiment %s excluded: %s (%d observed)\n",
			flag.Experiment, flag.Reason, flag.Observed)
	}
	if result.Validation.LowConfidence {
		yellow.Println("⚠  imputation is low-confidence at this sparsity")
	}

	fmt.Printf("  categories:        ")
	for _, cat := range []analysis.EffectCategory{
		analysis.StrongDeleterious, analysis.Deleterious, analysis.Neutral,
		analysis.Beneficial, analysis.StrongBeneficial,
	} {
		fmt.Printf("%s=%d ", cat, result.Distribution.ByCategory[cat])
	}
	fmt.Println()
	green.Printf("✓ outputs written to %s\n", outputDir)
}

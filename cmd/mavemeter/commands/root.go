// Package commands implements the mavemeter CLI.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string

	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "mavemeter",
	Short: "mavemeter - cross-experiment variant effect integration",
	Long: `mavemeter integrates variant effect scores from multiple deep
mutational scanning experiments into one consistent map: per-experiment
z-score normalization, cross-experiment consistency scoring, and
neighbor-based imputation of unmeasured variants validated by
cross-validation.`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command. Called by main.
func Execute() error {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets build-time version information.
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to YAML config file")
}

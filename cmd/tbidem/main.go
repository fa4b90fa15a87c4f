// tbidem reproduces the TBI/dementia donor-cohort analysis: recode the
// donor information table, select confounders, fit the logistic model
// sequence, test the interaction terms, and render the diagnostic report.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BoweiZ98/Dementia-and-TBI/internal/pipeline"
)

var (
	input     string
	outdir    string
	narrative string
	verbose   bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "tbidem",
	Short: "TBI history and dementia analysis of the donor cohort",
	Long: `tbidem runs the exploratory analysis of the association between
traumatic brain injury history and dementia diagnosis in the Aging,
Dementia and TBI Study donor cohort.

The pipeline loads DonorInformation.csv, builds the recoded donor tables,
selects confounders by backward elimination, fits logistic regressions
with progressively added TBI exposures, tests two interaction terms, and
refits on grouped counts for influence diagnostics.  Output is a Markdown
report plus chart PNGs.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		config.Encoding = "console"
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full analysis pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		return pipeline.Run(config())
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Recode the donor table and report the derived-table sizes",
	Long: `validate runs the fail-loud recoding pass only.  Any value outside
the fixed mappings stops the run and names the offending column and value;
on success the donor → donor4 row counts are logged.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return pipeline.Validate(config())
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Render the exposure distribution charts without fitting models",
	RunE: func(cmd *cobra.Command, args []string) error {
		return pipeline.Inspect(config())
	},
}

func config() pipeline.Config {
	return pipeline.Config{
		Input:     input,
		OutDir:    outdir,
		Narrative: narrative,
		Logger:    logger,
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&input, "input", "i", "DonorInformation.csv", "donor information CSV")
	rootCmd.PersistentFlags().StringVarP(&outdir, "outdir", "o", "out", "output directory for the report and charts")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	runCmd.Flags().StringVar(&narrative, "narrative", "", "analyst narrative appended verbatim to the report")

	rootCmd.AddCommand(runCmd, validateCmd, inspectCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

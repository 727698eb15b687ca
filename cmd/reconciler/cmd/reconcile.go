package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"settlement-reconciliation-service/cmd/reconciler/config"
	"settlement-reconciliation-service/internal/matcher"
	"settlement-reconciliation-service/internal/parsers"
	"settlement-reconciliation-service/internal/pos"
	"settlement-reconciliation-service/internal/reconciler"
	"settlement-reconciliation-service/internal/reporter"
	"settlement-reconciliation-service/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// settings is loaded by PreRunE from flags, environment and config file
var settings *config.Settings

// reconcileFlags are bound to viper under their own names
var reconcileFlags = []string{
	"settlement-file", "year", "month",
	"api-base-url", "timeout", "max-pages",
	"threshold", "top-n", "resolution",
	"branches-file", "header-rows", "day-offset", "sentinel", "delimiter",
	"output-format", "output-file", "no-color", "progress",
}

// reconcileCmd represents the reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile the settlement sheet against POS revenue for one month",
	Long: `Reconcile reads the monthly settlement sheet, fetches the service and
product transaction reports from the POS for the same month and compares the
two per branch.

The report lists category subtotals, the grand total, every branch whose
difference exceeds the threshold and a daily breakdown of the largest ones.

Examples:
  # Basic reconciliation
  reconciler reconcile --settlement-file desember.csv --year 2025 --month 12

  # JSON report written to a file
  reconciler reconcile -s desember.csv --year 2025 --month 12 \
    --output-format json --output-file reports/2025-12.json

  # Custom synonym table with normalized label matching
  reconciler reconcile -s desember.csv --year 2025 --month 12 \
    --branches-file branches.yaml --resolution normalized

  # Point at a staging POS and show progress
  reconciler reconcile -s desember.csv --year 2025 --month 12 \
    --api-base-url http://localhost:8080/api --progress`,

	PreRunE: loadReconcileSettings,
	RunE:    runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
	defaults := config.Defaults()
	flags := reconcileCmd.Flags()

	// Input
	flags.StringP("settlement-file", "s", "", "path to the exported settlement sheet (required)")
	flags.Int("year", 0, "year of the reconciled month (required)")
	flags.Int("month", 0, "reconciled month, 1-12 (required)")

	// POS
	flags.String("api-base-url", defaults.APIBaseURL, "POS report API base URL")
	flags.Duration("timeout", defaults.Timeout, "per-request timeout")
	flags.Int("max-pages", defaults.MaxPages, "maximum pages fetched per transaction category")

	// Matching
	flags.String("threshold", defaults.Threshold, "materiality threshold in rupiah")
	flags.Int("top-n", defaults.TopN, "number of divergent branches with a daily breakdown")
	flags.String("resolution", defaults.Resolution, "branch label resolution: exact or normalized")
	flags.String("branches-file", "", "YAML synonym and category table (default: built-in table)")

	// Sheet layout
	flags.Int("header-rows", defaults.HeaderRows, "preamble rows before the column header row")
	flags.Int("day-offset", defaults.DayOffset, "column index of day 1 minus one")
	flags.String("sentinel", defaults.Sentinel, "label of the totals row that ends the branch rows")
	flags.String("delimiter", defaults.Delimiter, "sheet field delimiter")

	// Output
	flags.StringP("output-format", "f", defaults.OutputFormat, "output format: console, json, csv")
	flags.StringP("output-file", "o", "", "output file path (default: stdout)")
	flags.Bool("no-color", false, "disable coloured console output")
	flags.Bool("progress", false, "show progress on stderr")

	for _, name := range reconcileFlags {
		viper.BindPFlag(name, flags.Lookup(name))
	}
}

func loadReconcileSettings(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	settings = loaded
	return nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	result, err := executeReconciliation(ctx, settings, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	if settings.Verbose {
		log := logger.GetGlobalLogger().WithComponent("cli")
		log.WithFields(logger.Fields{
			"run_id":     result.RunID,
			"branches":   len(result.Branches),
			"divergent":  len(result.Divergent),
			"difference": result.GrandTotal.Difference.String(),
			"partial":    result.Metadata.Partial(),
		}).Info("Reconciliation completed")
	}
	return nil
}

// executeReconciliation wires the extractors, the engine and the reporter
// from settings and writes the report to stdout or settings.OutputFile.
func executeReconciliation(ctx context.Context, settings *config.Settings, stdout, stderr io.Writer) (*reconciler.ReconciliationResult, error) {
	log := logger.GetGlobalLogger().WithComponent("cli")

	table, err := settings.LoadBranchTable()
	if err != nil {
		return nil, err
	}
	resolver := matcher.NewBranchResolver(table.Synonyms, settings.Strategy())

	parserConfig, err := settings.ParserConfig()
	if err != nil {
		return nil, err
	}
	parser, err := parsers.NewSettlementParser(parserConfig, resolver)
	if err != nil {
		return nil, err
	}

	client, err := pos.NewClient(settings.ClientConfig(), nil)
	if err != nil {
		return nil, err
	}
	aggregator, err := pos.NewAggregator(client, settings.AggregatorConfig())
	if err != nil {
		return nil, err
	}

	reconcilerConfig, err := settings.ReconcilerConfig(table)
	if err != nil {
		return nil, err
	}
	service, err := reconciler.NewReconciliationService(parser, aggregator, reconcilerConfig)
	if err != nil {
		return nil, err
	}
	service.SetResolver(resolver)

	if settings.Progress {
		service.AddProgressCallback(progressPrinter(stderr))
	}

	log.WithFields(logger.Fields{
		"settlement_file": settings.SettlementFile,
		"period":          settings.Period().String(),
		"api_base_url":    settings.APIBaseURL,
		"resolution":      resolver.Strategy().String(),
	}).Debug("Starting reconciliation")

	result, err := service.ProcessReconciliation(ctx, &reconciler.ReconciliationRequest{
		SettlementFile: settings.SettlementFile,
		Period:         settings.Period(),
	})
	if settings.Progress {
		fmt.Fprintln(stderr)
	}
	if err != nil {
		return nil, err
	}

	generator, err := reporter.NewSafeReportGenerator(settings.ReportConfig(), log)
	if err != nil {
		return nil, err
	}

	if settings.OutputFile == "" {
		if err := generator.GenerateReportSafely(result, stdout); err != nil {
			return nil, err
		}
		return result, nil
	}

	written, err := generator.WriteReportFile(result, settings.OutputFile)
	if err != nil {
		return nil, err
	}
	if written != settings.OutputFile {
		fmt.Fprintf(stderr, "Could not write %s; report saved to %s\n", settings.OutputFile, written)
	}
	return result, nil
}

// progressPrinter redraws a single status line on w
func progressPrinter(w io.Writer) reconciler.ProgressCallback {
	return func(progress *reconciler.ReconciliationProgress) {
		fmt.Fprintf(w, "\r[%d/%d] %s (%.0f%% complete, %d pages, %d records)",
			progress.CompletedSteps, progress.TotalSteps,
			progress.CurrentStep, progress.PercentComplete,
			progress.PagesFetched, progress.RecordsFetched)
	}
}

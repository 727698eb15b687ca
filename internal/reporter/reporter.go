// Package reporter renders reconciliation results.
//
// Supported output formats:
//   - Console: tiered, human-readable report for the terminal
//   - JSON: the structured result for programmatic consumption
//   - CSV: one row per branch for spreadsheet applications
//
// The console report follows the order a reviewer reads it in: category
// summaries, the grand total, divergent branches per category and finally
// the daily breakdown of the largest divergent branches.
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(&reporter.ReportConfig{Format: reporter.FormatJSON})
//	err = generator.GenerateReport(result, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"settlement-reconciliation-service/internal/models"
	"settlement-reconciliation-service/internal/reconciler"

	"github.com/shopspring/decimal"
)

// OutputFormat represents the supported report output formats.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ParseOutputFormat parses a format name, case-insensitively
func ParseOutputFormat(s string) (OutputFormat, error) {
	format := OutputFormat(strings.ToLower(strings.TrimSpace(s)))
	if !format.IsValid() {
		return "", fmt.Errorf("unsupported output format %q (use console, json or csv)", s)
	}
	return format, nil
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	// Console options
	UseColors          bool `json:"use_colors"`
	IncludeDailyDetail bool `json:"include_daily_detail"`
	IncludeMetadata    bool `json:"include_metadata"`
	RuleWidth          int  `json:"rule_width"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:             FormatConsole,
		UseColors:          true,
		IncludeDailyDetail: true,
		IncludeMetadata:    true,
		RuleWidth:          100,
		CSVDelimiter:       ',',
		CSVHeaders:         true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}

	if c.RuleWidth < 40 {
		return fmt.Errorf("rule width must be at least 40 characters, got %d", c.RuleWidth)
	}

	if c.CSVDelimiter == 0 || c.CSVDelimiter == '"' || c.CSVDelimiter == '\r' || c.CSVDelimiter == '\n' {
		return fmt.Errorf("invalid CSV delimiter %q", c.CSVDelimiter)
	}

	return nil
}

// ReportGenerator generates reconciliation reports in various formats
type ReportGenerator struct {
	config  *ReportConfig
	rupiah  *RupiahFormatter
	palette *palette
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{
		config:  config,
		rupiah:  NewRupiahFormatter(),
		palette: newPalette(config.UseColors),
	}, nil
}

// GetConfiguration returns the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}

// GenerateReport generates a report from reconciliation results and writes it to the provided writer
func (rg *ReportGenerator) GenerateReport(result *reconciler.ReconciliationResult, writer io.Writer) error {
	if result == nil {
		return fmt.Errorf("reconciliation result cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(result, writer)
	case FormatJSON:
		return rg.generateJSONReport(result, writer)
	case FormatCSV:
		return rg.generateCSVReport(result, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// generateConsoleReport generates the tiered console report
func (rg *ReportGenerator) generateConsoleReport(result *reconciler.ReconciliationResult, writer io.Writer) error {
	w := &errWriter{w: writer}
	rule := strings.Repeat("=", rg.config.RuleWidth)
	thin := strings.Repeat("-", rg.config.RuleWidth)

	w.println(rg.palette.title.Sprint(rule))
	w.println(rg.palette.title.Sprintf("SETTLEMENT vs POS RECONCILIATION - %s", result.Period))
	w.println(rg.palette.title.Sprint(rule))
	if result.RunID != "" {
		w.printf("Run ID:    %s\n", result.RunID)
	}
	w.printf("Threshold: %s\n\n", rg.rupiah.Format(result.Threshold))

	// Tier 1: category summaries and grand total
	for _, summary := range result.Categories {
		w.println(rg.palette.header.Sprintf("=== SUMMARY: %s ===", summary.Name))
		w.println(thin)
		rg.printTotals(w, summary.Totals)
		if result.Matched(summary.Category) {
			w.println(rg.palette.good.Sprintf("  MATCHED: difference below %s", rg.rupiah.Format(result.Threshold)))
		} else {
			rg.printDirection(w, "  ", summary.Direction(), summary.Difference, summary.PercentOfSettlement())
		}
		w.println("")
	}

	w.println(rg.palette.header.Sprint("=== GRAND TOTAL (all branches) ==="))
	w.println(thin)
	rg.printTotals(w, result.GrandTotal)
	w.printf("%s %d\n", dotted("Branches", 40), result.GrandTotal.Branches)
	w.printf("%s %d\n\n", dotted("Divergent branches", 40), len(result.Divergent))

	// Tier 2: divergent branches per category
	for _, summary := range result.Categories {
		w.println(rule)
		w.println(rg.palette.header.Sprintf("=== DIVERGENT: %s (difference > %s) ===",
			summary.Name, rg.rupiah.Format(result.Threshold)))
		w.println(rule)
		if len(summary.Divergent) == 0 {
			w.println(rg.palette.good.Sprintf("  All %s branches matched", summary.Name))
			w.println("")
			continue
		}
		for _, record := range summary.Divergent {
			rg.printBranch(w, record)
		}
	}

	var unclassified []*models.DiscrepancyRecord
	for _, record := range result.Divergent {
		if record.Category == models.Unclassified {
			unclassified = append(unclassified, record)
		}
	}
	if len(unclassified) > 0 {
		w.println(rule)
		w.println(rg.palette.header.Sprint("=== DIVERGENT: Unclassified ==="))
		w.println(rule)
		for _, record := range unclassified {
			rg.printBranch(w, record)
		}
	}

	// Tier 3: daily detail
	if rg.config.IncludeDailyDetail && len(result.DailyDetails) > 0 {
		w.println(rule)
		w.println(rg.palette.header.Sprintf("=== DAILY DETAIL (top %d divergent branches) ===", len(result.DailyDetails)))
		w.println(rule)
		for _, detail := range result.DailyDetails {
			rg.printDailyDetail(w, detail, thin)
		}
	}

	if rg.config.IncludeMetadata && result.Metadata != nil {
		rg.printMetadata(w, result.Metadata)
	}

	return w.err
}

func (rg *ReportGenerator) printTotals(w *errWriter, totals reconciler.Totals) {
	w.printf("%s Rp %20s\n", dotted("Total Settlement (CSV)", 40), rg.rupiah.Digits(totals.SettlementTotal))
	w.printf("%s Rp %20s\n", dotted("Total POS (API)", 40), rg.rupiah.Digits(totals.APITotal))
	w.printf("%s Rp %20s\n", dotted("Difference", 40), rg.rupiah.Digits(totals.Difference))
}

func (rg *ReportGenerator) printDirection(w *errWriter, indent string, direction models.Direction, difference, percent decimal.Decimal) {
	switch direction {
	case models.DirectionSettlementExceeds:
		w.println(rg.palette.bad.Sprintf("%sSETTLEMENT EXCEEDS POS by %s (%s%%)",
			indent, rg.rupiah.Format(difference.Abs()), percent.StringFixed(2)))
		w.println(rg.palette.muted.Sprintf("%s  sales were settled but never recorded in the POS", indent))
	case models.DirectionTransactionsExceed:
		w.println(rg.palette.warning.Sprintf("%sPOS EXCEEDS SETTLEMENT by %s (%s%%)",
			indent, rg.rupiah.Format(difference.Abs()), percent.StringFixed(2)))
		w.println(rg.palette.muted.Sprintf("%s  sales were recorded in the POS but never settled", indent))
	}
}

func (rg *ReportGenerator) printBranch(w *errWriter, record *models.DiscrepancyRecord) {
	w.printf("  %s\n", rg.palette.header.Sprint(record.Branch))
	w.printf("   Settlement (CSV): Rp %15s\n", rg.rupiah.Digits(record.SettlementTotal))
	w.printf("   POS (API):        Rp %15s\n", rg.rupiah.Digits(record.APITotal))
	w.printf("   Difference:       Rp %15s\n", rg.rupiah.Digits(record.Difference))
	rg.printDirection(w, "      ", record.Direction, record.Difference, record.PercentOfSettlement())
	w.println("")
}

func (rg *ReportGenerator) printDailyDetail(w *errWriter, detail *reconciler.BranchDailyDetail, thin string) {
	w.printf("\n%s\n", rg.palette.header.Sprint(detail.Branch.Branch))
	w.printf("%-12s %23s %23s %23s\n", "Date", "Settlement (CSV)", "POS (API)", "Difference")
	w.println(thin)
	if len(detail.Days) == 0 {
		w.println(rg.palette.muted.Sprint("  no single day exceeds the threshold"))
		return
	}
	for _, day := range detail.Days {
		w.printf("%-12s Rp %20s Rp %20s Rp %20s\n",
			day.Date,
			rg.rupiah.Digits(day.Settlement),
			rg.rupiah.Digits(day.API),
			rg.rupiah.Digits(day.Difference))
	}
}

func (rg *ReportGenerator) printMetadata(w *errWriter, metadata *reconciler.RunMetadata) {
	if len(metadata.Warnings) == 0 && len(metadata.UnresolvedLabels) == 0 && len(metadata.AmbiguousLabels) == 0 {
		return
	}

	w.println("")
	w.println(rg.palette.warning.Sprint("=== NOTES ==="))
	if metadata.Partial() {
		w.println(rg.palette.warning.Sprint("POS data is partial; totals below the real figures are expected"))
	}
	for _, warning := range metadata.Warnings {
		w.printf("  - %s\n", warning)
	}
	if len(metadata.UnresolvedLabels) > 0 {
		w.printf("Settlement labels without a synonym entry (reported as separate branches):\n")
		for _, label := range metadata.UnresolvedLabels {
			w.printf("  - %q\n", label)
		}
	}
	if len(metadata.AmbiguousLabels) > 0 {
		w.printf("Synonym keys that collide after normalization:\n")
		for _, label := range metadata.AmbiguousLabels {
			w.printf("  - %q\n", label)
		}
	}
}

// generateJSONReport writes the structured result
func (rg *ReportGenerator) generateJSONReport(result *reconciler.ReconciliationResult, writer io.Writer) error {
	output := *result
	if !rg.config.IncludeMetadata {
		output.Metadata = nil
	}
	if !rg.config.IncludeDailyDetail {
		output.DailyDetails = nil
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(&output)
}

// csvHeaders are the columns of the per-branch CSV report
var csvHeaders = []string{
	"branch",
	"category",
	"settlement_total",
	"api_total",
	"difference",
	"percent_of_settlement",
	"direction",
	"divergent",
}

// generateCSVReport writes one row per branch
func (rg *ReportGenerator) generateCSVReport(result *reconciler.ReconciliationResult, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		if err := csvWriter.Write(csvHeaders); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	divergent := make(map[string]bool, len(result.Divergent))
	for _, record := range result.Divergent {
		divergent[record.Branch] = true
	}

	for _, record := range result.Branches {
		row := []string{
			record.Branch,
			string(record.Category),
			record.SettlementTotal.String(),
			record.APITotal.String(),
			record.Difference.String(),
			record.PercentOfSettlement().StringFixed(2),
			string(record.Direction),
			fmt.Sprintf("%t", divergent[record.Branch]),
		}
		if err := csvWriter.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row for %s: %w", record.Branch, err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

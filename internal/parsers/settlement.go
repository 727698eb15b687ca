package parsers

import (
	"context"
	"time"

	"settlement-reconciliation-service/internal/models"
	"settlement-reconciliation-service/pkg/errors"
	"settlement-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// LabelResolver maps a raw sheet label onto a canonical branch name.
type LabelResolver interface {
	Resolve(label string) string
}

type identityResolver struct{}

func (identityResolver) Resolve(label string) string { return label }

// ExtractOptions controls how branch rows are read.
type ExtractOptions struct {
	DayColumnOffset int
	Year            int
	Month           int
	SentinelLabel   string
}

// ExtractStats counts what extraction did with the rows it was given
type ExtractStats struct {
	Rows         int `json:"rows"`
	SkippedRows  int `json:"skipped_rows"`
	BranchRows   int `json:"branch_rows"`
	ReplacedRows int `json:"replaced_rows"`
	CellsKept    int `json:"cells_kept"`
	ShortCells   int `json:"short_cells"`
}

// ExtractSettlement turns branch rows into a settlement ledger.
//
// Rows whose first cell is empty or equals the sentinel label are skipped.
// Day d is read from column DayColumnOffset+d for every day of the month;
// only strictly positive amounts are kept. Every retained row creates its
// branch in the ledger even when no day has revenue, and a later row that
// resolves to the same branch replaces the earlier one.
func ExtractSettlement(rows [][]string, opts ExtractOptions, resolver LabelResolver) models.DailyLedger {
	ledger, _ := extractSettlement(rows, opts, resolver)
	return ledger
}

func extractSettlement(rows [][]string, opts ExtractOptions, resolver LabelResolver) (models.DailyLedger, *ExtractStats) {
	if resolver == nil {
		resolver = identityResolver{}
	}

	period := models.YearMonth{Year: opts.Year, Month: opts.Month}
	days := period.DaysInMonth()
	ledger := models.NewDailyLedger()
	stats := &ExtractStats{Rows: len(rows)}

	for _, row := range rows {
		if len(row) == 0 || row[0] == "" || row[0] == opts.SentinelLabel {
			stats.SkippedRows++
			continue
		}

		branch := resolver.Resolve(row[0])
		if _, exists := ledger[branch]; exists {
			stats.ReplacedRows++
		}
		stats.BranchRows++

		entries := make(map[string]decimal.Decimal)
		for day := 1; day <= days; day++ {
			col := opts.DayColumnOffset + day
			if col >= len(row) {
				stats.ShortCells++
				continue
			}
			amount := models.NormalizeAmountString(row[col])
			if amount.IsPositive() {
				entries[period.Date(day)] = amount
			}
		}

		ledger[branch] = entries
	}

	// cells from replaced rows are not counted
	stats.CellsKept = ledger.RecordCount()
	return ledger, stats
}

// ParseStats contains statistics about a settlement file parse
type ParseStats struct {
	FilePath       string        `json:"file_path"`
	RecordsRead    int           `json:"records_read"`
	MalformedRows  int           `json:"malformed_rows"`
	Extract        ExtractStats  `json:"extract"`
	Branches       int           `json:"branches"`
	ProcessingTime time.Duration `json:"processing_time"`
}

// SettlementParser reads settlement sheets from disk.
type SettlementParser struct {
	*BaseParser
	config   *SettlementParserConfig
	resolver LabelResolver
	logger   logger.Logger
}

// NewSettlementParser creates a parser for the configured sheet layout. A nil
// resolver keeps labels unchanged.
func NewSettlementParser(config *SettlementParserConfig, resolver LabelResolver) (*SettlementParser, error) {
	if config == nil {
		config = DefaultSettlementParserConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "settlement parser", config, err)
	}

	base := NewBaseParser(&ParseConfig{
		Delimiter:        config.Delimiter,
		LazyQuotes:       true,
		ValidateEncoding: config.ValidateUTF8,
	})

	return &SettlementParser{
		BaseParser: base,
		config:     config,
		resolver:   resolver,
		logger:     logger.GetGlobalLogger().WithComponent("settlement_parser"),
	}, nil
}

// ParseFile reads path and extracts the settlement ledger for period.
func (sp *SettlementParser) ParseFile(ctx context.Context, path string, period models.YearMonth) (models.DailyLedger, *ParseStats, error) {
	start := time.Now()

	if err := period.Validate(); err != nil {
		return nil, nil, errors.ConfigurationError(errors.CodeInvalidConfig, "period", period, err)
	}

	file, reader, err := sp.OpenFile(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	rows, malformed, err := sp.ReadRows(ctx, reader, path, sp.config.rowsBeforeData())
	if err != nil {
		return nil, nil, err
	}

	ledger, extractStats := extractSettlement(rows, ExtractOptions{
		DayColumnOffset: sp.config.DayColumnOffset,
		Year:            period.Year,
		Month:           period.Month,
		SentinelLabel:   sp.config.SentinelLabel,
	}, sp.resolver)

	stats := &ParseStats{
		FilePath:       path,
		RecordsRead:    len(rows),
		MalformedRows:  malformed,
		Extract:        *extractStats,
		Branches:       len(ledger),
		ProcessingTime: time.Since(start),
	}

	fields := logger.Fields{
		"file_path":    path,
		"branch_rows":  extractStats.BranchRows,
		"branches":     stats.Branches,
		"cells_kept":   extractStats.CellsKept,
		"skipped_rows": extractStats.SkippedRows,
		"malformed":    malformed,
		"duration":     stats.ProcessingTime.String(),
	}
	if extractStats.ReplacedRows > 0 {
		sp.logger.WithField("replaced_rows", extractStats.ReplacedRows).
			Warn("Several sheet rows resolved to the same branch; later rows replaced earlier ones")
	}
	if extractStats.BranchRows == 0 {
		sp.logger.WithFields(fields).Warn("Settlement file contains no branch rows")
	} else {
		sp.logger.WithFields(fields).Info("Settlement file parsed")
	}

	return ledger, stats, nil
}

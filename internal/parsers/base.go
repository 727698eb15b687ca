// Package parsers reads the manually exported settlement sheet.
//
// The sheet is a delimited file with a few preamble rows, a column header
// row and then one row per branch: the first cell is the branch label and
// each following cell holds one day's settled revenue. Parsing is split in
// two layers:
//   - BaseParser owns file handling: opening, UTF-8 validation, CSV reader
//     setup and row reading with cancellation.
//   - ExtractSettlement is a pure function from rows to a DailyLedger, so
//     the extraction rules can be tested without touching the filesystem.
//
// Example usage:
//
//	config := parsers.DefaultSettlementParserConfig()
//	parser, err := parsers.NewSettlementParser(config, resolver)
//	ledger, stats, err := parser.ParseFile(ctx, "settlement.csv", models.YearMonth{Year: 2025, Month: 12})
//
// Cell contents are lenient: unreadable amounts become zero and are dropped.
// Only a missing or unreadable file, or one that ends before its first
// branch row, is an error.
package parsers

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"settlement-reconciliation-service/pkg/errors"
	"settlement-reconciliation-service/pkg/logger"
)

// ParseConfig holds configuration for CSV reading
type ParseConfig struct {
	Delimiter        rune
	Comment          rune
	LazyQuotes       bool
	ValidateEncoding bool
	// EncodingCheckLines bounds the UTF-8 scan; zero scans the whole file.
	EncodingCheckLines int
}

// DefaultParseConfig returns a configuration with sensible defaults
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		Delimiter:          ',',
		LazyQuotes:         true,
		ValidateEncoding:   true,
		EncodingCheckLines: 0,
	}
}

// BaseParser provides common CSV reading functionality
type BaseParser struct {
	config *ParseConfig
	logger logger.Logger
}

// NewBaseParser creates a new BaseParser with the given configuration
func NewBaseParser(config *ParseConfig) *BaseParser {
	if config == nil {
		config = DefaultParseConfig()
	}

	log := logger.GetGlobalLogger().WithComponent("base_parser")
	log.WithFields(logger.Fields{
		"delimiter":         string(config.Delimiter),
		"validate_encoding": config.ValidateEncoding,
	}).Debug("Created base parser")

	return &BaseParser{
		config: config,
		logger: log,
	}
}

// OpenFile opens a CSV file and returns a configured csv.Reader
func (bp *BaseParser) OpenFile(filePath string) (*os.File, *csv.Reader, error) {
	bp.logger.WithField("file_path", filePath).Debug("Opening CSV file")

	file, err := os.Open(filePath)
	if err != nil {
		bp.logger.WithError(err).WithField("file_path", filePath).Error("Failed to open CSV file")

		if os.IsNotExist(err) {
			return nil, nil, errors.FileError(errors.CodeFileNotFound, filePath, err)
		}
		if os.IsPermission(err) {
			return nil, nil, errors.FileError(errors.CodeFilePermission, filePath, err)
		}
		return nil, nil, errors.FileError(errors.CodeDirectoryError, filePath, err)
	}

	if bp.config.ValidateEncoding {
		if err := bp.validateEncoding(file, filePath); err != nil {
			file.Close()
			bp.logger.WithError(err).WithField("file_path", filePath).Error("File encoding validation failed")
			return nil, nil, err
		}

		if _, err := file.Seek(0, io.SeekStart); err != nil {
			file.Close()
			return nil, nil, errors.FileError(errors.CodeFileCorrupted, filePath, err)
		}
	}

	reader := csv.NewReader(file)
	bp.configureReader(reader)

	return file, reader, nil
}

// configureReader applies the parse configuration. Leading spaces are never
// trimmed: branch labels are matched whitespace-exact.
func (bp *BaseParser) configureReader(reader *csv.Reader) {
	reader.Comma = bp.config.Delimiter
	reader.Comment = bp.config.Comment
	reader.LazyQuotes = bp.config.LazyQuotes
	reader.TrimLeadingSpace = false
	reader.FieldsPerRecord = -1
}

// validateEncoding checks the file contains valid UTF-8 text
func (bp *BaseParser) validateEncoding(file *os.File, filePath string) error {
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		if !utf8.Valid(scanner.Bytes()) {
			return errors.ParseError(errors.CodeEncodingError, filePath, lineNum,
				fmt.Errorf("invalid UTF-8 encoding detected"))
		}
		if bp.config.EncodingCheckLines > 0 && lineNum >= bp.config.EncodingCheckLines {
			break
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.FileError(errors.CodeFileCorrupted, filePath, err)
	}
	return nil
}

// ReadRows reads every remaining record from reader. The first skip
// records are discarded. Malformed records are logged and skipped; the
// returned count says how many were dropped that way.
//
// A file that ends before the first data row is a CodeEmptyFile error, and
// one where no record could be read at all is CodeInvalidFormat.
func (bp *BaseParser) ReadRows(ctx context.Context, reader *csv.Reader, filePath string, skip int) ([][]string, int, error) {
	var rows [][]string
	var lastErr error
	malformed := 0
	line := 0

	for {
		if ctx.Err() != nil {
			return nil, malformed, errors.InternalError(errors.CodeCancelled, "settlement parsing", ctx.Err())
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			malformed++
			lastErr = err
			bp.logger.WithError(err).WithFields(logger.Fields{
				"file_path": filePath,
				"line":      line,
			}).Warn("Skipping malformed CSV record")
			continue
		}

		if line <= skip {
			continue
		}
		rows = append(rows, record)
	}

	if line > 0 && malformed == line {
		return nil, malformed, errors.ParseError(errors.CodeInvalidFormat, filePath, line, lastErr)
	}
	if line == 0 || line < skip {
		return nil, malformed, errors.ParseError(errors.CodeEmptyFile, filePath, line, nil).
			WithContext("rows_expected_before_data", skip)
	}

	return rows, malformed, nil
}

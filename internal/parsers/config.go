package parsers

import (
	"fmt"
	"strings"
)

// SettlementParserConfig describes the layout of the exported settlement sheet
type SettlementParserConfig struct {
	// SkipRows is the number of preamble rows before the column header row.
	SkipRows int `json:"skip_rows"`
	// HasHeader says a column header row follows the preamble.
	HasHeader bool `json:"has_header"`
	// DayColumnOffset places day d at column index DayColumnOffset+d.
	DayColumnOffset int    `json:"day_column_offset"`
	SentinelLabel   string `json:"sentinel_label"`
	Delimiter       rune   `json:"delimiter"`
	ValidateUTF8    bool   `json:"validate_utf8"`
}

// DefaultSettlementParserConfig returns the layout of the monthly export
func DefaultSettlementParserConfig() *SettlementParserConfig {
	return &SettlementParserConfig{
		SkipRows:        2,
		HasHeader:       true,
		DayColumnOffset: 2,
		SentinelLabel:   "revenue",
		Delimiter:       ',',
		ValidateUTF8:    true,
	}
}

// Validate checks if the parser configuration is valid
func (c *SettlementParserConfig) Validate() error {
	if c.SkipRows < 0 {
		return fmt.Errorf("skip rows cannot be negative: %d", c.SkipRows)
	}
	if c.DayColumnOffset < 0 {
		return fmt.Errorf("day column offset cannot be negative: %d", c.DayColumnOffset)
	}
	if strings.TrimSpace(c.SentinelLabel) == "" {
		return fmt.Errorf("sentinel label cannot be empty")
	}
	if c.Delimiter == 0 || c.Delimiter == '\n' || c.Delimiter == '\r' || c.Delimiter == '"' {
		return fmt.Errorf("invalid delimiter %q", c.Delimiter)
	}
	return nil
}

// rowsBeforeData is the number of records discarded before branch rows
func (c *SettlementParserConfig) rowsBeforeData() int {
	if c.HasHeader {
		return c.SkipRows + 1
	}
	return c.SkipRows
}

// ParseDelimiter converts a flag value such as "," or "\t" into a rune
func ParseDelimiter(s string) (rune, error) {
	switch s {
	case `\t`, "tab", "\t":
		return '\t', nil
	}
	runes := []rune(s)
	if len(runes) != 1 {
		return 0, fmt.Errorf("delimiter must be a single character, got %q", s)
	}
	return runes[0], nil
}

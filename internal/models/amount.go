package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// currencyNoise lists the substrings stripped from settlement cells before
// parsing. Dots and commas are thousands separators in the exported sheet,
// so a cell never carries a fractional part.
var currencyNoise = []string{"Rp", "rp", "RP", "IDR", ",", ".", " ", " ", "\t"}

// NormalizeAmountString converts a formatted settlement cell such as
// "Rp 1.000.000" into a whole-unit amount. Blank or unparseable cells
// yield zero; the extractor treats zero as "no settlement that day".
func NormalizeAmountString(s string) decimal.Decimal {
	cleaned := strings.TrimSpace(s)
	if cleaned == "" {
		return decimal.Zero
	}

	for _, noise := range currencyNoise {
		cleaned = strings.ReplaceAll(cleaned, noise, "")
	}
	if cleaned == "" {
		return decimal.Zero
	}

	n, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		return decimal.Zero
	}
	return decimal.NewFromInt(n)
}

// NormalizeAmount converts an already-typed cell value into an amount.
// Numbers pass through unchanged, strings go through NormalizeAmountString,
// and anything else is zero.
func NormalizeAmount(value interface{}) decimal.Decimal {
	switch v := value.(type) {
	case nil:
		return decimal.Zero
	case decimal.Decimal:
		return v
	case int:
		return decimal.NewFromInt(int64(v))
	case int32:
		return decimal.NewFromInt(int64(v))
	case int64:
		return decimal.NewFromInt(v)
	case uint:
		return decimal.NewFromUint64(uint64(v))
	case uint32:
		return decimal.NewFromUint64(uint64(v))
	case uint64:
		return decimal.NewFromUint64(v)
	case float32:
		return fromFloat(float64(v))
	case float64:
		return fromFloat(v)
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		if err != nil {
			return decimal.Zero
		}
		return d
	case string:
		return NormalizeAmountString(v)
	default:
		return decimal.Zero
	}
}

func fromFloat(f float64) decimal.Decimal {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}

// ParseDecimalValue parses a transaction amount as reported by the POS API.
// Unlike settlement cells, API amounts use a dot as the decimal separator,
// so "150000.00" is one hundred fifty thousand.
func ParseDecimalValue(value interface{}) (decimal.Decimal, error) {
	switch v := value.(type) {
	case nil:
		return decimal.Zero, fmt.Errorf("amount is null")
	case json.Number:
		return ParseDecimalFromString(v.String())
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.Zero, fmt.Errorf("amount is not finite")
		}
		return decimal.NewFromFloat(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case string:
		return ParseDecimalFromString(v)
	default:
		return decimal.Zero, fmt.Errorf("unsupported amount type %T", value)
	}
}

// ParseDecimalFromString parses a plain decimal string
func ParseDecimalFromString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}
	return d, nil
}

package pos

import (
	"encoding/json"
	"fmt"
	"strings"

	"settlement-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

// FieldSelector picks a value out of a record from an ordered list of
// candidate keys. The first candidate holding a usable value wins; null,
// empty strings, false and numeric zero fall through to the next key.
type FieldSelector struct {
	Name       string   `json:"name" mapstructure:"name"`
	Candidates []string `json:"candidates" mapstructure:"candidates"`
}

// Select returns the first usable value and the key it came from
func (fs FieldSelector) Select(record Record) (interface{}, string, bool) {
	for _, key := range fs.Candidates {
		value, ok := record[key]
		if !ok || isBlank(value) {
			continue
		}
		return value, key, true
	}
	return nil, "", false
}

// String returns the selected value rendered as text, or "".
func (fs FieldSelector) String(record Record) string {
	value, _, ok := fs.Select(record)
	if !ok {
		return ""
	}
	return stringify(value)
}

func isBlank(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case bool:
		return !v
	case float64:
		return v == 0
	case json.Number:
		f, err := v.Float64()
		return err == nil && f == 0
	default:
		return false
	}
}

func stringify(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// FieldSelectors is the set of selectors the Aggregator reads records with.
type FieldSelectors struct {
	Date   FieldSelector `json:"date" mapstructure:"date"`
	Branch FieldSelector `json:"branch" mapstructure:"branch"`
	Amount FieldSelector `json:"amount" mapstructure:"amount"`
}

// DefaultFieldSelectors returns the field names the POS report API uses
func DefaultFieldSelectors() FieldSelectors {
	return FieldSelectors{
		Date: FieldSelector{
			Name:       "date",
			Candidates: []string{"tanggal_transaksi", "tanggal", "created_at"},
		},
		Branch: FieldSelector{
			Name:       "branch",
			Candidates: []string{"nama_clinic", "nama_klinik", "klinik"},
		},
		Amount: FieldSelector{
			Name:       "amount",
			Candidates: []string{"total_bayar", "total_pembayaran", "total", "nominal"},
		},
	}
}

// Validate checks every selector has at least one candidate
func (s FieldSelectors) Validate() error {
	for _, fs := range []FieldSelector{s.Date, s.Branch, s.Amount} {
		if len(fs.Candidates) == 0 {
			return fmt.Errorf("field selector %q has no candidates", fs.Name)
		}
	}
	return nil
}

// DatePart truncates a timestamp to its calendar date: "2025-12-05 14:30:00"
// and "2025-12-05T14:30:00Z" both become "2025-12-05".
func DatePart(value string) string {
	if i := strings.IndexAny(value, " T"); i >= 0 {
		return value[:i]
	}
	return value
}

// extracted is a record reduced to the three fields the ledger needs.
type extracted struct {
	date        string
	branch      string
	amount      decimal.Decimal
	amountValid bool
}

func (s FieldSelectors) extract(record Record) extracted {
	out := extracted{
		date:        DatePart(s.Date.String(record)),
		branch:      s.Branch.String(record),
		amount:      decimal.Zero,
		amountValid: true,
	}

	if raw, _, ok := s.Amount.Select(record); ok {
		amount, err := models.ParseDecimalValue(raw)
		if err != nil {
			out.amountValid = false
		} else {
			out.amount = amount
		}
	}
	return out
}

// Package models holds the data shapes shared by the extractors, the
// reconciliation engine and the reporter.
//
// Both revenue sources are normalized into a DailyLedger, a mapping from
// canonical branch name to ISO date to amount. Amounts are
// github.com/shopspring/decimal values so that summing a month of receipts
// never accumulates float rounding.
package models

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the ISO calendar-day layout used for every ledger key.
const DateLayout = "2006-01-02"

// DailyLedger maps canonical branch -> ISO date -> amount.
type DailyLedger map[string]map[string]decimal.Decimal

// NewDailyLedger creates an empty ledger
func NewDailyLedger() DailyLedger {
	return make(DailyLedger)
}

// Set stores amount at (branch, date), replacing any previous value.
func (l DailyLedger) Set(branch, date string, amount decimal.Decimal) {
	days, ok := l[branch]
	if !ok {
		days = make(map[string]decimal.Decimal)
		l[branch] = days
	}
	days[date] = amount
}

// Add accumulates amount at (branch, date). The first insertion starts
// from zero, so a zero amount still creates the key.
func (l DailyLedger) Add(branch, date string, amount decimal.Decimal) {
	days, ok := l[branch]
	if !ok {
		days = make(map[string]decimal.Decimal)
		l[branch] = days
	}
	days[date] = days[date].Add(amount)
}

// Get returns the amount at (branch, date), or zero when absent.
func (l DailyLedger) Get(branch, date string) decimal.Decimal {
	return l[branch][date]
}

// BranchTotal sums every date recorded for branch. Absent branches total zero.
func (l DailyLedger) BranchTotal(branch string) decimal.Decimal {
	total := decimal.Zero
	for _, amount := range l[branch] {
		total = total.Add(amount)
	}
	return total
}

// Total sums the whole ledger.
func (l DailyLedger) Total() decimal.Decimal {
	total := decimal.Zero
	for branch := range l {
		total = total.Add(l.BranchTotal(branch))
	}
	return total
}

// Branches returns the branch keys in ascending order.
func (l DailyLedger) Branches() []string {
	branches := make([]string, 0, len(l))
	for branch := range l {
		branches = append(branches, branch)
	}
	sort.Strings(branches)
	return branches
}

// Dates returns the dates recorded for branch in ascending order.
func (l DailyLedger) Dates(branch string) []string {
	dates := make([]string, 0, len(l[branch]))
	for date := range l[branch] {
		dates = append(dates, date)
	}
	sort.Strings(dates)
	return dates
}

// RecordCount returns the number of (branch, date) entries.
func (l DailyLedger) RecordCount() int {
	count := 0
	for _, days := range l {
		count += len(days)
	}
	return count
}

// UnionBranches returns the sorted union of branch keys across ledgers.
func UnionBranches(ledgers ...DailyLedger) []string {
	seen := make(map[string]struct{})
	for _, ledger := range ledgers {
		for branch := range ledger {
			seen[branch] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// UnionDates returns the sorted union of dates recorded for branch.
func UnionDates(branch string, ledgers ...DailyLedger) []string {
	seen := make(map[string]struct{})
	for _, ledger := range ledgers {
		for date := range ledger[branch] {
			seen[date] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// YearMonth identifies the reconciled calendar month.
type YearMonth struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// Validate checks the month is a real calendar month
func (ym YearMonth) Validate() error {
	if ym.Year < 1 {
		return fmt.Errorf("year must be positive, got %d", ym.Year)
	}
	if ym.Month < 1 || ym.Month > 12 {
		return fmt.Errorf("month must be between 1 and 12, got %d", ym.Month)
	}
	return nil
}

// Prefix returns the "YYYY-MM" prefix every in-month ISO date starts with.
func (ym YearMonth) Prefix() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, ym.Month)
}

// DaysInMonth returns the number of days in the month.
func (ym YearMonth) DaysInMonth() int {
	return time.Date(ym.Year, time.Month(ym.Month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Date returns the ISO date of day within the month.
func (ym YearMonth) Date(day int) string {
	return fmt.Sprintf("%s-%02d", ym.Prefix(), day)
}

// FirstDay returns the ISO date of the first day of the month.
func (ym YearMonth) FirstDay() string {
	return ym.Date(1)
}

// LastDay returns the ISO date of the last day of the month.
func (ym YearMonth) LastDay() string {
	return ym.Date(ym.DaysInMonth())
}

// String returns e.g. "December 2025"
func (ym YearMonth) String() string {
	return fmt.Sprintf("%s %d", time.Month(ym.Month), ym.Year)
}

// BranchCategory is the derived business-type grouping of a branch.
type BranchCategory string

const (
	CategoryA    BranchCategory = "category_a"
	CategoryB    BranchCategory = "category_b"
	Unclassified BranchCategory = "unclassified"
)

// String returns the string representation of BranchCategory
func (c BranchCategory) String() string {
	return string(c)
}

// Direction explains the sign of a difference.
type Direction string

const (
	// DirectionSettlementExceeds means more money was settled than sold,
	// usually a sale that never reached the POS.
	DirectionSettlementExceeds Direction = "settlement_exceeds"
	// DirectionTransactionsExceed means the POS recorded sales that were
	// not settled.
	DirectionTransactionsExceed Direction = "transactions_exceed"
	DirectionBalanced           Direction = "balanced"
)

// DirectionOf returns the direction label for a settlement-minus-API difference.
func DirectionOf(difference decimal.Decimal) Direction {
	switch difference.Sign() {
	case 1:
		return DirectionSettlementExceeds
	case -1:
		return DirectionTransactionsExceed
	default:
		return DirectionBalanced
	}
}

// DiscrepancyRecord compares one branch's monthly totals.
type DiscrepancyRecord struct {
	Branch          string          `json:"branch"`
	Category        BranchCategory  `json:"category"`
	SettlementTotal decimal.Decimal `json:"settlement_total"`
	APITotal        decimal.Decimal `json:"api_total"`
	Difference      decimal.Decimal `json:"difference"`
	Direction       Direction       `json:"direction"`
}

// NewDiscrepancyRecord builds a record and derives its difference and direction.
func NewDiscrepancyRecord(branch string, category BranchCategory, settlement, api decimal.Decimal) *DiscrepancyRecord {
	difference := settlement.Sub(api)
	return &DiscrepancyRecord{
		Branch:          branch,
		Category:        category,
		SettlementTotal: settlement,
		APITotal:        api,
		Difference:      difference,
		Direction:       DirectionOf(difference),
	}
}

// AbsDifference returns |Difference|.
func (r *DiscrepancyRecord) AbsDifference() decimal.Decimal {
	return r.Difference.Abs()
}

// PercentOfSettlement returns |Difference| as a percentage of the settlement
// total, or zero when nothing was settled.
func (r *DiscrepancyRecord) PercentOfSettlement() decimal.Decimal {
	if !r.SettlementTotal.IsPositive() {
		return decimal.Zero
	}
	return r.AbsDifference().Div(r.SettlementTotal).Mul(decimal.NewFromInt(100))
}

// String returns a string representation of the record
func (r *DiscrepancyRecord) String() string {
	return fmt.Sprintf("Discrepancy{Branch: %s, Settlement: %s, API: %s, Difference: %s}",
		r.Branch, r.SettlementTotal.String(), r.APITotal.String(), r.Difference.String())
}

// DailyDiscrepancy is one day of a branch's per-date breakdown.
type DailyDiscrepancy struct {
	Date       string          `json:"date"`
	Settlement decimal.Decimal `json:"settlement"`
	API        decimal.Decimal `json:"api"`
	Difference decimal.Decimal `json:"difference"`
}

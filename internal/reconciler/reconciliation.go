package reconciler

import (
	"fmt"
	"time"

	"settlement-reconciliation-service/internal/matcher"
	"settlement-reconciliation-service/internal/models"
	"settlement-reconciliation-service/internal/parsers"
	"settlement-reconciliation-service/internal/pos"

	"github.com/shopspring/decimal"
)

// DefaultThreshold is the materiality threshold, Rp 1.000.
var DefaultThreshold = decimal.NewFromInt(1000)

// DefaultTopN is how many divergent branches get a daily breakdown.
const DefaultTopN = 5

// Config holds configuration options for the reconciliation engine
type Config struct {
	// Threshold is the materiality threshold. A branch diverges when its
	// absolute difference is strictly greater.
	Threshold decimal.Decimal

	// TopN limits the daily breakdown to the largest divergent branches.
	TopN int

	Classifier *matcher.CategoryClassifier
}

// DefaultConfig returns a default configuration for the reconciliation engine
func DefaultConfig() *Config {
	return &Config{
		Threshold:  DefaultThreshold,
		TopN:       DefaultTopN,
		Classifier: matcher.DefaultCategoryClassifier(),
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Threshold.IsNegative() {
		return fmt.Errorf("threshold cannot be negative, got %s", c.Threshold)
	}

	if c.TopN < 0 {
		return fmt.Errorf("top-n cannot be negative, got %d", c.TopN)
	}

	return nil
}

func (c *Config) classifier() *matcher.CategoryClassifier {
	if c.Classifier == nil {
		return matcher.DefaultCategoryClassifier()
	}
	return c.Classifier
}

// ReconciliationRequest represents a request for reconciliation
type ReconciliationRequest struct {
	SettlementFile string
	Period         models.YearMonth
}

// Validate validates the reconciliation request
func (r *ReconciliationRequest) Validate() error {
	if r.SettlementFile == "" {
		return fmt.Errorf("settlement file path is required")
	}

	if err := r.Period.Validate(); err != nil {
		return fmt.Errorf("invalid period: %w", err)
	}

	return nil
}

// Totals sums settlement, POS and difference over a set of branches
type Totals struct {
	Branches        int             `json:"branches"`
	SettlementTotal decimal.Decimal `json:"settlement_total"`
	APITotal        decimal.Decimal `json:"api_total"`
	Difference      decimal.Decimal `json:"difference"`
}

func (t *Totals) add(record *models.DiscrepancyRecord) {
	t.Branches++
	t.SettlementTotal = t.SettlementTotal.Add(record.SettlementTotal)
	t.APITotal = t.APITotal.Add(record.APITotal)
	t.Difference = t.Difference.Add(record.Difference)
}

// Direction labels the sign of the net difference
func (t Totals) Direction() models.Direction {
	return models.DirectionOf(t.Difference)
}

// PercentOfSettlement returns |Difference| as a percentage of the
// settlement total, or zero when nothing was settled.
func (t Totals) PercentOfSettlement() decimal.Decimal {
	if !t.SettlementTotal.IsPositive() {
		return decimal.Zero
	}
	return t.Difference.Abs().Div(t.SettlementTotal).Mul(decimal.NewFromInt(100))
}

// CategorySummary holds the subtotal and divergent branches of one category
type CategorySummary struct {
	Category models.BranchCategory `json:"category"`
	Name     string                `json:"name"`
	Totals
	Divergent []*models.DiscrepancyRecord `json:"divergent"`
}

// BranchDailyDetail is the per-date breakdown of one divergent branch
type BranchDailyDetail struct {
	Branch *models.DiscrepancyRecord `json:"branch"`
	Days   []models.DailyDiscrepancy `json:"days"`
}

// RunMetadata describes how a result was produced. It is only set by
// ReconciliationService.
type RunMetadata struct {
	SettlementFile     string              `json:"settlement_file"`
	ProcessedAt        time.Time           `json:"processed_at"`
	Duration           time.Duration       `json:"duration"`
	ResolutionStrategy string              `json:"resolution_strategy,omitempty"`
	UnresolvedLabels   []string            `json:"unresolved_labels,omitempty"`
	AmbiguousLabels    []string            `json:"ambiguous_labels,omitempty"`
	Settlement         *parsers.ParseStats `json:"settlement,omitempty"`
	Transactions       *pos.AggregateStats `json:"transactions,omitempty"`
	Warnings           []string            `json:"warnings,omitempty"`
}

// Partial reports whether the POS side was cut short by an error or the
// page cap.
func (m *RunMetadata) Partial() bool {
	return m != nil && m.Transactions != nil && m.Transactions.Partial()
}

// ReconciliationResult contains the complete results of reconciliation
type ReconciliationResult struct {
	RunID     string           `json:"run_id,omitempty"`
	Period    models.YearMonth `json:"period"`
	Threshold decimal.Decimal  `json:"threshold"`

	// Branches holds one record per branch in either ledger, by name.
	Branches []*models.DiscrepancyRecord `json:"branches"`

	// Categories holds category A then category B. Unclassified branches
	// only count towards GrandTotal.
	Categories []*CategorySummary `json:"categories"`
	GrandTotal Totals             `json:"grand_total"`

	// Divergent holds every divergent branch, classified or not, largest
	// absolute difference first.
	Divergent []*models.DiscrepancyRecord `json:"divergent"`

	DailyDetails []*BranchDailyDetail `json:"daily_details,omitempty"`

	Metadata *RunMetadata `json:"metadata,omitempty"`

	settlement   models.DailyLedger
	transactions models.DailyLedger
}

// Category returns the summary for category, or nil for Unclassified
func (r *ReconciliationResult) Category(category models.BranchCategory) *CategorySummary {
	for _, summary := range r.Categories {
		if summary.Category == category {
			return summary
		}
	}
	return nil
}

// Branch returns the record for a branch, or nil if neither ledger has it
func (r *ReconciliationResult) Branch(name string) *models.DiscrepancyRecord {
	for _, record := range r.Branches {
		if record.Branch == name {
			return record
		}
	}
	return nil
}

// BranchDifference returns the settlement-minus-POS difference of a branch
func (r *ReconciliationResult) BranchDifference(name string) decimal.Decimal {
	if record := r.Branch(name); record != nil {
		return record.Difference
	}
	return decimal.Zero
}

// Matched reports whether a category's net difference is below the
// threshold.
func (r *ReconciliationResult) Matched(category models.BranchCategory) bool {
	summary := r.Category(category)
	if summary == nil {
		return false
	}
	return summary.Difference.Abs().LessThan(r.Threshold)
}

// TopDivergent returns at most n divergent branches, largest first
func (r *ReconciliationResult) TopDivergent(n int) []*models.DiscrepancyRecord {
	if n <= 0 {
		return nil
	}
	if n > len(r.Divergent) {
		n = len(r.Divergent)
	}
	return r.Divergent[:n]
}

// DailyBreakdown returns the dates on which branch differs by more than
// the threshold.
func (r *ReconciliationResult) DailyBreakdown(branch string) []models.DailyDiscrepancy {
	return DailyBreakdown(r.settlement, r.transactions, branch, r.Threshold)
}

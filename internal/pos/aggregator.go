package pos

import (
	"context"
	"fmt"
	"strings"
	"time"

	"settlement-reconciliation-service/internal/models"
	"settlement-reconciliation-service/pkg/logger"
)

// DefaultMaxPages bounds pagination per category.
const DefaultMaxPages = 200

// AggregatorConfig holds configuration for the transaction aggregator
type AggregatorConfig struct {
	MaxPages   int                   `json:"max_pages"`
	Categories []TransactionCategory `json:"categories"`
	Fields     FieldSelectors        `json:"fields"`
}

// DefaultAggregatorConfig returns the configuration used against the POS
func DefaultAggregatorConfig() *AggregatorConfig {
	return &AggregatorConfig{
		MaxPages:   DefaultMaxPages,
		Categories: append([]TransactionCategory(nil), AllCategories...),
		Fields:     DefaultFieldSelectors(),
	}
}

// Validate checks if the aggregator configuration is valid
func (c *AggregatorConfig) Validate() error {
	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive: %d", c.MaxPages)
	}
	if len(c.Categories) == 0 {
		return fmt.Errorf("at least one transaction category is required")
	}
	for _, category := range c.Categories {
		if !category.IsValid() {
			return fmt.Errorf("invalid transaction category %q", category)
		}
	}
	return c.Fields.Validate()
}

// CategoryStats describes the fetch of one category
type CategoryStats struct {
	Category        TransactionCategory `json:"category"`
	Pages           int                 `json:"pages"`
	RecordsSeen     int                 `json:"records_seen"`
	RecordsKept     int                 `json:"records_kept"`
	DiscardedDate   int                 `json:"discarded_date"`
	DiscardedBranch int                 `json:"discarded_branch"`
	InvalidAmounts  int                 `json:"invalid_amounts"`
	Truncated       bool                `json:"truncated"`
	Error           string              `json:"error,omitempty"`
	Err             error               `json:"-"`
	Duration        time.Duration       `json:"duration"`
}

// Failed reports whether pagination stopped on an error
func (s *CategoryStats) Failed() bool {
	return s.Err != nil
}

// AggregateStats summarizes a whole aggregation run
type AggregateStats struct {
	Period     models.YearMonth `json:"period"`
	DateRange  DateRange        `json:"date_range"`
	Categories []*CategoryStats `json:"categories"`
	Branches   int              `json:"branches"`
	Duration   time.Duration    `json:"duration"`
}

// RecordsKept sums kept records across categories
func (s *AggregateStats) RecordsKept() int {
	total := 0
	for _, c := range s.Categories {
		total += c.RecordsKept
	}
	return total
}

// FailedCategories returns the categories whose fetch stopped on an error
func (s *AggregateStats) FailedCategories() []*CategoryStats {
	var failed []*CategoryStats
	for _, c := range s.Categories {
		if c.Failed() {
			failed = append(failed, c)
		}
	}
	return failed
}

// Partial reports whether any category was cut short
func (s *AggregateStats) Partial() bool {
	for _, c := range s.Categories {
		if c.Failed() || c.Truncated {
			return true
		}
	}
	return false
}

// PageCallback is called after every fetched page.
type PageCallback func(category TransactionCategory, page, records int)

// Aggregator sums POS transactions into a DailyLedger.
type Aggregator struct {
	fetcher PageFetcher
	config  *AggregatorConfig
	logger  logger.Logger
	onPage  PageCallback
}

// NewAggregator creates an aggregator over fetcher
func NewAggregator(fetcher PageFetcher, config *AggregatorConfig) (*Aggregator, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("page fetcher cannot be nil")
	}
	if config == nil {
		config = DefaultAggregatorConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid aggregator configuration: %w", err)
	}

	return &Aggregator{
		fetcher: fetcher,
		config:  config,
		logger:  logger.GetGlobalLogger().WithComponent("aggregator"),
	}, nil
}

// SetPageCallback sets a callback invoked after each page
func (a *Aggregator) SetPageCallback(callback PageCallback) {
	a.onPage = callback
}

// MonthRange returns the request date range for period: the first to the
// real last day of the month.
func MonthRange(period models.YearMonth) DateRange {
	return DateRange{Start: period.FirstDay(), End: period.LastDay()}
}

// Aggregate fetches every configured category for period and sums the
// retained records at (branch, date).
//
// Categories are fetched one after the other. A failing category stops at
// the failing page and keeps what it already summed; the remaining
// categories still run. The returned error is only set for an invalid
// period.
func (a *Aggregator) Aggregate(ctx context.Context, period models.YearMonth) (models.DailyLedger, *AggregateStats, error) {
	if err := period.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid period: %w", err)
	}

	start := time.Now()
	ledger := models.NewDailyLedger()
	stats := &AggregateStats{
		Period:    period,
		DateRange: MonthRange(period),
	}

	for _, category := range a.config.Categories {
		categoryStats := a.aggregateCategory(ctx, category, period, stats.DateRange, ledger)
		stats.Categories = append(stats.Categories, categoryStats)
	}

	stats.Branches = len(ledger)
	stats.Duration = time.Since(start)

	a.logger.WithFields(logger.Fields{
		"period":       period.Prefix(),
		"branches":     stats.Branches,
		"records_kept": stats.RecordsKept(),
		"partial":      stats.Partial(),
		"duration":     stats.Duration.String(),
	}).Info("Transaction aggregation completed")

	return ledger, stats, nil
}

func (a *Aggregator) aggregateCategory(ctx context.Context, category TransactionCategory, period models.YearMonth,
	dateRange DateRange, ledger models.DailyLedger) *CategoryStats {

	start := time.Now()
	stats := &CategoryStats{Category: category}
	log := a.logger.WithField("category", string(category))
	tracker := logger.NewProgressTracker(logger.ProgressConfig{
		Operation: fmt.Sprintf("fetch %s transactions", category),
		Logger:    log,
	})

	for page := 1; ; page++ {
		if page > a.config.MaxPages {
			stats.Truncated = true
			log.WithField("max_pages", a.config.MaxPages).
				Warn("Page limit reached; continuing with partial data")
			break
		}

		result, err := a.fetcher.FetchPage(ctx, category, dateRange, page)
		if err != nil {
			stats.Err = err
			stats.Error = err.Error()
			break
		}
		stats.Pages++

		if result == nil || len(result.Records) == 0 {
			break
		}

		for _, record := range result.Records {
			a.accumulate(record, period, ledger, stats)
		}
		tracker.Add(int64(len(result.Records)))

		log.WithFields(logger.Fields{
			"page":    page,
			"records": len(result.Records),
		}).Debug("Fetched page")
		if a.onPage != nil {
			a.onPage(category, page, len(result.Records))
		}

		if !result.HasNext() {
			break
		}
	}

	stats.Duration = time.Since(start)
	if stats.Err != nil {
		tracker.CompleteWithError(stats.Err)
	} else {
		tracker.Complete()
	}

	log.WithFields(logger.Fields{
		"pages":            stats.Pages,
		"records_seen":     stats.RecordsSeen,
		"records_kept":     stats.RecordsKept,
		"discarded_date":   stats.DiscardedDate,
		"discarded_branch": stats.DiscardedBranch,
		"invalid_amounts":  stats.InvalidAmounts,
	}).Debug("Category fetch finished")

	return stats
}

func (a *Aggregator) accumulate(record Record, period models.YearMonth, ledger models.DailyLedger, stats *CategoryStats) {
	stats.RecordsSeen++
	fields := a.config.Fields.extract(record)

	if fields.date == "" || !strings.HasPrefix(fields.date, period.Prefix()) {
		stats.DiscardedDate++
		return
	}
	if fields.branch == "" {
		stats.DiscardedBranch++
		return
	}
	if !fields.amountValid {
		stats.InvalidAmounts++
	}

	ledger.Add(fields.branch, fields.date, fields.amount)
	stats.RecordsKept++
}

package reconciler

import (
	"sort"

	"settlement-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

// Reconcile compares the settlement and POS ledgers branch by branch over
// the union of their branches. It does no I/O and depends only on its
// inputs. A nil config uses DefaultConfig.
func Reconcile(settlement, transactions models.DailyLedger, config *Config) *ReconciliationResult {
	if config == nil {
		config = DefaultConfig()
	}
	classifier := config.classifier()

	result := &ReconciliationResult{
		Threshold:    config.Threshold,
		Branches:     []*models.DiscrepancyRecord{},
		Divergent:    []*models.DiscrepancyRecord{},
		settlement:   settlement,
		transactions: transactions,
	}

	summaries := map[models.BranchCategory]*CategorySummary{}
	for _, category := range []models.BranchCategory{models.CategoryA, models.CategoryB} {
		summary := &CategorySummary{
			Category:  category,
			Name:      classifier.DisplayName(category),
			Divergent: []*models.DiscrepancyRecord{},
		}
		summaries[category] = summary
		result.Categories = append(result.Categories, summary)
	}

	for _, branch := range models.UnionBranches(settlement, transactions) {
		record := models.NewDiscrepancyRecord(
			branch,
			classifier.Classify(branch),
			settlement.BranchTotal(branch),
			transactions.BranchTotal(branch),
		)
		result.Branches = append(result.Branches, record)
		result.GrandTotal.add(record)

		divergent := isDivergent(record.Difference, config.Threshold)
		if divergent {
			result.Divergent = append(result.Divergent, record)
		}

		summary, ok := summaries[record.Category]
		if !ok {
			continue
		}
		summary.add(record)
		if divergent {
			summary.Divergent = append(summary.Divergent, record)
		}
	}

	sortByAbsDifference(result.Divergent)
	for _, summary := range result.Categories {
		sortByAbsDifference(summary.Divergent)
	}

	for _, record := range result.TopDivergent(config.TopN) {
		result.DailyDetails = append(result.DailyDetails, &BranchDailyDetail{
			Branch: record,
			Days:   DailyBreakdown(settlement, transactions, record.Branch, config.Threshold),
		})
	}

	return result
}

// DailyBreakdown compares one branch date by date over the union of dates in
// both ledgers and keeps the dates whose absolute difference exceeds
// threshold, in ascending order.
func DailyBreakdown(settlement, transactions models.DailyLedger, branch string, threshold decimal.Decimal) []models.DailyDiscrepancy {
	days := []models.DailyDiscrepancy{}
	for _, date := range models.UnionDates(branch, settlement, transactions) {
		s := settlement.Get(branch, date)
		a := transactions.Get(branch, date)
		diff := s.Sub(a)
		if !isDivergent(diff, threshold) {
			continue
		}
		days = append(days, models.DailyDiscrepancy{
			Date:       date,
			Settlement: s,
			API:        a,
			Difference: diff,
		})
	}
	return days
}

func isDivergent(difference, threshold decimal.Decimal) bool {
	return difference.Abs().GreaterThan(threshold)
}

func sortByAbsDifference(records []*models.DiscrepancyRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		cmp := records[i].AbsDifference().Cmp(records[j].AbsDifference())
		if cmp != 0 {
			return cmp > 0
		}
		return records[i].Branch < records[j].Branch
	})
}

package pos_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"settlement-reconciliation-service/internal/models"
	"settlement-reconciliation-service/internal/pos"
	"settlement-reconciliation-service/internal/pos/mocks"

	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	december      = models.YearMonth{Year: 2025, Month: 12}
	decemberRange = pos.DateRange{Start: "2025-12-01", End: "2025-12-31"}
)

func next(url string) *string {
	return &url
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func record(date, branch string, total interface{}) pos.Record {
	return pos.Record{"tanggal_transaksi": date, "nama_clinic": branch, "total_bayar": total}
}

func newAggregator(t *testing.T, fetcher pos.PageFetcher) *pos.Aggregator {
	t.Helper()
	aggregator, err := pos.NewAggregator(fetcher, nil)
	require.NoError(t, err)
	return aggregator
}

func TestAggregator_SumsRecordsAtSameKey(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	fetcher := mocks.NewMockPageFetcher(ctrl)
	fetcher.EXPECT().FetchPage(gomock.Any(), pos.CategoryService, decemberRange, 1).
		Return(&pos.Page{Records: []pos.Record{
			record("2025-12-05 09:00:00", "Beauty Center Bantul", json.Number("500")),
		}}, nil)
	fetcher.EXPECT().FetchPage(gomock.Any(), pos.CategoryProduct, decemberRange, 1).
		Return(&pos.Page{Records: []pos.Record{
			record("2025-12-05", "Beauty Center Bantul", json.Number("300")),
		}}, nil)

	ledger, stats, err := newAggregator(t, fetcher).Aggregate(context.Background(), december)
	require.NoError(t, err)

	assert.True(t, ledger.Get("Beauty Center Bantul", "2025-12-05").Equal(amount("800")))
	assert.Equal(t, 2, stats.RecordsKept())
	assert.False(t, stats.Partial())
	assert.Equal(t, decemberRange, stats.DateRange)
	require.Len(t, stats.Categories, 2)
	assert.Equal(t, pos.CategoryService, stats.Categories[0].Category)
	assert.Equal(t, pos.CategoryProduct, stats.Categories[1].Category)
}

func TestAggregator_PaginatesUntilNoNextPage(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	fetcher := mocks.NewMockPageFetcher(ctrl)
	gomock.InOrder(
		fetcher.EXPECT().FetchPage(gomock.Any(), pos.CategoryService, decemberRange, 1).
			Return(&pos.Page{
				Records:     []pos.Record{record("2025-12-01", "A", 100.0)},
				NextPageURL: next("/api/laporan-penjualan-perawatan?page=2"),
			}, nil),
		fetcher.EXPECT().FetchPage(gomock.Any(), pos.CategoryService, decemberRange, 2).
			Return(&pos.Page{Records: []pos.Record{record("2025-12-01", "A", 50.0)}}, nil),
	)
	fetcher.EXPECT().FetchPage(gomock.Any(), pos.CategoryProduct, decemberRange, 1).
		Return(&pos.Page{}, nil)

	ledger, stats, err := newAggregator(t, fetcher).Aggregate(context.Background(), december)
	require.NoError(t, err)

	assert.True(t, ledger.Get("A", "2025-12-01").Equal(amount("150")))
	assert.Equal(t, 2, stats.Categories[0].Pages)
	assert.Equal(t, 1, stats.Categories[1].Pages)
}

func TestAggregator_StopsOnEmptyPageEvenWithNextLink(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	fetcher := mocks.NewMockPageFetcher(ctrl)
	fetcher.EXPECT().FetchPage(gomock.Any(), gomock.Any(), decemberRange, 1).
		Return(&pos.Page{NextPageURL: next("?page=2")}, nil).
		Times(2)

	ledger, _, err := newAggregator(t, fetcher).Aggregate(context.Background(), december)
	require.NoError(t, err)
	assert.Empty(t, ledger)
}

func TestAggregator_PageCap(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	fetcher := mocks.NewMockPageFetcher(ctrl)
	fetcher.EXPECT().FetchPage(gomock.Any(), pos.CategoryService, decemberRange, gomock.Any()).
		Return(&pos.Page{
			Records:     []pos.Record{record("2025-12-02", "Loop", json.Number("1"))},
			NextPageURL: next("forever"),
		}, nil).
		Times(pos.DefaultMaxPages)
	fetcher.EXPECT().FetchPage(gomock.Any(), pos.CategoryProduct, decemberRange, 1).
		Return(&pos.Page{}, nil)

	ledger, stats, err := newAggregator(t, fetcher).Aggregate(context.Background(), december)
	require.NoError(t, err)

	assert.True(t, ledger.Get("Loop", "2025-12-02").Equal(amount("200")))
	assert.True(t, stats.Categories[0].Truncated)
	assert.Equal(t, pos.DefaultMaxPages, stats.Categories[0].Pages)
	assert.True(t, stats.Partial())
	assert.Empty(t, stats.FailedCategories())
}

func TestAggregator_CategoryErrorIsIsolated(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	fetcher := mocks.NewMockPageFetcher(ctrl)
	fetcher.EXPECT().FetchPage(gomock.Any(), pos.CategoryService, decemberRange, 1).
		Return(&pos.Page{
			Records:     []pos.Record{record("2025-12-03", "Beauty Center Wates", json.Number("700"))},
			NextPageURL: next("?page=2"),
		}, nil)
	fetcher.EXPECT().FetchPage(gomock.Any(), pos.CategoryService, decemberRange, 2).
		Return(nil, errors.New("connection reset"))
	fetcher.EXPECT().FetchPage(gomock.Any(), pos.CategoryProduct, decemberRange, 1).
		Return(&pos.Page{Records: []pos.Record{
			record("2025-12-03", "Beauty Center Wates", json.Number("300")),
		}}, nil)

	ledger, stats, err := newAggregator(t, fetcher).Aggregate(context.Background(), december)
	require.NoError(t, err)

	// pages fetched before the failure are kept
	assert.True(t, ledger.Get("Beauty Center Wates", "2025-12-03").Equal(amount("1000")))

	failed := stats.FailedCategories()
	require.Len(t, failed, 1)
	assert.Equal(t, pos.CategoryService, failed[0].Category)
	assert.Equal(t, "connection reset", failed[0].Error)
	assert.Equal(t, 1, failed[0].Pages)
	assert.False(t, stats.Categories[1].Failed())
}

func TestAggregator_DiscardRules(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	fetcher := mocks.NewMockPageFetcher(ctrl)
	fetcher.EXPECT().FetchPage(gomock.Any(), pos.CategoryService, decemberRange, 1).
		Return(&pos.Page{Records: []pos.Record{
			record("2025-11-30 23:59:00", "A", json.Number("999")), // previous month
			record("", "A", json.Number("999")),                    // no date
			record("2025-12-01", "", json.Number("999")),           // no branch
			{"tanggal": "2025-12-01", "nama_klinik": "B"},          // no amount: kept as zero
			{"created_at": "2025-12-02T08:00:00Z", "klinik": "C", "nominal": "250.5"},
			record("2025-12-04", "D", "not a number"),
		}}, nil)
	fetcher.EXPECT().FetchPage(gomock.Any(), pos.CategoryProduct, decemberRange, 1).
		Return(&pos.Page{}, nil)

	ledger, stats, err := newAggregator(t, fetcher).Aggregate(context.Background(), december)
	require.NoError(t, err)

	assert.Equal(t, []string{"B", "C", "D"}, ledger.Branches())
	assert.True(t, ledger.Get("B", "2025-12-01").IsZero())
	assert.Contains(t, ledger["B"], "2025-12-01")
	assert.True(t, ledger.Get("C", "2025-12-02").Equal(amount("250.5")))

	service := stats.Categories[0]
	assert.Equal(t, 6, service.RecordsSeen)
	assert.Equal(t, 3, service.RecordsKept)
	assert.Equal(t, 2, service.DiscardedDate)
	assert.Equal(t, 1, service.DiscardedBranch)
	assert.Equal(t, 1, service.InvalidAmounts)
}

func TestAggregator_PageCallback(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	fetcher := mocks.NewMockPageFetcher(ctrl)
	fetcher.EXPECT().FetchPage(gomock.Any(), gomock.Any(), decemberRange, 1).
		Return(&pos.Page{Records: []pos.Record{record("2025-12-01", "A", 1.0)}}, nil).
		Times(2)

	aggregator := newAggregator(t, fetcher)
	var calls []pos.TransactionCategory
	aggregator.SetPageCallback(func(category pos.TransactionCategory, page, records int) {
		assert.Equal(t, 1, page)
		assert.Equal(t, 1, records)
		calls = append(calls, category)
	})

	_, _, err := aggregator.Aggregate(context.Background(), december)
	require.NoError(t, err)
	assert.Equal(t, []pos.TransactionCategory{pos.CategoryService, pos.CategoryProduct}, calls)
}

func TestAggregator_MonthRangeUsesRealLastDay(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	febRange := pos.DateRange{Start: "2024-02-01", End: "2024-02-29"}
	fetcher := mocks.NewMockPageFetcher(ctrl)
	fetcher.EXPECT().FetchPage(gomock.Any(), gomock.Any(), febRange, 1).
		Return(&pos.Page{}, nil).
		Times(2)

	_, stats, err := newAggregator(t, fetcher).Aggregate(context.Background(), models.YearMonth{Year: 2024, Month: 2})
	require.NoError(t, err)
	assert.Equal(t, febRange, stats.DateRange)
}

func TestNewAggregator_Validation(t *testing.T) {
	_, err := pos.NewAggregator(nil, nil)
	assert.Error(t, err)

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	fetcher := mocks.NewMockPageFetcher(ctrl)

	config := pos.DefaultAggregatorConfig()
	config.MaxPages = 0
	_, err = pos.NewAggregator(fetcher, config)
	assert.Error(t, err)

	config = pos.DefaultAggregatorConfig()
	config.Categories = []pos.TransactionCategory{"refund"}
	_, err = pos.NewAggregator(fetcher, config)
	assert.Error(t, err)

	_, _, err = newAggregator(t, fetcher).Aggregate(context.Background(), models.YearMonth{Year: 2025, Month: 0})
	assert.Error(t, err)
}

package reconciler

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"settlement-reconciliation-service/internal/matcher"
	"settlement-reconciliation-service/internal/models"
	"settlement-reconciliation-service/internal/parsers"
	"settlement-reconciliation-service/internal/pos"
	"settlement-reconciliation-service/internal/pos/mocks"
	"settlement-reconciliation-service/pkg/errors"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const decemberSheet = `SETTLEMENT DESEMBER 2025,,,,,
,,,,,
Cabang,Keterangan,Total,1,2,3
bantul,omset,"Rp 350.000","Rp 150.000",,"Rp 200.000"
"Clinic magelang ",omset,"75.000",,"75.000",
Kantor Pusat,omset,"10.000","10.000",,
revenue,,"435.000","160.000","75.000","200.000"
`

var december = models.YearMonth{Year: 2025, Month: 12}

func writeSheet(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settlement.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func posRecord(date, branch string, total string) pos.Record {
	return pos.Record{"tanggal_transaksi": date, "nama_clinic": branch, "total_bayar": json.Number(total)}
}

type testService struct {
	service  *ReconciliationService
	resolver *matcher.BranchResolver
	fetcher  *mocks.MockPageFetcher
}

func newTestService(t *testing.T) *testService {
	t.Helper()
	ctrl := gomock.NewController(t)

	table, err := matcher.LoadEmbeddedTable()
	require.NoError(t, err)
	resolver := matcher.NewBranchResolver(table.Synonyms, matcher.StrategyExact)

	parser, err := parsers.NewSettlementParser(nil, resolver)
	require.NoError(t, err)

	fetcher := mocks.NewMockPageFetcher(ctrl)
	aggregator, err := pos.NewAggregator(fetcher, nil)
	require.NoError(t, err)

	config := DefaultConfig()
	config.Classifier = matcher.NewCategoryClassifier(table.Categories)
	service, err := NewReconciliationService(parser, aggregator, config)
	require.NoError(t, err)
	service.SetResolver(resolver)

	return &testService{service: service, resolver: resolver, fetcher: fetcher}
}

func TestReconciliationService_ProcessReconciliation(t *testing.T) {
	ts := newTestService(t)
	dateRange := pos.MonthRange(december)

	ts.fetcher.EXPECT().FetchPage(gomock.Any(), pos.CategoryService, dateRange, 1).
		Return(&pos.Page{Records: []pos.Record{
			posRecord("2025-12-01 10:00:00", "Beauty Center Bantul", "100000"),
			posRecord("2025-12-03 10:00:00", "Beauty Center Bantul", "200000"),
		}}, nil)
	ts.fetcher.EXPECT().FetchPage(gomock.Any(), pos.CategoryProduct, dateRange, 1).
		Return(&pos.Page{Records: []pos.Record{
			posRecord("2025-12-02 12:00:00", "Klinik DRW Skincare Magelang", "75000"),
		}}, nil)

	var steps []string
	var pages int
	ts.service.AddProgressCallback(func(progress *ReconciliationProgress) {
		steps = append(steps, progress.CurrentStep)
		pages = progress.PagesFetched
	})

	result, err := ts.service.ProcessReconciliation(context.Background(), &ReconciliationRequest{
		SettlementFile: writeSheet(t, decemberSheet),
		Period:         december,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, december, result.Period)

	bantul := result.Branch("Beauty Center Bantul")
	require.NotNil(t, bantul)
	assert.True(t, bantul.Difference.Equal(amount("50000")))
	assert.Equal(t, models.CategoryA, bantul.Category)

	assert.True(t, result.BranchDifference("Klinik DRW Skincare Magelang").IsZero())
	assert.True(t, result.Matched(models.CategoryB))

	// unresolved label stays its own branch
	pusat := result.Branch("Kantor Pusat")
	require.NotNil(t, pusat)
	assert.Equal(t, models.Unclassified, pusat.Category)

	require.Len(t, result.Divergent, 2)
	assert.Equal(t, "Beauty Center Bantul", result.Divergent[0].Branch)
	require.NotEmpty(t, result.DailyDetails)
	assert.Equal(t, "2025-12-01", result.DailyDetails[0].Days[0].Date)

	require.NotNil(t, result.Metadata)
	assert.Equal(t, []string{"Kantor Pusat"}, result.Metadata.UnresolvedLabels)
	assert.Equal(t, "exact", result.Metadata.ResolutionStrategy)
	assert.Equal(t, 3, result.Metadata.Settlement.Branches)
	assert.Equal(t, 3, result.Metadata.Transactions.RecordsKept())
	assert.False(t, result.Metadata.Partial())
	assert.Empty(t, result.Metadata.Warnings)

	assert.Equal(t, "Parsing settlement file", steps[0])
	assert.Equal(t, "Completed", steps[len(steps)-1])
	assert.Equal(t, 2, pages)
}

func TestReconciliationService_PartialPOSDataIsAWarning(t *testing.T) {
	ts := newTestService(t)
	dateRange := pos.MonthRange(december)

	ts.fetcher.EXPECT().FetchPage(gomock.Any(), pos.CategoryService, dateRange, 1).
		Return(nil, stderrors.New("connection reset"))
	ts.fetcher.EXPECT().FetchPage(gomock.Any(), pos.CategoryProduct, dateRange, 1).
		Return(&pos.Page{Records: []pos.Record{
			posRecord("2025-12-01", "Beauty Center Bantul", "150000"),
		}}, nil)

	result, err := ts.service.ProcessReconciliation(context.Background(), &ReconciliationRequest{
		SettlementFile: writeSheet(t, decemberSheet),
		Period:         december,
	})
	require.NoError(t, err)

	assert.True(t, result.Metadata.Partial())
	require.Len(t, result.Metadata.Warnings, 1)
	assert.Contains(t, result.Metadata.Warnings[0], "connection reset")
	assert.True(t, result.BranchDifference("Beauty Center Bantul").Equal(amount("200000")))
}

func TestReconciliationService_MissingSettlementFileIsFatal(t *testing.T) {
	ts := newTestService(t)

	_, err := ts.service.ProcessReconciliation(context.Background(), &ReconciliationRequest{
		SettlementFile: filepath.Join(t.TempDir(), "missing.csv"),
		Period:         december,
	})
	require.Error(t, err)

	rerr, ok := errors.AsReconcilerError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CategoryFile, rerr.Category)
	assert.Equal(t, errors.CodeFileNotFound, rerr.Code)
	assert.Equal(t, 2, rerr.GetExitCode())
}

func TestReconciliationService_InvalidRequest(t *testing.T) {
	ts := newTestService(t)

	tests := []struct {
		name    string
		request *ReconciliationRequest
	}{
		{"nil request", nil},
		{"no file", &ReconciliationRequest{Period: december}},
		{"bad month", &ReconciliationRequest{SettlementFile: "x.csv", Period: models.YearMonth{Year: 2025, Month: 13}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ts.service.ProcessReconciliation(context.Background(), tt.request)
			rerr, ok := errors.AsReconcilerError(err)
			require.True(t, ok)
			assert.Equal(t, errors.CategoryConfiguration, rerr.Category)
		})
	}
}

type staticSettlement struct {
	ledger models.DailyLedger
}

func (s staticSettlement) ParseFile(ctx context.Context, path string, period models.YearMonth) (models.DailyLedger, *parsers.ParseStats, error) {
	return s.ledger, &parsers.ParseStats{FilePath: path, Branches: len(s.ledger)}, nil
}

type staticTransactions struct {
	ledger models.DailyLedger
	err    error
}

func (s staticTransactions) Aggregate(ctx context.Context, period models.YearMonth) (models.DailyLedger, *pos.AggregateStats, error) {
	return s.ledger, &pos.AggregateStats{Period: period}, s.err
}

func TestReconciliationService_WithPlainSources(t *testing.T) {
	settlement := ledger(map[string]map[string]int64{"Y": {"2025-12-01": 50000}})

	service, err := NewReconciliationService(
		staticSettlement{ledger: settlement},
		staticTransactions{ledger: models.NewDailyLedger()},
		nil,
	)
	require.NoError(t, err)

	result, err := service.ProcessReconciliation(context.Background(), &ReconciliationRequest{
		SettlementFile: "in-memory",
		Period:         december,
	})
	require.NoError(t, err)

	require.Len(t, result.Divergent, 1)
	assert.Equal(t, models.DirectionSettlementExceeds, result.Divergent[0].Direction)
	assert.Empty(t, result.Metadata.ResolutionStrategy)
}

func TestReconciliationService_AggregateError(t *testing.T) {
	service, err := NewReconciliationService(
		staticSettlement{ledger: models.NewDailyLedger()},
		staticTransactions{err: stderrors.New("invalid period")},
		nil,
	)
	require.NoError(t, err)

	_, err = service.ProcessReconciliation(context.Background(), &ReconciliationRequest{
		SettlementFile: "in-memory",
		Period:         december,
	})
	rerr, ok := errors.AsReconcilerError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeSourceUnavailable, rerr.Code)
	assert.Equal(t, errors.CategoryReconciliation, rerr.Category)
	assert.Equal(t, "POS aggregation", rerr.Context["operation"])
	assert.Equal(t, 5, rerr.GetExitCode())
}

func TestSourceError(t *testing.T) {
	network := errors.NetworkError(errors.CodeTimeout, "http://pos/api", stderrors.New("deadline exceeded"))
	assert.Same(t, network, sourceError("service transaction fetch", network))

	wrapped := sourceError("product transaction fetch", stderrors.New("connection reset"))
	assert.Equal(t, errors.CategoryReconciliation, wrapped.Category)
	assert.Equal(t, errors.CodeSourceUnavailable, wrapped.Code)
	assert.Contains(t, wrapped.Error(), "product transaction fetch")
}

func TestReconciliationService_EmptySheetIsFatal(t *testing.T) {
	ts := newTestService(t)

	_, err := ts.service.ProcessReconciliation(context.Background(), &ReconciliationRequest{
		SettlementFile: writeSheet(t, "SETTLEMENT DESEMBER 2025\n,,,\n"),
		Period:         december,
	})

	rerr, ok := errors.AsReconcilerError(err)
	require.True(t, ok, "expected a ReconcilerError, got %v", err)
	assert.Equal(t, errors.CodeEmptyFile, rerr.Code)
	assert.Equal(t, 3, rerr.GetExitCode())
}

func TestNewReconciliationService_Validation(t *testing.T) {
	_, err := NewReconciliationService(nil, staticTransactions{}, nil)
	assert.Error(t, err)

	_, err = NewReconciliationService(staticSettlement{}, nil, nil)
	assert.Error(t, err)

	config := DefaultConfig()
	config.TopN = -1
	_, err = NewReconciliationService(staticSettlement{}, staticTransactions{}, config)
	assert.Error(t, err)
}

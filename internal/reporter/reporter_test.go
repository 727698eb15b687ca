package reporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"settlement-reconciliation-service/internal/models"
	"settlement-reconciliation-service/internal/pos"
	"settlement-reconciliation-service/internal/reconciler"
	"settlement-reconciliation-service/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() *reconciler.ReconciliationResult {
	settlement := models.NewDailyLedger()
	settlement.Set("Beauty Center Bantul", "2025-12-01", decimal.NewFromInt(350000))
	settlement.Set("Klinik DRW Skincare Magelang", "2025-12-02", decimal.NewFromInt(75000))
	settlement.Set("Kantor Pusat", "2025-12-05", decimal.NewFromInt(10000))

	transactions := models.NewDailyLedger()
	transactions.Add("Beauty Center Bantul", "2025-12-01", decimal.NewFromInt(300000))
	transactions.Add("Klinik DRW Skincare Magelang", "2025-12-02", decimal.NewFromInt(75000))

	result := reconciler.Reconcile(settlement, transactions, reconciler.DefaultConfig())
	result.RunID = "run-1"
	result.Period = models.YearMonth{Year: 2025, Month: 12}
	return result
}

func render(t *testing.T, config *ReportConfig, result *reconciler.ReconciliationResult) string {
	t.Helper()
	generator, err := NewReportGenerator(config)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, generator.GenerateReport(result, &buf))
	return buf.String()
}

func plainConfig(format OutputFormat) *ReportConfig {
	config := DefaultReportConfig()
	config.Format = format
	config.UseColors = false
	return config
}

func TestNewReportGenerator(t *testing.T) {
	tests := []struct {
		name        string
		config      *ReportConfig
		expectError bool
	}{
		{name: "default config", config: nil},
		{name: "valid config", config: DefaultReportConfig()},
		{
			name:        "invalid format",
			config:      &ReportConfig{Format: "xml", RuleWidth: 100, CSVDelimiter: ','},
			expectError: true,
		},
		{
			name:        "rule too narrow",
			config:      &ReportConfig{Format: FormatConsole, RuleWidth: 10, CSVDelimiter: ','},
			expectError: true,
		},
		{
			name:        "quote delimiter",
			config:      &ReportConfig{Format: FormatCSV, RuleWidth: 100, CSVDelimiter: '"'},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generator, err := NewReportGenerator(tt.config)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, generator)
		})
	}
}

func TestParseOutputFormat(t *testing.T) {
	for _, name := range []string{"console", "JSON", " csv "} {
		_, err := ParseOutputFormat(name)
		assert.NoError(t, err, name)
	}

	_, err := ParseOutputFormat("xlsx")
	assert.Error(t, err)
}

func TestRupiahFormatter(t *testing.T) {
	f := NewRupiahFormatter()

	tests := []struct {
		amount string
		want   string
	}{
		{"1000000", "Rp 1.000.000"},
		{"1000", "Rp 1.000"},
		{"0", "Rp 0"},
		{"-50000", "Rp -50.000"},
		{"1250.5", "Rp 1.251"},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			assert.Equal(t, tt.want, f.Format(decimal.RequireFromString(tt.amount)))
		})
	}
}

func TestConsoleReport(t *testing.T) {
	out := render(t, plainConfig(FormatConsole), sampleResult())

	assert.NotContains(t, out, "\x1b[")
	assert.Contains(t, out, "SETTLEMENT vs POS RECONCILIATION - December 2025")
	assert.Contains(t, out, "Threshold: Rp 1.000")
	assert.Contains(t, out, "=== SUMMARY: Beauty Center & Rumah Cantik ===")
	assert.Contains(t, out, "SETTLEMENT EXCEEDS POS by Rp 50.000 (14.29%)")
	assert.Contains(t, out, "=== SUMMARY: Klinik ===")
	assert.Contains(t, out, "MATCHED: difference below Rp 1.000")
	assert.Contains(t, out, "All Klinik branches matched")
	assert.Contains(t, out, "=== DIVERGENT: Unclassified ===")
	assert.Contains(t, out, "Kantor Pusat")
	assert.Contains(t, out, "=== DAILY DETAIL (top 2 divergent branches) ===")
	assert.Contains(t, out, "2025-12-05")

	// tiers appear in order
	summary := strings.Index(out, "=== SUMMARY:")
	grand := strings.Index(out, "=== GRAND TOTAL")
	divergent := strings.Index(out, "=== DIVERGENT:")
	daily := strings.Index(out, "=== DAILY DETAIL")
	assert.True(t, summary < grand && grand < divergent && divergent < daily)
}

func TestConsoleReport_WithoutDailyDetail(t *testing.T) {
	config := plainConfig(FormatConsole)
	config.IncludeDailyDetail = false

	out := render(t, config, sampleResult())
	assert.NotContains(t, out, "DAILY DETAIL")
}

func TestConsoleReport_Colors(t *testing.T) {
	config := DefaultReportConfig()
	config.UseColors = true

	out := render(t, config, sampleResult())
	assert.Contains(t, out, "\x1b[")
}

func TestConsoleReport_Notes(t *testing.T) {
	result := sampleResult()
	result.Metadata = &reconciler.RunMetadata{
		UnresolvedLabels: []string{"Kantor Pusat"},
		Warnings:         []string{"service transactions incomplete after 1 page(s): timeout"},
		Transactions: &pos.AggregateStats{Categories: []*pos.CategoryStats{
			{Category: pos.CategoryService, Pages: 1, Err: fmt.Errorf("timeout"), Error: "timeout"},
		}},
	}

	out := render(t, plainConfig(FormatConsole), result)
	assert.Contains(t, out, "=== NOTES ===")
	assert.Contains(t, out, "POS data is partial")
	assert.Contains(t, out, `"Kantor Pusat"`)

	config := plainConfig(FormatConsole)
	config.IncludeMetadata = false
	assert.NotContains(t, render(t, config, result), "=== NOTES ===")
}

func TestJSONReport(t *testing.T) {
	result := sampleResult()
	result.Metadata = &reconciler.RunMetadata{SettlementFile: "december.csv"}

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(render(t, plainConfig(FormatJSON), result)), &out))

	assert.Equal(t, "run-1", out["run_id"])
	grand := out["grand_total"].(map[string]interface{})
	assert.Equal(t, "60000", grand["difference"])
	assert.Equal(t, float64(3), grand["branches"])
	assert.Len(t, out["branches"], 3)
	assert.Len(t, out["divergent"], 2)
	assert.Contains(t, out, "metadata")
	assert.Contains(t, out, "daily_details")
}

func TestJSONReport_OmitsMetadata(t *testing.T) {
	result := sampleResult()
	result.Metadata = &reconciler.RunMetadata{SettlementFile: "december.csv"}

	config := plainConfig(FormatJSON)
	config.IncludeMetadata = false

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(render(t, config, result)), &out))
	assert.NotContains(t, out, "metadata")
	// the caller's result is untouched
	assert.NotNil(t, result.Metadata)
}

func TestCSVReport(t *testing.T) {
	out := render(t, plainConfig(FormatCSV), sampleResult())

	rows, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, csvHeaders, rows[0])

	byBranch := map[string][]string{}
	for _, row := range rows[1:] {
		byBranch[row[0]] = row
	}

	bantul := byBranch["Beauty Center Bantul"]
	require.NotNil(t, bantul)
	assert.Equal(t, []string{
		"Beauty Center Bantul", "category_a", "350000", "300000", "50000", "14.29", "settlement_exceeds", "true",
	}, bantul)

	magelang := byBranch["Klinik DRW Skincare Magelang"]
	assert.Equal(t, "balanced", magelang[6])
	assert.Equal(t, "false", magelang[7])
}

func TestCSVReport_DelimiterAndNoHeaders(t *testing.T) {
	config := plainConfig(FormatCSV)
	config.CSVDelimiter = ';'
	config.CSVHeaders = false

	out := render(t, config, sampleResult())
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "Beauty Center Bantul;category_a;"))
}

func TestGenerateReport_NilResult(t *testing.T) {
	generator, err := NewReportGenerator(nil)
	require.NoError(t, err)
	assert.Error(t, generator.GenerateReport(nil, &bytes.Buffer{}))
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, fmt.Errorf("disk unplugged")
}

func TestSafeReportGenerator_WrapsWriteErrors(t *testing.T) {
	for _, format := range []OutputFormat{FormatConsole, FormatJSON, FormatCSV} {
		t.Run(string(format), func(t *testing.T) {
			generator, err := NewSafeReportGenerator(plainConfig(format), nil)
			require.NoError(t, err)

			err = generator.GenerateReportSafely(sampleResult(), failingWriter{})
			rerr, ok := errors.AsReconcilerError(err)
			require.True(t, ok)
			assert.Equal(t, errors.CategoryInternal, rerr.Category)
		})
	}
}

func TestSafeReportGenerator_InvalidInputs(t *testing.T) {
	generator, err := NewSafeReportGenerator(nil, nil)
	require.NoError(t, err)

	assert.Error(t, generator.GenerateReportSafely(nil, &bytes.Buffer{}))
	assert.Error(t, generator.GenerateReportSafely(sampleResult(), nil))

	_, err = NewSafeReportGenerator(&ReportConfig{Format: "xml"}, nil)
	rerr, ok := errors.AsReconcilerError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CategoryConfiguration, rerr.Category)
}

func TestSafeReportGenerator_WriteReportFile(t *testing.T) {
	generator, err := NewSafeReportGenerator(plainConfig(FormatJSON), nil)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "reports", "december.json")
	written, err := generator.WriteReportFile(sampleResult(), path)
	require.NoError(t, err)
	assert.Equal(t, path, written)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))

	_, err = generator.WriteReportFile(sampleResult(), "")
	assert.Error(t, err)
}

func TestSafeReportGenerator_WriteReportFile_BackupWhenDirectoryBlocked(t *testing.T) {
	generator, err := NewSafeReportGenerator(plainConfig(FormatCSV), nil)
	require.NoError(t, err)

	blocker := filepath.Join(t.TempDir(), "reports")
	require.NoError(t, os.WriteFile(blocker, []byte("not a directory"), 0644))

	name := filepath.Base(t.TempDir())
	path := filepath.Join(blocker, name+".csv")
	written, err := generator.WriteReportFile(sampleResult(), path)
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(written) })

	assert.Equal(t, filepath.Join(os.TempDir(), name+"_backup.csv"), written)
	data, err := os.ReadFile(written)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Beauty Center Bantul")
}

func TestSafeReportGenerator_WriteReportFile_RemovesFailedReport(t *testing.T) {
	generator, err := NewSafeReportGenerator(plainConfig(FormatJSON), nil)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "december.json")
	_, err = generator.WriteReportFile(nil, path)
	require.Error(t, err)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "expected no partial report at %s", path)
}

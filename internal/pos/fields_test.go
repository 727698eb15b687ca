package pos

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestDatePart(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2025-12-05", "2025-12-05"},
		{"2025-12-05 14:30:00", "2025-12-05"},
		{"2025-12-05T14:30:00.000000Z", "2025-12-05"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, DatePart(tt.in))
		})
	}
}

func TestFieldSelector_FallsThroughBlankValues(t *testing.T) {
	selector := FieldSelector{Name: "amount", Candidates: []string{"total_bayar", "total", "nominal"}}

	tests := []struct {
		name    string
		record  Record
		wantKey string
		wantOK  bool
	}{
		{"first present", Record{"total_bayar": json.Number("100"), "total": json.Number("200")}, "total_bayar", true},
		{"null falls through", Record{"total_bayar": nil, "total": json.Number("200")}, "total", true},
		{"empty string falls through", Record{"total_bayar": "", "nominal": "300"}, "nominal", true},
		{"zero falls through", Record{"total_bayar": json.Number("0"), "total": 200.0}, "total", true},
		{"zero string is a value", Record{"total_bayar": "0"}, "total_bayar", true},
		{"none", Record{"other": 1.0}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, key, ok := selector.Select(tt.record)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantKey, key)
		})
	}
}

func TestFieldSelectors_Extract(t *testing.T) {
	fields := DefaultFieldSelectors()

	got := fields.extract(Record{
		"created_at":       "2025-12-05 10:00:00",
		"klinik":           "Beauty Center Bantul",
		"total_pembayaran": json.Number("125000.50"),
	})
	assert.Equal(t, "2025-12-05", got.date)
	assert.Equal(t, "Beauty Center Bantul", got.branch)
	assert.True(t, got.amount.Equal(decimal.RequireFromString("125000.5")))
	assert.True(t, got.amountValid)

	missing := fields.extract(Record{"tanggal": "2025-12-01", "nama_clinic": "X"})
	assert.True(t, missing.amount.IsZero())
	assert.True(t, missing.amountValid)

	garbage := fields.extract(Record{"tanggal": "2025-12-01", "nama_clinic": "X", "total": "Rp 5.000"})
	assert.True(t, garbage.amount.IsZero())
	assert.False(t, garbage.amountValid)
}

func TestFieldSelectors_Validate(t *testing.T) {
	assert.NoError(t, DefaultFieldSelectors().Validate())

	fields := DefaultFieldSelectors()
	fields.Branch.Candidates = nil
	assert.Error(t, fields.Validate())
}

func TestTransactionCategory(t *testing.T) {
	assert.Equal(t, "laporan-penjualan-perawatan", CategoryService.Endpoint())
	assert.Equal(t, "laporan-penjualan-produk", CategoryProduct.Endpoint())

	c, err := ParseTransactionCategory("product")
	assert.NoError(t, err)
	assert.Equal(t, CategoryProduct, c)

	_, err = ParseTransactionCategory("refund")
	assert.Error(t, err)
}

func TestPage_HasNext(t *testing.T) {
	next := "https://pos.example/api?page=2"
	empty := ""

	assert.True(t, (&Page{NextPageURL: &next}).HasNext())
	assert.False(t, (&Page{NextPageURL: &empty}).HasNext())
	assert.False(t, (&Page{}).HasNext())
	assert.False(t, (*Page)(nil).HasNext())
}

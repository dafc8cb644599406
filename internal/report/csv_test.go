package report

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrapledger/scrapledger/internal/billing"
)

func exportBill() billing.Bill {
	due := time.Date(2025, time.May, 10, 0, 0, 0, 0, time.UTC)
	return billing.Bill{
		Kind:          billing.KindPurchase,
		BillNumber:    "PB-101",
		PartyName:     "Gupta Metals",
		PartyMobile:   "9876543210",
		PartyGSTNo:    "27AAAAA0000A1Z5",
		MaterialType:  "Copper",
		Weight:        500,
		WeightUnit:    billing.UnitKg,
		RatePerKg:     50,
		TotalAmount:   29500,
		BillDate:      time.Date(2025, time.April, 12, 0, 0, 0, 0, time.UTC),
		DueDate:       &due,
		FinancialYear: "2025-2026",
		Notes:         "first copper load",
		Payments: []billing.Payment{
			{Amount: 10000, PaymentDate: time.Date(2025, time.April, 20, 0, 0, 0, 0, time.UTC), Mode: billing.ModeBank},
		},
	}
}

func parseExport(t *testing.T, raw string) (comments []string, records [][]string) {
	t.Helper()
	lines := strings.Split(raw, "\r\n")
	require.Greater(t, len(lines), 2)
	comments = lines[:2]
	for _, c := range comments {
		require.True(t, strings.HasPrefix(c, "# "))
	}
	reader := csv.NewReader(strings.NewReader(strings.Join(lines[2:], "\n")))
	records, err := reader.ReadAll()
	require.NoError(t, err)
	return comments, records
}

func TestWriteBillsCSVRow(t *testing.T) {
	var buf bytes.Buffer
	now := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)

	err := WriteBillsCSV(&buf, "Purchase Report", "2025-2026", []billing.Bill{exportBill()}, now)
	require.NoError(t, err)

	comments, records := parseExport(t, buf.String())
	assert.Equal(t, "# Report: Purchase Report", comments[0])
	assert.Contains(t, comments[1], "Financial Year: 2025-2026")
	assert.Contains(t, comments[1], "Bills: 1")
	assert.Contains(t, comments[1], "29,500.00")

	require.Len(t, records, 2)
	assert.Equal(t, billHeaders, records[0])

	row := records[1]
	assert.Equal(t, "PB-101", row[0])
	assert.Equal(t, "Gupta Metals", row[1])
	assert.Equal(t, "500.00", row[5])
	assert.Equal(t, "kg", row[6])
	assert.Equal(t, "29500.00", row[8])
	assert.Equal(t, "10000.00", row[9])
	assert.Equal(t, "19500.00", row[10])
	// Due date elapsed with money pending.
	assert.Equal(t, "Overdue", row[11])
	assert.Equal(t, "12/04/2025", row[12])
	assert.Equal(t, "10/05/2025", row[13])
	assert.Equal(t, "2025-2026", row[14])
	assert.Equal(t, "first copper load", row[15])
}

func TestWriteBillsCSVStatusBeforeDueDate(t *testing.T) {
	var buf bytes.Buffer
	bill := exportBill()
	now := time.Date(2025, time.April, 25, 0, 0, 0, 0, time.UTC)

	err := WriteBillsCSV(&buf, "Purchase Report", "", []billing.Bill{bill}, now)
	require.NoError(t, err)

	comments, records := parseExport(t, buf.String())
	assert.Contains(t, comments[1], "Financial Year: all")
	require.Len(t, records, 2)
	assert.Equal(t, "Partial", records[1][11])
}

func TestWriteBillsCSVEmpty(t *testing.T) {
	var buf bytes.Buffer

	err := WriteBillsCSV(&buf, "Sale Report", "2024-2025", nil, time.Now())
	require.NoError(t, err)

	comments, records := parseExport(t, buf.String())
	assert.Contains(t, comments[1], "Bills: 0")
	require.Len(t, records, 1)
	assert.Equal(t, billHeaders, records[0])
}

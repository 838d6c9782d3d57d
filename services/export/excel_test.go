package export

import (
	"bytes"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core/finance"
)

func readRows(t *testing.T, data []byte, sheet string) [][]string {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	return rows
}

func TestDebtors(t *testing.T) {
	data, err := Debtors([]finance.Debtor{
		{
			StudentName:    "Quispe, Luis",
			SectionID:      "sec-a",
			OverdueEntries: 2,
			Outstanding:    decimal.RequireFromString("615"),
			AccruedMora:    decimal.RequireFromString("15"),
			OldestDueDate:  core.DateOf(2024, 3, 10),
		},
		{
			StudentName:    "Torres, Ana",
			SectionID:      "sec-b",
			OverdueEntries: 1,
			Outstanding:    decimal.RequireFromString("350.5"),
			AccruedMora:    decimal.Zero,
			OldestDueDate:  core.DateOf(2024, 3, 15),
		},
	}, map[string]string{"sec-a": "1A", "sec-b": "1B"})
	require.NoError(t, err)

	rows := readRows(t, data, "Morosos")
	require.Len(t, rows, 4)
	assert.Equal(t, debtorHeaders, rows[0])
	assert.Equal(t, []string{"Quispe, Luis", "1A", "2", "2024-03-10", "15", "615"}, rows[1])
	assert.Equal(t, "1B", rows[2][1])
	assert.Equal(t, "Total", rows[3][0])
	assert.Equal(t, "965.5", rows[3][5])
}

func TestSchedule(t *testing.T) {
	today := core.DateOf(2024, 3, 20)
	data, err := Schedule([]finance.ScheduleEntry{
		{
			StudentName: "Quispe, Luis", ConceptName: "Pensión", Description: "Pensión 1/2",
			AmountDue: decimal.RequireFromString("350"), AmountPaid: decimal.RequireFromString("100"),
			AccruedMora: decimal.RequireFromString("15"), DueDate: core.DateOf(2024, 3, 10),
		},
		{
			StudentName: "Quispe, Luis", ConceptName: "Pensión", Description: "Pensión 2/2",
			AmountDue: decimal.RequireFromString("350"), AmountPaid: decimal.RequireFromString("350"),
			AccruedMora: decimal.Zero, DueDate: core.DateOf(2024, 4, 10), IsPaid: true,
		},
	}, today)
	require.NoError(t, err)

	rows := readRows(t, data, "Cronograma")
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Quispe, Luis", "Pensión", "Pensión 1/2", "2024-03-10", "350", "100", "15", "265", "Vencido"}, rows[1])
	assert.Equal(t, "Pagado", rows[2][8])
}

func TestPayments(t *testing.T) {
	voucherID := "v-1"
	data, err := Payments([]finance.PaymentRecord{
		{ReceiptNumber: "BOL-1", EntryID: "e-1", Amount: decimal.RequireFromString("100"), Method: finance.MethodCash, PaymentDate: core.DateOf(2024, 3, 12)},
		{ReceiptNumber: "BOL-2", EntryID: "e-1", Amount: decimal.RequireFromString("50.25"), Method: finance.MethodTransfer, Reference: "BCP 555", PaymentDate: core.DateOf(2024, 3, 13), VoucherID: &voucherID},
	}, map[string]string{"e-1": "Pensión Marzo"})
	require.NoError(t, err)

	rows := readRows(t, data, "Pagos")
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"BOL-2", "2024-03-13", "Pensión Marzo", "50.25", "transfer", "BCP 555", "v-1"}, rows[2])
	assert.Equal(t, []string{"", "", "Total", "150.25"}, rows[3])
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "morosos_20240320.xlsx", Filename("morosos", core.DateOf(2024, 3, 20)))
}

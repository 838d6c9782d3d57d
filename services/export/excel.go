// Package export renders finance reports as xlsx workbooks.
package export

import (
	"bytes"
	"fmt"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core/finance"
)

const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var (
	debtorHeaders   = []string{"Alumno", "Sección", "Cuotas vencidas", "Vencida desde", "Mora", "Deuda total"}
	scheduleHeaders = []string{"Alumno", "Concepto", "Descripción", "Vencimiento", "Monto", "Pagado", "Mora", "Saldo", "Estado"}
	paymentHeaders  = []string{"Boleta", "Fecha", "Cuota", "Monto", "Método", "Referencia", "Comprobante"}

	statusNames = map[string]string{
		finance.EntryPending: "Pendiente",
		finance.EntryPartial: "Parcial",
		finance.EntryOverdue: "Vencido",
		finance.EntryPaid:    "Pagado",
	}
)

type sheet struct {
	f    *excelize.File
	name string
	row  int
}

// newWorkbook returns a workbook whose only sheet is named name and starts with a bold header row.
func newWorkbook(name string, headers []string) (*sheet, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), name); err != nil {
		return nil, errors.Wrap(err, "naming sheet")
	}
	s := &sheet{f: f, name: name}

	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, errors.Wrap(err, "creating header style")
	}
	row := make([]interface{}, len(headers))
	for i, h := range headers {
		row[i] = h
	}
	if err := s.append(row...); err != nil {
		return nil, err
	}
	if err := f.SetRowStyle(name, 1, 1, style); err != nil {
		return nil, errors.Wrap(err, "styling header")
	}
	last, _ := excelize.ColumnNumberToName(len(headers))
	if err := f.SetColWidth(name, "A", last, 18); err != nil {
		return nil, errors.Wrap(err, "sizing columns")
	}
	return s, nil
}

func (s *sheet) append(values ...interface{}) error {
	s.row++
	cell, err := excelize.CoordinatesToCellName(1, s.row)
	if err != nil {
		return err
	}
	return errors.Wrapf(s.f.SetSheetRow(s.name, cell, &values), "writing row %d", s.row)
}

func (s *sheet) bytes() ([]byte, error) {
	defer s.f.Close()
	var buf bytes.Buffer
	if err := s.f.Write(&buf); err != nil {
		return nil, errors.Wrap(err, "writing workbook")
	}
	return buf.Bytes(), nil
}

func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

// Debtors renders the debtors report. sections maps section IDs to their display name.
func Debtors(debtors []finance.Debtor, sections map[string]string) ([]byte, error) {
	s, err := newWorkbook("Morosos", debtorHeaders)
	if err != nil {
		return nil, err
	}
	total := decimal.Zero
	for _, d := range debtors {
		err := s.append(d.StudentName, sections[d.SectionID], d.OverdueEntries, d.OldestDueDate.String(), money(d.AccruedMora), money(d.Outstanding))
		if err != nil {
			return nil, err
		}
		total = total.Add(d.Outstanding)
	}
	if err := s.append("Total", nil, nil, nil, nil, money(total)); err != nil {
		return nil, err
	}
	return s.bytes()
}

// Schedule renders a cronograma, with each entry status as of today.
func Schedule(entries []finance.ScheduleEntry, today core.Date) ([]byte, error) {
	s, err := newWorkbook("Cronograma", scheduleHeaders)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		err := s.append(
			e.StudentName, e.ConceptName, e.Description, e.DueDate.String(),
			money(e.AmountDue), money(e.AmountPaid), money(e.AccruedMora), money(e.Balance()),
			statusNames[e.Status(today)],
		)
		if err != nil {
			return nil, err
		}
	}
	return s.bytes()
}

// Payments renders a payment ledger. descriptions maps entry IDs to their description.
func Payments(payments []finance.PaymentRecord, descriptions map[string]string) ([]byte, error) {
	s, err := newWorkbook("Pagos", paymentHeaders)
	if err != nil {
		return nil, err
	}
	for _, p := range payments {
		voucher := ""
		if p.VoucherID != nil {
			voucher = *p.VoucherID
		}
		err := s.append(p.ReceiptNumber, p.PaymentDate.String(), descriptions[p.EntryID], money(p.Amount), string(p.Method), p.Reference, voucher)
		if err != nil {
			return nil, err
		}
	}
	if err := s.append(nil, nil, "Total", money(finance.TotalPaid(payments))); err != nil {
		return nil, err
	}
	return s.bytes()
}

// Filename returns "<report>_<yyyymmdd>.xlsx".
func Filename(report string, day core.Date) string {
	return fmt.Sprintf("%s_%s.xlsx", report, day.Format("20060102"))
}

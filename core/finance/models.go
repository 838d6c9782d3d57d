package finance

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core"
)

type PaymentMethod string

const (
	MethodCash     PaymentMethod = "cash"
	MethodTransfer PaymentMethod = "transfer"
	MethodDeposit  PaymentMethod = "deposit"
	MethodCard     PaymentMethod = "card"
)

var PaymentMethods = []PaymentMethod{MethodCash, MethodTransfer, MethodDeposit, MethodCard}

type VoucherStatus string

const (
	VoucherPending  VoucherStatus = "pending"
	VoucherApproved VoucherStatus = "approved"
	VoucherRejected VoucherStatus = "rejected"
)

// Entry statuses, derived from the amounts and the due date.
const (
	EntryPending = "pending"
	EntryPartial = "partial"
	EntryOverdue = "overdue"
	EntryPaid    = "paid"
)

// Concept is a fee type of the catalog (eg: "Pensión Marzo", "Matrícula").
type Concept struct {
	ID              string          `json:"id" db:"id"`
	InstitutionID   string          `json:"institution_id" db:"institution_id"`
	Name            string          `json:"name" db:"name"`
	Description     string          `json:"description" db:"description"`
	SuggestedAmount decimal.Decimal `json:"suggested_amount" db:"suggested_amount"`
	Currency        string          `json:"currency" db:"currency"`
	DailyMoraRate   decimal.Decimal `json:"daily_mora_rate" db:"daily_mora_rate"`
	IsActive        bool            `json:"is_active" db:"is_active"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// ScheduleEntry is one installment (cronograma row) of a Concept owed by a Student.
type ScheduleEntry struct {
	ID            string          `json:"id" db:"id"`
	InstitutionID string          `json:"institution_id" db:"institution_id"`
	StudentID     string          `json:"student_id" db:"student_id"`
	ConceptID     string          `json:"concept_id" db:"concept_id"`
	Description   string          `json:"description" db:"description"`
	AmountDue     decimal.Decimal `json:"amount_due" db:"amount_due"`
	AmountPaid    decimal.Decimal `json:"amount_paid" db:"amount_paid"`
	AccruedMora   decimal.Decimal `json:"accrued_mora" db:"accrued_mora"`
	DueDate       core.Date       `json:"due_date" db:"due_date"`
	IsPaid        bool            `json:"is_paid" db:"is_paid"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`

	// read-only, joined by queries
	StudentName string `json:"student_name" db:"student_name"`
	SectionID   string `json:"section_id" db:"section_id"`
	ConceptName string `json:"concept_name" db:"concept_name"`
}

// Balance is what is still owed, mora included.
func (e ScheduleEntry) Balance() decimal.Decimal {
	return e.AmountDue.Add(e.AccruedMora).Sub(e.AmountPaid)
}

func (e ScheduleEntry) IsOverdue(today core.Date) bool {
	return !e.IsPaid && e.DueDate.Before(today)
}

func (e ScheduleEntry) Status(today core.Date) string {
	switch {
	case e.IsPaid:
		return EntryPaid
	case e.IsOverdue(today):
		return EntryOverdue
	case e.AmountPaid.IsPositive():
		return EntryPartial
	default:
		return EntryPending
	}
}

// applyPayment adds amount to AmountPaid and recomputes IsPaid.
func (e *ScheduleEntry) applyPayment(amount decimal.Decimal, now time.Time) {
	e.AmountPaid = e.AmountPaid.Add(amount)
	e.IsPaid = e.AmountPaid.GreaterThanOrEqual(e.AmountDue)
	e.UpdatedAt = now
}

// PaymentRecord is an immutable settlement of a ScheduleEntry.
type PaymentRecord struct {
	ID            string          `json:"id" db:"id"`
	InstitutionID string          `json:"institution_id" db:"institution_id"`
	EntryID       string          `json:"entry_id" db:"entry_id"`
	VoucherID     *string         `json:"voucher_id" db:"voucher_id"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	Method        PaymentMethod   `json:"method" db:"method"`
	ReceiptNumber string          `json:"receipt_number" db:"receipt_number"`
	Reference     string          `json:"reference" db:"reference"`
	Notes         string          `json:"notes" db:"notes"`
	PaymentDate   core.Date       `json:"payment_date" db:"payment_date"`
	RegisteredBy  *string         `json:"registered_by" db:"registered_by"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// Voucher (comprobante) is a parent-submitted proof of bank transfer.
type Voucher struct {
	ID              string          `json:"id" db:"id"`
	InstitutionID   string          `json:"institution_id" db:"institution_id"`
	EntryID         string          `json:"entry_id" db:"entry_id"`
	StudentID       string          `json:"student_id" db:"student_id"`
	SubmittedBy     string          `json:"submitted_by" db:"submitted_by"`
	Amount          decimal.Decimal `json:"amount" db:"amount"`
	BankOrigin      string          `json:"bank_origin" db:"bank_origin"`
	OperationNumber string          `json:"operation_number" db:"operation_number"`
	OperationDate   core.Date       `json:"operation_date" db:"operation_date"`
	AttachmentURL   string          `json:"attachment_url" db:"attachment_url"`
	Notes           string          `json:"notes" db:"notes"`
	Status          VoucherStatus   `json:"status" db:"status"`
	RejectionReason string          `json:"rejection_reason" db:"rejection_reason"`
	ReviewedBy      *string         `json:"reviewed_by" db:"reviewed_by"`
	ReviewedAt      *time.Time      `json:"reviewed_at" db:"reviewed_at"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

func (v Voucher) IsPending() bool { return v.Status == VoucherPending }

// Debtor aggregates the overdue entries of a Student.
type Debtor struct {
	StudentID      string          `json:"student_id"`
	StudentName    string          `json:"student_name"`
	SectionID      string          `json:"section_id"`
	OverdueEntries int             `json:"overdue_entries"`
	Outstanding    decimal.Decimal `json:"outstanding"`
	AccruedMora    decimal.Decimal `json:"accrued_mora"`
	OldestDueDate  core.Date       `json:"oldest_due_date"`
}

// Settlement is the outcome of a registered payment.
type Settlement struct {
	Payment PaymentRecord `json:"payment"`
	Entry   ScheduleEntry `json:"entry"`
}

// VoucherDecision is the outcome of approving or rejecting a Voucher.
// Unchanged is true when the voucher was already in the requested state.
type VoucherDecision struct {
	Voucher   Voucher        `json:"voucher"`
	Payment   *PaymentRecord `json:"payment,omitempty"`
	Unchanged bool           `json:"unchanged"`
}

// MoraResult reports a mora accrual run.
type MoraResult struct {
	AsOf    core.Date `json:"as_of"`
	Matched int       `json:"matched"` // overdue entries selected by the filters
	Updated int       `json:"updated"` // entries whose accrued mora changed
}

// EntryDetail is a ScheduleEntry with its payment ledger.
type EntryDetail struct {
	ScheduleEntry
	Status   string          `json:"status"`
	Balance  decimal.Decimal `json:"balance"`
	Payments []PaymentRecord `json:"payments"`
}

// Inputs & filters

type NewConcept struct {
	Name            string          `json:"name" validate:"required"`
	Description     string          `json:"description"`
	SuggestedAmount decimal.Decimal `json:"suggested_amount" validate:"gte=0"`
	Currency        string          `json:"currency" validate:"omitempty,currency"`
	DailyMoraRate   decimal.Decimal `json:"daily_mora_rate" validate:"gte=0"`
}

func (nc *NewConcept) Clean() {
	nc.Name = core.CleanString(nc.Name)
	nc.Description = core.CleanString(nc.Description)
	nc.Currency = strings.ToUpper(core.CleanString(nc.Currency))
}

// UpdateConcept replaces the editable fields of a Concept. IsActive is left untouched when nil.
type UpdateConcept struct {
	NewConcept
	IsActive *bool `json:"is_active"`
}

type ConceptFilter struct {
	Search   string `query:"search"`
	IsActive *bool  `query:"-"` // read with the is_active param
}

type EntryFilter struct {
	StudentID  string    `query:"student_id"`
	ConceptID  string    `query:"concept_id"`
	SectionID  string    `query:"section_id"`
	IsPaid     *bool     `query:"-"`        // read with the is_paid param
	Overdue    bool      `query:"overdue"`
	DueFrom    core.Date `query:"due_from"` // inclusive
	DueTo      core.Date `query:"due_to"`   // inclusive
	StudentIDs []string  `query:"-"`        // restricts to these students when not nil
	DueBefore  core.Date `query:"-"`        // exclusive
}

func (ef *EntryFilter) Clean() {
	ef.StudentID = core.CleanString(ef.StudentID)
	ef.ConceptID = core.CleanString(ef.ConceptID)
	ef.SectionID = core.CleanString(ef.SectionID)
}

// BulkFilter selects the entries of a bulk operation. Empty fields do not filter.
type BulkFilter struct {
	ConceptID string `json:"concept_id" query:"concept_id"`
	SectionID string `json:"section_id" query:"section_id"`
}

func (bf *BulkFilter) Clean() {
	bf.ConceptID = core.CleanString(bf.ConceptID)
	bf.SectionID = core.CleanString(bf.SectionID)
}

type DueDateShift struct {
	ConceptID string    `json:"concept_id" validate:"required"`
	SectionID string    `json:"section_id"`
	DueDate   core.Date `json:"due_date" validate:"required"`
}

type BulkDelete struct {
	ConceptID string `json:"concept_id" query:"concept_id" validate:"required"`
	SectionID string `json:"section_id" query:"section_id"`
}

type Installment struct {
	Description string    `json:"description"`
	DueDate     core.Date `json:"due_date" validate:"required"`
	// Formula computes the installment amount. Variables: amount, installments, number. Default: "amount".
	Formula string `json:"formula" validate:"omitempty,formula"`
}

// NewSchedule bills a Concept to a section or to a list of students.
type NewSchedule struct {
	ConceptID    string          `json:"concept_id" validate:"required"`
	SectionID    string          `json:"section_id" validate:"required_without=StudentIDs"`
	StudentIDs   []string        `json:"student_ids" validate:"required_without=SectionID"`
	Amount       decimal.Decimal `json:"amount" validate:"gte=0"` // defaults to the concept's suggested amount
	Installments []Installment   `json:"installments" validate:"required,min=1,dive"`
}

type NewPayment struct {
	EntryID       string          `json:"entry_id" validate:"required"`
	Amount        decimal.Decimal `json:"amount" validate:"gt=0"`
	Method        PaymentMethod   `json:"method" validate:"required,paymethod"`
	ReceiptNumber string          `json:"receipt_number"`
	Reference     string          `json:"reference"`
	Notes         string          `json:"notes"`
	PaymentDate   core.Date       `json:"payment_date"` // defaults to today
}

func (np *NewPayment) Clean() {
	np.EntryID = core.CleanString(np.EntryID)
	np.ReceiptNumber = core.CleanString(np.ReceiptNumber)
	np.Reference = core.CleanString(np.Reference)
	np.Notes = core.CleanString(np.Notes)
}

type PaymentFilter struct {
	EntryID   string        `query:"entry_id"`
	StudentID string        `query:"student_id"`
	Method    PaymentMethod `query:"method"`
	DateFrom  core.Date     `query:"date_from"`
	DateTo    core.Date     `query:"date_to"`
}

type NewVoucher struct {
	EntryID         string          `json:"entry_id" validate:"required"`
	Amount          decimal.Decimal `json:"amount" validate:"gt=0"`
	BankOrigin      string          `json:"bank_origin" validate:"required"`
	OperationNumber string          `json:"operation_number" validate:"required"`
	OperationDate   core.Date       `json:"operation_date" validate:"required"`
	AttachmentURL   string          `json:"attachment_url" validate:"omitempty,url"`
	Notes           string          `json:"notes"`
}

func (nv *NewVoucher) Clean() {
	nv.EntryID = core.CleanString(nv.EntryID)
	nv.BankOrigin = core.CleanString(nv.BankOrigin)
	nv.OperationNumber = core.CleanString(nv.OperationNumber)
	nv.AttachmentURL = core.CleanString(nv.AttachmentURL)
	nv.Notes = core.CleanString(nv.Notes)
}

type RejectVoucher struct {
	Reason string `json:"reason" validate:"required"`
}

type VoucherFilter struct {
	Status      VoucherStatus `query:"status"`
	StudentID   string        `query:"student_id"`
	EntryID     string        `query:"entry_id"`
	SubmittedBy string        `query:"-"`
}

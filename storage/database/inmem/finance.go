package inmemdb

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core/finance"
)

type financeRepository struct {
	access
}

var _ finance.Repository = (*financeRepository)(nil)

func NewFinanceRepository(db *DB) *financeRepository {
	return &financeRepository{access{db: db}}
}

func (repo *financeRepository) Atomic(_ context.Context, fn func(repo finance.Repository) error) error {
	return repo.atomic(func(tx access) error {
		return fn(&financeRepository{tx})
	})
}

// Concepts

func (repo *financeRepository) CreateConcept(_ context.Context, concept finance.Concept) (finance.Concept, error) {
	err := repo.write(func(t *tables) error {
		if conceptNameTaken(t, concept) {
			return finance.ErrConceptExists
		}
		concept.ID = newID()
		t.concepts[concept.ID] = concept
		return nil
	})
	if err != nil {
		return finance.Concept{}, err
	}
	return concept, nil
}

func conceptNameTaken(t *tables, concept finance.Concept) bool {
	for _, c := range t.concepts {
		if c.ID != concept.ID && c.InstitutionID == concept.InstitutionID && strings.EqualFold(c.Name, concept.Name) {
			return true
		}
	}
	return false
}

func (repo *financeRepository) GetConcept(_ context.Context, institutionID, id string) (concept finance.Concept, err error) {
	err = repo.read(func(t *tables) error {
		c, ok := t.concepts[id]
		if !ok || c.InstitutionID != institutionID {
			return finance.ErrConceptNotFound
		}
		concept = c
		return nil
	})
	return concept, err
}

func (repo *financeRepository) QueryConcepts(_ context.Context, institutionID string, filter *finance.ConceptFilter, ordering []core.DBOrdering) ([]finance.Concept, error) {
	concepts := make([]finance.Concept, 0)
	_ = repo.read(func(t *tables) error {
		for _, c := range t.concepts {
			if c.InstitutionID != institutionID {
				continue
			}
			if filter != nil {
				if filter.Search != "" && !containsFold(filter.Search, c.Name, c.Description) {
					continue
				}
				if filter.IsActive != nil && c.IsActive != *filter.IsActive {
					continue
				}
			}
			concepts = append(concepts, c)
		}
		return nil
	})
	sortBy(concepts, ordering, map[string]func(a, b finance.Concept) int{
		"name":             func(a, b finance.Concept) int { return strings.Compare(a.Name, b.Name) },
		"suggested_amount": func(a, b finance.Concept) int { return a.SuggestedAmount.Cmp(b.SuggestedAmount) },
		"created_at":       func(a, b finance.Concept) int { return a.CreatedAt.Compare(b.CreatedAt) },
	}, func(a, b finance.Concept) int { return strings.Compare(a.Name, b.Name) })
	return concepts, nil
}

func (repo *financeRepository) UpdateConcept(_ context.Context, concept finance.Concept) (finance.Concept, error) {
	err := repo.write(func(t *tables) error {
		if c, ok := t.concepts[concept.ID]; !ok || c.InstitutionID != concept.InstitutionID {
			return finance.ErrConceptNotFound
		}
		if conceptNameTaken(t, concept) {
			return finance.ErrConceptExists
		}
		t.concepts[concept.ID] = concept
		return nil
	})
	if err != nil {
		return finance.Concept{}, err
	}
	return concept, nil
}

func (repo *financeRepository) DeleteConcept(_ context.Context, institutionID, id string) error {
	return repo.write(func(t *tables) error {
		if c, ok := t.concepts[id]; !ok || c.InstitutionID != institutionID {
			return finance.ErrConceptNotFound
		}
		delete(t.concepts, id)
		return nil
	})
}

func (repo *financeRepository) ConceptInUse(_ context.Context, institutionID, id string) (inUse bool, err error) {
	err = repo.read(func(t *tables) error {
		for _, e := range t.entries {
			if e.InstitutionID == institutionID && e.ConceptID == id {
				inUse = true
				break
			}
		}
		return nil
	})
	return inUse, err
}

// Schedule entries

// joined fills the read-only fields of an entry.
func joined(t *tables, e finance.ScheduleEntry) finance.ScheduleEntry {
	if std, ok := t.students[e.StudentID]; ok {
		e.StudentName = std.FullName()
		e.SectionID = std.SectionID
	}
	if c, ok := t.concepts[e.ConceptID]; ok {
		e.ConceptName = c.Name
	}
	return e
}

// stored strips the read-only fields of an entry.
func stored(e finance.ScheduleEntry) finance.ScheduleEntry {
	e.StudentName, e.SectionID, e.ConceptName = "", "", ""
	return e
}

func (repo *financeRepository) CreateEntries(_ context.Context, entries []finance.ScheduleEntry) ([]finance.ScheduleEntry, error) {
	created := make([]finance.ScheduleEntry, 0, len(entries))
	err := repo.write(func(t *tables) error {
		for _, e := range entries {
			e.ID = newID()
			t.entries[e.ID] = stored(e)
			created = append(created, joined(t, e))
		}
		return nil
	})
	return created, err
}

// GetEntry ignores lock: the caller already holds the DB lock inside Atomic.
func (repo *financeRepository) GetEntry(_ context.Context, institutionID, id string, _ bool) (entry finance.ScheduleEntry, err error) {
	err = repo.read(func(t *tables) error {
		e, ok := t.entries[id]
		if !ok || e.InstitutionID != institutionID {
			return finance.ErrEntryNotFound
		}
		entry = joined(t, e)
		return nil
	})
	return entry, err
}

func matchEntry(e finance.ScheduleEntry, filter *finance.EntryFilter) bool {
	if filter == nil {
		return true
	}
	switch {
	case filter.StudentID != "" && e.StudentID != filter.StudentID,
		filter.ConceptID != "" && e.ConceptID != filter.ConceptID,
		filter.SectionID != "" && e.SectionID != filter.SectionID,
		filter.IsPaid != nil && e.IsPaid != *filter.IsPaid,
		filter.StudentIDs != nil && !contains(filter.StudentIDs, e.StudentID),
		!filter.DueFrom.IsZero() && e.DueDate.Before(filter.DueFrom),
		!filter.DueTo.IsZero() && e.DueDate.After(filter.DueTo),
		!filter.DueBefore.IsZero() && !e.DueDate.Before(filter.DueBefore):
		return false
	}
	return true
}

func (repo *financeRepository) QueryEntries(_ context.Context, institutionID string, filter *finance.EntryFilter, ordering []core.DBOrdering) ([]finance.ScheduleEntry, error) {
	entries := make([]finance.ScheduleEntry, 0)
	_ = repo.read(func(t *tables) error {
		for _, e := range t.entries {
			if e.InstitutionID != institutionID {
				continue
			}
			if e = joined(t, e); matchEntry(e, filter) {
				entries = append(entries, e)
			}
		}
		return nil
	})
	sortBy(entries, ordering, map[string]func(a, b finance.ScheduleEntry) int{
		"due_date":     func(a, b finance.ScheduleEntry) int { return a.DueDate.Compare(b.DueDate.Time) },
		"amount_due":   func(a, b finance.ScheduleEntry) int { return a.AmountDue.Cmp(b.AmountDue) },
		"student_name": func(a, b finance.ScheduleEntry) int { return strings.Compare(a.StudentName, b.StudentName) },
		"created_at":   func(a, b finance.ScheduleEntry) int { return a.CreatedAt.Compare(b.CreatedAt) },
	}, func(a, b finance.ScheduleEntry) int {
		if c := a.DueDate.Compare(b.DueDate.Time); c != 0 {
			return c
		}
		if c := strings.Compare(a.StudentName, b.StudentName); c != 0 {
			return c
		}
		return strings.Compare(a.Description, b.Description)
	})
	return entries, nil
}

func (repo *financeRepository) UpdateEntryPayment(_ context.Context, entry finance.ScheduleEntry) error {
	return repo.write(func(t *tables) error {
		e, ok := t.entries[entry.ID]
		if !ok || e.InstitutionID != entry.InstitutionID {
			return finance.ErrEntryNotFound
		}
		e.AmountPaid = entry.AmountPaid
		e.IsPaid = entry.IsPaid
		e.UpdatedAt = entry.UpdatedAt
		t.entries[e.ID] = e
		return nil
	})
}

func (repo *financeRepository) SetEntriesMora(_ context.Context, institutionID string, mora map[string]decimal.Decimal) error {
	now := time.Now().UTC()
	return repo.write(func(t *tables) error {
		for id, amount := range mora {
			e, ok := t.entries[id]
			if !ok || e.InstitutionID != institutionID || e.IsPaid {
				continue
			}
			e.AccruedMora = amount
			e.UpdatedAt = now
			t.entries[id] = e
		}
		return nil
	})
}

func (repo *financeRepository) bulkMatch(t *tables, institutionID string, filter finance.BulkFilter) []finance.ScheduleEntry {
	unpaid := false
	ef := &finance.EntryFilter{ConceptID: filter.ConceptID, SectionID: filter.SectionID, IsPaid: &unpaid}
	matched := make([]finance.ScheduleEntry, 0)
	for _, e := range t.entries {
		if e.InstitutionID == institutionID && matchEntry(joined(t, e), ef) {
			matched = append(matched, e)
		}
	}
	return matched
}

func (repo *financeRepository) ShiftDueDates(_ context.Context, institutionID string, filter finance.BulkFilter, dueDate core.Date) (n int, err error) {
	now := time.Now().UTC()
	err = repo.write(func(t *tables) error {
		for _, e := range repo.bulkMatch(t, institutionID, filter) {
			e.DueDate = dueDate
			e.UpdatedAt = now
			t.entries[e.ID] = e
			n++
		}
		return nil
	})
	return n, err
}

func (repo *financeRepository) DeleteUnpaidEntries(_ context.Context, institutionID string, filter finance.BulkFilter) (n int, err error) {
	err = repo.write(func(t *tables) error {
		protected := make(map[string]bool)
		for _, p := range t.payments {
			protected[p.EntryID] = true
		}
		for _, v := range t.vouchers {
			if v.Status != finance.VoucherRejected {
				protected[v.EntryID] = true
			}
		}

		for _, e := range repo.bulkMatch(t, institutionID, filter) {
			if protected[e.ID] {
				continue
			}
			delete(t.entries, e.ID)
			for id, v := range t.vouchers {
				if v.EntryID == e.ID {
					delete(t.vouchers, id)
				}
			}
			n++
		}
		return nil
	})
	return n, err
}

// Payments

func (repo *financeRepository) CreatePayment(_ context.Context, payment finance.PaymentRecord) (finance.PaymentRecord, error) {
	err := repo.write(func(t *tables) error {
		for _, p := range t.payments {
			if p.InstitutionID == payment.InstitutionID && p.ReceiptNumber == payment.ReceiptNumber {
				return finance.ErrReceiptExists
			}
			if payment.VoucherID != nil && p.VoucherID != nil && *p.VoucherID == *payment.VoucherID {
				return finance.ErrVoucherResolved
			}
		}
		payment.ID = newID()
		t.payments[payment.ID] = payment
		return nil
	})
	if err != nil {
		return finance.PaymentRecord{}, err
	}
	return payment, nil
}

func (repo *financeRepository) QueryPayments(_ context.Context, institutionID string, filter *finance.PaymentFilter) ([]finance.PaymentRecord, error) {
	payments := make([]finance.PaymentRecord, 0)
	_ = repo.read(func(t *tables) error {
		for _, p := range t.payments {
			if p.InstitutionID != institutionID {
				continue
			}
			if filter != nil {
				if filter.EntryID != "" && p.EntryID != filter.EntryID {
					continue
				}
				if filter.StudentID != "" && t.entries[p.EntryID].StudentID != filter.StudentID {
					continue
				}
				if filter.Method != "" && p.Method != filter.Method {
					continue
				}
				if !filter.DateFrom.IsZero() && p.PaymentDate.Before(filter.DateFrom) {
					continue
				}
				if !filter.DateTo.IsZero() && p.PaymentDate.After(filter.DateTo) {
					continue
				}
			}
			payments = append(payments, p)
		}
		return nil
	})
	sortBy(payments, nil, nil, func(a, b finance.PaymentRecord) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return payments, nil
}

func (repo *financeRepository) GetPaymentByVoucher(_ context.Context, institutionID, voucherID string) (payment finance.PaymentRecord, err error) {
	err = repo.read(func(t *tables) error {
		for _, p := range t.payments {
			if p.InstitutionID == institutionID && p.VoucherID != nil && *p.VoucherID == voucherID {
				payment = p
				return nil
			}
		}
		return finance.ErrPaymentNotFound
	})
	return payment, err
}

// Vouchers

func (repo *financeRepository) CreateVoucher(_ context.Context, voucher finance.Voucher) (finance.Voucher, error) {
	err := repo.write(func(t *tables) error {
		for _, v := range t.vouchers {
			if v.InstitutionID == voucher.InstitutionID && v.Status != finance.VoucherRejected &&
				v.BankOrigin == voucher.BankOrigin && v.OperationNumber == voucher.OperationNumber {
				return finance.ErrDuplicateOperation
			}
		}
		voucher.ID = newID()
		t.vouchers[voucher.ID] = voucher
		return nil
	})
	if err != nil {
		return finance.Voucher{}, err
	}
	return voucher, nil
}

func (repo *financeRepository) GetVoucher(_ context.Context, institutionID, id string, _ bool) (voucher finance.Voucher, err error) {
	err = repo.read(func(t *tables) error {
		v, ok := t.vouchers[id]
		if !ok || v.InstitutionID != institutionID {
			return finance.ErrVoucherNotFound
		}
		voucher = v
		return nil
	})
	return voucher, err
}

func (repo *financeRepository) QueryVouchers(_ context.Context, institutionID string, filter *finance.VoucherFilter, ordering []core.DBOrdering) ([]finance.Voucher, error) {
	vouchers := make([]finance.Voucher, 0)
	_ = repo.read(func(t *tables) error {
		for _, v := range t.vouchers {
			if v.InstitutionID != institutionID {
				continue
			}
			if filter != nil {
				if filter.Status != "" && v.Status != filter.Status {
					continue
				}
				if filter.StudentID != "" && v.StudentID != filter.StudentID {
					continue
				}
				if filter.EntryID != "" && v.EntryID != filter.EntryID {
					continue
				}
				if filter.SubmittedBy != "" && v.SubmittedBy != filter.SubmittedBy {
					continue
				}
			}
			vouchers = append(vouchers, v)
		}
		return nil
	})
	sortBy(vouchers, ordering, map[string]func(a, b finance.Voucher) int{
		"created_at":     func(a, b finance.Voucher) int { return a.CreatedAt.Compare(b.CreatedAt) },
		"operation_date": func(a, b finance.Voucher) int { return a.OperationDate.Compare(b.OperationDate.Time) },
		"amount":         func(a, b finance.Voucher) int { return a.Amount.Cmp(b.Amount) },
		"id":             func(a, b finance.Voucher) int { return strings.Compare(a.ID, b.ID) },
	}, func(a, b finance.Voucher) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return vouchers, nil
}

func (repo *financeRepository) UpdateVoucher(_ context.Context, voucher finance.Voucher) (finance.Voucher, error) {
	err := repo.write(func(t *tables) error {
		if v, ok := t.vouchers[voucher.ID]; !ok || v.InstitutionID != voucher.InstitutionID {
			return finance.ErrVoucherNotFound
		}
		t.vouchers[voucher.ID] = voucher
		return nil
	})
	if err != nil {
		return finance.Voucher{}, err
	}
	return voucher, nil
}

package finance

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Knetic/govaluate"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core/school"
)

const defaultFormula = "amount"

// installmentAmounts evaluates the formula of every installment.
// govaluate only computes on float64, so amounts go through float and are rounded back to cents.
func installmentAmounts(amount decimal.Decimal, installments []Installment) ([]decimal.Decimal, error) {
	base, _ := amount.Float64()
	amounts := make([]decimal.Decimal, 0, len(installments))

	for i, inst := range installments {
		formula := inst.Formula
		if formula == "" {
			formula = defaultFormula
		}
		field := fmt.Sprintf("installments[%d].formula", i)

		expr, err := govaluate.NewEvaluableExpression(formula)
		if err != nil {
			return nil, core.NewValidationError(err, core.FieldError{Field: field, Error: "invalid formula"})
		}
		result, err := expr.Evaluate(map[string]interface{}{
			"amount":       base,
			"installments": float64(len(installments)),
			"number":       float64(i + 1),
		})
		if err != nil {
			return nil, core.NewValidationError(err, core.FieldError{Field: field, Error: "formula could not be evaluated"})
		}
		value, ok := result.(float64)
		if !ok || value < 0 {
			return nil, core.NewValidationError(
				errors.Errorf("formula %q gave %v", formula, result),
				core.FieldError{Field: field, Error: "formula must give a positive number"},
			)
		}
		amounts = append(amounts, decimal.NewFromFloat(value).Round(2))
	}
	return amounts, nil
}

// GenerateSchedule creates one entry per student per installment of the given Concept.
func (svc *Service) GenerateSchedule(ctx context.Context, institutionID string, ns NewSchedule) ([]ScheduleEntry, error) {
	if err := svc.validate.Struct(ns); err != nil {
		return nil, err
	}

	concept, err := svc.repo.GetConcept(ctx, institutionID, ns.ConceptID)
	if err != nil {
		if errors.Cause(err) == ErrConceptNotFound {
			return nil, core.NewValidationError(err, core.FieldError{Field: "concept_id", Error: err.Error()})
		}
		return nil, errors.Wrap(err, "getting concept")
	}
	if !concept.IsActive {
		return nil, ErrConceptInactive
	}

	amount := ns.Amount
	if amount.IsZero() {
		amount = concept.SuggestedAmount
	}
	amounts, err := installmentAmounts(amount, ns.Installments)
	if err != nil {
		return nil, err
	}

	students, err := svc.billedStudents(ctx, institutionID, ns)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	entries := make([]ScheduleEntry, 0, len(students)*len(ns.Installments))
	for _, std := range students {
		for i, inst := range ns.Installments {
			desc := inst.Description
			if desc == "" {
				desc = concept.Name
				if len(ns.Installments) > 1 {
					desc = fmt.Sprintf("%s %d/%d", concept.Name, i+1, len(ns.Installments))
				}
			}
			entries = append(entries, ScheduleEntry{
				InstitutionID: institutionID,
				StudentID:     std.ID,
				ConceptID:     concept.ID,
				Description:   desc,
				AmountDue:     amounts[i],
				AmountPaid:    decimal.Zero,
				AccruedMora:   decimal.Zero,
				DueDate:       core.NewDate(inst.DueDate.Time),
				CreatedAt:     now,
				UpdatedAt:     now,
				StudentName:   std.FullName(),
				SectionID:     std.SectionID,
				ConceptName:   concept.Name,
			})
		}
	}
	if len(entries) == 0 {
		return []ScheduleEntry{}, nil
	}

	var created []ScheduleEntry
	err = svc.repo.Atomic(ctx, func(repo Repository) error {
		created, err = repo.CreateEntries(ctx, entries)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating schedule entries")
	}
	return created, nil
}

func (svc *Service) billedStudents(ctx context.Context, institutionID string, ns NewSchedule) ([]school.Student, error) {
	if len(ns.StudentIDs) == 0 {
		active := true
		students, err := svc.students.QueryStudents(ctx, institutionID, &school.StudentFilter{SectionID: ns.SectionID, IsActive: &active})
		return students, errors.Wrap(err, "querying section students")
	}

	students := make([]school.Student, 0, len(ns.StudentIDs))
	for i, id := range ns.StudentIDs {
		std, err := svc.students.GetStudent(ctx, institutionID, id)
		if err != nil {
			if errors.Cause(err) == school.ErrStudentNotFound {
				return nil, core.NewValidationError(err, core.FieldError{Field: fmt.Sprintf("student_ids[%d]", i), Error: err.Error()})
			}
			return nil, errors.Wrap(err, "getting student")
		}
		students = append(students, std)
	}
	return students, nil
}

// QuerySchedule lists the entries matching filter. filter.Overdue selects unpaid entries due before today.
func (svc *Service) QuerySchedule(ctx context.Context, institutionID string, filter *EntryFilter, ordering []core.DBOrdering) ([]ScheduleEntry, error) {
	if filter != nil {
		filter.Clean()
		if filter.Overdue {
			unpaid := false
			filter.IsPaid = &unpaid
			filter.DueBefore = core.Today()
		}
	}
	return svc.repo.QueryEntries(ctx, institutionID, filter, ordering)
}

// GetEntry returns an entry with its payment ledger.
func (svc *Service) GetEntry(ctx context.Context, institutionID, id string) (EntryDetail, error) {
	entry, err := svc.repo.GetEntry(ctx, institutionID, id, false)
	if err != nil {
		return EntryDetail{}, err
	}
	payments, err := svc.repo.QueryPayments(ctx, institutionID, &PaymentFilter{EntryID: id})
	if err != nil {
		return EntryDetail{}, errors.Wrap(err, "querying entry payments")
	}
	return EntryDetail{
		ScheduleEntry: entry,
		Status:        entry.Status(core.Today()),
		Balance:       entry.Balance(),
		Payments:      payments,
	}, nil
}

// ApplyMora recomputes the accrued mora of every overdue unpaid entry matching filter, as of today.
// The mora is overwritten (never accumulated) with dailyMoraRate * days overdue.
func (svc *Service) ApplyMora(ctx context.Context, institutionID string, filter BulkFilter) (MoraResult, error) {
	return svc.ApplyMoraAsOf(ctx, institutionID, filter, core.Today())
}

// ApplyMoraAsOf is ApplyMora computed at the given date.
func (svc *Service) ApplyMoraAsOf(ctx context.Context, institutionID string, filter BulkFilter, asOf core.Date) (MoraResult, error) {
	filter.Clean()
	result := MoraResult{AsOf: asOf}

	err := svc.repo.Atomic(ctx, func(repo Repository) error {
		unpaid := false
		entries, err := repo.QueryEntries(ctx, institutionID, &EntryFilter{
			ConceptID: filter.ConceptID,
			SectionID: filter.SectionID,
			IsPaid:    &unpaid,
			DueBefore: asOf,
		}, nil)
		if err != nil {
			return errors.Wrap(err, "querying overdue entries")
		}
		result.Matched = len(entries)
		if len(entries) == 0 {
			return nil
		}

		rates := make(map[string]decimal.Decimal)
		mora := make(map[string]decimal.Decimal)
		for _, entry := range entries {
			rate, ok := rates[entry.ConceptID]
			if !ok {
				concept, err := repo.GetConcept(ctx, institutionID, entry.ConceptID)
				if err != nil {
					return errors.Wrap(err, "getting entry concept")
				}
				rate = concept.DailyMoraRate
				rates[entry.ConceptID] = rate
			}

			if amount := ComputeMora(rate, entry.DueDate, asOf); !amount.Equal(entry.AccruedMora) {
				mora[entry.ID] = amount
			}
		}
		result.Updated = len(mora)
		if len(mora) == 0 {
			return nil
		}
		return errors.Wrap(repo.SetEntriesMora(ctx, institutionID, mora), "setting entries mora")
	})
	if err != nil {
		return MoraResult{}, err
	}
	return result, nil
}

// ShiftDueDates moves the due date of the unpaid entries of a concept (optionally of a section).
// Accrued mora is left as is.
func (svc *Service) ShiftDueDates(ctx context.Context, institutionID string, shift DueDateShift) (int, error) {
	if err := svc.validate.Struct(shift); err != nil {
		return 0, err
	}
	filter := BulkFilter{ConceptID: shift.ConceptID, SectionID: shift.SectionID}
	filter.Clean()
	if _, err := svc.repo.GetConcept(ctx, institutionID, filter.ConceptID); err != nil {
		return 0, err
	}
	return svc.repo.ShiftDueDates(ctx, institutionID, filter, core.NewDate(shift.DueDate.Time))
}

// DeleteUnpaidEntries deletes the entries of a concept (optionally of a section) that are unpaid
// and have no payment history nor a voucher awaiting review.
func (svc *Service) DeleteUnpaidEntries(ctx context.Context, institutionID string, bd BulkDelete) (int, error) {
	if err := svc.validate.Struct(bd); err != nil {
		return 0, err
	}
	filter := BulkFilter{ConceptID: bd.ConceptID, SectionID: bd.SectionID}
	filter.Clean()
	if _, err := svc.repo.GetConcept(ctx, institutionID, filter.ConceptID); err != nil {
		return 0, err
	}

	var deleted int
	err := svc.repo.Atomic(ctx, func(repo Repository) (err error) {
		deleted, err = repo.DeleteUnpaidEntries(ctx, institutionID, filter)
		return err
	})
	return deleted, err
}

// QueryDebtors aggregates the overdue entries per student, biggest outstanding first.
// Entries whose principal is paid still count while their mora is owed.
func (svc *Service) QueryDebtors(ctx context.Context, institutionID string, filter BulkFilter) ([]Debtor, error) {
	filter.Clean()
	entries, err := svc.repo.QueryEntries(ctx, institutionID, &EntryFilter{
		ConceptID: filter.ConceptID,
		SectionID: filter.SectionID,
		DueBefore: core.Today(),
	}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "querying overdue entries")
	}

	byStudent := make(map[string]*Debtor)
	order := make([]string, 0)
	for _, entry := range entries {
		if !entry.Balance().IsPositive() {
			continue
		}
		d, ok := byStudent[entry.StudentID]
		if !ok {
			d = &Debtor{
				StudentID:     entry.StudentID,
				StudentName:   entry.StudentName,
				SectionID:     entry.SectionID,
				Outstanding:   decimal.Zero,
				AccruedMora:   decimal.Zero,
				OldestDueDate: entry.DueDate,
			}
			byStudent[entry.StudentID] = d
			order = append(order, entry.StudentID)
		}
		d.OverdueEntries++
		d.Outstanding = d.Outstanding.Add(entry.Balance())
		d.AccruedMora = d.AccruedMora.Add(entry.AccruedMora)
		if entry.DueDate.Before(d.OldestDueDate) {
			d.OldestDueDate = entry.DueDate
		}
	}

	debtors := make([]Debtor, 0, len(order))
	for _, id := range order {
		debtors = append(debtors, *byStudent[id])
	}
	sort.SliceStable(debtors, func(i, j int) bool {
		if c := debtors[i].Outstanding.Cmp(debtors[j].Outstanding); c != 0 {
			return c > 0
		}
		return debtors[i].StudentName < debtors[j].StudentName
	})
	return debtors, nil
}

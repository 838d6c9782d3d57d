package finance_test

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core/finance"
	testutil "github.com/Jackson-sch/sistema-escolar-pro-sub001/tests"
)

func TestService_ApplyMoraAsOf(t *testing.T) {
	f := setup(t)
	asOf := core.DateOf(2024, 3, 20)

	overdue := testutil.CreateEntry(t, f.repo, f.std, f.concept, "350", "0", core.DateOf(2024, 3, 10))
	partial := testutil.CreateEntry(t, f.repo, f.otherStd, f.concept, "350", "100", core.DateOf(2024, 3, 18))
	notYetDue := testutil.CreateEntry(t, f.repo, f.std, f.concept, "350", "0", core.DateOf(2024, 4, 10))
	paid := testutil.CreateEntry(t, f.repo, f.std, f.concept, "350", "350", core.DateOf(2024, 3, 1))
	time.Sleep(time.Millisecond)

	result, err := f.svc.ApplyMoraAsOf(f.ctx, f.inst.ID, finance.BulkFilter{}, asOf)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Matched)
	assert.Equal(t, 2, result.Updated)
	assert.True(t, result.AsOf.Equal(asOf))
	assert.True(t, f.entry(t, overdue.ID).UpdatedAt.After(overdue.UpdatedAt), "updated_at moves with the mora")
	assert.True(t, f.entry(t, paid.ID).UpdatedAt.Equal(paid.UpdatedAt), "paid entries are untouched")

	assertDecimal(t, "overdue mora", f.entry(t, overdue.ID).AccruedMora, "15.00")
	assertDecimal(t, "partial mora", f.entry(t, partial.ID).AccruedMora, "3.00")
	assertDecimal(t, "not yet due mora", f.entry(t, notYetDue.ID).AccruedMora, "0")
	assertDecimal(t, "paid mora", f.entry(t, paid.ID).AccruedMora, "0")

	// same day, same result
	result, err = f.svc.ApplyMoraAsOf(f.ctx, f.inst.ID, finance.BulkFilter{}, asOf)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Matched)
	assert.Equal(t, 0, result.Updated)
	assertDecimal(t, "overdue mora", f.entry(t, overdue.ID).AccruedMora, "15.00")

	// a later run overwrites, it does not add up
	_, err = f.svc.ApplyMoraAsOf(f.ctx, f.inst.ID, finance.BulkFilter{}, asOf.AddDays(2))
	require.NoError(t, err)
	assertDecimal(t, "overdue mora", f.entry(t, overdue.ID).AccruedMora, "18.00")
}

func TestService_ApplyMoraAsOf_filters(t *testing.T) {
	f := setup(t)
	asOf := core.DateOf(2024, 3, 20)
	other := testutil.CreateConcept(t, f.repo, f.inst.ID, "Matrícula", "500", "2")

	inSection := testutil.CreateEntry(t, f.repo, f.std, f.concept, "350", "0", core.DateOf(2024, 3, 10))
	otherSection := testutil.CreateEntry(t, f.repo, f.otherStd, f.concept, "350", "0", core.DateOf(2024, 3, 10))
	otherConcept := testutil.CreateEntry(t, f.repo, f.std, other, "500", "0", core.DateOf(2024, 3, 10))

	result, err := f.svc.ApplyMoraAsOf(f.ctx, f.inst.ID, finance.BulkFilter{ConceptID: f.concept.ID, SectionID: f.sec.ID}, asOf)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Matched)

	assertDecimal(t, "in section", f.entry(t, inSection.ID).AccruedMora, "15.00")
	assertDecimal(t, "other section", f.entry(t, otherSection.ID).AccruedMora, "0")
	assertDecimal(t, "other concept", f.entry(t, otherConcept.ID).AccruedMora, "0")

	t.Run("no match is not an error", func(t *testing.T) {
		empty := testutil.CreateConcept(t, f.repo, f.inst.ID, "Excursión", "80", "1")
		result, err := f.svc.ApplyMoraAsOf(f.ctx, f.inst.ID, finance.BulkFilter{ConceptID: empty.ID}, asOf)
		require.NoError(t, err)
		assert.Equal(t, 0, result.Matched)
		assert.Equal(t, 0, result.Updated)
	})

	t.Run("other institution", func(t *testing.T) {
		inst := testutil.CreateInstitution(t, f.schoolRepo, "Colegio Otro")
		result, err := f.svc.ApplyMoraAsOf(f.ctx, inst.ID, finance.BulkFilter{}, asOf)
		require.NoError(t, err)
		assert.Equal(t, 0, result.Matched)
	})
}

func TestService_ShiftDueDates(t *testing.T) {
	f := setup(t)
	oldDate := core.DateOf(2024, 3, 10)
	newDate := core.DateOf(2024, 3, 31)

	unpaid := testutil.CreateEntry(t, f.repo, f.std, f.concept, "350", "0", oldDate)
	partial := testutil.CreateEntry(t, f.repo, f.std, f.concept, "350", "50", oldDate)
	paid := testutil.CreateEntry(t, f.repo, f.std, f.concept, "350", "350", oldDate)
	otherSection := testutil.CreateEntry(t, f.repo, f.otherStd, f.concept, "350", "0", oldDate)
	time.Sleep(time.Millisecond)

	tests := []struct {
		name    string
		shift   finance.DueDateShift
		wantErr bool
	}{
		{name: "concept required", shift: finance.DueDateShift{DueDate: newDate}, wantErr: true},
		{name: "due date required", shift: finance.DueDateShift{ConceptID: f.concept.ID}, wantErr: true},
		{name: "unknown concept", shift: finance.DueDateShift{ConceptID: "not-an-id", DueDate: newDate}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.ShiftDueDates(f.ctx, f.inst.ID, tt.shift)
			if (err != nil) != tt.wantErr {
				t.Errorf("ShiftDueDates() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	n, err := f.svc.ShiftDueDates(f.ctx, f.inst.ID, finance.DueDateShift{ConceptID: f.concept.ID, SectionID: f.sec.ID, DueDate: newDate})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.True(t, f.entry(t, unpaid.ID).DueDate.Equal(newDate))
	assert.True(t, f.entry(t, unpaid.ID).UpdatedAt.After(unpaid.UpdatedAt), "updated_at moves with the due date")
	assert.True(t, f.entry(t, partial.ID).DueDate.Equal(newDate))
	assert.True(t, f.entry(t, paid.ID).DueDate.Equal(oldDate), "paid entries keep their due date")
	assert.True(t, f.entry(t, otherSection.ID).DueDate.Equal(oldDate), "other sections keep their due date")

	// without a section, the whole concept moves
	n, err = f.svc.ShiftDueDates(f.ctx, f.inst.ID, finance.DueDateShift{ConceptID: f.concept.ID, DueDate: newDate.AddDays(1)})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestService_DeleteUnpaidEntries(t *testing.T) {
	f := setup(t)
	due := core.Today().AddDays(5)

	clean := testutil.CreateEntry(t, f.repo, f.std, f.concept, "350", "0", due)
	withPayment := testutil.CreateEntry(t, f.repo, f.std, f.concept, "350", "0", due)
	withVoucher := testutil.CreateEntry(t, f.repo, f.std, f.concept, "350", "0", due)
	withRejected := testutil.CreateEntry(t, f.repo, f.std, f.concept, "350", "0", due)
	paid := testutil.CreateEntry(t, f.repo, f.std, f.concept, "350", "350", due)

	_, err := f.svc.RegisterPayment(f.ctx, f.inst.ID, finance.NewPayment{
		EntryID: withPayment.ID, Amount: dec("100"), Method: finance.MethodCash,
	}, f.treasurer.ID)
	require.NoError(t, err)

	_, err = f.svc.SubmitVoucher(f.ctx, f.inst.ID, newVoucher(withVoucher.ID, "120", "OP-1"), f.parent)
	require.NoError(t, err)

	rejected, err := f.svc.SubmitVoucher(f.ctx, f.inst.ID, newVoucher(withRejected.ID, "120", "OP-2"), f.parent)
	require.NoError(t, err)
	_, err = f.svc.RejectVoucher(f.ctx, f.inst.ID, rejected.ID, finance.RejectVoucher{Reason: "ilegible"}, f.treasurer.ID)
	require.NoError(t, err)

	_, err = f.svc.DeleteUnpaidEntries(f.ctx, f.inst.ID, finance.BulkDelete{})
	assert.Error(t, err, "concept is required")

	n, err := f.svc.DeleteUnpaidEntries(f.ctx, f.inst.ID, finance.BulkDelete{ConceptID: f.concept.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, id := range []string{clean.ID, withRejected.ID} {
		_, err := f.repo.GetEntry(f.ctx, f.inst.ID, id, false)
		assert.Equal(t, finance.ErrEntryNotFound, errors.Cause(err))
	}
	for _, id := range []string{withPayment.ID, withVoucher.ID, paid.ID} {
		_, err := f.repo.GetEntry(f.ctx, f.inst.ID, id, false)
		assert.NoError(t, err)
	}

	_, err = f.repo.GetVoucher(f.ctx, f.inst.ID, rejected.ID, false)
	assert.Equal(t, finance.ErrVoucherNotFound, errors.Cause(err), "rejected vouchers go with their entry")
}

func TestService_GenerateSchedule(t *testing.T) {
	f := setup(t)
	testutil.CreateStudent(t, f.schoolRepo, f.inst.ID, f.sec.ID, "A002", "Mario", "Rojas", nil)
	march := core.DateOf(2024, 3, 31)

	t.Run("section with formulas", func(t *testing.T) {
		entries, err := f.svc.GenerateSchedule(f.ctx, f.inst.ID, finance.NewSchedule{
			ConceptID: f.concept.ID,
			SectionID: f.sec.ID,
			Amount:    dec("600"),
			Installments: []finance.Installment{
				{DueDate: march, Formula: "amount / installments"},
				{DueDate: march.AddDays(30), Formula: "amount / installments + number * 10"},
			},
		})
		require.NoError(t, err)
		require.Len(t, entries, 4)

		for _, e := range entries {
			assert.NotEmpty(t, e.ID)
			assert.False(t, e.IsPaid)
			assert.Equal(t, f.sec.ID, e.SectionID)
		}
		assertDecimal(t, "first installment", entries[0].AmountDue, "300")
		assertDecimal(t, "second installment", entries[1].AmountDue, "320")
		assert.Equal(t, "Pensión Marzo 1/2", entries[0].Description)
		assert.Equal(t, "Pensión Marzo 2/2", entries[1].Description)
	})

	t.Run("students with the suggested amount", func(t *testing.T) {
		entries, err := f.svc.GenerateSchedule(f.ctx, f.inst.ID, finance.NewSchedule{
			ConceptID:    f.concept.ID,
			StudentIDs:   []string{f.otherStd.ID},
			Installments: []finance.Installment{{DueDate: march}},
		})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assertDecimal(t, "amount due", entries[0].AmountDue, "350")
		assert.Equal(t, "Pensión Marzo", entries[0].Description)
		assert.Equal(t, f.otherStd.ID, entries[0].StudentID)
	})

	tests := []struct {
		name string
		ns   finance.NewSchedule
	}{
		{name: "no target", ns: finance.NewSchedule{ConceptID: f.concept.ID, Installments: []finance.Installment{{DueDate: march}}}},
		{name: "no installments", ns: finance.NewSchedule{ConceptID: f.concept.ID, SectionID: f.sec.ID}},
		{name: "bad formula", ns: finance.NewSchedule{ConceptID: f.concept.ID, SectionID: f.sec.ID, Installments: []finance.Installment{{DueDate: march, Formula: "amount +"}}}},
		{name: "negative formula", ns: finance.NewSchedule{ConceptID: f.concept.ID, SectionID: f.sec.ID, Installments: []finance.Installment{{DueDate: march, Formula: "0 - amount"}}}},
		{name: "unknown concept", ns: finance.NewSchedule{ConceptID: "nope", SectionID: f.sec.ID, Installments: []finance.Installment{{DueDate: march}}}},
		{name: "unknown student", ns: finance.NewSchedule{ConceptID: f.concept.ID, StudentIDs: []string{"nope"}, Installments: []finance.Installment{{DueDate: march}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.GenerateSchedule(f.ctx, f.inst.ID, tt.ns)
			if err == nil {
				t.Fatal("GenerateSchedule() expected an error")
			}
		})
	}

	t.Run("inactive concept", func(t *testing.T) {
		inactive := false
		_, err := f.svc.UpdateConcept(f.ctx, f.inst.ID, f.concept.ID, finance.UpdateConcept{
			NewConcept: finance.NewConcept{Name: f.concept.Name, SuggestedAmount: dec("350"), DailyMoraRate: dec("1.5")},
			IsActive:   &inactive,
		})
		require.NoError(t, err)

		_, err = f.svc.GenerateSchedule(f.ctx, f.inst.ID, finance.NewSchedule{
			ConceptID: f.concept.ID, SectionID: f.sec.ID, Installments: []finance.Installment{{DueDate: march}},
		})
		assert.Equal(t, finance.ErrConceptInactive, errors.Cause(err))
	})
}

func TestService_QueryDebtors(t *testing.T) {
	f := setup(t)
	today := core.Today()

	testutil.CreateEntry(t, f.repo, f.std, f.concept, "350", "0", today.AddDays(-40))
	testutil.CreateEntry(t, f.repo, f.std, f.concept, "350", "100", today.AddDays(-10))
	testutil.CreateEntry(t, f.repo, f.std, f.concept, "350", "0", today.AddDays(10)) // not yet due
	testutil.CreateEntry(t, f.repo, f.otherStd, f.concept, "350", "0", today.AddDays(-5))
	testutil.CreateEntry(t, f.repo, f.otherStd, f.concept, "350", "350", today.AddDays(-50)) // paid

	debtors, err := f.svc.QueryDebtors(f.ctx, f.inst.ID, finance.BulkFilter{})
	require.NoError(t, err)
	require.Len(t, debtors, 2)

	assert.Equal(t, f.std.ID, debtors[0].StudentID)
	assert.Equal(t, 2, debtors[0].OverdueEntries)
	assertDecimal(t, "outstanding", debtors[0].Outstanding, "600")
	assert.True(t, debtors[0].OldestDueDate.Equal(today.AddDays(-40)))

	assert.Equal(t, f.otherStd.ID, debtors[1].StudentID)
	assertDecimal(t, "outstanding", debtors[1].Outstanding, "350")

	debtors, err = f.svc.QueryDebtors(f.ctx, f.inst.ID, finance.BulkFilter{SectionID: f.otherSec.ID})
	require.NoError(t, err)
	require.Len(t, debtors, 1)
	assert.Equal(t, f.otherStd.ID, debtors[0].StudentID)
}

func TestService_QuerySchedule_overdue(t *testing.T) {
	f := setup(t)
	today := core.Today()
	overdue := testutil.CreateEntry(t, f.repo, f.std, f.concept, "350", "0", today.AddDays(-1))
	testutil.CreateEntry(t, f.repo, f.std, f.concept, "350", "0", today)
	testutil.CreateEntry(t, f.repo, f.std, f.concept, "350", "350", today.AddDays(-3))

	entries, err := f.svc.QuerySchedule(f.ctx, f.inst.ID, &finance.EntryFilter{Overdue: true}, nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, overdue.ID, entries[0].ID)
	assert.Equal(t, finance.EntryOverdue, entries[0].Status(today))
}

func TestService_DeleteConcept(t *testing.T) {
	f := setup(t)

	unused := testutil.CreateConcept(t, f.repo, f.inst.ID, "Uniforme", "120", "0")
	deactivated, err := f.svc.DeleteConcept(f.ctx, f.inst.ID, unused.ID)
	require.NoError(t, err)
	assert.False(t, deactivated)
	_, err = f.svc.GetConcept(f.ctx, f.inst.ID, unused.ID)
	assert.Equal(t, finance.ErrConceptNotFound, errors.Cause(err))

	testutil.CreateEntry(t, f.repo, f.std, f.concept, "350", "0", core.Today())
	deactivated, err = f.svc.DeleteConcept(f.ctx, f.inst.ID, f.concept.ID)
	require.NoError(t, err)
	assert.True(t, deactivated)
	concept, err := f.svc.GetConcept(f.ctx, f.inst.ID, f.concept.ID)
	require.NoError(t, err)
	assert.False(t, concept.IsActive)
}

func TestService_CreateConcept(t *testing.T) {
	f := setup(t)

	concept, err := f.svc.CreateConcept(f.ctx, f.inst.ID, finance.NewConcept{
		Name: "  Matrícula 2024 ", SuggestedAmount: dec("500.456"), DailyMoraRate: dec("2"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Matrícula 2024", concept.Name)
	assert.Equal(t, "PEN", concept.Currency)
	assertDecimal(t, "suggested amount", concept.SuggestedAmount, "500.46")
	assert.True(t, concept.IsActive)
	assert.WithinDuration(t, time.Now(), concept.CreatedAt, time.Minute)

	_, err = f.svc.CreateConcept(f.ctx, f.inst.ID, finance.NewConcept{Name: "matrícula 2024"})
	var verr *core.ValidationError
	if assert.True(t, errors.As(err, &verr), "duplicate name is a validation error") {
		assert.Equal(t, "name", verr.Fields[0].Field)
	}
}

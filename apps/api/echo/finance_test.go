package echoapi_test

import (
	"bytes"
	"fmt"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	echoapi "github.com/Jackson-sch/sistema-escolar-pro-sub001/apps/api/echo"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core/finance"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/services/export"
	testutil "github.com/Jackson-sch/sistema-escolar-pro-sub001/tests"
)

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, got.Equal(decimal.RequireFromString(want)), "got %s; want %s", got, want)
}

func Test_financeApi_permissions(t *testing.T) {
	f := setup(t)
	concept := []byte(`{"name": "Matrícula", "suggested_amount": "500"}`)

	tests := []httpTest{
		{name: "auth required", path: "/api/concepts", wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errMissingToken)},
		{name: "parents cannot list", path: "/api/concepts", token: f.parentToken, wantCode: http.StatusForbidden, wantData: marshallObj(t, errForbidden)},
		{name: "admins can list", path: "/api/concepts", token: f.secretaryToken},
		{name: "finance role required", method: http.MethodPost, path: "/api/concepts", body: concept, token: f.secretaryToken, wantCode: http.StatusForbidden},
		{name: "no mora without finance role", method: http.MethodPost, path: "/api/schedule/mora", token: f.secretaryToken, wantCode: http.StatusForbidden},
		{name: "owner", method: http.MethodPost, path: "/api/concepts", body: concept, token: f.ownerToken, wantCode: http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) { tt.run(t) })
	}
}

func Test_financeApi_concepts(t *testing.T) {
	f := setup(t)
	other := testutil.CreateInstitution(t, schoolRepo, "Otro Colegio")
	foreign := testutil.CreateConcept(t, finRepo, other.ID, "Pensión Abril", "400", "2")

	tests := []httpTest{
		{
			name: "name required", method: http.MethodPost, path: "/api/concepts", body: []byte(`{"suggested_amount": "100"}`),
			token: f.treasurerToken, wantCode: http.StatusBadRequest, wantData: []byte(`{"name": "this field is required"}`),
		},
		{
			name: "duplicate name", method: http.MethodPost, path: "/api/concepts", body: []byte(`{"name": " pensión marzo "}`),
			token: f.treasurerToken, wantCode: http.StatusBadRequest, wantData: []byte(`{"name": "a payment concept with this name already exists"}`),
		},
		{
			name: "other institution", path: "/api/concepts/" + foreign.ID, token: f.treasurerToken,
			wantCode: http.StatusNotFound, wantData: marshallObj(t, httpErr{Error: "payment concept not found"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) { tt.run(t) })
	}

	rec := httpTest{
		method: http.MethodPost, path: "/api/concepts", token: f.treasurerToken, wantCode: http.StatusCreated,
		body: []byte(`{"name": "Matrícula 2024", "suggested_amount": 500, "daily_mora_rate": "0.5"}`),
	}.run(t)
	var created finance.Concept
	decode(t, rec, &created)
	assert.Equal(t, f.inst.ID, created.InstitutionID)
	assert.Equal(t, "PEN", created.Currency)
	assertDecimal(t, "500", created.SuggestedAmount)
	assertDecimal(t, "0.5", created.DailyMoraRate)

	t.Run("unused concept is deleted", func(t *testing.T) {
		httpTest{method: http.MethodDelete, path: "/api/concepts/" + created.ID, token: f.treasurerToken, wantCode: http.StatusNoContent}.run(t)
		httpTest{path: "/api/concepts/" + created.ID, token: f.treasurerToken, wantCode: http.StatusNotFound}.run(t)
	})

	t.Run("billed concept is deactivated", func(t *testing.T) {
		testutil.CreateEntry(t, finRepo, f.std, f.concept, "350", "0", core.Today())
		httpTest{
			method: http.MethodDelete, path: "/api/concepts/" + f.concept.ID, token: f.treasurerToken,
			wantData: marshallObj(t, echoapi.DeactivatedResponse{Deactivated: true}),
		}.run(t)

		rec := httpTest{path: "/api/concepts/" + f.concept.ID, token: f.treasurerToken}.run(t)
		var got finance.Concept
		decode(t, rec, &got)
		assert.False(t, got.IsActive)
	})
}

func Test_financeApi_generateSchedule(t *testing.T) {
	f := setup(t)

	httpTest{
		name: "installments required", method: http.MethodPost, path: "/api/schedule", token: f.treasurerToken,
		body:     []byte(fmt.Sprintf(`{"concept_id": %q, "section_id": %q}`, f.concept.ID, f.sec.ID)),
		wantCode: http.StatusBadRequest,
	}.run(t)

	rec := httpTest{
		method: http.MethodPost, path: "/api/schedule", token: f.treasurerToken, wantCode: http.StatusCreated,
		body: []byte(fmt.Sprintf(`{
			"concept_id": %q,
			"section_id": %q,
			"installments": [{"due_date": "2024-03-31"}, {"due_date": "2024-04-30"}]
		}`, f.concept.ID, f.sec.ID)),
	}.run(t)
	var entries []finance.ScheduleEntry
	decode(t, rec, &entries)
	require.Len(t, entries, 4, "2 students x 2 installments")
	for _, e := range entries {
		assertDecimal(t, "350", e.AmountDue)
		assert.False(t, e.IsPaid)
	}

	rec = httpTest{path: "/api/schedule?student_id=" + f.std.ID + "&ordering=due_date", token: f.secretaryToken}.run(t)
	decode(t, rec, &entries)
	require.Len(t, entries, 2)
	assert.Equal(t, "2024-03-31", entries[0].DueDate.String())
	assert.Equal(t, "2024-04-30", entries[1].DueDate.String())
}

func Test_financeApi_registerPayment(t *testing.T) {
	f := setup(t)
	entry := testutil.CreateEntry(t, finRepo, f.std, f.concept, "350", "200", core.Today().AddDays(5))
	pay := func(amount string) []byte {
		return []byte(fmt.Sprintf(`{"entry_id": %q, "amount": %q, "method": "cash"}`, entry.ID, amount))
	}

	tests := []httpTest{
		{
			name: "invalid data", method: http.MethodPost, path: "/api/payments", body: []byte(`{"amount": "0", "method": "bitcoin"}`),
			token: f.treasurerToken, wantCode: http.StatusBadRequest,
		},
		{
			name: "overpayment", method: http.MethodPost, path: "/api/payments", body: pay("150.01"),
			token: f.treasurerToken, wantCode: http.StatusConflict,
			wantData: marshallObj(t, httpErr{Error: "amount exceeds the outstanding balance"}),
		},
		{name: "finance role required", method: http.MethodPost, path: "/api/payments", body: pay("150"), token: f.secretaryToken, wantCode: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) { tt.run(t) })
	}

	rec := httpTest{method: http.MethodPost, path: "/api/payments", body: pay("150"), token: f.treasurerToken, wantCode: http.StatusCreated}.run(t)
	var settlement finance.Settlement
	decode(t, rec, &settlement)
	assertDecimal(t, "350", settlement.Entry.AmountPaid)
	assert.True(t, settlement.Entry.IsPaid)
	assert.Equal(t, f.treasurer.ID, *settlement.Payment.RegisteredBy)
	assert.NotEmpty(t, settlement.Payment.ReceiptNumber)

	httpTest{
		method: http.MethodPost, path: "/api/payments", body: pay("1"), token: f.treasurerToken,
		wantCode: http.StatusConflict, wantData: marshallObj(t, httpErr{Error: "schedule entry is already settled"}),
	}.run(t)

	rec = httpTest{path: "/api/schedule/" + entry.ID, token: f.secretaryToken}.run(t)
	var detail finance.EntryDetail
	decode(t, rec, &detail)
	assert.Equal(t, finance.EntryPaid, detail.Status)
	assert.Len(t, detail.Payments, 1)

	rec = httpTest{path: "/api/payments?format=xlsx", token: f.secretaryToken}.run(t)
	assert.Equal(t, export.ContentType, rec.Header().Get("Content-Type"))
	xlsx, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer xlsx.Close()
	rows, err := xlsx.GetRows("Pagos")
	require.NoError(t, err)
	assert.Len(t, rows, 3, "header, payment, total")
}

func Test_financeApi_bulkOperations(t *testing.T) {
	f := setup(t)
	today := core.Today()
	overdue := testutil.CreateEntry(t, finRepo, f.std, f.concept, "350", "0", today.AddDays(-10))
	upcoming := testutil.CreateEntry(t, finRepo, f.otherStd, f.concept, "350", "0", today.AddDays(10))

	t.Run("mora", func(t *testing.T) {
		rec := httpTest{method: http.MethodPost, path: "/api/schedule/mora", token: f.treasurerToken}.run(t)
		var result finance.MoraResult
		decode(t, rec, &result)
		assert.Equal(t, 1, result.Matched)
		assert.Equal(t, 1, result.Updated)

		rec = httpTest{path: "/api/schedule/" + overdue.ID, token: f.treasurerToken}.run(t)
		var detail finance.EntryDetail
		decode(t, rec, &detail)
		assertDecimal(t, "15", detail.AccruedMora)
		assertDecimal(t, "365", detail.Balance)
		assert.Equal(t, finance.EntryOverdue, detail.Status)

		// idempotent
		rec = httpTest{method: http.MethodPost, path: "/api/schedule/mora", body: []byte(fmt.Sprintf(`{"concept_id": %q}`, f.concept.ID)), token: f.treasurerToken}.run(t)
		decode(t, rec, &result)
		assert.Equal(t, 1, result.Matched)
		assert.Equal(t, 0, result.Updated)
	})

	t.Run("debtors", func(t *testing.T) {
		rec := httpTest{path: "/api/debtors", token: f.secretaryToken}.run(t)
		var debtors []finance.Debtor
		decode(t, rec, &debtors)
		require.Len(t, debtors, 1)
		assert.Equal(t, f.std.ID, debtors[0].StudentID)
		assertDecimal(t, "365", debtors[0].Outstanding)

		rec = httpTest{path: "/api/debtors?format=XLSX", token: f.secretaryToken}.run(t)
		assert.Contains(t, rec.Header().Get("Content-Disposition"), export.Filename("morosos", today))

		httpTest{method: http.MethodPost, path: "/api/debtors/send", body: []byte(`{"email": "nope"}`), token: f.treasurerToken, wantCode: http.StatusBadRequest}.run(t)
		httpTest{method: http.MethodPost, path: "/api/debtors/send", body: []byte(`{"email": "Dir@Test.pe"}`), token: f.treasurerToken, wantCode: http.StatusAccepted}.run(t)
		sent := mailSvc.Sent()
		require.Len(t, sent, 1)
		assert.Equal(t, "dir@test.pe", sent[0].To[0].Address)
		require.Len(t, sent[0].Attachments, 1)
		assert.Equal(t, export.Filename("morosos", today), sent[0].Attachments[0].Filename)
		assert.NotEmpty(t, sent[0].Attachments[0].Content)
	})

	t.Run("due date shift", func(t *testing.T) {
		httpTest{
			method: http.MethodPost, path: "/api/schedule/due-date", body: []byte(`{"due_date": "2030-01-31"}`), token: f.treasurerToken,
			wantCode: http.StatusBadRequest, wantData: []byte(`{"concept_id": "this field is required"}`),
		}.run(t)

		httpTest{
			method: http.MethodPost, path: "/api/schedule/due-date", token: f.treasurerToken,
			body:     []byte(fmt.Sprintf(`{"concept_id": %q, "due_date": "2030-01-31"}`, f.concept.ID)),
			wantData: marshallObj(t, echoapi.BulkResponse{Affected: 2}),
		}.run(t)

		rec := httpTest{path: "/api/schedule/" + upcoming.ID, token: f.treasurerToken}.run(t)
		var detail finance.EntryDetail
		decode(t, rec, &detail)
		assert.Equal(t, "2030-01-31", detail.DueDate.String())
	})

	t.Run("bulk delete", func(t *testing.T) {
		httpTest{method: http.MethodDelete, path: "/api/schedule", token: f.treasurerToken, wantCode: http.StatusBadRequest}.run(t)

		paid := testutil.CreateEntry(t, finRepo, f.std, f.concept, "350", "350", today)
		rec := httpTest{path: "/api/schedule?is_paid=false", token: f.treasurerToken}.run(t)
		var unpaid []finance.ScheduleEntry
		decode(t, rec, &unpaid)
		assert.Len(t, unpaid, 2)
		httpTest{path: "/api/schedule?is_paid=maybe", token: f.treasurerToken, wantCode: http.StatusBadRequest, wantData: []byte(`{"is_paid": "must be true or false"}`)}.run(t)

		httpTest{
			method: http.MethodDelete, path: "/api/schedule?concept_id=" + f.concept.ID, token: f.treasurerToken,
			wantData: marshallObj(t, echoapi.BulkResponse{Affected: 2}),
		}.run(t)
		httpTest{path: "/api/schedule/" + overdue.ID, token: f.treasurerToken, wantCode: http.StatusNotFound}.run(t)
		httpTest{path: "/api/schedule/" + paid.ID, token: f.treasurerToken}.run(t)
	})
}

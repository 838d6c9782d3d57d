package sqlxrepos

import (
	"context"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core/finance"
)

const insertBatchSize = 500

var (
	conceptColumns = []string{
		"id", "institution_id", "name", "description", "suggested_amount", "currency",
		"daily_mora_rate", "is_active", "created_at", "updated_at",
	}
	entryColumns = []string{
		"id", "institution_id", "student_id", "concept_id", "description", "amount_due",
		"amount_paid", "accrued_mora", "due_date", "is_paid", "created_at", "updated_at",
	}
	paymentColumns = []string{
		"id", "institution_id", "entry_id", "voucher_id", "amount", "method", "receipt_number",
		"reference", "notes", "payment_date", "registered_by", "created_at",
	}
	voucherColumns = []string{
		"id", "institution_id", "entry_id", "student_id", "submitted_by", "amount", "bank_origin",
		"operation_number", "operation_date", "attachment_url", "notes", "status", "rejection_reason",
		"reviewed_by", "reviewed_at", "created_at", "updated_at",
	}

	conceptOrderings = map[string]string{
		"name":             "name",
		"suggested_amount": "suggested_amount",
		"created_at":       "created_at",
	}
	entryOrderings = map[string]string{
		"due_date":     "e.due_date",
		"amount_due":   "e.amount_due",
		"student_name": "student_name",
		"created_at":   "e.created_at",
	}
	voucherOrderings = map[string]string{
		"created_at":     "created_at",
		"operation_date": "operation_date",
		"amount":         "amount",
		"id":             "id",
	}
)

func prefixed(prefix string, columns []string) []string {
	cols := make([]string, 0, len(columns))
	for _, col := range columns {
		cols = append(cols, prefix+"."+col)
	}
	return cols
}

// entrySelect selects schedule entries (aliased "e") joined with their student & concept.
func entrySelect() sq.SelectBuilder {
	cols := append(prefixed("e", entryColumns),
		"(s.last_name || ', ' || s.first_name) AS student_name",
		"s.section_id",
		"c.name AS concept_name",
	)
	return psql.Select(cols...).
		From("schedule_entries e").
		Join("students s ON s.id = e.student_id").
		Join("payment_concepts c ON c.id = e.concept_id")
}

type financeRepository struct {
	conn
}

var _ finance.Repository = (*financeRepository)(nil)

func NewFinanceRepository(db core.DB) *financeRepository {
	return &financeRepository{newConn(db)}
}

func (repo *financeRepository) Atomic(ctx context.Context, fn func(repo finance.Repository) error) error {
	return repo.atomic(ctx, func(tx conn) error {
		return fn(&financeRepository{tx})
	})
}

// Concepts

func (repo *financeRepository) conceptErr(err error, msg string) error {
	if uniqueViolation(err) == "payment_concepts_institution_id_name_key" {
		return finance.ErrConceptExists
	}
	return errors.Wrap(err, msg)
}

func (repo *financeRepository) CreateConcept(ctx context.Context, concept finance.Concept) (finance.Concept, error) {
	concept.ID = newID()
	_, err := repo.run(ctx, psql.Insert("payment_concepts").Columns(conceptColumns...).Values(
		concept.ID, concept.InstitutionID, concept.Name, concept.Description, concept.SuggestedAmount,
		concept.Currency, concept.DailyMoraRate, concept.IsActive, concept.CreatedAt, concept.UpdatedAt,
	))
	if err != nil {
		return finance.Concept{}, repo.conceptErr(err, "inserting concept")
	}
	return concept, nil
}

func (repo *financeRepository) GetConcept(ctx context.Context, institutionID, id string) (finance.Concept, error) {
	if !validUUID(id) {
		return finance.Concept{}, finance.ErrConceptNotFound
	}
	var concept finance.Concept
	err := repo.get(ctx, &concept, psql.Select(conceptColumns...).From("payment_concepts").
		Where(sq.Eq{"id": id, "institution_id": institutionID}))
	if err != nil {
		return finance.Concept{}, trapNoRowsErr(err, finance.ErrConceptNotFound, "getting concept")
	}
	return concept, nil
}

func (repo *financeRepository) QueryConcepts(ctx context.Context, institutionID string, filter *finance.ConceptFilter, ordering []core.DBOrdering) ([]finance.Concept, error) {
	query := psql.Select(conceptColumns...).From("payment_concepts").Where(sq.Eq{"institution_id": institutionID})
	if filter != nil {
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			query = query.Where(sq.Or{sq.ILike{"name": val}, sq.ILike{"description": val}})
		}
		if filter.IsActive != nil {
			query = query.Where(sq.Eq{"is_active": *filter.IsActive})
		}
	}
	query = orderBy(query, ordering, conceptOrderings, "name ASC")

	concepts := make([]finance.Concept, 0)
	if err := repo.selekt(ctx, &concepts, query); err != nil {
		return nil, errors.Wrap(err, "querying concepts")
	}
	return concepts, nil
}

func (repo *financeRepository) UpdateConcept(ctx context.Context, concept finance.Concept) (finance.Concept, error) {
	n, err := repo.run(ctx, psql.Update("payment_concepts").SetMap(map[string]interface{}{
		"name":             concept.Name,
		"description":      concept.Description,
		"suggested_amount": concept.SuggestedAmount,
		"currency":         concept.Currency,
		"daily_mora_rate":  concept.DailyMoraRate,
		"is_active":        concept.IsActive,
		"updated_at":       concept.UpdatedAt,
	}).Where(sq.Eq{"id": concept.ID, "institution_id": concept.InstitutionID}))
	if err != nil {
		return finance.Concept{}, repo.conceptErr(err, "updating concept")
	}
	if n == 0 {
		return finance.Concept{}, finance.ErrConceptNotFound
	}
	return concept, nil
}

func (repo *financeRepository) DeleteConcept(ctx context.Context, institutionID, id string) error {
	if !validUUID(id) {
		return finance.ErrConceptNotFound
	}
	n, err := repo.run(ctx, psql.Delete("payment_concepts").Where(sq.Eq{"id": id, "institution_id": institutionID}))
	if err != nil {
		return errors.Wrap(err, "deleting concept")
	}
	if n == 0 {
		return finance.ErrConceptNotFound
	}
	return nil
}

func (repo *financeRepository) ConceptInUse(ctx context.Context, institutionID, id string) (bool, error) {
	var inUse bool
	err := repo.get(ctx, &inUse, psql.Select().Column(sq.Expr(
		"EXISTS (SELECT 1 FROM schedule_entries WHERE institution_id = ? AND concept_id = ?)", institutionID, id,
	)))
	if err != nil {
		return false, errors.Wrap(err, "checking concept usage")
	}
	return inUse, nil
}

// Schedule entries

func (repo *financeRepository) CreateEntries(ctx context.Context, entries []finance.ScheduleEntry) ([]finance.ScheduleEntry, error) {
	created := make([]finance.ScheduleEntry, 0, len(entries))
	for start := 0; start < len(entries); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(entries) {
			end = len(entries)
		}

		query := psql.Insert("schedule_entries").Columns(entryColumns...)
		for _, e := range entries[start:end] {
			e.ID = newID()
			query = query.Values(
				e.ID, e.InstitutionID, e.StudentID, e.ConceptID, e.Description, e.AmountDue,
				e.AmountPaid, e.AccruedMora, e.DueDate, e.IsPaid, e.CreatedAt, e.UpdatedAt,
			)
			created = append(created, e)
		}
		if _, err := repo.run(ctx, query); err != nil {
			return nil, errors.Wrap(err, "inserting schedule entries")
		}
	}
	return created, nil
}

func (repo *financeRepository) GetEntry(ctx context.Context, institutionID, id string, lock bool) (finance.ScheduleEntry, error) {
	if !validUUID(id) {
		return finance.ScheduleEntry{}, finance.ErrEntryNotFound
	}
	query := entrySelect().Where(sq.Eq{"e.id": id, "e.institution_id": institutionID})
	if lock {
		query = query.Suffix("FOR UPDATE OF e")
	}

	var entry finance.ScheduleEntry
	if err := repo.get(ctx, &entry, query); err != nil {
		return finance.ScheduleEntry{}, trapNoRowsErr(err, finance.ErrEntryNotFound, "getting schedule entry")
	}
	return entry, nil
}

// bulkWhere is the condition of the bulk operations on entries (unaliased table).
func bulkWhere(institutionID string, filter finance.BulkFilter) sq.And {
	cond := sq.And{sq.Eq{"institution_id": institutionID, "is_paid": false}}
	if filter.ConceptID != "" {
		cond = append(cond, sq.Eq{"concept_id": filter.ConceptID})
	}
	if filter.SectionID != "" {
		cond = append(cond, sq.Expr("student_id IN (SELECT id FROM students WHERE section_id = ?)", filter.SectionID))
	}
	return cond
}

func validBulkFilter(filter finance.BulkFilter) bool {
	return (filter.ConceptID == "" || validUUID(filter.ConceptID)) && (filter.SectionID == "" || validUUID(filter.SectionID))
}

func (repo *financeRepository) QueryEntries(ctx context.Context, institutionID string, filter *finance.EntryFilter, ordering []core.DBOrdering) ([]finance.ScheduleEntry, error) {
	entries := make([]finance.ScheduleEntry, 0)
	query := entrySelect().Where(sq.Eq{"e.institution_id": institutionID})

	if filter != nil {
		for col, id := range map[string]string{"e.student_id": filter.StudentID, "e.concept_id": filter.ConceptID, "s.section_id": filter.SectionID} {
			if id == "" {
				continue
			}
			if !validUUID(id) {
				return entries, nil
			}
			query = query.Where(sq.Eq{col: id})
		}
		if filter.StudentIDs != nil {
			if len(filter.StudentIDs) == 0 {
				return entries, nil
			}
			query = query.Where(sq.Eq{"e.student_id": filter.StudentIDs})
		}
		if filter.IsPaid != nil {
			query = query.Where(sq.Eq{"e.is_paid": *filter.IsPaid})
		}
		if !filter.DueFrom.IsZero() {
			query = query.Where(sq.GtOrEq{"e.due_date": filter.DueFrom})
		}
		if !filter.DueTo.IsZero() {
			query = query.Where(sq.LtOrEq{"e.due_date": filter.DueTo})
		}
		if !filter.DueBefore.IsZero() {
			query = query.Where(sq.Lt{"e.due_date": filter.DueBefore})
		}
	}
	query = orderBy(query, ordering, entryOrderings, "e.due_date ASC", "student_name ASC", "e.description ASC")

	if err := repo.selekt(ctx, &entries, query); err != nil {
		return nil, errors.Wrap(err, "querying schedule entries")
	}
	return entries, nil
}

func (repo *financeRepository) UpdateEntryPayment(ctx context.Context, entry finance.ScheduleEntry) error {
	n, err := repo.run(ctx, psql.Update("schedule_entries").
		Set("amount_paid", entry.AmountPaid).
		Set("is_paid", entry.IsPaid).
		Set("updated_at", entry.UpdatedAt).
		Where(sq.Eq{"id": entry.ID, "institution_id": entry.InstitutionID}))
	if err != nil {
		return errors.Wrap(err, "updating schedule entry")
	}
	if n == 0 {
		return finance.ErrEntryNotFound
	}
	return nil
}

func (repo *financeRepository) SetEntriesMora(ctx context.Context, institutionID string, mora map[string]decimal.Decimal) error {
	// fixed lock order
	ids := make([]string, 0, len(mora))
	for id := range mora {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	now := time.Now().UTC()
	for _, id := range ids {
		amount := mora[id]
		_, err := repo.run(ctx, psql.Update("schedule_entries").
			Set("accrued_mora", amount).
			Set("updated_at", now).
			Where(sq.Eq{"id": id, "institution_id": institutionID, "is_paid": false}))
		if err != nil {
			return errors.Wrap(err, "setting entry mora")
		}
	}
	return nil
}

func (repo *financeRepository) ShiftDueDates(ctx context.Context, institutionID string, filter finance.BulkFilter, dueDate core.Date) (int, error) {
	if !validBulkFilter(filter) {
		return 0, nil
	}
	n, err := repo.run(ctx, psql.Update("schedule_entries").
		Set("due_date", dueDate).
		Set("updated_at", time.Now().UTC()).
		Where(bulkWhere(institutionID, filter)))
	if err != nil {
		return 0, errors.Wrap(err, "shifting due dates")
	}
	return n, nil
}

func (repo *financeRepository) DeleteUnpaidEntries(ctx context.Context, institutionID string, filter finance.BulkFilter) (int, error) {
	if !validBulkFilter(filter) {
		return 0, nil
	}
	// rejected vouchers go with the entry (ON DELETE CASCADE)
	n, err := repo.run(ctx, psql.Delete("schedule_entries").
		Where(bulkWhere(institutionID, filter)).
		Where("NOT EXISTS (SELECT 1 FROM payment_records p WHERE p.entry_id = schedule_entries.id)").
		Where("NOT EXISTS (SELECT 1 FROM payment_vouchers v WHERE v.entry_id = schedule_entries.id AND v.status <> 'rejected')"))
	if err != nil {
		return 0, errors.Wrap(err, "deleting schedule entries")
	}
	return n, nil
}

// Payments

func (repo *financeRepository) CreatePayment(ctx context.Context, payment finance.PaymentRecord) (finance.PaymentRecord, error) {
	payment.ID = newID()
	_, err := repo.run(ctx, psql.Insert("payment_records").Columns(paymentColumns...).Values(
		payment.ID, payment.InstitutionID, payment.EntryID, payment.VoucherID, payment.Amount, payment.Method,
		payment.ReceiptNumber, payment.Reference, payment.Notes, payment.PaymentDate, payment.RegisteredBy, payment.CreatedAt,
	))
	if err != nil {
		switch uniqueViolation(err) {
		case "payment_records_institution_id_receipt_number_key":
			return finance.PaymentRecord{}, finance.ErrReceiptExists
		case "payment_records_voucher_id_key":
			return finance.PaymentRecord{}, finance.ErrVoucherResolved
		}
		return finance.PaymentRecord{}, errors.Wrap(err, "inserting payment")
	}
	return payment, nil
}

func (repo *financeRepository) QueryPayments(ctx context.Context, institutionID string, filter *finance.PaymentFilter) ([]finance.PaymentRecord, error) {
	payments := make([]finance.PaymentRecord, 0)
	query := psql.Select(paymentColumns...).From("payment_records").Where(sq.Eq{"institution_id": institutionID})

	if filter != nil {
		if filter.EntryID != "" {
			if !validUUID(filter.EntryID) {
				return payments, nil
			}
			query = query.Where(sq.Eq{"entry_id": filter.EntryID})
		}
		if filter.StudentID != "" {
			if !validUUID(filter.StudentID) {
				return payments, nil
			}
			query = query.Where("entry_id IN (SELECT id FROM schedule_entries WHERE student_id = ?)", filter.StudentID)
		}
		if filter.Method != "" {
			query = query.Where(sq.Eq{"method": filter.Method})
		}
		if !filter.DateFrom.IsZero() {
			query = query.Where(sq.GtOrEq{"payment_date": filter.DateFrom})
		}
		if !filter.DateTo.IsZero() {
			query = query.Where(sq.LtOrEq{"payment_date": filter.DateTo})
		}
	}

	if err := repo.selekt(ctx, &payments, query.OrderBy("created_at ASC")); err != nil {
		return nil, errors.Wrap(err, "querying payments")
	}
	return payments, nil
}

func (repo *financeRepository) GetPaymentByVoucher(ctx context.Context, institutionID, voucherID string) (finance.PaymentRecord, error) {
	if !validUUID(voucherID) {
		return finance.PaymentRecord{}, finance.ErrPaymentNotFound
	}
	var payment finance.PaymentRecord
	err := repo.get(ctx, &payment, psql.Select(paymentColumns...).From("payment_records").
		Where(sq.Eq{"voucher_id": voucherID, "institution_id": institutionID}))
	if err != nil {
		return finance.PaymentRecord{}, trapNoRowsErr(err, finance.ErrPaymentNotFound, "getting voucher payment")
	}
	return payment, nil
}

// Vouchers

func (repo *financeRepository) CreateVoucher(ctx context.Context, voucher finance.Voucher) (finance.Voucher, error) {
	voucher.ID = newID()
	_, err := repo.run(ctx, psql.Insert("payment_vouchers").Columns(voucherColumns...).Values(
		voucher.ID, voucher.InstitutionID, voucher.EntryID, voucher.StudentID, voucher.SubmittedBy, voucher.Amount,
		voucher.BankOrigin, voucher.OperationNumber, voucher.OperationDate, voucher.AttachmentURL, voucher.Notes,
		voucher.Status, voucher.RejectionReason, voucher.ReviewedBy, voucher.ReviewedAt, voucher.CreatedAt, voucher.UpdatedAt,
	))
	if err != nil {
		if uniqueViolation(err) == "payment_vouchers_operation_idx" {
			return finance.Voucher{}, finance.ErrDuplicateOperation
		}
		return finance.Voucher{}, errors.Wrap(err, "inserting voucher")
	}
	return voucher, nil
}

func (repo *financeRepository) GetVoucher(ctx context.Context, institutionID, id string, lock bool) (finance.Voucher, error) {
	if !validUUID(id) {
		return finance.Voucher{}, finance.ErrVoucherNotFound
	}
	query := psql.Select(voucherColumns...).From("payment_vouchers").Where(sq.Eq{"id": id, "institution_id": institutionID})
	if lock {
		query = query.Suffix("FOR UPDATE")
	}

	var voucher finance.Voucher
	if err := repo.get(ctx, &voucher, query); err != nil {
		return finance.Voucher{}, trapNoRowsErr(err, finance.ErrVoucherNotFound, "getting voucher")
	}
	return voucher, nil
}

func (repo *financeRepository) QueryVouchers(ctx context.Context, institutionID string, filter *finance.VoucherFilter, ordering []core.DBOrdering) ([]finance.Voucher, error) {
	vouchers := make([]finance.Voucher, 0)
	query := psql.Select(voucherColumns...).From("payment_vouchers").Where(sq.Eq{"institution_id": institutionID})

	if filter != nil {
		if filter.Status != "" {
			query = query.Where(sq.Eq{"status": filter.Status})
		}
		for col, id := range map[string]string{"student_id": filter.StudentID, "entry_id": filter.EntryID, "submitted_by": filter.SubmittedBy} {
			if id == "" {
				continue
			}
			if !validUUID(id) {
				return vouchers, nil
			}
			query = query.Where(sq.Eq{col: id})
		}
	}
	query = orderBy(query, ordering, voucherOrderings, "created_at ASC", "id ASC")

	if err := repo.selekt(ctx, &vouchers, query); err != nil {
		return nil, errors.Wrap(err, "querying vouchers")
	}
	return vouchers, nil
}

func (repo *financeRepository) UpdateVoucher(ctx context.Context, voucher finance.Voucher) (finance.Voucher, error) {
	n, err := repo.run(ctx, psql.Update("payment_vouchers").SetMap(map[string]interface{}{
		"status":           voucher.Status,
		"rejection_reason": voucher.RejectionReason,
		"reviewed_by":      voucher.ReviewedBy,
		"reviewed_at":      voucher.ReviewedAt,
		"updated_at":       voucher.UpdatedAt,
	}).Where(sq.Eq{"id": voucher.ID, "institution_id": voucher.InstitutionID}))
	if err != nil {
		if uniqueViolation(err) == "payment_vouchers_operation_idx" {
			return finance.Voucher{}, finance.ErrDuplicateOperation
		}
		return finance.Voucher{}, errors.Wrap(err, "updating voucher")
	}
	if n == 0 {
		return finance.Voucher{}, finance.ErrVoucherNotFound
	}
	return voucher, nil
}

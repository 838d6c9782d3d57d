package finance

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core/school"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core/user"
)

// SubmitVoucher registers a proof of bank transfer against a schedule entry. The voucher starts PENDING.
// Parents may only submit for the students they are guardian of.
func (svc *Service) SubmitVoucher(ctx context.Context, institutionID string, nv NewVoucher, submitter user.User) (Voucher, error) {
	nv.Clean()
	if err := svc.validate.Struct(nv); err != nil {
		return Voucher{}, err
	}

	entry, err := svc.repo.GetEntry(ctx, institutionID, nv.EntryID, false)
	if err != nil {
		if errors.Cause(err) == ErrEntryNotFound {
			return Voucher{}, core.NewValidationError(err, core.FieldError{Field: "entry_id", Error: err.Error()})
		}
		return Voucher{}, err
	}
	if !submitter.IsAdmin() {
		std, err := svc.students.GetStudent(ctx, institutionID, entry.StudentID)
		if err != nil {
			return Voucher{}, errors.Wrap(err, "getting entry student")
		}
		// parents never learn about other students' entries
		if !std.HasGuardian(submitter.ID) {
			return Voucher{}, core.NewValidationError(ErrEntryNotFound, core.FieldError{Field: "entry_id", Error: ErrEntryNotFound.Error()})
		}
	}
	if !entry.Balance().IsPositive() {
		return Voucher{}, ErrEntrySettled
	}
	amount := nv.Amount.Round(2)
	if !amount.IsPositive() {
		return Voucher{}, core.NewValidationError(ErrAmountTooSmall, core.FieldError{Field: "amount", Error: ErrAmountTooSmall.Error()})
	}
	if amount.GreaterThan(entry.Balance()) {
		return Voucher{}, core.NewValidationError(ErrOverpayment, core.FieldError{Field: "amount", Error: ErrOverpayment.Error()})
	}

	now := time.Now().UTC()
	voucher, err := svc.repo.CreateVoucher(ctx, Voucher{
		InstitutionID:   institutionID,
		EntryID:         entry.ID,
		StudentID:       entry.StudentID,
		SubmittedBy:     submitter.ID,
		Amount:          amount,
		BankOrigin:      nv.BankOrigin,
		OperationNumber: nv.OperationNumber,
		OperationDate:   nv.OperationDate,
		AttachmentURL:   nv.AttachmentURL,
		Notes:           nv.Notes,
		Status:          VoucherPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		if errors.Cause(err) == ErrDuplicateOperation {
			return Voucher{}, core.NewValidationError(err, core.FieldError{Field: "operation_number", Error: err.Error()})
		}
		return Voucher{}, err
	}
	return voucher, nil
}

// ApproveVoucher settles the voucher's entry with the voucher amount and marks the voucher APPROVED, in a single transaction.
// Approving an approved voucher returns the payment registered the first time, with Unchanged set.
func (svc *Service) ApproveVoucher(ctx context.Context, institutionID, id, reviewerID string) (VoucherDecision, error) {
	var decision VoucherDecision
	var entry ScheduleEntry

	err := svc.repo.Atomic(ctx, func(repo Repository) error {
		voucher, err := repo.GetVoucher(ctx, institutionID, id, true)
		if err != nil {
			return err
		}

		switch voucher.Status {
		case VoucherApproved:
			payment, err := repo.GetPaymentByVoucher(ctx, institutionID, voucher.ID)
			if err != nil {
				return errors.Wrap(err, "getting voucher payment")
			}
			decision = VoucherDecision{Voucher: voucher, Payment: &payment, Unchanged: true}
			return nil
		case VoucherRejected:
			return ErrVoucherResolved
		}

		settlement, err := svc.settle(ctx, repo, institutionID, NewPayment{
			EntryID:     voucher.EntryID,
			Amount:      voucher.Amount,
			Method:      MethodTransfer,
			Reference:   fmt.Sprintf("%s %s", voucher.BankOrigin, voucher.OperationNumber),
			Notes:       voucher.Notes,
			PaymentDate: voucher.OperationDate,
		}, &voucher.ID, reviewerID)
		if err != nil {
			return err
		}

		voucher.Status = VoucherApproved
		voucher.review(reviewerID, time.Now().UTC())
		if voucher, err = repo.UpdateVoucher(ctx, voucher); err != nil {
			return errors.Wrap(err, "updating voucher")
		}
		decision = VoucherDecision{Voucher: voucher, Payment: &settlement.Payment}
		entry = settlement.Entry
		return nil
	})
	if err != nil {
		return VoucherDecision{}, err
	}

	if !decision.Unchanged {
		svc.logger.Info(fmt.Sprintf("voucher %s approved by %s", decision.Voucher.ID, reviewerID))
		svc.notifyVoucher(ctx, decision, entry)
	}
	return decision, nil
}

// RejectVoucher marks a pending voucher REJECTED with the given reason. No payment is registered.
// Rejecting a rejected voucher is a no-op.
func (svc *Service) RejectVoucher(ctx context.Context, institutionID, id string, rv RejectVoucher, reviewerID string) (VoucherDecision, error) {
	rv.Reason = core.CleanString(rv.Reason)
	if err := svc.validate.Struct(rv); err != nil {
		return VoucherDecision{}, err
	}

	var decision VoucherDecision
	err := svc.repo.Atomic(ctx, func(repo Repository) error {
		voucher, err := repo.GetVoucher(ctx, institutionID, id, true)
		if err != nil {
			return err
		}

		switch voucher.Status {
		case VoucherRejected:
			decision = VoucherDecision{Voucher: voucher, Unchanged: true}
			return nil
		case VoucherApproved:
			return ErrVoucherResolved
		}

		voucher.Status = VoucherRejected
		voucher.RejectionReason = rv.Reason
		voucher.review(reviewerID, time.Now().UTC())
		if voucher, err = repo.UpdateVoucher(ctx, voucher); err != nil {
			return errors.Wrap(err, "updating voucher")
		}
		decision = VoucherDecision{Voucher: voucher}
		return nil
	})
	if err != nil {
		return VoucherDecision{}, err
	}

	if !decision.Unchanged {
		svc.logger.Info(fmt.Sprintf("voucher %s rejected by %s", decision.Voucher.ID, reviewerID))
		svc.notifyVoucher(ctx, decision, ScheduleEntry{})
	}
	return decision, nil
}

func (v *Voucher) review(reviewerID string, now time.Time) {
	if reviewerID != "" {
		v.ReviewedBy = &reviewerID
	}
	v.ReviewedAt = &now
	v.UpdatedAt = now
}

func (svc *Service) GetVoucher(ctx context.Context, institutionID, id string) (Voucher, error) {
	return svc.repo.GetVoucher(ctx, institutionID, id, false)
}

func (svc *Service) QueryVouchers(ctx context.Context, institutionID string, filter *VoucherFilter, ordering []core.DBOrdering) ([]Voucher, error) {
	return svc.repo.QueryVouchers(ctx, institutionID, filter, ordering)
}

// AdjacentPendingVoucher returns the pending voucher submitted right after (next) or right before (!next) the given one.
// It returns ErrVoucherNotFound at either end of the review queue.
func (svc *Service) AdjacentPendingVoucher(ctx context.Context, institutionID, id string, next bool) (Voucher, error) {
	current, err := svc.repo.GetVoucher(ctx, institutionID, id, false)
	if err != nil {
		return Voucher{}, err
	}
	pending, err := svc.repo.QueryVouchers(ctx, institutionID, &VoucherFilter{Status: VoucherPending}, []core.DBOrdering{
		{Field: "created_at", Ascending: true},
		{Field: "id", Ascending: true},
	})
	if err != nil {
		return Voucher{}, errors.Wrap(err, "querying pending vouchers")
	}

	before := func(a, b Voucher) bool {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID < b.ID
		}
		return a.CreatedAt.Before(b.CreatedAt)
	}

	if next {
		for _, v := range pending {
			if before(current, v) {
				return v, nil
			}
		}
	} else {
		for i := len(pending) - 1; i >= 0; i-- {
			if before(pending[i], current) {
				return pending[i], nil
			}
		}
	}
	return Voucher{}, ErrVoucherNotFound
}

type voucherMailData struct {
	OperationNumber string
	BankOrigin      string
	Amount          string
	Currency        string
	StudentName     string
	ReceiptNumber   string
	Description     string
	Balance         string
	Reason          string
}

// notifyVoucher emails the submitter (or else the student's guardian) about a voucher decision.
// Failures are logged, the decision stands.
func (svc *Service) notifyVoucher(ctx context.Context, decision VoucherDecision, entry ScheduleEntry) {
	voucher := decision.Voucher
	if entry.ID == "" {
		var err error
		if entry, err = svc.repo.GetEntry(ctx, voucher.InstitutionID, voucher.EntryID, false); err != nil {
			svc.logger.Error(fmt.Sprintf("voucher %s notification: getting entry: %v", voucher.ID, err), err)
			return
		}
	}
	std, err := svc.students.GetStudent(ctx, voucher.InstitutionID, voucher.StudentID)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("voucher %s notification: getting student: %v", voucher.ID, err), err)
		return
	}

	var to mail.Address
	if usr, err := svc.users.GetByID(ctx, voucher.SubmittedBy); err == nil && usr.Email != "" {
		to = mail.Address{Name: usr.Name, Address: usr.Email}
	} else if std.GuardianEmail != "" {
		to = mail.Address{Name: std.GuardianName, Address: std.GuardianEmail}
	} else {
		svc.logger.Warn(fmt.Sprintf("voucher %s notification: no recipient", voucher.ID))
		return
	}

	data := voucherMailData{
		OperationNumber: voucher.OperationNumber,
		BankOrigin:      voucher.BankOrigin,
		Amount:          voucher.Amount.StringFixed(2),
		Currency:        svc.entryCurrency(ctx, voucher.InstitutionID, entry),
		StudentName:     std.FullName(),
		Reason:          voucher.RejectionReason,
	}
	msg := &core.EmailMessage{To: []mail.Address{to}, TemplateData: data}

	if voucher.Status == VoucherApproved {
		msg.Subject = "Comprobante de pago aprobado"
		msg.TemplateName = "voucher_approved"
		data.Description = entry.Description
		data.Balance = decimal.Max(entry.Balance(), decimal.Zero).StringFixed(2)
		if decision.Payment != nil {
			data.ReceiptNumber = decision.Payment.ReceiptNumber
		}
		msg.TemplateData = data
	} else {
		msg.Subject = "Comprobante de pago rechazado"
		msg.TemplateName = "voucher_rejected"
	}
	svc.mailSvc.SendMessages(msg)
}

func (svc *Service) entryCurrency(ctx context.Context, institutionID string, entry ScheduleEntry) string {
	concept, err := svc.repo.GetConcept(ctx, institutionID, entry.ConceptID)
	if err != nil {
		return svc.defaultCurrency
	}
	return concept.Currency
}

// StudentsOf lists the students a parent is guardian of.
func (svc *Service) StudentsOf(ctx context.Context, institutionID, guardianID string) ([]school.Student, error) {
	return svc.students.QueryStudents(ctx, institutionID, &school.StudentFilter{GuardianID: guardianID})
}

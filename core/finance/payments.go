package finance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core"
)

// RegisterPayment records a payment against a schedule entry and updates its paid amount, in a single transaction.
// The entry is marked paid once the accumulated amount reaches the amount due.
func (svc *Service) RegisterPayment(ctx context.Context, institutionID string, np NewPayment, registeredBy string) (Settlement, error) {
	np.Clean()
	if err := svc.validate.Struct(np); err != nil {
		return Settlement{}, err
	}

	var settlement Settlement
	err := svc.repo.Atomic(ctx, func(repo Repository) (err error) {
		settlement, err = svc.settle(ctx, repo, institutionID, np, nil, registeredBy)
		return err
	})
	if err != nil {
		if errors.Cause(err) == ErrEntryNotFound {
			return Settlement{}, core.NewValidationError(err, core.FieldError{Field: "entry_id", Error: err.Error()})
		}
		if errors.Cause(err) == ErrReceiptExists {
			return Settlement{}, core.NewValidationError(err, core.FieldError{Field: "receipt_number", Error: err.Error()})
		}
		return Settlement{}, err
	}

	svc.logger.Info(fmt.Sprintf("payment %s registered on entry %s", settlement.Payment.ID, settlement.Entry.ID))
	return settlement, nil
}

// settle must run inside repo.Atomic.
func (svc *Service) settle(ctx context.Context, repo Repository, institutionID string, np NewPayment, voucherID *string, registeredBy string) (Settlement, error) {
	entry, err := repo.GetEntry(ctx, institutionID, np.EntryID, true)
	if err != nil {
		return Settlement{}, err
	}
	if !entry.Balance().IsPositive() {
		return Settlement{}, ErrEntrySettled
	}
	amount := np.Amount.Round(2)
	if !amount.IsPositive() {
		return Settlement{}, core.NewValidationError(ErrAmountTooSmall, core.FieldError{Field: "amount", Error: ErrAmountTooSmall.Error()})
	}
	if amount.GreaterThan(entry.Balance()) {
		return Settlement{}, ErrOverpayment
	}

	now := time.Now().UTC()
	paymentDate := np.PaymentDate
	if paymentDate.IsZero() {
		paymentDate = core.Today()
	}
	receipt := np.ReceiptNumber
	if receipt == "" {
		receipt = svc.newReceiptNumber(now)
	}
	var by *string
	if registeredBy != "" {
		by = &registeredBy
	}

	payment, err := repo.CreatePayment(ctx, PaymentRecord{
		InstitutionID: institutionID,
		EntryID:       entry.ID,
		VoucherID:     voucherID,
		Amount:        amount,
		Method:        np.Method,
		ReceiptNumber: receipt,
		Reference:     np.Reference,
		Notes:         np.Notes,
		PaymentDate:   paymentDate,
		RegisteredBy:  by,
		CreatedAt:     now,
	})
	if err != nil {
		return Settlement{}, err
	}

	entry.applyPayment(amount, now)
	if err := repo.UpdateEntryPayment(ctx, entry); err != nil {
		return Settlement{}, errors.Wrap(err, "updating entry payment")
	}
	return Settlement{Payment: payment, Entry: entry}, nil
}

// newReceiptNumber returns <prefix>-<yyyymmdd>-<8 hex chars>.
func (svc *Service) newReceiptNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("%s-%s-%s", svc.receiptPrefix, now.Format("20060102"), suffix)
}

func (svc *Service) QueryPayments(ctx context.Context, institutionID string, filter *PaymentFilter) ([]PaymentRecord, error) {
	return svc.repo.QueryPayments(ctx, institutionID, filter)
}

// TotalPaid sums the amounts of the given payments.
func TotalPaid(payments []PaymentRecord) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p.Amount)
	}
	return total
}

package finance

import (
	"github.com/pkg/errors"

	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core"
)

var (
	ErrConceptNotFound = core.NewNotFoundError("payment concept not found")
	ErrEntryNotFound   = core.NewNotFoundError("schedule entry not found")
	ErrPaymentNotFound = core.NewNotFoundError("payment not found")
	ErrVoucherNotFound = core.NewNotFoundError("voucher not found")

	ErrAmountTooSmall = errors.New("amount must be at least 0.01")

	ErrConceptExists      = core.NewRuleError("a payment concept with this name already exists")
	ErrConceptInactive    = core.NewRuleError("payment concept is inactive")
	ErrEntrySettled       = core.NewRuleError("schedule entry is already settled")
	ErrOverpayment        = core.NewRuleError("amount exceeds the outstanding balance")
	ErrReceiptExists      = core.NewRuleError("a payment with this receipt number already exists")
	ErrDuplicateOperation = core.NewRuleError("a voucher with this bank operation was already submitted")
	ErrVoucherResolved    = core.NewRuleError("voucher was already resolved")
)

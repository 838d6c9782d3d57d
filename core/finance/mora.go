package finance

import (
	"github.com/shopspring/decimal"

	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core"
)

// DaysOverdue returns the number of whole days elapsed since dueDate, as of asOf. Zero if not yet due.
func DaysOverdue(dueDate, asOf core.Date) int {
	if days := asOf.DaysSince(dueDate); days > 0 {
		return days
	}
	return 0
}

// ComputeMora returns dailyRate * days overdue, rounded to cents.
// It only depends on its inputs: running it again on the same day gives the same amount.
func ComputeMora(dailyRate decimal.Decimal, dueDate, asOf core.Date) decimal.Decimal {
	days := DaysOverdue(dueDate, asOf)
	if days == 0 || !dailyRate.IsPositive() {
		return decimal.Zero
	}
	return dailyRate.Mul(decimal.NewFromInt(int64(days))).Round(2)
}

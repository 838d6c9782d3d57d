package finance_test

import (
	"testing"

	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core/finance"
)

func TestComputeMora(t *testing.T) {
	asOf := core.DateOf(2024, 3, 20)

	tests := []struct {
		name    string
		rate    string
		dueDate core.Date
		want    string
	}{
		{name: "10 days overdue", rate: "1.50", dueDate: core.DateOf(2024, 3, 10), want: "15.00"},
		{name: "1 day overdue", rate: "1.50", dueDate: core.DateOf(2024, 3, 19), want: "1.50"},
		{name: "due today", rate: "1.50", dueDate: asOf, want: "0"},
		{name: "not yet due", rate: "1.50", dueDate: core.DateOf(2024, 4, 1), want: "0"},
		{name: "zero rate", rate: "0", dueDate: core.DateOf(2024, 3, 10), want: "0"},
		{name: "over a month boundary", rate: "2", dueDate: core.DateOf(2024, 2, 28), want: "42.00"},
		{name: "rounded to cents", rate: "0.333", dueDate: core.DateOf(2024, 3, 17), want: "1.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := finance.ComputeMora(dec(tt.rate), tt.dueDate, asOf)
			assertDecimal(t, "ComputeMora()", got, tt.want)
		})
	}
}

func TestDaysOverdue(t *testing.T) {
	asOf := core.DateOf(2024, 1, 5)
	if got := finance.DaysOverdue(core.DateOf(2023, 12, 31), asOf); got != 5 {
		t.Errorf("DaysOverdue() = %d; want 5", got)
	}
	if got := finance.DaysOverdue(core.DateOf(2024, 1, 6), asOf); got != 0 {
		t.Errorf("DaysOverdue() = %d; want 0", got)
	}
}

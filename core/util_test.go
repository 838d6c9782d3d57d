package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core"
)

func TestCollapseSpaces(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "   ", want: ""},
		{in: "Colegio Andino", want: "Colegio Andino"},
		{in: " Colegio  Andino ", want: "Colegio Andino"},
		{in: "San\tMartín\n de Porres", want: "San Martín de Porres"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, core.CollapseSpaces(tt.in))
		})
	}
}

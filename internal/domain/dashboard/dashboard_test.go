package dashboard

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestSummary_Revenue(t *testing.T) {
	tests := []struct {
		name      string
		sales     string
		discounts string
		want      string
	}{
		{name: "empty store", sales: "0", discounts: "0", want: "0"},
		{name: "no discounts", sales: "150.50", discounts: "0", want: "150.50"},
		{name: "with discounts", sales: "100.00", discounts: "12.35", want: "87.65"},
		{name: "waived orders", sales: "40.00", discounts: "40.00", want: "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Summary{
				Sales:     decimal.RequireFromString(tt.sales),
				Discounts: decimal.RequireFromString(tt.discounts),
			}
			assert.True(t, decimal.RequireFromString(tt.want).Equal(s.Revenue()), s.Revenue().String())
		})
	}
}

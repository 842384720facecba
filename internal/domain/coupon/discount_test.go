package coupon

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompute(t *testing.T) {
	mixed := Target{
		Subtotal: d("80.00"),
		Lines: []Line{
			{ProductID: 1, Quantity: 2, Subtotal: d("10.00")},
			{ProductID: 2, Quantity: 1, Subtotal: d("50.00")},
			{ProductID: 1, Quantity: 1, Subtotal: d("20.00")},
		},
	}

	tests := []struct {
		name   string
		coupon Coupon
		target Target
		want   string
	}{
		{
			name:   "percent of whole order",
			coupon: Coupon{Type: TypePercent, Discount: d("10"), Scope: ScopeAll},
			target: Target{Subtotal: d("100.00")},
			want:   "10.00",
		},
		{
			name:   "percent rounds half up",
			coupon: Coupon{Type: TypePercent, Discount: d("15"), Scope: ScopeClient},
			target: Target{Subtotal: d("0.30")},
			want:   "0.05",
		},
		{
			name:   "currency flat on whole order",
			coupon: Coupon{Type: TypeCurrency, Discount: d("5"), Scope: ScopeAll},
			target: Target{Subtotal: d("3.00")},
			want:   "5.00",
		},
		{
			name:   "free waives whole order",
			coupon: Coupon{Type: TypeFree, Scope: ScopeAll},
			target: Target{Subtotal: d("75.00")},
			want:   "75.00",
		},
		{
			name:   "unknown type waives whole order",
			coupon: Coupon{Type: Type("full"), Scope: ScopeAll},
			target: Target{Subtotal: d("12.34")},
			want:   "12.34",
		},
		{
			name:   "currency per unit on scoped lines",
			coupon: Coupon{Type: TypeCurrency, Discount: d("2"), Scope: ScopeProduct, ProductIDs: []int64{1}},
			target: Target{
				Subtotal: d("80.00"),
				Lines: []Line{
					{ProductID: 1, Quantity: 3, Subtotal: d("30.00")},
					{ProductID: 2, Quantity: 1, Subtotal: d("50.00")},
				},
			},
			want: "6.00",
		},
		{
			name:   "percent sums scoped lines",
			coupon: Coupon{Type: TypePercent, Discount: d("10"), Scope: ScopeProduct, ProductIDs: []int64{1}},
			target: mixed,
			want:   "3.00",
		},
		{
			name:   "free waives scoped lines",
			coupon: Coupon{Type: TypeFree, Scope: ScopeProductClient, ProductIDs: []int64{2}, ClientIDs: []int64{1}},
			target: mixed,
			want:   "50.00",
		},
		{
			name:   "product client scope takes product branch",
			coupon: Coupon{Type: TypeCurrency, Discount: d("1.50"), Scope: ScopeProductClient, ProductIDs: []int64{1}, ClientIDs: []int64{1}},
			target: mixed,
			want:   "4.50",
		},
		{
			name:   "no scoped lines yields zero",
			coupon: Coupon{Type: TypePercent, Discount: d("50"), Scope: ScopeProduct, ProductIDs: []int64{9}},
			target: mixed,
			want:   "0.00",
		},
		{
			name:   "per line percentages round once",
			coupon: Coupon{Type: TypePercent, Discount: d("33"), Scope: ScopeProduct, ProductIDs: []int64{1}},
			target: Target{Lines: []Line{
				{ProductID: 1, Quantity: 1, Subtotal: d("0.05")},
				{ProductID: 1, Quantity: 1, Subtotal: d("0.05")},
				{ProductID: 1, Quantity: 1, Subtotal: d("0.05")},
			}},
			want: "0.05",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(&tt.coupon, tt.target)
			assert.Equal(t, tt.want, got.StringFixed(2))
		})
	}
}

func TestCompute_NeverNegative(t *testing.T) {
	c := &Coupon{Type: TypePercent, Discount: d("10"), Scope: ScopeAll}
	got := Compute(c, Target{Subtotal: d("-20.00")})
	assert.True(t, got.IsZero())
}

package coupon

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveScope(t *testing.T) {
	tests := []struct {
		name     string
		clients  []int64
		products []int64
		want     Scope
	}{
		{name: "none", want: ScopeAll},
		{name: "empty slices", clients: []int64{}, products: []int64{}, want: ScopeAll},
		{name: "clients only", clients: []int64{1}, want: ScopeClient},
		{name: "products only", products: []int64{2}, want: ScopeProduct},
		{name: "both", clients: []int64{1}, products: []int64{2}, want: ScopeProductClient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveScope(tt.clients, tt.products))
		})
	}
}

func TestScopeRestrictions(t *testing.T) {
	tests := []struct {
		scope    Scope
		clients  bool
		products bool
	}{
		{ScopeAll, false, false},
		{ScopeClient, true, false},
		{ScopeProduct, false, true},
		{ScopeProductClient, true, true},
		{Scope("bogus"), false, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.scope), func(t *testing.T) {
			assert.Equal(t, tt.clients, tt.scope.RestrictsClients())
			assert.Equal(t, tt.products, tt.scope.RestrictsProducts())
		})
	}
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "SUMMER24", NormalizeCode("  summer24\n"))
	assert.Equal(t, "ABC", NormalizeCode("ABC"))
}

func TestCoupon_Validate(t *testing.T) {
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	until := from.Add(-time.Hour)

	valid := func() Coupon {
		return Coupon{Code: "SAVE10", Type: TypePercent, Discount: d("10"), Quantity: 5}
	}

	tests := []struct {
		name    string
		mutate  func(c *Coupon)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Coupon) {}},
		{name: "free without discount", mutate: func(c *Coupon) { c.Type, c.Discount = TypeFree, d("0") }},
		{name: "zero quantity", mutate: func(c *Coupon) { c.Quantity = 0 }},
		{name: "code too short", mutate: func(c *Coupon) { c.Code = "A" }, wantErr: true},
		{name: "unknown type", mutate: func(c *Coupon) { c.Type = "bogo" }, wantErr: true},
		{name: "zero discount", mutate: func(c *Coupon) { c.Discount = d("0") }, wantErr: true},
		{name: "percent over 100", mutate: func(c *Coupon) { c.Discount = d("100.01") }, wantErr: true},
		{name: "currency over 100", mutate: func(c *Coupon) { c.Type, c.Discount = TypeCurrency, d("250") }},
		{name: "negative quantity", mutate: func(c *Coupon) { c.Quantity = -1 }, wantErr: true},
		{name: "max quantity", mutate: func(c *Coupon) { c.Quantity = MaxQuantity }},
		{name: "quantity over int4", mutate: func(c *Coupon) { c.Quantity = MaxQuantity + 1 }, wantErr: true},
		{name: "sub-cent discount", mutate: func(c *Coupon) { c.Discount = d("12.345") }, wantErr: true},
		{name: "trailing zeros", mutate: func(c *Coupon) { c.Discount = d("12.500") }},
		{name: "discount over column", mutate: func(c *Coupon) { c.Type, c.Discount = TypeCurrency, d("10000000000") }, wantErr: true},
		{name: "multibyte code at limit", mutate: func(c *Coupon) { c.Code = strings.Repeat("É", 64) }},
		{name: "multibyte code too long", mutate: func(c *Coupon) { c.Code = strings.Repeat("É", 65) }, wantErr: true},
		{name: "window reversed", mutate: func(c *Coupon) { c.ValidFrom, c.ValidUntil = &from, &until }, wantErr: true},
		{name: "open window", mutate: func(c *Coupon) { c.ValidFrom = &from }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalid)
				return
			}
			require.NoError(t, err)
		})
	}
}

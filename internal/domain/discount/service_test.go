package discount

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
)

// --- In-memory store ---

type state struct {
	orders    map[int64]*order.Order
	coupons   map[int64]*coupon.Coupon
	discounts map[int64]order.Discount
	nextID    int64
}

func (s *state) clone() *state {
	cp := &state{
		orders:    make(map[int64]*order.Order, len(s.orders)),
		coupons:   make(map[int64]*coupon.Coupon, len(s.coupons)),
		discounts: make(map[int64]order.Discount, len(s.discounts)),
		nextID:    s.nextID,
	}
	for id, o := range s.orders {
		oc := *o
		cp.orders[id] = &oc
	}
	for id, c := range s.coupons {
		cc := *c
		cp.coupons[id] = &cc
	}
	for id, d := range s.discounts {
		cp.discounts[id] = d
	}
	return cp
}

type memStore struct {
	st *state
	// beforeDecrement runs inside the transaction right before the quantity
	// decrement, to simulate a concurrent redemption.
	beforeDecrement func(st *state)
	createErr       error
	commits         int
}

func newMemStore() *memStore {
	return &memStore{st: &state{
		orders:    map[int64]*order.Order{},
		coupons:   map[int64]*coupon.Coupon{},
		discounts: map[int64]order.Discount{},
	}}
}

func (m *memStore) InTx(_ context.Context, fn func(tx Tx) error) error {
	work := m.st.clone()
	if err := fn(&memTx{m: m, st: work}); err != nil {
		return err
	}
	m.st = work
	m.commits++
	return nil
}

func (m *memStore) addOrder(o order.Order) {
	m.st.orders[o.ID] = &o
}

func (m *memStore) addCoupon(c coupon.Coupon) {
	m.st.coupons[c.ID] = &c
}

func (m *memStore) quantity(couponID int64) int {
	return m.st.coupons[couponID].Quantity
}

func (m *memStore) orderDiscounts(orderID int64) []order.Discount {
	var out []order.Discount
	for _, d := range m.st.discounts {
		if d.OrderID == orderID {
			out = append(out, d)
		}
	}
	return out
}

type memTx struct {
	m  *memStore
	st *state
}

func (t *memTx) LockOrder(_ context.Context, id int64) (*order.Order, error) {
	o, ok := t.st.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	cp.Discounts = nil
	for _, d := range t.st.discounts {
		if d.OrderID == id {
			cp.Discounts = append(cp.Discounts, d)
		}
	}
	return &cp, nil
}

func (t *memTx) CouponByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	for _, c := range t.st.coupons {
		if c.Code == code {
			cp := *c
			return &cp, nil
		}
	}
	return nil, coupon.ErrNotFound
}

func (t *memTx) CreateDiscount(_ context.Context, d *order.Discount) error {
	if t.m.createErr != nil {
		return t.m.createErr
	}
	t.st.nextID++
	d.ID = t.st.nextID
	d.CreatedAt = time.Now()
	t.st.discounts[d.ID] = *d
	return nil
}

func (t *memTx) DecrementCouponQuantity(_ context.Context, couponID int64) (int, bool, error) {
	if t.m.beforeDecrement != nil {
		t.m.beforeDecrement(t.st)
	}
	c := t.st.coupons[couponID]
	if c.Quantity <= 0 {
		return 0, false, nil
	}
	c.Quantity--
	return c.Quantity, true, nil
}

func (t *memTx) DeleteDiscount(_ context.Context, orderID, discountID int64) (int64, error) {
	d, ok := t.st.discounts[discountID]
	if !ok || d.OrderID != orderID {
		return 0, order.ErrDiscountNotFound
	}
	delete(t.st.discounts, discountID)
	return d.CouponID, nil
}

func (t *memTx) IncrementCouponQuantity(_ context.Context, couponID int64) error {
	t.st.coupons[couponID].Quantity++
	return nil
}

// --- Helpers ---

var now = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func newService(t *testing.T, store *memStore) *Service {
	t.Helper()
	eval := coupon.NewEvaluatorAt(func() time.Time { return now })
	svc, err := NewService(store, eval, tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider())
	require.NoError(t, err)
	return svc
}

// newOrder returns order 1 for client 7: product 1 x3 (30.00), product 2 x1
// (50.00).
func newOrder() order.Order {
	return order.Order{
		ID:     1,
		UserID: 7,
		Status: order.StatusPending,
		Items: []order.Item{
			{ID: 1, OrderID: 1, ProductID: 1, Quantity: 3, Subtotal: d("30.00")},
			{ID: 2, OrderID: 1, ProductID: 2, Quantity: 1, Subtotal: d("50.00")},
		},
	}
}

func percentCoupon(id int64, code string, qty int) coupon.Coupon {
	return coupon.Coupon{
		ID:       id,
		Code:     code,
		Discount: d("10"),
		Type:     coupon.TypePercent,
		Quantity: qty,
		Scope:    coupon.ScopeAll,
	}
}

// --- Tests ---

func TestApply(t *testing.T) {
	store := newMemStore()
	store.addOrder(newOrder())
	store.addCoupon(percentCoupon(10, "SAVE10", 5))
	svc := newService(t, store)

	res, err := svc.Apply(context.Background(), 1, "  save10 ")
	require.NoError(t, err)

	assert.True(t, d("8.00").Equal(res.Discount.Amount), "got %s", res.Discount.Amount)
	assert.Equal(t, int64(10), res.Discount.CouponID)
	assert.NotZero(t, res.Discount.ID)
	assert.Equal(t, 4, res.Coupon.Quantity)
	require.Len(t, res.Order.Discounts, 1)
	assert.True(t, d("72.00").Equal(res.Order.Total()))

	assert.Equal(t, 4, store.quantity(10))
	assert.Len(t, store.orderDiscounts(1), 1)
}

func TestApply_Amounts(t *testing.T) {
	tests := []struct {
		name   string
		items  []order.Item
		coupon coupon.Coupon
		want   string
	}{
		{
			name:  "PercentWholeOrder",
			items: []order.Item{{ProductID: 1, Quantity: 1, Subtotal: d("100.00")}},
			coupon: coupon.Coupon{
				Discount: d("10"), Type: coupon.TypePercent, Scope: coupon.ScopeAll,
			},
			want: "10.00",
		},
		{
			name: "CurrencyProductScoped",
			items: []order.Item{
				{ProductID: 1, Quantity: 3, Subtotal: d("30.00")},
				{ProductID: 2, Quantity: 1, Subtotal: d("50.00")},
			},
			coupon: coupon.Coupon{
				Discount: d("2"), Type: coupon.TypeCurrency,
				Scope: coupon.ScopeProduct, ProductIDs: []int64{1},
			},
			want: "6.00",
		},
		{
			name:  "FreeWholeOrder",
			items: []order.Item{{ProductID: 1, Quantity: 3, Subtotal: d("75.00")}},
			coupon: coupon.Coupon{
				Type: coupon.TypeFree, Scope: coupon.ScopeAll,
			},
			want: "75.00",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			o := newOrder()
			o.Items = tt.items
			store.addOrder(o)
			c := tt.coupon
			c.ID, c.Code, c.Quantity = 10, "CODE", 1
			store.addCoupon(c)

			res, err := newService(t, store).Apply(context.Background(), 1, "code")
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Discount.Amount.StringFixed(2))
		})
	}
}

func TestApply_ZeroQuantityAlwaysIneligible(t *testing.T) {
	variants := []coupon.Coupon{
		percentCoupon(10, "A", 0),
		{ID: 10, Code: "A", Type: coupon.TypeFree, Recursive: true, Scope: coupon.ScopeAll},
		{ID: 10, Code: "A", Type: coupon.TypeCurrency, Discount: d("1"), Quantity: -3, Scope: coupon.ScopeClient, ClientIDs: []int64{7}},
	}
	for _, c := range variants {
		store := newMemStore()
		store.addOrder(newOrder())
		store.addCoupon(c)

		_, err := newService(t, store).Apply(context.Background(), 1, "A")
		ie, ok := coupon.IsIneligible(err)
		require.True(t, ok, "expected ineligible, got %v", err)
		assert.Equal(t, coupon.ReasonExhausted, ie.Reason)
		assert.Empty(t, store.orderDiscounts(1))
		assert.Equal(t, 0, store.commits)
	}
}

func TestApply_Stacking(t *testing.T) {
	t.Run("NonRecursiveSecondApplyRefused", func(t *testing.T) {
		store := newMemStore()
		store.addOrder(newOrder())
		store.addCoupon(percentCoupon(10, "ONCE", 5))
		svc := newService(t, store)
		ctx := context.Background()

		_, err := svc.Apply(ctx, 1, "ONCE")
		require.NoError(t, err)

		_, err = svc.Apply(ctx, 1, "ONCE")
		ie, ok := coupon.IsIneligible(err)
		require.True(t, ok)
		assert.Equal(t, coupon.ReasonAlreadyApplied, ie.Reason)
		assert.Len(t, store.orderDiscounts(1), 1)
		assert.Equal(t, 4, store.quantity(10))
	})

	t.Run("NonRecursiveRefusedAfterOtherCoupon", func(t *testing.T) {
		store := newMemStore()
		store.addOrder(newOrder())
		rec := percentCoupon(10, "AGAIN", 5)
		rec.Recursive = true
		store.addCoupon(rec)
		store.addCoupon(percentCoupon(11, "ONCE", 5))
		svc := newService(t, store)
		ctx := context.Background()

		_, err := svc.Apply(ctx, 1, "AGAIN")
		require.NoError(t, err)
		_, err = svc.Apply(ctx, 1, "ONCE")
		ie, ok := coupon.IsIneligible(err)
		require.True(t, ok)
		assert.Equal(t, coupon.ReasonAlreadyApplied, ie.Reason)
	})

	t.Run("RecursiveAppliesRepeatedly", func(t *testing.T) {
		store := newMemStore()
		store.addOrder(newOrder())
		rec := percentCoupon(10, "AGAIN", 5)
		rec.Recursive = true
		store.addCoupon(rec)
		svc := newService(t, store)
		ctx := context.Background()

		for range 3 {
			_, err := svc.Apply(ctx, 1, "AGAIN")
			require.NoError(t, err)
		}
		assert.Len(t, store.orderDiscounts(1), 3)
		assert.Equal(t, 2, store.quantity(10))
	})
}

func TestApply_Ineligible(t *testing.T) {
	past := now.Add(-48 * time.Hour)
	yesterday := now.Add(-24 * time.Hour)
	tomorrow := now.Add(24 * time.Hour)

	tests := []struct {
		name   string
		mutate func(c *coupon.Coupon)
		reason coupon.Reason
	}{
		{
			name: "Expired",
			mutate: func(c *coupon.Coupon) {
				c.ValidFrom, c.ValidUntil = &past, &yesterday
			},
			reason: coupon.ReasonExpired,
		},
		{
			name:   "NotYetValid",
			mutate: func(c *coupon.Coupon) { c.ValidFrom = &tomorrow },
			reason: coupon.ReasonExpired,
		},
		{
			name: "OtherClient",
			mutate: func(c *coupon.Coupon) {
				c.Scope, c.ClientIDs = coupon.ScopeClient, []int64{99}
			},
			reason: coupon.ReasonWrongScope,
		},
		{
			name: "NoMatchingProduct",
			mutate: func(c *coupon.Coupon) {
				c.Scope, c.ProductIDs = coupon.ScopeProduct, []int64{42}
			},
			reason: coupon.ReasonWrongScope,
		},
		{
			name: "ProductMatchesClientDoesNot",
			mutate: func(c *coupon.Coupon) {
				c.Scope = coupon.ScopeProductClient
				c.ClientIDs, c.ProductIDs = []int64{99}, []int64{1}
			},
			reason: coupon.ReasonWrongScope,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			store.addOrder(newOrder())
			c := percentCoupon(10, "X", 5)
			tt.mutate(&c)
			store.addCoupon(c)

			_, err := newService(t, store).Apply(context.Background(), 1, "X")
			ie, ok := coupon.IsIneligible(err)
			require.True(t, ok, "expected ineligible, got %v", err)
			assert.Equal(t, tt.reason, ie.Reason)
			assert.Equal(t, "X", ie.Code)
			assert.Equal(t, 5, store.quantity(10))
		})
	}
}

func TestApply_NotFound(t *testing.T) {
	store := newMemStore()
	store.addOrder(newOrder())
	store.addCoupon(percentCoupon(10, "SAVE10", 5))
	svc := newService(t, store)

	_, err := svc.Apply(context.Background(), 1, "NOPE")
	require.ErrorIs(t, err, coupon.ErrNotFound)

	_, err = svc.Apply(context.Background(), 2, "SAVE10")
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestApply_LastUnitTakenConcurrently(t *testing.T) {
	store := newMemStore()
	store.addOrder(newOrder())
	store.addCoupon(percentCoupon(10, "LAST", 1))
	store.beforeDecrement = func(st *state) {
		st.coupons[10].Quantity = 0
	}
	svc := newService(t, store)

	_, err := svc.Apply(context.Background(), 1, "LAST")
	ie, ok := coupon.IsIneligible(err)
	require.True(t, ok)
	assert.Equal(t, coupon.ReasonExhausted, ie.Reason)
	assert.Empty(t, store.orderDiscounts(1), "discount row must roll back")
	assert.Equal(t, 1, store.quantity(10))
}

func TestApply_PersistenceErrorRollsBack(t *testing.T) {
	store := newMemStore()
	store.addOrder(newOrder())
	store.addCoupon(percentCoupon(10, "SAVE10", 5))
	store.createErr = errors.New("disk full")

	_, err := newService(t, store).Apply(context.Background(), 1, "SAVE10")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 5, store.quantity(10))
	assert.Zero(t, store.commits)
}

func TestRemove(t *testing.T) {
	store := newMemStore()
	store.addOrder(newOrder())
	store.addCoupon(percentCoupon(10, "SAVE10", 5))
	svc := newService(t, store)
	ctx := context.Background()

	res, err := svc.Apply(ctx, 1, "SAVE10")
	require.NoError(t, err)
	require.Equal(t, 4, store.quantity(10))

	require.NoError(t, svc.Remove(ctx, 1, res.Discount.ID))
	assert.Equal(t, 5, store.quantity(10), "apply then remove restores quantity")
	assert.Empty(t, store.orderDiscounts(1))

	err = svc.Remove(ctx, 1, res.Discount.ID)
	require.ErrorIs(t, err, order.ErrDiscountNotFound)
	assert.Equal(t, 5, store.quantity(10), "second remove must not increment")
}

func TestRemove_WrongOrder(t *testing.T) {
	store := newMemStore()
	store.addOrder(newOrder())
	o2 := newOrder()
	o2.ID = 2
	store.addOrder(o2)
	store.addCoupon(percentCoupon(10, "SAVE10", 5))
	svc := newService(t, store)
	ctx := context.Background()

	res, err := svc.Apply(ctx, 1, "SAVE10")
	require.NoError(t, err)

	require.ErrorIs(t, svc.Remove(ctx, 2, res.Discount.ID), order.ErrDiscountNotFound)
	assert.Equal(t, 4, store.quantity(10))
	assert.Len(t, store.orderDiscounts(1), 1)
}

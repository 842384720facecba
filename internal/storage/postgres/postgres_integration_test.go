//go:build integration

package postgres

import (
	"context"
	"log"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/discount"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/paging"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/user"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	ctr, err := tcpostgres.Run(ctx, "postgres:17-alpine",
		tcpostgres.WithDatabase("store"),
		tcpostgres.WithUsername("store"),
		tcpostgres.WithPassword("store"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		log.Fatalf("connection string: %v", err)
	}

	testPool, err = NewPool(ctx, dsn)
	if err != nil {
		log.Fatalf("pool: %v", err)
	}
	defer testPool.Close()

	if err := RunMigrations(ctx, testPool); err != nil {
		log.Fatalf("migrations: %v", err)
	}
	// Migrations must be re-runnable.
	if err := RunMigrations(ctx, testPool); err != nil {
		log.Fatalf("migrations again: %v", err)
	}

	return m.Run()
}

type fixture struct {
	users    *UserRepository
	products *ProductRepository
	coupons  *coupon.Service
	orders   *order.Service
	discount *discount.Service
	couponDB *CouponRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	couponRepo := NewCouponRepository(testPool)
	productRepo := NewProductRepository(testPool)
	svc, err := discount.NewService(NewDiscountStore(testPool), coupon.NewEvaluator(),
		tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider())
	require.NoError(t, err)

	return &fixture{
		users:    NewUserRepository(testPool),
		products: productRepo,
		coupons:  coupon.NewService(couponRepo, NewCouponStore(testPool)),
		orders:   order.NewService(productRepo, NewOrderRepository(testPool), NewOrderStore(testPool)),
		discount: svc,
		couponDB: couponRepo,
	}
}

func (f *fixture) user(t *testing.T, email string) *user.User {
	t.Helper()
	u := &user.User{Name: "Test", Surname: "User", Email: email}
	require.NoError(t, f.users.Create(context.Background(), u))
	return u
}

func (f *fixture) product(t *testing.T, name, price string) *product.Product {
	t.Helper()
	p := &product.Product{Name: name, Price: decimal.RequireFromString(price)}
	require.NoError(t, f.products.Create(context.Background(), p))
	return p
}

func TestCouponLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, "coupon-life@example.com")
	p := f.product(t, "Lifecycle widget", "12.50")

	c, err := f.coupons.Create(ctx, coupon.Coupon{
		Code: "life10", Type: coupon.TypePercent, Discount: decimal.NewFromInt(10), Quantity: 3,
		ClientIDs: []int64{u.ID}, ProductIDs: []int64{p.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, coupon.ScopeProductClient, c.Scope)

	got, err := f.coupons.GetByCode(ctx, "LIFE10")
	require.NoError(t, err)
	assert.Equal(t, []int64{u.ID}, got.ClientIDs)
	assert.Equal(t, []int64{p.ID}, got.ProductIDs)
	assert.True(t, decimal.NewFromInt(10).Equal(got.Discount))

	_, err = f.coupons.Create(ctx, coupon.Coupon{Code: "LIFE10", Type: coupon.TypeFree, Quantity: 1})
	require.ErrorIs(t, err, coupon.ErrCodeTaken)

	_, err = f.coupons.Create(ctx, coupon.Coupon{Code: "GHOST", Type: coupon.TypeFree, Quantity: 1, ClientIDs: []int64{-1}})
	require.ErrorIs(t, err, coupon.ErrInvalid)

	updated, err := f.coupons.Update(ctx, c.ID, coupon.Patch{ClientIDs: []int64{}})
	require.NoError(t, err)
	assert.Equal(t, coupon.ScopeProduct, updated.Scope)

	page, err := f.coupons.List(ctx, coupon.Filter{Code: "life"}, paging.Request{})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, coupon.ScopeProduct, page.Items[0].Scope)
	assert.Empty(t, page.Items[0].ClientIDs)

	require.NoError(t, f.coupons.Delete(ctx, c.ID))
	_, err = f.coupons.Get(ctx, c.ID)
	require.ErrorIs(t, err, coupon.ErrNotFound)
}

func TestApplyRemoveRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, "roundtrip@example.com")
	p := f.product(t, "Round trip widget", "10.00")
	q := f.product(t, "Round trip gadget", "50.00")

	o, err := f.orders.Create(ctx, order.CreateInput{
		UserID: u.ID,
		Items: []order.ItemInput{
			{ProductID: p.ID, Quantity: 3},
			{ProductID: q.ID, Quantity: 1},
		},
	})
	require.NoError(t, err)

	c, err := f.coupons.Create(ctx, coupon.Coupon{
		Code: "RT2", Type: coupon.TypeCurrency, Discount: decimal.NewFromInt(2), Quantity: 5,
		ProductIDs: []int64{p.ID},
	})
	require.NoError(t, err)

	res, err := f.discount.Apply(ctx, o.ID, "rt2")
	require.NoError(t, err)
	assert.Equal(t, "6.00", res.Discount.Amount.StringFixed(2))

	stored, err := f.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "74.00", stored.Total().StringFixed(2))

	_, err = f.discount.Apply(ctx, o.ID, "RT2")
	ie, ok := coupon.IsIneligible(err)
	require.True(t, ok)
	assert.Equal(t, coupon.ReasonAlreadyApplied, ie.Reason)

	require.ErrorIs(t, f.coupons.Delete(ctx, c.ID), coupon.ErrInUse)

	require.NoError(t, f.discount.Remove(ctx, o.ID, res.Discount.ID))
	require.ErrorIs(t, f.discount.Remove(ctx, o.ID, res.Discount.ID), order.ErrDiscountNotFound)

	after, err := f.coupons.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, after.Quantity)
}

func TestDeleteOrderRestoresCoupons(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, "delete-order@example.com")
	p := f.product(t, "Delete widget", "20.00")

	o, err := f.orders.Create(ctx, order.CreateInput{UserID: u.ID, Items: []order.ItemInput{{ProductID: p.ID, Quantity: 1}}})
	require.NoError(t, err)
	c, err := f.coupons.Create(ctx, coupon.Coupon{
		Code: "AGAIN5", Type: coupon.TypePercent, Discount: decimal.NewFromInt(5), Quantity: 4, Recursive: true,
	})
	require.NoError(t, err)

	for range 2 {
		_, err := f.discount.Apply(ctx, o.ID, "AGAIN5")
		require.NoError(t, err)
	}

	require.NoError(t, f.orders.Delete(ctx, o.ID))
	after, err := f.coupons.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, after.Quantity)

	_, err = f.orders.Get(ctx, o.ID)
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestLastUnitRace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, "race@example.com")
	p := f.product(t, "Race widget", "9.99")

	const contenders = 8
	orderIDs := make([]int64, contenders)
	for i := range orderIDs {
		o, err := f.orders.Create(ctx, order.CreateInput{UserID: u.ID, Items: []order.ItemInput{{ProductID: p.ID, Quantity: 1}}})
		require.NoError(t, err)
		orderIDs[i] = o.ID
	}
	c, err := f.coupons.Create(ctx, coupon.Coupon{
		Code: "LASTONE", Type: coupon.TypeFree, Quantity: 1,
	})
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		exhausted int
	)
	start := make(chan struct{})
	for _, id := range orderIDs {
		wg.Add(1)
		go func(orderID int64) {
			defer wg.Done()
			<-start
			_, err := f.discount.Apply(ctx, orderID, "LASTONE")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			if ie, ok := coupon.IsIneligible(err); ok && ie.Reason == coupon.ReasonExhausted {
				exhausted++
			}
		}(id)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, contenders-1, exhausted)

	after, err := f.coupons.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, after.Quantity)

	var discounts int
	require.NoError(t, testPool.QueryRow(ctx, `SELECT COUNT(*) FROM discounts WHERE coupon_id = $1`, c.ID).Scan(&discounts))
	assert.Equal(t, 1, discounts)
}

func TestIngestSkipsExisting(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	batch := []coupon.Coupon{
		{Code: "BULK-A", Type: coupon.TypePercent, Discount: decimal.NewFromInt(5), Quantity: 10},
		{Code: "BULK-B", Type: coupon.TypeCurrency, Discount: decimal.NewFromInt(3), Quantity: 1},
	}
	n, err := f.couponDB.Ingest(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = f.couponDB.Ingest(ctx, batch)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := f.couponDB.GetByCode(ctx, "BULK-B")
	require.NoError(t, err)
	assert.Equal(t, coupon.ScopeAll, got.Scope)
}

func TestProductInUse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, "in-use@example.com")
	p := f.product(t, "Sold widget", "1.00")

	_, err := f.orders.Create(ctx, order.CreateInput{UserID: u.ID, Items: []order.ItemInput{{ProductID: p.ID, Quantity: 2}}})
	require.NoError(t, err)

	require.ErrorIs(t, f.products.Delete(ctx, p.ID), product.ErrInUse)
	require.ErrorIs(t, f.users.Delete(ctx, u.ID), user.ErrInUse)

	_, err = f.orders.Create(ctx, order.CreateInput{UserID: -5})
	require.ErrorIs(t, err, order.ErrInvalid)
}

func TestListOrders_IDFilter(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	repo := NewOrderRepository(testPool)
	u := f.user(t, "id-filter@example.com")
	p := f.product(t, "Filter widget", "3.00")

	o, err := f.orders.Create(ctx, order.CreateInput{UserID: u.ID, Items: []order.ItemInput{{ProductID: p.ID, Quantity: 1}}})
	require.NoError(t, err)
	page := paging.Request{Page: 1, PerPage: 100}

	for _, wildcard := range []string{"%", "_", `\`} {
		res, err := repo.List(ctx, order.Filter{ID: wildcard}, page)
		require.NoError(t, err)
		assert.Zero(t, res.Total, "filter %q", wildcard)
	}

	id := strconv.FormatInt(o.ID, 10)
	res, err := repo.List(ctx, order.Filter{ID: id}, page)
	require.NoError(t, err)
	ids := make([]int64, 0, len(res.Items))
	for _, it := range res.Items {
		ids = append(ids, it.ID)
	}
	assert.Contains(t, ids, o.ID)
}

func TestDashboardSummary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	repo := NewDashboardRepository(testPool)

	before, err := repo.Summary(ctx)
	require.NoError(t, err)

	u := f.user(t, "dashboard@example.com")
	p := f.product(t, "Dashboard widget", "40.00")
	o, err := f.orders.Create(ctx, order.CreateInput{UserID: u.ID, Items: []order.ItemInput{{ProductID: p.ID, Quantity: 2}}})
	require.NoError(t, err)
	_, err = f.coupons.Create(ctx, coupon.Coupon{
		Code: "DASH15", Type: coupon.TypeCurrency, Discount: decimal.NewFromInt(15), Quantity: 1,
	})
	require.NoError(t, err)
	_, err = f.discount.Apply(ctx, o.ID, "dash15")
	require.NoError(t, err)

	after, err := repo.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.Users+1, after.Users)
	assert.Equal(t, before.Orders+1, after.Orders)
	assert.Equal(t, before.Products+1, after.Products)
	assert.True(t, before.Revenue().Add(decimal.RequireFromString("65.00")).Equal(after.Revenue()),
		"revenue %s -> %s", before.Revenue(), after.Revenue())
}

// Package app wires configuration, storage, services and the HTTP server.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/discount"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/storage/postgres"
	"github.com/xenking/storefront/pkg/health"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

const serviceName = "storefront-admin"

// Run creates all dependencies, serves HTTP until ctx is done and then shuts
// down gracefully.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	probes := health.New()
	probes.Register(health.Readiness, "postgres", health.PingCheck(pool), health.WithTimeout(5*time.Second))
	probes.Register(health.Liveness, "goroutines", health.GoroutineCheck(cfg.Health.GoroutineLimit))
	probes.Start(ctx, cfg.Health.Interval)
	defer probes.Stop()

	throttle := httpmiddleware.NewThrottler(httpmiddleware.ThrottleConfig{
		Max:    cfg.Throttle.Max,
		Window: cfg.Throttle.Window,
	})
	if cfg.Throttle.Max > 0 {
		go throttle.Run(ctx)
	}

	r, err := newRouter(pool, probes, throttle, m.TracerProvider(), m.MeterProvider())
	if err != nil {
		return err
	}

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(r,
			httpmiddleware.Recovery(),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument(serviceName, m.TracerProvider(), m.MeterProvider()),
		),
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()

		probes.MarkReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
	}()

	probes.MarkReady(true)
	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// newRouter builds the routes over pool: health probes at the root and the
// admin API under /v1/admin.
func newRouter(
	pool *pgxpool.Pool,
	probes *health.Health,
	throttle *httpmiddleware.Throttler,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
) (chi.Router, error) {
	couponRepo := postgres.NewCouponRepository(pool)
	productRepo := postgres.NewProductRepository(pool)

	discounts, err := discount.NewService(postgres.NewDiscountStore(pool), coupon.NewEvaluator(), tp, mp)
	if err != nil {
		return nil, errors.Wrap(err, "create discount service")
	}

	h := handler.New(handler.Config{Throttle: throttle}, handler.Deps{
		Coupons:      coupon.NewService(couponRepo, postgres.NewCouponStore(pool)),
		Orders:       order.NewService(productRepo, postgres.NewOrderRepository(pool), postgres.NewOrderStore(pool)),
		Discounts:    discounts,
		Products:     productRepo,
		Categories:   postgres.NewCategoryRepository(pool),
		Users:        postgres.NewUserRepository(pool),
		Dashboard:    postgres.NewDashboardRepository(pool),
		CouponLookup: couponRepo,
	})

	r := chi.NewRouter()
	r.Use(httpmiddleware.LogRequests())
	r.Get("/livez", probes.LiveHandler)
	r.Get("/readyz", probes.ReadyHandler)
	r.Mount("/v1/admin", h.Routes())
	return r, nil
}

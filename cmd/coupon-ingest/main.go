// Command coupon-ingest bulk loads unrestricted coupons from gzip files of
// CODE[,type,discount,quantity] lines.
//
// Codes that occur in more than one file are found with one bloom filter per
// file followed by an exact confirmation pass. With -on-duplicate=first the
// earliest file's definition wins, with skip such codes are not loaded at all.
// Codes already in the database are left untouched.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		opts        options
		defType     string
		defDiscount string
	)
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.onDuplicate, "on-duplicate", dupFirst, "codes found in several files: first or skip")
	flag.UintVar(&opts.expected, "expected", 1_000_000, "expected codes per file, sizes the bloom filters")
	flag.IntVar(&opts.batch, "batch", 1000, "coupons per insert batch")
	flag.StringVar(&defType, "type", string(coupon.TypePercent), "type for lines without one")
	flag.StringVar(&defDiscount, "discount", "10", "discount for lines without one")
	flag.IntVar(&opts.defaults.Quantity, "quantity", 1, "quantity for lines without one")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	opts.files = flag.Args()
	opts.defaults.Type = coupon.Type(strings.ToLower(defType))
	d, err := decimal.NewFromString(defDiscount)
	if err != nil {
		slog.Error("invalid -discount", slog.String("value", defDiscount))
		os.Exit(1)
	}
	opts.defaults.Discount = d
	if err := opts.validate(); err != nil {
		slog.Error("invalid arguments", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, opts); err != nil {
		slog.Error("coupon ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("coupon ingest completed successfully")
}

func run(ctx context.Context, databaseURL string, opts options) error {
	slog.Info("pass 1: building bloom filters", slog.Int("files", len(opts.files)))
	filters, err := buildFilters(ctx, opts.files, opts.expected)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	slog.Info("pass 2: confirming cross-file duplicates")
	dups, err := findDuplicates(ctx, opts.files, filters)
	if err != nil {
		return errors.Wrap(err, "find duplicates")
	}
	slog.Info("duplicates confirmed", slog.Int("codes", len(dups)), slog.String("policy", opts.onDuplicate))

	slog.Info("connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	slog.Info("pass 3: loading coupons")
	st, err := load(ctx, postgres.NewCouponRepository(pool), opts, dups)
	if err != nil {
		return errors.Wrap(err, "load coupons")
	}
	slog.Info("load complete",
		slog.Int("read", st.read),
		slog.Int("inserted", st.inserted),
		slog.Int("invalid", st.invalid),
		slog.Int("skipped_duplicates", st.skipped),
	)
	return nil
}

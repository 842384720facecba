// Command seed-db loads demo users, catalog data and one coupon of every
// type and scope. Running it twice leaves the database unchanged.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/category"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/paging"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/user"
	"github.com/xenking/storefront/internal/storage/postgres"
)

type productJSON struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
}

type userJSON struct {
	Name    string `json:"name"`
	Surname string `json:"surname"`
	Email   string `json:"email"`
}

func main() {
	var (
		databaseURL string
		seedDir     string
	)
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedDir, "seed-dir", "db/seed", "directory holding users.json and products.json")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, seedDir); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, seedDir string) error {
	slog.Info("connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	users, err := seedUsers(ctx, postgres.NewUserRepository(pool), filepath.Join(seedDir, "users.json"))
	if err != nil {
		return errors.Wrap(err, "seed users")
	}
	products, err := seedProducts(ctx, pool, filepath.Join(seedDir, "products.json"))
	if err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedCoupons(ctx, pool, users, products); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	return nil
}

func readJSON[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read file")
	}
	var out []T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.Wrapf(err, "parse %s", filepath.Base(path))
	}
	return out, nil
}

// first pages once through a filtered listing and returns the item match
// picks, if any.
func first[T any](res paging.Result[T], err error, match func(*T) bool) (*T, error) {
	if err != nil {
		return nil, err
	}
	for i := range res.Items {
		if match(&res.Items[i]) {
			return &res.Items[i], nil
		}
	}
	return nil, nil
}

var lookupPage = paging.Request{Page: 1, PerPage: paging.MaxPerPage}

func seedUsers(ctx context.Context, repo *postgres.UserRepository, path string) ([]user.User, error) {
	rows, err := readJSON[userJSON](path)
	if err != nil {
		return nil, err
	}
	slog.Info("upserting users", slog.Int("count", len(rows)))

	out := make([]user.User, 0, len(rows))
	for _, row := range rows {
		res, err := repo.List(ctx, user.Filter{Query: row.Email}, lookupPage)
		existing, err := first(res, err, func(u *user.User) bool { return u.Email == row.Email })
		if err != nil {
			return nil, errors.Wrapf(err, "find user %s", row.Email)
		}
		if existing != nil {
			out = append(out, *existing)
			continue
		}

		u := user.User{Name: row.Name, Surname: row.Surname, Email: row.Email}
		if err := u.Validate(); err != nil {
			return nil, err
		}
		if err := repo.Create(ctx, &u); err != nil {
			return nil, errors.Wrapf(err, "create user %s", row.Email)
		}
		slog.Info("created user", slog.Int64("id", u.ID), slog.String("email", u.Email))
		out = append(out, u)
	}
	return out, nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, path string) (map[string]product.Product, error) {
	rows, err := readJSON[productJSON](path)
	if err != nil {
		return nil, err
	}
	slog.Info("upserting products", slog.Int("count", len(rows)))

	categories := postgres.NewCategoryRepository(pool)
	products := postgres.NewProductRepository(pool)
	categoryIDs := make(map[string]int64)
	out := make(map[string]product.Product, len(rows))

	for _, row := range rows {
		catID, ok := categoryIDs[row.Category]
		if !ok {
			res, err := categories.List(ctx, category.Filter{Title: row.Category}, lookupPage)
			c, err := first(res, err, func(c *category.Category) bool { return c.Title == row.Category })
			if err != nil {
				return nil, errors.Wrapf(err, "find category %s", row.Category)
			}
			if c == nil {
				c = &category.Category{Title: row.Category}
				if err := categories.Create(ctx, c); err != nil {
					return nil, errors.Wrapf(err, "create category %s", row.Category)
				}
				slog.Info("created category", slog.Int64("id", c.ID), slog.String("title", c.Title))
			}
			catID = c.ID
			categoryIDs[row.Category] = catID
		}

		res, err := products.List(ctx, product.Filter{Name: row.Name}, lookupPage)
		p, err := first(res, err, func(p *product.Product) bool { return p.Name == row.Name })
		if err != nil {
			return nil, errors.Wrapf(err, "find product %s", row.Name)
		}
		if p == nil {
			p = &product.Product{Name: row.Name, Description: row.Description, Price: row.Price, CategoryID: &catID}
			if err := p.Validate(); err != nil {
				return nil, err
			}
			if err := products.Create(ctx, p); err != nil {
				return nil, errors.Wrapf(err, "create product %s", row.Name)
			}
			slog.Info("created product", slog.Int64("id", p.ID), slog.String("name", p.Name))
		}
		out[p.Name] = *p
	}
	return out, nil
}

// demoCoupons covers every type and every scope, plus an expired code.
func demoCoupons(users []user.User, products map[string]product.Product) []coupon.Coupon {
	productIDs := func(names ...string) []int64 {
		var ids []int64
		for _, n := range names {
			if p, ok := products[n]; ok {
				ids = append(ids, p.ID)
			}
		}
		return ids
	}
	var vip, regular []int64
	if len(users) > 0 {
		vip = []int64{users[0].ID}
	}
	if len(users) > 1 {
		regular = []int64{users[1].ID}
	}
	lastYear := time.Now().AddDate(-1, 0, 0).UTC().Truncate(24 * time.Hour)
	lastMonth := time.Now().AddDate(0, -1, 0).UTC().Truncate(24 * time.Hour)

	return []coupon.Coupon{
		{Code: "WELCOME10", Type: coupon.TypePercent, Discount: decimal.NewFromInt(10), Quantity: 1000},
		{Code: "FIVEOFF", Type: coupon.TypeCurrency, Discount: decimal.NewFromInt(5), Quantity: 500, Recursive: true},
		{Code: "VIPFREE", Type: coupon.TypeFree, Quantity: 5, ClientIDs: vip},
		{Code: "MUG20", Type: coupon.TypePercent, Discount: decimal.NewFromInt(20), Quantity: 100, ProductIDs: productIDs("Ceramic Mug")},
		{
			Code: "BEANS3", Type: coupon.TypeCurrency, Discount: decimal.NewFromInt(3), Quantity: 50, Recursive: true,
			ClientIDs: regular, ProductIDs: productIDs("Espresso Beans 1kg", "Cold Brew Concentrate"),
		},
		{Code: "LASTYEAR", Type: coupon.TypePercent, Discount: decimal.NewFromInt(50), Quantity: 10, ValidFrom: &lastYear, ValidUntil: &lastMonth},
	}
}

func seedCoupons(ctx context.Context, pool *pgxpool.Pool, users []user.User, products map[string]product.Product) error {
	svc := coupon.NewService(postgres.NewCouponRepository(pool), postgres.NewCouponStore(pool))
	for _, c := range demoCoupons(users, products) {
		_, err := svc.GetByCode(ctx, c.Code)
		switch {
		case err == nil:
			slog.Info("coupon exists", slog.String("code", c.Code))
			continue
		case !errors.Is(err, coupon.ErrNotFound):
			return errors.Wrapf(err, "find coupon %s", c.Code)
		}

		created, err := svc.Create(ctx, c)
		if err != nil {
			return errors.Wrapf(err, "create coupon %s", c.Code)
		}
		slog.Info("created coupon",
			slog.String("code", created.Code),
			slog.String("type", string(created.Type)),
			slog.String("scope", string(created.Scope)),
		)
	}
	return nil
}

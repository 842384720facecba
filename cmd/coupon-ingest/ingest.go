package main

import (
	"bufio"
	"context"
	"log/slog"
	"math/bits"
	"os"
	"strconv"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/coupon"
)

const (
	dupFirst = "first"
	dupSkip  = "skip"

	bloomFPR      = 0.001
	progressEvery = 1_000_000
	// maxFiles bounds the per-code file bitmask.
	maxFiles = bits.UintSize
)

type options struct {
	files       []string
	onDuplicate string
	expected    uint
	batch       int
	defaults    coupon.Coupon
}

func (o *options) validate() error {
	switch {
	case len(o.files) == 0:
		return errors.New("no input files given")
	case len(o.files) > maxFiles:
		return errors.Errorf("at most %d files per run", maxFiles)
	case o.onDuplicate != dupFirst && o.onDuplicate != dupSkip:
		return errors.Errorf("unknown duplicate policy %q", o.onDuplicate)
	case o.batch <= 0:
		return errors.New("batch must be positive")
	case o.expected == 0:
		return errors.New("expected must be positive")
	}
	sample := o.defaults
	sample.Code = "SAMPLE"
	if err := sample.Validate(); err != nil {
		return errors.Wrap(err, "defaults")
	}
	return nil
}

// parseLine reads CODE[,type,discount,quantity]. Missing trailing fields come
// from def.
func parseLine(line string, def coupon.Coupon) (coupon.Coupon, error) {
	fields := strings.Split(line, ",")
	if len(fields) > 4 {
		return coupon.Coupon{}, errors.Errorf("%d fields, want at most 4", len(fields))
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	c := coupon.Coupon{
		Code:     coupon.NormalizeCode(fields[0]),
		Type:     def.Type,
		Discount: def.Discount,
		Quantity: def.Quantity,
		Scope:    coupon.ScopeAll,
	}
	if len(fields) > 1 && fields[1] != "" {
		c.Type = coupon.Type(strings.ToLower(fields[1]))
	}
	if len(fields) > 2 && fields[2] != "" {
		d, err := decimal.NewFromString(fields[2])
		if err != nil {
			return coupon.Coupon{}, errors.Errorf("discount %q is not a number", fields[2])
		}
		c.Discount = d
	}
	if len(fields) > 3 && fields[3] != "" {
		q, err := strconv.Atoi(fields[3])
		if err != nil {
			return coupon.Coupon{}, errors.Errorf("quantity %q is not an integer", fields[3])
		}
		c.Quantity = q
	}
	if err := c.Validate(); err != nil {
		return coupon.Coupon{}, err
	}
	return c, nil
}

// codeOf returns the normalized code of a line without parsing the rest.
func codeOf(line string) string {
	code, _, _ := strings.Cut(line, ",")
	return coupon.NormalizeCode(code)
}

// streamGzFile calls fn with every non-blank line of a gzip file and its
// 1-based line number.
func streamGzFile(ctx context.Context, path string, fn func(n int, line string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	n := 0
	for scanner.Scan() {
		n++
		if n%progressEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			slog.Info("progress", slog.String("file", path), slog.Int("lines", n))
		}
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := fn(n, line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return ctx.Err()
}

// buildFilters creates one bloom filter of codes per file, concurrently.
func buildFilters(ctx context.Context, files []string, expected uint) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(expected, bloomFPR)
			err := streamGzFile(ctx, path, func(_ int, line string) error {
				filter.AddString(codeOf(line))
				return nil
			})
			if err != nil {
				return errors.Wrapf(err, "file %d", i+1)
			}
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// findDuplicates returns the codes that occur in at least two files, each
// mapped to the bitmask of files holding it. Every file marks its own bit
// only for codes another file's filter may hold, so a mask with two bits set
// is proof and filter false positives drop out.
func findDuplicates(ctx context.Context, files []string, filters []*bloom.BloomFilter) (map[string]uint, error) {
	masks := make([]map[string]uint, len(files))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			own := uint(1) << uint(i)
			found := make(map[string]uint)
			err := streamGzFile(ctx, path, func(_ int, line string) error {
				code := codeOf(line)
				for j, f := range filters {
					if j != i && f.TestString(code) {
						found[code] = own
						break
					}
				}
				return nil
			})
			if err != nil {
				return errors.Wrapf(err, "file %d", i+1)
			}
			masks[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint)
	for _, m := range masks {
		for code, bit := range m {
			merged[code] |= bit
		}
	}
	for code, mask := range merged {
		if bits.OnesCount(mask) < 2 {
			delete(merged, code)
		}
	}
	return merged, nil
}

// ingester stores coupons, skipping codes that already exist.
type ingester interface {
	Ingest(ctx context.Context, coupons []coupon.Coupon) (int, error)
}

type stats struct {
	read     int
	inserted int
	invalid  int
	skipped  int
}

// load streams the files in order and writes valid coupons in batches.
// Files are read sequentially so the first file's definition of a
// duplicated code is the one inserted.
func load(ctx context.Context, dst ingester, opts options, dups map[string]uint) (stats, error) {
	var st stats
	batch := make([]coupon.Coupon, 0, opts.batch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := dst.Ingest(ctx, batch)
		st.inserted += n
		batch = batch[:0]
		return err
	}

	for _, path := range opts.files {
		err := streamGzFile(ctx, path, func(n int, line string) error {
			st.read++
			c, err := parseLine(line, opts.defaults)
			if err != nil {
				st.invalid++
				slog.Warn("invalid line",
					slog.String("file", path),
					slog.Int("line", n),
					slog.String("error", err.Error()),
				)
				return nil
			}
			if _, dup := dups[c.Code]; dup && opts.onDuplicate == dupSkip {
				st.skipped++
				return nil
			}
			batch = append(batch, c)
			if len(batch) == opts.batch {
				return flush()
			}
			return nil
		})
		if err != nil {
			return st, errors.Wrapf(err, "load %s", path)
		}
	}
	if err := flush(); err != nil {
		return st, err
	}
	return st, nil
}

// Package radix sorts encoded line keys in memory with a parallel most-significant-byte
// radix sort that falls back to a comparison sort for small ranges
//
// Keys are produced by models.Line.AppendKey: text bytes in [0x20, 0x7E], the
// separator 0x1F, then four big-endian number bytes. Text digits are remapped
// to [0, TextAlphabetSize) by subtracting the separator; the separator itself
// is digit 0 and switches the subtree to full-byte digits for the number.
// Recursion stops after the fourth number byte, so depth is bounded by the
// text length plus NumberSize
package radix

import (
	"bytes"
	"context"
	"linesort/src/constants"
	"slices"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Histogram counts keys by their first text digit
type Histogram []int64

// NewHistogram returns an empty first-digit histogram
func NewHistogram() Histogram {
	return make(Histogram, constants.TextAlphabetSize)
}

// Add counts key
func (h Histogram) Add(key []byte) {
	h[key[0]-constants.Separator]++
}

// Merge adds the counts of other into h
func (h Histogram) Merge(other Histogram) {
	for d, c := range other {
		h[d] += c
	}
}

// Options configures a Sorter
type Options struct {
	// Workers is the size of the worker pool. Defaults to 1
	Workers int

	// Logger defaults to a no-op logger
	Logger *zap.Logger
}

// Sorter sorts batches of keys. It holds no per-sort state and can run several sorts at once
type Sorter struct {
	workers int
	logger  *zap.Logger
}

// New creates a Sorter
func New(opts *Options) *Sorter {
	s := &Sorter{workers: 1, logger: zap.NewNop()}
	if opts != nil {
		if opts.Workers > 0 {
			s.workers = opts.Workers
		}
		if opts.Logger != nil {
			s.logger = opts.Logger
		}
	}
	return s
}

// Sort orders keys in place byte-wise, which is line order for encoded keys
// histogram, when it has TextAlphabetSize entries, must be the first-digit counts of keys
// and saves the first counting pass; pass nil to have it computed
//
// On cancellation Sort returns the context error after all workers have
// stopped; keys is then a permutation of its input in no particular order
func (s *Sorter) Sort(ctx context.Context, keys [][]byte, histogram Histogram) error {
	if len(keys) <= constants.ComparisonSortThreshold {
		slices.SortFunc(keys, bytes.Compare)
		return ctx.Err()
	}
	if len(histogram) != constants.TextAlphabetSize {
		histogram = nil
	}

	var jobs atomic.Int64
	root := job{right: len(keys), alphabet: constants.TextAlphabetSize}
	children, err := s.split(ctx, keys, root, histogram)
	if err != nil {
		return err
	}
	jobs.Add(1)

	q := newJobQueue(s.workers)
	q.push(children...)

	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, q.close)
	defer stop()

	for range s.workers {
		g.Go(func() error {
			for {
				j, ok := q.pop()
				if !ok {
					return gctx.Err()
				}
				children, err := s.split(gctx, keys, j, nil)
				if err != nil {
					return err
				}
				jobs.Add(1)
				q.push(children...)
			}
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	s.logger.Debug("Sort: sorted batch",
		zap.Int("keys", len(keys)),
		zap.Int64("jobs", jobs.Load()),
		zap.Int("workers", s.workers),
	)
	return ctx.Err()
}

// split partitions keys[j.left:j.right] by the digit at j.depth and returns the
// buckets that still need work. Buckets of at most ComparisonSortThreshold keys
// are sorted on the spot
func (s *Sorter) split(ctx context.Context, keys [][]byte, j job, hist Histogram) ([]job, error) {
	a := keys[j.left:j.right]

	if hist == nil {
		var err error
		if hist, err = s.histogram(ctx, a, j); err != nil {
			return nil, err
		}
	}

	// exclusive prefix sums; after scatter each cursor sits at the end of its bucket
	cursors := make([]int64, len(hist))
	var sum int64
	nonEmpty := 0
	for d, c := range hist {
		cursors[d] = sum
		sum += c
		if c > 0 {
			nonEmpty++
		}
	}

	if nonEmpty > 1 {
		if err := s.scatter(ctx, a, j, cursors); err != nil {
			return nil, err
		}
	} else {
		// a single bucket is already in place
		for d, c := range hist {
			cursors[d] += c
		}
	}

	var children []job
	for d, c := range hist {
		if c == 0 {
			continue
		}

		child := job{
			left:       j.left + int(cursors[d]-c),
			right:      j.left + int(cursors[d]),
			depth:      j.depth + 1,
			alphabet:   constants.TextAlphabetSize,
			numberByte: 0,
		}
		if j.alphabet == constants.NumberAlphabetSize {
			child.alphabet = constants.NumberAlphabetSize
			child.numberByte = j.numberByte + 1
		} else if d == 0 {
			child.alphabet = constants.NumberAlphabetSize
		}

		switch {
		case child.size() < 2, child.numberByte == constants.NumberSize:
			// nothing left to order
		case child.size() <= constants.ComparisonSortThreshold:
			slices.SortFunc(keys[child.left:child.right], bytes.Compare)
		default:
			children = append(children, child)
		}
	}
	return children, nil
}

// digit returns the partitioning digit of key for job j
func (j job) digit(key []byte) int {
	if j.alphabet == constants.NumberAlphabetSize {
		return int(key[j.depth])
	}
	return int(key[j.depth] - constants.Separator)
}

// histogram counts the digits of a. Large ranges are counted in parallel
// chunks whose totals are added atomically
func (s *Sorter) histogram(ctx context.Context, a [][]byte, j job) (Histogram, error) {
	hist := make(Histogram, j.alphabet)

	if len(a) < constants.ParallelRangeThreshold || s.workers == 1 {
		for i, key := range a {
			if i%constants.CancelCheckInterval == 0 && ctx.Err() != nil {
				return nil, ctx.Err()
			}
			hist[j.digit(key)]++
		}
		return hist, nil
	}

	err := s.parallelRange(ctx, len(a), func(ctx context.Context, lo, hi int) error {
		local := make([]int64, j.alphabet)
		for i, key := range a[lo:hi] {
			if i%constants.CancelCheckInterval == 0 && ctx.Err() != nil {
				return ctx.Err()
			}
			local[j.digit(key)]++
		}
		for d, c := range local {
			if c > 0 {
				atomic.AddInt64(&hist[d], c)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return hist, nil
}

// scatter moves every key of a to its bucket through a fresh destination
// buffer, then copies the buffer back over a. Each destination slot is claimed
// by advancing its bucket cursor, atomically when running in parallel
// On error a is left untouched
func (s *Sorter) scatter(ctx context.Context, a [][]byte, j job, cursors []int64) error {
	dest := make([][]byte, len(a))

	if len(a) < constants.ParallelRangeThreshold || s.workers == 1 {
		for i, key := range a {
			if i%constants.CancelCheckInterval == 0 && ctx.Err() != nil {
				return ctx.Err()
			}
			d := j.digit(key)
			dest[cursors[d]] = key
			cursors[d]++
		}
	} else {
		err := s.parallelRange(ctx, len(a), func(ctx context.Context, lo, hi int) error {
			for i, key := range a[lo:hi] {
				if i%constants.CancelCheckInterval == 0 && ctx.Err() != nil {
					return ctx.Err()
				}
				slot := atomic.AddInt64(&cursors[j.digit(key)], 1) - 1
				dest[slot] = key
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	copy(a, dest)
	return nil
}

// parallelRange splits [0, n) into one chunk per worker and runs fn on each concurrently
func (s *Sorter) parallelRange(ctx context.Context, n int, fn func(ctx context.Context, lo, hi int) error) error {
	chunk := (n + s.workers - 1) / s.workers
	g, gctx := errgroup.WithContext(ctx)
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() error {
			return fn(gctx, lo, hi)
		})
	}
	return g.Wait()
}

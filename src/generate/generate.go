// Package generate creates test files of random "{number}. {text}" lines of an exact size
package generate

import (
	"context"
	"errors"
	"fmt"
	"linesort/src/constants"
	"linesort/src/models"
	"linesort/src/partition"
	"linesort/src/progress"
	"linesort/src/sysinfo"
	"math/rand/v2"
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	// minLineLength is the shortest generated line: one digit, DotAndSpace, one text byte and LineFeed
	minLineLength = 1 + len(constants.DotAndSpace) + 1 + 1

	// minMaxLineLength is the smallest allowed MaxLineLength. Any block tail
	// longer than it can then be split into lines of at most MaxLineLength
	minMaxLineLength = 2 * minLineLength

	// maxDigits is the most digits of a generated number
	maxDigits = 5

	// alphabet is the set of generated text bytes
	alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
)

// Errors returned by Generate before the file is created
var (
	ErrInvalidOptions        = errors.New("invalid generator options")
	ErrInsufficientDiskSpace = errors.New("insufficient disk space")
)

// Options configures a Generator
type Options struct {
	// SysInfo answers memory, processor and disk questions. Defaults to the operating system
	SysInfo sysinfo.Provider

	// Logger defaults to a no-op logger
	Logger *zap.Logger

	// Progress receives the fraction of the file written after each part. Defaults to no-op
	Progress progress.Sink

	// MaxLineLength bounds the generated line length, terminator included. Defaults to 300
	MaxLineLength int

	// DuplicatesPercent is the chance in percent that a line repeats a duplicate pattern
	DuplicatesPercent int

	// DuplicatePatterns is the number of lines eligible for repetition
	DuplicatePatterns int

	// Seed makes the output reproducible. Zero picks a random seed
	Seed uint64
}

func (o *Options) ensureDefaults() {
	if o.SysInfo == nil {
		o.SysInfo = sysinfo.NewOS()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Progress == nil {
		o.Progress = progress.Nop{}
	}
	if o.MaxLineLength == 0 {
		o.MaxLineLength = 300
	}
	if o.Seed == 0 {
		o.Seed = rand.Uint64()
	}
}

func (o *Options) validate() error {
	if o.MaxLineLength < minMaxLineLength || o.MaxLineLength > constants.MaxLineLength {
		return fmt.Errorf("%w: max line length must be in [%d, %d], got %d",
			ErrInvalidOptions, minMaxLineLength, constants.MaxLineLength, o.MaxLineLength)
	}
	if o.DuplicatesPercent < 0 || o.DuplicatesPercent > 100 {
		return fmt.Errorf("%w: duplicates percent must be in [0, 100], got %d", ErrInvalidOptions, o.DuplicatesPercent)
	}
	if o.DuplicatePatterns < 0 {
		return fmt.Errorf("%w: duplicate patterns must not be negative, got %d", ErrInvalidOptions, o.DuplicatePatterns)
	}
	return nil
}

// Generator writes random line files. Generate may be called concurrently
type Generator struct {
	opts Options
}

// New creates a Generator. Options are validated by Generate
func New(opts *Options) *Generator {
	g := &Generator{}
	if opts != nil {
		g.opts = *opts
	}
	g.opts.ensureDefaults()
	return g
}

// Seed returns the seed in use, so a random run can be reproduced
func (g *Generator) Seed() uint64 {
	return g.opts.Seed
}

// Generate creates the file at path holding exactly size bytes of well-formed lines
// The file is filled in parallel, block by block. Every block ends on a line
// terminator, so the file is valid input for the sorter. On error or
// cancellation the file is removed
func (g *Generator) Generate(ctx context.Context, path string, size int64) error {
	if err := g.opts.validate(); err != nil {
		return fmt.Errorf("Generate: %w", err)
	}
	if size < int64(g.opts.MaxLineLength) {
		return fmt.Errorf("Generate: %w: size must be at least the max line length %d, got %d",
			ErrInvalidOptions, g.opts.MaxLineLength, size)
	}

	free, err := g.opts.SysInfo.FreeDisk(path)
	if err != nil {
		return fmt.Errorf("Generate: %w", err)
	}
	if free < uint64(size) {
		return fmt.Errorf("Generate: %w: need %d bytes, %d available", ErrInsufficientDiskSpace, size, free)
	}

	start := time.Now()
	lines, err := g.generate(ctx, path, size)
	if err != nil {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			g.opts.Logger.Warn("Generate: failed to remove partial file", zap.String("path", path), zap.Error(rmErr))
		}
		return fmt.Errorf("Generate: %w", err)
	}

	g.opts.Logger.Info("Generate: file written",
		zap.String("path", path),
		zap.Int64("size", size),
		zap.Int64("lines", lines),
		zap.Uint64("seed", g.opts.Seed),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func (g *Generator) generate(ctx context.Context, path string, size int64) (int64, error) {
	file, err := partition.Create(path, size, &partition.Options{SysInfo: g.opts.SysInfo, Logger: g.opts.Logger})
	if err != nil {
		return 0, err
	}

	parts, err := file.WriteParts()
	if err != nil {
		return 0, err
	}

	// shared read-only by every block
	patterns := g.newPatterns()

	var lines atomic.Int64
	var written int64
	for i, part := range parts.All() {
		err := part.Process(ctx, func(ctx context.Context, block models.Block, data []byte) error {
			n, err := g.fill(ctx, block, data, patterns)
			lines.Add(n)
			return err
		})
		if err != nil {
			return 0, fmt.Errorf("part %d: %w", i, err)
		}

		written += part.Size()
		g.opts.Progress.Report(float64(written) / float64(size))
	}
	return lines.Load(), nil
}

// newPatterns builds the duplicate pool from the seed alone
func (g *Generator) newPatterns() [][]byte {
	r := rand.New(rand.NewPCG(g.opts.Seed, 0))
	patterns := make([][]byte, g.opts.DuplicatePatterns)
	for i := range patterns {
		patterns[i] = randomLine(nil, r, minLineLength+r.IntN(g.opts.MaxLineLength-minLineLength+1))
	}
	return patterns
}

// fill writes lines into data until it is exactly full and returns the number of lines
// Each block draws from its own source seeded with the block ID
func (g *Generator) fill(ctx context.Context, block models.Block, data []byte, patterns [][]byte) (int64, error) {
	r := rand.New(rand.NewPCG(g.opts.Seed, uint64(block.ID)+1))
	line := make([]byte, 0, g.opts.MaxLineLength)

	var lines int64
	for pos := 0; pos < len(data); lines++ {
		if lines%constants.CancelCheckInterval == 0 && ctx.Err() != nil {
			return lines, ctx.Err()
		}
		line = g.nextLine(line[:0], r, patterns, len(data)-pos)
		pos += copy(data[pos:], line)
	}
	return lines, nil
}

// nextLine appends a line of at most MaxLineLength bytes that fits in capacity
// and leaves either nothing or room for another line
func (g *Generator) nextLine(dst []byte, r *rand.Rand, patterns [][]byte, capacity int) []byte {
	if len(patterns) > 0 && r.IntN(100) < g.opts.DuplicatesPercent {
		p := patterns[r.IntN(len(patterns))]
		if rest := capacity - len(p); rest == 0 || rest >= minLineLength {
			return append(dst, p...)
		}
	}

	length := min(minLineLength+r.IntN(g.opts.MaxLineLength-minLineLength+1), capacity)
	if rest := capacity - length; rest > 0 && rest < minLineLength {
		if capacity <= g.opts.MaxLineLength {
			length = capacity
		} else {
			length = capacity - minLineLength
		}
	}
	return randomLine(dst, r, length)
}

// randomLine appends a random line of exactly length bytes, terminator included
func randomLine(dst []byte, r *rand.Rand, length int) []byte {
	digits := 1 + r.IntN(min(length-minLineLength+1, maxDigits))
	dst = append(dst, byte('1'+r.IntN(9)))
	for range digits - 1 {
		dst = append(dst, byte('0'+r.IntN(10)))
	}
	dst = append(dst, constants.DotAndSpace...)
	for range length - digits - len(constants.DotAndSpace) - 1 {
		dst = append(dst, alphabet[r.IntN(len(alphabet))])
	}
	return append(dst, constants.LineFeed)
}

// Package validate checks that a file holds well-formed lines in sorted order
package validate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"linesort/src/constants"
	"linesort/src/models"
	"linesort/src/partition"
	"linesort/src/sysinfo"
	"slices"
	"sync/atomic"

	"go.uber.org/zap"
)

// ErrNotSorted is returned when a line sorts before the line preceding it
var ErrNotSorted = errors.New("file is not sorted")

// Options configures a Validator
type Options struct {
	// SysInfo answers memory and processor questions. Defaults to the operating system
	SysInfo sysinfo.Provider

	// Logger defaults to a no-op logger
	Logger *zap.Logger

	// LinesOnly checks the line format without checking the order
	LinesOnly bool
}

func (o *Options) ensureDefaults() {
	if o.SysInfo == nil {
		o.SysInfo = sysinfo.NewOS()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Result summarizes a successful validation
type Result struct {
	Lines int64
}

// Validator checks line files in parallel, one block per processor
type Validator struct {
	opts Options
}

// New creates a Validator
func New(opts *Options) *Validator {
	v := &Validator{}
	if opts != nil {
		v.opts = *opts
	}
	v.opts.ensureDefaults()
	return v
}

// edges are the first and last keys of a block
type edges struct {
	first, last []byte
	offset      int64
}

// Validate reads every line of the file at path
// Returns models.ErrMalformedLine for a line that is not "{number}. {text}",
// and ErrNotSorted, unless LinesOnly is set, for the first out-of-order line
// found. Order is checked inside each block and across every block boundary
func (v *Validator) Validate(ctx context.Context, path string) (Result, error) {
	file, err := partition.Open(path, &partition.Options{SysInfo: v.opts.SysInfo, Logger: v.opts.Logger})
	if err != nil {
		return Result{}, fmt.Errorf("Validate: %w", err)
	}

	parts, err := file.ReadParts(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("Validate: %w", err)
	}

	var lines atomic.Int64
	var prev edges
	for i, part := range parts.All() {
		first := part.Blocks[0].ID
		blockEdges := make([]edges, len(part.Blocks))

		err := part.Process(ctx, func(ctx context.Context, block models.Block, data []byte) error {
			e, n, err := v.checkBlock(ctx, data, block.Start)
			lines.Add(n)
			if err != nil {
				return fmt.Errorf("block %d: %w", block.ID, err)
			}
			blockEdges[block.ID-first] = e
			return nil
		})
		if err != nil {
			return Result{}, fmt.Errorf("Validate: part %d: %w", i, err)
		}

		if v.opts.LinesOnly {
			continue
		}
		for _, e := range blockEdges {
			if prev.last != nil && bytes.Compare(prev.last, e.first) > 0 {
				return Result{}, fmt.Errorf("Validate: %w: line at offset %d", ErrNotSorted, e.offset)
			}
			prev = e
		}
	}

	v.opts.Logger.Info("Validate: file checked",
		zap.String("path", path),
		zap.Int64("lines", lines.Load()),
		zap.Bool("linesOnly", v.opts.LinesOnly),
	)
	return Result{Lines: lines.Load()}, nil
}

// checkBlock parses every line of data and, unless LinesOnly is set, checks their order
// base is the file offset of data
func (v *Validator) checkBlock(ctx context.Context, data []byte, base int64) (edges, int64, error) {
	var prev, key []byte
	var e edges
	var lines int64

	for offset := 0; offset < len(data); lines++ {
		if lines%constants.CancelCheckInterval == 0 && ctx.Err() != nil {
			return edges{}, lines, ctx.Err()
		}

		line := data[offset:]
		next := len(data)
		if end := bytes.IndexByte(line, constants.LineFeed); end != -1 {
			line = line[:end]
			next = offset + end + 1
		}
		line = bytes.TrimSuffix(line, []byte{constants.CarriageReturn})

		var err error
		key, err = models.AppendKeyFromDisplay(key[:0], line)
		if err != nil {
			return edges{}, lines, fmt.Errorf("line at offset %d: %w", base+int64(offset), err)
		}

		if !v.opts.LinesOnly {
			if prev != nil && bytes.Compare(prev, key) > 0 {
				return edges{}, lines, fmt.Errorf("%w: line at offset %d", ErrNotSorted, base+int64(offset))
			}
			if e.first == nil {
				e.first = slices.Clone(key)
				e.offset = base + int64(offset)
			}
			prev, key = key, prev
		}
		offset = next
	}

	if prev != nil {
		e.last = slices.Clone(prev)
	}
	return e, lines, nil
}

// Package merge writes sorted batches of keys to disk, merging them with the
// previously written sorted run
package merge

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"linesort/src/constants"
	"linesort/src/models"
	"linesort/src/partition"
	"linesort/src/sysinfo"
	"os"

	"go.uber.org/zap"
)

// ioBufferSize is the buffer size of the run reader and the target writer
const ioBufferSize = 1 << 20

// Options configures a Merger
type Options struct {
	// SysInfo sets the parallelism of first-pass writes. Defaults to the operating system
	SysInfo sysinfo.Provider

	// Logger defaults to a no-op logger
	Logger *zap.Logger
}

// Merger combines a sorted in-memory batch with a sorted run file
type Merger struct {
	sys    sysinfo.Provider
	logger *zap.Logger
}

// New creates a Merger
func New(opts *Options) *Merger {
	m := &Merger{}
	if opts != nil {
		m.sys = opts.SysInfo
		m.logger = opts.Logger
	}
	if m.sys == nil {
		m.sys = sysinfo.NewOS()
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	return m
}

// Merge writes every line of batch and of the run at runPath to target in line order
// batch must be sorted keys and the run must be sorted; neither is re-checked
// With an empty runPath the batch alone is written. Otherwise lines that
// compare equal are taken from the run first, and the run is removed once
// target is complete
//
// On error or cancellation target may be left truncated; removing it is up to the caller
func (m *Merger) Merge(ctx context.Context, batch [][]byte, runPath, target string) error {
	if runPath == "" {
		if err := m.write(ctx, batch, target); err != nil {
			return fmt.Errorf("Merge: %w", err)
		}
		return nil
	}

	if err := m.mergeRun(ctx, batch, runPath, target); err != nil {
		return fmt.Errorf("Merge: %w", err)
	}

	if err := os.Remove(runPath); err != nil {
		return fmt.Errorf("Merge: failed to remove run %v: %w", runPath, err)
	}
	return nil
}

// write serializes batch into a pre-allocated target, one block per processor,
// each block starting on a line boundary computed from the display lengths
func (m *Merger) write(ctx context.Context, batch [][]byte, target string) error {
	if len(batch) == 0 {
		if err := os.WriteFile(target, nil, 0644); err != nil {
			return fmt.Errorf("write: %w", err)
		}
		return nil
	}

	workers := max(1, m.sys.ProcessorCount())
	perBlock := (len(batch) + workers - 1) / workers

	// firstLine[k] is the batch index written first by block k
	var firstLine []int
	var offsets []int64
	var size int64
	for i, key := range batch {
		if i%perBlock == 0 {
			firstLine = append(firstLine, i)
			offsets = append(offsets, size)
		}
		size += int64(models.DisplayLen(key))
	}

	file, err := partition.Create(target, size, &partition.Options{SysInfo: m.sys, Logger: m.logger})
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}

	blocks := partition.BlocksFromOffsets(offsets, size)
	err = file.Process(ctx, blocks, func(ctx context.Context, block models.Block, data []byte) error {
		line := make([]byte, 0, constants.MaxLineLength)
		pos := 0
		for i := firstLine[block.ID]; pos < len(data) && i < len(batch); i++ {
			if i%constants.CancelCheckInterval == 0 && ctx.Err() != nil {
				return ctx.Err()
			}
			var err error
			if line, err = models.AppendDisplayFromKey(line[:0], batch[i]); err != nil {
				return err
			}
			line = append(line, constants.LineFeed)
			pos += copy(data[pos:], line)
		}
		if pos != len(data) {
			return fmt.Errorf("block %d: wrote %d of %d bytes", block.ID, pos, len(data))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}

	m.logger.Debug("write: batch written",
		zap.String("target", target),
		zap.Int("lines", len(batch)),
		zap.Int64("bytes", size),
		zap.Int("blocks", len(blocks)),
	)
	return nil
}

// mergeRun streams the run and the batch into target
func (m *Merger) mergeRun(ctx context.Context, batch [][]byte, runPath, target string) error {
	run, err := os.Open(runPath)
	if err != nil {
		return fmt.Errorf("mergeRun: failed to open run: %w", err)
	}
	defer run.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("mergeRun: failed to create target: %w", err)
	}
	defer out.Close()

	scanner := bufio.NewScanner(bufio.NewReaderSize(run, ioBufferSize))
	scanner.Buffer(make([]byte, 0, constants.SearchWindowSize), bufio.MaxScanTokenSize)
	writer := bufio.NewWriterSize(out, ioBufferSize)

	var diskKey []byte
	nextDisk := func() (bool, error) {
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return false, fmt.Errorf("mergeRun: failed to read run: %w", err)
			}
			return false, nil
		}
		var err error
		diskKey, err = models.AppendKeyFromDisplay(diskKey[:0], bytes.TrimSuffix(scanner.Bytes(), []byte{constants.CarriageReturn}))
		if err != nil {
			return false, fmt.Errorf("mergeRun: %w", err)
		}
		return true, nil
	}

	hasDisk, err := nextDisk()
	if err != nil {
		return err
	}

	line := make([]byte, 0, constants.MaxLineLength)
	var fromDisk, fromBatch int
	i := 0
	for step := 0; hasDisk || i < len(batch); step++ {
		if step%constants.CancelCheckInterval == 0 && ctx.Err() != nil {
			return ctx.Err()
		}

		// equal keys come from the run first
		takeDisk := hasDisk && (i == len(batch) || bytes.Compare(diskKey, batch[i]) <= 0)
		if takeDisk {
			line, err = models.AppendDisplayFromKey(line[:0], diskKey)
		} else {
			line, err = models.AppendDisplayFromKey(line[:0], batch[i])
		}
		if err != nil {
			return fmt.Errorf("mergeRun: %w", err)
		}

		line = append(line, constants.LineFeed)
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("mergeRun: failed to write target: %w", err)
		}

		if takeDisk {
			fromDisk++
			if hasDisk, err = nextDisk(); err != nil {
				return err
			}
		} else {
			fromBatch++
			i++
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("mergeRun: failed to flush target: %w", err)
	}
	if err := out.Sync(); err != nil {
		return fmt.Errorf("mergeRun: failed to sync target: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("mergeRun: failed to close target: %w", err)
	}

	m.logger.Debug("mergeRun: run merged",
		zap.String("run", runPath),
		zap.String("target", target),
		zap.Int("fromRun", fromDisk),
		zap.Int("fromBatch", fromBatch),
	)
	return nil
}

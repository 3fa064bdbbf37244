// Package sorter implements the external sort of line files larger than memory
// It loads the input one memory-bounded part at a time, sorts the part in
// memory and merges it into the sorted run produced by the previous parts
package sorter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"linesort/src/constants"
	"linesort/src/merge"
	"linesort/src/partition"
	"linesort/src/progress"
	"linesort/src/radix"
	"linesort/src/sysinfo"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Errors returned before any file is created
var (
	ErrInsufficientDiskSpace = errors.New("insufficient disk space")
	ErrBusy                  = errors.New("sort already in progress")
)

// Options configures a Sorter
type Options struct {
	// SysInfo answers memory, processor and disk questions. Defaults to the operating system
	SysInfo sysinfo.Provider

	// Logger defaults to a no-op logger
	Logger *zap.Logger

	// Progress receives the fraction of the input processed after each part. Defaults to no-op
	Progress progress.Sink

	// SmallFileThreshold is the input size at or below which the file is sorted
	// in one go without partitioning. Zero means constants.SmallFileThreshold,
	// a negative value disables the shortcut
	SmallFileThreshold int64
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
	if o.SmallFileThreshold == 0 {
		o.SmallFileThreshold = constants.SmallFileThreshold
	}
}

// Sorter sorts files whose lines have the form "{number}. {text}" by text and then number
// One Sorter runs one sort at a time; Cancel may be called from any goroutine
type Sorter struct {
	opts   Options
	radix  *radix.Sorter
	merger *merge.Merger

	// mu protects state, cancel and outputPath
	mu sync.Mutex

	// state is the current step of the running or last sort
	state State

	// cancel stops the running sort
	cancel context.CancelFunc

	// outputPath is set once a sort is Done
	outputPath string
}

// New creates a Sorter
func New(opts *Options) *Sorter {
	s := &Sorter{}
	if opts != nil {
		s.opts = *opts
	}
	s.opts.ensureDefaults()

	s.radix = radix.New(&radix.Options{
		Workers: s.opts.SysInfo.ProcessorCount(),
		Logger:  s.opts.Logger,
	})
	s.merger = merge.New(&merge.Options{
		SysInfo: s.opts.SysInfo,
		Logger:  s.opts.Logger,
	})
	return s
}

// Sort writes the sorted lines of inputPath to a new file next to it and returns its path
// The input is never modified. The output is named after the input with
// SortedFileSuffix, numbered "(n)" if that name is taken
//
// Returns ErrInsufficientDiskSpace before creating anything if the disk cannot
// hold two copies of the input, models.ErrMalformedLine if any line is not
// well-formed, and the context error if cancelled. On any error every file
// this sort created is removed
func (s *Sorter) Sort(ctx context.Context, inputPath string) (string, error) {
	s.mu.Lock()
	if s.state.running() {
		s.mu.Unlock()
		return "", ErrBusy
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.state = Partitioning
	s.outputPath = ""
	s.mu.Unlock()
	defer cancel()

	start := time.Now()
	outputPath, err := s.run(ctx, inputPath)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel = nil

	switch {
	case err == nil:
		s.state = Done
		s.outputPath = outputPath
		s.opts.Logger.Info("Sort: completed",
			zap.String("input", inputPath),
			zap.String("output", outputPath),
			zap.Duration("elapsed", time.Since(start)),
		)
		return outputPath, nil
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		s.state = Cancelled
		s.opts.Logger.Warn("Sort: cancelled", zap.String("input", inputPath))
	default:
		s.state = Failed
	}
	return "", err
}

// Cancel stops the running sort, if any. It does not wait for the sort to unwind
func (s *Sorter) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
}

// State returns the current step of the running or last sort
func (s *Sorter) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OutputPath returns the sorted file of the last sort, or "" unless it is Done
func (s *Sorter) OutputPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outputPath
}

func (s *Sorter) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Sorter) run(ctx context.Context, inputPath string) (string, error) {
	info, err := os.Stat(inputPath)
	if err != nil {
		return "", fmt.Errorf("Sort: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("Sort: %v is a directory", inputPath)
	}
	size := info.Size()

	free, err := s.opts.SysInfo.FreeDisk(inputPath)
	if err != nil {
		return "", fmt.Errorf("Sort: %w", err)
	}
	if need := uint64(size) * constants.DiskSpaceFactor; free < need {
		return "", fmt.Errorf("Sort: %w: need %d bytes, %d available", ErrInsufficientDiskSpace, need, free)
	}

	outputPath := SortedPath(inputPath)
	s.opts.Logger.Info("Sort: started",
		zap.String("input", inputPath),
		zap.Int64("size", size),
		zap.String("output", outputPath),
	)

	if s.opts.SmallFileThreshold > 0 && size <= s.opts.SmallFileThreshold {
		err = s.sortSmall(ctx, inputPath, outputPath)
	} else {
		err = s.sortParts(ctx, inputPath, outputPath, size)
	}
	if err != nil {
		return "", err
	}

	s.opts.Progress.Report(1)
	return outputPath, nil
}

// sortSmall reads the whole input, sorts it with a comparison sort and writes the output directly
func (s *Sorter) sortSmall(ctx context.Context, inputPath, outputPath string) error {
	s.setState(Loading)
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("sortSmall: %w", err)
	}

	keys, _, err := parseLines(ctx, data, 0)
	if err != nil {
		return fmt.Errorf("sortSmall: %w", err)
	}

	s.setState(Sorting)
	slices.SortFunc(keys, bytes.Compare)

	s.setState(Merging)
	if err := s.merger.Merge(ctx, keys, "", outputPath); err != nil {
		s.remove(outputPath)
		return fmt.Errorf("sortSmall: %w", err)
	}
	return nil
}

// sortParts sorts the input part by part, merging each sorted part into the running run
// Intermediate runs are named after the output with RunFileExt and the part
// number; the last part merges straight into the output. At most one complete
// run exists at any time and the previous one is only removed after the next is complete
func (s *Sorter) sortParts(ctx context.Context, inputPath, outputPath string, size int64) error {
	file, err := partition.Open(inputPath, &partition.Options{SysInfo: s.opts.SysInfo, Logger: s.opts.Logger})
	if err != nil {
		return fmt.Errorf("sortParts: %w", err)
	}

	parts, err := file.ReadParts(ctx)
	if err != nil {
		return fmt.Errorf("sortParts: %w", err)
	}
	total := parts.Len()
	s.opts.Logger.Info("sortParts: input partitioned",
		zap.Int("parts", total),
		zap.Int("blocks", len(parts.Blocks())),
	)

	if total == 0 {
		s.setState(Merging)
		if err := s.merger.Merge(ctx, nil, "", outputPath); err != nil {
			s.remove(outputPath)
			return fmt.Errorf("sortParts: %w", err)
		}
		return nil
	}

	var run string
	var processed int64
	for i, part := range parts.All() {
		target := outputPath
		if i < total-1 {
			target = fmt.Sprintf("%s%s%d", outputPath, constants.RunFileExt, i)
		}

		if err := s.sortPart(ctx, part, run, target); err != nil {
			s.remove(target, run)
			return fmt.Errorf("sortParts: part %d: %w", i, err)
		}
		run = target

		processed += part.Size()
		s.opts.Progress.Report(float64(processed) / float64(size))
		s.opts.Logger.Info("sortParts: part merged",
			zap.Int("part", i),
			zap.Int("of", total),
			zap.String("run", run),
		)
	}
	return nil
}

// sortPart loads, sorts and merges one part. The loaded batch is released when it returns
func (s *Sorter) sortPart(ctx context.Context, part partition.Part, run, target string) error {
	s.setState(Loading)
	batch, hist, err := load(ctx, part)
	if err != nil {
		return err
	}

	s.setState(Sorting)
	if err := s.radix.Sort(ctx, batch, hist); err != nil {
		return err
	}

	s.setState(Merging)
	return s.merger.Merge(ctx, batch, run, target)
}

// remove deletes files owned by a failed or cancelled sort
func (s *Sorter) remove(paths ...string) {
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.opts.Logger.Warn("remove: failed to delete file", zap.String("path", path), zap.Error(err))
		}
	}
}

// SortedPath returns the output path for inputPath: the input name with
// SortedFileSuffix before the extension, numbered "(n)" while that name is taken
func SortedPath(inputPath string) string {
	dir := filepath.Dir(inputPath)
	ext := filepath.Ext(inputPath)
	name := strings.TrimSuffix(filepath.Base(inputPath), ext) + constants.SortedFileSuffix

	path := filepath.Join(dir, name+ext)
	for n := 1; exists(path); n++ {
		path = filepath.Join(dir, fmt.Sprintf("%s(%d)%s", name, n, ext))
	}
	return path
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

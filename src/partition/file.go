// Package partition splits large files into line-aligned blocks and runs one task per block
// over a single memory mapping of the file
package partition

import (
	"context"
	"errors"
	"fmt"
	"linesort/src/models"
	"linesort/src/sysinfo"
	"math"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

// Errors returned by File operations
var (
	ErrReadOnly     = errors.New("file opened read-only")
	ErrInvalidSize  = errors.New("file size must be positive")
	ErrSizeChanged  = errors.New("file size changed since open")
	ErrInvalidBlock = errors.New("block outside file bounds")
)

// Options configures a File
type Options struct {
	// SysInfo answers memory and processor questions for part sizing
	// Defaults to the operating system
	SysInfo sysinfo.Provider

	// Logger defaults to a no-op logger
	Logger *zap.Logger
}

func (o *Options) ensureDefaults() {
	if o.SysInfo == nil {
		o.SysInfo = sysinfo.NewOS()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// BlockFunc processes the bytes of one block. data is a view of exactly [block.Start, block.End)
// and is only valid until the function returns
// For files from Create the view is writable
type BlockFunc func(ctx context.Context, block models.Block, data []byte) error

// File is a file on disk processed block by block through a memory mapping
type File struct {
	path     string
	size     int64
	writable bool
	opts     Options
}

// Open prepares an existing file for parallel reading
func Open(path string, opts *Options) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("Open: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("Open: %v is a directory", path)
	}

	return newFile(path, info.Size(), false, opts), nil
}

// Create creates (or replaces) the file at path, pre-allocates size bytes on disk
// and prepares it for parallel writing
// The directory must already exist
func Create(path string, size int64, opts *Options) (*File, error) {
	if size <= 0 {
		return nil, fmt.Errorf("Create: %w, got %d", ErrInvalidSize, size)
	}

	dir := filepath.Dir(path)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("Create: directory %v does not exist", dir)
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("Create: failed to remove existing file: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("Create: %w", err)
	}

	if err := allocate(file, size); err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("Create: failed to allocate %d bytes: %w", size, err)
	}

	if err := file.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("Create: %w", err)
	}

	return newFile(path, size, true, opts), nil
}

func newFile(path string, size int64, writable bool, opts *Options) *File {
	f := &File{path: path, size: size, writable: writable}
	if opts != nil {
		f.opts = *opts
	}
	f.opts.ensureDefaults()
	return f
}

// Path returns the path of the file
func (f *File) Path() string {
	return f.path
}

// Size returns the size of the file in bytes
func (f *File) Size() int64 {
	return f.size
}

// Process maps the file once and runs fn concurrently, one task per block
// It returns after every task has finished. The first error cancels the
// context passed to the remaining tasks and is returned
// Nothing written before a failure is rolled back
func (f *File) Process(ctx context.Context, blocks []models.Block, fn BlockFunc) error {
	if len(blocks) == 0 {
		return nil
	}
	for _, b := range blocks {
		if b.Start < 0 || b.End > f.size || b.Start > b.End {
			return fmt.Errorf("Process: %w: [%d, %d) of %d", ErrInvalidBlock, b.Start, b.End, f.size)
		}
	}

	m, err := f.mapFile()
	if err != nil {
		return fmt.Errorf("Process: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, b := range blocks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, b, m.data[b.Start:b.End:b.End])
		})
	}

	err = g.Wait()
	if closeErr := m.close(); closeErr != nil {
		err = errors.Join(err, fmt.Errorf("Process: %w", closeErr))
	}
	return err
}

// mapping is one open mmap of a whole file
type mapping struct {
	file     *os.File
	data     []byte
	writable bool
}

// mapFile opens and maps the whole file. Empty files get a mapping with no data
func (f *File) mapFile() (*mapping, error) {
	flag, prot := os.O_RDONLY, unix.PROT_READ
	if f.writable {
		flag, prot = os.O_RDWR, unix.PROT_READ|unix.PROT_WRITE
	}

	file, err := os.OpenFile(f.path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("mapFile: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("mapFile: failed to stat: %w", err)
	}
	if info.Size() != f.size {
		file.Close()
		return nil, fmt.Errorf("mapFile: %w: %d, expected %d", ErrSizeChanged, info.Size(), f.size)
	}

	m := &mapping{file: file, writable: f.writable}
	if f.size == 0 {
		return m, nil
	}
	if f.size > math.MaxInt {
		file.Close()
		return nil, fmt.Errorf("mapFile: file too large to map (%d bytes)", f.size)
	}

	data, err := unix.Mmap(int(file.Fd()), 0, int(f.size), prot, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("mapFile: mmap: %w", err)
	}
	m.data = data

	// blocks are walked front to back
	_ = unix.Madvise(m.data, unix.MADV_SEQUENTIAL)

	return m, nil
}

// close flushes writable mappings, unmaps and closes the file. Safe to call twice
func (m *mapping) close() error {
	var errs []error

	if m.data != nil {
		if m.writable {
			if err := unix.Msync(m.data, unix.MS_SYNC); err != nil {
				errs = append(errs, fmt.Errorf("msync: %w", err))
			}
		}
		if err := unix.Munmap(m.data); err != nil {
			errs = append(errs, fmt.Errorf("munmap: %w", err))
		}
		m.data = nil
	}

	if m.file != nil {
		if err := m.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close: %w", err))
		}
		m.file = nil
	}

	return errors.Join(errs...)
}

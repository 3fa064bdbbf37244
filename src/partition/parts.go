package partition

import (
	"bytes"
	"context"
	"fmt"
	"iter"
	"linesort/src/constants"
	"linesort/src/models"
	"slices"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Part is a group of blocks processed together, at most one per processor
type Part struct {
	ID     int
	Blocks []models.Block
	file   *File
}

// Process runs fn over every block of the part concurrently
func (p Part) Process(ctx context.Context, fn BlockFunc) error {
	return p.file.Process(ctx, p.Blocks, fn)
}

// Size returns the number of bytes covered by the part
func (p Part) Size() int64 {
	var n int64
	for _, b := range p.Blocks {
		n += b.Len()
	}
	return n
}

// Parts is the split of a whole file into parts. Parts are built on demand while iterating
type Parts struct {
	file    *File
	blocks  []models.Block
	perPart int
}

// Len returns the number of parts
func (p *Parts) Len() int {
	return (len(p.blocks) + p.perPart - 1) / p.perPart
}

// Blocks returns every block of every part in file order
func (p *Parts) Blocks() []models.Block {
	return slices.Clone(p.blocks)
}

// All yields the parts in file order. It can be ranged over more than once
func (p *Parts) All() iter.Seq2[int, Part] {
	return func(yield func(int, Part) bool) {
		for i := 0; i*p.perPart < len(p.blocks); i++ {
			lo := i * p.perPart
			hi := min(lo+p.perPart, len(p.blocks))
			if !yield(i, Part{ID: i, Blocks: p.blocks[lo:hi:hi], file: p.file}) {
				return
			}
		}
	}
}

// ReadParts splits the file into line-aligned blocks grouped into parts small
// enough that one loaded part fits in available memory
//
// Candidate boundaries are spaced evenly; each is moved forward to the start
// of the next line, searching at most SearchWindowSize bytes. A candidate with
// no line terminator in its window is dropped and its range joins the previous block
func (f *File) ReadParts(ctx context.Context) (*Parts, error) {
	count, perPart, err := f.layout()
	if err != nil {
		return nil, fmt.Errorf("ReadParts: %w", err)
	}

	blocks, err := f.readBlocks(ctx, count)
	if err != nil {
		return nil, fmt.Errorf("ReadParts: %w", err)
	}

	f.opts.Logger.Debug("ReadParts: file split",
		zap.String("path", f.path),
		zap.Int64("size", f.size),
		zap.Int("candidates", count),
		zap.Int("blocks", len(blocks)),
		zap.Int("blocksPerPart", perPart),
	)
	return &Parts{file: f, blocks: blocks, perPart: perPart}, nil
}

// WriteParts splits a file from Create into evenly sized blocks grouped into parts
// Line boundaries are the writer's responsibility
func (f *File) WriteParts() (*Parts, error) {
	if !f.writable {
		return nil, fmt.Errorf("WriteParts: %w", ErrReadOnly)
	}

	count, perPart, err := f.layout()
	if err != nil {
		return nil, fmt.Errorf("WriteParts: %w", err)
	}

	step := f.size / int64(count)
	blocks := make([]models.Block, count)
	for i := range blocks {
		start := int64(i) * step
		end := start + step
		if i == count-1 {
			end = f.size
		}
		blocks[i] = models.Block{ID: i, Start: start, End: end}
	}

	return &Parts{file: f, blocks: blocks, perPart: perPart}, nil
}

// layout returns the total block count and the number of blocks per part
func (f *File) layout() (int, int, error) {
	processors := max(1, f.opts.SysInfo.ProcessorCount())
	memory, err := f.opts.SysInfo.AvailableMemory()
	if err != nil {
		return 0, 0, err
	}
	memory = max(memory, 1)

	need := uint64(f.size) * constants.MemorySafetyFactor
	partsCount := max(1, int((need+memory-1)/memory))

	// blocks smaller than the search window gain nothing
	count := min(partsCount*processors, int(max(1, f.size/constants.SearchWindowSize)))
	return count, processors, nil
}

func (f *File) readBlocks(ctx context.Context, count int) ([]models.Block, error) {
	if f.size == 0 {
		return nil, nil
	}
	if count <= 1 {
		return []models.Block{{ID: 0, Start: 0, End: f.size}}, nil
	}

	m, err := f.mapFile()
	if err != nil {
		return nil, err
	}
	defer m.close()

	step := f.size / int64(count)
	offsets := make([]int64, count)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, f.opts.SysInfo.ProcessorCount()))
	for i := 1; i < count; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			offsets[i] = nextLineStart(m.data, int64(i)*step)
			if offsets[i] == -1 {
				f.opts.Logger.Debug("readBlocks: no line terminator in search window",
					zap.Int64("offset", int64(i)*step))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return BlocksFromOffsets(offsets, f.size), nil
}

// nextLineStart returns the offset just past the first line terminator at or after offset,
// or -1 if there is none within SearchWindowSize bytes
func nextLineStart(data []byte, offset int64) int64 {
	end := min(offset+constants.SearchWindowSize, int64(len(data)))
	idx := bytes.IndexByte(data[offset:end], constants.LineFeed)
	if idx == -1 {
		return -1
	}
	return offset + int64(idx) + 1
}

// BlocksFromOffsets builds contiguous blocks covering [0, size) from boundary offsets
// Offsets outside (0, size) are ignored and repeated offsets collapse, so
// the blocks never overlap, never leave a gap and are never empty
func BlocksFromOffsets(offsets []int64, size int64) []models.Block {
	if size <= 0 {
		return nil
	}

	bounds := make([]int64, 0, len(offsets)+1)
	for _, o := range offsets {
		if o > 0 && o < size {
			bounds = append(bounds, o)
		}
	}
	slices.Sort(bounds)
	bounds = slices.Compact(bounds)
	bounds = append(bounds, size)

	blocks := make([]models.Block, 0, len(bounds))
	var start int64
	for _, end := range bounds {
		blocks = append(blocks, models.Block{ID: len(blocks), Start: start, End: end})
		start = end
	}
	return blocks
}

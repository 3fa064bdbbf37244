package sorter

import (
	"bytes"
	"context"
	"fmt"
	"linesort/src/constants"
	"linesort/src/models"
	"linesort/src/partition"
	"linesort/src/radix"
)

// blockLines are the keys read from one block and their first-digit counts
type blockLines struct {
	keys [][]byte
	hist radix.Histogram
}

// load reads every block of part in parallel and returns all keys with their combined histogram
func load(ctx context.Context, part partition.Part) ([][]byte, radix.Histogram, error) {
	if len(part.Blocks) == 0 {
		return nil, radix.NewHistogram(), nil
	}

	// block IDs of a part are consecutive
	first := part.Blocks[0].ID
	results := make([]blockLines, len(part.Blocks))

	err := part.Process(ctx, func(ctx context.Context, block models.Block, data []byte) error {
		keys, hist, err := parseLines(ctx, data, block.Start)
		if err != nil {
			return fmt.Errorf("load: block %d: %w", block.ID, err)
		}
		results[block.ID-first] = blockLines{keys: keys, hist: hist}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	count := 0
	for _, r := range results {
		count += len(r.keys)
	}

	batch := make([][]byte, 0, count)
	hist := radix.NewHistogram()
	for i := range results {
		batch = append(batch, results[i].keys...)
		hist.Merge(results[i].hist)
		results[i] = blockLines{}
	}
	return batch, hist, nil
}

// parseLines encodes every line of data. base is the file offset of data, used in errors
func parseLines(ctx context.Context, data []byte, base int64) ([][]byte, radix.Histogram, error) {
	hist := radix.NewHistogram()
	var keys [][]byte
	var arena keyArena

	for n, offset := 0, 0; offset < len(data); n++ {
		if n%constants.CancelCheckInterval == 0 && ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}

		line := data[offset:]
		next := len(data)
		if end := bytes.IndexByte(line, constants.LineFeed); end != -1 {
			line = line[:end]
			next = offset + end + 1
		}
		line = bytes.TrimSuffix(line, []byte{constants.CarriageReturn})

		key, err := arena.appendKey(line)
		if err != nil {
			return nil, nil, fmt.Errorf("line at offset %d: %w", base+int64(offset), err)
		}
		keys = append(keys, key)
		hist.Add(key)

		offset = next
	}
	return keys, hist, nil
}

// keyArena hands out keys carved from large shared allocations
type keyArena struct {
	buf []byte
}

// appendKey encodes a display line into the arena and returns the key
func (a *keyArena) appendKey(display []byte) ([]byte, error) {
	if need := len(display) + constants.KeyOverhead; cap(a.buf)-len(a.buf) < need {
		a.buf = make([]byte, 0, max(constants.KeyArenaChunk, need))
	}

	start := len(a.buf)
	buf, err := models.AppendKeyFromDisplay(a.buf, display)
	if err != nil {
		return nil, err
	}
	a.buf = buf
	return buf[start:len(buf):len(buf)], nil
}

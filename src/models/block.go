package models

// Block is a line-aligned byte range [Start, End) of a file
// Blocks are created by the partitioner and never mutated afterwards
type Block struct {
	// ID is the position of the block in the file, starting at 0
	ID int

	// Start is the offset of the first byte of the block
	Start int64

	// End is the offset one past the last byte of the block
	End int64
}

// Len returns the number of bytes covered by the block
func (b Block) Len() int64 {
	return b.End - b.Start
}

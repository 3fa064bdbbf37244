package constants

const (
	// SearchWindowSize is how far past a candidate block boundary the partitioner
	// looks for a line terminator. Must be at least twice MaxLineLength
	SearchWindowSize = 1024

	// MaxLineLength is the longest display line (terminator included) the tools produce or accept
	MaxLineLength = SearchWindowSize / 2

	// MemorySafetyFactor scales the file size against available memory when computing the part count,
	// leaving room for the sort and merge buffers of a loaded part
	MemorySafetyFactor = 2

	// DiskSpaceFactor is how many copies of the input must fit on disk before sorting starts:
	// the running sorted run and the run being merged into exist together
	DiskSpaceFactor = 2
)

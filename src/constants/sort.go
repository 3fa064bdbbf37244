package constants

const (
	// SmallFileThreshold is the input size in bytes at or below which the whole file is sorted in memory
	SmallFileThreshold = 64 << 10

	// ComparisonSortThreshold is the radix job size at or below which a comparison sort is used
	ComparisonSortThreshold = 5

	// ParallelRangeThreshold is the radix job size from which histogram and scatter run in parallel
	ParallelRangeThreshold = 1 << 15

	// TextAlphabetSize is the number of digits of a text byte remapped by subtracting Separator
	TextAlphabetSize = 0x7F - Separator

	// NumberAlphabetSize is the number of digits of a number byte
	NumberAlphabetSize = 256

	// CancelCheckInterval is how many lines or elements are processed between cancellation checks
	CancelCheckInterval = 4096

	// SortedFileSuffix is appended to the input name to build the output name
	SortedFileSuffix = "_sorted"

	// RunFileExt is the extension of intermediate sorted runs, followed by the pass number
	RunFileExt = ".run"

	// KeyArenaChunk is the size of one arena allocation backing loaded keys
	KeyArenaChunk = 1 << 20
)

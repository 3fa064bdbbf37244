// Package constants defines application-wide format values and limits
package constants

const (
	// Separator terminates the text part of a key. It is smaller than every
	// allowed text byte, so a text that is a prefix of another sorts first
	Separator = 0x1F

	// DotAndSpace separates the number from the text in the display form
	DotAndSpace = ". "

	// NumberSize is the width in bytes of the big-endian number suffix of a key
	NumberSize = 4

	// KeyOverhead is the number of key bytes that are not text
	KeyOverhead = 1 + NumberSize

	// MinTextByte is the smallest byte allowed in the text part of a line
	MinTextByte = 0x20

	// MaxTextByte is the largest byte allowed in the text part of a line
	MaxTextByte = 0x7E

	// LineFeed terminates every line; an optional preceding CarriageReturn is dropped on read
	LineFeed = '\n'

	// CarriageReturn is accepted before LineFeed on input and never written
	CarriageReturn = '\r'
)

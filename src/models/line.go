// Package models defines the line record, its encodings and the file block descriptor
package models

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"linesort/src/constants"
	"strconv"
	"strings"
)

// ErrMalformedLine is returned when a display line cannot be parsed into a Line
var ErrMalformedLine = errors.New("malformed line")

// Line is one record of a file: a text and a non-negative 32-bit number
// Lines are ordered by Text (byte-wise) and then by Number
type Line struct {
	Text   string
	Number uint32
}

// ParseLine parses the display form "{number}. {text}" (without terminator)
// The number ends at the first ". "; the text is everything after it
// Returns ErrMalformedLine if the line with its terminator is longer than
// MaxLineLength, the separator is missing, the number is not a base-10
// unsigned 32-bit integer, or the text has bytes outside printable ASCII
func ParseLine(display []byte) (Line, error) {
	number, text, err := splitDisplay(display)
	if err != nil {
		return Line{}, err
	}
	return Line{Text: string(text), Number: number}, nil
}

// EncodeDisplay parses a display line and returns its key form in one allocation
func EncodeDisplay(display []byte) ([]byte, error) {
	return AppendKeyFromDisplay(nil, display)
}

// AppendKeyFromDisplay parses a display line and appends its key form to dst
func AppendKeyFromDisplay(dst []byte, display []byte) ([]byte, error) {
	number, text, err := splitDisplay(display)
	if err != nil {
		return dst, err
	}
	dst = append(dst, text...)
	dst = append(dst, constants.Separator)
	return binary.BigEndian.AppendUint32(dst, number), nil
}

// splitDisplay validates a display line and returns its number and text bytes
func splitDisplay(display []byte) (uint32, []byte, error) {
	if len(display)+1 > constants.MaxLineLength {
		return 0, nil, fmt.Errorf("%w: line of %d bytes exceeds %d", ErrMalformedLine, len(display)+1, constants.MaxLineLength)
	}

	dot := bytes.Index(display, []byte(constants.DotAndSpace))
	if dot == -1 {
		return 0, nil, fmt.Errorf("%w: missing %q in %q", ErrMalformedLine, constants.DotAndSpace, display)
	}

	digits := display[:dot]
	if len(digits) == 0 || digits[0] < '0' || digits[0] > '9' {
		return 0, nil, fmt.Errorf("%w: invalid number %q", ErrMalformedLine, digits)
	}
	number, err := strconv.ParseUint(string(digits), 10, 32)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: invalid number %q", ErrMalformedLine, digits)
	}

	text := display[dot+len(constants.DotAndSpace):]
	for _, c := range text {
		if c < constants.MinTextByte || c > constants.MaxTextByte {
			return 0, nil, fmt.Errorf("%w: byte 0x%02X outside printable ASCII in %q", ErrMalformedLine, c, display)
		}
	}

	return uint32(number), text, nil
}

// String returns the display form of the line
func (l Line) String() string {
	return string(l.AppendDisplay(nil))
}

// AppendDisplay appends the display form (without terminator) to dst
func (l Line) AppendDisplay(dst []byte) []byte {
	dst = strconv.AppendUint(dst, uint64(l.Number), 10)
	dst = append(dst, constants.DotAndSpace...)
	return append(dst, l.Text...)
}

// Key returns the key form: text, Separator, number as 4 big-endian bytes
// Byte-wise comparison of two keys orders them exactly like CompareLines
func (l Line) Key() []byte {
	return l.AppendKey(make([]byte, 0, len(l.Text)+constants.KeyOverhead))
}

// AppendKey appends the key form to dst
func (l Line) AppendKey(dst []byte) []byte {
	dst = append(dst, l.Text...)
	dst = append(dst, constants.Separator)
	return binary.BigEndian.AppendUint32(dst, l.Number)
}

// DecodeKey converts a key back into a Line
func DecodeKey(key []byte) (Line, error) {
	text, number, err := splitKey(key)
	if err != nil {
		return Line{}, err
	}
	return Line{Text: string(text), Number: number}, nil
}

// AppendDisplayFromKey appends the display form of a key to dst without building a Line
func AppendDisplayFromKey(dst []byte, key []byte) ([]byte, error) {
	text, number, err := splitKey(key)
	if err != nil {
		return dst, err
	}
	dst = strconv.AppendUint(dst, uint64(number), 10)
	dst = append(dst, constants.DotAndSpace...)
	return append(dst, text...), nil
}

// DisplayLen returns the length of the display form of a key, terminator included
func DisplayLen(key []byte) int {
	number := binary.BigEndian.Uint32(key[len(key)-constants.NumberSize:])
	digits := 1
	for number >= 10 {
		number /= 10
		digits++
	}
	return digits + len(constants.DotAndSpace) + len(key) - constants.KeyOverhead + 1
}

func splitKey(key []byte) ([]byte, uint32, error) {
	if len(key) < constants.KeyOverhead {
		return nil, 0, fmt.Errorf("DecodeKey: key too short (%d bytes)", len(key))
	}
	sep := len(key) - constants.KeyOverhead
	if key[sep] != constants.Separator {
		return nil, 0, fmt.Errorf("DecodeKey: missing separator at %d", sep)
	}
	return key[:sep], binary.BigEndian.Uint32(key[sep+1:]), nil
}

// CompareLines orders lines by text and then by number
func CompareLines(a, b Line) int {
	if c := strings.Compare(a.Text, b.Text); c != 0 {
		return c
	}
	switch {
	case a.Number < b.Number:
		return -1
	case a.Number > b.Number:
		return 1
	}
	return 0
}

// CompareKeys orders two keys; the result equals CompareLines of the decoded lines
func CompareKeys(a, b []byte) int {
	return bytes.Compare(a, b)
}

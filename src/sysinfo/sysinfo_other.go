//go:build !linux

package sysinfo

import (
	"errors"
	"fmt"
)

// ErrUnsupported is returned for queries the platform cannot answer
var ErrUnsupported = errors.New("not supported on this platform")

// AvailableMemory is only implemented on Linux
func (OS) AvailableMemory() (uint64, error) {
	return 0, fmt.Errorf("AvailableMemory: %w", ErrUnsupported)
}

// FreeDisk is only implemented on Linux
func (OS) FreeDisk(string) (uint64, error) {
	return 0, fmt.Errorf("FreeDisk: %w", ErrUnsupported)
}

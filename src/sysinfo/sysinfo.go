// Package sysinfo answers the environment questions the sorter asks before and during a run:
// how much memory is available, how many processors there are, and how much disk is free
package sysinfo

import "runtime"

// Provider reports system resources. Answers are read fresh on every call
type Provider interface {
	// AvailableMemory returns the number of bytes of memory available to the process
	AvailableMemory() (uint64, error)

	// ProcessorCount returns the number of processors usable for parallel work
	// Callers treat anything below 1 as 1
	ProcessorCount() int

	// FreeDisk returns the number of bytes available on the filesystem holding path
	FreeDisk(path string) (uint64, error)
}

// OS reads the resources of the running machine
type OS struct{}

// NewOS returns a Provider backed by the operating system
func NewOS() *OS {
	return &OS{}
}

// ProcessorCount returns GOMAXPROCS, which defaults to the number of logical CPUs
func (OS) ProcessorCount() int {
	return runtime.GOMAXPROCS(0)
}

// Static returns fixed answers. Tests use it to force a memory budget or a worker count
type Static struct {
	Memory     uint64
	Processors int
	Disk       uint64
}

// AvailableMemory returns s.Memory
func (s Static) AvailableMemory() (uint64, error) {
	return s.Memory, nil
}

// ProcessorCount returns s.Processors, at least 1
func (s Static) ProcessorCount() int {
	return max(1, s.Processors)
}

// FreeDisk returns s.Disk regardless of path
func (s Static) FreeDisk(string) (uint64, error) {
	return s.Disk, nil
}

// Limited caps the memory reported by a Provider
// A zero MaxMemory leaves the Provider's answer unchanged
type Limited struct {
	Provider
	MaxMemory uint64
}

// AvailableMemory returns the smaller of the wrapped answer and MaxMemory
func (l Limited) AvailableMemory() (uint64, error) {
	memory, err := l.Provider.AvailableMemory()
	if err != nil {
		return 0, err
	}
	if l.MaxMemory > 0 {
		memory = min(memory, l.MaxMemory)
	}
	return memory, nil
}

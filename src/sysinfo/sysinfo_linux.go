//go:build linux

package sysinfo

import (
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// AvailableMemory returns free plus buffer memory as reported by sysinfo(2)
func (OS) AvailableMemory() (uint64, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, fmt.Errorf("AvailableMemory: sysinfo: %w", err)
	}
	return (uint64(info.Freeram) + uint64(info.Bufferram)) * uint64(info.Unit), nil
}

// FreeDisk returns the bytes available to unprivileged users on the filesystem of path's directory
func (OS) FreeDisk(path string) (uint64, error) {
	var st unix.Statfs_t
	dir := filepath.Dir(path)
	if err := unix.Statfs(dir, &st); err != nil {
		return 0, fmt.Errorf("FreeDisk: statfs %v: %w", dir, err)
	}
	return uint64(st.Bavail) * uint64(st.Bsize), nil
}

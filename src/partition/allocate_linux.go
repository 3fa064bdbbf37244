//go:build linux

package partition

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// allocate reserves size bytes on disk so writes through the mapping cannot hit a full disk
// Filesystems without fallocate support get a sparse file instead
func allocate(file *os.File, size int64) error {
	err := unix.Fallocate(int(file.Fd()), 0, 0, size)
	if errors.Is(err, unix.EOPNOTSUPP) || errors.Is(err, unix.ENOSYS) {
		return file.Truncate(size)
	}
	return err
}

//go:build !linux

package partition

import "os"

// allocate extends the file to size bytes
func allocate(file *os.File, size int64) error {
	return file.Truncate(size)
}

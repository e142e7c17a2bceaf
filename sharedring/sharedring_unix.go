//go:build linux

package sharedring

import (
	"github.com/edsrzf/mmap-go"
	"golang.org/x/sys/unix"
)

// lockPages locks the mapped region into physical memory via mlock(2),
// preventing it from being swapped out.
func lockPages(data mmap.MMap) error {
	return unix.Mlock(data)
}

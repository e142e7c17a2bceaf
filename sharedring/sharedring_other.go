//go:build !linux

package sharedring

import "github.com/edsrzf/mmap-go"

// lockPages is a no-op on platforms without an mlock equivalent wired up;
// LockPages in Config is best-effort everywhere.
func lockPages(data mmap.MMap) error {
	return nil
}

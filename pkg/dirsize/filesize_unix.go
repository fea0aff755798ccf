//go:build !windows

package dirsize

import (
	"os"
	"syscall"
)

// allocatedSize returns the bytes allocated to a file on disk.
// Stat blocks are 512 bytes regardless of the filesystem block size.
func allocatedSize(_ string, info os.FileInfo) int64 {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return info.Size()
	}
	return int64(stat.Blocks) * 512
}

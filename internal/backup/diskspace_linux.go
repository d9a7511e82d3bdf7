//go:build linux

package backup

import "golang.org/x/sys/unix"

// getDiskSpace returns available bytes on the volume containing path.
// Uses Bavail (available to unprivileged users), not Bfree.
func getDiskSpace(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}

	return uint64(stat.Bavail) * uint64(stat.Bsize), nil //nolint:gosec // kernel guarantees non-negative values
}

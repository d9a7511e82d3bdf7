//go:build !linux && !darwin

package backup

func getDiskSpace(string) (uint64, error) {
	return 0, errDiskSpaceUnsupported
}

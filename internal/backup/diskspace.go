package backup

import "errors"

// errDiskSpaceUnsupported is returned by getDiskSpace on platforms without a
// free-space query; the guard is skipped there.
var errDiskSpaceUnsupported = errors.New("backup: free space query not supported on this platform")

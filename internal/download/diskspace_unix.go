//go:build unix

package download

import "golang.org/x/sys/unix"

// diskAvailable reports the free bytes on the volume holding path. The
// second return is false when the check is not supported, in which case the
// free-space guard is skipped.
func diskAvailable(path string) (uint64, bool) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, false
	}
	return st.Bavail * uint64(st.Bsize), true
}

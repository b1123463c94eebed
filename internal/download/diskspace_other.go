//go:build !unix

package download

// diskAvailable is unsupported on this platform; the free-space guard is
// skipped.
func diskAvailable(path string) (uint64, bool) {
	return 0, false
}

//go:build !windows && !ios

package routed

import "golang.org/x/sys/unix"

// applyFilePermissions chmods path to mode, per spec.md §4.4 step 3
// ("apply filePermissions (POSIX chmod) when on a local filesystem and
// not Windows/iOS").
func applyFilePermissions(path string, mode uint32) error {
	return unix.Chmod(path, mode)
}

//go:build unix

package preflight

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// CheckDiskSpace fails when the filesystem holding path has less than the
// configured minimum free.
func (c *Checker) CheckDiskSpace(path string) CheckResult {
	r := CheckResult{Name: "disk_space", Required: true}
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		r.Status = StatusFail
		r.Message = fmt.Sprintf("cannot stat filesystem: %v", err)
		return r
	}
	free := uint64(st.Bavail) * uint64(st.Bsize)
	r.Message = fmt.Sprintf("%s free (minimum %s)", formatBytes(free), formatBytes(c.minFree))
	if free < c.minFree {
		r.Status = StatusFail
	}
	return r
}

//go:build !unix

package preflight

func (c *Checker) CheckDiskSpace(string) CheckResult {
	return CheckResult{Name: "disk_space", Status: StatusWarn, Message: "not checked on this platform"}
}

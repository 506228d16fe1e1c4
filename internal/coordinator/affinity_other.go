//go:build !linux

package coordinator

import "errors"

var errAffinityUnsupported = errors.New("coordinator: CPU/priority pinning is Linux-only")

// pinCurrentTask is a no-op on non-Linux platforms; the caller logs the
// returned error as a warning and keeps running unpinned.
func pinCurrentTask(cpu, priority int) error {
	if cpu < 0 && priority <= 0 {
		return nil
	}
	return errAffinityUnsupported
}

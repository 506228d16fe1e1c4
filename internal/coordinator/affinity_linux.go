//go:build linux

package coordinator

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// pinCurrentTask pins the calling goroutine's OS thread to cpu (if >= 0)
// and raises it to SCHED_FIFO at the given priority (if > 0), per
// spec.md §5's "pinned to a CPU, running at an elevated real-time
// priority". runtime.LockOSThread is required first: sched_setaffinity
// and sched_setscheduler act on the calling OS thread (pid 0), and Go
// would otherwise be free to migrate this goroutine to a different one.
func pinCurrentTask(cpu, priority int) error {
	runtime.LockOSThread()

	if cpu >= 0 {
		var set unix.CPUSet
		set.Zero()
		set.Set(cpu)
		if err := unix.SchedSetaffinity(0, &set); err != nil {
			return err
		}
	}
	if priority > 0 {
		if err := unix.SchedSetscheduler(0, unix.SCHED_FIFO, &unix.SchedParam{Priority: int32(priority)}); err != nil {
			return err
		}
	}
	return nil
}

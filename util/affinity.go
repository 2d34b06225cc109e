package util

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// PinThreadToCPU locks the calling goroutine to its OS thread and binds the thread to the given CPU core
//
// The goroutine should exit without unlocking, so that the pinned thread is terminated instead of being reused
func PinThreadToCPU(cpu int) error {
	runtime.LockOSThread()
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	return unix.SchedSetaffinity(0, &set)
}

// NumCPU returns the numbers of CPU cores usable by the process
func NumCPU() int {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return runtime.NumCPU()
	}
	return set.Count()
}

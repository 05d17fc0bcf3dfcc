//go:build !linux && !darwin

package handler

import "time"

// statDisk is not implemented on this platform.
func statDisk(path string) (diskUsage, bool) {
	return diskUsage{}, false
}

// processCPUTime is not implemented on this platform.
func processCPUTime() (time.Duration, bool) {
	return 0, false
}

//go:build linux || darwin

package handler

import (
	"syscall"
	"time"
)

// statDisk reports usage of the filesystem holding path.
func statDisk(path string) (diskUsage, bool) {
	var fs syscall.Statfs_t
	if err := syscall.Statfs(path, &fs); err != nil {
		return diskUsage{}, false
	}
	return diskUsage{
		Total: int64(fs.Blocks) * int64(fs.Bsize),
		Free:  int64(fs.Bavail) * int64(fs.Bsize),
	}, true
}

// processCPUTime returns user plus system time consumed by this process.
func processCPUTime() (time.Duration, bool) {
	var ru syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &ru); err != nil {
		return 0, false
	}
	user := time.Duration(ru.Utime.Nano())
	sys := time.Duration(ru.Stime.Nano())
	return user + sys, true
}

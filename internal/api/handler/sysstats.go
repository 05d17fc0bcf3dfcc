package handler

import (
	"sync"
	"time"
)

// diskUsage is the capacity of one filesystem in bytes.
type diskUsage struct {
	Total int64
	Free  int64
}

// UsedPct returns the used share of the filesystem as a percentage.
func (d diskUsage) UsedPct() float64 {
	if d.Total <= 0 {
		return 0
	}
	return float64(d.Total-d.Free) / float64(d.Total) * 100
}

// cpuSampler turns cumulative process CPU time into a usage percentage
// between successive samples.
type cpuSampler struct {
	mu       sync.Mutex
	read     func() (time.Duration, bool)
	now      func() time.Time
	lastCPU  time.Duration
	lastWall time.Time
	primed   bool
}

func newCPUSampler() *cpuSampler {
	return &cpuSampler{read: processCPUTime, now: time.Now}
}

// Sample returns the percentage of one core used since the previous call,
// clamped to [0, 100]. The first call only records a baseline and returns 0.
func (s *cpuSampler) Sample() float64 {
	cpu, ok := s.read()
	if !ok {
		return 0
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	prevCPU, prevWall, primed := s.lastCPU, s.lastWall, s.primed
	s.lastCPU, s.lastWall, s.primed = cpu, now, true

	wall := now.Sub(prevWall)
	if !primed || wall <= 0 {
		return 0
	}

	pct := float64(cpu-prevCPU) / float64(wall) * 100
	return min(max(pct, 0), 100)
}

package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
)

var startTime = time.Now()

// StoreCounter reports how many extractions are stored.
type StoreCounter interface {
	Count(ctx context.Context) (int, error)
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	store     StoreCounter
	storePath string
	cpu       *cpuSampler
}

// NewHealthHandler creates a new health handler. storePath is the directory
// holding the database file, or empty for the in-memory store.
func NewHealthHandler(store StoreCounter, storePath string) *HealthHandler {
	return &HealthHandler{
		store:     store,
		storePath: storePath,
		cpu:       newCPUSampler(),
	}
}

// HealthResponse is the JSON response for health checks.
type HealthResponse struct {
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	Extractions *int   `json:"extractions,omitempty"`
}

// Live handles GET /health - liveness probe.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready - readiness probe.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// Check the result store is accessible
	count, err := h.store.Count(ctx)
	if err != nil {
		writeHealth(w, http.StatusServiceUnavailable, HealthResponse{
			Status:    "error",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	writeHealth(w, http.StatusOK, HealthResponse{
		Status:      "ok",
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Extractions: &count,
	})
}

// SystemStats contains system resource statistics.
type SystemStats struct {
	Uptime         int64   `json:"uptime_seconds"`
	UptimeHuman    string  `json:"uptime_human"`
	MemAllocMB     int64   `json:"mem_alloc_mb"`
	MemSysMB       int64   `json:"mem_sys_mb"`
	MemHeapMB      int64   `json:"mem_heap_mb"`
	NumGoroutines  int     `json:"num_goroutines"`
	NumCPU         int     `json:"num_cpu"`
	CPUPct         float64 `json:"cpu_pct"`
	Extractions    int     `json:"extractions"`
	StoragePath    string  `json:"storage_path,omitempty"`
	DiskFreeBytes  int64   `json:"disk_free_bytes,omitempty"`
	DiskFreeHuman  string  `json:"disk_free_human,omitempty"`
	DiskTotalBytes int64   `json:"disk_total_bytes,omitempty"`
	DiskUsedPct    float64 `json:"disk_used_pct,omitempty"`
}

// Stats handles GET /api/stats - system statistics.
func (h *HealthHandler) Stats(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(startTime)

	stats := SystemStats{
		Uptime:        int64(uptime.Seconds()),
		UptimeHuman:   formatUptime(uptime),
		MemAllocMB:    int64(m.Alloc / 1024 / 1024),
		MemSysMB:      int64(m.Sys / 1024 / 1024),
		MemHeapMB:     int64(m.HeapAlloc / 1024 / 1024),
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		CPUPct:        h.cpu.Sample(),
	}

	if count, err := h.store.Count(r.Context()); err == nil {
		stats.Extractions = count
	}

	if h.storePath != "" {
		stats.StoragePath = h.storePath
		if disk, ok := statDisk(h.storePath); ok {
			stats.DiskTotalBytes = disk.Total
			stats.DiskFreeBytes = disk.Free
			stats.DiskFreeHuman = humanize.IBytes(uint64(disk.Free))
			stats.DiskUsedPct = disk.UsedPct()
		}
	}

	writeHealth(w, http.StatusOK, stats)
}

func writeHealth(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}

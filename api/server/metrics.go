// metrics.go - Metrics collection for a CivicLedger node
package server

import (
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
)

// NodeMetrics holds granular health metrics for the node.
type NodeMetrics struct {
	UptimeSeconds   int64   `json:"uptime_seconds"`
	BlockHeight     uint64  `json:"block_height"`
	Contracts       int     `json:"contracts"`
	CPULoadPercent  float64 `json:"cpu_load_percent"`
	MemoryMB        float64 `json:"memory_mb"`
	DiskFreeMB      float64 `json:"disk_free_mb"`
	IdleSeconds     int64   `json:"idle_seconds"`
	LastBlockTime   string  `json:"last_block_time"`
	BufferedEvents  int     `json:"buffered_events"`
	DroppedEvents   uint64  `json:"dropped_events"`
	StorageReadable bool    `json:"storage_readable"`
}

// GetNodeMetrics returns current health metrics for the node.
func (s *Server) GetNodeMetrics() NodeMetrics {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	diskFreeMB := 0.0
	if usage, err := disk.Usage("/"); err == nil {
		diskFreeMB = float64(usage.Free) / (1024 * 1024)
	}

	cpuLoad := 0.0
	if cpuPercents, err := cpu.Percent(0, false); err == nil && len(cpuPercents) > 0 {
		cpuLoad = cpuPercents[0]
	}

	journal := s.node.Journal()
	height := journal.Height()
	readable := true
	var lastBlockTime time.Time
	if height > 0 {
		blk, err := journal.Get(height - 1)
		if err == nil {
			lastBlockTime = blk.Timestamp
		} else {
			readable = false
		}
	}
	var idle int64
	if !lastBlockTime.IsZero() {
		idle = int64(time.Since(lastBlockTime).Seconds())
	}

	hub := s.node.Events()
	return NodeMetrics{
		UptimeSeconds:   int64(time.Since(s.started).Seconds()),
		BlockHeight:     height,
		Contracts:       len(s.node.Contracts()),
		CPULoadPercent:  cpuLoad,
		MemoryMB:        float64(m.Alloc) / (1024 * 1024),
		DiskFreeMB:      diskFreeMB,
		IdleSeconds:     idle,
		LastBlockTime:   formatTime(lastBlockTime),
		BufferedEvents:  len(hub.Recent(0)),
		DroppedEvents:   hub.Dropped(),
		StorageReadable: readable,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// healthStatus derives a one-word status from metrics.
func healthStatus(m NodeMetrics) string {
	switch {
	case !m.StorageReadable:
		return "degraded"
	case m.BlockHeight == 0:
		return "initializing"
	case m.Contracts == 0:
		return "empty"
	default:
		return "healthy"
	}
}

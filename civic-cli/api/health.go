package api

import (
	"context"
	"errors"
	"net/http"
)

type Metrics struct {
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

type HealthMetrics struct {
	Status  string  `json:"status"`
	Metrics Metrics `json:"metrics"`
}

type Status struct {
	Status      string   `json:"status"`
	Channel     string   `json:"channel"`
	Uptime      int64    `json:"uptime_seconds"`
	BlockHeight uint64   `json:"block_height"`
	HeadHash    string   `json:"head_hash"`
	Contracts   []string `json:"contracts"`
	Version     string   `json:"version"`
	APIVersion  string   `json:"api_version"`
	LastBlock   string   `json:"last_block_time"`
	Metrics     Metrics  `json:"metrics"`
}

func (c *Client) GetStatus(ctx context.Context) (*Status, error) {
	var s Status
	if err := c.do(ctx, http.MethodGet, "/status", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) GetHealthMetrics(ctx context.Context) (*HealthMetrics, error) {
	var h HealthMetrics
	if err := c.do(ctx, http.MethodGet, "/nodehealth", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// GetLiveness reports the probe result. A 503 is a valid "not alive" answer.
func (c *Client) GetLiveness(ctx context.Context) (bool, error) {
	var result struct {
		Alive bool `json:"alive"`
	}
	err := c.do(ctx, http.MethodGet, "/health/liveness", nil, &result)
	if unavailable(err) {
		return false, nil
	}
	return result.Alive, err
}

func (c *Client) GetReadiness(ctx context.Context) (bool, error) {
	var result struct {
		Ready bool `json:"ready"`
	}
	err := c.do(ctx, http.MethodGet, "/health/readiness", nil, &result)
	if unavailable(err) {
		return false, nil
	}
	return result.Ready, err
}

func unavailable(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusServiceUnavailable
}

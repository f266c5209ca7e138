// status_handler.go - HTTP handler for /status
package server

import (
	"net/http"
)

// HandleStatus responds to /status with node status
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	metrics := s.GetNodeMetrics()
	writeJSON(w, http.StatusOK, StatusResponse{
		Status:      healthStatus(metrics),
		Channel:     s.node.Channel(),
		Uptime:      metrics.UptimeSeconds,
		BlockHeight: metrics.BlockHeight,
		HeadHash:    s.node.Journal().Head(),
		Contracts:   s.node.Contracts(),
		Version:     NodeVersion(),
		APIVersion:  APIVersion(),
		LastBlock:   metrics.LastBlockTime,
		Metrics:     metrics,
	})
}

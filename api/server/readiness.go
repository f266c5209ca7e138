// readiness.go - Readiness probe logic for a CivicLedger node
package server

// NodeReadiness returns true if the ledger is bootstrapped, contracts are
// deployed and the block store is readable.
func (s *Server) NodeReadiness() bool {
	m := s.GetNodeMetrics()
	return m.BlockHeight > 0 && m.Contracts > 0 && m.StorageReadable
}

// liveness.go - Liveness probe logic for a CivicLedger node
package server

// NodeLiveness returns true if the node has written its genesis block.
func (s *Server) NodeLiveness() bool {
	return s.node.Journal().Height() > 0
}

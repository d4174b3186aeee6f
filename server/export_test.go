package server

// Test helpers to expose private state for testing purposes
// This file should only be used for testing and not in production

// ClientCount returns the number of registered clients
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// LeaveGame exposes the private leaveGame method for testing
func (s *Server) LeaveGame(c *Client) {
	s.leaveGame(c)
}

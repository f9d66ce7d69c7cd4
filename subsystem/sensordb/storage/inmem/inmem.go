// Package inmem implements an in-memory sensor database.
package inmem

import (
	"context"
	"sync"
)

// InMem is an in-memory sensor database. Mostly useful for testing:
// it records which sensor IDs had their gateway binding cleared.
type InMem struct {
	mu      sync.Mutex
	cleared []string
}

func New() *InMem {
	return &InMem{}
}

// ClearGatewayBinding implements the storage interface method.
func (s *InMem) ClearGatewayBinding(_ context.Context, sensorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleared = append(s.cleared, sensorID)
	return nil
}

// Cleared returns the sensor IDs cleared so far, in order.
func (s *InMem) Cleared() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.cleared...)
}

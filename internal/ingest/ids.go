package ingest

import (
	"fmt"
	"sync"
)

// IDStrategy hands out sequential ids of the form id_N.
type IDStrategy struct {
	mu      sync.Mutex
	current int
}

// NewIDStrategy starts after seed, so the first id is id_{seed+1}.
func NewIDStrategy(seed int) *IDStrategy {
	return &IDStrategy{current: seed}
}

func (s *IDStrategy) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current++
	return fmt.Sprintf("id_%d", s.current)
}

func (s *IDStrategy) Reset() {
	s.mu.Lock()
	s.current = 0
	s.mu.Unlock()
}

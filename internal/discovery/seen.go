package discovery

import "sync"

// SeenSet is the in-process fast path of pool dedup. It is advisory: the durable
// marker and create-if-absent persistence decide correctness.
type SeenSet struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// NewSeenSet creates an empty set.
func NewSeenSet() *SeenSet {
	return &SeenSet{keys: make(map[string]struct{})}
}

// CheckAndInsert inserts key and reports whether it was absent.
func (s *SeenSet) CheckAndInsert(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return false
	}
	s.keys[key] = struct{}{}
	return true
}

// Remove forgets key so a redelivery is processed again.
func (s *SeenSet) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
}

// Len returns the number of keys.
func (s *SeenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

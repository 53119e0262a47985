package util

import "sync"

// ArraySet is a small concurrency-safe unordered set, used by the chunk
// node to batch up the chunk handles it has created or changed since its
// last heartbeat so they can be reported (and the batch cleared) in one
// shot on the next tick. Adapted from the teacher's pendingLeaseExtensions
// use of the same shape for lease-extension batching.
type ArraySet struct {
	mu    sync.Mutex
	items map[interface{}]struct{}
}

// Add inserts v into the set.
func (s *ArraySet) Add(v interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.items == nil {
		s.items = make(map[interface{}]struct{})
	}
	s.items[v] = struct{}{}
}

// GetAllAndClear returns every item currently in the set and empties it
// atomically, so nothing added concurrently is lost or double-reported.
func (s *ArraySet) GetAllAndClear() []interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]interface{}, 0, len(s.items))
	for v := range s.items {
		out = append(out, v)
	}
	s.items = make(map[interface{}]struct{})
	return out
}

// Len reports the current set size.
func (s *ArraySet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

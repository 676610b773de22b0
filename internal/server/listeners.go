package server

import (
	"sort"
	"sync"

	"harness/internal/api"
)

// listenerSet keeps listeners in registration order.
type listenerSet struct {
	mu     sync.Mutex
	byID   map[int]api.ServerListener
	nextID int
}

func newListenerSet() *listenerSet {
	return &listenerSet{byID: make(map[int]api.ServerListener)}
}

func (s *listenerSet) add(l api.ServerListener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.byID[id] = l

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.byID, id)
		})
	}
}

// snapshot lets callbacks add or remove listeners without deadlocking.
func (s *listenerSet) snapshot() []api.ServerListener {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]api.ServerListener, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.byID[id])
	}
	return out
}

func (s *listenerSet) fireStart(h api.ServerHandle) {
	for _, l := range s.snapshot() {
		l.OnStart(h)
	}
}

func (s *listenerSet) fireStop(h api.ServerHandle) {
	for _, l := range s.snapshot() {
		l.OnStop(h)
	}
}

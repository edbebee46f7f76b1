package pipeline

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store holds the frame of the active run. Readers get copies through Snapshot
// and Subscribe; the only writer is the Orchestrator.
type Store struct {
	// publishMu orders listener notifications with the writes that caused them.
	publishMu sync.Mutex
	mu        sync.RWMutex
	frame     Frame
	listeners map[int]func(Frame)
	nextID    int
}

// NewStore returns an empty store with no active run.
func NewStore() *Store {
	return &Store{listeners: make(map[int]func(Frame))}
}

// Snapshot returns a copy of the current frame.
func (s *Store) Snapshot() Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frame.clone()
}

// ActiveRun returns the identity of the run the store currently accepts writes for.
func (s *Store) ActiveRun() uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frame.RunID
}

// Subscribe registers fn to receive a copy of the frame after every accepted write.
// Calls happen on the writer's goroutine in publish order, so fn must not block.
func (s *Store) Subscribe(fn func(Frame)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// begin makes id the active run, superseding whatever was there.
func (s *Store) begin(id uuid.UUID, started time.Time) Frame {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	s.mu.Lock()
	s.frame = newFrame(id, started)
	frame, listeners := s.frame.clone(), s.listenersLocked()
	s.mu.Unlock()

	notify(listeners, frame)
	return frame
}

// update applies mutate to a copy of the active frame and swaps it in.
// It returns false without writing anything when id is no longer the active run.
func (s *Store) update(id uuid.UUID, mutate func(*Frame)) bool {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	s.mu.Lock()
	if s.frame.RunID != id {
		s.mu.Unlock()
		return false
	}
	next := s.frame.clone()
	mutate(&next)
	s.frame = next
	frame, listeners := s.frame.clone(), s.listenersLocked()
	s.mu.Unlock()

	notify(listeners, frame)
	return true
}

func (s *Store) listenersLocked() []func(Frame) {
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	fns := make([]func(Frame), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.listeners[id])
	}
	return fns
}

func notify(listeners []func(Frame), frame Frame) {
	for _, fn := range listeners {
		fn(frame.clone())
	}
}

// Package control holds administrative state the gateway owns and crawl
// workers poll.
package control

import (
	"sync"
	"time"
)

// State is the shared pause flag. While paused, workers lease URLs but put
// them straight back instead of indexing.
type State struct {
	mu      sync.RWMutex
	paused  bool
	changed time.Time
}

// NewState returns an unpaused State.
func NewState() *State {
	return &State{}
}

// Paused reports the current flag.
func (s *State) Paused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused
}

// SetPaused sets the flag and reports whether it changed.
func (s *State) SetPaused(paused bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused == paused {
		return false
	}
	s.paused = paused
	s.changed = time.Now().UTC()
	return true
}

// ChangedAt is when the flag last flipped; zero if it never has.
func (s *State) ChangedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.changed
}

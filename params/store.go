// Package params holds a lens's configuration between calls.
//
// A Store starts unconfigured. Set replaces the parameters and rewinds the
// cursor; readers copy the current value out under a read lock and never
// hold the lock while doing anything else.
package params

import (
	"sync"

	"github.com/wippyai/wasm-lens/errors"
)

// Store is a reader-writer guarded parameter cell with an optional cursor
// for lenses that emit buffered records. The zero Store is unconfigured
// and ready to use.
type Store[P any] struct {
	params     P
	mu         sync.RWMutex
	cursor     int
	generation uint64
	configured bool
}

// Set installs p and resets the cursor to zero.
func (s *Store[P]) Set(p P) {
	s.mu.Lock()
	s.params = p
	s.cursor = 0
	s.generation++
	s.configured = true
	s.mu.Unlock()
}

// Get returns a copy of the current parameters. Before the first Set it
// fails with a parameters_not_set error attributed to phase.
func (s *Store[P]) Get(phase errors.Phase) (P, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.configured {
		var zero P
		return zero, errors.ParametersNotSet(phase)
	}
	return s.params, nil
}

// Configured reports whether Set has been called.
func (s *Store[P]) Configured() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.configured
}

// Cursor returns the current cursor position.
func (s *Store[P]) Cursor() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor
}

// Generation counts successful Set calls.
func (s *Store[P]) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Claim takes the next cursor position if it is below limit(params).
// The check and the advance happen under one write lock, so concurrent
// callers never receive the same position. When the cursor is exhausted
// ok is false and the cursor is left alone.
func (s *Store[P]) Claim(phase errors.Phase, limit func(P) int) (p P, idx int, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.configured {
		return p, 0, false, errors.ParametersNotSet(phase)
	}
	if s.cursor >= limit(s.params) {
		return s.params, s.cursor, false, nil
	}
	idx = s.cursor
	s.cursor++
	return s.params, idx, true, nil
}

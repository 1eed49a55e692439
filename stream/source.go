package stream

import (
	"sync"

	"github.com/wippyai/wasm-lens/errors"
)

// Source is a lazy, non-restartable sequence of controls. After a source
// has returned EndOfStream it must not be pulled again; use Terminate to
// make that safe for sources that do not remember it themselves.
type Source[T any] interface {
	Next() (Control[T], error)
}

// SourceFunc adapts a function to Source.
type SourceFunc[T any] func() (Control[T], error)

func (f SourceFunc[T]) Next() (Control[T], error) { return f() }

type sliceSource[T any] struct {
	controls []Control[T]
	mu       sync.Mutex
	pos      int
	done     bool
}

// FromSlice yields each item as a value, then EndOfStream.
func FromSlice[T any](items ...T) Source[T] {
	controls := make([]Control[T], len(items))
	for i, item := range items {
		controls[i] = Some(item)
	}
	return &sliceSource[T]{controls: controls}
}

// FromControls yields the given controls in order, then EndOfStream. An
// EndOfStream inside the list ends the source there.
func FromControls[T any](controls ...Control[T]) Source[T] {
	return &sliceSource[T]{controls: controls}
}

func (s *sliceSource[T]) Next() (Control[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done || s.pos >= len(s.controls) {
		s.done = true
		return EndOfStream[T](), nil
	}
	c := s.controls[s.pos]
	s.pos++
	if c.IsEndOfStream() {
		s.done = true
	}
	return c, nil
}

// OnceSource hands over exactly one control, as a push-style host does.
type OnceSource[T any] struct {
	control  Control[T]
	mu       sync.Mutex
	consumed bool
}

// Once returns a source holding a single pushed control.
func Once[T any](c Control[T]) *OnceSource[T] {
	return &OnceSource[T]{control: c}
}

// Next returns the pushed control. A pushed EndOfStream is returned again
// on later pulls; anything else can be taken only once.
func (s *OnceSource[T]) Next() (Control[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.consumed {
		if s.control.IsEndOfStream() {
			return s.control, nil
		}
		return Control[T]{}, errors.Exhausted(errors.PhaseStream, "pushed input already consumed")
	}
	s.consumed = true
	return s.control, nil
}

// Consumed reports whether the pushed control has been taken.
func (s *OnceSource[T]) Consumed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consumed
}

// Pending returns the pushed control if it has not been taken.
func (s *OnceSource[T]) Pending() (Control[T], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.control, !s.consumed
}

type terminated[T any] struct {
	src  Source[T]
	mu   sync.Mutex
	done bool
}

// Terminate wraps src so that once it reports EndOfStream it is never
// pulled again and every later pull returns EndOfStream.
func Terminate[T any](src Source[T]) Source[T] {
	if t, ok := src.(*terminated[T]); ok {
		return t
	}
	return &terminated[T]{src: src}
}

func (t *terminated[T]) Next() (Control[T], error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return EndOfStream[T](), nil
	}
	c, err := t.src.Next()
	if err != nil {
		return Control[T]{}, err
	}
	if c.IsEndOfStream() {
		t.done = true
	}
	return c, nil
}

// Collect pulls src until EndOfStream and returns the values in order.
// Skipped positions are dropped.
func Collect[T any](src Source[T]) ([]T, error) {
	var out []T
	for {
		c, err := src.Next()
		if err != nil {
			return out, err
		}
		switch c.State() {
		case StateValue:
			out = append(out, c.value)
		case StateEndOfStream:
			return out, nil
		case StateSkip:
		default:
			return out, errors.InvalidInput(errors.PhaseStream, "invalid stream control")
		}
	}
}

package stream

import "github.com/wippyai/wasm-lens/errors"

// State is the outcome carried by a Control.
type State uint8

const (
	// StateInvalid is the zero Control. It carries nothing and must not
	// cross the boundary.
	StateInvalid State = iota
	// StateValue means a value is available at this position.
	StateValue
	// StateSkip means this position produced nothing. More input may follow.
	StateSkip
	// StateEndOfStream means nothing will ever be produced again.
	StateEndOfStream
)

func (s State) String() string {
	switch s {
	case StateValue:
		return "value"
	case StateSkip:
		return "skip"
	case StateEndOfStream:
		return "end-of-stream"
	default:
		return "invalid"
	}
}

// Control is the result of one pull or transform step.
//
// Skip and EndOfStream must never be confused: treating a skip as the end
// truncates a stream, and treating the end as a skip polls an exhausted
// source forever. The zero Control is invalid; only Some yields a value.
type Control[T any] struct {
	value T
	state State
}

// Some returns a control carrying v.
func Some[T any](v T) Control[T] {
	return Control[T]{value: v, state: StateValue}
}

// Skip returns a control for a filtered-out position.
func Skip[T any]() Control[T] {
	return Control[T]{state: StateSkip}
}

// EndOfStream returns the terminal control.
func EndOfStream[T any]() Control[T] {
	return Control[T]{state: StateEndOfStream}
}

func (c Control[T]) State() State { return c.state }

// Value returns the carried value and whether there is one.
func (c Control[T]) Value() (T, bool) {
	return c.value, c.state == StateValue
}

func (c Control[T]) HasValue() bool { return c.state == StateValue }

func (c Control[T]) IsSkip() bool { return c.state == StateSkip }

func (c Control[T]) IsEndOfStream() bool { return c.state == StateEndOfStream }

// Valid reports whether c was built by Some, Skip or EndOfStream.
func (c Control[T]) Valid() bool {
	return c.state >= StateValue && c.state <= StateEndOfStream
}

func (c Control[T]) String() string { return c.state.String() }

// Map applies fn to a carried value. Skip and EndOfStream pass through; an
// invalid control is an error.
func Map[T, U any](c Control[T], fn func(T) (U, error)) (Control[U], error) {
	switch c.state {
	case StateValue:
		u, err := fn(c.value)
		if err != nil {
			return Control[U]{}, err
		}
		return Some(u), nil
	case StateSkip:
		return Skip[U](), nil
	case StateEndOfStream:
		return EndOfStream[U](), nil
	default:
		return Control[U]{}, errors.InvalidInput(errors.PhaseStream, "invalid stream control")
	}
}

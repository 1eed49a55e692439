package module

import (
	"github.com/wippyai/wasm-lens/errors"
	"github.com/wippyai/wasm-lens/params"
	"github.com/wippyai/wasm-lens/record"
	"github.com/wippyai/wasm-lens/stream"
)

// Control is the outcome of one transform or inverse step.
type Control = stream.Control[*record.Record]

// Source is the upstream a lens pulls records from. A push-style host
// supplies a source holding exactly one control; a pull-style host
// supplies one backed by the next import.
type Source = stream.Source[*record.Record]

// Lens is a parameterized forward transform.
//
// Transform must read its parameters through st before pulling from src,
// so that an unconfigured lens fails without consuming input.
type Lens[P any] interface {
	Transform(st *State[P], src Source) (Control, error)
}

// Inverter is implemented by lenses that can undo their transform.
type Inverter[P any] interface {
	Inverse(st *State[P], src Source) (Control, error)
}

// PullOnly is implemented by lenses that emit records without consuming
// input. They cannot be driven in push style, where every call hands over
// a record that must be accounted for.
type PullOnly interface {
	PullOnly() bool
}

// Validator is implemented by parameter types that check themselves after
// decoding. A failed validation leaves the previous parameters in effect.
type Validator interface {
	Validate() error
}

// State is a lens's view of its parameter store for one call.
type State[P any] struct {
	store *params.Store[P]
	phase errors.Phase
}

// NewState binds store to the entry point phase. Module builds one per
// call; lenses can be exercised directly with it.
func NewState[P any](store *params.Store[P], phase errors.Phase) *State[P] {
	return &State[P]{store: store, phase: phase}
}

// Params returns a copy of the current parameters.
func (s *State[P]) Params() (P, error) {
	return s.store.Get(s.phase)
}

// Claim takes the next cursor position below limit. See params.Store.Claim.
func (s *State[P]) Claim(limit func(P) int) (P, int, bool, error) {
	return s.store.Claim(s.phase, limit)
}

// Phase is the entry point the call is serving.
func (s *State[P]) Phase() errors.Phase { return s.phase }

// Apply pulls one control from src and runs fn on a carried record. Skip
// and end of stream pass through untouched.
func Apply(src Source, fn func(*record.Record) (*record.Record, error)) (Control, error) {
	ctl, err := src.Next()
	if err != nil {
		return Control{}, err
	}
	return stream.Map(ctl, fn)
}

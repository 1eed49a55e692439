package module

import (
	"sync/atomic"

	"go.uber.org/zap"

	wasmlens "github.com/wippyai/wasm-lens"
	"github.com/wippyai/wasm-lens/codec"
	"github.com/wippyai/wasm-lens/errors"
	"github.com/wippyai/wasm-lens/params"
	"github.com/wippyai/wasm-lens/record"
	"github.com/wippyai/wasm-lens/stream"
)

type direction int

const (
	forward direction = iota
	backward
)

// Module is the guest side of one lens instance. Each exported method is an
// entry point: it takes and returns buffer handles in the module's own
// memory and never returns a Go error. Failures are flattened into ERROR
// buffers at this boundary.
//
// Module is safe for concurrent use. Parameter access goes through a
// reader-writer guarded store that is never locked while pulling upstream.
type Module[P any] struct {
	lens  Lens[P]
	alloc wasmlens.Allocator
	codec *codec.Codec
	name  string
	store params.Store[P]

	// upstreamDone remembers end of stream per direction for pull calls.
	upstreamDone [2]atomic.Bool
}

// New wires lens to the given memory. mem and alloc usually describe the
// same linear memory.
func New[P any](name string, lens Lens[P], mem wasmlens.Memory, alloc wasmlens.Allocator) *Module[P] {
	return &Module[P]{
		lens:  lens,
		alloc: alloc,
		codec: codec.New(mem, alloc),
		name:  name,
	}
}

func (m *Module[P]) Name() string { return m.name }

// Invertible reports whether the lens implements Inverter.
func (m *Module[P]) Invertible() bool {
	_, ok := m.lens.(Inverter[P])
	return ok
}

// Configured reports whether SetParam has succeeded at least once.
func (m *Module[P]) Configured() bool { return m.store.Configured() }

// Codec exposes the module's buffer codec.
func (m *Module[P]) Codec() *codec.Codec { return m.codec }

// Alloc reserves size bytes for the host to write a buffer into. It
// returns the null handle when memory is exhausted.
func (m *Module[P]) Alloc(size uint32) uint32 {
	ptr, err := m.codec.Alloc(size)
	if err != nil {
		Logger().Debug("alloc failed", zap.String("lens", m.name), zap.Uint32("size", size), zap.Error(err))
		return codec.Nil
	}
	return ptr
}

// Free releases a buffer this module returned.
func (m *Module[P]) Free(ptr, size uint32) {
	if ptr == codec.Nil {
		return
	}
	m.alloc.Free(ptr, size, 1)
}

// SetParam decodes and installs parameters. It returns the null handle on
// success. On failure the previous parameters stay in effect.
func (m *Module[P]) SetParam(ptr uint32) uint32 {
	return m.boundary(errors.PhaseParam, func() (uint32, error) {
		f, err := m.codec.Take(ptr)
		if err != nil {
			return codec.Nil, err
		}
		if f.Absent() {
			return codec.Nil, errors.New(errors.PhaseParam, errors.KindParametersNotSet).
				Detail("no parameters supplied").
				Build()
		}

		var p P
		if err := codec.Unmarshal(f, &p); err != nil {
			return codec.Nil, err
		}
		if err := validate(&p); err != nil {
			return codec.Nil, err
		}

		m.store.Set(p)
		m.upstreamDone[forward].Store(false)
		m.upstreamDone[backward].Store(false)
		return codec.Nil, nil
	})
}

func validate(p any) error {
	if v, ok := p.(Validator); ok {
		return v.Validate()
	}
	return nil
}

// Transform runs one push-style step over the control encoded at ptr.
func (m *Module[P]) Transform(ptr uint32) uint32 {
	return m.boundary(errors.PhaseTransform, func() (uint32, error) {
		return m.push(errors.PhaseTransform, ptr, m.lens.Transform)
	})
}

// TransformPull runs one pull-style step. next returns the handle of the
// next upstream buffer, written into this module's memory by the host.
func (m *Module[P]) TransformPull(next func() uint32) uint32 {
	return m.boundary(errors.PhaseTransform, func() (uint32, error) {
		return m.pull(errors.PhaseTransform, forward, next, m.lens.Transform)
	})
}

// Inverse runs one push-style inverse step.
func (m *Module[P]) Inverse(ptr uint32) uint32 {
	return m.boundary(errors.PhaseInverse, func() (uint32, error) {
		inv, err := m.inverter()
		if err != nil {
			m.codec.Free(ptr)
			return codec.Nil, err
		}
		return m.push(errors.PhaseInverse, ptr, inv.Inverse)
	})
}

// InversePull runs one pull-style inverse step.
func (m *Module[P]) InversePull(next func() uint32) uint32 {
	return m.boundary(errors.PhaseInverse, func() (uint32, error) {
		inv, err := m.inverter()
		if err != nil {
			return codec.Nil, err
		}
		return m.pull(errors.PhaseInverse, backward, next, inv.Inverse)
	})
}

func (m *Module[P]) inverter() (Inverter[P], error) {
	inv, ok := m.lens.(Inverter[P])
	if !ok {
		return nil, errors.Unsupported(errors.PhaseInverse, "lens "+m.name+" is not invertible")
	}
	return inv, nil
}

type step[P any] func(*State[P], Source) (Control, error)

func (m *Module[P]) state(phase errors.Phase) *State[P] {
	return NewState(&m.store, phase)
}

func (m *Module[P]) push(phase errors.Phase, ptr uint32, fn step[P]) (uint32, error) {
	in, err := m.codec.TakeControl(ptr, phase)
	if err != nil {
		return codec.Nil, err
	}
	if po, ok := m.lens.(PullOnly); ok && po.PullOnly() {
		return codec.Nil, errors.InvalidInput(phase, "lens "+m.name+" must be driven in pull style")
	}

	src := stream.Once(in)
	out, err := fn(m.state(phase), src)
	if err != nil {
		return codec.Nil, err
	}
	if pending, ok := src.Pending(); ok && pending.HasValue() {
		return codec.Nil, errors.InvalidInput(phase, "pushed record was not consumed by lens "+m.name)
	}
	return m.codec.EncodeControl(out)
}

func (m *Module[P]) pull(phase errors.Phase, dir direction, next func() uint32, fn step[P]) (uint32, error) {
	src := &pullSource{
		codec: m.codec,
		next:  next,
		done:  &m.upstreamDone[dir],
	}
	out, err := fn(m.state(phase), src)
	if err != nil {
		return codec.Nil, err
	}
	return m.codec.EncodeControl(out)
}

// boundary runs fn and converts any error or panic into an ERROR buffer.
func (m *Module[P]) boundary(phase errors.Phase, fn func() (uint32, error)) (ptr uint32) {
	defer func() {
		if r := recover(); r != nil {
			ptr = m.fail(phase, errors.Panic(phase, r))
		}
	}()

	out, err := fn()
	if err != nil {
		return m.fail(phase, err)
	}
	return out
}

func (m *Module[P]) fail(phase errors.Phase, err error) uint32 {
	Logger().Debug("lens call failed",
		zap.String("lens", m.name),
		zap.String("phase", string(phase)),
		zap.Error(err))

	ptr, encErr := m.codec.EncodeError(err)
	if encErr != nil {
		// Returning the null handle would read as a skip. Trap instead.
		panic(encErr)
	}
	return ptr
}

// pullSource reads upstream controls through the host's next import and
// stops calling it once end of stream has been seen.
type pullSource struct {
	codec *codec.Codec
	next  func() uint32
	done  *atomic.Bool
}

func (s *pullSource) Next() (Control, error) {
	if s.done.Load() {
		return stream.EndOfStream[*record.Record](), nil
	}
	ctl, err := s.codec.TakeControl(s.next(), errors.PhaseHost)
	if err != nil {
		return Control{}, err
	}
	if ctl.IsEndOfStream() {
		s.done.Store(true)
	}
	return ctl, nil
}

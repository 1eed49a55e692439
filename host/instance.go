package host

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-lens/codec"
	"github.com/wippyai/wasm-lens/errors"
	"github.com/wippyai/wasm-lens/record"
	"github.com/wippyai/wasm-lens/stream"
)

// Control is one lens outcome as seen by the host.
type Control = stream.Control[*record.Record]

// Source is an upstream of records.
type Source = stream.Source[*record.Record]

// Direction selects the transform or inverse entry point.
type Direction int

const (
	Forward Direction = iota
	Inverse
)

func (d Direction) String() string {
	if d == Inverse {
		return "inverse"
	}
	return "forward"
}

// Instance is one instantiated lens. Guest calls on an instance are
// serialized; a push-style call pulls its upstream before it waits for the
// instance.
type Instance struct {
	id     uuid.UUID
	module *Module
	mod    api.Module
	log    *zap.Logger

	alloc     api.Function
	free      api.Function
	setParam  api.Function
	transform api.Function
	inverse   api.Function

	mu        sync.Mutex
	direction Direction
	closed    bool
}

func (i *Instance) ID() uuid.UUID { return i.id }

func (i *Instance) Module() *Module { return i.module }

// Direction is the direction the instance was opened for.
func (i *Instance) Direction() Direction { return i.direction }

func (i *Instance) codec(ctx context.Context) *codec.Codec {
	return codec.New(guestMemory{mem: i.mod.Memory()}, guestAllocator{ctx: ctx, alloc: i.alloc, free: i.free})
}

// SetParam sends v, marshalled as JSON, to the lens's set_param export.
func (i *Instance) SetParam(ctx context.Context, v any) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return errors.InvalidInput(errors.PhaseParam, "instance is closed")
	}

	c := i.codec(ctx)
	ptr, err := c.EncodeJSON(v)
	if err != nil {
		return err
	}
	res, err := i.call(ctx, errors.PhaseParam, ExportSetParam, i.setParam, uint64(ptr))
	if err != nil {
		return err
	}
	f, err := c.Take(res)
	if err != nil {
		return err
	}
	switch f.Tag {
	case codec.TagAbsent:
		return nil
	case codec.TagError:
		err := errors.Remote(errors.PhaseParam, string(f.Payload))
		i.log.Warn("set_param rejected", zap.Error(err))
		return err
	}
	return errors.InvalidInput(errors.PhaseParam, "set_param returned a "+f.Tag.String()+" buffer")
}

// Transform runs one forward step over upstream.
func (i *Instance) Transform(ctx context.Context, upstream Source) (Control, error) {
	return i.step(ctx, Forward, upstream)
}

// Inverse runs one inverse step over upstream.
func (i *Instance) Inverse(ctx context.Context, upstream Source) (Control, error) {
	return i.step(ctx, Inverse, upstream)
}

// Stream exposes the instance as a source in direction dir. Upstream is
// never pulled after it reports end of stream, and neither is the lens.
func (i *Instance) Stream(ctx context.Context, upstream Source, dir Direction) Source {
	up := stream.Terminate(upstream)
	return stream.Terminate[*record.Record](stream.SourceFunc[*record.Record](func() (Control, error) {
		return i.step(ctx, dir, up)
	}))
}

// step runs one call. A push-style step pulls its input before taking the
// instance lock, so an instance may appear in its own upstream. A pull-style
// step holds the lock for the whole guest call, including its pulls through
// lens.next, and must not be composed over itself.
func (i *Instance) step(ctx context.Context, dir Direction, upstream Source) (Control, error) {
	phase, entry, fn, shape := errors.PhaseTransform, ExportTransform, i.transform, i.module.abi.transform
	if dir == Inverse {
		phase, entry, fn, shape = errors.PhaseInverse, ExportInverse, i.inverse, i.module.abi.inverse
	}
	if shape == ShapeNone {
		return Control{}, errors.Unsupported(phase, "module "+i.module.name+" has no inverse")
	}
	if shape == ShapePush {
		in, err := upstream.Next()
		if err != nil {
			return Control{}, err
		}
		return i.push(ctx, phase, entry, fn, in)
	}
	return i.pull(ctx, phase, entry, fn, upstream)
}

func (i *Instance) push(ctx context.Context, phase errors.Phase, entry string, fn api.Function, in Control) (Control, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return Control{}, errors.InvalidInput(phase, "instance is closed")
	}

	c := i.codec(ctx)
	ptr, err := c.EncodeControl(in)
	if err != nil {
		return Control{}, err
	}
	res, err := i.call(ctx, phase, entry, fn, uint64(ptr))
	if err != nil {
		return Control{}, err
	}
	return i.result(c, phase, res)
}

func (i *Instance) pull(ctx context.Context, phase errors.Phase, entry string, fn api.Function, upstream Source) (Control, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return Control{}, errors.InvalidInput(phase, "instance is closed")
	}

	c := i.codec(ctx)
	pc := &pullCall{upstream: upstream, alloc: i.alloc, free: i.free}
	res, err := i.call(withPullCall(ctx, pc), phase, entry, fn)
	if err != nil {
		if pc.err != nil {
			return Control{}, pc.err
		}
		return Control{}, err
	}
	out, err := i.result(c, phase, res)
	if pc.err != nil {
		// The lens saw the upstream failure as an ERROR buffer; report the
		// original error rather than its relayed message.
		return Control{}, pc.err
	}
	return out, err
}

func (i *Instance) result(c *codec.Codec, phase errors.Phase, res uint32) (Control, error) {
	out, err := c.TakeControl(res, phase)
	if err != nil {
		i.log.Warn("lens call failed", zap.String("phase", string(phase)), zap.Error(err))
		return Control{}, err
	}
	return out, nil
}

func (i *Instance) call(ctx context.Context, phase errors.Phase, entry string, fn api.Function, args ...uint64) (uint32, error) {
	start := time.Now()
	results, err := fn.Call(ctx, args...)
	elapsed := time.Since(start)

	if err != nil {
		i.module.rt.metrics.observe(i.module.name, entry, outcomeTrap, elapsed)
		i.log.Warn("guest trapped", zap.String("entry", entry), zap.Error(err))
		return codec.Nil, errors.Trap(phase, entry, err)
	}
	if len(results) != 1 {
		i.module.rt.metrics.observe(i.module.name, entry, outcomeTrap, elapsed)
		return codec.Nil, errors.SignatureMismatch(entry, "one result", "none")
	}

	ptr := uint32(results[0])
	outcome := outcomeOK
	if ptr != codec.Nil {
		if tag, ok := i.mod.Memory().ReadByte(ptr); ok && codec.Tag(int8(tag)) == codec.TagError {
			outcome = outcomeError
		}
	}
	i.module.rt.metrics.observe(i.module.name, entry, outcome, elapsed)
	i.log.Debug("guest call", zap.String("entry", entry), zap.String("outcome", outcome), zap.Duration("elapsed", elapsed))
	return ptr, nil
}

// Close tears the instance down.
func (i *Instance) Close(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return nil
	}
	i.closed = true
	i.module.rt.untrack(i)
	i.module.rt.metrics.instanceClosed(i.module.name)
	return i.mod.Close(ctx)
}

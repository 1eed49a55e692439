package host

import (
	"context"

	"github.com/wippyai/wasm-lens/config"
)

// Pool keeps configured instances of one lens for reuse. Acquire hands out
// an idle instance or creates one; Release reconfigures an instance, which
// rewinds any lens state, and keeps it if there is room.
type Pool struct {
	module *Module
	cfg    config.Module
	idle   chan *Instance
}

// NewPool creates a pool of instances of m configured by cfg. size bounds
// the idle instances kept; values below one mean DefaultPoolSize.
func NewPool(m *Module, size int, cfg config.Module) *Pool {
	if size < 1 {
		size = DefaultPoolSize
	}
	return &Pool{
		module: m,
		cfg:    cfg,
		idle:   make(chan *Instance, size),
	}
}

// Acquire returns a configured instance.
func (p *Pool) Acquire(ctx context.Context) (*Instance, error) {
	select {
	case inst := <-p.idle:
		return inst, nil
	default:
	}

	inst, err := p.module.Instantiate(ctx)
	if err != nil {
		return nil, err
	}
	if err := inst.SetParam(ctx, arguments(p.cfg)); err != nil {
		_ = inst.Close(ctx)
		return nil, err
	}
	if p.cfg.Inverse {
		inst.direction = Inverse
	}
	return inst, nil
}

// Release returns inst to the pool. Instances that fail to reconfigure or
// do not fit are closed.
func (p *Pool) Release(ctx context.Context, inst *Instance) {
	if err := inst.SetParam(ctx, arguments(p.cfg)); err != nil {
		inst.log.Warn("dropping instance that failed to reconfigure")
		_ = inst.Close(ctx)
		return
	}
	select {
	case p.idle <- inst:
	default:
		_ = inst.Close(ctx)
	}
}

// Idle returns the number of pooled instances.
func (p *Pool) Idle() int { return len(p.idle) }

// Close closes every idle instance.
func (p *Pool) Close(ctx context.Context) {
	for {
		select {
		case inst := <-p.idle:
			_ = inst.Close(ctx)
		default:
			return
		}
	}
}

package host

import (
	"context"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-lens/errors"
)

// Module is a compiled, validated lens module.
type Module struct {
	rt       *Runtime
	compiled wazero.CompiledModule
	name     string
	abi      abi
}

func (m *Module) Name() string { return m.name }

// Shape returns the calling convention of the transform export.
func (m *Module) Shape() Shape { return m.abi.transform }

// InverseShape returns the calling convention of the inverse export, or
// ShapeNone.
func (m *Module) InverseShape() Shape { return m.abi.inverse }

func (m *Module) Invertible() bool { return m.abi.inverse != ShapeNone }

// Instantiate creates an unconfigured instance. Go reactors are
// initialized through their _initialize export.
func (m *Module) Instantiate(ctx context.Context) (*Instance, error) {
	id := uuid.New()
	cfg := wazero.NewModuleConfig().
		WithName(m.name + "/" + id.String()).
		WithStartFunctions("_initialize")

	mod, err := m.rt.runtime.InstantiateModule(ctx, m.compiled, cfg)
	if err != nil {
		return nil, errors.Instantiation(err)
	}

	inst := &Instance{
		id:        id,
		module:    m,
		mod:       mod,
		alloc:     mod.ExportedFunction(ExportAlloc),
		setParam:  mod.ExportedFunction(ExportSetParam),
		transform: mod.ExportedFunction(ExportTransform),
		log: m.rt.log.With(
			zap.String("module", m.name),
			zap.String("instance", id.String())),
	}
	if m.abi.free {
		inst.free = mod.ExportedFunction(ExportFree)
	}
	if m.Invertible() {
		inst.inverse = mod.ExportedFunction(ExportInverse)
	}

	m.rt.track(inst)
	m.rt.metrics.instanceOpened(m.name)
	inst.log.Debug("lens instance created")
	return inst, nil
}

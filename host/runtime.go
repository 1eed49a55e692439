package host

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-lens/config"
	"github.com/wippyai/wasm-lens/errors"
)

// DefaultPoolSize is the number of idle instances a Pool keeps.
const DefaultPoolSize = 5

// Config holds configuration for runtime creation
type Config struct {
	// Logger overrides the package logger for this runtime.
	Logger *zap.Logger

	// Registerer receives the runtime's metrics. Nil disables metrics.
	Registerer prometheus.Registerer

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means the wazero default.
	MemoryLimitPages uint32

	// PoolSize bounds the idle instances kept per pool. 0 means DefaultPoolSize.
	PoolSize int
}

// Runtime compiles and runs lens modules. It is safe for concurrent use.
type Runtime struct {
	runtime wazero.Runtime
	log     *zap.Logger
	metrics *Metrics
	modules map[string]*Module
	open    map[*Instance]struct{}
	mu      sync.Mutex
	pool    int
}

// New creates a runtime with WASI preview1 and the lens host module
// instantiated.
func New(ctx context.Context, cfg *Config) (*Runtime, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	r := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		_ = r.Close(ctx)
		return nil, errors.Instantiation(err)
	}

	params, results := nextSig.core()
	_, err := r.NewHostModuleBuilder(ImportModule).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(next), params, results).
		Export(ImportNext).
		Instantiate(ctx)
	if err != nil {
		_ = r.Close(ctx)
		return nil, errors.Instantiation(err)
	}

	rt := &Runtime{
		runtime: r,
		log:     cfg.Logger,
		modules: make(map[string]*Module),
		open:    make(map[*Instance]struct{}),
		pool:    cfg.PoolSize,
	}
	if rt.log == nil {
		rt.log = Logger()
	}
	if rt.pool <= 0 {
		rt.pool = DefaultPoolSize
	}
	if cfg.Registerer != nil {
		m, err := NewMetrics(cfg.Registerer)
		if err != nil {
			_ = r.Close(ctx)
			return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "register metrics")
		}
		rt.metrics = m
	}
	return rt, nil
}

// Load compiles wasm and validates its exports and imports.
func (r *Runtime) Load(ctx context.Context, name string, wasm []byte) (*Module, error) {
	compiled, err := r.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return nil, errors.Load("compile "+name, err)
	}
	abi, err := inspect(compiled)
	if err != nil {
		_ = compiled.Close(ctx)
		return nil, err
	}

	r.log.Debug("lens module loaded",
		zap.String("module", name),
		zap.Stringer("transform", abi.transform),
		zap.Stringer("inverse", abi.inverse),
		zap.Bool("imports_next", abi.pulls))

	return &Module{
		rt:       r,
		compiled: compiled,
		name:     name,
		abi:      abi,
	}, nil
}

// LoadFile loads the module at path. Modules are compiled once per path.
func (r *Runtime) LoadFile(ctx context.Context, path string) (*Module, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.modules[path]; ok {
		return m, nil
	}
	wasm, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindNotFound, err, "read "+path)
	}
	m, err := r.Load(ctx, filepath.Base(path), wasm)
	if err != nil {
		return nil, err
	}
	r.modules[path] = m
	return m, nil
}

// Open loads, instantiates and configures the lens described by cfg. The
// instance's Direction follows cfg.Inverse.
func (r *Runtime) Open(ctx context.Context, cfg config.Module) (*Instance, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m, err := r.LoadFile(ctx, cfg.Path)
	if err != nil {
		return nil, err
	}
	if cfg.Inverse && !m.Invertible() {
		return nil, errors.Unsupported(errors.PhaseConfig, "module "+m.name+" has no inverse")
	}

	inst, err := m.Instantiate(ctx)
	if err != nil {
		return nil, err
	}
	if err := inst.SetParam(ctx, arguments(cfg)); err != nil {
		_ = inst.Close(ctx)
		return nil, err
	}
	if cfg.Inverse {
		inst.direction = Inverse
	}
	return inst, nil
}

// Pool returns an instance pool for the lens described by cfg.
func (r *Runtime) Pool(ctx context.Context, cfg config.Module) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m, err := r.LoadFile(ctx, cfg.Path)
	if err != nil {
		return nil, err
	}
	if cfg.Inverse && !m.Invertible() {
		return nil, errors.Unsupported(errors.PhaseConfig, "module "+m.name+" has no inverse")
	}
	return NewPool(m, r.pool, cfg), nil
}

func arguments(cfg config.Module) any {
	if cfg.Arguments == nil {
		return map[string]any{}
	}
	return cfg.Arguments
}

func (r *Runtime) track(inst *Instance) {
	r.mu.Lock()
	r.open[inst] = struct{}{}
	r.mu.Unlock()
}

func (r *Runtime) untrack(inst *Instance) {
	r.mu.Lock()
	delete(r.open, inst)
	r.mu.Unlock()
}

// Close closes every open instance, then releases every compiled module.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	r.modules = make(map[string]*Module)
	open := make([]*Instance, 0, len(r.open))
	for inst := range r.open {
		open = append(open, inst)
	}
	r.mu.Unlock()

	for _, inst := range open {
		_ = inst.Close(ctx)
	}
	return r.runtime.Close(ctx)
}

package host

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/wippyai/wasm-lens/config"
	"github.com/wippyai/wasm-lens/errors"
	"github.com/wippyai/wasm-lens/record"
	"github.com/wippyai/wasm-lens/stream"
)

func newRuntime(t *testing.T, cfg *Config) *Runtime {
	t.Helper()
	ctx := context.Background()
	rt, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close(ctx) })
	return rt
}

func instantiate(t *testing.T, rt *Runtime, name string, wasm []byte) *Instance {
	t.Helper()
	ctx := context.Background()
	m, err := rt.Load(ctx, name, wasm)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	inst, err := m.Instantiate(ctx)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	return inst
}

func parse(t *testing.T, doc string) *record.Record {
	t.Helper()
	rec, err := record.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return rec
}

func TestLoad_Shapes(t *testing.T) {
	rt := newRuntime(t, nil)
	ctx := context.Background()

	echo, err := rt.Load(ctx, "echo", echoModule())
	if err != nil {
		t.Fatalf("Load echo: %v", err)
	}
	if echo.Shape() != ShapePush || echo.InverseShape() != ShapePush || !echo.Invertible() {
		t.Errorf("echo shapes = %v/%v", echo.Shape(), echo.InverseShape())
	}

	pass, err := rt.Load(ctx, "pass", passModule())
	if err != nil {
		t.Fatalf("Load pass: %v", err)
	}
	if pass.Shape() != ShapePull || pass.Invertible() {
		t.Errorf("pass shapes = %v/%v", pass.Shape(), pass.InverseShape())
	}
}

func TestLoad_RejectsBadModules(t *testing.T) {
	rt := newRuntime(t, nil)
	ctx := context.Background()

	noAlloc := lensModule(nilBody, testFunc{export: ExportTransform, typ: typeHandle, body: echoBody})
	noAlloc.funcs[0].export = ""

	noMemory := lensModule(nilBody, testFunc{export: ExportTransform, typ: typeHandle, body: echoBody})
	noMemory.noMemory = true

	tests := []struct {
		name string
		wasm []byte
		kind errors.Kind
		path string
	}{
		{"garbage", []byte("not wasm"), errors.KindDecode, ""},
		{"no memory", noMemory.build(), errors.KindMissingExport, ExportMemory},
		{"no alloc", noAlloc.build(), errors.KindMissingExport, ExportAlloc},
		{"no transform", lensModule(nilBody).build(), errors.KindMissingExport, ExportTransform},
		{
			"transform signature",
			lensModule(nilBody, testFunc{export: ExportTransform, typ: typeFree, body: noopBody}).build(),
			errors.KindSignatureMismatch, ExportTransform,
		},
		{
			"free signature",
			testModule{funcs: []testFunc{
				{export: ExportAlloc, typ: typeHandle, body: allocBody},
				{export: ExportFree, typ: typeHandle, body: echoBody},
				{export: ExportSetParam, typ: typeHandle, body: nilBody},
				{export: ExportTransform, typ: typeHandle, body: echoBody},
			}}.build(),
			errors.KindSignatureMismatch, ExportFree,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := rt.Load(ctx, tt.name, tt.wasm)
			if errors.KindOf(err) != tt.kind {
				t.Fatalf("error = %v, want kind %s", err, tt.kind)
			}
			if tt.path != "" && !strings.Contains(err.Error(), tt.path) {
				t.Errorf("error %q does not name %s", err, tt.path)
			}
		})
	}
}

func TestInstance_PushTransform(t *testing.T) {
	rt := newRuntime(t, nil)
	inst := instantiate(t, rt, "echo", echoModule())
	ctx := context.Background()

	if err := inst.SetParam(ctx, map[string]any{"dst": "z"}); err != nil {
		t.Fatalf("SetParam: %v", err)
	}

	src := stream.FromControls(
		stream.Some(parse(t, `{"a":1,"b":[true,null]}`)),
		stream.Skip[*record.Record](),
	)
	want := []stream.State{stream.StateValue, stream.StateSkip, stream.StateEndOfStream}
	for i, state := range want {
		ctl, err := inst.Transform(ctx, src)
		if err != nil {
			t.Fatalf("Transform %d: %v", i, err)
		}
		if ctl.State() != state {
			t.Fatalf("Transform %d: state = %v, want %v", i, ctl.State(), state)
		}
		if rec, ok := ctl.Value(); ok && !rec.Equal(parse(t, `{"a":1,"b":[true,null]}`)) {
			t.Errorf("record = %s", rec)
		}
	}
}

func TestInstance_Stream(t *testing.T) {
	rt := newRuntime(t, nil)
	inst := instantiate(t, rt, "echo", echoModule())
	ctx := context.Background()

	for _, dir := range []Direction{Forward, Inverse} {
		t.Run(dir.String(), func(t *testing.T) {
			src := stream.FromControls(
				stream.Some(parse(t, `{"n":1}`)),
				stream.Skip[*record.Record](),
				stream.Some(parse(t, `{"n":2}`)),
			)
			out, err := stream.Collect(inst.Stream(ctx, src, dir))
			if err != nil {
				t.Fatalf("Collect: %v", err)
			}
			if len(out) != 2 || out[0].String() != `{"n":1}` || out[1].String() != `{"n":2}` {
				t.Errorf("records = %v", out)
			}
		})
	}
}

func TestInstance_PullTransform(t *testing.T) {
	rt := newRuntime(t, nil)
	inst := instantiate(t, rt, "pass", passModule())
	ctx := context.Background()

	src := stream.FromSlice(parse(t, `{"id":"a"}`), parse(t, `{"id":"b"}`))
	out, err := stream.Collect(inst.Stream(ctx, src, Forward))
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(out) != 2 || out[1].String() != `{"id":"b"}` {
		t.Errorf("records = %v", out)
	}

	if _, err := inst.Inverse(ctx, src); errors.KindOf(err) != errors.KindUnsupported {
		t.Errorf("Inverse error = %v, want unsupported", err)
	}
}

func TestInstance_PullUpstreamError(t *testing.T) {
	rt := newRuntime(t, nil)
	inst := instantiate(t, rt, "pass", passModule())

	upstreamErr := stderrors.New("upstream went away")
	src := stream.SourceFunc[*record.Record](func() (Control, error) {
		return Control{}, upstreamErr
	})
	if _, err := inst.Transform(context.Background(), src); !stderrors.Is(err, upstreamErr) {
		t.Errorf("error = %v, want upstream error", err)
	}
}

func TestInstance_PushUpstreamError(t *testing.T) {
	rt := newRuntime(t, nil)
	inst := instantiate(t, rt, "echo", echoModule())

	upstreamErr := stderrors.New("upstream went away")
	src := stream.SourceFunc[*record.Record](func() (Control, error) {
		return Control{}, upstreamErr
	})
	if _, err := inst.Transform(context.Background(), src); !stderrors.Is(err, upstreamErr) {
		t.Errorf("error = %v, want upstream error", err)
	}
}

func TestInstance_GuestErrors(t *testing.T) {
	rt := newRuntime(t, nil)
	ctx := context.Background()

	failing := instantiate(t, rt, "failing", lensModule(errorBody,
		testFunc{export: ExportTransform, typ: typeHandle, body: errorBody},
	).build())

	err := failing.SetParam(ctx, map[string]any{})
	if !stderrors.Is(err, errors.ErrRemote) || !strings.Contains(err.Error(), "boom") {
		t.Errorf("SetParam error = %v, want remote boom", err)
	}
	_, err = failing.Transform(ctx, stream.FromSlice(parse(t, `{}`)))
	if !stderrors.Is(err, errors.ErrRemote) {
		t.Errorf("Transform error = %v, want remote", err)
	}

	trapping := instantiate(t, rt, "trapping", lensModule(nilBody,
		testFunc{export: ExportTransform, typ: typeHandle, body: trapBody},
	).build())
	_, err = trapping.Transform(ctx, stream.FromSlice(parse(t, `{}`)))
	if errors.KindOf(err) != errors.KindTrap {
		t.Errorf("Transform error = %v, want trap", err)
	}
}

func TestInstance_Closed(t *testing.T) {
	rt := newRuntime(t, nil)
	inst := instantiate(t, rt, "echo", echoModule())
	ctx := context.Background()

	if err := inst.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := inst.Close(ctx); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if _, err := inst.Transform(ctx, stream.FromSlice(parse(t, `{}`))); err == nil {
		t.Error("Transform on a closed instance should fail")
	}
}

func writeModule(t *testing.T, wasm []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lens.wasm")
	if err := os.WriteFile(path, wasm, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestRuntime_LoadFileCaches(t *testing.T) {
	rt := newRuntime(t, nil)
	ctx := context.Background()
	path := writeModule(t, echoModule())

	a, err := rt.LoadFile(ctx, path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	b, err := rt.LoadFile(ctx, path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if a != b {
		t.Error("LoadFile compiled the same path twice")
	}

	if _, err := rt.LoadFile(ctx, filepath.Join(t.TempDir(), "missing.wasm")); errors.KindOf(err) != errors.KindNotFound {
		t.Errorf("missing file error = %v", err)
	}
}

func TestRuntime_Open(t *testing.T) {
	rt := newRuntime(t, nil)
	ctx := context.Background()

	echo := writeModule(t, echoModule())
	inst, err := rt.Open(ctx, config.Module{Path: echo, Inverse: true, Arguments: map[string]any{"dst": "z"}})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if inst.Direction() != Inverse {
		t.Errorf("Direction = %v, want inverse", inst.Direction())
	}

	pass := writeModule(t, passModule())
	if _, err := rt.Open(ctx, config.Module{Path: pass, Inverse: true}); errors.KindOf(err) != errors.KindUnsupported {
		t.Errorf("inverse of a forward-only module = %v", err)
	}
	if _, err := rt.Open(ctx, config.Module{}); errors.KindOf(err) != errors.KindValidation {
		t.Errorf("empty config = %v", err)
	}

	failing := writeModule(t, lensModule(errorBody,
		testFunc{export: ExportTransform, typ: typeHandle, body: echoBody},
	).build())
	if _, err := rt.Open(ctx, config.Module{Path: failing}); !stderrors.Is(err, errors.ErrRemote) {
		t.Errorf("rejected parameters = %v", err)
	}
}

func TestPool(t *testing.T) {
	rt := newRuntime(t, &Config{PoolSize: 1})
	ctx := context.Background()
	path := writeModule(t, echoModule())

	pool, err := rt.Pool(ctx, config.Module{Path: path})
	if err != nil {
		t.Fatalf("Pool: %v", err)
	}
	defer pool.Close(ctx)

	a, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	b, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if a == b {
		t.Fatal("two acquisitions returned the same instance")
	}

	pool.Release(ctx, a)
	pool.Release(ctx, b)
	if pool.Idle() != 1 {
		t.Errorf("Idle = %d, want 1", pool.Idle())
	}

	c, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if c != a {
		t.Error("idle instance was not reused")
	}
	if _, err := b.Transform(ctx, stream.FromSlice(parse(t, `{}`))); err == nil {
		t.Error("surplus instance should have been closed")
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	rt := newRuntime(t, &Config{Registerer: reg})
	ctx := context.Background()

	inst := instantiate(t, rt, "echo", echoModule())
	if err := inst.SetParam(ctx, map[string]any{}); err != nil {
		t.Fatalf("SetParam: %v", err)
	}
	src := stream.FromSlice(parse(t, `{}`))
	for i := 0; i < 2; i++ {
		if _, err := inst.Transform(ctx, src); err != nil {
			t.Fatalf("Transform: %v", err)
		}
	}

	if got := testutil.ToFloat64(rt.metrics.calls.WithLabelValues("echo", ExportTransform, outcomeOK)); got != 2 {
		t.Errorf("transform calls = %v, want 2", got)
	}
	if got := testutil.ToFloat64(rt.metrics.calls.WithLabelValues("echo", ExportSetParam, outcomeOK)); got != 1 {
		t.Errorf("set_param calls = %v, want 1", got)
	}
	if got := testutil.ToFloat64(rt.metrics.instances.WithLabelValues("echo")); got != 1 {
		t.Errorf("instances = %v, want 1", got)
	}

	failing := instantiate(t, rt, "failing", lensModule(errorBody,
		testFunc{export: ExportTransform, typ: typeHandle, body: echoBody},
	).build())
	_ = failing.SetParam(ctx, map[string]any{})
	if got := testutil.ToFloat64(rt.metrics.calls.WithLabelValues("failing", ExportSetParam, outcomeError)); got != 1 {
		t.Errorf("failed set_param calls = %v, want 1", got)
	}

	_ = inst.Close(ctx)
	if got := testutil.ToFloat64(rt.metrics.instances.WithLabelValues("echo")); got != 0 {
		t.Errorf("instances after close = %v, want 0", got)
	}

	if _, err := New(ctx, &Config{Registerer: reg}); err == nil {
		t.Error("registering the same collectors twice should fail")
	}
}

func TestInstance_RequestedPropertySurvives(t *testing.T) {
	rt := newRuntime(t, nil)
	inst := instantiate(t, rt, "missing", lensModule(nilBody,
		testFunc{export: ExportTransform, typ: typeHandle, body: notFoundBody},
	).build())

	_, err := inst.Transform(context.Background(), stream.FromSlice(parse(t, `{"x":1}`)))
	if !stderrors.Is(err, errors.ErrPropertyNotFound) {
		t.Fatalf("error = %v, want property not found", err)
	}
	if name, ok := errors.Requested(err); !ok || name != "a" {
		t.Errorf("Requested = %q, %v; want a", name, ok)
	}
}

func TestInstance_PushComposesOverItself(t *testing.T) {
	rt := newRuntime(t, nil)
	inst := instantiate(t, rt, "echo", echoModule())
	ctx := context.Background()

	src := stream.FromSlice(parse(t, `{"a":1}`), parse(t, `{"a":2}`))
	roundTrip := inst.Stream(ctx, inst.Stream(ctx, src, Forward), Inverse)

	type result struct {
		out []*record.Record
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := stream.Collect(roundTrip)
		done <- result{out, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("Collect: %v", r.err)
		}
		if len(r.out) != 2 || r.out[0].String() != `{"a":1}` || r.out[1].String() != `{"a":2}` {
			t.Errorf("records = %v", r.out)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("inverse over transform on one instance did not finish")
	}
}

func TestRuntime_CloseReleasesInstances(t *testing.T) {
	reg := prometheus.NewRegistry()
	rt := newRuntime(t, &Config{Registerer: reg})
	ctx := context.Background()

	a := instantiate(t, rt, "echo", echoModule())
	instantiate(t, rt, "echo", echoModule())
	instantiate(t, rt, "pass", passModule())
	if err := a.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := testutil.ToFloat64(rt.metrics.instances.WithLabelValues("echo")); got != 1 {
		t.Fatalf("echo instances = %v, want 1", got)
	}

	if err := rt.Close(ctx); err != nil {
		t.Fatalf("Runtime.Close: %v", err)
	}
	for _, name := range []string{"echo", "pass"} {
		if got := testutil.ToFloat64(rt.metrics.instances.WithLabelValues(name)); got != 0 {
			t.Errorf("%s instances after runtime close = %v, want 0", name, got)
		}
	}
	if len(rt.open) != 0 {
		t.Errorf("open instances = %d, want 0", len(rt.open))
	}
}

// Package wasmlens implements the boundary contract between a record
// pipeline host and sandboxed lens modules compiled to WebAssembly.
//
// A lens is a small, parameterized, optionally invertible record
// transform. Host and lens exchange tagged buffers through the lens's
// linear memory; every transform step answers with a three-state stream
// control signal (a record, a skipped position, or end of stream).
//
// # Architecture Overview
//
//	wasmlens/            Root package with the Memory and Allocator interfaces
//	├── record/          Tagged-union values and ordered records
//	├── stream/          Stream control signal and record sources
//	├── codec/           Tagged buffer wire format and an in-process heap
//	├── params/          Lock-guarded parameter store with a cursor
//	├── module/          Guest-side entry points and the error boundary
//	├── lenses/          Example lenses (copyfield, prepend, removefield, setdefault)
//	├── guest/           wasip1 linear memory and host import bindings
//	├── host/            wazero host: loading, validation, invocation, pooling
//	├── config/          Lens module configuration documents
//	├── errors/          Structured error taxonomy
//	└── cmd/             Lens runner and wasip1 builds of the example lenses
//
// # Wire Format
//
// Every value crossing the boundary is a handle (a uint32 offset) to
//
//	[tag int8][length uint32 LE][payload]
//
// with tags JSON (1), ERROR (-1) and END_OF_STREAM (127). The null handle 0
// means "absent": no parameters, or a skipped stream position.
//
// # Quick Start
//
// Run a compiled lens from the host:
//
//	rt, err := host.New(ctx, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	inst, err := rt.Open(ctx, config.Module{
//	    Path:      "copyfield.wasm",
//	    Arguments: map[string]any{"src": "name", "dst": "fullName"},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Close(ctx)
//
//	out := inst.Stream(ctx, stream.FromSlice(records...), host.Forward)
//	migrated, err := stream.Collect(out)
//
// # Thread Safety
//
// Runtime, Module and Pool are safe for concurrent use. Instance serializes
// its own calls. On the guest side, module.Module guards its parameters
// with a reader-writer lock and never holds it across a pull from upstream.
package wasmlens

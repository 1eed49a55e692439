// Package host loads lens modules into wazero and drives them.
//
// A Runtime compiles modules and checks them against the lens boundary:
// a memory export, alloc and set_param, a transform export in push
// (func(u32) -> u32) or pull (func() -> u32) shape, and optionally inverse
// and free. Pull-style modules import lens.next, which the runtime serves
// from the upstream passed to the current call.
//
//	rt, err := host.New(ctx, nil)
//	inst, err := rt.Open(ctx, config.Module{Path: "copyfield.wasm", Arguments: args})
//	out := inst.Stream(ctx, upstream, inst.Direction())
//
// Buffers the host writes into a guest are released by the guest. Result
// buffers are released by the host through the guest's free export.
package host

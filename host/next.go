package host

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-lens/codec"
	"github.com/wippyai/wasm-lens/errors"
)

type pullCallKey struct{}

// pullCall is the upstream of one pull-style guest call.
type pullCall struct {
	upstream Source
	alloc    api.Function
	free     api.Function
	err      error
}

func withPullCall(ctx context.Context, pc *pullCall) context.Context {
	return context.WithValue(ctx, pullCallKey{}, pc)
}

// next implements lens.next. It pulls one control from the current call's
// upstream and writes it into the guest through the guest's own alloc.
// Upstream errors are delivered as ERROR buffers.
func next(ctx context.Context, mod api.Module, stack []uint64) {
	pc, ok := ctx.Value(pullCallKey{}).(*pullCall)
	if !ok {
		panic(errors.Unsupported(errors.PhaseHost, "lens.next called outside a pull-style call"))
	}
	c := codec.New(guestMemory{mem: mod.Memory()}, guestAllocator{ctx: ctx, alloc: pc.alloc, free: pc.free})

	ctl, err := pc.upstream.Next()
	var ptr uint32
	if err != nil {
		pc.err = err
		ptr, err = c.EncodeError(err)
	} else {
		ptr, err = c.EncodeControl(ctl)
	}
	if err != nil {
		panic(err)
	}
	stack[0] = uint64(ptr)
}

package host

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-lens/errors"
)

// guestMemory adapts a guest's exported memory to wasmlens.Memory.
type guestMemory struct {
	mem api.Memory
}

func (m guestMemory) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseMemory, offset, length)
	}
	return data, nil
}

func (m guestMemory) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return errors.OutOfBounds(errors.PhaseMemory, offset, uint32(len(data)))
	}
	return nil
}

func (m guestMemory) ReadU8(offset uint32) (uint8, error) {
	v, ok := m.mem.ReadByte(offset)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseMemory, offset, 1)
	}
	return v, nil
}

func (m guestMemory) ReadU32(offset uint32) (uint32, error) {
	v, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseMemory, offset, 4)
	}
	return v, nil
}

func (m guestMemory) WriteU8(offset uint32, value uint8) error {
	if !m.mem.WriteByte(offset, value) {
		return errors.OutOfBounds(errors.PhaseMemory, offset, 1)
	}
	return nil
}

func (m guestMemory) WriteU32(offset uint32, value uint32) error {
	if !m.mem.WriteUint32Le(offset, value) {
		return errors.OutOfBounds(errors.PhaseMemory, offset, 4)
	}
	return nil
}

// guestAllocator calls the guest's alloc and free exports. Without a free
// export released buffers stay allocated in the guest.
type guestAllocator struct {
	ctx   context.Context
	alloc api.Function
	free  api.Function
}

func (a guestAllocator) Alloc(size, _ uint32) (uint32, error) {
	results, err := a.alloc.Call(a.ctx, uint64(size))
	if err != nil {
		return 0, errors.Trap(errors.PhaseMemory, ExportAlloc, err)
	}
	if len(results) == 0 {
		return 0, errors.AllocationFailed(errors.PhaseMemory, size, nil)
	}
	return uint32(results[0]), nil
}

func (a guestAllocator) Free(ptr, size, _ uint32) {
	if a.free == nil {
		return
	}
	_, _ = a.free.Call(a.ctx, uint64(ptr), uint64(size))
}

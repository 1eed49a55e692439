//go:build wasip1

// Package guest adapts the module's own linear memory to wasmlens.Memory and
// wasmlens.Allocator, and declares the host's next import. It is only built
// for GOOS=wasip1.
package guest

import (
	"encoding/binary"
	"sync"
	"unsafe"

	"github.com/wippyai/wasm-lens/errors"
)

// Memory is the module's address space. Allocations are Go byte slices kept
// reachable in a table until the consumer frees them, so the garbage
// collector never reclaims a buffer the host still holds.
var Memory = &linearMemory{pinned: make(map[uint32][]byte)}

type linearMemory struct {
	pinned map[uint32][]byte
	mu     sync.Mutex
}

// Alloc implements wasmlens.Allocator
func (m *linearMemory) Alloc(size, align uint32) (uint32, error) {
	n := size
	if n == 0 {
		n = 1
	}
	if align == 0 {
		align = 1
	}
	// Over-allocate so the aligned start still leaves n usable bytes.
	buf := make([]byte, n+align-1)
	addr := uintptr(unsafe.Pointer(&buf[0]))
	ptr := uint32((addr + uintptr(align) - 1) &^ (uintptr(align) - 1))
	if ptr == 0 {
		return 0, errors.AllocationFailed(errors.PhaseMemory, size, nil)
	}

	m.mu.Lock()
	m.pinned[ptr] = buf
	m.mu.Unlock()
	return ptr, nil
}

// Free implements wasmlens.Allocator
func (m *linearMemory) Free(ptr, _, _ uint32) {
	m.mu.Lock()
	delete(m.pinned, ptr)
	m.mu.Unlock()
}

func (m *linearMemory) view(offset, length uint32) ([]byte, error) {
	if offset == 0 {
		return nil, errors.OutOfBounds(errors.PhaseMemory, offset, length)
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(offset))), length), nil
}

func (m *linearMemory) Read(offset uint32, length uint32) ([]byte, error) {
	b, err := m.view(offset, length)
	if err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, b)
	return out, nil
}

func (m *linearMemory) Write(offset uint32, data []byte) error {
	b, err := m.view(offset, uint32(len(data)))
	if err != nil {
		return err
	}
	copy(b, data)
	return nil
}

func (m *linearMemory) ReadU8(offset uint32) (uint8, error) {
	b, err := m.view(offset, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (m *linearMemory) ReadU32(offset uint32) (uint32, error) {
	b, err := m.view(offset, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (m *linearMemory) WriteU8(offset uint32, value uint8) error {
	b, err := m.view(offset, 1)
	if err != nil {
		return err
	}
	b[0] = value
	return nil
}

func (m *linearMemory) WriteU32(offset uint32, value uint32) error {
	b, err := m.view(offset, 4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b, value)
	return nil
}

package codec

import (
	"encoding/binary"
	"sync"

	"github.com/wippyai/wasm-lens/errors"
)

// heapBase keeps the first bytes unused so that no allocation is ever Nil.
const heapBase = 8

// Heap is an in-process linear memory with a bump allocator. It implements
// both Memory and Allocator and stands in for a module's memory when the
// protocol runs without a sandbox.
//
// Freed space is not reused, which keeps handles unique for the lifetime
// of the heap.
type Heap struct {
	live map[uint32]uint32
	data []byte
	mu   sync.Mutex
	next uint32
}

func NewHeap() *Heap {
	return &Heap{
		live: make(map[uint32]uint32),
		data: make([]byte, heapBase),
		next: heapBase,
	}
}

// Alloc implements Allocator
func (h *Heap) Alloc(size, align uint32) (uint32, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if align == 0 {
		align = 1
	}
	ptr := (h.next + align - 1) &^ (align - 1)
	n := size
	if n == 0 {
		n = 1
	}
	end := uint64(ptr) + uint64(n)
	if end > 1<<32-1 {
		return Nil, errors.AllocationFailed(errors.PhaseMemory, size, nil)
	}
	if int(end) > len(h.data) {
		grown := make([]byte, max(int(end), 2*len(h.data)))
		copy(grown, h.data)
		h.data = grown
	}
	h.next = uint32(end)
	h.live[ptr] = size
	return ptr, nil
}

// Free implements Allocator
func (h *Heap) Free(ptr, _, _ uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.live, ptr)
}

// Live returns the number of allocations not yet freed.
func (h *Heap) Live() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.live)
}

func (h *Heap) span(offset, length uint32) ([]byte, error) {
	end := uint64(offset) + uint64(length)
	if end > uint64(h.next) {
		return nil, errors.OutOfBounds(errors.PhaseMemory, offset, length)
	}
	return h.data[offset:end], nil
}

// Read returns a copy of length bytes at offset.
func (h *Heap) Read(offset uint32, length uint32) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, err := h.span(offset, length)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (h *Heap) Write(offset uint32, data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, err := h.span(offset, uint32(len(data)))
	if err != nil {
		return err
	}
	copy(b, data)
	return nil
}

func (h *Heap) ReadU8(offset uint32) (uint8, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, err := h.span(offset, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (h *Heap) ReadU32(offset uint32) (uint32, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, err := h.span(offset, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (h *Heap) WriteU8(offset uint32, value uint8) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, err := h.span(offset, 1)
	if err != nil {
		return err
	}
	b[0] = value
	return nil
}

func (h *Heap) WriteU32(offset uint32, value uint32) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, err := h.span(offset, 4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b, value)
	return nil
}

package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"

	wasmlens "github.com/wippyai/wasm-lens"
	"github.com/wippyai/wasm-lens/errors"
)

type Memory = wasmlens.Memory
type Allocator = wasmlens.Allocator

// Tag identifies the payload type of an encoded buffer.
type Tag int8

const (
	// TagAbsent is never written; it is what decoding the null handle yields.
	TagAbsent      Tag = 0
	TagJSON        Tag = 1
	TagError       Tag = -1
	TagEndOfStream Tag = 127
)

func (t Tag) String() string {
	switch t {
	case TagAbsent:
		return "absent"
	case TagJSON:
		return "json"
	case TagError:
		return "error"
	case TagEndOfStream:
		return "end-of-stream"
	default:
		return fmt.Sprintf("tag(%d)", int8(t))
	}
}

func (t Tag) valid() bool {
	return t == TagJSON || t == TagError || t == TagEndOfStream
}

// Nil is the reserved null handle.
const Nil uint32 = 0

// HeaderSize is the tag byte plus the little-endian uint32 payload length.
const HeaderSize = 5

// MaxPayload bounds the payload length accepted when decoding.
const MaxPayload = 1 << 30

// Frame is one decoded buffer.
type Frame struct {
	Payload []byte
	Tag     Tag
}

// Absent reports whether the frame came from the null handle.
func (f Frame) Absent() bool { return f.Tag == TagAbsent }

// Size returns the number of bytes the encoded buffer occupies.
func (f Frame) Size() uint32 {
	if f.Absent() {
		return 0
	}
	return HeaderSize + uint32(len(f.Payload))
}

// Codec encodes and decodes tagged buffers in one linear memory.
//
// The codec never retains or reuses a buffer: whoever consumes a handle
// releases it with Free.
type Codec struct {
	mem   Memory
	alloc Allocator
}

func New(mem Memory, alloc Allocator) *Codec {
	return &Codec{mem: mem, alloc: alloc}
}

// Alloc reserves a buffer of size bytes for the other side to write into.
func (c *Codec) Alloc(size uint32) (uint32, error) {
	ptr, err := c.alloc.Alloc(size, 1)
	if err != nil {
		return Nil, errors.AllocationFailed(errors.PhaseMemory, size, err)
	}
	if ptr == Nil {
		return Nil, errors.AllocationFailed(errors.PhaseMemory, size, nil)
	}
	return ptr, nil
}

// Encode writes a tagged buffer and returns its handle.
func (c *Codec) Encode(tag Tag, payload []byte) (uint32, error) {
	if !tag.valid() {
		return Nil, errors.InvalidInput(errors.PhaseEncode, "cannot encode "+tag.String())
	}
	if tag == TagEndOfStream && len(payload) != 0 {
		return Nil, errors.InvalidInput(errors.PhaseEncode, "end-of-stream carries no payload")
	}
	if len(payload) > MaxPayload {
		return Nil, errors.InvalidInput(errors.PhaseEncode, fmt.Sprintf("payload of %d bytes exceeds limit", len(payload)))
	}

	buf := make([]byte, HeaderSize+len(payload))
	buf[0] = byte(tag)
	binary.LittleEndian.PutUint32(buf[1:HeaderSize], uint32(len(payload)))
	copy(buf[HeaderSize:], payload)

	ptr, err := c.Alloc(uint32(len(buf)))
	if err != nil {
		return Nil, err
	}
	if err := c.mem.Write(ptr, buf); err != nil {
		c.alloc.Free(ptr, uint32(len(buf)), 1)
		return Nil, errors.Wrap(errors.PhaseEncode, errors.KindOutOfBounds, err, "write buffer")
	}
	return ptr, nil
}

// Decode reads the buffer at ptr. The payload is copied out of linear
// memory. The null handle decodes to an absent frame.
func (c *Codec) Decode(ptr uint32) (Frame, error) {
	if ptr == Nil {
		return Frame{Tag: TagAbsent}, nil
	}

	rawTag, err := c.mem.ReadU8(ptr)
	if err != nil {
		return Frame{}, errors.Decode(errors.PhaseDecode, "read tag", err)
	}
	tag := Tag(int8(rawTag))
	if !tag.valid() {
		return Frame{}, errors.New(errors.PhaseDecode, errors.KindDecode).
			Value(int8(rawTag)).
			Detail("unknown type tag %d at %d", int8(rawTag), ptr).
			Build()
	}

	length, err := c.mem.ReadU32(ptr + 1)
	if err != nil {
		return Frame{}, errors.Decode(errors.PhaseDecode, "read length", err)
	}
	if length > MaxPayload {
		return Frame{}, errors.Decode(errors.PhaseDecode, fmt.Sprintf("payload length %d exceeds limit", length), nil)
	}
	if tag == TagEndOfStream && length != 0 {
		return Frame{}, errors.Decode(errors.PhaseDecode, "end-of-stream with payload", nil)
	}

	var payload []byte
	if length > 0 {
		view, err := c.mem.Read(ptr+HeaderSize, length)
		if err != nil {
			return Frame{}, errors.Decode(errors.PhaseDecode, "read payload", err)
		}
		payload = bytes.Clone(view)
	}
	return Frame{Tag: tag, Payload: payload}, nil
}

// Free releases an encoded buffer. The null handle is ignored.
func (c *Codec) Free(ptr uint32) {
	if ptr == Nil {
		return
	}
	size := uint32(HeaderSize)
	if length, err := c.mem.ReadU32(ptr + 1); err == nil && length <= MaxPayload {
		size += length
	}
	c.alloc.Free(ptr, size, 1)
}

// Take decodes the buffer at ptr and releases it.
func (c *Codec) Take(ptr uint32) (Frame, error) {
	f, err := c.Decode(ptr)
	if err != nil {
		c.Free(ptr)
		return Frame{}, err
	}
	if ptr != Nil {
		c.alloc.Free(ptr, f.Size(), 1)
	}
	return f, nil
}

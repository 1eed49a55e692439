package codec

import (
	"bytes"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/wippyai/wasm-lens/errors"
	"github.com/wippyai/wasm-lens/record"
	"github.com/wippyai/wasm-lens/stream"
)

func TestEncodeDecode_Frames(t *testing.T) {
	heap := NewHeap()
	c := New(heap, heap)

	tests := []struct {
		name    string
		tag     Tag
		payload []byte
	}{
		{"json", TagJSON, []byte(`{"a":1}`)},
		{"error", TagError, []byte("boom")},
		{"end of stream", TagEndOfStream, nil},
		{"empty json", TagJSON, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ptr, err := c.Encode(tt.tag, tt.payload)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if ptr == Nil {
				t.Fatal("Encode returned the null handle")
			}

			f, err := c.Decode(ptr)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if f.Tag != tt.tag {
				t.Errorf("Tag = %v, want %v", f.Tag, tt.tag)
			}
			if !bytes.Equal(f.Payload, tt.payload) {
				t.Errorf("Payload = %q, want %q", f.Payload, tt.payload)
			}
			if f.Size() != HeaderSize+uint32(len(tt.payload)) {
				t.Errorf("Size = %d", f.Size())
			}
		})
	}
}

func TestEncode_WireLayout(t *testing.T) {
	heap := NewHeap()
	c := New(heap, heap)

	ptr, err := c.Encode(TagError, []byte("hi"))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	raw, err := heap.Read(ptr, HeaderSize+2)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	want := []byte{0xFF, 0x02, 0x00, 0x00, 0x00, 'h', 'i'}
	if !bytes.Equal(raw, want) {
		t.Errorf("wire bytes = % x, want % x", raw, want)
	}
}

func TestDecode_Nil(t *testing.T) {
	heap := NewHeap()
	c := New(heap, heap)

	f, err := c.Decode(Nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !f.Absent() || f.Size() != 0 {
		t.Errorf("Decode(Nil) = %+v, want absent", f)
	}
}

func TestDecode_Malformed(t *testing.T) {
	heap := NewHeap()
	c := New(heap, heap)

	write := func(raw []byte) uint32 {
		ptr, _ := heap.Alloc(uint32(len(raw)), 1)
		if err := heap.Write(ptr, raw); err != nil {
			t.Fatalf("Write: %v", err)
		}
		return ptr
	}

	tests := []struct {
		name string
		ptr  uint32
	}{
		{"unknown tag", write([]byte{0x07, 0, 0, 0, 0})},
		{"end of stream with payload", write([]byte{0x7F, 1, 0, 0, 0, 'x'})},
		{"length past memory", write([]byte{0x01, 0xFF, 0xFF, 0, 0})},
		{"truncated header", write([]byte{0x01})},
		{"handle out of bounds", 1 << 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Decode(tt.ptr)
			if !stderrors.Is(err, errors.ErrDecode) {
				t.Errorf("Decode error = %v, want decode error", err)
			}
		})
	}
}

func TestEncode_Rejects(t *testing.T) {
	heap := NewHeap()
	c := New(heap, heap)

	if _, err := c.Encode(TagAbsent, nil); err == nil {
		t.Error("encoding the absent tag should fail")
	}
	if _, err := c.Encode(TagEndOfStream, []byte("x")); err == nil {
		t.Error("end-of-stream with payload should fail")
	}
	if heap.Live() != 0 {
		t.Errorf("rejected encodes leaked %d buffers", heap.Live())
	}
}

func TestTake_Releases(t *testing.T) {
	heap := NewHeap()
	c := New(heap, heap)

	ptr, _ := c.Encode(TagJSON, []byte(`{}`))
	if heap.Live() != 1 {
		t.Fatalf("Live = %d, want 1", heap.Live())
	}
	if _, err := c.Take(ptr); err != nil {
		t.Fatalf("Take: %v", err)
	}
	if heap.Live() != 0 {
		t.Errorf("Live after Take = %d, want 0", heap.Live())
	}

	bad, _ := heap.Alloc(HeaderSize, 1)
	_ = heap.Write(bad, []byte{0x05, 0, 0, 0, 0})
	if _, err := c.Take(bad); err == nil {
		t.Error("Take of malformed buffer should fail")
	}
	if heap.Live() != 0 {
		t.Errorf("malformed buffer not released, Live = %d", heap.Live())
	}
}

func TestControl_RoundTrip(t *testing.T) {
	heap := NewHeap()
	c := New(heap, heap)

	rec, _ := record.Parse([]byte(`{"name":"ann","age":3}`))
	controls := []Control{
		stream.Some(rec),
		stream.Skip[*record.Record](),
		stream.EndOfStream[*record.Record](),
	}

	for _, ctl := range controls {
		t.Run(ctl.String(), func(t *testing.T) {
			ptr, err := c.EncodeControl(ctl)
			if err != nil {
				t.Fatalf("EncodeControl: %v", err)
			}
			if ctl.IsSkip() != (ptr == Nil) {
				t.Errorf("skip must map to the null handle and nothing else, got %d", ptr)
			}

			got, err := c.TakeControl(ptr, errors.PhaseTransform)
			if err != nil {
				t.Fatalf("TakeControl: %v", err)
			}
			if got.State() != ctl.State() {
				t.Errorf("State = %v, want %v", got.State(), ctl.State())
			}
			if want, ok := ctl.Value(); ok {
				gotRec, _ := got.Value()
				if !gotRec.Equal(want) {
					t.Errorf("record = %s, want %s", gotRec, want)
				}
			}
		})
	}
	if heap.Live() != 0 {
		t.Errorf("Live = %d, want 0", heap.Live())
	}
}

func TestControl_ErrorBuffer(t *testing.T) {
	heap := NewHeap()
	c := New(heap, heap)

	ptr, err := c.EncodeError(errors.PropertyNotFound(errors.PhaseTransform, "a"))
	if err != nil {
		t.Fatalf("EncodeError: %v", err)
	}
	_, err = c.TakeControl(ptr, errors.PhaseHost)
	if !stderrors.Is(err, errors.ErrRemote) {
		t.Fatalf("TakeControl error = %v, want remote", err)
	}
	if !strings.Contains(err.Error(), `requested property "a" not found`) {
		t.Errorf("message not carried verbatim: %v", err)
	}
}

func TestControl_NonObjectJSON(t *testing.T) {
	heap := NewHeap()
	c := New(heap, heap)

	ptr, _ := c.Encode(TagJSON, []byte(`[1,2]`))
	if _, err := c.TakeControl(ptr, errors.PhaseTransform); !stderrors.Is(err, errors.ErrDecode) {
		t.Errorf("error = %v, want decode error", err)
	}
}

func TestUnmarshal(t *testing.T) {
	heap := NewHeap()
	c := New(heap, heap)

	ptr, err := c.EncodeJSON(map[string]string{"src": "a", "dst": "b"})
	if err != nil {
		t.Fatalf("EncodeJSON: %v", err)
	}
	f, err := c.Take(ptr)
	if err != nil {
		t.Fatalf("Take: %v", err)
	}

	var params struct {
		Src string `json:"src"`
		Dst string `json:"dst"`
	}
	if err := Unmarshal(f, &params); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if params.Src != "a" || params.Dst != "b" {
		t.Errorf("params = %+v", params)
	}

	if err := Unmarshal(Frame{Tag: TagEndOfStream}, &params); !stderrors.Is(err, errors.ErrDecode) {
		t.Errorf("Unmarshal of non-json frame = %v, want decode error", err)
	}
	if err := Unmarshal(Frame{Tag: TagJSON, Payload: []byte("{")}, &params); !stderrors.Is(err, errors.ErrDecode) {
		t.Errorf("Unmarshal of malformed json = %v, want decode error", err)
	}
}

func TestHeap_Bounds(t *testing.T) {
	heap := NewHeap()
	ptr, err := heap.Alloc(4, 4)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if ptr%4 != 0 {
		t.Errorf("ptr %d not aligned", ptr)
	}
	if err := heap.WriteU32(ptr, 0xCAFEBABE); err != nil {
		t.Fatalf("WriteU32: %v", err)
	}
	v, err := heap.ReadU32(ptr)
	if err != nil || v != 0xCAFEBABE {
		t.Errorf("ReadU32 = %x, %v", v, err)
	}
	if _, err := heap.ReadU32(ptr + 1); err == nil {
		t.Error("read past the last allocation should fail")
	}
}

func TestEncodeControl_RejectsEmpty(t *testing.T) {
	heap := NewHeap()
	c := New(heap, heap)

	tests := []struct {
		name string
		ctl  Control
	}{
		{"zero control", Control{}},
		{"nil record", stream.Some[*record.Record](nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ptr, err := c.EncodeControl(tt.ctl)
			if errors.KindOf(err) != errors.KindInvalidInput {
				t.Fatalf("error = %v, want invalid input", err)
			}
			if ptr != Nil {
				t.Errorf("ptr = %d, want the null handle", ptr)
			}
		})
	}
	if heap.Live() != 0 {
		t.Errorf("Live = %d, want 0", heap.Live())
	}
}

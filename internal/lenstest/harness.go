// Package lenstest drives a module.Module through encoded buffers the way a
// host does, using an in-process heap as the module's linear memory.
package lenstest

import (
	"encoding/json"
	"testing"

	"github.com/wippyai/wasm-lens/codec"
	"github.com/wippyai/wasm-lens/errors"
	"github.com/wippyai/wasm-lens/module"
	"github.com/wippyai/wasm-lens/record"
	"github.com/wippyai/wasm-lens/stream"
)

// Harness owns a heap and a module instance living in it.
type Harness[P any] struct {
	t      testing.TB
	Heap   *codec.Heap
	Codec  *codec.Codec
	Module *module.Module[P]

	// Pulls counts calls to the next import across all pull-style calls.
	Pulls int
}

// New instantiates lens in a fresh heap.
func New[P any](t testing.TB, name string, lens module.Lens[P]) *Harness[P] {
	t.Helper()
	heap := codec.NewHeap()
	return &Harness[P]{
		t:      t,
		Heap:   heap,
		Codec:  codec.New(heap, heap),
		Module: module.New(name, lens, heap, heap),
	}
}

// SetParam marshals v and calls set_param.
func (h *Harness[P]) SetParam(v any) error {
	h.t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		h.t.Fatalf("marshal params: %v", err)
	}
	return h.SetParamJSON(string(data))
}

// SetParamJSON calls set_param with a raw JSON document.
func (h *Harness[P]) SetParamJSON(doc string) error {
	h.t.Helper()
	ptr, err := h.Codec.Encode(codec.TagJSON, []byte(doc))
	if err != nil {
		h.t.Fatalf("encode params: %v", err)
	}
	return h.result(h.Module.SetParam(ptr))
}

// MustSetParam fails the test if set_param reports an error.
func (h *Harness[P]) MustSetParam(v any) {
	h.t.Helper()
	if err := h.SetParam(v); err != nil {
		h.t.Fatalf("set_param: %v", err)
	}
}

func (h *Harness[P]) result(ptr uint32) error {
	h.t.Helper()
	f, err := h.Codec.Take(ptr)
	if err != nil {
		h.t.Fatalf("decode set_param result: %v", err)
	}
	switch f.Tag {
	case codec.TagAbsent:
		return nil
	case codec.TagError:
		return errors.Remote(errors.PhaseHost, string(f.Payload))
	}
	h.t.Fatalf("set_param returned a %s buffer", f.Tag)
	return nil
}

// Push encodes ctl and calls the push-style transform entry point.
func (h *Harness[P]) Push(ctl codec.Control) (codec.Control, error) {
	h.t.Helper()
	return h.Codec.TakeControl(h.Module.Transform(h.encode(ctl)), errors.PhaseHost)
}

// PushInverse encodes ctl and calls the push-style inverse entry point.
func (h *Harness[P]) PushInverse(ctl codec.Control) (codec.Control, error) {
	h.t.Helper()
	return h.Codec.TakeControl(h.Module.Inverse(h.encode(ctl)), errors.PhaseHost)
}

// Pull calls the pull-style transform entry point, serving next from src.
func (h *Harness[P]) Pull(src stream.Source[*record.Record]) (codec.Control, error) {
	h.t.Helper()
	return h.Codec.TakeControl(h.Module.TransformPull(h.next(src)), errors.PhaseHost)
}

// PullInverse calls the pull-style inverse entry point.
func (h *Harness[P]) PullInverse(src stream.Source[*record.Record]) (codec.Control, error) {
	h.t.Helper()
	return h.Codec.TakeControl(h.Module.InversePull(h.next(src)), errors.PhaseHost)
}

// Drain calls Pull until end of stream and returns every emitted record.
// It fails the test after limit calls.
func (h *Harness[P]) Drain(src stream.Source[*record.Record], limit int) ([]*record.Record, error) {
	h.t.Helper()
	var out []*record.Record
	for i := 0; i < limit; i++ {
		ctl, err := h.Pull(src)
		if err != nil {
			return out, err
		}
		if ctl.IsEndOfStream() {
			return out, nil
		}
		if rec, ok := ctl.Value(); ok {
			out = append(out, rec)
		}
	}
	h.t.Fatalf("no end of stream after %d calls", limit)
	return out, nil
}

// next mirrors the host import: upstream errors travel as ERROR buffers.
func (h *Harness[P]) next(src stream.Source[*record.Record]) func() uint32 {
	return func() uint32 {
		h.Pulls++
		ctl, err := src.Next()
		if err != nil {
			ptr, encErr := h.Codec.EncodeError(err)
			if encErr != nil {
				h.t.Fatalf("encode upstream error: %v", encErr)
			}
			return ptr
		}
		return h.encode(ctl)
	}
}

func (h *Harness[P]) encode(ctl codec.Control) uint32 {
	h.t.Helper()
	ptr, err := h.Codec.EncodeControl(ctl)
	if err != nil {
		h.t.Fatalf("encode control: %v", err)
	}
	return ptr
}

// Live returns the number of heap buffers not yet released.
func (h *Harness[P]) Live() int { return h.Heap.Live() }

// Record parses a JSON object or fails the test.
func Record(t testing.TB, doc string) *record.Record {
	t.Helper()
	rec, err := record.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse %s: %v", doc, err)
	}
	return rec
}

// Value wraps a parsed record in a value control.
func Value(t testing.TB, doc string) codec.Control {
	t.Helper()
	return stream.Some(Record(t, doc))
}

// Skip and EndOfStream are the record-typed empty controls.
func Skip() codec.Control { return stream.Skip[*record.Record]() }

func EndOfStream() codec.Control { return stream.EndOfStream[*record.Record]() }

// Records parses each document into a slice source.
func Records(t testing.TB, docs ...string) stream.Source[*record.Record] {
	t.Helper()
	recs := make([]*record.Record, len(docs))
	for i, doc := range docs {
		recs[i] = Record(t, doc)
	}
	return stream.FromSlice(recs...)
}

// AssertRecord fails the test unless ctl carries a record equal to want.
func AssertRecord(t testing.TB, ctl codec.Control, want string) {
	t.Helper()
	got, ok := ctl.Value()
	if !ok {
		t.Fatalf("got %s, want record %s", ctl, want)
	}
	if exp := Record(t, want); !got.Equal(exp) {
		t.Fatalf("record = %s, want %s", got, exp)
	}
}

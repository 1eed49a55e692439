package codec

import (
	"encoding/json"

	"github.com/wippyai/wasm-lens/errors"
	"github.com/wippyai/wasm-lens/record"
	"github.com/wippyai/wasm-lens/stream"
)

// Control is the stream control signal carried across the boundary.
type Control = stream.Control[*record.Record]

// EncodeControl writes a control: a value as JSON, a skip as the null
// handle and the end of stream as its marker buffer. The zero Control and
// a value carrying a nil record are rejected.
func (c *Codec) EncodeControl(ctl Control) (uint32, error) {
	switch ctl.State() {
	case stream.StateSkip:
		return Nil, nil
	case stream.StateEndOfStream:
		return c.Encode(TagEndOfStream, nil)
	case stream.StateValue:
	default:
		return Nil, errors.InvalidInput(errors.PhaseEncode, "cannot encode "+ctl.String()+" control")
	}
	rec, _ := ctl.Value()
	if rec == nil {
		return Nil, errors.InvalidInput(errors.PhaseEncode, "value control carries no record")
	}
	data, err := rec.MarshalJSON()
	if err != nil {
		return Nil, err
	}
	return c.Encode(TagJSON, data)
}

// TakeControl decodes and releases the buffer at ptr. An ERROR buffer is
// returned as a remote error attributed to phase.
func (c *Codec) TakeControl(ptr uint32, phase errors.Phase) (Control, error) {
	f, err := c.Take(ptr)
	if err != nil {
		return Control{}, err
	}
	return FrameControl(f, phase)
}

// FrameControl interprets a decoded frame as a stream control.
func FrameControl(f Frame, phase errors.Phase) (Control, error) {
	switch f.Tag {
	case TagAbsent:
		return stream.Skip[*record.Record](), nil
	case TagEndOfStream:
		return stream.EndOfStream[*record.Record](), nil
	case TagError:
		return Control{}, errors.Remote(phase, string(f.Payload))
	}
	rec, err := record.Parse(f.Payload)
	if err != nil {
		return Control{}, err
	}
	return stream.Some(rec), nil
}

// EncodeError writes err's message as an ERROR buffer.
func (c *Codec) EncodeError(err error) (uint32, error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return c.Encode(TagError, []byte(msg))
}

// EncodeJSON marshals v into a JSON buffer.
func (c *Codec) EncodeJSON(v any) (uint32, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Nil, errors.Wrap(errors.PhaseEncode, errors.KindInvalidInput, err, "marshal JSON payload")
	}
	return c.Encode(TagJSON, data)
}

// Unmarshal decodes a JSON frame into v.
func Unmarshal(f Frame, v any) error {
	if f.Tag != TagJSON {
		return errors.New(errors.PhaseDecode, errors.KindDecode).
			Value(f.Tag).
			Detail("expected json buffer, got %s", f.Tag).
			Build()
	}
	if err := json.Unmarshal(f.Payload, v); err != nil {
		if e, ok := err.(*errors.Error); ok {
			return e
		}
		return errors.Decode(errors.PhaseDecode, "malformed JSON payload", err)
	}
	return nil
}

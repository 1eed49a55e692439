package record

import (
	"bytes"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/wippyai/wasm-lens/errors"
)

// Record is an ordered mapping from field names to values. Insertion order
// is kept so that a record serializes the same way it was read.
//
// The zero Record is empty and ready to use. A Record is not safe for
// concurrent mutation.
type Record struct {
	fields *orderedmap.OrderedMap[string, Value]
}

// New returns an empty record.
func New() *Record {
	return &Record{fields: orderedmap.New[string, Value]()}
}

// Parse decodes a JSON object into a record.
func Parse(data []byte) (*Record, error) {
	rec := New()
	if err := rec.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *Record) init() {
	if r.fields == nil {
		r.fields = orderedmap.New[string, Value]()
	}
}

// Get returns the value stored under name.
func (r *Record) Get(name string) (Value, bool) {
	if r == nil || r.fields == nil {
		return Value{}, false
	}
	return r.fields.Get(name)
}

// Has reports whether name is present, including when it holds null.
func (r *Record) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Set stores v under name. An existing field keeps its position and has
// its value replaced.
func (r *Record) Set(name string, v Value) {
	r.init()
	r.fields.Set(name, v)
}

// Delete removes name and reports whether it was present.
func (r *Record) Delete(name string) bool {
	if r == nil || r.fields == nil {
		return false
	}
	_, present := r.fields.Delete(name)
	return present
}

func (r *Record) Len() int {
	if r == nil || r.fields == nil {
		return 0
	}
	return r.fields.Len()
}

// Keys returns the field names in order.
func (r *Record) Keys() []string {
	keys := make([]string, 0, r.Len())
	r.Range(func(name string, _ Value) bool {
		keys = append(keys, name)
		return true
	})
	return keys
}

// Range calls fn for each field in order until fn returns false.
func (r *Record) Range(fn func(name string, v Value) bool) {
	if r == nil || r.fields == nil {
		return
	}
	for pair := r.fields.Oldest(); pair != nil; pair = pair.Next() {
		if !fn(pair.Key, pair.Value) {
			return
		}
	}
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	out := New()
	r.Range(func(name string, v Value) bool {
		out.fields.Set(name, v.Clone())
		return true
	})
	return out
}

// Equal reports whether both records hold equal values under the same
// names. Field order is not compared.
func (r *Record) Equal(other *Record) bool {
	if r.Len() != other.Len() {
		return false
	}
	equal := true
	r.Range(func(name string, v Value) bool {
		ov, ok := other.Get(name)
		if !ok || !v.Equal(ov) {
			equal = false
		}
		return equal
	})
	return equal
}

func (r *Record) String() string {
	data, err := r.MarshalJSON()
	if err != nil {
		return "<invalid record>"
	}
	return string(data)
}

// MarshalJSON implements json.Marshaler
func (r *Record) MarshalJSON() ([]byte, error) {
	if r == nil || r.fields == nil {
		return []byte("{}"), nil
	}
	data, err := r.fields.MarshalJSON()
	if err != nil {
		return nil, errors.Wrap(errors.PhaseEncode, errors.KindInvalidInput, err, "marshal record")
	}
	return data, nil
}

// UnmarshalJSON implements json.Unmarshaler. Fields already present are
// kept; decoded fields overwrite them.
func (r *Record) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return errors.Decode(errors.PhaseDecode, "record must be a JSON object", nil)
	}
	r.init()
	if err := r.fields.UnmarshalJSON(trimmed); err != nil {
		if _, ok := err.(*errors.Error); ok {
			return err
		}
		return errors.Decode(errors.PhaseDecode, "malformed record", err)
	}
	return nil
}

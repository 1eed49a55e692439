package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"

	"github.com/buger/jsonparser"

	"github.com/wippyai/wasm-lens/errors"
)

// Kind identifies which alternative a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindRecord
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindRecord:
		return "record"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is a JSON-shaped value. The zero Value is null.
//
// Numbers keep their JSON text so that integers wider than a float64
// mantissa survive a pass through a lens unchanged.
type Value struct {
	rec  *Record
	num  json.Number
	str  string
	arr  []Value
	kind Kind
	b    bool
}

func Null() Value { return Value{} }

func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

func String(s string) Value { return Value{kind: KindString, str: s} }

func Int(i int64) Value {
	return Value{kind: KindNumber, num: json.Number(strconv.FormatInt(i, 10))}
}

// Float returns a number value. NaN and infinities have no JSON form and
// become null.
func Float(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Null()
	}
	return Value{kind: KindNumber, num: json.Number(strconv.FormatFloat(f, 'g', -1, 64))}
}

// Number returns a number value from its JSON text.
func Number(n json.Number) (Value, error) {
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}, errors.New(errors.PhaseDecode, errors.KindDecode).
			Value(string(n)).
			Detail("invalid number %q", string(n)).
			Build()
	}
	return Value{kind: KindNumber, num: n}, nil
}

func Array(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindArray, arr: items}
}

// Object wraps a record as a nested value. A nil record becomes an empty one.
func Object(r *Record) Value {
	if r == nil {
		r = New()
	}
	return Value{kind: KindRecord, rec: r}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }

func (v Value) AsNumber() (json.Number, bool) { return v.num, v.kind == KindNumber }

func (v Value) AsArray() ([]Value, bool) { return v.arr, v.kind == KindArray }

func (v Value) AsRecord() (*Record, bool) { return v.rec, v.kind == KindRecord }

// Float64 returns the number as a float64.
func (v Value) Float64() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	f, err := v.num.Float64()
	return f, err == nil
}

// Clone returns a deep copy.
func (v Value) Clone() Value {
	switch v.kind {
	case KindArray:
		items := make([]Value, len(v.arr))
		for i, item := range v.arr {
			items[i] = item.Clone()
		}
		return Value{kind: KindArray, arr: items}
	case KindRecord:
		return Value{kind: KindRecord, rec: v.rec.Clone()}
	default:
		return v
	}
}

// Equal reports deep equality. Numbers compare by value, so 1 equals 1.0.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == other.b
	case KindString:
		return v.str == other.str
	case KindNumber:
		if v.num == other.num {
			return true
		}
		a, errA := v.num.Float64()
		b, errB := other.num.Float64()
		return errA == nil && errB == nil && a == b
	case KindArray:
		if len(v.arr) != len(other.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(other.arr[i]) {
				return false
			}
		}
		return true
	case KindRecord:
		return v.rec.Equal(other.rec)
	}
	return false
}

func (v Value) String() string {
	data, err := v.MarshalJSON()
	if err != nil {
		return "<invalid " + v.kind.String() + ">"
	}
	return string(data)
}

// MarshalJSON implements json.Marshaler
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return strconv.AppendBool(nil, v.b), nil
	case KindNumber:
		return []byte(v.num), nil
	case KindString:
		return json.Marshal(v.str)
	case KindArray:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, item := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			data, err := item.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(data)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case KindRecord:
		return v.rec.MarshalJSON()
	}
	return nil, errors.Unsupported(errors.PhaseEncode, "value kind "+v.kind.String())
}

// UnmarshalJSON implements json.Unmarshaler
func (v *Value) UnmarshalJSON(data []byte) error {
	raw, typ, _, err := jsonparser.Get(data)
	if err != nil {
		return errors.Decode(errors.PhaseDecode, "malformed JSON value", err)
	}
	parsed, err := parseValue(raw, typ)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// parseValue builds a Value from a jsonparser token. String tokens arrive
// without their quotes.
func parseValue(raw []byte, typ jsonparser.ValueType) (Value, error) {
	switch typ {
	case jsonparser.Null:
		return Null(), nil
	case jsonparser.Boolean:
		b, err := jsonparser.ParseBoolean(raw)
		if err != nil {
			return Value{}, errors.Decode(errors.PhaseDecode, "malformed boolean", err)
		}
		return Bool(b), nil
	case jsonparser.Number:
		return Number(json.Number(raw))
	case jsonparser.String:
		s, err := jsonparser.ParseString(raw)
		if err != nil {
			return Value{}, errors.Decode(errors.PhaseDecode, "malformed string", err)
		}
		return String(s), nil
	case jsonparser.Array:
		items := []Value{}
		if len(bytes.TrimSpace(raw[1:len(raw)-1])) == 0 {
			return Array(items...), nil
		}
		var itemErr error
		_, err := jsonparser.ArrayEach(raw, func(value []byte, dataType jsonparser.ValueType, _ int, err error) {
			if itemErr != nil {
				return
			}
			if err != nil {
				itemErr = err
				return
			}
			item, err := parseValue(value, dataType)
			if err != nil {
				itemErr = err
				return
			}
			items = append(items, item)
		})
		if itemErr != nil {
			return Value{}, itemErr
		}
		if err != nil {
			return Value{}, errors.Decode(errors.PhaseDecode, "malformed array", err)
		}
		return Array(items...), nil
	case jsonparser.Object:
		rec := New()
		if err := rec.UnmarshalJSON(raw); err != nil {
			return Value{}, err
		}
		return Object(rec), nil
	}
	return Value{}, errors.Decode(errors.PhaseDecode, fmt.Sprintf("unsupported JSON token %s", typ), nil)
}

// FromAny converts a Go value built from JSON-like types into a Value.
// Maps are converted with their keys sorted.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case *Record:
		return Object(t), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		return Number(t)
	case int:
		return Int(int64(t)), nil
	case int8:
		return Int(int64(t)), nil
	case int16:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint:
		return Value{kind: KindNumber, num: json.Number(strconv.FormatUint(uint64(t), 10))}, nil
	case uint8:
		return Int(int64(t)), nil
	case uint16:
		return Int(int64(t)), nil
	case uint32:
		return Int(int64(t)), nil
	case uint64:
		return Value{kind: KindNumber, num: json.Number(strconv.FormatUint(t, 10))}, nil
	case float32:
		return fromFloat(float64(t))
	case float64:
		return fromFloat(t)
	case []Value:
		return Array(t...), nil
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			v, err := FromAny(item)
			if err != nil {
				return Value{}, prefixPath(err, strconv.Itoa(i))
			}
			items[i] = v
		}
		return Array(items...), nil
	case map[string]any:
		rec, err := FromMap(t)
		if err != nil {
			return Value{}, err
		}
		return Object(rec), nil
	}
	return Value{}, errors.New(errors.PhaseEncode, errors.KindInvalidInput).
		GoType(reflect.TypeOf(x).String()).
		Detail("not a JSON-compatible value").
		Build()
}

func fromFloat(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}, errors.New(errors.PhaseEncode, errors.KindInvalidInput).
			Value(f).
			Detail("%v has no JSON representation", f).
			Build()
	}
	return Float(f), nil
}

// FromMap converts a Go map into a record, inserting keys in sorted order.
func FromMap(m map[string]any) (*Record, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rec := New()
	for _, k := range keys {
		v, err := FromAny(m[k])
		if err != nil {
			return nil, prefixPath(err, k)
		}
		rec.Set(k, v)
	}
	return rec, nil
}

func prefixPath(err error, segment string) error {
	if e, ok := err.(*errors.Error); ok {
		e.Path = append([]string{segment}, e.Path...)
		return e
	}
	return err
}

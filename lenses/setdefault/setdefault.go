// Package setdefault writes a literal value into a field.
//
// The field is overwritten when present. Inverse removes it, so for any
// record without the field inverse(transform(r)) restores r exactly.
package setdefault

import (
	"github.com/wippyai/wasm-lens/errors"
	"github.com/wippyai/wasm-lens/module"
	"github.com/wippyai/wasm-lens/record"
)

// Params holds the destination field and the value to store. A missing
// value stores null.
type Params struct {
	Dst   string       `json:"dst"`
	Value record.Value `json:"value"`
}

func (p Params) Validate() error {
	if p.Dst == "" {
		return errors.Validation(errors.PhaseParam, []string{"dst"}, "destination field name is required")
	}
	return nil
}

type Lens struct{}

func (Lens) Transform(st *module.State[Params], src module.Source) (module.Control, error) {
	p, err := st.Params()
	if err != nil {
		return module.Control{}, err
	}
	return module.Apply(src, func(rec *record.Record) (*record.Record, error) {
		rec.Set(p.Dst, p.Value.Clone())
		return rec, nil
	})
}

func (Lens) Inverse(st *module.State[Params], src module.Source) (module.Control, error) {
	p, err := st.Params()
	if err != nil {
		return module.Control{}, err
	}
	return module.Apply(src, func(rec *record.Record) (*record.Record, error) {
		rec.Delete(p.Dst)
		return rec, nil
	})
}

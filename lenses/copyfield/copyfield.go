// Package copyfield copies the value of one field into another.
//
// Transform fails with property_not_found when the source field is
// missing. Inverse removes the destination field and leaves everything
// else, including the source, untouched. A skipped position is propagated.
package copyfield

import (
	"github.com/wippyai/wasm-lens/errors"
	"github.com/wippyai/wasm-lens/module"
	"github.com/wippyai/wasm-lens/record"
)

// Params names the source and destination fields.
type Params struct {
	Src string `json:"src"`
	Dst string `json:"dst"`
}

func (p Params) Validate() error {
	if p.Src == "" {
		return errors.Validation(errors.PhaseParam, []string{"src"}, "source field name is required")
	}
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
		v, ok := rec.Get(p.Src)
		if !ok {
			return nil, errors.PropertyNotFound(st.Phase(), p.Src)
		}
		rec.Set(p.Dst, v.Clone())
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

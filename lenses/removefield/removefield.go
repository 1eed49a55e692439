// Package removefield deletes one field from every record. Removing a
// field that is not there is not an error.
package removefield

import (
	"github.com/wippyai/wasm-lens/errors"
	"github.com/wippyai/wasm-lens/module"
	"github.com/wippyai/wasm-lens/record"
)

type Params struct {
	Target string `json:"target"`
}

func (p Params) Validate() error {
	if p.Target == "" {
		return errors.Validation(errors.PhaseParam, []string{"target"}, "target field name is required")
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
		rec.Delete(p.Target)
		return rec, nil
	})
}

// Package prepend emits a fixed list of records ahead of its upstream.
//
// Each canned record is emitted exactly once, in order, before the first
// upstream pull. Reconfiguring rewinds to the first canned record.
// Upstream skips and end of stream pass through once the list is spent.
package prepend

import (
	"strconv"

	"github.com/wippyai/wasm-lens/errors"
	"github.com/wippyai/wasm-lens/module"
	"github.com/wippyai/wasm-lens/record"
	"github.com/wippyai/wasm-lens/stream"
)

type Params struct {
	Records []*record.Record `json:"records"`
}

func (p Params) Validate() error {
	for i, rec := range p.Records {
		if rec == nil {
			return errors.Validation(errors.PhaseParam, []string{"records", strconv.Itoa(i)}, "record must be an object")
		}
	}
	return nil
}

func count(p Params) int { return len(p.Records) }

type Lens struct{}

// PullOnly implements module.PullOnly.
func (Lens) PullOnly() bool { return true }

func (Lens) Transform(st *module.State[Params], src module.Source) (module.Control, error) {
	p, idx, ok, err := st.Claim(count)
	if err != nil {
		return module.Control{}, err
	}
	if ok {
		return stream.Some(p.Records[idx].Clone()), nil
	}
	return src.Next()
}

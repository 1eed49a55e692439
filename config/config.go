// Package config reads lens configuration documents.
//
// A document lists lens modules in the order they are applied:
//
//	lenses:
//	  - path: ./copyfield.wasm
//	    arguments: {src: name, dst: fullName}
//	  - path: ./setdefault.wasm
//	    inverse: true
//	    arguments: {dst: verified, value: false}
//
// JSON documents are accepted as well.
package config

import (
	"encoding/json"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/wasm-lens/errors"
)

// Module configures one lens instance.
type Module struct {
	// Arguments are sent to the lens through set_param.
	Arguments map[string]any `yaml:"arguments,omitempty" json:"arguments,omitempty"`

	// Path locates the compiled module.
	Path string `yaml:"path" json:"path"`

	// Inverse runs the lens backwards.
	Inverse bool `yaml:"inverse,omitempty" json:"inverse,omitempty"`
}

// Validate checks that the module can be loaded and its arguments encoded.
func (m Module) Validate() error {
	if m.Path == "" {
		return errors.Validation(errors.PhaseConfig, []string{"path"}, "module path is required")
	}
	if _, err := json.Marshal(m.Arguments); err != nil {
		return errors.New(errors.PhaseConfig, errors.KindValidation).
			Path("arguments").
			Detail("arguments are not JSON encodable").
			Cause(err).
			Build()
	}
	return nil
}

// Lens is an ordered list of lens modules.
type Lens struct {
	Modules []Module `yaml:"lenses" json:"lenses"`
}

// Validate checks every module.
func (l *Lens) Validate() error {
	for i, m := range l.Modules {
		if err := m.Validate(); err != nil {
			if e, ok := err.(*errors.Error); ok {
				e.Path = append([]string{"lenses", strconv.Itoa(i)}, e.Path...)
			}
			return err
		}
	}
	return nil
}

// Reverse returns the configuration that undoes l: the modules in reverse
// order, each with its direction flipped.
func (l *Lens) Reverse() *Lens {
	out := &Lens{Modules: make([]Module, len(l.Modules))}
	for i, m := range l.Modules {
		m.Inverse = !m.Inverse
		out.Modules[len(l.Modules)-1-i] = m
	}
	return out
}

// Parse decodes and validates a YAML or JSON document.
func Parse(data []byte) (*Lens, error) {
	var l Lens
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindDecode, err, "parse lens configuration")
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return &l, nil
}

// Load reads and parses the document at path.
func Load(path string) (*Lens, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "read "+path)
	}
	return Parse(data)
}

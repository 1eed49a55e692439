package host

import (
	"regexp"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-lens/errors"
)

// Export and import names of the lens boundary.
const (
	ExportMemory    = "memory"
	ExportAlloc     = "alloc"
	ExportFree      = "free"
	ExportSetParam  = "set_param"
	ExportTransform = "transform"
	ExportInverse   = "inverse"

	ImportModule = "lens"
	ImportNext   = "next"
)

// Shape is the calling convention of a transform or inverse export.
type Shape int

const (
	// ShapeNone means the export is absent.
	ShapeNone Shape = iota
	// ShapePush takes one encoded control per call.
	ShapePush
	// ShapePull takes nothing and pulls upstream through lens.next.
	ShapePull
)

func (s Shape) String() string {
	switch s {
	case ShapePush:
		return "push"
	case ShapePull:
		return "pull"
	default:
		return "none"
	}
}

// signature is a boundary function type declared in WIT function syntax.
// Handles are u32 offsets into the guest's memory.
type signature struct {
	text    string
	params  []wit.Type
	results []wit.Type
}

var (
	allocSig    = mustSignature("func(size: u32) -> u32")
	freeSig     = mustSignature("func(ptr: u32, size: u32)")
	setParamSig = mustSignature("func(ptr: u32) -> u32")
	pushSig     = mustSignature("func(ptr: u32) -> u32")
	pullSig     = mustSignature("func() -> u32")
	nextSig     = mustSignature("func() -> u32")
)

var funcPattern = regexp.MustCompile(`^func\s*\(([^)]*)\)(?:\s*->\s*(.+))?$`)

// parseSignature parses "func(name: type, ...) -> type". Only primitive
// types are accepted.
func parseSignature(text string) (signature, error) {
	text = strings.TrimSpace(text)
	m := funcPattern.FindStringSubmatch(text)
	if m == nil {
		return signature{}, errors.InvalidInput(errors.PhaseLoad, "malformed signature "+text)
	}
	sig := signature{text: text}

	if params := strings.TrimSpace(m[1]); params != "" {
		for _, p := range strings.Split(params, ",") {
			typ := p
			if idx := strings.LastIndex(p, ":"); idx != -1 {
				typ = p[idx+1:]
			}
			t, err := wit.ParseType(strings.TrimSpace(typ))
			if err != nil {
				return signature{}, errors.Wrap(errors.PhaseLoad, errors.KindInvalidInput, err, "parse param type in "+text)
			}
			sig.params = append(sig.params, t)
		}
	}
	if result := strings.TrimSpace(m[2]); result != "" {
		t, err := wit.ParseType(result)
		if err != nil {
			return signature{}, errors.Wrap(errors.PhaseLoad, errors.KindInvalidInput, err, "parse result type in "+text)
		}
		sig.results = []wit.Type{t}
	}
	return sig, nil
}

func mustSignature(text string) signature {
	sig, err := parseSignature(text)
	if err != nil {
		panic(err)
	}
	return sig
}

// lower flattens WIT types to core wasm value types.
func lower(types []wit.Type) []api.ValueType {
	var out []api.ValueType
	for _, t := range types {
		for _, flat := range t.Flat() {
			switch flat.(type) {
			case wit.U64, wit.S64:
				out = append(out, api.ValueTypeI64)
			case wit.F32:
				out = append(out, api.ValueTypeF32)
			case wit.F64:
				out = append(out, api.ValueTypeF64)
			default:
				out = append(out, api.ValueTypeI32)
			}
		}
	}
	return out
}

// core returns the flattened wasm signature.
func (s signature) core() (params, results []api.ValueType) {
	return lower(s.params), lower(s.results)
}

func (s signature) matches(def api.FunctionDefinition) bool {
	params, results := s.core()
	return equalTypes(params, def.ParamTypes()) && equalTypes(results, def.ResultTypes())
}

func (s signature) String() string { return s.text }

func coreString(def api.FunctionDefinition) string {
	names := func(types []api.ValueType) string {
		parts := make([]string, len(types))
		for i, t := range types {
			parts[i] = api.ValueTypeName(t)
		}
		return strings.Join(parts, ", ")
	}
	out := "func(" + names(def.ParamTypes()) + ")"
	if len(def.ResultTypes()) > 0 {
		out += " -> " + names(def.ResultTypes())
	}
	return out
}

func equalTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// abi describes what a compiled module exports.
type abi struct {
	transform Shape
	inverse   Shape
	free      bool
	pulls     bool
}

// inspect validates a compiled module against the lens boundary.
func inspect(compiled wazero.CompiledModule) (abi, error) {
	var out abi

	if _, ok := compiled.ExportedMemories()[ExportMemory]; !ok {
		return out, errors.MissingExport(ExportMemory)
	}

	exports := compiled.ExportedFunctions()
	require := func(name string, sig signature) error {
		def, ok := exports[name]
		if !ok {
			return errors.MissingExport(name)
		}
		if !sig.matches(def) {
			return errors.SignatureMismatch(name, sig.String(), coreString(def))
		}
		return nil
	}
	if err := require(ExportAlloc, allocSig); err != nil {
		return out, err
	}
	if err := require(ExportSetParam, setParamSig); err != nil {
		return out, err
	}

	shape := func(name string, required bool) (Shape, error) {
		def, ok := exports[name]
		switch {
		case !ok && required:
			return ShapeNone, errors.MissingExport(name)
		case !ok:
			return ShapeNone, nil
		case pushSig.matches(def):
			return ShapePush, nil
		case pullSig.matches(def):
			return ShapePull, nil
		}
		return ShapeNone, errors.SignatureMismatch(name, pushSig.String()+" or "+pullSig.String(), coreString(def))
	}
	var err error
	if out.transform, err = shape(ExportTransform, true); err != nil {
		return out, err
	}
	if out.inverse, err = shape(ExportInverse, false); err != nil {
		return out, err
	}

	if def, ok := exports[ExportFree]; ok {
		if !freeSig.matches(def) {
			return out, errors.SignatureMismatch(ExportFree, freeSig.String(), coreString(def))
		}
		out.free = true
	}

	for _, def := range compiled.ImportedFunctions() {
		module, name, _ := def.Import()
		switch module {
		case ImportModule:
			if name != ImportNext {
				return out, errors.NotFound(errors.PhaseLoad, "host function", module+"."+name)
			}
			if !nextSig.matches(def) {
				return out, errors.SignatureMismatch(module+"."+name, nextSig.String(), coreString(def))
			}
			out.pulls = true
		case wasi_snapshot_preview1.ModuleName:
		default:
			return out, errors.NotFound(errors.PhaseLoad, "import module", module)
		}
	}
	return out, nil
}

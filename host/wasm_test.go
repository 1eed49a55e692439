package host

// A minimal core wasm assembler for test guests. Every module has one page
// of memory, a bump allocator in global 0 starting at 1024, and optionally
// imports lens.next as function 0.

const (
	typeHandle   byte = 0 // (i32) -> i32
	typeFree     byte = 1 // (i32, i32) -> ()
	typeProducer byte = 2 // () -> i32
)

// errorAt is where errorData is placed in guest memory.
const errorAt = 16

// errorData is an ERROR buffer holding "boom".
var errorData = []byte{0xFF, 4, 0, 0, 0, 'b', 'o', 'o', 'm'}

// notFoundMessage is what a lens reports for a missing property "a".
const notFoundMessage = `[transform] property_not_found at a: requested property "a" not found`

// notFoundData is placed at offset 64.
var notFoundData = errorBuffer(notFoundMessage)

func errorBuffer(msg string) []byte {
	n := len(msg)
	return append([]byte{0xFF, byte(n), byte(n >> 8), byte(n >> 16), byte(n >> 24)}, msg...)
}

// Function bodies, each starting with an empty local declaration vector.
var (
	allocBody = []byte{0x00, 0x23, 0x00, 0x23, 0x00, 0x20, 0x00, 0x6A, 0x24, 0x00, 0x0B}
	noopBody  = []byte{0x00, 0x0B}
	nilBody   = []byte{0x00, 0x41, 0x00, 0x0B}
	echoBody  = []byte{0x00, 0x20, 0x00, 0x0B}
	errorBody = []byte{0x00, 0x41, errorAt, 0x0B}
	pullBody  = []byte{0x00, 0x10, 0x00, 0x0B}
	trapBody  = []byte{0x00, 0x00, 0x0B}

	// i32.const 64 takes two bytes of signed LEB128.
	notFoundBody = []byte{0x00, 0x41, 0xC0, 0x00, 0x0B}
)

type testFunc struct {
	export string
	body   []byte
	typ    byte
}

type testModule struct {
	funcs      []testFunc
	importNext bool
	noMemory   bool
}

func uleb(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			return out
		}
	}
}

func wasmName(s string) []byte {
	return append(uleb(uint32(len(s))), s...)
}

func wasmSection(id byte, body []byte) []byte {
	out := append([]byte{id}, uleb(uint32(len(body)))...)
	return append(out, body...)
}

func (m testModule) build() []byte {
	wasm := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	wasm = append(wasm, wasmSection(0x01, []byte{
		0x03,
		0x60, 0x01, 0x7F, 0x01, 0x7F,
		0x60, 0x02, 0x7F, 0x7F, 0x00,
		0x60, 0x00, 0x01, 0x7F,
	})...)

	imported := uint32(0)
	if m.importNext {
		imports := []byte{0x01}
		imports = append(imports, wasmName(ImportModule)...)
		imports = append(imports, wasmName(ImportNext)...)
		imports = append(imports, 0x00, typeProducer)
		wasm = append(wasm, wasmSection(0x02, imports)...)
		imported = 1
	}

	funcs := uleb(uint32(len(m.funcs)))
	for _, f := range m.funcs {
		funcs = append(funcs, f.typ)
	}
	wasm = append(wasm, wasmSection(0x03, funcs)...)

	if !m.noMemory {
		wasm = append(wasm, wasmSection(0x05, []byte{0x01, 0x00, 0x01})...)
	}

	// global 0: mutable i32 heap pointer = 1024
	wasm = append(wasm, wasmSection(0x06, []byte{0x01, 0x7F, 0x01, 0x41, 0x80, 0x08, 0x0B})...)

	var exports []byte
	count := uint32(0)
	if !m.noMemory {
		exports = append(exports, wasmName(ExportMemory)...)
		exports = append(exports, 0x02, 0x00)
		count++
	}
	for i, f := range m.funcs {
		if f.export == "" {
			continue
		}
		exports = append(exports, wasmName(f.export)...)
		exports = append(exports, 0x00)
		exports = append(exports, uleb(imported+uint32(i))...)
		count++
	}
	wasm = append(wasm, wasmSection(0x07, append(uleb(count), exports...))...)

	code := uleb(uint32(len(m.funcs)))
	for _, f := range m.funcs {
		code = append(code, uleb(uint32(len(f.body)))...)
		code = append(code, f.body...)
	}
	wasm = append(wasm, wasmSection(0x0A, code)...)

	if !m.noMemory {
		data := []byte{0x02, 0x00, 0x41, errorAt, 0x0B}
		data = append(data, uleb(uint32(len(errorData)))...)
		data = append(data, errorData...)
		data = append(data, 0x00, 0x41, 0xC0, 0x00, 0x0B)
		data = append(data, uleb(uint32(len(notFoundData)))...)
		data = append(data, notFoundData...)
		wasm = append(wasm, wasmSection(0x0B, data)...)
	}
	return wasm
}

// lensModule returns the common exports plus the given entry points.
func lensModule(setParam []byte, entries ...testFunc) testModule {
	funcs := []testFunc{
		{export: ExportAlloc, typ: typeHandle, body: allocBody},
		{export: ExportFree, typ: typeFree, body: noopBody},
		{export: ExportSetParam, typ: typeHandle, body: setParam},
	}
	return testModule{funcs: append(funcs, entries...)}
}

// echoModule is a push-style lens returning its input unchanged in both
// directions.
func echoModule() []byte {
	return lensModule(nilBody,
		testFunc{export: ExportTransform, typ: typeHandle, body: echoBody},
		testFunc{export: ExportInverse, typ: typeHandle, body: echoBody},
	).build()
}

// passModule is a pull-style lens returning whatever lens.next yields.
func passModule() []byte {
	m := lensModule(nilBody, testFunc{export: ExportTransform, typ: typeProducer, body: pullBody})
	m.importNext = true
	return m.build()
}

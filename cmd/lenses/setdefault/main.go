//go:build wasip1

// Command setdefault builds the setdefault lens as a WASI reactor:
//
//	GOOS=wasip1 GOARCH=wasm go build -buildmode=c-shared -o setdefault.wasm ./cmd/lenses/setdefault
package main

import (
	"github.com/wippyai/wasm-lens/guest"
	"github.com/wippyai/wasm-lens/lenses/setdefault"
	"github.com/wippyai/wasm-lens/module"
)

var instance = module.New[setdefault.Params]("setdefault", setdefault.Lens{}, guest.Memory, guest.Memory)

func main() {}

//go:wasmexport alloc
func alloc(size uint32) uint32 { return instance.Alloc(size) }

//go:wasmexport free
func free(ptr, size uint32) { instance.Free(ptr, size) }

//go:wasmexport set_param
func setParam(ptr uint32) uint32 { return instance.SetParam(ptr) }

//go:wasmexport transform
func transform(ptr uint32) uint32 { return instance.Transform(ptr) }

//go:wasmexport inverse
func inverse(ptr uint32) uint32 { return instance.Inverse(ptr) }

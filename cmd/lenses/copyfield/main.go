//go:build wasip1

// Command copyfield builds the copyfield lens as a WASI reactor:
//
//	GOOS=wasip1 GOARCH=wasm go build -buildmode=c-shared -o copyfield.wasm ./cmd/lenses/copyfield
package main

import (
	"github.com/wippyai/wasm-lens/guest"
	"github.com/wippyai/wasm-lens/lenses/copyfield"
	"github.com/wippyai/wasm-lens/module"
)

var instance = module.New[copyfield.Params]("copyfield", copyfield.Lens{}, guest.Memory, guest.Memory)

func main() {}

//go:wasmexport alloc
func alloc(size uint32) uint32 { return instance.Alloc(size) }

//go:wasmexport free
func free(ptr, size uint32) { instance.Free(ptr, size) }

//go:wasmexport set_param
func setParam(ptr uint32) uint32 { return instance.SetParam(ptr) }

//go:wasmexport transform
func transform() uint32 { return instance.TransformPull(guest.Next) }

//go:wasmexport inverse
func inverse() uint32 { return instance.InversePull(guest.Next) }

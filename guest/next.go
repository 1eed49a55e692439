//go:build wasip1

package guest

// Next asks the host for the next upstream buffer. The host writes it into
// this module's memory through the alloc export and hands over ownership.
//
//go:wasmimport lens next
func Next() uint32

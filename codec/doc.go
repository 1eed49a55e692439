// Package codec implements the tagged buffer format exchanged across the
// lens boundary.
//
// A buffer is a one-byte type tag, a little-endian uint32 payload length
// and the payload. The null handle stands for an absent value. On top of
// raw frames the package encodes stream controls (value, skip, end of
// stream), error messages and JSON parameter documents.
//
// Heap is a Memory and Allocator backed by a Go byte slice, used wherever
// the protocol runs outside a sandbox.
package codec

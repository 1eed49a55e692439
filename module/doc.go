// Package module implements the guest side of the lens protocol.
//
// A lens is a small Go type with a parameter struct and a Transform method
// (and optionally Inverse). Module wraps it with the boundary entry points
// a host calls: Alloc, Free, SetParam, Transform or TransformPull, and
// Inverse or InversePull.
//
// Both call shapes run the same lens code. In push style the host hands
// over one encoded control per call and the lens sees a source holding
// exactly that control. In pull style the lens pulls through the host's
// next import as often as it needs, including not at all.
//
// Every error, including a recovered panic, leaves the module as an ERROR
// buffer carrying err.Error(). Nothing else crosses the boundary.
package module

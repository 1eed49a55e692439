// Package stream provides the three-state stream control signal and the
// record source capability that transforms pull from.
//
// A push-style host hands a lens one control per call (Once); a pull-style
// host lets the lens draw from upstream through a callback (SourceFunc).
// Either way the transform sees a Source and answers with a Control.
package stream

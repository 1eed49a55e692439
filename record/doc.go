// Package record models the documents that flow through a lens pipeline.
//
// A Record is an ordered field-name to Value mapping; a Value is a closed
// tagged union over null, bool, number, string, array and nested record.
// Records decode from and encode to JSON objects with field order kept.
package record

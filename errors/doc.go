// Package errors provides structured error types for both sides of the lens boundary.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The protocol taxonomy is parameters_not_set, decode, property_not_found and
// validation; the remaining kinds describe memory, loading and runtime failures.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseParam, errors.KindValidation).
//		Path("dst").
//		Detail("must not be empty").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.PropertyNotFound(errors.PhaseTransform, "name")
//	err := errors.ParametersNotSet(errors.PhaseInverse)
//
// Match with errors.Is against a sentinel to ignore the phase:
//
//	if stderrors.Is(err, errors.ErrPropertyNotFound) { ... }
package errors

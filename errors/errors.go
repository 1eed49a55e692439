package errors

import (
	"fmt"
	"strconv"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseParam     Phase = "param"     // set_param and parameter access
	PhaseEncode    Phase = "encode"    // Go to buffer
	PhaseDecode    Phase = "decode"    // buffer to Go
	PhaseTransform Phase = "transform" // forward transform
	PhaseInverse   Phase = "inverse"   // inverse transform
	PhaseMemory    Phase = "memory"    // linear memory access and allocation
	PhaseStream    Phase = "stream"    // record sources
	PhaseHost      Phase = "host"      // host functions
	PhaseLoad      Phase = "load"      // module loading and validation
	PhaseRuntime   Phase = "runtime"   // instantiation and calls
	PhaseConfig    Phase = "config"    // configuration documents
)

// Kind categorizes the error
type Kind string

const (
	KindParametersNotSet  Kind = "parameters_not_set"
	KindDecode            Kind = "decode"
	KindPropertyNotFound  Kind = "property_not_found"
	KindValidation        Kind = "validation"
	KindOutOfBounds       Kind = "out_of_bounds"
	KindAllocation        Kind = "allocation"
	KindUnsupported       Kind = "unsupported"
	KindInvalidInput      Kind = "invalid_input"
	KindNotFound          Kind = "not_found"
	KindMissingExport     Kind = "missing_export"
	KindSignatureMismatch Kind = "signature_mismatch"
	KindInstantiation     Kind = "instantiation"
	KindRemote            Kind = "remote"
	KindTrap              Kind = "trap"
	KindPanic             Kind = "panic"
	KindExhausted         Kind = "exhausted"
)

// Sentinels for errors.Is. They carry no Phase, so they match any phase.
var (
	ErrParametersNotSet = &Error{Kind: KindParametersNotSet}
	ErrDecode           = &Error{Kind: KindDecode}
	ErrPropertyNotFound = &Error{Kind: KindPropertyNotFound}
	ErrValidation       = &Error{Kind: KindValidation}
	ErrRemote           = &Error{Kind: KindRemote}
)

// Error is the structured error type used on both sides of the boundary
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	GoType string
	Detail string
	Path   []string

	// requested is the property named by a relayed property_not_found.
	requested string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.GoType != "" {
		b.WriteString(": Go type ")
		b.WriteString(e.GoType)
	}

	if e.Detail != "" {
		if e.GoType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. A target without a Phase
// matches on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase == "" {
		if e.Kind == KindRemote {
			if carried, ok := e.Value.(Kind); ok && carried == t.Kind {
				return true
			}
		}
		return e.Kind == t.Kind
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}

// Requested returns the property name carried by a property_not_found error,
// including one relayed across the boundary as a remote error.
func Requested(err error) (string, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok {
			switch {
			case e.Kind == KindPropertyNotFound:
				name, ok := e.Value.(string)
				return name, ok
			case e.Kind == KindRemote && e.requested != "":
				return e.requested, true
			}
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return "", false
		}
		err = u.Unwrap()
	}
	return "", false
}

// Protocol errors

// ParametersNotSet reports access to a lens's parameters before set_param succeeded
func ParametersNotSet(phase Phase) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindParametersNotSet,
		Detail: "parameters have not been set",
	}
}

// PropertyNotFound reports a required record field that is absent
func PropertyNotFound(phase Phase, requested string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindPropertyNotFound,
		Path:   []string{requested},
		Value:  requested,
		Detail: fmt.Sprintf("requested property %q not found", requested),
	}
}

// Decode creates a malformed-buffer error
func Decode(phase Phase, detail string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindDecode,
		Detail: detail,
		Cause:  cause,
	}
}

// Validation creates a lens-specific validation error
func Validation(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindValidation,
		Path:   path,
		Detail: detail,
	}
}

// Remote carries an error message received in an ERROR buffer from the other side.
// When the message was produced by this package, the kind it names is kept
// in Value so that errors.Is still matches the original sentinel, and the
// property named by a property_not_found message stays available to Requested.
func Remote(phase Phase, message string) *Error {
	e := &Error{
		Phase:  phase,
		Kind:   KindRemote,
		Detail: message,
	}
	k, origin := remoteOrigin(message)
	if k != "" {
		e.Value = k
	}
	if k == KindPropertyNotFound {
		e.requested, _ = requestedIn(origin)
	}
	return e
}

// RemoteKind extracts the kind from a message formatted by Error.Error,
// such as "[transform] property_not_found at a: ...". It returns "" for
// messages in any other form. Relayed remote messages yield the kind of the
// innermost message.
func RemoteKind(message string) Kind {
	k, _ := remoteOrigin(message)
	return k
}

// remoteOrigin returns the kind of the innermost message and the text that
// follows its "[phase] " prefix.
func remoteOrigin(message string) (Kind, string) {
	if !strings.HasPrefix(message, "[") {
		return "", ""
	}
	_, rest, ok := strings.Cut(message, "] ")
	if !ok {
		return "", ""
	}
	end := strings.IndexAny(rest, " :")
	if end < 0 {
		end = len(rest)
	}
	k := Kind(rest[:end])
	if k == KindRemote {
		// A relayed message nests the original one after the detail separator.
		_, inner, ok := strings.Cut(rest, ": ")
		if !ok {
			return "", ""
		}
		return remoteOrigin(inner)
	}
	return k, rest
}

// requestedIn finds the quoted name in a PropertyNotFound detail.
func requestedIn(text string) (string, bool) {
	const marker = "requested property "
	i := strings.Index(text, marker)
	if i < 0 {
		return "", false
	}
	quoted, err := strconv.QuotedPrefix(text[i+len(marker):])
	if err != nil {
		return "", false
	}
	name, err := strconv.Unquote(quoted)
	if err != nil {
		return "", false
	}
	return name, true
}

// Panic converts a recovered panic value into an error
func Panic(phase Phase, v any) *Error {
	if err, ok := v.(error); ok {
		return &Error{
			Phase:  phase,
			Kind:   KindPanic,
			Detail: "recovered panic",
			Cause:  err,
		}
	}
	return &Error{
		Phase:  phase,
		Kind:   KindPanic,
		Detail: fmt.Sprintf("recovered panic: %v", v),
		Value:  v,
	}
}

// Memory errors

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, size uint32, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes", size),
		Cause:  cause,
	}
}

// OutOfBounds creates an out of bounds memory access error
func OutOfBounds(phase Phase, offset, length uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("offset %d length %d out of bounds", offset, length),
		Value:  offset,
	}
}

// Generic errors

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// Exhausted reports a pull from a source that can yield nothing more
func Exhausted(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindExhausted,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Host package convenience constructors

// MissingExport reports a module that does not export a required entry point
func MissingExport(name string) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindMissingExport,
		Path:   []string{name},
		Detail: fmt.Sprintf("module does not export %q", name),
	}
}

// SignatureMismatch reports an entry point whose core signature is not the expected one
func SignatureMismatch(name, want, got string) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindSignatureMismatch,
		Path:   []string{name},
		Detail: fmt.Sprintf("expected %s, got %s", want, got),
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindInstantiation,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// Load creates a module loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindDecode,
		Detail: detail,
		Cause:  cause,
	}
}

// Trap wraps a failed guest call
func Trap(phase Phase, function string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTrap,
		Path:   []string{function},
		Detail: "guest call failed",
		Cause:  cause,
	}
}

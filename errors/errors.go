package errors

import (
	"fmt"
	"strings"
)

// Phase indicates which layer of the bridge produced the error
type Phase string

const (
	PhaseInit     Phase = "init"     // initialize/finalize
	PhaseGateway  Phase = "gateway"  // boundary entry points
	PhaseRegistry Phase = "registry" // instance bookkeeping
	PhaseInstance Phase = "instance" // per-session operations
	PhaseValue    Phase = "value"    // scripting values
	PhaseRequest  Phase = "request"  // request queue and outcomes
	PhaseStream   Phase = "stream"   // url stream delivery
	PhaseSession  Phase = "session"  // worker activity
)

// Kind categorizes the error
type Kind string

const (
	KindVersionMismatch Kind = "version_mismatch"
	KindNotInitialized  Kind = "not_initialized"
	KindInvalidHandle   Kind = "invalid_handle"
	KindTypeMismatch    Kind = "type_mismatch"
	KindNotRunning      Kind = "not_running"
	KindAlreadyRunning  Kind = "already_running"
	KindUnknownStream   Kind = "unknown_stream"
	KindInvalidEvent    Kind = "invalid_event"
	KindRefcount        Kind = "refcount"
	KindNotFound        Kind = "not_found"
	KindInvalidInput    Kind = "invalid_input"
	KindLoad            Kind = "load"
	KindInstantiation   Kind = "instantiation"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Type   string
	Detail string
	Path   []string
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

	if e.Type != "" {
		b.WriteString(": type ")
		b.WriteString(e.Type)
	}

	if e.Detail != "" {
		if e.Type != "" {
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

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
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

// Path sets the property or method path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Type sets the scripting type name involved
func (b *Builder) Type(t string) *Builder {
	b.err.Type = t
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

// Convenience constructors for common error patterns

// VersionMismatch creates an API version mismatch error
func VersionMismatch(got, want int) *Error {
	return &Error{
		Phase:  PhaseInit,
		Kind:   KindVersionMismatch,
		Detail: fmt.Sprintf("api version %d, compiled with %d", got, want),
		Value:  got,
	}
}

// NotInitialized creates a not-initialized error
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// InvalidHandle creates an invalid handle error for a null, unknown or released handle
func InvalidHandle(phase Phase, what string, h uint64) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidHandle,
		Detail: fmt.Sprintf("invalid %s handle %#x", what, h),
		Value:  h,
	}
}

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, typ, op string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Path:   path,
		Type:   typ,
		Detail: fmt.Sprintf("%s not supported", op),
	}
}

// NotRunning creates an error for operations that need a running instance
func NotRunning(phase Phase, state string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotRunning,
		Detail: fmt.Sprintf("instance is %s", state),
	}
}

// AlreadyRunning creates an error for a repeated start
func AlreadyRunning(state string) *Error {
	return &Error{
		Phase:  PhaseRegistry,
		Kind:   KindAlreadyRunning,
		Detail: fmt.Sprintf("instance is %s", state),
	}
}

// UnknownStream creates an error for a stream id with no outstanding download
func UnknownStream(id int) *Error {
	return &Error{
		Phase:  PhaseStream,
		Kind:   KindUnknownStream,
		Detail: fmt.Sprintf("no outstanding download with id %d", id),
		Value:  id,
	}
}

// InvalidEvent creates a malformed event error
func InvalidEvent(detail string) *Error {
	return &Error{
		Phase:  PhaseInstance,
		Kind:   KindInvalidEvent,
		Detail: detail,
	}
}

// Refcount creates a reference counting contract violation error
func Refcount(h uint64, detail string) *Error {
	return &Error{
		Phase:  PhaseValue,
		Kind:   KindRefcount,
		Detail: detail,
		Value:  h,
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

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
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

// Load creates a package loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseSession,
		Kind:   KindLoad,
		Detail: detail,
		Cause:  cause,
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseSession,
		Kind:   KindInstantiation,
		Detail: "instantiate package",
		Cause:  cause,
	}
}

package errors

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Phase indicates where in the bridge the error occurred
type Phase string

const (
	PhaseRegister  Phase = "register"  // handle table and type registry writes
	PhaseResolve   Phase = "resolve"   // serial and native handle lookups
	PhaseConstruct Phase = "construct" // proxy and native twin creation
	PhaseDispatch  Phase = "dispatch"  // native-to-Go callback slots
	PhaseTeardown  Phase = "teardown"  // proxy close and shutdown ordering
	PhaseInstall   Phase = "install"   // callback slot install/uninstall
	PhaseNative    Phase = "native"    // calls into the native library
	PhaseLoad      Phase = "load"      // native library and guest module loading
)

// Kind categorizes the error
type Kind string

const (
	KindLookupMiss           Kind = "lookup_miss"
	KindStaleHandle          Kind = "stale_handle"
	KindCallbackFault        Kind = "callback_fault"
	KindRegistrationConflict Kind = "registration_conflict"
	KindNotFound             Kind = "not_found"
	KindInvalidInput         Kind = "invalid_input"
	KindNotInitialized       Kind = "not_initialized"
	KindTwinMismatch         Kind = "twin_mismatch"
	KindClosed               Kind = "closed"
	KindUnsupported          Kind = "unsupported"
	KindLoad                 Kind = "load"
	KindNative               Kind = "native"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Slot   string
	Detail string
	TypeID uuid.UUID
	Serial int32
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Slot != "" {
		b.WriteString(" in ")
		b.WriteString(e.Slot)
	}
	if e.Serial != 0 {
		fmt.Fprintf(&b, " serial=%d", e.Serial)
	}
	if e.TypeID != uuid.Nil {
		b.WriteString(" type=")
		b.WriteString(e.TypeID.String())
	}

	if e.Detail != "" {
		b.WriteString(": ")
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

// Is reports whether target matches this error. A target with an empty
// Phase matches any phase.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase != "" && t.Phase != e.Phase {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels for errors.Is checks that only care about the kind.
var (
	ErrLookupMiss           = &Error{Kind: KindLookupMiss}
	ErrStaleHandle          = &Error{Kind: KindStaleHandle}
	ErrCallbackFault        = &Error{Kind: KindCallbackFault}
	ErrRegistrationConflict = &Error{Kind: KindRegistrationConflict}
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrClosed               = &Error{Kind: KindClosed}
	ErrNotInitialized       = &Error{Kind: KindNotInitialized}
	ErrInvalidInput         = &Error{Kind: KindInvalidInput}
	ErrTwinMismatch         = &Error{Kind: KindTwinMismatch}
	ErrUnsupported          = &Error{Kind: KindUnsupported}
	ErrNative               = &Error{Kind: KindNative}
	ErrLoad                 = &Error{Kind: KindLoad}
)

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

// Slot sets the callback slot name
func (b *Builder) Slot(name string) *Builder {
	b.err.Slot = name
	return b
}

// Serial sets the serial number involved
func (b *Builder) Serial(s int32) *Builder {
	b.err.Serial = s
	return b
}

// TypeID sets the type identifier involved
func (b *Builder) TypeID(id uuid.UUID) *Builder {
	b.err.TypeID = id
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

// LookupMiss reports a serial that does not resolve to a live proxy.
func LookupMiss(phase Phase, serial int32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindLookupMiss,
		Serial: serial,
		Detail: "no live proxy for serial",
	}
}

// StaleHandle reports a proxy whose native twin no longer exists.
func StaleHandle(phase Phase, serial int32, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindStaleHandle,
		Serial: serial,
		Detail: fmt.Sprintf("%s: native twin no longer exists", what),
	}
}

// CallbackFault wraps a panic or error raised by a Go override during dispatch.
func CallbackFault(slot string, serial int32, recovered any) *Error {
	e := &Error{
		Phase:  PhaseDispatch,
		Kind:   KindCallbackFault,
		Slot:   slot,
		Serial: serial,
		Value:  recovered,
	}
	if err, ok := recovered.(error); ok {
		e.Cause = err
	} else {
		e.Detail = fmt.Sprintf("panic: %v", recovered)
	}
	return e
}

// RegistrationConflict reports a type id already claimed by another owner.
func RegistrationConflict(typeID, owner, claimant uuid.UUID) *Error {
	return &Error{
		Phase:  PhaseRegister,
		Kind:   KindRegistrationConflict,
		TypeID: typeID,
		Detail: fmt.Sprintf("owned by module %s, claimed by %s", owner, claimant),
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

// TypeNotFound reports an unknown type identifier.
func TypeNotFound(phase Phase, id uuid.UUID) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		TypeID: id,
		Detail: "type identifier not registered",
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

// NotInitialized creates a not-initialized error for a missing component
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// TwinMismatch reports a native twin created for a different serial than requested.
func TwinMismatch(requested, returned int32) *Error {
	return &Error{
		Phase:  PhaseConstruct,
		Kind:   KindTwinMismatch,
		Serial: requested,
		Value:  returned,
		Detail: fmt.Sprintf("native twin reports serial %d", returned),
	}
}

// Closed reports an operation on a closed table, bridge or library.
func Closed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s closed", what),
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
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

// Load creates a native library or guest module loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindLoad,
		Detail: detail,
		Cause:  cause,
	}
}

// Is is errors.Is from the standard library.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As is errors.As from the standard library.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Join is errors.Join from the standard library.
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}

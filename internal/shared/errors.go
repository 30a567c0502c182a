// Package shared holds error types common to the gateway packages.
package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks caller mistakes that are rejected before any
	// remote call is made.
	ErrValidation = errors.New("validation error")

	// ErrNotInitialized is returned by gateway operations invoked before
	// Initialize or after Close.
	ErrNotInitialized = errors.New("gateway not initialized")
)

// Kind classifies a remote-store failure so callers can map it to a
// deterministic outcome instead of a collapsed boolean.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindConflict
	KindTransient
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "transient"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Fault is a remote failure tagged with its kind and the operation that
// produced it. The underlying remote error stays available via Unwrap.
type Fault struct {
	Kind Kind
	Op   string
	Err  error
}

func (f *Fault) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%s: %s", f.Op, f.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", f.Op, f.Kind, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

func NewFault(kind Kind, op string, err error) *Fault {
	return &Fault{Kind: kind, Op: op, Err: err}
}

func NotFound(op string, err error) *Fault {
	return NewFault(KindNotFound, op, err)
}

func Conflict(op string, err error) *Fault {
	return NewFault(KindConflict, op, err)
}

func Transient(op string, err error) *Fault {
	return NewFault(KindTransient, op, err)
}

func Unavailable(op string, err error) *Fault {
	return NewFault(KindUnavailable, op, err)
}

// KindOf reports the fault kind carried by err, unwrapping as needed.
func KindOf(err error) (Kind, bool) {
	var fault *Fault
	if errors.As(err, &fault) {
		return fault.Kind, true
	}
	return KindUnknown, false
}

func IsNotFound(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindNotFound
}

func IsConflict(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindConflict
}

// Package nodeerr defines the typed error taxonomy shared by every layer of
// the core engine. Storage, the node service, the coordinator, and the MCP
// dispatcher all construct and inspect these types instead of relying on
// sentinel string matching or panics.
package nodeerr

import (
	"errors"
	"fmt"
)

// Kind enumerates the failure categories the engine distinguishes.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindUniqueViolation
	KindForeignKeyViolation
	KindVersionConflict
	KindSchemaViolation
	KindCycleWouldOccur
	KindBusy
	KindCorrupt
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindUniqueViolation:
		return "UniqueViolation"
	case KindForeignKeyViolation:
		return "ForeignKeyViolation"
	case KindVersionConflict:
		return "VersionConflict"
	case KindSchemaViolation:
		return "SchemaViolation"
	case KindCycleWouldOccur:
		return "CycleWouldOccur"
	case KindBusy:
		return "Busy"
	case KindCorrupt:
		return "Corrupt"
	default:
		return "Unknown"
	}
}

// Error is the common typed error used across the engine. Callers match on
// Kind with errors.As, never on message text.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so callers can
// do errors.Is(err, nodeerr.NotFound) style checks against the sentinels
// below without pulling Message/Err into the comparison.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// Sentinels usable with errors.Is(err, nodeerr.NotFound), etc. Each carries
// only its Kind; construct a real *Error with New for the actual error.
var (
	NotFound            = &Error{Kind: KindNotFound}
	UniqueViolation     = &Error{Kind: KindUniqueViolation}
	ForeignKeyViolation = &Error{Kind: KindForeignKeyViolation}
	VersionConflictErr  = &Error{Kind: KindVersionConflict}
	SchemaViolation     = &Error{Kind: KindSchemaViolation}
	CycleWouldOccur     = &Error{Kind: KindCycleWouldOccur}
	Busy                = &Error{Kind: KindBusy}
	Corrupt             = &Error{Kind: KindCorrupt}
)

// New builds an *Error of the given kind wrapping err with a message.
func New(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// NotFoundf builds a NotFound error for the given id.
func NotFoundf(id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("node %q not found", id)}
}

// VersionConflict carries the expected/actual versions and, where available,
// the current node so the caller can decide whether to retry or surface it.
type VersionConflict struct {
	Expected int
	Actual   int
	Current  any // *node.Node, kept as any to avoid an import cycle
}

func (v *VersionConflict) Error() string {
	return fmt.Sprintf("VersionConflict: expected version %d, current version %d", v.Expected, v.Actual)
}

func (v *VersionConflict) Is(target error) bool {
	return errors.Is(target, VersionConflictErr)
}

// AsKind extracts the Kind of err if it is (or wraps) a recognized error,
// returning KindUnknown otherwise.
func AsKind(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var vc *VersionConflict
	if errors.As(err, &vc) {
		return KindVersionConflict
	}
	return KindUnknown
}

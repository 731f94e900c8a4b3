// Package cmn provides common low-level types and utilities shared by every
// objectio package: identifiers, the typed error taxonomy, checksums, and
// cluster configuration.
package cmn

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrKind classifies an error the way §7 of the design taxonomy does, so
// callers can branch on kind rather than string-match messages.
type ErrKind int

const (
	// KindIntegrity covers CRC mismatch, magic mismatch, sequence mismatch,
	// version mismatch. Never recovered locally; triggers repair paths.
	KindIntegrity ErrKind = iota
	// KindCapacity covers disk full, insufficient live nodes, insufficient
	// failure domains for the requested diversity.
	KindCapacity
	// KindConfig covers bad EC parameters, unaligned I/O, invalid key size,
	// unknown storage class. Programmer error.
	KindConfig
	// KindTransient covers RPC timeout, connection failure, service
	// unavailable. Retryable by the caller.
	KindTransient
	// KindNotFound covers missing object, shard, volume, or bucket.
	KindNotFound
	// KindConflict covers duplicate volume name, snapshot still
	// referenced, volume attached elsewhere.
	KindConflict
	// KindIO covers device-level raw-disk faults (EIO, stale handle,
	// readonly filesystem, quota, no space) severe enough to mark the
	// disk unhealthy rather than just retry.
	KindIO
)

func (k ErrKind) String() string {
	switch k {
	case KindIntegrity:
		return "integrity"
	case KindCapacity:
		return "capacity"
	case KindConfig:
		return "config"
	case KindTransient:
		return "transient"
	case KindNotFound:
		return "not-found"
	case KindConflict:
		return "conflict"
	case KindIO:
		return "io"
	default:
		return "unknown"
	}
}

// TypedError is satisfied by every error this module returns across package
// boundaries, letting callers switch on Kind() instead of matching strings.
type TypedError interface {
	error
	Kind() ErrKind
}

type typedError struct {
	kind ErrKind
	msg  string
	// cause is optional; wrapped with github.com/pkg/errors so callers can
	// still errors.Cause() / errors.Unwrap() through to the root fault.
	cause error
}

func (e *typedError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

func (e *typedError) Kind() ErrKind { return e.kind }
func (e *typedError) Unwrap() error { return e.cause }

func newErr(kind ErrKind, cause error, format string, args ...interface{}) *typedError {
	return &typedError{kind: kind, msg: fmt.Sprintf(format, args...), cause: cause}
}

func NewIntegrityError(format string, args ...interface{}) error {
	return newErr(KindIntegrity, nil, format, args...)
}

func WrapIntegrityError(cause error, format string, args ...interface{}) error {
	return newErr(KindIntegrity, errors.WithStack(cause), format, args...)
}

func NewCapacityError(format string, args ...interface{}) error {
	return newErr(KindCapacity, nil, format, args...)
}

func NewConfigError(format string, args ...interface{}) error {
	return newErr(KindConfig, nil, format, args...)
}

func NewTransientError(cause error, format string, args ...interface{}) error {
	return newErr(KindTransient, errors.WithStack(cause), format, args...)
}

func NewNotFoundError(format string, args ...interface{}) error {
	return newErr(KindNotFound, nil, format, args...)
}

func NewConflictError(format string, args ...interface{}) error {
	return newErr(KindConflict, nil, format, args...)
}

// WrapDiskError classifies cause via IsIOError: a raw-disk fault becomes
// KindIO (triggers disk-health handling), anything else falls back to
// KindTransient (retryable by the caller).
func WrapDiskError(cause error, format string, args ...interface{}) error {
	kind := KindTransient
	if IsIOError(cause) {
		kind = KindIO
	}
	return newErr(kind, errors.WithStack(cause), format, args...)
}

// IsKind reports whether err (or anything it wraps) carries the given kind.
func IsKind(err error, kind ErrKind) bool {
	var te TypedError
	if errors.As(err, &te) {
		return te.Kind() == kind
	}
	return false
}

// Package resilience defines the error taxonomy shared by every
// component that talks to the source or target service, plus a
// generic exponential-backoff retry helper built on top of it.
package resilience

import (
	"errors"
	"fmt"
	"time"
)

// Kind is one of the error taxonomy entries. Kinds classify failures
// by how a caller should react, not by which package raised them.
type Kind string

const (
	Validation       Kind = "validation"
	Configuration    Kind = "configuration"
	ConnectionFailed Kind = "connection_failed"
	PoolExhausted    Kind = "pool_exhausted"
	ServiceProtection Kind = "service_protection"
	TransientRace    Kind = "transient_race"
	NotFound         Kind = "not_found"
	SchemaMismatch   Kind = "schema_mismatch"
	DmlBlocked       Kind = "dml_blocked"
	Fatal            Kind = "fatal"

	// AlreadyExists marks a write that failed only because its target
	// state already holds (a duplicate association, most commonly).
	// Per §4.9 Phase D, pre-existing associations are benign: callers
	// should treat this kind as success, not failure.
	AlreadyExists Kind = "already_exists"
)

// Error wraps a failure with the taxonomy kind and whatever context
// is known at the point it was raised. Not every field applies to
// every kind; zero values are omitted by Error().
type Error struct {
	Kind       Kind
	Source     string
	Entity     string
	Code       string
	RetryAfter time.Duration
	Cause      error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Source != "" {
		msg += fmt.Sprintf(" source=%s", e.Source)
	}
	if e.Entity != "" {
		msg += fmt.Sprintf(" entity=%s", e.Entity)
	}
	if e.Code != "" {
		msg += fmt.Sprintf(" code=%s", e.Code)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, resilience.New(resilience.Validation, nil))
// match any *Error of the same kind by comparing kinds rather than
// identities.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New constructs a taxonomy error of the given kind.
func New(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

// WithSource/WithEntity/WithCode/WithRetryAfter return a shallow copy
// of e with the given field set, for fluent construction at call sites.

func (e *Error) WithSource(source string) *Error {
	c := *e
	c.Source = source
	return &c
}

func (e *Error) WithEntity(entity string) *Error {
	c := *e
	c.Entity = entity
	return &c
}

func (e *Error) WithCode(code string) *Error {
	c := *e
	c.Code = code
	return &c
}

func (e *Error) WithRetryAfter(d time.Duration) *Error {
	c := *e
	c.RetryAfter = d
	return &c
}

// KindOf returns the taxonomy kind of err, or "" if err does not carry
// one (or is nil).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err (or something it wraps) carries kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

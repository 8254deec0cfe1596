// Package cmn provides the common types, error kinds, wire encoding, and
// process-wide configuration shared by every other package in the
// runtime core — the same role aistore's own cmn package plays there.
/*
 * Copyright (c) 2024, pgasrt authors. All rights reserved.
 */
package cmn

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrKind tags one of the four fatal error kinds of the runtime core; the
// fifth kind, CompareExchangeMismatch, is a result value
// (CompareExchangeResult), not an ErrKind.
type ErrKind int

const (
	ErrKindAllocFailed ErrKind = iota
	ErrKindOutOfRange
	ErrKindTypeUnsupported
	ErrKindTeamMismatch
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindAllocFailed:
		return "AllocFailed"
	case ErrKindOutOfRange:
		return "OutOfRange"
	case ErrKindTypeUnsupported:
		return "TypeUnsupported"
	case ErrKindTeamMismatch:
		return "TeamMismatch"
	default:
		return "Unknown"
	}
}

// RuntimeError is the concrete error type carried by the four fatal
// error kinds (CompareExchangeMismatch is deliberately NOT one of these:
// a failed compare-exchange is a non-fatal per-element result variant,
// not an error -- see CompareExchangeResult below).
type RuntimeError struct {
	Kind ErrKind
	msg  string
}

func (e *RuntimeError) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.msg) }

func NewAllocFailed(format string, args ...interface{}) error {
	return &RuntimeError{Kind: ErrKindAllocFailed, msg: fmt.Sprintf(format, args...)}
}

func NewOutOfRange(index, length int) error {
	return &RuntimeError{Kind: ErrKindOutOfRange, msg: fmt.Sprintf("index %d out of range [0,%d)", index, length)}
}

func NewTypeUnsupported(op, typ string) error {
	return &RuntimeError{Kind: ErrKindTypeUnsupported, msg: fmt.Sprintf("op %q not defined for type %s", op, typ)}
}

func NewTeamMismatch(pe int) error {
	return &RuntimeError{Kind: ErrKindTeamMismatch, msg: fmt.Sprintf("PE %d is not a member of this team", pe)}
}

// IsErrKind reports whether err (possibly wrapped) is a RuntimeError of
// the given kind.
func IsErrKind(err error, kind ErrKind) bool {
	var rerr *RuntimeError
	if !errors.As(err, &rerr) {
		return false
	}
	return rerr.Kind == kind
}

// Wrap attaches a cause to a message the way aistore's cmn package
// attaches causes to transport/allocation failures.
func Wrap(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// CompareExchangeResult is the non-fatal Ok(prior)/Err(prior) outcome of
// a compare-exchange (or compare-exchange-epsilon) operation. It is a
// result value, not an error: callers check Success, they don't catch it.
type CompareExchangeResult struct {
	Prior   interface{}
	Success bool
}

// Package pverr centralises the error taxonomy shared across provchain-core.
//
// Every error surfaced above the canonicalization layer is recoverable and is
// returned to the caller rather than panicking; CanonicalizationError and
// LockError are the two kinds that escalate and abort the current writer
// session (see package chain).
package pverr

import (
	"errors"
	"fmt"
)

// Code identifies one of the conceptual error kinds this module surfaces.
type Code string

const (
	Validation		Code	= "ValidationError"
	Permission		Code	= "PermissionError"
	HashMismatch		Code	= "HashMismatchError"
	Store			Code	= "StoreError"
	Canonicalization	Code	= "CanonicalizationError"
	Lock			Code	= "LockError"
	Governance		Code	= "GovernanceError"
	TraceTimeout		Code	= "TraceTimeoutError"
	DomainValidationFail	Code	= "DomainValidationFailure"
)

// CodedError wraps an underlying cause with one of the Code kinds above so
// that callers (ultimately the HTTP layer, out of scope here) can map it to a
// client or server response without string-matching error text.
type CodedError struct {
	code	Code
	msg	string
	err	error
}

func (e *CodedError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.code, e.msg)
}

func (e *CodedError) Unwrap() error { return e.err }

// Code returns the conceptual error kind this error belongs to.
func (e *CodedError) Code() Code { return e.code }

// New constructs a CodedError with no wrapped cause.
func New(code Code, msg string) error {
	return &CodedError{code: code, msg: msg}
}

// Wrap constructs a CodedError wrapping err, or returns nil if err is nil.
func Wrap(code Code, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &CodedError{code: code, msg: msg, err: err}
}

// Is reports whether err carries the given Code, unwrapping as needed.
func Is(err error, code Code) bool {
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce.code == code
	}
	return false
}

// Sentinel errors referenced directly by name elsewhere in the module.
var (
	ErrNotFound		= errors.New("not found")
	ErrAlreadyExists	= errors.New("already exists")
	ErrUnauthorized		= errors.New("unauthorized")
	ErrInvalidState		= errors.New("invalid state")
	ErrQuorumNotMet		= errors.New("quorum not met")
	ErrChainUnsafe		= errors.New("chain marked unsafe after failed rollback")
	ErrConvergence		= errors.New("blank-node labeling did not converge")
	ErrValidatorBounds	= errors.New("validator set bounds violated")
)

package entity

import (
	"errors"
	"fmt"
)

// RuntimeError represents misuse of an entity or reference, or a failed load.
//
// Runtime errors include:
//   - Already loading: explicit Load while a load is in flight
//   - Detached: explicit Load on a reference with no session
//   - Load failed: the session rejected the load (Cause holds its error)
//   - Not loaded: a write forwarded to a reference that is not resolved
//   - Unknown member / type mismatch: a setter named an undeclared member or
//     passed a value the schema does not accept
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Type, ID and ClientID identify the affected entity.
	Type     string
	ID       string
	ClientID string

	// Cause is the underlying error, if any.
	Cause error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeAlreadyLoading indicates Load was called while a load is in flight.
	ErrCodeAlreadyLoading RuntimeErrorCode = "ALREADY_LOADING"

	// ErrCodeDetached indicates Load was called on a reference with no session.
	ErrCodeDetached RuntimeErrorCode = "DETACHED"

	// ErrCodeLoadFailed indicates the session failed to load the entity.
	ErrCodeLoadFailed RuntimeErrorCode = "LOAD_FAILED"

	// ErrCodeNotLoaded indicates a write to a reference that has no content.
	ErrCodeNotLoaded RuntimeErrorCode = "NOT_LOADED"

	// ErrCodeUnknownMember indicates an attribute or relationship the type does not declare.
	ErrCodeUnknownMember RuntimeErrorCode = "UNKNOWN_MEMBER"

	// ErrCodeTypeMismatch indicates a value or target the schema does not accept.
	ErrCodeTypeMismatch RuntimeErrorCode = "TYPE_MISMATCH"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Type != "" {
		msg += fmt.Sprintf(" (type=%s, id=%s, client_id=%s)", e.Type, e.ID, e.ClientID)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Cause
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsAlreadyLoading returns true if err reports a second concurrent Load.
// Uses errors.As to handle wrapped errors.
func IsAlreadyLoading(err error) bool {
	return hasCode(err, ErrCodeAlreadyLoading)
}

// IsDetached returns true if err reports a Load without a session.
func IsDetached(err error) bool {
	return hasCode(err, ErrCodeDetached)
}

// IsLoadFailed returns true if err reports a rejected session load.
func IsLoadFailed(err error) bool {
	return hasCode(err, ErrCodeLoadFailed)
}

// IsNotLoaded returns true if err reports a write to an unresolved reference.
func IsNotLoaded(err error) bool {
	return hasCode(err, ErrCodeNotLoaded)
}

func identityError(code RuntimeErrorCode, msg string, r Ref) *RuntimeError {
	re := &RuntimeError{Code: code, Message: msg}
	if r != nil {
		re.Type = r.Type().String()
		re.ID = r.ID()
		re.ClientID = r.ClientID()
	}
	return re
}

package domain

import (
	"errors"
	"fmt"
)

// Typed errors returned by the workflow core. They are never swallowed or
// auto-recovered; every recovery action is an explicit caller operation.

// InvalidTransitionError reports an attempted phase edge outside the ordered
// Initial -> Automation -> Manual -> Feedback -> Finished sequence. The
// website is left untouched.
type InvalidTransitionError struct {
	WebsiteID string
	Current   WebsitePhase
	Requested WebsitePhase
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition for website %s: %s -> %s", e.WebsiteID, e.Current, e.Requested)
}

// StaleStateError reports a lost compare-and-swap: the record changed between
// the caller's read and write. Re-read and retry at the caller's discretion.
type StaleStateError struct {
	Entity string
	ID     string
	Detail string
}

func (e *StaleStateError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("stale state on %s %s", e.Entity, e.ID)
	}
	return fmt.Sprintf("stale state on %s %s: %s", e.Entity, e.ID, e.Detail)
}

// PreconditionError reports a missing prerequisite for an operation, such as
// triggering automation before any primary expert exists.
type PreconditionError struct {
	WebsiteID string
	Missing   string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition failed for website %s: %s", e.WebsiteID, e.Missing)
}

// AuthorizationError reports a caller lacking the role or ownership an
// operation requires. Not retryable.
type AuthorizationError struct {
	CallerID string
	Reason   string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("caller %s not authorized: %s", e.CallerID, e.Reason)
}

// IngestionError reports an upstream scan failure or timeout. The website
// stays in Automation; retry is an explicit operator action.
type IngestionError struct {
	WebsiteID string
	Timeout   bool
	Err       error
}

func (e *IngestionError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("ingestion for website %s timed out: %v", e.WebsiteID, e.Err)
	}
	return fmt.Sprintf("ingestion for website %s failed: %v", e.WebsiteID, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }

// InvalidAssignmentError reports an expert panel that violates composition
// rules (primary outside panel, duplicates, capacity, re-assignment).
type InvalidAssignmentError struct {
	WebsiteID string
	Reason    string
}

func (e *InvalidAssignmentError) Error() string {
	return fmt.Sprintf("invalid assignment for website %s: %s", e.WebsiteID, e.Reason)
}

// NotFoundError reports a missing record.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// ValidationError reports malformed caller input at the service boundary.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsNotFound is a convenience for adapters that only care about presence.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsStale reports whether err is a lost compare-and-swap.
func IsStale(err error) bool {
	var st *StaleStateError
	return errors.As(err, &st)
}

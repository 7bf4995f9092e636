package model

import (
	"errors"
	"fmt"
)

// Business-rule failures surfaced by core operations. Handlers map these to
// HTTP codes; none of them abort the process.
var (
	// ErrUnauthenticated is returned when no valid principal could be resolved.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden is returned when the acting principal lacks permission.
	// At the API surface it is indistinguishable from ErrNotFound for
	// resource-scoped operations, so callers cannot probe for existence.
	ErrForbidden = errors.New("forbidden")
	// ErrCrossTenantAccess is returned when a query or key would cross a tenant boundary.
	ErrCrossTenantAccess = errors.New("cross-tenant access")
	// ErrCrossTenantUser is returned when assigning a user that does not belong to the resource's tenant.
	ErrCrossTenantUser = errors.New("cross-tenant user")
	// ErrNotFound is returned when the requested resource does not exist in the principal's tenant.
	ErrNotFound = errors.New("not found")
	// ErrCapacityExceeded is returned when an event's volunteer capacity is full.
	ErrCapacityExceeded = errors.New("capacity exceeded")
	// ErrAlreadyTerminal is returned when mutating an entity in a terminal state.
	ErrAlreadyTerminal = errors.New("already terminal")
	// ErrUnsupportedQuery is returned when a filter combination cannot be served complete.
	ErrUnsupportedQuery = errors.New("unsupported query")
	// ErrStoreUnavailable is returned after bounded retries against a failing document store.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// ValidationError captures a field level validation failure that callers can
// surface back to the actor.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// Validation builds a ValidationError for a field
func Validation(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// InvalidTransitionError reports a lifecycle transition not present in the
// entity's transition table.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s -> %s", e.From, e.To)
}

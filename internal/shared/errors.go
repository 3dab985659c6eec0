package shared

import "errors"

// Workflow error taxonomy. Services wrap these with stage/role detail so
// callers can render a corrective message instead of a generic failure.
var (
	// ErrValidation indicates malformed or missing required input.
	ErrValidation = errors.New("validation failed")
	// ErrUnauthorized indicates the actor's role does not match the role
	// required at the current stage.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidTransition indicates the action is not legal for the
	// requisition's current stage.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrInvalidState indicates the action is not legal for the current
	// RFQ/quotation/purchase-order state.
	ErrInvalidState = errors.New("invalid state")
	// ErrNotFound indicates the referenced record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateRFQ indicates the requisition already has an active RFQ.
	ErrDuplicateRFQ = errors.New("requisition already has an active RFQ")
	// ErrNoEligibleVendors indicates vendor resolution produced an empty set.
	ErrNoEligibleVendors = errors.New("no eligible vendors")
	// ErrConcurrentModification indicates a lost optimistic-locking race.
	ErrConcurrentModification = errors.New("record modified concurrently")
)

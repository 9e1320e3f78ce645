package shared

import "errors"

var (
	// ErrValidation indicates malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates the resource does not exist or is not visible to the principal.
	ErrNotFound = errors.New("not found")
	// ErrForbidden indicates the principal may see the resource but lacks rights for the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrDuplicate indicates a uniqueness invariant was violated.
	ErrDuplicate = errors.New("duplicate")
	// ErrConflict indicates the operation is blocked by the resource's current lifecycle state.
	ErrConflict = errors.New("conflict")
	// ErrInvalidTransition indicates a requested status change that is not in the transition table.
	ErrInvalidTransition = errors.New("invalid transition")
)

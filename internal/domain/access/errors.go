package access

import "errors"

// Error taxonomy for engine operations. Callers match with errors.Is and
// map to their transport's failure shapes. Decision.Allowed=false is a
// normal value and never surfaces through these.
var (
	// ErrValidation marks malformed input: missing reason, empty
	// resource or action, bad condition params.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a policy, rule, user, or assignment that is
	// absent or outside the caller's organization.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a uniqueness violation: duplicate policy name or
	// duplicate (policy, user) assignment.
	ErrConflict = errors.New("conflict")
	// ErrInvalidState marks an operation not permitted in the current
	// lifecycle state.
	ErrInvalidState = errors.New("invalid state")
	// ErrForbidden marks a caller lacking the privilege rank required
	// for a management operation.
	ErrForbidden = errors.New("forbidden")
)

package shared

import "errors"

// Error kinds for the access-control core. Repositories and evaluators wrap
// these so callers can branch with errors.Is without knowing the layer that
// produced the failure.
var (
	// ErrConfiguration means a backing store is unreachable and no cached
	// copy exists. Callers must deny privileged access and serve public
	// routes only.
	ErrConfiguration = errors.New("shared: configuration unavailable")

	// ErrNotFound indicates a directly referenced record does not exist.
	ErrNotFound = errors.New("shared: not found")

	// ErrValidation indicates malformed input, for example a rule predicate
	// referencing a context attribute that is absent.
	ErrValidation = errors.New("shared: validation failed")

	// ErrEvaluation indicates an unexpected failure inside a sub-evaluator.
	// The orchestrator converts it into a fail-closed denial.
	ErrEvaluation = errors.New("shared: evaluation failed")

	// ErrDuplicate indicates a uniqueness conflict on insert.
	ErrDuplicate = errors.New("shared: duplicate entry")
)

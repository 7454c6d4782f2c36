package solver

import "errors"

// Sentinel errors returned by the solver. Callers match them with errors.Is;
// the returned error always wraps one of these with context.
var (
	// ErrConfiguration means a prerequisite object is missing or unusable,
	// such as solving without a bound track database.
	ErrConfiguration = errors.New("solver: missing or invalid prerequisite")

	// ErrValue means a scalar parameter is out of its valid domain.
	ErrValue = errors.New("solver: invalid parameter value")

	// ErrRange means a region or group index is out of bounds.
	ErrRange = errors.New("solver: index out of range")

	// ErrNotReady means a queried quantity has not been computed yet.
	ErrNotReady = errors.New("solver: result not yet computed")
)

package types

import "errors"

// Sentinel errors for CaseGuard operations.
var (
	// ErrCaseNotFound covers both true absence and permission denial.
	// The service layer returns the same value for either outcome so case
	// existence never leaks through error shape.
	ErrCaseNotFound = errors.New("case not found")

	// ErrUnknownCapability indicates a permission rule references a
	// capability name absent from the registry. Configuration error,
	// distinct from a deny.
	ErrUnknownCapability = errors.New("unknown capability")

	// ErrEmptyTimeWindow indicates a time-window condition with neither
	// days nor hours set.
	ErrEmptyTimeWindow = errors.New("time window has no bound")

	// ErrTooManyConditionSets indicates a rule exceeds MaxConditionSets.
	ErrTooManyConditionSets = errors.New("too many condition sets")

	// ErrTooManyConditions indicates a set exceeds MaxConditionsPerSet.
	ErrTooManyConditions = errors.New("too many conditions in set")

	// ErrInvalidFilter indicates malformed or out-of-range search filter
	// input. Rejected before compilation; never reaches the storage layer.
	ErrInvalidFilter = errors.New("invalid search filter")

	// ErrTooManyFilterValues indicates an OR-matched filter list exceeds
	// MaxFilterValues.
	ErrTooManyFilterValues = errors.New("too many filter values")
)

package goals

import "errors"

// Sentinel errors the HTTP layer maps to distinct status codes:
// a missing resource is not the same failure as a violated business rule.
var (
	ErrGoalNotFound     = errors.New("goal not found")
	ErrInsufficientCash = errors.New("insufficient cash")
)

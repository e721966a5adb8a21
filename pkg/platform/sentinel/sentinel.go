package sentinel

import "errors"

// Storage facts. Stores return these, optionally wrapped with context, and
// services translate them into domain errors:
//   - ErrNotFound: no record matches the lookup (including conditional lookups
//     whose predicate did not hold, such as a used or expired code)
//   - ErrConflict: a uniqueness constraint rejected the write
//   - ErrAlreadyUsed: a one-time artifact has been consumed
//   - ErrExpired: a time-bounded artifact is past its expiry
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrAlreadyUsed = errors.New("already used")
	ErrExpired     = errors.New("expired")
)

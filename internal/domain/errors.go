package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors carry no infrastructure dependency.

var (
	// Input validation errors. Rejected at the boundary, never partially applied.
	ErrInvalidDay       = errors.New("invalid calendar day")
	ErrInvalidUser      = errors.New("user id is required")
	ErrInvalidWordCount = errors.New("word count must not be negative")
	ErrInvalidStreak    = errors.New("streak must not be negative")
	ErrInvalidGraceDay  = errors.New("grace can only cover a day before today")
	ErrFutureEntry      = errors.New("entry date is too far in the future")
	ErrInvalidTokens    = errors.New("grace tokens must be between 0 and 2")

	// Grace ledger outcomes.
	ErrAlreadyQualifying = errors.New("day already has a qualifying entry")
	ErrAlreadyGraced     = errors.New("day is already covered by grace")
	ErrGraceExhausted    = errors.New("no grace tokens remaining")
)

// IsValidation reports whether err is a boundary validation failure.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrInvalidDay, ErrInvalidUser, ErrInvalidWordCount, ErrInvalidStreak,
		ErrInvalidGraceDay, ErrFutureEntry, ErrInvalidTokens,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsIdempotentConflict reports whether the desired state already holds,
// so the caller should treat err as a successful no-op.
func IsIdempotentConflict(err error) bool {
	return errors.Is(err, ErrAlreadyGraced)
}

package shared

import "errors"

// Error kinds shared across domain packages. Domain errors wrap one of
// these so HTTP handlers can map them without knowing each package's
// sentinels.
var (
	// ErrValidation indicates malformed, missing or out-of-range input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates a referenced entity is absent.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock indicates a quantity constraint was violated.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInsufficientFunds indicates a balance constraint was violated.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrConflict indicates an identifier collision or concurrent-update race.
	ErrConflict = errors.New("conflict")
)

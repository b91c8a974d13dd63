package model

import "errors"

// Error taxonomy shared by the store and the betting service. Callers
// match with errors.Is; concrete failures wrap one of these.
var (
	// ErrValidation is returned for malformed input, before any state is read.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a contract, user, bet or ranking is absent.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned when an operation does not apply to the
	// entity's current state, e.g. betting on a closed contract.
	ErrInvalidState = errors.New("invalid state")

	// ErrAlreadyResolved is returned by a second resolution attempt.
	ErrAlreadyResolved = errors.New("contract already resolved")

	// ErrInsufficientFunds is returned when a stake exceeds the balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicate is returned when a unique field (contract title,
	// username) is already taken.
	ErrDuplicate = errors.New("already exists")

	// ErrStaleContract is returned when a contract's pools changed between
	// the quote and the write.
	ErrStaleContract = errors.New("contract changed concurrently")

	// ErrAlreadySettled is returned when a bet's payout was already applied.
	ErrAlreadySettled = errors.New("bet already settled")
)

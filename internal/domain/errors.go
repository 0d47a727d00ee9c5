package domain

import (
	"errors"
	"fmt"
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure, no infrastructure dependency. Callers match them
// with errors.Is; wrapped messages carry the detail.

var (
	// Lookup errors
	ErrNotFound        = errors.New("not found")
	ErrAccountNotFound = fmt.Errorf("account %w", ErrNotFound)
	ErrQuestNotFound   = fmt.Errorf("quest %w", ErrNotFound)
	ErrBadgeNotFound   = fmt.Errorf("badge %w", ErrNotFound)
	ErrStreakNotFound  = fmt.Errorf("streak %w", ErrNotFound)
	ErrFeatureNotFound = fmt.Errorf("feature %w", ErrNotFound)

	// Validation errors
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnknownCategory = errors.New("unknown category")

	// Business rule errors
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidState      = errors.New("invalid state transition")
	ErrAlreadyOwned      = errors.New("item already owned")
	ErrPremiumRequired   = errors.New("premium plan required")
	ErrRequirementNotMet = errors.New("requirement not met")

	// Persistence errors
	ErrDuplicate              = errors.New("duplicate record")
	ErrConcurrencyConflict    = errors.New("concurrent modification")
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
)

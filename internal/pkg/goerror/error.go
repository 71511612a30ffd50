// Package goerror defines the error taxonomy shared by the credential tiers.
//
// Tier clients return the sentinel errors below; the tiered store inspects
// them to decide whether to advance the fallback chain or surface the failure
// to the caller.
package goerror

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates the entity is absent in the tier that was asked.
	ErrNotFound = errors.New("entity not found")

	// ErrUnreachable indicates a connectivity failure talking to a tier.
	// The fallback chain treats it as "try the next tier".
	ErrUnreachable = errors.New("tier unreachable")

	// ErrQuotaExceeded indicates the remote backend refused the call due to
	// resource limits. Routed like ErrUnreachable, logged separately so
	// operators can tell throttling from outages.
	ErrQuotaExceeded = errors.New("tier quota exceeded")

	// ErrTimeout indicates the caller deadline expired before any tier
	// produced a result. Always surfaced, never converted.
	ErrTimeout = errors.New("deadline exceeded before any tier responded")

	// ErrInvalidOTP indicates a wrong code or an expired validity window.
	ErrInvalidOTP = errors.New("invalid or expired otp")

	// ErrStorageCorrupt indicates the local cache file is unreadable. The
	// cache schedules a rebuild from the next successful remote read instead
	// of crashing.
	ErrStorageCorrupt = errors.New("local cache corrupted")

	// ErrInvalidInput indicates a request that failed validation before
	// touching any tier.
	ErrInvalidInput = errors.New("invalid input")
)

// Fallthrough reports whether err should advance the fallback chain instead
// of terminating the request.
func Fallthrough(err error) bool {
	return errors.Is(err, ErrUnreachable) ||
		errors.Is(err, ErrQuotaExceeded) ||
		errors.Is(err, ErrStorageCorrupt)
}

// AllTiersFailed aggregates the per-tier failures of one request. It is the
// single error the caller sees when every tier, including the emergency
// channel, failed.
type AllTiersFailed struct {
	// Attempts records each tier failure in the order the chain tried them.
	Attempts []TierAttempt
}

// TierAttempt is one failed tier call.
type TierAttempt struct {
	Tier string
	Err  error
}

// Error implements the error interface.
func (e *AllTiersFailed) Error() string {
	if len(e.Attempts) == 0 {
		return "all credential tiers failed"
	}

	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Tier, a.Err))
	}

	return "all credential tiers failed: " + strings.Join(parts, "; ")
}

// Unwrap exposes the underlying tier errors to errors.Is/As.
func (e *AllTiersFailed) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		errs = append(errs, a.Err)
	}
	return errs
}

// InvalidInput wraps a validation failure as an ErrInvalidInput.
func InvalidInput(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidInput, err)
}

// Unreachable wraps err as an ErrUnreachable while keeping the cause visible.
func Unreachable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrUnreachable, err)
}

// QuotaExceeded wraps err as an ErrQuotaExceeded while keeping the cause visible.
func QuotaExceeded(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrQuotaExceeded, err)
}

// Corrupt wraps err as an ErrStorageCorrupt while keeping the cause visible.
func Corrupt(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrStorageCorrupt, err)
}

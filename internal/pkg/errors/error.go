package xerrors

import (
	"errors"
	"fmt"
)

// Common reusable application errors
var (
	ErrNotFound               = errors.New("resource not found")
	ErrValidation             = errors.New("invalid input")
	ErrInternal               = errors.New("internal server error")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrInvariantViolation     = errors.New("data invariant violated")
	ErrDispatchFailure        = errors.New("reminder dispatch failed")
)

// Intent rejection reasons. These map 1:1 to the corrective hints the bot
// sends back to the user.
var (
	ErrAmbiguousInput = errors.New("ambiguous input")
	ErrMissingAmount  = errors.New("no amount found")
	ErrUnknownPeriod  = errors.New("unrecognized billing period")
	ErrNLPUnavailable = errors.New("nlp service unavailable")
)

// Wrap adds context to an error (similar to fmt.Errorf("%w")).
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is allows checking whether an error is a specific sentinel error.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Unwrap extracts the underlying wrapped error.
func Unwrap(err error) error {
	return errors.Unwrap(err)
}

// MessageOrDefault returns err.Error() or a fallback message if err is nil.
func MessageOrDefault(err error, fallback string) string {
	if err != nil {
		return err.Error()
	}
	return fallback
}

// IsRejection reports whether err is an intent rejection reason that should
// be surfaced to the user rather than treated as an internal failure.
func IsRejection(err error) bool {
	return errors.Is(err, ErrAmbiguousInput) ||
		errors.Is(err, ErrMissingAmount) ||
		errors.Is(err, ErrUnknownPeriod) ||
		errors.Is(err, ErrNLPUnavailable) ||
		errors.Is(err, ErrValidation)
}

package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/morler/repo-translate/providers/contracts"
)

var (
	// ErrTransient marks a failure that was worth retrying.
	ErrTransient = errors.New("transient translation failure")
	// ErrProtocolViolation is returned when a response does not have one
	// entry per requested text.
	ErrProtocolViolation = errors.New("translation protocol violation")
	// ErrExhausted is returned once every attempt of a batch failed
	// transiently.
	ErrExhausted = errors.New("translation retries exhausted")
	// ErrFatal marks a provider failure that retrying cannot fix.
	ErrFatal = errors.New("fatal translation failure")
)

// ProtocolError reports a response cardinality mismatch.
type ProtocolError struct {
	Want int
	Got  int
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: requested %d texts, received %d", ErrProtocolViolation, e.Want, e.Got)
}

func (e *ProtocolError) Unwrap() error { return ErrProtocolViolation }

// ExhaustedError carries the last failure after the final attempt.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s after %d attempts: %v", ErrExhausted, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() []error { return []error{ErrExhausted, e.Last} }

// classify maps a provider error to ErrTransient or ErrFatal. A per-call
// deadline that expired while the caller's context is still live counts as
// transient. Cancellation of the caller's context is returned as is.
func classify(parent context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(err, contracts.ErrRetryable) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	return fmt.Errorf("%w: %w", ErrFatal, err)
}

package journey

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("journey: not found")
	ErrInvalidArgument = errors.New("journey: invalid argument")

	// ErrAlreadyEnrolled is returned when a lead already has an active or
	// paused enrollment in the same journey.
	ErrAlreadyEnrolled = errors.New("journey: lead already enrolled")

	// ErrInvalidTransition is returned for pause/resume on a lead journey
	// whose status does not permit it.
	ErrInvalidTransition = errors.New("journey: invalid status transition")
)

// ErrorKind classifies action execution failures for the dispatcher's
// retry decision.
type ErrorKind int

const (
	// KindTransient failures (timeouts, unavailable providers) are retried
	// with exponential backoff up to the attempt cap.
	KindTransient ErrorKind = iota
	// KindPermanent failures (invalid phone, rejected message) fail the
	// execution and the lead journey without retry.
	KindPermanent
	// KindConfiguration failures (missing executor, malformed config that
	// escaped validation) fail without retry; retrying cannot help.
	KindConfiguration
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindConfiguration:
		return "configuration"
	default:
		return "unknown"
	}
}

// kindError attaches an ErrorKind to a wrapped cause.
type kindError struct {
	kind ErrorKind
	err  error
}

func (e *kindError) Error() string { return fmt.Sprintf("%s: %v", e.kind, e.err) }
func (e *kindError) Unwrap() error { return e.err }

// Transient wraps err as a retryable failure.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: KindTransient, err: err}
}

// Permanent wraps err as a non-retryable failure.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: KindPermanent, err: err}
}

// Configuration wraps err as an authoring/setup failure.
func Configuration(err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: KindConfiguration, err: err}
}

// Classify returns the ErrorKind of err. Unclassified errors are treated
// as transient so that provider hiccups surfaced as plain errors still
// get retried.
func Classify(err error) ErrorKind {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return KindTransient
}

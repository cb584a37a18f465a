package extraction

import (
	"errors"
	"fmt"
)

// FailureKind classifies why an extraction attempt gave up.
type FailureKind string

const (
	// KindInvalidSchema means the backend answered but its payload failed
	// schema validation even after the single schema retry. Retrying the
	// message will not help.
	KindInvalidSchema FailureKind = "invalid_schema"
	// KindBackendUnavailable means the backend kept timing out, rate
	// limiting or erroring through the whole retry budget. The message is
	// worth retrying later.
	KindBackendUnavailable FailureKind = "backend_unavailable"
)

// Failure is the terminal error of one extract call.
type Failure struct {
	Kind FailureKind
	Err  error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("extraction failed (%s): %v", f.Kind, f.Err)
	}
	return fmt.Sprintf("extraction failed (%s)", f.Kind)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// IsRetryable reports whether the failure may succeed on a later attempt.
func (f *Failure) IsRetryable() bool {
	return f.Kind == KindBackendUnavailable
}

// Decision is the outcome of classifying a processing error.
type Decision int

const (
	Retry Decision = iota
	Terminal
)

// Classify decides whether an error is worth another attempt. Schema
// failures are terminal; everything else, including plain store and
// transport errors, is presumed transient.
func Classify(err error) Decision {
	var failure *Failure
	if errors.As(err, &failure) && !failure.IsRetryable() {
		return Terminal
	}
	return Retry
}

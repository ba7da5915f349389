package transcription

import (
	"errors"
	"time"
)

// FailureReason says why a transcription produced no text.
type FailureReason int

const (
	FailureNone      FailureReason = iota
	FailureModelLoad               // model weights could not be loaded
	FailureInference               // the model (or its audio loader) failed
	FailureInternal                // anything else, including panics
)

func (r FailureReason) String() string {
	switch r {
	case FailureNone:
		return "none"
	case FailureModelLoad:
		return "model_load"
	case FailureInference:
		return "inference"
	default:
		return "internal"
	}
}

// Result is the outcome of one pipeline request. Text is empty whenever
// Failure is not FailureNone; an empty Text with FailureNone means nothing was
// recognized.
type Result struct {
	RequestID string
	Text      string
	Failure   FailureReason
	Err       error

	// Degraded is set when preprocessing failed and the original audio was used.
	Degraded      bool
	AudioDuration time.Duration
	Elapsed       time.Duration
}

// Failed reports whether the request failed.
func (r Result) Failed() bool {
	return r.Failure != FailureNone
}

// Empty reports whether no text is available, for whatever reason.
func (r Result) Empty() bool {
	return r.Text == ""
}

// Error is an engine failure tagged with its reason.
type Error struct {
	Reason FailureReason
	Err    error
}

func (e *Error) Error() string {
	return e.Reason.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Cause lets github.com/pkg/errors walk through the tag.
func (e *Error) Cause() error { return e.Err }

// ReasonOf extracts the failure reason from an engine error.
func ReasonOf(err error) FailureReason {
	if err == nil {
		return FailureNone
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return FailureInternal
}

func fail(reason FailureReason, err error) error {
	return &Error{Reason: reason, Err: err}
}

package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedResult is returned when a completion event fails structural
	// validation. Such messages are logged and acknowledged, never requeued.
	ErrMalformedResult = errors.New("malformed job result")
)

// SubmissionError wraps a failed job submission to the backend: either a
// transport error or a non-2xx response.
type SubmissionError struct {
	StatusCode int
	Err        error
}

func (e *SubmissionError) Error() string {
	if e.Err != nil {
		return "job submission failed: " + e.Err.Error()
	}
	return fmt.Sprintf("job submission failed: backend returned status %d", e.StatusCode)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// DeliveryError wraps a failed upload to the destination channel. It is logged
// only: the delivery channel is the failing collaborator, so there is nowhere
// reliable to report it.
type DeliveryError struct {
	ChannelID string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to channel %s failed: %v", e.ChannelID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

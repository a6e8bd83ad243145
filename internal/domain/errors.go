package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidPrompt   = errors.New("invalid prompt")
	ErrInvalidImage    = errors.New("invalid image")
	ErrPromptBlocked   = errors.New("prompt blocked")
	ErrNoImage         = errors.New("no image generated")
	ErrProviderFailure = errors.New("provider failure")
)

// ErrorKind classifies a generation failure so callers can branch on it
// instead of matching message text.
type ErrorKind string

const (
	// KindBlocked means the provider rejected the prompt; retrying is pointless.
	KindBlocked ErrorKind = "blocked"
	// KindTransient means the last attempt failed with a retryable provider
	// error (network, timeout, 5xx/429).
	KindTransient ErrorKind = "transient"
	// KindPermanent covers provider errors that will not succeed on retry
	// (bad request, auth, unknown model).
	KindPermanent ErrorKind = "permanent"
	// KindExhausted means the provider answered without an image: text only,
	// a safety stop, or no candidates on every attempt.
	KindExhausted ErrorKind = "exhausted"
	// KindCanceled means the caller's context ended first.
	KindCanceled ErrorKind = "canceled"
)

// GenerationError is returned by the generation client for every failed call.
type GenerationError struct {
	Kind     ErrorKind
	Attempts int
	Details  []string
	Err      error
}

func (e *GenerationError) Error() string {
	// a provider error on the final attempt is reported as the provider worded it
	if e.Kind == KindTransient && len(e.Details) > 0 {
		return strings.Join(e.Details, " | ")
	}
	if len(e.Details) == 0 {
		return "No image was generated in the response"
	}
	return "No image was generated. " + strings.Join(e.Details, " | ")
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// ValidationError carries field-level problems found in an inbound request.
type ValidationError struct {
	Details []string
}

func (e *ValidationError) Error() string {
	if len(e.Details) == 0 {
		return "validation error"
	}
	return fmt.Sprintf("validation error: %s", strings.Join(e.Details, "; "))
}

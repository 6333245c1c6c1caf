package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
)

// Error kinds reported by model calls
const (
	KindTransport = "transport"
	KindRateLimit = "rate_limit"
	KindProtocol  = "protocol"
)

var (
	// ErrEmptyResponse is returned when a provider answers without content
	ErrEmptyResponse = errors.New("empty model response")

	// ErrNoProfiles is returned when no auth profile could serve a call
	ErrNoProfiles = errors.New("no usable auth profile")
)

// ModelError is a classified provider failure
type ModelError struct {
	Kind       string
	Provider   string
	StatusCode int
	Err        error
}

func (e *ModelError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s error (status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s error: %v", e.Provider, e.Kind, e.Err)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// ErrorKind returns the classification
func (e *ModelError) ErrorKind() string {
	return e.Kind
}

// Retryable reports whether another profile may succeed where this one failed
func (e *ModelError) Retryable() bool {
	return e.Kind == KindTransport || e.Kind == KindRateLimit
}

// Classify wraps err in a ModelError. Errors that are already classified
// are returned unchanged.
func Classify(provider string, err error) error {
	if err == nil {
		return nil
	}

	var me *ModelError
	if errors.As(err, &me) {
		return err
	}

	status := 0
	var oaErr *openai.Error
	var anErr *anthropic.Error
	switch {
	case errors.As(err, &oaErr):
		status = oaErr.StatusCode
	case errors.As(err, &anErr):
		status = anErr.StatusCode
	}

	return &ModelError{
		Kind:       classify(status, err),
		Provider:   provider,
		StatusCode: status,
		Err:        err,
	}
}

func classify(status int, err error) string {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status == http.StatusRequestTimeout || status >= 500:
		return KindTransport
	case status != 0:
		return KindProtocol
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTransport
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransport
	}
	return KindProtocol
}

// IsRetryableError checks if an error should be retried on another profile
func IsRetryableError(err error) bool {
	var me *ModelError
	if errors.As(err, &me) {
		return me.Retryable()
	}
	return false
}

package semantic

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
)

// ErrorKind splits service failures into the two classes callers care
// about: transient failures are worth retrying, permanent ones are not.
type ErrorKind string

const (
	KindTransient ErrorKind = "transient"
	KindPermanent ErrorKind = "permanent"
)

// ServiceError wraps every failure crossing the semantic boundary.
type ServiceError struct {
	Kind   ErrorKind
	Op     string
	Status int
	Err    error
}

func (e *ServiceError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("semantic %s: %s (status %d): %v", e.Op, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("semantic %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Classify wraps err as a ServiceError for op. Timeouts, rate limits and
// server errors are transient; other HTTP 4xx responses are permanent.
// A cancelled context is permanent: the run gave up, retrying is pointless.
func Classify(op string, err error) *ServiceError {
	if errors.Is(err, context.Canceled) {
		return &ServiceError{Kind: KindPermanent, Op: op, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ServiceError{Kind: KindTransient, Op: op, Err: err}
	}

	var apierr *openai.Error
	if errors.As(err, &apierr) {
		kind := KindPermanent
		switch {
		case apierr.StatusCode == 408 || apierr.StatusCode == 429:
			kind = KindTransient
		case apierr.StatusCode >= 500:
			kind = KindTransient
		}
		return &ServiceError{Kind: kind, Op: op, Status: apierr.StatusCode, Err: err}
	}

	// Anything else is a connection-level failure and worth another try.
	return &ServiceError{Kind: KindTransient, Op: op, Err: err}
}

// IsTransient reports whether err is a retryable service failure.
func IsTransient(err error) bool {
	var serr *ServiceError
	if errors.As(err, &serr) {
		return serr.Kind == KindTransient
	}
	return false
}

package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Class is the outcome of classifying a failure.
type Class int

const (
	// Transient failures (network, 5xx, timeouts) may succeed when retried.
	Transient Class = iota
	// Permanent failures (validation, auth, cancellation) are surfaced at once.
	Permanent
)

func (c Class) String() string {
	if c == Transient {
		return "transient"
	}
	return "permanent"
}

// Classifier decides whether a failure is worth retrying.
type Classifier func(err error) Class

// If adapts a boolean retry predicate into a Classifier.
func If(shouldRetry func(error) bool) Classifier {
	return func(err error) Class {
		if shouldRetry(err) {
			return Transient
		}
		return Permanent
	}
}

// StatusCoder is implemented by errors carrying an HTTP status code.
type StatusCoder interface {
	StatusCode() int
}

// StatusError is an HTTP-shaped failure returned by REST fetchers.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d: %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("http %d: %s", e.Code, e.Message)
}

// StatusCode implements StatusCoder.
func (e *StatusError) StatusCode() int { return e.Code }

// noRetryError marks an error as permanent regardless of its shape.
type noRetryError struct {
	err error
}

func (e *noRetryError) Error() string { return e.err.Error() }
func (e *noRetryError) Unwrap() error { return e.err }

// NoRetry marks err as permanent. The marker is stripped again before the
// error is returned to the caller of Do or Controller.Execute.
func NoRetry(err error) error {
	if err == nil {
		return nil
	}
	return &noRetryError{err: err}
}

// unwrapNoRetry strips a top-level NoRetry marker.
func unwrapNoRetry(err error) error {
	if nr, ok := err.(*noRetryError); ok {
		return nr.err
	}
	return err
}

// DefaultClassifier retries network-shaped failures, timeouts, HTTP
// 408/425/429/5xx and the gRPC codes Unavailable, DeadlineExceeded,
// ResourceExhausted, Aborted, Internal and Unknown. Cancellation, other 4xx
// responses, other gRPC codes and NoRetry-marked errors are permanent.
// Anything else (dial errors, resets, untyped failures) is assumed to be
// network-shaped and is retried.
func DefaultClassifier(err error) Class {
	var nr *noRetryError
	switch {
	case errors.As(err, &nr):
		return Permanent
	case errors.Is(err, context.Canceled), errors.Is(err, ErrCircuitOpen):
		return Permanent
	case errors.Is(err, context.DeadlineExceeded):
		return Transient
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		return classifyHTTP(sc.StatusCode())
	}
	if st, ok := status.FromError(err); ok {
		return classifyGRPC(st.Code())
	}
	return Transient
}

// APIClassifier wraps base so that authentication and authorization failures
// (HTTP 401/403, gRPC Unauthenticated/PermissionDenied) are never retried,
// whatever base says.
func APIClassifier(base Classifier) Classifier {
	if base == nil {
		base = DefaultClassifier
	}
	return func(err error) Class {
		if IsAuthError(err) {
			return Permanent
		}
		return base(err)
	}
}

// IsAuthError reports whether err is an authentication or authorization
// failure.
func IsAuthError(err error) bool {
	var sc StatusCoder
	if errors.As(err, &sc) {
		code := sc.StatusCode()
		return code == http.StatusUnauthorized || code == http.StatusForbidden
	}
	if st, ok := status.FromError(err); ok {
		return st.Code() == codes.Unauthenticated || st.Code() == codes.PermissionDenied
	}
	return false
}

func classifyHTTP(code int) Class {
	switch {
	case code == http.StatusRequestTimeout,
		code == http.StatusTooEarly,
		code == http.StatusTooManyRequests,
		code >= 500:
		return Transient
	default:
		return Permanent
	}
}

func classifyGRPC(code codes.Code) Class {
	switch code {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted,
		codes.Aborted, codes.Internal, codes.Unknown:
		return Transient
	default:
		return Permanent
	}
}

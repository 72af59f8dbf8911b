package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestDefaultClassifier(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"untyped network error", errors.New("connection reset"), Transient},
		{"deadline", context.DeadlineExceeded, Transient},
		{"canceled", context.Canceled, Permanent},
		{"http 500", &StatusError{Code: 500}, Transient},
		{"http 503 wrapped", fmt.Errorf("list users: %w", &StatusError{Code: 503}), Transient},
		{"http 429", &StatusError{Code: 429}, Transient},
		{"http 408", &StatusError{Code: 408}, Transient},
		{"http 400", &StatusError{Code: 400}, Permanent},
		{"http 422", &StatusError{Code: 422}, Permanent},
		{"http 401", &StatusError{Code: 401}, Permanent},
		{"grpc unavailable", status.Error(codes.Unavailable, "x"), Transient},
		{"grpc internal", status.Error(codes.Internal, "x"), Transient},
		{"grpc invalid argument", status.Error(codes.InvalidArgument, "x"), Permanent},
		{"grpc not found", status.Error(codes.NotFound, "x"), Permanent},
		{"no retry marker", NoRetry(&StatusError{Code: 503}), Permanent},
		{"circuit open", ErrCircuitOpen, Permanent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultClassifier(tt.err); got != tt.want {
				t.Errorf("DefaultClassifier(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestAPIClassifier_NeverRetriesAuth(t *testing.T) {
	alwaysRetry := If(func(error) bool { return true })
	c := APIClassifier(alwaysRetry)

	for _, err := range []error{
		&StatusError{Code: 401},
		&StatusError{Code: 403},
		status.Error(codes.Unauthenticated, "x"),
		status.Error(codes.PermissionDenied, "x"),
	} {
		if got := c(err); got != Permanent {
			t.Errorf("APIClassifier(%v) = %v, want permanent", err, got)
		}
	}
	if got := c(&StatusError{Code: 400}); got != Transient {
		t.Errorf("non-auth errors must defer to the base classifier, got %v", got)
	}
}

func TestStatusError_Message(t *testing.T) {
	if got := (&StatusError{Code: 404}).Error(); got != "http 404: Not Found" {
		t.Fatalf("got %q", got)
	}
	if got := (&StatusError{Code: 422, Message: "email taken"}).Error(); got != "http 422: email taken" {
		t.Fatalf("got %q", got)
	}
}

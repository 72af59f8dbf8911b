package pager

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrClosed is returned by mutators called after Close.
	ErrClosed = errors.New("pager: closed")
	// ErrMissingNamespace is returned for a Config without a namespace.
	ErrMissingNamespace = errors.New("pager: namespace is required")
)

// ErrInvalidNamespace returns an error for a namespace containing the key
// separator.
func ErrInvalidNamespace(ns string) error {
	return fmt.Errorf("pager: invalid namespace %q (must not contain %q)", ns, keySeparator)
}

// ErrInvalidPageSize returns an error for a non-positive page size.
func ErrInvalidPageSize(n int) error {
	return fmt.Errorf("pager: invalid page size: %d (must be >= 1)", n)
}

// ErrInvalidDuration returns an error for an out-of-range duration field.
func ErrInvalidDuration(field string, d time.Duration) error {
	return fmt.Errorf("pager: invalid %s: %v", field, d)
}

// ErrInvalidPrefetch returns an error for a negative prefetch count.
func ErrInvalidPrefetch(n int) error {
	return fmt.Errorf("pager: invalid prefetch pages: %d (must be >= 0)", n)
}

// ErrInvalidSortOrder returns an error for a sort order other than asc or desc.
func ErrInvalidSortOrder(o SortOrder) error {
	return fmt.Errorf("pager: invalid sort order %q, must be 'asc' or 'desc'", o)
}

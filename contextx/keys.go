// Package contextx carries per-fetch metadata through the context handed to
// user fetch functions: the pager request sequence, the cache namespace and
// the retry attempt number.
package contextx

// contextKey is an unexported type used as context key to avoid collisions
// with keys defined in other packages.
type contextKey int

const (
	requestSeqKey contextKey = iota
	namespaceKey
	attemptKey
)

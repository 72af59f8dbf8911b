package contextx

import "context"

// WithRequestSeq returns a derived context that carries the pager request
// sequence number of the fetch being performed.
func WithRequestSeq(ctx context.Context, seq uint64) context.Context {
	return context.WithValue(ctx, requestSeqKey, seq)
}

// RequestSeqFromContext extracts the request sequence stored in ctx.
// The boolean return value indicates whether one was present.
func RequestSeqFromContext(ctx context.Context) (uint64, bool) {
	seq, ok := ctx.Value(requestSeqKey).(uint64)
	return seq, ok
}

// WithNamespace returns a derived context that carries the cache namespace
// of the list being fetched.
func WithNamespace(ctx context.Context, ns string) context.Context {
	return context.WithValue(ctx, namespaceKey, ns)
}

// NamespaceFromContext extracts the namespace stored in ctx.
// It returns an empty string when no namespace is present.
func NamespaceFromContext(ctx context.Context) string {
	ns, _ := ctx.Value(namespaceKey).(string)
	return ns
}

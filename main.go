// Package gorawrpager wires the cache, retry and pager packages into a
// session: one bounded page cache shared by every list of a signed-in user,
// plus the logger, metrics registry, tracer and optional Redis tier that the
// pagers report to.
//
//	sess, err := gorawrpager.NewSession(gorawrpager.DefaultOptions()...)
//	users, err := gorawrpager.NewPager(ctx, sess, fetchUsers, pager.DefaultConfig("users"))
//	_ = users.Load()
package gorawrpager

import (
	"context"

	"github.com/Keksclan/goRawrPager/pager"
	"github.com/Keksclan/goRawrPager/retry"
)

// NewPager creates a pager backed by the session cache. A zero
// cfg.Retry.MaxAttempts picks the session retry policy, and the session
// logger, metrics, tracer and Redis tier are attached.
func NewPager[T any](ctx context.Context, s *Session, fetch pager.FetchFunc[T], cfg pager.Config) (*pager.Pager[T], error) {
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = s.retry
	}
	return pager.New(ctx, fetch, s.store, cfg, s.pagerOptions()...)
}

// NewController wraps fn in a retry controller using the session policy,
// for one-off operations such as mutations that are not list fetches.
func NewController[A, R any](s *Session, fn retry.Func[A, R]) *retry.Controller[A, R] {
	return retry.New(fn, s.retry)
}

package pager

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Keksclan/goRawrPager/cache"
	"github.com/Keksclan/goRawrPager/metrics"
	"github.com/Keksclan/goRawrPager/retry"
	"github.com/Keksclan/goRawrPager/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type user struct {
	ID int
}

// backend is a fake list endpoint that records every call.
type backend struct {
	mu    sync.Mutex
	total int
	calls []Descriptor
	at    []time.Time
	// block, when set, runs before the page is produced.
	block func(ctx context.Context, d Descriptor) error
	// fail, when set, may fail the n-th call (1-based).
	fail func(n int, d Descriptor) error
}

func (b *backend) fetch(ctx context.Context, d Descriptor) (Page[user], error) {
	b.mu.Lock()
	b.calls = append(b.calls, d)
	b.at = append(b.at, time.Now())
	n := len(b.calls)
	block, fail, total := b.block, b.fail, b.total
	b.mu.Unlock()

	if block != nil {
		if err := block(ctx, d); err != nil {
			return Page[user]{}, err
		}
	}
	if fail != nil {
		if err := fail(n, d); err != nil {
			return Page[user]{}, err
		}
	}
	var data []user
	for i := (d.Page - 1) * d.PageSize; i < min(d.Page*d.PageSize, total); i++ {
		data = append(data, user{ID: i + 1})
	}
	return Page[user]{Data: data, TotalItems: total}, nil
}

func (b *backend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

func (b *backend) lastCall() Descriptor {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[len(b.calls)-1]
}

func fastRetry(attempts int) retry.Config {
	return retry.Config{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
	}
}

func newTestPager(t *testing.T, b *backend, cfg Config, opts ...Option) (*Pager[user], *cache.Store) {
	t.Helper()
	store, err := cache.New(cache.DefaultConfig())
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "users"
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = fastRetry(3)
	}
	p, err := New[user](t.Context(), b.fetch, store, cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p, store
}

func waitIdle(t *testing.T, p *Pager[user]) {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	if err := p.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestPager_LoadThenServeFromCache(t *testing.T) {
	b := &backend{total: 45}
	p, _ := newTestPager(t, b, Config{})

	if err := p.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !p.State().IsLoading {
		t.Fatal("expected IsLoading while the first fetch is pending")
	}
	waitIdle(t, p)

	s := p.State()
	if s.IsLoading || s.IsError {
		t.Fatalf("unexpected state: %+v", s)
	}
	if len(s.Data) != 20 || s.Data[0].ID != 1 {
		t.Fatalf("unexpected page data: %v", s.Data)
	}
	if s.TotalItems != 45 || s.TotalPages != 3 || s.CurrentPage != 1 {
		t.Fatalf("unexpected totals: items=%d pages=%d current=%d", s.TotalItems, s.TotalPages, s.CurrentPage)
	}

	// A second load of the same descriptor is answered synchronously.
	if err := p.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s := p.State(); s.IsLoading || len(s.Data) != 20 {
		t.Fatalf("expected synchronous cache hit, got %+v", s)
	}
	if n := b.callCount(); n != 1 {
		t.Fatalf("expected 1 fetch, got %d", n)
	}
}

func TestPager_SetFiltersInvalidatesAndResets(t *testing.T) {
	b := &backend{total: 200}
	p, store := newTestPager(t, b, Config{PageSize: 50})
	store.Set("agents:page:0", "keep", time.Minute)

	_ = p.Load()
	waitIdle(t, p)
	_ = p.GoToPage(3)
	waitIdle(t, p)
	if got := p.State().CurrentPage; got != 3 {
		t.Fatalf("expected page 3, got %d", got)
	}
	before := b.callCount()

	if err := p.SetFilters(map[string]any{"status": "active"}); err != nil {
		t.Fatalf("SetFilters: %v", err)
	}
	if got := p.State().CurrentPage; got != 1 {
		t.Fatalf("expected reset to page 1, got %d", got)
	}
	waitIdle(t, p)

	if n := b.callCount() - before; n != 1 {
		t.Fatalf("expected exactly 1 new fetch, got %d", n)
	}
	last := b.lastCall()
	if last.Filters["status"] != "active" || last.Page != 1 || last.PageSize != 50 {
		t.Fatalf("unexpected descriptor: %+v", last)
	}
	for _, k := range store.Keys() {
		if strings.HasPrefix(k, "users:") && !strings.Contains(k, "status") {
			t.Fatalf("stale page survived invalidation: %q", k)
		}
	}
	if !store.Has("agents:page:0") {
		t.Fatal("invalidation leaked into another namespace")
	}
}

func TestPager_SearchIsDebounced(t *testing.T) {
	b := &backend{total: 10}
	p, _ := newTestPager(t, b, Config{SearchDebounce: 300 * time.Millisecond})

	var last time.Time
	for i := 1; i <= len("User 1"); i++ {
		last = time.Now()
		if err := p.SetSearch("User 1"[:i]); err != nil {
			t.Fatalf("SetSearch: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if n := b.callCount(); n != 0 {
		t.Fatalf("expected no fetch while typing, got %d", n)
	}
	waitIdle(t, p)

	if n := b.callCount(); n != 1 {
		t.Fatalf("expected 1 fetch, got %d", n)
	}
	if got := b.lastCall().Search; got != "User 1" {
		t.Fatalf("expected search %q, got %q", "User 1", got)
	}
	b.mu.Lock()
	waited := b.at[0].Sub(last)
	b.mu.Unlock()
	if waited < 300*time.Millisecond {
		t.Fatalf("fetch fired %v after the last keystroke, want >= 300ms", waited)
	}
}

func TestPager_DiscardsStaleResponse(t *testing.T) {
	release := make(chan struct{})
	b := &backend{
		total: 100,
		block: func(ctx context.Context, d Descriptor) error {
			if d.Page != 1 {
				return nil
			}
			select {
			case <-release:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
	core, logs := observer.New(zap.DebugLevel)
	p, store := newTestPager(t, b, Config{}, WithLogger(zap.New(core)))

	_ = p.Load()      // page 1, held back
	_ = p.GoToPage(2) // issued later, answered first
	deadline := time.Now().Add(5 * time.Second)
	for p.State().IsLoading && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	close(release)
	waitIdle(t, p)

	s := p.State()
	if s.CurrentPage != 2 || len(s.Data) == 0 || s.Data[0].ID != 21 {
		t.Fatalf("stale response overwrote state: page=%d data=%v", s.CurrentPage, s.Data)
	}
	if store.Has(Key("users", Descriptor{Page: 1, PageSize: 20})) {
		t.Fatal("stale response was cached")
	}
	if n := logs.FilterMessage("discarding stale response").Len(); n != 1 {
		t.Fatalf("expected 1 stale discard log, got %d", n)
	}
}

func TestPager_ConcurrentLoadsShareOneFetch(t *testing.T) {
	release := make(chan struct{})
	b := &backend{
		total: 10,
		block: func(ctx context.Context, _ Descriptor) error {
			select {
			case <-release:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
	p, _ := newTestPager(t, b, Config{})

	_ = p.Load()
	_ = p.Load()
	time.Sleep(20 * time.Millisecond)
	close(release)
	waitIdle(t, p)

	if n := b.callCount(); n != 1 {
		t.Fatalf("expected 1 fetch, got %d", n)
	}
	if s := p.State(); len(s.Data) != 10 || s.IsLoading {
		t.Fatalf("unexpected state: %+v", s)
	}
}

func TestPager_PermanentErrorKeepsData(t *testing.T) {
	var failing bool
	var mu sync.Mutex
	b := &backend{
		total: 30,
		fail: func(int, Descriptor) error {
			mu.Lock()
			defer mu.Unlock()
			if failing {
				return &retry.StatusError{Code: http.StatusBadRequest}
			}
			return nil
		},
	}
	p, store := newTestPager(t, b, Config{})

	_ = p.Load()
	waitIdle(t, p)
	mu.Lock()
	failing = true
	mu.Unlock()

	_ = p.Refresh()
	waitIdle(t, p)

	s := p.State()
	if !s.IsError || s.IsLoading {
		t.Fatalf("expected terminal error state, got %+v", s)
	}
	var se *retry.StatusError
	if !errors.As(s.Err, &se) || se.Code != http.StatusBadRequest {
		t.Fatalf("expected original 400 error, got %v", s.Err)
	}
	if len(s.Data) != 20 {
		t.Fatalf("previous data should be kept on error, got %d items", len(s.Data))
	}
	if s.Attempt != 1 {
		t.Fatalf("permanent failure should use one attempt, got %d", s.Attempt)
	}
	if n := b.callCount(); n != 2 {
		t.Fatalf("expected 2 fetches, got %d", n)
	}
	if len(store.Keys()) != 0 {
		t.Fatalf("failed fetch must not be cached: %v", store.Keys())
	}

	mu.Lock()
	failing = false
	mu.Unlock()
	_ = p.Retry()
	waitIdle(t, p)
	if s := p.State(); s.IsError || s.Attempt != 0 {
		t.Fatalf("expected recovery after Retry, got %+v", s)
	}
}

func TestPager_TransientFailureReportsRetrying(t *testing.T) {
	b := &backend{
		total: 5,
		fail: func(n int, _ Descriptor) error {
			if n == 1 {
				return &retry.StatusError{Code: http.StatusServiceUnavailable}
			}
			return nil
		},
	}
	p, _ := newTestPager(t, b, Config{})

	var mu sync.Mutex
	var states []State[user]
	p.OnChange(func(s State[user]) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	_ = p.Load()
	waitIdle(t, p)

	if n := b.callCount(); n != 2 {
		t.Fatalf("expected 2 fetches, got %d", n)
	}
	mu.Lock()
	defer mu.Unlock()
	var sawRetry bool
	for _, s := range states {
		if s.IsRetrying {
			sawRetry = true
			if s.Attempt != 1 || s.RemainingAttempts != 2 {
				t.Fatalf("unexpected retry progress: attempt=%d remaining=%d", s.Attempt, s.RemainingAttempts)
			}
		}
	}
	if !sawRetry {
		t.Fatal("expected a retrying snapshot")
	}
	final := states[len(states)-1]
	if final.IsRetrying || final.IsError || len(final.Data) != 5 {
		t.Fatalf("unexpected final state: %+v", final)
	}
}

func TestPager_OnChangeEndsOnLatestState(t *testing.T) {
	b := &backend{total: 40}
	p, store := newTestPager(t, b, Config{PageSize: 20})

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	var mu sync.Mutex
	var pages []int
	p.OnChange(func(s State[user]) {
		if !s.IsLoading && s.CurrentPage == 1 {
			// hold the delivery of the fetched page 1
			once.Do(func() {
				close(entered)
				<-release
			})
		}
		mu.Lock()
		pages = append(pages, s.CurrentPage)
		mu.Unlock()
	})

	_ = p.Load()
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("page 1 was never delivered")
	}

	next := p.State().Descriptor
	next.Page = 2
	store.Set(Key("users", next), Page[user]{Data: []user{{ID: 21}}, TotalItems: 40}, time.Minute)
	if err := p.NextPage(); err != nil {
		t.Fatalf("NextPage: %v", err)
	}
	close(release)
	waitIdle(t, p)

	if got := p.State().CurrentPage; got != 2 {
		t.Fatalf("expected page 2, got %d", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if last := pages[len(pages)-1]; last != 2 {
		t.Fatalf("last delivered page %d, want 2 (sequence %v)", last, pages)
	}
}

func TestPager_ExhaustedRetries(t *testing.T) {
	b := &backend{
		fail: func(int, Descriptor) error {
			return &retry.StatusError{Code: http.StatusBadGateway}
		},
	}
	p, _ := newTestPager(t, b, Config{})

	_ = p.Load()
	waitIdle(t, p)

	s := p.State()
	if !s.IsError || s.Attempt != 3 || s.RemainingAttempts != 0 {
		t.Fatalf("expected exhausted state, got %+v", s)
	}
	if n := b.callCount(); n != 3 {
		t.Fatalf("expected 3 fetches, got %d", n)
	}
}

func TestPager_PrefetchesFollowingPages(t *testing.T) {
	b := &backend{total: 100}
	p, store := newTestPager(t, b, Config{PrefetchPages: 2})

	_ = p.Load()
	waitIdle(t, p)

	if n := b.callCount(); n != 3 {
		t.Fatalf("expected page 1 plus 2 prefetches, got %d fetches", n)
	}
	for _, page := range []int{2, 3} {
		if !store.Has(Key("users", Descriptor{Page: page, PageSize: 20})) {
			t.Fatalf("page %d was not prefetched", page)
		}
	}
	if got := p.State().CurrentPage; got != 1 {
		t.Fatalf("prefetch moved the current page to %d", got)
	}

	_ = p.NextPage()
	s := p.State()
	if s.IsLoading || s.CurrentPage != 2 || s.Data[0].ID != 21 {
		t.Fatalf("expected page 2 from cache, got %+v", s)
	}
	waitIdle(t, p)
	if n := b.callCount(); n != 4 {
		t.Fatalf("expected one more prefetch (page 4), got %d fetches", n)
	}
}

func TestPager_NextPreviousBounds(t *testing.T) {
	b := &backend{total: 40}
	p, _ := newTestPager(t, b, Config{})

	_ = p.Load()
	waitIdle(t, p)

	_ = p.PreviousPage()
	if got := p.State().CurrentPage; got != 1 {
		t.Fatalf("PreviousPage on page 1 moved to %d", got)
	}
	_ = p.NextPage()
	waitIdle(t, p)
	_ = p.NextPage()
	waitIdle(t, p)
	if got := p.State().CurrentPage; got != 2 {
		t.Fatalf("expected to stop at last page 2, got %d", got)
	}
	_ = p.GoToPage(99)
	waitIdle(t, p)
	if got := p.State().CurrentPage; got != 2 {
		t.Fatalf("GoToPage should clamp to 2, got %d", got)
	}
	if n := b.callCount(); n != 2 {
		t.Fatalf("expected 2 fetches, got %d", n)
	}
}

func TestPager_SetPageSizeAndSort(t *testing.T) {
	b := &backend{total: 100}
	p, _ := newTestPager(t, b, Config{})

	_ = p.Load()
	waitIdle(t, p)

	if err := p.SetPageSize(0); err == nil {
		t.Fatal("expected error for page size 0")
	}
	_ = p.SetPageSize(25)
	waitIdle(t, p)
	if s := p.State(); s.TotalPages != 4 || len(s.Data) != 25 {
		t.Fatalf("unexpected state after SetPageSize: pages=%d items=%d", s.TotalPages, len(s.Data))
	}

	if err := p.SetSort("name", "sideways"); err == nil {
		t.Fatal("expected error for invalid sort order")
	}
	_ = p.SetSort("name", Desc)
	waitIdle(t, p)
	if last := b.lastCall(); last.SortBy != "name" || last.SortOrder != Desc || last.PageSize != 25 {
		t.Fatalf("unexpected descriptor: %+v", last)
	}
}

func TestPager_CloseCancelsInFlight(t *testing.T) {
	b := &backend{
		block: func(ctx context.Context, _ Descriptor) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	p, _ := newTestPager(t, b, Config{SearchDebounce: time.Hour})

	_ = p.Load()
	_ = p.SetSearch("pending")
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	waitIdle(t, p)

	if s := p.State(); s.IsError || s.IsLoading {
		t.Fatalf("cancelled fetch leaked into state: %+v", s)
	}
	if err := p.Load(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := p.SetSearch("x"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestPager_MetricsAndTracing(t *testing.T) {
	reg := prometheus.NewRegistry()
	col, err := metrics.New(reg)
	if err != nil {
		t.Fatalf("metrics.New: %v", err)
	}
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	b := &backend{
		total: 3,
		fail: func(n int, _ Descriptor) error {
			if n == 1 {
				return &retry.StatusError{Code: http.StatusTooManyRequests}
			}
			return nil
		},
	}
	p, _ := newTestPager(t, b, Config{},
		WithMetrics(col),
		WithTracing(&tracing.Config{TracerProvider: tp}),
	)

	_ = p.Load()
	waitIdle(t, p)

	if n, err := testutil.GatherAndCount(reg, "rawrpager_fetch_requests_total"); err != nil || n != 1 {
		t.Fatalf("expected 1 fetch series, got %d (%v)", n, err)
	}
	if n, err := testutil.GatherAndCount(reg, "rawrpager_fetch_retries_total"); err != nil || n != 1 {
		t.Fatalf("expected 1 retry series, got %d (%v)", n, err)
	}

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	var failed int
	for _, ev := range spans[0].Events() {
		if ev.Name == "attempt.failed" {
			failed++
		}
	}
	if failed != 1 {
		t.Fatalf("expected 1 failed attempt event, got %d", failed)
	}
}

func TestNew_Validation(t *testing.T) {
	store, _ := cache.New(cache.DefaultConfig())
	fetch := (&backend{}).fetch

	if _, err := New[user](t.Context(), fetch, store, Config{}); !errors.Is(err, ErrMissingNamespace) {
		t.Fatalf("expected ErrMissingNamespace, got %v", err)
	}
	if _, err := New[user](t.Context(), fetch, store, Config{Namespace: "x", PageSize: -1}); err == nil {
		t.Fatal("expected error for negative page size")
	}
	if _, err := New[user](t.Context(), nil, store, Config{Namespace: "x"}); err == nil {
		t.Fatal("expected error for nil fetch")
	}
	if _, err := New[user](t.Context(), fetch, nil, Config{Namespace: "x"}); err == nil {
		t.Fatal("expected error for nil cache")
	}
}

// Package pager keeps the state of one paginated list in sync with a
// backend. Pages are served from a cache.Cache when possible; misses are
// fetched through a retry policy and written back. Every load carries a
// request sequence number and only the latest one may touch state or cache.
package pager

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strconv"
	"sync"
	"time"

	"github.com/Keksclan/goRawrPager/cache"
	"github.com/Keksclan/goRawrPager/contextx"
	"github.com/Keksclan/goRawrPager/metrics"
	"github.com/Keksclan/goRawrPager/retry"
	"github.com/Keksclan/goRawrPager/tracing"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// FetchFunc loads one page from the backend.
type FetchFunc[T any] func(ctx context.Context, d Descriptor) (Page[T], error)

// Page is one fetched slice of the list plus the total item count.
type Page[T any] struct {
	Data       []T `msgpack:"data"`
	TotalItems int `msgpack:"total_items"`
}

// State is a snapshot of a Pager. Data is shared with the cache and must
// not be modified.
type State[T any] struct {
	Data        []T
	TotalItems  int
	CurrentPage int
	TotalPages  int

	IsLoading bool
	IsError   bool
	Err       error

	// Retry progress of the request for the current descriptor.
	IsRetrying        bool
	Attempt           int
	RemainingAttempts int

	Descriptor Descriptor
}

type options struct {
	log     *zap.Logger
	metrics *metrics.Collector
	tracing *tracing.Config
	l2      *cache.L2
}

// Option configures a Pager.
type Option func(*options)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics records fetch and retry activity on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) { o.metrics = c }
}

// WithTracing wraps every fetch in a span.
func WithTracing(cfg *tracing.Config) Option {
	return func(o *options) { o.tracing = cfg }
}

// WithL2 adds a shared tier consulted after a local miss. Pages are stored
// msgpack-encoded, so T must be encodable.
func WithL2(l2 *cache.L2) Option {
	return func(o *options) { o.l2 = l2 }
}

// Pager orchestrates loading of one list. All methods are safe for
// concurrent use. Mutators return immediately: a cache hit is applied before
// they return, a miss is fetched in the background. Use Wait to block until
// the pager is idle and OnChange to observe every state change.
type Pager[T any] struct {
	fetch FetchFunc[T]
	store cache.Cache
	cfg   Config
	opts  options
	log   *zap.Logger

	flight singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	desc     Descriptor
	page     Page[T]
	loading  bool
	err      error
	retrying bool
	attempt  int
	seq      uint64 // latest issued load
	gen      uint64 // bumped on every invalidation
	searchID uint64 // latest SetSearch call
	timer    *time.Timer
	pending  int
	idle     chan struct{}
	onChange func(State[T])
	// delivering is set while a goroutine is calling onChange; queued
	// counts the notifications it still has to cover.
	delivering bool
	queued     int
	closed     bool
}

// result is what a shared fetch hands to every waiting caller.
type result[T any] struct {
	page     Page[T]
	attempts int
	fromL2   bool
}

// New creates a Pager for fetch, caching pages in store. It issues no
// request; call Load to fetch the first page. Cancelling ctx has the same
// effect on in-flight work as Close.
func New[T any](ctx context.Context, fetch FetchFunc[T], store cache.Cache, cfg Config, opts ...Option) (*Pager[T], error) {
	if fetch == nil {
		return nil, errors.New("pager: fetch function is required")
	}
	if store == nil {
		return nil, errors.New("pager: cache is required")
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}

	idle := make(chan struct{})
	close(idle)

	p := &Pager[T]{
		fetch: fetch,
		store: store,
		cfg:   cfg,
		opts:  o,
		log:   o.log.With(zap.String("namespace", cfg.Namespace)),
		desc: Descriptor{
			Page:      1,
			PageSize:  cfg.PageSize,
			Filters:   maps.Clone(cfg.Filters),
			SortBy:    cfg.SortBy,
			SortOrder: cfg.SortOrder,
		},
		idle: idle,
	}
	if p.cfg.Retry.Logger == nil {
		p.cfg.Retry.Logger = p.log
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	return p, nil
}

// OnChange registers fn to receive a snapshot after every state change,
// replacing any previous callback. Calls to fn never overlap. Changes made
// while fn runs are coalesced into one more call with the latest state, so
// the last snapshot delivered is always the current one.
func (p *Pager[T]) OnChange(fn func(State[T])) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChange = fn
}

// State returns the current snapshot.
func (p *Pager[T]) State() State[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

// Load shows the current descriptor, from cache when possible.
func (p *Pager[T]) Load() error {
	return p.update(nil, false, false)
}

// Retry re-issues the request for the current descriptor, typically after
// a terminal failure.
func (p *Pager[T]) Retry() error {
	return p.update(nil, false, false)
}

// Refresh drops every cached page of the namespace and reloads the
// current page.
func (p *Pager[T]) Refresh() error {
	return p.update(nil, true, false)
}

// SetFilters replaces the filter set, invalidates the namespace and goes
// back to page 1.
func (p *Pager[T]) SetFilters(filters map[string]any) error {
	filters = maps.Clone(filters)
	return p.update(func(d *Descriptor) bool {
		d.Filters = filters
		return true
	}, true, true)
}

// SetPageSize changes the page size, invalidates the namespace and goes
// back to page 1.
func (p *Pager[T]) SetPageSize(n int) error {
	if n < 1 {
		return ErrInvalidPageSize(n)
	}
	return p.update(func(d *Descriptor) bool {
		d.PageSize = n
		return true
	}, true, true)
}

// SetSort changes the sort, invalidates the namespace and goes back to
// page 1.
func (p *Pager[T]) SetSort(by string, order SortOrder) error {
	switch order {
	case "", Asc, Desc:
	default:
		return ErrInvalidSortOrder(order)
	}
	return p.update(func(d *Descriptor) bool {
		d.SortBy = by
		d.SortOrder = order
		return true
	}, true, true)
}

// GoToPage shows page n, clamped to [1, TotalPages] once the total is known.
func (p *Pager[T]) GoToPage(n int) error {
	return p.update(func(d *Descriptor) bool {
		if last := totalPages(p.page.TotalItems, d.PageSize); last > 0 {
			n = min(n, last)
		}
		d.Page = max(n, 1)
		return true
	}, false, false)
}

// NextPage advances one page. It does nothing on the last page.
func (p *Pager[T]) NextPage() error {
	return p.update(func(d *Descriptor) bool {
		if d.Page >= totalPages(p.page.TotalItems, d.PageSize) {
			return false
		}
		d.Page++
		return true
	}, false, false)
}

// PreviousPage goes back one page. It does nothing on page 1.
func (p *Pager[T]) PreviousPage() error {
	return p.update(func(d *Descriptor) bool {
		if d.Page <= 1 {
			return false
		}
		d.Page--
		return true
	}, false, false)
}

// SetSearch sets the search text once no other SetSearch call has arrived
// for Config.SearchDebounce. The change then invalidates the namespace and
// goes back to page 1.
func (p *Pager[T]) SetSearch(q string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.stopTimerLocked()
	p.searchID++
	id := p.searchID
	p.beginLocked()
	p.timer = time.AfterFunc(p.cfg.SearchDebounce, func() { p.applySearch(id, q) })
	return nil
}

// Wait blocks until no debounce timer, fetch or prefetch is pending, or
// ctx is done.
func (p *Pager[T]) Wait(ctx context.Context) error {
	p.mu.Lock()
	idle := p.idle
	p.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the debounce timer and cancels in-flight fetches and back-off
// waits. Their results are dropped. Mutators return ErrClosed afterwards.
func (p *Pager[T]) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.loading = false
	p.stopTimerLocked()
	p.mu.Unlock()
	p.cancel()
	return nil
}

func (p *Pager[T]) applySearch(id uint64, q string) {
	defer p.end()
	p.mu.Lock()
	if p.closed || id != p.searchID {
		p.mu.Unlock()
		return
	}
	p.timer = nil
	if q == p.desc.Search {
		p.mu.Unlock()
		return
	}
	p.desc.Search = q
	p.desc.Page = 1
	p.invalidateLocked()
	p.loadLocked(true)
	p.mu.Unlock()
	p.notify()
}

// update applies change to the descriptor and loads the result. A change
// returning false leaves the pager untouched.
func (p *Pager[T]) update(change func(*Descriptor) bool, invalidate, firstPage bool) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if change != nil && !change(&p.desc) {
		p.mu.Unlock()
		return nil
	}
	if firstPage {
		p.desc.Page = 1
	}
	if invalidate {
		p.invalidateLocked()
	}
	p.loadLocked(invalidate)
	p.mu.Unlock()
	p.notify()
	return nil
}

func (p *Pager[T]) invalidateLocked() {
	p.gen++
	n := p.store.InvalidatePrefix(Prefix(p.cfg.Namespace))
	p.log.Debug("invalidated cached pages", zap.Int("entries", n))
}

// loadLocked issues a load for the current descriptor. A cached page is
// applied immediately, otherwise a fetch is started. purgeL2 also drops the
// namespace from the shared tier before fetching.
func (p *Pager[T]) loadLocked(purgeL2 bool) {
	p.seq++
	d := p.desc.Clone()
	key := Key(p.cfg.Namespace, d)

	if v, ok := p.store.Get(key); ok {
		if pg, ok := v.(Page[T]); ok {
			p.applyLocked(pg)
			p.prefetchLocked(d, pg.TotalItems)
			return
		}
	}

	p.loading = true
	p.beginLocked()
	go p.run(p.seq, p.gen, d, key, purgeL2)
}

func (p *Pager[T]) run(seq, gen uint64, d Descriptor, key string, purgeL2 bool) {
	defer p.end()
	start := time.Now()

	ctx := contextx.WithRequestSeq(contextx.WithNamespace(p.ctx, p.cfg.Namespace), seq)
	ctx, span := tracing.StartFetch(ctx, p.opts.tracing, tracing.Fetch{
		Namespace: p.cfg.Namespace,
		Key:       key,
		Page:      d.Page,
		PageSize:  d.PageSize,
		Seq:       seq,
	})

	if purgeL2 && p.opts.l2 != nil {
		p.opts.l2.InvalidatePrefix(ctx, Prefix(p.cfg.Namespace))
	}

	rc := p.cfg.Retry
	user := rc.OnRetry
	rc.OnRetry = func(ev retry.Event) {
		if user != nil {
			user(ev)
		}
		p.retried(key, gen, ev)
	}
	res, err := p.fetchShared(ctx, gen, key, d, rc)

	p.mu.Lock()
	closed := p.closed
	stale := closed || seq != p.seq
	switch {
	case stale:
	case err != nil:
		p.loading = false
		p.retrying = false
		p.attempt = res.attempts
		p.err = err
	default:
		p.store.Set(key, res.page, p.cfg.TTL)
		p.applyLocked(res.page)
		p.prefetchLocked(d, res.page.TotalItems)
	}
	p.mu.Unlock()
	if !stale {
		p.notify()
	}

	outcome := metrics.OutcomeSuccess
	switch {
	case closed || errors.Is(err, context.Canceled):
		outcome = metrics.OutcomeCanceled
	case stale:
		outcome = metrics.OutcomeStale
		p.log.Debug("discarding stale response",
			zap.Uint64("seq", seq),
			zap.String("key", key),
		)
	case err != nil:
		outcome = metrics.OutcomeError
		p.log.Warn("list fetch failed",
			zap.String("key", key),
			zap.Int("attempts", res.attempts),
			zap.Error(err),
		)
	default:
		if !res.fromL2 {
			p.writeL2(ctx, key, res.page)
		}
	}
	if p.opts.metrics != nil {
		p.opts.metrics.Fetch(p.cfg.Namespace, outcome, time.Since(start))
	}
	tracing.End(span, err, stale)
}

// fetchShared runs one fetch per (generation, key) no matter how many
// callers ask for it concurrently.
func (p *Pager[T]) fetchShared(ctx context.Context, gen uint64, key string, d Descriptor, rc retry.Config) (result[T], error) {
	v, err, _ := p.flight.Do(strconv.FormatUint(gen, 10)+"/"+key, func() (any, error) {
		if pg, ok := p.readL2(ctx, key); ok {
			return result[T]{page: pg, fromL2: true}, nil
		}
		ctrl := retry.New[Descriptor, Page[T]](p.call, rc)
		pg, err := ctrl.Execute(ctx, d)
		return result[T]{page: pg, attempts: ctrl.State().Attempt}, err
	})
	res, _ := v.(result[T])
	return res, err
}

func (p *Pager[T]) call(ctx context.Context, d Descriptor) (Page[T], error) {
	pg, err := p.fetch(ctx, d.Clone())
	if err != nil {
		tracing.RecordAttempt(ctx, contextx.AttemptFromContext(ctx), err)
	}
	return pg, err
}

// retried marks the pager as retrying when the failing fetch is the one for
// the descriptor currently shown.
func (p *Pager[T]) retried(key string, gen uint64, ev retry.Event) {
	if p.opts.metrics != nil {
		p.opts.metrics.Retry(p.cfg.Namespace, ev.Attempt)
	}
	p.mu.Lock()
	if p.closed || gen != p.gen || key != Key(p.cfg.Namespace, p.desc) {
		p.mu.Unlock()
		return
	}
	p.retrying = true
	p.attempt = ev.Attempt
	p.mu.Unlock()
	p.notify()
}

// prefetchLocked fetches up to PrefetchPages pages after d in the background
// and caches them without touching state.
func (p *Pager[T]) prefetchLocked(d Descriptor, total int) {
	if p.cfg.PrefetchPages == 0 || p.closed {
		return
	}
	last := min(d.Page+p.cfg.PrefetchPages, totalPages(total, d.PageSize))
	var todo []Descriptor
	for n := d.Page + 1; n <= last; n++ {
		nd := d.Clone()
		nd.Page = n
		if !p.store.Has(Key(p.cfg.Namespace, nd)) {
			todo = append(todo, nd)
		}
	}
	if len(todo) == 0 {
		return
	}
	p.beginLocked()
	go p.prefetch(p.gen, todo)
}

func (p *Pager[T]) prefetch(gen uint64, ds []Descriptor) {
	defer p.end()
	ctx := contextx.WithNamespace(p.ctx, p.cfg.Namespace)
	rc := p.cfg.Retry
	rc.OnRetry = nil

	var g errgroup.Group
	for _, d := range ds {
		g.Go(func() error {
			key := Key(p.cfg.Namespace, d)
			res, err := p.fetchShared(ctx, gen, key, d, rc)
			if err != nil {
				return fmt.Errorf("page %d: %w", d.Page, err)
			}
			p.mu.Lock()
			current := !p.closed && gen == p.gen
			if current {
				p.store.Set(key, res.page, p.cfg.TTL)
			}
			p.mu.Unlock()
			if current && !res.fromL2 {
				p.writeL2(ctx, key, res.page)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		p.log.Debug("prefetch failed", zap.Error(err))
	}
}

func (p *Pager[T]) readL2(ctx context.Context, key string) (Page[T], bool) {
	var pg Page[T]
	if p.opts.l2 == nil {
		return pg, false
	}
	b, ok := p.opts.l2.Get(ctx, key)
	if !ok {
		return pg, false
	}
	if err := msgpack.Unmarshal(b, &pg); err != nil {
		p.log.Warn("dropping undecodable shared entry", zap.String("key", key), zap.Error(err))
		p.opts.l2.Invalidate(ctx, key)
		return Page[T]{}, false
	}
	return pg, true
}

func (p *Pager[T]) writeL2(ctx context.Context, key string, pg Page[T]) {
	if p.opts.l2 == nil {
		return
	}
	b, err := msgpack.Marshal(pg)
	if err != nil {
		p.log.Warn("cannot encode page for shared tier", zap.String("key", key), zap.Error(err))
		return
	}
	p.opts.l2.Set(ctx, key, b, p.cfg.TTL)
}

func (p *Pager[T]) applyLocked(pg Page[T]) {
	p.page = pg
	p.loading = false
	p.err = nil
	p.retrying = false
	p.attempt = 0
}

func (p *Pager[T]) snapshotLocked() State[T] {
	return State[T]{
		Data:              p.page.Data,
		TotalItems:        p.page.TotalItems,
		CurrentPage:       p.desc.Page,
		TotalPages:        totalPages(p.page.TotalItems, p.desc.PageSize),
		IsLoading:         p.loading,
		IsError:           p.err != nil,
		Err:               p.err,
		IsRetrying:        p.retrying,
		Attempt:           p.attempt,
		RemainingAttempts: max(p.cfg.Retry.MaxAttempts-p.attempt, 0),
		Descriptor:        p.desc.Clone(),
	}
}

// notify hands the current state to the listener. When another goroutine
// is already delivering, it takes over this notification and delivers once
// more after its current call returns.
func (p *Pager[T]) notify() {
	p.mu.Lock()
	if p.onChange == nil {
		p.mu.Unlock()
		return
	}
	p.beginLocked()
	if p.delivering {
		p.queued++
		p.mu.Unlock()
		return
	}
	p.delivering = true
	n := 1
	for {
		fn := p.onChange
		snap := p.snapshotLocked()
		n += p.queued
		p.queued = 0
		p.mu.Unlock()

		if fn != nil {
			fn(snap)
		}

		p.mu.Lock()
		for ; n > 0; n-- {
			p.endLocked()
		}
		if p.queued == 0 {
			p.delivering = false
			p.mu.Unlock()
			return
		}
	}
}

func (p *Pager[T]) stopTimerLocked() {
	if p.timer != nil && p.timer.Stop() {
		p.endLocked()
	}
	p.timer = nil
}

// beginLocked and endLocked count background work for Wait.
func (p *Pager[T]) beginLocked() {
	if p.pending == 0 {
		p.idle = make(chan struct{})
	}
	p.pending++
}

func (p *Pager[T]) endLocked() {
	p.pending--
	if p.pending == 0 {
		close(p.idle)
	}
}

func (p *Pager[T]) end() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endLocked()
}

func totalPages(total, size int) int {
	if total <= 0 || size <= 0 {
		return 0
	}
	return (total + size - 1) / size
}

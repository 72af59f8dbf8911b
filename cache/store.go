package cache

import (
	"container/list"
	"sync"
	"time"
)

// entry is a single cached value. createdAt is reset on every Set.
type entry struct {
	key       string
	value     any
	createdAt time.Time
	ttl       time.Duration
}

func (e *entry) expired(now time.Time) bool {
	return now.After(e.createdAt.Add(e.ttl))
}

// Store is a bounded in-memory TTL cache. Entries are kept in insertion
// order so that the oldest inserted entries are evicted first once
// MaxEntries is exceeded. Every operation runs to completion under one
// mutex, so readers never observe a partially written entry.
type Store struct {
	mu    sync.Mutex
	cfg   Config
	items map[string]*list.Element
	order *list.List // front is the oldest insertion
	stats Stats

	obs     Observer
	nowFunc func() time.Time // for testing; defaults to time.Now
}

var _ Cache = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.nowFunc = now
	}
}

// WithObserver attaches an Observer notified about hits, misses and
// evictions.
func WithObserver(o Observer) Option {
	return func(s *Store) {
		s.obs = o
	}
}

// New creates a Store. Zero fields in cfg take their defaults.
func New(cfg Config, opts ...Option) (*Store, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Store{
		cfg:     cfg,
		items:   make(map[string]*list.Element),
		order:   list.New(),
		nowFunc: time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Get returns the live value for key.
func (s *Store) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(key)
	if !ok {
		s.stats.Misses++
		if s.obs != nil {
			s.obs.Miss()
		}
		return nil, false
	}
	s.stats.Hits++
	if s.obs != nil {
		s.obs.Hit()
	}
	return e.value, true
}

// Has reports whether key holds a live value. It does not count as a hit or
// a miss.
func (s *Store) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.lookup(key)
	return ok
}

// Set inserts or replaces the entry under key and moves it to the newest
// insertion position.
func (s *Store) Set(key string, val any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.cfg.DefaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.items[key]; ok {
		s.order.Remove(el)
	}
	s.items[key] = s.order.PushBack(&entry{
		key:       key,
		value:     val,
		createdAt: s.now(),
		ttl:       ttl,
	})

	if s.order.Len() <= s.cfg.MaxEntries {
		return
	}
	// Dead entries go first, then the oldest live ones.
	s.purgeExpired()
	evicted := 0
	for s.order.Len() > s.cfg.MaxEntries {
		s.remove(s.order.Front())
		evicted++
	}
	if evicted > 0 {
		s.stats.Evictions += uint64(evicted)
		if s.obs != nil {
			s.obs.Evicted(ReasonCapacity, evicted)
		}
	}
}

// Invalidate removes exactly one entry.
func (s *Store) Invalidate(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[key]
	if !ok {
		return false
	}
	s.remove(el)
	s.invalidated(1)
	return true
}

// InvalidatePattern removes every key matching the regular expression expr.
// An invalid expression leaves the store untouched.
func (s *Store) InvalidatePattern(expr string) (int, error) {
	p, err := Regex(expr)
	if err != nil {
		return 0, err
	}
	return s.InvalidateMatching(p), nil
}

// InvalidatePrefix removes every key starting with prefix.
func (s *Store) InvalidatePrefix(prefix string) int {
	return s.InvalidateMatching(Prefix(prefix))
}

// InvalidateMatching removes every key selected by p and returns the count.
func (s *Store) InvalidateMatching(p Pattern) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for el := s.order.Front(); el != nil; {
		next := el.Next()
		if p.Match(el.Value.(*entry).key) {
			s.remove(el)
			n++
		}
		el = next
	}
	s.invalidated(n)
	return n
}

// Clear removes all entries. Counters are kept.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.order.Len()
	s.items = make(map[string]*list.Element)
	s.order.Init()
	s.invalidated(n)
}

// Keys returns the stored keys, oldest insertion first. Expired entries that
// have not been evicted yet are included.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, s.order.Len())
	for el := s.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*entry).key)
	}
	return keys
}

// Stats returns a snapshot of the store counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stats
	st.TotalEntries = s.order.Len()
	st.MaxEntries = s.cfg.MaxEntries
	return st
}

// lookup returns the live entry for key, evicting it when expired. Must be
// called with s.mu held.
func (s *Store) lookup(key string) (*entry, bool) {
	el, ok := s.items[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*entry)
	if e.expired(s.now()) {
		s.remove(el)
		s.stats.Expirations++
		if s.obs != nil {
			s.obs.Evicted(ReasonExpired, 1)
		}
		return nil, false
	}
	return e, true
}

// purgeExpired drops every expired entry. Must be called with s.mu held.
func (s *Store) purgeExpired() {
	now := s.now()
	n := 0
	for el := s.order.Front(); el != nil; {
		next := el.Next()
		if el.Value.(*entry).expired(now) {
			s.remove(el)
			n++
		}
		el = next
	}
	if n > 0 {
		s.stats.Expirations += uint64(n)
		if s.obs != nil {
			s.obs.Evicted(ReasonExpired, n)
		}
	}
}

func (s *Store) remove(el *list.Element) {
	delete(s.items, el.Value.(*entry).key)
	s.order.Remove(el)
}

func (s *Store) invalidated(n int) {
	if n == 0 {
		return
	}
	s.stats.Invalidations += uint64(n)
	if s.obs != nil {
		s.obs.Evicted(ReasonInvalidated, n)
	}
}

func (s *Store) now() time.Time {
	if s.nowFunc != nil {
		return s.nowFunc()
	}
	return time.Now()
}

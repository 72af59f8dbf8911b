package cache

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// L2Config configures the Redis-backed shared tier.
type L2Config struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// KeyPrefix is prepended to every key so the tier can share a Redis
	// database with other applications.
	KeyPrefix string `yaml:"key_prefix"`
	// Scope isolates the entries of one user or tenant. Keys are stored as
	// KeyPrefix + Scope + "/" + key, and Clear removes only this scope.
	// Required.
	Scope string `yaml:"scope"`
}

// Validate reports a missing address or an unusable scope.
func (c L2Config) Validate() error {
	if c.Addr == "" {
		return ErrMissingL2Addr
	}
	if c.Scope == "" || strings.Contains(c.Scope, "/") {
		return ErrInvalidL2Scope(c.Scope)
	}
	return nil
}

// L2 is a Redis-backed byte cache shared between processes. All operations
// fail soft: if Redis is unavailable, reads report a miss and writes or
// deletes are silently dropped.
type L2 struct {
	rdb    *redis.Client
	prefix string
}

// NewL2 creates a new Redis-backed shared tier.
func NewL2(cfg L2Config) (*L2, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &L2{rdb: rdb, prefix: cfg.KeyPrefix + cfg.Scope + "/"}, nil
}

// Get retrieves a value by key. Returns (nil, false) on a miss or when Redis
// is unreachable.
func (l *L2) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := l.rdb.Get(ctx, l.prefix+key).Bytes()
	if err != nil {
		// redis.Nil and connection errors both read as a miss.
		return nil, false
	}
	return val, true
}

// Set stores a value under key with the given TTL.
func (l *L2) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	_ = l.rdb.Set(ctx, l.prefix+key, val, ttl).Err()
}

// Invalidate removes one key.
func (l *L2) Invalidate(ctx context.Context, key string) {
	_ = l.rdb.Del(ctx, l.prefix+key).Err()
}

// InvalidatePrefix removes every key starting with prefix and returns how
// many were deleted. Scanning stops at the first Redis error.
func (l *L2) InvalidatePrefix(ctx context.Context, prefix string) int {
	match := escapeGlob(l.prefix+prefix) + "*"
	deleted := 0
	var cursor uint64
	for {
		keys, next, err := l.rdb.Scan(ctx, cursor, match, 100).Result()
		if err != nil {
			return deleted
		}
		if len(keys) > 0 {
			n, err := l.rdb.Del(ctx, keys...).Result()
			if err != nil {
				return deleted
			}
			deleted += int(n)
		}
		if next == 0 {
			return deleted
		}
		cursor = next
	}
}

// Clear removes every key of this scope.
func (l *L2) Clear(ctx context.Context) int {
	return l.InvalidatePrefix(ctx, "")
}

// Ping checks the Redis connection.
func (l *L2) Ping(ctx context.Context) error {
	return l.rdb.Ping(ctx).Err()
}

// Close closes the underlying Redis client.
func (l *L2) Close() error {
	return l.rdb.Close()
}

// escapeGlob quotes the characters SCAN MATCH treats specially.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

package cache

import (
	"regexp"
	"strings"
	"sync"

	"github.com/dgraph-io/ristretto/v2"
)

// Kind distinguishes the three matching strategies.
type Kind int

const (
	KindExact Kind = iota
	KindPrefix
	KindRegex
)

// Pattern selects a set of keys for invalidation.
type Pattern struct {
	kind Kind
	expr string
	re   *regexp.Regexp
}

// Exact matches key only.
func Exact(key string) Pattern {
	return Pattern{kind: KindExact, expr: key}
}

// Prefix matches every key starting with prefix.
func Prefix(prefix string) Pattern {
	return Pattern{kind: KindPrefix, expr: prefix}
}

// Regex matches every key containing a match of expr. Anchor the expression
// with ^ to restrict it to the start of the key.
func Regex(expr string) (Pattern, error) {
	re, err := compile(expr)
	if err != nil {
		return Pattern{}, ErrInvalidPattern(expr, err)
	}
	return Pattern{kind: KindRegex, expr: expr, re: re}, nil
}

// MustRegex is like Regex but panics on an invalid expression.
func MustRegex(expr string) Pattern {
	p, err := Regex(expr)
	if err != nil {
		panic(err)
	}
	return p
}

// Kind returns the matching strategy.
func (p Pattern) Kind() Kind { return p.kind }

// String returns the raw pattern text.
func (p Pattern) String() string { return p.expr }

// Match reports whether key is selected by p.
func (p Pattern) Match(key string) bool {
	switch p.kind {
	case KindExact:
		return key == p.expr
	case KindPrefix:
		return strings.HasPrefix(key, p.expr)
	case KindRegex:
		return p.re != nil && p.re.MatchString(key)
	}
	return false
}

// compiled memoises regular expressions by source.
var compiled = sync.OnceValues(func() (*ristretto.Cache[string, *regexp.Regexp], error) {
	return ristretto.NewCache(&ristretto.Config[string, *regexp.Regexp]{
		NumCounters: 10_000,
		MaxCost:     1_000,
		BufferItems: 64,
	})
})

func compile(expr string) (*regexp.Regexp, error) {
	memo, memoErr := compiled()
	if memoErr == nil {
		if re, ok := memo.Get(expr); ok {
			return re, nil
		}
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	if memoErr == nil {
		memo.Set(expr, re, 1)
	}
	return re, nil
}

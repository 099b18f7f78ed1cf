package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRU holds materialized paste plaintext keyed by slug. Only content
// is cached; paste rows are always read fresh so expiry and view
// accounting stay authoritative.
type LRU struct {
	c  *lru.Cache[string, item]
	mu sync.Mutex
}

type item struct {
	content string
	exp     time.Time
}

func NewLRU(size int) (*LRU, error) {
	if size <= 0 {
		return nil, errors.New("cache size must be positive")
	}
	if size > 100000 {
		return nil, errors.New("cache size too large")
	}
	c, err := lru.New[string, item](size)
	if err != nil {
		return nil, err
	}
	return &LRU{c: c}, nil
}

func (l *LRU) Get(ctx context.Context, slug string) (string, bool) {
	select {
	case <-ctx.Done():
		return "", false
	default:
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	it, ok := l.c.Get(slug)
	if !ok {
		return "", false
	}
	if time.Now().After(it.exp) {
		l.c.Remove(slug)
		return "", false
	}
	return it.content, true
}

func (l *LRU) Set(slug, content string, ttl time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.c.Add(slug, item{
		content: content,
		exp:     time.Now().Add(ttl),
	})
}

func (l *LRU) Delete(slug string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.c.Remove(slug)
}

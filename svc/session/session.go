// Package session tracks which pastes a viewer has already seen so a
// reload never counts twice. Sessions live in Redis when available and
// fall back to process memory otherwise.
package session

import (
	"context"
	"sync"
	"time"

	"pastry/svc/views"
)

// Store loads and persists the seen set for one viewer session.
type Store interface {
	Seen(ctx context.Context, sessionID string) (views.Set, error)
	MarkSeen(ctx context.Context, sessionID string, pasteID int64) error
}

type redisBackend interface {
	ViewedSet(ctx context.Context, sessionID string) ([]int64, error)
	MarkViewed(ctx context.Context, sessionID string, pasteID int64, ttl time.Duration) error
}

type RedisStore struct {
	backend redisBackend
	ttl     time.Duration
}

func NewRedisStore(backend redisBackend, ttl time.Duration) *RedisStore {
	if backend == nil {
		panic("session: nil redis backend")
	}
	return &RedisStore{backend: backend, ttl: ttl}
}

func (s *RedisStore) Seen(ctx context.Context, sessionID string) (views.Set, error) {
	if sessionID == "" {
		return views.Set{}, nil
	}
	ids, err := s.backend.ViewedSet(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	set := make(views.Set, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

func (s *RedisStore) MarkSeen(ctx context.Context, sessionID string, pasteID int64) error {
	if sessionID == "" {
		return nil
	}
	return s.backend.MarkViewed(ctx, sessionID, pasteID, s.ttl)
}

// MemoryStore is the single-process fallback when Redis is not
// configured. Sessions expire as a whole after the TTL.
type MemoryStore struct {
	mu   sync.Mutex
	ttl  time.Duration
	data map[string]*memorySession
	now  func() time.Time
}

type memorySession struct {
	seen views.Set
	exp  time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:  ttl,
		data: make(map[string]*memorySession),
		now:  time.Now,
	}
}

func (s *MemoryStore) Seen(_ context.Context, sessionID string) (views.Set, error) {
	if sessionID == "" {
		return views.Set{}, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.data[sessionID]
	if !ok || s.now().After(sess.exp) {
		delete(s.data, sessionID)
		return views.Set{}, nil
	}
	return sess.seen.Clone(), nil
}

func (s *MemoryStore) MarkSeen(_ context.Context, sessionID string, pasteID int64) error {
	if sessionID == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.data[sessionID]
	if !ok || s.now().After(sess.exp) {
		sess = &memorySession{seen: views.Set{}}
		s.data[sessionID] = sess
	}
	sess.seen[pasteID] = struct{}{}
	sess.exp = s.now().Add(s.ttl)
	s.evictExpiredLocked()
	return nil
}

func (s *MemoryStore) evictExpiredLocked() {
	if len(s.data) < 10000 {
		return
	}
	now := s.now()
	for id, sess := range s.data {
		if now.After(sess.exp) {
			delete(s.data, id)
		}
	}
}

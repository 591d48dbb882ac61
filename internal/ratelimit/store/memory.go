package store

import (
	"context"
	"sync"
	"time"
)

// entry represents a stored value with expiration.
type entry struct {
	value      int64
	expiration time.Time
}

// MemoryStore implements Store using in-process storage. Useful for
// single-instance deployments and tests.
type MemoryStore struct {
	mu     sync.Mutex
	data   map[string]*entry
	done   chan struct{}
	closed sync.Once
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithCleanupInterval(time.Minute)
}

// NewMemoryStoreWithCleanupInterval creates an in-memory store that
// sweeps expired entries at the given interval.
func NewMemoryStoreWithCleanupInterval(interval time.Duration) *MemoryStore {
	s := &MemoryStore{
		data: make(map[string]*entry),
		done: make(chan struct{}),
	}

	go s.cleanupLoop(interval)

	return s
}

func (s *MemoryStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.done:
			return
		}
	}
}

func (s *MemoryStore) sweep() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, e := range s.data {
		if !e.expiration.IsZero() && now.After(e.expiration) {
			delete(s.data, key)
		}
	}
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	if !ok {
		return 0, &ErrKeyNotFound{Key: key}
	}
	if !e.expiration.IsZero() && time.Now().After(e.expiration) {
		delete(s.data, key)
		return 0, &ErrKeyNotFound{Key: key}
	}

	return e.value, nil
}

// Set implements Store.
func (s *MemoryStore) Set(ctx context.Context, key string, value int64, expiration time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var exp time.Time
	if expiration > 0 {
		exp = time.Now().Add(expiration)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = &entry{value: value, expiration: exp}
	return nil
}

// Increment implements Store.
func (s *MemoryStore) Increment(ctx context.Context, key string, delta int64, expiration time.Duration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	if ok && !e.expiration.IsZero() && time.Now().After(e.expiration) {
		ok = false
	}

	if !ok {
		var exp time.Time
		if expiration > 0 {
			exp = time.Now().Add(expiration)
		}
		s.data[key] = &entry{value: delta, expiration: exp}
		return delta, nil
	}

	e.value += delta
	return e.value, nil
}

// TakeBucket implements Store. The refill and take run under the store
// mutex, matching the atomicity the redis script provides. Token counts
// are kept in millitokens, mirroring the redis layout.
func (s *MemoryStore) TakeBucket(ctx context.Context, key string, rate float64, burst, n int, expiration time.Duration) (bool, float64, error) {
	if err := ctx.Err(); err != nil {
		return false, 0, err
	}

	now := time.Now()
	nowMs := now.UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()

	capacity := float64(burst) * 1000
	tokens := capacity
	last := nowMs
	if e, ok := s.live(key+":tokens", now); ok {
		tokens = float64(e.value)
	}
	if e, ok := s.live(key+":time", now); ok {
		last = e.value
	}

	// rate in tokens/sec equals millitokens/ms.
	tokens += float64(nowMs-last) * rate
	if tokens > capacity {
		tokens = capacity
	}

	allowed := tokens >= float64(n)*1000
	if allowed {
		tokens -= float64(n) * 1000
	}

	var exp time.Time
	if expiration > 0 {
		exp = now.Add(expiration)
	}
	s.data[key+":tokens"] = &entry{value: int64(tokens), expiration: exp}
	s.data[key+":time"] = &entry{value: nowMs, expiration: exp}

	return allowed, tokens / 1000, nil
}

// live returns the entry for key if present and unexpired, dropping it
// otherwise. Caller must hold s.mu.
func (s *MemoryStore) live(key string, now time.Time) (*entry, bool) {
	e, ok := s.data[key]
	if !ok {
		return nil, false
	}
	if !e.expiration.IsZero() && now.After(e.expiration) {
		delete(s.data, key)
		return nil, false
	}
	return e, true
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

// Close implements Store. Safe to call multiple times.
func (s *MemoryStore) Close() error {
	s.closed.Do(func() {
		close(s.done)
	})
	return nil
}

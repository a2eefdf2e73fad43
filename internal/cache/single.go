// Package cache holds the gateway's one-slot derived-view cache.
package cache

import (
	"sync"
	"time"
)

// Single is a one-slot cache: at most one value of T, servable for ttl
// after it was computed. The zero slot is empty.
type Single[T any] struct {
	mutex      sync.Mutex
	value      T
	computedAt time.Time
	ttl        time.Duration
}

func NewSingle[T any](ttl time.Duration) *Single[T] {
	return &Single[T]{ttl: ttl}
}

// GetOrCompute returns the cached value while it is still servable,
// otherwise runs compute and stores its result. The lock spans the whole
// check-compute-store sequence, so concurrent callers never compute
// twice; losers wait and read the winner's value. Failed computes are
// not stored. The second return reports whether the value came from the
// cache.
func (s *Single[T]) GetOrCompute(now time.Time, compute func() (T, error)) (T, bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if !s.computedAt.IsZero() && now.Sub(s.computedAt) < s.ttl {
		return s.value, true, nil
	}
	value, err := compute()
	if err != nil {
		var zero T
		return zero, false, err
	}
	s.value = value
	s.computedAt = now
	return value, false, nil
}

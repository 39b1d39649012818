// Package timeseries provides a time-ordered in-memory store with
// logarithmic age-based eviction.
package timeseries

import (
	"sort"
	"sync"
	"time"
)

type item[T any] struct {
	value T
	at    time.Time
	key   string
	seq   uint64
}

func (i *item[T]) less(o *item[T]) bool {
	if !i.at.Equal(o.at) {
		return i.at.Before(o.at)
	}
	return i.seq < o.seq
}

// Series keeps values ordered by timestamp. Values with a non-empty key
// replace the previous value with the same key. Safe for concurrent use.
type Series[T any] struct {
	mu     sync.RWMutex
	items  []*item[T]
	byKey  map[string]*item[T]
	seq    uint64
	timeOf func(T) time.Time
	keyOf  func(T) string
}

// New creates a series. keyOf may be nil for append-only series.
func New[T any](timeOf func(T) time.Time, keyOf func(T) string) *Series[T] {
	return &Series[T]{
		byKey:  make(map[string]*item[T]),
		timeOf: timeOf,
		keyOf:  keyOf,
	}
}

// Put inserts v, replacing any value with the same key.
func (s *Series[T]) Put(v T) {
	it := &item[T]{value: v, at: s.timeOf(v)}
	if s.keyOf != nil {
		it.key = s.keyOf(v)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if it.key != "" {
		if old, ok := s.byKey[it.key]; ok {
			s.remove(old)
		}
		s.byKey[it.key] = it
	}
	s.seq++
	it.seq = s.seq

	i := sort.Search(len(s.items), func(i int) bool { return it.less(s.items[i]) })
	s.items = append(s.items, nil)
	copy(s.items[i+1:], s.items[i:])
	s.items[i] = it
}

// Get returns the value stored under key.
func (s *Series[T]) Get(key string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.byKey[key]
	if !ok {
		var zero T
		return zero, false
	}
	return it.value, true
}

func (s *Series[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// All returns every value, oldest first.
func (s *Series[T]) All() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]T, len(s.items))
	for i, it := range s.items {
		out[i] = it.value
	}
	return out
}

// Range returns values with from <= t <= to, oldest first.
func (s *Series[T]) Range(from, to time.Time) []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lo := sort.Search(len(s.items), func(i int) bool { return !s.items[i].at.Before(from) })
	hi := sort.Search(len(s.items), func(i int) bool { return s.items[i].at.After(to) })
	out := make([]T, 0, max(hi-lo, 0))
	for _, it := range s.items[lo:max(hi, lo)] {
		out = append(out, it.value)
	}
	return out
}

// Latest returns the newest value.
func (s *Series[T]) Latest() (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.items) == 0 {
		var zero T
		return zero, false
	}
	return s.items[len(s.items)-1].value, true
}

// EvictBefore drops values strictly older than cutoff. Values with a zero
// timestamp are kept and counted in skipped.
func (s *Series[T]) EvictBefore(cutoff time.Time) (evicted, skipped int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lo := sort.Search(len(s.items), func(i int) bool { return !s.items[i].at.IsZero() })
	hi := sort.Search(len(s.items), func(i int) bool { return !s.items[i].at.Before(cutoff) })
	if hi <= lo {
		return 0, lo
	}
	s.drop(lo, hi)
	return hi - lo, lo
}

// TrimTo keeps at most n of the newest values.
func (s *Series[T]) TrimTo(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	over := len(s.items) - n
	if n < 0 || over <= 0 {
		return 0
	}
	s.drop(0, over)
	return over
}

func (s *Series[T]) drop(lo, hi int) {
	for _, it := range s.items[lo:hi] {
		if it.key != "" && s.byKey[it.key] == it {
			delete(s.byKey, it.key)
		}
	}
	s.items = append(s.items[:lo], s.items[hi:]...)
}

func (s *Series[T]) remove(it *item[T]) {
	i := sort.Search(len(s.items), func(i int) bool { return !s.items[i].less(it) })
	if i < len(s.items) && s.items[i] == it {
		s.items = append(s.items[:i], s.items[i+1:]...)
	}
	delete(s.byKey, it.key)
}

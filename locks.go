package tally

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"
)

// lockSet hands out per-key exclusive locks. Keys are account or movement
// IDs; entries are reference counted and dropped when no caller holds or
// waits on them.
type lockSet struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sem  *semaphore.Weighted
	refs int
}

func newLockSet() *lockSet {
	return &lockSet{locks: make(map[string]*keyLock)}
}

// acquire locks every key in ascending order and returns a release func.
// Waiting honours ctx; on cancellation nothing stays locked.
func (s *lockSet) acquire(ctx context.Context, keys ...string) (func(), error) {
	keys = normalizeKeys(keys)

	held := make([]string, 0, len(keys))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			s.unlock(held[i])
		}
	}

	for _, k := range keys {
		l := s.ref(k)
		if err := l.sem.Acquire(ctx, 1); err != nil {
			s.unref(k)
			release()
			return nil, err
		}
		held = append(held, k)
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

func (s *lockSet) ref(key string) *keyLock {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[key]
	if !ok {
		l = &keyLock{sem: semaphore.NewWeighted(1)}
		s.locks[key] = l
	}
	l.refs++
	return l
}

func (s *lockSet) unref(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.locks[key]
	l.refs--
	if l.refs == 0 {
		delete(s.locks, key)
	}
}

func (s *lockSet) unlock(key string) {
	s.mu.Lock()
	l := s.locks[key]
	s.mu.Unlock()

	l.sem.Release(1)
	s.unref(key)
}

func normalizeKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

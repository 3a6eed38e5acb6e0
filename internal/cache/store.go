// Package cache keeps the latest aggregate per FilterKey and coordinates
// recomputation so each key has at most one computation in flight.
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/reviewsight/reviewsight/internal/metrics"
	"github.com/reviewsight/reviewsight/internal/model"
)

// ComputeFunc builds a fresh entry for key from the current review set.
type ComputeFunc func(ctx context.Context, key model.FilterKey) (model.CacheEntry, error)

// Hook observes every completed computation, once per computation.
type Hook func(entry model.CacheEntry)

type Store struct {
	compute ComputeFunc
	group   singleflight.Group
	slots   sync.Map // model.FilterKey -> *slot

	hooksMu sync.RWMutex
	hooks   []Hook

	mirror Mirror
}

type slot struct {
	mu    sync.RWMutex
	entry model.CacheEntry
	ok    bool

	// requests counts Refresh calls; a flight covers every request issued
	// before it took its snapshot.
	requests atomic.Uint64
}

type flight struct {
	entry   model.CacheEntry
	covered uint64
}

func NewStore(compute ComputeFunc) *Store {
	return &Store{compute: compute}
}

// WithMirror attaches a shared second-level copy that is written after every
// computation and read on a local miss.
func (s *Store) WithMirror(m Mirror) *Store {
	s.mirror = m
	s.OnRefresh(func(entry model.CacheEntry) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := m.Save(ctx, entry); err != nil {
			log.Warn().Err(err).Str("key", entry.Key.String()).Msg("Failed to mirror cache entry")
		}
	})
	return s
}

// OnRefresh registers h to run after each completed computation.
func (s *Store) OnRefresh(h Hook) {
	s.hooksMu.Lock()
	s.hooks = append(s.hooks, h)
	s.hooksMu.Unlock()
}

func (s *Store) slot(key model.FilterKey) *slot {
	if v, ok := s.slots.Load(key); ok {
		return v.(*slot)
	}
	v, _ := s.slots.LoadOrStore(key, &slot{})
	return v.(*slot)
}

// Get returns the entry for key, stale or not.
func (s *Store) Get(key model.FilterKey) (model.CacheEntry, bool) {
	v, ok := s.slots.Load(key)
	if !ok {
		return model.CacheEntry{}, false
	}
	sl := v.(*slot)
	sl.mu.RLock()
	defer sl.mu.RUnlock()
	return sl.entry, sl.ok
}

// Lookup is Get with a fallback to the mirror on a local miss. A mirrored
// entry is installed locally and left for InvalidateIfStale to judge.
func (s *Store) Lookup(ctx context.Context, key model.FilterKey) (model.CacheEntry, bool) {
	if entry, ok := s.Get(key); ok {
		return entry, true
	}
	if s.mirror == nil {
		return model.CacheEntry{}, false
	}
	entry, ok, err := s.mirror.Load(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key.String()).Msg("Failed to read cache mirror")
		return model.CacheEntry{}, false
	}
	if !ok {
		return model.CacheEntry{}, false
	}

	sl := s.slot(key)
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.ok {
		return sl.entry, true
	}
	sl.entry, sl.ok = entry, true
	return entry, true
}

// Put replaces the entry for key.
func (s *Store) Put(key model.FilterKey, entry model.CacheEntry) {
	entry.Key = key
	sl := s.slot(key)
	sl.mu.Lock()
	sl.entry, sl.ok = entry, true
	sl.mu.Unlock()
}

// InvalidateIfStale marks the entry stale when a matching review newer than
// its source exists, and reports whether the key needs a refresh. A missing
// entry always does.
func (s *Store) InvalidateIfStale(key model.FilterKey, latest time.Time) bool {
	v, ok := s.slots.Load(key)
	if !ok {
		return true
	}
	sl := v.(*slot)
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if !sl.ok {
		return true
	}
	if latest.After(sl.entry.SourceMaxTimestamp) {
		sl.entry.Stale = true
	}
	return sl.entry.Stale
}

// Refresh recomputes key. Concurrent callers share one computation; a caller
// that arrives after the running computation took its snapshot waits for the
// next one, so the result always reflects writes made before the call.
func (s *Store) Refresh(ctx context.Context, key model.FilterKey) (model.CacheEntry, error) {
	sl := s.slot(key)
	want := sl.requests.Add(1)

	for {
		ch := s.group.DoChan(key.String(), func() (interface{}, error) {
			return s.run(ctx, key, sl)
		})

		select {
		case <-ctx.Done():
			return model.CacheEntry{}, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				return model.CacheEntry{}, res.Err
			}
			f := res.Val.(flight)
			if f.covered >= want {
				return f.entry, nil
			}
		}
	}
}

// RefreshAsync starts a refresh in the background.
func (s *Store) RefreshAsync(key model.FilterKey) {
	go func() {
		if _, err := s.Refresh(context.Background(), key); err != nil {
			log.Warn().Err(err).Str("key", key.String()).Msg("Background refresh failed")
		}
	}()
}

func (s *Store) run(ctx context.Context, key model.FilterKey, sl *slot) (flight, error) {
	covered := sl.requests.Load()

	entry, err := s.compute(context.WithoutCancel(ctx), key)
	if err != nil {
		metrics.CacheRefreshesTotal.WithLabelValues("error").Inc()
		return flight{}, err
	}

	entry.Key = key
	entry.Stale = false
	if entry.SourceMaxTimestamp.IsZero() {
		entry.SourceMaxTimestamp = entry.Summary.SourceMaxTimestamp
	}
	if entry.ComputedAt.IsZero() {
		entry.ComputedAt = time.Now().UTC()
	}

	sl.mu.Lock()
	sl.entry, sl.ok = entry, true
	sl.mu.Unlock()
	metrics.CacheRefreshesTotal.WithLabelValues("ok").Inc()

	s.hooksMu.RLock()
	hooks := s.hooks
	s.hooksMu.RUnlock()
	for _, h := range hooks {
		h(entry)
	}

	return flight{entry: entry, covered: covered}, nil
}

// Keys returns every key that currently holds an entry.
func (s *Store) Keys() []model.FilterKey {
	var keys []model.FilterKey
	s.slots.Range(func(k, v interface{}) bool {
		sl := v.(*slot)
		sl.mu.RLock()
		ok := sl.ok
		sl.mu.RUnlock()
		if ok {
			keys = append(keys, k.(model.FilterKey))
		}
		return true
	})
	return keys
}

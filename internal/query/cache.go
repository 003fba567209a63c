package query

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/five82/marquee/internal/logging"
)

var (
	// ErrDisabled is returned by Fetch for a disabled query. The fetcher is
	// not called.
	ErrDisabled = errors.New("query disabled")
	// ErrNoFetcher is returned when refetching a key that was only ever
	// written with SetData.
	ErrNoFetcher = errors.New("query has no fetcher")
)

const refetchConcurrency = 4

// Entry is a point-in-time copy of one cache entry.
type Entry struct {
	Key         Key
	Status      Status
	Data        any
	Err         error
	UpdatedAt   time.Time
	StaleTime   time.Duration
	Invalidated bool
	Fetching    bool
}

// HasData reports whether the entry holds data from a successful fetch or a
// manual write.
func (e Entry) HasData() bool {
	return !e.UpdatedAt.IsZero()
}

// Stale reports whether the entry should be refetched on next read.
func (e Entry) Stale(now time.Time) bool {
	if e.Status != StatusSuccess || e.Invalidated {
		return true
	}
	return now.Sub(e.UpdatedAt) >= e.StaleTime
}

type fetchFunc func(ctx context.Context) (any, error)

// mergeFunc combines the cached data with a fresh result before it is
// stored.
type mergeFunc func(cached, fetched any) any

type entry struct {
	key         Key
	status      Status
	data        any
	err         error
	updatedAt   time.Time
	staleTime   time.Duration
	invalidated bool
	inflight    int
	epoch       uint64
	// gen is bumped by Invalidate. Fetches started under an older gen are
	// not joined and their results are dropped.
	gen   uint64
	fetch fetchFunc
	merge mergeFunc
}

func (e *entry) snapshot() Entry {
	return Entry{
		Key:         e.key.clone(),
		Status:      e.status,
		Data:        e.data,
		Err:         e.err,
		UpdatedAt:   e.updatedAt,
		StaleTime:   e.staleTime,
		Invalidated: e.invalidated,
		Fetching:    e.inflight > 0,
	}
}

// Cache stores query results by Key.
type Cache struct {
	mu        sync.RWMutex
	entries   map[string]*entry
	nextEpoch uint64
	flights   singleflight.Group
	onChange  func(Key)
	now       func() time.Time
	log       zerolog.Logger
}

// NewCache returns an empty Cache.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]*entry),
		now:     time.Now,
		log:     logging.Component("query"),
	}
}

// OnChange registers fn to be called after any entry changes. Passing nil
// removes the callback.
func (c *Cache) OnChange(fn func(Key)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

func (c *Cache) changed(key Key) {
	c.mu.RLock()
	fn := c.onChange
	c.mu.RUnlock()
	if fn != nil {
		fn(key)
	}
}

// entryLocked returns the entry for key, creating an idle one. c.mu must be
// held for writing.
func (c *Cache) entryLocked(key Key) *entry {
	id := key.id()
	if e, ok := c.entries[id]; ok {
		return e
	}
	c.nextEpoch++
	e := &entry{key: key.clone(), epoch: c.nextEpoch}
	c.entries[id] = e
	return e
}

func (c *Cache) register(key Key, staleTime time.Duration, fn fetchFunc, merge mergeFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entryLocked(key)
	e.staleTime = staleTime
	e.fetch = fn
	e.merge = merge
}

// Entry returns a copy of the entry stored under key.
func (c *Cache) Entry(key Key) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key.id()]
	if !ok {
		return Entry{Key: key.clone()}, false
	}
	return e.snapshot(), true
}

// Entries returns copies of every entry whose key starts with prefix.
func (c *Cache) Entries(prefix Key) []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Entry
	for _, e := range c.entries {
		if e.key.HasPrefix(prefix) {
			out = append(out, e.snapshot())
		}
	}
	return out
}

// fresh returns cached data for key if it is within its staleness window.
func (c *Cache) fresh(key Key) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key.id()]
	if !ok {
		return nil, false
	}
	snap := e.snapshot()
	if snap.Stale(c.now()) {
		return nil, false
	}
	return e.data, true
}

// Refetch runs the registered fetcher for key regardless of staleness.
func (c *Cache) Refetch(ctx context.Context, key Key) (any, error) {
	c.mu.Lock()
	e, ok := c.entries[key.id()]
	if !ok || e.fetch == nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("refetch %s: %w", key, ErrNoFetcher)
	}
	epoch, gen := e.epoch, e.gen
	fn := e.fetch
	c.mu.Unlock()

	flight := fmt.Sprintf("%s#%d.%d", key.id(), epoch, gen)
	v, err, shared := c.flights.Do(flight, func() (any, error) {
		c.begin(key, epoch)
		v, err := fn(ctx)
		c.settle(key, epoch, gen, v, err)
		return v, err
	})
	if shared {
		c.log.Debug().Str("key", key.String()).Msg("joined in-flight fetch")
	}
	return v, err
}

func (c *Cache) begin(key Key, epoch uint64) {
	c.mu.Lock()
	e, ok := c.entries[key.id()]
	if !ok || e.epoch != epoch {
		c.mu.Unlock()
		return
	}
	e.status = StatusLoading
	e.inflight++
	c.mu.Unlock()
	c.changed(key)
}

func (c *Cache) settle(key Key, epoch, gen uint64, v any, err error) {
	c.mu.Lock()
	e, ok := c.entries[key.id()]
	if !ok || e.epoch != epoch {
		c.mu.Unlock()
		c.log.Debug().Str("key", key.String()).Msg("discarding result for removed entry")
		return
	}
	e.inflight = max(e.inflight-1, 0)
	if gen != e.gen {
		c.mu.Unlock()
		c.log.Debug().Str("key", key.String()).Msg("discarding result fetched before invalidation")
		c.changed(key)
		return
	}
	if err != nil {
		e.status = StatusError
		e.err = err
	} else {
		if e.merge != nil && !e.updatedAt.IsZero() {
			v = e.merge(e.data, v)
		}
		e.status = StatusSuccess
		e.err = nil
		e.data = v
		e.updatedAt = c.now()
		e.invalidated = false
	}
	c.mu.Unlock()

	if err != nil {
		c.log.Debug().Err(err).Str("key", key.String()).Msg("fetch failed")
	}
	c.changed(key)
}

// SetData writes data under key directly, as a successful result.
func (c *Cache) SetData(key Key, data any) {
	c.mu.Lock()
	e := c.entryLocked(key)
	e.data = data
	e.status = StatusSuccess
	e.err = nil
	e.updatedAt = c.now()
	c.mu.Unlock()
	c.changed(key)
}

// modify replaces the data under key with fn's result while holding the
// lock, so no fetch can settle between the read and the write.
func (c *Cache) modify(key Key, fn func(data any, ok bool) any) {
	c.mu.Lock()
	e := c.entryLocked(key)
	e.data = fn(e.data, !e.updatedAt.IsZero())
	e.status = StatusSuccess
	e.err = nil
	e.updatedAt = c.now()
	c.mu.Unlock()
	c.changed(key)
}

// UpdatePrefix rewrites the data of every entry under prefix that holds
// data. fn returns the new value and whether to store it. It returns the
// number of entries rewritten.
func (c *Cache) UpdatePrefix(prefix Key, fn func(key Key, data any) (any, bool)) int {
	c.mu.Lock()
	var touched []Key
	for _, e := range c.entries {
		if !e.key.HasPrefix(prefix) || e.updatedAt.IsZero() {
			continue
		}
		next, ok := fn(e.key.clone(), e.data)
		if !ok {
			continue
		}
		e.data = next
		touched = append(touched, e.key.clone())
	}
	c.mu.Unlock()
	for _, key := range touched {
		c.changed(key)
	}
	return len(touched)
}

// Invalidate marks every entry under prefix stale and refetches the ones
// that have a fetcher. Refetch errors are joined.
func (c *Cache) Invalidate(ctx context.Context, prefix Key) error {
	c.mu.Lock()
	var keys []Key
	for _, e := range c.entries {
		if !e.key.HasPrefix(prefix) {
			continue
		}
		e.invalidated = true
		e.gen++
		if e.fetch != nil {
			keys = append(keys, e.key.clone())
		}
	}
	c.mu.Unlock()

	c.log.Debug().Str("prefix", prefix.String()).Int("refetch", len(keys)).Msg("invalidated")
	return c.refetchAll(ctx, keys)
}

// RevalidateStale refetches successful entries whose staleness window has
// elapsed. Entries in the error state are left for a manual retry. It
// returns how many entries were refetched.
func (c *Cache) RevalidateStale(ctx context.Context) (int, error) {
	now := c.now()
	c.mu.RLock()
	var keys []Key
	for _, e := range c.entries {
		if e.fetch == nil || e.inflight > 0 || e.status != StatusSuccess {
			continue
		}
		if e.snapshot().Stale(now) {
			keys = append(keys, e.key.clone())
		}
	}
	c.mu.RUnlock()
	return len(keys), c.refetchAll(ctx, keys)
}

func (c *Cache) refetchAll(ctx context.Context, keys []Key) error {
	if len(keys) == 0 {
		return nil
	}
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(refetchConcurrency)
	for _, key := range keys {
		g.Go(func() error {
			if _, err := c.Refetch(ctx, key); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Remove drops every entry under prefix. In-flight fetches for them are
// discarded when they settle.
func (c *Cache) Remove(prefix Key) {
	c.mu.Lock()
	var removed []Key
	for id, e := range c.entries {
		if e.key.HasPrefix(prefix) {
			delete(c.entries, id)
			removed = append(removed, e.key)
		}
	}
	c.mu.Unlock()
	for _, key := range removed {
		c.changed(key)
	}
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*entry)
	c.mu.Unlock()
	c.changed(nil)
}

// Package querycache is a small read-through cache keyed by query
// identity. Entries serve from memory inside their stale window, are
// refetched through their loader once stale, and are swept out after
// sitting unused past the GC window. Concurrent loads of the same key
// are collapsed into one fetch.
package querycache

import (
	"context"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultStaleTime = 30 * time.Second
	DefaultGCTime    = 5 * time.Minute

	// Transient loader failures are retried a bounded number of times
	// with linear backoff before the error is surfaced.
	defaultRetries      = 2
	defaultRetryBackoff = 200 * time.Millisecond
)

// Loader fetches ground truth for a cache key.
type Loader func(ctx context.Context) (interface{}, error)

type entry struct {
	value     interface{}
	fetchedAt time.Time
	lastUsed  time.Time
	done      chan struct{} // closed once the in-flight load finishes
}

type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry

	staleTime    time.Duration
	gcTime       time.Duration
	retries      int
	retryBackoff time.Duration

	now func() time.Time
}

type Option func(*Cache)

func WithStaleTime(d time.Duration) Option {
	return func(c *Cache) { c.staleTime = d }
}

func WithGCTime(d time.Duration) Option {
	return func(c *Cache) { c.gcTime = d }
}

func WithRetries(n int, backoff time.Duration) Option {
	return func(c *Cache) {
		c.retries = n
		c.retryBackoff = backoff
	}
}

func withClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func New(opts ...Option) *Cache {
	c := &Cache{
		entries:      make(map[string]*entry),
		staleTime:    DefaultStaleTime,
		gcTime:       DefaultGCTime,
		retries:      defaultRetries,
		retryBackoff: defaultRetryBackoff,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached value for key, fetching through loader when the
// entry is missing, stale, or invalidated. Callers racing on the same
// key share a single load.
func (c *Cache) Get(ctx context.Context, key string, loader Loader) (interface{}, error) {
	for {
		c.mu.Lock()
		e, ok := c.entries[key]
		now := c.now()

		if ok && e.done == nil && now.Sub(e.fetchedAt) < c.staleTime {
			e.lastUsed = now
			value := e.value
			c.mu.Unlock()
			return value, nil
		}

		if ok && e.done != nil {
			// Another caller is already loading this key.
			done := e.done
			c.mu.Unlock()
			select {
			case <-done:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		loading := &entry{done: make(chan struct{}), lastUsed: now}
		c.entries[key] = loading
		c.mu.Unlock()

		value, err := c.load(ctx, loader)
		done := loading.done

		c.mu.Lock()
		// Invalidate may have dropped the in-flight entry; only publish
		// the result if we are still the current one. Failures are never
		// published: the entry is dropped so the next Get reloads instead
		// of serving the error for the stale window.
		if cur, still := c.entries[key]; still && cur == loading {
			if err != nil {
				delete(c.entries, key)
			} else {
				loading.value = value
				loading.fetchedAt = c.now()
				loading.lastUsed = loading.fetchedAt
				loading.done = nil
			}
		}
		c.mu.Unlock()
		close(done)

		return value, err
	}
}

func (c *Cache) load(ctx context.Context, loader Loader) (interface{}, error) {
	var value interface{}
	var err error
	for attempt := 0; ; attempt++ {
		value, err = loader(ctx)
		if err == nil || attempt >= c.retries || ctx.Err() != nil {
			return value, err
		}
		log.WithError(err).WithField("attempt", attempt+1).Debug("Query load failed, retrying")
		select {
		case <-time.After(time.Duration(attempt+1) * c.retryBackoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Invalidate drops the entries for the given keys; the next Get refetches.
func (c *Cache) Invalidate(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.entries, key)
	}
}

// InvalidatePrefix drops every entry whose key starts with prefix, used
// when a change notification can only be resolved to a course.
func (c *Cache) InvalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
}

// Sweep removes settled entries unused for longer than the GC window and
// returns how many were dropped.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	dropped := 0
	for key, e := range c.entries {
		if e.done == nil && now.Sub(e.lastUsed) > c.gcTime {
			delete(c.entries, key)
			dropped++
		}
	}
	return dropped
}

// StartSweeper runs Sweep on an interval until ctx is cancelled.
func (c *Cache) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.Sweep()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Len reports the number of resident entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

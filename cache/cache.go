// Package cache memoizes analytical model responses by request content.
//
// Keys are derived from the request payload alone, so two requests that
// differ only in field order share an entry. Entries expire after a fixed
// TTL; expired entries are never returned and are replaced on the next
// store. Storage is a bounded LRU so the number of live entries stays
// capped.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tidwall/pretty"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTTL is how long an entry stays valid.
	DefaultTTL = time.Hour
	// DefaultSize is the maximum number of entries held.
	DefaultSize = 1024
)

// ErrInvalidPayload is returned by Key when the payload cannot be encoded.
var ErrInvalidPayload = errors.New("cache: payload cannot be encoded")

var canonical = &pretty.Options{SortKeys: true}

// Key returns the SHA-256 hex digest of payload's canonical JSON encoding:
// object keys sorted, insignificant whitespace removed.
func Key(payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	sum := sha256.Sum256(pretty.Ugly(pretty.PrettyOptions(raw, canonical)))
	return hex.EncodeToString(sum[:]), nil
}

type entry[V any] struct {
	value    V
	storedAt time.Time
}

type options struct {
	size int
	now  func() time.Time
}

// Option configures a Cache.
type Option func(*options)

// WithSize bounds the number of entries. Values below one are ignored.
func WithSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.size = n
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// Cache is a TTL cache safe for concurrent use.
type Cache[V any] struct {
	entries *lru.Cache[string, entry[V]]
	ttl     time.Duration
	now     func() time.Time
	group   singleflight.Group
}

// New creates a cache whose entries are valid for ttl. A non-positive ttl
// makes every lookup miss.
func New[V any](ttl time.Duration, opts ...Option) (*Cache[V], error) {
	o := options{size: DefaultSize, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	entries, err := lru.New[string, entry[V]](o.size)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	return &Cache[V]{entries: entries, ttl: ttl, now: o.now}, nil
}

// Get returns the value stored under key if it has not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	e, ok := c.entries.Get(key)
	if !ok || c.now().Sub(e.storedAt) >= c.ttl {
		return zero, false
	}
	return e.value, true
}

// Put stores value under key, replacing any previous entry.
func (c *Cache[V]) Put(key string, value V) {
	c.entries.Add(key, entry[V]{value: value, storedAt: c.now()})
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache[V]) Len() int {
	return c.entries.Len()
}

// Purge removes every entry.
func (c *Cache[V]) Purge() {
	c.entries.Purge()
}

// GetOrCompute returns the cached value for payload, or runs compute and
// stores its result. Concurrent calls for the same payload share one
// compute. A payload that cannot be keyed always computes and is never
// stored; a compute error is returned and nothing is stored. The boolean
// reports a cache hit.
func (c *Cache[V]) GetOrCompute(ctx context.Context, payload any, compute func(context.Context) (V, error)) (V, bool, error) {
	key, err := Key(payload)
	if err != nil {
		v, err := compute(ctx)
		return v, false, err
	}
	if v, ok := c.Get(key); ok {
		return v, true, nil
	}

	res, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.Put(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, false, err
	}
	v, _ := res.(V)
	return v, false, nil
}

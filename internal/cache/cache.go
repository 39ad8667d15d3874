// Package cache implements a bounded in-memory HTTP response cache: an
// LRU keyed by (method, rewritten URI, Host, Vary signature), a
// single-flight guard so concurrent misses share one origin fetch, and
// max-entries/max-response-size enforcement.
package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Entry is one cached response.
type Entry struct {
	Status    int
	Header    http.Header
	Body      []byte
	StoredAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the entry is past its Cache-Control-derived
// freshness lifetime as of now.
func (e *Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// Cache is a bounded LRU over Entry, with a single-flight guard per key.
type Cache struct {
	maxEntries      int
	maxResponseSize int64

	mu    sync.Mutex
	ll    *list.List
	items map[string]*list.Element

	group singleflight.Group
}

type node struct {
	key   string
	entry *Entry
}

func New(maxEntries int, maxResponseSize int64) *Cache {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	return &Cache{
		maxEntries:      maxEntries,
		maxResponseSize: maxResponseSize,
		ll:              list.New(),
		items:           map[string]*list.Element{},
	}
}

// Key builds the cache key from method, the rewritten path+query, Host, and
// the canonicalized values of the configured Vary headers.
func Key(method, pathAndQuery, host string, varyHeaders map[string]string) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(pathAndQuery))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToLower(host)))
	names := make([]string, 0, len(varyHeaders))
	for k := range varyHeaders {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		h.Write([]byte{0})
		h.Write([]byte(strings.ToLower(k)))
		h.Write([]byte{'='})
		h.Write([]byte(varyHeaders[k]))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached Entry for key, if present and not expired.
func (c *Cache) Get(key string, now time.Time) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	n := el.Value.(*node)
	if n.entry.Expired(now) {
		c.ll.Remove(el)
		delete(c.items, key)
		return nil, false
	}
	c.ll.MoveToFront(el)
	return n.entry, true
}

// Put inserts or replaces the entry for key, evicting the least-recently
// used entry if the cache is at capacity. A response body exceeding
// maxResponseSize is rejected silently rather than cached partially.
func (c *Cache) Put(key string, e *Entry) {
	if c.maxResponseSize > 0 && int64(len(e.Body)) > c.maxResponseSize {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*node).entry = e
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(&node{key: key, entry: e})
	c.items[key] = el

	for c.ll.Len() > c.maxEntries {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		c.ll.Remove(oldest)
		delete(c.items, oldest.Value.(*node).key)
	}
}

// Len returns the current entry count, enforced never to exceed
// maxEntries (testable invariant 3).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Fetch runs fn at most once per key concurrently (golang.org/x/sync's
// singleflight), caching a successful result. Concurrent callers for the
// same key block on the same in-flight fetch and share its result.
func (c *Cache) Fetch(key string, now time.Time, fn func() (*Entry, error)) (*Entry, error) {
	if e, ok := c.Get(key, now); ok {
		return e, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if e, ok := c.Get(key, now); ok {
			return e, nil
		}
		e, err := fn()
		if err != nil {
			return nil, err
		}
		c.Put(key, e)
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entry), nil
}

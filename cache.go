package quill

import (
	"bytes"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"
)

// CacheKey identifies a cached result: the final statement text and its
// driver-bound arguments.
type CacheKey struct {
	SQL  string
	Args []any
}

// Encode returns the binary msgpack form of the key. Arguments that
// msgpack cannot encode make the statement uncacheable.
func (k CacheKey) Encode() (string, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.EncodeArrayLen(2); err != nil {
		return "", err
	}
	if err := enc.EncodeString(k.SQL); err != nil {
		return "", err
	}
	if err := enc.Encode(k.Args); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// resultCache holds the results of row-returning statements of a session
// in insertion order. There is no eviction; Session.Clear starts over.
type resultCache struct {
	mu      sync.Mutex
	entries map[string]*Result
	order   []string
	flight  singleflight.Group
}

func newResultCache() *resultCache {
	return &resultCache{entries: make(map[string]*Result)}
}

func (c *resultCache) get(key string) (*Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[key]
	return r, ok
}

func (c *resultCache) put(key string, r *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		c.order = append(c.order, key)
	}
	c.entries[key] = r
}

// do returns the cached result for key, or loads it. Concurrent loads of
// the same key share one call of load.
func (c *resultCache) do(key string, load func() (*Result, error)) (*Result, error) {
	v, err, _ := c.flight.Do(key, func() (any, error) {
		if r, ok := c.get(key); ok {
			return r, nil
		}
		r, err := load()
		if err != nil {
			return nil, err
		}
		c.put(key, r)
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

// results returns a snapshot of all cached results in insertion order.
func (c *resultCache) results() []*Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Result, len(c.order))
	for i, key := range c.order {
		out[i] = c.entries[key]
	}
	return out
}

func (c *resultCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// Package imagecache is a size-bounded, least-recently-used store of decoded
// card images. It knows nothing about the network or decoding.
package imagecache

import (
	"container/list"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lehigh-university-libraries/stereocards/internal/imaging"
	"github.com/lehigh-university-libraries/stereocards/internal/metrics"
)

// DefaultLimitBytes is used when New is given a non-positive limit.
const DefaultLimitBytes = 100 * 1024 * 1024

// Entry is a cached bitmap with its accounting data.
type Entry struct {
	Key        string
	Bitmap     *imaging.Bitmap
	Size       int64
	LastAccess time.Time
}

// Cache holds bitmaps up to a total decoded size. All methods are safe for
// concurrent use and are serialized by a single mutex, so no caller can
// observe an eviction half way through.
type Cache struct {
	mu    sync.Mutex
	limit int64
	total int64
	ll    *list.List // front = least recently used
	idx   map[string]*list.Element

	metrics metrics.Interface
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a cache bounded to limitBytes of decoded pixel data.
func New(limitBytes int64, opts ...Option) *Cache {
	if limitBytes <= 0 {
		limitBytes = DefaultLimitBytes
	}
	c := &Cache{
		limit:   limitBytes,
		ll:      list.New(),
		idx:     make(map[string]*list.Element),
		metrics: metrics.Noop{},
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Insert stores bm under key, evicting least recently used entries until it
// fits. A bitmap larger than the whole limit is rejected and the cache is left
// untouched; Insert reports whether the bitmap was stored.
func (c *Cache) Insert(key string, bm *imaging.Bitmap) bool {
	if bm == nil {
		return false
	}
	size := bm.ByteSize()

	c.mu.Lock()
	defer c.mu.Unlock()

	if size > c.limit {
		c.metrics.IncRejected()
		c.logger.Warn("Bitmap exceeds cache limit, not cached",
			"key", key, "size", humanize.IBytes(uint64(size)), "limit", humanize.IBytes(uint64(c.limit)))
		return false
	}

	if el, ok := c.idx[key]; ok {
		c.removeElement(el)
	}

	evicted := 0
	for c.total+size > c.limit {
		front := c.ll.Front()
		if front == nil {
			break
		}
		victim := front.Value.(*Entry)
		c.removeElement(front)
		evicted++
		c.logger.Debug("Evicted cached bitmap", "key", victim.Key, "size", victim.Size)
	}

	e := &Entry{Key: key, Bitmap: bm, Size: size, LastAccess: c.now()}
	c.idx[key] = c.ll.PushBack(e)
	c.total += size

	c.metrics.IncInsert()
	c.metrics.AddEvicted(evicted)
	c.metrics.SetBytes(c.total)
	return true
}

// Get returns the bitmap stored under key and marks it most recently used.
func (c *Cache) Get(key string) (*imaging.Bitmap, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.idx[key]
	if !ok {
		c.metrics.IncMiss()
		return nil, false
	}
	e := el.Value.(*Entry)
	e.LastAccess = c.now()
	c.ll.MoveToBack(el)
	c.metrics.IncHit()
	return e.Bitmap, true
}

// Contains reports whether key is cached without touching its recency.
func (c *Cache) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.idx[key]
	return ok
}

// Clear drops every entry and resets the size accounting.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.idx = make(map[string]*list.Element)
	c.total = 0
	c.metrics.SetBytes(0)
}

// Len returns the number of cached bitmaps.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Stats describes the cache for diagnostics.
type Stats struct {
	Entries    int   `json:"entries"`
	Bytes      int64 `json:"bytes"`
	LimitBytes int64 `json:"limit_bytes"`
	// OldestAccess is when the next eviction victim was last used; zero
	// when the cache is empty.
	OldestAccess time.Time `json:"oldest_access"`
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Stats{Entries: c.ll.Len(), Bytes: c.total, LimitBytes: c.limit}
	if el := c.ll.Front(); el != nil {
		st.OldestAccess = el.Value.(*Entry).LastAccess
	}
	return st
}

// Keys returns cached keys from least to most recently used.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, c.ll.Len())
	for el := c.ll.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*Entry).Key)
	}
	return keys
}

// removeElement must be called with mu held.
func (c *Cache) removeElement(el *list.Element) {
	e := el.Value.(*Entry)
	c.ll.Remove(el)
	delete(c.idx, e.Key)
	c.total -= e.Size
}

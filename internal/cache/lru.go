package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/protype-ai/protype/internal/store"
)

// LRU is a fixed-capacity in-process cache with per-item TTL. Eviction is
// least-recently-used; expired items are dropped lazily on read.
type LRU struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	order    *list.List // front = most recent
	items    map[string]*list.Element

	now func() time.Time // test hook
}

type lruItem struct {
	key     string
	entry   store.Entry
	expires time.Time
}

// NewLRU creates a cache holding at most capacity entries, each living for
// ttl. capacity <= 0 defaults to 256, ttl <= 0 to five minutes.
func NewLRU(capacity int, ttl time.Duration) *LRU {
	if capacity <= 0 {
		capacity = 256
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &LRU{
		capacity: capacity,
		ttl:      ttl,
		order:    list.New(),
		items:    make(map[string]*list.Element),
		now:      time.Now,
	}
}

func (c *LRU) Get(_ context.Context, question string) (store.Entry, bool) {
	key := store.Normalize(question)

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return store.Entry{}, false
	}
	item := el.Value.(*lruItem)
	if c.now().After(item.expires) {
		c.removeLocked(el)
		return store.Entry{}, false
	}
	c.order.MoveToFront(el)
	return item.entry, true
}

func (c *LRU) Set(_ context.Context, entry store.Entry) {
	key := store.Normalize(entry.Question)
	if key == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		item := el.Value.(*lruItem)
		item.entry = entry
		item.expires = c.now().Add(c.ttl)
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&lruItem{key: key, entry: entry, expires: c.now().Add(c.ttl)})
	c.items[key] = el

	for c.order.Len() > c.capacity {
		c.removeLocked(c.order.Back())
	}
}

func (c *LRU) Invalidate(_ context.Context, question string) {
	key := store.Normalize(question)

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.removeLocked(el)
	}
}

// Len reports the number of live items, expired included until next read.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *LRU) removeLocked(el *list.Element) {
	item := el.Value.(*lruItem)
	c.order.Remove(el)
	delete(c.items, item.key)
}

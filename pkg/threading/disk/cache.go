package disk

import (
	"sync"

	"github.com/vnykmshr/uthread/pkg/threading/queue"
)

// DefaultCacheBlocks is the page cache capacity used by DefaultConfig users.
const DefaultCacheBlocks = 64

// PageCache holds recently read blocks. When full, the oldest inserted block
// is evicted.
type PageCache struct {
	capacity int

	mu     sync.Mutex
	pages  map[uint64][]byte
	order  queue.Queue[uint64]
	hits   uint64
	misses uint64
}

// NewPageCache creates a cache holding up to capacity blocks.
func NewPageCache(capacity int) *PageCache {
	if capacity <= 0 {
		capacity = DefaultCacheBlocks
	}
	return &PageCache{
		capacity: capacity,
		pages:    make(map[uint64][]byte, capacity),
	}
}

// Lookup returns a copy of block if it is cached.
func (c *PageCache) Lookup(block uint64) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, ok := c.pages[block]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	out := make([]byte, len(data))
	copy(out, data)
	return out, true
}

// Insert caches a copy of data as block.
func (c *PageCache) Insert(block uint64, data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.pages[block]; ok {
		c.pages[block] = buf
		return
	}
	for c.order.Len() >= c.capacity {
		oldest, _ := c.order.Dequeue()
		delete(c.pages, oldest)
	}
	c.pages[block] = buf
	c.order.Enqueue(block)
}

// Len returns the number of cached blocks.
func (c *PageCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pages)
}

// Stats returns the hit and miss counts.
func (c *PageCache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

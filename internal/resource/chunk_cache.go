package resource

import (
	"container/list"
	"sync"

	"go.uber.org/multierr"

	"expstore/internal/chunk"
)

// Chunk is one chunk pair opened for reading.
type Chunk struct {
	ID    uint32
	Data  *chunk.Reader
	Index *chunk.IndexReader
}

func (c *Chunk) Close() error {
	return multierr.Append(c.Index.Close(), c.Data.Close())
}

// ChunkCache keeps recently used chunk readers open.
// It limits the number of open file descriptors and mappings. Chunks handed
// out by GetOrLoad are pinned until Release and are never evicted while
// pinned, so the cache may briefly exceed its capacity.
type ChunkCache struct {
	mu       sync.Mutex
	capacity int
	lruList  *list.List
	items    map[uint32]*list.Element
	closed   bool
}

type cacheItem struct {
	key   uint32
	chunk *Chunk
	refs  int
	stale bool // dropped from items, closed on the last Release
}

func NewChunkCache(capacity int) *ChunkCache {
	if capacity <= 0 {
		capacity = 16
	}
	return &ChunkCache{
		capacity: capacity,
		lruList:  list.New(),
		items:    make(map[uint32]*list.Element),
	}
}

/* GetOrLoad */
func (c *ChunkCache) GetOrLoad(id uint32, loader func() (*Chunk, error)) (*Chunk, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, chunk.ErrClosed
	}

	// If the chunk is in the cache, move it to the front of the list.
	if elem, ok := c.items[id]; ok {
		c.lruList.MoveToFront(elem)
		item := elem.Value.(*cacheItem)
		item.refs++
		return item.chunk, nil
	}

	ch, err := loader()
	if err != nil {
		return nil, err
	}

	if c.lruList.Len() >= c.capacity {
		c.evict()
	}

	elem := c.lruList.PushFront(&cacheItem{key: id, chunk: ch, refs: 1})
	c.items[id] = elem
	return ch, nil
}

// Release unpins a chunk returned by GetOrLoad.
func (c *ChunkCache) Release(ch *Chunk) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for elem := c.lruList.Front(); elem != nil; elem = elem.Next() {
		item := elem.Value.(*cacheItem)
		if item.chunk != ch || item.refs == 0 {
			continue
		}
		item.refs--
		if item.stale && item.refs == 0 {
			c.lruList.Remove(elem)
			_ = item.chunk.Close()
		}
		break
	}
	for c.lruList.Len() > c.capacity && c.evict() {
	}
}

// Invalidate forgets chunk id so the next GetOrLoad loads it again. A pinned
// copy stays open for its holders until they release it.
func (c *ChunkCache) Invalidate(id uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[id]
	if !ok {
		return
	}
	delete(c.items, id)
	item := elem.Value.(*cacheItem)
	if item.refs > 0 {
		item.stale = true
		return
	}
	c.lruList.Remove(elem)
	_ = item.chunk.Close()
}

// Len is the number of open chunks.
func (c *ChunkCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lruList.Len()
}

// evict closes the least recently used unpinned chunk.
func (c *ChunkCache) evict() bool {
	for elem := c.lruList.Back(); elem != nil; elem = elem.Prev() {
		item := elem.Value.(*cacheItem)
		if item.refs > 0 {
			continue
		}
		c.lruList.Remove(elem)
		delete(c.items, item.key)
		_ = item.chunk.Close()
		return true
	}
	return false
}

func (c *ChunkCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	for e := c.lruList.Front(); e != nil; e = e.Next() {
		err = multierr.Append(err, e.Value.(*cacheItem).chunk.Close())
	}
	c.lruList.Init()
	c.items = make(map[uint32]*list.Element)
	c.closed = true
	return err
}

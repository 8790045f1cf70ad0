package einode

import (
	"container/list"
	"sync"
)

// ParentCacheCapacity bounds C6 (spec §6 constant).
const ParentCacheCapacity = 4096

// ParentLoc is a parent cache hint: the parent inode and the byte offset of the child's
// record within the parent's directory object.
type ParentLoc struct {
	Parent InodeNumber
	Offset int64
}

// ParentCache is C6: a bounded inode -> (parent, offset) mapping. Entries are hints: an
// absent or stale entry is correctness-preserving, never fatal (spec §3 invariant). Eviction
// policy is LRU (spec §9 open question, resolved in DESIGN.md) — every eviction is safe
// because every consumer re-validates by reading the hinted offset before trusting it.
type ParentCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[InodeNumber]*list.Element // value: *cacheEntry
	order    *list.List                    // front = most recently used
}

type cacheEntry struct {
	inode InodeNumber
	loc   ParentLoc
}

// NewParentCache constructs a cache with the given capacity (use ParentCacheCapacity for the
// spec's design-time constant).
func NewParentCache(capacity int) *ParentCache {
	return &ParentCache{
		capacity: capacity,
		entries:  make(map[InodeNumber]*list.Element, capacity),
		order:    list.New(),
	}
}

// Get returns the cached (parent, offset) for inode, if present.
func (c *ParentCache) Get(inode InodeNumber) (ParentLoc, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.entries[inode]
	if !ok {
		return ParentLoc{}, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*cacheEntry).loc, true
}

// Set inserts or updates the cached location for inode, evicting the least-recently-used
// entry if at capacity.
func (c *ParentCache) Set(inode InodeNumber, parent InodeNumber, offset int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[inode]; ok {
		elem.Value.(*cacheEntry).loc = ParentLoc{Parent: parent, Offset: offset}
		c.order.MoveToFront(elem)
		return
	}

	elem := c.order.PushFront(&cacheEntry{inode: inode, loc: ParentLoc{Parent: parent, Offset: offset}})
	c.entries[inode] = elem

	for len(c.entries) > c.capacity {
		back := c.order.Back()
		if back == nil {
			break
		}
		c.order.Remove(back)
		delete(c.entries, back.Value.(*cacheEntry).inode)
	}
}

// Delete invalidates any cached location for inode.
func (c *ParentCache) Delete(inode InodeNumber) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[inode]; ok {
		c.order.Remove(elem)
		delete(c.entries, inode)
	}
}

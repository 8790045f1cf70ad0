package inocache

import (
	"sort"
	"sync"

	"github.com/maesker/mdscore/pkg/einode"
	"github.com/maesker/mdscore/pkg/mdserrors"
)

const readDirPageSize = 256 // not used by CacheDir, which pages at einode.ReaddirRecordsPerMsg records per engine call

// Cache is C10: the top-level inode cache for one subtree root. It owns every ParentEntry
// (C9) plus the global by-inode -> parent-id index, and falls through to the directory
// engine (C7) on a cache miss.
//
// Locking discipline (spec §5): mu is held only long enough to acquire per-entry locks; a
// move that must hold two parent entries locks them in ascending parent-inode order, and mu
// is released only after both are held.
type Cache struct {
	root   einode.InodeNumber
	engine *einode.Engine

	mu           sync.Mutex
	byParent     map[einode.InodeNumber]*ParentEntry // GUARDED_BY(mu)
	parentOfInode map[einode.InodeNumber]einode.InodeNumber // GUARDED_BY(mu)
}

// New constructs an inode cache for subtree root, falling through to engine on miss.
func New(root einode.InodeNumber, engine *einode.Engine) *Cache {
	return &Cache{
		root:          root,
		engine:        engine,
		byParent:      make(map[einode.InodeNumber]*ParentEntry),
		parentOfInode: make(map[einode.InodeNumber]einode.InodeNumber),
	}
}

// entryFor returns (creating if absent) the parent entry for parent, without populating it.
func (c *Cache) entryFor(parent einode.InodeNumber) *ParentEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	pe, ok := c.byParent[parent]
	if !ok {
		pe = NewParentEntry()
		c.byParent[parent] = pe
	}
	return pe
}

// AddToCache populates parent's entry with one known child and, on first sight of parent,
// fully primes it from the engine (spec §4.10 "add_to_cache").
func (c *Cache) AddToCache(inode, parent einode.InodeNumber, rec einode.Record) error {
	c.mu.Lock()
	_, seen := c.byParent[parent]
	c.mu.Unlock()

	if !seen {
		if err := c.CacheDir(parent); err != nil {
			return err
		}
	}

	pe := c.entryFor(parent)
	if err := pe.AddEntry(rec); err != nil && !mdserrors.Is(err, mdserrors.ConcurrentConflict) {
		return err
	}
	// A ConcurrentConflict here means CacheDir (or a racing caller) already cached this
	// inode, which is the expected outcome when the directory was just primed from storage
	// that already contains the object this call is trying to add.
	c.mu.Lock()
	c.parentOfInode[inode] = parent
	c.mu.Unlock()
	return nil
}

// CacheDir fully populates parent's entry by paginating the engine's read_dir until the
// whole directory is drained, then marks it full_present.
func (c *Cache) CacheDir(parent einode.InodeNumber) error {
	pe := c.entryFor(parent)

	var offset int64
	for {
		recs, total, err := c.engine.ReadDir(c.root, parent, offset)
		if err != nil {
			return err
		}
		for _, rec := range recs {
			// Re-caching is idempotent: AddEntry rejects duplicates, which only occurs if a
			// concurrent add already populated this child; that's fine, skip it.
			if err := pe.AddEntry(rec); err != nil {
				continue
			}
			c.mu.Lock()
			c.parentOfInode[rec.Inode.Number] = parent
			c.mu.Unlock()
		}
		offset += int64(len(recs)) * int64(einode.RecordSize)
		if len(recs) == 0 || offset/int64(einode.RecordSize) >= total {
			break
		}
	}
	pe.SetFullPresent(true)
	return nil
}

// UpdateRequest names the inputs of update_inode_cache: either the parent is already known,
// or it must be discovered from the by-inode index (spec §4.10).
type UpdateRequest struct {
	Inode  einode.InodeNumber
	Parent einode.InodeNumber // 0 if unknown; resolved via the by-inode index
	Rec    einode.Record
	Op     UpdateOp
}

// UpdateInodeCache locates req's parent (from the request or the by-inode index),
// materializing the parent entry if needed, and applies the update. A request whose parent
// cannot be resolved at all is a fatal inconsistency (spec §4.10); callers must treat the
// returned ParentUnknown error as non-recoverable rather than surface it as an ordinary
// not-found to the RPC layer.
func (c *Cache) UpdateInodeCache(req UpdateRequest) error {
	parent := req.Parent
	if parent == einode.InvalidInode {
		c.mu.Lock()
		parent = c.parentOfInode[req.Inode]
		c.mu.Unlock()
	}
	if parent == einode.InvalidInode {
		return mdserrors.New(mdserrors.ParentUnknown, "update_inode_cache: no known parent for inode %d", req.Inode)
	}

	pe := c.entryFor(parent)
	pe.UpdateEntry(req.Rec, req.Op)

	c.mu.Lock()
	if req.Op == OpDelete {
		delete(c.parentOfInode, req.Inode)
	} else {
		c.parentOfInode[req.Inode] = parent
	}
	c.mu.Unlock()
	return nil
}

// GetEinode resolves inode's cached state, falling back to the engine when the owning
// parent entry is not full_present (spec §4.10 "get_einode").
func (c *Cache) GetEinode(inode einode.InodeNumber) (LookupResult, einode.Record, error) {
	c.mu.Lock()
	parent, known := c.parentOfInode[inode]
	c.mu.Unlock()

	if !known {
		return ResultNotPresent, einode.Record{}, nil
	}

	pe := c.entryFor(parent)
	if res, rec := pe.lookupByInode(inode); res != ResultNotPresent {
		return res, rec, nil
	}
	if pe.FullPresent() {
		return ResultNotPresent, einode.Record{}, nil
	}

	rec, err := c.engine.LookupByInodeIn(c.root, parent, inode)
	if err != nil {
		if mdserrors.Is(err, mdserrors.NotFound) {
			return ResultNotPresent, einode.Record{}, nil
		}
		return ResultNotPresent, einode.Record{}, err
	}
	_ = pe.AddEntry(rec)
	return ResultPresent, rec, nil
}

// lookupByInode is a small helper for GetEinode; it is not part of C9's external surface.
func (pe *ParentEntry) lookupByInode(inode einode.InodeNumber) (LookupResult, einode.Record) {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	if c, ok := pe.live[inode]; ok {
		return ResultPresent, c.rec
	}
	if c, ok := pe.trash[inode]; ok {
		return ResultDeleted, c.rec
	}
	return ResultNotPresent, einode.Record{}
}

// LookupByObjectName resolves name within parent, falling through to the engine when the
// parent entry is not full_present (spec §4.10).
func (c *Cache) LookupByObjectName(name string, parent einode.InodeNumber) (LookupResult, einode.Record, error) {
	pe := c.entryFor(parent)
	if res, rec := pe.LookupByObjectName(name); res != ResultNotPresent {
		return res, rec, nil
	}
	if pe.FullPresent() {
		return ResultNotPresent, einode.Record{}, nil
	}

	rec, err := c.engine.LookupByName(c.root, parent, name)
	if err != nil {
		if mdserrors.Is(err, mdserrors.NotFound) {
			return ResultNotPresent, einode.Record{}, nil
		}
		return ResultNotPresent, einode.Record{}, err
	}
	_ = pe.AddEntry(rec)
	c.mu.Lock()
	c.parentOfInode[rec.Inode.Number] = parent
	c.mu.Unlock()
	return ResultPresent, rec, nil
}

// ReadDir returns parent's cached page starting at offset if full_present; otherwise it
// reports a miss and the caller falls back to the engine directly (spec §4.10).
func (c *Cache) ReadDir(parent einode.InodeNumber, offset, limit int) ([]einode.Record, int, bool) {
	pe := c.entryFor(parent)
	if !pe.FullPresent() {
		return nil, 0, false
	}
	recs, total := pe.ReadDir(offset, limit)
	return recs, total, true
}

// MoveInode orchestrates both parent entries under their locks in ascending parent-inode
// order, validates no name collision at the target, and updates the by-inode parent index
// (spec §4.10).
func (c *Cache) MoveInode(inode, oldParent, newParent einode.InodeNumber, newName string) error {
	oldPE := c.entryFor(oldParent)
	newPE := c.entryFor(newParent)

	if oldParent == newParent {
		// Same-directory rename: a single entry lock suffices.
		if err := oldPE.Rename(inode, newName); err != nil {
			return err
		}
		return nil
	}

	lockFirst, lockSecond := oldPE, newPE
	if newParent < oldParent {
		lockFirst, lockSecond = newPE, oldPE
	}
	lockFirst.mu.Lock()
	if lockFirst != lockSecond {
		lockSecond.mu.Lock()
	}
	defer lockFirst.mu.Unlock()
	if lockFirst != lockSecond {
		defer lockSecond.mu.Unlock()
	}

	if newPE.fullPresent {
		if _, ok := newPE.byName[newName]; ok {
			return mdserrors.New(mdserrors.ConcurrentConflict, "name %q already exists under parent %d", newName, newParent)
		}
	} else if _, err := c.engine.LookupByName(c.root, newParent, newName); err == nil {
		return mdserrors.New(mdserrors.ConcurrentConflict, "name %q already exists under parent %d", newName, newParent)
	}

	oc, ok := oldPE.live[inode]
	if !ok {
		return mdserrors.New(mdserrors.NotFound, "inode %d not live under old parent %d", inode, oldParent)
	}
	rec := oc.rec
	delete(oldPE.live, inode)
	delete(oldPE.byName, oc.rec.Name)
	oldPE.removeFromOrder(inode)
	oldPE.trash[inode] = oc
	oldPE.dirty = true

	rec.Name = newName
	newPE.live[inode] = &child{rec: rec, createdNew: true, oldParent: oldParent}
	newPE.byName[newName] = inode
	newPE.appendOrder(inode)
	newPE.dirty = true

	c.mu.Lock()
	c.parentOfInode[inode] = newParent
	c.mu.Unlock()
	return nil
}

// GetDirtyMap returns a snapshot of every parent entry with unflushed mutations, keyed by
// parent inode, for the write-back driver to drain (spec §4.10).
func (c *Cache) GetDirtyMap() map[einode.InodeNumber]*ParentEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[einode.InodeNumber]*ParentEntry)
	keys := make([]einode.InodeNumber, 0, len(c.byParent))
	for k := range c.byParent {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, k := range keys {
		if c.byParent[k].IsDirty() {
			out[k] = c.byParent[k]
		}
	}
	return out
}

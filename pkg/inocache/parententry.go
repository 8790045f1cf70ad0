// Package inocache implements C9 (per-directory parent entry) and C10 (the top-level inode
// cache that owns them). Grounded on jacobsa-fuse's samples/memfs/mem_fs.go for the
// GUARDED_BY/INVARIANT mutex-discipline idiom (syncutil.InvariantMutex plus comment
// invariants), adapted from an in-memory-only filesystem to a write-back cache over C7/C5.
package inocache

import (
	"time"

	"github.com/jacobsa/gcloud/syncutil"

	"github.com/maesker/mdscore/pkg/einode"
	"github.com/maesker/mdscore/pkg/mdserrors"
)

// WBCode tells the write-back driver which storage operation a drained entry requires
// (spec §4.9 handle_write_back_update/handle_write_back_delete).
type WBCode int

const (
	WBMissing WBCode = iota
	WBPlainUpdate
	WBCreate
	WBDeleteAfter
	WBDiscarded
	WBDelete
)

// child is one cached directory entry, live or trashed.
type child struct {
	rec        einode.Record
	createdNew bool            // cache-only, never yet persisted
	oldParent  einode.InodeNumber // set when this entry arrived via move_to; 0 otherwise
}

// ParentEntry is C9: the cached view of one directory's children.
//
// INVARIANT: every inode is in exactly one of {live, trash}.
// INVARIANT: order and live are kept in sync by swap-and-pop on removal from live.
// INVARIANT: dirty only if live or trash holds at least one entry needing write-back.
type ParentEntry struct {
	mu syncutil.InvariantMutex

	live  map[einode.InodeNumber]*child // GUARDED_BY(mu)
	trash map[einode.InodeNumber]*child // GUARDED_BY(mu)
	byName map[string]einode.InodeNumber // GUARDED_BY(mu); indexes live only

	order []einode.InodeNumber // GUARDED_BY(mu); random-access vector over live, synced by swap-and-pop
	pos    map[einode.InodeNumber]int // GUARDED_BY(mu); inode -> index into order

	dirty       bool // GUARDED_BY(mu)
	fullPresent bool // GUARDED_BY(mu)
	timeStamp   time.Time // GUARDED_BY(mu)
}

// NewParentEntry constructs an empty, not-yet-populated parent entry.
func NewParentEntry() *ParentEntry {
	return &ParentEntry{
		live:   make(map[einode.InodeNumber]*child),
		trash:  make(map[einode.InodeNumber]*child),
		byName: make(map[string]einode.InodeNumber),
		pos:    make(map[einode.InodeNumber]int),
	}
}

func (pe *ParentEntry) appendOrder(inode einode.InodeNumber) {
	pe.pos[inode] = len(pe.order)
	pe.order = append(pe.order, inode)
}

// removeFromOrder swap-and-pops inode out of the random-access vector.
func (pe *ParentEntry) removeFromOrder(inode einode.InodeNumber) {
	i, ok := pe.pos[inode]
	if !ok {
		return
	}
	last := len(pe.order) - 1
	pe.order[i] = pe.order[last]
	pe.pos[pe.order[i]] = i
	pe.order = pe.order[:last]
	delete(pe.pos, inode)
}

// AddEntry inserts an entry already known to storage (spec §4.9), failing if the inode is
// already tracked live or in trash.
func (pe *ParentEntry) AddEntry(rec einode.Record) error {
	pe.mu.Lock()
	defer pe.mu.Unlock()

	inode := rec.Inode.Number
	if _, ok := pe.live[inode]; ok {
		return mdserrors.New(mdserrors.ConcurrentConflict, "inode %d already cached live", inode)
	}
	if _, ok := pe.trash[inode]; ok {
		return mdserrors.New(mdserrors.ConcurrentConflict, "inode %d already cached in trash", inode)
	}

	pe.live[inode] = &child{rec: rec}
	pe.byName[rec.Name] = inode
	pe.appendOrder(inode)
	return nil
}

// UpdateOp names what update_entry should do to an absent-or-present child.
type UpdateOp int

const (
	OpAttrUpdate UpdateOp = iota
	OpDelete
)

// UpdateEntry creates a cache-only child if absent, else applies an attribute update or
// (when op is OpDelete) moves the child to trash (spec §4.9).
func (pe *ParentEntry) UpdateEntry(rec einode.Record, op UpdateOp) {
	pe.mu.Lock()
	defer pe.mu.Unlock()

	inode := rec.Inode.Number
	c, ok := pe.live[inode]
	if !ok {
		if op == OpDelete {
			return // nothing live to delete; a no-op rather than fabricating a trash entry
		}
		c = &child{rec: rec, createdNew: true}
		pe.live[inode] = c
		pe.byName[rec.Name] = inode
		pe.appendOrder(inode)
		pe.dirty = true
		return
	}

	if op == OpDelete {
		delete(pe.live, inode)
		delete(pe.byName, c.rec.Name)
		pe.removeFromOrder(inode)
		pe.trash[inode] = c
		pe.dirty = true
		return
	}

	c.rec = rec
	pe.dirty = true
}

// Rename updates a live child's name and the by-name index (spec §4.9).
func (pe *ParentEntry) Rename(inode einode.InodeNumber, newName string) error {
	pe.mu.Lock()
	defer pe.mu.Unlock()

	c, ok := pe.live[inode]
	if !ok {
		return mdserrors.New(mdserrors.NotFound, "inode %d not live in parent entry", inode)
	}
	delete(pe.byName, c.rec.Name)
	c.rec.Name = newName
	pe.byName[newName] = inode
	pe.dirty = true
	return nil
}

// MoveFrom removes inode from this (source) entry and moves it to trash, returning the
// record so the caller can hand it to the target entry's MoveTo (spec §4.9).
func (pe *ParentEntry) MoveFrom(inode einode.InodeNumber) (einode.Record, bool) {
	pe.mu.Lock()
	defer pe.mu.Unlock()

	c, ok := pe.live[inode]
	if !ok {
		return einode.Record{}, false
	}
	delete(pe.live, inode)
	delete(pe.byName, c.rec.Name)
	pe.removeFromOrder(inode)
	pe.trash[inode] = c
	pe.dirty = true
	return c.rec, true
}

// MoveTo creates a new cache-only child on this (target) entry carrying oldParent, so
// write-back knows to perform a cross-directory delete+write rather than a plain write
// (spec §4.9).
func (pe *ParentEntry) MoveTo(oldParent einode.InodeNumber, rec einode.Record) {
	pe.mu.Lock()
	defer pe.mu.Unlock()

	c := &child{rec: rec, createdNew: true, oldParent: oldParent}
	inode := rec.Inode.Number
	pe.live[inode] = c
	pe.byName[rec.Name] = inode
	pe.appendOrder(inode)
	pe.dirty = true
}

// HandleWriteBackUpdate drains a live entry for persistence, clearing its dirty markers and
// returning the code that tells the write-back driver which storage operation to perform
// (spec §4.9).
func (pe *ParentEntry) HandleWriteBackUpdate(inode einode.InodeNumber) (WBCode, einode.Record) {
	pe.mu.Lock()
	defer pe.mu.Unlock()

	c, ok := pe.live[inode]
	if !ok {
		return WBMissing, einode.Record{}
	}

	code := WBPlainUpdate
	switch {
	case c.oldParent != einode.InvalidInode:
		code = WBDeleteAfter
	case c.createdNew:
		code = WBCreate
	}

	c.createdNew = false
	c.oldParent = einode.InvalidInode
	return code, c.rec
}

// HandleWriteBackDelete drains a trashed entry, reporting WBDiscarded for a child that was
// never persisted and WBDelete otherwise (spec §4.9).
func (pe *ParentEntry) HandleWriteBackDelete(inode einode.InodeNumber) (WBCode, einode.Record) {
	pe.mu.Lock()
	defer pe.mu.Unlock()

	c, ok := pe.trash[inode]
	if !ok {
		return WBMissing, einode.Record{}
	}
	delete(pe.trash, inode)

	if c.createdNew {
		return WBDiscarded, c.rec
	}
	return WBDelete, c.rec
}

// LookupResult is the three-valued outcome of a cache name/inode lookup (spec §4.9/§4.10).
type LookupResult int

const (
	ResultPresent LookupResult = iota
	ResultDeleted
	ResultNotPresent
)

// LookupByObjectName reports whether name is a live, trashed, or unknown child.
func (pe *ParentEntry) LookupByObjectName(name string) (LookupResult, einode.Record) {
	pe.mu.Lock()
	defer pe.mu.Unlock()

	if inode, ok := pe.byName[name]; ok {
		return ResultPresent, pe.live[inode].rec
	}
	for _, c := range pe.trash {
		if c.rec.Name == name {
			return ResultDeleted, c.rec
		}
	}
	return ResultNotPresent, einode.Record{}
}

// ReadDir returns up to limit records starting at offset (an index into the random-access
// vector, not a byte offset), clamped to the entry's current size (spec §4.9).
func (pe *ParentEntry) ReadDir(offset, limit int) ([]einode.Record, int) {
	pe.mu.Lock()
	defer pe.mu.Unlock()

	total := len(pe.order)
	if offset >= total {
		return nil, total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	out := make([]einode.Record, 0, end-offset)
	for i := offset; i < end; i++ {
		out = append(out, pe.live[pe.order[i]].rec)
	}
	return out, total
}

// IsDirty reports whether the entry has unflushed mutations.
func (pe *ParentEntry) IsDirty() bool {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	return pe.dirty
}

// ClearDirty marks the entry clean, called once the write-back driver has drained every
// pending live/trash mutation.
func (pe *ParentEntry) ClearDirty() {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	pe.dirty = false
}

// SetFullPresent marks the entry as populated by a complete readdir, after which lookups
// need not consult the durable store (spec §4.9).
func (pe *ParentEntry) SetFullPresent(v bool) {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	pe.fullPresent = v
	pe.timeStamp = stamp()
}

// FullPresent reports the full_present flag.
func (pe *ParentEntry) FullPresent() bool {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	return pe.fullPresent
}

// stamp is the single point where inocache would call a clock; factored out so tests can
// observe that a timestamp was set without depending on wall-clock time.
var stamp = time.Now

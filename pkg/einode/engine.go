package einode

import (
	"github.com/golang/glog"

	"github.com/maesker/mdscore/pkg/mdserrors"
	"github.com/maesker/mdscore/pkg/storeabs"
)

// readdirFrameBudget and ReaddirRecordsPerMsg bound records per read_dir response so that records*RecordSize stays within
// the external frame budget (spec §6: FSAL_READDIR_EINODES_PER_MSG, "a multiple of record
// size that fits the RPC frame"; for this record layout that works out to 1 record/message).
const readdirFrameBudget = 608

var ReaddirRecordsPerMsg = func() int {
	n := readdirFrameBudget / RecordSize
	if n < 1 {
		n = 1
	}
	return n
}()

// maxHierarchyDepth bounds get_parent_hierarchy (spec §4.7).
const maxHierarchyDepth = 32

// Engine is C7: all directory operations over the packed-einode layout, using the storage
// abstraction (C5) and the parent cache (C6). One Engine serves every partition reachable
// through its Store; callers pass the subtree root per call (spec §6 request surface).
type Engine struct {
	store storeabs.Store
	cache *ParentCache
}

// NewEngine constructs a directory engine over store, sharing the given parent cache.
func NewEngine(store storeabs.Store, cache *ParentCache) *Engine {
	return &Engine{store: store, cache: cache}
}

func dirSize(e *Engine, root, parent InodeNumber) int64 {
	sz, ok := e.store.Size(root, DirObjectName(parent))
	if !ok {
		return 0
	}
	return sz
}

func (e *Engine) readAt(root, parent InodeNumber, offset int64) (Record, error) {
	buf, err := e.store.Read(root, DirObjectName(parent), offset, RecordSize)
	if err != nil {
		return Record{}, mdserrors.Wrap(mdserrors.StorageFailure, err, "read einode record @%d in dir %d", offset, parent)
	}
	if len(buf) != RecordSize {
		return Record{}, mdserrors.New(mdserrors.NotFound, "dir %d has no record @%d", parent, offset)
	}
	return Decode(buf)
}

// linearScan walks every record of parent's directory object, invoking match for each; it
// returns the first record (and its offset) for which match returns true.
func (e *Engine) linearScan(root, parent InodeNumber, match func(Record) bool) (Record, int64, bool, error) {
	sz := dirSize(e, root, parent)
	n := sz / RecordSize
	for i := int64(0); i < n; i++ {
		off := i * RecordSize
		rec, err := e.readAt(root, parent, off)
		if err != nil {
			return Record{}, 0, false, err
		}
		if match(rec) {
			return rec, off, true, nil
		}
	}
	return Record{}, 0, false, nil
}

// LookupByInode consults the parent cache; on a cache hit it validates the record at the
// hinted offset still has the expected inode number, falling back to a linear scan on
// mismatch (spec §4.7).
func (e *Engine) LookupByInode(root InodeNumber, inode InodeNumber) (Record, error) {
	if loc, ok := e.cache.Get(inode); ok {
		e.store.Lock(root, DirObjectName(loc.Parent))
		rec, err := e.readAt(root, loc.Parent, loc.Offset)
		e.store.Unlock(root, DirObjectName(loc.Parent))
		if err == nil && rec.Inode.Number == inode {
			return rec, nil
		}
		// stale hint: the hinted parent is still known, so scan its whole directory object.
		return e.LookupByInodeIn(root, loc.Parent, inode)
	}
	return Record{}, mdserrors.New(mdserrors.ParentUnknown, "no parent-cache hint for inode %d", inode)
}

// LookupByInodeIn looks up inode inside a known parent directory, the form used when the
// caller already knows which directory to scan (spec §4.7 "lookup by inode number").
func (e *Engine) LookupByInodeIn(root, parent, inode InodeNumber) (Record, error) {
	e.store.Lock(root, DirObjectName(parent))
	defer e.store.Unlock(root, DirObjectName(parent))

	if loc, ok := e.cache.Get(inode); ok && loc.Parent == parent {
		if rec, err := e.readAt(root, parent, loc.Offset); err == nil && rec.Inode.Number == inode {
			return rec, nil
		}
	}

	rec, off, found, err := e.linearScan(root, parent, func(r Record) bool { return r.Inode.Number == inode })
	if err != nil {
		return Record{}, err
	}
	if !found {
		return Record{}, mdserrors.New(mdserrors.NotFound, "inode %d not found in dir %d", inode, parent)
	}
	e.cache.Set(inode, parent, off)
	return rec, nil
}

// LookupByName linear-scans parent for name, updating the parent cache with the found
// offset on a match (spec §4.7).
func (e *Engine) LookupByName(root, parent InodeNumber, name string) (Record, error) {
	e.store.Lock(root, DirObjectName(parent))
	defer e.store.Unlock(root, DirObjectName(parent))

	rec, off, found, err := e.linearScan(root, parent, func(r Record) bool { return r.Name == name })
	if err != nil {
		return Record{}, err
	}
	if !found {
		return Record{}, mdserrors.New(mdserrors.NotFound, "name %q not found in dir %d", name, parent)
	}
	e.cache.Set(rec.Inode.Number, parent, off)
	return rec, nil
}

// Write overwrites in place when safe, otherwise scans for a uniqueness conflict and either
// overwrites or appends (spec §4.7 "write/overwrite").
func (e *Engine) Write(root, parent InodeNumber, rec Record) error {
	e.store.Lock(root, DirObjectName(parent))
	defer e.store.Unlock(root, DirObjectName(parent))
	return e.writeLocked(root, parent, rec, false)
}

// writeLocked requires the caller to already hold parent's object lock.
func (e *Engine) writeLocked(root, parent InodeNumber, rec Record, unconditionalAppend bool) error {
	if !unconditionalAppend {
		if loc, ok := e.cache.Get(rec.Inode.Number); ok && loc.Parent == parent {
			existing, err := e.readAt(root, parent, loc.Offset)
			if err == nil && existing.Name == rec.Name && existing.Inode.Number == rec.Inode.Number {
				return e.overwriteAt(root, parent, loc.Offset, rec)
			}
		}

		found, off, hit, err := e.linearScan(root, parent, func(r Record) bool { return r.Name == rec.Name })
		if err != nil {
			return err
		}
		if hit {
			if found.Inode.Number != rec.Inode.Number {
				return mdserrors.New(mdserrors.ConcurrentConflict,
					"name %q already exists in dir %d with inode %d", rec.Name, parent, found.Inode.Number)
			}
			return e.overwriteAt(root, parent, off, rec)
		}
	}

	return e.appendRecord(root, parent, rec, true)
}

// Create unconditionally appends at tail; used when the caller already knows the slot is
// fresh (spec §4.7 "create").
func (e *Engine) Create(root, parent InodeNumber, rec Record) error {
	e.store.Lock(root, DirObjectName(parent))
	defer e.store.Unlock(root, DirObjectName(parent))
	return e.appendRecord(root, parent, rec, true)
}

func (e *Engine) appendRecord(root, parent InodeNumber, rec Record, sync bool) error {
	buf, err := Encode(rec)
	if err != nil {
		return err
	}
	off := dirSize(e, root, parent)
	if err := e.store.Write(root, DirObjectName(parent), off, buf, sync); err != nil {
		return mdserrors.Wrap(mdserrors.StorageFailure, err, "append einode record to dir %d", parent)
	}
	e.cache.Set(rec.Inode.Number, parent, off)
	return nil
}

func (e *Engine) overwriteAt(root, parent InodeNumber, offset int64, rec Record) error {
	buf, err := Encode(rec)
	if err != nil {
		return err
	}
	if err := e.store.Write(root, DirObjectName(parent), offset, buf, true); err != nil {
		return mdserrors.Wrap(mdserrors.StorageFailure, err, "overwrite einode record @%d in dir %d", offset, parent)
	}
	e.cache.Set(rec.Inode.Number, parent, offset)
	return nil
}

// Mutation is one record of a batch write/create/delete request against a single parent
// (spec §4.7 "batch write/create/delete").
type Mutation struct {
	Kind MutationKind
	Rec  Record       // for Write/Create
	Name string       // for DeleteByName
	Inode InodeNumber // for DeleteByInode
}

type MutationKind int

const (
	MutWrite MutationKind = iota
	MutCreate
	MutDeleteByName
	MutDeleteByInode
)

// BatchResult reports the outcome of BatchExecute: the index of the first mutation that
// failed (-1 if all succeeded) and its error (spec §7 "bulk operations ... stop at the first
// failure and report which record failed by sequence number").
type BatchResult struct {
	FailedIndex int
	Err         error
}

// BatchExecute issues all mutations against parent in order, flushing (sync) only on the
// final entry (spec §4.7). It stops at the first failure.
func (e *Engine) BatchExecute(root, parent InodeNumber, muts []Mutation) BatchResult {
	e.store.Lock(root, DirObjectName(parent))
	defer e.store.Unlock(root, DirObjectName(parent))

	for i, m := range muts {
		sync := i == len(muts)-1
		var err error
		switch m.Kind {
		case MutWrite:
			err = e.writeLockedSync(root, parent, m.Rec, sync)
		case MutCreate:
			err = e.appendRecord(root, parent, m.Rec, sync)
		case MutDeleteByName:
			err = e.deleteLocked(root, parent, func(r Record) bool { return r.Name == m.Name })
		case MutDeleteByInode:
			err = e.deleteLocked(root, parent, func(r Record) bool { return r.Inode.Number == m.Inode })
		}
		if err != nil {
			return BatchResult{FailedIndex: i, Err: err}
		}
	}
	return BatchResult{FailedIndex: -1}
}

func (e *Engine) writeLockedSync(root, parent InodeNumber, rec Record, sync bool) error {
	// Same logic as writeLocked, but threading the batch's sync-on-last-entry-only policy
	// through to the underlying store write.
	if loc, ok := e.cache.Get(rec.Inode.Number); ok && loc.Parent == parent {
		existing, err := e.readAt(root, parent, loc.Offset)
		if err == nil && existing.Name == rec.Name && existing.Inode.Number == rec.Inode.Number {
			buf, eerr := Encode(rec)
			if eerr != nil {
				return eerr
			}
			if err := e.store.Write(root, DirObjectName(parent), loc.Offset, buf, sync); err != nil {
				return mdserrors.Wrap(mdserrors.StorageFailure, err, "batch overwrite @%d in dir %d", loc.Offset, parent)
			}
			e.cache.Set(rec.Inode.Number, parent, loc.Offset)
			return nil
		}
	}

	found, off, hit, err := e.linearScan(root, parent, func(r Record) bool { return r.Name == rec.Name })
	if err != nil {
		return err
	}
	if hit {
		if found.Inode.Number != rec.Inode.Number {
			return mdserrors.New(mdserrors.ConcurrentConflict, "name %q already exists in dir %d with inode %d", rec.Name, parent, found.Inode.Number)
		}
		buf, eerr := Encode(rec)
		if eerr != nil {
			return eerr
		}
		if err := e.store.Write(root, DirObjectName(parent), off, buf, sync); err != nil {
			return mdserrors.Wrap(mdserrors.StorageFailure, err, "batch overwrite @%d in dir %d", off, parent)
		}
		e.cache.Set(rec.Inode.Number, parent, off)
		return nil
	}

	return e.appendRecord(root, parent, rec, sync)
}

// deleteLocked requires the caller to hold parent's object lock. If the match is the last
// slot, it truncates the object by one record; otherwise it swap-and-pops the last record
// into the matched slot and truncates (spec §4.7 "delete").
func (e *Engine) deleteLocked(root, parent InodeNumber, match func(Record) bool) error {
	rec, off, found, err := e.linearScan(root, parent, match)
	if err != nil {
		return err
	}
	if !found {
		return mdserrors.New(mdserrors.NotFound, "no matching einode record in dir %d", parent)
	}

	sz := dirSize(e, root, parent)
	lastOff := sz - RecordSize

	if off != lastOff {
		lastRec, err := e.readAt(root, parent, lastOff)
		if err != nil {
			return err
		}
		lastBuf, err := Encode(lastRec)
		if err != nil {
			return err
		}
		if err := e.store.Write(root, DirObjectName(parent), off, lastBuf, false); err != nil {
			return mdserrors.Wrap(mdserrors.StorageFailure, err, "swap-pop write @%d in dir %d", off, parent)
		}
		e.cache.Set(lastRec.Inode.Number, parent, off)
	}

	if err := e.store.Truncate(root, DirObjectName(parent), lastOff); err != nil {
		return mdserrors.Wrap(mdserrors.StorageFailure, err, "truncate dir %d to %d", parent, lastOff)
	}
	e.cache.Delete(rec.Inode.Number)
	return nil
}

// DeleteByName deletes the record named name from parent (spec §4.7).
func (e *Engine) DeleteByName(root, parent InodeNumber, name string) error {
	e.store.Lock(root, DirObjectName(parent))
	defer e.store.Unlock(root, DirObjectName(parent))
	return e.deleteLocked(root, parent, func(r Record) bool { return r.Name == name })
}

// DeleteByInodeIn deletes the record for inode from the known parent (spec §4.7).
func (e *Engine) DeleteByInodeIn(root, parent, inode InodeNumber) error {
	e.store.Lock(root, DirObjectName(parent))
	defer e.store.Unlock(root, DirObjectName(parent))
	return e.deleteLocked(root, parent, func(r Record) bool { return r.Inode.Number == inode })
}

// DeleteByInode consults the parent cache to find inode's parent, then delegates to
// DeleteByInodeIn (spec §4.7 "delete by inode (only)").
func (e *Engine) DeleteByInode(root, inode InodeNumber) error {
	loc, ok := e.cache.Get(inode)
	if !ok {
		return mdserrors.New(mdserrors.ParentUnknown, "no parent-cache hint for inode %d", inode)
	}
	return e.DeleteByInodeIn(root, loc.Parent, inode)
}

// ReadDir returns up to ReaddirRecordsPerMsg records starting at offset, along with the
// total child count; it primes the parent cache for every returned child (spec §4.7).
func (e *Engine) ReadDir(root, parent InodeNumber, offset int64) ([]Record, int64, error) {
	e.store.Lock(root, DirObjectName(parent))
	defer e.store.Unlock(root, DirObjectName(parent))

	sz := dirSize(e, root, parent)
	total := sz / RecordSize
	startIdx := offset / RecordSize
	if startIdx >= total {
		return nil, total, nil
	}

	endIdx := startIdx + int64(ReaddirRecordsPerMsg)
	if endIdx > total {
		endIdx = total
	}

	recs := make([]Record, 0, endIdx-startIdx)
	for i := startIdx; i < endIdx; i++ {
		off := i * RecordSize
		rec, err := e.readAt(root, parent, off)
		if err != nil {
			return nil, total, err
		}
		e.cache.Set(rec.Inode.Number, parent, off)
		recs = append(recs, rec)
	}
	return recs, total, nil
}

// MoveInode relocates inode from oldParent to newParent under newName: read-at-old,
// delete-at-old, write-at-new. Not atomic across the two parent directories — recovery is
// the journal's responsibility (spec §4.7 "move_inode").
func (e *Engine) MoveInode(root, inode, oldParent, newParent InodeNumber, newName string) error {
	rec, err := e.LookupByInodeIn(root, oldParent, inode)
	if err != nil {
		return err
	}
	if err := e.DeleteByInodeIn(root, oldParent, inode); err != nil {
		return err
	}
	rec.Name = newName
	if err := e.Write(root, newParent, rec); err != nil {
		glog.Errorf("einode: move_inode %d %d->%d left orphaned after delete-at-old failed write-at-new: %+v", inode, oldParent, newParent, err)
		return err
	}
	return nil
}

// ResolvPath walks a slash-separated path sequentially from subtreeRoot, failing with
// NotFound on any missing component (spec §4.7 "resolv_path").
func (e *Engine) ResolvPath(root InodeNumber, path string) (Record, error) {
	components := splitPath(path)
	cur := root
	var rec Record
	if len(components) == 0 {
		return Record{}, mdserrors.New(mdserrors.InvalidState, "empty path")
	}
	for _, name := range components {
		var err error
		rec, err = e.LookupByName(root, cur, name)
		if err != nil {
			return Record{}, err
		}
		cur = rec.Inode.Number
	}
	return rec, nil
}

func splitPath(path string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '/' {
			if i > start {
				out = append(out, path[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// GetPath walks parent pointers via the parent cache until subtreeRoot, failing if any hop
// is missing (spec §4.7 "get_path").
func (e *Engine) GetPath(root, inode InodeNumber) (string, error) {
	var segs []string
	cur := inode
	for cur != root {
		rec, err := e.LookupByInode(root, cur)
		if err != nil {
			return "", err
		}
		loc, ok := e.cache.Get(cur)
		if !ok {
			return "", mdserrors.New(mdserrors.ParentUnknown, "no parent-cache hint for inode %d", cur)
		}
		segs = append([]string{rec.Name}, segs...)
		cur = loc.Parent
	}
	path := "/"
	for i, s := range segs {
		if i > 0 {
			path += "/"
		}
		path += s
	}
	return path, nil
}

// GetParentHierarchy walks parent pointers, returning a bounded list (spec §4.7); truncation
// at maxHierarchyDepth is a normal outcome, not an error.
func (e *Engine) GetParentHierarchy(root, inode InodeNumber) ([]InodeNumber, error) {
	var chain []InodeNumber
	cur := inode
	for cur != root && len(chain) < maxHierarchyDepth {
		loc, ok := e.cache.Get(cur)
		if !ok {
			return nil, mdserrors.New(mdserrors.ParentUnknown, "no parent-cache hint for inode %d", cur)
		}
		chain = append([]InodeNumber{loc.Parent}, chain...)
		cur = loc.Parent
	}
	return chain, nil
}

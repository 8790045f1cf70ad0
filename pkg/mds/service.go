// Package mds wires C1-C11 behind the request surface of spec.md §6. Grounded on the
// teacher's exportedFileSystem (pkg/jdfs/server.go): one struct per running server holding
// every subsystem it needs, with one method per request kind.
package mds

import (
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/maesker/mdscore/pkg/einode"
	"github.com/maesker/mdscore/pkg/inoalloc"
	"github.com/maesker/mdscore/pkg/inocache"
	"github.com/maesker/mdscore/pkg/mdserrors"
	"github.com/maesker/mdscore/pkg/ownership"
	"github.com/maesker/mdscore/pkg/partition"
	"github.com/maesker/mdscore/pkg/storeabs"
)

// Service is the metadata core running on one host: the directory engine plus one inode
// cache per subtree root, the inode-number distributor for this host's rank, and the
// ownership adapter.
type Service struct {
	store  storeabs.Store
	engine *einode.Engine
	mgr    *partition.Manager
	dist   *inoalloc.Distributor
	owner  *ownership.Adapter

	mu     sync.Mutex
	caches map[einode.InodeNumber]*inocache.Cache // GUARDED_BY(mu); keyed by subtree root

	pool *workerPool
}

// New constructs a Service over an already-built storage/partition/distributor stack, with
// the default worker-pool size (spec §5). Call SetWorkerPoolSize before serving requests to
// apply an A1-configured size.
func New(store storeabs.Store, mgr *partition.Manager, dist *inoalloc.Distributor, owner *ownership.Adapter) *Service {
	cache := einode.NewParentCache(einode.ParentCacheCapacity)
	return &Service{
		store:  store,
		engine: einode.NewEngine(store, cache),
		mgr:    mgr,
		dist:   dist,
		owner:  owner,
		caches: make(map[einode.InodeNumber]*inocache.Cache),
		pool:   newWorkerPool(DefaultWorkerThreads),
	}
}

// SetWorkerPoolSize resizes the request worker pool (spec §5, A1 "worker-threads"). Must be
// called before the service starts accepting requests.
func (s *Service) SetWorkerPoolSize(n int) {
	s.pool.resize(n)
}

func (s *Service) cacheFor(root einode.InodeNumber) *inocache.Cache {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.caches[root]
	if !ok {
		c = inocache.New(root, s.engine)
		s.caches[root] = c
	}
	return c
}

// synthesizedRoot returns the well-known record for the subtree root inode, which carries
// no persistent einode of its own (spec §3).
func synthesizedRoot(root einode.InodeNumber) einode.Record {
	now := time.Now()
	return einode.Record{
		Name: "",
		Inode: einode.Inode{
			Number: root,
			Mode:   0755 | modeDir,
			Nlink:  2,
			Atime:  now,
			Mtime:  now,
			Ctime:  now,
		},
	}
}

const modeDir = 1 << 31 // high bit marks a directory, mirroring the teacher's vfs mode bit convention

// EinodeRequest is get-einode: resolve inode's record within subtree root (spec §6).
func (s *Service) EinodeRequest(root, inode einode.InodeNumber) (einode.Record, error) {
	s.pool.acquire()
	defer s.pool.release()
	if inode == root {
		return synthesizedRoot(root), nil
	}
	res, rec, err := s.cacheFor(root).GetEinode(inode)
	if err != nil {
		return einode.Record{}, err
	}
	if res != inocache.ResultPresent {
		return einode.Record{}, mdserrors.New(mdserrors.NotFound, "inode %d not found under root %d", inode, root)
	}
	return rec, nil
}

// CreateFileEinodeRequest allocates a fresh inode number from this host's distributor and
// creates the einode under parent (spec §6 "create_file_einode_request").
func (s *Service) CreateFileEinodeRequest(root, parent einode.InodeNumber, name string, mode, uid, gid uint32) (einode.Record, error) {
	s.pool.acquire()
	defer s.pool.release()
	number, err := s.dist.Next()
	if err != nil {
		if mdserrors.Is(err, mdserrors.Exhausted) {
			RecordAllocatorExhaustion(s.dist.Rank())
		}
		return einode.Record{}, err
	}
	now := time.Now()
	rec := einode.Record{
		Name: name,
		Inode: einode.Inode{
			Number: number,
			Mode:   mode,
			Nlink:  1,
			UID:    uid,
			GID:    gid,
			Atime:  now,
			Mtime:  now,
			Ctime:  now,
		},
	}
	if err := s.engine.Write(root, parent, rec); err != nil {
		return einode.Record{}, err
	}
	if err := s.cacheFor(root).AddToCache(number, parent, rec); err != nil {
		glog.Warningf("mds: create_file_einode_request: cache priming failed for inode %d: %+v", number, err)
	}
	return rec, nil
}

// UpdateAttributesRequest applies a record's new attributes in place (spec §6
// "update_attributes_request").
func (s *Service) UpdateAttributesRequest(root, parent einode.InodeNumber, rec einode.Record) error {
	s.pool.acquire()
	defer s.pool.release()
	if err := s.engine.Write(root, parent, rec); err != nil {
		return err
	}
	if err := s.cacheFor(root).UpdateInodeCache(inocache.UpdateRequest{
		Inode: rec.Inode.Number, Parent: parent, Rec: rec, Op: inocache.OpAttrUpdate,
	}); err != nil {
		glog.Errorf("mds: update_attributes_request: cache inconsistency for inode %d: %+v", rec.Inode.Number, err)
	}
	return nil
}

// DeleteInodeRequest deletes inode from parent (spec §6 "delete_inode_request").
func (s *Service) DeleteInodeRequest(root, parent, inode einode.InodeNumber) error {
	s.pool.acquire()
	defer s.pool.release()
	if err := s.engine.DeleteByInodeIn(root, parent, inode); err != nil {
		return err
	}
	if err := s.cacheFor(root).UpdateInodeCache(inocache.UpdateRequest{
		Inode: inode, Parent: parent, Rec: einode.Record{Inode: einode.Inode{Number: inode}}, Op: inocache.OpDelete,
	}); err != nil {
		glog.Errorf("mds: delete_inode_request: cache inconsistency for inode %d: %+v", inode, err)
	}
	return nil
}

// ReadDirRequest serves a paginated directory listing, preferring the inode cache when the
// directory is full_present (spec §6 "read_dir_request").
func (s *Service) ReadDirRequest(root, parent einode.InodeNumber, offset int64) ([]einode.Record, int64, error) {
	s.pool.acquire()
	defer s.pool.release()
	recs, total, hit := s.cacheFor(root).ReadDir(parent, int(offset/einode.RecordSize), einode.ReaddirRecordsPerMsg)
	if hit {
		return recs, int64(total), nil
	}
	return s.engine.ReadDir(root, parent, offset)
}

// LookupInodeNumberRequest resolves name within parent to its einode (spec §6
// "lookup_inode_number_request").
func (s *Service) LookupInodeNumberRequest(root, parent einode.InodeNumber, name string) (einode.Record, error) {
	s.pool.acquire()
	defer s.pool.release()
	res, rec, err := s.cacheFor(root).LookupByObjectName(name, parent)
	if err != nil {
		return einode.Record{}, err
	}
	if res != inocache.ResultPresent {
		return einode.Record{}, mdserrors.New(mdserrors.NotFound, "name %q not found under parent %d", name, parent)
	}
	return rec, nil
}

// MoveEinodeRequest relocates inode from oldParent to newParent under newName (spec §6
// "move_einode_request").
func (s *Service) MoveEinodeRequest(root, inode, oldParent, newParent einode.InodeNumber, newName string) error {
	s.pool.acquire()
	defer s.pool.release()
	if err := s.engine.MoveInode(root, inode, oldParent, newParent, newName); err != nil {
		return err
	}
	return s.cacheFor(root).MoveInode(inode, oldParent, newParent, newName)
}

// ParentInodeNumberLookupRequest returns inode's immediate parent (spec §6
// "parent_inode_number_lookup_request").
func (s *Service) ParentInodeNumberLookupRequest(root, inode einode.InodeNumber) (einode.InodeNumber, error) {
	s.pool.acquire()
	defer s.pool.release()
	chain, err := s.engine.GetParentHierarchy(root, inode)
	if err != nil {
		return 0, err
	}
	if len(chain) == 0 {
		return root, nil
	}
	return chain[len(chain)-1], nil
}

// ParentInodeHierarchyRequest returns inode's bounded ancestor chain (spec §6
// "parent_inode_hierarchy_request").
func (s *Service) ParentInodeHierarchyRequest(root, inode einode.InodeNumber) ([]einode.InodeNumber, error) {
	s.pool.acquire()
	defer s.pool.release()
	return s.engine.GetParentHierarchy(root, inode)
}

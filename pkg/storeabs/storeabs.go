// Package storeabs implements C5: a single façade over either a single-directory backend or
// the partition backend, routing every object operation by subtree root. Grounded on the
// teacher's icFSD-as-single-facade style (pkg/jdfs/fsd.go), generalized to two backing modes.
package storeabs

import (
	"github.com/maesker/mdscore/pkg/mdserrors"
	"github.com/maesker/mdscore/pkg/objstore"
	"github.com/maesker/mdscore/pkg/partition"
)

// Store is C5's contract: every object operation takes a subtreeRoot and an id.
type Store interface {
	Read(subtreeRoot uint64, id string, off int64, length int) ([]byte, error)
	Write(subtreeRoot uint64, id string, off int64, data []byte, sync bool) error
	Truncate(subtreeRoot uint64, id string, length int64) error
	Size(subtreeRoot uint64, id string) (int64, bool)
	Has(subtreeRoot uint64, id string) bool
	Remove(subtreeRoot uint64, id string) error
	List(subtreeRoot uint64) ([]string, error)

	// Lock/Unlock expose C3 to callers (the einode engine, §4.7) that must serialize a whole
	// operation across several object accesses.
	Lock(subtreeRoot uint64, id string)
	Unlock(subtreeRoot uint64, id string)
}

// FileStore is the file-based mode: all objects live in one directory on one device, and
// subtreeRoot is ignored (spec §4.5).
type FileStore struct {
	dev   objstore.Device
	locks *partition.LockTable
}

// NewFileStore wraps a single Device as a subtree-agnostic Store.
func NewFileStore(dev objstore.Device) *FileStore {
	return &FileStore{dev: dev, locks: partition.NewLockTable()}
}

func (s *FileStore) Read(_ uint64, id string, off int64, length int) ([]byte, error) {
	return s.dev.Read(id, off, length)
}
func (s *FileStore) Write(_ uint64, id string, off int64, data []byte, sync bool) error {
	return s.dev.Write(id, off, data, sync)
}
func (s *FileStore) Truncate(_ uint64, id string, length int64) error {
	return s.dev.Truncate(id, length)
}
func (s *FileStore) Size(_ uint64, id string) (int64, bool) { return s.dev.Size(id) }
func (s *FileStore) Has(_ uint64, id string) bool            { return s.dev.Has(id) }
func (s *FileStore) Remove(_ uint64, id string) error        { return s.dev.Remove(id) }
func (s *FileStore) List(_ uint64) ([]string, error)         { return s.dev.List() }
func (s *FileStore) Lock(_ uint64, id string)                { s.locks.Lock(id) }
func (s *FileStore) Unlock(_ uint64, id string)              { s.locks.Unlock(id) }

// PartitionStore is the partition-based mode: looks up the partition whose root is
// subtreeRoot and forwards (spec §4.5).
type PartitionStore struct {
	mgr *partition.Manager
}

// NewPartitionStore wraps a partition.Manager as a subtree-routed Store.
func NewPartitionStore(mgr *partition.Manager) *PartitionStore {
	return &PartitionStore{mgr: mgr}
}

func (s *PartitionStore) find(subtreeRoot uint64) (*partition.Partition, error) {
	p := s.mgr.GetPartition(subtreeRoot)
	if p == nil {
		return nil, mdserrors.New(mdserrors.NotFound, "no partition owns subtree root %d", subtreeRoot)
	}
	return p, nil
}

func (s *PartitionStore) Read(root uint64, id string, off int64, length int) ([]byte, error) {
	p, err := s.find(root)
	if err != nil {
		return nil, err
	}
	return p.Read(id, off, length)
}

func (s *PartitionStore) Write(root uint64, id string, off int64, data []byte, sync bool) error {
	p, err := s.find(root)
	if err != nil {
		return err
	}
	return p.Write(id, off, data, sync)
}

func (s *PartitionStore) Truncate(root uint64, id string, length int64) error {
	p, err := s.find(root)
	if err != nil {
		return err
	}
	return p.Truncate(id, length)
}

func (s *PartitionStore) Size(root uint64, id string) (int64, bool) {
	p, err := s.find(root)
	if err != nil {
		return 0, false
	}
	return p.Size(id)
}

func (s *PartitionStore) Has(root uint64, id string) bool {
	p, err := s.find(root)
	if err != nil {
		return false
	}
	return p.Has(id)
}

func (s *PartitionStore) Remove(root uint64, id string) error {
	p, err := s.find(root)
	if err != nil {
		return err
	}
	return p.Remove(id)
}

func (s *PartitionStore) List(root uint64) ([]string, error) {
	p, err := s.find(root)
	if err != nil {
		return nil, err
	}
	return p.List()
}

func (s *PartitionStore) Lock(root uint64, id string) {
	if p := s.mgr.GetPartition(root); p != nil {
		p.Lock(id)
	}
}

func (s *PartitionStore) Unlock(root uint64, id string) {
	if p := s.mgr.GetPartition(root); p != nil {
		p.Unlock(id)
	}
}

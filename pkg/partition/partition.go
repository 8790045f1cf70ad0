// Package partition implements C2 (Partition), C3 (object lock table, see locktable.go) and
// C4 (PartitionManager, see manager.go). Grounded on the teacher's icFSD/icInode lifecycle
// style (pkg/jdfs/fsd.go: construct -> populate from disk -> serve) generalized from "one
// mounted fs root" to "one mounted block device holding one subtree".
package partition

import (
	"sync"

	"github.com/maesker/mdscore/pkg/mdserrors"
	"github.com/maesker/mdscore/pkg/objstore"
)

// State is one of the four partition states of spec §4.2.
type State int

const (
	StateReadOnly State = iota
	StateActive
	StateMigrating
	StateInactive
)

func (s State) String() string {
	switch s {
	case StateReadOnly:
		return "read_only"
	case StateActive:
		return "active"
	case StateMigrating:
		return "migrating"
	case StateInactive:
		return "inactive"
	}
	return "unknown"
}

const migrationCopyBufSize = 1 << 20 // bounded buffer for migration copies (spec §4.2)

// Partition is C2: a mounted block device owned by exactly one MDS, holding one subtree.
type Partition struct {
	dev        objstore.Device
	localHost  string
	lockTable  *LockTable

	mu          sync.Mutex
	state       State
	rootInode   uint64
	owner       string
	op          OpState
	migrateSrc  string

	// migratedSet tracks, during an in-progress migration, which objects have already been
	// copied from the source. Object-level reads/writes consult it to decide whether to
	// fall back to the source (spec §4.2 concurrency rules).
	migratedSet map[string]bool
	// deleteQueue holds objects removed locally while a migration is still copying them in;
	// migrateOneObject skips copying a queued object, so the delete takes effect. Entries
	// are never removed from it.
	deleteQueue map[string]bool

	source Source // set only while migrating: read/write fallback target
}

// Source is the minimal remote-partition surface a migration reads from. In this design it is
// satisfied by another *Partition (single-process simulation of a remote MDS) or any
// implementation of the same four methods reached over the (out-of-scope) RPC frontend.
type Source interface {
	ID() string
	ReadRaw(id string, off int64, length int) ([]byte, error)
	HasRaw(id string) bool
	SizeRaw(id string) (int64, bool)
}

// New constructs a Partition from its device, initially read_only (spec §4.2), and recovers
// its info object if present.
func New(dev objstore.Device, localHost string) (*Partition, error) {
	p := &Partition{
		dev:       dev,
		localHost: localHost,
		lockTable: NewLockTable(),
		state:     StateReadOnly,
	}

	if dev.Has(infoObjectName) {
		if err := p.loadInfo(); err != nil {
			return nil, err
		}
		if p.owner == localHost {
			if err := p.mountRWLocked(); err != nil {
				return nil, err
			}
		}
	}
	return p, nil
}

func (p *Partition) loadInfo() error {
	sz, _ := p.dev.Size(infoObjectName)
	buf, err := p.dev.Read(infoObjectName, 0, int(sz))
	if err != nil {
		return err
	}
	in, err := DecodeInfo(buf)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rootInode = in.RootInode
	p.owner = in.Owner
	p.op = in.Op
	p.migrateSrc = in.MigrationSrc
	return nil
}

func (p *Partition) writeInfoLocked() error {
	buf := EncodeInfo(Info{
		RootInode:    p.rootInode,
		Owner:        p.owner,
		Op:           p.op,
		MigrationSrc: p.migrateSrc,
	})
	return p.dev.Write(infoObjectName, 0, buf, true)
}

// ID returns the underlying device's stable identifier.
func (p *Partition) ID() string { return p.dev.ID() }

// Lock/Unlock expose C3's object lock table to callers (e.g. the storage abstraction, §4.5)
// that must serialize a whole multi-access operation rather than one Read/Write/Truncate call.
func (p *Partition) Lock(id string)   { p.lockTable.Lock(id) }
func (p *Partition) Unlock(id string) { p.lockTable.Unlock(id) }

// State returns the current state under lock.
func (p *Partition) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// RootInode returns the subtree-root inode this partition holds.
func (p *Partition) RootInode() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rootInode
}

// Owner returns the currently recorded owner identity.
func (p *Partition) Owner() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.owner
}

// MountRW requires owner == local host; otherwise fails (spec §4.2 mount_rw).
func (p *Partition) MountRW() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mountRWLocked()
}

func (p *Partition) mountRWLocked() error {
	if p.owner != p.localHost {
		return mdserrors.New(mdserrors.OwnershipViolation,
			"partition %s owned by %q, not local host %q", p.dev.ID(), p.owner, p.localHost)
	}
	p.state = StateActive
	return nil
}

// SetOwner stores a new owner and adjusts active/read-only state accordingly (spec §4.2).
func (p *Partition) SetOwner(owner string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.owner = owner
	if err := p.writeInfoLocked(); err != nil {
		return err
	}

	if p.state == StateActive {
		if owner != p.localHost {
			p.state = StateReadOnly
		}
		return nil
	}
	if owner == p.localHost {
		return p.mountRWLocked()
	}
	return nil
}

// InitOwned bootstraps a brand-new partition (no prior info object) as locally owned,
// rooted at rootInode. Used by the partition manager when claiming a free partition.
func (p *Partition) InitOwned(rootInode uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rootInode = rootInode
	p.owner = p.localHost
	p.op = OpNone
	if err := p.writeInfoLocked(); err != nil {
		return err
	}
	return p.mountRWLocked()
}

// Reset transitions to inactive, the only path that produces StateInactive (spec §4.2).
func (p *Partition) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StateInactive
}

// requireServable guards object reads and writes: only active or migrating partitions serve them.
func (p *Partition) requireServable() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case StateActive, StateMigrating:
		return nil
	default:
		return mdserrors.New(mdserrors.InvalidState, "partition %s in state %s", p.dev.ID(), p.state)
	}
}

func (p *Partition) isMigrating() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == StateMigrating
}

// Read services a read, falling back to the migration source if the object has not yet been
// copied locally (spec §4.2 concurrency rules).
func (p *Partition) Read(id string, off int64, length int) ([]byte, error) {
	if err := p.requireServable(); err != nil {
		return nil, err
	}
	var data []byte
	err := p.lockTable.WithLock(id, func() error {
		if p.isMigrating() && !p.hasMigrated(id) && !p.dev.Has(id) {
			src := p.migrationSource()
			if src == nil {
				return mdserrors.New(mdserrors.InvalidState, "migrating partition %s has no source bound", p.dev.ID())
			}
			b, err := src.ReadRaw(id, off, length)
			if err != nil {
				return err
			}
			data = b
			return nil
		}
		b, err := p.dev.Read(id, off, length)
		if err != nil {
			return err
		}
		data = b
		return nil
	})
	return data, err
}

// Write materializes the object locally first (copying from source if absent and migrating),
// then applies the write (spec §4.2).
func (p *Partition) Write(id string, off int64, data []byte, sync bool) error {
	if err := p.requireServable(); err != nil {
		return err
	}
	return p.lockTable.WithLock(id, func() error {
		if p.isMigrating() && !p.hasMigrated(id) && !p.dev.Has(id) {
			if err := p.copyFromSourceLocked(id); err != nil {
				return err
			}
		}
		return p.dev.Write(id, off, data, sync)
	})
}

func (p *Partition) Truncate(id string, length int64) error {
	if err := p.requireServable(); err != nil {
		return err
	}
	return p.lockTable.WithLock(id, func() error {
		if p.isMigrating() && !p.hasMigrated(id) && !p.dev.Has(id) {
			if err := p.copyFromSourceLocked(id); err != nil {
				return err
			}
		}
		return p.dev.Truncate(id, length)
	})
}

// Remove queues the removal if the object is still mid-migration and not yet copied in,
// otherwise removes it directly (spec §4.2).
func (p *Partition) Remove(id string) error {
	if err := p.requireServable(); err != nil {
		return err
	}
	return p.lockTable.WithLock(id, func() error {
		if p.isMigrating() && !p.hasMigrated(id) {
			p.mu.Lock()
			if p.deleteQueue == nil {
				p.deleteQueue = make(map[string]bool)
			}
			p.deleteQueue[id] = true
			p.mu.Unlock()
			if p.dev.Has(id) {
				return p.dev.Remove(id)
			}
			return nil
		}
		return p.dev.Remove(id)
	})
}

func (p *Partition) Has(id string) bool {
	if p.isMigrating() && !p.hasMigrated(id) && !p.dev.Has(id) {
		src := p.migrationSource()
		if src != nil {
			return src.HasRaw(id)
		}
		return false
	}
	return p.dev.Has(id)
}

func (p *Partition) Size(id string) (int64, bool) {
	if p.isMigrating() && !p.hasMigrated(id) && !p.dev.Has(id) {
		src := p.migrationSource()
		if src != nil {
			return src.SizeRaw(id)
		}
		return 0, false
	}
	return p.dev.Size(id)
}

func (p *Partition) List() ([]string, error) {
	return p.dev.List()
}

func (p *Partition) hasMigrated(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.migratedSet != nil && p.migratedSet[id]
}

func (p *Partition) markMigrated(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.migratedSet == nil {
		p.migratedSet = make(map[string]bool)
	}
	p.migratedSet[id] = true
}

func (p *Partition) migrationSource() Source {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.source
}

// copyFromSourceLocked must be called with id's object lock held.
func (p *Partition) copyFromSourceLocked(id string) error {
	src := p.migrationSource()
	if src == nil {
		return mdserrors.New(mdserrors.InvalidState, "migrating partition %s has no source bound", p.dev.ID())
	}
	sz, ok := src.SizeRaw(id)
	if !ok {
		p.markMigrated(id) // source no longer has it; nothing to copy
		return nil
	}
	var off int64
	for off < sz {
		n := migrationCopyBufSize
		if remain := sz - off; remain < int64(n) {
			n = int(remain)
		}
		buf, err := src.ReadRaw(id, off, n)
		if err != nil {
			return err
		}
		if err := p.dev.Write(id, off, buf, false); err != nil {
			return err
		}
		off += int64(len(buf))
		if len(buf) == 0 {
			break
		}
	}
	p.markMigrated(id)
	return nil
}

// ReadRaw/HasRaw/SizeRaw implement Source, letting one Partition act as another's migration
// source within a single process (tests, and single-host multi-partition deployments).
func (p *Partition) ReadRaw(id string, off int64, length int) ([]byte, error) {
	return p.dev.Read(id, off, length)
}
func (p *Partition) HasRaw(id string) bool            { return p.dev.Has(id) }
func (p *Partition) SizeRaw(id string) (int64, bool) { return p.dev.Size(id) }

// listSubtreeObjects lists the subtree rooted at root breadth-first, by walking directory
// objects (named by decimal inode number) and recursing into every child inode that is
// itself a directory. No cycle detection (spec §9 open question; left as a gap per the
// original source, matching teacher fidelity) beyond skipping an explicit stop root.
func listSubtreeObjects(list func() ([]string, error), readDirObj func(id string) ([]byte, error), decodeChildren func([]byte) ([]uint64, error), root uint64, stop uint64) ([]string, error) {
	var objects []string
	queue := []uint64{root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == stop {
			continue
		}
		name := dirObjectName(cur)
		objects = append(objects, name)
		buf, err := readDirObj(name)
		if err != nil {
			continue // object absent/unreadable: nothing further to recurse into
		}
		children, err := decodeChildren(buf)
		if err != nil {
			continue
		}
		queue = append(queue, children...)
	}
	return objects, nil
}

func dirObjectName(inode uint64) string {
	return itoa(inode)
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

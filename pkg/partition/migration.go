package partition

import (
	"github.com/golang/glog"

	"github.com/maesker/mdscore/pkg/mdserrors"
)

// DirChildren decodes the child inode numbers referenced by a directory object's raw bytes.
// Supplied by the einode package at wiring time (partition does not know the einode record
// layout) to keep C2 free of C7's record format per spec's layering.
type DirChildren func(raw []byte) ([]uint64, error)

// StartMigration enters `migrating` and drives the copy of root's subtree in from source.
// Resumes from a persisted running_operation list on recovery (spec §4.2).
func (p *Partition) StartMigration(source Source, root uint64, decodeChildren DirChildren) error {
	p.mu.Lock()
	resuming := p.op == OpStartedMigration
	p.source = source
	p.state = StateMigrating
	if !resuming {
		p.rootInode = root
		p.op = OpStartedMigration
		p.migrateSrc = source.ID()
	}
	if err := p.writeInfoLocked(); err != nil {
		p.mu.Unlock()
		return err
	}
	p.mu.Unlock()

	var objects []string
	if resuming {
		buf, err := p.dev.Read(runningOpObjectName, 0, mustSize(p.dev, runningOpObjectName))
		if err != nil {
			return err
		}
		objects, err = DecodeRunningOp(buf)
		if err != nil {
			return err
		}
		glog.Infof("partition %s resuming migration of %d objects from %s", p.dev.ID(), len(objects), source.ID())
	} else {
		var err error
		objects, err = listSubtreeObjects(p.dev.List, p.readDirObjFromSource(source), decodeChildren, root, 0)
		if err != nil {
			return err
		}
		if err := p.dev.Write(runningOpObjectName, 0, EncodeRunningOp(objects), true); err != nil {
			return err
		}
		glog.Infof("partition %s starting migration of %d objects from %s", p.dev.ID(), len(objects), source.ID())
	}

	for _, id := range objects {
		if err := p.migrateOneObject(id, source, resuming); err != nil {
			return err
		}
	}

	// Source removes the subtree it just handed off (spec §4.2: "source removes the
	// subtree"). Only satisfiable when the source is another in-process *Partition; a
	// genuinely remote source's removal is driven by the external RPC frontend, out of
	// scope here.
	if remover, ok := source.(interface {
		RemoveSubtree(root, stop uint64, decodeChildren DirChildren) error
	}); ok {
		if err := remover.RemoveSubtree(root, 0, decodeChildren); err != nil {
			return err
		}
	}

	p.mu.Lock()
	p.op = OpNone
	p.state = StateActive
	p.source = nil
	if err := p.writeInfoLocked(); err != nil {
		p.mu.Unlock()
		return err
	}
	p.mu.Unlock()

	return p.dev.Remove(runningOpObjectName)
}

func (p *Partition) readDirObjFromSource(source Source) func(id string) ([]byte, error) {
	return func(id string) ([]byte, error) {
		sz, ok := source.SizeRaw(id)
		if !ok {
			return nil, mdserrors.New(mdserrors.NotFound, "object %q absent on migration source", id)
		}
		return source.ReadRaw(id, 0, int(sz))
	}
}

// migrateOneObject copies id in from source unless already present locally and not stale
// (spec §4.2: "if not present locally and not in delete-queue and not updated-since-migration-
// start, copy from source ... in recovery, compare sizes and re-copy if they differ").
func (p *Partition) migrateOneObject(id string, source Source, recovering bool) error {
	return p.lockTable.WithLock(id, func() error {
		p.mu.Lock()
		queued := p.deleteQueue != nil && p.deleteQueue[id]
		p.mu.Unlock()
		if queued {
			p.markMigrated(id)
			return nil
		}

		localSz, localHas := p.dev.Size(id)
		srcSz, srcHas := source.SizeRaw(id)
		if !srcHas {
			p.markMigrated(id)
			return nil
		}
		if localHas {
			if !recovering {
				// already updated locally since migration start: leave as-is (spec §4.2).
				p.markMigrated(id)
				return nil
			}
			if localSz == srcSz {
				p.markMigrated(id)
				return nil
			}
			// sizes differ during recovery: re-copy.
		}
		return p.copyFromSourceLocked(id)
	})
}

func mustSize(dev interface {
	Size(string) (int64, bool)
}, id string) int {
	sz, _ := dev.Size(id)
	return int(sz)
}

// RemoveSubtree lists the subtree breadth-first (skipping stop), persists the list, then
// removes objects until drained (spec §4.2). Running it twice is a no-op the second time,
// because the running-operation object is removed once drained (spec §8 idempotence law).
func (p *Partition) RemoveSubtree(root uint64, stop uint64, decodeChildren DirChildren) error {
	if !p.dev.Has(runningOpObjectName) {
		objects, err := listSubtreeObjects(p.dev.List, p.readDirObjLocal, decodeChildren, root, stop)
		if err != nil {
			return err
		}
		if err := p.dev.Write(runningOpObjectName, 0, EncodeRunningOp(objects), true); err != nil {
			return err
		}
	}

	sz, _ := p.dev.Size(runningOpObjectName)
	buf, err := p.dev.Read(runningOpObjectName, 0, int(sz))
	if err != nil {
		return err
	}
	objects, err := DecodeRunningOp(buf)
	if err != nil {
		return err
	}

	for _, id := range objects {
		if err := p.lockTable.WithLock(id, func() error {
			return p.dev.Remove(id)
		}); err != nil {
			return err
		}
	}

	return p.dev.Remove(runningOpObjectName)
}

func (p *Partition) readDirObjLocal(id string) ([]byte, error) {
	sz, ok := p.dev.Size(id)
	if !ok {
		return nil, mdserrors.New(mdserrors.NotFound, "object %q absent locally", id)
	}
	return p.dev.Read(id, 0, int(sz))
}

// EnlargeSubtree re-roots at newRoot and migrates it in from parentPartition, absorbing a
// child subtree into this partition (spec §4.2).
func (p *Partition) EnlargeSubtree(parentPartition Source, newRoot uint64, decodeChildren DirChildren) error {
	return p.StartMigration(parentPartition, newRoot, decodeChildren)
}

// TruncateSubtree removes everything under the old root except newRoot's own subtree,
// splitting newRoot off into its own partition (spec §4.2).
func (p *Partition) TruncateSubtree(oldRoot, newRoot uint64, decodeChildren DirChildren) error {
	return p.RemoveSubtree(oldRoot, newRoot, decodeChildren)
}

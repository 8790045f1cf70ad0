package partition

import (
	"hash/fnv"
	"sort"
	"sync"

	"github.com/golang/glog"

	"github.com/maesker/mdscore/pkg/mdserrors"
	"github.com/maesker/mdscore/pkg/objstore"
)

// Manager is C4: owns all local partitions; finds partition by subtree-root or by device id;
// allocates free partitions; recomputes ownership on fleet reshape.
type Manager struct {
	localHost string

	mu         sync.RWMutex
	byDeviceID map[string]*Partition
	order      []string // device ids in construction order, for deterministic free-partition pick
}

// NewManager constructs a Manager from the list of locally-mounted devices, each becoming one
// Partition (spec §4.4, §3 lifecycle: "constructed at start-up from the list of devices").
func NewManager(localHost string, devices []objstore.Device) (*Manager, error) {
	m := &Manager{
		localHost:  localHost,
		byDeviceID: make(map[string]*Partition, len(devices)),
	}
	for _, dev := range devices {
		p, err := New(dev, localHost)
		if err != nil {
			return nil, mdserrors.Wrap(mdserrors.StorageFailure, err, "mounting device %s", dev.ID())
		}
		m.byDeviceID[dev.ID()] = p
		m.order = append(m.order, dev.ID())
	}
	return m, nil
}

// GetPartition finds the partition owning rootInode's subtree, or nil.
func (m *Manager) GetPartition(rootInode uint64) *Partition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.order {
		p := m.byDeviceID[id]
		if p.RootInode() == rootInode {
			return p
		}
	}
	return nil
}

// GetPartitionByID finds the partition mounted on the named device, or nil.
func (m *Manager) GetPartitionByID(deviceID string) *Partition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byDeviceID[deviceID]
}

// GetFreeOwnedPartition returns the first locally-owned partition with root_inode == 0
// (spec §4.4), or nil if none is free.
func (m *Manager) GetFreeOwnedPartition() *Partition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.order {
		p := m.byDeviceID[id]
		if p.Owner() == m.localHost && p.RootInode() == 0 {
			return p
		}
	}
	return nil
}

// GetFreePartition returns the first locally-owned free partition (as GetFreeOwnedPartition).
// When there is none it returns nil and an InvalidState error; no remote free partition is
// ever looked up.
func (m *Manager) GetFreePartition() (*Partition, error) {
	if p := m.GetFreeOwnedPartition(); p != nil {
		return p, nil
	}
	return nil, mdserrors.New(mdserrors.InvalidState, "no locally-owned free partition, and remote free-partition lookup is unimplemented (spec open question)")
}

// All returns every locally-mounted partition, in construction order.
func (m *Manager) All() []*Partition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Partition, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.byDeviceID[id])
	}
	return out
}

// ownershipHash is the locale-insensitive byte fold used for initial ownership assignment
// (spec §4.2: "hash(device_id) mod total_hosts == host_rank").
func ownershipHash(deviceID string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(deviceID))
	return h.Sum64()
}

// RecalculateOwnerships claims previously-unowned devices whose hash matches this manager's
// rank under the new total host count. It never revokes an existing owner (spec §4.2).
func (m *Manager) RecalculateOwnerships(rank, total uint64) []string {
	m.mu.RLock()
	ids := append([]string(nil), m.order...)
	m.mu.RUnlock()

	sort.Strings(ids) // deterministic scan order across the fleet

	var claimed []string
	for _, id := range ids {
		p := m.byDeviceID[id]
		if p.Owner() != "" {
			continue // never revoke
		}
		if ownershipHash(id)%total != rank {
			continue
		}
		if err := p.InitOwned(0); err != nil {
			glog.Errorf("partition manager: failed claiming device %s on reshape: %+v", id, err)
			continue
		}
		claimed = append(claimed, id)
	}
	return claimed
}

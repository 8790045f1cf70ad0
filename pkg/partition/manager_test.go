package partition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maesker/mdscore/pkg/objstore"
)

func TestManagerRecalculateOwnershipsNeverRevokesExistingOwner(t *testing.T) {
	devs := []objstore.Device{
		newMemDirDevice(t, "dev0"),
		newMemDirDevice(t, "dev1"),
	}
	mgr, err := NewManager("host-a", devs)
	require.NoError(t, err)

	p := mgr.GetPartitionByID("dev0")
	require.NoError(t, p.InitOwned(1))
	ownerBefore := p.Owner()

	mgr.RecalculateOwnerships(0, 2)
	assert.Equal(t, ownerBefore, p.Owner())
}

func TestManagerGetFreePartitionErrorsWithNoneOwned(t *testing.T) {
	devs := []objstore.Device{newMemDirDevice(t, "dev0")}
	mgr, err := NewManager("host-a", devs)
	require.NoError(t, err)

	_, err = mgr.GetFreePartition()
	assert.Error(t, err)
}

func TestManagerGetFreePartitionReturnsOwnedFreeOne(t *testing.T) {
	devs := []objstore.Device{newMemDirDevice(t, "dev0")}
	mgr, err := NewManager("host-a", devs)
	require.NoError(t, err)
	mgr.RecalculateOwnerships(0, 1)

	p, err := mgr.GetFreePartition()
	require.NoError(t, err)
	assert.Equal(t, "dev0", p.ID())
}

func TestManagerGetPartitionByRootInode(t *testing.T) {
	devs := []objstore.Device{newMemDirDevice(t, "dev0")}
	mgr, err := NewManager("host-a", devs)
	require.NoError(t, err)
	p := mgr.GetPartitionByID("dev0")
	require.NoError(t, p.InitOwned(99))

	found := mgr.GetPartition(99)
	require.NotNil(t, found)
	assert.Equal(t, "dev0", found.ID())
	assert.Nil(t, mgr.GetPartition(100))
}

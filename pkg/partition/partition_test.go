package partition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maesker/mdscore/pkg/mdserrors"
	"github.com/maesker/mdscore/pkg/objstore"
)

func newMemDirDevice(t *testing.T, id string) objstore.Device {
	t.Helper()
	dev, err := objstore.NewDirDevice(t.TempDir(), id)
	require.NoError(t, err)
	return dev
}

func TestPartitionStartsReadOnlyAndInitOwnedMountsRW(t *testing.T) {
	dev := newMemDirDevice(t, "dev0")
	p, err := New(dev, "host-a")
	require.NoError(t, err)
	assert.Equal(t, StateReadOnly, p.State())

	require.NoError(t, p.InitOwned(42))
	assert.Equal(t, StateActive, p.State())
	assert.EqualValues(t, 42, p.RootInode())
	assert.Equal(t, "host-a", p.Owner())
}

func TestPartitionMountRWRejectsNonOwner(t *testing.T) {
	dev := newMemDirDevice(t, "dev0")
	p, err := New(dev, "host-a")
	require.NoError(t, err)
	require.NoError(t, p.SetOwner("host-b"))

	err = p.MountRW()
	assert.True(t, mdserrors.Is(err, mdserrors.OwnershipViolation))
}

func TestPartitionSetOwnerDemotesActiveToReadOnly(t *testing.T) {
	dev := newMemDirDevice(t, "dev0")
	p, err := New(dev, "host-a")
	require.NoError(t, err)
	require.NoError(t, p.InitOwned(1))
	assert.Equal(t, StateActive, p.State())

	require.NoError(t, p.SetOwner("host-b"))
	assert.Equal(t, StateReadOnly, p.State())
}

func TestPartitionRequiresServableStateForIO(t *testing.T) {
	dev := newMemDirDevice(t, "dev0")
	p, err := New(dev, "host-a")
	require.NoError(t, err)

	_, err = p.Read("obj", 0, 10)
	assert.True(t, mdserrors.Is(err, mdserrors.InvalidState))
}

func TestPartitionReadWriteRoundTripWhenActive(t *testing.T) {
	dev := newMemDirDevice(t, "dev0")
	p, err := New(dev, "host-a")
	require.NoError(t, err)
	require.NoError(t, p.InitOwned(1))

	require.NoError(t, p.Write("obj", 0, []byte("data"), true))
	buf, err := p.Read("obj", 0, 4)
	require.NoError(t, err)
	assert.Equal(t, "data", string(buf))
}

func TestPartitionPersistsInfoAcrossReopen(t *testing.T) {
	root := t.TempDir()
	dev, err := objstore.NewDirDevice(root, "dev0")
	require.NoError(t, err)
	p, err := New(dev, "host-a")
	require.NoError(t, err)
	require.NoError(t, p.InitOwned(7))

	dev2, err := objstore.NewDirDevice(root, "dev0")
	require.NoError(t, err)
	p2, err := New(dev2, "host-a")
	require.NoError(t, err)
	assert.EqualValues(t, 7, p2.RootInode())
	assert.Equal(t, StateActive, p2.State())
}

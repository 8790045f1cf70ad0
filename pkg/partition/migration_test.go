package partition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noChildren([]byte) ([]uint64, error) { return nil, nil }

func TestStartMigrationCopiesObjectsFromSource(t *testing.T) {
	srcDev := newMemDirDevice(t, "src")
	src, err := New(srcDev, "host-a")
	require.NoError(t, err)
	require.NoError(t, src.InitOwned(100))
	require.NoError(t, src.Write("100", 0, []byte("subtree-root-record"), true))

	dstDev := newMemDirDevice(t, "dst")
	dst, err := New(dstDev, "host-b")
	require.NoError(t, err)
	require.NoError(t, dst.InitOwned(0)) // free, owned locally

	require.NoError(t, dst.StartMigration(src, 100, noChildren))
	assert.Equal(t, StateActive, dst.State())
	assert.EqualValues(t, 100, dst.RootInode())

	buf, err := dst.Read("100", 0, len("subtree-root-record"))
	require.NoError(t, err)
	assert.Equal(t, "subtree-root-record", string(buf))
}

func TestRemoveSubtreeIsIdempotent(t *testing.T) {
	dev := newMemDirDevice(t, "dev0")
	p, err := New(dev, "host-a")
	require.NoError(t, err)
	require.NoError(t, p.InitOwned(5))
	require.NoError(t, p.Write("5", 0, []byte("root"), true))

	require.NoError(t, p.RemoveSubtree(5, 0, noChildren))
	assert.False(t, p.Has("5"))

	// Running again after the running-operation object is gone is a no-op, not an error.
	require.NoError(t, p.RemoveSubtree(5, 0, noChildren))
}

package objstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDevice(t *testing.T) *DirDevice {
	t.Helper()
	dev, err := NewDirDevice(t.TempDir(), "dev0")
	require.NoError(t, err)
	return dev
}

func TestDirDeviceWriteReadRoundTrip(t *testing.T) {
	dev := newTestDevice(t)
	require.NoError(t, dev.Write("obj1", 0, []byte("hello"), false))

	buf, err := dev.Read("obj1", 0, 5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))
}

func TestDirDeviceWriteAtOffsetGrowsFile(t *testing.T) {
	dev := newTestDevice(t)
	require.NoError(t, dev.Write("obj1", 0, []byte("0123456789"), false))
	require.NoError(t, dev.Write("obj1", 20, []byte("tail"), true))

	size, ok := dev.Size("obj1")
	require.True(t, ok)
	assert.EqualValues(t, 24, size)
}

func TestDirDeviceHasAndRemove(t *testing.T) {
	dev := newTestDevice(t)
	assert.False(t, dev.Has("missing"))

	require.NoError(t, dev.Write("obj1", 0, []byte("x"), false))
	assert.True(t, dev.Has("obj1"))

	require.NoError(t, dev.Remove("obj1"))
	assert.False(t, dev.Has("obj1"))

	// Removing an already-absent object is not an error.
	require.NoError(t, dev.Remove("obj1"))
}

func TestDirDeviceTruncate(t *testing.T) {
	dev := newTestDevice(t)
	require.NoError(t, dev.Write("obj1", 0, []byte("0123456789"), false))
	require.NoError(t, dev.Truncate("obj1", 4))

	size, ok := dev.Size("obj1")
	require.True(t, ok)
	assert.EqualValues(t, 4, size)
}

func TestDirDeviceTruncateCreatesAbsentObject(t *testing.T) {
	dev := newTestDevice(t)
	require.NoError(t, dev.Truncate("new-obj", 0))
	assert.True(t, dev.Has("new-obj"))
}

func TestDirDeviceListSkipsHiddenEntries(t *testing.T) {
	dev := newTestDevice(t)
	require.NoError(t, dev.Write("b", 0, []byte("1"), false))
	require.NoError(t, dev.Write("a", 0, []byte("1"), false))
	require.NoError(t, dev.Write(".hidden", 0, []byte("1"), false))

	ids, err := dev.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}

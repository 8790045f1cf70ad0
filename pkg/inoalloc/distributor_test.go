package inoalloc

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maesker/mdscore/pkg/mdserrors"
)

// memDevice is a minimal objstore.Device fake holding only what the distributor touches.
type memDevice struct {
	mu   sync.Mutex
	objs map[string][]byte
}

func newMemDevice() *memDevice { return &memDevice{objs: make(map[string][]byte)} }

func (d *memDevice) ID() string { return "mem" }
func (d *memDevice) Has(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.objs[id]
	return ok
}
func (d *memDevice) Read(id string, off int64, length int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf := d.objs[id]
	out := make([]byte, length)
	copy(out, buf[off:])
	return out, nil
}
func (d *memDevice) Write(id string, off int64, data []byte, sync bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	end := int(off) + len(data)
	buf := d.objs[id]
	if end > len(buf) {
		grown := make([]byte, end)
		copy(grown, buf)
		buf = grown
	}
	copy(buf[off:end], data)
	d.objs[id] = buf
	return nil
}
func (d *memDevice) Truncate(id string, length int64) error { return nil }
func (d *memDevice) Size(id string) (int64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf, ok := d.objs[id]
	return int64(len(buf)), ok
}
func (d *memDevice) Remove(id string) error { return nil }
func (d *memDevice) List() ([]string, error) { return nil, nil }

func TestDistributorSkipsRootAndIsMonotonic(t *testing.T) {
	d, err := New(newMemDevice(), 0)
	require.NoError(t, err)

	prev := uint64(0)
	for i := 0; i < 10; i++ {
		n, err := d.Next()
		require.NoError(t, err)
		assert.NotEqual(t, uint64(1), n)
		assert.Greater(t, n, prev)
		prev = n
	}
}

func TestDistributorBandBoundary(t *testing.T) {
	d, err := New(newMemDevice(), 1)
	require.NoError(t, err)
	n, err := d.Next()
	require.NoError(t, err)
	assert.Greater(t, n, uint64(1)<<BandBits)
}

func TestDistributorNeverExceedsInclusiveBandMax(t *testing.T) {
	d, err := New(newMemDevice(), 3)
	require.NoError(t, err)
	nextBandStart := uint64(4) << BandBits // rank 4's band start; must never be handed out by rank 3
	require.Equal(t, nextBandStart-1, d.limit, "band limit must be inclusive, not nextBandStart")

	d.lastNumber = d.limit - 1 // one number left in the band

	n, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, d.limit, n)
	assert.Less(t, n, nextBandStart)

	_, err = d.Next()
	require.Error(t, err)
	assert.True(t, mdserrors.Is(err, mdserrors.Exhausted))
}

func TestDistributorExhaustion(t *testing.T) {
	d, err := New(newMemDevice(), 0)
	require.NoError(t, err)
	d.limit = d.lastNumber + 2 // force exhaustion quickly without allocating 2^48 numbers

	_, err = d.Next()
	require.NoError(t, err)

	_, err = d.Next()
	if err == nil {
		_, err = d.Next()
	}
	require.Error(t, err)
	assert.True(t, mdserrors.Is(err, mdserrors.Exhausted))
}

func TestDistributorRecoversWatermark(t *testing.T) {
	dev := newMemDevice()
	d1, err := New(dev, 2)
	require.NoError(t, err)
	for i := 0; i < CheckpointInterval+1; i++ {
		_, err := d1.Next()
		require.NoError(t, err)
	}

	d2, err := New(dev, 2)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, d2.lastWrittenNumber, d1.lastWrittenNumber)
}

package ownership

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maesker/mdscore/pkg/objstore"
	"github.com/maesker/mdscore/pkg/partition"
)

func newOwnedManager(t *testing.T, host string) *partition.Manager {
	t.Helper()
	dev, err := objstore.NewDirDevice(t.TempDir(), "dev0")
	require.NoError(t, err)
	mgr, err := partition.NewManager(host, []objstore.Device{dev})
	require.NoError(t, err)
	mgr.RecalculateOwnerships(0, 1)
	return mgr
}

func TestAdapterIsCoordinatorWhenTarget(t *testing.T) {
	a := New("host-b", nil)
	req := Request{SourceHost: "host-a", TargetHost: "host-b"}
	assert.True(t, a.IsCoordinator(req))
	assert.False(t, New("host-a", nil).IsCoordinator(req))
}

func TestAdapterSendingAddressesNamesBothHosts(t *testing.T) {
	a := New("host-a", nil)
	req := Request{SourceHost: "host-a", TargetHost: "host-b"}
	assert.ElementsMatch(t, []HostID{"host-a", "host-b"}, a.SendingAddresses(req))
}

func TestAdapterHandleOperationRequestOnTargetIsNoOp(t *testing.T) {
	a := New("host-b", nil)
	req := Request{PartitionID: "dev0", SourceHost: "host-a", TargetHost: "host-b"}
	id, err := a.HandleOperationRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "dev0", id)
}

func TestAdapterHandleOperationRequestOnSourceHandsOffPartition(t *testing.T) {
	mgr := newOwnedManager(t, "host-a")
	a := New("host-a", mgr)
	req := Request{SourceHost: "host-a", TargetHost: "host-b"}

	id, err := a.HandleOperationRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "dev0", id)
	assert.Equal(t, "host-b", mgr.GetPartitionByID("dev0").Owner())
}

func TestAdapterHandleOperationRequestRejectsUninvolvedHost(t *testing.T) {
	a := New("host-c", nil)
	req := Request{SourceHost: "host-a", TargetHost: "host-b"}
	_, err := a.HandleOperationRequest(req)
	assert.Error(t, err)
}

func TestAdapterUndoAndReundoAreNoOps(t *testing.T) {
	a := New("host-a", nil)
	req := Request{SourceHost: "host-a", TargetHost: "host-b"}
	assert.NoError(t, a.HandleOperationUndoRequest(req))
	assert.NoError(t, a.HandleOperationReundoRequest(req))
}

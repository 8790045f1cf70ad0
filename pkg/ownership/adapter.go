// Package ownership implements C11: the change-ownership participant adapter registered with
// the external atomic-operation engine. Grounded on pkg/jdfs/server.go's Mount/StatFS
// request-method shape (plain Go methods invoked by the transport layer, returning a result
// or an error rather than a continuation), adapted to the two-phase coordinator/participant
// contract spec.md §4.11 describes.
package ownership

import (
	"github.com/golang/glog"
	"github.com/google/uuid"

	"github.com/maesker/mdscore/pkg/mdserrors"
	"github.com/maesker/mdscore/pkg/partition"
)

// HostID is a stable identity for one MDS host, used to tell coordinator from participant
// and to stamp a partition's new owner.
type HostID string

// NewHostID mints a random, process-stable host identity (spec §4.11 supplements the
// original's host-address identity with a collision-free generated id).
func NewHostID() HostID {
	return HostID(uuid.NewString())
}

// Request names one change-ownership operation's inputs (spec §4.11).
type Request struct {
	PartitionID  string
	SourceHost   HostID
	TargetHost   HostID
}

// Adapter is C11: the participant the external atomic-operation engine drives through the
// change-ownership protocol's request/rerequest/undo/reundo lifecycle.
type Adapter struct {
	local HostID
	mgr   *partition.Manager
}

// New constructs an Adapter for local, the identity of this MDS host.
func New(local HostID, mgr *partition.Manager) *Adapter {
	return &Adapter{local: local, mgr: mgr}
}

// IsCoordinator is true iff the local host is the operation's target (spec §4.11).
func (a *Adapter) IsCoordinator(req Request) bool {
	return req.TargetHost == a.local
}

// SendingAddresses names the two hosts that must acknowledge the operation (spec §4.11
// "set_sending_addresses").
func (a *Adapter) SendingAddresses(req Request) []HostID {
	return []HostID{req.SourceHost, req.TargetHost}
}

// HandleOperationRequest runs on both participants. On the source it picks a free owned
// partition, stamps the target as its new owner, and returns that partition's device id to
// be written into the operation payload; on the target it is a no-op (spec §4.11).
func (a *Adapter) HandleOperationRequest(req Request) (partitionID string, err error) {
	if req.TargetHost == a.local {
		return req.PartitionID, nil
	}
	if req.SourceHost != a.local {
		return "", mdserrors.New(mdserrors.InvalidState, "change-ownership request for neither source nor target host")
	}

	p, perr := a.mgr.GetFreePartition()
	if perr != nil {
		return "", mdserrors.Wrap(mdserrors.StorageFailure, perr, "change-ownership: no free owned partition to hand to %s", req.TargetHost)
	}
	if serr := p.SetOwner(string(req.TargetHost)); serr != nil {
		return "", mdserrors.Wrap(mdserrors.StorageFailure, serr, "change-ownership: stamping new owner on partition %s", p.ID())
	}
	glog.Infof("ownership: partition %s handed from %s to %s", p.ID(), req.SourceHost, req.TargetHost)
	return p.ID(), nil
}

// HandleOperationRerequest, HandleOperationUndoRequest, and HandleOperationReundoRequest are
// idempotent no-ops in this design: ownership is only materialized on the source's write in
// HandleOperationRequest, which SetOwner already makes durable, so undo has nothing further
// to roll back (spec §4.11).
func (a *Adapter) HandleOperationRerequest(req Request) (string, error) {
	return req.PartitionID, nil
}

func (a *Adapter) HandleOperationUndoRequest(req Request) error   { return nil }
func (a *Adapter) HandleOperationReundoRequest(req Request) error { return nil }

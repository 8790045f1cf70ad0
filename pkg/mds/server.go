package mds

import (
	"fmt"
	"net"
	"os"

	"github.com/complyue/hbi"
	"github.com/complyue/hbi/interop"

	"github.com/maesker/mdscore/pkg/einode"
	"github.com/maesker/mdscore/pkg/mdserrors"
)

// ListenTCP exposes svc's request surface (spec §6) over HBI at servAddr, in the same
// hosting-environment/reactor shape the teacher uses to export a filesystem (pkg/jdfs/tcp.go,
// server.go), generalized from "one reactor per mounted export" to "one reactor per connected
// peer forwarding into the shared Service".
func ListenTCP(svc *Service, servAddr string) error {
	return hbi.ServeTCP(servAddr, func() *hbi.HostingEnv {
		he := hbi.NewHostingEnv()
		interop.ExposeInterOpValues(he)
		he.ExposeValue("ErrNotFound", mdserrors.NotFound.Code())
		he.ExposeValue("ErrStorageFailure", mdserrors.StorageFailure.Code())
		he.ExposeValue("ErrInvalidState", mdserrors.InvalidState.Code())
		he.ExposeValue("ErrOwnershipViolation", mdserrors.OwnershipViolation.Code())
		he.ExposeValue("ErrExhausted", mdserrors.Exhausted.Code())
		he.ExposeValue("ErrConcurrentConflict", mdserrors.ConcurrentConflict.Code())
		he.ExposeValue("ErrParentUnknown", mdserrors.ParentUnknown.Code())

		he.ExposeFunction("__hbi_init__", func(po *hbi.PostingEnd, ho *hbi.HostingEnd) {
			he.ExposeReactor(&reactor{svc: svc, po: po, ho: ho})
		})

		return he
	}, func(listener *net.TCPListener) {
		fmt.Fprintf(os.Stderr, "mdscore listening: %s\n", listener.Addr())
	})
}

// reactor is one connected peer's view of Service, following the teacher's
// exportedFileSystem shape: one method per request kind, using the posting/hosting
// coroutine to receive the request frame and send back the result frame.
type reactor struct {
	svc *Service
	po  *hbi.PostingEnd
	ho  *hbi.HostingEnd
}

func (r *reactor) NamesToExpose() []string {
	return []string{
		"EinodeRequest", "CreateFileEinodeRequest", "UpdateAttributesRequest",
		"DeleteInodeRequest", "ReadDirRequest", "LookupInodeNumberRequest",
		"MoveEinodeRequest", "ParentInodeNumberLookupRequest", "ParentInodeHierarchyRequest",
	}
}

func respCode(err error) int {
	return mdserrors.KindOf(err).Code()
}

func (r *reactor) EinodeRequest(root, inode uint64) {
	co := r.ho.Co()
	if err := co.FinishRecv(); err != nil {
		panic(err)
	}
	rec, err := r.svc.EinodeRequest(root, inode)
	if err := co.StartSend(); err != nil {
		panic(err)
	}
	if err := co.SendObj(hbi.Repr(respCode(err))); err != nil {
		panic(err)
	}
	if err == nil {
		if serr := co.SendObj(hbi.Repr(rec)); serr != nil {
			panic(serr)
		}
	}
}

func (r *reactor) CreateFileEinodeRequest(root, parent uint64, name string, mode, uid, gid uint32) {
	co := r.ho.Co()
	if err := co.FinishRecv(); err != nil {
		panic(err)
	}
	rec, err := r.svc.CreateFileEinodeRequest(root, parent, name, mode, uid, gid)
	if err := co.StartSend(); err != nil {
		panic(err)
	}
	if err := co.SendObj(hbi.Repr(respCode(err))); err != nil {
		panic(err)
	}
	if err == nil {
		if serr := co.SendObj(hbi.Repr(rec)); serr != nil {
			panic(serr)
		}
	}
}

func (r *reactor) UpdateAttributesRequest(root, parent uint64, rec einode.Record) {
	co := r.ho.Co()
	if err := co.FinishRecv(); err != nil {
		panic(err)
	}
	err := r.svc.UpdateAttributesRequest(root, parent, rec)
	if serr := co.StartSend(); serr != nil {
		panic(serr)
	}
	if serr := co.SendObj(hbi.Repr(respCode(err))); serr != nil {
		panic(serr)
	}
}

func (r *reactor) DeleteInodeRequest(root, parent, inode uint64) {
	co := r.ho.Co()
	if err := co.FinishRecv(); err != nil {
		panic(err)
	}
	err := r.svc.DeleteInodeRequest(root, parent, inode)
	if serr := co.StartSend(); serr != nil {
		panic(serr)
	}
	if serr := co.SendObj(hbi.Repr(respCode(err))); serr != nil {
		panic(serr)
	}
}

func (r *reactor) ReadDirRequest(root, parent uint64, offset int64) {
	co := r.ho.Co()
	if err := co.FinishRecv(); err != nil {
		panic(err)
	}
	recs, total, err := r.svc.ReadDirRequest(root, parent, offset)
	if serr := co.StartSend(); serr != nil {
		panic(serr)
	}
	if serr := co.SendObj(hbi.Repr(respCode(err))); serr != nil {
		panic(serr)
	}
	if err == nil {
		if serr := co.SendObj(hbi.Repr(total)); serr != nil {
			panic(serr)
		}
		if serr := co.SendObj(hbi.Repr(recs)); serr != nil {
			panic(serr)
		}
	}
}

func (r *reactor) LookupInodeNumberRequest(root, parent uint64, name string) {
	co := r.ho.Co()
	if err := co.FinishRecv(); err != nil {
		panic(err)
	}
	rec, err := r.svc.LookupInodeNumberRequest(root, parent, name)
	if serr := co.StartSend(); serr != nil {
		panic(serr)
	}
	if serr := co.SendObj(hbi.Repr(respCode(err))); serr != nil {
		panic(serr)
	}
	if err == nil {
		if serr := co.SendObj(hbi.Repr(rec)); serr != nil {
			panic(serr)
		}
	}
}

func (r *reactor) MoveEinodeRequest(root, inode, oldParent, newParent uint64, newName string) {
	co := r.ho.Co()
	if err := co.FinishRecv(); err != nil {
		panic(err)
	}
	err := r.svc.MoveEinodeRequest(root, inode, oldParent, newParent, newName)
	if serr := co.StartSend(); serr != nil {
		panic(serr)
	}
	if serr := co.SendObj(hbi.Repr(respCode(err))); serr != nil {
		panic(serr)
	}
}

func (r *reactor) ParentInodeNumberLookupRequest(root, inode uint64) {
	co := r.ho.Co()
	if err := co.FinishRecv(); err != nil {
		panic(err)
	}
	parent, err := r.svc.ParentInodeNumberLookupRequest(root, inode)
	if serr := co.StartSend(); serr != nil {
		panic(serr)
	}
	if serr := co.SendObj(hbi.Repr(respCode(err))); serr != nil {
		panic(serr)
	}
	if err == nil {
		if serr := co.SendObj(hbi.Repr(parent)); serr != nil {
			panic(serr)
		}
	}
}

func (r *reactor) ParentInodeHierarchyRequest(root, inode uint64) {
	co := r.ho.Co()
	if err := co.FinishRecv(); err != nil {
		panic(err)
	}
	chain, err := r.svc.ParentInodeHierarchyRequest(root, inode)
	if serr := co.StartSend(); serr != nil {
		panic(serr)
	}
	if serr := co.SendObj(hbi.Repr(respCode(err))); serr != nil {
		panic(serr)
	}
	if err == nil {
		if serr := co.SendObj(hbi.Repr(chain)); serr != nil {
			panic(serr)
		}
	}
}

// Package objstore implements C1: a byte-addressable object store backed by a local
// directory, one file per object. Grounded on the teacher's local-filesystem access style in
// pkg/jdfs/fsd.go and pkg/jdfs/dfa.go (os.OpenFile/os.Lstat/os.Readdir idioms), generalized
// from "export root for a mounted fs" to "object namespace for one partition/device".
package objstore

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/golang/glog"

	"github.com/maesker/mdscore/pkg/mdserrors"
)

// Device is C1's contract: read/write/truncate/size/has/remove/list, per object name.
type Device interface {
	Read(id string, off int64, length int) ([]byte, error)
	Write(id string, off int64, data []byte, sync bool) error
	Truncate(id string, length int64) error
	Size(id string) (int64, bool)
	Has(id string) bool
	Remove(id string) error
	List() ([]string, error)

	// ID returns a stable identifier for this device, used by the partition manager's
	// ownership hash (spec §4.2).
	ID() string
}

// DirDevice is the local-directory-backed implementation of Device.
type DirDevice struct {
	root string
	id   string
}

// NewDirDevice opens (creating if absent) a directory to back one Device.
func NewDirDevice(root, id string) (*DirDevice, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, mdserrors.Wrap(mdserrors.StorageFailure, err, "mkdir device root %q", root)
	}
	return &DirDevice{root: root, id: id}, nil
}

func (d *DirDevice) ID() string { return d.id }

func (d *DirDevice) path(id string) string {
	return filepath.Join(d.root, id)
}

func (d *DirDevice) Read(id string, off int64, length int) ([]byte, error) {
	f, err := os.OpenFile(d.path(id), os.O_RDONLY, 0)
	if err != nil {
		return nil, mdserrors.Wrap(mdserrors.StorageFailure, err, "read open %q", id)
	}
	defer f.Close()

	buf := make([]byte, length)
	n, err := f.ReadAt(buf, off)
	if err != nil && err != io.EOF {
		return nil, mdserrors.Wrap(mdserrors.StorageFailure, err, "read %q@%d+%d", id, off, length)
	}
	return buf[:n], nil
}

func (d *DirDevice) Write(id string, off int64, data []byte, sync bool) error {
	f, err := os.OpenFile(d.path(id), os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return mdserrors.Wrap(mdserrors.StorageFailure, err, "write open %q", id)
	}
	defer f.Close()

	n, err := f.WriteAt(data, off)
	if err != nil {
		return mdserrors.Wrap(mdserrors.StorageFailure, err, "write %q@%d", id, off)
	}
	if n != len(data) {
		return mdserrors.New(mdserrors.StorageFailure, "short write on %q: %d of %d bytes", id, n, len(data))
	}
	if sync {
		if err := f.Sync(); err != nil {
			return mdserrors.Wrap(mdserrors.StorageFailure, err, "fsync %q", id)
		}
	}
	return nil
}

func (d *DirDevice) Truncate(id string, length int64) error {
	if err := os.Truncate(d.path(id), length); err != nil {
		if os.IsNotExist(err) && length == 0 {
			f, cerr := os.Create(d.path(id))
			if cerr != nil {
				return mdserrors.Wrap(mdserrors.StorageFailure, cerr, "create-truncate %q", id)
			}
			return f.Close()
		}
		return mdserrors.Wrap(mdserrors.StorageFailure, err, "truncate %q to %d", id, length)
	}
	return nil
}

func (d *DirDevice) Size(id string) (int64, bool) {
	fi, err := os.Stat(d.path(id))
	if err != nil {
		return 0, false
	}
	return fi.Size(), true
}

func (d *DirDevice) Has(id string) bool {
	_, err := os.Stat(d.path(id))
	return err == nil
}

func (d *DirDevice) Remove(id string) error {
	if err := os.Remove(d.path(id)); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return mdserrors.Wrap(mdserrors.StorageFailure, err, "remove %q", id)
	}
	return nil
}

// List returns every object that is not a hidden dot-entry (spec §4.1).
func (d *DirDevice) List() ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, mdserrors.Wrap(mdserrors.StorageFailure, err, "readdir device root %q", d.root)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if e.IsDir() {
			glog.Warningf("objstore: unexpected subdirectory %q under device root %q, ignoring", name, d.root)
			continue
		}
		ids = append(ids, name)
	}
	sort.Strings(ids)
	return ids, nil
}

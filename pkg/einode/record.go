// Package einode implements C6 (parent cache, see parentcache.go) and C7 (the einode
// directory engine, see engine.go) over the packed-einode directory layout of spec §3/§6.
// Grounded on deploymenttheory-go-apfs's fixed-size binary record decode helpers, adapted
// from read-only btree/superblock parsing to a read-write packed-array-of-records layout.
package einode

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/maesker/mdscore/pkg/mdserrors"
)

// Constants (design-time, spec §6).
const (
	MaxNameLen  = 255
	MaxPathLen  = 1024
	LayoutBytes = 256

	nameFieldLen = MaxNameLen + 1 // null terminator

	// RecordSize is the stable, fixed size of one einode record (spec §3: "the record size
	// is stable; directory objects are strictly arrays of this record").
	RecordSize = nameFieldLen + inodePayloadLen
)

const inodePayloadLen = 8 + 4 + 8 + 4 + 4 + 4 + 8 + 8 + 8 + 1 + LayoutBytes

// InodeNumber is the 64-bit unsigned inode number (spec §3).
type InodeNumber = uint64

const (
	// RootInode is reserved for the file-system root (spec §3).
	RootInode InodeNumber = 1
	// InvalidInode is reserved to mean "no inode" (spec §3).
	InvalidInode InodeNumber = 0
)

// Inode is the inode payload carried by every einode record.
type Inode struct {
	Number InodeNumber
	Mode   uint32
	Size   uint64
	Nlink  uint32
	UID    uint32
	GID    uint32
	Atime  time.Time
	Mtime  time.Time
	Ctime  time.Time
	HasACL bool
	Layout [LayoutBytes]byte
}

// Record is one einode directory entry: a name plus its inode payload (spec §3).
type Record struct {
	Name  string
	Inode Inode
}

func encodeTime(t time.Time) int64 { return t.UnixNano() }
func decodeTime(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}

// Encode serializes a Record into one fixed-size RecordSize buffer.
func Encode(r Record) ([]byte, error) {
	if len(r.Name) > MaxNameLen {
		return nil, mdserrors.New(mdserrors.InvalidState, "name %q exceeds MaxNameLen %d", r.Name, MaxNameLen)
	}
	buf := make([]byte, RecordSize)
	copy(buf[0:nameFieldLen], r.Name)

	o := nameFieldLen
	binary.LittleEndian.PutUint64(buf[o:o+8], r.Inode.Number)
	o += 8
	binary.LittleEndian.PutUint32(buf[o:o+4], r.Inode.Mode)
	o += 4
	binary.LittleEndian.PutUint64(buf[o:o+8], r.Inode.Size)
	o += 8
	binary.LittleEndian.PutUint32(buf[o:o+4], r.Inode.Nlink)
	o += 4
	binary.LittleEndian.PutUint32(buf[o:o+4], r.Inode.UID)
	o += 4
	binary.LittleEndian.PutUint32(buf[o:o+4], r.Inode.GID)
	o += 4
	binary.LittleEndian.PutUint64(buf[o:o+8], uint64(encodeTime(r.Inode.Atime)))
	o += 8
	binary.LittleEndian.PutUint64(buf[o:o+8], uint64(encodeTime(r.Inode.Mtime)))
	o += 8
	binary.LittleEndian.PutUint64(buf[o:o+8], uint64(encodeTime(r.Inode.Ctime)))
	o += 8
	if r.Inode.HasACL {
		buf[o] = 1
	}
	o++
	copy(buf[o:o+LayoutBytes], r.Inode.Layout[:])

	return buf, nil
}

// Decode parses one fixed-size RecordSize buffer back into a Record.
func Decode(buf []byte) (Record, error) {
	if len(buf) != RecordSize {
		return Record{}, mdserrors.New(mdserrors.StorageFailure, "einode record size %d != expected %d", len(buf), RecordSize)
	}
	var r Record
	if i := bytes.IndexByte(buf[0:nameFieldLen], 0); i >= 0 {
		r.Name = string(buf[0:i])
	} else {
		r.Name = string(buf[0:nameFieldLen])
	}

	o := nameFieldLen
	r.Inode.Number = binary.LittleEndian.Uint64(buf[o : o+8])
	o += 8
	r.Inode.Mode = binary.LittleEndian.Uint32(buf[o : o+4])
	o += 4
	r.Inode.Size = binary.LittleEndian.Uint64(buf[o : o+8])
	o += 8
	r.Inode.Nlink = binary.LittleEndian.Uint32(buf[o : o+4])
	o += 4
	r.Inode.UID = binary.LittleEndian.Uint32(buf[o : o+4])
	o += 4
	r.Inode.GID = binary.LittleEndian.Uint32(buf[o : o+4])
	o += 4
	r.Inode.Atime = decodeTime(int64(binary.LittleEndian.Uint64(buf[o : o+8])))
	o += 8
	r.Inode.Mtime = decodeTime(int64(binary.LittleEndian.Uint64(buf[o : o+8])))
	o += 8
	r.Inode.Ctime = decodeTime(int64(binary.LittleEndian.Uint64(buf[o : o+8])))
	o += 8
	r.Inode.HasACL = buf[o] != 0
	o++
	copy(r.Inode.Layout[:], buf[o:o+LayoutBytes])

	return r, nil
}

// DecodeChildren extracts just the child inode numbers from a raw directory object, used by
// partition.DirChildren when walking a subtree for migration/removal.
func DecodeChildren(raw []byte) ([]uint64, error) {
	if len(raw)%RecordSize != 0 {
		return nil, mdserrors.New(mdserrors.StorageFailure, "directory object size %d not a multiple of record size %d", len(raw), RecordSize)
	}
	n := len(raw) / RecordSize
	out := make([]uint64, 0, n)
	for i := 0; i < n; i++ {
		rec, err := Decode(raw[i*RecordSize : (i+1)*RecordSize])
		if err != nil {
			return nil, err
		}
		out = append(out, rec.Inode.Number)
	}
	return out, nil
}

// DirObjectName is the decimal-ASCII object name for a directory's packed-einode object
// (spec §3: "named by the decimal ASCII of the parent's inode number").
func DirObjectName(inode InodeNumber) string {
	return uitoa(inode)
}

func uitoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

package einode

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	now := time.Now().UTC()
	rec := Record{
		Name: "some-file.txt",
		Inode: Inode{
			Number: 42,
			Mode:   0644,
			Size:   1024,
			Nlink:  1,
			UID:    1000,
			GID:    1000,
			Atime:  now,
			Mtime:  now,
			Ctime:  now,
			HasACL: true,
		},
	}
	rec.Inode.Layout[0] = 0xAB

	buf, err := Encode(rec)
	require.NoError(t, err)
	assert.Len(t, buf, RecordSize)

	got, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, rec.Name, got.Name)
	assert.Equal(t, rec.Inode.Number, got.Inode.Number)
	assert.Equal(t, rec.Inode.Mode, got.Inode.Mode)
	assert.Equal(t, rec.Inode.Size, got.Inode.Size)
	assert.True(t, got.Inode.HasACL)
	assert.Equal(t, rec.Inode.Atime.UnixNano(), got.Inode.Atime.UnixNano())
	assert.Equal(t, byte(0xAB), got.Inode.Layout[0])
}

func TestEncodeRejectsOverlongName(t *testing.T) {
	name := make([]byte, MaxNameLen+1)
	for i := range name {
		name[i] = 'a'
	}
	_, err := Encode(Record{Name: string(name)})
	assert.Error(t, err)
}

func TestDecodeRejectsWrongSize(t *testing.T) {
	_, err := Decode(make([]byte, RecordSize-1))
	assert.Error(t, err)
}

func TestDecodeChildren(t *testing.T) {
	var raw []byte
	for _, n := range []uint64{2, 3, 4} {
		buf, err := Encode(Record{Name: "x", Inode: Inode{Number: n}})
		require.NoError(t, err)
		raw = append(raw, buf...)
	}
	children, err := DecodeChildren(raw)
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 3, 4}, children)
}

func TestDirObjectName(t *testing.T) {
	assert.Equal(t, "0", DirObjectName(0))
	assert.Equal(t, "1", DirObjectName(1))
	assert.Equal(t, "12345", DirObjectName(12345))
}

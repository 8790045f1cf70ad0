package inocache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maesker/mdscore/pkg/einode"
)

func TestParentEntryAddAndLookup(t *testing.T) {
	pe := NewParentEntry()
	require.NoError(t, pe.AddEntry(einode.Record{Name: "a", Inode: einode.Inode{Number: 2}}))

	res, rec := pe.LookupByObjectName("a")
	assert.Equal(t, ResultPresent, res)
	assert.Equal(t, einode.InodeNumber(2), rec.Inode.Number)

	res, _ = pe.LookupByObjectName("missing")
	assert.Equal(t, ResultNotPresent, res)
}

func TestParentEntryAddDuplicateRejected(t *testing.T) {
	pe := NewParentEntry()
	require.NoError(t, pe.AddEntry(einode.Record{Name: "a", Inode: einode.Inode{Number: 2}}))
	err := pe.AddEntry(einode.Record{Name: "a2", Inode: einode.Inode{Number: 2}})
	assert.Error(t, err)
}

func TestParentEntryUpdateCreatesCacheOnly(t *testing.T) {
	pe := NewParentEntry()
	pe.UpdateEntry(einode.Record{Name: "new", Inode: einode.Inode{Number: 5}}, OpAttrUpdate)
	assert.True(t, pe.IsDirty())

	code, rec := pe.HandleWriteBackUpdate(5)
	assert.Equal(t, WBCreate, code)
	assert.Equal(t, "new", rec.Name)
}

func TestParentEntryDeleteBeforeWriteBackIsDiscarded(t *testing.T) {
	pe := NewParentEntry()
	pe.UpdateEntry(einode.Record{Name: "new", Inode: einode.Inode{Number: 5}}, OpAttrUpdate)
	pe.UpdateEntry(einode.Record{Name: "new", Inode: einode.Inode{Number: 5}}, OpDelete)

	code, _ := pe.HandleWriteBackDelete(5)
	assert.Equal(t, WBDiscarded, code)
}

func TestParentEntryPersistedDeleteNeedsStorageDelete(t *testing.T) {
	pe := NewParentEntry()
	require.NoError(t, pe.AddEntry(einode.Record{Name: "a", Inode: einode.Inode{Number: 2}}))
	pe.UpdateEntry(einode.Record{Name: "a", Inode: einode.Inode{Number: 2}}, OpDelete)

	code, _ := pe.HandleWriteBackDelete(2)
	assert.Equal(t, WBDelete, code)
}

func TestParentEntryMoveFromMoveTo(t *testing.T) {
	src := NewParentEntry()
	dst := NewParentEntry()
	require.NoError(t, src.AddEntry(einode.Record{Name: "f", Inode: einode.Inode{Number: 9}}))

	rec, ok := src.MoveFrom(9)
	require.True(t, ok)

	rec.Name = "f-renamed"
	dst.MoveTo(1, rec)

	code, out := dst.HandleWriteBackUpdate(9)
	assert.Equal(t, WBDeleteAfter, code)
	assert.Equal(t, "f-renamed", out.Name)

	delCode, _ := src.HandleWriteBackDelete(9)
	assert.Equal(t, WBDelete, delCode)
}

func TestParentEntryReadDirPagination(t *testing.T) {
	pe := NewParentEntry()
	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, pe.AddEntry(einode.Record{Name: "n", Inode: einode.Inode{Number: i}}))
	}

	recs, total := pe.ReadDir(0, 2)
	assert.Equal(t, 5, total)
	assert.Len(t, recs, 2)

	recs, _ = pe.ReadDir(4, 2)
	assert.Len(t, recs, 1)

	recs, _ = pe.ReadDir(10, 2)
	assert.Empty(t, recs)
}

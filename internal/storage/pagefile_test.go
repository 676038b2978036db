package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kafaichoi/minipg/internal/record"
)

func newTestFM(t *testing.T) *FileManager {
	t.Helper()
	fm, err := NewFileManager(t.TempDir())
	require.NoError(t, err)
	return fm
}

func TestFileManager_CreateWritesHeaderPage(t *testing.T) {
	fm := newTestFM(t)

	require.False(t, fm.Exists("users"))
	require.NoError(t, fm.Create("users"))
	require.True(t, fm.Exists("users"))

	count, err := fm.PageCount("users")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	header, err := fm.Read("users", 0)
	require.NoError(t, err)

	blobs, err := header.RawTuples()
	require.NoError(t, err)
	require.Len(t, blobs, 1)

	rowID, meta, err := DecodeMapTuple(blobs[0])
	require.NoError(t, err)
	assert.Equal(t, uint64(0), rowID)
	assert.Equal(t, "users", meta[MetaKeyTableName])
	assert.Equal(t, int64(PageFormatVersion), meta[MetaKeyFormat])
	assert.Equal(t, int64(0), meta[MetaKeyTotalTuples])
}

func TestFileManager_Create_AlreadyExists(t *testing.T) {
	fm := newTestFM(t)

	require.NoError(t, fm.Create("users"))
	err := fm.Create("users")
	require.ErrorIs(t, err, ErrFileAlreadyExists)
}

func TestFileManager_Read_Errors(t *testing.T) {
	fm := newTestFM(t)

	_, err := fm.Read("ghost", 0)
	require.ErrorIs(t, err, ErrFileNotFound)

	require.NoError(t, fm.Create("users"))
	_, err = fm.Read("users", 5)
	require.ErrorIs(t, err, ErrPageNotFound)
}

func TestFileManager_Read_PartialPage(t *testing.T) {
	fm := newTestFM(t)
	require.NoError(t, fm.Create("users"))

	// truncate mid-page
	path := filepath.Join(fm.Dir(), "users.pages")
	require.NoError(t, os.Truncate(path, PageSize+100))

	_, err := fm.Read("users", 1)
	require.ErrorIs(t, err, ErrDeserialize)
}

func TestFileManager_WriteAndAppend(t *testing.T) {
	fm := newTestFM(t)
	require.NoError(t, fm.Create("users"))

	p1 := NewPage(1)
	require.NoError(t, p1.AddTuple(1, []record.Value{record.Text("row one")}))

	pageNo, err := fm.Append("users", p1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), pageNo)

	count, err := fm.PageCount("users")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	// overwrite in place
	p1b := NewPage(1)
	require.NoError(t, p1b.AddTuple(1, []record.Value{record.Text("rewritten")}))
	require.NoError(t, fm.Write("users", 1, p1b))

	got, err := fm.Read("users", 1)
	require.NoError(t, err)
	tuples, err := got.Tuples()
	require.NoError(t, err)
	require.Len(t, tuples, 1)
	assert.Equal(t, "rewritten", tuples[0].Values[0].Str)
}

func TestFileManager_Write_MissingFile(t *testing.T) {
	fm := newTestFM(t)
	err := fm.Write("ghost", 0, NewPage(0))
	require.ErrorIs(t, err, ErrFileNotFound)
}

func TestFileManager_FindPageWithSpace(t *testing.T) {
	fm := newTestFM(t)
	require.NoError(t, fm.Create("users"))

	// header only: no data pages yet
	_, err := fm.FindPageWithSpace("users", 10)
	require.ErrorIs(t, err, ErrNoDataPages)

	// page 1 nearly full, page 2 empty: first fit must pick 2 for a big
	// tuple and 1 for a small one
	full := NewPage(1)
	for full.HasSpaceFor(600) {
		require.NoError(t, full.AddTuple(0, []record.Value{record.Text(string(make([]byte, 580)))}))
	}
	_, err = fm.Append("users", full)
	require.NoError(t, err)
	_, err = fm.Append("users", NewPage(2))
	require.NoError(t, err)

	n, err := fm.FindPageWithSpace("users", 600)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)

	n, err = fm.FindPageWithSpace("users", 8)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
}

func TestFileManager_FindPageWithSpace_NoSpace(t *testing.T) {
	fm := newTestFM(t)
	require.NoError(t, fm.Create("users"))
	_, err := fm.Append("users", NewPage(1))
	require.NoError(t, err)

	_, err = fm.FindPageWithSpace("users", PageSize)
	require.ErrorIs(t, err, ErrNoSpace)
}

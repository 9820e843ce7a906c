package wal

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Seq  int    `json:"seq"`
	Note string `json:"note"`
}

func readRecords(t *testing.T, w *WAL) []record {
	t.Helper()
	var out []record
	require.NoError(t, w.ReadAll(func(raw []byte) error {
		var r record
		if err := json.Unmarshal(raw, &r); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	}))
	return out
}

func TestWAL_WriteAndReadAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")

	w, err := NewWAL(path)
	require.NoError(t, err)
	require.NoError(t, w.Write(record{Seq: 1, Note: "a"}))
	require.NoError(t, w.Write(record{Seq: 2, Note: "b"}))
	require.NoError(t, w.Close())

	reopened, err := NewWAL(path)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, []record{{1, "a"}, {2, "b"}}, readRecords(t, reopened))

	// 讀完之後仍然可以繼續追加
	require.NoError(t, reopened.Write(record{Seq: 3, Note: "c"}))
	assert.Len(t, readRecords(t, reopened), 3)
}

func TestWAL_TruncatesTornTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")

	w, err := NewWAL(path)
	require.NoError(t, err)
	require.NoError(t, w.Write(record{Seq: 1, Note: "ok"}))
	require.NoError(t, w.Close())

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, FileModePrivate)
	require.NoError(t, err)
	_, err = f.WriteString(`{"seq":2,"no`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reopened, err := NewWAL(path)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, []record{{1, "ok"}}, readRecords(t, reopened))

	require.NoError(t, reopened.Write(record{Seq: 2, Note: "again"}))
	assert.Equal(t, []record{{1, "ok"}, {2, "again"}}, readRecords(t, reopened))
}

func TestWAL_CallbackErrorStopsReplay(t *testing.T) {
	w, err := NewWAL(filepath.Join(t.TempDir(), "wal.log"))
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.Write(record{Seq: 1}))
	require.NoError(t, w.Write(record{Seq: 2}))

	calls := 0
	err = w.ReadAll(func([]byte) error {
		calls++
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, calls)
}

// faultyFile 依設定讓 Write / Sync / Truncate 失敗
type faultyFile struct {
	*os.File
	tornWrite    bool
	failSync     bool
	failTruncate bool
}

func (f *faultyFile) Write(p []byte) (int, error) {
	if f.tornWrite {
		n, _ := f.File.Write(p[:len(p)/2])
		return n, errors.New("disk full")
	}
	return f.File.Write(p)
}

func (f *faultyFile) Sync() error {
	if f.failSync {
		return errors.New("fsync failed")
	}
	return f.File.Sync()
}

func (f *faultyFile) Truncate(size int64) error {
	if f.failTruncate {
		return errors.New("truncate failed")
	}
	return f.File.Truncate(size)
}

func openFaulty(t *testing.T, path string) (*WAL, *faultyFile) {
	t.Helper()
	w, err := NewWAL(path)
	require.NoError(t, err)
	ff := &faultyFile{File: w.file.(*os.File)}
	w.file = ff
	return w, ff
}

func TestWAL_FailedSyncIsRolledBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	w, ff := openFaulty(t, path)
	require.NoError(t, w.Write(record{Seq: 1, Note: "kept"}))

	ff.failSync = true
	err := w.Write(record{Seq: 2, Note: "lost"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBroken)

	ff.failSync = false
	require.NoError(t, w.Write(record{Seq: 3, Note: "after"}))
	require.NoError(t, w.Close())

	reopened, err := NewWAL(path)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, []record{{1, "kept"}, {3, "after"}}, readRecords(t, reopened))
}

func TestWAL_TornWriteIsRolledBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	w, ff := openFaulty(t, path)
	require.NoError(t, w.Write(record{Seq: 1, Note: "kept"}))

	ff.tornWrite = true
	require.Error(t, w.Write(record{Seq: 2, Note: "half written"}))

	// 後續的資料不能接在殘缺資料之後
	ff.tornWrite = false
	require.NoError(t, w.Write(record{Seq: 3, Note: "after"}))
	require.NoError(t, w.Close())

	reopened, err := NewWAL(path)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, []record{{1, "kept"}, {3, "after"}}, readRecords(t, reopened))
}

func TestWAL_BrokenAfterFailedRollback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	w, ff := openFaulty(t, path)
	require.NoError(t, w.Write(record{Seq: 1, Note: "kept"}))

	ff.tornWrite = true
	ff.failTruncate = true
	assert.ErrorIs(t, w.Write(record{Seq: 2}), ErrBroken)

	ff.tornWrite = false
	ff.failTruncate = false
	assert.ErrorIs(t, w.Write(record{Seq: 3}), ErrBroken)

	info, err := os.Stat(path)
	require.NoError(t, err)
	sizeAfterBreak := info.Size()
	assert.ErrorIs(t, w.Write(record{Seq: 4}), ErrBroken)
	info, err = os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, sizeAfterBreak, info.Size())
	require.NoError(t, w.Close())
}

func TestWAL_WriteAfterReadAllAppendsAtEnd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	w, err := NewWAL(path)
	require.NoError(t, err)
	require.NoError(t, w.Write(record{Seq: 1}))
	require.NoError(t, w.Close())

	w, ff := openFaulty(t, path)
	defer w.Close()
	assert.Len(t, readRecords(t, w), 1)

	// 截斷的位置必須是既有資料的結尾，而不是 0
	ff.failSync = true
	require.Error(t, w.Write(record{Seq: 2}))
	ff.failSync = false
	assert.Equal(t, []record{{Seq: 1}}, readRecords(t, w))
}

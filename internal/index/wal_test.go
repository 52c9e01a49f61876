package index

import (
	"encoding/json"
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lshann/internal/dataset"
	"lshann/internal/wal"
	pkgerrors "lshann/pkg/errors"
)

func TestWALEntryEncodeDecode(t *testing.T) {
	// 测试创建索引操作
	data, err := json.Marshal(&CreateIndexData{
		Config: IndexConfig{Ranking: "furthest", Workers: 2, Seed: 7},
		Points: [][]float64{{1, 2}, {3, 4}},
	})
	require.NoError(t, err)
	entry := &WALEntry{OpType: WALOpCreateIndex, Index: "points", Data: data}

	encoded, err := encodeWALEntry(entry)
	require.NoError(t, err)
	decoded, err := decodeWALEntry(encoded)
	require.NoError(t, err)
	assert.Equal(t, entry.OpType, decoded.OpType)
	assert.Equal(t, entry.Index, decoded.Index)

	var create CreateIndexData
	require.NoError(t, json.Unmarshal(decoded.Data, &create))
	assert.Equal(t, "furthest", create.Config.Ranking)
	assert.Equal(t, [][]float64{{1, 2}, {3, 4}}, create.Points)

	// 测试无效数据
	_, err = decodeWALEntry([]byte("invalid json"))
	assert.Error(t, err)
}

func TestManagerLogsCreate(t *testing.T) {
	dir := t.TempDir()
	manager := setupTestManager(t, dir)

	points := testPoints(11, 30, 2)
	_, err := manager.CreateIndex("points", testConfig(manager), points)
	require.NoError(t, err)

	// Close drains the queued save, which retires the log.
	require.NoError(t, manager.Close())
	_, err = os.Stat(path.Join(dir, "walfile", "points.wal"))
	assert.True(t, os.IsNotExist(err))
}

func TestManagerReplaysUnsavedCreate(t *testing.T) {
	dir := t.TempDir()
	manager := setupTestManager(t, dir)
	conf := testConfig(manager)
	conf.Ranking = "furthest"
	points := testPoints(12, 120, 3)

	// Simulate a crash after the create was logged but before any snapshot.
	require.NoError(t, manager.logCreate("points", conf, points))
	require.NoError(t, manager.Close())

	reopened := setupTestManager(t, dir)
	x, err := reopened.GetIndex("points")
	require.NoError(t, err)
	assert.Equal(t, 120, x.Reference().Len())
	assert.Equal(t, "furthest", x.Policy().String())

	// The replayed index is trained the same way as the original would be.
	want, err := reopened.train(conf, points)
	require.NoError(t, err)
	defer want.Close()
	queries, err := dataset.FromPoints(testPoints(13, 5, 3))
	require.NoError(t, err)
	wantRes, err := want.Search(queries, 2, 0)
	require.NoError(t, err)
	gotRes, err := x.Search(queries, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, wantRes, gotRes)

	// After the replayed index is saved the log is gone.
	require.NoError(t, reopened.Close())
	_, err = os.Stat(path.Join(dir, "walfile", "points.wal"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(path.Join(dir, "indexfile", "points.lsh"))
	assert.NoError(t, err)
}

func TestManagerSkipsUnreadableLogs(t *testing.T) {
	dir := t.TempDir()
	walPath := path.Join(dir, "walfile")
	require.NoError(t, os.MkdirAll(walPath, 0755))

	w, err := wal.NewWriter(path.Join(walPath, "garbage.wal"))
	require.NoError(t, err)
	require.NoError(t, w.Write([]byte("garbage"), []byte("not json")))
	require.NoError(t, w.Close())
	require.NoError(t, os.WriteFile(path.Join(walPath, "torn.wal"), []byte{0x05}, 0644))

	manager := setupTestManager(t, dir)
	assert.Empty(t, manager.List())
}

func TestManagerDeleteRemovesLog(t *testing.T) {
	dir := t.TempDir()
	manager := setupTestManager(t, dir)
	conf := testConfig(manager)

	_, err := manager.CreateIndex("other", conf, testPoints(15, 20, 2))
	require.NoError(t, err)
	require.NoError(t, manager.DeleteIndex("other"))

	_, err = os.Stat(path.Join(dir, "walfile", "other.wal"))
	assert.True(t, os.IsNotExist(err))
}

func TestManagerCreateCleansUpWhenLogFails(t *testing.T) {
	dir := t.TempDir()
	manager := setupTestManager(t, dir)

	// A plain file where the log directory belongs makes logging fail.
	require.NoError(t, os.WriteFile(path.Join(dir, "walfile"), nil, 0644))

	_, err := manager.CreateIndex("points", testConfig(manager), testPoints(16, 20, 2))
	require.Error(t, err)

	_, err = os.Stat(path.Join(dir, "indexfile", "points.conf"))
	assert.True(t, os.IsNotExist(err))
	_, err = manager.GetIndex("points")
	assert.ErrorIs(t, err, pkgerrors.ErrIndexNotFound)
}

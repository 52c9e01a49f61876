package index

import (
	"encoding/json"
	"math/rand/v2"
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lshann/internal/config"
	"lshann/internal/dataset"
	"lshann/internal/lsh"
	pkgerrors "lshann/pkg/errors"
)

func setupTestManager(t *testing.T, dir string) *Manager {
	t.Helper()
	conf := config.Default()
	conf.Dir = dir
	conf.Index.Seed = 99

	manager, err := NewIndexManager(conf)
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	return manager
}

func testPoints(seed uint64, n, dims int) [][]float64 {
	rng := rand.New(rand.NewPCG(seed, seed))
	points := make([][]float64, n)
	for i := range points {
		points[i] = make([]float64, dims)
		for j := range points[i] {
			points[i][j] = rng.Float64()
		}
	}
	return points
}

func testConfig(m *Manager) IndexConfig {
	conf := m.DefaultIndexConfig()
	conf.Params.NumProj = 3
	conf.Params.NumTables = 4
	return conf
}

func TestManagerCreateIndex(t *testing.T) {
	manager := setupTestManager(t, t.TempDir())
	conf := testConfig(manager)

	x, err := manager.CreateIndex("points", conf, testPoints(1, 100, 4))
	require.NoError(t, err)
	assert.NotNil(t, x)
	assert.True(t, x.OwnsReference())
	assert.Equal(t, 4, x.Params().Dims)

	// Verify config file was created
	configData, err := os.ReadFile(path.Join(manager.conf.Dir, "indexfile", "points.conf"))
	require.NoError(t, err)
	var savedConfig IndexConfig
	require.NoError(t, json.Unmarshal(configData, &savedConfig))
	assert.Equal(t, conf, savedConfig)

	// Test duplicate creation
	_, err = manager.CreateIndex("points", conf, testPoints(2, 10, 4))
	assert.ErrorIs(t, err, pkgerrors.ErrIndexExists)
}

func TestManagerCreateIndexValidation(t *testing.T) {
	manager := setupTestManager(t, t.TempDir())
	conf := testConfig(manager)

	for _, name := range []string{"", "..", "a/b", `a\b`} {
		_, err := manager.CreateIndex(name, conf, testPoints(1, 10, 2))
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidParameter, name)
	}

	_, err := manager.CreateIndex("ragged", conf, [][]float64{{1, 2}, {3}})
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidDimension)

	_, err = manager.CreateIndex("empty", conf, nil)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidDimension)

	bad := conf
	bad.Ranking = "sideways"
	_, err = manager.CreateIndex("ranking", bad, testPoints(1, 10, 2))
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidParameter)

	bad = conf
	bad.Params.Dims = 3
	_, err = manager.CreateIndex("dims", bad, testPoints(1, 10, 2))
	assert.ErrorIs(t, err, pkgerrors.ErrDimensionMismatch)

	assert.Empty(t, manager.List())
}

func TestManagerGetIndex(t *testing.T) {
	manager := setupTestManager(t, t.TempDir())

	_, err := manager.GetIndex("missing")
	assert.ErrorIs(t, err, pkgerrors.ErrIndexNotFound)

	created, err := manager.CreateIndex("points", testConfig(manager), testPoints(3, 50, 3))
	require.NoError(t, err)
	got, err := manager.GetIndex("points")
	require.NoError(t, err)
	assert.Same(t, created, got)
}

func TestManagerListAndInfo(t *testing.T) {
	manager := setupTestManager(t, t.TempDir())
	conf := testConfig(manager)
	conf.Workers = 2

	_, err := manager.CreateIndex("b", conf, testPoints(4, 30, 2))
	require.NoError(t, err)
	conf.Ranking = "furthest"
	_, err = manager.CreateIndex("a", conf, testPoints(5, 20, 2))
	require.NoError(t, err)

	list := manager.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Name)
	assert.Equal(t, "furthest", list[0].Ranking)
	assert.Equal(t, 20, list[0].Points)
	assert.Equal(t, "b", list[1].Name)
	assert.Equal(t, "nearest", list[1].Ranking)

	info, err := manager.Info("b")
	require.NoError(t, err)
	assert.Equal(t, 30, info.Points)
	assert.Equal(t, 2, info.Workers)
	assert.Positive(t, info.Rows)
	assert.Greater(t, info.Params.HashWidth, 0.0)

	_, err = manager.Info("c")
	assert.ErrorIs(t, err, pkgerrors.ErrIndexNotFound)
}

func TestManagerPersistence(t *testing.T) {
	dir := t.TempDir()
	manager := setupTestManager(t, dir)
	points := testPoints(6, 200, 5)

	x, err := manager.CreateIndex("points", testConfig(manager), points)
	require.NoError(t, err)
	queries, err := dataset.FromPoints(testPoints(7, 10, 5))
	require.NoError(t, err)
	want, err := x.Search(queries, 3, 0)
	require.NoError(t, err)

	// Close drains the background save queue.
	require.NoError(t, manager.Close())
	_, err = os.Stat(path.Join(dir, "indexfile", "points.lsh"))
	require.NoError(t, err)

	reopened := setupTestManager(t, dir)
	loaded, err := reopened.GetIndex("points")
	require.NoError(t, err)
	assert.True(t, loaded.OwnsReference())
	assert.Equal(t, lsh.NearestFirst, loaded.Policy())

	got, err := loaded.Search(queries, 3, 0)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestManagerSaveIndex(t *testing.T) {
	dir := t.TempDir()
	manager := setupTestManager(t, dir)

	assert.ErrorIs(t, manager.SaveIndex("missing"), pkgerrors.ErrIndexNotFound)

	_, err := manager.CreateIndex("points", testConfig(manager), testPoints(8, 40, 3))
	require.NoError(t, err)
	require.NoError(t, manager.SaveIndex("points"))

	_, err = os.Stat(path.Join(dir, "indexfile", "points.lsh"))
	assert.NoError(t, err)
}

func TestManagerDeleteIndex(t *testing.T) {
	dir := t.TempDir()
	manager := setupTestManager(t, dir)

	x, err := manager.CreateIndex("points", testConfig(manager), testPoints(9, 40, 3))
	require.NoError(t, err)
	require.NoError(t, manager.SaveIndex("points"))

	require.NoError(t, manager.DeleteIndex("points"))
	assert.Zero(t, x.Reference().Len(), "owned reference set released")
	assert.Nil(t, x.Tables())

	_, err = manager.GetIndex("points")
	assert.ErrorIs(t, err, pkgerrors.ErrIndexNotFound)
	_, err = os.Stat(path.Join(dir, "indexfile", "points.lsh"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(path.Join(dir, "indexfile", "points.conf"))
	assert.True(t, os.IsNotExist(err))

	assert.ErrorIs(t, manager.DeleteIndex("points"), pkgerrors.ErrIndexNotFound)

	// The name can be reused.
	_, err = manager.CreateIndex("points", testConfig(manager), testPoints(10, 40, 3))
	assert.NoError(t, err)
}

func TestManagerSkipsUnreadableIndexes(t *testing.T) {
	dir := t.TempDir()
	indexPath := path.Join(dir, "indexfile")
	require.NoError(t, os.MkdirAll(indexPath, 0755))

	conf, err := json.Marshal(IndexConfig{Params: lsh.DefaultParams()})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path.Join(indexPath, "garbage.conf"), conf, 0644))
	require.NoError(t, os.WriteFile(path.Join(indexPath, "garbage.lsh"), []byte("LSHA\x01junk"), 0644))
	require.NoError(t, os.WriteFile(path.Join(indexPath, "orphan.lsh"), []byte("LSHA\x01"), 0644))
	require.NoError(t, os.WriteFile(path.Join(indexPath, "notes.txt"), []byte("ignored"), 0644))

	manager := setupTestManager(t, dir)
	assert.Empty(t, manager.List())
}

func TestManagerLookupGeneration(t *testing.T) {
	manager := setupTestManager(t, t.TempDir())
	conf := testConfig(manager)

	_, _, err := manager.Lookup("points")
	assert.ErrorIs(t, err, pkgerrors.ErrIndexNotFound)

	_, err = manager.CreateIndex("points", conf, testPoints(17, 20, 2))
	require.NoError(t, err)
	first, gen1, err := manager.Lookup("points")
	require.NoError(t, err)
	_, again, err := manager.Lookup("points")
	require.NoError(t, err)
	assert.Equal(t, gen1, again)

	require.NoError(t, manager.DeleteIndex("points"))
	_, err = manager.CreateIndex("points", conf, testPoints(17, 20, 2))
	require.NoError(t, err)
	second, gen2, err := manager.Lookup("points")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.NotEqual(t, gen1, gen2)
}

package config

import (
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lshann/internal/lsh"
	pkgerrors "lshann/pkg/errors"
)

func TestFromFile(t *testing.T) {
	// Create a temporary test config file
	tmpDir := t.TempDir()
	testConfigPath := path.Join(tmpDir, "test_config.yaml")

	testConfig := `
dir: ../../data
server:
  addr: ":9090"
log:
  level: debug
index:
  params:
    hash_type: 2
    num_planes: 12
    num_tables: 6
    bucket_size: 64
  k: 5
  num_tables_to_search: 3
  workers: 4
  seed: 7
  ranking: furthest
cache:
  size: 10
`
	err := os.WriteFile(testConfigPath, []byte(testConfig), 0644)
	assert.NoError(t, err)

	// Test reading from file
	cfg, err := FromFile(testConfigPath)
	assert.NoError(t, err)
	assert.NotNil(t, cfg)

	// Verify the values
	assert.Equal(t, "../../data", cfg.Dir)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, lsh.CosineHyperplane, cfg.Index.Params.HashType)
	assert.Equal(t, 12, cfg.Index.Params.NumPlanes)
	assert.Equal(t, 6, cfg.Index.Params.NumTables)
	assert.Equal(t, 64, cfg.Index.Params.BucketSize)
	assert.Equal(t, 5, cfg.Index.K)
	assert.Equal(t, 3, cfg.Index.NumTablesToSearch)
	assert.Equal(t, 4, cfg.Index.Workers)
	assert.Equal(t, uint64(7), cfg.Index.Seed)
	assert.Equal(t, "furthest", cfg.Index.Ranking)
	assert.Equal(t, 10, cfg.Cache.Size)

	// Unset fields keep their defaults
	assert.Equal(t, lsh.DefaultSecondHashSize, cfg.Index.Params.SecondHashSize)
	assert.Equal(t, lsh.DefaultShears, cfg.Index.Params.Shears)

	// Test with non-existent file
	cfg, err = FromFile("non_existent_file.yaml")
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestFromFileRejectsInvalidValues(t *testing.T) {
	tmpDir := t.TempDir()
	tests := map[string]string{
		"bad params":  "index:\n  params:\n    num_tables: 0\n",
		"bad ranking": "index:\n  ranking: sideways\n",
		"negative k":  "index:\n  k: -1\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			p := path.Join(tmpDir, name+".yaml")
			require.NoError(t, os.WriteFile(p, []byte(body), 0644))
			_, err := FromFile(p)
			assert.ErrorIs(t, err, pkgerrors.ErrInvalidParameter)
		})
	}

	p := path.Join(tmpDir, "broken.yaml")
	require.NoError(t, os.WriteFile(p, []byte("index: [unclosed"), 0644))
	_, err := FromFile(p)
	assert.Error(t, err)
}

func TestNewConfigDefaults(t *testing.T) {
	t.Setenv("LSHANN_DIR", "")
	t.Setenv("LSHANN_ADDR", "")
	tmpDir := t.TempDir()

	cfg, err := NewConfig(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, tmpDir, cfg.Dir)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, lsh.DefaultParams(), cfg.Index.Params)
	assert.Equal(t, "nearest", cfg.Index.Ranking)
}

func TestNewConfigReadsDirAndEnv(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(path.Join(tmpDir, FileName), []byte("server:\n  addr: \":7000\"\n"), 0644))

	t.Setenv("LSHANN_ADDR", "")
	cfg, err := NewConfig(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.Addr)

	t.Setenv("LSHANN_ADDR", ":7100")
	cfg, err = NewConfig(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, ":7100", cfg.Server.Addr)
}

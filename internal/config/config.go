package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"lshann/internal/lsh"
	pkgerrors "lshann/pkg/errors"
)

const FileName = "config.yaml"

type Config struct {
	Dir    string       `yaml:"dir"`
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
	Index  IndexConfig  `yaml:"index"`
	Cache  CacheConfig  `yaml:"cache"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	// File is empty for console output.
	File string `yaml:"file"`
}

// IndexConfig holds the defaults applied to indexes created without
// explicit parameters.
type IndexConfig struct {
	Params            lsh.Params `yaml:"params"`
	K                 int        `yaml:"k"`
	NumTablesToSearch int        `yaml:"num_tables_to_search"`
	Workers           int        `yaml:"workers"`
	// Seed of 0 seeds every index from the runtime.
	Seed    uint64 `yaml:"seed"`
	Ranking string `yaml:"ranking"`
}

type CacheConfig struct {
	// Size of 0 disables the search cache.
	Size int `yaml:"size"`
}

func Default() *Config {
	return &Config{
		Dir:    ".",
		Server: ServerConfig{Addr: ":8080"},
		Log:    LogConfig{Level: "info"},
		Index: IndexConfig{
			Params:  lsh.DefaultParams(),
			K:       10,
			Ranking: lsh.NearestFirst.String(),
		},
		Cache: CacheConfig{Size: 1024},
	}
}

// NewConfig returns the defaults overlaid by dir/config.yaml when it exists.
// LSHANN_DIR and LSHANN_ADDR override the file.
func NewConfig(dir string) (*Config, error) {
	conf := Default()
	conf.Dir = dir
	err := conf.load(filepath.Join(dir, FileName))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	applyEnv(&conf.Dir, "LSHANN_DIR")
	applyEnv(&conf.Server.Addr, "LSHANN_ADDR")
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// FromFile reads a config file that must exist.
func FromFile(path string) (*Config, error) {
	conf := Default()
	if err := conf.load(path); err != nil {
		return nil, err
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func (c *Config) load(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Dir == "" {
		return fmt.Errorf("%w: dir is empty", pkgerrors.ErrInvalidParameter)
	}
	if err := c.Index.Params.Validate(); err != nil {
		return fmt.Errorf("index.params: %w", err)
	}
	if c.Index.K < 0 || c.Index.NumTablesToSearch < 0 || c.Index.Workers < 0 || c.Cache.Size < 0 {
		return fmt.Errorf("%w: negative index or cache setting", pkgerrors.ErrInvalidParameter)
	}
	if _, err := lsh.PolicyByName(c.Index.Ranking); err != nil {
		return fmt.Errorf("index.ranking: %w", err)
	}
	return nil
}

func applyEnv(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

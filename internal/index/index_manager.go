package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"lshann/internal/config"
	"lshann/internal/dataset"
	"lshann/internal/lsh"
	"lshann/internal/random"
	pkgerrors "lshann/pkg/errors"
	"lshann/pkg/logger"
)

const (
	indexDir        = "indexfile"
	snapshotSuffix  = ".lsh"
	configSuffix    = ".conf"
	saveQueueLength = 16
)

// IndexConfig is persisted as JSON next to every snapshot. The snapshot
// holds the trained model; this holds how the index is searched.
type IndexConfig struct {
	Params  lsh.Params `json:"params"`
	Ranking string     `json:"ranking"`
	Workers int        `json:"workers"`
	Seed    uint64     `json:"seed"`
}

// Info summarizes a registered index.
type Info struct {
	Name                string     `json:"name"`
	Params              lsh.Params `json:"params"`
	Ranking             string     `json:"ranking"`
	Workers             int        `json:"workers"`
	Points              int        `json:"points"`
	Rows                int        `json:"rows"`
	Dropped             int        `json:"dropped"`
	DistanceEvaluations uint64     `json:"distance_evaluations"`
}

// Manager manages named LSH indexes persisted under conf.Dir/indexfile.
// Creates not yet snapshotted are logged under conf.Dir/walfile.
type Manager struct {
	conf    *config.Config
	mu      sync.RWMutex
	indices map[string]*lsh.Index
	configs map[string]IndexConfig
	// generations changes whenever a name is bound to a new index
	generations map[string]uint64
	generation  uint64
	indexCh chan indexSaveItem
	stopCh  chan struct{}
	doneCh  chan struct{}
	once    sync.Once
}

type indexSaveItem struct {
	name  string
	index *lsh.Index
}

// NewIndexManager loads every index found on disk and starts the
// background saver.
func NewIndexManager(conf *config.Config) (*Manager, error) {
	m := &Manager{
		conf:    conf,
		indices:     make(map[string]*lsh.Index),
		configs:     make(map[string]IndexConfig),
		generations: make(map[string]uint64),
		indexCh: make(chan indexSaveItem, saveQueueLength),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	if err := m.LoadIndexes(); err != nil {
		return nil, err
	}
	go m.monitorIndexSave()
	return m, nil
}

// DefaultIndexConfig is the configuration applied to indexes created
// without one.
func (m *Manager) DefaultIndexConfig() IndexConfig {
	return IndexConfig{
		Params:  m.conf.Index.Params,
		Ranking: m.conf.Index.Ranking,
		Workers: m.conf.Index.Workers,
		Seed:    m.conf.Index.Seed,
	}
}

// LoadIndexes loads all snapshots from disk, then replays logged creates
// that have no snapshot. Unreadable indexes are logged and skipped.
func (m *Manager) LoadIndexes() error {
	dir := filepath.Join(m.conf.Dir, indexDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create index directory: %w", err)
			}
			return m.replayLogs()
		}
		return fmt.Errorf("failed to read index directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), snapshotSuffix) {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), snapshotSuffix)

		configData, err := os.ReadFile(m.configFile(name))
		if err != nil {
			logger.Error("Failed to read index config", "index", name, "error", err)
			continue
		}
		var conf IndexConfig
		if err := json.Unmarshal(configData, &conf); err != nil {
			logger.Error("Failed to parse index config", "index", name, "error", err)
			continue
		}

		x, err := newIndex(conf)
		if err != nil {
			logger.Error("Failed to create index", "index", name, "error", err)
			continue
		}
		if err := x.Load(m.snapshotFile(name)); err != nil {
			logger.Error("Failed to load index data", "index", name, "error", err)
			continue
		}

		m.register(name, x, conf)
		logger.Info("Loaded LSH index", "index", name, "type", x.Params().HashType.String(),
			"points", x.Reference().Len())
	}
	return m.replayLogs()
}

func newIndex(conf IndexConfig) (*lsh.Index, error) {
	policy, err := lsh.PolicyByName(conf.Ranking)
	if err != nil {
		return nil, err
	}
	opts := []lsh.Option{lsh.WithRankingPolicy(policy), lsh.WithWorkers(conf.Workers)}
	if conf.Seed != 0 {
		opts = append(opts, lsh.WithSource(random.New(conf.Seed)))
	}
	return lsh.New(opts...), nil
}

// train builds an index owning a copy of points.
func (m *Manager) train(conf IndexConfig, points [][]float64) (*lsh.Index, error) {
	ref, err := dataset.FromPoints(points)
	if err != nil {
		return nil, err
	}
	x, err := newIndex(conf)
	if err != nil {
		return nil, err
	}
	if err := x.TrainOwned(ref, conf.Params); err != nil {
		return nil, err
	}
	return x, nil
}

// CreateIndex trains a new index that owns points and schedules a save.
// The create is logged first so that it survives a crash before the save.
func (m *Manager) CreateIndex(name string, conf IndexConfig, points [][]float64) (*lsh.Index, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	x, err := m.train(conf, points)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.indices[name]; exists {
		x.Close()
		return nil, fmt.Errorf("%w: %s", pkgerrors.ErrIndexExists, name)
	}

	if err := m.writeConfig(name, conf); err != nil {
		x.Close()
		return nil, err
	}
	if err := m.logCreate(name, conf, points); err != nil {
		x.Close()
		if rmErr := os.Remove(m.configFile(name)); rmErr != nil && !os.IsNotExist(rmErr) {
			logger.Error("Failed to delete config file", "index", name, "error", rmErr)
		}
		return nil, fmt.Errorf("failed to write WAL: %w", err)
	}

	m.register(name, x, conf)
	logger.Info("Created LSH index", "index", name, "type", x.Params().HashType.String(),
		"points", x.Reference().Len(), "dims", x.Params().Dims)

	m.queueSave(name, x)
	return x, nil
}

// register binds name to x under a fresh generation. Callers hold m.mu.
func (m *Manager) register(name string, x *lsh.Index, conf IndexConfig) {
	m.generation++
	m.indices[name] = x
	m.configs[name] = conf
	m.generations[name] = m.generation
}

// Write index config to file
func (m *Manager) writeConfig(name string, conf IndexConfig) error {
	configData, err := json.Marshal(conf)
	if err != nil {
		return fmt.Errorf("failed to marshal index config: %w", err)
	}
	if err := os.WriteFile(m.configFile(name), configData, 0644); err != nil {
		return fmt.Errorf("failed to write index config: %w", err)
	}
	return nil
}

func (m *Manager) queueSave(name string, x *lsh.Index) {
	select {
	case m.indexCh <- indexSaveItem{name: name, index: x}:
	default:
		logger.Warn("Save queue full, index kept in memory until saved", "index", name)
	}
}

// GetIndex retrieves an existing index
func (m *Manager) GetIndex(name string) (*lsh.Index, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	x, exists := m.indices[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", pkgerrors.ErrIndexNotFound, name)
	}
	return x, nil
}

// Lookup returns an index with its generation. A name that is deleted and
// created again gets a new generation, so results cached under the old one
// are never served for the new index.
func (m *Manager) Lookup(name string) (*lsh.Index, uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	x, exists := m.indices[name]
	if !exists {
		return nil, 0, fmt.Errorf("%w: %s", pkgerrors.ErrIndexNotFound, name)
	}
	return x, m.generations[name], nil
}

// Info returns the statistics of one index.
func (m *Manager) Info(name string) (Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	x, exists := m.indices[name]
	if !exists {
		return Info{}, fmt.Errorf("%w: %s", pkgerrors.ErrIndexNotFound, name)
	}
	return m.info(name, x), nil
}

// List returns every index sorted by name.
func (m *Manager) List() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Info, 0, len(m.indices))
	for name, x := range m.indices {
		out = append(out, m.info(name, x))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *Manager) info(name string, x *lsh.Index) Info {
	info := Info{
		Name:                name,
		Params:              x.Params(),
		Ranking:             x.Policy().String(),
		Workers:             m.configs[name].Workers,
		Points:              x.Reference().Len(),
		DistanceEvaluations: x.DistanceEvaluations(),
	}
	if tables := x.Tables(); tables != nil {
		info.Rows = tables.Rows()
		info.Dropped = tables.Dropped()
	}
	return info
}

// SaveIndex writes the snapshot of one index synchronously.
func (m *Manager) SaveIndex(name string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	x, exists := m.indices[name]
	if !exists {
		return fmt.Errorf("%w: %s", pkgerrors.ErrIndexNotFound, name)
	}
	if err := x.Save(m.snapshotFile(name)); err != nil {
		return fmt.Errorf("failed to save index %s: %w", name, err)
	}
	m.removeLog(name)
	logger.Info("Saved index to disk", "index", name)
	return nil
}

// DeleteIndex removes an index and its files
func (m *Manager) DeleteIndex(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	x, exists := m.indices[name]
	if !exists {
		return fmt.Errorf("%w: %s", pkgerrors.ErrIndexNotFound, name)
	}
	x.Close()

	if err := os.Remove(m.snapshotFile(name)); err != nil && !os.IsNotExist(err) {
		logger.Error("Failed to delete index file", "index", name, "error", err)
	}
	if err := os.Remove(m.configFile(name)); err != nil && !os.IsNotExist(err) {
		logger.Error("Failed to delete config file", "index", name, "error", err)
	}
	m.removeLog(name)

	delete(m.indices, name)
	delete(m.configs, name)
	delete(m.generations, name)
	logger.Info("Deleted LSH index and related files", "index", name)
	return nil
}

// Close stops the saver after it has written every queued index, then
// releases all indexes.
func (m *Manager) Close() error {
	m.once.Do(func() {
		close(m.stopCh)
		<-m.doneCh
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.indices {
		x.Close()
	}
	m.indices = make(map[string]*lsh.Index)
	m.configs = make(map[string]IndexConfig)
	m.generations = make(map[string]uint64)
	return nil
}

// monitorIndexSave saves newly created indexes in the background.
func (m *Manager) monitorIndexSave() {
	defer close(m.doneCh)
	for {
		select {
		case item := <-m.indexCh:
			m.saveQueued(item)
		case <-m.stopCh:
			for {
				select {
				case item := <-m.indexCh:
					m.saveQueued(item)
				default:
					return
				}
			}
		}
	}
}

// saveQueued skips indexes deleted or replaced since they were queued.
func (m *Manager) saveQueued(item indexSaveItem) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.indices[item.name] != item.index {
		return
	}
	if err := item.index.Save(m.snapshotFile(item.name)); err != nil {
		logger.Error("Failed to save index", "index", item.name, "error", err)
		return
	}
	m.removeLog(item.name)
	logger.Info("Saved index to disk", "index", item.name)
}

func (m *Manager) snapshotFile(name string) string {
	return filepath.Join(m.conf.Dir, indexDir, name+snapshotSuffix)
}

func (m *Manager) configFile(name string) string {
	return filepath.Join(m.conf.Dir, indexDir, name+configSuffix)
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: index name %q", pkgerrors.ErrInvalidParameter, name)
	}
	return nil
}

package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"lshann/internal/wal"
	"lshann/pkg/logger"
)

const (
	walDir    = "walfile"
	walSuffix = ".wal"
)

// WALOpType represents the type of operation in WAL
type WALOpType string

const (
	WALOpCreateIndex WALOpType = "create_index"
)

// WALEntry represents a single WAL log entry
type WALEntry struct {
	OpType WALOpType       `json:"op_type"`
	Index  string          `json:"index"`
	Data   json.RawMessage `json:"data"`
}

// CreateIndexData holds everything needed to retrain an index that was
// created but not yet snapshotted.
type CreateIndexData struct {
	Config IndexConfig `json:"config"`
	Points [][]float64 `json:"points"`
}

func encodeWALEntry(entry *WALEntry) ([]byte, error) {
	return json.Marshal(entry)
}

func decodeWALEntry(data []byte) (*WALEntry, error) {
	var entry WALEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (m *Manager) walFile(name string) string {
	return filepath.Join(m.conf.Dir, walDir, name+walSuffix)
}

// logCreate records a create so it survives a crash before the first save.
func (m *Manager) logCreate(name string, conf IndexConfig, points [][]float64) error {
	data, err := json.Marshal(CreateIndexData{Config: conf, Points: points})
	if err != nil {
		return err
	}
	entry, err := encodeWALEntry(&WALEntry{OpType: WALOpCreateIndex, Index: name, Data: data})
	if err != nil {
		return err
	}

	// a stale log from a deleted index of the same name is replaced
	file := m.walFile(name)
	if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
		return err
	}
	w, err := wal.NewWriter(file)
	if err != nil {
		return err
	}
	if err := w.Write([]byte(name), entry); err != nil {
		w.Close()
		return err
	}
	if err := w.Sync(); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func (m *Manager) removeLog(name string) {
	if err := os.Remove(m.walFile(name)); err != nil && !os.IsNotExist(err) {
		logger.Error("Failed to delete WAL file", "index", name, "error", err)
	}
}

// readCreateLog returns the last intact create entry of an index log.
func (m *Manager) readCreateLog(name string) (*CreateIndexData, error) {
	r, err := wal.NewReader(m.walFile(name))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	records, err := r.ReadAll()
	if err != nil {
		if !errors.Is(err, wal.ErrTruncated) {
			return nil, err
		}
		logger.Warn("Ignoring torn WAL tail", "index", name, "records", len(records))
	}

	var create *CreateIndexData
	for _, rec := range records {
		entry, err := decodeWALEntry(rec.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to decode WAL entry: %w", err)
		}
		if entry.OpType != WALOpCreateIndex || entry.Index != name {
			continue
		}
		var data CreateIndexData
		if err := json.Unmarshal(entry.Data, &data); err != nil {
			return nil, fmt.Errorf("failed to decode create entry: %w", err)
		}
		create = &data
	}
	if create == nil {
		return nil, fmt.Errorf("no create entry in %s", m.walFile(name))
	}
	return create, nil
}

// replayLogs retrains indexes whose create was logged but never saved.
func (m *Manager) replayLogs() error {
	dir := filepath.Join(m.conf.Dir, walDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read WAL directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), walSuffix) {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), walSuffix)
		if _, loaded := m.indices[name]; loaded {
			// the snapshot is newer than the log
			m.removeLog(name)
			continue
		}

		data, err := m.readCreateLog(name)
		if err != nil {
			logger.Error("Failed to read WAL", "index", name, "error", err)
			continue
		}
		x, err := m.train(data.Config, data.Points)
		if err != nil {
			logger.Error("Failed to replay index from WAL", "index", name, "error", err)
			continue
		}
		if err := m.writeConfig(name, data.Config); err != nil {
			x.Close()
			logger.Error("Failed to write index config", "index", name, "error", err)
			continue
		}

		m.register(name, x, data.Config)
		m.queueSave(name, x)
		logger.Info("Replayed LSH index from WAL", "index", name, "points", len(data.Points))
	}
	return nil
}

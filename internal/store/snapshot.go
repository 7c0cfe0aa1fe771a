// Package store persists snapshot baselines. A baseline is the pair of
// natural-keyed maps of one extract, written as a single gob blob named by
// the extract's embedded timestamp.
package store

import (
	"encoding/gob"
	"log/slog"
	"os"
	"path/filepath"

	"regsync/internal/registry/models"
)

// SnapshotStore reads and writes serialized baselines. Pure persistence;
// retention and versioning policy live in the files package.
type SnapshotStore struct {
	logger *slog.Logger
}

func NewSnapshotStore(logger *slog.Logger) *SnapshotStore {
	return &SnapshotStore{logger: logger}
}

// Write serializes the snapshot to path atomically (temp file + rename), so
// a crash mid-write never leaves a truncated baseline behind.
func (s *SnapshotStore) Write(snapshot models.Snapshot, path string) error {
	s.logger.Info("serializing snapshot", "file", filepath.Base(path))

	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	enc := gob.NewEncoder(tmp)
	if err := enc.Encode(snapshot.Professionals); err != nil {
		tmp.Close()
		return err
	}
	if err := enc.Encode(snapshot.Structures); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return err
	}

	s.logger.Info("snapshot serialized", "file", filepath.Base(path))
	return nil
}

// Read deserializes the baseline at path. The caller decides what a missing
// file means; on first run it is an empty baseline, not an error.
func (s *SnapshotStore) Read(path string) (models.Snapshot, error) {
	s.logger.Info("deserializing snapshot", "file", filepath.Base(path))

	file, err := os.Open(path)
	if err != nil {
		return models.Snapshot{}, err
	}
	defer file.Close()

	snapshot := models.NewSnapshot()
	dec := gob.NewDecoder(file)
	if err := dec.Decode(&snapshot.Professionals); err != nil {
		return models.Snapshot{}, err
	}
	if err := dec.Decode(&snapshot.Structures); err != nil {
		return models.Snapshot{}, err
	}
	return snapshot, nil
}

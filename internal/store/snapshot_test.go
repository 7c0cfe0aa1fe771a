package store

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regsync/internal/registry/models"
)

func TestSnapshotStoreRoundTrip(t *testing.T) {
	store := NewSnapshotStore(slog.New(slog.NewTextHandler(io.Discard, nil)))
	path := filepath.Join(t.TempDir(), "202401010000.ser")

	snapshot := models.NewSnapshot()
	snapshot.Professionals["812345"] = models.Professional{
		IDType:     "8",
		NationalID: "812345",
		LastName:   "MARTIN",
		Exercises: []models.Exercise{{
			ProfessionID: "E1",
			Expertises:   []models.Expertise{{ExpertiseID: "X1"}},
			WorkSituations: []models.WorkSituation{{
				SituationID: "S1",
				Structures:  []models.StructureRef{{StructureID: "R1"}},
			}},
		}},
	}
	snapshot.Structures["R1"] = models.Structure{StructureID: "R1", OfficialName: "CABINET MARTIN"}

	require.NoError(t, store.Write(snapshot, path))

	loaded, err := store.Read(path)
	require.NoError(t, err)
	assert.Equal(t, snapshot.Professionals, loaded.Professionals)
	assert.Equal(t, snapshot.Structures, loaded.Structures)
}

func TestSnapshotStoreWriteIsAtomic(t *testing.T) {
	store := NewSnapshotStore(slog.New(slog.NewTextHandler(io.Discard, nil)))
	dir := t.TempDir()
	path := filepath.Join(dir, "202401010000.ser")

	require.NoError(t, store.Write(models.NewSnapshot(), path))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files left behind")
	assert.Equal(t, "202401010000.ser", entries[0].Name())
}

func TestSnapshotStoreReadMissingFile(t *testing.T) {
	store := NewSnapshotStore(slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := store.Read(filepath.Join(t.TempDir(), "absent.ser"))
	assert.Error(t, err)
}

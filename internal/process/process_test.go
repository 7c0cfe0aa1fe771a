package process

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regsync/internal/files"
	"regsync/internal/loader"
	"regsync/internal/platform/metrics"
	"regsync/internal/reconcile"
	"regsync/internal/registry"
	"regsync/internal/registry/models"
	"regsync/internal/remap"
	"regsync/internal/store"
)

type fakeNotifier struct {
	mu            sync.Mutex
	finished      []string
	interruptions []string
}

func (f *fakeNotifier) ProcessFinished(extract, snapshot string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, extract+"|"+snapshot)
	return nil
}

func (f *fakeNotifier) InterruptionDetected(extract, snapshot string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.interruptions = append(f.interruptions, extract+"|"+snapshot)
	return nil
}

type fixture struct {
	proc     *Process
	dir      string
	selector *files.Selector
	store    *store.SnapshotStore
	notifier *fakeNotifier
	requests *[]string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var mu sync.Mutex
	var requests []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests = append(requests, r.Method+" "+r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	client := registry.NewClient(server.URL, logger)
	m := metrics.NewUnregistered()
	engine := reconcile.New(client, m, logger)
	remapper := remap.New(client, logger, 4)

	ld, err := loader.New("windows-1252", logger)
	require.NoError(t, err)

	selector := files.NewSelector(dir)
	snapshots := store.NewSnapshotStore(logger)
	notifier := &fakeNotifier{}

	proc := New(selector, ld, snapshots, engine, remapper, nil, nil, notifier, m, logger)
	return &fixture{
		proc:     proc,
		dir:      dir,
		selector: selector,
		store:    snapshots,
		notifier: notifier,
		requests: &requests,
	}
}

// writeExtract drops an extract fixture with one professional row into the
// working directory.
func writeExtract(t *testing.T, dir, name string) {
	t.Helper()
	cols := make([]string, loader.RowLength)
	header := make([]string, loader.RowLength)
	for i := range header {
		header[i] = "H"
	}
	cols[0] = "8"      // id type
	cols[1] = "12345"  // id
	cols[2] = "812345" // national id
	cols[5] = "MARTIN"
	cols[7] = "E1"  // profession id
	cols[12] = "X1" // expertise id
	cols[17] = "S1" // situation id
	cols[28] = "R1" // structure id

	content := strings.Join(header, "|") + "\n" + strings.Join(cols, "|") + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadLatestWithoutExtract(t *testing.T) {
	f := newFixture(t)

	status, err := f.proc.LoadLatest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusNoExtract, status)
	assert.Equal(t, StageIdle, f.proc.Stage())
}

func TestDownloadWithoutDownloader(t *testing.T) {
	f := newFixture(t)

	status, err := f.proc.DownloadAndUnzip(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusNoArchive, status)
}

func TestDownloadDelayedWhileToggleRunning(t *testing.T) {
	f := newFixture(t)
	f.proc.setStage(StageToggleRunning)

	status, err := f.proc.DownloadAndUnzip(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusDelayed, status)
}

func TestStepGuards(t *testing.T) {
	t.Run("load refused during upload", func(t *testing.T) {
		f := newFixture(t)
		f.proc.setStage(StageUploadStarted)

		status, err := f.proc.LoadLatest(context.Background())
		assert.Equal(t, StatusAborted, status)
		var conflict *ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, StageUploadStarted, conflict.Stage)
	})

	t.Run("diff refused while another diff runs", func(t *testing.T) {
		f := newFixture(t)
		f.proc.setStage(StageDiffStarted)

		status, err := f.proc.ComputeDiff(context.Background())
		assert.Equal(t, StatusAborted, status)
		assert.Error(t, err)
		assert.Equal(t, StageDiffStarted, f.proc.Stage(), "conflict leaves the stage untouched")
	})

	t.Run("upload refused while another upload runs", func(t *testing.T) {
		f := newFixture(t)
		f.proc.setStage(StageUploadStarted)

		status, err := f.proc.UploadChanges(context.Background())
		assert.Equal(t, StatusAborted, status)
		assert.Error(t, err)
	})
}

func TestUploadWithoutDiff(t *testing.T) {
	f := newFixture(t)

	status, err := f.proc.UploadChanges(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusNoDiff, status)
}

func TestSerializeWithoutExtract(t *testing.T) {
	f := newFixture(t)

	status, err := f.proc.SerializeSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusNoExtract, status)
}

func TestFullPipelineFromEmptyBaseline(t *testing.T) {
	f := newFixture(t)
	writeExtract(t, f.dir, "Extraction_202401010000.txt")

	status := f.proc.RunFirst(context.Background())
	assert.Equal(t, StatusContinue, status)
	assert.Equal(t, StageDiffFinished, f.proc.Stage())

	status = f.proc.RunContinue(context.Background())
	assert.Equal(t, StatusContinue, status)
	assert.Equal(t, StageIdle, f.proc.Stage())

	// Everything in the extract was new, so the registry saw force-creates.
	assert.Contains(t, *f.requests, "POST /professionals/force")
	assert.Contains(t, *f.requests, "POST /structures")

	latest, err := f.selector.LatestOf(files.Snapshots)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.dir, "202401010000.ser"), latest)

	consistent, err := f.selector.IsConsistent()
	require.NoError(t, err)
	assert.True(t, consistent)

	require.Len(t, f.notifier.finished, 1)
	assert.Equal(t, "Extraction_202401010000.txt|202401010000.ser", f.notifier.finished[0])
}

func TestSecondRunWithUnchangedExtractUploadsNothing(t *testing.T) {
	f := newFixture(t)
	writeExtract(t, f.dir, "Extraction_202401010000.txt")

	require.Equal(t, StatusContinue, f.proc.RunFirst(context.Background()))
	require.Equal(t, StatusContinue, f.proc.RunContinue(context.Background()))
	firstCalls := len(*f.requests)

	// Same extract again: the diff against the fresh baseline is empty.
	require.Equal(t, StatusContinue, f.proc.RunFirst(context.Background()))
	require.Equal(t, StatusContinue, f.proc.RunContinue(context.Background()))

	assert.Equal(t, firstCalls, len(*f.requests), "empty diff dispatches no operations")
}

func TestSelfHealReplaysInterruptedRun(t *testing.T) {
	f := newFixture(t)
	writeExtract(t, f.dir, "Extraction_202402010000.txt")
	require.NoError(t, f.store.Write(models.NewSnapshot(), filepath.Join(f.dir, "202401010000.ser")))

	f.proc.SelfHeal(context.Background())

	require.Len(t, f.notifier.interruptions, 1)
	assert.Equal(t, "Extraction_202402010000.txt|202401010000.ser", f.notifier.interruptions[0])

	latest, err := f.selector.LatestOf(files.Snapshots)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.dir, "202402010000.ser"), latest,
		"replay serialized the pending extract")
	assert.Equal(t, StageIdle, f.proc.Stage())
}

func TestSelfHealNoopWhenConsistent(t *testing.T) {
	f := newFixture(t)
	writeExtract(t, f.dir, "Extraction_202401010000.txt")
	require.NoError(t, f.store.Write(models.NewSnapshot(), filepath.Join(f.dir, "202401010000.ser")))

	f.proc.SelfHeal(context.Background())

	assert.Empty(t, f.notifier.interruptions)
	assert.Empty(t, *f.requests)
}

func TestToggleSetsAndClearsStage(t *testing.T) {
	f := newFixture(t)

	f.proc.Toggle(context.Background(), nil, false)
	assert.Equal(t, StageIdle, f.proc.Stage())
}

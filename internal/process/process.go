// Package process sequences the reconciliation pipeline as a resumable
// state machine. The stage value is owned here behind a mutex; every step
// checks its guard and performs its transition as one atomic move, so an
// overlapping trigger sees a conflict instead of racing a half-done step.
package process

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"

	"regsync/internal/diff"
	"regsync/internal/files"
	"regsync/internal/loader"
	"regsync/internal/platform/metrics"
	"regsync/internal/reconcile"
	"regsync/internal/registry/models"
	"regsync/internal/remap"
	"regsync/internal/store"
)

// Downloader pulls the compressed archive from the extract source, returning
// the archive path or "" when nothing new was published.
type Downloader interface {
	Download(ctx context.Context, dir string) (string, error)
}

// Regenerator asks the downstream extract service to rebuild its own extract
// after a successful upload cycle.
type Regenerator interface {
	TriggerGeneration(ctx context.Context) error
}

// Notifier tells operators about pipeline milestones. Implementations must
// tolerate empty file names.
type Notifier interface {
	ProcessFinished(extract, snapshot string) error
	InterruptionDetected(extract, snapshot string) error
}

// Process is the orchestrator. It owns the previous and new snapshots and
// lends them read-only to the engines during diffing.
type Process struct {
	mu    sync.Mutex
	stage Stage

	selector   *files.Selector
	loader     *loader.Loader
	snapshots  *store.SnapshotStore
	engine     *reconcile.Engine
	remapper   *remap.Engine
	downloader Downloader
	regen      Regenerator
	notifier   Notifier
	metrics    *metrics.Metrics
	logger     *slog.Logger

	latestExtract string
	previous      models.Snapshot
	next          models.Snapshot
	psDiff        diff.Result[string, models.Professional]
	structDiff    diff.Result[string, models.Structure]
	diffComputed  bool
}

func New(
	selector *files.Selector,
	ld *loader.Loader,
	snapshots *store.SnapshotStore,
	engine *reconcile.Engine,
	remapper *remap.Engine,
	downloader Downloader,
	regen Regenerator,
	notifier Notifier,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Process {
	return &Process{
		stage:      StageIdle,
		selector:   selector,
		loader:     ld,
		snapshots:  snapshots,
		engine:     engine,
		remapper:   remapper,
		downloader: downloader,
		regen:      regen,
		notifier:   notifier,
		metrics:    m,
		logger:     logger,
	}
}

// Stage returns the current pipeline stage.
func (p *Process) Stage() Stage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stage
}

// transition checks the guard and moves the stage under one lock acquisition.
func (p *Process) transition(op string, to Stage, conflicting ...Stage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range conflicting {
		if p.stage == c {
			return &ConflictError{Op: op, Stage: p.stage}
		}
	}
	p.setStageLocked(to)
	return nil
}

func (p *Process) setStage(to Stage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setStageLocked(to)
}

func (p *Process) setStageLocked(to Stage) {
	p.stage = to
	p.metrics.Stage.Set(float64(to))
}

// DownloadAndUnzip retires stale working files, pulls the archive and
// extracts it. Delayed while a toggle is running; non-fatal when no new
// archive exists or its payload is already captured.
func (p *Process) DownloadAndUnzip(ctx context.Context) (Status, error) {
	if p.Stage() == StageToggleRunning {
		return StatusDelayed, nil
	}
	if p.downloader == nil {
		return StatusNoArchive, nil
	}

	p.logger.Info("cleaning files repository before download")
	if err := p.selector.RetainLatestOnly(); err != nil {
		return StatusLoadFailed, err
	}

	archive, err := p.downloader.Download(ctx, p.selector.Dir())
	if err != nil {
		return StatusNoArchive, err
	}
	if archive == "" {
		return StatusNoArchive, nil
	}

	extracted, err := p.selector.Unzip(archive, true, p.logger)
	if err != nil {
		return StatusLoadFailed, err
	}
	if !extracted {
		return StatusExtractNotNewer, nil
	}

	p.setStage(StageDownloaded)
	return StatusContinue, nil
}

// LoadLatest parses the newest extract into the new snapshot. Refused while
// an upload is mid-flight: mutating the working maps would corrupt the diff
// being sent.
func (p *Process) LoadLatest(ctx context.Context) (Status, error) {
	if err := p.guard("load latest extract", StageUploadStarted); err != nil {
		return StatusAborted, err
	}

	latest, err := p.selector.LatestOf(files.Extracts)
	if err != nil {
		return StatusLoadFailed, err
	}
	if latest == "" {
		return StatusNoExtract, nil
	}

	snapshot, err := p.loader.LoadExtract(latest)
	if err != nil {
		p.logger.ErrorContext(ctx, "error during extract loading", "file", latest, "error", err)
		return StatusLoadFailed, err
	}

	p.latestExtract = latest
	p.next = snapshot
	p.metrics.ProfessionalSize.WithLabelValues(metrics.IDTypeAny, metrics.OpUpload).Set(float64(len(snapshot.Professionals)))
	p.metrics.StructureSize.WithLabelValues(metrics.OpUpload).Set(float64(len(snapshot.Structures)))
	p.setStage(StageCurrentMapLoaded)
	return StatusContinue, nil
}

// DeserializePrevious loads the previous baseline. A missing snapshot file
// is the first-ever run: the baseline is empty, not an error.
func (p *Process) DeserializePrevious(ctx context.Context) (Status, error) {
	if err := p.guard("deserialize previous snapshot", StageUploadStarted); err != nil {
		return StatusAborted, err
	}

	latest, err := p.selector.LatestOf(files.Snapshots)
	if err != nil {
		return StatusLoadFailed, err
	}
	if latest == "" {
		p.logger.Info("no previous snapshot, starting from empty baseline")
		p.previous = models.NewSnapshot()
		p.setStage(StagePreviousMapLoaded)
		return StatusContinue, nil
	}

	snapshot, err := p.snapshots.Read(latest)
	if err != nil {
		p.logger.ErrorContext(ctx, "error during snapshot deserialization", "file", latest, "error", err)
		return StatusLoadFailed, err
	}

	p.previous = snapshot
	p.setStage(StagePreviousMapLoaded)
	return StatusContinue, nil
}

// ComputeDiff partitions previous against new for both entity families.
// Re-entrant protection: refused while a diff or an upload is running.
func (p *Process) ComputeDiff(ctx context.Context) (Status, error) {
	if err := p.transition("compute diff", StageDiffStarted, StageUploadStarted, StageDiffStarted); err != nil {
		return StatusAborted, err
	}

	p.logger.Info("computing snapshot diff")
	p.psDiff = p.engine.DiffProfessionals(p.previous.Professionals, p.next.Professionals)
	p.structDiff = p.engine.DiffStructures(p.previous.Structures, p.next.Structures)
	p.diffComputed = true

	p.setStage(StageDiffFinished)
	p.logger.Info("snapshot diff computed")
	return StatusContinue, nil
}

// UploadChanges dispatches the computed diff to the registry. Refused while
// a previous upload is still running; distinct outcome when no diff exists.
func (p *Process) UploadChanges(ctx context.Context) (Status, error) {
	p.mu.Lock()
	if p.stage == StageUploadStarted {
		err := &ConflictError{Op: "upload changes", Stage: p.stage}
		p.mu.Unlock()
		return StatusAborted, err
	}
	if !p.diffComputed || p.stage != StageDiffFinished {
		p.mu.Unlock()
		return StatusNoDiff, nil
	}
	p.setStageLocked(StageUploadStarted)
	p.mu.Unlock()

	p.engine.Upload(ctx, p.psDiff, p.structDiff)

	p.setStage(StageUploadFinished)
	return StatusContinue, nil
}

// SerializeSnapshot writes the new snapshot as the next baseline, named by
// the extract's embedded timestamp, and returns the pipeline to idle.
func (p *Process) SerializeSnapshot(ctx context.Context) (Status, error) {
	if p.latestExtract == "" {
		return StatusNoExtract, nil
	}

	name := files.Timestamp(p.latestExtract) + string(files.Snapshots)
	path := filepath.Join(p.selector.Dir(), name)
	if err := p.snapshots.Write(p.next, path); err != nil {
		p.logger.ErrorContext(ctx, "error during snapshot serialization", "file", name, "error", err)
		return StatusSerializeFailed, err
	}

	p.metrics.SnapshotsWritten.Inc()
	p.setStage(StageIdle)
	return StatusContinue, nil
}

// TriggerExtractGeneration asks the downstream extract service to rebuild.
func (p *Process) TriggerExtractGeneration(ctx context.Context) Status {
	if p.regen == nil {
		return StatusContinue
	}
	if err := p.regen.TriggerGeneration(ctx); err != nil {
		p.logger.ErrorContext(ctx, "extract generation trigger failed", "error", err)
		return StatusExtractTriggerFailed
	}
	return StatusContinue
}

// RunFirst chains load, deserialize and diff, translating guard conflicts
// into an aborted outcome.
func (p *Process) RunFirst(ctx context.Context) Status {
	status, err := p.LoadLatest(ctx)
	if aborted(err) {
		return StatusAborted
	}
	if status != StatusContinue {
		return status
	}

	status, err = p.DeserializePrevious(ctx)
	if aborted(err) {
		return StatusAborted
	}
	if status != StatusContinue {
		return status
	}

	status, err = p.ComputeDiff(ctx)
	if aborted(err) {
		return StatusAborted
	}
	return status
}

// RunContinue chains upload, serialize, operator notification, downstream
// extract regeneration and retention cleanup.
func (p *Process) RunContinue(ctx context.Context) Status {
	status, err := p.UploadChanges(ctx)
	if aborted(err) {
		return StatusAborted
	}
	if status != StatusContinue {
		return status
	}

	status, _ = p.SerializeSnapshot(ctx)
	if status != StatusContinue {
		return status
	}

	p.notifyFinished()

	if status = p.TriggerExtractGeneration(ctx); status != StatusContinue {
		return status
	}

	if err := p.selector.RetainLatestOnly(); err != nil {
		p.logger.ErrorContext(ctx, "retention cleanup failed", "error", err)
	}
	p.logger.Info("full upload finished")
	return StatusContinue
}

// Toggle runs the identity remap engine over a correspondence table. The
// toggle stage bars the main pipeline from starting mid-remap.
func (p *Process) Toggle(ctx context.Context, entries map[string]models.Correspondence, auditOnly bool) {
	p.setStage(StageToggleRunning)
	defer p.setStage(StageIdle)

	if auditOnly {
		p.remapper.Audit(ctx, entries)
		return
	}
	p.remapper.Apply(ctx, entries)
}

// SelfHeal detects an interrupted prior run (newest extract not matched by a
// snapshot baseline) and replays the pipeline, notifying operators.
func (p *Process) SelfHeal(ctx context.Context) {
	consistent, err := p.selector.IsConsistent()
	if err != nil {
		p.logger.ErrorContext(ctx, "consistency check failed", "error", err)
		return
	}
	if consistent {
		return
	}

	latestExtract, err := p.selector.LatestOf(files.Extracts)
	if err != nil || latestExtract == "" {
		return
	}
	latestSnapshot, _ := p.selector.LatestOf(files.Snapshots)
	if files.Timestamp(latestExtract) <= files.Timestamp(latestSnapshot) {
		// The snapshot is ahead of the extract; nothing to replay.
		return
	}

	p.logger.Warn("stale baseline detected, resuming interrupted run",
		"extract", filepath.Base(latestExtract), "snapshot", filepath.Base(latestSnapshot))
	p.notifyInterruption(latestExtract, latestSnapshot)

	if status := p.RunFirst(ctx); status != StatusContinue {
		p.logger.Warn("self-heal first phase did not complete", "status", status.Message())
		return
	}
	if status := p.RunContinue(ctx); status != StatusContinue {
		p.logger.Warn("self-heal continue phase did not complete", "status", status.Message())
	}
}

func (p *Process) notifyFinished() {
	if p.notifier == nil {
		return
	}
	extract, _ := p.selector.LatestOf(files.Extracts)
	snapshot, _ := p.selector.LatestOf(files.Snapshots)
	if err := p.notifier.ProcessFinished(filepath.Base(extract), filepath.Base(snapshot)); err != nil {
		p.logger.Error("operator notification failed", "error", err)
	}
}

func (p *Process) notifyInterruption(extract, snapshot string) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.InterruptionDetected(filepath.Base(extract), filepath.Base(snapshot)); err != nil {
		p.logger.Error("operator notification failed", "error", err)
	}
}

// guard returns a ConflictError when the current stage is one of the
// conflicting stages, without transitioning.
func (p *Process) guard(op string, conflicting ...Stage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range conflicting {
		if p.stage == c {
			return &ConflictError{Op: op, Stage: p.stage}
		}
	}
	return nil
}

func aborted(err error) bool {
	var conflict *ConflictError
	return errors.As(err, &conflict)
}

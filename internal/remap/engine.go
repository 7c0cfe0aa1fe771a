// Package remap re-points stored identities after an upstream identifier
// change, driven by an externally supplied correspondence table. It follows
// the same stored-state comparison discipline as the sync engine: ask the
// registry, compare, act only on disagreement.
package remap

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"regsync/internal/registry/models"
)

// Registry is the slice of the registry client the engine needs.
type Registry interface {
	GetCorrespondence(ctx context.Context, oldID string) (*models.Correspondence, error)
	UpsertCorrespondence(ctx context.Context, entry models.Correspondence) error
	ForceDeleteProfessional(ctx context.Context, nationalID string) error
	ProfessionalExists(ctx context.Context, nationalID string) (bool, error)
}

// Engine applies correspondence tables. Entries are processed with unordered
// concurrent fan-out; a failing entry is logged and never aborts siblings.
// Tables may be replayed: an already-applied entry is a no-op.
type Engine struct {
	registry    Registry
	logger      *slog.Logger
	workerLimit int
}

func New(registry Registry, logger *slog.Logger, workerLimit int) *Engine {
	if workerLimit <= 0 {
		workerLimit = 20
	}
	return &Engine{registry: registry, logger: logger, workerLimit: workerLimit}
}

// Apply remaps every entry of the table, mutating the registry where the
// stored state disagrees with the entry.
func (e *Engine) Apply(ctx context.Context, entries map[string]models.Correspondence) {
	e.run(ctx, entries, false)
}

// Audit performs only the lookup/compare step of every entry and logs each
// mismatch without mutating. Used to verify a table before committing it.
func (e *Engine) Audit(ctx context.Context, entries map[string]models.Correspondence) {
	e.run(ctx, entries, true)
}

func (e *Engine) run(ctx context.Context, entries map[string]models.Correspondence, auditOnly bool) {
	e.logger.Info("processing correspondence table", "entries", len(entries), "audit_only", auditOnly)

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(e.workerLimit)
	for _, entry := range entries {
		entry := entry
		group.Go(func() error {
			e.processEntry(ctx, entry, auditOnly)
			return nil
		})
	}
	group.Wait()

	e.logger.Info("correspondence table processed", "entries", len(entries))
}

// processEntry runs the per-entry state machine:
//
//	stored lookup absent      -> skip (recoverable, logged)
//	stored == entry new id    -> skip (already remapped in a prior run)
//	stored != entry new id    -> verify target exists, then force-delete the
//	                             old record and upsert the correspondence
func (e *Engine) processEntry(ctx context.Context, entry models.Correspondence, auditOnly bool) {
	stored, err := e.registry.GetCorrespondence(ctx, entry.OldID)
	if err != nil {
		e.logger.ErrorContext(ctx, "correspondence lookup unavailable",
			"old_id", entry.OldID, "error", err)
		return
	}
	if stored == nil {
		e.logger.WarnContext(ctx, "no stored correspondence, skipping entry", "old_id", entry.OldID)
		return
	}
	if stored.NewID == entry.NewID {
		return
	}

	if auditOnly {
		e.logger.InfoContext(ctx, "remap pending",
			"old_id", entry.OldID, "stored_new_id", stored.NewID, "new_id", entry.NewID)
		return
	}

	exists, err := e.registry.ProfessionalExists(ctx, entry.NewID)
	if err != nil {
		e.logger.ErrorContext(ctx, "remap target verification unavailable",
			"old_id", entry.OldID, "new_id", entry.NewID, "error", err)
		return
	}
	if !exists {
		// Deleting the old record now would orphan the mapping.
		e.logger.ErrorContext(ctx, "remap target missing in registry, entry aborted",
			"old_id", entry.OldID, "new_id", entry.NewID)
		return
	}

	if err := e.registry.ForceDeleteProfessional(ctx, entry.OldID); err != nil {
		e.logger.ErrorContext(ctx, "force delete of old record failed",
			"old_id", entry.OldID, "error", err)
		return
	}
	if err := e.registry.UpsertCorrespondence(ctx, entry); err != nil {
		e.logger.ErrorContext(ctx, "correspondence upsert failed",
			"old_id", entry.OldID, "new_id", entry.NewID, "error", err)
		return
	}
	e.logger.InfoContext(ctx, "identity remapped", "old_id", entry.OldID, "new_id", entry.NewID)
}

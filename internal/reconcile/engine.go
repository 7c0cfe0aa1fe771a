// Package reconcile turns the structural difference between two snapshots into
// create/update/delete calls against the registry API.
package reconcile

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"regsync/internal/diff"
	"regsync/internal/platform/metrics"
	"regsync/internal/registry/models"
)

// Registry is the slice of the registry client the engine dispatches to.
type Registry interface {
	CreateProfessional(ctx context.Context, p models.Professional, force bool) error
	UpdateProfessional(ctx context.Context, p models.Professional) error
	DeleteProfessional(ctx context.Context, nationalID string) error

	CreateExercise(ctx context.Context, nationalID string, e models.Exercise) error
	UpdateExercise(ctx context.Context, nationalID string, e models.Exercise) error
	DeleteExercise(ctx context.Context, nationalID, professionID string) error

	CreateExpertise(ctx context.Context, nationalID, professionID string, x models.Expertise) error
	UpdateExpertise(ctx context.Context, nationalID, professionID string, x models.Expertise) error
	DeleteExpertise(ctx context.Context, nationalID, professionID, expertiseID string) error

	CreateSituation(ctx context.Context, nationalID, professionID string, s models.WorkSituation) error
	UpdateSituation(ctx context.Context, nationalID, professionID string, s models.WorkSituation) error
	DeleteSituation(ctx context.Context, nationalID, professionID, situationID string) error

	CreateStructure(ctx context.Context, s models.Structure) error
	UpdateStructure(ctx context.Context, s models.Structure) error
	DeleteStructure(ctx context.Context, structureID string) error
}

// ExcludeByProfessionCode returns the deletion-exclusion predicate: a
// professional matching it is soft-preserved instead of deleted.
func ExcludeByProfessionCode(codes []string) func(models.Professional) bool {
	set := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		set[code] = struct{}{}
	}
	return func(p models.Professional) bool {
		for _, e := range p.Exercises {
			if _, ok := set[e.ProfessionCode]; ok {
				return true
			}
		}
		return false
	}
}

// Engine computes snapshot diffs and dispatches the resulting operations.
// Dispatch is best-effort: failures are logged per item and never abort the
// batch; a lost operation resurfaces on the next cycle if the snapshots
// still disagree.
type Engine struct {
	registry    Registry
	metrics     *metrics.Metrics
	logger      *slog.Logger
	workerLimit int
	excluded    func(models.Professional) bool
}

type Option func(*Engine)

// WithWorkerLimit bounds concurrent per-entity dispatch jobs.
func WithWorkerLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workerLimit = n
		}
	}
}

// WithDeletionExclusion installs the soft-preserve predicate.
func WithDeletionExclusion(pred func(models.Professional) bool) Option {
	return func(e *Engine) {
		if pred != nil {
			e.excluded = pred
		}
	}
}

func New(registry Registry, m *metrics.Metrics, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		registry:    registry,
		metrics:     m,
		logger:      logger,
		workerLimit: 20,
		excluded:    func(models.Professional) bool { return false },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DiffProfessionals partitions the professional maps of two snapshots and
// publishes the partition sizes, overall and per id type.
func (e *Engine) DiffProfessionals(previous, next map[string]models.Professional) diff.Result[string, models.Professional] {
	d := diff.Maps(previous, next, models.Professional.Equal)

	e.gaugePartition(d.OnlyInLeft, metrics.OpDelete)
	e.gaugePartition(d.OnlyInRight, metrics.OpCreate)
	differing := make(map[string]models.Professional, len(d.Differing))
	for k, pair := range d.Differing {
		differing[k] = pair.Left
	}
	e.gaugePartition(differing, metrics.OpUpdate)

	return d
}

// DiffStructures partitions the structure maps of two snapshots.
func (e *Engine) DiffStructures(previous, next map[string]models.Structure) diff.Result[string, models.Structure] {
	d := diff.Maps(previous, next, models.Structure.Equal)
	e.metrics.StructureSize.WithLabelValues(metrics.OpDelete).Set(float64(len(d.OnlyInLeft)))
	e.metrics.StructureSize.WithLabelValues(metrics.OpCreate).Set(float64(len(d.OnlyInRight)))
	e.metrics.StructureSize.WithLabelValues(metrics.OpUpdate).Set(float64(len(d.Differing)))
	return d
}

// Upload dispatches every operation derived from the two diffs. Operations
// across different entities run concurrently and unordered; operations
// within one entity's reconciliation are issued in derived order.
func (e *Engine) Upload(ctx context.Context,
	psDiff diff.Result[string, models.Professional],
	structDiff diff.Result[string, models.Structure]) {

	psChanges := len(psDiff.OnlyInLeft) + len(psDiff.OnlyInRight) + len(psDiff.Differing)
	structChanges := len(structDiff.OnlyInLeft) + len(structDiff.OnlyInRight) + len(structDiff.Differing)
	e.logger.Info("uploading changes", "professional_changes", psChanges, "structure_changes", structChanges)

	e.resetProgression()

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(e.workerLimit)

	for _, p := range psDiff.OnlyInLeft {
		p := p
		group.Go(func() error {
			e.deleteProfessional(ctx, p)
			return nil
		})
	}
	for _, p := range psDiff.OnlyInRight {
		p := p
		group.Go(func() error {
			e.try(ctx, "force create professional", p.NationalID, func() error {
				return e.registry.CreateProfessional(ctx, p, true)
			})
			e.metrics.Progression.WithLabelValues("professional", metrics.OpCreate).Inc()
			return nil
		})
	}
	for _, pair := range psDiff.Differing {
		pair := pair
		group.Go(func() error {
			e.reconcileProfessional(ctx, pair.Left, pair.Right)
			e.metrics.Progression.WithLabelValues("professional", metrics.OpUpdate).Inc()
			return nil
		})
	}

	for _, s := range structDiff.OnlyInLeft {
		s := s
		group.Go(func() error {
			e.try(ctx, "delete structure", s.StructureID, func() error {
				return e.registry.DeleteStructure(ctx, s.StructureID)
			})
			e.metrics.Progression.WithLabelValues("structure", metrics.OpDelete).Inc()
			return nil
		})
	}
	for _, s := range structDiff.OnlyInRight {
		s := s
		group.Go(func() error {
			e.try(ctx, "create structure", s.StructureID, func() error {
				return e.registry.CreateStructure(ctx, s)
			})
			e.metrics.Progression.WithLabelValues("structure", metrics.OpCreate).Inc()
			return nil
		})
	}
	for _, pair := range structDiff.Differing {
		pair := pair
		group.Go(func() error {
			e.try(ctx, "update structure", pair.Right.StructureID, func() error {
				return e.registry.UpdateStructure(ctx, pair.Right)
			})
			e.metrics.Progression.WithLabelValues("structure", metrics.OpUpdate).Inc()
			return nil
		})
	}

	group.Wait()
	e.logger.Info("upload dispatched")
}

// deleteProfessional honors the exclusion predicate: records exercising a
// protected profession are kept even when the new snapshot dropped them.
func (e *Engine) deleteProfessional(ctx context.Context, p models.Professional) {
	if e.excluded(p) {
		e.logger.Info("professional soft-preserved by exclusion policy", "national_id", p.NationalID)
		return
	}
	e.try(ctx, "delete professional", p.NationalID, func() error {
		return e.registry.DeleteProfessional(ctx, p.NationalID)
	})
	e.metrics.Progression.WithLabelValues("professional", metrics.OpDelete).Inc()
}

// reconcileProfessional handles a professional present in both snapshots:
// naked-hash gated shallow update, then the exercise list diffed by
// profession identifier.
func (e *Engine) reconcileProfessional(ctx context.Context, left, right models.Professional) {
	if left.NakedHash() != right.NakedHash() {
		e.try(ctx, "update professional", right.NationalID, func() error {
			return e.registry.UpdateProfessional(ctx, right)
		})
	}

	d := diff.Slices(left.Exercises, right.Exercises,
		func(x models.Exercise) string { return x.ProfessionID },
		models.Exercise.Equal)

	for _, x := range d.OnlyInLeft {
		e.try(ctx, "delete exercise", x.ProfessionID, func() error {
			return e.registry.DeleteExercise(ctx, right.NationalID, x.ProfessionID)
		})
	}
	for _, x := range d.OnlyInRight {
		e.try(ctx, "create exercise", x.ProfessionID, func() error {
			return e.registry.CreateExercise(ctx, right.NationalID, x)
		})
	}
	for _, pair := range d.Differing {
		e.reconcileExercise(ctx, right.NationalID, pair.Left, pair.Right)
	}
}

// reconcileExercise handles a differing exercise: shallow update when the
// naked hashes differ, then the expertise and situation leaves. Leaves are
// replaced wholesale on update; situations carry their structure references
// as part of their value.
func (e *Engine) reconcileExercise(ctx context.Context, nationalID string, left, right models.Exercise) {
	if left.NakedHash() != right.NakedHash() {
		e.try(ctx, "update exercise", right.ProfessionID, func() error {
			return e.registry.UpdateExercise(ctx, nationalID, right)
		})
	}

	expertises := diff.Slices(left.Expertises, right.Expertises,
		func(x models.Expertise) string { return x.ExpertiseID },
		func(a, b models.Expertise) bool { return a == b })
	for _, x := range expertises.OnlyInLeft {
		e.try(ctx, "delete expertise", x.ExpertiseID, func() error {
			return e.registry.DeleteExpertise(ctx, nationalID, right.ProfessionID, x.ExpertiseID)
		})
	}
	for _, x := range expertises.OnlyInRight {
		e.try(ctx, "create expertise", x.ExpertiseID, func() error {
			return e.registry.CreateExpertise(ctx, nationalID, right.ProfessionID, x)
		})
	}
	for _, pair := range expertises.Differing {
		e.try(ctx, "update expertise", pair.Right.ExpertiseID, func() error {
			return e.registry.UpdateExpertise(ctx, nationalID, right.ProfessionID, pair.Right)
		})
	}

	situations := diff.Slices(left.WorkSituations, right.WorkSituations,
		func(s models.WorkSituation) string { return s.SituationID },
		models.WorkSituation.Equal)
	for _, s := range situations.OnlyInLeft {
		e.try(ctx, "delete situation", s.SituationID, func() error {
			return e.registry.DeleteSituation(ctx, nationalID, right.ProfessionID, s.SituationID)
		})
	}
	for _, s := range situations.OnlyInRight {
		e.try(ctx, "create situation", s.SituationID, func() error {
			return e.registry.CreateSituation(ctx, nationalID, right.ProfessionID, s)
		})
	}
	for _, pair := range situations.Differing {
		e.try(ctx, "update situation", pair.Right.SituationID, func() error {
			return e.registry.UpdateSituation(ctx, nationalID, right.ProfessionID, pair.Right)
		})
	}
}

// try runs one remote operation, logging and swallowing its failure so a
// single bad call never poisons the batch.
func (e *Engine) try(ctx context.Context, op, key string, call func() error) {
	if err := call(); err != nil {
		e.logger.ErrorContext(ctx, "registry operation failed", "operation", op, "key", key, "error", err)
	}
}

func (e *Engine) gaugePartition(partition map[string]models.Professional, op string) {
	counts := map[string]int{}
	for _, p := range partition {
		counts[p.IDType]++
	}
	e.metrics.ProfessionalSize.WithLabelValues(metrics.IDTypeAny, op).Set(float64(len(partition)))
	for _, idType := range []string{metrics.IDTypeADELI, metrics.IDTypeFINESS, metrics.IDTypeSIRET, metrics.IDTypeRPPS} {
		e.metrics.ProfessionalSize.WithLabelValues(idType, op).Set(float64(counts[idType]))
	}
}

func (e *Engine) resetProgression() {
	for _, entity := range []string{"professional", "structure"} {
		for _, op := range []string{metrics.OpCreate, metrics.OpUpdate, metrics.OpDelete} {
			e.metrics.Progression.WithLabelValues(entity, op).Set(0)
		}
	}
}

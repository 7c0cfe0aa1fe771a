package reconcile

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"regsync/internal/diff"
	"regsync/internal/platform/metrics"
	"regsync/internal/registry/models"
)

// fakeRegistry records every dispatched operation as a readable string.
type fakeRegistry struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeRegistry) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeRegistry) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRegistry) CreateProfessional(_ context.Context, p models.Professional, force bool) error {
	f.record("create professional %s force=%v", p.NationalID, force)
	return nil
}

func (f *fakeRegistry) UpdateProfessional(_ context.Context, p models.Professional) error {
	f.record("update professional %s", p.NationalID)
	return nil
}

func (f *fakeRegistry) DeleteProfessional(_ context.Context, nationalID string) error {
	f.record("delete professional %s", nationalID)
	return nil
}

func (f *fakeRegistry) CreateExercise(_ context.Context, nationalID string, e models.Exercise) error {
	f.record("create exercise %s/%s", nationalID, e.ProfessionID)
	return nil
}

func (f *fakeRegistry) UpdateExercise(_ context.Context, nationalID string, e models.Exercise) error {
	f.record("update exercise %s/%s", nationalID, e.ProfessionID)
	return nil
}

func (f *fakeRegistry) DeleteExercise(_ context.Context, nationalID, professionID string) error {
	f.record("delete exercise %s/%s", nationalID, professionID)
	return nil
}

func (f *fakeRegistry) CreateExpertise(_ context.Context, nationalID, professionID string, x models.Expertise) error {
	f.record("create expertise %s/%s/%s", nationalID, professionID, x.ExpertiseID)
	return nil
}

func (f *fakeRegistry) UpdateExpertise(_ context.Context, nationalID, professionID string, x models.Expertise) error {
	f.record("update expertise %s/%s/%s", nationalID, professionID, x.ExpertiseID)
	return nil
}

func (f *fakeRegistry) DeleteExpertise(_ context.Context, nationalID, professionID, expertiseID string) error {
	f.record("delete expertise %s/%s/%s", nationalID, professionID, expertiseID)
	return nil
}

func (f *fakeRegistry) CreateSituation(_ context.Context, nationalID, professionID string, s models.WorkSituation) error {
	f.record("create situation %s/%s/%s", nationalID, professionID, s.SituationID)
	return nil
}

func (f *fakeRegistry) UpdateSituation(_ context.Context, nationalID, professionID string, s models.WorkSituation) error {
	f.record("update situation %s/%s/%s", nationalID, professionID, s.SituationID)
	return nil
}

func (f *fakeRegistry) DeleteSituation(_ context.Context, nationalID, professionID, situationID string) error {
	f.record("delete situation %s/%s/%s", nationalID, professionID, situationID)
	return nil
}

func (f *fakeRegistry) CreateStructure(_ context.Context, s models.Structure) error {
	f.record("create structure %s", s.StructureID)
	return nil
}

func (f *fakeRegistry) UpdateStructure(_ context.Context, s models.Structure) error {
	f.record("update structure %s", s.StructureID)
	return nil
}

func (f *fakeRegistry) DeleteStructure(_ context.Context, structureID string) error {
	f.record("delete structure %s", structureID)
	return nil
}

func newTestEngine(registry Registry, opts ...Option) *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(registry, metrics.NewUnregistered(), logger, opts...)
}

func professional(nationalID string, exercises ...models.Exercise) models.Professional {
	return models.Professional{
		IDType:     nationalID[:1],
		NationalID: nationalID,
		LastName:   "MARTIN",
		Exercises:  exercises,
	}
}

func exercise(id string, expertises []models.Expertise, situations []models.WorkSituation) models.Exercise {
	return models.Exercise{ProfessionID: id, ProfessionCode: "10", Expertises: expertises, WorkSituations: situations}
}

func TestUploadDispatchesTopLevelOperations(t *testing.T) {
	registry := &fakeRegistry{}
	engine := newTestEngine(registry)

	previous := map[string]models.Professional{
		"811111": professional("811111"),
	}
	next := map[string]models.Professional{
		"822222": professional("822222"),
	}
	prevStructs := map[string]models.Structure{
		"R1": {StructureID: "R1"},
		"R2": {StructureID: "R2", OfficialName: "OLD"},
	}
	nextStructs := map[string]models.Structure{
		"R2": {StructureID: "R2", OfficialName: "NEW"},
		"R3": {StructureID: "R3"},
	}

	psDiff := engine.DiffProfessionals(previous, next)
	structDiff := engine.DiffStructures(prevStructs, nextStructs)
	engine.Upload(context.Background(), psDiff, structDiff)

	assert.ElementsMatch(t, []string{
		"delete professional 811111",
		"create professional 822222 force=true",
		"delete structure R1",
		"create structure R3",
		"update structure R2",
	}, registry.recorded())
}

func TestUploadHonorsDeletionExclusion(t *testing.T) {
	registry := &fakeRegistry{}
	engine := newTestEngine(registry,
		WithDeletionExclusion(ExcludeByProfessionCode([]string{"10"})))

	removed := professional("811111", exercise("E1", nil, nil))
	psDiff := engine.DiffProfessionals(
		map[string]models.Professional{"811111": removed},
		map[string]models.Professional{},
	)
	engine.Upload(context.Background(), psDiff, diff.Result[string, models.Structure]{})

	assert.Empty(t, registry.recorded(), "protected profession is soft-preserved")
}

func TestReconcileProfessionalGatesShallowUpdate(t *testing.T) {
	registry := &fakeRegistry{}
	engine := newTestEngine(registry)

	// Same scalar attributes, only the nested exercise list changed: no
	// shallow update of the professional itself.
	left := professional("811111", exercise("E1", nil, nil))
	right := professional("811111", exercise("E1", nil, nil), exercise("E2", nil, nil))

	engine.reconcileProfessional(context.Background(), left, right)

	assert.ElementsMatch(t, []string{"create exercise 811111/E2"}, registry.recorded())
}

func TestReconcileProfessionalShallowUpdateOnScalarChange(t *testing.T) {
	registry := &fakeRegistry{}
	engine := newTestEngine(registry)

	left := professional("811111")
	right := professional("811111")
	right.FirstName = "ANNE"

	engine.reconcileProfessional(context.Background(), left, right)

	assert.ElementsMatch(t, []string{"update professional 811111"}, registry.recorded())
}

func TestReconcileExerciseExpertiseTurnover(t *testing.T) {
	registry := &fakeRegistry{}
	engine := newTestEngine(registry)

	situations := []models.WorkSituation{{SituationID: "S1"}}
	left := professional("811111",
		exercise("E1", []models.Expertise{{ExpertiseID: "X1"}}, situations))
	right := professional("811111",
		exercise("E1", []models.Expertise{{ExpertiseID: "X2"}}, situations))

	engine.reconcileProfessional(context.Background(), left, right)

	assert.ElementsMatch(t, []string{
		"delete expertise 811111/E1/X1",
		"create expertise 811111/E1/X2",
	}, registry.recorded(), "unchanged situation triggers no operation")
}

func TestReconcileExerciseSituationReplacedWholesale(t *testing.T) {
	registry := &fakeRegistry{}
	engine := newTestEngine(registry)

	left := professional("811111",
		exercise("E1", nil, []models.WorkSituation{{
			SituationID: "S1",
			Structures:  []models.StructureRef{{StructureID: "R1"}},
		}}))
	right := professional("811111",
		exercise("E1", nil, []models.WorkSituation{{
			SituationID: "S1",
			Structures:  []models.StructureRef{{StructureID: "R2"}},
		}}))

	engine.reconcileProfessional(context.Background(), left, right)

	assert.ElementsMatch(t, []string{
		"update situation 811111/E1/S1",
	}, registry.recorded(), "a structure-reference change replaces the situation")
}

func TestDiffProfessionalsUnchangedIsEmpty(t *testing.T) {
	engine := newTestEngine(&fakeRegistry{})

	same := map[string]models.Professional{"811111": professional("811111", exercise("E1", nil, nil))}
	d := engine.DiffProfessionals(same, same)

	assert.True(t, d.Empty())
}

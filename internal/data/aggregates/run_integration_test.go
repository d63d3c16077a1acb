package aggregates

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/lotline-backend/internal/data/repos/runs"
	repotest "github.com/yungbote/lotline-backend/internal/data/repos/testutil"
	domainagg "github.com/yungbote/lotline-backend/internal/domain/aggregates"
	"github.com/yungbote/lotline-backend/internal/domain/production"
)

func startRun(t *testing.T, h *harness, v *production.FlowVersion, key string) *production.ProductionRun {
	t.Helper()
	res, err := h.run.StartRun(h.ctx, domainagg.StartRunInput{FlowVersionID: v.ID, IdempotencyKey: key, StartedBy: "op-1"})
	require.NoError(t, err)
	require.False(t, res.Replayed)
	return res.Run
}

func TestStartRunPinsPublishedVersion(t *testing.T) {
	h := newHarness(t)
	v := publishFlow(t, h, newDefinition(t, h), "receive", "qc-intake", "cut")

	run := startRun(t, h, v, "start-a")
	assert.Equal(t, production.RunRunning, run.Status)
	assert.Equal(t, 0, run.CurrentStepIndex)
	assert.Equal(t, 3, run.StepCount)
	assert.Equal(t, v.ID, run.FlowVersionID)
	assert.Equal(t, "RUN-20260124-DUNA-0001", run.RunCode)

	steps, err := h.repos.RunSteps.ListByRun(h.dbc(), run.ID)
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, production.StepInProgress, steps[0].Status)
	assert.Equal(t, production.StepPending, steps[1].Status)
	assert.Equal(t, production.StepPending, steps[2].Status)
}

func TestStartRunIsIdempotent(t *testing.T) {
	h := newHarness(t)
	v := publishFlow(t, h, newDefinition(t, h), "receive", "cut")

	first := startRun(t, h, v, "start-same")
	again, err := h.run.StartRun(h.ctx, domainagg.StartRunInput{FlowVersionID: v.ID, IdempotencyKey: "start-same", StartedBy: "op-1"})
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, first.ID, again.Run.ID)

	all, err := h.repos.Runs.List(h.dbc(), runs.RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = h.run.StartRun(h.ctx, domainagg.StartRunInput{FlowVersionID: v.ID, IdempotencyKey: "start-same", StartedBy: "someone-else"})
	require.Error(t, err)
	assert.True(t, domainagg.IsKind(err, domainagg.KindIdempotencyConflict), "got %v", err)
}

func TestStartRunRejectsDraftVersion(t *testing.T) {
	h := newHarness(t)
	def := newDefinition(t, h)
	draft, err := h.flow.CreateDraft(h.ctx, def.ID, "author")
	require.NoError(t, err)

	_, err = h.run.StartRun(h.ctx, domainagg.StartRunInput{FlowVersionID: draft.ID, IdempotencyKey: "start-draft", StartedBy: "op"})
	require.Error(t, err)
	assert.True(t, domainagg.IsKind(err, domainagg.KindVersionNotPublished), "got %v", err)

	_, err = h.run.StartRun(h.ctx, domainagg.StartRunInput{FlowVersionID: draft.ID, StartedBy: "op"})
	require.Error(t, err)
	assert.True(t, domainagg.IsKind(err, domainagg.KindValidation), "a missing key is a validation error")
}

func TestRunWalksStepsToCompletion(t *testing.T) {
	h := newHarness(t)
	v := publishFlow(t, h, newDefinition(t, h), "receive", "cut")
	run := startRun(t, h, v, "walk")

	_, err := h.run.CompleteRun(h.ctx, run.ID, "op")
	require.Error(t, err, "cannot complete before the final step")

	run, err = h.run.AdvanceStep(h.ctx, domainagg.StepInput{RunID: run.ID, ExpectedStepIndex: ptr(0), ActorID: "op"})
	require.NoError(t, err)
	assert.Equal(t, 1, run.CurrentStepIndex)

	_, err = h.run.AdvanceStep(h.ctx, domainagg.StepInput{RunID: run.ID, ActorID: "op"})
	require.Error(t, err, "no step past the last one")

	run, err = h.run.CompleteRun(h.ctx, run.ID, "op")
	require.NoError(t, err)
	assert.Equal(t, production.RunCompleted, run.Status)
	require.NotNil(t, run.EndedAt)

	assert.Equal(t, []string{
		production.EventRunStarted,
		production.EventRunStepAdvanced,
		production.EventRunCompleted,
	}, h.history(t, production.EntityRun, run.ID.String()))
}

func TestAdvanceBlockedByOpenQCWork(t *testing.T) {
	h := newHarness(t)
	v := publishFlow(t, h, newDefinition(t, h), "receive", "qc-intake", "cut")
	run := startRun(t, h, v, "qc-block")

	reg, err := h.lot.RegisterLot(h.ctx, domainagg.RegisterLotInput{LotType: "RAW", RunID: &run.ID, WeightKg: ptr(120.0), OperatorID: "op"})
	require.NoError(t, err)
	insp, err := h.lot.RequestInspection(h.ctx, domainagg.RequestInspectionInput{LotID: reg.Lot.ID, InspectionType: "VISUAL", ActorID: "qc"})
	require.NoError(t, err)

	_, err = h.run.AdvanceStep(h.ctx, domainagg.StepInput{RunID: run.ID, ActorID: "op"})
	require.Error(t, err)
	assert.True(t, domainagg.IsKind(err, domainagg.KindStepNotReady), "got %v", err)

	_, err = h.lot.TransitionLotStatus(h.ctx, domainagg.QCDecisionInput{
		LotID: reg.Lot.ID, InspectionID: &insp.ID, Decision: production.DecisionPass, InspectorID: "qc",
	})
	require.NoError(t, err)

	run, err = h.run.AdvanceStep(h.ctx, domainagg.StepInput{RunID: run.ID, ActorID: "op"})
	require.NoError(t, err)
	assert.Equal(t, 1, run.CurrentStepIndex)
}

func TestConcurrentAdvanceSerializes(t *testing.T) {
	h := newHarness(t)
	v := publishFlow(t, h, newDefinition(t, h), "receive", "cut", "pack")
	run := startRun(t, h, v, "race")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.run.AdvanceStep(h.ctx, domainagg.StepInput{RunID: run.ID, ExpectedStepIndex: ptr(0), ActorID: "op"})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, domainagg.IsKind(err, domainagg.KindStateConflict), "loser should see a state conflict, got %v", err)
	}
	assert.Equal(t, 1, succeeded)

	got, err := h.repos.Runs.GetByID(h.dbc(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentStepIndex)
}

func TestHoldResumeRollbackAndAbort(t *testing.T) {
	h := newHarness(t)
	v := publishFlow(t, h, newDefinition(t, h), "receive", "cut", "pack")
	run := startRun(t, h, v, "hold")

	_, err := h.run.RollbackStep(h.ctx, domainagg.StepInput{RunID: run.ID, Reason: "redo", ActorID: "op"})
	require.Error(t, err, "nothing to roll back at step 0")

	run, err = h.run.AdvanceStep(h.ctx, domainagg.StepInput{RunID: run.ID, ActorID: "op"})
	require.NoError(t, err)
	_, err = h.run.RollbackStep(h.ctx, domainagg.StepInput{RunID: run.ID, ActorID: "op"})
	require.Error(t, err, "rollback needs a reason")
	run, err = h.run.RollbackStep(h.ctx, domainagg.StepInput{RunID: run.ID, Reason: "wrong cut size", ActorID: "op"})
	require.NoError(t, err)
	assert.Equal(t, 0, run.CurrentStepIndex)

	run, err = h.run.HoldRun(h.ctx, run.ID, "chiller alarm", "supervisor")
	require.NoError(t, err)
	assert.Equal(t, production.RunHold, run.Status)
	_, err = h.run.AdvanceStep(h.ctx, domainagg.StepInput{RunID: run.ID, ActorID: "op"})
	require.Error(t, err, "a held run cannot advance")

	run, err = h.run.ResumeRun(h.ctx, run.ID, "alarm cleared", "supervisor")
	require.NoError(t, err)
	assert.Equal(t, production.RunRunning, run.Status)

	run, err = h.run.AbortRun(h.ctx, run.ID, "line breakdown", "supervisor")
	require.NoError(t, err)
	assert.Equal(t, production.RunAborted, run.Status)

	steps, err := h.repos.RunSteps.ListByRun(h.dbc(), run.ID)
	require.NoError(t, err)
	for _, s := range steps {
		assert.Equal(t, production.StepSkipped, s.Status, "step %d", s.StepIndex)
	}
}

func TestArchiveRespectsRetention(t *testing.T) {
	h := newHarness(t)
	v := publishFlow(t, h, newDefinition(t, h), "receive")
	run := startRun(t, h, v, "archive")
	_, err := h.run.CompleteRun(h.ctx, run.ID, "op")
	require.NoError(t, err)

	_, err = h.run.ArchiveRun(h.ctx, run.ID, "manager")
	require.Error(t, err, "too early to archive")
	assert.True(t, domainagg.IsKind(err, domainagg.KindStateConflict))

	n, err := h.run.ArchiveExpired(h.ctx, harnessNow.Add(31*24*time.Hour), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := h.repos.Runs.GetByID(h.dbc(), run.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ArchivedAt)
	assert.Equal(t, production.RunArchived, got.Status)

	n, err = h.run.ArchiveExpired(h.ctx, harnessNow.Add(31*24*time.Hour), 10)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = h.run.ArchiveRun(h.ctx, run.ID, "manager")
	require.Error(t, err)
	assert.True(t, domainagg.IsCode(err, domainagg.CodeConflict), "got %v", err)

	_, err = h.run.HoldRun(h.ctx, run.ID, "too late", "manager")
	require.Error(t, err, "archived runs accept no transitions")

	listed, err := h.repos.Runs.List(h.dbc(), runs.RunFilter{Status: production.RunArchived})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, run.ID, listed[0].ID)

	live, err := h.repos.Runs.List(h.dbc(), runs.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestArchiveAbortedRun(t *testing.T) {
	h := newHarness(t)
	v := publishFlow(t, h, newDefinition(t, h), "receive", "pack")
	run := startRun(t, h, v, "archive-aborted")
	_, err := h.run.AbortRun(h.ctx, run.ID, "line stopped", "op")
	require.NoError(t, err)

	n, err := h.run.ArchiveExpired(h.ctx, harnessNow.Add(31*24*time.Hour), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := h.repos.Runs.GetByID(h.dbc(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, production.RunArchived, got.Status)
	assert.Contains(t, h.history(t, production.EntityRun, run.ID.String()), production.EventRunArchived)
}

func TestRunCodeRejectsForeignFormat(t *testing.T) {
	h := newHarness(t)
	_, v := repotest.SeedPublishedFlow(t, h.ctx, h.db, "receive")
	_, err := h.run.StartRun(h.ctx, domainagg.StartRunInput{FlowVersionID: v.ID, IdempotencyKey: "bad-code", RunCode: "RAW-20260124-DUNA-0001"})
	require.Error(t, err)
	assert.True(t, domainagg.IsKind(err, domainagg.KindValidation), "got %v", err)
}

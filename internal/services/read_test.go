package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/lotline-backend/internal/data/repos"
	repotest "github.com/yungbote/lotline-backend/internal/data/repos/testutil"
	domainagg "github.com/yungbote/lotline-backend/internal/domain/aggregates"
	"github.com/yungbote/lotline-backend/internal/domain/production"
	"github.com/yungbote/lotline-backend/internal/platform/dbctx"
)

func TestFlowServiceVersionView(t *testing.T) {
	ctx := context.Background()
	db := repotest.DB(t)
	set := repos.NewSet(db, repotest.Logger(t))
	svc := NewFlowService(repotest.Logger(t), set.FlowDefinitions, set.FlowVersions)

	def, v := repotest.SeedPublishedFlow(t, ctx, db, "debone", "qc1", "pack")
	view, err := svc.GetVersion(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, view.Steps, 3)
	require.Equal(t, "qc1", view.Steps[1].NodeID)
	require.Equal(t, production.NodeQCGate, view.Steps[1].NodeType)

	versions, err := svc.ListVersions(ctx, def.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)

	_, err = svc.ListVersions(ctx, uuid.New())
	require.True(t, domainagg.IsKind(err, domainagg.KindNotFound), "got %v", err)
	_, err = svc.GetVersion(ctx, uuid.New())
	require.True(t, domainagg.IsKind(err, domainagg.KindNotFound), "got %v", err)
}

func TestRunServiceFilters(t *testing.T) {
	ctx := context.Background()
	db := repotest.DB(t)
	set := repos.NewSet(db, repotest.Logger(t))
	svc := NewRunService(repotest.Logger(t), set.Runs, set.RunSteps)

	_, v := repotest.SeedPublishedFlow(t, ctx, db, "mix")
	running := repotest.SeedRun(t, ctx, db, v.ID, production.RunRunning, 1)
	repotest.SeedRun(t, ctx, db, v.ID, production.RunHold, 1)

	got, err := svc.ListRuns(ctx, RunListFilter{Status: production.RunRunning})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, running.ID, got[0].ID)

	_, err = svc.ListRuns(ctx, RunListFilter{Status: "PAUSED"})
	require.True(t, domainagg.IsKind(err, domainagg.KindValidation), "got %v", err)

	steps, err := svc.GetStepExecutions(ctx, running.ID)
	require.NoError(t, err)
	require.Empty(t, steps)
	_, err = svc.GetRun(ctx, uuid.New())
	require.True(t, domainagg.IsKind(err, domainagg.KindNotFound), "got %v", err)
}

func TestLotServiceLookups(t *testing.T) {
	ctx := context.Background()
	db := repotest.DB(t)
	set := repos.NewSet(db, repotest.Logger(t))
	svc := NewLotService(repotest.Logger(t), set.Lots, set.Inspections, set.Temperatures, set.StockMoves)

	lot := repotest.SeedLot(t, ctx, db, "RAW", production.LotReleased, kg(40))
	repotest.SeedTemperatureViolation(t, ctx, db, lot.ID, production.MeasureSurface, 7)

	view, err := svc.GetLot(ctx, lot.ID)
	require.NoError(t, err)
	require.Len(t, view.Temperatures, 1)
	require.Empty(t, view.Inspections)

	byCode, err := svc.GetLotByCode(ctx, " "+lot.LotCode+" ")
	require.NoError(t, err)
	require.Equal(t, lot.ID, byCode.ID)

	_, err = svc.GetLotByCode(ctx, "not-a-code")
	require.True(t, domainagg.IsKind(err, domainagg.KindValidation), "got %v", err)
	_, err = svc.ListLots(ctx, LotListFilter{LotType: "CAKE"})
	require.True(t, domainagg.IsKind(err, domainagg.KindValidation), "got %v", err)

	raws, err := svc.ListLots(ctx, LotListFilter{LotType: "raw"})
	require.NoError(t, err)
	require.Len(t, raws, 1)
}

func TestInventoryServiceContents(t *testing.T) {
	ctx := context.Background()
	db := repotest.DB(t)
	set := repos.NewSet(db, repotest.Logger(t))
	svc := NewInventoryService(repotest.Logger(t), set.Buffers, set.InventoryItems, set.StockMoves, set.Lots)

	buf := repotest.SeedBuffer(t, ctx, db, "CHL-01", 200, "RAW")
	lot := repotest.SeedLot(t, ctx, db, "RAW", production.LotQuarantine, kg(80))
	require.NoError(t, db.Create(&production.InventoryItem{
		LotID: lot.ID, BufferID: buf.ID, QuantityKg: 80, EnteredAt: time.Now().UTC(),
	}).Error)

	contents, err := svc.GetBufferContents(ctx, buf.ID)
	require.NoError(t, err)
	require.Equal(t, 80.0, contents.LoadKg)
	require.Len(t, contents.Items, 1)
	require.Equal(t, lot.LotCode, contents.Items[0].Lot.LotCode)

	sums, err := svc.BufferSummaries(ctx)
	require.NoError(t, err)
	require.Len(t, sums, 1)
	require.Equal(t, 1, sums[0].LotCount)

	_, err = svc.GetBufferContents(ctx, uuid.New())
	require.True(t, domainagg.IsKind(err, domainagg.KindNotFound), "got %v", err)
}

func TestAuditServiceLimits(t *testing.T) {
	ctx := context.Background()
	db := repotest.DB(t)
	set := repos.NewSet(db, repotest.Logger(t))
	svc := NewAuditService(repotest.Logger(t), set.AuditEvents)

	for i := 0; i < 3; i++ {
		_, err := set.AuditEvents.Append(dbctx.Background(), &production.AuditEvent{
			EventType:  production.EventRunStarted,
			EntityType: production.EntityRun,
			EntityID:   "run-1",
			ActorID:    "op-1",
		})
		require.NoError(t, err)
	}

	hist, err := svc.EntityHistory(ctx, production.EntityRun, "run-1", 0)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	require.Less(t, hist[0].ID, hist[2].ID)

	recent, err := svc.Query(ctx, AuditQuery{ActorID: "op-1", Limit: 2})
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Greater(t, recent[0].ID, recent[1].ID)

	_, err = svc.Query(ctx, AuditQuery{Limit: 501})
	require.True(t, domainagg.IsKind(err, domainagg.KindValidation), "got %v", err)
	_, err = svc.EntityHistory(ctx, "", "x", 10)
	require.True(t, domainagg.IsKind(err, domainagg.KindValidation), "got %v", err)

	after, err := svc.After(ctx, hist[0].ID, 10)
	require.NoError(t, err)
	require.Len(t, after, 2)
}

package aggregates

import (
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	repotest "github.com/yungbote/lotline-backend/internal/data/repos/testutil"
	domainagg "github.com/yungbote/lotline-backend/internal/domain/aggregates"
	"github.com/yungbote/lotline-backend/internal/domain/production"
)

func registerLot(t *testing.T, h *harness, lotType string, runID *uuid.UUID, weight float64) *production.Lot {
	t.Helper()
	res, err := h.lot.RegisterLot(h.ctx, domainagg.RegisterLotInput{
		LotType:    lotType,
		RunID:      runID,
		WeightKg:   ptr(weight),
		OperatorID: "op-1",
	})
	require.NoError(t, err)
	return res.Lot
}

func release(t *testing.T, h *harness, lot *production.Lot) *production.Lot {
	t.Helper()
	res, err := h.lot.TransitionLotStatus(h.ctx, domainagg.QCDecisionInput{
		LotID:       lot.ID,
		Decision:    production.DecisionPass,
		InspectorID: "qc-1",
	})
	require.NoError(t, err)
	return res.Lot
}

func TestRawIntakeToDeboning(t *testing.T) {
	h := newHarness(t)
	v := publishFlow(t, h, newDefinition(t, h), "receive", "qc-intake", "debone")
	run := startRun(t, h, v, "intake")

	raw := registerLot(t, h, "RAW", &run.ID, 500)
	assert.Equal(t, "RAW-20260124-DUNA-0001", raw.LotCode)
	assert.Equal(t, production.LotQuarantine, raw.Status)
	require.NotNil(t, raw.StepIndex)
	assert.Equal(t, 0, *raw.StepIndex)

	raw = release(t, h, raw)
	assert.Equal(t, production.LotReleased, raw.Status)

	deb := registerLot(t, h, "DEB", &run.ID, 380)
	assert.Equal(t, "DEB-20260124-DUNA-0001", deb.LotCode)

	link, err := h.lot.LinkGenealogy(h.ctx, domainagg.LinkGenealogyInput{
		ParentLotID: raw.ID, ChildLotID: deb.ID, QuantityKg: ptr(450.0), ActorID: "op-1",
	})
	require.NoError(t, err)
	assert.Equal(t, raw.ID, link.ParentLotID)

	_, err = h.lot.LinkGenealogy(h.ctx, domainagg.LinkGenealogyInput{
		ParentLotID: raw.ID, ChildLotID: deb.ID, QuantityKg: ptr(10.0), ActorID: "op-1",
	})
	require.Error(t, err)
	assert.True(t, domainagg.IsKind(err, domainagg.KindDuplicateLink), "got %v", err)

	_, err = h.lot.LinkGenealogy(h.ctx, domainagg.LinkGenealogyInput{ParentLotID: deb.ID, ChildLotID: raw.ID, ActorID: "op-1"})
	require.Error(t, err)
	assert.True(t, domainagg.IsKind(err, domainagg.KindCycleDetected), "got %v", err)

	assert.Equal(t, []string{
		production.EventLotRegistered,
		production.EventLotStatusChanged,
	}, h.history(t, production.EntityLot, raw.ID.String()))
	assert.Equal(t, 1, h.effects.links)
}

func TestLinkRejectsQuantityOverParentWeight(t *testing.T) {
	h := newHarness(t)
	parent := repotest.SeedLot(t, h.ctx, h.db, "RAW", production.LotReleased, ptr(100.0))
	a := repotest.SeedLot(t, h.ctx, h.db, "DEB", production.LotQuarantine, nil)
	b := repotest.SeedLot(t, h.ctx, h.db, "DEB", production.LotQuarantine, nil)

	_, err := h.lot.LinkGenealogy(h.ctx, domainagg.LinkGenealogyInput{ParentLotID: parent.ID, ChildLotID: a.ID, QuantityKg: ptr(70.0)})
	require.NoError(t, err)
	_, err = h.lot.LinkGenealogy(h.ctx, domainagg.LinkGenealogyInput{ParentLotID: parent.ID, ChildLotID: b.ID, QuantityKg: ptr(31.0)})
	require.Error(t, err)
	assert.True(t, domainagg.IsCode(err, domainagg.CodeInvariantViolation), "got %v", err)
}

func TestLinkEnforcesSkuPurity(t *testing.T) {
	h := newHarness(t)
	frz30 := repotest.SeedLot(t, h.ctx, h.db, "FRZ30", production.LotReleased, nil)
	fg15 := repotest.SeedLot(t, h.ctx, h.db, "FG15", production.LotQuarantine, nil)

	_, err := h.lot.LinkGenealogy(h.ctx, domainagg.LinkGenealogyInput{ParentLotID: frz30.ID, ChildLotID: fg15.ID})
	require.Error(t, err)
	assert.True(t, domainagg.IsKind(err, domainagg.KindSkuMismatch), "got %v", err)
}

func TestLinkRequiresReleasedParent(t *testing.T) {
	h := newHarness(t)
	parent := repotest.SeedLot(t, h.ctx, h.db, "RAW", production.LotQuarantine, nil)
	child := repotest.SeedLot(t, h.ctx, h.db, "DEB", production.LotQuarantine, nil)

	_, err := h.lot.LinkGenealogy(h.ctx, domainagg.LinkGenealogyInput{ParentLotID: parent.ID, ChildLotID: child.ID})
	require.Error(t, err)
	assert.True(t, domainagg.IsKind(err, domainagg.KindStateConflict), "got %v", err)
}

func TestGenealogyStaysAcyclicUnderRandomLinks(t *testing.T) {
	h := newHarness(t)
	const n = 12
	lots := make([]*production.Lot, n)
	for i := range lots {
		lots[i] = repotest.SeedLot(t, h.ctx, h.db, "MIX", production.LotReleased, nil)
	}

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 60; i++ {
		p, c := lots[rng.Intn(n)], lots[rng.Intn(n)]
		_, err := h.lot.LinkGenealogy(h.ctx, domainagg.LinkGenealogyInput{ParentLotID: p.ID, ChildLotID: c.ID})
		switch {
		case p.Seq >= c.Seq:
			require.Error(t, err)
			assert.True(t, domainagg.IsKind(err, domainagg.KindCycleDetected), "%d->%d: %v", p.Seq, c.Seq, err)
		case err != nil:
			assert.True(t, domainagg.IsKind(err, domainagg.KindDuplicateLink), "%d->%d: %v", p.Seq, c.Seq, err)
		}
	}

	ids := make([]uuid.UUID, 0, n)
	seqOf := map[uuid.UUID]int64{}
	for _, l := range lots {
		ids = append(ids, l.ID)
		seqOf[l.ID] = l.Seq
	}
	links, err := h.repos.Genealogy.ListByParents(h.dbc(), ids)
	require.NoError(t, err)
	require.NotEmpty(t, links)
	for _, l := range links {
		assert.Less(t, seqOf[l.ParentLotID], seqOf[l.ChildLotID], "every edge points forward in creation order")
	}
}

func TestQCDecisionRequiresNotesForHoldAndFail(t *testing.T) {
	h := newHarness(t)
	lot := registerLot(t, h, "RAW", nil, 50)

	_, err := h.lot.TransitionLotStatus(h.ctx, domainagg.QCDecisionInput{LotID: lot.ID, Decision: production.DecisionFail, Notes: "bad", InspectorID: "qc"})
	require.Error(t, err)
	assert.True(t, domainagg.IsKind(err, domainagg.KindValidation), "got %v", err)

	res, err := h.lot.TransitionLotStatus(h.ctx, domainagg.QCDecisionInput{
		LotID: lot.ID, Decision: production.DecisionHold, Notes: "surface discoloration on two crates", InspectorID: "qc",
	})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, production.LotHold, res.Lot.Status)

	res, err = h.lot.TransitionLotStatus(h.ctx, domainagg.QCDecisionInput{
		LotID: lot.ID, Decision: production.DecisionHold, Notes: "still waiting on the lab result", InspectorID: "qc",
	})
	require.NoError(t, err)
	assert.False(t, res.Changed, "HOLD on a held lot only records the inspection")

	res, err = h.lot.TransitionLotStatus(h.ctx, domainagg.QCDecisionInput{LotID: lot.ID, Decision: production.DecisionPass, InspectorID: "qc"})
	require.NoError(t, err)
	assert.Equal(t, production.LotReleased, res.Lot.Status)

	inspections, err := h.repos.Inspections.ListByLot(h.dbc(), lot.ID)
	require.NoError(t, err)
	assert.Len(t, inspections, 3)
}

func TestHoldWithoutNotesLeavesReleasedLotUntouched(t *testing.T) {
	h := newHarness(t)
	lot := release(t, h, registerLot(t, h, "RAW", nil, 80))
	require.Equal(t, production.LotReleased, lot.Status)

	before, err := h.repos.Inspections.ListByLot(h.dbc(), lot.ID)
	require.NoError(t, err)
	require.Len(t, before, 1)
	events := h.history(t, production.EntityLot, lot.ID.String())

	for _, notes := range []string{"", "   "} {
		_, err := h.lot.TransitionLotStatus(h.ctx, domainagg.QCDecisionInput{
			LotID: lot.ID, Decision: production.DecisionHold, Notes: notes, InspectorID: "qc-2",
		})
		require.Error(t, err)
		assert.True(t, domainagg.IsKind(err, domainagg.KindValidation), "got %v", err)
	}

	assert.Equal(t, production.LotReleased, h.lotByID(t, lot.ID).Status)
	after, err := h.repos.Inspections.ListByLot(h.dbc(), lot.ID)
	require.NoError(t, err)
	assert.Len(t, after, 1, "a rejected decision must not leave an inspection row")
	assert.Equal(t, events, h.history(t, production.EntityLot, lot.ID.String()))
}

func TestTemperatureViolationHoldsLot(t *testing.T) {
	h := newHarness(t)
	lot := registerLot(t, h, "FRZ", nil, 200)
	lot = release(t, h, lot)

	ok, err := h.lot.RecordTemperature(h.ctx, domainagg.RecordTemperatureInput{
		LotID: &lot.ID, TemperatureC: -21, MeasurementType: production.MeasureCore, RecordedBy: "qc",
	})
	require.NoError(t, err)
	assert.False(t, ok.Held)
	assert.False(t, ok.Log.IsViolation)

	res, err := h.lot.RecordTemperature(h.ctx, domainagg.RecordTemperatureInput{
		LotID: &lot.ID, TemperatureC: -12.5, MeasurementType: production.MeasureCore, RecordedBy: "qc",
	})
	require.NoError(t, err)
	assert.True(t, res.Held)
	assert.True(t, res.Log.IsViolation)
	assert.Equal(t, production.LotHold, h.lotByID(t, lot.ID).Status)
	assert.Contains(t, h.history(t, production.EntityLot, lot.ID.String()), production.EventTempViolationHold)
	assert.Contains(t, h.hooks.Compliance, spyCompliance{Event: "temperature_hold", Subject: production.MeasureCore})

	res, err = h.lot.RecordTemperature(h.ctx, domainagg.RecordTemperatureInput{
		LotID: &lot.ID, TemperatureC: -10, MeasurementType: production.MeasureCore, RecordedBy: "qc",
	})
	require.NoError(t, err)
	assert.False(t, res.Held, "a held lot is not held twice")
}

func TestRegisterLotValidation(t *testing.T) {
	h := newHarness(t)
	cases := []domainagg.RegisterLotInput{
		{LotType: "BEEF"},
		{LotType: "RAW", WeightKg: ptr(-1.0)},
		{LotType: "RAW", TemperatureC: ptr(150.0)},
		{LotType: "RAW", StepIndex: ptr(0)},
		{LotType: "RAW", LotCode: "RUN-20260124-DUNA-0001"},
	}
	for _, in := range cases {
		_, err := h.lot.RegisterLot(h.ctx, in)
		require.Error(t, err, "%+v", in)
		assert.True(t, domainagg.IsKind(err, domainagg.KindValidation), "%+v: %v", in, err)
	}
}

func TestRegisterLotKeepsExplicitCodeAndAdvancesSequence(t *testing.T) {
	h := newHarness(t)
	res, err := h.lot.RegisterLot(h.ctx, domainagg.RegisterLotInput{LotType: "RAW", LotCode: "raw-20260124-duna-0007"})
	require.NoError(t, err)
	assert.Equal(t, "RAW-20260124-DUNA-0007", res.Lot.LotCode)

	next := registerLot(t, h, "RAW", nil, 10)
	assert.Equal(t, "RAW-20260124-DUNA-0008", next.LotCode)

	again, err := h.lot.RegisterLot(h.ctx, domainagg.RegisterLotInput{LotType: "RAW", LotCode: "RAW-20260124-DUNA-0007"})
	require.Error(t, err, "codes are unique")
	assert.Nil(t, again.Lot)
}

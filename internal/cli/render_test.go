package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/lotline-backend/internal/domain/production"
	"github.com/yungbote/lotline-backend/internal/realtime/bus"
	"github.com/yungbote/lotline-backend/internal/services"
)

func kg(v float64) *float64 { return &v }

func lot(code, lotType, status string) *production.Lot {
	return &production.Lot{ID: uuid.New(), LotCode: code, LotType: lotType, Status: status}
}

func goldenFor(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestRenderTreeGolden(t *testing.T) {
	root := lot("MIX-20260124-DUNA-0001", "MIX", production.LotReleased)
	root.WeightKg = kg(100)
	deb1 := lot("DEB-20260124-DUNA-0001", "DEB", production.LotReleased)
	deb2 := lot("DEB-20260124-DUNA-0002", "DEB", production.LotHold)
	raw := lot("RAW-20260124-DUNA-0001", "RAW", production.LotReleased)
	skw := lot("SKW15-20260125-DUNA-0001", "SKW15", production.LotCreated)

	tree := &services.TraceTree{
		Root:  root,
		Depth: 3,
		// Deliberately out of order; siblings render sorted by code.
		Ancestors: []services.TraceHop{
			{Lot: raw, Depth: 2, QuantityKg: kg(75), ViaLotID: deb1.ID},
			{Lot: deb2, Depth: 1, QuantityKg: kg(40), ViaLotID: root.ID},
			{Lot: deb1, Depth: 1, QuantityKg: kg(60), ViaLotID: root.ID},
		},
		Descendants: []services.TraceHop{
			{Lot: skw, Depth: 1, QuantityKg: kg(100), ViaLotID: root.ID},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, TreeRenderer{}.RenderTree(&buf, tree))
	goldenFor(t).Assert(t, "trace_tree", buf.Bytes())
}

func TestRenderTraceEmptyGolden(t *testing.T) {
	res := &services.TraceResult{
		Root:      lot("RAW-20260124-DUNA-0001", "RAW", production.LotReleased),
		Direction: services.DirectionForward,
		Depth:     1,
	}
	var buf bytes.Buffer
	require.NoError(t, TreeRenderer{}.RenderTrace(&buf, res))
	goldenFor(t).Assert(t, "trace_forward_empty", buf.Bytes())
}

func TestRenderColorOnlyWhenEnabled(t *testing.T) {
	res := &services.TraceResult{Root: lot("RAW-20260124-DUNA-0001", "RAW", production.LotHold), Direction: services.DirectionBack}

	var plain, colored bytes.Buffer
	require.NoError(t, TreeRenderer{}.RenderTrace(&plain, res))
	require.NoError(t, TreeRenderer{Color: true}.RenderTrace(&colored, res))
	assert.NotContains(t, plain.String(), "\x1b[")
	assert.Contains(t, colored.String(), "\x1b[")
	assert.True(t, strings.HasPrefix(plain.String(), "RAW-20260124-DUNA-0001  RAW  HOLD\nancestors (0):"))
}

func TestRenderRejectsEmpty(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, TreeRenderer{}.RenderTree(&buf, &services.TraceTree{}))
	assert.Error(t, TreeRenderer{}.RenderTrace(&buf, nil))
}

func TestRenderAuditLine(t *testing.T) {
	var buf bytes.Buffer
	m := bus.AuditMessage{
		Seq:        42,
		EventType:  production.EventRunCompleted,
		EntityType: "production_run",
		EntityID:   "run-1",
		CreatedAt:  time.Date(2026, 1, 24, 8, 30, 0, 0, time.UTC),
	}
	require.NoError(t, TreeRenderer{}.RenderAudit(&buf, m))
	assert.Equal(t, "#42  2026-01-24T08:30:00Z  RUN_COMPLETED  production_run/run-1  by -\n", buf.String())
}

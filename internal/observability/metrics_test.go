package observability

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	repotest "github.com/yungbote/lotline-backend/internal/data/repos/testutil"
	"github.com/yungbote/lotline-backend/internal/domain/production"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveAPI("GET", "/api/lots", "200", time.Millisecond)
	m.IncComplianceEvent("capacity_override", "FRZ-A")
	m.ObserveTrace("back", "hit", time.Millisecond)
	require.NoError(t, m.WritePrometheus(&bytes.Buffer{}))
	require.NoError(t, m.CollectProduction(context.Background(), nil))

	rec := httptest.NewRecorder()
	m.WriteHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 503, rec.Code)
}

func TestExposition(t *testing.T) {
	m := NewMetrics()
	m.ObserveAggregateOperation("Production.Run.AdvanceStep", "success", 20*time.Millisecond)
	m.ObserveAggregateOperation("Production.Run.AdvanceStep", "conflict", 5*time.Millisecond)
	m.IncAggregateConflict("Production.Run.AdvanceStep")
	m.IncComplianceEvent("temperature_hold", "CORE")
	m.IncComplianceEvent("temperature_hold", "CORE")
	m.ObserveTrace("tree", "", time.Millisecond)

	require.Equal(t, float64(2), m.complianceEvents.Value("temperature_hold", "CORE"))
	require.Equal(t, uint64(2), m.aggregateLatency.Count("Production.Run.AdvanceStep"))

	var buf bytes.Buffer
	require.NoError(t, m.WritePrometheus(&buf))
	out := buf.String()
	require.Contains(t, out, "# TYPE lotline_compliance_events_total counter")
	require.Contains(t, out, `lotline_compliance_events_total{event="temperature_hold",subject="CORE"} 2`)
	require.Contains(t, out, `lotline_aggregate_operations_total{op="Production.Run.AdvanceStep",status="conflict"} 1`)
	require.Contains(t, out, `lotline_trace_queries_total{direction="tree",cache="unknown"} 1`)
	require.Contains(t, out, "# TYPE lotline_aggregate_operation_duration_seconds histogram")
	require.Contains(t, out, `le="+Inf"`)
}

func TestWriteHTTPContentType(t *testing.T) {
	m := NewMetrics()
	m.APIInflightInc()
	rec := httptest.NewRecorder()
	m.WriteHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	require.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
	require.Contains(t, rec.Body.String(), "lotline_api_inflight_requests 1")
}

func TestCollectProduction(t *testing.T) {
	ctx := context.Background()
	db := repotest.DB(t)
	_, v := repotest.SeedPublishedFlow(t, ctx, db, "mix", "pack")
	repotest.SeedRun(t, ctx, db, v.ID, production.RunRunning, 2)
	repotest.SeedRun(t, ctx, db, v.ID, production.RunHold, 2)
	repotest.SeedLot(t, ctx, db, "RAW", production.LotReleased, nil)
	repotest.SeedBuffer(t, ctx, db, "FRZ-A", 500, "FRZ15")

	m := NewMetrics()
	require.NoError(t, m.CollectProduction(ctx, db))
	require.Equal(t, float64(1), m.runsByStatus.Value(production.RunRunning))
	require.Equal(t, float64(1), m.runsByStatus.Value(production.RunHold))
	require.Equal(t, float64(0), m.runsByStatus.Value(production.RunCompleted))
	require.Equal(t, float64(1), m.lotsByStatus.Value(production.LotReleased))
	require.Equal(t, float64(0), m.bufferLoad.Value("FRZ-A"))
}

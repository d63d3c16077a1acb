package observability

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/yungbote/lotline-backend/internal/platform/envutil"
	"github.com/yungbote/lotline-backend/internal/platform/logger"
)

type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge

	aggregateOps       *CounterVec
	aggregateLatency   *HistogramVec
	aggregateConflicts *CounterVec
	aggregateRetries   *CounterVec
	complianceEvents   *CounterVec
	effectFailures     *CounterVec

	traceQueries *CounterVec
	traceLatency *HistogramVec
	cacheResults *CounterVec

	workflowRuns *CounterVec

	dbStats      *GaugeVec
	redisUp      *Gauge
	redisPing    *Gauge
	runsByStatus *GaugeVec
	lotsByStatus *GaugeVec
	bufferLoad   *GaugeVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false, nil)
}

func Current() *Metrics {
	return instance
}

// Init returns the process-wide registry, or nil when metrics are disabled.
// Every method is safe on a nil *Metrics.
func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = NewMetrics()
		if log != nil {
			log.Info("Metrics enabled")
		}
	})
	return instance
}

func NewMetrics() *Metrics {
	return &Metrics{
		apiRequests: NewCounterVec("lotline_api_requests_total", "API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec("lotline_api_request_duration_seconds", "API request latency by method/route.",
			[]string{"method", "route"}, nil),
		apiInflight: NewGauge("lotline_api_inflight_requests", "In-flight API requests."),

		aggregateOps: NewCounterVec("lotline_aggregate_operations_total", "Aggregate write outcomes by operation/status.",
			[]string{"op", "status"}),
		aggregateLatency: NewHistogramVec("lotline_aggregate_operation_duration_seconds", "Aggregate write latency including retries.",
			[]string{"op"}, nil),
		aggregateConflicts: NewCounterVec("lotline_aggregate_conflicts_total", "State conflicts by operation.", []string{"op"}),
		aggregateRetries:   NewCounterVec("lotline_aggregate_retries_total", "Retried aggregate writes by operation.", []string{"op"}),
		complianceEvents: NewCounterVec("lotline_compliance_events_total", "Accepted compliance exceptions (capacity overrides, temperature holds).",
			[]string{"event", "subject"}),
		effectFailures: NewCounterVec("lotline_after_commit_failures_total", "Failed after-commit effects by effect.", []string{"effect"}),

		traceQueries: NewCounterVec("lotline_trace_queries_total", "Genealogy queries by direction and cache outcome.",
			[]string{"direction", "cache"}),
		traceLatency: NewHistogramVec("lotline_trace_query_duration_seconds", "Genealogy query latency by direction.",
			[]string{"direction"}, nil),
		cacheResults: NewCounterVec("lotline_cache_operations_total", "Traceability cache operations by op/result.",
			[]string{"op", "result"}),

		workflowRuns: NewCounterVec("lotline_workflow_runs_total", "Background workflow executions by workflow/status.",
			[]string{"workflow", "status"}),

		dbStats:      NewGaugeVec("lotline_db_pool", "Database pool statistics.", []string{"stat"}),
		redisUp:      NewGauge("lotline_redis_up", "1 when the last redis ping succeeded."),
		redisPing:    NewGauge("lotline_redis_ping_seconds", "Latency of the last redis ping."),
		runsByStatus: NewGaugeVec("lotline_runs", "Production runs by status.", []string{"status"}),
		lotsByStatus: NewGaugeVec("lotline_lots", "Lots by status.", []string{"status"}),
		bufferLoad:   NewGaugeVec("lotline_buffer_load_kg", "Open inventory per buffer.", []string{"buffer"}),
	}
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed && log != nil {
			log.Error("Metrics server failed", "error", err, "addr", addr)
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, _ *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

type promWriter interface {
	WritePrometheus(w io.Writer) error
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, p := range []promWriter{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.aggregateOps, m.aggregateLatency, m.aggregateConflicts, m.aggregateRetries,
		m.complianceEvents, m.effectFailures,
		m.traceQueries, m.traceLatency, m.cacheResults,
		m.workflowRuns,
		m.dbStats, m.redisUp, m.redisPing, m.runsByStatus, m.lotsByStatus, m.bufferLoad,
	} {
		if err := p.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func orUnknown(v string) string {
	if v = strings.TrimSpace(v); v == "" {
		return "unknown"
	}
	return v
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	method, route = orUnknown(method), orUnknown(route)
	m.apiRequests.Inc(method, route, orUnknown(status))
	m.apiLatency.Observe(dur.Seconds(), method, route)
}

func (m *Metrics) APIInflightInc() {
	if m != nil {
		m.apiInflight.Inc()
	}
}

func (m *Metrics) APIInflightDec() {
	if m != nil {
		m.apiInflight.Dec()
	}
}

func (m *Metrics) ObserveAggregateOperation(op, status string, dur time.Duration) {
	if m == nil {
		return
	}
	op = orUnknown(op)
	m.aggregateOps.Inc(op, orUnknown(status))
	m.aggregateLatency.Observe(dur.Seconds(), op)
}

func (m *Metrics) IncAggregateConflict(op string) {
	if m != nil {
		m.aggregateConflicts.Inc(orUnknown(op))
	}
}

func (m *Metrics) IncAggregateRetry(op string) {
	if m != nil {
		m.aggregateRetries.Inc(orUnknown(op))
	}
}

func (m *Metrics) IncComplianceEvent(event, subject string) {
	if m != nil {
		m.complianceEvents.Inc(orUnknown(event), orUnknown(subject))
	}
}

func (m *Metrics) IncEffectFailure(effect string) {
	if m != nil {
		m.effectFailures.Inc(orUnknown(effect))
	}
}

// ObserveTrace records one genealogy query; cache is "hit", "miss" or "off".
func (m *Metrics) ObserveTrace(direction, cache string, dur time.Duration) {
	if m == nil {
		return
	}
	direction = orUnknown(direction)
	m.traceQueries.Inc(direction, orUnknown(cache))
	m.traceLatency.Observe(dur.Seconds(), direction)
}

func (m *Metrics) IncCache(op, result string) {
	if m != nil {
		m.cacheResults.Inc(orUnknown(op), orUnknown(result))
	}
}

func (m *Metrics) IncWorkflow(workflow, status string) {
	if m != nil {
		m.workflowRuns.Inc(orUnknown(workflow), orUnknown(status))
	}
}

// TraceCount returns how many genealogy queries ran for a direction.
func (m *Metrics) TraceCount(direction string) uint64 {
	if m == nil {
		return 0
	}
	return m.traceLatency.Count(orUnknown(direction))
}

package app

import (
	dataagg "github.com/yungbote/lotline-backend/internal/data/aggregates"
	"github.com/yungbote/lotline-backend/internal/observability"
	"github.com/yungbote/lotline-backend/internal/platform/logger"
	"github.com/yungbote/lotline-backend/internal/temporalx/temporalworker"
	"github.com/yungbote/lotline-backend/internal/temporalx/workflows"
)

// wireWorkflows routes genealogy reports through Temporal and builds the
// worker runner. Both are skipped when no Temporal client is configured.
func wireWorkflows(
	log *logger.Logger,
	cfg Config,
	clients Clients,
	aggs dataagg.Set,
	svcs Services,
	metrics *observability.Metrics,
) (*temporalworker.Runner, error) {
	if clients.Temporal == nil {
		return nil, nil
	}
	log.Info("Wiring workflows...", "task_queue", cfg.Temporal.TaskQueue)
	svcs.Trace.SetReportRunner(workflows.NewReportRunner(log, clients.Temporal, cfg.Temporal.TaskQueue, cfg.ReportTimeout))

	acts := &workflows.Activities{
		Log:     log.With("component", "WorkflowActivities"),
		Trace:   svcs.Trace,
		Runs:    aggs.Run,
		Metrics: metrics,
	}
	return temporalworker.NewRunner(log, clients.Temporal, cfg.Temporal, acts)
}

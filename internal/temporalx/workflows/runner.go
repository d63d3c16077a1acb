package workflows

import (
	"context"
	"fmt"
	"strings"
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/lotline-backend/internal/platform/logger"
	"github.com/yungbote/lotline-backend/internal/services"
)

// ReportRunner executes genealogy reports on the Temporal worker and waits
// for the result.
type ReportRunner struct {
	log       *logger.Logger
	client    temporalsdkclient.Client
	taskQueue string
	timeout   time.Duration
}

func NewReportRunner(log *logger.Logger, c temporalsdkclient.Client, taskQueue string, timeout time.Duration) *ReportRunner {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &ReportRunner{log: log.With("component", "ReportRunner"), client: c, taskQueue: taskQueue, timeout: timeout}
}

func (r *ReportRunner) RunGenealogyReport(ctx context.Context, lotCode string) (*services.GenealogyReport, error) {
	code := strings.ToUpper(strings.TrimSpace(lotCode))
	// Concurrent requests for the same lot attach to one execution.
	opts := temporalsdkclient.StartWorkflowOptions{
		ID:                       "genealogy-report-" + code,
		TaskQueue:                r.taskQueue,
		WorkflowExecutionTimeout: r.timeout,
		WorkflowIDReusePolicy:    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowIDConflictPolicy: enumspb.WORKFLOW_ID_CONFLICT_POLICY_USE_EXISTING,
	}
	run, err := r.client.ExecuteWorkflow(ctx, opts, GenealogyReportWorkflowName, ReportInput{LotCode: code})
	if err != nil {
		return nil, fmt.Errorf("start genealogy report %s: %w", code, err)
	}
	r.log.Debug("Genealogy report started", "lot_code", code, "workflow_id", run.GetID(), "run_id", run.GetRunID())
	var rep services.GenealogyReport
	if err := run.Get(ctx, &rep); err != nil {
		return nil, fmt.Errorf("genealogy report %s: %w", code, err)
	}
	return &rep, nil
}

// ScheduleArchiveSweep starts the cron-driven sweep; an existing schedule
// is left in place.
func ScheduleArchiveSweep(ctx context.Context, log *logger.Logger, c temporalsdkclient.Client, taskQueue, cron string, batch int) error {
	if c == nil {
		return nil
	}
	if strings.TrimSpace(cron) == "" {
		cron = "@every 1h"
	}
	opts := temporalsdkclient.StartWorkflowOptions{
		ID:           ArchiveSweepWorkflowID,
		TaskQueue:    taskQueue,
		CronSchedule: cron,
	}
	run, err := c.ExecuteWorkflow(ctx, opts, ArchiveSweepWorkflowName, ArchiveSweepInput{Batch: batch})
	if err != nil {
		return fmt.Errorf("schedule archive sweep: %w", err)
	}
	log.Info("Archive sweep scheduled", "workflow_id", run.GetID(), "cron", cron, "batch", batch)
	return nil
}

// RunArchiveSweep starts one sweep and waits for it.
func RunArchiveSweep(ctx context.Context, c temporalsdkclient.Client, taskQueue string, batch int) (ArchiveSweepResult, error) {
	var out ArchiveSweepResult
	opts := temporalsdkclient.StartWorkflowOptions{
		ID:        fmt.Sprintf("%s-manual-%d", ArchiveSweepWorkflowID, time.Now().UnixNano()),
		TaskQueue: taskQueue,
	}
	run, err := c.ExecuteWorkflow(ctx, opts, ArchiveSweepWorkflowName, ArchiveSweepInput{Batch: batch})
	if err != nil {
		return out, fmt.Errorf("start archive sweep: %w", err)
	}
	err = run.Get(ctx, &out)
	return out, err
}

package workflows

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/yungbote/lotline-backend/internal/services"
)

func GenealogyReportWorkflow(ctx workflow.Context, in ReportInput) (*services.GenealogyReport, error) {
	if strings.TrimSpace(in.LotCode) == "" {
		return nil, temporal.NewNonRetryableApplicationError("genealogy report: missing lot code", "ValidationError", nil)
	}
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    5,
		},
	})
	var rep services.GenealogyReport
	if err := workflow.ExecuteActivity(ctx, ActivityBuildReport, in).Get(ctx, &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

// ArchiveSweepWorkflow archives expired runs in batches until a batch
// comes back short or MaxBatches is reached.
func ArchiveSweepWorkflow(ctx workflow.Context, in ArchiveSweepInput) (ArchiveSweepResult, error) {
	var out ArchiveSweepResult
	if in.Batch < 1 {
		return out, temporal.NewNonRetryableApplicationError(fmt.Sprintf("archive sweep: invalid batch %d", in.Batch), "ValidationError", nil)
	}
	maxBatches := in.MaxBatches
	if maxBatches <= 0 {
		maxBatches = DefaultMaxBatches
	}
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    10,
		},
	})

	now := workflow.Now(ctx).UTC()
	for out.Batches < maxBatches {
		var n int
		err := workflow.ExecuteActivity(ctx, ActivityArchiveExpired, ArchiveBatchInput{Now: now, Limit: in.Batch}).Get(ctx, &n)
		if err != nil {
			return out, err
		}
		out.Batches++
		out.Archived += n
		if n < in.Batch {
			break
		}
	}
	workflow.GetLogger(ctx).Info("Archive sweep finished", "archived", out.Archived, "batches", out.Batches)
	return out, nil
}

package workflows

import (
	"context"
	"fmt"
	"strings"

	"go.temporal.io/sdk/temporal"

	domainagg "github.com/yungbote/lotline-backend/internal/domain/aggregates"
	"github.com/yungbote/lotline-backend/internal/observability"
	"github.com/yungbote/lotline-backend/internal/platform/logger"
	"github.com/yungbote/lotline-backend/internal/services"
)

type Activities struct {
	Log     *logger.Logger
	Trace   services.TraceService
	Runs    domainagg.RunAggregate
	Metrics *observability.Metrics
}

func (a *Activities) BuildReport(ctx context.Context, in ReportInput) (*services.GenealogyReport, error) {
	if a == nil || a.Trace == nil {
		return nil, temporal.NewNonRetryableApplicationError("report activity not configured", "Config", nil)
	}
	code := strings.ToUpper(strings.TrimSpace(in.LotCode))
	rep, err := a.Trace.BuildReport(ctx, code)
	if err != nil {
		a.Metrics.IncWorkflow(GenealogyReportWorkflowName, "failed")
		a.Log.Warn("Genealogy report failed", "lot_code", code, "error", err)
		return nil, activityError(err)
	}
	a.Metrics.IncWorkflow(GenealogyReportWorkflowName, "completed")
	return rep, nil
}

func (a *Activities) ArchiveExpired(ctx context.Context, in ArchiveBatchInput) (int, error) {
	if a == nil || a.Runs == nil {
		return 0, temporal.NewNonRetryableApplicationError("archive activity not configured", "Config", nil)
	}
	if in.Limit < 1 {
		return 0, temporal.NewNonRetryableApplicationError(fmt.Sprintf("invalid archive limit %d", in.Limit), string(domainagg.KindValidation), nil)
	}
	n, err := a.Runs.ArchiveExpired(ctx, in.Now, in.Limit)
	if err != nil {
		a.Metrics.IncWorkflow(ArchiveSweepWorkflowName, "failed")
		return n, activityError(err)
	}
	if n > 0 {
		a.Log.Info("Archived expired runs", "count", n)
	}
	a.Metrics.IncWorkflow(ArchiveSweepWorkflowName, "batch")
	return n, nil
}

// activityError marks caller errors non-retryable; storage outages retry.
func activityError(err error) error {
	kind := domainagg.KindOf(err)
	switch kind {
	case domainagg.KindPersistenceUnavailable, domainagg.KindInternal, "":
		return err
	default:
		return temporal.NewNonRetryableApplicationError(err.Error(), string(kind), err)
	}
}

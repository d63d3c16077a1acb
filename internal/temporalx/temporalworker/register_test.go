package temporalworker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	domainagg "github.com/yungbote/lotline-backend/internal/domain/aggregates"
	"github.com/yungbote/lotline-backend/internal/platform/logger"
	"github.com/yungbote/lotline-backend/internal/services"
	"github.com/yungbote/lotline-backend/internal/temporalx"
	"github.com/yungbote/lotline-backend/internal/temporalx/workflows"
)

type fakeTrace struct {
	services.TraceService
	codes []string
	err   error
}

func (f *fakeTrace) BuildReport(_ context.Context, lotCode string) (*services.GenealogyReport, error) {
	f.codes = append(f.codes, lotCode)
	if f.err != nil {
		return nil, f.err
	}
	return &services.GenealogyReport{LotCode: lotCode, HeldLots: []string{lotCode}}, nil
}

type fakeRuns struct {
	domainagg.RunAggregate
	batches []int
	limits  []int
}

func (f *fakeRuns) ArchiveExpired(_ context.Context, _ time.Time, limit int) (int, error) {
	f.limits = append(f.limits, limit)
	if len(f.batches) == 0 {
		return 0, nil
	}
	n := f.batches[0]
	f.batches = f.batches[1:]
	return n, nil
}

func newEnv(t *testing.T, acts *workflows.Activities) *testsuite.TestWorkflowEnvironment {
	t.Helper()
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	Register(env, acts)
	return env
}

func TestGenealogyReportWorkflow(t *testing.T) {
	trace := &fakeTrace{}
	env := newEnv(t, &workflows.Activities{Log: logger.Nop(), Trace: trace, Runs: &fakeRuns{}})

	env.ExecuteWorkflow(workflows.GenealogyReportWorkflowName, workflows.ReportInput{LotCode: " fg-20260101-0001 "})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var rep services.GenealogyReport
	require.NoError(t, env.GetWorkflowResult(&rep))
	assert.Equal(t, "FG-20260101-0001", rep.LotCode)
	assert.Equal(t, []string{"FG-20260101-0001"}, trace.codes)
}

func TestGenealogyReportWorkflowValidationNotRetried(t *testing.T) {
	trace := &fakeTrace{err: domainagg.NewKindError(domainagg.KindNotFound, "Production.Trace.BuildReport", "lot not found", nil)}
	env := newEnv(t, &workflows.Activities{Log: logger.Nop(), Trace: trace, Runs: &fakeRuns{}})

	env.ExecuteWorkflow(workflows.GenealogyReportWorkflowName, workflows.ReportInput{LotCode: "FG-20260101-0001"})
	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
	assert.Len(t, trace.codes, 1)
}

func TestGenealogyReportWorkflowMissingCode(t *testing.T) {
	trace := &fakeTrace{}
	env := newEnv(t, &workflows.Activities{Log: logger.Nop(), Trace: trace, Runs: &fakeRuns{}})

	env.ExecuteWorkflow(workflows.GenealogyReportWorkflowName, workflows.ReportInput{})
	require.Error(t, env.GetWorkflowError())
	assert.Empty(t, trace.codes)
}

func TestArchiveSweepStopsOnShortBatch(t *testing.T) {
	runs := &fakeRuns{batches: []int{10, 10, 3, 10}}
	env := newEnv(t, &workflows.Activities{Log: logger.Nop(), Trace: &fakeTrace{}, Runs: runs})

	env.ExecuteWorkflow(workflows.ArchiveSweepWorkflowName, workflows.ArchiveSweepInput{Batch: 10})
	require.NoError(t, env.GetWorkflowError())

	var out workflows.ArchiveSweepResult
	require.NoError(t, env.GetWorkflowResult(&out))
	assert.Equal(t, workflows.ArchiveSweepResult{Archived: 23, Batches: 3}, out)
	assert.Equal(t, []int{10, 10, 10}, runs.limits)
}

func TestArchiveSweepHonorsMaxBatches(t *testing.T) {
	runs := &fakeRuns{batches: []int{5, 5, 5, 5}}
	env := newEnv(t, &workflows.Activities{Log: logger.Nop(), Trace: &fakeTrace{}, Runs: runs})

	env.ExecuteWorkflow(workflows.ArchiveSweepWorkflowName, workflows.ArchiveSweepInput{Batch: 5, MaxBatches: 2})
	require.NoError(t, env.GetWorkflowError())

	var out workflows.ArchiveSweepResult
	require.NoError(t, env.GetWorkflowResult(&out))
	assert.Equal(t, 10, out.Archived)
	assert.Equal(t, 2, out.Batches)
}

func TestArchiveSweepRejectsBadBatch(t *testing.T) {
	env := newEnv(t, &workflows.Activities{Log: logger.Nop(), Trace: &fakeTrace{}, Runs: &fakeRuns{}})
	env.ExecuteWorkflow(workflows.ArchiveSweepWorkflowName, workflows.ArchiveSweepInput{Batch: 0})
	require.Error(t, env.GetWorkflowError())
}

func TestNewRunnerRequiresDeps(t *testing.T) {
	_, err := NewRunner(logger.Nop(), nil, temporalxConfig(), &workflows.Activities{})
	require.Error(t, err)
}

func temporalxConfig() temporalx.Config {
	return temporalx.Config{TaskQueue: "test", WorkerConcurrency: 1}
}

func TestBackoffDoublesUpToMax(t *testing.T) {
	cfg := temporalx.Config{Backoff: 100 * time.Millisecond, BackoffMax: 350 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, backoff(cfg, 1))
	assert.Equal(t, 200*time.Millisecond, backoff(cfg, 2))
	assert.Equal(t, 350*time.Millisecond, backoff(cfg, 3))
}

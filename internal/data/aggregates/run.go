package aggregates

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/lotline-backend/internal/data/repos"
	domainagg "github.com/yungbote/lotline-backend/internal/domain/aggregates"
	"github.com/yungbote/lotline-backend/internal/domain/production"
	"github.com/yungbote/lotline-backend/internal/platform/dbctx"
)

// ArchiveActor is recorded on runs archived by the retention sweep.
const ArchiveActor = "system:archiver"

type RunAggregateDeps struct {
	Base BaseDeps

	Versions      repos.FlowVersionRepo
	Runs          repos.ProductionRunRepo
	Steps         repos.RunStepExecutionRepo
	Lots          repos.LotRepo
	Inspections   repos.QCInspectionRepo
	Audit         repos.AuditEventRepo
	Idempotency   repos.IdempotencyRepo
	CodeSequences repos.CodeSequenceRepo
}

type runAggregate struct {
	deps   RunAggregateDeps
	audit  *auditLog
	ledger *idempotencyLedger
}

func NewRunAggregate(deps RunAggregateDeps) domainagg.RunAggregate {
	deps.Base = deps.Base.withDefaults()
	return &runAggregate{
		deps:   deps,
		audit:  newAuditLog(deps.Audit, deps.Base.Effects),
		ledger: newIdempotencyLedger(deps.Idempotency),
	}
}

func (a *runAggregate) Contract() domainagg.Contract {
	return domainagg.RunAggregateContract
}

func (a *runAggregate) configured(op string) error {
	d := a.deps
	if d.Versions == nil || d.Runs == nil || d.Steps == nil || d.Lots == nil ||
		d.Inspections == nil || d.Audit == nil || d.Idempotency == nil || d.CodeSequences == nil {
		return domainagg.NewError(domainagg.CodeInternal, op, "run aggregate repos not configured", nil)
	}
	return nil
}

type startRunRequest struct {
	FlowVersionID string `json:"flow_version_id"`
	StartedBy     string `json:"started_by"`
	RunCode       string `json:"run_code"`
	SiteCode      string `json:"site_code"`
}

func (a *runAggregate) StartRun(ctx context.Context, in domainagg.StartRunInput) (domainagg.StartRunResult, error) {
	const op = "Production.Run.StartRun"
	var out domainagg.StartRunResult
	if err := a.configured(op); err != nil {
		return out, err
	}
	key := strings.TrimSpace(in.IdempotencyKey)
	if key == "" {
		return out, MapError(op, ValidationError("idempotency key is required to start a run"))
	}
	if in.FlowVersionID == uuid.Nil {
		return out, MapError(op, ValidationError("flow_version_id is required"))
	}
	req := startRunRequest{
		FlowVersionID: in.FlowVersionID.String(),
		StartedBy:     strings.TrimSpace(in.StartedBy),
		RunCode:       strings.TrimSpace(in.RunCode),
		SiteCode:      strings.ToUpper(strings.TrimSpace(in.SiteCode)),
	}

	err := executeWriteFx(ctx, a.deps.Base, op, func(dbc dbctx.Context, fx *afterCommit) error {
		out = domainagg.StartRunResult{}
		c, err := a.ledger.check(dbc, scopeRunStart, key, req)
		if err != nil {
			return err
		}
		if c.Replay() {
			run, err := a.replayRun(dbc, c.replayRef)
			if err != nil {
				return err
			}
			out = domainagg.StartRunResult{Run: run, Replayed: true}
			return nil
		}

		// A shared lock keeps the version from being deprecated under us.
		v, err := a.deps.Versions.LockByIDShared(dbc, in.FlowVersionID)
		if err != nil {
			return err
		}
		if v == nil {
			return NotFoundError("flow version not found: " + in.FlowVersionID.String())
		}
		if v.Status != production.VersionPublished {
			return production.Errorf(production.ErrVersionNotPublished,
				"flow version %d is %s; runs can only start on a PUBLISHED version", v.VersionNum, v.Status)
		}
		g, err := production.ParseGraph(v.Graph)
		if err != nil {
			return err
		}
		seq, err := g.StepSequence()
		if err != nil {
			return err
		}
		if len(seq) == 0 {
			return production.Errorf(production.ErrIncompleteGraph, "flow version %d has no steps", v.VersionNum)
		}

		now := a.deps.Base.Now()
		code, err := a.runCode(dbc, req.RunCode, req.SiteCode, now)
		if err != nil {
			return err
		}
		run, err := a.deps.Runs.Create(dbc, &production.ProductionRun{
			RunCode:          code,
			FlowVersionID:    v.ID,
			Status:           production.RunRunning,
			CurrentStepIndex: 0,
			StepCount:        len(seq),
			StartedBy:        req.StartedBy,
			StartedAt:        &now,
			IdempotencyKey:   key,
		})
		if err != nil {
			return err
		}
		execs := make([]*production.RunStepExecution, 0, len(seq))
		for _, s := range seq {
			e := &production.RunStepExecution{
				RunID:     run.ID,
				StepIndex: s.Index,
				NodeID:    s.NodeID,
				NodeType:  s.NodeType,
				Label:     s.Label,
				Status:    production.StepPending,
			}
			if s.Index == 0 {
				e.Status = production.StepInProgress
				e.OperatorID = req.StartedBy
				e.StartedAt = &now
			}
			execs = append(execs, e)
		}
		if err := a.deps.Steps.CreateBatch(dbc, execs); err != nil {
			return err
		}
		if _, err := a.audit.append(dbc, fx, auditEntry{
			EventType:  production.EventRunStarted,
			EntityType: production.EntityRun,
			EntityID:   run.ID.String(),
			ActorID:    req.StartedBy,
			New:        runState(run),
			Metadata: map[string]any{
				"flow_version_id": v.ID.String(),
				"version_num":     v.VersionNum,
				"step_count":      len(seq),
				"idempotency_key": key,
			},
		}); err != nil {
			return err
		}
		if err := c.complete(dbc, run.ID.String()); err != nil {
			return err
		}
		out.Run = run
		return nil
	})
	return out, err
}

func (a *runAggregate) replayRun(dbc dbctx.Context, ref string) (*production.ProductionRun, error) {
	id, err := uuid.Parse(ref)
	if err != nil {
		return nil, InvariantError("idempotency record has a malformed run reference")
	}
	run, err := a.deps.Runs.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, InvariantError("idempotency record references a missing run")
	}
	return run, nil
}

func (a *runAggregate) runCode(dbc dbctx.Context, raw, site string, now time.Time) (string, error) {
	if raw != "" {
		c, err := production.ValidateRunCode(raw)
		if err != nil {
			return "", err
		}
		if err := observeCode(dbc, a.deps.CodeSequences, c); err != nil {
			return "", err
		}
		return c.String(), nil
	}
	site, err := resolveSite(site, a.deps.Base.Enforcer.Policy().SiteCode)
	if err != nil {
		return "", err
	}
	return nextCode(dbc, a.deps.CodeSequences, production.RunCodeType, site, now)
}

// lockRun loads the run under a row lock and checks its status.
func (a *runAggregate) lockRun(dbc dbctx.Context, id uuid.UUID, allowed ...string) (*production.ProductionRun, error) {
	run, err := a.deps.Runs.LockByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, NotFoundError("production run not found: " + id.String())
	}
	if err := RequireStatusAllowed("run "+run.RunCode, run.Status, allowed...); err != nil {
		return nil, err
	}
	return run, nil
}

func requireExpectedStep(run *production.ProductionRun, expected *int) error {
	if expected != nil && *expected != run.CurrentStepIndex {
		return ConflictError(fmt.Sprintf("run %s is at step %d, expected %d", run.RunCode, run.CurrentStepIndex, *expected))
	}
	return nil
}

// requireStepReady blocks leaving a step while QC work on it is open.
func (a *runAggregate) requireStepReady(dbc dbctx.Context, run *production.ProductionRun, idx int) error {
	pending, err := a.deps.Inspections.CountUnresolvedAtStep(dbc, run.ID, idx)
	if err != nil {
		return err
	}
	if pending > 0 {
		return production.Errorf(production.ErrStepNotReady,
			"step %d of run %s has %d unresolved QC inspections", idx, run.RunCode, pending)
	}
	held, err := a.deps.Lots.CountAtStep(dbc, run.ID, idx, []string{production.LotHold})
	if err != nil {
		return err
	}
	if held > 0 {
		return production.Errorf(production.ErrStepNotReady,
			"step %d of run %s has %d lots on HOLD", idx, run.RunCode, held)
	}
	return nil
}

func (a *runAggregate) casRun(dbc dbctx.Context, run *production.ProductionRun, updates map[string]any) error {
	ok, err := a.deps.Base.CASGuard.UpdateByVersion(dbc, "production_run", run.ID, run.Version, updates)
	if err != nil {
		return err
	}
	return RequireCASSuccess(ok, "run "+run.RunCode+" changed concurrently")
}

func (a *runAggregate) setStep(dbc dbctx.Context, runID uuid.UUID, idx int, updates map[string]any) error {
	ok, err := a.deps.Steps.UpdateByRunAndIndex(dbc, runID, idx, updates)
	if err != nil {
		return err
	}
	if !ok {
		return InvariantError(fmt.Sprintf("run %s has no step execution %d", runID, idx))
	}
	return nil
}

// mutateRun is the shared shape of run transitions: lock, decide, CAS,
// audit, reload.
func (a *runAggregate) mutateRun(ctx context.Context, op string, runID uuid.UUID, actorID string, allowed []string,
	decide func(dbc dbctx.Context, run *production.ProductionRun, now time.Time) (event string, updates map[string]any, meta map[string]any, err error),
) (*production.ProductionRun, error) {
	if err := a.configured(op); err != nil {
		return nil, err
	}
	var out *production.ProductionRun
	err := executeWriteFx(ctx, a.deps.Base, op, func(dbc dbctx.Context, fx *afterCommit) error {
		run, err := a.lockRun(dbc, runID, allowed...)
		if err != nil {
			return err
		}
		before := runState(run)
		event, updates, meta, err := decide(dbc, run, a.deps.Base.Now())
		if err != nil {
			return err
		}
		if err := a.casRun(dbc, run, updates); err != nil {
			return err
		}
		after, err := a.deps.Runs.GetByID(dbc, run.ID)
		if err != nil {
			return err
		}
		if _, err := a.audit.append(dbc, fx, auditEntry{
			EventType:  event,
			EntityType: production.EntityRun,
			EntityID:   run.ID.String(),
			ActorID:    actorID,
			Old:        before,
			New:        runState(after),
			Metadata:   meta,
		}); err != nil {
			return err
		}
		out = after
		return nil
	})
	return out, err
}

func (a *runAggregate) AdvanceStep(ctx context.Context, in domainagg.StepInput) (*production.ProductionRun, error) {
	const op = "Production.Run.AdvanceStep"
	return a.mutateRun(ctx, op, in.RunID, in.ActorID, []string{production.RunRunning},
		func(dbc dbctx.Context, run *production.ProductionRun, now time.Time) (string, map[string]any, map[string]any, error) {
			if err := requireExpectedStep(run, in.ExpectedStepIndex); err != nil {
				return "", nil, nil, err
			}
			cur := run.CurrentStepIndex
			if cur >= run.FinalStepIndex() {
				return "", nil, nil, ConflictError(fmt.Sprintf("run %s is at its final step; complete the run instead", run.RunCode))
			}
			if err := a.requireStepReady(dbc, run, cur); err != nil {
				return "", nil, nil, err
			}
			if err := a.setStep(dbc, run.ID, cur, map[string]any{
				"status":       production.StepCompleted,
				"completed_at": now,
			}); err != nil {
				return "", nil, nil, err
			}
			if err := a.setStep(dbc, run.ID, cur+1, map[string]any{
				"status":      production.StepInProgress,
				"operator_id": strings.TrimSpace(in.ActorID),
				"started_at":  now,
			}); err != nil {
				return "", nil, nil, err
			}
			return production.EventRunStepAdvanced,
				map[string]any{"current_step_index": cur + 1},
				map[string]any{"from_step": cur, "to_step": cur + 1},
				nil
		})
}

func (a *runAggregate) RollbackStep(ctx context.Context, in domainagg.StepInput) (*production.ProductionRun, error) {
	const op = "Production.Run.RollbackStep"
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return nil, MapError(op, ValidationError("a reason is required to roll back a step"))
	}
	return a.mutateRun(ctx, op, in.RunID, in.ActorID, []string{production.RunRunning},
		func(dbc dbctx.Context, run *production.ProductionRun, now time.Time) (string, map[string]any, map[string]any, error) {
			if err := requireExpectedStep(run, in.ExpectedStepIndex); err != nil {
				return "", nil, nil, err
			}
			cur := run.CurrentStepIndex
			if cur == 0 {
				return "", nil, nil, ConflictError(fmt.Sprintf("run %s is at its first step", run.RunCode))
			}
			if err := a.setStep(dbc, run.ID, cur, map[string]any{
				"status":      production.StepPending,
				"started_at":  nil,
				"operator_id": "",
			}); err != nil {
				return "", nil, nil, err
			}
			if err := a.setStep(dbc, run.ID, cur-1, map[string]any{
				"status":       production.StepInProgress,
				"completed_at": nil,
				"operator_id":  strings.TrimSpace(in.ActorID),
			}); err != nil {
				return "", nil, nil, err
			}
			return production.EventRunStepRolledBack,
				map[string]any{"current_step_index": cur - 1},
				map[string]any{"from_step": cur, "to_step": cur - 1, "reason": reason},
				nil
		})
}

func (a *runAggregate) HoldRun(ctx context.Context, runID uuid.UUID, reason, actorID string) (*production.ProductionRun, error) {
	const op = "Production.Run.HoldRun"
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, MapError(op, ValidationError("a reason is required to hold a run"))
	}
	return a.mutateRun(ctx, op, runID, actorID, []string{production.RunRunning},
		func(_ dbctx.Context, _ *production.ProductionRun, _ time.Time) (string, map[string]any, map[string]any, error) {
			return production.EventRunHeld,
				map[string]any{"status": production.RunHold, "hold_reason": reason},
				map[string]any{"reason": reason},
				nil
		})
}

func (a *runAggregate) ResumeRun(ctx context.Context, runID uuid.UUID, note, actorID string) (*production.ProductionRun, error) {
	const op = "Production.Run.ResumeRun"
	return a.mutateRun(ctx, op, runID, actorID, []string{production.RunHold},
		func(_ dbctx.Context, run *production.ProductionRun, _ time.Time) (string, map[string]any, map[string]any, error) {
			meta := map[string]any{"held_for": run.HoldReason}
			if n := strings.TrimSpace(note); n != "" {
				meta["note"] = n
			}
			return production.EventRunResumed,
				map[string]any{"status": production.RunRunning, "hold_reason": ""},
				meta,
				nil
		})
}

func (a *runAggregate) CompleteRun(ctx context.Context, runID uuid.UUID, actorID string) (*production.ProductionRun, error) {
	const op = "Production.Run.CompleteRun"
	return a.mutateRun(ctx, op, runID, actorID, []string{production.RunRunning},
		func(dbc dbctx.Context, run *production.ProductionRun, now time.Time) (string, map[string]any, map[string]any, error) {
			final := run.FinalStepIndex()
			if run.CurrentStepIndex != final {
				return "", nil, nil, ConflictError(fmt.Sprintf("run %s is at step %d of %d; advance to the final step first",
					run.RunCode, run.CurrentStepIndex, final))
			}
			if err := a.requireStepReady(dbc, run, final); err != nil {
				return "", nil, nil, err
			}
			if err := a.setStep(dbc, run.ID, final, map[string]any{
				"status":       production.StepCompleted,
				"completed_at": now,
			}); err != nil {
				return "", nil, nil, err
			}
			exec, err := a.deps.Steps.GetByRunAndIndex(dbc, run.ID, final)
			if err != nil {
				return "", nil, nil, err
			}
			if exec == nil || exec.Status != production.StepCompleted {
				return "", nil, nil, InvariantError("final step execution is not completed")
			}
			return production.EventRunCompleted,
				map[string]any{"status": production.RunCompleted, "completed_at": now, "ended_at": now},
				nil,
				nil
		})
}

func (a *runAggregate) AbortRun(ctx context.Context, runID uuid.UUID, reason, actorID string) (*production.ProductionRun, error) {
	const op = "Production.Run.AbortRun"
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, MapError(op, ValidationError("a reason is required to abort a run"))
	}
	return a.mutateRun(ctx, op, runID, actorID, []string{production.RunRunning, production.RunHold},
		func(dbc dbctx.Context, run *production.ProductionRun, now time.Time) (string, map[string]any, map[string]any, error) {
			execs, err := a.deps.Steps.ListByRun(dbc, run.ID)
			if err != nil {
				return "", nil, nil, err
			}
			skipped := 0
			for _, e := range execs {
				if e.Status == production.StepCompleted || e.Status == production.StepSkipped {
					continue
				}
				if err := a.setStep(dbc, run.ID, e.StepIndex, map[string]any{"status": production.StepSkipped}); err != nil {
					return "", nil, nil, err
				}
				skipped++
			}
			return production.EventRunAborted,
				map[string]any{
					"status":       production.RunAborted,
					"abort_reason": reason,
					"aborted_at":   now,
					"ended_at":     now,
				},
				map[string]any{"reason": reason, "skipped_steps": skipped, "at_step": run.CurrentStepIndex},
				nil
		})
}

func (a *runAggregate) ArchiveRun(ctx context.Context, runID uuid.UUID, actorID string) (*production.ProductionRun, error) {
	return a.archive(ctx, runID, actorID, a.deps.Base.Now())
}

func (a *runAggregate) archive(ctx context.Context, runID uuid.UUID, actorID string, now time.Time) (*production.ProductionRun, error) {
	const op = "Production.Run.ArchiveRun"
	retention := a.deps.Base.Enforcer.Policy().RunArchiveRetention
	return a.mutateRun(ctx, op, runID, actorID, []string{production.RunCompleted, production.RunAborted, production.RunArchived},
		func(_ dbctx.Context, run *production.ProductionRun, _ time.Time) (string, map[string]any, map[string]any, error) {
			if run.Status == production.RunArchived {
				return "", nil, nil, ConflictError("run " + run.RunCode + " is already archived")
			}
			if run.ArchivedAt != nil {
				return "", nil, nil, InvariantError("run " + run.RunCode + " has archived_at but status " + run.Status)
			}
			if run.EndedAt == nil {
				return "", nil, nil, InvariantError("ended run " + run.RunCode + " has no ended_at")
			}
			eligible := run.EndedAt.Add(retention)
			if eligible.After(now) {
				return "", nil, nil, ConflictError(fmt.Sprintf("run %s can be archived from %s",
					run.RunCode, eligible.UTC().Format(time.RFC3339)))
			}
			return production.EventRunArchived,
				map[string]any{"status": production.RunArchived, "archived_at": now},
				map[string]any{"retention": retention.String(), "ended_status": run.Status},
				nil
		})
}

func (a *runAggregate) ArchiveExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	const op = "Production.Run.ArchiveExpired"
	if err := a.configured(op); err != nil {
		return 0, err
	}
	if now.IsZero() {
		now = a.deps.Base.Now()
	}
	cutoff := now.Add(-a.deps.Base.Enforcer.Policy().RunArchiveRetention)
	candidates, err := a.deps.Runs.ListArchivable(dbctx.With(ctx), cutoff, limit)
	if err != nil {
		return 0, MapError(op, err)
	}
	archived := 0
	for _, run := range candidates {
		if err := ctx.Err(); err != nil {
			return archived, MapError(op, err)
		}
		// Each run is its own transaction; a concurrent archive is skipped.
		if _, err := a.archive(ctx, run.ID, ArchiveActor, now); err != nil {
			if domainagg.IsCode(err, domainagg.CodeConflict) {
				continue
			}
			return archived, err
		}
		archived++
	}
	return archived, nil
}

func runState(r *production.ProductionRun) map[string]any {
	if r == nil {
		return nil
	}
	return map[string]any{
		"run_code":           r.RunCode,
		"status":             r.Status,
		"current_step_index": r.CurrentStepIndex,
		"step_count":         r.StepCount,
		"version":            r.Version,
	}
}

package handlers

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	domainagg "github.com/yungbote/lotline-backend/internal/domain/aggregates"
	"github.com/yungbote/lotline-backend/internal/domain/production"
	"github.com/yungbote/lotline-backend/internal/http/response"
	"github.com/yungbote/lotline-backend/internal/services"
)

type RunHandler struct {
	runs  domainagg.RunAggregate
	reads services.RunService
}

func NewRunHandler(runs domainagg.RunAggregate, reads services.RunService) *RunHandler {
	return &RunHandler{runs: runs, reads: reads}
}

type startRunRequest struct {
	FlowVersionID  uuid.UUID `json:"flow_version_id" binding:"required"`
	RunCode        string    `json:"run_code"`
	SiteCode       string    `json:"site_code"`
	IdempotencyKey string    `json:"idempotency_key"`
}

// POST /api/runs
func (h *RunHandler) Start(c *gin.Context) {
	const op = "HTTP.Runs.Start"
	var req startRunRequest
	if !bindJSON(c, op, &req) {
		return
	}
	key := idempotencyKey(c, req.IdempotencyKey)
	if key == "" {
		response.RespondInvalid(c, op, fmt.Errorf("Idempotency-Key header is required"))
		return
	}
	res, err := h.runs.StartRun(c.Request.Context(), domainagg.StartRunInput{
		FlowVersionID:  req.FlowVersionID,
		IdempotencyKey: key,
		StartedBy:      actorID(c),
		RunCode:        req.RunCode,
		SiteCode:       req.SiteCode,
	})
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondReplay(c, res.Replayed, res.Run)
}

// GET /api/runs
func (h *RunHandler) List(c *gin.Context) {
	const op = "HTTP.Runs.List"
	limit, offset, ok := page(c, op)
	if !ok {
		return
	}
	versionID, ok := queryUUID(c, op, "flow_version_id")
	if !ok {
		return
	}
	archived, ok := queryBool(c, op, "include_archived")
	if !ok {
		return
	}
	f := services.RunListFilter{
		Status:        c.Query("status"),
		FlowVersionID: versionID,
		Limit:         limit,
		Offset:        offset,
	}
	if archived != nil {
		f.IncludeArchived = *archived
	}
	runs, err := h.reads.ListRuns(c.Request.Context(), f)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondList(c, runs, limit, offset)
}

// GET /api/runs/:id
func (h *RunHandler) Get(c *gin.Context) {
	id, ok := pathUUID(c, "HTTP.Runs.Get", "id")
	if !ok {
		return
	}
	run, err := h.reads.GetRun(c.Request.Context(), id)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, run)
}

// GET /api/runs/:id/steps
func (h *RunHandler) Steps(c *gin.Context) {
	id, ok := pathUUID(c, "HTTP.Runs.Steps", "id")
	if !ok {
		return
	}
	steps, err := h.reads.GetStepExecutions(c.Request.Context(), id)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondList(c, steps, 0, 0)
}

type stepRequest struct {
	ExpectedStepIndex *int   `json:"expected_step_index"`
	Reason            string `json:"reason"`
}

// POST /api/runs/:id/advance
func (h *RunHandler) Advance(c *gin.Context) {
	h.step(c, "HTTP.Runs.Advance", h.runs.AdvanceStep)
}

// POST /api/runs/:id/rollback
func (h *RunHandler) Rollback(c *gin.Context) {
	h.step(c, "HTTP.Runs.Rollback", h.runs.RollbackStep)
}

func (h *RunHandler) step(c *gin.Context, op string, fn func(context.Context, domainagg.StepInput) (*production.ProductionRun, error)) {
	id, ok := pathUUID(c, op, "id")
	if !ok {
		return
	}
	var req stepRequest
	if !bindOptionalJSON(c, op, &req) {
		return
	}
	run, err := fn(c.Request.Context(), domainagg.StepInput{
		RunID:             id,
		ExpectedStepIndex: req.ExpectedStepIndex,
		Reason:            req.Reason,
		ActorID:           actorID(c),
	})
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, run)
}

type reasonRequest struct {
	Reason string `json:"reason"`
	Note   string `json:"note"`
}

// POST /api/runs/:id/hold
func (h *RunHandler) Hold(c *gin.Context) {
	h.reasoned(c, "HTTP.Runs.Hold", func(ctx context.Context, id uuid.UUID, req reasonRequest, actor string) (*production.ProductionRun, error) {
		return h.runs.HoldRun(ctx, id, req.Reason, actor)
	})
}

// POST /api/runs/:id/resume
func (h *RunHandler) Resume(c *gin.Context) {
	h.reasoned(c, "HTTP.Runs.Resume", func(ctx context.Context, id uuid.UUID, req reasonRequest, actor string) (*production.ProductionRun, error) {
		return h.runs.ResumeRun(ctx, id, req.Note, actor)
	})
}

// POST /api/runs/:id/abort
func (h *RunHandler) Abort(c *gin.Context) {
	h.reasoned(c, "HTTP.Runs.Abort", func(ctx context.Context, id uuid.UUID, req reasonRequest, actor string) (*production.ProductionRun, error) {
		return h.runs.AbortRun(ctx, id, req.Reason, actor)
	})
}

// POST /api/runs/:id/complete
func (h *RunHandler) Complete(c *gin.Context) {
	h.reasoned(c, "HTTP.Runs.Complete", func(ctx context.Context, id uuid.UUID, _ reasonRequest, actor string) (*production.ProductionRun, error) {
		return h.runs.CompleteRun(ctx, id, actor)
	})
}

// POST /api/runs/:id/archive
func (h *RunHandler) Archive(c *gin.Context) {
	h.reasoned(c, "HTTP.Runs.Archive", func(ctx context.Context, id uuid.UUID, _ reasonRequest, actor string) (*production.ProductionRun, error) {
		return h.runs.ArchiveRun(ctx, id, actor)
	})
}

func (h *RunHandler) reasoned(c *gin.Context, op string, fn func(context.Context, uuid.UUID, reasonRequest, string) (*production.ProductionRun, error)) {
	id, ok := pathUUID(c, op, "id")
	if !ok {
		return
	}
	var req reasonRequest
	if !bindOptionalJSON(c, op, &req) {
		return
	}
	run, err := fn(c.Request.Context(), id, req, actorID(c))
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, run)
}

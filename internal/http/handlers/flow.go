package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	domainagg "github.com/yungbote/lotline-backend/internal/domain/aggregates"
	"github.com/yungbote/lotline-backend/internal/domain/production"
	"github.com/yungbote/lotline-backend/internal/http/response"
	"github.com/yungbote/lotline-backend/internal/services"
)

type FlowHandler struct {
	flows domainagg.FlowAggregate
	reads services.FlowService
}

func NewFlowHandler(flows domainagg.FlowAggregate, reads services.FlowService) *FlowHandler {
	return &FlowHandler{flows: flows, reads: reads}
}

type createDefinitionRequest struct {
	Name        map[string]string `json:"name" binding:"required"`
	Description string            `json:"description"`
}

// POST /api/flows
func (h *FlowHandler) CreateDefinition(c *gin.Context) {
	const op = "HTTP.Flows.CreateDefinition"
	var req createDefinitionRequest
	if !bindJSON(c, op, &req) {
		return
	}
	def, err := h.flows.CreateDefinition(c.Request.Context(), domainagg.CreateDefinitionInput{
		Name:        req.Name,
		Description: req.Description,
		OwnerID:     actorID(c),
	})
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondCreated(c, def)
}

// GET /api/flows
func (h *FlowHandler) ListDefinitions(c *gin.Context) {
	const op = "HTTP.Flows.ListDefinitions"
	limit, offset, ok := page(c, op)
	if !ok {
		return
	}
	defs, err := h.reads.ListDefinitions(c.Request.Context(), limit, offset)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondList(c, defs, limit, offset)
}

// DELETE /api/flows/:id
func (h *FlowHandler) DeleteDefinition(c *gin.Context) {
	id, ok := pathUUID(c, "HTTP.Flows.DeleteDefinition", "id")
	if !ok {
		return
	}
	if err := h.flows.DeleteDefinition(c.Request.Context(), id, actorID(c)); err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondNoContent(c)
}

// GET /api/flows/:id/versions
func (h *FlowHandler) ListVersions(c *gin.Context) {
	id, ok := pathUUID(c, "HTTP.Flows.ListVersions", "id")
	if !ok {
		return
	}
	versions, err := h.reads.ListVersions(c.Request.Context(), id)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondList(c, versions, 0, 0)
}

// POST /api/flows/:id/versions
func (h *FlowHandler) CreateDraft(c *gin.Context) {
	id, ok := pathUUID(c, "HTTP.Flows.CreateDraft", "id")
	if !ok {
		return
	}
	v, err := h.flows.CreateDraft(c.Request.Context(), id, actorID(c))
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondCreated(c, v)
}

// GET /api/versions/:id
func (h *FlowHandler) GetVersion(c *gin.Context) {
	id, ok := pathUUID(c, "HTTP.Versions.Get", "id")
	if !ok {
		return
	}
	v, err := h.reads.GetVersion(c.Request.Context(), id)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, v)
}

// PUT /api/versions/:id/graph
func (h *FlowHandler) UpdateGraph(c *gin.Context) {
	const op = "HTTP.Versions.UpdateGraph"
	id, ok := pathUUID(c, op, "id")
	if !ok {
		return
	}
	var graph production.FlowGraph
	if !bindJSON(c, op, &graph) {
		return
	}
	v, err := h.flows.UpdateDraft(c.Request.Context(), domainagg.UpdateDraftInput{VersionID: id, Graph: graph, ActorID: actorID(c)})
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, v)
}

// POST /api/versions/:id/submit
func (h *FlowHandler) Submit(c *gin.Context) {
	h.transition(c, "HTTP.Versions.Submit", h.flows.SubmitForReview)
}

// POST /api/versions/:id/approve
func (h *FlowHandler) Approve(c *gin.Context) {
	h.transition(c, "HTTP.Versions.Approve", h.flows.Approve)
}

// POST /api/versions/:id/deprecate
func (h *FlowHandler) Deprecate(c *gin.Context) {
	h.transition(c, "HTTP.Versions.Deprecate", h.flows.Deprecate)
}

type rejectRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// POST /api/versions/:id/reject
func (h *FlowHandler) Reject(c *gin.Context) {
	const op = "HTTP.Versions.Reject"
	id, ok := pathUUID(c, op, "id")
	if !ok {
		return
	}
	var req rejectRequest
	if !bindJSON(c, op, &req) {
		return
	}
	v, err := h.flows.Reject(c.Request.Context(), id, actorID(c), req.Reason)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, v)
}

// DELETE /api/versions/:id
func (h *FlowHandler) Discard(c *gin.Context) {
	id, ok := pathUUID(c, "HTTP.Versions.Discard", "id")
	if !ok {
		return
	}
	if err := h.flows.DiscardDraft(c.Request.Context(), id, actorID(c)); err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondNoContent(c)
}

func (h *FlowHandler) transition(c *gin.Context, op string, fn func(ctx context.Context, id uuid.UUID, actor string) (*production.FlowVersion, error)) {
	id, ok := pathUUID(c, op, "id")
	if !ok {
		return
	}
	v, err := fn(c.Request.Context(), id, actorID(c))
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, v)
}

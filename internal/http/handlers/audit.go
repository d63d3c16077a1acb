package handlers

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/lotline-backend/internal/http/response"
	"github.com/yungbote/lotline-backend/internal/services"
)

type AuditHandler struct {
	audit services.AuditService
}

func NewAuditHandler(audit services.AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// GET /api/audit/events?from&to&event_type&entity_type&actor_id&limit&offset
func (h *AuditHandler) Query(c *gin.Context) {
	const op = "HTTP.Audit.Query"
	limit, offset, ok := page(c, op)
	if !ok {
		return
	}
	from, ok := queryTime(c, op, "from")
	if !ok {
		return
	}
	to, ok := queryTime(c, op, "to")
	if !ok {
		return
	}
	events, err := h.audit.Query(c.Request.Context(), services.AuditQuery{
		From:       from,
		To:         to,
		EventType:  c.Query("event_type"),
		EntityType: c.Query("entity_type"),
		ActorID:    c.Query("actor_id"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondList(c, events, limit, offset)
}

// GET /api/audit/events/:id
func (h *AuditHandler) Get(c *gin.Context) {
	const op = "HTTP.Audit.Get"
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.RespondInvalid(c, op, fmt.Errorf("id must be a positive integer"))
		return
	}
	ev, err := h.audit.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, ev)
}

// GET /api/audit/:entity_type/:entity_id
func (h *AuditHandler) EntityHistory(c *gin.Context) {
	const op = "HTTP.Audit.EntityHistory"
	limit, ok := queryInt(c, op, "limit", 100)
	if !ok {
		return
	}
	events, err := h.audit.EntityHistory(c.Request.Context(), c.Param("entity_type"), c.Param("entity_id"), limit)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondList(c, events, limit, 0)
}

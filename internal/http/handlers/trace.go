package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/lotline-backend/internal/http/response"
	"github.com/yungbote/lotline-backend/internal/services"
)

type TraceHandler struct {
	trace services.TraceService
}

func NewTraceHandler(trace services.TraceService) *TraceHandler {
	return &TraceHandler{trace: trace}
}

// GET /api/traceability/:code/back?depth=N
func (h *TraceHandler) Back(c *gin.Context) {
	depth, ok := queryInt(c, "HTTP.Trace.Back", "depth", 0)
	if !ok {
		return
	}
	res, err := h.trace.TraceBack(c.Request.Context(), c.Param("code"), depth)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, res)
}

// GET /api/traceability/:code/forward?depth=N
func (h *TraceHandler) Forward(c *gin.Context) {
	depth, ok := queryInt(c, "HTTP.Trace.Forward", "depth", 0)
	if !ok {
		return
	}
	res, err := h.trace.TraceForward(c.Request.Context(), c.Param("code"), depth)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, res)
}

// GET /api/traceability/:code/tree?max_depth=N
func (h *TraceHandler) Tree(c *gin.Context) {
	depth, ok := queryInt(c, "HTTP.Trace.Tree", "max_depth", 0)
	if !ok {
		return
	}
	res, err := h.trace.TraceTree(c.Request.Context(), c.Param("code"), depth)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, res)
}

// POST /api/traceability/:code/report?refresh=true
func (h *TraceHandler) Report(c *gin.Context) {
	refresh, ok := queryBool(c, "HTTP.Trace.Report", "refresh")
	if !ok {
		return
	}
	var (
		rep *services.GenealogyReport
		err error
	)
	if refresh != nil && *refresh {
		rep, err = h.trace.BuildReport(c.Request.Context(), c.Param("code"))
	} else {
		rep, err = h.trace.GenealogyReport(c.Request.Context(), c.Param("code"))
	}
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, rep)
}

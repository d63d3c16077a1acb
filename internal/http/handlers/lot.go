package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	domainagg "github.com/yungbote/lotline-backend/internal/domain/aggregates"
	"github.com/yungbote/lotline-backend/internal/http/response"
	"github.com/yungbote/lotline-backend/internal/services"
)

type LotHandler struct {
	lots  domainagg.LotAggregate
	reads services.LotService
}

func NewLotHandler(lots domainagg.LotAggregate, reads services.LotService) *LotHandler {
	return &LotHandler{lots: lots, reads: reads}
}

type registerLotRequest struct {
	LotCode        string         `json:"lot_code"`
	LotType        string         `json:"lot_type" binding:"required"`
	RunID          *uuid.UUID     `json:"run_id"`
	StepIndex      *int           `json:"step_index"`
	WeightKg       *float64       `json:"weight_kg"`
	TemperatureC   *float64       `json:"temperature_c"`
	SiteCode       string         `json:"site_code"`
	Metadata       map[string]any `json:"metadata"`
	IdempotencyKey string         `json:"idempotency_key"`
}

// POST /api/lots
func (h *LotHandler) Register(c *gin.Context) {
	const op = "HTTP.Lots.Register"
	var req registerLotRequest
	if !bindJSON(c, op, &req) {
		return
	}
	res, err := h.lots.RegisterLot(c.Request.Context(), domainagg.RegisterLotInput{
		LotCode:        req.LotCode,
		LotType:        req.LotType,
		RunID:          req.RunID,
		StepIndex:      req.StepIndex,
		WeightKg:       req.WeightKg,
		TemperatureC:   req.TemperatureC,
		OperatorID:     actorID(c),
		SiteCode:       req.SiteCode,
		Metadata:       req.Metadata,
		IdempotencyKey: idempotencyKey(c, req.IdempotencyKey),
	})
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondReplay(c, res.Replayed, res.Lot)
}

// GET /api/lots
func (h *LotHandler) List(c *gin.Context) {
	const op = "HTTP.Lots.List"
	limit, offset, ok := page(c, op)
	if !ok {
		return
	}
	runID, ok := queryUUID(c, op, "run_id")
	if !ok {
		return
	}
	lots, err := h.reads.ListLots(c.Request.Context(), services.LotListFilter{
		LotType: c.Query("lot_type"),
		Status:  c.Query("status"),
		RunID:   runID,
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondList(c, lots, limit, offset)
}

// GET /api/lots/:id accepts a lot id or a lot code.
func (h *LotHandler) Get(c *gin.Context) {
	ref := strings.TrimSpace(c.Param("id"))
	id, err := uuid.Parse(ref)
	if err != nil {
		lot, err := h.reads.GetLotByCode(c.Request.Context(), ref)
		if err != nil {
			response.RespondError(c, err)
			return
		}
		id = lot.ID
	}
	view, err := h.reads.GetLot(c.Request.Context(), id)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, view)
}

type inspectionRequest struct {
	RunID          *uuid.UUID `json:"run_id"`
	StepIndex      *int       `json:"step_index"`
	InspectionType string     `json:"inspection_type"`
	IsCCP          bool       `json:"is_ccp"`
	IdempotencyKey string     `json:"idempotency_key"`
}

// POST /api/lots/:id/inspections
func (h *LotHandler) RequestInspection(c *gin.Context) {
	const op = "HTTP.Lots.RequestInspection"
	id, ok := pathUUID(c, op, "id")
	if !ok {
		return
	}
	var req inspectionRequest
	if !bindOptionalJSON(c, op, &req) {
		return
	}
	insp, err := h.lots.RequestInspection(c.Request.Context(), domainagg.RequestInspectionInput{
		LotID:          id,
		RunID:          req.RunID,
		StepIndex:      req.StepIndex,
		InspectionType: req.InspectionType,
		IsCCP:          req.IsCCP,
		ActorID:        actorID(c),
		IdempotencyKey: idempotencyKey(c, req.IdempotencyKey),
	})
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondCreated(c, insp)
}

type temperatureReading struct {
	TemperatureC    float64 `json:"temperature_c"`
	MeasurementType string  `json:"measurement_type" binding:"required"`
}

type decisionRequest struct {
	Decision       string              `json:"decision" binding:"required"`
	Notes          string              `json:"notes"`
	InspectionID   *uuid.UUID          `json:"inspection_id"`
	InspectionType string              `json:"inspection_type"`
	IsCCP          bool                `json:"is_ccp"`
	RunID          *uuid.UUID          `json:"run_id"`
	StepIndex      *int                `json:"step_index"`
	Temperature    *temperatureReading `json:"temperature"`
	IdempotencyKey string              `json:"idempotency_key"`
}

// POST /api/lots/:id/decision
func (h *LotHandler) Decision(c *gin.Context) {
	const op = "HTTP.Lots.Decision"
	id, ok := pathUUID(c, op, "id")
	if !ok {
		return
	}
	var req decisionRequest
	if !bindJSON(c, op, &req) {
		return
	}
	in := domainagg.QCDecisionInput{
		LotID:          id,
		InspectionID:   req.InspectionID,
		Decision:       req.Decision,
		Notes:          req.Notes,
		InspectorID:    actorID(c),
		InspectionType: req.InspectionType,
		IsCCP:          req.IsCCP,
		RunID:          req.RunID,
		StepIndex:      req.StepIndex,
		IdempotencyKey: idempotencyKey(c, req.IdempotencyKey),
	}
	if req.Temperature != nil {
		in.Temperature = &domainagg.TemperatureReading{
			TemperatureC:    req.Temperature.TemperatureC,
			MeasurementType: req.Temperature.MeasurementType,
		}
	}
	res, err := h.lots.TransitionLotStatus(c.Request.Context(), in)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, res)
}

// POST /api/lots/:id/consume
func (h *LotHandler) Consume(c *gin.Context) {
	id, ok := pathUUID(c, "HTTP.Lots.Consume", "id")
	if !ok {
		return
	}
	lot, err := h.lots.ConsumeLot(c.Request.Context(), id, actorID(c))
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, lot)
}

type linkRequest struct {
	ParentLotID    uuid.UUID `json:"parent_lot_id" binding:"required"`
	ChildLotID     uuid.UUID `json:"child_lot_id" binding:"required"`
	QuantityKg     *float64  `json:"quantity_kg"`
	IdempotencyKey string    `json:"idempotency_key"`
}

// POST /api/genealogy/links
func (h *LotHandler) Link(c *gin.Context) {
	const op = "HTTP.Genealogy.Link"
	var req linkRequest
	if !bindJSON(c, op, &req) {
		return
	}
	link, err := h.lots.LinkGenealogy(c.Request.Context(), domainagg.LinkGenealogyInput{
		ParentLotID:    req.ParentLotID,
		ChildLotID:     req.ChildLotID,
		QuantityKg:     req.QuantityKg,
		ActorID:        actorID(c),
		IdempotencyKey: idempotencyKey(c, req.IdempotencyKey),
	})
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondCreated(c, link)
}

type temperatureRequest struct {
	LotID           *uuid.UUID `json:"lot_id"`
	BufferID        *uuid.UUID `json:"buffer_id"`
	InspectionID    *uuid.UUID `json:"inspection_id"`
	TemperatureC    *float64   `json:"temperature_c" binding:"required"`
	MeasurementType string     `json:"measurement_type" binding:"required"`
	ForceViolation  bool       `json:"force_violation"`
	IdempotencyKey  string     `json:"idempotency_key"`
}

// POST /api/temperature-logs
func (h *LotHandler) RecordTemperature(c *gin.Context) {
	const op = "HTTP.Temperature.Record"
	var req temperatureRequest
	if !bindJSON(c, op, &req) {
		return
	}
	res, err := h.lots.RecordTemperature(c.Request.Context(), domainagg.RecordTemperatureInput{
		LotID:           req.LotID,
		BufferID:        req.BufferID,
		InspectionID:    req.InspectionID,
		TemperatureC:    *req.TemperatureC,
		MeasurementType: req.MeasurementType,
		RecordedBy:      actorID(c),
		ForceViolation:  req.ForceViolation,
		IdempotencyKey:  idempotencyKey(c, req.IdempotencyKey),
	})
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondReplay(c, res.Replayed, res)
}

// GET /api/qc-inspections
func (h *LotHandler) ListInspections(c *gin.Context) {
	const op = "HTTP.Inspections.List"
	limit, offset, ok := page(c, op)
	if !ok {
		return
	}
	runID, ok := queryUUID(c, op, "run_id")
	if !ok {
		return
	}
	lotID, ok := queryUUID(c, op, "lot_id")
	if !ok {
		return
	}
	var step *int
	if c.Query("step_index") != "" {
		n, ok := queryInt(c, op, "step_index", 0)
		if !ok {
			return
		}
		step = &n
	}
	out, err := h.reads.ListInspections(c.Request.Context(), services.InspectionListFilter{
		LotID:     lotID,
		RunID:     runID,
		StepIndex: step,
		Decision:  c.Query("decision"),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondList(c, out, limit, offset)
}

// GET /api/qc-inspections/:id
func (h *LotHandler) GetInspection(c *gin.Context) {
	id, ok := pathUUID(c, "HTTP.Inspections.Get", "id")
	if !ok {
		return
	}
	out, err := h.reads.GetInspection(c.Request.Context(), id)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, out)
}

// GET /api/temperature-logs
func (h *LotHandler) ListTemperatures(c *gin.Context) {
	const op = "HTTP.Temperatures.List"
	limit, offset, ok := page(c, op)
	if !ok {
		return
	}
	var f services.TemperatureListFilter
	if f.LotID, ok = queryUUID(c, op, "lot_id"); !ok {
		return
	}
	if f.BufferID, ok = queryUUID(c, op, "buffer_id"); !ok {
		return
	}
	if f.InspectionID, ok = queryUUID(c, op, "inspection_id"); !ok {
		return
	}
	violations, ok := queryBool(c, op, "violations_only")
	if !ok {
		return
	}
	if f.Since, ok = queryTime(c, op, "since"); !ok {
		return
	}
	f.ViolationsOnly = violations != nil && *violations
	f.Limit, f.Offset = limit, offset
	out, err := h.reads.ListTemperatureLogs(c.Request.Context(), f)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondList(c, out, limit, offset)
}

// GET /api/temperature-logs/:id
func (h *LotHandler) GetTemperature(c *gin.Context) {
	id, ok := pathUUID(c, "HTTP.Temperatures.Get", "id")
	if !ok {
		return
	}
	out, err := h.reads.GetTemperatureLog(c.Request.Context(), id)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, out)
}

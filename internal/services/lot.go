package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/lotline-backend/internal/data/repos"
	"github.com/yungbote/lotline-backend/internal/data/repos/lots"
	"github.com/yungbote/lotline-backend/internal/domain/production"
	"github.com/yungbote/lotline-backend/internal/platform/dbctx"
	"github.com/yungbote/lotline-backend/internal/platform/logger"
)

// LotView is a lot with its QC, temperature and movement history.
type LotView struct {
	*production.Lot
	Inspections  []*production.QCInspection   `json:"inspections"`
	Temperatures []*production.TemperatureLog `json:"temperature_logs"`
	Moves        []*production.StockMove      `json:"stock_moves"`
}

type LotListFilter struct {
	LotType string
	Status  string
	RunID   uuid.UUID
	Limit   int
	Offset  int
}

type InspectionListFilter struct {
	LotID     uuid.UUID
	RunID     uuid.UUID
	StepIndex *int
	Decision  string
	Limit     int
	Offset    int
}

type TemperatureListFilter struct {
	LotID          uuid.UUID
	BufferID       uuid.UUID
	InspectionID   uuid.UUID
	ViolationsOnly bool
	Since          time.Time
	Limit          int
	Offset         int
}

type LotService interface {
	GetLot(ctx context.Context, id uuid.UUID) (*LotView, error)
	GetLotByCode(ctx context.Context, code string) (*production.Lot, error)
	ListLots(ctx context.Context, f LotListFilter) ([]*production.Lot, error)

	GetInspection(ctx context.Context, id uuid.UUID) (*production.QCInspection, error)
	ListInspections(ctx context.Context, f InspectionListFilter) ([]*production.QCInspection, error)
	GetTemperatureLog(ctx context.Context, id uuid.UUID) (*production.TemperatureLog, error)
	ListTemperatureLogs(ctx context.Context, f TemperatureListFilter) ([]*production.TemperatureLog, error)
}

type lotService struct {
	log          *logger.Logger
	lots         repos.LotRepo
	inspections  repos.QCInspectionRepo
	temperatures repos.TemperatureLogRepo
	moves        repos.StockMoveRepo
}

func NewLotService(
	log *logger.Logger,
	lotRepo repos.LotRepo,
	inspections repos.QCInspectionRepo,
	temperatures repos.TemperatureLogRepo,
	moves repos.StockMoveRepo,
) LotService {
	return &lotService{
		log:          log.With("service", "LotService"),
		lots:         lotRepo,
		inspections:  inspections,
		temperatures: temperatures,
		moves:        moves,
	}
}

func (s *lotService) GetLot(ctx context.Context, id uuid.UUID) (*LotView, error) {
	const op = "Production.Lots.GetLot"
	dbc := dbctx.With(ctx)
	lot, err := s.lots.GetByID(dbc, id)
	if err != nil {
		return nil, storageErr(op, err)
	}
	if lot == nil {
		return nil, notFound(op, "lot %s not found", id)
	}
	view := &LotView{Lot: lot}
	if view.Inspections, err = s.inspections.ListByLot(dbc, id); err != nil {
		return nil, storageErr(op, err)
	}
	if view.Temperatures, err = s.temperatures.List(dbc, lots.TemperatureLogFilter{LotID: id}); err != nil {
		return nil, storageErr(op, err)
	}
	if view.Moves, err = s.moves.ListByLot(dbc, id); err != nil {
		return nil, storageErr(op, err)
	}
	return view, nil
}

func (s *lotService) GetLotByCode(ctx context.Context, code string) (*production.Lot, error) {
	const op = "Production.Lots.GetLotByCode"
	code = strings.ToUpper(strings.TrimSpace(code))
	if _, err := production.ParseCode(code); err != nil {
		return nil, storageErr(op, err)
	}
	lot, err := s.lots.GetByCode(dbctx.With(ctx), code)
	if err != nil {
		return nil, storageErr(op, err)
	}
	if lot == nil {
		return nil, notFound(op, "lot %s not found", code)
	}
	return lot, nil
}

func (s *lotService) ListLots(ctx context.Context, f LotListFilter) ([]*production.Lot, error) {
	const op = "Production.Lots.ListLots"
	f.LotType = strings.ToUpper(strings.TrimSpace(f.LotType))
	if f.LotType != "" && !production.IsLotType(f.LotType) {
		return nil, invalid(op, "unknown lot type %q", f.LotType)
	}
	out, err := s.lots.List(dbctx.With(ctx), lots.LotFilter{
		LotType: f.LotType,
		Status:  strings.ToUpper(strings.TrimSpace(f.Status)),
		RunID:   f.RunID,
		Limit:   f.Limit,
		Offset:  f.Offset,
	})
	if err != nil {
		return nil, storageErr(op, err)
	}
	return out, nil
}

func (s *lotService) GetInspection(ctx context.Context, id uuid.UUID) (*production.QCInspection, error) {
	const op = "Production.Lots.GetInspection"
	row, err := s.inspections.GetByID(dbctx.With(ctx), id)
	if err != nil {
		return nil, storageErr(op, err)
	}
	if row == nil {
		return nil, notFound(op, "inspection %s not found", id)
	}
	return row, nil
}

func (s *lotService) ListInspections(ctx context.Context, f InspectionListFilter) ([]*production.QCInspection, error) {
	const op = "Production.Lots.ListInspections"
	f.Decision = strings.ToUpper(strings.TrimSpace(f.Decision))
	if f.Decision != "" && f.Decision != "PENDING" && !production.IsDecision(f.Decision) {
		return nil, invalid(op, "unknown decision %q", f.Decision)
	}
	if f.StepIndex != nil && *f.StepIndex < 0 {
		return nil, invalid(op, "step_index must be >= 0")
	}
	out, err := s.inspections.List(dbctx.With(ctx), lots.InspectionFilter{
		LotID:     f.LotID,
		RunID:     f.RunID,
		StepIndex: f.StepIndex,
		Decision:  f.Decision,
		Limit:     f.Limit,
		Offset:    f.Offset,
	})
	if err != nil {
		return nil, storageErr(op, err)
	}
	return out, nil
}

func (s *lotService) GetTemperatureLog(ctx context.Context, id uuid.UUID) (*production.TemperatureLog, error) {
	const op = "Production.Lots.GetTemperatureLog"
	row, err := s.temperatures.GetByID(dbctx.With(ctx), id)
	if err != nil {
		return nil, storageErr(op, err)
	}
	if row == nil {
		return nil, notFound(op, "temperature log %s not found", id)
	}
	return row, nil
}

func (s *lotService) ListTemperatureLogs(ctx context.Context, f TemperatureListFilter) ([]*production.TemperatureLog, error) {
	const op = "Production.Lots.ListTemperatureLogs"
	out, err := s.temperatures.List(dbctx.With(ctx), lots.TemperatureLogFilter{
		LotID:         f.LotID,
		BufferID:      f.BufferID,
		InspectionID:  f.InspectionID,
		ViolationOnly: f.ViolationsOnly,
		Since:         f.Since,
		Limit:         f.Limit,
		Offset:        f.Offset,
	})
	if err != nil {
		return nil, storageErr(op, err)
	}
	return out, nil
}

package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/lotline-backend/internal/cache"
	dataagg "github.com/yungbote/lotline-backend/internal/data/aggregates"
	"github.com/yungbote/lotline-backend/internal/data/graph"
	"github.com/yungbote/lotline-backend/internal/data/repos"
	"github.com/yungbote/lotline-backend/internal/domain/compliance"
	"github.com/yungbote/lotline-backend/internal/observability"
	"github.com/yungbote/lotline-backend/internal/platform/logger"
	"github.com/yungbote/lotline-backend/internal/realtime/bus"
	"github.com/yungbote/lotline-backend/internal/services"
)

// Services are the read side; writes go through the aggregates.
type Services struct {
	Flow      services.FlowService
	Run       services.RunService
	Lot       services.LotService
	Inventory services.InventoryService
	Trace     services.TraceService
	Audit     services.AuditService
}

func wireRepos(db *gorm.DB, log *logger.Logger) repos.Set {
	log.Info("Wiring repos...")
	return repos.NewSet(db, log)
}

// wireAggregates builds the write boundaries. After-commit effects fan out
// to the audit bus, the traceability cache and the neo4j projection; each
// is a no-op when its client is absent.
func wireAggregates(
	db *gorm.DB,
	log *logger.Logger,
	cfg Config,
	r repos.Set,
	policy compliance.Source,
	clients Clients,
	traceCache *cache.TraceCache,
	metrics *observability.Metrics,
) dataagg.Set {
	log.Info("Wiring aggregates...")

	effects := dataagg.MultiEffects{
		bus.Effects{Bus: clients.AuditBus},
		traceCache,
		graph.NewGenealogyProjection(clients.Neo4j, log),
	}

	retry := dataagg.DefaultRetryPolicy()
	retry.Attempts = cfg.WriteRetryAttempts

	return dataagg.NewSet(dataagg.BaseDeps{
		DB:       db,
		Log:      log,
		Runner:   dataagg.NewGormTxRunnerWithLockTimeout(db, cfg.LockTimeout),
		Hooks:    dataagg.NewObservabilityHooks(metrics),
		CASGuard: dataagg.NewCASGuard(db),
		Retry:    retry,
		Enforcer: compliance.NewEnforcer(policy),
		Effects:  effects,
	}, r)
}

func wireServices(
	log *logger.Logger,
	r repos.Set,
	policy compliance.Source,
	traceCache *cache.TraceCache,
	metrics *observability.Metrics,
) Services {
	log.Info("Wiring services...")
	return Services{
		Flow:      services.NewFlowService(log, r.FlowDefinitions, r.FlowVersions),
		Run:       services.NewRunService(log, r.Runs, r.RunSteps),
		Lot:       services.NewLotService(log, r.Lots, r.Inspections, r.Temperatures, r.StockMoves),
		Inventory: services.NewInventoryService(log, r.Buffers, r.InventoryItems, r.StockMoves, r.Lots),
		Trace: services.NewTraceService(services.TraceServiceDeps{
			Log:          log,
			Lots:         r.Lots,
			Genealogy:    r.Genealogy,
			Inspections:  r.Inspections,
			Temperatures: r.Temperatures,
			Cache:        traceCache,
			Policy:       policy,
			Metrics:      metrics,
		}),
		Audit: services.NewAuditService(log, r.AuditEvents),
	}
}

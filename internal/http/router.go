package http

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/lotline-backend/internal/http/handlers"
	httpMW "github.com/yungbote/lotline-backend/internal/http/middleware"
	"github.com/yungbote/lotline-backend/internal/observability"
	"github.com/yungbote/lotline-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	Metrics        *observability.Metrics
	AllowedOrigins []string
	// ServiceName labels otel server spans; tracing middleware is skipped when empty.
	ServiceName string

	FlowHandler      *httpH.FlowHandler
	RunHandler       *httpH.RunHandler
	LotHandler       *httpH.LotHandler
	InventoryHandler *httpH.InventoryHandler
	TraceHandler     *httpH.TraceHandler
	AuditHandler     *httpH.AuditHandler
	HealthHandler    *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.TraceContext())
	r.Use(httpMW.Actor())
	if cfg.Log != nil {
		r.Use(httpMW.RequestLogger(cfg.Log))
	}
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.AllowedOrigins))
	// Trace trees and audit pages get large; health probes stay uncompressed.
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/healthcheck"})))

	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")

	if h := cfg.FlowHandler; h != nil {
		api.POST("/flows", h.CreateDefinition)
		api.GET("/flows", h.ListDefinitions)
		api.DELETE("/flows/:id", h.DeleteDefinition)
		api.GET("/flows/:id/versions", h.ListVersions)
		api.POST("/flows/:id/versions", h.CreateDraft)

		api.GET("/versions/:id", h.GetVersion)
		api.PUT("/versions/:id/graph", h.UpdateGraph)
		api.POST("/versions/:id/submit", h.Submit)
		api.POST("/versions/:id/approve", h.Approve)
		api.POST("/versions/:id/reject", h.Reject)
		api.POST("/versions/:id/deprecate", h.Deprecate)
		api.DELETE("/versions/:id", h.Discard)
	}

	if h := cfg.RunHandler; h != nil {
		api.POST("/runs", h.Start)
		api.GET("/runs", h.List)
		api.GET("/runs/:id", h.Get)
		api.GET("/runs/:id/steps", h.Steps)
		api.POST("/runs/:id/advance", h.Advance)
		api.POST("/runs/:id/rollback", h.Rollback)
		api.POST("/runs/:id/hold", h.Hold)
		api.POST("/runs/:id/resume", h.Resume)
		api.POST("/runs/:id/complete", h.Complete)
		api.POST("/runs/:id/abort", h.Abort)
		api.POST("/runs/:id/archive", h.Archive)
	}

	if h := cfg.LotHandler; h != nil {
		api.POST("/lots", h.Register)
		api.GET("/lots", h.List)
		api.GET("/lots/:id", h.Get)
		api.POST("/lots/:id/inspections", h.RequestInspection)
		api.POST("/lots/:id/decision", h.Decision)
		api.POST("/lots/:id/consume", h.Consume)
		api.POST("/genealogy/links", h.Link)
		api.POST("/temperature-logs", h.RecordTemperature)
		api.GET("/temperature-logs", h.ListTemperatures)
		api.GET("/temperature-logs/:id", h.GetTemperature)
		api.GET("/qc-inspections", h.ListInspections)
		api.GET("/qc-inspections/:id", h.GetInspection)
	}

	if h := cfg.InventoryHandler; h != nil {
		api.POST("/buffers", h.CreateBuffer)
		api.GET("/buffers", h.ListBuffers)
		api.GET("/buffers/summary", h.Summaries)
		api.GET("/buffers/:id", h.GetBuffer)
		api.PATCH("/buffers/:id", h.UpdateBuffer)
		api.GET("/buffers/:id/contents", h.Contents)
		api.GET("/inventory/items", h.ListItems)
		api.GET("/inventory/moves", h.ListMoves)
		api.POST("/inventory/moves", h.Move)
	}

	if h := cfg.TraceHandler; h != nil {
		api.GET("/traceability/:code/back", h.Back)
		api.GET("/traceability/:code/forward", h.Forward)
		api.GET("/traceability/:code/tree", h.Tree)
		api.POST("/traceability/:code/report", h.Report)
	}

	if h := cfg.AuditHandler; h != nil {
		api.GET("/audit/events", h.Query)
		api.GET("/audit/events/:id", h.Get)
		api.GET("/audit/:entity_type/:entity_id", h.EntityHistory)
	}

	return r
}

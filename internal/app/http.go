package app

import (
	"context"

	goredis "github.com/redis/go-redis/v9"
	temporalsdkclient "go.temporal.io/sdk/client"
	"gorm.io/gorm"

	dataagg "github.com/yungbote/lotline-backend/internal/data/aggregates"
	lotlinehttp "github.com/yungbote/lotline-backend/internal/http"
	httpH "github.com/yungbote/lotline-backend/internal/http/handlers"
	"github.com/yungbote/lotline-backend/internal/observability"
	"github.com/yungbote/lotline-backend/internal/platform/logger"
)

func wireServer(
	log *logger.Logger,
	cfg Config,
	db *gorm.DB,
	clients Clients,
	aggs dataagg.Set,
	svcs Services,
	metrics *observability.Metrics,
) *lotlinehttp.Server {
	log.Info("Wiring handlers and router...")
	rc := lotlinehttp.RouterConfig{
		Log:              log,
		Metrics:          metrics,
		AllowedOrigins:   cfg.AllowedOrigins,
		FlowHandler:      httpH.NewFlowHandler(aggs.Flow, svcs.Flow),
		RunHandler:       httpH.NewRunHandler(aggs.Run, svcs.Run),
		LotHandler:       httpH.NewLotHandler(aggs.Lot, svcs.Lot),
		InventoryHandler: httpH.NewInventoryHandler(aggs.Inventory, svcs.Inventory),
		TraceHandler:     httpH.NewTraceHandler(svcs.Trace),
		AuditHandler:     httpH.NewAuditHandler(svcs.Audit),
		HealthHandler:    httpH.NewHealthHandler(healthChecks(db, clients)...),
	}
	if observability.TracingEnabled() {
		rc.ServiceName = cfg.ServiceName
	}
	return lotlinehttp.NewServer(rc)
}

func healthChecks(db *gorm.DB, clients Clients) []httpH.HealthCheck {
	checks := []httpH.HealthCheck{{
		Name: "database",
		Fn: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}}

	redisCheck := httpH.HealthCheck{Name: "redis", Optional: true}
	if rdb := clients.Redis; rdb != nil {
		redisCheck.Fn = func(ctx context.Context) error { return pingRedis(ctx, rdb) }
	}
	checks = append(checks, redisCheck)

	neo4jCheck := httpH.HealthCheck{Name: "neo4j", Optional: true}
	if n := clients.Neo4j; n != nil {
		neo4jCheck.Fn = func(ctx context.Context) error { return n.Driver.VerifyConnectivity(ctx) }
	}
	checks = append(checks, neo4jCheck)

	temporalCheck := httpH.HealthCheck{Name: "temporal", Optional: true}
	if tc := clients.Temporal; tc != nil {
		temporalCheck.Fn = func(ctx context.Context) error {
			_, err := tc.CheckHealth(ctx, &temporalsdkclient.CheckHealthRequest{})
			return err
		}
	}
	return append(checks, temporalCheck)
}

func pingRedis(ctx context.Context, rdb *goredis.Client) error {
	return rdb.Ping(ctx).Err()
}

package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/lotline-backend/internal/cache"
	dataagg "github.com/yungbote/lotline-backend/internal/data/aggregates"
	"github.com/yungbote/lotline-backend/internal/data/repos"
	"github.com/yungbote/lotline-backend/internal/domain/compliance"
	lotlinehttp "github.com/yungbote/lotline-backend/internal/http"
	"github.com/yungbote/lotline-backend/internal/observability"
	"github.com/yungbote/lotline-backend/internal/platform/envutil"
	"github.com/yungbote/lotline-backend/internal/platform/logger"
	"github.com/yungbote/lotline-backend/internal/platform/policyfile"
	"github.com/yungbote/lotline-backend/internal/temporalx/temporalworker"
	"github.com/yungbote/lotline-backend/internal/temporalx/workflows"
)

var ErrTemporalDisabled = errors.New("temporal is not configured (set TEMPORAL_ADDRESS)")

type App struct {
	Log        *logger.Logger
	DB         *gorm.DB
	Cfg        Config
	Metrics    *observability.Metrics
	Policy     *policyfile.Store
	Clients    Clients
	Repos      repos.Set
	Aggregates dataagg.Set
	Services   Services
	Server     *lotlinehttp.Server
	Worker     *temporalworker.Runner

	otelShutdown func(context.Context) error
	startOnce    sync.Once
	cancel       context.CancelFunc
}

// NewLogger builds the process logger from LOG_MODE.
func NewLogger() (*logger.Logger, error) {
	log, err := logger.New(envutil.String("LOG_MODE", "development", nil))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return log, nil
}

func New(ctx context.Context) (*App, error) {
	log, err := NewLogger()
	if err != nil {
		return nil, err
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	metrics := observability.Init(log)
	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})

	policy, err := policyfile.New(log, cfg.PolicyPath)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("load compliance policy: %w", err)
	}

	theDB, err := OpenDatabase(log, cfg, true)
	if err != nil {
		log.Sync()
		return nil, err
	}

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		closeDB(theDB)
		log.Sync()
		return nil, err
	}

	traceCache := cache.NewTraceCache(clients.Redis, log, metrics)
	// Depth limits and the cache TTL come from the policy; cached traces
	// computed under the old limits are dropped.
	policy.OnChange(func(compliance.Policy) {
		if err := traceCache.Bump(context.Background()); err != nil {
			log.Warn("Trace cache invalidation after policy reload failed", "error", err)
		}
	})
	reposet := wireRepos(theDB, log)
	aggs := wireAggregates(theDB, log, cfg, reposet, policy, clients, traceCache, metrics)
	svcs := wireServices(log, reposet, policy, traceCache, metrics)

	runner, err := wireWorkflows(log, cfg, clients, aggs, svcs, metrics)
	if err != nil {
		clients.Close(log)
		closeDB(theDB)
		log.Sync()
		return nil, err
	}
	server := wireServer(log, cfg, theDB, clients, aggs, svcs, metrics)

	return &App{
		Log:          log,
		DB:           theDB,
		Cfg:          cfg,
		Metrics:      metrics,
		Policy:       policy,
		Clients:      clients,
		Repos:        reposet,
		Aggregates:   aggs,
		Services:     svcs,
		Server:       server,
		Worker:       runner,
		otelShutdown: otelShutdown,
	}, nil
}

// Start launches the background loops shared by every long-running command:
// policy hot reload, the metrics listener and its collectors.
func (a *App) Start(ctx context.Context) {
	if a == nil {
		return
	}
	a.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		a.cancel = cancel

		if err := a.Policy.Watch(ctx); err != nil {
			a.Log.Warn("Compliance policy watch disabled", "path", a.Policy.Path(), "error", err)
		}
		if a.Metrics != nil {
			a.Metrics.StartServer(ctx, a.Log, a.Cfg.MetricsAddr)
			a.Metrics.StartPostgresCollector(ctx, a.Log, a.DB)
			a.Metrics.StartProductionCollector(ctx, a.Log, a.DB)
			if a.Clients.Redis != nil {
				a.Metrics.StartRedisCollector(ctx, a.Log, a.Clients.Redis)
			}
		}
	})
}

// Serve runs the HTTP API until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Start(ctx)
	if a.Cfg.EmbeddedWorker {
		if err := a.startWorker(ctx); err != nil {
			return err
		}
	}
	return a.Server.Run(ctx, a.Cfg.HTTPAddr)
}

// RunWorker polls the Temporal task queue until ctx is done.
func (a *App) RunWorker(ctx context.Context) error {
	if a == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Start(ctx)
	if err := a.startWorker(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

func (a *App) startWorker(ctx context.Context) error {
	if a.Worker == nil {
		return ErrTemporalDisabled
	}
	if err := a.Worker.Start(ctx); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	if strings.TrimSpace(a.Cfg.ArchiveSweepCron) == "" {
		return nil
	}
	if err := a.ScheduleArchiveSweep(ctx); err != nil {
		a.Log.Warn("Archive sweep schedule failed", "cron", a.Cfg.ArchiveSweepCron, "error", err)
	}
	return nil
}

func (a *App) ScheduleArchiveSweep(ctx context.Context) error {
	if a.Clients.Temporal == nil {
		return ErrTemporalDisabled
	}
	return workflows.ScheduleArchiveSweep(ctx, a.Log, a.Clients.Temporal, a.Cfg.Temporal.TaskQueue, a.Cfg.ArchiveSweepCron, a.Cfg.Temporal.ArchiveBatch)
}

// ArchiveSweep archives expired runs once. With Temporal configured the sweep
// runs as a workflow; otherwise batches run in-process.
func (a *App) ArchiveSweep(ctx context.Context, batch int) (workflows.ArchiveSweepResult, error) {
	if batch < 1 {
		batch = a.Cfg.Temporal.ArchiveBatch
	}
	if a.Clients.Temporal != nil {
		return workflows.RunArchiveSweep(ctx, a.Clients.Temporal, a.Cfg.Temporal.TaskQueue, batch)
	}
	var out workflows.ArchiveSweepResult
	for out.Batches < workflows.DefaultMaxBatches {
		n, err := a.Aggregates.Run.ArchiveExpired(ctx, time.Now().UTC(), batch)
		if err != nil {
			return out, err
		}
		out.Batches++
		out.Archived += n
		if n < batch {
			break
		}
	}
	return out, nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.Clients.Close(a.Log)
	closeDB(a.DB)
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
		cancel()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}

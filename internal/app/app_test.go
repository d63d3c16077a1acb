package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/lotline-backend/internal/cache"
	"github.com/yungbote/lotline-backend/internal/data/repos/testutil"
	"github.com/yungbote/lotline-backend/internal/domain/production"
	"github.com/yungbote/lotline-backend/internal/platform/dbctx"
	"github.com/yungbote/lotline-backend/internal/platform/policyfile"
	"github.com/yungbote/lotline-backend/internal/temporalx"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, k := range []string{"DB_DRIVER", "HTTP_ADDR", "WRITE_RETRY_ATTEMPTS", "ALLOWED_ORIGINS", "ARCHIVE_SWEEP_CRON", "TEMPORAL_ADDRESS"} {
		t.Setenv(k, "")
	}
	cfg := LoadConfig(nil)
	assert.Equal(t, DriverPostgres, cfg.DBDriver)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 3, cfg.WriteRetryAttempts)
	assert.Equal(t, "@every 1h", cfg.ArchiveSweepCron)
	assert.NotEmpty(t, cfg.AllowedOrigins)
	assert.False(t, cfg.Temporal.Enabled())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("WRITE_RETRY_ATTEMPTS", "0")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("REDIS_AUDIT_CHANNEL", "plant-7")
	cfg := LoadConfig(nil)
	assert.Equal(t, DriverSQLite, cfg.DBDriver)
	assert.Equal(t, 1, cfg.WriteRetryAttempts)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, "plant-7", cfg.AuditChannel)

	t.Setenv("DB_DRIVER", "mysql")
	assert.Equal(t, DriverPostgres, LoadConfig(nil).DBDriver)
}

// newTestApp wires the in-process graph on sqlite with every optional
// client absent.
func newTestApp(t *testing.T) *App {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	cfg := Config{
		WriteRetryAttempts: 1,
		Temporal:           temporalx.Config{ArchiveBatch: 2},
	}
	policy, err := policyfile.New(log, "")
	require.NoError(t, err)
	traceCache := cache.NewTraceCache(nil, log, nil)
	r := wireRepos(db, log)
	aggs := wireAggregates(db, log, cfg, r, policy, Clients{}, traceCache, nil)
	svcs := wireServices(log, r, policy, traceCache, nil)
	runner, err := wireWorkflows(log, cfg, Clients{}, aggs, svcs, nil)
	require.NoError(t, err)
	require.Nil(t, runner)
	return &App{
		Log:        log,
		DB:         db,
		Cfg:        cfg,
		Policy:     policy,
		Repos:      r,
		Aggregates: aggs,
		Services:   svcs,
		Server:     wireServer(log, cfg, db, Clients{}, aggs, svcs, nil),
	}
}

func TestArchiveSweepInProcess(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}

	_, v := testutil.SeedPublishedFlow(t, ctx, a.DB, "cut")
	old := time.Now().UTC().Add(-60 * 24 * time.Hour)
	for i := 0; i < 3; i++ {
		run := testutil.SeedRun(t, ctx, a.DB, v.ID, production.RunCompleted, 3)
		require.NoError(t, a.Repos.Runs.UpdateFields(dbc, run.ID, map[string]interface{}{"ended_at": old}))
	}
	testutil.SeedRun(t, ctx, a.DB, v.ID, production.RunRunning, 3)

	res, err := a.ArchiveSweep(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Archived)
	assert.Equal(t, 2, res.Batches, "batch of 2 then a short batch")

	res, err = a.ArchiveSweep(ctx, 5)
	require.NoError(t, err)
	assert.Zero(t, res.Archived)
	assert.Equal(t, 1, res.Batches)
}

func TestWorkerNeedsTemporal(t *testing.T) {
	a := newTestApp(t)
	err := a.RunWorker(context.Background())
	assert.True(t, errors.Is(err, ErrTemporalDisabled), "got %v", err)
	assert.True(t, errors.Is(a.ScheduleArchiveSweep(context.Background()), ErrTemporalDisabled))
	a.Close()
}

func TestHealthChecksOptionalClients(t *testing.T) {
	db := testutil.DB(t)
	checks := healthChecks(db, Clients{})
	require.Len(t, checks, 4)

	assert.Equal(t, "database", checks[0].Name)
	assert.False(t, checks[0].Optional)
	require.NotNil(t, checks[0].Fn)
	assert.NoError(t, checks[0].Fn(context.Background()))

	for _, c := range checks[1:] {
		assert.True(t, c.Optional, c.Name)
		assert.Nil(t, c.Fn, c.Name)
	}
}

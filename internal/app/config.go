package app

import (
	"strings"
	"time"

	"github.com/yungbote/lotline-backend/internal/http/middleware"
	"github.com/yungbote/lotline-backend/internal/platform/envutil"
	"github.com/yungbote/lotline-backend/internal/platform/logger"
	"github.com/yungbote/lotline-backend/internal/temporalx"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	LogMode  string
	DBDriver string

	HTTPAddr    string
	MetricsAddr string

	AuditChannel   string
	AllowedOrigins []string
	PolicyPath     string

	WriteRetryAttempts int
	LockTimeout        time.Duration

	ArchiveSweepCron string
	ReportTimeout    time.Duration
	// EmbeddedWorker runs the Temporal worker inside the serve process.
	EmbeddedWorker bool

	ServiceName string
	Environment string
	Version     string

	Temporal temporalx.Config
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		LogMode:  envutil.String("LOG_MODE", "development", log),
		DBDriver: strings.ToLower(envutil.String("DB_DRIVER", DriverPostgres, log)),

		HTTPAddr:    envutil.String("HTTP_ADDR", ":8080", log),
		MetricsAddr: envutil.String("METRICS_ADDR", ":9090", log),

		AuditChannel:   envutil.String("REDIS_AUDIT_CHANNEL", "lotline:audit", log),
		AllowedOrigins: envutil.CSV("ALLOWED_ORIGINS", middleware.DefaultOrigins, log),
		PolicyPath:     envutil.String("COMPLIANCE_POLICY_PATH", "", log),

		WriteRetryAttempts: envutil.Int("WRITE_RETRY_ATTEMPTS", 3, log),
		LockTimeout:        envutil.Duration("DB_LOCK_TIMEOUT", 5*time.Second, log),

		ArchiveSweepCron: envutil.String("ARCHIVE_SWEEP_CRON", "@every 1h", log),
		ReportTimeout:    envutil.Duration("REPORT_TIMEOUT", 2*time.Minute, log),
		EmbeddedWorker:   envutil.Bool("WORKER_EMBEDDED", false, log),

		ServiceName: envutil.String("OTEL_SERVICE_NAME", "lotline-backend", log),
		Environment: envutil.String("APP_ENV", "development", log),
		Version:     envutil.String("APP_VERSION", "dev", log),

		Temporal: temporalx.LoadConfig(log),
	}
	if cfg.DBDriver != DriverSQLite {
		cfg.DBDriver = DriverPostgres
	}
	if cfg.WriteRetryAttempts < 1 {
		cfg.WriteRetryAttempts = 1
	}
	return cfg
}

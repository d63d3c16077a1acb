package temporalx

import (
	"time"

	"github.com/yungbote/lotline-backend/internal/platform/envutil"
	"github.com/yungbote/lotline-backend/internal/platform/logger"
)

const (
	defaultNamespace = "lotline"
	defaultTaskQueue = "lotline-production"
)

type Config struct {
	Address   string
	Namespace string
	TaskQueue string

	ClientCertPath string
	ClientKeyPath  string
	ClientCAPath   string

	AutoRegisterNamespace bool
	RetentionDays         int

	DialTimeout time.Duration
	DialMaxWait time.Duration
	Backoff     time.Duration
	BackoffMax  time.Duration

	WorkerConcurrency int
	// ArchiveBatch bounds how many runs one sweep activity archives.
	ArchiveBatch int
}

// LoadConfig reads TEMPORAL_* settings. An empty Address disables Temporal.
func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		Address:   envutil.String("TEMPORAL_ADDRESS", "", log),
		Namespace: envutil.String("TEMPORAL_NAMESPACE", defaultNamespace, log),
		TaskQueue: envutil.String("TEMPORAL_TASK_QUEUE", defaultTaskQueue, log),

		ClientCertPath: envutil.String("TEMPORAL_CLIENT_CERT_PATH", "", log),
		ClientKeyPath:  envutil.String("TEMPORAL_CLIENT_KEY_PATH", "", log),
		ClientCAPath:   envutil.String("TEMPORAL_CLIENT_CA_PATH", "", log),

		AutoRegisterNamespace: envutil.Bool("TEMPORAL_AUTO_REGISTER_NAMESPACE", false, log),
		RetentionDays:         envutil.Int("TEMPORAL_NAMESPACE_RETENTION_DAYS", 7, log),

		DialTimeout: envutil.Duration("TEMPORAL_DIAL_TIMEOUT", 5*time.Second, log),
		DialMaxWait: envutil.Duration("TEMPORAL_DIAL_MAX_WAIT", 60*time.Second, log),
		Backoff:     envutil.Duration("TEMPORAL_BACKOFF", 250*time.Millisecond, log),
		BackoffMax:  envutil.Duration("TEMPORAL_BACKOFF_MAX", 5*time.Second, log),

		WorkerConcurrency: envutil.Int("WORKER_CONCURRENCY", 4, log),
		ArchiveBatch:      envutil.Int("ARCHIVE_SWEEP_BATCH", 200, log),
	}
	return cfg.normalize()
}

func (c Config) normalize() Config {
	if c.Namespace == "" {
		c.Namespace = defaultNamespace
	}
	if c.TaskQueue == "" {
		c.TaskQueue = defaultTaskQueue
	}
	if c.RetentionDays < 1 {
		c.RetentionDays = 7
	}
	if c.RetentionDays > 365 {
		c.RetentionDays = 365
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.DialMaxWait < 0 {
		c.DialMaxWait = 0
	}
	if c.WorkerConcurrency < 1 {
		c.WorkerConcurrency = 1
	}
	if c.ArchiveBatch < 1 {
		c.ArchiveBatch = 200
	}
	return c
}

func (c Config) Enabled() bool { return c.Address != "" }

func (c Config) mTLS() bool {
	return c.ClientCertPath != "" || c.ClientKeyPath != "" || c.ClientCAPath != ""
}

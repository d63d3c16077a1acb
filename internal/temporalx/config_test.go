package temporalx

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/lotline-backend/internal/platform/logger"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("TEMPORAL_ADDRESS", "")
	t.Setenv("TEMPORAL_NAMESPACE", "")
	t.Setenv("WORKER_CONCURRENCY", "0")

	cfg := LoadConfig(nil)
	assert.False(t, cfg.Enabled())
	assert.Equal(t, "lotline", cfg.Namespace)
	assert.Equal(t, "lotline-production", cfg.TaskQueue)
	assert.Equal(t, 1, cfg.WorkerConcurrency)
	assert.Equal(t, 7, cfg.RetentionDays)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("TEMPORAL_ADDRESS", "temporal:7233")
	t.Setenv("TEMPORAL_TASK_QUEUE", "plant-2")
	t.Setenv("TEMPORAL_NAMESPACE_RETENTION_DAYS", "900")
	t.Setenv("TEMPORAL_DIAL_MAX_WAIT", "2s")

	cfg := LoadConfig(nil)
	assert.True(t, cfg.Enabled())
	assert.Equal(t, "plant-2", cfg.TaskQueue)
	assert.Equal(t, 365, cfg.RetentionDays)
	assert.Equal(t, 2*time.Second, cfg.DialMaxWait)
}

func TestNewClientDisabled(t *testing.T) {
	c, err := NewClient(context.Background(), logger.Nop(), Config{})
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestLoadTLSConfigRequiresPair(t *testing.T) {
	_, err := loadTLSConfig(Config{ClientCAPath: "/tmp/ca.pem"})
	require.Error(t, err)
}

func TestClampBackoff(t *testing.T) {
	assert.Equal(t, 250*time.Millisecond, clampBackoff(0, 0, 1))
	assert.Equal(t, time.Second, clampBackoff(500*time.Millisecond, time.Second, 4))
}

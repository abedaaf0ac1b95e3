package boot

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unsetenv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoadDefaults(t *testing.T) {
	unsetenv(t, "ENV", "SCHEDULER_INTERVAL", "SCHEDULER_CLAIM_TTL", "SYNC_QUEUE_SIZE",
		"SLACK_HISTORY_LIMIT", "MIRROR_DATABASE_URL", "REDIS_HOST")

	config, err := Load(context.Background())
	require.NoError(t, err)

	assert := assert.New(t)
	assert.Equal("dev", config.Env)
	assert.False(config.IsProduction())
	assert.Equal(time.Minute, config.SchedulerInterval)
	assert.Equal(10*time.Minute, config.ClaimTTL)
	assert.Equal(1024, config.SyncQueueSize)
	assert.Equal(200, config.ReconcileHistory)
	assert.False(config.MirrorConfigured())
	assert.False(config.RedisConfigured())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ENV", "prod")
	t.Setenv("SCHEDULER_INTERVAL", "30s")
	t.Setenv("SYNC_ENABLED", "true")
	t.Setenv("MIRROR_DATABASE_URL", "postgres://calendar@localhost/mirror")
	t.Setenv("REDIS_HOST", "redis.internal")

	config, err := Load(context.Background())
	require.NoError(t, err)

	assert := assert.New(t)
	assert.True(config.IsProduction())
	assert.Equal(30*time.Second, config.SchedulerInterval)
	assert.True(config.MirrorConfigured())
	assert.True(config.RedisConfigured())
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("SCHEDULER_INTERVAL", "soon")

	_, err := Load(context.Background())
	assert.Error(t, err)
}

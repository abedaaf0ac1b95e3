package boot

import (
	"context"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Env     string `env:"ENV,default=dev"`
	APIHost string `env:"API_HOST"`

	SchedulerInterval time.Duration `env:"SCHEDULER_INTERVAL,default=1m"`
	QuietLogInterval  time.Duration `env:"SCHEDULER_QUIET_LOG_INTERVAL,default=5m"`
	ClaimTTL          time.Duration `env:"SCHEDULER_CLAIM_TTL,default=10m"`

	SyncEnabled       bool   `env:"SYNC_ENABLED,default=true"`
	SyncQueueSize     int    `env:"SYNC_QUEUE_SIZE,default=1024"`
	MirrorDatabaseURL string `env:"MIRROR_DATABASE_URL"`
	MirrorMaxConns    int32  `env:"MIRROR_MAX_CONNS,default=4"`
	Migrate           bool   `env:"DB_MIGRATE,default=false"`

	RedisHost     string `env:"REDIS_HOST"`
	RedisPort     string `env:"REDIS_PORT,default=6379"`
	RedisUser     string `env:"REDIS_USER"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       string `env:"REDIS_DB,default=0"`

	SlackBaseURL       string        `env:"SLACK_API_URL,default=https://slack.com/api"`
	ReconcileInterval  time.Duration `env:"SLACK_RECONCILE_INTERVAL,default=30s"`
	ReconcileHistory   int           `env:"SLACK_HISTORY_LIMIT,default=200"`
	ReconcileEnabled   bool          `env:"SLACK_RECONCILE_ENABLED,default=true"`
	NotificationTTL    time.Duration `env:"NOTIFICATION_DEDUPE_TTL,default=24h"`
	MastodonBaseURL    string        `env:"MASTODON_BASE_URL,default=https://mastodon.social"`
	TwitterConsumerKey string        `env:"TWITTER_KEY"`
	TwitterSecret      string        `env:"TWITTER_SECRET"`
}

// Load reads .env, when present, and then the process environment.
func Load(ctx context.Context) (Config, error) {
	_ = godotenv.Load()

	config := Config{}
	if err := envconfig.Process(ctx, &config); err != nil {
		return Config{}, fmt.Errorf("parsing env vars: %w", err)
	}
	return config, nil
}

func (c Config) IsProduction() bool {
	return c.Env == "prod"
}

// MirrorConfigured reports whether a mirror database was given.
func (c Config) MirrorConfigured() bool {
	return c.SyncEnabled && c.MirrorDatabaseURL != ""
}

// RedisConfigured reports whether a shared Redis should back claims.
func (c Config) RedisConfigured() bool {
	return c.RedisHost != ""
}

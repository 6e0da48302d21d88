package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Debug bool `env:"DEBUG" envDefault:"false"`

	Server struct {
		Port   int    `env:"PORT" envDefault:"8080"`
		Origin string `env:"ORIGIN" envDefault:"http://localhost:3000"`
	}

	Postgres struct {
		Host            string        `env:"POSTGRES_HOST" envDefault:"localhost"`
		Port            int           `env:"POSTGRES_PORT" envDefault:"5432"`
		User            string        `env:"POSTGRES_USER" envDefault:"postgres"`
		Password        string        `env:"POSTGRES_PASSWORD" envDefault:""`
		Database        string        `env:"POSTGRES_DB" envDefault:"adboard"`
		SSLMode         string        `env:"POSTGRES_SSLMODE" envDefault:"disable"`
		MaxOpenConns    int           `env:"POSTGRES_MAX_OPEN_CONNS" envDefault:"25"`
		MaxIdleConns    int           `env:"POSTGRES_MAX_IDLE_CONNS" envDefault:"5"`
		ConnMaxLifetime time.Duration `env:"POSTGRES_CONN_MAX_LIFETIME" envDefault:"30m"`
	}

	Redis struct {
		Host     string `env:"REDIS_HOST" envDefault:"localhost"`
		Port     int    `env:"REDIS_PORT" envDefault:"6379"`
		Password string `env:"REDIS_PASSWORD" envDefault:""`
		DB       int    `env:"REDIS_DB" envDefault:"0"`
	}

	Telegram struct {
		BotToken string `env:"BOT_TOKEN,required"`
		// Scratch chat used for message-exists probes (copy + delete).
		ProbeChatID int64 `env:"PROBE_CHAT_ID"`
	}

	Ton struct {
		APIBase      string `env:"TONAPI_BASE" envDefault:"https://tonapi.io"`
		APIToken     string `env:"TONAPI_TOKEN" envDefault:""`
		EscrowWallet string `env:"ESCROW_WALLET,required"`
		// Shared secret for the payment-processor webhook that triggers
		// funding confirmation.
		WebhookSecret string `env:"ESCROW_WEBHOOK_SECRET" envDefault:""`
	}

	Admin struct {
		// Operator user ids allowed to resolve disputes.
		UserIDs []int64 `env:"ADMIN_USER_IDS" envSeparator:","`
	}

	Deals struct {
		MinAmount        int64         `env:"DEAL_MIN_AMOUNT" envDefault:"1000000000"`      // 1 TON in nano
		MaxAmount        int64         `env:"DEAL_MAX_AMOUNT" envDefault:"100000000000000"` // 100k TON in nano
		FeePercent       int64         `env:"DEAL_FEE_PERCENT" envDefault:"5"`
		MaxRevisions     int           `env:"DEAL_MAX_REVISIONS" envDefault:"3"`
		PaymentDeadline  time.Duration `env:"DEAL_PAYMENT_DEADLINE" envDefault:"24h"`
		CreativeDeadline time.Duration `env:"DEAL_CREATIVE_DEADLINE" envDefault:"48h"`
		WarningWindow    time.Duration `env:"DEAL_WARNING_WINDOW" envDefault:"1h"`
		MinSubscribers   int64         `env:"DEAL_MIN_SUBSCRIBERS" envDefault:"0"`
	}

	Scheduler struct {
		Workers         int           `env:"SCHEDULER_WORKERS" envDefault:"5"`
		MaxAttempts     int           `env:"SCHEDULER_MAX_ATTEMPTS" envDefault:"5"`
		BaseBackoff     time.Duration `env:"SCHEDULER_BASE_BACKOFF" envDefault:"10s"`
		MaxBackoff      time.Duration `env:"SCHEDULER_MAX_BACKOFF" envDefault:"10m"`
		PromoteInterval time.Duration `env:"SCHEDULER_PROMOTE_INTERVAL" envDefault:"1s"`
		HandlerTimeout  time.Duration `env:"SCHEDULER_HANDLER_TIMEOUT" envDefault:"2m"`
	}

	Stats struct {
		PollInterval   time.Duration `env:"STATS_POLL_INTERVAL" envDefault:"1h"`
		CallsPerSecond int           `env:"STATS_CALLS_PER_SECOND" envDefault:"10"`
		CacheTTL       time.Duration `env:"STATS_CACHE_TTL" envDefault:"15m"`
	}
}

// GetDSN builds a lib/pq connection string from the Postgres section.
func (c *Config) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Postgres.Host, c.Postgres.Port, c.Postgres.User, c.Postgres.Password,
		c.Postgres.Database, c.Postgres.SSLMode)
}

// RedisAddr returns host:port for go-redis.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		// .env is optional; production sets variables directly.
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		panic(err)
	}

	return cfg
}

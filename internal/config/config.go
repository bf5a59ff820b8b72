// Package config loads PriceGuard's process configuration: one struct per
// service tree (Scheduler, Dispatcher, Store, Notification, Observability),
// populated from YAML plus environment overrides via viper/mapstructure.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/DimaJoyti/priceguard/internal/monitoring/dispatcher"
	"github.com/DimaJoyti/priceguard/internal/monitoring/scoring"
	"github.com/DimaJoyti/priceguard/pkg/eventbus"
	"github.com/DimaJoyti/priceguard/pkg/logger"
	"github.com/DimaJoyti/priceguard/pkg/ratelimit"
)

// Config is the complete PriceGuard configuration.
type Config struct {
	Environment  string             `mapstructure:"environment"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
	Dispatcher   DispatcherConfig   `mapstructure:"dispatcher"`
	Store        StoreConfig        `mapstructure:"store"`
	Notification NotificationConfig `mapstructure:"notification"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	EventBus     EventBusConfig     `mapstructure:"eventbus"`
}

// EventBusConfig selects and configures the Analyzer->Rule Engine event
// transport. Backend "memory" runs an in-process bus suitable for a
// single `serve` binary; "kafka" dials eventbus.Config.Brokers for
// cross-process fan-out.
type EventBusConfig struct {
	Backend string         `mapstructure:"backend"`
	Kafka   eventbus.Config `mapstructure:"kafka"`
}

// SchedulerConfig drives scheduleDueProducts/updatePriorities/
// distributeLoad cadences and the Scorer's weights.
type SchedulerConfig struct {
	ScheduleInterval       time.Duration  `mapstructure:"schedule_interval"`
	ScheduleBatchSize      int            `mapstructure:"schedule_batch_size"`
	PriorityRefreshInterval time.Duration `mapstructure:"priority_refresh_interval"`
	PriorityRefreshBatchSize int          `mapstructure:"priority_refresh_batch_size"`
	MaxTasksPerRetailerHour int           `mapstructure:"max_tasks_per_retailer_hour"`
	Weights                scoring.Weights `mapstructure:"weights"`
}

// DispatcherConfig sizes the three lane pools and the per-retailer
// concurrency ceilings, and sets the dispatch-cycle cadence.
type DispatcherConfig struct {
	CycleInterval    time.Duration             `mapstructure:"cycle_interval"`
	MaxTasksPerCycle int                       `mapstructure:"max_tasks_per_cycle"`
	RetailerCeilings map[string]int            `mapstructure:"retailer_ceilings"`
	DefaultCeiling   int                       `mapstructure:"default_ceiling"`
	High             dispatcher.LanePoolConfig `mapstructure:"high"`
	Normal           dispatcher.LanePoolConfig `mapstructure:"normal"`
	Low              dispatcher.LanePoolConfig `mapstructure:"low"`
}

// ToDispatcherConfig builds the dispatcher package's own Config from the
// loaded values.
func (d DispatcherConfig) ToDispatcherConfig() dispatcher.Config {
	return dispatcher.Config{
		MaxTasksPerCycle: d.MaxTasksPerCycle,
		Ceilings:         dispatcher.RetailerCeilings{ByRetailer: d.RetailerCeilings, Default: d.DefaultCeiling},
		High:             d.High,
		Normal:           d.Normal,
		Low:              d.Low,
	}
}

// StoreConfig configures the Redis and Postgres connections the
// repository layer is built on.
type StoreConfig struct {
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig configures the per-product and task-queue store.
// Notification throttle buckets are held in memory by pkg/ratelimit.
type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// PostgresConfig configures the relational store backing AlertRule,
// Delivery, NotificationBatch, and EngagementMetrics persistence.
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// NotificationConfig drives the pipeline's throttle/dedup limits, batch
// boundaries, retry behavior, and the channel adapter credentials.
type NotificationConfig struct {
	RateLimit        ratelimit.Config `mapstructure:"rate_limit"`
	DailySummaryHour int              `mapstructure:"daily_summary_hour"`
	SweepInterval    time.Duration    `mapstructure:"sweep_interval"`
	SweepBatchSize   int              `mapstructure:"sweep_batch_size"`
	RetrySweepInterval time.Duration  `mapstructure:"retry_sweep_interval"`
	Email            EmailConfig      `mapstructure:"email"`
	Push             PushConfig       `mapstructure:"push"`
}

// EmailConfig configures the SendGrid-backed email channel adapter.
type EmailConfig struct {
	APIKey   string `mapstructure:"api_key"`
	FromAddr string `mapstructure:"from_addr"`
	FromName string `mapstructure:"from_name"`
	Subject  string `mapstructure:"subject"`
}

// PushConfig configures the Firebase Cloud Messaging-backed push
// channel adapter.
type PushConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
	ProjectID       string `mapstructure:"project_id"`
	Title           string `mapstructure:"title"`
}

// ObservabilityConfig configures structured logging and the Prometheus
// metrics endpoint.
type ObservabilityConfig struct {
	Logging logger.Config `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig configures the /metrics HTTP endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from file (./config/priceguard.yaml, ./
// priceguard.yaml) and environment variables (PRICEGUARD_ prefix),
// applying defaults for anything neither sets, then validates the result.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("priceguard")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	setDefaults(v)

	v.SetEnvPrefix("PRICEGUARD")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("scheduler.schedule_interval", "5m")
	v.SetDefault("scheduler.schedule_batch_size", 200)
	v.SetDefault("scheduler.priority_refresh_interval", "6h")
	v.SetDefault("scheduler.priority_refresh_batch_size", 500)
	v.SetDefault("scheduler.max_tasks_per_retailer_hour", 200)
	w := scoring.DefaultWeights()
	v.SetDefault("scheduler.weights.volatility", w.Volatility)
	v.SetDefault("scheduler.weights.popularity", w.Popularity)
	v.SetDefault("scheduler.weights.price_level", w.PriceLevel)
	v.SetDefault("scheduler.weights.time_since_check", w.TimeSinceCheck)
	v.SetDefault("scheduler.weights.manual_boost", w.ManualBoost)

	v.SetDefault("dispatcher.cycle_interval", "2m")
	v.SetDefault("dispatcher.max_tasks_per_cycle", 100)
	v.SetDefault("dispatcher.default_ceiling", 5)
	v.SetDefault("dispatcher.retailer_ceilings", map[string]int{
		"amazon": 20, "fnac": 10, "darty": 10, "boulanger": 10,
	})
	v.SetDefault("dispatcher.high.min_workers", 2)
	v.SetDefault("dispatcher.high.max_workers", 8)
	v.SetDefault("dispatcher.high.queue_size", 256)
	v.SetDefault("dispatcher.normal.min_workers", 2)
	v.SetDefault("dispatcher.normal.max_workers", 8)
	v.SetDefault("dispatcher.normal.queue_size", 256)
	v.SetDefault("dispatcher.low.min_workers", 1)
	v.SetDefault("dispatcher.low.max_workers", 4)
	v.SetDefault("dispatcher.low.queue_size", 256)

	v.SetDefault("store.redis.url", "redis://localhost:6379")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.pool_size", 10)
	v.SetDefault("store.redis.dial_timeout", "5s")
	v.SetDefault("store.redis.read_timeout", "3s")
	v.SetDefault("store.redis.write_timeout", "3s")

	v.SetDefault("store.postgres.dsn", "postgres://localhost:5432/priceguard?sslmode=disable")
	v.SetDefault("store.postgres.max_open_conns", 20)
	v.SetDefault("store.postgres.max_idle_conns", 5)
	v.SetDefault("store.postgres.conn_max_lifetime", "30m")

	v.SetDefault("notification.rate_limit.rate_per_hour", 100)
	v.SetDefault("notification.rate_limit.burst", 10)
	v.SetDefault("notification.rate_limit.dedup_window", "1h")
	v.SetDefault("notification.rate_limit.cleanup_interval", "10m")
	v.SetDefault("notification.daily_summary_hour", 9)
	v.SetDefault("notification.sweep_interval", "5m")
	v.SetDefault("notification.sweep_batch_size", 100)
	v.SetDefault("notification.retry_sweep_interval", "5m")
	v.SetDefault("notification.email.from_name", "PriceGuard")
	v.SetDefault("notification.email.subject", "Price alert")
	v.SetDefault("notification.push.title", "PriceGuard alert")

	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.json_format", true)
	v.SetDefault("observability.logging.service", "priceguard")
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.port", 9090)
	v.SetDefault("observability.metrics.path", "/metrics")

	v.SetDefault("eventbus.backend", "memory")
	kb := eventbus.DefaultConfig()
	v.SetDefault("eventbus.kafka.brokers", kb.Brokers)
	v.SetDefault("eventbus.kafka.topic", kb.Topic)
	v.SetDefault("eventbus.kafka.consumer_group", kb.ConsumerGroup)
	v.SetDefault("eventbus.kafka.retry_max", kb.RetryMax)
}

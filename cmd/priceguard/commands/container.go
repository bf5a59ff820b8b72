// Package commands wires PriceGuard's subsystems into a runnable
// cobra CLI: `serve` runs the long-lived daemon, `schedule-once` drives
// a single scheduling pass for cron-style external invocation, and
// `migrate` applies the relational schema.
package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	alertpg "github.com/DimaJoyti/priceguard/internal/alerts/repository/postgres"
	"github.com/DimaJoyti/priceguard/internal/alerts/ruleengine"
	"github.com/DimaJoyti/priceguard/internal/config"
	"github.com/DimaJoyti/priceguard/internal/monitoring/analyzer"
	"github.com/DimaJoyti/priceguard/internal/monitoring/dispatcher"
	"github.com/DimaJoyti/priceguard/internal/monitoring/extraction"
	monitoringrepo "github.com/DimaJoyti/priceguard/internal/monitoring/repository"
	"github.com/DimaJoyti/priceguard/internal/monitoring/scheduler"
	"github.com/DimaJoyti/priceguard/internal/notifications/channels"
	"github.com/DimaJoyti/priceguard/internal/notifications/engagement"
	notifpg "github.com/DimaJoyti/priceguard/internal/notifications/repository/postgres"
	"github.com/DimaJoyti/priceguard/internal/notifications/pipeline"
	"github.com/DimaJoyti/priceguard/pkg/eventbus"
	"github.com/DimaJoyti/priceguard/pkg/logger"
	"github.com/DimaJoyti/priceguard/pkg/metrics"
	"github.com/DimaJoyti/priceguard/pkg/ratelimit"

	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
)

// Container holds every wired dependency a PriceGuard subcommand needs.
// serve and schedule-once both build one from the same configuration so
// the two entrypoints never drift in how they construct the system.
type Container struct {
	Config *config.Config
	Logger *zap.Logger

	Redis    *redis.Client
	Postgres *sqlx.DB
	Events   eventBus
	Metrics  *metrics.Registry

	Scheduler  *scheduler.Scheduler
	Dispatcher *dispatcher.Dispatcher
	Analyzer   *analyzer.Analyzer
	RuleEngine *ruleengine.Engine
	Pipeline   *pipeline.Pipeline
	Engagement *engagement.Service
}

// eventBus is the subset of eventbus.Publisher/Subscriber the container
// needs to both publish Analyzer events and drive the Rule Engine.
type eventBus interface {
	eventbus.Publisher
	eventbus.Subscriber
}

// NewContainer connects to Redis/Postgres, builds the event bus, and
// wires every domain service. Callers must call Close when done.
func NewContainer(cfg *config.Config) (*Container, error) {
	zapLogger, err := logger.New(cfg.Observability.Logging)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	redisClient, err := newRedisClient(cfg.Store.Redis)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	pg, err := newPostgres(cfg.Store.Postgres)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	bus, err := newEventBus(cfg.EventBus, zapLogger)
	if err != nil {
		return nil, fmt.Errorf("build event bus: %w", err)
	}

	c := &Container{Config: cfg, Logger: zapLogger, Redis: redisClient, Postgres: pg, Events: bus, Metrics: metrics.New()}
	c.wireServices()
	return c, nil
}

func newRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opt.Password = cfg.Password
	opt.DB = cfg.DB
	opt.PoolSize = cfg.PoolSize
	opt.DialTimeout = cfg.DialTimeout
	opt.ReadTimeout = cfg.ReadTimeout
	opt.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func newPostgres(cfg config.PostgresConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return db, nil
}

func newEventBus(cfg config.EventBusConfig, log *zap.Logger) (eventBus, error) {
	if cfg.Backend == "kafka" {
		pub, err := eventbus.NewKafkaPublisher(cfg.Kafka, log)
		if err != nil {
			return nil, err
		}
		sub, err := eventbus.NewKafkaSubscriber(cfg.Kafka, log)
		if err != nil {
			return nil, err
		}
		return &kafkaBus{pub, sub}, nil
	}
	return eventbus.NewInMemory(), nil
}

// kafkaBus composes a KafkaPublisher and KafkaSubscriber into one
// eventBus value; they share the topic/broker configuration but are
// otherwise independent connections.
type kafkaBus struct {
	*eventbus.KafkaPublisher
	*eventbus.KafkaSubscriber
}

func (b *kafkaBus) Close() error {
	pubErr := b.KafkaPublisher.Close()
	subErr := b.KafkaSubscriber.Close()
	if pubErr != nil {
		return pubErr
	}
	return subErr
}

func (c *Container) wireServices() {
	cfg := c.Config
	log := c.Logger

	products := monitoringrepo.NewRedisProductRepository(c.Redis, log)
	configs := monitoringrepo.NewRedisConfigRepository(c.Redis, log)
	tasks := monitoringrepo.NewRedisTaskRepository(c.Redis, log)
	observations := monitoringrepo.NewRedisObservationRepository(c.Redis, log)
	views := monitoringrepo.NewRedisViewRepository(c.Redis)
	counters := monitoringrepo.NewRedisRetailerCounters(c.Redis)

	rules := alertpg.NewRuleRepository(c.Postgres)
	alertsRepo := alertpg.NewAlertRepository(c.Postgres)

	notifications := notifpg.New(c.Postgres, log)

	limiter := ratelimit.New(cfg.Notification.RateLimit)

	registry := channels.NewRegistry()
	registry.Register("email", channels.NewEmailAdapter(channels.EmailConfig{
		APIKey:   cfg.Notification.Email.APIKey,
		FromAddr: cfg.Notification.Email.FromAddr,
		FromName: cfg.Notification.Email.FromName,
		Subject:  cfg.Notification.Email.Subject,
	}, func(userID string) string {
		email, err := notifications.Email(context.Background(), userID)
		if err != nil {
			log.Warn("resolve user email failed", zap.String("user_id", userID), zap.Error(err))
		}
		return email
	}, log))
	registry.Register("in_app", channels.NewInAppAdapter(notifications, time.Now, log))
	if pushAdapter, err := newPushAdapter(cfg, notifications, log); err != nil {
		log.Warn("push channel unavailable, continuing without it", zap.Error(err))
	} else {
		registry.Register("push", pushAdapter)
	}

	history := scheduler.NewRedisHistoryProvider(observations, views, rules)

	c.Scheduler = scheduler.New(products, configs, tasks, history, log)
	c.Analyzer = analyzer.New(products, configs, observations, c.Events, log)
	c.Dispatcher = dispatcher.New(tasks, products, counters, extraction.NewRegistry(), c.Analyzer, cfg.Dispatcher.ToDispatcherConfig(), log)
	c.Pipeline = pipeline.New(notifications, notifications, alertsRepo, notifications, registry, limiter, log)
	c.RuleEngine = ruleengine.New(rules, alertsRepo, c.Pipeline, log)
	c.Engagement = engagement.New(notifications, notifications, uuid.NewString, log)
}

func newPushAdapter(cfg *config.Config, notifications *notifpg.Repository, log *zap.Logger) (*channels.PushAdapter, error) {
	if cfg.Notification.Push.CredentialsFile == "" {
		return nil, fmt.Errorf("push.credentials_file not configured")
	}
	ctx := context.Background()
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.Notification.Push.ProjectID},
		option.WithCredentialsFile(cfg.Notification.Push.CredentialsFile))
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	return channels.NewPushAdapter(ctx, app, cfg.Notification.Push.Title, func(userID string) string {
		token, err := notifications.PushToken(context.Background(), userID)
		if err != nil {
			log.Warn("resolve push token failed", zap.String("user_id", userID), zap.Error(err))
		}
		return token
	}, log)
}

// Close releases every connection the container opened.
func (c *Container) Close() error {
	var firstErr error
	if err := c.Events.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := c.Postgres.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := c.Redis.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

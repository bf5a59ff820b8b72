package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks a loaded Config for internally-consistent values,
// aggregating every violation into one error.
func Validate(cfg *Config) error {
	var errs []string

	validEnvs := []string{"development", "staging", "production"}
	if !contains(validEnvs, cfg.Environment) {
		errs = append(errs, fmt.Sprintf("environment must be one of: %s", strings.Join(validEnvs, ", ")))
	}

	if err := validateScheduler(&cfg.Scheduler); err != nil {
		errs = append(errs, fmt.Sprintf("scheduler: %v", err))
	}
	if err := validateDispatcher(&cfg.Dispatcher); err != nil {
		errs = append(errs, fmt.Sprintf("dispatcher: %v", err))
	}
	if err := validateStore(&cfg.Store); err != nil {
		errs = append(errs, fmt.Sprintf("store: %v", err))
	}
	if err := validateNotification(&cfg.Notification); err != nil {
		errs = append(errs, fmt.Sprintf("notification: %v", err))
	}
	if err := validateObservability(&cfg.Observability); err != nil {
		errs = append(errs, fmt.Sprintf("observability: %v", err))
	}
	if err := validateEventBus(&cfg.EventBus); err != nil {
		errs = append(errs, fmt.Sprintf("eventbus: %v", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateScheduler(cfg *SchedulerConfig) error {
	var errs []string
	if cfg.ScheduleInterval <= 0 {
		errs = append(errs, "schedule_interval must be positive")
	}
	if cfg.ScheduleBatchSize <= 0 {
		errs = append(errs, "schedule_batch_size must be positive")
	}
	if cfg.PriorityRefreshInterval <= 0 {
		errs = append(errs, "priority_refresh_interval must be positive")
	}
	if cfg.PriorityRefreshBatchSize <= 0 {
		errs = append(errs, "priority_refresh_batch_size must be positive")
	}
	if cfg.MaxTasksPerRetailerHour <= 0 {
		errs = append(errs, "max_tasks_per_retailer_hour must be positive")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateDispatcher(cfg *DispatcherConfig) error {
	var errs []string
	if cfg.CycleInterval <= 0 {
		errs = append(errs, "cycle_interval must be positive")
	}
	if cfg.MaxTasksPerCycle <= 0 {
		errs = append(errs, "max_tasks_per_cycle must be positive")
	}
	if cfg.DefaultCeiling <= 0 {
		errs = append(errs, "default_ceiling must be positive")
	}
	if cfg.High.MaxWorkers < cfg.High.MinWorkers || cfg.High.MinWorkers <= 0 {
		errs = append(errs, "high lane worker bounds are invalid")
	}
	if cfg.Normal.MaxWorkers < cfg.Normal.MinWorkers || cfg.Normal.MinWorkers <= 0 {
		errs = append(errs, "normal lane worker bounds are invalid")
	}
	if cfg.Low.MaxWorkers < cfg.Low.MinWorkers || cfg.Low.MinWorkers <= 0 {
		errs = append(errs, "low lane worker bounds are invalid")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateStore(cfg *StoreConfig) error {
	var errs []string
	if cfg.Redis.URL == "" {
		errs = append(errs, "redis.url is required")
	}
	if cfg.Redis.PoolSize <= 0 {
		errs = append(errs, "redis.pool_size must be positive")
	}
	if cfg.Postgres.DSN == "" {
		errs = append(errs, "postgres.dsn is required")
	}
	if cfg.Postgres.MaxOpenConns <= 0 {
		errs = append(errs, "postgres.max_open_conns must be positive")
	}
	if cfg.Postgres.MaxIdleConns < 0 || cfg.Postgres.MaxIdleConns > cfg.Postgres.MaxOpenConns {
		errs = append(errs, "postgres.max_idle_conns must be between 0 and max_open_conns")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateNotification(cfg *NotificationConfig) error {
	var errs []string
	if cfg.RateLimit.RatePerHour <= 0 {
		errs = append(errs, "rate_limit.rate_per_hour must be positive")
	}
	if cfg.RateLimit.Burst <= 0 {
		errs = append(errs, "rate_limit.burst must be positive")
	}
	if cfg.RateLimit.DedupWindow <= 0 {
		errs = append(errs, "rate_limit.dedup_window must be positive")
	}
	if cfg.DailySummaryHour < 0 || cfg.DailySummaryHour > 23 {
		errs = append(errs, "daily_summary_hour must be between 0 and 23")
	}
	if cfg.SweepInterval <= 0 {
		errs = append(errs, "sweep_interval must be positive")
	}
	if cfg.SweepBatchSize <= 0 {
		errs = append(errs, "sweep_batch_size must be positive")
	}
	if cfg.RetrySweepInterval <= 0 {
		errs = append(errs, "retry_sweep_interval must be positive")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateObservability(cfg *ObservabilityConfig) error {
	var errs []string
	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, string(cfg.Logging.Level)) {
		errs = append(errs, fmt.Sprintf("logging.level must be one of: %s", strings.Join(validLevels, ", ")))
	}
	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			errs = append(errs, "metrics.port must be between 1 and 65535 when metrics are enabled")
		}
		if cfg.Metrics.Path == "" {
			errs = append(errs, "metrics.path is required when metrics are enabled")
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateEventBus(cfg *EventBusConfig) error {
	validBackends := []string{"memory", "kafka"}
	if !contains(validBackends, cfg.Backend) {
		return fmt.Errorf("backend must be one of: %s", strings.Join(validBackends, ", "))
	}
	if cfg.Backend == "kafka" && len(cfg.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when backend is kafka")
	}
	return nil
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

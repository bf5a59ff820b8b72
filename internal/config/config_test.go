package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_AppliesDefaultsAndValidates(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 200, cfg.Scheduler.ScheduleBatchSize)
	assert.Equal(t, 100, cfg.Dispatcher.MaxTasksPerCycle)
	assert.Equal(t, 20, cfg.Dispatcher.RetailerCeilings["amazon"])
	assert.Equal(t, 100.0, cfg.Notification.RateLimit.RatePerHour)
	assert.Equal(t, 9, cfg.Notification.DailySummaryHour)
	assert.True(t, cfg.Observability.Metrics.Enabled)
}

func TestValidate_RejectsUnknownEnvironment(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	cfg.Environment = "sandbox"
	err = Validate(cfg)
	assert.ErrorContains(t, err, "environment")
}

func TestValidate_RejectsNonPositiveIntervals(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	cfg.Scheduler.ScheduleInterval = 0
	err = Validate(cfg)
	assert.ErrorContains(t, err, "schedule_interval")
}

func TestValidate_RejectsInvertedLaneWorkerBounds(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	cfg.Dispatcher.High.MinWorkers = 8
	cfg.Dispatcher.High.MaxWorkers = 2
	err = Validate(cfg)
	assert.ErrorContains(t, err, "high lane")
}

func TestValidate_RejectsOutOfRangeDailySummaryHour(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	cfg.Notification.DailySummaryHour = 24
	err = Validate(cfg)
	assert.ErrorContains(t, err, "daily_summary_hour")
}

func TestValidate_RejectsInvalidMetricsPortWhenEnabled(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	cfg.Observability.Metrics.Enabled = true
	cfg.Observability.Metrics.Port = 0
	err = Validate(cfg)
	assert.ErrorContains(t, err, "metrics.port")
}

func TestValidate_RejectsUnknownEventBusBackend(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	cfg.EventBus.Backend = "rabbitmq"
	err = Validate(cfg)
	assert.ErrorContains(t, err, "backend")
}

func TestValidate_RejectsKafkaBackendWithNoBrokers(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	cfg.EventBus.Backend = "kafka"
	cfg.EventBus.Kafka.Brokers = nil
	err = Validate(cfg)
	assert.ErrorContains(t, err, "brokers")
}

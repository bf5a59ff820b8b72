package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/DimaJoyti/priceguard/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the PriceGuard daemon",
	Long: `serve starts every periodic driver PriceGuard needs in one process:
the Scheduler (due-product selection and priority refresh; load
distribution is not run), the Dispatcher's lane worker pools and admission cycle,
the Rule Engine subscribed to Analyzer events, and the Notification
Pipeline's pending-batch and retry sweeps. It runs until SIGINT/SIGTERM.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log := container.Logger
	cfg := container.Config

	if err := container.Events.Subscribe(ctx, container.RuleEngine.Handle); err != nil {
		return err
	}

	if err := container.Dispatcher.Start(); err != nil {
		return err
	}

	var wg sync.WaitGroup

	if cfg.Observability.Metrics.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runMetricsServer(ctx, cfg.Observability.Metrics, log)
		}()
	}

	drivers := []struct {
		name     string
		interval time.Duration
		run      func(context.Context)
	}{
		{"schedule-due-products", cfg.Scheduler.ScheduleInterval, func(ctx context.Context) {
			n, err := container.Scheduler.ScheduleDueProducts(ctx, cfg.Scheduler.ScheduleBatchSize)
			if err == nil {
				container.Metrics.TasksScheduled.WithLabelValues("all").Add(float64(n))
			}
			logCycle(log, "schedule-due-products", n, err)
		}},
		{"dispatch-cycle", cfg.Dispatcher.CycleInterval, func(ctx context.Context) {
			start := time.Now()
			n, err := container.Dispatcher.RunCycle(ctx)
			container.Metrics.ObserveDispatchCycle(start, n)
			logCycle(log, "dispatch-cycle", n, err)
		}},
		{"priority-refresh", cfg.Scheduler.PriorityRefreshInterval, func(ctx context.Context) {
			n, err := container.Scheduler.UpdatePriorities(ctx, cfg.Scheduler.PriorityRefreshBatchSize)
			logCycle(log, "priority-refresh", n, err)
		}},
		{"pending-batch-sweep", cfg.Notification.SweepInterval, func(ctx context.Context) {
			n, err := container.Pipeline.Sweep(ctx, cfg.Notification.SweepBatchSize)
			logCycle(log, "pending-batch-sweep", n, err)
		}},
		{"retry-sweep", cfg.Notification.RetrySweepInterval, func(ctx context.Context) {
			n, err := container.Pipeline.RetrySweep(ctx, cfg.Notification.SweepBatchSize)
			logCycle(log, "retry-sweep", n, err)
		}},
	}

	for _, d := range drivers {
		wg.Add(1)
		go func(name string, interval time.Duration, run func(context.Context)) {
			defer wg.Done()
			runOnTicker(ctx, name, interval, run)
		}(d.name, d.interval, d.run)
	}

	log.Info("priceguard serve started",
		zap.String("environment", cfg.Environment),
		zap.String("eventbus_backend", cfg.EventBus.Backend))

	<-ctx.Done()
	log.Info("shutdown signal received, draining")

	if err := container.Dispatcher.Stop(); err != nil {
		log.Error("dispatcher stop failed", zap.Error(err))
	}
	wg.Wait()
	return nil
}

// runOnTicker runs fn immediately and then every interval until ctx is
// canceled, so serve's first pass isn't delayed a full interval after
// a restart.
func runOnTicker(ctx context.Context, name string, interval time.Duration, fn func(context.Context)) {
	fn(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

func logCycle(log *zap.Logger, name string, n int, err error) {
	if err != nil {
		log.Error("driver cycle failed", zap.String("driver", name), zap.Error(err))
		return
	}
	log.Debug("driver cycle complete", zap.String("driver", name), zap.Int("count", n))
}

// runMetricsServer serves /metrics until ctx is canceled, then shuts
// down gracefully.
func runMetricsServer(ctx context.Context, cfg config.MetricsConfig, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, container.Metrics.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("metrics server shutdown error", zap.Error(err))
		}
	}()

	log.Info("metrics server listening", zap.Int("port", cfg.Port), zap.String("path", cfg.Path))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("metrics server failed", zap.Error(err))
	}
}

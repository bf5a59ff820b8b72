package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var scheduleOnceCmd = &cobra.Command{
	Use:   "schedule-once",
	Short: "Run a single scheduling pass and exit",
	Long: `schedule-once drives one round of scheduleDueProducts and priority
refresh, then exits; it does not run load distribution. It is meant for external
cron invocation instead of running serve's own internal tickers.`,
	RunE: runScheduleOnce,
}

func runScheduleOnce(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := container.Config

	scheduled, err := container.Scheduler.ScheduleDueProducts(ctx, cfg.Scheduler.ScheduleBatchSize)
	if err != nil {
		return fmt.Errorf("schedule due products: %w", err)
	}

	refreshed, err := container.Scheduler.UpdatePriorities(ctx, cfg.Scheduler.PriorityRefreshBatchSize)
	if err != nil {
		return fmt.Errorf("update priorities: %w", err)
	}

	container.Logger.Info("schedule-once complete",
		zap.Int("scheduled", scheduled),
		zap.Int("priorities_refreshed", refreshed))
	return nil
}

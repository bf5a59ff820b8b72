// Package scheduler selects due products, creates Task records, and
// periodically rebalances priorities and diurnal load. It never talks to
// an Extractor; all I/O is through the repository ports.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DimaJoyti/priceguard/internal/monitoring/domain"
	"github.com/DimaJoyti/priceguard/internal/monitoring/repository"
	"github.com/DimaJoyti/priceguard/internal/monitoring/scoring"
)

// Clock abstracts wall time so tests can control "now" without sleeping.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock, backed by time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// HistoryProvider resolves the scoring inputs a product needs: recent
// price history and popularity signals. Kept as a narrow port so the
// scheduler doesn't depend on the analyzer's observation store directly.
type HistoryProvider interface {
	RecentPrices(ctx context.Context, productID string, since time.Time) ([]scoring.PricePoint, error)
	Popularity(ctx context.Context, productID string) (scoring.PopularitySignal, error)
}

// Scheduler implements the scheduleDueProducts / scheduleImmediate /
// updatePriorities / distributeLoad operations.
type Scheduler struct {
	products ProductReader
	configs  repository.ConfigRepository
	tasks    repository.TaskRepository
	history  HistoryProvider
	weights  scoring.Weights
	clock    Clock
	logger   *zap.Logger
}

// ProductReader is the subset of ProductRepository the scheduler needs.
type ProductReader interface {
	GetByID(ctx context.Context, id string) (*domain.Product, error)
}

func New(
	products ProductReader,
	configs repository.ConfigRepository,
	tasks repository.TaskRepository,
	history HistoryProvider,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		products: products,
		configs:  configs,
		tasks:    tasks,
		history:  history,
		weights:  scoring.DefaultWeights(),
		clock:    SystemClock{},
		logger:   logger.Named(loggerComponent),
	}
}

const loggerComponent = "scheduler"

// ScheduleDueProducts selects up to batchSize active configs with
// nextScheduled <= now, creates a Task for each, and advances
// nextScheduled. Returns the count scheduled.
//
// DueForScheduling is a plain read: two overlapping runs (serve's own
// ticker and a schedule-once cron invocation, say) can both select the
// same config before either advances nextScheduled. ClaimDue closes that
// window by atomically removing the candidates from the due set first,
// so a run only creates a Task for the products it actually won; a
// config it loses stays in the due set for the next scan to pick up.
func (s *Scheduler) ScheduleDueProducts(ctx context.Context, batchSize int) (int, error) {
	now := s.clock.Now()
	due, err := s.configs.DueForScheduling(ctx, now, batchSize)
	if err != nil {
		return 0, fmt.Errorf("scheduler: list due configs: %w", err)
	}

	claimed, err := s.claim(ctx, due)
	if err != nil {
		return 0, fmt.Errorf("scheduler: claim due configs: %w", err)
	}

	scheduled := 0
	for _, cfg := range claimed {
		task := domain.NewTask(uuid.NewString(), cfg.ProductID, scoring.RoundToPriority(cfg.PriorityScore), now)
		if err := s.tasks.Save(ctx, task); err != nil {
			s.logger.Error("failed to persist scheduled task", zap.String("product_id", cfg.ProductID), zap.Error(err))
			s.restoreClaim(ctx, cfg)
			continue
		}

		cfg.NextScheduled = timePtr(now.Add(cfg.Interval()))
		if err := s.configs.Save(ctx, cfg); err != nil {
			s.logger.Error("failed to advance next_scheduled", zap.String("product_id", cfg.ProductID), zap.Error(err))
			continue
		}
		scheduled++
	}

	s.logger.Info("scheduled due products", zap.Int("count", scheduled))
	return scheduled, nil
}

// restoreClaim re-inserts a config this run claimed but then failed to
// schedule back into the due set at its original nextScheduled, so the
// claim isn't lost outright and a later scan can retry it.
func (s *Scheduler) restoreClaim(ctx context.Context, cfg *domain.MonitoringConfig) {
	if err := s.configs.Save(ctx, cfg); err != nil {
		s.logger.Error("failed to restore lost claim to due set", zap.String("product_id", cfg.ProductID), zap.Error(err))
	}
}

// claim atomically narrows due down to the configs this call actually won
// against any concurrent scheduling run, preserving due's order.
func (s *Scheduler) claim(ctx context.Context, due []*domain.MonitoringConfig) ([]*domain.MonitoringConfig, error) {
	if len(due) == 0 {
		return nil, nil
	}

	ids := make([]string, len(due))
	for i, cfg := range due {
		ids[i] = cfg.ProductID
	}

	won, err := s.configs.ClaimDue(ctx, ids)
	if err != nil {
		return nil, err
	}
	wonSet := make(map[string]struct{}, len(won))
	for _, id := range won {
		wonSet[id] = struct{}{}
	}

	claimed := make([]*domain.MonitoringConfig, 0, len(won))
	for _, cfg := range due {
		if _, ok := wonSet[cfg.ProductID]; ok {
			claimed = append(claimed, cfg)
		} else {
			s.logger.Debug("lost due-config claim to a concurrent run", zap.String("product_id", cfg.ProductID))
		}
	}
	return claimed, nil
}

// ScheduleImmediate creates a Task unconditionally for productID. If no
// MonitoringConfig exists yet, a default one is created first. priority
// overrides the config's priority score when non-nil.
func (s *Scheduler) ScheduleImmediate(ctx context.Context, productID string, priority *int) (*domain.Task, error) {
	cfg, err := s.configs.GetByProductID(ctx, productID)
	if err != nil {
		cfg = domain.DefaultConfig(productID)
		if err := s.configs.Save(ctx, cfg); err != nil {
			return nil, fmt.Errorf("scheduler: create default config: %w", err)
		}
	}

	p := scoring.RoundToPriority(cfg.PriorityScore)
	if priority != nil {
		p = *priority
	}

	task := domain.NewTask(uuid.NewString(), productID, p, s.clock.Now())
	if err := s.tasks.Save(ctx, task); err != nil {
		return nil, fmt.Errorf("scheduler: persist immediate task: %w", err)
	}
	return task, nil
}

// UpdatePriorities recomputes priorityScore for up to batchSize active
// configs via the Scorer and persists the changed ones.
func (s *Scheduler) UpdatePriorities(ctx context.Context, batchSize int) (int, error) {
	configs, err := s.configs.Active(ctx, 0, batchSize)
	if err != nil {
		return 0, fmt.Errorf("scheduler: list active configs: %w", err)
	}

	now := s.clock.Now()
	updated := 0
	for _, cfg := range configs {
		product, err := s.products.GetByID(ctx, cfg.ProductID)
		if err != nil {
			s.logger.Warn("skipping priority refresh for missing product", zap.String("product_id", cfg.ProductID), zap.Error(err))
			continue
		}

		prices, err := s.history.RecentPrices(ctx, cfg.ProductID, now.AddDate(0, 0, -30))
		if err != nil {
			s.logger.Warn("failed to load recent prices", zap.String("product_id", cfg.ProductID), zap.Error(err))
			prices = nil
		}
		popularity, err := s.history.Popularity(ctx, cfg.ProductID)
		if err != nil {
			s.logger.Warn("failed to load popularity signal", zap.String("product_id", cfg.ProductID), zap.Error(err))
		}

		score, err := scoring.Score(scoring.Input{
			RecentPrices:  prices,
			Popularity:    popularity,
			CurrentPrice:  product.CurrentPrice.Float64(),
			LastCheckedAt: cfg.LastMonitored,
			ManualBoost:   cfg.ManualPriorityBoost,
			Now:           now,
		}, s.weights)
		if err != nil {
			s.logger.Warn("scoring failed", zap.String("product_id", cfg.ProductID), zap.Error(err))
			continue
		}

		if score == cfg.PriorityScore {
			continue
		}
		cfg.PriorityScore = score
		if err := s.configs.Save(ctx, cfg); err != nil {
			s.logger.Error("failed to persist refreshed priority", zap.String("product_id", cfg.ProductID), zap.Error(err))
			continue
		}
		updated++
	}

	s.logger.Info("updated priorities", zap.Int("count", updated))
	return updated, nil
}

// DistributeLoad buckets the due configs for the given date across the 24
// hours of that day, probing outward from each config's preferred hour
// when it is already at maxPerHour.
func (s *Scheduler) DistributeLoad(ctx context.Context, maxPerHour int, date time.Time) (int, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.Add(24 * time.Hour)

	countsByHour, err := s.tasks.CountByHour(ctx, dayStart)
	if err != nil {
		return 0, fmt.Errorf("scheduler: load hour counts: %w", err)
	}

	due, err := s.configs.DueForScheduling(ctx, dayEnd, 10000)
	if err != nil {
		return 0, fmt.Errorf("scheduler: list due configs for distribution: %w", err)
	}

	claimed, err := s.claim(ctx, due)
	if err != nil {
		return 0, fmt.Errorf("scheduler: claim due configs for distribution: %w", err)
	}

	created := 0
	for _, cfg := range claimed {
		preferredHour := cfg.NextScheduled.Hour()
		bestHour, ok := findBestHour(countsByHour, preferredHour, maxPerHour)
		if !ok {
			s.logger.Warn("unable to schedule product: all hours full", zap.String("product_id", cfg.ProductID))
			s.restoreClaim(ctx, cfg)
			continue
		}

		scheduledTime := dayStart.Add(time.Duration(bestHour) * time.Hour)
		task := domain.NewTask(uuid.NewString(), cfg.ProductID, scoring.RoundToPriority(cfg.PriorityScore), scheduledTime)
		if err := s.tasks.Save(ctx, task); err != nil {
			s.logger.Error("failed to persist distributed task", zap.String("product_id", cfg.ProductID), zap.Error(err))
			s.restoreClaim(ctx, cfg)
			continue
		}
		countsByHour[bestHour]++

		cfg.NextScheduled = timePtr(s.clock.Now().Add(cfg.Interval()))
		if err := s.configs.Save(ctx, cfg); err != nil {
			s.logger.Error("failed to advance next_scheduled after distribution", zap.String("product_id", cfg.ProductID), zap.Error(err))
			continue
		}
		created++
	}

	s.logger.Info("distributed load", zap.Int("count", created))
	return created, nil
}

// findBestHour tries preferredHour, then probes +/-1, +/-2, ... up to
// +/-11 hours, returning the first hour with room under maxPerHour.
func findBestHour(countsByHour map[int]int, preferredHour, maxPerHour int) (int, bool) {
	if countsByHour[preferredHour] < maxPerHour {
		return preferredHour, true
	}
	for offset := 1; offset < 12; offset++ {
		plus := ((preferredHour+offset)%24 + 24) % 24
		if countsByHour[plus] < maxPerHour {
			return plus, true
		}
		minus := ((preferredHour-offset)%24 + 24) % 24
		if countsByHour[minus] < maxPerHour {
			return minus, true
		}
	}
	return 0, false
}

func timePtr(t time.Time) *time.Time { return &t }

// Package repository declares the persistence ports the monitoring
// services depend on. The Redis adapters live in this same package
// (redis.go); services accept these interfaces so they can be exercised
// against in-memory fakes in tests.
package repository

import (
	"context"
	"time"

	"github.com/DimaJoyti/priceguard/internal/monitoring/domain"
)

// ProductRepository persists Product rows. Saves are not serialized per
// product: the dispatcher holds no per-product lock around the
// Analyzer's update.
type ProductRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Product, error)
	Save(ctx context.Context, product *domain.Product) error
}

// ConfigRepository persists MonitoringConfig rows. DueForScheduling is a
// plain read and may return the same product to two concurrent callers
// (the serve ticker and an overlapping schedule-once cron run, say);
// ClaimDue is what makes only one of them actually win that product, so
// callers must claim before creating a Task or advancing nextScheduled.
type ConfigRepository interface {
	GetByProductID(ctx context.Context, productID string) (*domain.MonitoringConfig, error)
	Save(ctx context.Context, config *domain.MonitoringConfig) error
	// DueForScheduling returns up to limit active configs with
	// nextScheduled <= asOf, ordered by priority score then nextScheduled.
	DueForScheduling(ctx context.Context, asOf time.Time, limit int) ([]*domain.MonitoringConfig, error)
	// ClaimDue atomically removes productIDs from the due set and returns
	// the subset that were actually present, i.e. the ones this call won.
	// A product missing from the result lost the claim to a concurrent
	// caller and must be skipped, not retried, this cycle.
	ClaimDue(ctx context.Context, productIDs []string) ([]string, error)
	// Active returns up to limit active configs for a priority-refresh pass.
	Active(ctx context.Context, offset, limit int) ([]*domain.MonitoringConfig, error)
}

// TaskRepository persists Task rows, the source of truth for work in
// flight: an in-memory queue is an optimization layered on top, not a
// replacement.
type TaskRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Task, error)
	Save(ctx context.Context, task *domain.Task) error
	// Pending returns up to limit pending tasks ordered by
	// (priority, scheduledTime, id).
	Pending(ctx context.Context, limit int) ([]*domain.Task, error)
	// CountByHour returns the number of tasks already scheduled in [start,
	// start+24h) bucketed by hour-of-day, for distributeLoad's probing.
	CountByHour(ctx context.Context, dayStart time.Time) (map[int]int, error)
}

// ObservationRepository persists ObservationResult rows.
type ObservationRepository interface {
	Save(ctx context.Context, obs *domain.ObservationResult) error
	// LatestForProduct returns the most recent ObservationResult for a
	// product, or nil if none exists yet.
	LatestForProduct(ctx context.Context, productID string) (*domain.ObservationResult, error)
	// RecentSince returns every ObservationResult for a product observed
	// at or after since, oldest first. Feeds the Scorer's volatility
	// factor via scheduler.HistoryProvider.
	RecentSince(ctx context.Context, productID string, since time.Time) ([]*domain.ObservationResult, error)
}

// ViewRepository counts product-detail views, the engagement half of the
// Scorer's popularity factor.
type ViewRepository interface {
	Increment(ctx context.Context, productID string) error
	Count(ctx context.Context, productID string) (int, error)
}

// RetailerCounters tracks the live running-task count per retailer the
// Dispatcher's admission pass checks against ceilings.
type RetailerCounters interface {
	// Increment attempts to admit one more running task for retailer,
	// returning false if ceiling would be exceeded.
	Increment(ctx context.Context, retailer string, ceiling int) (bool, error)
	Decrement(ctx context.Context, retailer string) error
	Running(ctx context.Context, retailer string) (int, error)
}

package scheduler

import (
	"context"
	"time"

	"github.com/DimaJoyti/priceguard/internal/monitoring/repository"
	"github.com/DimaJoyti/priceguard/internal/monitoring/scoring"
)

// historyWindow bounds how far back RecentPrices looks, matching the
// Scorer's documented "last 30 days" volatility input.
const historyWindow = 30 * 24 * time.Hour

// RuleEngagementSource resolves how many active alert rules watch a
// product. It is a narrow port rather than a dependency on the alerts
// package directly: the scheduler lives below the alert rule engine in
// the dependency graph, so the concrete adapter is wired from cmd/priceguard
// instead of imported here.
type RuleEngagementSource interface {
	CountActiveForProduct(ctx context.Context, productID string) (int, error)
}

// RedisHistoryProvider implements HistoryProvider against the monitoring
// subsystem's ObservationRepository/ViewRepository, plus an injected
// RuleEngagementSource for the popularity factor's rule-count input.
type RedisHistoryProvider struct {
	observations repository.ObservationRepository
	views        repository.ViewRepository
	rules        RuleEngagementSource
	clock        Clock
}

// NewRedisHistoryProvider builds a HistoryProvider. rules may be nil, in
// which case ActiveAlertRules is always reported as zero.
func NewRedisHistoryProvider(observations repository.ObservationRepository, views repository.ViewRepository, rules RuleEngagementSource) *RedisHistoryProvider {
	return &RedisHistoryProvider{observations: observations, views: views, rules: rules, clock: SystemClock{}}
}

// RecentPrices returns up to the last 30 days of observed prices, oldest
// first, for the volatility factor.
func (p *RedisHistoryProvider) RecentPrices(ctx context.Context, productID string, since time.Time) ([]scoring.PricePoint, error) {
	if since.IsZero() {
		since = p.clock.Now().Add(-historyWindow)
	}
	obs, err := p.observations.RecentSince(ctx, productID, since)
	if err != nil {
		return nil, err
	}
	points := make([]scoring.PricePoint, 0, len(obs))
	for _, o := range obs {
		points = append(points, scoring.PricePoint{
			Price:     o.CurrentPrice.Float64(),
			Timestamp: o.ObservedAt,
		})
	}
	return points, nil
}

// Popularity combines the view counter with the active-rule count.
func (p *RedisHistoryProvider) Popularity(ctx context.Context, productID string) (scoring.PopularitySignal, error) {
	views, err := p.views.Count(ctx, productID)
	if err != nil {
		return scoring.PopularitySignal{}, err
	}

	var ruleCount int
	if p.rules != nil {
		ruleCount, err = p.rules.CountActiveForProduct(ctx, productID)
		if err != nil {
			return scoring.PopularitySignal{}, err
		}
	}

	return scoring.PopularitySignal{ActiveAlertRules: ruleCount, Views: views}, nil
}

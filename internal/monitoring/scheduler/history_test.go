package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/DimaJoyti/priceguard/internal/monitoring/domain"
	"github.com/DimaJoyti/priceguard/pkg/money"
)

type mockObservations struct{ mock.Mock }

func (m *mockObservations) Save(ctx context.Context, obs *domain.ObservationResult) error {
	return m.Called(ctx, obs).Error(0)
}
func (m *mockObservations) LatestForProduct(ctx context.Context, productID string) (*domain.ObservationResult, error) {
	args := m.Called(ctx, productID)
	if o := args.Get(0); o != nil {
		return o.(*domain.ObservationResult), args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockObservations) RecentSince(ctx context.Context, productID string, since time.Time) ([]*domain.ObservationResult, error) {
	args := m.Called(ctx, productID, since)
	if o := args.Get(0); o != nil {
		return o.([]*domain.ObservationResult), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockViews struct{ mock.Mock }

func (m *mockViews) Increment(ctx context.Context, productID string) error {
	return m.Called(ctx, productID).Error(0)
}
func (m *mockViews) Count(ctx context.Context, productID string) (int, error) {
	args := m.Called(ctx, productID)
	return args.Int(0), args.Error(1)
}

type mockRuleEngagement struct{ mock.Mock }

func (m *mockRuleEngagement) CountActiveForProduct(ctx context.Context, productID string) (int, error) {
	args := m.Called(ctx, productID)
	return args.Int(0), args.Error(1)
}

func TestRecentPrices_MapsObservationsToPricePoints(t *testing.T) {
	observations := &mockObservations{}
	observedAt := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	observations.On("RecentSince", mock.Anything, "p1", mock.Anything).Return([]*domain.ObservationResult{
		{ProductID: "p1", ObservedAt: observedAt, CurrentPrice: money.NewFromFloat(19.99)},
	}, nil)

	provider := NewRedisHistoryProvider(observations, &mockViews{}, nil)
	points, err := provider.RecentPrices(context.Background(), "p1", time.Time{})
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, observedAt, points[0].Timestamp)
	assert.InDelta(t, 19.99, points[0].Price, 0.001)
}

func TestPopularity_CombinesViewsAndRuleEngagement(t *testing.T) {
	observations := &mockObservations{}
	views := &mockViews{}
	rules := &mockRuleEngagement{}

	views.On("Count", mock.Anything, "p1").Return(42, nil)
	rules.On("CountActiveForProduct", mock.Anything, "p1").Return(3, nil)

	provider := NewRedisHistoryProvider(observations, views, rules)
	signal, err := provider.Popularity(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 42, signal.Views)
	assert.Equal(t, 3, signal.ActiveAlertRules)
}

func TestPopularity_NilRuleEngagementSourceReportsZeroRules(t *testing.T) {
	views := &mockViews{}
	views.On("Count", mock.Anything, "p1").Return(7, nil)

	provider := NewRedisHistoryProvider(&mockObservations{}, views, nil)
	signal, err := provider.Popularity(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 7, signal.Views)
	assert.Equal(t, 0, signal.ActiveAlertRules)
}

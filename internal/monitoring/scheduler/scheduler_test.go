package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DimaJoyti/priceguard/internal/monitoring/domain"
	"github.com/DimaJoyti/priceguard/internal/monitoring/scoring"
)

type mockProducts struct{ mock.Mock }

func (m *mockProducts) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	args := m.Called(ctx, id)
	if p := args.Get(0); p != nil {
		return p.(*domain.Product), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockConfigs struct{ mock.Mock }

func (m *mockConfigs) GetByProductID(ctx context.Context, id string) (*domain.MonitoringConfig, error) {
	args := m.Called(ctx, id)
	if c := args.Get(0); c != nil {
		return c.(*domain.MonitoringConfig), args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockConfigs) Save(ctx context.Context, c *domain.MonitoringConfig) error {
	return m.Called(ctx, c).Error(0)
}
func (m *mockConfigs) DueForScheduling(ctx context.Context, asOf time.Time, limit int) ([]*domain.MonitoringConfig, error) {
	args := m.Called(ctx, asOf, limit)
	return args.Get(0).([]*domain.MonitoringConfig), args.Error(1)
}
func (m *mockConfigs) ClaimDue(ctx context.Context, productIDs []string) ([]string, error) {
	args := m.Called(ctx, productIDs)
	return args.Get(0).([]string), args.Error(1)
}
func (m *mockConfigs) Active(ctx context.Context, offset, limit int) ([]*domain.MonitoringConfig, error) {
	args := m.Called(ctx, offset, limit)
	return args.Get(0).([]*domain.MonitoringConfig), args.Error(1)
}

type mockTasks struct{ mock.Mock }

func (m *mockTasks) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(*domain.Task), args.Error(1)
}
func (m *mockTasks) Save(ctx context.Context, t *domain.Task) error {
	return m.Called(ctx, t).Error(0)
}
func (m *mockTasks) Pending(ctx context.Context, limit int) ([]*domain.Task, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]*domain.Task), args.Error(1)
}
func (m *mockTasks) CountByHour(ctx context.Context, dayStart time.Time) (map[int]int, error) {
	args := m.Called(ctx, dayStart)
	return args.Get(0).(map[int]int), args.Error(1)
}

type mockHistory struct{ mock.Mock }

func (m *mockHistory) RecentPrices(ctx context.Context, productID string, since time.Time) ([]scoring.PricePoint, error) {
	args := m.Called(ctx, productID, since)
	return args.Get(0).([]scoring.PricePoint), args.Error(1)
}
func (m *mockHistory) Popularity(ctx context.Context, productID string) (scoring.PopularitySignal, error) {
	args := m.Called(ctx, productID)
	return args.Get(0).(scoring.PopularitySignal), args.Error(1)
}

func TestScheduleDueProducts_CreatesTaskAndAdvancesSchedule(t *testing.T) {
	products := &mockProducts{}
	configs := &mockConfigs{}
	tasks := &mockTasks{}
	history := &mockHistory{}

	next := time.Now().Add(-time.Minute)
	cfg := &domain.MonitoringConfig{ProductID: "p1", Frequency: domain.FrequencyNormal, Active: true, PriorityScore: 3.0, NextScheduled: &next}

	configs.On("DueForScheduling", mock.Anything, mock.Anything, 10).Return([]*domain.MonitoringConfig{cfg}, nil)
	configs.On("ClaimDue", mock.Anything, []string{"p1"}).Return([]string{"p1"}, nil)
	tasks.On("Save", mock.Anything, mock.AnythingOfType("*domain.Task")).Return(nil)
	configs.On("Save", mock.Anything, cfg).Return(nil)

	s := New(products, configs, tasks, history, zap.NewNop())
	count, err := s.ScheduleDueProducts(context.Background(), 10)

	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.NotNil(t, cfg.NextScheduled)
	tasks.AssertExpectations(t)
	configs.AssertExpectations(t)
}

func TestScheduleImmediate_CreatesDefaultConfigWhenMissing(t *testing.T) {
	products := &mockProducts{}
	configs := &mockConfigs{}
	tasks := &mockTasks{}
	history := &mockHistory{}

	configs.On("GetByProductID", mock.Anything, "p2").Return(nil, assertAnyError())
	configs.On("Save", mock.Anything, mock.AnythingOfType("*domain.MonitoringConfig")).Return(nil)
	tasks.On("Save", mock.Anything, mock.AnythingOfType("*domain.Task")).Return(nil)

	s := New(products, configs, tasks, history, zap.NewNop())
	task, err := s.ScheduleImmediate(context.Background(), "p2", nil)

	require.NoError(t, err)
	assert.Equal(t, "p2", task.ProductID)
	assert.Equal(t, domain.TaskStatusPending, task.Status)
}

func TestFindBestHour_PrefersPreferredHourWhenRoom(t *testing.T) {
	hour, ok := findBestHour(map[int]int{}, 14, 10)
	assert.True(t, ok)
	assert.Equal(t, 14, hour)
}

func TestFindBestHour_ProbesOutwardWhenFull(t *testing.T) {
	counts := map[int]int{14: 10, 15: 10, 13: 10}
	hour, ok := findBestHour(counts, 14, 10)
	assert.True(t, ok)
	assert.Equal(t, 16, hour)
}

func TestFindBestHour_AllFullReturnsFalse(t *testing.T) {
	counts := make(map[int]int)
	for h := 0; h < 24; h++ {
		counts[h] = 10
	}
	_, ok := findBestHour(counts, 5, 10)
	assert.False(t, ok)
}

func assertAnyError() error { return context.DeadlineExceeded }

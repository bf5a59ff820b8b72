package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DimaJoyti/priceguard/internal/monitoring/domain"
	"github.com/DimaJoyti/priceguard/internal/monitoring/extraction"
	"github.com/DimaJoyti/priceguard/pkg/concurrency"
)

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

type mockProducts struct{ mock.Mock }

func (m *mockProducts) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(*domain.Product), args.Error(1)
}

type mockCounters struct{ mock.Mock }

func (m *mockCounters) Increment(ctx context.Context, retailer string, ceiling int) (bool, error) {
	args := m.Called(ctx, retailer, ceiling)
	return args.Bool(0), args.Error(1)
}
func (m *mockCounters) Decrement(ctx context.Context, retailer string) error {
	return m.Called(ctx, retailer).Error(0)
}
func (m *mockCounters) Running(ctx context.Context, retailer string) (int, error) {
	args := m.Called(ctx, retailer)
	return args.Int(0), args.Error(1)
}

type mockAnalyzer struct{ mock.Mock }

func (m *mockAnalyzer) Analyze(ctx context.Context, task *domain.Task, product *domain.Product, payload domain.ObservationPayload) error {
	return m.Called(ctx, task, product, payload).Error(0)
}

type stubExtractor struct {
	payload domain.ObservationPayload
	err     error
}

func (s stubExtractor) Extract(ctx context.Context, url string) (domain.ObservationPayload, error) {
	return s.payload, s.err
}

func newDispatcher(t *testing.T, tasks *mockTasks, products *mockProducts, counters *mockCounters, analyzer *mockAnalyzer, registry *extraction.Registry) *Dispatcher {
	t.Helper()
	cfg := DefaultConfig()
	cfg.MaxTasksPerCycle = 10
	return New(tasks, products, counters, registry, analyzer, cfg, zap.NewNop())
}

func TestRunCycle_AdmitsUnderRetailerCeiling(t *testing.T) {
	tasks := &mockTasks{}
	products := &mockProducts{}
	counters := &mockCounters{}
	analyzer := &mockAnalyzer{}
	registry := extraction.NewRegistry()

	pending := []*domain.Task{task("t1", "p1", 1)}
	product := &domain.Product{ID: "p1", URL: "https://www.amazon.fr/dp/1", Retailer: "amazon"}

	tasks.On("Pending", mock.Anything, mock.Anything).Return(pending, nil)
	products.On("GetByID", mock.Anything, "p1").Return(product, nil)
	counters.On("Increment", mock.Anything, "amazon", 20).Return(true, nil)
	tasks.On("Save", mock.Anything, mock.AnythingOfType("*domain.Task")).Return(nil)
	counters.On("Decrement", mock.Anything, "amazon").Return(nil)
	analyzer.On("Analyze", mock.Anything, mock.Anything, product, mock.Anything).Return(nil)

	registry.Register("www.amazon.fr", stubExtractor{payload: domain.ObservationPayload{Price: product.CurrentPrice}})

	d := newDispatcher(t, tasks, products, counters, analyzer, registry)
	require.NoError(t, d.Start())
	defer d.Stop()

	admitted, err := d.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, admitted)

	assert.Eventually(t, func() bool {
		return len(analyzer.Calls) > 0
	}, time.Second, 10*time.Millisecond)
}

func TestRunCycle_SkipsTaskAtRetailerCeiling(t *testing.T) {
	tasks := &mockTasks{}
	products := &mockProducts{}
	counters := &mockCounters{}
	analyzer := &mockAnalyzer{}
	registry := extraction.NewRegistry()

	pending := []*domain.Task{task("t1", "p1", 1)}
	product := &domain.Product{ID: "p1", URL: "https://www.amazon.fr/dp/1", Retailer: "amazon"}

	tasks.On("Pending", mock.Anything, mock.Anything).Return(pending, nil)
	products.On("GetByID", mock.Anything, "p1").Return(product, nil)
	counters.On("Increment", mock.Anything, "amazon", 20).Return(false, nil)

	d := newDispatcher(t, tasks, products, counters, analyzer, registry)
	require.NoError(t, d.Start())
	defer d.Stop()

	admitted, err := d.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, admitted)
	tasks.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestExecute_NoExtractorTerminalFailsTask(t *testing.T) {
	tasks := &mockTasks{}
	products := &mockProducts{}
	counters := &mockCounters{}
	analyzer := &mockAnalyzer{}
	registry := extraction.NewRegistry()

	product := &domain.Product{ID: "p1", URL: "https://unknown-retailer.example/dp/1"}
	tk := task("t1", "p1", 1)
	require.NoError(t, tk.Admit())

	tasks.On("Save", mock.Anything, mock.AnythingOfType("*domain.Task")).Return(nil)
	counters.On("Decrement", mock.Anything, mock.Anything).Return(nil)

	d := newDispatcher(t, tasks, products, counters, analyzer, registry)

	job := concurrency.Job{ID: tk.ID, Payload: taskJob{task: tk, product: product}, Timeout: domain.HardDeadline}
	result := d.execute(context.Background(), job)

	assert.False(t, result.Success)
	assert.Equal(t, domain.TaskStatusFailed, tk.Status)
}

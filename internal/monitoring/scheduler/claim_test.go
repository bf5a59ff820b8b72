package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DimaJoyti/priceguard/internal/monitoring/domain"
)

// fakeConfigs is an in-memory ConfigRepository whose ClaimDue is guarded
// by a single mutex, the same atomicity RedisConfigRepository.ClaimDue
// gets from Redis running its claim script single-threaded. It exists to
// exercise the actual race ScheduleDueProducts/DistributeLoad must avoid,
// not just to stub mock.Mock expectations.
type fakeConfigs struct {
	mu      sync.Mutex
	byID    map[string]*domain.MonitoringConfig
	dueSet  map[string]struct{}
	savedAt map[string]int
}

func newFakeConfigs(configs ...*domain.MonitoringConfig) *fakeConfigs {
	f := &fakeConfigs{
		byID:    make(map[string]*domain.MonitoringConfig),
		dueSet:  make(map[string]struct{}),
		savedAt: make(map[string]int),
	}
	for _, c := range configs {
		f.byID[c.ProductID] = c
		if c.Active && c.NextScheduled != nil {
			f.dueSet[c.ProductID] = struct{}{}
		}
	}
	return f
}

func (f *fakeConfigs) GetByProductID(ctx context.Context, id string) (*domain.MonitoringConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id], nil
}

func (f *fakeConfigs) Save(ctx context.Context, c *domain.MonitoringConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[c.ProductID] = c
	f.savedAt[c.ProductID]++
	if c.Active && c.NextScheduled != nil {
		f.dueSet[c.ProductID] = struct{}{}
	} else {
		delete(f.dueSet, c.ProductID)
	}
	return nil
}

func (f *fakeConfigs) DueForScheduling(ctx context.Context, asOf time.Time, limit int) ([]*domain.MonitoringConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var due []*domain.MonitoringConfig
	for id := range f.dueSet {
		c := f.byID[id]
		if c.NextScheduled != nil && !c.NextScheduled.After(asOf) {
			due = append(due, c)
		}
		if len(due) == limit {
			break
		}
	}
	return due, nil
}

// ClaimDue mirrors claimDueScript's semantics: each candidate is removed
// from the due set at most once, and only the caller whose removal
// actually took membership away gets it back in the claimed slice.
func (f *fakeConfigs) ClaimDue(ctx context.Context, productIDs []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var claimed []string
	for _, id := range productIDs {
		if _, ok := f.dueSet[id]; ok {
			delete(f.dueSet, id)
			claimed = append(claimed, id)
		}
	}
	return claimed, nil
}

func (f *fakeConfigs) Active(ctx context.Context, offset, limit int) ([]*domain.MonitoringConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.MonitoringConfig
	for _, c := range f.byID {
		if c.Active {
			out = append(out, c)
		}
	}
	return out, nil
}

// fakeTasks is a thread-safe TaskRepository recording every saved task,
// standing in for RedisTaskRepository in the concurrency test below.
type fakeTasks struct {
	mu    sync.Mutex
	saved []*domain.Task
}

func (f *fakeTasks) GetByID(ctx context.Context, id string) (*domain.Task, error) { return nil, nil }

func (f *fakeTasks) Save(ctx context.Context, t *domain.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, t)
	return nil
}

func (f *fakeTasks) Pending(ctx context.Context, limit int) ([]*domain.Task, error) { return nil, nil }

func (f *fakeTasks) CountByHour(ctx context.Context, dayStart time.Time) (map[int]int, error) {
	return map[int]int{}, nil
}

// TestScheduleDueProducts_ConcurrentRunsDoNotDuplicateTasks runs two
// ScheduleDueProducts calls in parallel against the same due product,
// simulating serve's own ticker overlapping with a schedule-once cron
// invocation. Exactly one run must claim the product and create its Task.
func TestScheduleDueProducts_ConcurrentRunsDoNotDuplicateTasks(t *testing.T) {
	next := time.Now().Add(-time.Minute)
	cfg := &domain.MonitoringConfig{
		ProductID:     "p1",
		Frequency:     domain.FrequencyNormal,
		Active:        true,
		PriorityScore: 3.0,
		NextScheduled: &next,
	}

	configs := newFakeConfigs(cfg)
	tasks := &fakeTasks{}

	s1 := New(&mockProducts{}, configs, tasks, &mockHistory{}, zap.NewNop())
	s2 := New(&mockProducts{}, configs, tasks, &mockHistory{}, zap.NewNop())

	var wg sync.WaitGroup
	counts := make([]int, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		n, err := s1.ScheduleDueProducts(context.Background(), 10)
		require.NoError(t, err)
		counts[0] = n
	}()
	go func() {
		defer wg.Done()
		n, err := s2.ScheduleDueProducts(context.Background(), 10)
		require.NoError(t, err)
		counts[1] = n
	}()
	wg.Wait()

	assert.Equal(t, 1, counts[0]+counts[1], "exactly one run should have claimed the due product")
	assert.Len(t, tasks.saved, 1, "exactly one task should have been created for the product")
}

// TestScheduleDueProducts_LostClaimSkipsProduct verifies a product that
// ClaimDue no longer reports as claimed is skipped, not scheduled a
// second time from a stale DueForScheduling read.
func TestScheduleDueProducts_LostClaimSkipsProduct(t *testing.T) {
	next := time.Now().Add(-time.Minute)
	cfg := &domain.MonitoringConfig{
		ProductID:     "p1",
		Frequency:     domain.FrequencyNormal,
		Active:        true,
		PriorityScore: 3.0,
		NextScheduled: &next,
	}
	configs := newFakeConfigs(cfg)
	tasks := &fakeTasks{}

	s := New(&mockProducts{}, configs, tasks, &mockHistory{}, zap.NewNop())

	// Simulate a concurrent run that already won the claim.
	_, err := configs.ClaimDue(context.Background(), []string{"p1"})
	require.NoError(t, err)

	n, err := s.ScheduleDueProducts(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, tasks.saved)
}

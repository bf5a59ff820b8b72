// Package dispatcher implements the Queue Dispatcher & Worker Pool: it
// pulls pending Tasks, admits them onto one of three priority lanes under
// a per-retailer concurrency ceiling, and drives each admitted Task
// through Extractor invocation and handoff to the Result Analyzer.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/DimaJoyti/priceguard/internal/monitoring/domain"
	"github.com/DimaJoyti/priceguard/internal/monitoring/extraction"
	"github.com/DimaJoyti/priceguard/internal/monitoring/repository"
	"github.com/DimaJoyti/priceguard/pkg/apperrors"
	"github.com/DimaJoyti/priceguard/pkg/concurrency"
)

// Clock abstracts wall time so tests can control "now" without sleeping.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock, backed by time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Analyzer hands a completed Extractor payload to the result analyzer,
// which persists the ObservationResult, updates Product and the owning
// MonitoringConfig, and emits Events to the Rule Engine. The Dispatcher
// depends only on this narrow port.
type Analyzer interface {
	Analyze(ctx context.Context, task *domain.Task, product *domain.Product, payload domain.ObservationPayload) error
}

// ProductReader is the subset of ProductRepository the dispatcher needs.
type ProductReader interface {
	GetByID(ctx context.Context, id string) (*domain.Product, error)
}

// LanePoolConfig sizes one lane's worker pool.
type LanePoolConfig struct {
	MinWorkers int `mapstructure:"min_workers"`
	MaxWorkers int `mapstructure:"max_workers"`
	QueueSize  int `mapstructure:"queue_size"`
}

// Config configures a Dispatcher.
type Config struct {
	// MaxTasksPerCycle bounds how many Tasks a single RunCycle selects for
	// admission; it reads up to four times that many pending Tasks as
	// candidates.
	MaxTasksPerCycle int
	Ceilings         RetailerCeilings
	High, Normal, Low LanePoolConfig
}

// DefaultConfig returns sane single-process defaults.
func DefaultConfig() Config {
	pool := LanePoolConfig{MinWorkers: 2, MaxWorkers: 8, QueueSize: 256}
	return Config{
		MaxTasksPerCycle: 100,
		Ceilings:         DefaultRetailerCeilings(),
		High:             pool,
		Normal:           pool,
		Low:              LanePoolConfig{MinWorkers: 1, MaxWorkers: 4, QueueSize: 256},
	}
}

// Dispatcher routes Tasks onto three independently-scaled worker pools
// and throttles admission per retailer.
type Dispatcher struct {
	tasks      repository.TaskRepository
	products   ProductReader
	counters   repository.RetailerCounters
	extractors *extraction.Registry
	analyzer   Analyzer
	cfg        Config
	clock      Clock
	logger     *zap.Logger

	pools    map[domain.Lane]*concurrency.DynamicWorkerPool
	breakers *retailerBreakers
}

// retailerBreakerFailureThreshold/ResetTimeout trip a retailer's
// circuit after five consecutive extractor failures and probe again
// after a minute, so a retailer blocking or outage stops burning
// worker slots on doomed fetches without an operator having to
// intervene.
const (
	retailerBreakerFailureThreshold = 5
	retailerBreakerResetTimeout     = time.Minute
)

type taskJob struct {
	task    *domain.Task
	product *domain.Product
}

// New builds a Dispatcher. Its worker pools are not started; call Start.
func New(
	tasks repository.TaskRepository,
	products ProductReader,
	counters repository.RetailerCounters,
	extractors *extraction.Registry,
	analyzer Analyzer,
	cfg Config,
	logger *zap.Logger,
) *Dispatcher {
	d := &Dispatcher{
		tasks:      tasks,
		products:   products,
		counters:   counters,
		extractors: extractors,
		analyzer:   analyzer,
		cfg:        cfg,
		clock:      SystemClock{},
		logger:     logger.Named("dispatcher"),
		pools:      make(map[domain.Lane]*concurrency.DynamicWorkerPool),
		breakers:   newRetailerBreakers(retailerBreakerFailureThreshold, retailerBreakerResetTimeout, logger.Named("dispatcher.breaker")),
	}

	d.pools[domain.LaneHigh] = d.newLanePool(domain.LaneHigh, cfg.High)
	d.pools[domain.LaneNormal] = d.newLanePool(domain.LaneNormal, cfg.Normal)
	d.pools[domain.LaneLow] = d.newLanePool(domain.LaneLow, cfg.Low)

	return d
}

func (d *Dispatcher) newLanePool(lane domain.Lane, lc LanePoolConfig) *concurrency.DynamicWorkerPool {
	poolCfg := &concurrency.WorkerPoolConfig{
		MinWorkers:          lc.MinWorkers,
		MaxWorkers:          lc.MaxWorkers,
		QueueSize:           lc.QueueSize,
		ScaleUpThreshold:    0.75,
		ScaleDownThreshold:  0.2,
		ScaleUpCooldown:     10 * time.Second,
		ScaleDownCooldown:   30 * time.Second,
		HealthCheckInterval: 5 * time.Second,
		MetricsInterval:     10 * time.Second,
	}
	return concurrency.NewDynamicWorkerPool(string(lane), poolCfg, d.execute, d.logger)
}

// Start launches every lane's worker pool.
func (d *Dispatcher) Start() error {
	for lane, pool := range d.pools {
		if err := pool.Start(); err != nil {
			return fmt.Errorf("dispatcher: start %s lane: %w", lane, err)
		}
	}
	return nil
}

// Stop drains every lane's worker pool.
func (d *Dispatcher) Stop() error {
	for lane, pool := range d.pools {
		if err := pool.Stop(); err != nil {
			return fmt.Errorf("dispatcher: stop %s lane: %w", lane, err)
		}
	}
	return nil
}

// RunCycle performs one admission pass: pull pending tasks, allocate lane
// budgets, apply the even-spread and retailer-ceiling policies, and
// submit admitted tasks to their lane's worker pool. Returns the number
// of tasks admitted.
func (d *Dispatcher) RunCycle(ctx context.Context) (int, error) {
	candidates, err := d.tasks.Pending(ctx, d.cfg.MaxTasksPerCycle*4)
	if err != nil {
		return 0, fmt.Errorf("dispatcher: list pending tasks: %w", err)
	}

	var high, normal, low []*domain.Task
	for _, t := range candidates {
		switch t.Lane() {
		case domain.LaneHigh:
			high = append(high, t)
		case domain.LaneNormal:
			normal = append(normal, t)
		default:
			low = append(low, t)
		}
	}

	budgets := allocateLaneBudgets(d.cfg.MaxTasksPerCycle)
	retailerOf := d.retailerOf(ctx)

	selHigh := selectEvenSpread(high, budgets[domain.LaneHigh], retailerOf)
	selNormal := selectEvenSpread(normal, budgets[domain.LaneNormal], retailerOf)
	selLow := selectEvenSpread(low, budgets[domain.LaneLow], retailerOf)

	admitted := 0
	for _, task := range interleaveLanes(selHigh, selNormal, selLow) {
		ok, err := d.admit(ctx, task, retailerOf(task))
		if err != nil {
			d.logger.Error("admission failed", zap.String("task_id", task.ID), zap.Error(err))
			continue
		}
		if ok {
			admitted++
		}
	}

	d.logger.Info("dispatch cycle complete",
		zap.Int("candidates", len(candidates)),
		zap.Int("admitted", admitted))
	return admitted, nil
}

// retailerOf returns a function that resolves a Task's retailer key via
// its Product's URL, caching lookups within one cycle.
func (d *Dispatcher) retailerOf(ctx context.Context) func(*domain.Task) string {
	cache := make(map[string]string)
	return func(t *domain.Task) string {
		if r, ok := cache[t.ProductID]; ok {
			return r
		}
		product, err := d.products.GetByID(ctx, t.ProductID)
		if err != nil {
			cache[t.ProductID] = "unknown"
			return "unknown"
		}
		r := extraction.RetailerForURL(product.URL)
		cache[t.ProductID] = r
		return r
	}
}

// admit reserves a retailer concurrency token and a lane slot for task,
// transitions it pending -> scheduled, and submits it to its lane pool.
// Returns false (no error) if the retailer is at its ceiling; the task
// remains pending for a later cycle.
func (d *Dispatcher) admit(ctx context.Context, task *domain.Task, retailer string) (bool, error) {
	ceiling := d.cfg.Ceilings.CeilingFor(retailer)
	ok, err := d.counters.Increment(ctx, retailer, ceiling)
	if err != nil {
		return false, fmt.Errorf("retailer counter: %w", err)
	}
	if !ok {
		return false, nil
	}

	product, err := d.products.GetByID(ctx, task.ProductID)
	if err != nil {
		_ = d.counters.Decrement(ctx, retailer)
		return false, fmt.Errorf("load product %s: %w", task.ProductID, err)
	}

	if err := task.Admit(); err != nil {
		_ = d.counters.Decrement(ctx, retailer)
		return false, err
	}
	if err := d.tasks.Save(ctx, task); err != nil {
		_ = d.counters.Decrement(ctx, retailer)
		return false, fmt.Errorf("persist admitted task: %w", err)
	}

	pool := d.pools[task.Lane()]
	job := concurrency.Job{
		ID:       task.ID,
		Type:     "extract",
		Payload:  taskJob{task: task, product: product},
		Priority: task.Priority,
		Timeout:  domain.HardDeadline,
	}
	if err := pool.SubmitJob(job); err != nil {
		_ = d.counters.Decrement(ctx, retailer)
		task.Status = domain.TaskStatusPending
		_ = d.tasks.Save(ctx, task)
		return false, fmt.Errorf("submit to %s lane: %w", task.Lane(), err)
	}
	return true, nil
}

// execute is the Handler every lane pool calls: it is the worker
// execution step from admission through completion or retry scheduling.
func (d *Dispatcher) execute(ctx context.Context, job concurrency.Job) concurrency.JobResult {
	tj := job.Payload.(taskJob)
	task, product := tj.task, tj.product
	retailer := extraction.RetailerForURL(product.URL)
	now := d.clock.Now()

	defer func() {
		if err := d.counters.Decrement(context.Background(), retailer); err != nil {
			d.logger.Error("failed to release retailer counter", zap.String("retailer", retailer), zap.Error(err))
		}
	}()

	if err := task.Start(now); err != nil {
		return d.resultFor(task, false, err)
	}
	if err := d.tasks.Save(ctx, task); err != nil {
		return d.resultFor(task, false, err)
	}

	extractor, err := d.extractors.Resolve(product.URL)
	if err != nil {
		d.terminalFail(ctx, task, err)
		return d.resultFor(task, false, err)
	}

	if !d.breakers.allow(retailer) {
		d.retryOrFail(ctx, task, errRetailerCircuitOpen)
		return d.resultFor(task, false, errRetailerCircuitOpen)
	}

	extractCtx, cancel := context.WithTimeout(ctx, domain.ExtractorTimeout)
	payload, err := extractor.Extract(extractCtx, product.URL)
	cancel()
	if err != nil {
		d.breakers.recordFailure(retailer)
		d.retryOrFail(ctx, task, err)
		return d.resultFor(task, false, err)
	}
	d.breakers.recordSuccess(retailer)

	if err := d.analyzer.Analyze(ctx, task, product, payload); err != nil {
		d.retryOrFail(ctx, task, err)
		return d.resultFor(task, false, err)
	}

	if err := task.Complete(now); err != nil {
		d.logger.Error("failed to mark task completed", zap.String("task_id", task.ID), zap.Error(err))
	}
	if err := d.tasks.Save(ctx, task); err != nil {
		d.logger.Error("failed to persist completed task", zap.String("task_id", task.ID), zap.Error(err))
	}
	return d.resultFor(task, true, nil)
}

// retryOrFail applies the retry policy to a failed execution attempt,
// rescheduling with the lane's backoff when retries remain.
func (d *Dispatcher) retryOrFail(ctx context.Context, task *domain.Task, cause error) {
	now := d.clock.Now()
	lane := task.Lane()

	retry, err := task.Fail(now, cause.Error())
	if err != nil {
		d.logger.Error("invalid fail transition", zap.String("task_id", task.ID), zap.Error(err))
		return
	}
	if retry {
		task.ScheduledTime = now.Add(lane.RetryBackoff(task.RetryCount - 1))
	}
	if err := d.tasks.Save(ctx, task); err != nil {
		d.logger.Error("failed to persist retry/failure", zap.String("task_id", task.ID), zap.Error(err))
	}
}

// terminalFail marks a task failed outright, for errors the retry policy
// cannot help with (e.g. no extractor registered for the retailer).
func (d *Dispatcher) terminalFail(ctx context.Context, task *domain.Task, cause error) {
	now := d.clock.Now()
	task.RetryCount = task.MaxRetries
	if _, err := task.Fail(now, cause.Error()); err != nil {
		d.logger.Error("invalid terminal-fail transition", zap.String("task_id", task.ID), zap.Error(err))
		return
	}
	if err := d.tasks.Save(ctx, task); err != nil {
		d.logger.Error("failed to persist terminal failure", zap.String("task_id", task.ID), zap.Error(err))
	}
}

func (d *Dispatcher) resultFor(task *domain.Task, success bool, err error) concurrency.JobResult {
	if err != nil && !success {
		err = apperrors.Wrap(err, apperrors.TransientError, "task execution failed").WithContext("task_id", task.ID)
	}
	return concurrency.JobResult{JobID: task.ID, Success: success, Result: task, Error: err}
}

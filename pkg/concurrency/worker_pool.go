// Package concurrency provides a self-scaling worker pool used by the
// queue dispatcher's three priority lanes. Each lane runs its own pool
// instance so a slow low-priority extractor never starves high-priority
// work.
package concurrency

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Handler executes one Job and returns its JobResult. Implementations
// must respect ctx cancellation (the pool applies Job.Timeout via ctx).
type Handler func(ctx context.Context, job Job) JobResult

// DynamicWorkerPool is a worker pool that scales its goroutine count
// between MinWorkers and MaxWorkers based on queue utilization.
type DynamicWorkerPool struct {
	name   string
	logger *zap.Logger
	config *WorkerPoolConfig
	handle Handler

	workers      map[int]*Worker
	workersMu    sync.RWMutex
	nextWorkerID int64

	jobQueue    chan Job
	resultQueue chan JobResult

	currentWorkers int64
	lastScaleTime  time.Time
	scaleMu        sync.RWMutex

	metrics *WorkerPoolMetrics

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	runningMu sync.RWMutex
}

// WorkerPoolConfig contains worker pool configuration
type WorkerPoolConfig struct {
	MinWorkers          int           `mapstructure:"min_workers"`
	MaxWorkers          int           `mapstructure:"max_workers"`
	QueueSize           int           `mapstructure:"queue_size"`
	ScaleUpThreshold    float64       `mapstructure:"scale_up_threshold"`
	ScaleDownThreshold  float64       `mapstructure:"scale_down_threshold"`
	ScaleUpCooldown     time.Duration `mapstructure:"scale_up_cooldown"`
	ScaleDownCooldown   time.Duration `mapstructure:"scale_down_cooldown"`
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval"`
	MetricsInterval     time.Duration `mapstructure:"metrics_interval"`
}

// Job represents one unit of work submitted to a pool. Payload carries the
// dispatcher's per-task value as an opaque value so this package has no
// dependency on the monitoring domain.
type Job struct {
	ID       string
	Type     string
	Payload  interface{}
	Priority int
	Timeout  time.Duration
	Retry    int
	MaxRetry int
}

// JobResult is what a Handler returns for one Job.
type JobResult struct {
	JobID    string
	Success  bool
	Result   interface{}
	Error    error
	Duration time.Duration
	WorkerID int
}

// Worker is a single pool goroutine.
type Worker struct {
	ID       int
	pool     *DynamicWorkerPool
	quit     chan bool
	active   bool
	lastUsed time.Time
	metrics  *WorkerMetrics
}

// WorkerPoolMetrics tracks pool-wide throughput.
type WorkerPoolMetrics struct {
	TotalJobs        int64
	CompletedJobs    int64
	FailedJobs       int64
	QueueDepth       int64
	ActiveWorkers    int64
	IdleWorkers      int64
	AvgJobDuration   time.Duration
	ThroughputPerSec float64
	mu               sync.RWMutex
}

// WorkerMetrics tracks one worker's lifetime throughput.
type WorkerMetrics struct {
	JobsProcessed int64
	TotalDuration time.Duration
	LastJobTime   time.Time
	ErrorCount    int64
}

// NewDynamicWorkerPool creates a pool that calls handle for every admitted
// Job.
func NewDynamicWorkerPool(name string, config *WorkerPoolConfig, handle Handler, logger *zap.Logger) *DynamicWorkerPool {
	ctx, cancel := context.WithCancel(context.Background())

	return &DynamicWorkerPool{
		name:        name,
		logger:      logger,
		config:      config,
		handle:      handle,
		workers:     make(map[int]*Worker),
		jobQueue:    make(chan Job, config.QueueSize),
		resultQueue: make(chan JobResult, config.QueueSize),
		lastScaleTime: time.Now(),
		metrics:     &WorkerPoolMetrics{},
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start launches MinWorkers goroutines plus the scaling and metrics loops.
func (p *DynamicWorkerPool) Start() error {
	p.runningMu.Lock()
	defer p.runningMu.Unlock()

	if p.running {
		return fmt.Errorf("worker pool %s is already running", p.name)
	}

	p.logger.Info("starting worker pool",
		zap.String("pool", p.name),
		zap.Int("min_workers", p.config.MinWorkers),
		zap.Int("max_workers", p.config.MaxWorkers))

	for i := 0; i < p.config.MinWorkers; i++ {
		p.addWorker()
	}

	p.wg.Add(2)
	go p.scalingManager()
	go p.metricsCollector()

	p.running = true
	return nil
}

// Stop signals every worker to exit and waits for them to drain.
func (p *DynamicWorkerPool) Stop() error {
	p.runningMu.Lock()
	defer p.runningMu.Unlock()

	if !p.running {
		return nil
	}

	p.logger.Info("stopping worker pool", zap.String("pool", p.name))
	p.cancel()
	close(p.jobQueue)

	p.workersMu.Lock()
	for _, worker := range p.workers {
		close(worker.quit)
	}
	p.workersMu.Unlock()

	p.wg.Wait()
	close(p.resultQueue)
	p.running = false
	return nil
}

// SubmitJob enqueues a job for the next available worker, non-blocking:
// a full queue returns an error rather than backpressuring the caller.
func (p *DynamicWorkerPool) SubmitJob(job Job) error {
	p.runningMu.RLock()
	defer p.runningMu.RUnlock()

	if !p.running {
		return fmt.Errorf("worker pool %s is not running", p.name)
	}

	select {
	case p.jobQueue <- job:
		atomic.AddInt64(&p.metrics.TotalJobs, 1)
		atomic.StoreInt64(&p.metrics.QueueDepth, int64(len(p.jobQueue)))
		return nil
	case <-p.ctx.Done():
		return fmt.Errorf("worker pool %s is shutting down", p.name)
	default:
		return fmt.Errorf("job queue is full for pool %s", p.name)
	}
}

// Results exposes completed JobResults for callers that want to observe
// outcomes. Reading it is optional: once QueueSize results are buffered,
// further results are dropped rather than blocking the worker.
func (p *DynamicWorkerPool) Results() <-chan JobResult {
	return p.resultQueue
}

// Metrics returns a point-in-time snapshot.
func (p *DynamicWorkerPool) Metrics() WorkerPoolMetrics {
	p.metrics.mu.RLock()
	defer p.metrics.mu.RUnlock()

	return WorkerPoolMetrics{
		TotalJobs:        atomic.LoadInt64(&p.metrics.TotalJobs),
		CompletedJobs:    atomic.LoadInt64(&p.metrics.CompletedJobs),
		FailedJobs:       atomic.LoadInt64(&p.metrics.FailedJobs),
		QueueDepth:       atomic.LoadInt64(&p.metrics.QueueDepth),
		ActiveWorkers:    atomic.LoadInt64(&p.currentWorkers),
		IdleWorkers:      atomic.LoadInt64(&p.currentWorkers) - p.getActiveWorkerCount(),
		AvgJobDuration:   p.metrics.AvgJobDuration,
		ThroughputPerSec: p.metrics.ThroughputPerSec,
	}
}

func (p *DynamicWorkerPool) addWorker() {
	workerID := int(atomic.AddInt64(&p.nextWorkerID, 1))

	worker := &Worker{
		ID:       workerID,
		pool:     p,
		quit:     make(chan bool),
		lastUsed: time.Now(),
		metrics:  &WorkerMetrics{},
	}

	p.workersMu.Lock()
	p.workers[workerID] = worker
	p.workersMu.Unlock()

	atomic.AddInt64(&p.currentWorkers, 1)

	p.wg.Add(1)
	go worker.start()
}

func (p *DynamicWorkerPool) removeWorker() {
	p.workersMu.Lock()
	defer p.workersMu.Unlock()

	for int64(len(p.workers)) > int64(p.config.MinWorkers) {
		idleFound := false
		for id, worker := range p.workers {
			if !worker.active && time.Since(worker.lastUsed) > p.config.ScaleDownCooldown {
				close(worker.quit)
				delete(p.workers, id)
				atomic.AddInt64(&p.currentWorkers, -1)
				idleFound = true
				break
			}
		}
		if !idleFound {
			break
		}
	}
}

func (p *DynamicWorkerPool) scalingManager() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.evaluateScaling()
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *DynamicWorkerPool) evaluateScaling() {
	p.scaleMu.Lock()
	defer p.scaleMu.Unlock()

	queueUtilization := float64(len(p.jobQueue)) / float64(p.config.QueueSize)
	currentWorkers := atomic.LoadInt64(&p.currentWorkers)
	now := time.Now()

	if queueUtilization > p.config.ScaleUpThreshold &&
		currentWorkers < int64(p.config.MaxWorkers) &&
		now.Sub(p.lastScaleTime) > p.config.ScaleUpCooldown {
		p.addWorker()
		p.lastScaleTime = now
	}

	if queueUtilization < p.config.ScaleDownThreshold &&
		currentWorkers > int64(p.config.MinWorkers) &&
		now.Sub(p.lastScaleTime) > p.config.ScaleDownCooldown {
		p.removeWorker()
		p.lastScaleTime = now
	}
}

func (p *DynamicWorkerPool) metricsCollector() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.MetricsInterval)
	defer ticker.Stop()

	var lastCompleted int64
	lastTime := time.Now()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			current := atomic.LoadInt64(&p.metrics.CompletedJobs)
			duration := now.Sub(lastTime).Seconds()
			if duration > 0 {
				p.metrics.mu.Lock()
				p.metrics.ThroughputPerSec = float64(current-lastCompleted) / duration
				p.metrics.mu.Unlock()
			}
			lastCompleted = current
			lastTime = now
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *DynamicWorkerPool) getActiveWorkerCount() int64 {
	p.workersMu.RLock()
	defer p.workersMu.RUnlock()

	var count int64
	for _, worker := range p.workers {
		if worker.active {
			count++
		}
	}
	return count
}

func (w *Worker) start() {
	defer w.pool.wg.Done()

	for {
		select {
		case job, ok := <-w.pool.jobQueue:
			if !ok {
				return
			}
			w.processJob(job)
		case <-w.quit:
			return
		case <-w.pool.ctx.Done():
			return
		}
	}
}

func (w *Worker) processJob(job Job) {
	w.active = true
	w.lastUsed = time.Now()
	start := time.Now()

	defer func() {
		w.active = false
		w.metrics.JobsProcessed++
		w.metrics.TotalDuration += time.Since(start)
		w.metrics.LastJobTime = time.Now()
	}()

	ctx := w.pool.ctx
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	result := w.pool.handle(ctx, job)
	result.JobID = job.ID
	result.WorkerID = w.ID
	result.Duration = time.Since(start)
	if !result.Success {
		w.metrics.ErrorCount++
	}

	if result.Success {
		atomic.AddInt64(&w.pool.metrics.CompletedJobs, 1)
	} else {
		atomic.AddInt64(&w.pool.metrics.FailedJobs, 1)
	}
	select {
	case w.pool.resultQueue <- result:
	default:
	}
}

package download

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job represents one queue item handed to a worker
type Job struct {
	ItemID string
	Kind   string
	ctx    context.Context
	cancel context.CancelFunc
}

// Result represents the result of a job execution
type Result struct {
	ItemID  string
	Success bool
	Error   error
}

// JobHandler is a function that processes a job
type JobHandler func(ctx context.Context, job *Job) error

// WorkerPool manages a fixed pool of worker goroutines for concurrent downloads
type WorkerPool struct {
	maxWorkers int
	jobs       chan *Job
	results    chan *Result
	activeJobs sync.Map // map[string]*Job
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	handler    JobHandler
	logger     *zap.Logger
	mu         sync.RWMutex
	started    bool
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(maxWorkers int, handler JobHandler, logger *zap.Logger) *WorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WorkerPool{
		maxWorkers: maxWorkers,
		jobs:       make(chan *Job, 1024),
		results:    make(chan *Result, maxWorkers*10),
		handler:    handler,
		logger:     logger,
	}
}

// Start spawns worker goroutines and begins processing jobs
func (wp *WorkerPool) Start(ctx context.Context) error {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.started {
		return fmt.Errorf("worker pool already started")
	}
	if wp.handler == nil {
		return fmt.Errorf("job handler not set")
	}

	wp.ctx, wp.cancel = context.WithCancel(ctx)

	for i := 0; i < wp.maxWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}

	wp.started = true
	return nil
}

// worker is the main worker goroutine that processes jobs
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	wp.logger.Debug("worker started", zap.Int("worker", id))

	for {
		select {
		case <-wp.ctx.Done():
			wp.logger.Debug("worker shutting down", zap.Int("worker", id))
			return

		case job, ok := <-wp.jobs:
			if !ok {
				return
			}
			wp.processJob(job)
		}
	}
}

// processJob processes a single job
func (wp *WorkerPool) processJob(job *Job) {
	wp.activeJobs.Store(job.ItemID, job)
	defer wp.activeJobs.Delete(job.ItemID)

	if job.ctx == nil {
		job.ctx, job.cancel = context.WithCancel(wp.ctx)
	}
	defer job.cancel()

	err := wp.handler(job.ctx, job)

	result := &Result{
		ItemID:  job.ItemID,
		Success: err == nil,
		Error:   err,
	}

	select {
	case wp.results <- result:
	case <-wp.ctx.Done():
		// Pool shutting down, discard result
	}
}

// Submit submits a job to the worker pool without blocking. The job
// buffer is large enough that a full buffer only means the dispatcher
// is far ahead of the workers; the caller retries on its next poll.
func (wp *WorkerPool) Submit(job *Job) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if !wp.started {
		return fmt.Errorf("worker pool not started")
	}

	job.ctx, job.cancel = context.WithCancel(wp.ctx)

	select {
	case wp.jobs <- job:
		return nil
	default:
		return fmt.Errorf("job buffer full")
	}
}

// Stop shuts the pool down, waiting up to grace for in-flight jobs to
// finish. Returns false when the grace period expired with jobs still
// running; those jobs are abandoned.
func (wp *WorkerPool) Stop(grace time.Duration) bool {
	wp.mu.Lock()
	if !wp.started {
		wp.mu.Unlock()
		return true
	}
	wp.started = false

	// Queued jobs are dropped, not processed: their items stay pending
	// and are picked up again on the next start.
drain:
	for {
		select {
		case <-wp.jobs:
		default:
			break drain
		}
	}
	close(wp.jobs)
	wp.mu.Unlock()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	clean := true
	select {
	case <-done:
	case <-time.After(grace):
		wp.logger.Warn("shutdown grace period expired, abandoning in-flight jobs",
			zap.Int("active", wp.ActiveCount()))
		clean = false
	}

	wp.cancel()
	if !clean {
		<-done
	}
	close(wp.results)

	return clean
}

// Results returns the results channel
func (wp *WorkerPool) Results() <-chan *Result {
	return wp.results
}

// ActiveCount returns the number of currently active jobs
func (wp *WorkerPool) ActiveCount() int {
	count := 0
	wp.activeJobs.Range(func(key, value interface{}) bool {
		count++
		return true
	})
	return count
}

// IsJobActive checks if a job is currently active
func (wp *WorkerPool) IsJobActive(itemID string) bool {
	_, ok := wp.activeJobs.Load(itemID)
	return ok
}

package analyzer

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool runs jobs on a fixed set of goroutines.
type WorkerPool struct {
	workers  int
	jobQueue chan func()
	wg       sync.WaitGroup
	once     sync.Once
	stop     sync.Once

	totalJobs     atomic.Int64
	completedJobs atomic.Int64
	activeWorkers atomic.Int64
}

// PoolStats is a snapshot of the pool counters.
type PoolStats struct {
	TotalJobs     int64
	CompletedJobs int64
	ActiveWorkers int64
}

// NewWorkerPool creates a new worker pool with the specified number of workers
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	return &WorkerPool{
		workers:  workers,
		jobQueue: make(chan func(), workers*2),
	}
}

// Start initializes and starts all workers in the pool
func (wp *WorkerPool) Start() {
	wp.once.Do(func() {
		for i := 0; i < wp.workers; i++ {
			go wp.worker()
		}
	})
}

func (wp *WorkerPool) worker() {
	for job := range wp.jobQueue {
		wp.activeWorkers.Add(1)
		job()
		wp.activeWorkers.Add(-1)
		wp.completedJobs.Add(1)
		wp.wg.Done()
	}
}

// Submit adds a job to the worker pool queue
func (wp *WorkerPool) Submit(job func()) {
	wp.wg.Add(1)
	wp.totalJobs.Add(1)
	wp.jobQueue <- job
}

// GetStats returns the current job counters.
func (wp *WorkerPool) GetStats() PoolStats {
	return PoolStats{
		TotalJobs:     wp.totalJobs.Load(),
		CompletedJobs: wp.completedJobs.Load(),
		ActiveWorkers: wp.activeWorkers.Load(),
	}
}

// Wait waits for all submitted jobs to complete
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

// Close shuts down the worker pool. Submit must not be called afterwards.
func (wp *WorkerPool) Close() {
	wp.stop.Do(func() {
		close(wp.jobQueue)
	})
}

// AnalyzeBatch analyzes every source with up to workers concurrent analyses.
// Results keep the order of sources.
func (a *Analyzer) AnalyzeBatch(ctx context.Context, sources []Source, opts Options, workers int) []Result {
	results := make([]Result, len(sources))
	if len(sources) == 0 {
		return results
	}
	if workers <= 0 || workers > len(sources) {
		workers = len(sources)
	}

	pool := NewWorkerPool(workers)
	pool.Start()
	defer pool.Close()

	for i, src := range sources {
		i, src := i, src
		pool.Submit(func() {
			if err := ctx.Err(); err != nil {
				results[i] = Result{Error: err.Error()}
				return
			}
			results[i] = a.Analyze(ctx, src, opts)
		})
	}
	pool.Wait()
	return results
}

// Package dispatch runs background jobs on a bounded worker pool. The
// webhook handler must acknowledge deliveries immediately, so orchestration
// work is queued here instead of spawning a goroutine per event; the bounded
// queue provides back-pressure under event bursts.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// ErrQueueFull is returned by Submit when the queue is saturated.
var ErrQueueFull = errors.New("dispatch queue is full")

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("dispatch pool is closed")

// Job is one unit of background work. Run receives the pool's base context;
// once started a job runs to completion, there is no per-job cancellation.
type Job struct {
	ID  string
	Run func(ctx context.Context)
}

// Options configures a Pool.
type Options struct {
	// Workers is the number of concurrent job runners. Zero means 4.
	Workers int
	// QueueSize is the pending-job buffer. Zero means 64.
	QueueSize int
	Logger    *slog.Logger
}

// Pool is a fixed-size worker pool with a bounded queue.
type Pool struct {
	jobs    chan Job
	log     *slog.Logger
	closing sync.Once
	wg      sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// Start creates the pool and launches its workers. ctx is the base context
// handed to every job; cancelling it does not stop in-flight jobs but is
// visible to them.
func Start(ctx context.Context, opts Options) *Pool {
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pool{
		jobs: make(chan Job, queueSize),
		log:  logger,
	}
	if ctx == nil {
		ctx = context.Background()
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	return p
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for job := range p.jobs {
		if job.Run == nil {
			continue
		}
		p.runOne(ctx, job)
	}
}

func (p *Pool) runOne(ctx context.Context, job Job) {
	defer func() {
		if rec := recover(); rec != nil {
			p.log.Error("dispatch_job_panic", "job_id", job.ID, "panic", fmt.Sprint(rec))
		}
	}()
	job.Run(ctx)
}

// Submit enqueues a job without blocking. Returns ErrQueueFull when the
// queue is saturated and ErrClosed after Close.
func (p *Pool) Submit(job Job) error {
	if p == nil {
		return fmt.Errorf("dispatch pool is not initialized")
	}
	if strings.TrimSpace(job.ID) == "" {
		return fmt.Errorf("job id is required")
	}
	if job.Run == nil {
		return fmt.Errorf("job run func is required")
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	select {
	case p.jobs <- job:
		p.mu.Unlock()
		return nil
	default:
		p.mu.Unlock()
		return ErrQueueFull
	}
}

// Close stops accepting jobs and waits for queued and in-flight jobs to
// finish.
func (p *Pool) Close() {
	if p == nil {
		return
	}
	p.closing.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.jobs)
		p.mu.Unlock()
	})
	p.wg.Wait()
}

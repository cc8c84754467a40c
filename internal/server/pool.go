package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skypro1111/tcp-http-server/internal/metrics"
)

const (
	// DefaultShutdownGracePeriod is how long Shutdown waits for queued and
	// running tasks before cancelling them.
	DefaultShutdownGracePeriod = 60 * time.Second

	// forcedExitWait bounds the wait for workers after cancellation.
	forcedExitWait = 5 * time.Second
)

// Task is a unit of work run by the pool. ctx is cancelled when the pool is
// forced to shut down.
type Task func(ctx context.Context)

// PoolConfig sizes a WorkerPool.
type PoolConfig struct {
	Workers     int
	QueueSize   int
	GracePeriod time.Duration
}

// WorkerPool runs tasks on a fixed set of goroutines fed by a bounded queue.
type WorkerPool struct {
	tasks       chan Task
	workers     int
	gracePeriod time.Duration
	logger      *slog.Logger
	metrics     *metrics.Metrics

	// Cancelled to force running tasks to stop.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool

	wg   sync.WaitGroup
	done chan struct{}
}

// NewWorkerPool starts cfg.Workers workers. m may be nil.
func NewWorkerPool(logger *slog.Logger, cfg PoolConfig, m *metrics.Metrics) *WorkerPool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultShutdownGracePeriod
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &WorkerPool{
		tasks:       make(chan Task, cfg.QueueSize),
		workers:     cfg.Workers,
		gracePeriod: cfg.GracePeriod,
		logger:      logger,
		metrics:     m,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	go func() {
		p.wg.Wait()
		close(p.done)
	}()

	return p
}

// Submit queues task without blocking.
func (p *WorkerPool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.tasks <- task:
		p.metrics.SetQueueSize(len(p.tasks))
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown stops accepting tasks and waits for the queue to drain. After the
// grace period, or when ctx is done, running tasks are cancelled; Shutdown
// then still waits briefly for the workers and returns ErrForcedShutdown or
// ctx.Err() respectively. It returns nil after a clean drain.
func (p *WorkerPool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()

	timer := time.NewTimer(p.gracePeriod)
	defer timer.Stop()

	select {
	case <-p.done:
		p.logger.Debug("Worker pool drained")
		return nil

	case <-timer.C:
		p.logger.Warn("Worker pool did not drain within grace period, cancelling tasks",
			slog.Duration("grace_period", p.gracePeriod),
		)
		p.forceStop()
		return ErrForcedShutdown

	case <-ctx.Done():
		p.logger.Warn("Worker pool shutdown interrupted, cancelling tasks")
		p.forceStop()
		return ctx.Err()
	}
}

// Done is closed once every worker has exited.
func (p *WorkerPool) Done() <-chan struct{} { return p.done }

func (p *WorkerPool) forceStop() {
	p.cancel()

	select {
	case <-p.done:
	case <-time.After(forcedExitWait):
		p.logger.Error("Workers still running after cancellation",
			slog.Duration("waited", forcedExitWait),
		)
	}
}

// worker runs tasks until the queue is closed and empty.
func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	p.logger.Debug("Worker started", slog.Int("worker_id", id))

	for task := range p.tasks {
		p.metrics.SetQueueSize(len(p.tasks))
		p.run(id, task)
	}

	p.logger.Debug("Worker stopped", slog.Int("worker_id", id))
}

func (p *WorkerPool) run(id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Task panicked",
				slog.Int("worker_id", id),
				slog.String("panic", fmt.Sprint(r)),
			)
		}
	}()

	task(p.ctx)
}

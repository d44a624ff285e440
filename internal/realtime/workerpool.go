package realtime

import (
	"context"
	"sync"

	"github.com/HammerMeetNail/oasis/internal/logging"
)

// Task is a unit of background work.
type Task func()

// Pool runs tasks on a fixed set of workers. A panicking task is logged and
// does not take its worker down.
type Pool struct {
	workers   int
	taskQueue chan Task
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	logger    *logging.Logger
	closeOnce sync.Once
}

func NewPool(workers, queueSize int, logger *logging.Logger) *Pool {
	if logger == nil {
		logger = logging.Default
	}
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	ctx, cancel := context.WithCancel(context.Background())

	pool := &Pool{
		workers:   workers,
		taskQueue: make(chan Task, queueSize),
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
	}

	for i := 0; i < workers; i++ {
		pool.wg.Add(1)
		go pool.worker(i)
	}

	pool.logger.Info("Worker pool started", map[string]interface{}{
		"workers":    workers,
		"queue_size": queueSize,
	})
	return pool
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.taskQueue:
			if !ok {
				return
			}
			p.run(id, task)
		}
	}
}

func (p *Pool) run(id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Task panic recovered", map[string]interface{}{
				"worker_id": id,
				"panic":     r,
			})
		}
	}()
	task()
}

// Submit queues task, blocking while the queue is full. It returns false once
// the pool is shutting down.
func (p *Pool) Submit(task Task) bool {
	select {
	case <-p.ctx.Done():
		return false
	default:
	}
	select {
	case <-p.ctx.Done():
		return false
	case p.taskQueue <- task:
		return true
	}
}

// TrySubmit queues task only if there is room.
func (p *Pool) TrySubmit(task Task) bool {
	select {
	case <-p.ctx.Done():
		return false
	default:
	}
	select {
	case p.taskQueue <- task:
		return true
	default:
		return false
	}
}

// Shutdown stops accepting tasks and waits for running ones. Queued tasks
// that have not started are dropped.
func (p *Pool) Shutdown() {
	p.closeOnce.Do(func() {
		p.cancel()
		p.wg.Wait()
		p.logger.Info("Worker pool shutdown completed")
	})
}

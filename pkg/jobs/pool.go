package jobs

import (
	"errors"
	"sync"
)

// ErrQueueFull is returned when the pool's queue cannot accept more work.
// The API surfaces it as a back-pressure rejection instead of spawning an
// unbounded goroutine per ingestion.
var ErrQueueFull = errors.New("job queue is full")

// Pool runs background ingestion tasks on a fixed number of workers. Tasks
// run to completion; there is no cancellation of started work.
type Pool struct {
	tasks chan func()
	wg    sync.WaitGroup

	closeOnce sync.Once
}

func NewPool(workers, queueSize int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}

	p := &Pool{
		tasks: make(chan func(), queueSize),
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for task := range p.tasks {
				task()
			}
		}()
	}

	return p
}

// Submit queues a task without blocking. Returns ErrQueueFull when the
// queue is at capacity.
func (p *Pool) Submit(task func()) error {
	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting work and waits for queued tasks to finish.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.tasks)
	})
	p.wg.Wait()
}

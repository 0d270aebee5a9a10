package pipeline

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Pool runs jobs on at most size goroutines at a time. Submit never blocks
// the caller; queued jobs wait on the semaphore.
type Pool struct {
	size int
	sem  *semaphore.Weighted
	wg   sync.WaitGroup
}

// NewPool returns a pool of the given size, minimum 1.
func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{size: size, sem: semaphore.NewWeighted(int64(size))}
}

// Size returns the maximum number of concurrent jobs.
func (p *Pool) Size() int { return p.size }

// Submit queues job. If ctx is cancelled before a slot frees up, job is
// not run and abandoned is called instead.
func (p *Pool) Submit(ctx context.Context, job func(), abandoned func(error)) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.sem.Acquire(ctx, 1); err != nil {
			if abandoned != nil {
				abandoned(err)
			}
			return
		}
		defer p.sem.Release(1)
		job()
	}()
}

// Wait blocks until every submitted job has finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}

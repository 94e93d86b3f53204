package swarm

import (
	"context"
	"sync"
	"time"
)

// Pool runs one finite batch of indexed tasks with AIMD-adjusted
// parallelism. It is built for scan fan-out: every task runs exactly once
// unless the context dies first, and task errors stay with the caller;
// the pool only sniffs them for throttle feedback.
type Pool struct {
	aimd *AIMD

	mu     sync.Mutex
	active int
}

// NewPool sizes the pool. start is the initial worker target, clamped into
// [min, max].
func NewPool(start, min, max int) *Pool {
	return &Pool{aimd: NewAIMD(start, min, max)}
}

// Concurrency exposes the current worker target for logs and stats.
func (p *Pool) Concurrency() int { return p.aimd.GetConcurrency() }

// Run executes fn for every index in [0, n) and blocks until all tasks
// finished or ctx was cancelled. throttled classifies task errors that
// should shrink the pool; it may be nil. The return value is ctx.Err();
// per-task errors are never aggregated here.
func (p *Pool) Run(ctx context.Context, n int, throttled func(error) bool, fn func(ctx context.Context, i int) error) error {
	if n <= 0 {
		return ctx.Err()
	}

	jobs := make(chan int)
	go func() {
		defer close(jobs)
		for i := 0; i < n; i++ {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	worker := func() {
		retired := false
		defer func() {
			wg.Done()
			if !retired {
				p.release()
			}
		}()
		for {
			// Scale down by attrition: surplus workers exit between
			// tasks. The check and the slot decrement happen under one
			// lock, so a downshift retires exactly active-target workers;
			// the survivors see the shrunken count and keep draining.
			if p.retireIfSurplus() {
				retired = true
				return
			}
			select {
			case <-ctx.Done():
				return
			case i, ok := <-jobs:
				if !ok {
					return
				}
				start := time.Now()
				err := fn(ctx, i)
				p.aimd.Feedback(time.Since(start), err != nil && throttled != nil && throttled(err))
			}
		}
	}

	spawn := func() {
		target := p.aimd.GetConcurrency()
		if target > n {
			target = n
		}
		for p.acquireBelow(target) {
			wg.Add(1)
			go worker()
		}
	}
	spawn()

	done := make(chan struct{})
	go func() {
		defer close(done)
		wg.Wait()
	}()

	// The supervisor respawns workers while work remains, so a pool that
	// shrank under throttle can grow back once feedback improves.
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return ctx.Err()
		case <-ctx.Done():
			<-done
			return ctx.Err()
		case <-ticker.C:
			spawn()
		}
	}
}

// retireIfSurplus releases this worker's slot when the pool sits over its
// target. Deciding and decrementing under the same lock keeps concurrent
// workers from all reading the same pre-release count and exiting together,
// which would close the pool with jobs still queued.
func (p *Pool) retireIfSurplus() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active <= p.aimd.GetConcurrency() {
		return false
	}
	p.active--
	return true
}

// acquireBelow claims a worker slot if the pool is under target.
func (p *Pool) acquireBelow(target int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active >= target {
		return false
	}
	p.active++
	return true
}

func (p *Pool) release() {
	p.mu.Lock()
	p.active--
	p.mu.Unlock()
}

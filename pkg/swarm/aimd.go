// Package swarm provides the adaptive worker pool that fans a scan out
// across regions. Concurrency follows an AIMD curve: healthy completions
// nudge the worker target up by one, a throttle signal halves it.
package swarm

import (
	"sync"
	"time"
)

// healthyLatency is the completion time under which a task still counts as
// evidence the account can absorb more parallelism. Slower completions
// leave the target where it is.
const healthyLatency = 30 * time.Second

type AIMD struct {
	mu          sync.Mutex
	concurrency int
	minWorkers  int
	maxWorkers  int
	lastChange  time.Time
}

func NewAIMD(start, min, max int) *AIMD {
	if min < 1 {
		min = 1
	}
	if max < min {
		max = min
	}
	if start < min {
		start = min
	}
	if start > max {
		start = max
	}
	return &AIMD{
		concurrency: start,
		minWorkers:  min,
		maxWorkers:  max,
		lastChange:  time.Now(),
	}
}

func (a *AIMD) GetConcurrency() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.concurrency
}

// Feedback reports one task completion. Adjustments are damped to at most
// one change per 100ms so a burst of parallel completions cannot slam the
// target around.
func (a *AIMD) Feedback(lat time.Duration, throttled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	if now.Sub(a.lastChange) < 100*time.Millisecond {
		return
	}

	if throttled {
		a.concurrency = a.concurrency / 2
		if a.concurrency < a.minWorkers {
			a.concurrency = a.minWorkers
		}
		a.lastChange = now
		return
	}

	if lat < healthyLatency {
		a.concurrency++
		if a.concurrency > a.maxWorkers {
			a.concurrency = a.maxWorkers
		}
		a.lastChange = now
	}
}

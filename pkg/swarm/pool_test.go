package swarm

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolRunsEveryTaskOnce(t *testing.T) {
	p := NewPool(4, 1, 4)

	var mu sync.Mutex
	seen := make(map[int]int)
	err := p.Run(context.Background(), 50, nil, func(_ context.Context, i int) error {
		mu.Lock()
		seen[i]++
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(seen) != 50 {
		t.Fatalf("ran %d distinct tasks, want 50", len(seen))
	}
	for i, n := range seen {
		if n != 1 {
			t.Errorf("task %d ran %d times", i, n)
		}
	}
}

func TestPoolHonorsMaxConcurrency(t *testing.T) {
	const max = 3
	p := NewPool(max, 1, max)

	var active, peak atomic.Int32
	err := p.Run(context.Background(), 30, nil, func(_ context.Context, _ int) error {
		cur := active.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if peak.Load() > max {
		t.Errorf("peak concurrency %d exceeded max %d", peak.Load(), max)
	}
}

func TestPoolShrinksOnThrottle(t *testing.T) {
	p := NewPool(8, 1, 8)
	throttle := errors.New("throttled")

	err := p.Run(context.Background(), 6, func(err error) bool { return errors.Is(err, throttle) },
		func(_ context.Context, _ int) error {
			// Spaced past the AIMD damping window so each signal lands.
			time.Sleep(120 * time.Millisecond)
			return throttle
		})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := p.Concurrency(); got >= 8 {
		t.Errorf("concurrency after sustained throttling = %d, want < 8", got)
	}
}

func TestPoolRetiresAtMostSurplus(t *testing.T) {
	p := NewPool(1, 1, 8)
	p.mu.Lock()
	p.active = 4
	p.mu.Unlock()

	// Target 1, four active: exactly three sequential retirements succeed,
	// and the surviving worker can never talk itself out of its slot.
	for i := 0; i < 3; i++ {
		if !p.retireIfSurplus() {
			t.Fatalf("retirement %d refused with active > target", i+1)
		}
	}
	if p.retireIfSurplus() {
		t.Fatal("last worker retired, pool would close with jobs queued")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active != 1 {
		t.Errorf("active = %d after downshift, want 1", p.active)
	}
}

func TestPoolFinishesAllTasksUnderThrottleDownshift(t *testing.T) {
	throttle := errors.New("throttled")
	for run := 0; run < 20; run++ {
		p := NewPool(8, 1, 8)

		var mu sync.Mutex
		seen := make(map[int]int)
		err := p.Run(context.Background(), 12,
			func(err error) bool { return errors.Is(err, throttle) },
			func(_ context.Context, i int) error {
				time.Sleep(60 * time.Millisecond)
				mu.Lock()
				seen[i]++
				mu.Unlock()
				// Every completion reports throttling, so the target
				// halves while a full complement of workers is between
				// tasks deciding whether to exit.
				return throttle
			})
		if err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
		if len(seen) != 12 {
			t.Fatalf("run %d: %d distinct tasks completed, want 12", run, len(seen))
		}
		for i, n := range seen {
			if n != 1 {
				t.Errorf("run %d: task %d ran %d times", run, i, n)
			}
		}
	}
}

func TestPoolStopsOnCancel(t *testing.T) {
	p := NewPool(2, 1, 2)
	ctx, cancel := context.WithCancel(context.Background())

	var ran atomic.Int32
	errc := make(chan error, 1)
	go func() {
		errc <- p.Run(ctx, 1000, nil, func(ctx context.Context, _ int) error {
			ran.Add(1)
			select {
			case <-time.After(10 * time.Millisecond):
			case <-ctx.Done():
			}
			return nil
		})
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if n := ran.Load(); n >= 1000 {
		t.Errorf("all %d tasks ran despite cancellation", n)
	}
}

func TestPoolZeroTasks(t *testing.T) {
	if err := NewPool(4, 1, 4).Run(context.Background(), 0, nil, nil); err != nil {
		t.Fatalf("Run with zero tasks: %v", err)
	}
}

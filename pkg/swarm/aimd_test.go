package swarm

import (
	"testing"
	"time"
)

func TestAIMDFeedback(t *testing.T) {
	aimd := NewAIMD(10, 5, 20)

	if aimd.GetConcurrency() != 10 {
		t.Errorf("initial concurrency = %d, want 10", aimd.GetConcurrency())
	}

	// Additive increase. The damping window means we must wait >100ms.
	time.Sleep(110 * time.Millisecond)
	aimd.Feedback(50*time.Millisecond, false)
	if aimd.GetConcurrency() != 11 {
		t.Errorf("concurrency after success = %d, want 11", aimd.GetConcurrency())
	}

	// Multiplicative decrease.
	time.Sleep(110 * time.Millisecond)
	aimd.Feedback(500*time.Millisecond, true)
	if aimd.GetConcurrency() != 5 {
		t.Errorf("concurrency after throttle = %d, want 5", aimd.GetConcurrency())
	}

	// Halving again must respect the floor.
	time.Sleep(110 * time.Millisecond)
	aimd.Feedback(500*time.Millisecond, true)
	if aimd.GetConcurrency() < 5 {
		t.Errorf("concurrency dropped below min: %d", aimd.GetConcurrency())
	}
}

func TestAIMDCeilingAndDamping(t *testing.T) {
	aimd := NewAIMD(4, 1, 4)

	// Already at max: success must not push past the ceiling.
	time.Sleep(110 * time.Millisecond)
	aimd.Feedback(time.Millisecond, false)
	if aimd.GetConcurrency() != 4 {
		t.Errorf("concurrency exceeded max: %d", aimd.GetConcurrency())
	}

	// Two signals inside the damping window: only the first applies.
	time.Sleep(110 * time.Millisecond)
	aimd.Feedback(time.Millisecond, true) // 4 -> 2
	aimd.Feedback(time.Millisecond, true) // damped
	if got := aimd.GetConcurrency(); got != 2 {
		t.Errorf("concurrency after damped pair = %d, want 2", got)
	}
}

func TestAIMDSlowTaskDoesNotScaleUp(t *testing.T) {
	aimd := NewAIMD(2, 1, 8)
	time.Sleep(110 * time.Millisecond)
	aimd.Feedback(healthyLatency+time.Second, false)
	if aimd.GetConcurrency() != 2 {
		t.Errorf("slow completion changed concurrency to %d", aimd.GetConcurrency())
	}
}

func TestNewAIMDClamps(t *testing.T) {
	if got := NewAIMD(100, 2, 8).GetConcurrency(); got != 8 {
		t.Errorf("start above max = %d, want 8", got)
	}
	if got := NewAIMD(0, 2, 8).GetConcurrency(); got != 2 {
		t.Errorf("start below min = %d, want 2", got)
	}
	if got := NewAIMD(0, 0, 0).GetConcurrency(); got != 1 {
		t.Errorf("degenerate bounds = %d, want 1", got)
	}
}

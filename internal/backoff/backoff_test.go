package backoff

import (
	"testing"
	"time"
)

func TestDelayGrowsExponentially(t *testing.T) {
	p := Policy{Initial: 100 * time.Millisecond, Max: 10 * time.Second, Factor: 2}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := p.delayWithRand(tt.attempt, 0); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestDelayClampedToMax(t *testing.T) {
	p := Policy{Initial: time.Second, Max: 5 * time.Second, Factor: 2}
	if got := p.delayWithRand(10, 0); got != 5*time.Second {
		t.Errorf("Delay(10) = %v, want clamped to 5s", got)
	}
}

func TestDelayJitter(t *testing.T) {
	p := Policy{Initial: time.Second, Max: time.Minute, Factor: 2, Jitter: 0.1}

	base := p.delayWithRand(1, 0)
	if base != time.Second {
		t.Errorf("zero-random delay = %v, want 1s", base)
	}
	full := p.delayWithRand(1, 1)
	if full != 1100*time.Millisecond {
		t.Errorf("full-random delay = %v, want 1.1s", full)
	}
}

func TestDelayAttemptFloor(t *testing.T) {
	p := Policy{Initial: time.Second, Max: time.Minute, Factor: 2}
	if got := p.delayWithRand(0, 0); got != time.Second {
		t.Errorf("Delay(0) = %v, want the initial delay", got)
	}
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	if p.Initial != time.Second || p.Max != 30*time.Second {
		t.Errorf("DefaultPolicy() = %+v", p)
	}
}

package retry

import (
	"testing"
	"time"
)

func TestNextDelay(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name       string
		retryCount int
		want       time.Duration
	}{
		{name: "first retry", retryCount: 0, want: 15 * time.Minute},
		{name: "second retry", retryCount: 1, want: 30 * time.Minute},
		{name: "third retry", retryCount: 2, want: 60 * time.Minute},
		{name: "negative clamps to base", retryCount: -1, want: 15 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.NextDelay(tt.retryCount); got != tt.want {
				t.Errorf("NextDelay(%d) = %v, want %v", tt.retryCount, got, tt.want)
			}
		})
	}
}

func TestNextDelayCapped(t *testing.T) {
	p := Policy{MaxRetries: 5, BaseDelay: time.Minute, Multiplier: 10, MaxDelay: 5 * time.Minute}

	if got := p.NextDelay(3); got != 5*time.Minute {
		t.Errorf("NextDelay(3) = %v, want cap of 5m", got)
	}
}

func TestExhausted(t *testing.T) {
	p := DefaultPolicy()

	if p.Exhausted(2) {
		t.Error("Exhausted(2) = true, want false")
	}
	if !p.Exhausted(3) {
		t.Error("Exhausted(3) = false, want true")
	}
}

func TestNextRetryAt(t *testing.T) {
	p := DefaultPolicy()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	got := p.NextRetryAt(now, 1)
	want := now.Add(30 * time.Minute)
	if !got.Equal(want) {
		t.Errorf("NextRetryAt = %v, want %v", got, want)
	}
}

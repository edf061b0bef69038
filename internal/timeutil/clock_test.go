package timeutil

import (
	"testing"
	"time"
)

func TestRealClock(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", now, before, after)
	}
	if d := clock.Since(time.Now().Add(-time.Second)); d < time.Second {
		t.Errorf("Since() returned %v, expected >= 1s", d)
	}
}

func TestMockClock_Set(t *testing.T) {
	fixed := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)
	clock := NewMockClock(fixed)
	if got := clock.Now(); !got.Equal(fixed) {
		t.Errorf("Now() = %v, want %v", got, fixed)
	}

	if got := clock.Since(fixed.Add(-90 * time.Second)); got != 90*time.Second {
		t.Errorf("Since() = %v, want 1m30s", got)
	}

	later := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	clock.Set(later)
	if got := clock.Now(); !got.Equal(later) {
		t.Errorf("after Set, Now() = %v, want %v", got, later)
	}
}

func TestSteppingClock(t *testing.T) {
	start := time.Unix(1700000000, 0)
	clock := NewSteppingClock(start, time.Second)

	first, second := clock.Now(), clock.Now()
	if want := start.Add(time.Second); !first.Equal(want) {
		t.Errorf("first Now() = %v, want %v", first, want)
	}
	if got := second.Sub(first); got != time.Second {
		t.Errorf("step = %v, want 1s", got)
	}
}

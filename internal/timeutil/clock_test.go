package timeutil

import (
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", now, before, after)
	}
}

func TestRealClock_NewTimer(t *testing.T) {
	clock := RealClock{}
	timer := clock.NewTimer(10 * time.Millisecond)
	defer timer.Stop()

	select {
	case <-timer.C():
	case <-time.After(time.Second):
		t.Error("timer did not fire")
	}
}

func TestMockClock_TimerFiresOnDeadline(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	clock := NewMockClock(start)
	timer := clock.NewTimer(4 * time.Second)

	clock.Advance(3 * time.Second)
	select {
	case <-timer.C():
		t.Fatal("timer fired before deadline")
	default:
	}

	clock.Advance(time.Second)
	select {
	case got := <-timer.C():
		if !got.Equal(start.Add(4 * time.Second)) {
			t.Errorf("fired at %v, want %v", got, start.Add(4*time.Second))
		}
	default:
		t.Fatal("timer did not fire at deadline")
	}
}

func TestMockClock_StoppedTimerDoesNotFire(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	timer := clock.NewTimer(time.Second)

	if !timer.Stop() {
		t.Error("Stop() on active timer should return true")
	}
	clock.Advance(2 * time.Second)

	select {
	case <-timer.C():
		t.Error("stopped timer fired")
	default:
	}
}

func TestMockClock_TimerCreatedSignal(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	clock.NewTimer(time.Second)

	select {
	case <-clock.TimerCreated():
	default:
		t.Fatal("expected a timer-created signal")
	}
}

func TestMockClock_TickerRepeats(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	ticker := clock.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for i := 0; i < 3; i++ {
		clock.Advance(10 * time.Millisecond)
		select {
		case <-ticker.C():
		default:
			t.Fatalf("tick %d missing", i)
		}
	}
}

func TestMockClock_Since(t *testing.T) {
	start := time.Unix(100, 0)
	clock := NewMockClock(start)
	clock.Advance(1500 * time.Millisecond)

	if got := clock.Since(start); got != 1500*time.Millisecond {
		t.Errorf("Since() = %v, want 1.5s", got)
	}
}

func TestMockClock_PendingDropsFinished(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	clock.NewTimer(time.Second)
	stopped := clock.NewTimer(time.Second)
	ticker := clock.NewTicker(time.Second)
	stopped.Stop()

	if got := clock.Pending(); got != 2 {
		t.Errorf("Pending() = %d, want 2", got)
	}
	clock.Advance(time.Second)
	if got := clock.Pending(); got != 1 {
		t.Errorf("Pending() after firing = %d, want 1 (the ticker)", got)
	}
	ticker.Stop()
	if got := clock.Pending(); got != 0 {
		t.Errorf("Pending() after Stop = %d, want 0", got)
	}
}

func TestMockClock_FiredTimerStopReturnsFalse(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	timer := clock.NewTimer(time.Millisecond)
	clock.Advance(time.Millisecond)
	if timer.Stop() {
		t.Error("Stop() after firing should return false")
	}
}

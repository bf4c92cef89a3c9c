package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestDisabledNeverWaits(t *testing.T) {
	l := Disabled()
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 1000; i++ {
		if err := l.Acquire(ctx, "example.com"); err != nil {
			t.Fatalf("Acquire: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("disabled limiter waited %v", elapsed)
	}
}

func TestBurstThenWait(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequestsPerSecond = 10
	cfg.Burst = 4
	l := New(cfg)
	ctx := context.Background()

	// Burst drains the saved-up tokens without waiting.
	start := time.Now()
	for i := 0; i < 2; i++ {
		if err := l.Acquire(ctx, "example.com"); err != nil {
			t.Fatalf("Acquire: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("burst acquires waited %v", elapsed)
	}

	// Host bucket runs at half rate (5 rps), so the next acquire after the
	// burst must wait roughly one refill interval.
	start = time.Now()
	for i := 0; i < 3; i++ {
		if err := l.Acquire(ctx, "example.com"); err != nil {
			t.Fatalf("Acquire: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("post-burst acquires waited only %v", elapsed)
	}
}

func TestAcquireRespectsCancellation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequestsPerSecond = 1
	cfg.Burst = 1
	l := New(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	if err := l.Acquire(ctx, "example.com"); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- l.Acquire(ctx, "example.com") }()
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Error("Acquire returned nil after cancellation")
		}
	case <-time.After(time.Second):
		t.Error("Acquire did not return after cancellation")
	}
}

func TestPressureMonotonicallyShrinks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequestsPerSecond = 100
	cfg.Floor = 2
	l := New(cfg)

	prev := l.Rate()
	for i := 0; i < 20; i++ {
		l.ReportPressure("example.com")
		cur := l.Rate()
		if cur > prev {
			t.Fatalf("rate increased under pressure: %v -> %v", prev, cur)
		}
		prev = cur
	}
	if got := l.Rate(); got != cfg.Floor {
		t.Errorf("rate after sustained pressure = %v, want floor %v", got, cfg.Floor)
	}
}

func TestRecoveryWidensAfterStreak(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequestsPerSecond = 100
	cfg.RecoveryStreak = 10
	l := New(cfg)

	l.ReportPressure("example.com")
	dampened := l.Rate()
	if dampened >= 100 {
		t.Fatalf("pressure did not shrink rate: %v", dampened)
	}

	for i := 0; i < 9; i++ {
		l.ReportSuccess()
	}
	if got := l.Rate(); got != dampened {
		t.Errorf("rate recovered before streak completed: %v", got)
	}
	l.ReportSuccess()
	if got := l.Rate(); got <= dampened {
		t.Errorf("rate did not recover after streak: %v", got)
	}
}

func TestRecoveryRespectsCeiling(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequestsPerSecond = 100
	cfg.Ceiling = 120
	cfg.RecoveryStreak = 1
	l := New(cfg)

	for i := 0; i < 50; i++ {
		l.ReportSuccess()
	}
	if got := l.Rate(); got > 120 {
		t.Errorf("rate exceeded ceiling: %v", got)
	}
}

func TestPressureResetsStreak(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequestsPerSecond = 100
	cfg.RecoveryStreak = 5
	l := New(cfg)

	for i := 0; i < 4; i++ {
		l.ReportSuccess()
	}
	l.ReportPressure("example.com")
	dampened := l.Rate()
	l.ReportSuccess()
	if got := l.Rate(); got != dampened {
		t.Errorf("streak survived a pressure event: rate %v, want %v", got, dampened)
	}
}

func TestSnapshot(t *testing.T) {
	l := New(DefaultConfig())
	ctx := context.Background()
	_ = l.Acquire(ctx, "a.example.com")
	_ = l.Acquire(ctx, "b.example.com")
	l.ReportPressure("a.example.com")

	s := l.Snapshot()
	if s.HostBuckets != 2 {
		t.Errorf("HostBuckets = %d, want 2", s.HostBuckets)
	}
	if s.PressureEvents != 1 {
		t.Errorf("PressureEvents = %d, want 1", s.PressureEvents)
	}
	if s.CurrentRate >= DefaultConfig().RequestsPerSecond {
		t.Errorf("CurrentRate = %v, want dampened", s.CurrentRate)
	}
}

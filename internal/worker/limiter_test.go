package worker

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_AllowWithinBurst(t *testing.T) {
	l := NewLimiter(1, 3)

	allowed := 0
	for i := 0; i < 5; i++ {
		if l.Allow("https://example.com/page") {
			allowed++
		}
	}
	if allowed != 3 {
		t.Errorf("expected burst of 3 allowed, got %d", allowed)
	}
}

func TestLimiter_DomainsAreIndependent(t *testing.T) {
	l := NewLimiter(1, 1)

	if !l.Allow("https://a.example.com/x") {
		t.Error("first request to a.example.com should pass")
	}
	if !l.Allow("https://b.example.com/x") {
		t.Error("first request to b.example.com should pass despite a.example.com burst use")
	}
	if l.Allow("https://a.example.com/y") {
		t.Error("second immediate request to a.example.com should be limited")
	}
}

func TestLimiter_WaitRespectsContext(t *testing.T) {
	l := NewLimiter(0.01, 1)
	l.Allow("https://slow.example.com/") // drain the burst

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := l.Wait(ctx, "https://slow.example.com/"); err == nil {
		t.Error("expected context deadline error, got nil")
	}
}

func TestLimiter_InvalidURL(t *testing.T) {
	l := NewLimiter(1, 1)
	if l.Allow("://not-a-url") {
		t.Error("invalid URL should not be allowed")
	}
}

func TestLimiter_WaitWithDelay(t *testing.T) {
	l := NewLimiter(100, 10)

	start := time.Now()
	if err := l.WaitWithDelay(context.Background(), "https://example.com/", 30*time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("expected at least 30ms delay, got %v", elapsed)
	}
}

package middleware

import (
	"testing"
	"time"

	"github.com/meishi/backend/internal/config"
)

func TestIPRateLimiterEnforcesBurst(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewIPRateLimiter(1, time.Minute, 2, time.Hour)
	l.WithNowFunc(func() time.Time { return now })

	if !l.Allow("qr:10.0.0.1") || !l.Allow("qr:10.0.0.1") {
		t.Fatal("expected burst of two to be allowed")
	}
	if l.Allow("qr:10.0.0.1") {
		t.Fatal("expected third request to be rejected")
	}
	if !l.Allow("qr:10.0.0.2") {
		t.Fatal("expected a different key to have its own budget")
	}

	now = now.Add(time.Minute)
	if !l.Allow("qr:10.0.0.1") {
		t.Fatal("expected a token to be refilled after the window")
	}
}

func TestIPRateLimiterExpiresIdleKeys(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewIPRateLimiter(10, time.Minute, 1, time.Minute)
	l.WithNowFunc(func() time.Time { return now })

	l.Allow("a")
	l.Allow("b")
	if got := l.Len(); got != 2 {
		t.Fatalf("expected 2 tracked keys, got %d", got)
	}

	now = now.Add(2 * time.Minute)
	l.Allow("c")
	if got := l.Len(); got != 1 {
		t.Fatalf("expected idle keys to be collected, got %d", got)
	}
}

func TestNewRateLimiterFromConfigDefaults(t *testing.T) {
	l := NewRateLimiterFromConfig(config.RateLimitConfig{})
	if l.burst != 1 || l.ttl != 5*time.Minute {
		t.Fatalf("unexpected defaults: burst=%d ttl=%s", l.burst, l.ttl)
	}
	if !l.Allow("") {
		t.Fatal("expected first request to pass")
	}
}

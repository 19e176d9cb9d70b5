package core

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, limit int, window time.Duration) (*LoginRateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewLoginRateLimiter(client, limit, window), mr
}

func TestRateLimiterAllowsUpToLimit(t *testing.T) {
	limiter, _ := newTestLimiter(t, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, "ratelimit:login:1.2.3.4")
		if err != nil {
			t.Fatalf("allow error on attempt %d: %v", i+1, err)
		}
		if !ok {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
	}
	ok, err := limiter.Allow(ctx, "ratelimit:login:1.2.3.4")
	if err != nil {
		t.Fatalf("allow error: %v", err)
	}
	if ok {
		t.Fatalf("attempt over the limit should be blocked")
	}
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	limiter, _ := newTestLimiter(t, 1, time.Minute)
	ctx := context.Background()

	if ok, _ := limiter.Allow(ctx, "ratelimit:login:1.1.1.1"); !ok {
		t.Fatalf("first key should be allowed")
	}
	if ok, _ := limiter.Allow(ctx, "ratelimit:login:1.1.1.1"); ok {
		t.Fatalf("first key should now be blocked")
	}
	if ok, _ := limiter.Allow(ctx, "ratelimit:login:2.2.2.2"); !ok {
		t.Fatalf("other key must not be affected")
	}
}

func TestRateLimiterWindowResets(t *testing.T) {
	limiter, mr := newTestLimiter(t, 1, time.Minute)
	ctx := context.Background()

	if ok, _ := limiter.Allow(ctx, "ratelimit:login:1.2.3.4"); !ok {
		t.Fatalf("first attempt should be allowed")
	}
	if ok, _ := limiter.Allow(ctx, "ratelimit:login:1.2.3.4"); ok {
		t.Fatalf("second attempt should be blocked")
	}

	mr.FastForward(time.Minute + time.Second)

	if ok, err := limiter.Allow(ctx, "ratelimit:login:1.2.3.4"); err != nil || !ok {
		t.Fatalf("attempt after window reset should be allowed: ok=%v err=%v", ok, err)
	}
}

func TestRateLimiterDisabledWhenLimitZero(t *testing.T) {
	limiter, _ := newTestLimiter(t, 0, time.Minute)
	for i := 0; i < 10; i++ {
		ok, err := limiter.Allow(context.Background(), "ratelimit:login:1.2.3.4")
		if err != nil || !ok {
			t.Fatalf("limiter with limit 0 must always allow: ok=%v err=%v", ok, err)
		}
	}
}

func TestRateLimiterReportsRedisFailure(t *testing.T) {
	limiter, mr := newTestLimiter(t, 3, time.Minute)
	mr.Close()

	if _, err := limiter.Allow(context.Background(), "ratelimit:login:1.2.3.4"); err == nil {
		t.Fatalf("expected error when redis is down")
	}
}

package core

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient returns a configured go-redis client from URL (e.g., redis://localhost:6379/0).
func NewRedisClient(redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, errors.New("empty redis url")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return client, nil
}

// LoginRateLimiter is a fixed-window counter over redis shared by all API
// instances. It throttles credential-guessing on the login and register
// endpoints; it carries no authentication state.
type LoginRateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

func NewLoginRateLimiter(client *redis.Client, limit int, window time.Duration) *LoginRateLimiter {
	return &LoginRateLimiter{client: client, limit: limit, window: window}
}

// incrScript bumps the counter and sets the window expiry on first hit, so
// the count and its deadline stay atomic.
var incrScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// Allow reports whether another attempt under key fits in the current window.
func (l *LoginRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}
	res, err := incrScript.Run(ctx, l.client, []string{key}, l.window.Milliseconds()).Result()
	if err != nil {
		return false, err
	}
	n, ok := res.(int64)
	if !ok {
		return false, errors.New("unexpected rate limit response type")
	}
	return n <= int64(l.limit), nil
}

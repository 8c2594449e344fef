package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix    = "gamebackend:ratelimit:"
	redisOpTimeout    = 250 * time.Millisecond
	redisPingDeadline = 2 * time.Second
)

// Redis keeps counters in Redis so every API replica shares one budget.
// Redis failures let the request through.
type Redis struct {
	client *redis.Client
	logger *slog.Logger
	clock  func() time.Time
}

// RedisOptions locates the Redis server.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// DialRedis connects and pings the server before returning.
func DialRedis(opts RedisOptions, logger *slog.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: opts.Addr, Password: opts.Password, DB: opts.DB})
	ctx, cancel := context.WithTimeout(context.Background(), redisPingDeadline)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return NewRedis(client, logger), nil
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{client: client, logger: logger.With("component", "rate_limiter"), clock: time.Now}
}

// Allow increments the window counter and reads its remaining lifetime in a
// single pipeline. A counter found without an expiry gets one, so a crash
// between INCR and EXPIRE cannot pin a key forever.
func (r *Redis) Allow(ctx context.Context, key string, limit int, window time.Duration) Decision {
	if limit <= 0 {
		return unlimited(limit)
	}
	if window <= 0 {
		window = DefaultWindow
	}
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	redisKey := redisKeyPrefix + key
	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, redisKey)
		ttl = p.PTTL(ctx, redisKey)
		return nil
	})
	if err != nil {
		r.logger.Error("rate limit counter unavailable", "op", "incr", "error", err)
		return unlimited(limit)
	}

	remaining := ttl.Val()
	if remaining <= 0 {
		if err := r.client.PExpire(ctx, redisKey, window).Err(); err != nil {
			r.logger.Warn("rate limit expiry not set", "key", redisKey, "error", err)
		}
		remaining = window
	}
	hits := int(incr.Val())
	return Decision{
		Allowed: hits <= limit,
		Count:   hits,
		Limit:   limit,
		ResetAt: r.clock().Add(remaining),
	}
}

// Close releases the Redis connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

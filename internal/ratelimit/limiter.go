package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"golang.org/x/time/rate"

	"github.com/openmave/mavemeter/internal/monitoring"
)

// Config holds rate limiter settings.
type Config struct {
	RequestsPerMin  int
	BurstMultiplier int
}

// DefaultConfig returns the default limits.
func DefaultConfig() Config {
	return Config{
		RequestsPerMin:  60,
		BurstMultiplier: 2,
	}
}

// Result is the outcome of one rate limit check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Limiter rate-limits per client IP, preferring Redis when available and
// degrading to in-memory token buckets otherwise.
type Limiter struct {
	redisLimiter *redis_rate.Limiter
	redisClient  *RedisClient
	config       Config
	metrics      *monitoring.Metrics

	fallbackLimiters map[string]*rate.Limiter
	fallbackMutex    sync.RWMutex
}

// NewLimiter creates a limiter over the given Redis client.
func NewLimiter(redisClient *RedisClient, config Config, metrics *monitoring.Metrics) *Limiter {
	l := &Limiter{
		redisClient:      redisClient,
		config:           config,
		metrics:          metrics,
		fallbackLimiters: make(map[string]*rate.Limiter),
	}

	if redisClient.IsEnabled() {
		l.redisLimiter = redis_rate.NewLimiter(redisClient.Client())
		slog.Info("redis rate limiter initialized")
	} else {
		slog.Warn("redis unavailable, in-memory rate limiting only")
	}

	go l.cleanupFallbackLimiters()

	return l
}

// AllowIP checks the per-minute limit for one client IP.
func (l *Limiter) AllowIP(ctx context.Context, ip string) (*Result, error) {
	key := fmt.Sprintf("ratelimit:ip:%s", ip)
	return l.allow(ctx, key, l.config.RequestsPerMin, time.Minute)
}

func (l *Limiter) allow(ctx context.Context, key string, limit int, period time.Duration) (*Result, error) {
	if l.redisClient.IsEnabled() && l.redisLimiter != nil {
		result, err := l.allowRedis(ctx, key, limit, period)
		if err != nil {
			slog.Warn("redis rate limit check failed, using fallback", "key", key, "error", err)
			if l.metrics != nil {
				l.metrics.IncrementRateLimitRedisError()
			}
			return l.allowFallback(key, limit, period)
		}
		return result, nil
	}

	if l.metrics != nil {
		l.metrics.IncrementRateLimitFallback()
	}
	return l.allowFallback(key, limit, period)
}

func (l *Limiter) allowRedis(ctx context.Context, key string, limit int, period time.Duration) (*Result, error) {
	res, err := l.redisLimiter.Allow(ctx, key, redis_rate.Limit{
		Rate:   limit,
		Burst:  limit,
		Period: period,
	})
	if err != nil {
		return nil, fmt.Errorf("redis rate limit check failed: %w", err)
	}

	return &Result{
		Allowed:    res.Allowed > 0,
		Limit:      res.Limit.Rate,
		Remaining:  res.Remaining,
		ResetAt:    time.Now().Add(res.ResetAfter),
		RetryAfter: res.RetryAfter,
	}, nil
}

func (l *Limiter) allowFallback(key string, limit int, period time.Duration) (*Result, error) {
	l.fallbackMutex.Lock()
	limiter, exists := l.fallbackLimiters[key]
	if !exists {
		rps := rate.Limit(float64(limit) / period.Seconds())
		burst := limit * l.config.BurstMultiplier
		if burst < 5 {
			burst = 5
		}
		limiter = rate.NewLimiter(rps, burst)
		l.fallbackLimiters[key] = limiter
	}
	l.fallbackMutex.Unlock()

	allowed := limiter.Allow()

	tokens := limiter.Tokens()
	remaining := int(tokens)
	if remaining < 0 {
		remaining = 0
	}

	result := &Result{
		Allowed:   allowed,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   time.Now().Add(period),
	}
	if !allowed {
		result.RetryAfter = time.Until(result.ResetAt)
	}
	return result, nil
}

// cleanupFallbackLimiters bounds fallback map growth under IP churn.
func (l *Limiter) cleanupFallbackLimiters() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		l.fallbackMutex.Lock()
		if len(l.fallbackLimiters) > 1000 {
			slog.Info("clearing fallback rate limiters", "count", len(l.fallbackLimiters))
			l.fallbackLimiters = make(map[string]*rate.Limiter)
		}
		l.fallbackMutex.Unlock()
	}
}

// Stats returns limiter statistics for the metrics endpoint.
func (l *Limiter) Stats() map[string]interface{} {
	l.fallbackMutex.RLock()
	fallbackCount := len(l.fallbackLimiters)
	l.fallbackMutex.RUnlock()

	stats := map[string]interface{}{
		"redis_enabled":     l.redisClient.IsEnabled(),
		"fallback_limiters": fallbackCount,
	}
	if l.redisClient.IsEnabled() {
		stats["redis_pool"] = l.redisClient.PoolStats()
	}
	return stats
}

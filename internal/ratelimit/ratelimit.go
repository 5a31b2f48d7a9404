package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/sensorhub/sensorhub/internal/kvstore"
	"github.com/sirupsen/logrus"
)

// slidingWindowScript admits a request when fewer than max_requests admitted
// timestamps remain inside the window. The window is only populated on
// admission, denied probes never consume a slot.
const slidingWindowScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window_start = tonumber(ARGV[2])
local max_requests = tonumber(ARGV[3])
local window_seconds = tonumber(ARGV[4])

redis.call('ZREMRANGEBYSCORE', key, 0, window_start)

local current_count = redis.call('ZCARD', key)

if current_count < max_requests then
    redis.call('ZADD', key, now, now)
    redis.call('EXPIRE', key, window_seconds * 2)
    return {1, max_requests - current_count - 1}
else
    return {0, 0}
end
`

// Result reports the outcome of a single admission check.
type Result struct {
	Allowed   bool
	Remaining int
}

// Limits holds the configured budgets for the two built-in limiters.
type Limits struct {
	TelemetryPerDevice int
	WindowSeconds      int
	GlobalPerSecond    int
}

// Limiter implements sliding-window admission over the shared store, so
// budgets hold across every process that fronts the same store.
type Limiter struct {
	kv     kvstore.KVStore
	log    logrus.FieldLogger
	limits Limits
}

func NewLimiter(log logrus.FieldLogger, kv kvstore.KVStore, limits Limits) *Limiter {
	return &Limiter{
		kv:     kv,
		log:    log,
		limits: limits,
	}
}

// Check runs one atomic sliding-window probe for the identifier.
func (l *Limiter) Check(ctx context.Context, identifier string, maxRequests, windowSeconds int) (Result, error) {
	now := time.Now().UnixMilli()
	windowStart := now - int64(windowSeconds)*1000
	key := fmt.Sprintf("ratelimit:%s", identifier)

	ret, err := l.kv.Eval(ctx, slidingWindowScript, []string{key}, now, windowStart, maxRequests, windowSeconds)
	if err != nil {
		return Result{}, fmt.Errorf("rate limit check for %s: %w", identifier, err)
	}

	vals, ok := ret.([]interface{})
	if !ok || len(vals) != 2 {
		return Result{}, fmt.Errorf("rate limit check for %s: unexpected script reply %v", identifier, ret)
	}
	allowed, _ := vals[0].(int64)
	remaining, _ := vals[1].(int64)

	return Result{Allowed: allowed == 1, Remaining: int(remaining)}, nil
}

// CheckDevice probes the per-device telemetry budget.
func (l *Limiter) CheckDevice(ctx context.Context, deviceId string) (Result, error) {
	return l.Check(ctx, fmt.Sprintf("device:%s", deviceId), l.limits.TelemetryPerDevice, l.limits.WindowSeconds)
}

// CheckGlobal probes the process-spanning admission budget over a one second
// window.
func (l *Limiter) CheckGlobal(ctx context.Context) (Result, error) {
	return l.Check(ctx, "global", l.limits.GlobalPerSecond, 1)
}

// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisLimiter is the horizontally-scaled alternative to MemoryLimiter. It
// keeps one sorted set per (scope, key, window) in Redis and uses
// ZREMRANGEBYSCORE/ZCARD/ZADD the way agent/redis_rate_limit.go does for
// its single-window client limiter, generalized here to the two scopes and
// two horizons the gateway's policy requires. On any Redis error it fails
// open (allows the request) without reporting the error to the caller —
// availability of the underwriting workflow outranks a missed rate-limit
// window during a Redis outage.
type RedisLimiter struct {
	client *redis.Client
	limits Limits
	now    func() time.Time
}

// NewRedis wraps an existing *redis.Client. The caller owns the client's
// lifecycle; Close on RedisLimiter is a no-op since the client may be
// shared with other subsystems.
func NewRedis(client *redis.Client, limits Limits) *RedisLimiter {
	return &RedisLimiter{client: client, limits: limits, now: time.Now}
}

func (r *RedisLimiter) Close() {}

func windowKey(scope, key string, window time.Duration) string {
	return fmt.Sprintf("ratelimit:%s:%s:%d", scope, key, int64(window.Seconds()))
}

// countWindow runs the ZREMRANGEBYSCORE/ZCARD pipeline against one
// (scope, key, window) and returns the count and the oldest remaining
// entry; it never adds an entry (recordWindow does the ZADD).
// Entries are scored by Unix millisecond (not nanosecond — a Redis
// score is a float64, and nanosecond epoch timestamps overflow its 53-bit
// mantissa; millisecond resolution keeps scores exact and is far finer
// than either window needs).
func (r *RedisLimiter) countWindow(ctx context.Context, scope, key string, window time.Duration) (int64, time.Time, error) {
	now := r.now()
	k := windowKey(scope, key, window)
	min := now.Add(-window).UnixMilli()

	pipe := r.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, k, "0", fmt.Sprintf("%d", min))
	card := pipe.ZCard(ctx, k)
	oldest := pipe.ZRangeWithScores(ctx, k, 0, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, time.Time{}, err
	}

	count := card.Val()
	var oldestTime time.Time
	if vals := oldest.Val(); len(vals) > 0 {
		oldestTime = time.UnixMilli(int64(vals[0].Score))
	}
	return count, oldestTime, nil
}

func (r *RedisLimiter) recordWindow(ctx context.Context, scope, key string, window time.Duration) error {
	now := r.now()
	k := windowKey(scope, key, window)
	pipe := r.client.Pipeline()
	pipe.ZAdd(ctx, k, &redis.Z{Score: float64(now.UnixMilli()), Member: fmt.Sprintf("%d", now.UnixNano())})
	pipe.Expire(ctx, k, dayWindow+time.Minute)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisLimiter) checkScope(ctx context.Context, scope, key string, minuteLimit, dayLimit int, minuteType, dayType LimitType) (Result, bool) {
	if key == "" {
		return Result{}, true
	}

	minuteCount, oldestMinute, err := r.countWindow(ctx, scope, key, minuteWindow)
	if err != nil {
		return Result{Allowed: true}, false
	}
	if int(minuteCount) >= minuteLimit {
		retry := int64(math.Ceil(oldestMinute.Add(minuteWindow).Sub(r.now()).Seconds()))
		if retry < 0 {
			retry = 0
		}
		return Result{Allowed: false, Reason: "rate_limit_exceeded", RetryAfterSeconds: retry, LimitType: minuteType, Current: int(minuteCount), Limit: minuteLimit}, true
	}

	dayCount, oldestDay, err := r.countWindow(ctx, scope, key, dayWindow)
	if err != nil {
		return Result{Allowed: true}, false
	}
	if int(dayCount) >= dayLimit {
		retry := int64(math.Ceil(oldestDay.Add(dayWindow).Sub(r.now()).Seconds()))
		if retry < 0 {
			retry = 0
		}
		return Result{Allowed: false, Reason: "rate_limit_exceeded", RetryAfterSeconds: retry, LimitType: dayType, Current: int(dayCount), Limit: dayLimit}, true
	}

	return Result{Allowed: true}, false
}

// Check implements Limiter using a background context; Redis calls are
// expected to complete well within the gateway's guard-chain budget.
func (r *RedisLimiter) Check(userID, orgID string) Result {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if res, denied := r.checkScope(ctx, "user", userID, r.limits.UserPerMinute, r.limits.UserPerDay, LimitUserPerMinute, LimitUserPerDay); denied {
		return res
	}
	if orgID == "" {
		return Result{Allowed: true}
	}
	if res, denied := r.checkScope(ctx, "org", orgID, r.limits.OrgPerMinute, r.limits.OrgPerDay, LimitOrgPerMinute, LimitOrgPerDay); denied {
		return res
	}
	return Result{Allowed: true}
}

// Record appends the current timestamp to both windows for both scopes.
func (r *RedisLimiter) Record(userID, orgID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if userID != "" {
		_ = r.recordWindow(ctx, "user", userID, minuteWindow)
		_ = r.recordWindow(ctx, "user", userID, dayWindow)
	}
	if orgID != "" {
		_ = r.recordWindow(ctx, "org", orgID, minuteWindow)
		_ = r.recordWindow(ctx, "org", orgID, dayWindow)
	}
}

// Package ratelimit implements fixed-window rate limiting over an external
// atomic counter store. A window never resets early: once a key exhausts its
// points, it stays blocked until the window that the first consumption opened
// has elapsed.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/m3rciful/communibot/core/logger"
	"log/slog"
)

// Result reports the outcome of a single TryConsume call. Overflow counts
// how many points past the limit the window has seen; 1 on the first denial,
// so callers can notify once per window without extra state.
type Result struct {
	Allowed    bool
	Remaining  int
	Overflow   int
	RetryAfter time.Duration
}

// CounterStore atomically adds points to the counter behind key, opening a new
// window when the previous one has elapsed. It returns the counter value after
// the addition together with the start of the current window.
type CounterStore interface {
	Incr(ctx context.Context, key string, points int, window time.Duration) (int, time.Time, error)
}

// Limiter is a fixed-window limiter with a single policy. Independent policies
// (message throughput, magic-link issuance) are independent Limiter instances
// sharing one store.
type Limiter struct {
	store  CounterStore
	points int
	window time.Duration
}

// NewLimiter builds a limiter allowing points consumptions per window.
func NewLimiter(store CounterStore, points int, window time.Duration) *Limiter {
	return &Limiter{store: store, points: points, window: window}
}

// TryConsume atomically consumes points for key. Increment and check are a
// single store round trip, so there is no separate status check to race
// against. A store failure is returned to the caller: both policies fail
// closed and the caller surfaces a generic retry message.
func (l *Limiter) TryConsume(ctx context.Context, key string, points int) (Result, error) {
	if points <= 0 {
		points = 1
	}

	count, windowStart, err := l.store.Incr(ctx, key, points, l.window)
	if err != nil {
		logger.Error(ctx, "service.ratelimit", "counter.incr",
			slog.String("status", "fail"),
			slog.String("key", logger.SanitizeLimit(key, 128)),
			slog.String("err", err.Error()),
		)
		return Result{}, fmt.Errorf("rate limiter: %w", err)
	}

	remaining := l.points - count
	if remaining < 0 {
		remaining = 0
	}

	if count > l.points {
		retryAfter := time.Until(windowStart.Add(l.window))
		if retryAfter < 0 {
			retryAfter = 0
		}
		logger.Debug(ctx, "service.ratelimit", "consume.denied",
			slog.String("status", "rate_limited"),
			slog.String("key", logger.SanitizeLimit(key, 128)),
			slog.Int("count", count),
			slog.Int("limit", l.points),
			slog.Int64("retry_after_ms", retryAfter.Milliseconds()),
		)
		return Result{Allowed: false, Remaining: remaining, Overflow: count - l.points, RetryAfter: retryAfter}, nil
	}

	return Result{Allowed: true, Remaining: remaining}, nil
}

// MessageKey builds the counter key for the per-user message throughput policy.
func MessageKey(telegramID int64) string {
	return "msg:" + strconv.FormatInt(telegramID, 10)
}

// MagicLinkKey builds the counter key for the magic-link issuance policy.
// The key is composite: switching target emails does not reset the counter
// for a pair, but each (user, email) pair gets its own bucket.
func MagicLinkKey(telegramID int64, normalizedEmail string) string {
	return "link:" + strconv.FormatInt(telegramID, 10) + "|" + strings.ToLower(normalizedEmail)
}

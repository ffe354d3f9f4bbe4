package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTryConsumeAllowsExactlyPointsPerWindow(t *testing.T) {
	store := NewMemoryStore()
	limiter := NewLimiter(store, 3, time.Minute)
	ctx := context.Background()
	key := MessageKey(42)

	for i := 0; i < 3; i++ {
		res, err := limiter.TryConsume(ctx, key, 1)
		if err != nil {
			t.Fatalf("consume %d: %v", i, err)
		}
		if !res.Allowed {
			t.Fatalf("consume %d: expected allowed", i)
		}
		if want := 3 - (i + 1); res.Remaining != want {
			t.Fatalf("consume %d: remaining = %d, want %d", i, res.Remaining, want)
		}
	}

	res, err := limiter.TryConsume(ctx, key, 1)
	if err != nil {
		t.Fatalf("consume over limit: %v", err)
	}
	if res.Allowed {
		t.Fatal("expected denial after points exhausted")
	}
	if res.Overflow != 1 {
		t.Fatalf("overflow = %d, want 1 on first denial", res.Overflow)
	}
	if res.RetryAfter <= 0 {
		t.Fatalf("retry after = %v, want > 0", res.RetryAfter)
	}
}

func TestTryConsumeWindowNeverResetsEarly(t *testing.T) {
	now := time.Now()
	store := NewMemoryStore()
	store.Now = func() time.Time { return now }
	limiter := NewLimiter(store, 1, time.Minute)
	ctx := context.Background()
	key := MessageKey(7)

	if res, _ := limiter.TryConsume(ctx, key, 1); !res.Allowed {
		t.Fatal("first consume should pass")
	}

	// Just shy of the window boundary: still blocked.
	now = now.Add(59 * time.Second)
	if res, _ := limiter.TryConsume(ctx, key, 1); res.Allowed {
		t.Fatal("expected denial inside the window")
	}

	// Window elapsed: a fresh budget opens.
	now = now.Add(2 * time.Second)
	if res, _ := limiter.TryConsume(ctx, key, 1); !res.Allowed {
		t.Fatal("expected fresh window after expiry")
	}
}

func TestTryConsumeDeniedConsumptionStillCounts(t *testing.T) {
	now := time.Now()
	store := NewMemoryStore()
	store.Now = func() time.Time { return now }
	limiter := NewLimiter(store, 2, time.Minute)
	ctx := context.Background()
	key := MagicLinkKey(9, "a@example.com")

	limiter.TryConsume(ctx, key, 1)
	limiter.TryConsume(ctx, key, 1)

	// Overflow keeps counting so callers can tell first denial from later ones.
	for want := 1; want <= 3; want++ {
		res, err := limiter.TryConsume(ctx, key, 1)
		if err != nil {
			t.Fatalf("consume: %v", err)
		}
		if res.Allowed {
			t.Fatal("expected denial")
		}
		if res.Overflow != want {
			t.Fatalf("overflow = %d, want %d", res.Overflow, want)
		}
	}
}

type failingStore struct{}

func (failingStore) Incr(context.Context, string, int, time.Duration) (int, time.Time, error) {
	return 0, time.Time{}, errors.New("store down")
}

func TestTryConsumeStoreErrorFailsClosed(t *testing.T) {
	limiter := NewLimiter(failingStore{}, 5, time.Minute)

	res, err := limiter.TryConsume(context.Background(), MessageKey(1), 1)
	if err == nil {
		t.Fatal("expected error from failing store")
	}
	if res.Allowed {
		t.Fatal("store failure must not allow consumption")
	}
}

func TestKeysSeparateScopes(t *testing.T) {
	if MessageKey(5) == MagicLinkKey(5, "a@example.com") {
		t.Fatal("message and magic-link keys must not collide")
	}
	if MagicLinkKey(5, "a@example.com") == MagicLinkKey(5, "b@example.com") {
		t.Fatal("each (user, email) pair gets its own bucket")
	}
	if MagicLinkKey(5, "A@Example.com") != MagicLinkKey(5, "a@example.com") {
		t.Fatal("email case must not split buckets")
	}
}

package verify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/communibot/services/identity"
)

func newTestServer(t *testing.T) (*Server, *identity.Service, *identity.MemoryRepository) {
	t.Helper()
	repo := identity.NewMemoryRepository()
	ids := identity.NewService(repo)
	return NewServer(":0", ids), ids, repo
}

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)
	return rec
}

func TestVerifyHappyPath(t *testing.T) {
	s, ids, _ := newTestServer(t)
	ctx := context.Background()

	tok, err := ids.IssueLinkToken(ctx, 100, "a@example.com", "alice", "Alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	rec := get(t, s, "/verify?token="+tok.Token+"&telegram_id="+strconv.FormatInt(100, 10))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}

	u, err := ids.GetByTelegramID(ctx, 100)
	if err != nil || !u.Linked() {
		t.Fatalf("user not linked after callback: %+v err=%v", u, err)
	}
}

func TestVerifyMalformedRequest(t *testing.T) {
	s, _, _ := newTestServer(t)

	for _, target := range []string{
		"/verify",
		"/verify?token=abc",
		"/verify?token=abc&telegram_id=notanumber",
		"/verify?telegram_id=100",
		// A token that is not even a UUID must not reach the database.
		"/verify?token=not-a-uuid&telegram_id=100",
		"/verify?token=" + uuid.NewString() + "'--&telegram_id=100",
	} {
		rec := get(t, s, target)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", target, rec.Code)
		}
	}
}

func TestVerifyUnknownToken(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := get(t, s, "/verify?token="+uuid.NewString()+"&telegram_id=100")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	s, _, repo := newTestServer(t)
	ctx := context.Background()

	expired := &identity.LinkToken{
		Token:      uuid.NewString(),
		TelegramID: 100,
		Email:      "a@example.com",
		ExpiresAt:  time.Now().Add(-time.Minute),
	}
	if err := repo.CreateLinkToken(ctx, expired); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec := get(t, s, "/verify?token="+expired.Token+"&telegram_id=100")
	if rec.Code != http.StatusGone {
		t.Fatalf("status = %d, want 410", rec.Code)
	}
}

func TestVerifyEmailConflict(t *testing.T) {
	s, ids, _ := newTestServer(t)
	ctx := context.Background()

	tok1, _ := ids.IssueLinkToken(ctx, 100, "shared@example.com", "", "")
	if rec := get(t, s, "/verify?token="+tok1.Token+"&telegram_id=100"); rec.Code != http.StatusOK {
		t.Fatalf("first link: status = %d", rec.Code)
	}

	tok2, _ := ids.IssueLinkToken(ctx, 200, "shared@example.com", "", "")
	rec := get(t, s, "/verify?token="+tok2.Token+"&telegram_id=200")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestVerifyTokenSingleUse(t *testing.T) {
	s, ids, _ := newTestServer(t)
	ctx := context.Background()

	tok, _ := ids.IssueLinkToken(ctx, 100, "a@example.com", "", "")
	target := "/verify?token=" + tok.Token + "&telegram_id=100"

	if rec := get(t, s, target); rec.Code != http.StatusOK {
		t.Fatalf("first use: status = %d", rec.Code)
	}
	if rec := get(t, s, target); rec.Code != http.StatusBadRequest {
		t.Fatalf("re-use of consumed token: status = %d, want 400", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := get(t, s, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/m3rciful/communibot/services/communities"
)

func TestFlowCodecRoundTrip(t *testing.T) {
	flows := []Flow{
		AwaitingEmail{},
		AwaitingVerification{Email: "user@example.com", ExpiresAt: time.Now().Add(time.Hour).UTC()},
		WizardFlow{Pos: 3, Draft: communities.Draft{Slug: "gophers", Name: "Gophers", Private: true}},
	}

	for _, f := range flows {
		step, payload, err := EncodeFlow(f)
		if err != nil {
			t.Fatalf("encode %T: %v", f, err)
		}
		if step != f.Step() {
			t.Fatalf("encode %T: step = %q, want %q", f, step, f.Step())
		}
		back, err := DecodeFlow(step, payload)
		if err != nil {
			t.Fatalf("decode %T: %v", f, err)
		}
		if back.Step() != f.Step() {
			t.Fatalf("decode %T: step = %q, want %q", f, back.Step(), f.Step())
		}
	}
}

func TestDecodeFlowPreservesWizardDraft(t *testing.T) {
	f := WizardFlow{Pos: 4, Draft: communities.Draft{
		Slug: "go-nuts", Name: "Go Nuts", Description: "All things Go", Private: false,
	}}
	step, payload, err := EncodeFlow(f)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	back, err := DecodeFlow(step, payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got, ok := back.(WizardFlow)
	if !ok {
		t.Fatalf("decoded %T, want WizardFlow", back)
	}
	if got != f {
		t.Fatalf("round trip = %+v, want %+v", got, f)
	}
}

func TestDecodeFlowUnknownStep(t *testing.T) {
	if _, err := DecodeFlow("legacy_step", []byte(`{}`)); err == nil {
		t.Fatal("expected error for unknown step")
	}
}

func TestMemoryStoreExpiresLazily(t *testing.T) {
	now := time.Now()
	store := NewMemoryStore()
	store.Now = func() time.Time { return now }
	ctx := context.Background()

	if err := store.Save(ctx, 1, AwaitingEmail{}); err != nil {
		t.Fatalf("save: %v", err)
	}

	sess, err := store.Load(ctx, 1)
	if err != nil || sess == nil {
		t.Fatalf("load before expiry: sess=%v err=%v", sess, err)
	}

	now = now.Add(TTL + time.Second)
	sess, err = store.Load(ctx, 1)
	if err != nil {
		t.Fatalf("load after expiry: %v", err)
	}
	if sess != nil {
		t.Fatal("expected expired session to read as absent")
	}
}

func TestMemoryStoreSaveRefreshesTTL(t *testing.T) {
	now := time.Now()
	store := NewMemoryStore()
	store.Now = func() time.Time { return now }
	ctx := context.Background()

	if err := store.Save(ctx, 1, AwaitingEmail{}); err != nil {
		t.Fatalf("save: %v", err)
	}

	// A save near the end of the TTL starts a fresh 24h clock.
	now = now.Add(23 * time.Hour)
	if err := store.Save(ctx, 1, WizardFlow{Pos: 1}); err != nil {
		t.Fatalf("re-save: %v", err)
	}

	now = now.Add(2 * time.Hour)
	sess, err := store.Load(ctx, 1)
	if err != nil || sess == nil {
		t.Fatalf("expected refreshed session to survive, sess=%v err=%v", sess, err)
	}
	if sess.Flow.Step() != StepWizard {
		t.Fatalf("flow step = %q, want %q", sess.Flow.Step(), StepWizard)
	}
}

func TestMemoryStoreSaveReplacesFlow(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Save(ctx, 1, AwaitingEmail{}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(ctx, 1, WizardFlow{Pos: 1}); err != nil {
		t.Fatalf("replace: %v", err)
	}

	sess, err := store.Load(ctx, 1)
	if err != nil || sess == nil {
		t.Fatalf("load: sess=%v err=%v", sess, err)
	}
	if sess.Flow.Step() != StepWizard {
		t.Fatalf("flow step = %q, want %q; one active flow per user", sess.Flow.Step(), StepWizard)
	}
}

func TestMemoryStoreClearIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Clear(ctx, 99); err != nil {
		t.Fatalf("clear absent: %v", err)
	}
}

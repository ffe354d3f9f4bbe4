package wizard

import (
	"context"
	"strings"
	"testing"

	"github.com/m3rciful/communibot/services/communities"
	"github.com/m3rciful/communibot/services/sessions"
)

type rig struct {
	comms *communities.Service
	store *sessions.MemoryStore
	m     *Machine
}

func newRig() *rig {
	comms := communities.NewService(communities.NewMemoryRepository())
	store := sessions.NewMemoryStore()
	return &rig{comms: comms, store: store, m: NewMachine(comms, store)}
}

func (r *rig) wizardFlow(t *testing.T, tgID int64) (sessions.WizardFlow, bool) {
	t.Helper()
	sess, err := r.store.Load(context.Background(), tgID)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if sess == nil {
		return sessions.WizardFlow{}, false
	}
	f, ok := sess.Flow.(sessions.WizardFlow)
	if !ok {
		t.Fatalf("flow = %T, want WizardFlow", sess.Flow)
	}
	return f, true
}

// step feeds one answer and returns the reply, re-reading the session so each
// answer flows through persistence like in production.
func (r *rig) step(t *testing.T, userID string, tgID int64, text string) string {
	t.Helper()
	f, ok := r.wizardFlow(t, tgID)
	if !ok {
		t.Fatal("no active wizard")
	}
	reply, err := r.m.HandleText(context.Background(), userID, tgID, f, text)
	if err != nil {
		t.Fatalf("step %q: %v", text, err)
	}
	return reply
}

func TestWizardFullRun(t *testing.T) {
	r := newRig()
	ctx := context.Background()

	if _, err := r.m.Start(ctx, 100); err != nil {
		t.Fatalf("start: %v", err)
	}

	r.step(t, "alice", 100, "gophers")
	r.step(t, "alice", 100, "Gopher Hangout")
	r.step(t, "alice", 100, "All things Go")
	summary := r.step(t, "alice", 100, "public")
	for _, want := range []string{"gophers", "Gopher Hangout", "All things Go", "public"} {
		if !strings.Contains(summary, want) {
			t.Fatalf("summary %q missing %q", summary, want)
		}
	}

	done := r.step(t, "alice", 100, "create")
	if !strings.Contains(done, "Done!") {
		t.Fatalf("reply = %q, want success", done)
	}
	if _, ok := r.wizardFlow(t, 100); ok {
		t.Fatal("wizard session must be cleared after creation")
	}

	c, err := r.comms.GetBySlug(ctx, "gophers", nil)
	if err != nil {
		t.Fatalf("created community missing: %v", err)
	}
	if c.IsPrivate || c.Name != "Gopher Hangout" || c.CreatorID != "alice" {
		t.Fatalf("community = %+v, want public Gopher Hangout by alice", c)
	}
}

func TestWizardSkipDescriptionAndPrivate(t *testing.T) {
	r := newRig()
	ctx := context.Background()

	r.m.Start(ctx, 100)
	r.step(t, "alice", 100, "secret")
	r.step(t, "alice", 100, "Secret Club")
	r.step(t, "alice", 100, "SKIP")
	r.step(t, "alice", 100, "Private")
	r.step(t, "alice", 100, "CREATE")

	c, err := r.comms.GetBySlug(ctx, "secret", nil)
	if err == nil {
		t.Fatal("private community must be hidden from anonymous lookups")
	}
	// The creator sees it.
	var creatorID string
	page, _ := r.comms.List(ctx, communities.ListFilter{}, nil)
	if len(page.Items) != 0 {
		t.Fatalf("anonymous listing sees %d items, want 0", len(page.Items))
	}
	creatorID = "alice"
	c, err = r.comms.GetBySlug(ctx, "secret", &creatorID)
	if err != nil {
		t.Fatalf("creator lookup: %v", err)
	}
	if !c.IsPrivate || c.Description != nil {
		t.Fatalf("community = %+v, want private with no description", c)
	}
}

func TestWizardInvalidAnswersReprompt(t *testing.T) {
	r := newRig()
	ctx := context.Background()
	r.m.Start(ctx, 100)

	reply := r.step(t, "alice", 100, "NO SPACES IN SLUG")
	if !strings.Contains(reply, "Invalid slug") {
		t.Fatalf("reply = %q, want slug re-prompt", reply)
	}
	if f, _ := r.wizardFlow(t, 100); f.Pos != 1 {
		t.Fatalf("pos = %d, want to stay on step 1", f.Pos)
	}

	r.step(t, "alice", 100, "ok-slug")
	reply = r.step(t, "alice", 100, "ab")
	if !strings.Contains(reply, "Invalid name") {
		t.Fatalf("reply = %q, want name re-prompt", reply)
	}

	r.step(t, "alice", 100, "Proper Name")
	r.step(t, "alice", 100, "skip")
	reply = r.step(t, "alice", 100, "maybe")
	if !strings.Contains(reply, "public") {
		t.Fatalf("reply = %q, want visibility re-prompt", reply)
	}
}

func TestWizardTakenSlugReprompts(t *testing.T) {
	r := newRig()
	ctx := context.Background()
	if _, err := r.comms.Create(ctx, "bob", communities.Draft{Slug: "taken", Name: "Taken"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	r.m.Start(ctx, 100)
	reply := r.step(t, "alice", 100, "taken")
	if !strings.Contains(reply, "already taken") {
		t.Fatalf("reply = %q, want taken notice", reply)
	}
	if f, _ := r.wizardFlow(t, 100); f.Pos != 1 {
		t.Fatalf("pos = %d, want to stay on step 1", f.Pos)
	}
}

func TestWizardBackReturnsToVisibility(t *testing.T) {
	r := newRig()
	ctx := context.Background()
	r.m.Start(ctx, 100)
	r.step(t, "alice", 100, "gophers")
	r.step(t, "alice", 100, "Gophers")
	r.step(t, "alice", 100, "skip")
	r.step(t, "alice", 100, "public")

	r.step(t, "alice", 100, "back")
	r.step(t, "alice", 100, "private")
	r.step(t, "alice", 100, "create")

	alice := "alice"
	c, err := r.comms.GetBySlug(ctx, "gophers", &alice)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !c.IsPrivate {
		t.Fatal("back then private must flip visibility")
	}
}

func TestWizardCancelCreatesNothing(t *testing.T) {
	r := newRig()
	ctx := context.Background()
	r.m.Start(ctx, 100)
	r.step(t, "alice", 100, "gophers")
	r.step(t, "alice", 100, "Gophers")
	r.step(t, "alice", 100, "skip")
	r.step(t, "alice", 100, "public")

	reply := r.step(t, "alice", 100, "cancel")
	if !strings.Contains(reply, "cancelled") {
		t.Fatalf("reply = %q, want cancel confirmation", reply)
	}
	if _, ok := r.wizardFlow(t, 100); ok {
		t.Fatal("session must be cleared on cancel")
	}
	if free, _ := r.comms.SlugAvailable(ctx, "gophers"); !free {
		t.Fatal("cancel must not create the community")
	}
}

func TestWizardConcurrentSlugLossEndsWizard(t *testing.T) {
	r := newRig()
	ctx := context.Background()
	r.m.Start(ctx, 100)
	r.step(t, "alice", 100, "gophers")
	r.step(t, "alice", 100, "Gophers")
	r.step(t, "alice", 100, "skip")
	r.step(t, "alice", 100, "public")

	// Someone else takes the slug between the check and the confirmation.
	if _, err := r.comms.Create(ctx, "bob", communities.Draft{Slug: "gophers", Name: "Sniped"}); err != nil {
		t.Fatalf("concurrent create: %v", err)
	}

	reply := r.step(t, "alice", 100, "create")
	if !strings.Contains(reply, "just taken") {
		t.Fatalf("reply = %q, want slug-taken notice", reply)
	}
	if _, ok := r.wizardFlow(t, 100); ok {
		t.Fatal("wizard must end even when the commit fails")
	}
}

package communities

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

func newTestService() *Service {
	return NewService(NewMemoryRepository())
}

func mustCreate(t *testing.T, svc *Service, creatorID string, d Draft) *Community {
	t.Helper()
	c, err := svc.Create(context.Background(), creatorID, d)
	if err != nil {
		t.Fatalf("create %q: %v", d.Slug, err)
	}
	return c
}

func ptr(s string) *string { return &s }

func TestCreateMakesCreatorActiveAdmin(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	c := mustCreate(t, svc, "alice", Draft{Slug: "gophers", Name: "Gophers"})

	if c.MemberCount != 1 {
		t.Fatalf("member count = %d, want 1 (the creator)", c.MemberCount)
	}
	role, err := svc.GetUserRole(ctx, c.ID, "alice")
	if err != nil {
		t.Fatalf("get role: %v", err)
	}
	if role == nil || *role != MemberRoleAdmin {
		t.Fatalf("creator role = %v, want admin", role)
	}
	if ok, _ := svc.IsMember(ctx, c.ID, "alice"); !ok {
		t.Fatal("creator must be an active member immediately")
	}
}

func TestCreateRejectsDuplicateSlug(t *testing.T) {
	svc := newTestService()

	mustCreate(t, svc, "alice", Draft{Slug: "gophers", Name: "Gophers"})
	_, err := svc.Create(context.Background(), "bob", Draft{Slug: "gophers", Name: "Other Gophers"})
	if !errors.Is(err, ErrSlugTaken) {
		t.Fatalf("err = %v, want ErrSlugTaken", err)
	}
}

func TestCreateValidatesDraft(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	cases := []Draft{
		{Slug: "ab", Name: "Too Short Slug"},
		{Slug: "UPPER", Name: "Uppercase Slug"},
		{Slug: "has space", Name: "Spaced Slug"},
		{Slug: strings.Repeat("a", 51), Name: "Long Slug"},
		{Slug: "okslug", Name: "ab"},
		{Slug: "okslug", Name: strings.Repeat("n", 101)},
		{Slug: "okslug", Name: "Fine", Description: strings.Repeat("d", 501)},
	}
	for _, d := range cases {
		if _, err := svc.Create(ctx, "alice", d); !IsValidation(err) {
			t.Fatalf("draft %+v: err = %v, want validation error", d, err)
		}
	}
}

func TestCreateStripsDescriptionHTML(t *testing.T) {
	svc := newTestService()

	c := mustCreate(t, svc, "alice", Draft{
		Slug:        "safe",
		Name:        "Safe",
		Description: "hello <script>alert(1)</script><b>world</b>",
	})
	if c.Description == nil || strings.Contains(*c.Description, "<") {
		t.Fatalf("description = %v, want HTML stripped", c.Description)
	}
	if !strings.Contains(*c.Description, "world") {
		t.Fatalf("description = %q, want text content kept", *c.Description)
	}
}

func TestJoinPublicIsImmediatelyActive(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	c := mustCreate(t, svc, "alice", Draft{Slug: "gophers", Name: "Gophers"})

	status, err := svc.Join(ctx, c.ID, "bob")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if status != JoinStatusJoined {
		t.Fatalf("status = %q, want joined", status)
	}

	got, _ := svc.GetBySlug(ctx, "gophers", nil)
	if got.MemberCount != 2 {
		t.Fatalf("member count = %d, want 2", got.MemberCount)
	}
}

func TestJoinPrivateIsPendingAndUncounted(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	c := mustCreate(t, svc, "alice", Draft{Slug: "secret", Name: "Secret", Private: true})

	status, err := svc.Join(ctx, c.ID, "bob")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if status != JoinStatusPending {
		t.Fatalf("status = %q, want pending", status)
	}

	// Pending members are neither counted nor granted member rights.
	got, _ := svc.GetBySlug(ctx, "secret", ptr("alice"))
	if got.MemberCount != 1 {
		t.Fatalf("member count = %d, want 1", got.MemberCount)
	}
	if ok, _ := svc.IsMember(ctx, c.ID, "bob"); ok {
		t.Fatal("pending membership must not count as member")
	}
}

func TestJoinTwiceReportsExistingStatus(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	c := mustCreate(t, svc, "alice", Draft{Slug: "secret", Name: "Secret", Private: true})

	if _, err := svc.Join(ctx, c.ID, "bob"); err != nil {
		t.Fatalf("first join: %v", err)
	}
	_, err := svc.Join(ctx, c.ID, "bob")
	var already *AlreadyMemberError
	if !errors.As(err, &already) {
		t.Fatalf("err = %v, want AlreadyMemberError", err)
	}
	if already.Status != MemberStatusPending {
		t.Fatalf("reported status = %q, want pending", already.Status)
	}
}

func TestConcurrentJoinsYieldOneMembership(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	c := mustCreate(t, svc, "alice", Draft{Slug: "gophers", Name: "Gophers"})

	const attempts = 16
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Join(ctx, c.ID, "bob")
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		var already *AlreadyMemberError
		if !errors.As(err, &already) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("successful joins = %d, want exactly 1", wins)
	}

	got, _ := svc.GetBySlug(ctx, "gophers", nil)
	if got.MemberCount != 2 {
		t.Fatalf("member count = %d, want 2", got.MemberCount)
	}
}

func TestLeaveDecrementsAndAllowsRejoin(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	c := mustCreate(t, svc, "alice", Draft{Slug: "gophers", Name: "Gophers"})

	if _, err := svc.Join(ctx, c.ID, "bob"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := svc.Leave(ctx, c.ID, "bob"); err != nil {
		t.Fatalf("leave: %v", err)
	}

	got, _ := svc.GetBySlug(ctx, "gophers", nil)
	if got.MemberCount != 1 {
		t.Fatalf("member count after leave = %d, want 1", got.MemberCount)
	}

	// The row is deleted, not tombstoned, so rejoining works.
	if status, err := svc.Join(ctx, c.ID, "bob"); err != nil || status != JoinStatusJoined {
		t.Fatalf("rejoin: status=%q err=%v", status, err)
	}
}

func TestLeaveRequiresMembership(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	c := mustCreate(t, svc, "alice", Draft{Slug: "gophers", Name: "Gophers"})

	if err := svc.Leave(ctx, c.ID, "bob"); !errors.Is(err, ErrNotMember) {
		t.Fatalf("err = %v, want ErrNotMember", err)
	}
}

func TestCreatorCannotLeave(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	c := mustCreate(t, svc, "alice", Draft{Slug: "gophers", Name: "Gophers"})

	if err := svc.Leave(ctx, c.ID, "alice"); !errors.Is(err, ErrCreatorCannotLeave) {
		t.Fatalf("err = %v, want ErrCreatorCannotLeave", err)
	}
	if ok, _ := svc.IsMember(ctx, c.ID, "alice"); !ok {
		t.Fatal("creator must remain a member")
	}
}

func TestPrivateCommunityHiddenFromNonMembers(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	mustCreate(t, svc, "alice", Draft{Slug: "secret", Name: "Secret", Private: true})

	// Absent viewer and non-member viewer both get not-found, never a
	// permission error.
	if _, err := svc.GetBySlug(ctx, "secret", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("anonymous: err = %v, want ErrNotFound", err)
	}
	if _, err := svc.GetBySlug(ctx, "secret", ptr("bob")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("non-member: err = %v, want ErrNotFound", err)
	}

	// Active members see it.
	if _, err := svc.GetBySlug(ctx, "secret", ptr("alice")); err != nil {
		t.Fatalf("member: %v", err)
	}
}

func TestPendingMemberStillCannotSeePrivate(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	c := mustCreate(t, svc, "alice", Draft{Slug: "secret", Name: "Secret", Private: true})

	if _, err := svc.Join(ctx, c.ID, "bob"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := svc.GetBySlug(ctx, "secret", ptr("bob")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("pending member: err = %v, want ErrNotFound", err)
	}
}

func TestJoinBySlugReachesHiddenPrivateCommunity(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	mustCreate(t, svc, "alice", Draft{Slug: "secret", Name: "Secret", Private: true})

	// Joining by slug must work even though the community is invisible to bob.
	status, c, err := svc.JoinBySlug(ctx, "secret", "bob")
	if err != nil {
		t.Fatalf("join by slug: %v", err)
	}
	if status != JoinStatusPending || c.Slug != "secret" {
		t.Fatalf("status=%q slug=%q, want pending/secret", status, c.Slug)
	}
}

func TestListFiltersPrivateByViewer(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	mustCreate(t, svc, "alice", Draft{Slug: "open", Name: "Open"})
	mustCreate(t, svc, "alice", Draft{Slug: "secret", Name: "Secret", Private: true})

	page, err := svc.List(ctx, ListFilter{}, nil)
	if err != nil {
		t.Fatalf("list anonymous: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].Slug != "open" {
		t.Fatalf("anonymous sees %v, want only open", page.Items)
	}

	page, err = svc.List(ctx, ListFilter{}, ptr("alice"))
	if err != nil {
		t.Fatalf("list member: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("member sees %d communities, want 2", len(page.Items))
	}
}

func TestListPagination(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	for _, slug := range []string{"aaa", "bbb", "ccc"} {
		mustCreate(t, svc, "alice", Draft{Slug: slug, Name: strings.ToUpper(slug)})
	}

	page, err := svc.List(ctx, ListFilter{Sort: SortAlphabetical, Limit: 2}, nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 2 || !page.HasMore {
		t.Fatalf("page 1: items=%d hasMore=%v, want 2/true", len(page.Items), page.HasMore)
	}

	page, err = svc.List(ctx, ListFilter{Sort: SortAlphabetical, Limit: 2, Offset: 2}, nil)
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(page.Items) != 1 || page.HasMore {
		t.Fatalf("page 2: items=%d hasMore=%v, want 1/false", len(page.Items), page.HasMore)
	}
}

func TestSlugAvailable(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	mustCreate(t, svc, "alice", Draft{Slug: "gophers", Name: "Gophers"})

	if free, _ := svc.SlugAvailable(ctx, "gophers"); free {
		t.Fatal("taken slug reported available")
	}
	if free, _ := svc.SlugAvailable(ctx, "other"); !free {
		t.Fatal("free slug reported taken")
	}
}

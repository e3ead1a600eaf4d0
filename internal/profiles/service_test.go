package profiles_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jmerrifield20/roster/internal/email"
	"github.com/jmerrifield20/roster/internal/profiles"
	"github.com/oapi-codegen/nullable"
	"go.uber.org/zap"
)

// ── Stubs ─────────────────────────────────────────────────────────────────

type stubMailer struct {
	mu   sync.Mutex
	sent []email.Message
}

func (m *stubMailer) Send(_ context.Context, msg email.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

type stubCache struct {
	roster      []profiles.Summary
	cached      bool
	sets        int
	invalidated int
}

func (c *stubCache) Get(_ context.Context) ([]profiles.Summary, bool, error) {
	return c.roster, c.cached, nil
}

func (c *stubCache) Set(_ context.Context, roster []profiles.Summary) error {
	c.roster, c.cached = roster, true
	c.sets++
	return nil
}

func (c *stubCache) Invalidate(_ context.Context) error {
	c.roster, c.cached = nil, false
	c.invalidated++
	return nil
}

type stubIndex struct {
	upserts []profiles.Summary
	hits    []uuid.UUID
	err     error
}

func (i *stubIndex) Upsert(_ context.Context, s profiles.Summary) error {
	i.upserts = append(i.upserts, s)
	return nil
}

func (i *stubIndex) Search(_ context.Context, _ string, _ int) ([]uuid.UUID, error) {
	return i.hits, i.err
}

func newTestService(t *testing.T) (*profiles.Service, *profiles.MemoryRepository, *stubMailer) {
	t.Helper()
	repo := profiles.NewMemoryRepository()
	mailer := &stubMailer{}
	return profiles.NewService(repo, mailer, zap.NewNop()), repo, mailer
}

func seedMember(t *testing.T, repo *profiles.MemoryRepository, name string) *profiles.Member {
	t.Helper()
	m := &profiles.Member{
		Email:       strings.ToLower(name) + "@example.org",
		DisplayName: name,
		Interests:   []string{"Music", "Art"},
		Emojis:      []string{"🎸"},
		Bio:         "original bio",
	}
	if err := repo.Create(context.Background(), m); err != nil {
		t.Fatalf("seed %s: %v", name, err)
	}
	return m
}

// ── Update ────────────────────────────────────────────────────────────────

func TestUpdate_bioTooLongRejectedAndRecordUnchanged(t *testing.T) {
	svc, repo, _ := newTestService(t)
	m := seedMember(t, repo, "Ana")

	_, err := svc.Update(context.Background(), m.ID, profiles.Patch{
		Bio: nullable.NewNullableWithValue(strings.Repeat("x", 501)),
	})
	if !errors.Is(err, profiles.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	got, _ := repo.GetByID(context.Background(), m.ID)
	if got.Bio != "original bio" {
		t.Errorf("bio changed after rejected update: %q", got.Bio)
	}
}

func TestUpdate_bioLimitCountsCodePoints(t *testing.T) {
	svc, repo, _ := newTestService(t)
	m := seedMember(t, repo, "Ana")

	bio := strings.Repeat("é", 500)
	got, err := svc.Update(context.Background(), m.ID, profiles.Patch{Bio: nullable.NewNullableWithValue(bio)})
	if err != nil {
		t.Fatalf("500 code points should be accepted: %v", err)
	}
	if got.Bio != bio {
		t.Error("bio not stored")
	}
}

func TestUpdate_sparseLeavesOmittedFields(t *testing.T) {
	svc, repo, _ := newTestService(t)
	m := seedMember(t, repo, "Ana")

	got, err := svc.Update(context.Background(), m.ID, profiles.Patch{
		Nickname: nullable.NewNullableWithValue("Annie"),
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Nickname == nil || *got.Nickname != "Annie" {
		t.Errorf("nickname: got %v", got.Nickname)
	}
	if got.Bio != "original bio" {
		t.Errorf("bio should be untouched, got %q", got.Bio)
	}
	if len(got.Interests) != 2 || got.Interests[0] != "Music" {
		t.Errorf("interests should be untouched, got %v", got.Interests)
	}
}

func TestUpdate_nullYearClearsYear(t *testing.T) {
	svc, repo, _ := newTestService(t)
	m := seedMember(t, repo, "Ana")

	if _, err := svc.Update(context.Background(), m.ID, profiles.Patch{Year: nullable.NewNullableWithValue(2023)}); err != nil {
		t.Fatal(err)
	}
	got, err := svc.Update(context.Background(), m.ID, profiles.Patch{Year: nullable.NewNullNullable[int]()})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Year != nil {
		t.Errorf("expected no year, got %d", *got.Year)
	}
}

func TestUpdate_normalizesTagLists(t *testing.T) {
	svc, repo, _ := newTestService(t)
	m := seedMember(t, repo, "Ana")

	got, err := svc.Update(context.Background(), m.ID, profiles.Patch{
		Interests: nullable.NewNullableWithValue([]string{" Music ", "Art", "", "Music", "Chess"}),
		Emojis:    nullable.NewNullNullable[[]string](),
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	want := []string{"Music", "Art", "Chess"}
	if strings.Join(got.Interests, ",") != strings.Join(want, ",") {
		t.Errorf("interests: got %v, want %v", got.Interests, want)
	}
	if got.Emojis == nil || len(got.Emojis) != 0 {
		t.Errorf("null emojis should become empty list, got %v", got.Emojis)
	}
}

func TestUpdate_blankNicknameClears(t *testing.T) {
	svc, repo, _ := newTestService(t)
	m := seedMember(t, repo, "Ana")

	svc.Update(context.Background(), m.ID, profiles.Patch{Nickname: nullable.NewNullableWithValue("Annie")})
	got, err := svc.Update(context.Background(), m.ID, profiles.Patch{Nickname: nullable.NewNullableWithValue("   ")})
	if err != nil {
		t.Fatal(err)
	}
	if got.Nickname != nil {
		t.Errorf("expected nickname cleared, got %q", *got.Nickname)
	}
}

func TestUpdate_unknownMember(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Update(context.Background(), uuid.New(), profiles.Patch{Bio: nullable.NewNullableWithValue("x")})
	if !errors.Is(err, profiles.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdate_neverTouchesPictureFlag(t *testing.T) {
	svc, repo, _ := newTestService(t)
	m := seedMember(t, repo, "Ana")
	repo.SetHasPicture(context.Background(), m.ID, true)

	var p profiles.Patch
	if err := json.Unmarshal([]byte(`{"bio":"new","hasProfilePicture":false}`), &p); err != nil {
		t.Fatal(err)
	}
	got, err := svc.Update(context.Background(), m.ID, p)
	if err != nil {
		t.Fatal(err)
	}
	if !got.HasProfilePicture {
		t.Error("generic update must not clear hasProfilePicture")
	}
}

// ── Roster cache & search ───────────────────────────────────────────────────

func TestList_cachesAndInvalidatesOnUpdate(t *testing.T) {
	svc, repo, _ := newTestService(t)
	cache := &stubCache{}
	svc.SetRosterCache(cache)
	m := seedMember(t, repo, "Ana")

	if _, err := svc.List(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !cache.cached || cache.sets != 1 {
		t.Fatalf("expected roster to be cached, sets=%d", cache.sets)
	}

	svc.List(context.Background())
	if cache.sets != 1 {
		t.Errorf("second List should be served from cache, sets=%d", cache.sets)
	}

	svc.Update(context.Background(), m.ID, profiles.Patch{Bio: nullable.NewNullableWithValue("changed")})
	if cache.invalidated != 1 || cache.cached {
		t.Errorf("update should invalidate the roster cache")
	}
}

func TestSetHasPicture_invalidatesAndReindexes(t *testing.T) {
	svc, repo, _ := newTestService(t)
	cache := &stubCache{}
	idx := &stubIndex{}
	svc.SetRosterCache(cache)
	svc.SetSearchIndex(idx)
	m := seedMember(t, repo, "Ana")

	if err := svc.SetHasPicture(context.Background(), m.ID, true); err != nil {
		t.Fatal(err)
	}
	if cache.invalidated != 1 {
		t.Error("expected cache invalidation")
	}
	if len(idx.upserts) != 1 || !idx.upserts[0].HasProfilePicture {
		t.Errorf("expected reindex with picture flag, got %+v", idx.upserts)
	}
}

func TestSearch_usesIndexOrder(t *testing.T) {
	svc, repo, _ := newTestService(t)
	a := seedMember(t, repo, "Ana")
	b := seedMember(t, repo, "Bo")
	svc.SetSearchIndex(&stubIndex{hits: []uuid.UUID{b.ID, a.ID}})

	got, err := svc.Search(context.Background(), "anything", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != b.ID || got[1].ID != a.ID {
		t.Errorf("unexpected search order: %+v", got)
	}
}

func TestSearch_fallsBackToRosterScan(t *testing.T) {
	svc, repo, _ := newTestService(t)
	seedMember(t, repo, "Ana")
	seedMember(t, repo, "Bo")
	svc.SetSearchIndex(&stubIndex{err: errors.New("index down")})

	got, err := svc.Search(context.Background(), "bo", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].DisplayName != "Bo" {
		t.Errorf("expected Bo, got %+v", got)
	}
}

// ── OAuth sign-in ─────────────────────────────────────────────────────────

func TestGetOrCreateFromOAuth_createsOnceAndWelcomes(t *testing.T) {
	svc, _, mailer := newTestService(t)
	svc.SetAccessPolicy(profiles.AccessPolicy{AdminEmails: []string{"ana@example.org"}})
	ident := profiles.OAuthIdentity{Provider: "google", ProviderID: "g-1", Email: "ana@example.org", DisplayName: "Ana"}

	m, created, err := svc.GetOrCreateFromOAuth(context.Background(), ident)
	if err != nil {
		t.Fatalf("GetOrCreateFromOAuth: %v", err)
	}
	if !created {
		t.Error("expected a new member")
	}
	if !m.IsAdmin {
		t.Error("admin email should produce an admin member")
	}
	if len(mailer.sent) != 1 {
		t.Errorf("expected one welcome email, got %d", len(mailer.sent))
	}

	again, created, err := svc.GetOrCreateFromOAuth(context.Background(), ident)
	if err != nil {
		t.Fatal(err)
	}
	if created || again.ID != m.ID {
		t.Error("second sign-in should return the existing member")
	}
}

func TestGetOrCreateFromOAuth_rejectsForeignDomain(t *testing.T) {
	svc, _, _ := newTestService(t)
	svc.SetAccessPolicy(profiles.AccessPolicy{AllowedDomains: []string{"example.org"}})

	_, _, err := svc.GetOrCreateFromOAuth(context.Background(), profiles.OAuthIdentity{
		Provider: "google", ProviderID: "g-2", Email: "eve@elsewhere.net",
	})
	if !errors.Is(err, profiles.ErrNotAuthorized) {
		t.Errorf("expected ErrNotAuthorized, got %v", err)
	}
}

func TestIsAuthorizedEmail(t *testing.T) {
	svc, _, _ := newTestService(t)
	svc.SetAccessPolicy(profiles.AccessPolicy{
		AllowedDomains: []string{"example.org"},
		AllowedEmails:  []string{"guest@other.net"},
	})

	cases := []struct {
		addr string
		want bool
	}{
		{"ana@example.org", true},
		{"ANA@Example.org", true},
		{"guest@other.net", true},
		{"eve@other.net", false},
		{"not-an-email", false},
	}
	for _, tc := range cases {
		if got := svc.IsAuthorizedEmail(tc.addr); got != tc.want {
			t.Errorf("IsAuthorizedEmail(%q) = %v, want %v", tc.addr, got, tc.want)
		}
	}
}

package httpapi_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jmerrifield20/roster/internal/httpapi"
	"github.com/jmerrifield20/roster/internal/identity"
	"golang.org/x/oauth2"
)

// ── Fake Google ───────────────────────────────────────────────────────────

func newFakeGoogle(t *testing.T, userInfo string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"access_token":"access-123","token_type":"Bearer","expires_in":3600}`)
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, userInfo)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newOAuthEnv(t *testing.T, userInfo string) *testEnv {
	t.Helper()
	e := newTestEnv(t, httpapi.OAuthProviderConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost:8080/auth/google/callback",
	})
	g := newFakeGoogle(t, userInfo)
	e.auth.SetGoogleEndpoint(oauth2.Endpoint{
		AuthURL:  g.URL + "/auth",
		TokenURL: g.URL + "/token",
	}, g.URL+"/userinfo")
	return e
}

func (e *testEnv) callback(t *testing.T) *httptest.ResponseRecorder {
	t.Helper()
	state, err := e.sessions.IssueOAuthState("google")
	if err != nil {
		t.Fatal(err)
	}
	return e.do(t, http.MethodGet, "/auth/google/callback?code=abc&state="+state, "", nil, "")
}

func sessionCookie(w *httptest.ResponseRecorder) string {
	for _, c := range w.Result().Cookies() {
		if c.Name == identity.CookieName {
			return c.Value
		}
	}
	return ""
}

// ── Tests ─────────────────────────────────────────────────────────────────

func TestGoogleCallback_createsMemberThenSignsIn(t *testing.T) {
	e := newOAuthEnv(t, `{"id":"g-1","email":"amy@example.org","verified_email":true,"name":"Amy Pond"}`)

	w := e.callback(t)
	if w.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d: %s", w.Code, w.Body.String())
	}
	if loc := w.Header().Get("Location"); loc != "http://frontend.test/edit-profile" {
		t.Errorf("first sign-in should land on the editor, got %q", loc)
	}
	tok := sessionCookie(w)
	if tok == "" {
		t.Fatal("expected session cookie")
	}

	w = e.callback(t)
	if loc := w.Header().Get("Location"); loc != "http://frontend.test/my-profile" {
		t.Errorf("returning sign-in should land on own profile, got %q", loc)
	}

	got := decodeUser(t, e.doJSON(t, http.MethodGet, "/auth/me", tok, ""))
	if got.DisplayName != "Amy Pond" || got.Email != "amy@example.org" {
		t.Errorf("unexpected member: %+v", got)
	}
	if n, _ := e.members.Count(t.Context()); n != 1 {
		t.Errorf("expected 1 member, got %d", n)
	}
}

func TestGoogleCallback_rejectsForeignDomain(t *testing.T) {
	e := newOAuthEnv(t, `{"id":"g-2","email":"eve@elsewhere.com","verified_email":true,"name":"Eve"}`)

	w := e.callback(t)
	if w.Code != http.StatusFound || !strings.Contains(w.Header().Get("Location"), "error=unauthorized") {
		t.Fatalf("expected unauthorized redirect, got %d %q", w.Code, w.Header().Get("Location"))
	}
	if sessionCookie(w) != "" {
		t.Error("no session may be issued for an unauthorized email")
	}
}

func TestGoogleCallback_badState(t *testing.T) {
	e := newOAuthEnv(t, `{}`)
	w := e.do(t, http.MethodGet, "/auth/google/callback?code=abc&state=forged", "", nil, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestGoogleRedirect(t *testing.T) {
	e := newOAuthEnv(t, `{}`)
	w := e.do(t, http.MethodGet, "/auth/google", "", nil, "")
	if w.Code != http.StatusFound || !strings.Contains(w.Header().Get("Location"), "state=") {
		t.Errorf("expected redirect with state, got %d %q", w.Code, w.Header().Get("Location"))
	}

	unconfigured := newTestEnv(t, httpapi.OAuthProviderConfig{})
	if w := unconfigured.do(t, http.MethodGet, "/auth/google", "", nil, ""); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("unconfigured: expected 422, got %d", w.Code)
	}
}

func TestStatus(t *testing.T) {
	e := newTestEnv(t, httpapi.OAuthProviderConfig{})
	_, tok := e.seed(t, "Amy")

	var resp struct {
		Authenticated bool `json:"authenticated"`
	}
	json.Unmarshal(e.doJSON(t, http.MethodGet, "/auth/status", "", "").Body.Bytes(), &resp)
	if resp.Authenticated {
		t.Error("anonymous caller reported as authenticated")
	}

	json.Unmarshal(e.doJSON(t, http.MethodGet, "/auth/status", tok, "").Body.Bytes(), &resp)
	if !resp.Authenticated {
		t.Error("signed-in caller reported as anonymous")
	}
}

func TestCheckEmail(t *testing.T) {
	e := newTestEnv(t, httpapi.OAuthProviderConfig{})
	tests := []struct {
		email string
		want  bool
	}{
		{"amy@example.org", true},
		{"eve@elsewhere.com", false},
		{"not-an-email", false},
	}
	for _, tc := range tests {
		w := e.doJSON(t, http.MethodPost, "/auth/check-email", "", `{"email":"`+tc.email+`"}`)
		var resp struct {
			Authorized bool `json:"authorized"`
		}
		json.Unmarshal(w.Body.Bytes(), &resp)
		if resp.Authorized != tc.want {
			t.Errorf("%s: got %v, want %v", tc.email, resp.Authorized, tc.want)
		}
	}
	if w := e.doJSON(t, http.MethodPost, "/auth/check-email", "", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("missing email: expected 400, got %d", w.Code)
	}
}

func TestLogout_expiresCookie(t *testing.T) {
	e := newTestEnv(t, httpapi.OAuthProviderConfig{})
	w := e.doJSON(t, http.MethodPost, "/auth/logout", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	set := w.Header().Get("Set-Cookie")
	if !strings.Contains(set, identity.CookieName+"=") || !strings.Contains(set, "Max-Age=0") {
		t.Errorf("expected expired session cookie, got %q", set)
	}
}

func TestLogout_revokesPresentedSession(t *testing.T) {
	e := newTestEnv(t, httpapi.OAuthProviderConfig{})
	_, tok := e.seed(t, "Amy")

	if w := e.doJSON(t, http.MethodGet, "/auth/me", tok, ""); w.Code != http.StatusOK {
		t.Fatalf("before logout: expected 200, got %d", w.Code)
	}
	if w := e.doJSON(t, http.MethodPost, "/auth/logout", tok, ""); w.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", w.Code)
	}

	if w := e.doJSON(t, http.MethodGet, "/auth/me", tok, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("copied token after logout: expected 401, got %d", w.Code)
	}
	if w := e.doJSON(t, http.MethodGet, "/profile/self", tok, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("profile route after logout: expected 401, got %d", w.Code)
	}
	var resp struct {
		Authenticated bool `json:"authenticated"`
	}
	json.Unmarshal(e.doJSON(t, http.MethodGet, "/auth/status", tok, "").Body.Bytes(), &resp)
	if resp.Authenticated {
		t.Error("status should report the revoked session as anonymous")
	}
}

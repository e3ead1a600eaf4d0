package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/jmerrifield20/roster/pkg/client"
)

// ── Stub server ─────────────────────────────────────────────────────────

type stubServer struct {
	mu         sync.Mutex
	lastUpdate map[string]json.RawMessage
	lastUpload []byte
	lastName   string
	deletes    int
}

const validToken = "tok-123"

func (s *stubServer) authed(r *http.Request) bool {
	ck, err := r.Cookie(client.SessionCookie)
	return err == nil && ck.Value == validToken
}

func (s *stubServer) handler(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("GET /profile/self", func(w http.ResponseWriter, r *http.Request) {
		if !s.authed(r) {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"error":"authentication required"}`)
			return
		}
		io.WriteString(w, `{"user":{"id":"m1","displayName":"Ada","email":"ada@example.org","year":2024,"hasProfilePicture":true}}`)
	})

	mux.HandleFunc("GET /profile", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"users":[{"id":"m1","displayName":"Ada"},{"id":"m2","displayName":"Grace","nickname":"G"}]}`)
	})

	mux.HandleFunc("GET /profile/search", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "jazz piano" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		io.WriteString(w, `{"users":[]}`)
	})

	mux.HandleFunc("GET /profile/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "m2" {
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"error":"profile not found"}`)
			return
		}
		io.WriteString(w, `{"user":{"id":"m2","displayName":"Grace"}}`)
	})

	mux.HandleFunc("PUT /profile/update", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode update: %v", err)
		}
		s.mu.Lock()
		s.lastUpdate = body
		s.mu.Unlock()
		if bio, ok := body["bio"]; ok && len(bio) > 502 {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"error":"bio must be at most 500 characters"}`)
			return
		}
		io.WriteString(w, `{"user":{"id":"m1","displayName":"Ada","nickname":"Countess"}}`)
	})

	mux.HandleFunc("POST /profile/upload-picture", func(w http.ResponseWriter, r *http.Request) {
		f, hdr, err := r.FormFile(client.PictureField)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"error":"no file uploaded"}`)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		s.mu.Lock()
		s.lastUpload = data
		s.lastName = hdr.Filename
		s.mu.Unlock()
		switch {
		case strings.HasPrefix(string(data), "text"):
			w.WriteHeader(http.StatusUnsupportedMediaType)
			io.WriteString(w, `{"error":"only image uploads are allowed"}`)
		case len(data) > 64:
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			io.WriteString(w, `{"error":"picture is too large"}`)
		default:
			io.WriteString(w, `{"message":"Profile picture uploaded successfully"}`)
		}
	})

	mux.HandleFunc("DELETE /profile/picture", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.deletes++
		s.mu.Unlock()
		io.WriteString(w, `{"message":"Profile picture deleted successfully"}`)
	})

	mux.HandleFunc("GET /profile/picture/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("ETag", `"abc"`)
		w.Write([]byte("\x89PNG-bytes"))
	})

	mux.HandleFunc("GET /auth/status", func(w http.ResponseWriter, r *http.Request) {
		if !s.authed(r) {
			io.WriteString(w, `{"authenticated":false}`)
			return
		}
		io.WriteString(w, `{"authenticated":true,"user":{"id":"m1","displayName":"Ada"}}`)
	})

	mux.HandleFunc("POST /auth/check-email", func(w http.ResponseWriter, r *http.Request) {
		var body struct{ Email string }
		json.NewDecoder(r.Body).Decode(&body)
		json.NewEncoder(w).Encode(map[string]any{
			"email":      body.Email,
			"authorized": strings.HasSuffix(body.Email, "@example.org"),
		})
	})

	mux.HandleFunc("POST /auth/logout", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"message":"Logged out successfully"}`)
	})

	return mux
}

func newTestClient(t *testing.T, opts ...client.Option) (*client.Client, *stubServer) {
	t.Helper()
	stub := &stubServer{}
	srv := httptest.NewServer(stub.handler(t))
	t.Cleanup(srv.Close)
	return client.MustNew(srv.URL, opts...), stub
}

// ── Construction ────────────────────────────────────────────────────────

func TestNew_rejectsInvalidURL(t *testing.T) {
	for _, base := range []string{"", "localhost", "://nope"} {
		if _, err := client.New(base); err == nil {
			t.Errorf("New(%q): expected error", base)
		}
	}
}

// ── Profiles ────────────────────────────────────────────────────────────

func TestFetchSelf_withSession(t *testing.T) {
	c, _ := newTestClient(t, client.WithSessionToken(validToken))

	p, err := c.FetchSelf(context.Background())
	if err != nil {
		t.Fatalf("FetchSelf: %v", err)
	}
	if p.ID != "m1" || p.Year == nil || *p.Year != 2024 || !p.HasProfilePicture {
		t.Errorf("unexpected profile: %+v", p)
	}
	if p.Nickname != nil || p.Interests != nil {
		t.Error("absent fields should stay absent")
	}
}

func TestFetchSelf_withoutSessionIsUnauthenticated(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.FetchSelf(context.Background())
	if !errors.Is(err, client.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected *APIError with 401, got %v", err)
	}
}

func TestFetchByID_notFound(t *testing.T) {
	c, _ := newTestClient(t)

	if _, err := c.FetchByID(context.Background(), "missing"); !errors.Is(err, client.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	p, err := c.FetchByID(context.Background(), "m2")
	if err != nil || p.DisplayName != "Grace" {
		t.Fatalf("FetchByID(m2): %+v, %v", p, err)
	}
}

func TestFetchAll(t *testing.T) {
	c, _ := newTestClient(t)

	users, err := c.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(users) != 2 || users[1].Nickname == nil || *users[1].Nickname != "G" {
		t.Errorf("unexpected users: %+v", users)
	}
}

func TestSearchMembers_emptyResultIsNonNil(t *testing.T) {
	c, _ := newTestClient(t)

	users, err := c.SearchMembers(context.Background(), "jazz piano")
	if err != nil {
		t.Fatalf("SearchMembers: %v", err)
	}
	if users == nil || len(users) != 0 {
		t.Errorf("expected empty slice, got %#v", users)
	}
}

func TestUpdate_sendsOnlySpecifiedFields(t *testing.T) {
	c, stub := newTestClient(t, client.WithSessionToken(validToken))

	var req client.UpdateRequest
	req.Nickname.Set("Countess")
	req.Year.SetNull()

	p, err := c.Update(context.Background(), req)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if p.Nickname == nil || *p.Nickname != "Countess" {
		t.Errorf("unexpected response: %+v", p)
	}

	stub.mu.Lock()
	defer stub.mu.Unlock()
	if len(stub.lastUpdate) != 2 {
		t.Errorf("expected 2 fields on the wire, got %v", stub.lastUpdate)
	}
	if string(stub.lastUpdate["year"]) != "null" {
		t.Errorf("year should be null, got %s", stub.lastUpdate["year"])
	}
	if _, ok := stub.lastUpdate["bio"]; ok {
		t.Error("unspecified bio must not be sent")
	}
}

func TestUpdate_validationError(t *testing.T) {
	c, _ := newTestClient(t, client.WithSessionToken(validToken))

	var req client.UpdateRequest
	req.Bio.Set(strings.Repeat("x", 501))

	_, err := c.Update(context.Background(), req)
	if !errors.Is(err, client.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if msg := client.Message(err); msg != "bio must be at most 500 characters" {
		t.Errorf("Message: got %q", msg)
	}
}

// ── Pictures ────────────────────────────────────────────────────────────

func TestUploadPicture_multipart(t *testing.T) {
	c, stub := newTestClient(t, client.WithSessionToken(validToken))

	if err := c.UploadPicture(context.Background(), "me.png", strings.NewReader("\x89PNG")); err != nil {
		t.Fatalf("UploadPicture: %v", err)
	}
	stub.mu.Lock()
	defer stub.mu.Unlock()
	if string(stub.lastUpload) != "\x89PNG" || stub.lastName != "me.png" {
		t.Errorf("server received %q as %q", stub.lastUpload, stub.lastName)
	}
}

func TestUploadPicture_errorTaxonomy(t *testing.T) {
	c, _ := newTestClient(t, client.WithSessionToken(validToken))

	tests := []struct {
		name    string
		payload string
		want    error
	}{
		{"not an image", "text/plain body", client.ErrUnsupportedMediaType},
		{"too large", strings.Repeat("x", 100), client.ErrPayloadTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.UploadPicture(context.Background(), "f", strings.NewReader(tt.payload))
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestDeletePicture(t *testing.T) {
	c, stub := newTestClient(t, client.WithSessionToken(validToken))

	for i := 0; i < 2; i++ {
		if err := c.DeletePicture(context.Background()); err != nil {
			t.Fatalf("DeletePicture #%d: %v", i+1, err)
		}
	}
	if stub.deletes != 2 {
		t.Errorf("expected 2 deletes, got %d", stub.deletes)
	}
}

func TestFetchPicture(t *testing.T) {
	c, _ := newTestClient(t)

	pic, err := c.FetchPicture(context.Background(), "m2")
	if err != nil {
		t.Fatalf("FetchPicture: %v", err)
	}
	if pic.ContentType != "image/png" || pic.ETag != `"abc"` || string(pic.Data) != "\x89PNG-bytes" {
		t.Errorf("unexpected picture: %+v", pic)
	}
}

// ── Session ─────────────────────────────────────────────────────────────

func TestAuthStatus(t *testing.T) {
	anon, _ := newTestClient(t)
	st, err := anon.AuthStatus(context.Background())
	if err != nil || st.Authenticated {
		t.Fatalf("anonymous status: %+v, %v", st, err)
	}

	signed, _ := newTestClient(t, client.WithSessionToken(validToken))
	st, err = signed.AuthStatus(context.Background())
	if err != nil || !st.Authenticated || st.User == nil || st.User.ID != "m1" {
		t.Fatalf("signed-in status: %+v, %v", st, err)
	}
}

func TestCheckEmail(t *testing.T) {
	c, _ := newTestClient(t)

	ok, err := c.CheckEmail(context.Background(), "ada@example.org")
	if err != nil || !ok {
		t.Errorf("expected authorized, got %v, %v", ok, err)
	}
	ok, err = c.CheckEmail(context.Background(), "eve@elsewhere.com")
	if err != nil || ok {
		t.Errorf("expected unauthorized, got %v, %v", ok, err)
	}
}

func TestLogout_clearsToken(t *testing.T) {
	c, _ := newTestClient(t, client.WithSessionToken(validToken))

	if err := c.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if c.SessionToken() != "" {
		t.Error("token should be cleared after logout")
	}
}

// ── Errors ──────────────────────────────────────────────────────────────

func TestTransportFailureIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c := client.MustNew(base)
	_, err := c.FetchAll(context.Background())
	if !errors.Is(err, client.ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
	if client.Message(err) != "Something went wrong. Please try again." {
		t.Errorf("unexpected message %q", client.Message(err))
	}
}

func TestAPIError_unwrapTable(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{401, client.ErrUnauthenticated},
		{404, client.ErrNotFound},
		{400, client.ErrValidation},
		{422, client.ErrValidation},
		{415, client.ErrUnsupportedMediaType},
		{413, client.ErrPayloadTooLarge},
		{500, client.ErrNetwork},
		{502, client.ErrNetwork},
	}
	for _, tt := range tests {
		err := error(&client.APIError{StatusCode: tt.status})
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: expected %v", tt.status, tt.want)
		}
	}
}

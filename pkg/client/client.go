package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	// SessionCookie is the cookie that carries the session token.
	SessionCookie = "roster_session"
	// PictureField is the multipart field name for picture uploads.
	PictureField = "profilePicture"

	maxJSONBytes    = 4 << 20
	maxPictureBytes = 16 << 20
)

// Client is a typed façade over the directory's profile API. It performs no
// caching and no retries.
type Client struct {
	base       string
	httpClient *http.Client

	mu    sync.Mutex
	token string
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithTimeout sets the transport timeout for every request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		c.httpClient.Timeout = d
		return nil
	}
}

// WithSessionToken sends token as the session cookie on every request.
func WithSessionToken(token string) Option {
	return func(c *Client) error {
		c.token = token
		return nil
	}
}

// WithCookieJar keeps cookies set by the server (including the session
// cookie issued at sign-in) across requests.
func WithCookieJar() Option {
	return func(c *Client) error {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return fmt.Errorf("create cookie jar: %w", err)
		}
		c.httpClient.Jar = jar
		return nil
	}
}

// New creates a Client for the directory server at base.
//
//	c, err := client.New("http://localhost:8080",
//	    client.WithSessionToken(token),
//	    client.WithTimeout(15*time.Second),
//	)
func New(base string, opts ...Option) (*Client, error) {
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q", base)
	}
	c := &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(base string, opts ...Option) *Client {
	c, err := New(base, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// SetSessionToken replaces the session token; "" clears it.
func (c *Client) SetSessionToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// SessionToken returns the current session token.
func (c *Client) SessionToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// GoogleSignInURL is where a browser starts Google sign-in.
func (c *Client) GoogleSignInURL() string {
	return c.base + "/auth/google"
}

// ─── Profiles ────────────────────────────────────────────────────────────────

type userEnvelope struct {
	User *Profile `json:"user"`
}

type usersEnvelope struct {
	Users []Summary `json:"users"`
}

// FetchSelf returns the caller's own profile.
func (c *Client) FetchSelf(ctx context.Context) (*Profile, error) {
	var env userEnvelope
	if err := c.getJSON(ctx, "/profile/self", &env); err != nil {
		return nil, err
	}
	return env.User, nil
}

// FetchByID returns another member's public profile.
func (c *Client) FetchByID(ctx context.Context, id string) (*Profile, error) {
	var env userEnvelope
	if err := c.getJSON(ctx, "/profile/"+url.PathEscape(id), &env); err != nil {
		return nil, err
	}
	return env.User, nil
}

// FetchAll returns every member's directory fields in server order.
func (c *Client) FetchAll(ctx context.Context) ([]Summary, error) {
	var env usersEnvelope
	if err := c.getJSON(ctx, "/profile", &env); err != nil {
		return nil, err
	}
	if env.Users == nil {
		env.Users = []Summary{}
	}
	return env.Users, nil
}

// SearchMembers returns members matching q, most relevant first.
func (c *Client) SearchMembers(ctx context.Context, q string) ([]Summary, error) {
	var env usersEnvelope
	if err := c.getJSON(ctx, "/profile/search?q="+url.QueryEscape(q), &env); err != nil {
		return nil, err
	}
	if env.Users == nil {
		env.Users = []Summary{}
	}
	return env.Users, nil
}

// Update applies a sparse update to the caller's profile and returns the
// resulting record.
func (c *Client) Update(ctx context.Context, upd UpdateRequest) (*Profile, error) {
	payload, err := json.Marshal(upd)
	if err != nil {
		return nil, fmt.Errorf("marshal update: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPut, "/profile/update", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req, maxJSONBytes)
	if err != nil {
		return nil, err
	}
	var env userEnvelope
	if err := decode(body, &env); err != nil {
		return nil, err
	}
	return env.User, nil
}

// ─── Pictures ────────────────────────────────────────────────────────────────

// UploadPicture replaces the caller's picture with the image read from r.
// Type and size are validated by the server.
func (c *Client) UploadPicture(ctx context.Context, filename string, r io.Reader) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(PictureField, filename)
	if err != nil {
		return fmt.Errorf("build upload: %w", err)
	}
	if _, err := io.Copy(fw, r); err != nil {
		return fmt.Errorf("read picture: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("build upload: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/profile/upload-picture", &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	_, err = c.do(req, maxJSONBytes)
	return err
}

// DeletePicture removes the caller's picture. It succeeds when there is none.
func (c *Client) DeletePicture(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/profile/picture", nil)
	if err != nil {
		return err
	}
	_, err = c.do(req, maxJSONBytes)
	return err
}

// FetchMyPicture returns the caller's picture.
func (c *Client) FetchMyPicture(ctx context.Context) (*Picture, error) {
	return c.fetchPicture(ctx, "/profile/my-picture")
}

// FetchPicture returns the picture of the member with the given id.
func (c *Client) FetchPicture(ctx context.Context, id string) (*Picture, error) {
	return c.fetchPicture(ctx, "/profile/picture/"+url.PathEscape(id))
}

func (c *Client) fetchPicture(ctx context.Context, path string) (*Picture, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	resp, body, err := c.roundTrip(req, maxPictureBytes)
	if err != nil {
		return nil, err
	}
	return &Picture{
		Data:        body,
		ContentType: resp.Header.Get("Content-Type"),
		ETag:        resp.Header.Get("ETag"),
	}, nil
}

// ─── Session ─────────────────────────────────────────────────────────────────

// AuthStatus reports whether the current session is valid. It does not fail
// for anonymous callers.
func (c *Client) AuthStatus(ctx context.Context) (*AuthStatus, error) {
	var st AuthStatus
	if err := c.getJSON(ctx, "/auth/status", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Me returns the signed-in member.
func (c *Client) Me(ctx context.Context) (*Profile, error) {
	var env userEnvelope
	if err := c.getJSON(ctx, "/auth/me", &env); err != nil {
		return nil, err
	}
	return env.User, nil
}

// CheckEmail reports whether addr may sign in to the directory.
func (c *Client) CheckEmail(ctx context.Context, addr string) (bool, error) {
	payload, _ := json.Marshal(map[string]string{"email": addr})
	req, err := c.newRequest(ctx, http.MethodPost, "/auth/check-email", bytes.NewReader(payload))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	body, err := c.do(req, maxJSONBytes)
	if err != nil {
		return false, err
	}
	var out struct {
		Authorized bool `json:"authorized"`
	}
	if err := decode(body, &out); err != nil {
		return false, err
	}
	return out.Authorized, nil
}

// Logout ends the session on the server and forgets the local token.
func (c *Client) Logout(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/auth/logout", nil)
	if err != nil {
		return err
	}
	if _, err := c.do(req, maxJSONBytes); err != nil {
		return err
	}
	c.SetSessionToken("")
	return nil
}

// ─── Transport ───────────────────────────────────────────────────────────────

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	body, err := c.do(req, maxJSONBytes)
	if err != nil {
		return err
	}
	return decode(body, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if tok := c.SessionToken(); tok != "" {
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: tok})
	}
	return req, nil
}

// do executes req and returns the body of a 2xx response. Other statuses
// become *APIError; transport failures wrap ErrNetwork.
func (c *Client) do(req *http.Request, limit int64) ([]byte, error) {
	_, body, err := c.roundTrip(req, limit)
	return body, err
}

func (c *Client) roundTrip(req *http.Request, limit int64) (*http.Response, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: read response: %w", ErrNetwork, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, newAPIError(resp.StatusCode, body)
	}
	return resp, body, nil
}

func decode(body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode response: %w", ErrNetwork, err)
	}
	return nil
}

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmerrifield20/roster/internal/identity"
	"github.com/jmerrifield20/roster/internal/profiles"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	providerGoogle     = "google"
	googleUserInfoURL  = "https://www.googleapis.com/oauth2/v2/userinfo"
	defaultFrontendURL = "http://localhost:3000"
)

// OAuthProviderConfig holds OAuth client credentials for a single provider.
type OAuthProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// memberSvc is the interface expected by AuthHandler, satisfied by *profiles.Service.
type memberSvc interface {
	GetByID(ctx context.Context, id uuid.UUID) (*profiles.Member, error)
	IsAuthorizedEmail(addr string) bool
	GetOrCreateFromOAuth(ctx context.Context, id profiles.OAuthIdentity) (*profiles.Member, bool, error)
}

// AuthHandler handles member sign-in and session routes.
type AuthHandler struct {
	members      memberSvc
	sessions     *identity.SessionIssuer
	google       *oauth2.Config
	userInfoURL  string
	httpClient   *http.Client
	frontendURL  string
	cookieSecure bool
	logger       *zap.Logger
}

// NewAuthHandler creates an AuthHandler. Google sign-in is disabled when
// the provider has no credentials.
func NewAuthHandler(members memberSvc, sessions *identity.SessionIssuer, googleCfg OAuthProviderConfig, logger *zap.Logger) *AuthHandler {
	h := &AuthHandler{
		members:     members,
		sessions:    sessions,
		userInfoURL: googleUserInfoURL,
		httpClient:  http.DefaultClient,
		frontendURL: defaultFrontendURL,
		logger:      logger,
	}
	if googleCfg.ClientID != "" && googleCfg.ClientSecret != "" {
		h.google = &oauth2.Config{
			ClientID:     googleCfg.ClientID,
			ClientSecret: googleCfg.ClientSecret,
			RedirectURL:  googleCfg.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		}
	}
	return h
}

// SetFrontendURL sets the base URL of the frontend for OAuth callback redirects.
func (h *AuthHandler) SetFrontendURL(u string) {
	h.frontendURL = u
}

// SetCookieSecure marks session cookies Secure.
func (h *AuthHandler) SetCookieSecure(secure bool) {
	h.cookieSecure = secure
}

// SetGoogleEndpoint overrides the Google OAuth endpoints.
func (h *AuthHandler) SetGoogleEndpoint(ep oauth2.Endpoint, userInfoURL string) {
	if h.google != nil {
		h.google.Endpoint = ep
	}
	h.userInfoURL = userInfoURL
}

// Register mounts all auth routes on the provided router group.
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	auth := rg.Group("/auth")
	{
		auth.GET("/status", identity.OptionalSession(h.sessions), h.Status)
		auth.GET("/me", identity.RequireSession(h.sessions), h.Me)
		auth.POST("/check-email", h.CheckEmail)
		auth.POST("/logout", identity.OptionalSession(h.sessions), h.Logout)
		auth.GET("/google", h.GoogleRedirect)
		auth.GET("/google/callback", h.GoogleCallback)
	}
}

type checkEmailRequest struct {
	Email string `json:"email" binding:"required"`
}

// Status handles GET /auth/status. It never fails for anonymous callers.
func (h *AuthHandler) Status(c *gin.Context) {
	m := h.currentMember(c)
	if m == nil {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"authenticated": true, "user": m})
}

// Me handles GET /auth/me.
func (h *AuthHandler) Me(c *gin.Context) {
	m := h.currentMember(c)
	if m == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not signed in"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": m})
}

// CheckEmail handles POST /auth/check-email.
func (h *AuthHandler) CheckEmail(c *gin.Context) {
	var req checkEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"email":      req.Email,
		"authorized": h.members.IsAuthorizedEmail(req.Email),
	})
}

// Logout handles POST /auth/logout. The presented session is revoked so a
// copied token stops working, and the cookie is expired.
func (h *AuthHandler) Logout(c *gin.Context) {
	if claims := identity.SessionFromCtx(c); claims != nil {
		if err := h.sessions.Revoke(c.Request.Context(), claims); err != nil {
			h.logger.Error("revoke session", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to sign out"})
			return
		}
	}
	identity.ClearSessionCookie(c, h.cookieSecure)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// GoogleRedirect handles GET /auth/google: redirects to Google's consent page.
func (h *AuthHandler) GoogleRedirect(c *gin.Context) {
	if h.google == nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Google sign-in is not configured"})
		return
	}
	state, err := h.sessions.IssueOAuthState(providerGoogle)
	if err != nil {
		h.logger.Error("generate oauth state", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate OAuth state"})
		return
	}
	c.Redirect(http.StatusFound, h.google.AuthCodeURL(state, oauth2.AccessTypeOnline))
}

// GoogleCallback handles GET /auth/google/callback. New members land on the
// profile editor; returning members on their own profile.
func (h *AuthHandler) GoogleCallback(c *gin.Context) {
	if h.google == nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Google sign-in is not configured"})
		return
	}

	// Validate state to prevent CSRF
	gotProvider, err := h.sessions.VerifyOAuthState(c.Query("state"))
	if err != nil || gotProvider != providerGoogle {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid OAuth state"})
		return
	}

	code := c.Query("code")
	if code == "" {
		errMsg := c.Query("error_description")
		if errMsg == "" {
			errMsg = c.Query("error")
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "OAuth authorization failed: " + errMsg})
		return
	}

	ctx := context.WithValue(c.Request.Context(), oauth2.HTTPClient, h.httpClient)
	tok, err := h.google.Exchange(ctx, code)
	if err != nil {
		h.logger.Error("oauth code exchange", zap.String("provider", providerGoogle), zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "OAuth code exchange failed"})
		return
	}

	who, err := h.fetchGoogleUserInfo(c.Request.Context(), tok.AccessToken)
	if err != nil {
		h.logger.Error("fetch oauth user info", zap.String("provider", providerGoogle), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch user info from provider"})
		return
	}

	m, created, err := h.members.GetOrCreateFromOAuth(c.Request.Context(), who)
	if err != nil {
		if errors.Is(err, profiles.ErrNotAuthorized) {
			c.Redirect(http.StatusFound, h.frontendURL+"/?error="+url.QueryEscape("unauthorized"))
			return
		}
		h.logger.Error("get or create oauth member", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process sign-in"})
		return
	}

	session, err := h.sessions.Issue(m.ID, m.Email, m.DisplayName, m.IsAdmin)
	if err != nil {
		h.logger.Error("issue session after oauth", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session issuance failed"})
		return
	}
	identity.SetSessionCookie(c, session, int(h.sessions.TTL().Seconds()), h.cookieSecure)

	dest := "/my-profile"
	if created {
		dest = "/edit-profile"
	}
	c.Redirect(http.StatusFound, h.frontendURL+dest)
}

// currentMember loads the member behind the request's session, or nil.
func (h *AuthHandler) currentMember(c *gin.Context) *profiles.Member {
	claims := identity.SessionFromCtx(c)
	if claims == nil {
		return nil
	}
	id, err := claims.ID()
	if err != nil {
		return nil
	}
	m, err := h.members.GetByID(c.Request.Context(), id)
	if err != nil {
		if !errors.Is(err, profiles.ErrNotFound) {
			h.logger.Warn("load session member", zap.Error(err))
		}
		return nil
	}
	return m
}

func (h *AuthHandler) fetchGoogleUserInfo(ctx context.Context, accessToken string) (profiles.OAuthIdentity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.userInfoURL, nil)
	if err != nil {
		return profiles.OAuthIdentity{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return profiles.OAuthIdentity{}, fmt.Errorf("user info: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return profiles.OAuthIdentity{}, fmt.Errorf("read user info: %w", err)
	}
	if resp.StatusCode >= 400 {
		return profiles.OAuthIdentity{}, fmt.Errorf("user info returned %d: %s", resp.StatusCode, body)
	}

	var info struct {
		ID            string `json:"id"`
		Email         string `json:"email"`
		VerifiedEmail bool   `json:"verified_email"`
		Name          string `json:"name"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return profiles.OAuthIdentity{}, fmt.Errorf("parse google user info: %w", err)
	}
	if info.ID == "" || info.Email == "" {
		return profiles.OAuthIdentity{}, errors.New("google user info missing id or email")
	}
	if !info.VerifiedEmail {
		return profiles.OAuthIdentity{}, errors.New("google email address is not verified")
	}
	return profiles.OAuthIdentity{
		Provider:    providerGoogle,
		ProviderID:  info.ID,
		Email:       info.Email,
		DisplayName: info.Name,
	}, nil
}

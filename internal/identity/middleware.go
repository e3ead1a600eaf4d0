package identity

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const ctxSessionClaims = "roster_session_claims"

// tokenFromRequest returns the session token from the cookie, falling back
// to an Authorization Bearer header.
func tokenFromRequest(c *gin.Context) string {
	if v, err := c.Cookie(CookieName); err == nil && v != "" {
		return v
	}
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

// RequireSession returns a Gin middleware that enforces a valid member session.
//
// On success it injects the *SessionClaims into the context under the
// "roster_session_claims" key.
func RequireSession(sessions *SessionIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := tokenFromRequest(c)
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "not signed in",
			})
			return
		}

		claims, err := sessions.VerifyContext(c.Request.Context(), tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid session: " + err.Error(),
			})
			return
		}

		c.Set(ctxSessionClaims, claims)
		c.Next()
	}
}

// OptionalSession attaches session claims when a valid token is present.
// It never aborts.
func OptionalSession(sessions *SessionIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenStr := tokenFromRequest(c); tokenStr != "" {
			if claims, err := sessions.VerifyContext(c.Request.Context(), tokenStr); err == nil {
				c.Set(ctxSessionClaims, claims)
			}
		}
		c.Next()
	}
}

// SessionFromCtx retrieves the claims injected by RequireSession or
// OptionalSession. Returns nil if no session is present.
func SessionFromCtx(c *gin.Context) *SessionClaims {
	v, _ := c.Get(ctxSessionClaims)
	claims, _ := v.(*SessionClaims)
	return claims
}

// SetSessionCookie writes the session cookie.
func SetSessionCookie(c *gin.Context, token string, maxAgeSeconds int, secure bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, token, maxAgeSeconds, "/", "", secure, true)
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(c *gin.Context, secure bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, "", -1, "/", "", secure, true)
}

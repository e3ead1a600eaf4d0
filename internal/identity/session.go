package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// CookieName is the cookie that carries the session token.
const CookieName = "roster_session"

const (
	typeSession    = "session"
	typeOAuthState = "oauth-state"
)

// ErrNoSecret is returned when a SessionIssuer is built without a signing secret.
var ErrNoSecret = errors.New("session secret is required")

// ErrRevoked is returned for a session that was signed out.
var ErrRevoked = errors.New("session revoked")

// SessionClaims are the JWT claims for a member session.
type SessionClaims struct {
	jwt.RegisteredClaims
	MemberID string `json:"member_id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Admin    bool   `json:"admin,omitempty"`
	Type     string `json:"type"` // "session" or "oauth-state"
}

// ID parses the member id carried by the claims.
func (c *SessionClaims) ID() (uuid.UUID, error) {
	return uuid.Parse(c.MemberID)
}

// SessionIssuer issues and verifies session JWTs signed with a shared secret.
type SessionIssuer struct {
	secret []byte
	issuer string
	ttl     time.Duration
	now     func() time.Time
	revoked Revocations
}

// NewSessionIssuer creates a SessionIssuer.
//
//	secret: HMAC key; must be non-empty.
//	issuerURL: the "iss" claim value.
//	ttl: session lifetime (default: 7 days).
func NewSessionIssuer(secret, issuerURL string, ttl time.Duration) (*SessionIssuer, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &SessionIssuer{
		secret: []byte(secret),
		issuer: issuerURL,
		ttl:     ttl,
		now:     func() time.Time { return time.Now().UTC() },
		revoked: NewMemoryRevocations(),
	}, nil
}

// SetRevocations replaces the in-process revocation list, for example with
// one shared through Redis.
func (s *SessionIssuer) SetRevocations(r Revocations) {
	s.revoked = r
}

// TTL returns the session lifetime.
func (s *SessionIssuer) TTL() time.Duration { return s.ttl }

// Issue creates a signed session token for a member.
func (s *SessionIssuer) Issue(memberID uuid.UUID, email, name string, admin bool) (string, error) {
	now := s.now()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   memberID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        uuid.New().String(),
		},
		MemberID: memberID.String(),
		Email:    email,
		Name:     name,
		Admin:    admin,
		Type:     typeSession,
	}
	return s.sign(claims)
}

// Verify parses and validates a session token, returning its claims.
func (s *SessionIssuer) Verify(tokenStr string) (*SessionClaims, error) {
	claims, err := s.parse(tokenStr)
	if err != nil {
		return nil, fmt.Errorf("verify session: %w", err)
	}
	if claims.Type != typeSession {
		return nil, fmt.Errorf("not a session token")
	}
	if _, err := claims.ID(); err != nil {
		return nil, fmt.Errorf("session member id: %w", err)
	}
	return claims, nil
}

// VerifyContext is Verify followed by a revocation lookup. A failed lookup
// rejects the token.
func (s *SessionIssuer) VerifyContext(ctx context.Context, tokenStr string) (*SessionClaims, error) {
	claims, err := s.Verify(tokenStr)
	if err != nil {
		return nil, err
	}
	revoked, err := s.revoked.IsRevoked(ctx, claims.RegisteredClaims.ID)
	if err != nil {
		return nil, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return nil, ErrRevoked
	}
	return claims, nil
}

// Revoke signs out the session described by claims until it would have
// expired.
func (s *SessionIssuer) Revoke(ctx context.Context, claims *SessionClaims) error {
	if claims == nil || claims.RegisteredClaims.ID == "" {
		return nil
	}
	expires := s.now().Add(s.ttl)
	if claims.ExpiresAt != nil {
		expires = claims.ExpiresAt.Time
	}
	if err := s.revoked.Revoke(ctx, claims.RegisteredClaims.ID, expires); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// IssueOAuthState creates a short-lived JWT used as the OAuth state parameter.
// The provider name is embedded so the callback can verify it.
func (s *SessionIssuer) IssueOAuthState(provider string) (string, error) {
	now := s.now()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   provider,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
			ID:        uuid.New().String(),
		},
		Type: typeOAuthState,
	}
	return s.sign(claims)
}

// VerifyOAuthState validates an OAuth state JWT and returns the embedded provider.
func (s *SessionIssuer) VerifyOAuthState(tokenStr string) (string, error) {
	claims, err := s.parse(tokenStr)
	if err != nil {
		return "", fmt.Errorf("invalid oauth state: %w", err)
	}
	if claims.Type != typeOAuthState {
		return "", fmt.Errorf("not an oauth state token")
	}
	return claims.Subject, nil
}

func (s *SessionIssuer) sign(claims SessionClaims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", claims.Type, err)
	}
	return signed, nil
}

func (s *SessionIssuer) parse(tokenStr string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&SessionClaims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

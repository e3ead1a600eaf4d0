package rostercache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const revokedPrefix = "session:revoked:"

// Revocations implements identity.Revocations on Redis so every directory
// replica sees a sign-out. Keys expire with the token they name.
type Revocations struct {
	rdb *redis.Client
	now func() time.Time
}

// NewRevocations creates a Revocations on rdb.
func NewRevocations(rdb *redis.Client) *Revocations {
	return &Revocations{rdb: rdb, now: time.Now}
}

func (r *Revocations) Revoke(ctx context.Context, jti string, expires time.Time) error {
	ttl := expires.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	if err := r.rdb.Set(ctx, revokedPrefix+jti, 1, ttl).Err(); err != nil {
		return fmt.Errorf("write revocation: %w", err)
	}
	return nil
}

func (r *Revocations) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.rdb.Exists(ctx, revokedPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("read revocation: %w", err)
	}
	return n > 0, nil
}

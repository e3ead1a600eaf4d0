// Package pictures stores member profile pictures and keeps the member's
// hasProfilePicture flag consistent with what storage holds.
package pictures

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// ErrNotFound is returned when a member has no stored picture.
var ErrNotFound = errors.New("picture not found")

// Picture is one stored profile image.
type Picture struct {
	MemberID    uuid.UUID
	Data        []byte
	ContentType string
	ETag        string
	UpdatedAt   time.Time
}

// Store holds at most one picture per member.
type Store interface {
	// Put replaces the member's picture.
	Put(ctx context.Context, pic *Picture) error
	// Get returns the member's picture or ErrNotFound.
	Get(ctx context.Context, memberID uuid.UUID) (*Picture, error)
	// Delete removes the member's picture. Deleting a missing picture is not an error.
	Delete(ctx context.Context, memberID uuid.UUID) error
}

// ETag returns a strong entity tag for picture bytes.
func ETag(data []byte) string {
	sum := blake2b.Sum256(data)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

package profiles

import (
	"time"

	"github.com/google/uuid"
	"github.com/oapi-codegen/nullable"
)

// MaxBioRunes bounds the bio field, counted in code points.
const MaxBioRunes = 500

// MaxEmojiRunes bounds one emoji badge. It admits skin-tone and ZWJ
// sequences but not words.
const MaxEmojiRunes = 8

// Member is the persisted profile record of one directory member.
type Member struct {
	ID                uuid.UUID `json:"id"`
	DisplayName       string    `json:"displayName"`
	Email             string    `json:"email,omitempty"`
	Nickname          *string   `json:"nickname,omitempty"`
	Year              *int      `json:"year,omitempty"`
	Interests         []string  `json:"interests"`
	Emojis            []string  `json:"emojis"`
	Bio               string    `json:"bio"`
	HasProfilePicture bool      `json:"hasProfilePicture"`
	IsAdmin           bool      `json:"isAdmin"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"-"`
}

// Summary holds the directory-visible fields of a member.
type Summary struct {
	ID                uuid.UUID `json:"id"`
	DisplayName       string    `json:"displayName"`
	Nickname          *string   `json:"nickname,omitempty"`
	Year              *int      `json:"year,omitempty"`
	Interests         []string  `json:"interests"`
	Emojis            []string  `json:"emojis"`
	HasProfilePicture bool      `json:"hasProfilePicture"`
}

// Summary projects the member onto its directory fields.
func (m *Member) Summary() Summary {
	return Summary{
		ID:                m.ID,
		DisplayName:       m.DisplayName,
		Nickname:          m.Nickname,
		Year:              m.Year,
		Interests:         m.Interests,
		Emojis:            m.Emojis,
		HasProfilePicture: m.HasProfilePicture,
	}
}

// Public returns a copy suitable for members other than the owner.
// The email address is the authorization key and stays private.
func (m *Member) Public() *Member {
	cp := *m
	cp.Email = ""
	return &cp
}

// Patch is a sparse set of field changes. Unspecified fields are left
// untouched; an explicit null clears the field.
type Patch struct {
	Nickname  nullable.Nullable[string]   `json:"nickname,omitempty"`
	Year      nullable.Nullable[int]      `json:"year,omitempty"`
	Interests nullable.Nullable[[]string] `json:"interests,omitempty"`
	Bio       nullable.Nullable[string]   `json:"bio,omitempty"`
	Emojis    nullable.Nullable[[]string] `json:"emojis,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return !p.Nickname.IsSpecified() &&
		!p.Year.IsSpecified() &&
		!p.Interests.IsSpecified() &&
		!p.Bio.IsSpecified() &&
		!p.Emojis.IsSpecified()
}

// OAuthIdentity links a member to an identity provider account.
type OAuthIdentity struct {
	Provider    string
	ProviderID  string
	Email       string
	DisplayName string
}

package client

import (
	"time"

	"github.com/oapi-codegen/nullable"
)

// Profile is a member record as sent by the server. Optional fields are
// pointers; any of them may be absent on the wire.
type Profile struct {
	ID                string    `json:"id"`
	DisplayName       string    `json:"displayName"`
	Email             string    `json:"email,omitempty"`
	Nickname          *string   `json:"nickname,omitempty"`
	Year              *int      `json:"year,omitempty"`
	Interests         []string  `json:"interests,omitempty"`
	Emojis            []string  `json:"emojis,omitempty"`
	Bio               *string   `json:"bio,omitempty"`
	HasProfilePicture bool      `json:"hasProfilePicture"`
	IsAdmin           bool      `json:"isAdmin,omitempty"`
	CreatedAt         time.Time `json:"createdAt,omitzero"`
}

// Summary holds the directory-visible fields of a member.
type Summary struct {
	ID                string   `json:"id"`
	DisplayName       string   `json:"displayName"`
	Nickname          *string  `json:"nickname,omitempty"`
	Year              *int     `json:"year,omitempty"`
	Interests         []string `json:"interests,omitempty"`
	Emojis            []string `json:"emojis,omitempty"`
	HasProfilePicture bool     `json:"hasProfilePicture"`
}

// UpdateRequest is a sparse profile update. Unspecified fields are left
// unchanged by the server; a null clears the field.
//
//	var req client.UpdateRequest
//	req.Bio.Set("Hello")
//	req.Year.SetNull()
type UpdateRequest struct {
	Nickname  nullable.Nullable[string]   `json:"nickname,omitempty"`
	Year      nullable.Nullable[int]      `json:"year,omitempty"`
	Interests nullable.Nullable[[]string] `json:"interests,omitempty"`
	Bio       nullable.Nullable[string]   `json:"bio,omitempty"`
	Emojis    nullable.Nullable[[]string] `json:"emojis,omitempty"`
}

// Picture is a fetched profile picture.
type Picture struct {
	Data        []byte
	ContentType string
	ETag        string
}

// AuthStatus reports whether the client holds a valid session.
type AuthStatus struct {
	Authenticated bool     `json:"authenticated"`
	User          *Profile `json:"user,omitempty"`
}

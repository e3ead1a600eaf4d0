package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error taxonomy. Every error returned by a Client matches exactly one of
// these with errors.Is.
var (
	// ErrUnauthenticated means no valid session was presented.
	ErrUnauthenticated = errors.New("not signed in")
	// ErrNotFound means the requested profile or picture does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation means the server rejected the request body.
	ErrValidation = errors.New("validation failed")
	// ErrUnsupportedMediaType means an uploaded picture is not an accepted image.
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	// ErrPayloadTooLarge means an uploaded picture exceeds the size bound.
	ErrPayloadTooLarge = errors.New("payload too large")
	// ErrNetwork covers transport failures and any other unexpected response.
	ErrNetwork = errors.New("network or server error")
)

// APIError is a non-2xx response from the directory server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Unwrap classifies the status code into the error taxonomy.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return ErrUnauthenticated
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return ErrValidation
	case http.StatusUnsupportedMediaType:
		return ErrUnsupportedMediaType
	case http.StatusRequestEntityTooLarge:
		return ErrPayloadTooLarge
	default:
		return ErrNetwork
	}
}

// newAPIError builds an APIError, taking the message from an
// {"error": ...} or {"message": ...} body when present.
func newAPIError(status int, body []byte) *APIError {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	msg := ""
	if err := json.Unmarshal(body, &payload); err == nil {
		msg = payload.Error
		if msg == "" {
			msg = payload.Message
		}
	} else {
		msg = strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200]
		}
	}
	return &APIError{StatusCode: status, Message: msg}
}

// Message returns a member-facing description of err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return "Please sign in to continue."
	case errors.Is(err, ErrUnsupportedMediaType):
		return "That file is not a supported image. Use JPEG, PNG, GIF or WebP."
	case errors.Is(err, ErrPayloadTooLarge):
		return "That picture is too large."
	case errors.As(err, &apiErr) && apiErr.Message != "" && !errors.Is(err, ErrNetwork):
		return apiErr.Message
	case errors.Is(err, ErrNotFound):
		return "Profile not found."
	case errors.Is(err, ErrValidation):
		return "Some of the values you entered are not valid."
	default:
		return "Something went wrong. Please try again."
	}
}

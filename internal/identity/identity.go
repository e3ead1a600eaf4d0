// Package identity implements member sessions for the directory.
//
// It provides:
//   - SessionIssuer: issues and verifies HS256 session JWTs and OAuth state tokens
//   - RequireSession: Gin middleware enforcing a valid session cookie or Bearer token
//   - OptionalSession: Gin middleware that attaches a session when one is present
package identity

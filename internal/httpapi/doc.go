// Package httpapi exposes the member directory over HTTP with gin.
//
// Routes are unprefixed: /profile/... for member records and pictures and
// /auth/... for the session. Errors use the {"error": "..."} shape.
package httpapi

// Package client is the Go client for the member directory API.
//
// It is a thin, typed façade: every method is one request and one response,
// with no caching and no retries. Failures are classified into a small
// taxonomy that callers test with errors.Is:
//
//	p, err := c.FetchSelf(ctx)
//	switch {
//	case errors.Is(err, client.ErrUnauthenticated):
//	    // send the member to sign in
//	case errors.Is(err, client.ErrNotFound):
//	    // show "profile not found"
//	case err != nil:
//	    fmt.Println(client.Message(err))
//	}
//
// # Sessions
//
// The server identifies members by the roster_session cookie. A token
// obtained elsewhere (for example from the CLI config) is attached with
// WithSessionToken; browser-style flows use WithCookieJar.
//
// # Sparse updates
//
// UpdateRequest fields are nullable.Nullable values. Only specified fields
// are sent; SetNull clears a field on the server:
//
//	var req client.UpdateRequest
//	req.Nickname.Set("Ames")
//	req.Year.SetNull()
//	p, err := c.Update(ctx, req)
package client

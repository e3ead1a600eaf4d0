// Package session holds the process-wide signed-in identity.
//
// A Context is the single source of truth for "who is signed in". It is
// created once, loaded from the server's auth status endpoint, and injected
// into every component that needs it; components never keep their own copy
// of the identity.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/jmerrifield20/roster/pkg/client"
)

// Status is the lifecycle state of a Context.
type Status int

const (
	StatusLoading Status = iota
	StatusReady
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusError:
		return "error"
	}
	return "unknown"
}

// Identity is the summary of the signed-in member.
type Identity struct {
	ID          string
	DisplayName string
	Email       string
	IsAdmin     bool
}

// ErrNotLoaded is returned by Wait when the context is cancelled before the
// first load completes.
var ErrNotLoaded = errors.New("session not loaded")

// StatusSource reports the current authentication status. *client.Client
// satisfies it.
type StatusSource interface {
	AuthStatus(ctx context.Context) (*client.AuthStatus, error)
}

// Context tracks the signed-in identity through a loading, ready or error
// lifecycle. It is safe for concurrent use.
type Context struct {
	src StatusSource

	mu       sync.RWMutex
	status   Status
	identity *Identity
	err      error
	gen      uint64
	done     chan struct{}
}

// New returns a Context in the loading state. Call Load to resolve it.
func New(src StatusSource) *Context {
	return &Context{src: src, done: make(chan struct{})}
}

// Load asks the server for the current auth status. An anonymous caller is
// not an error: the context becomes ready and unauthenticated.
func (c *Context) Load(ctx context.Context) error {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	if c.status != StatusLoading {
		c.status = StatusLoading
		c.done = make(chan struct{})
	}
	c.mu.Unlock()

	st, err := c.src.AuthStatus(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		// A newer Load owns the result.
		return err
	}
	if err != nil {
		c.status = StatusError
		c.err = err
		c.identity = nil
	} else {
		c.status = StatusReady
		c.err = nil
		c.identity = identityFrom(st)
	}
	close(c.done)
	return err
}

// Wait blocks until the current load finishes or ctx is done.
func (c *Context) Wait(ctx context.Context) error {
	c.mu.RLock()
	done := c.done
	c.mu.RUnlock()
	select {
	case <-done:
		return c.Err()
	case <-ctx.Done():
		return ErrNotLoaded
	}
}

// Status returns the lifecycle state.
func (c *Context) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Err returns the error from the last failed load.
func (c *Context) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// IsAuthenticated reports whether a member is signed in. It is false while
// loading and after a failed load.
func (c *Context) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status == StatusReady && c.identity != nil
}

// Identity returns the signed-in member, if any.
func (c *Context) Identity() (Identity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.status != StatusReady || c.identity == nil {
		return Identity{}, false
	}
	return *c.identity, true
}

// Invalidate marks the session signed out without a round trip, for example
// after the server answered 401 or after logout.
func (c *Context) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.identity = nil
	c.err = nil
	if c.status == StatusLoading {
		close(c.done)
	}
	c.status = StatusReady
}

func identityFrom(st *client.AuthStatus) *Identity {
	if st == nil || !st.Authenticated || st.User == nil {
		return nil
	}
	return &Identity{
		ID:          st.User.ID,
		DisplayName: st.User.DisplayName,
		Email:       st.User.Email,
		IsAdmin:     st.User.IsAdmin,
	}
}

// Package editor implements the profile edit session: a local Draft of the
// signed-in member's profile and the save, upload and delete protocols that
// sync it with the directory server.
//
// A Session moves through these states:
//
//	Loading → Ready → {Saving, UploadingPicture, DeletingPicture} → Ready
//	                 ↘ RedirectPending (after a successful save)
//
// Failures never change the state machine: they leave a message on the
// snapshot that the next edit clears. Completion is signalled on the Events
// channel rather than by timing.
package editor

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/jmerrifield20/roster/pkg/client"
)

// State is the edit session's lifecycle state.
type State int

const (
	StateLoading State = iota
	StateReady
	StateSaving
	StateUploadingPicture
	StateDeletingPicture
	StateRedirectPending
)

var stateNames = map[State]string{
	StateLoading:          "loading",
	StateReady:            "ready",
	StateSaving:           "saving",
	StateUploadingPicture: "uploading-picture",
	StateDeletingPicture:  "deleting-picture",
	StateRedirectPending:  "redirect-pending",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

var (
	// ErrBusy is returned when a save, upload or delete is already in flight.
	ErrBusy = errors.New("another change is in progress")
	// ErrNotLoaded is returned when a protocol runs before Load succeeded.
	ErrNotLoaded = errors.New("profile not loaded")
	// ErrFinished is returned once a save has completed and the session is
	// waiting to be closed.
	ErrFinished = errors.New("edit session finished")
)

// Success messages shown to the member.
const (
	MsgSaved          = "Profile updated successfully!"
	MsgPictureUpdated = "Profile picture uploaded successfully!"
	MsgPictureDeleted = "Profile picture deleted successfully!"
)

// DefaultCompletionDelay is how long the save confirmation stays visible
// before EventSaved is emitted.
const DefaultCompletionDelay = 1500 * time.Millisecond

// EventKind identifies a completion event.
type EventKind int

const (
	// EventSaved follows a successful save; the presentation layer navigates
	// to the read-only profile.
	EventSaved EventKind = iota + 1
	// EventPictureChanged follows a successful upload or delete, after
	// HasPicture has been refreshed.
	EventPictureChanged
)

// Event reports that a protocol completed.
type Event struct {
	Kind       EventKind
	Profile    *client.Profile
	HasPicture bool
}

// ProfileAPI is the subset of *client.Client used by a Session.
type ProfileAPI interface {
	FetchSelf(ctx context.Context) (*client.Profile, error)
	Update(ctx context.Context, req client.UpdateRequest) (*client.Profile, error)
	UploadPicture(ctx context.Context, filename string, r io.Reader) error
	DeletePicture(ctx context.Context) error
}

// Authenticator is the session collaborator. *session.Context satisfies it.
// Invalidate is only called after the server answered 401.
type Authenticator interface {
	Wait(ctx context.Context) error
	IsAuthenticated() bool
	Invalidate()
}

// Snapshot is a copy of the session's state for presentation.
type Snapshot struct {
	State         State
	Draft         Draft
	InterestInput string
	EmojiInput    string
	Error         string
	Success       string
	NeedsSignIn   bool
	HasPicture    bool
	// Busy is set while a save, upload or delete is in flight. Edits and
	// Load are rejected until it clears.
	Busy bool
}

// BioRemaining is the number of code points still available in the bio.
func (s Snapshot) BioRemaining() int {
	return MaxBioLength - runeCount(s.Draft.Bio)
}

// Option configures a Session.
type Option func(*Session)

// WithCompletionDelay sets how long a save confirmation is shown before
// EventSaved is emitted. Zero emits immediately.
func WithCompletionDelay(d time.Duration) Option {
	return func(s *Session) { s.delay = d }
}

// WithEventBuffer sets the capacity of the Events channel.
func WithEventBuffer(n int) Option {
	return func(s *Session) { s.bufSize = n }
}

// Session edits one member's own profile.
type Session struct {
	api     ProfileAPI
	auth    Authenticator
	delay   time.Duration
	bufSize int
	events  chan Event

	mu            sync.Mutex
	state         State
	draft         Draft
	interestInput string
	emojiInput    string
	errMsg        string
	success       string
	needsSignIn   bool
	hasPicture    bool
	saving        bool
	timer         *time.Timer
}

// New returns a Session in the Loading state. auth may be nil, in which case
// Load relies on the server to reject anonymous callers.
func New(api ProfileAPI, auth Authenticator, opts ...Option) *Session {
	s := &Session{
		api:     api,
		auth:    auth,
		delay:   DefaultCompletionDelay,
		bufSize: 4,
		draft:   DraftFromProfile(nil),
	}
	for _, o := range opts {
		o(s)
	}
	s.events = make(chan Event, s.bufSize)
	return s
}

// Events delivers completion events. Events are dropped if the buffer is
// full.
func (s *Session) Events() <-chan Event { return s.events }

// Close stops a pending delayed event.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Load fetches the member's profile and fills the Draft from it. A session
// context that is still loading is waited on first; a signed-out one is
// reported without touching it.
func (s *Session) Load(ctx context.Context) error {
	s.mu.Lock()
	busy := s.saving
	s.mu.Unlock()
	if busy {
		return ErrBusy
	}

	if s.auth != nil {
		if err := s.auth.Wait(ctx); err != nil {
			s.mu.Lock()
			s.errMsg = client.Message(err)
			s.mu.Unlock()
			return err
		}
		if !s.auth.IsAuthenticated() {
			s.mu.Lock()
			s.errMsg = client.Message(client.ErrUnauthenticated)
			s.needsSignIn = true
			s.mu.Unlock()
			return client.ErrUnauthenticated
		}
	}

	p, err := s.api.FetchSelf(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saving {
		return ErrBusy
	}
	if err != nil {
		s.fail(err)
		return err
	}
	s.draft = DraftFromProfile(p)
	s.hasPicture = p != nil && p.HasProfilePicture
	s.errMsg = ""
	s.needsSignIn = false
	s.state = StateReady
	return nil
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		State:         s.state,
		Draft:         s.draft.Clone(),
		InterestInput: s.interestInput,
		EmojiInput:    s.emojiInput,
		Error:         s.errMsg,
		Success:       s.success,
		NeedsSignIn:   s.needsSignIn,
		HasPicture:    s.hasPicture,
		Busy:          s.saving,
	}
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// HasPicture reports whether the member currently has a picture.
func (s *Session) HasPicture() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasPicture
}

// ─── Draft edits ─────────────────────────────────────────────────────────────

// edit runs fn against the draft when the session accepts edits: after a
// successful Load and while no protocol is in flight. The error message is
// cleared by any edit.
func (s *Session) edit(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saving || s.state == StateLoading || s.state == StateRedirectPending {
		return
	}
	s.errMsg = ""
	fn()
}

// SetNickname replaces the nickname.
func (s *Session) SetNickname(v string) { s.edit(func() { s.draft.Nickname = v }) }

// SetYear replaces the raw year text. It is parsed only on save.
func (s *Session) SetYear(v string) { s.edit(func() { s.draft.Year = v }) }

// SetBio replaces the bio, truncated to MaxBioLength code points.
func (s *Session) SetBio(v string) {
	s.edit(func() { s.draft.Bio = truncateRunes(v, MaxBioLength) })
}

// SetInterestInput stages text for AddInterest.
func (s *Session) SetInterestInput(v string) { s.edit(func() { s.interestInput = v }) }

// SetEmojiInput stages text for AddEmoji.
func (s *Session) SetEmojiInput(v string) { s.edit(func() { s.emojiInput = v }) }

// AddInterest appends v after trimming. Empty values and exact duplicates
// are ignored. On success the staging input is cleared.
func (s *Session) AddInterest(v string) bool {
	var added bool
	s.edit(func() {
		s.draft.Interests, added = appendUnique(s.draft.Interests, v)
		if added {
			s.interestInput = ""
		}
	})
	return added
}

// AddStagedInterest adds the staged interest input.
func (s *Session) AddStagedInterest() bool {
	s.mu.Lock()
	v := s.interestInput
	s.mu.Unlock()
	return s.AddInterest(v)
}

// RemoveInterest removes the interest at position i.
func (s *Session) RemoveInterest(i int) bool {
	var removed bool
	s.edit(func() { s.draft.Interests, removed = removeAt(s.draft.Interests, i) })
	return removed
}

// AddEmoji appends v after trimming. Empty values, exact duplicates and
// values longer than MaxEmojiLength are ignored. On success the staging
// input is cleared.
func (s *Session) AddEmoji(v string) bool {
	if runeCount(strings.TrimSpace(v)) > MaxEmojiLength {
		return false
	}
	var added bool
	s.edit(func() {
		s.draft.Emojis, added = appendUnique(s.draft.Emojis, v)
		if added {
			s.emojiInput = ""
		}
	})
	return added
}

// AddStagedEmoji adds the staged emoji input.
func (s *Session) AddStagedEmoji() bool {
	s.mu.Lock()
	v := s.emojiInput
	s.mu.Unlock()
	return s.AddEmoji(v)
}

// RemoveEmoji removes the emoji at position i.
func (s *Session) RemoveEmoji(i int) bool {
	var removed bool
	s.edit(func() { s.draft.Emojis, removed = removeAt(s.draft.Emojis, i) })
	return removed
}

// ─── Protocols ───────────────────────────────────────────────────────────────

// begin claims the saving flag and enters state.
func (s *Session) begin(state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.saving:
		return ErrBusy
	case s.state == StateLoading:
		return ErrNotLoaded
	case s.state == StateRedirectPending:
		return ErrFinished
	}
	s.saving = true
	s.state = state
	s.errMsg = ""
	s.success = ""
	return nil
}

// Save sends every Draft field to the server. On failure the Draft is kept
// and the error is shown; on success the session enters RedirectPending and
// EventSaved follows after the completion delay.
func (s *Session) Save(ctx context.Context) error {
	if err := s.begin(StateSaving); err != nil {
		return err
	}
	s.mu.Lock()
	req := s.draft.UpdateRequest()
	s.mu.Unlock()

	p, err := s.api.Update(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.saving = false
	if err != nil {
		s.state = StateReady
		s.fail(err)
		return err
	}
	s.state = StateRedirectPending
	s.success = MsgSaved
	if p != nil {
		s.hasPicture = p.HasProfilePicture
	}
	s.emitLocked(Event{Kind: EventSaved, Profile: p, HasPicture: s.hasPicture}, s.delay)
	return nil
}

// UploadPicture replaces the member's picture with the image read from r.
// The server validates type and size.
func (s *Session) UploadPicture(ctx context.Context, filename string, r io.Reader) error {
	if err := s.begin(StateUploadingPicture); err != nil {
		return err
	}
	err := s.api.UploadPicture(ctx, filename, r)
	return s.finishPicture(ctx, err, true, MsgPictureUpdated)
}

// DeletePicture removes the member's picture. Deleting when there is none
// succeeds.
func (s *Session) DeletePicture(ctx context.Context) error {
	if err := s.begin(StateDeletingPicture); err != nil {
		return err
	}
	err := s.api.DeletePicture(ctx)
	return s.finishPicture(ctx, err, false, MsgPictureDeleted)
}

// finishPicture re-reads hasProfilePicture from the server after a picture
// mutation. The Draft is not touched. If the refresh fails the expected
// value is assumed.
func (s *Session) finishPicture(ctx context.Context, opErr error, expect bool, msg string) error {
	has := expect
	if opErr == nil {
		if p, err := s.api.FetchSelf(ctx); err == nil && p != nil {
			has = p.HasProfilePicture
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.saving = false
	s.state = StateReady
	if opErr != nil {
		s.fail(opErr)
		return opErr
	}
	s.hasPicture = has
	s.success = msg
	s.emitLocked(Event{Kind: EventPictureChanged, HasPicture: has}, 0)
	return nil
}

// fail records err as the visible message. Caller holds s.mu.
func (s *Session) fail(err error) {
	s.errMsg = client.Message(err)
	if errors.Is(err, client.ErrUnauthenticated) {
		s.needsSignIn = true
		if s.auth != nil {
			s.auth.Invalidate()
		}
	}
}

// emitLocked sends ev now or after delay. Caller holds s.mu.
func (s *Session) emitLocked(ev Event, delay time.Duration) {
	send := func() {
		select {
		case s.events <- ev:
		default:
		}
	}
	if delay <= 0 {
		send()
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(delay, send)
}

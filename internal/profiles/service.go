package profiles

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmerrifield20/roster/internal/email"
	"go.uber.org/zap"
)

// ErrNotAuthorized is returned when an email is not allowed to join the directory.
var ErrNotAuthorized = errors.New("email not authorized for this directory")

// memberRepo is the storage interface consumed by Service.
type memberRepo interface {
	Create(ctx context.Context, m *Member) error
	GetByID(ctx context.Context, id uuid.UUID) (*Member, error)
	GetByEmail(ctx context.Context, email string) (*Member, error)
	GetByOAuth(ctx context.Context, provider, providerID string) (*Member, error)
	LinkOAuth(ctx context.Context, memberID uuid.UUID, provider, providerID string) error
	List(ctx context.Context) ([]Summary, error)
	Count(ctx context.Context) (int, error)
	ApplyPatch(ctx context.Context, id uuid.UUID, p Patch) (*Member, error)
	SetHasPicture(ctx context.Context, id uuid.UUID, has bool) error
}

// RosterCache caches the directory listing between mutations.
type RosterCache interface {
	Get(ctx context.Context) ([]Summary, bool, error)
	Set(ctx context.Context, roster []Summary) error
	Invalidate(ctx context.Context) error
}

// SearchIndex is a full-text index over member directory fields.
type SearchIndex interface {
	Upsert(ctx context.Context, s Summary) error
	Search(ctx context.Context, query string, limit int) ([]uuid.UUID, error)
}

// AccessPolicy decides who may sign in and who is an administrator.
// An empty AllowedDomains and AllowedEmails admits every address.
type AccessPolicy struct {
	AllowedDomains []string
	AllowedEmails  []string
	AdminEmails    []string
}

func (p AccessPolicy) allows(addr string) bool {
	if len(p.AllowedDomains) == 0 && len(p.AllowedEmails) == 0 {
		return true
	}
	addr = strings.ToLower(strings.TrimSpace(addr))
	for _, e := range p.AllowedEmails {
		if strings.EqualFold(e, addr) {
			return true
		}
	}
	at := strings.LastIndex(addr, "@")
	if at < 0 {
		return false
	}
	domain := addr[at+1:]
	for _, d := range p.AllowedDomains {
		if strings.EqualFold(strings.TrimPrefix(d, "@"), domain) {
			return true
		}
	}
	return false
}

func (p AccessPolicy) isAdmin(addr string) bool {
	for _, e := range p.AdminEmails {
		if strings.EqualFold(e, strings.TrimSpace(addr)) {
			return true
		}
	}
	return false
}

// MetricsRecordFunc is an optional callback invoked after profile mutations.
type MetricsRecordFunc func(event string)

// Service implements the member profile operations.
type Service struct {
	repo         memberRepo
	mailer       email.Sender
	cache        RosterCache
	index        SearchIndex
	policy       AccessPolicy
	directoryURL string
	onMetrics    MetricsRecordFunc
	logger       *zap.Logger
}

// NewService creates a new Service.
func NewService(repo memberRepo, mailer email.Sender, logger *zap.Logger) *Service {
	return &Service{
		repo:         repo,
		mailer:       mailer,
		directoryURL: "http://localhost:3000",
		logger:       logger,
	}
}

// SetRosterCache enables caching of the directory listing.
func (s *Service) SetRosterCache(c RosterCache) { s.cache = c }

// SetSearchIndex enables full-text member search.
func (s *Service) SetSearchIndex(idx SearchIndex) { s.index = idx }

// SetAccessPolicy configures sign-in authorization.
func (s *Service) SetAccessPolicy(p AccessPolicy) { s.policy = p }

// SetDirectoryURL sets the frontend base URL used in outgoing email.
func (s *Service) SetDirectoryURL(url string) { s.directoryURL = strings.TrimRight(url, "/") }

// SetMetricsRecord configures the metrics callback.
func (s *Service) SetMetricsRecord(fn MetricsRecordFunc) { s.onMetrics = fn }

// GetByID returns a member record.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Member, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns the directory roster, served from the cache when possible.
func (s *Service) List(ctx context.Context) ([]Summary, error) {
	if s.cache != nil {
		roster, ok, err := s.cache.Get(ctx)
		if err != nil {
			s.logger.Warn("roster cache read", zap.Error(err))
		} else if ok {
			s.record("roster_cache_hit")
			return roster, nil
		}
		s.record("roster_cache_miss")
	}

	roster, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, roster); err != nil {
			s.logger.Warn("roster cache write", zap.Error(err))
		}
	}
	return roster, nil
}

// Count returns the number of members in the directory.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// Search returns members whose directory fields match query. Without a
// search index it falls back to a case-insensitive scan of the roster.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]Summary, error) {
	query = strings.TrimSpace(query)
	if limit <= 0 {
		limit = 20
	}
	roster, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if query == "" {
		return []Summary{}, nil
	}

	if s.index != nil {
		ids, err := s.index.Search(ctx, query, limit)
		if err == nil {
			byID := make(map[uuid.UUID]Summary, len(roster))
			for _, m := range roster {
				byID[m.ID] = m
			}
			out := make([]Summary, 0, len(ids))
			for _, id := range ids {
				if m, ok := byID[id]; ok {
					out = append(out, m)
				}
			}
			return out, nil
		}
		s.logger.Warn("search index query failed; scanning roster", zap.Error(err))
	}

	q := strings.ToLower(query)
	out := []Summary{}
	for _, m := range roster {
		if matches(m, q) {
			out = append(out, m)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func matches(m Summary, q string) bool {
	if strings.Contains(strings.ToLower(m.DisplayName), q) {
		return true
	}
	if m.Nickname != nil && strings.Contains(strings.ToLower(*m.Nickname), q) {
		return true
	}
	for _, tag := range m.Interests {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}

// Update applies a sparse patch to the member's own record.
// Lists are trimmed and deduplicated, blank nicknames clear the nickname,
// and the bio is bounded to MaxBioRunes code points.
func (s *Service) Update(ctx context.Context, id uuid.UUID, p Patch) (*Member, error) {
	p = normalizePatch(p)
	if err := validatePatch(p); err != nil {
		return nil, err
	}
	if p.Empty() {
		return s.repo.GetByID(ctx, id)
	}

	m, err := s.repo.ApplyPatch(ctx, id, p)
	if err != nil {
		return nil, err
	}

	s.afterMutation(ctx, m, "profile_updated")
	s.logger.Info("profile updated", zap.String("member_id", id.String()))
	return m, nil
}

// SetHasPicture records whether picture storage holds an image for the member.
func (s *Service) SetHasPicture(ctx context.Context, id uuid.UUID, has bool) error {
	if err := s.repo.SetHasPicture(ctx, id, has); err != nil {
		return err
	}
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.logger.Warn("reload member after picture change", zap.Error(err))
		s.invalidateRoster(ctx)
		return nil
	}
	s.afterMutation(ctx, m, "picture_flag_changed")
	return nil
}

// IsAuthorizedEmail reports whether addr may sign in to the directory.
func (s *Service) IsAuthorizedEmail(addr string) bool {
	return ValidEmail(addr) && s.policy.allows(addr)
}

// GetOrCreateFromOAuth returns the member linked to the provider identity,
// linking an existing account by email or creating a new member. The bool
// result reports whether the member was created.
func (s *Service) GetOrCreateFromOAuth(ctx context.Context, id OAuthIdentity) (*Member, bool, error) {
	if !s.IsAuthorizedEmail(id.Email) {
		return nil, false, ErrNotAuthorized
	}

	m, err := s.repo.GetByOAuth(ctx, id.Provider, id.ProviderID)
	if err == nil {
		return m, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, fmt.Errorf("lookup oauth member: %w", err)
	}

	existing, err := s.repo.GetByEmail(ctx, id.Email)
	if err == nil {
		if linkErr := s.repo.LinkOAuth(ctx, existing.ID, id.Provider, id.ProviderID); linkErr != nil {
			s.logger.Warn("link oauth to existing member",
				zap.String("member_id", existing.ID.String()),
				zap.Error(linkErr),
			)
		}
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, fmt.Errorf("lookup by email: %w", err)
	}

	displayName := strings.TrimSpace(id.DisplayName)
	if displayName == "" {
		displayName = localPart(id.Email)
	}
	m = &Member{
		Email:       strings.ToLower(strings.TrimSpace(id.Email)),
		DisplayName: displayName,
		IsAdmin:     s.policy.isAdmin(id.Email),
		Interests:   []string{},
		Emojis:      []string{},
	}
	if err := s.repo.Create(ctx, m); err != nil {
		return nil, false, fmt.Errorf("create member: %w", err)
	}
	if err := s.repo.LinkOAuth(ctx, m.ID, id.Provider, id.ProviderID); err != nil {
		s.logger.Warn("link oauth after create", zap.Error(err))
	}

	s.afterMutation(ctx, m, "member_created")
	if err := s.mailer.Send(ctx, email.Welcome(m.Email, m.DisplayName, s.directoryURL)); err != nil {
		s.logger.Warn("send welcome email",
			zap.String("member_id", m.ID.String()),
			zap.Error(err),
		)
	}
	return m, true, nil
}

// afterMutation keeps the roster cache and the search index in step with
// the store. Failures are logged; the mutation itself already succeeded.
func (s *Service) afterMutation(ctx context.Context, m *Member, event string) {
	s.invalidateRoster(ctx)
	if s.index != nil {
		if err := s.index.Upsert(ctx, m.Summary()); err != nil {
			s.logger.Warn("search index upsert",
				zap.String("member_id", m.ID.String()),
				zap.Error(err),
			)
		}
	}
	s.record(event)
}

func (s *Service) record(event string) {
	if s.onMetrics != nil {
		s.onMetrics(event)
	}
}

func (s *Service) invalidateRoster(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("roster cache invalidate", zap.Error(err))
	}
}

func localPart(addr string) string {
	if at := strings.Index(addr, "@"); at > 0 {
		return addr[:at]
	}
	return addr
}

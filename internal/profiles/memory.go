package profiles

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-process member store for development and tests.
type MemoryRepository struct {
	mu    sync.RWMutex
	byID  map[uuid.UUID]*Member
	oauth map[string]uuid.UUID // "provider:providerID" → member id
	clock func() time.Time
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:  make(map[uuid.UUID]*Member),
		oauth: make(map[string]uuid.UUID),
		clock: func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryRepository) Create(_ context.Context, m *Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if strings.EqualFold(existing.Email, m.Email) {
			return ErrDuplicateEmail
		}
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	now := r.clock()
	m.CreatedAt = now
	m.UpdatedAt = now
	if m.Interests == nil {
		m.Interests = []string{}
	}
	if m.Emojis == nil {
		m.Emojis = []string{}
	}
	r.byID[m.ID] = cloneMember(m)
	return nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneMember(m), nil
}

func (r *MemoryRepository) GetByEmail(_ context.Context, email string) (*Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.byID {
		if strings.EqualFold(m.Email, email) {
			return cloneMember(m), nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepository) GetByOAuth(_ context.Context, provider, providerID string) (*Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.oauth[provider+":"+providerID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneMember(r.byID[id]), nil
}

func (r *MemoryRepository) LinkOAuth(_ context.Context, memberID uuid.UUID, provider, providerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := provider + ":" + providerID
	if _, exists := r.oauth[key]; !exists {
		r.oauth[key] = memberID
	}
	return nil
}

func (r *MemoryRepository) List(_ context.Context) ([]Summary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := make([]*Member, 0, len(r.byID))
	for _, m := range r.byID {
		members = append(members, m)
	}
	sort.SliceStable(members, func(i, j int) bool {
		return members[i].CreatedAt.Before(members[j].CreatedAt)
	})
	out := make([]Summary, 0, len(members))
	for _, m := range members {
		out = append(out, cloneMember(m).Summary())
	}
	return out, nil
}

func (r *MemoryRepository) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID), nil
}

func (r *MemoryRepository) ApplyPatch(_ context.Context, id uuid.UUID, p Patch) (*Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	if p.Nickname.IsSpecified() {
		m.Nickname = nullableValue(p.Nickname.IsNull(), p.Nickname.Get)
	}
	if p.Year.IsSpecified() {
		m.Year = nullableValue(p.Year.IsNull(), p.Year.Get)
	}
	if p.Interests.IsSpecified() {
		m.Interests = slices.Clone(orEmpty(p.Interests.Get))
	}
	if p.Emojis.IsSpecified() {
		m.Emojis = slices.Clone(orEmpty(p.Emojis.Get))
	}
	if p.Bio.IsSpecified() {
		m.Bio, _ = p.Bio.Get()
	}
	m.UpdatedAt = r.clock()
	return cloneMember(m), nil
}

func (r *MemoryRepository) SetHasPicture(_ context.Context, id uuid.UUID, has bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	m.HasProfilePicture = has
	m.UpdatedAt = r.clock()
	return nil
}

func cloneMember(m *Member) *Member {
	cp := *m
	if m.Nickname != nil {
		nick := *m.Nickname
		cp.Nickname = &nick
	}
	if m.Year != nil {
		year := *m.Year
		cp.Year = &year
	}
	cp.Interests = slices.Clone(m.Interests)
	cp.Emojis = slices.Clone(m.Emojis)
	return &cp
}

package profiles

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a member lookup finds no matching record.
var ErrNotFound = errors.New("member not found")

// ErrDuplicateEmail is returned when a member with the same email already exists.
var ErrDuplicateEmail = errors.New("email already registered")

const memberColumns = `id, email, display_name, nickname, year, interests, emojis, bio,
	has_profile_picture, is_admin, created_at, updated_at`

// Repository persists members in PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create inserts a new member. Sets ID, CreatedAt and UpdatedAt on m.
func (r *Repository) Create(ctx context.Context, m *Member) error {
	m.ID = uuid.New()
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	if m.Interests == nil {
		m.Interests = []string{}
	}
	if m.Emojis == nil {
		m.Emojis = []string{}
	}

	q := `
		INSERT INTO members (` + memberColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.db.Exec(ctx, q,
		m.ID, m.Email, m.DisplayName, m.Nickname, m.Year, m.Interests, m.Emojis, m.Bio,
		m.HasProfilePicture, m.IsAdmin, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("create member: %w", err)
	}
	return nil
}

// GetByID retrieves a member by id.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Member, error) {
	return r.scanOne(ctx, `SELECT `+memberColumns+` FROM members WHERE id = $1`, id)
}

// GetByEmail retrieves a member by email address.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*Member, error) {
	return r.scanOne(ctx, `SELECT `+memberColumns+` FROM members WHERE lower(email) = lower($1)`, email)
}

// GetByOAuth retrieves the member linked to the provider identity.
func (r *Repository) GetByOAuth(ctx context.Context, provider, providerID string) (*Member, error) {
	q := `
		SELECT ` + prefixed("m.", memberColumns) + ` FROM members m
		JOIN member_oauth o ON o.member_id = m.id
		WHERE o.provider = $1 AND o.provider_id = $2`
	return r.scanOne(ctx, q, provider, providerID)
}

// LinkOAuth records a provider identity for a member. Duplicate links are ignored.
func (r *Repository) LinkOAuth(ctx context.Context, memberID uuid.UUID, provider, providerID string) error {
	q := `
		INSERT INTO member_oauth (id, member_id, provider, provider_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (provider, provider_id) DO NOTHING`
	_, err := r.db.Exec(ctx, q, uuid.New(), memberID, provider, providerID, time.Now().UTC())
	return err
}

// List returns every member's directory fields in creation order.
func (r *Repository) List(ctx context.Context) ([]Summary, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, display_name, nickname, year, interests, emojis, has_profile_picture
		FROM members ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.ID, &s.DisplayName, &s.Nickname, &s.Year,
			&s.Interests, &s.Emojis, &s.HasProfilePicture); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Count returns the number of members.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT count(*) FROM members`).Scan(&n)
	return n, err
}

// ApplyPatch writes the specified fields of p and returns the updated record.
// The statement only touches columns the patch specifies.
func (r *Repository) ApplyPatch(ctx context.Context, id uuid.UUID, p Patch) (*Member, error) {
	sets := []string{}
	args := []any{id}
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, col+" = $"+strconv.Itoa(len(args)))
	}

	if p.Nickname.IsSpecified() {
		add("nickname", nullableValue(p.Nickname.IsNull(), p.Nickname.Get))
	}
	if p.Year.IsSpecified() {
		add("year", nullableValue(p.Year.IsNull(), p.Year.Get))
	}
	if p.Interests.IsSpecified() {
		add("interests", orEmpty(p.Interests.Get))
	}
	if p.Emojis.IsSpecified() {
		add("emojis", orEmpty(p.Emojis.Get))
	}
	if p.Bio.IsSpecified() {
		bio, _ := p.Bio.Get()
		add("bio", bio)
	}
	add("updated_at", time.Now().UTC())

	q := `UPDATE members SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING ` + memberColumns
	return r.scanOne(ctx, q, args...)
}

// SetHasPicture updates the picture flag.
func (r *Repository) SetHasPicture(ctx context.Context, id uuid.UUID, has bool) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE members SET has_profile_picture = $2, updated_at = $3 WHERE id = $1`,
		id, has, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set picture flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// scanOne executes a single-row query and scans the result into a Member.
// Column order follows memberColumns.
func (r *Repository) scanOne(ctx context.Context, q string, args ...any) (*Member, error) {
	var m Member
	err := r.db.QueryRow(ctx, q, args...).Scan(
		&m.ID, &m.Email, &m.DisplayName, &m.Nickname, &m.Year, &m.Interests, &m.Emojis, &m.Bio,
		&m.HasProfilePicture, &m.IsAdmin, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan member: %w", err)
	}
	return &m, nil
}

func nullableValue[T any](isNull bool, get func() (T, error)) *T {
	if isNull {
		return nil
	}
	v, err := get()
	if err != nil {
		return nil
	}
	return &v
}

func orEmpty(get func() ([]string, error)) []string {
	v, err := get()
	if err != nil || v == nil {
		return []string{}
	}
	return v
}

func prefixed(prefix, cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

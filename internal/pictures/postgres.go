package pictures

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps pictures as bytea rows in member_pictures.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Put(ctx context.Context, pic *Picture) error {
	if pic.UpdatedAt.IsZero() {
		pic.UpdatedAt = time.Now().UTC()
	}
	q := `
		INSERT INTO member_pictures (member_id, content_type, data, etag, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (member_id) DO UPDATE
		SET content_type = EXCLUDED.content_type,
		    data         = EXCLUDED.data,
		    etag         = EXCLUDED.etag,
		    updated_at   = EXCLUDED.updated_at`
	if _, err := s.db.Exec(ctx, q, pic.MemberID, pic.ContentType, pic.Data, pic.ETag, pic.UpdatedAt); err != nil {
		return fmt.Errorf("store picture: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, memberID uuid.UUID) (*Picture, error) {
	p := Picture{MemberID: memberID}
	err := s.db.QueryRow(ctx,
		`SELECT content_type, data, etag, updated_at FROM member_pictures WHERE member_id = $1`,
		memberID,
	).Scan(&p.ContentType, &p.Data, &p.ETag, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load picture: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) Delete(ctx context.Context, memberID uuid.UUID) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM member_pictures WHERE member_id = $1`, memberID); err != nil {
		return fmt.Errorf("delete picture: %w", err)
	}
	return nil
}

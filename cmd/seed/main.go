// cmd/seed populates the directory with demo members for development.
//
// Running twice is safe: existing rows are updated to match the seed
// definitions (ON CONFLICT ... DO UPDATE). When session.secret is configured
// a session token is printed for each member so the CLI can be used
// without signing in through Google:
//
//	go run ./cmd/seed
//	members login --token <printed token>
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/roster/internal/config"
	"github.com/jmerrifield20/roster/internal/identity"
	"github.com/jmerrifield20/roster/internal/profiles"
	"github.com/jmerrifield20/roster/internal/search"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	v := viper.New()
	cfg, _, err := config.Load(v)
	if err != nil {
		// Seeding only needs the database; fall back to raw values.
		cfg = config.FromViper(v)
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer db.Close()

	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	fmt.Println("connected to database")

	if err := seedMembers(ctx, db); err != nil {
		return fmt.Errorf("seed members: %w", err)
	}

	if cfg.Search.Host != "" {
		idx := search.New(cfg.Search.Host, cfg.Search.APIKey, zap.NewNop())
		idx.Configure()
		roster, err := profiles.NewRepository(db).List(ctx)
		if err != nil {
			return fmt.Errorf("list members: %w", err)
		}
		if err := idx.Reindex(ctx, roster); err != nil {
			return fmt.Errorf("reindex search: %w", err)
		}
		fmt.Printf("  search index rebuilt (%d members)\n", len(roster))
	}

	if cfg.Session.Secret != "" {
		if err := printTokens(cfg); err != nil {
			return err
		}
	}

	fmt.Println("\nseed complete")
	return nil
}

// ── Members ──────────────────────────────────────────────────────────────────

type seedMember struct {
	ID          uuid.UUID
	Email       string
	DisplayName string
	Nickname    string
	Year        int // 0 = unset
	Interests   []string
	Emojis      []string
	Bio         string
	Admin       bool
}

func seedID(n int) uuid.UUID {
	return uuid.MustParse(fmt.Sprintf("00000000-0000-0000-0000-%012d", n))
}

var members = []seedMember{
	{ID: seedID(1), Email: "nick3@example.org", DisplayName: "Nick Three", Nickname: "Nick3", Year: 2023,
		Interests: []string{"Music", "Hiking", "Film"}, Emojis: []string{"🎸", "🏔️"},
		Bio: "Organizes the monthly open mic.", Admin: true},
	{ID: seedID(2), Email: "nick1@example.org", DisplayName: "Nick One", Nickname: "Nick1", Year: 2023,
		Interests: []string{"Chess", "Go", "Puzzles", "Baking", "Running"}, Emojis: []string{"♟️", "🧩", "🍞", "🏃"}},
	{ID: seedID(3), Email: "nick2@example.org", DisplayName: "Nick Two", Nickname: "Nick2", Year: 2024,
		Interests: []string{"Photography"}, Emojis: []string{"📷"}},
	{ID: seedID(4), Email: "dev@example.org", DisplayName: "Dev Patel", Nickname: "Dev", Year: 2022,
		Interests: []string{"Robotics", "Open source"}, Emojis: []string{"🤖", "💻"},
		Bio: "Ask me about the robotics lab."},
	{ID: seedID(5), Email: "ujesha@example.org", DisplayName: "Ujesha", Year: 2025,
		Interests: []string{"Painting", "Poetry"}, Emojis: []string{"🎨", "📝"}},
	{ID: seedID(6), Email: "sreehari@example.org", DisplayName: "Sreehari", Year: 2021,
		Interests: []string{"Cricket", "Cooking"}, Emojis: []string{"🏏", "🍛"}},
	{ID: seedID(7), Email: "megh.sha@example.org", DisplayName: "Megh Sha", Year: 2023,
		Interests: []string{"Dance", "Music"}, Emojis: []string{"💃", "🎶"}},
	{ID: seedID(8), Email: "sabhya@example.org", DisplayName: "Sabhya",
		Interests: []string{"Reading"}, Emojis: []string{"📚"},
		Bio: "Hasn't picked a year yet."},
	{ID: seedID(9), Email: "amitesh@example.org", DisplayName: "Amitesh", Year: 2024,
		Interests: []string{"Basketball", "Gaming", "Anime"}, Emojis: []string{"🏀", "🎮", "🍥"}},
}

func seedMembers(ctx context.Context, db *pgxpool.Pool) error {
	const q = `
		INSERT INTO members (id, email, display_name, nickname, year, interests, emojis, bio, is_admin)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			email        = EXCLUDED.email,
			display_name = EXCLUDED.display_name,
			nickname     = EXCLUDED.nickname,
			year         = EXCLUDED.year,
			interests    = EXCLUDED.interests,
			emojis       = EXCLUDED.emojis,
			bio          = EXCLUDED.bio,
			is_admin     = EXCLUDED.is_admin,
			updated_at   = now()`

	for _, m := range members {
		var nickname *string
		if m.Nickname != "" {
			nickname = &m.Nickname
		}
		var year *int
		if m.Year != 0 {
			year = &m.Year
		}
		if _, err := db.Exec(ctx, q, m.ID, m.Email, m.DisplayName, nickname, year,
			m.Interests, m.Emojis, m.Bio, m.Admin); err != nil {
			return fmt.Errorf("insert member %s: %w", m.Email, err)
		}
		fmt.Printf("  member  %-24s  %s\n", m.Email, yearText(m.Year))
	}
	return nil
}

func yearText(y int) string {
	if y == 0 {
		return "(no year)"
	}
	return fmt.Sprint(y)
}

func printTokens(cfg *config.Config) error {
	sessions, err := identity.NewSessionIssuer(cfg.Session.Secret, cfg.Server.PublicURL, cfg.Session.TTL)
	if err != nil {
		return fmt.Errorf("session issuer: %w", err)
	}
	fmt.Println("\nsession tokens (valid for " + cfg.Session.TTL.String() + "):")
	for _, m := range members {
		tok, err := sessions.Issue(m.ID, m.Email, m.DisplayName, m.Admin)
		if err != nil {
			return fmt.Errorf("issue token for %s: %w", m.Email, err)
		}
		fmt.Printf("  %-24s %s\n", strings.SplitN(m.Email, "@", 2)[0], tok)
	}
	return nil
}

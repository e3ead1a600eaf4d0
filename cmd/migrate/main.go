// cmd/migrate applies the *.up.sql files in migrations/ to the directory
// database. The schema_migrations table uses the golang-migrate layout
// (bigint version + dirty flag) so the two tools are interchangeable.
//
// Usage:
//
//	go run ./cmd/migrate
//	DATABASE_URL=postgres://... go run ./cmd/migrate -dir migrations
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/roster/internal/config"
	"github.com/spf13/viper"
)

func main() {
	dir := flag.String("dir", "migrations", "directory holding NNN_name.up.sql files")
	flag.Parse()

	if err := run(*dir); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
}

func run(dir string) error {
	dbURL, err := databaseURL()
	if err != nil {
		return err
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer db.Close()

	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	fmt.Println("connected to database")

	if _, err := db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version bigint NOT NULL,
			dirty   boolean NOT NULL,
			PRIMARY KEY (version)
		)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	files, err := upFiles(dir)
	if err != nil {
		return err
	}

	applied := 0
	for _, f := range files {
		ver, err := versionFromFile(f)
		if err != nil {
			return fmt.Errorf("parse version from %s: %w", f, err)
		}

		var exists bool
		if err := db.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1 AND dirty = false)`,
			ver,
		).Scan(&exists); err != nil {
			return fmt.Errorf("check %s: %w", f, err)
		}
		if exists {
			fmt.Printf("  skip  %s (already applied)\n", f)
			continue
		}

		sql, err := os.ReadFile(filepath.Join(dir, f))
		if err != nil {
			return fmt.Errorf("read %s: %w", f, err)
		}

		// Schema change and version row commit together.
		err = pgx.BeginFunc(ctx, db, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(sql)); err != nil {
				return err
			}
			_, err := tx.Exec(ctx,
				`INSERT INTO schema_migrations (version, dirty) VALUES ($1, false)
				 ON CONFLICT (version) DO UPDATE SET dirty = false`, ver)
			return err
		})
		if err != nil {
			return fmt.Errorf("apply %s: %w", f, err)
		}

		fmt.Printf("  apply %s\n", f)
		applied++
	}

	if applied == 0 {
		fmt.Println("nothing to migrate, already up to date")
	} else {
		fmt.Printf("applied %d migration(s)\n", applied)
	}
	return nil
}

// databaseURL resolves database.url through the server's config layer
// without requiring the server-only settings.
func databaseURL() (string, error) {
	v := viper.New()
	_, _, err := config.Load(v)
	if err != nil && v.GetString("database.url") == "" {
		return "", err
	}
	return v.GetString("database.url"), nil
}

func upFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// versionFromFile extracts the leading integer from a migration filename.
// "001_init.up.sql" → 1
func versionFromFile(filename string) (int64, error) {
	prefix, _, ok := strings.Cut(filename, "_")
	if !ok {
		return 0, fmt.Errorf("unexpected filename format")
	}
	return strconv.ParseInt(prefix, 10, 64)
}

package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strings"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migration is a single schema step shipped with the binary.
type Migration struct {
	Version     int
	Description string
	SQL         string
	Filename    string
}

// Migrator applies packaged schema migrations through database/sql.
type Migrator struct {
	db *sql.DB
}

// NewMigrator opens a database/sql connection for migrations. The pgx pool
// is kept separate so migration locks never contend with the query path.
func NewMigrator(dsn string) (*Migrator, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open migration connection: %w", err)
	}
	return &Migrator{db: db}, nil
}

// Close releases the migration connection.
func (m *Migrator) Close() error {
	return m.db.Close()
}

func (m *Migrator) ensureSchemaVersionTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW(),
			description TEXT
		);
	`
	_, err := m.db.ExecContext(ctx, query)
	return err
}

func (m *Migrator) currentVersion(ctx context.Context) (int, error) {
	var version int
	err := m.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	return version, nil
}

// loadMigrations reads the packaged migration files, sorted by version.
func loadMigrations() ([]Migration, error) {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read packaged migrations: %w", err)
	}

	var migrations []Migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") || strings.HasSuffix(name, "_down.sql") {
			continue
		}

		content, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", name, err)
		}

		var version int
		var description string
		if _, err := fmt.Sscanf(name, "%d_%s", &version, &description); err != nil {
			return nil, fmt.Errorf("invalid migration filename %s (expected NNN_description.sql)", name)
		}
		description = strings.ReplaceAll(strings.TrimSuffix(description, ".sql"), "_", " ")

		migrations = append(migrations, Migration{
			Version:     version,
			Description: description,
			SQL:         string(content),
			Filename:    name,
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// Migrate applies every pending migration in version order, each inside its
// own transaction.
func (m *Migrator) Migrate(ctx context.Context) error {
	if err := m.ensureSchemaVersionTable(ctx); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	current, err := m.currentVersion(ctx)
	if err != nil {
		return err
	}

	migrations, err := loadMigrations()
	if err != nil {
		return err
	}

	pending := migrations[:0]
	for _, migration := range migrations {
		if migration.Version > current {
			pending = append(pending, migration)
		}
	}
	if len(pending) == 0 {
		log.Info().Int("version", current).Msg("Database schema is up to date")
		return nil
	}

	log.Info().
		Int("current_version", current).
		Int("pending", len(pending)).
		Msg("Applying schema migrations")

	for _, migration := range pending {
		if err := m.applyMigration(ctx, migration); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", migration.Version, err)
		}
	}
	return nil
}

// Status reports the applied schema version and how many packaged
// migrations are still pending.
func (m *Migrator) Status(ctx context.Context) (current int, pending int, err error) {
	if err := m.ensureSchemaVersionTable(ctx); err != nil {
		return 0, 0, fmt.Errorf("failed to create schema_version table: %w", err)
	}

	current, err = m.currentVersion(ctx)
	if err != nil {
		return 0, 0, err
	}

	migrations, err := loadMigrations()
	if err != nil {
		return 0, 0, err
	}
	for _, migration := range migrations {
		if migration.Version > current {
			pending++
		}
	}
	return current, pending, nil
}

func (m *Migrator) applyMigration(ctx context.Context, migration Migration) error {
	log.Info().
		Int("version", migration.Version).
		Str("description", migration.Description).
		Msg("Applying migration")

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO schema_version (version, description) VALUES ($1, $2) ON CONFLICT (version) DO NOTHING",
		migration.Version, migration.Description)
	if err != nil {
		return fmt.Errorf("failed to record migration version: %w", err)
	}

	return tx.Commit()
}

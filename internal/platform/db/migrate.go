package db

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// migrationLockID keys the advisory lock that keeps two instances from
// migrating the same database at once.
const migrationLockID = 0x6361726563

type Migration struct {
	Version int
	Name    string
	SQL     string
}

type MigrationStatus struct {
	Version   int        `json:"version"`
	Name      string     `json:"name"`
	Applied   bool       `json:"applied"`
	AppliedAt *time.Time `json:"applied_at,omitempty"`
}

// Migrator applies numbered .sql files from an fs.FS to one schema.
type Migrator struct {
	pool   *pgxpool.Pool
	fsys   fs.FS
	schema string
}

// NewMigrator reads migrations from fsys. An empty schema means "public".
func NewMigrator(pool *pgxpool.Pool, fsys fs.FS, schema string) *Migrator {
	if schema == "" {
		schema = "public"
	}
	return &Migrator{pool: pool, fsys: fsys, schema: schema}
}

func (m *Migrator) table() string {
	return pgx.Identifier{m.schema, "_migrations"}.Sanitize()
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s;
CREATE TABLE IF NOT EXISTS %s (
    version INTEGER PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, pgx.Identifier{m.schema}.Sanitize(), m.table())
	if _, err := m.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create _migrations table in %s: %w", m.schema, err)
	}
	return nil
}

// LoadMigrations returns the .sql files at the root of the fs sorted by the
// numeric prefix of their name ("001_core.sql" is version 1). Files without
// a numeric prefix are skipped; a repeated version is an error.
func (m *Migrator) LoadMigrations() ([]Migration, error) {
	entries, err := fs.ReadDir(m.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	seen := make(map[int]string)
	var migrations []Migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		prefix, _, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			continue
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("migration version %d used by %s and %s", version, prev, name)
		}
		seen[version] = name

		content, err := fs.ReadFile(m.fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read migration file %s: %w", name, err)
		}
		migrations = append(migrations, Migration{Version: version, Name: name, SQL: string(content)})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

func (m *Migrator) applied(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.pool.Query(ctx, fmt.Sprintf(`SELECT version, applied_at FROM %s`, m.table()))
	if err != nil {
		return nil, fmt.Errorf("query applied versions in %s: %w", m.schema, err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var v int
		var at time.Time
		if err := rows.Scan(&v, &at); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		applied[v] = at
	}
	return applied, rows.Err()
}

// Up applies every pending migration and returns how many ran.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	return m.UpTo(ctx, 0)
}

// UpTo applies pending migrations up to and including target; 0 means all.
// Each migration runs in its own transaction holding the migration lock.
func (m *Migrator) UpTo(ctx context.Context, target int) (int, error) {
	if err := m.ensureTable(ctx); err != nil {
		return 0, err
	}
	migrations, err := m.LoadMigrations()
	if err != nil {
		return 0, err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, mig := range pending(migrations, applied, target) {
		if err := m.apply(ctx, mig); err != nil {
			return count, fmt.Errorf("apply migration %d (%s): %w", mig.Version, mig.Name, err)
		}
		count++
	}
	return count, nil
}

func pending(migrations []Migration, applied map[int]time.Time, target int) []Migration {
	var out []Migration
	for _, mig := range migrations {
		if target > 0 && mig.Version > target {
			break
		}
		if _, ok := applied[mig.Version]; ok {
			continue
		}
		out = append(out, mig)
	}
	return out
}

func (m *Migrator) apply(ctx context.Context, mig Migration) error {
	return pgx.BeginFunc(ctx, m.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockID); err != nil {
			return fmt.Errorf("acquire migration lock: %w", err)
		}
		// Another instance may have applied it while we waited for the lock.
		var done bool
		if err := tx.QueryRow(ctx,
			fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE version = $1)`, m.table()), mig.Version,
		).Scan(&done); err != nil {
			return fmt.Errorf("check migration: %w", err)
		}
		if done {
			return nil
		}
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL search_path TO %s, public", pgx.Identifier{m.schema}.Sanitize())); err != nil {
			return fmt.Errorf("set search_path: %w", err)
		}
		if _, err := tx.Exec(ctx, mig.SQL); err != nil {
			return fmt.Errorf("execute SQL: %w", err)
		}
		if _, err := tx.Exec(ctx,
			fmt.Sprintf("INSERT INTO %s (version, name) VALUES ($1, $2)", m.table()),
			mig.Version, mig.Name,
		); err != nil {
			return fmt.Errorf("record migration: %w", err)
		}
		return nil
	})
}

// Status lists every known migration with its applied state.
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	migrations, err := m.LoadMigrations()
	if err != nil {
		return nil, err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}
	return buildStatus(migrations, applied), nil
}

func buildStatus(migrations []Migration, applied map[int]time.Time) []MigrationStatus {
	statuses := make([]MigrationStatus, 0, len(migrations))
	for _, mig := range migrations {
		st := MigrationStatus{Version: mig.Version, Name: mig.Name}
		if at, ok := applied[mig.Version]; ok {
			st.Applied = true
			appliedAt := at
			st.AppliedAt = &appliedAt
		}
		statuses = append(statuses, st)
	}
	return statuses
}

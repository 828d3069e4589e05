package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	upMarker   = "-- +migrate Up"
	downMarker = "-- +migrate Down"
)

var migrationName = regexp.MustCompile(`^(\d{3})_(.+)\.sql$`)

// Migration is one embedded schema change.
type Migration struct {
	Version     int
	Description string
	UpSQL       string
	DownSQL     string
	Applied     bool
	AppliedAt   time.Time
}

// MigrationResult summarizes a migrate run.
type MigrationResult struct {
	FromVersion int
	ToVersion   int
	Applied     []Migration
}

// Migrator applies the embedded migrations.
type Migrator struct {
	db         *DB
	migrations []Migration
}

// NewMigrator loads the embedded migrations and makes sure the bookkeeping
// table exists.
func NewMigrator(db *DB) (*Migrator, error) {
	migrations, err := LoadMigrations(migrationsFS, "migrations")
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TEXT NOT NULL
		)`)
	if err != nil {
		return nil, fmt.Errorf("creating schema_migrations: %w", err)
	}

	return &Migrator{db: db, migrations: migrations}, nil
}

// LoadMigrations reads NNN_description.sql files from dir in fsys, sorted by
// version.
func LoadMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations: %w", err)
	}

	var migrations []Migration
	seen := make(map[int]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := migrationName.FindStringSubmatch(e.Name())
		if m == nil {
			slog.Warn("skipping migration with unexpected name", "name", e.Name())
			continue
		}
		version, _ := strconv.Atoi(m[1])
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("migration version %d used by %s and %s", version, prev, e.Name())
		}
		seen[version] = e.Name()

		content, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", e.Name(), err)
		}
		up, down := splitMigration(string(content))
		migrations = append(migrations, Migration{
			Version:     version,
			Description: strings.ReplaceAll(m[2], "_", " "),
			UpSQL:       up,
			DownSQL:     down,
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// splitMigration separates the Up and Down sections. A file without markers
// is all Up.
func splitMigration(content string) (up, down string) {
	upAt := strings.Index(content, upMarker)
	downAt := strings.Index(content, downMarker)

	switch {
	case upAt < 0:
		return strings.TrimSpace(content), ""
	case downAt < 0:
		return strings.TrimSpace(content[upAt+len(upMarker):]), ""
	case upAt < downAt:
		return strings.TrimSpace(content[upAt+len(upMarker) : downAt]),
			strings.TrimSpace(content[downAt+len(downMarker):])
	default:
		return strings.TrimSpace(content[upAt+len(upMarker):]),
			strings.TrimSpace(content[downAt+len(downMarker) : upAt])
	}
}

// CurrentVersion returns the highest applied version, 0 for a fresh database.
func (m *Migrator) CurrentVersion(ctx context.Context) (int, error) {
	var v int
	err := m.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return v, nil
}

// Pending returns migrations newer than the current version.
func (m *Migrator) Pending(ctx context.Context) ([]Migration, error) {
	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return nil, err
	}
	var pending []Migration
	for _, mig := range m.migrations {
		if mig.Version > current {
			pending = append(pending, mig)
		}
	}
	return pending, nil
}

// Up applies every pending migration, each in its own transaction.
func (m *Migrator) Up(ctx context.Context) (*MigrationResult, error) {
	pending, err := m.Pending(ctx)
	if err != nil {
		return nil, err
	}
	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return nil, err
	}

	result := &MigrationResult{FromVersion: current, ToVersion: current}
	for _, mig := range pending {
		slog.Info("applying migration", "version", mig.Version, "description", mig.Description)
		if err := m.run(ctx, mig.UpSQL, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx,
				"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
				mig.Version, mig.Description, time.Now().UTC().Format(time.RFC3339))
			return err
		}); err != nil {
			return result, fmt.Errorf("migration %d: %w", mig.Version, err)
		}
		mig.Applied = true
		mig.AppliedAt = time.Now().UTC()
		result.Applied = append(result.Applied, mig)
		result.ToVersion = mig.Version
	}

	if len(result.Applied) > 0 {
		slog.Info("migrations complete", "from", result.FromVersion, "to", result.ToVersion)
	}
	return result, nil
}

// Down rolls back the most recent migration.
func (m *Migrator) Down(ctx context.Context) (*MigrationResult, error) {
	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return nil, err
	}
	if current == 0 {
		return nil, errors.New("no migrations to roll back")
	}

	idx := sort.Search(len(m.migrations), func(i int) bool { return m.migrations[i].Version >= current })
	if idx == len(m.migrations) || m.migrations[idx].Version != current {
		return nil, fmt.Errorf("migration %d is not embedded in this build", current)
	}
	mig := m.migrations[idx]
	if mig.DownSQL == "" {
		return nil, fmt.Errorf("migration %d has no Down section", current)
	}

	slog.Info("rolling back migration", "version", mig.Version, "description", mig.Description)
	err = m.run(ctx, mig.DownSQL, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = ?", mig.Version)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("rolling back %d: %w", mig.Version, err)
	}

	prev := 0
	if idx > 0 {
		prev = m.migrations[idx-1].Version
	}
	return &MigrationResult{FromVersion: current, ToVersion: prev, Applied: []Migration{mig}}, nil
}

func (m *Migrator) run(ctx context.Context, script string, record func(tx *sql.Tx) error) error {
	return m.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		for _, stmt := range splitStatements(script) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("executing %q: %w", firstLine(stmt), err)
			}
		}
		if err := record(tx); err != nil {
			return fmt.Errorf("recording migration: %w", err)
		}
		return nil
	})
}

// Status lists every embedded migration with its applied state.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT version, applied_at FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("querying applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var (
			version int
			at      string
		)
		if err := rows.Scan(&version, &at); err != nil {
			return nil, fmt.Errorf("scanning migration row: %w", err)
		}
		t, _ := time.Parse(time.RFC3339, at)
		applied[version] = t
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]Migration, len(m.migrations))
	for i, mig := range m.migrations {
		out[i] = mig
		if at, ok := applied[mig.Version]; ok {
			out[i].Applied = true
			out[i].AppliedAt = at
		}
	}
	return out, nil
}

// splitStatements breaks a script on semicolons outside quoted strings.
func splitStatements(script string) []string {
	var (
		out   []string
		cur   strings.Builder
		quote rune
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" && !onlyComments(s) {
			out = append(out, s)
		}
		cur.Reset()
	}

	for _, ch := range script {
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
			cur.WriteRune(ch)
		case ch == '\'' || ch == '"':
			quote = ch
			cur.WriteRune(ch)
		case ch == ';':
			flush()
		default:
			cur.WriteRune(ch)
		}
	}
	flush()
	return out
}

func onlyComments(s string) bool {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "--") {
			return false
		}
	}
	return true
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "--") {
			return line
		}
	}
	return s
}

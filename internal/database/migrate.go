package database

import (
	"cmp"
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	migrationsTable = "schema_migrations"
	upMarker        = "-- +migrate Up"
	downMarker      = "-- +migrate Down"
)

var migrationName = regexp.MustCompile(`^(\d{3})_(\w+)\.sql$`)

// Migration is one embedded schema script with its applied state.
type Migration struct {
	Version     int
	Description string
	Up          string
	Down        string
	Applied     bool
	AppliedAt   time.Time
}

// MigrationResult reports a migration run.
type MigrationResult struct {
	FromVersion   int
	TargetVersion int
	Applied       []Migration
}

// Migrator applies and rolls back the embedded migrations.
type Migrator struct {
	db         *DB
	logger     *zap.Logger
	qb         sq.StatementBuilderType
	migrations []Migration
}

// NewMigrator loads the embedded migrations and makes sure the bookkeeping
// table exists.
func NewMigrator(db *DB) (*Migrator, error) {
	migrations, err := loadMigrations(migrationsFS)
	if err != nil {
		return nil, fmt.Errorf("loading migrations: %w", err)
	}

	m := &Migrator{
		db:         db,
		logger:     db.logger.Named("migrate"),
		qb:         sq.StatementBuilder.PlaceholderFormat(sq.Question),
		migrations: migrations,
	}

	ddl := `CREATE TABLE IF NOT EXISTS ` + migrationsTable + ` (
		version INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at DATETIME NOT NULL
	)`
	if _, err := db.Exec(ddl); err != nil {
		return nil, fmt.Errorf("creating %s: %w", migrationsTable, err)
	}
	return m, nil
}

// Migrate brings db up to the latest schema version.
func Migrate(ctx context.Context, db *DB) (*MigrationResult, error) {
	m, err := NewMigrator(db)
	if err != nil {
		return nil, err
	}
	return m.MigrateUp(ctx)
}

func loadMigrations(fsys fs.FS) ([]Migration, error) {
	names, err := fs.Glob(fsys, "migrations/*.sql")
	if err != nil {
		return nil, err
	}

	migrations := make([]Migration, 0, len(names))
	for _, name := range names {
		match := migrationName.FindStringSubmatch(path.Base(name))
		if match == nil {
			return nil, fmt.Errorf("invalid migration file name %s", name)
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, err
		}
		up, down, err := splitMigration(string(content))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}

		version, _ := strconv.Atoi(match[1])
		migrations = append(migrations, Migration{
			Version:     version,
			Description: strings.ReplaceAll(match[2], "_", " "),
			Up:          up,
			Down:        down,
		})
	}

	slices.SortFunc(migrations, func(a, b Migration) int { return cmp.Compare(a.Version, b.Version) })
	return migrations, nil
}

// splitMigration returns the scripts under the Up and Down markers. The Up
// section must come first; the Down section is optional.
func splitMigration(content string) (up, down string, err error) {
	_, rest, ok := strings.Cut(content, upMarker)
	if !ok {
		return "", "", errors.New("missing " + upMarker)
	}
	up, down, _ = strings.Cut(rest, downMarker)
	return strings.TrimSpace(up), strings.TrimSpace(down), nil
}

// Version returns the highest applied migration, 0 for an empty schema.
func (m *Migrator) Version(ctx context.Context) (int, error) {
	query, args, err := m.qb.Select("COALESCE(MAX(version), 0)").From(migrationsTable).ToSql()
	if err != nil {
		return 0, err
	}

	var version int
	if err := m.db.GetContext(ctx, &version, query, args...); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

// MigrateUp applies every migration above the current version, each in its
// own transaction.
func (m *Migrator) MigrateUp(ctx context.Context) (*MigrationResult, error) {
	current, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}

	result := &MigrationResult{FromVersion: current, TargetVersion: current}
	for _, mig := range m.migrations {
		if mig.Version <= current {
			continue
		}

		m.logger.Info("applying migration", zap.Int("version", mig.Version), zap.String("description", mig.Description))
		now := time.Now().UTC()
		record := m.qb.Insert(migrationsTable).
			Columns("version", "description", "applied_at").
			Values(mig.Version, mig.Description, now)
		if err := m.run(ctx, mig.Up, record); err != nil {
			return result, fmt.Errorf("applying migration %d: %w", mig.Version, err)
		}

		mig.Applied, mig.AppliedAt = true, now
		result.Applied = append(result.Applied, mig)
		result.TargetVersion = mig.Version
	}

	if len(result.Applied) > 0 {
		m.logger.Info("schema migrated", zap.Int("from", current), zap.Int("to", result.TargetVersion))
	}
	return result, nil
}

// MigrateDown rolls back the latest applied migration.
func (m *Migrator) MigrateDown(ctx context.Context) (*MigrationResult, error) {
	current, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}
	result := &MigrationResult{FromVersion: current, TargetVersion: current}
	if current == 0 {
		return result, errors.New("no migrations to roll back")
	}

	i := slices.IndexFunc(m.migrations, func(mig Migration) bool { return mig.Version == current })
	if i < 0 {
		return result, fmt.Errorf("applied migration %d is not embedded", current)
	}
	mig := m.migrations[i]
	if mig.Down == "" {
		return result, fmt.Errorf("migration %d has no down section", current)
	}

	m.logger.Info("rolling back migration", zap.Int("version", mig.Version), zap.String("description", mig.Description))
	record := m.qb.Delete(migrationsTable).Where(sq.Eq{"version": mig.Version})
	if err := m.run(ctx, mig.Down, record); err != nil {
		return result, fmt.Errorf("rolling back migration %d: %w", mig.Version, err)
	}

	result.Applied = []Migration{mig}
	result.TargetVersion = 0
	if i > 0 {
		result.TargetVersion = m.migrations[i-1].Version
	}
	return result, nil
}

// run executes a script and its bookkeeping statement in one transaction.
// The driver executes every statement of a multi-statement script.
func (m *Migrator) run(ctx context.Context, script string, record sq.Sqlizer) error {
	query, args, err := record.ToSql()
	if err != nil {
		return err
	}

	return m.db.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, script); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, query, args...)
		return err
	})
}

// Status lists every embedded migration with its applied time.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	query, args, err := m.qb.Select("version", "applied_at").From(migrationsTable).ToSql()
	if err != nil {
		return nil, err
	}

	var rows []struct {
		Version   int       `db:"version"`
		AppliedAt time.Time `db:"applied_at"`
	}
	if err := m.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("reading %s: %w", migrationsTable, err)
	}

	status := slices.Clone(m.migrations)
	for _, r := range rows {
		for i := range status {
			if status[i].Version == r.Version {
				status[i].Applied, status[i].AppliedAt = true, r.AppliedAt
			}
		}
	}
	return status, nil
}

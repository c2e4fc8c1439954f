package bigquery

import (
	"context"
	"crypto/sha256"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const migrationsTable = "schema_migrations"

// migrationName matches files such as 0001_ledger_tables.sql.
var migrationName = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

// Migration is one versioned schema change.
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string // with {{PROJECT_ID}} and {{DATASET_ID}} placeholders
	Checksum string // sha256 of the file as written
}

// Render substitutes the dataset location into the migration SQL.
func (m Migration) Render(project, dataset string) string {
	return strings.NewReplacer(
		"{{PROJECT_ID}}", project,
		"{{DATASET_ID}}", dataset,
	).Replace(m.SQL)
}

// AppliedMigration is a row of the schema_migrations table.
type AppliedMigration struct {
	Version   int64               `bigquery:"version"`
	Name      string              `bigquery:"name"`
	AppliedAt time.Time           `bigquery:"applied_at"`
	Checksum  bigquery.NullString `bigquery:"checksum"`
	AppliedBy bigquery.NullString `bigquery:"applied_by"`
}

// Migrations returns the ledger migrations bundled with the binary, ordered
// by version.
func Migrations() ([]Migration, error) {
	return ReadMigrations(migrationFiles, "migrations")
}

// ReadMigrations reads NNNN_name.sql files from dir. Files that do not follow
// the naming scheme are ignored; a repeated version is an error.
func ReadMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("ReadMigrations: reading %s: %w", dir, err)
	}

	seen := make(map[int]string)
	var migrations []Migration
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := migrationName.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		version, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if prev, ok := seen[version]; ok {
			return nil, fmt.Errorf("ReadMigrations: version %04d used by %s and %s", version, prev, e.Name())
		}
		seen[version] = e.Name()

		content, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("ReadMigrations: reading %s: %w", e.Name(), err)
		}

		migrations = append(migrations, Migration{
			Version:  version,
			Name:     m[2],
			Filename: e.Name(),
			SQL:      string(content),
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// Pending returns the migrations whose version has not been applied. A
// changed checksum of an applied migration is reported as an error.
func Pending(all []Migration, applied []AppliedMigration) ([]Migration, error) {
	done := make(map[int]AppliedMigration, len(applied))
	for _, a := range applied {
		done[int(a.Version)] = a
	}

	var pending []Migration
	for _, m := range all {
		a, ok := done[m.Version]
		if !ok {
			pending = append(pending, m)
			continue
		}
		if a.Checksum.Valid && a.Checksum.StringVal != "" && a.Checksum.StringVal != m.Checksum {
			return nil, fmt.Errorf("migration %04d_%s changed after it was applied", m.Version, m.Name)
		}
	}
	return pending, nil
}

// Migrate applies every pending migration in version order and records each
// one in schema_migrations. It returns the number of migrations applied.
func (l *Ledger) Migrate(ctx context.Context, appliedBy string) (int, error) {
	// 1. Ensure the bookkeeping table exists
	ensure := l.client.Query(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version     INT64 NOT NULL,
			name        STRING NOT NULL,
			applied_at  TIMESTAMP NOT NULL,
			checksum    STRING,
			applied_by  STRING
		)
	`, l.table(migrationsTable)))
	if _, err := l.exec(ctx, ensure); err != nil {
		return 0, fmt.Errorf("Migrate: ensuring %s: %w", migrationsTable, err)
	}

	// 2. Work out what is left to run
	all, err := Migrations()
	if err != nil {
		return 0, fmt.Errorf("Migrate: %w", err)
	}
	applied, err := readAll[AppliedMigration](ctx, l.client.Query(fmt.Sprintf(`
		SELECT version, name, applied_at, checksum, applied_by
		FROM %s
		ORDER BY version ASC
	`, l.table(migrationsTable))))
	if err != nil {
		return 0, fmt.Errorf("Migrate: reading applied migrations: %w", err)
	}
	pending, err := Pending(all, applied)
	if err != nil {
		return 0, fmt.Errorf("Migrate: %w", err)
	}
	l.log.Info().Int("known", len(all)).Int("applied", len(applied)).Int("pending", len(pending)).Msg("Migrations loaded")

	// 3. Run and record each pending migration
	for _, m := range pending {
		mlog := l.log.With().Int("version", m.Version).Str("name", m.Name).Logger()
		mlog.Info().Msg("Applying migration")

		if _, err := l.exec(ctx, l.client.Query(m.Render(l.project, l.dataset))); err != nil {
			return 0, fmt.Errorf("Migrate: %04d_%s: %w", m.Version, m.Name, err)
		}

		record := l.client.Query(fmt.Sprintf(`
			INSERT INTO %s (version, name, applied_at, checksum, applied_by)
			VALUES (@version, @name, CURRENT_TIMESTAMP(), @checksum, @applied_by)
		`, l.table(migrationsTable)))
		record.Parameters = []bigquery.QueryParameter{
			{Name: "version", Value: int64(m.Version)},
			{Name: "name", Value: m.Name},
			{Name: "checksum", Value: m.Checksum},
			{Name: "applied_by", Value: appliedBy},
		}
		if _, err := l.exec(ctx, record); err != nil {
			return 0, fmt.Errorf("Migrate: recording %04d_%s: %w", m.Version, m.Name, err)
		}
	}
	return len(pending), nil
}

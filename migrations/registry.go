// Package migrations resolves the embedded notifier schema for each SQL
// dialect and hands it to a host migration runner.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"sort"
	"strings"

	ordernotify "github.com/goliatone/go-order-notify"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	DefaultLabel = "go-order-notify"

	rootDir = "data/sql/migrations"
)

// Source is the migration directory for one dialect. Postgres files live at
// the root, sqlite files in a sqlite/ sub directory.
type Source struct {
	Dialect string
	Dir     string
	FS      fs.FS
}

// Plan records what Register handed to the runner.
type Plan struct {
	Label    string
	Dialects []string
	Sources  []Source
}

type RegisterFunc func(ctx context.Context, dialect string, label string, fsys fs.FS) error

type Option func(*Plan)

func WithLabel(label string) Option {
	return func(p *Plan) {
		if label = strings.TrimSpace(label); label != "" {
			p.Label = label
		}
	}
}

// WithDialects limits registration to the named dialects. Driver names such
// as "sqlite3" or "pgx" are accepted.
func WithDialects(dialects ...string) Option {
	return func(p *Plan) {
		var picked []string
		for _, value := range dialects {
			dialect, err := DialectForDriver(value)
			if err != nil || slices.Contains(picked, dialect) {
				continue
			}
			picked = append(picked, dialect)
		}
		if len(picked) > 0 {
			p.Dialects = picked
		}
	}
}

// WithSources replaces the embedded sources, for hosts that ship their own
// copy of the schema.
func WithSources(sources ...Source) Option {
	return func(p *Plan) {
		var kept []Source
		for _, source := range sources {
			dialect, err := DialectForDriver(source.Dialect)
			if err != nil || source.FS == nil {
				continue
			}
			source.Dialect = dialect
			kept = append(kept, source)
		}
		if len(kept) > 0 {
			p.Sources = kept
		}
	}
}

// DialectForDriver maps a database/sql driver name onto a migration dialect.
func DialectForDriver(driver string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres", "postgresql", "pgx":
		return DialectPostgres, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("migrations: unsupported driver %q", driver)
	}
}

// Sources resolves both dialect directories from root, or from the embedded
// schema when root is nil. Every up file must have a matching down file.
func Sources(root fs.FS) ([]Source, error) {
	if root == nil {
		root = ordernotify.GetCoreMigrationsFS()
	}
	postgresFS, err := fs.Sub(root, rootDir)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve %s: %w", rootDir, err)
	}
	sqliteFS, err := fs.Sub(postgresFS, DialectSQLite)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite directory: %w", err)
	}
	sources := []Source{
		{Dialect: DialectPostgres, Dir: rootDir, FS: postgresFS},
		{Dialect: DialectSQLite, Dir: rootDir + "/" + DialectSQLite, FS: sqliteFS},
	}
	for _, source := range sources {
		if _, err := Versions(source.FS); err != nil {
			return nil, fmt.Errorf("migrations: %s: %w", source.Dir, err)
		}
	}
	return sources, nil
}

// Versions lists the migration names in fsys (without direction suffix),
// sorted, and fails when a file is missing its pair.
func Versions(fsys fs.FS) ([]string, error) {
	ups, err := fs.Glob(fsys, "*.up.sql")
	if err != nil {
		return nil, err
	}
	if len(ups) == 0 {
		return nil, fmt.Errorf("no *.up.sql files")
	}
	downs, err := fs.Glob(fsys, "*.down.sql")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ups))
	for _, up := range ups {
		name := strings.TrimSuffix(up, ".up.sql")
		if !slices.Contains(downs, name+".down.sql") {
			return nil, fmt.Errorf("%s has no down migration", up)
		}
		names = append(names, name)
	}
	if len(downs) != len(ups) {
		return nil, fmt.Errorf("found %d down migrations for %d up migrations", len(downs), len(ups))
	}
	sort.Strings(names)
	return names, nil
}

// Register calls fn once per selected dialect with that dialect's schema.
func Register(ctx context.Context, fn RegisterFunc, opts ...Option) (Plan, error) {
	plan := Plan{
		Label:    DefaultLabel,
		Dialects: []string{DialectPostgres, DialectSQLite},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&plan)
		}
	}
	if fn == nil {
		return plan, fmt.Errorf("migrations: register function is required")
	}
	if len(plan.Sources) == 0 {
		sources, err := Sources(nil)
		if err != nil {
			return plan, err
		}
		plan.Sources = sources
	}

	for _, dialect := range plan.Dialects {
		source, ok := sourceFor(plan.Sources, dialect)
		if !ok {
			return plan, fmt.Errorf("migrations: no schema for dialect %s", dialect)
		}
		if err := fn(ctx, dialect, plan.Label, source.FS); err != nil {
			return plan, fmt.Errorf("migrations: register %s: %w", dialect, err)
		}
	}
	return plan, nil
}

func sourceFor(sources []Source, dialect string) (Source, bool) {
	for _, source := range sources {
		if source.Dialect == dialect {
			return source, true
		}
	}
	return Source{}, false
}

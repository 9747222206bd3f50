package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"fuel-price-watch/internal/storage/postgres"
)

// script is one embedded migration file.
type script struct {
	name string
	sql  string
}

// scripts returns the non-blank .sql files of dir, ordered by name.
func scripts(fsys fs.FS, dir string) ([]script, error) {
	matches, err := fs.Glob(fsys, dir+"/*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	out := make([]script, 0, len(matches))
	for _, m := range matches {
		data, err := fs.ReadFile(fsys, m)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", m, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		out = append(out, script{name: path.Base(m), sql: string(data)})
	}
	return out, nil
}

// RunPostgresMigrations applies the embedded schema in file order. Every
// statement is idempotent, so rerunning against a migrated database is safe.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool, log logrus.FieldLogger) error {
	list, err := scripts(PostgresFS, "postgres")
	if err != nil {
		return fmt.Errorf("load postgres migrations: %w", err)
	}

	for _, s := range list {
		// No arguments, so pgx uses the simple protocol and accepts multiple statements.
		if _, err := pool.Exec(ctx, s.sql); err != nil {
			return fmt.Errorf("apply migration %s: %w", s.name, err)
		}
		log.WithField("file", s.name).Info("applied postgres migration")
	}
	return nil
}

// Package migrate brings the sqlite schema up to date from the embedded
// migration files. The applied version is kept in sqlite's user_version.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"fknsrs.biz/p/ytmentions/internal/ctxlogger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type migration struct {
	version int
	name    string
}

func list() ([]migration, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("migrate.list: could not read migrations: %w", err)
	}

	var a []migration

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}

		prefix, _, ok := strings.Cut(e.Name(), "_")
		if !ok {
			return nil, fmt.Errorf("migrate.list: migration %s has no version prefix", e.Name())
		}

		version, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("migrate.list: migration %s has an invalid version prefix: %w", e.Name(), err)
		}

		a = append(a, migration{version: version, name: e.Name()})
	}

	sort.Slice(a, func(i, j int) bool { return a[i].version < a[j].version })

	return a, nil
}

// Run applies every migration newer than the database's current version,
// each in its own transaction, and returns how many it applied.
func Run(ctx context.Context, db *sql.DB) (int, error) {
	l := ctxlogger.GetLogger(ctx)

	var current int
	if err := db.QueryRowContext(ctx, "pragma user_version").Scan(&current); err != nil {
		return 0, fmt.Errorf("migrate.Run: could not read schema version: %w", err)
	}

	migrations, err := list()
	if err != nil {
		return 0, fmt.Errorf("migrate.Run: %w", err)
	}

	n := 0

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		d, err := migrationsFS.ReadFile("migrations/" + m.name)
		if err != nil {
			return n, fmt.Errorf("migrate.Run: could not read %s: %w", m.name, err)
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return n, fmt.Errorf("migrate.Run: could not open transaction for %s: %w", m.name, err)
		}

		if _, err := tx.ExecContext(ctx, string(d)); err != nil {
			tx.Rollback()
			return n, fmt.Errorf("migrate.Run: could not apply %s: %w", m.name, err)
		}

		// pragmas can't take bound parameters
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("pragma user_version = %d", m.version)); err != nil {
			tx.Rollback()
			return n, fmt.Errorf("migrate.Run: could not record version for %s: %w", m.name, err)
		}

		if err := tx.Commit(); err != nil {
			return n, fmt.Errorf("migrate.Run: could not commit %s: %w", m.name, err)
		}

		l.WithField("migration.name", m.name).Info("applied migration")

		n++
	}

	return n, nil
}

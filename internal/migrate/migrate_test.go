package migrate

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
)

func TestRun(t *testing.T) {
	a := assert.New(t)

	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "db.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	ctx := context.Background()

	migrations, err := list()
	a.NoError(err)

	n, err := Run(ctx, db)
	a.NoError(err)
	a.Equal(len(migrations), n)

	n, err = Run(ctx, db)
	a.NoError(err)
	a.Equal(0, n)

	var version int
	a.NoError(db.QueryRow("pragma user_version").Scan(&version))
	a.Equal(migrations[len(migrations)-1].version, version)

	for _, table := range []string{"jobs", "triage_actions"} {
		var name string
		a.NoError(db.QueryRow("select name from sqlite_master where type = 'table' and name = ?", table).Scan(&name))
		a.Equal(table, name)
	}
}

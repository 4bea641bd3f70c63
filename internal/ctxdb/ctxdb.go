// Package ctxdb carries the journal and job queue database through request
// and worker contexts.
package ctxdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNoDB = fmt.Errorf("ctxdb: no db found in context")
)

var dbKey int

func WithDB(ctx context.Context, db *sql.DB) context.Context {
	return context.WithValue(ctx, &dbKey, db)
}

func GetDB(ctx context.Context) *sql.DB {
	if v := ctx.Value(&dbKey); v != nil {
		return v.(*sql.DB)
	}

	return nil
}

type TxFunc func(ctx context.Context, tx *sql.Tx) error

// UsingTx runs fn in a transaction on the context's database. The
// transaction commits only if fn returns nil; a failed rollback is reported
// alongside fn's error.
func UsingTx(ctx context.Context, opts *sql.TxOptions, fn TxFunc) (err error) {
	db := GetDB(ctx)
	if db == nil {
		return ErrNoDB
	}

	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("ctxdb.UsingTx: could not begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}

		if err2 := tx.Rollback(); err2 != nil && !errors.Is(err2, sql.ErrTxDone) {
			err = errors.Join(err, fmt.Errorf("ctxdb.UsingTx: could not roll back: %w", err2))
		}
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ctxdb.UsingTx: could not commit: %w", err)
	}

	committed = true

	return nil
}

func Register(db *sql.DB) func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	return func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		next(rw, r.WithContext(WithDB(r.Context(), db)))
	}
}

// Package cachepurge expires old thumbnails. The purge runs as a job that
// schedules its own next run, so there is only ever one waiting.
package cachepurge

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"fknsrs.biz/p/ytmentions/internal/ctxclock"
	"fknsrs.biz/p/ytmentions/internal/ctxdb"
	"fknsrs.biz/p/ytmentions/internal/ctxjobqueue"
	"fknsrs.biz/p/ytmentions/internal/ctxlogger"
	"fknsrs.biz/p/ytmentions/internal/jobqueue"
	"fknsrs.biz/p/ytmentions/internal/queuenames"
	"fknsrs.biz/p/ytmentions/internal/stringutil"
)

const DefaultInterval = time.Hour

type Purger interface {
	Purge(cutoff time.Time) (int, error)
}

func now(ctx context.Context) time.Time {
	if t, err := ctxclock.Now(ctx); err == nil {
		return t
	}

	return time.Now()
}

// Schedule queues a purge to run no earlier than runAfter.
func Schedule(ctx context.Context, tx *sql.Tx, runAfter time.Time) error {
	if err := ctxjobqueue.Add(ctx, tx, &jobqueue.Job{
		QueueName: queuenames.CachePurge,
		RunAfter:  runAfter,
	}); err != nil {
		return fmt.Errorf("cachepurge.Schedule: %w", err)
	}

	return nil
}

// Ensure queues an immediate purge unless one is already waiting.
func Ensure(ctx context.Context) (bool, error) {
	added := false

	if err := ctxdb.UsingTx(ctx, nil, func(ctx context.Context, tx *sql.Tx) error {
		n, err := jobqueue.Unfinished(ctx, tx, queuenames.CachePurge)
		if err != nil {
			return err
		}

		if n > 0 {
			return nil
		}

		added = true

		return Schedule(ctx, tx, now(ctx))
	}); err != nil {
		return false, fmt.Errorf("cachepurge.Ensure: %w", err)
	}

	return added, nil
}

func WorkerFunction(p Purger, maxAge, interval time.Duration) jobqueue.WorkerFunction {
	if interval <= 0 {
		interval = DefaultInterval
	}

	return func(ctx context.Context, w *jobqueue.Worker, j *jobqueue.Job) (string, error) {
		t := now(ctx)

		n, err := p.Purge(t.Add(-maxAge))
		if err != nil {
			return "", fmt.Errorf("cachepurge.WorkerFunction: %w", err)
		}

		ctxlogger.GetLogger(ctx).WithFields(logrus.Fields{
			"cache.removed": n,
			"cache.max_age": maxAge,
		}).Info("purged thumbnail cache")

		if err := ctxdb.UsingTx(ctx, nil, func(ctx context.Context, tx *sql.Tx) error {
			return Schedule(ctx, tx, t.Add(interval))
		}); err != nil {
			return "", fmt.Errorf("cachepurge.WorkerFunction: could not schedule next purge: %w", err)
		}

		return fmt.Sprintf("removed %s", stringutil.Count(n, "thumbnail")), nil
	}
}

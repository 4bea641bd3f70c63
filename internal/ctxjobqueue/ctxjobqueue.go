package ctxjobqueue

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"fknsrs.biz/p/ytmentions/internal/jobqueue"
)

var workerKey int

func WithWorker(ctx context.Context, w *jobqueue.Worker) context.Context {
	return context.WithValue(ctx, &workerKey, w)
}

func GetWorker(ctx context.Context) *jobqueue.Worker {
	if v := ctx.Value(&workerKey); v != nil {
		return v.(*jobqueue.Worker)
	}

	return nil
}

func Register(w *jobqueue.Worker) func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	return func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		next(rw, r.WithContext(WithWorker(r.Context(), w)))
	}
}

var (
	ErrNoWorker = fmt.Errorf("ctxjobqueue: no worker found in context")
)

// Add queues job on the context's worker as part of tx.
func Add(ctx context.Context, tx *sql.Tx, job *jobqueue.Job) error {
	w := GetWorker(ctx)
	if w == nil {
		return ErrNoWorker
	}

	if err := w.Add(ctx, tx, job); err != nil {
		return fmt.Errorf("ctxjobqueue.Add: %w", err)
	}

	return nil
}

// AddUnique is Add, except that nothing is queued if an unfinished job with
// the same queue and payload already exists. It reports whether job was
// queued.
func AddUnique(ctx context.Context, tx *sql.Tx, job *jobqueue.Job) (bool, error) {
	exists, err := jobqueue.HasUnfinished(ctx, tx, job.QueueName, job.Payload)
	if err != nil {
		return false, fmt.Errorf("ctxjobqueue.AddUnique: %w", err)
	}

	if exists {
		return false, nil
	}

	if err := Add(ctx, tx, job); err != nil {
		return false, fmt.Errorf("ctxjobqueue.AddUnique: %w", err)
	}

	return true, nil
}

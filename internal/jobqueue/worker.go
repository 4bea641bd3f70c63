package jobqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"fknsrs.biz/p/sorm"
	"github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"fknsrs.biz/p/ytmentions/internal/catchpanic"
	"fknsrs.biz/p/ytmentions/internal/ctxclock"
	"fknsrs.biz/p/ytmentions/internal/ctxdb"
	"fknsrs.biz/p/ytmentions/internal/ctxlogger"
	"fknsrs.biz/p/ytmentions/internal/metrics"
	"fknsrs.biz/p/ytmentions/internal/stackutil"
)

var (
	ErrWorkerExists       = fmt.Errorf("worker already exists")
	ErrWorkerDoesNotExist = fmt.Errorf("worker does not exist")
	ErrNoPendingJobs      = fmt.Errorf("no pending jobs")
)

const (
	DefaultAttempts       = 5
	DefaultReservation    = time.Minute * 5
	idlePollInterval      = time.Second * 30
	reserveAttempts       = 25
	reserveRetryMaxJitter = time.Millisecond * 500
)

type WorkerFunction func(ctx context.Context, w *Worker, j *Job) (string, error)

// Worker runs jobs from the queues it has functions for. Any number of
// goroutines may call Run on the same Worker; each job is reserved by exactly
// one of them.
type Worker struct {
	l        sync.RWMutex
	ch       chan struct{}
	m        map[string]WorkerFunction
	priority []string
}

func NewWorker(workerFunctions map[string]WorkerFunction) *Worker {
	m := make(map[string]WorkerFunction)
	for k, v := range workerFunctions {
		m[k] = v
	}

	return &Worker{
		ch: make(chan struct{}, 100),
		m:  m,
	}
}

func now(ctx context.Context) time.Time {
	if t, err := ctxclock.Now(ctx); err == nil {
		return t
	}

	return time.Now()
}

// SetPriority orders queues for RunOnce. When several jobs are due, one from
// an earlier queue in names runs first; unlisted queues come last.
func (w *Worker) SetPriority(names []string) {
	w.l.Lock()
	defer w.l.Unlock()

	w.priority = append([]string(nil), names...)
}

// queueNames lists the registered queues in priority order.
func (w *Worker) queueNames() []string {
	w.l.RLock()
	defer w.l.RUnlock()

	rank := make(map[string]int)
	for i, e := range w.priority {
		rank[e] = i + 1
	}

	var a []string
	for k := range w.m {
		a = append(a, k)
	}

	sort.Slice(a, func(i, j int) bool {
		ri, rj := rank[a[i]], rank[a[j]]
		if ri == 0 {
			ri = len(w.priority) + 1
		}
		if rj == 0 {
			rj = len(w.priority) + 1
		}
		if ri != rj {
			return ri < rj
		}
		return a[i] < a[j]
	})

	return a
}

func (w *Worker) has(queueName string) bool {
	w.l.RLock()
	defer w.l.RUnlock()

	_, ok := w.m[queueName]
	return ok
}

// Add stores a job in tx. The job runs once tx commits and its RunAfter has
// passed.
func (w *Worker) Add(ctx context.Context, tx *sql.Tx, job *Job) error {
	if !w.has(job.QueueName) {
		return fmt.Errorf("jobqueue.Worker.Add: %s: %w", job.QueueName, ErrWorkerDoesNotExist)
	}

	t := now(ctx)

	if job.CreatedAt.IsZero() {
		job.CreatedAt = t
	}
	if job.RunAfter.IsZero() {
		job.RunAfter = t
	}
	if job.FailureDelay == 0 {
		job.FailureDelay = DefaultFailureDelay
	}
	if job.AttemptsRemaining == 0 {
		job.AttemptsRemaining = DefaultAttempts
	}

	if err := sorm.CreateRecord(ctx, tx, job); err != nil {
		return fmt.Errorf("jobqueue.Worker.Add: could not create job record: %w", err)
	}

	w.Trigger()

	return nil
}

// Trigger wakes one waiting Run loop, if any.
func (w *Worker) Trigger() {
	select {
	case w.ch <- struct{}{}:
	default:
	}
}

func (w *Worker) RegisterAll(workers map[string]WorkerFunction) error {
	w.l.Lock()
	defer w.l.Unlock()

	var existing []string
	for queueName := range workers {
		if _, ok := w.m[queueName]; ok {
			existing = append(existing, queueName)
		}
	}

	if len(existing) > 0 {
		sort.Strings(existing)
		return fmt.Errorf("jobqueue.Worker.RegisterAll: %v: %w", existing, ErrWorkerExists)
	}

	for queueName, fn := range workers {
		w.m[queueName] = fn
	}

	return nil
}

func isBusy(err error) bool {
	var e sqlite3.Error
	if errors.As(err, &e) {
		return e.Code == sqlite3.ErrBusy || e.Code == sqlite3.ErrLocked
	}

	return false
}

func (w *Worker) reserve(ctx context.Context) (*Job, error) {
	var job *Job

	for attempt := 1; ; attempt++ {
		err := ctxdb.UsingTx(ctx, nil, func(ctx context.Context, tx *sql.Tx) error {
			j, err := findNextAndReserve(ctx, tx, w.queueNames(), now(ctx), DefaultReservation)
			job = j
			return err
		})
		if err == nil {
			return job, nil
		}

		if !isBusy(err) || attempt >= reserveAttempts {
			return nil, fmt.Errorf("jobqueue.Worker.reserve: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(rand.Int63n(int64(reserveRetryMaxJitter)))):
		}
	}
}

// RunOnce reserves and runs the next due job. The worker function runs
// outside any transaction. It returns ErrNoPendingJobs when nothing is due.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.reserve(ctx)
	if err != nil {
		return false, fmt.Errorf("jobqueue.Worker.RunOnce: %w", err)
	}

	if job == nil {
		return false, ErrNoPendingJobs
	}

	l := ctxlogger.GetLogger(ctx).WithFields(logrus.Fields{
		"job.queue":              job.QueueName,
		"job.id":                 job.ID,
		"job.payload":            job.Payload,
		"job.attempts_remaining": job.AttemptsRemaining,
	})

	w.l.RLock()
	fn, ok := w.m[job.QueueName]
	w.l.RUnlock()
	if !ok {
		return false, fmt.Errorf("jobqueue.Worker.RunOnce: %s: %w", job.QueueName, ErrWorkerDoesNotExist)
	}

	l.Debug("running job")

	outputMessage, err := catchpanic.CatchErr1(func() (string, error) {
		return fn(ctxlogger.WithLogger(ctx, l), w, job)
	})

	metrics.ObserveJob(job.QueueName, err)

	var errorMessage string
	var pe *catchpanic.PanicError

	switch {
	case errors.As(err, &pe):
		errorMessage = err.Error()
		l.WithFields(logrus.Fields(stackutil.Fields("job.stack", pe.Stack, nil))).WithError(err).Error("job panicked")
	case err != nil:
		errorMessage = err.Error()
		l.WithError(err).Warn("job failed")
	default:
		l.WithField("job.output", outputMessage).Info("job finished")
	}

	if err := ctxdb.UsingTx(ctx, nil, func(ctx context.Context, tx *sql.Tx) error {
		return finish(ctx, tx, job, now(ctx), errorMessage, outputMessage)
	}); err != nil {
		return false, fmt.Errorf("jobqueue.Worker.RunOnce: could not finish job: %w", err)
	}

	return true, nil
}

// Run keeps running jobs until ctx is done. It runs due jobs back to back,
// and otherwise waits for Add or the idle poll interval.
func (w *Worker) Run(ctx context.Context) error {
	l := ctxlogger.GetLogger(ctx)

	var delay time.Duration

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		case <-w.ch:
		}

		ran, err := w.RunOnce(ctx)
		switch {
		case errors.Is(err, ErrNoPendingJobs):
			delay = idlePollInterval
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.WithError(err).Error("could not run job")
			delay = idlePollInterval
		case ran:
			delay = 0
		}
	}
}

package jobqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"fknsrs.biz/p/sorm"

	"fknsrs.biz/p/ytmentions/internal/ptr"
	"fknsrs.biz/p/ytmentions/internal/sqltypes"
)

// ParsePayload splits a payload of the form "subject?key=value" into its
// subject and parameters.
func ParsePayload(s string) (string, url.Values, error) {
	subject, query, ok := strings.Cut(s, "?")
	if !ok {
		return s, url.Values{}, nil
	}

	m, err := url.ParseQuery(query)
	if err != nil {
		return subject, url.Values{}, fmt.Errorf("jobqueue.ParsePayload: %w", err)
	}

	return subject, m, nil
}

func FormatPayload(s string, m url.Values) string {
	if len(m) == 0 {
		return s
	}

	return s + "?" + m.Encode()
}

const (
	DefaultFailureDelay = time.Second * 5
)

type Job struct {
	ID                int `sql:",table:jobs"`
	CreatedAt         time.Time
	QueueName         string
	Payload           string
	RunAfter          time.Time
	FailureDelay      time.Duration
	AttemptsRemaining int
	ReservedAt        *time.Time
	ReservedUntil     *time.Time
	FinishedAt        *time.Time
	ErrorMessages     sqltypes.JSONStringSlice
	OutputMessages    sqltypes.JSONStringSlice
}

// LastError is the most recent non-empty error message, if any.
func (j Job) LastError() string {
	for i := len(j.ErrorMessages) - 1; i >= 0; i-- {
		if j.ErrorMessages[i] != "" {
			return j.ErrorMessages[i]
		}
	}

	return ""
}

type RowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Unfinished counts jobs in queueName that have not finished, including ones
// waiting out a failure delay.
func Unfinished(ctx context.Context, db RowQuerier, queueName string) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, "select count(*) from jobs where queue_name = ?1 and finished_at is null", queueName).Scan(&n); err != nil {
		return 0, fmt.Errorf("jobqueue.Unfinished: %w", err)
	}

	return n, nil
}

// HasUnfinished reports whether queueName already holds an unfinished job
// with exactly this payload.
func HasUnfinished(ctx context.Context, db RowQuerier, queueName, payload string) (bool, error) {
	var n int
	if err := db.QueryRowContext(ctx, "select count(*) from jobs where queue_name = ?1 and payload = ?2 and finished_at is null", queueName, payload).Scan(&n); err != nil {
		return false, fmt.Errorf("jobqueue.HasUnfinished: %w", err)
	}

	return n > 0, nil
}

// findNext picks the due job with the highest priority. queueNames is in
// priority order; within one queue the oldest run_after wins.
func findNext(ctx context.Context, db sorm.Querier, queueNames []string, now time.Time) (*Job, error) {
	if len(queueNames) == 0 {
		return nil, nil
	}

	var parameters []interface{}
	var placeholders []string
	var ranks []string

	for i := range queueNames {
		parameters = append(parameters, queueNames[i])
		placeholders = append(placeholders, fmt.Sprintf("?%d", i+1))
		ranks = append(ranks, fmt.Sprintf("when ?%d then %d", i+1, i))
	}

	parameters = append(parameters, now)

	query := fmt.Sprintf(
		"where queue_name in (%s) and run_after <= ?%d and (reserved_until is null or reserved_until < ?%d) and finished_at is null order by case queue_name %s end, run_after asc, id asc",
		strings.Join(placeholders, ", "),
		len(parameters),
		len(parameters),
		strings.Join(ranks, " "),
	)

	var job Job
	if err := sorm.FindFirstWhere(ctx, db, &job, query, parameters...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("jobqueue.findNext: could not find pending job record: %w", err)
	}

	return &job, nil
}

func reserve(ctx context.Context, tx *sql.Tx, job *Job, now time.Time, reserveDuration time.Duration) error {
	if job.ReservedUntil != nil && job.ReservedUntil.After(now) {
		return fmt.Errorf("jobqueue.reserve: job %d is reserved until %s", job.ID, job.ReservedUntil.Format(time.RFC3339))
	}
	if job.FinishedAt != nil {
		return fmt.Errorf("jobqueue.reserve: job %d has already finished", job.ID)
	}

	if reserveDuration == 0 {
		reserveDuration = DefaultReservation
	}

	job.ReservedAt = ptr.To(now)
	job.ReservedUntil = ptr.To(now.Add(reserveDuration))

	if err := sorm.SaveRecord(ctx, tx, job); err != nil {
		return fmt.Errorf("jobqueue.reserve: could not save job record: %w", err)
	}

	return nil
}

func findNextAndReserve(ctx context.Context, tx *sql.Tx, queueNames []string, now time.Time, reserveDuration time.Duration) (*Job, error) {
	j, err := findNext(ctx, tx, queueNames, now)
	if err != nil {
		return nil, fmt.Errorf("jobqueue.findNextAndReserve: %w", err)
	}

	if j == nil {
		return nil, nil
	}

	if err := reserve(ctx, tx, j, now, reserveDuration); err != nil {
		return nil, fmt.Errorf("jobqueue.findNextAndReserve: %w", err)
	}

	return j, nil
}

// finish records one attempt. A failed attempt with attempts left puts the
// job back in the queue after its failure delay.
func finish(ctx context.Context, tx *sql.Tx, job *Job, now time.Time, errorMessage, outputMessage string) error {
	if job.FinishedAt != nil {
		return fmt.Errorf("jobqueue.finish: job %d has already finished", job.ID)
	}

	job.FinishedAt = ptr.To(now)
	job.ErrorMessages = append(job.ErrorMessages, errorMessage)
	job.OutputMessages = append(job.OutputMessages, outputMessage)

	if errorMessage != "" && job.AttemptsRemaining > 1 {
		job.AttemptsRemaining--
		job.RunAfter = now.Add(job.FailureDelay)
		job.ReservedAt = nil
		job.ReservedUntil = nil
		job.FinishedAt = nil
	} else if errorMessage != "" {
		job.AttemptsRemaining = 0
	}

	if err := sorm.SaveRecord(ctx, tx, job); err != nil {
		return fmt.Errorf("jobqueue.finish: could not save job record: %w", err)
	}

	return nil
}

// Package transcriptcheck asks the transcript service whether captions
// exist for a video and reports the answer back to the processing service.
// Checks run on the job queue so a slow transcript service never holds up
// an operator.
package transcriptcheck

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"fknsrs.biz/p/ytmentions/internal/ctxjobqueue"
	"fknsrs.biz/p/ytmentions/internal/ctxlogger"
	"fknsrs.biz/p/ytmentions/internal/jobqueue"
	"fknsrs.biz/p/ytmentions/internal/metrics"
	"fknsrs.biz/p/ytmentions/internal/model"
	"fknsrs.biz/p/ytmentions/internal/processing"
	"fknsrs.biz/p/ytmentions/internal/queuenames"
)

type Checker interface {
	CheckTranscriptAvailability(ctx context.Context, id string, languages []string) (*model.TranscriptAvailability, error)
	UpdateTranscriptStatus(ctx context.Context, id string, status model.TranscriptStatus, language string) error
}

// Enqueue adds one check job per video and returns how many were added.
// Duplicate ids, and videos that already have the same check waiting, are
// only queued once.
func Enqueue(ctx context.Context, tx *sql.Tx, ids []string, languages []string) (int, error) {
	seen := make(map[string]bool)

	n := 0

	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		var params url.Values
		if len(languages) > 0 {
			params = url.Values{"languages": []string{strings.Join(languages, ",")}}
		}

		added, err := ctxjobqueue.AddUnique(ctx, tx, &jobqueue.Job{
			QueueName: queuenames.TranscriptCheck,
			Payload:   jobqueue.FormatPayload(id, params),
		})
		if err != nil {
			return n, fmt.Errorf("transcriptcheck.Enqueue: could not add job for %s: %w", id, err)
		}

		if added {
			n++
		}
	}

	return n, nil
}

// Classify maps a check outcome to the transcript status recorded for the
// video. A nil status with an error means the check should be retried.
func Classify(res *model.TranscriptAvailability, err error) (model.TranscriptStatus, error) {
	if err != nil {
		var rejected *processing.RejectedError
		if errors.As(err, &rejected) {
			switch rejected.StatusCode {
			case http.StatusNotFound, http.StatusUnprocessableEntity:
				return model.TranscriptUnavailable, nil
			default:
				return model.TranscriptError, nil
			}
		}

		return "", err
	}

	if res.Error != "" {
		return model.TranscriptError, nil
	}

	if res.Available {
		return model.TranscriptAvailable, nil
	}

	return model.TranscriptUnavailable, nil
}

// WorkerFunction checks the video named in the job payload.
func WorkerFunction(c Checker) jobqueue.WorkerFunction {
	return func(ctx context.Context, w *jobqueue.Worker, j *jobqueue.Job) (string, error) {
		id, params, err := jobqueue.ParsePayload(j.Payload)
		if err != nil {
			return "", fmt.Errorf("transcriptcheck.WorkerFunction: could not parse payload: %w", err)
		}

		languages := model.DefaultLanguages
		if s := params.Get("languages"); s != "" {
			languages = strings.Split(s, ",")
		}

		l := ctxlogger.GetLogger(ctx).WithFields(logrus.Fields{
			"video.id":             id,
			"transcript.languages": languages,
		})

		if err := c.UpdateTranscriptStatus(ctx, id, model.TranscriptChecking, ""); err != nil {
			l.WithError(err).Debug("could not mark transcript check as started")
		}

		res, checkErr := c.CheckTranscriptAvailability(ctx, id, languages)

		status, err := Classify(res, checkErr)
		if err != nil {
			metrics.ObserveTranscriptCheck("retry")
			return "", fmt.Errorf("transcriptcheck.WorkerFunction: could not check %s: %w", id, err)
		}

		var language string
		if res != nil && status == model.TranscriptAvailable {
			language = res.AvailableLanguage
		}

		if err := c.UpdateTranscriptStatus(ctx, id, status, language); err != nil {
			return "", fmt.Errorf("transcriptcheck.WorkerFunction: could not record status for %s: %w", id, err)
		}

		metrics.ObserveTranscriptCheck(string(status))

		l.WithFields(logrus.Fields{
			"transcript.status":   status,
			"transcript.language": language,
		}).Info("checked transcript availability")

		if language != "" {
			return fmt.Sprintf("%s (%s)", status, language), nil
		}

		return string(status), nil
	}
}

package transcriptcheck

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"

	"fknsrs.biz/p/ytmentions/internal/ctxdb"
	"fknsrs.biz/p/ytmentions/internal/ctxjobqueue"
	"fknsrs.biz/p/ytmentions/internal/jobqueue"
	"fknsrs.biz/p/ytmentions/internal/migrate"
	"fknsrs.biz/p/ytmentions/internal/model"
	"fknsrs.biz/p/ytmentions/internal/processing"
	"fknsrs.biz/p/ytmentions/internal/queuenames"
)

type update struct {
	id       string
	status   model.TranscriptStatus
	language string
}

type fakeChecker struct {
	m         sync.Mutex
	results   map[string]*model.TranscriptAvailability
	errors    map[string]error
	languages [][]string
	updates   []update
}

func (f *fakeChecker) CheckTranscriptAvailability(ctx context.Context, id string, languages []string) (*model.TranscriptAvailability, error) {
	f.m.Lock()
	defer f.m.Unlock()

	f.languages = append(f.languages, languages)

	if err := f.errors[id]; err != nil {
		return nil, err
	}

	return f.results[id], nil
}

func (f *fakeChecker) UpdateTranscriptStatus(ctx context.Context, id string, status model.TranscriptStatus, language string) error {
	f.m.Lock()
	defer f.m.Unlock()

	f.updates = append(f.updates, update{id, status, language})

	return nil
}

func TestClassify(t *testing.T) {
	type testCase struct {
		name   string
		res    *model.TranscriptAvailability
		err    error
		status model.TranscriptStatus
		retry  bool
	}

	for _, tc := range []testCase{
		{name: "available", res: &model.TranscriptAvailability{Available: true, AvailableLanguage: "hi"}, status: model.TranscriptAvailable},
		{name: "unavailable", res: &model.TranscriptAvailability{}, status: model.TranscriptUnavailable},
		{name: "service error field", res: &model.TranscriptAvailability{Error: "boom"}, status: model.TranscriptError},
		{name: "not found", err: &processing.RejectedError{StatusCode: 404}, status: model.TranscriptUnavailable},
		{name: "unprocessable", err: &processing.RejectedError{StatusCode: 422}, status: model.TranscriptUnavailable},
		{name: "bad request", err: &processing.RejectedError{StatusCode: 400}, status: model.TranscriptError},
		{name: "transport", err: fmt.Errorf("dial: %w", processing.ErrTransport), retry: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a := assert.New(t)

			status, err := Classify(tc.res, tc.err)
			if tc.retry {
				a.Error(err)
				return
			}

			a.NoError(err)
			a.Equal(tc.status, status)
		})
	}
}

func TestWorkerFunction(t *testing.T) {
	a := assert.New(t)

	c := &fakeChecker{
		results: map[string]*model.TranscriptAvailability{
			"abc": {VideoID: "abc", Available: true, AvailableLanguage: "mr"},
		},
	}

	fn := WorkerFunction(c)

	out, err := fn(context.Background(), nil, &jobqueue.Job{Payload: "abc?languages=mr%2Chi"})
	a.NoError(err)
	a.Equal("available (mr)", out)

	a.Equal([][]string{{"mr", "hi"}}, c.languages)
	a.Equal([]update{
		{"abc", model.TranscriptChecking, ""},
		{"abc", model.TranscriptAvailable, "mr"},
	}, c.updates)
}

func TestWorkerFunctionRetriesTransportErrors(t *testing.T) {
	a := assert.New(t)

	c := &fakeChecker{
		errors: map[string]error{"abc": fmt.Errorf("dial: %w", processing.ErrTransport)},
	}

	_, err := WorkerFunction(c)(context.Background(), nil, &jobqueue.Job{Payload: "abc"})
	a.ErrorIs(err, processing.ErrTransport)

	a.Equal([][]string{model.DefaultLanguages}, c.languages)
	a.Len(c.updates, 1)
}

func TestEnqueueAndRun(t *testing.T) {
	a := assert.New(t)

	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "db.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	ctx := ctxdb.WithDB(context.Background(), db)

	_, err = migrate.Run(ctx, db)
	a.NoError(err)

	c := &fakeChecker{
		results: map[string]*model.TranscriptAvailability{
			"abc": {Available: false},
		},
	}

	w := jobqueue.NewWorker(map[string]jobqueue.WorkerFunction{
		queuenames.TranscriptCheck: WorkerFunction(c),
	})
	ctx = ctxjobqueue.WithWorker(ctx, w)

	var n int
	a.NoError(ctxdb.UsingTx(ctx, nil, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		n, err = Enqueue(ctx, tx, []string{"abc", "abc", ""}, []string{"en"})
		return err
	}))
	a.Equal(1, n)

	// already waiting
	a.NoError(ctxdb.UsingTx(ctx, nil, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		n, err = Enqueue(ctx, tx, []string{"abc"}, []string{"en"})
		return err
	}))
	a.Equal(0, n)

	ran, err := w.RunOnce(ctx)
	a.NoError(err)
	a.True(ran)

	a.Equal([][]string{{"en"}}, c.languages)
	a.Equal(update{"abc", model.TranscriptUnavailable, ""}, c.updates[len(c.updates)-1])

	_, err = w.RunOnce(ctx)
	a.ErrorIs(err, jobqueue.ErrNoPendingJobs)
}

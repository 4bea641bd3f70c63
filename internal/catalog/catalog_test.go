package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"fknsrs.biz/p/ytmentions/internal/ctxclock"
	"fknsrs.biz/p/ytmentions/internal/filterspec"
	"fknsrs.biz/p/ytmentions/internal/model"
)

type listerFunc func(ctx context.Context, values url.Values, page, limit int) (*model.Listing, error)

func (f listerFunc) ListVideos(ctx context.Context, values url.Values, page, limit int) (*model.Listing, error) {
	return f(ctx, values, page, limit)
}

func listing(statuses map[string]model.RawStatus, order ...string) *model.Listing {
	l := &model.Listing{Pagination: model.Pagination{Page: 1, Limit: 20, Total: 120, Pages: 6}}

	for _, id := range order {
		l.Videos = append(l.Videos, model.VideoRecord{VideoID: id, Title: "video " + id, RawStatus: statuses[id]})
	}

	l.Statistics = model.Statistics{Total: 120, Pending: 100, Selected: 20}

	return l
}

func static(l *model.Listing) Lister {
	return listerFunc(func(ctx context.Context, values url.Values, page, limit int) (*model.Listing, error) {
		return l, nil
	})
}

func TestFetchReplacesPage(t *testing.T) {
	a := assert.New(t)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	ctx := ctxclock.WithClock(context.Background(), ctxclock.NewStaticClock(now))

	s := New()
	view := filterspec.NewView(20)

	snap, _, err := s.Fetch(ctx, static(listing(map[string]model.RawStatus{
		"A": model.StatusPending,
		"B": model.StatusPending,
	}, "A", "B")), view)
	a.NoError(err)
	a.Len(snap.Records, 2)
	a.Equal(now, snap.FetchedAt)

	snap, _, err = s.Fetch(ctx, static(listing(map[string]model.RawStatus{
		"C": model.StatusSelected,
	}, "C")), view)
	a.NoError(err)
	a.Len(snap.Records, 1)
	a.Equal("C", snap.Records[0].VideoID)
	a.Equal(120, snap.Statistics.Total)
	a.Equal(6, snap.Pagination.Pages)
}

func TestFetchFailurePreservesPage(t *testing.T) {
	a := assert.New(t)

	ctx := context.Background()
	s := New()
	view := filterspec.NewView(20)

	_, _, err := s.Fetch(ctx, static(listing(map[string]model.RawStatus{"A": model.StatusPending}, "A")), view)
	a.NoError(err)

	cause := fmt.Errorf("connection refused")
	_, _, err = s.Fetch(ctx, listerFunc(func(ctx context.Context, values url.Values, page, limit int) (*model.Listing, error) {
		return nil, cause
	}), view)

	var fetchErr *FetchError
	a.True(errors.As(err, &fetchErr))
	a.ErrorIs(err, cause)

	snap := s.Snapshot()
	a.NotNil(snap)
	a.Len(snap.Records, 1)
	a.Equal("A", snap.Records[0].VideoID)
	a.Error(s.LastFailure())

	_, _, err = s.Fetch(ctx, static(listing(map[string]model.RawStatus{"A": model.StatusPending}, "A")), view)
	a.NoError(err)
	a.NoError(s.LastFailure())
}

func TestSupersededFetchIsDiscarded(t *testing.T) {
	a := assert.New(t)

	s := New()
	view := filterspec.NewView(20)

	older := s.Begin()
	newer := s.Begin()

	_, err := s.Commit(newer, listing(map[string]model.RawStatus{"N": model.StatusPending}, "N"), view, time.Time{})
	a.NoError(err)

	_, err = s.Commit(older, listing(map[string]model.RawStatus{"O": model.StatusPending}, "O"), view, time.Time{})
	a.ErrorIs(err, ErrSuperseded)

	a.ErrorIs(s.Fail(older, fmt.Errorf("late failure")), ErrSuperseded)
	a.NoError(s.LastFailure())

	snap := s.Snapshot()
	a.Len(snap.Records, 1)
	a.Equal("N", snap.Records[0].VideoID)
	a.Equal(newer, snap.Sequence)
}

func TestSupersededByRequestOrderNotArrivalOrder(t *testing.T) {
	a := assert.New(t)

	s := New()
	view := filterspec.NewView(20)

	older := s.Begin()
	newer := s.Begin()

	// the older response arrives first and must still lose
	_, err := s.Commit(older, listing(map[string]model.RawStatus{"O": model.StatusPending}, "O"), view, time.Time{})
	a.ErrorIs(err, ErrSuperseded)
	a.Nil(s.Snapshot())

	_, err = s.Commit(newer, listing(map[string]model.RawStatus{"N": model.StatusPending}, "N"), view, time.Time{})
	a.NoError(err)
}

func TestIntentsMergeAndExpire(t *testing.T) {
	a := assert.New(t)

	ctx := context.Background()
	s := New()
	view := filterspec.NewView(20)

	_, _, err := s.Fetch(ctx, static(listing(map[string]model.RawStatus{
		"A": model.StatusPending,
		"B": model.StatusPending,
	}, "A", "B")), view)
	a.NoError(err)

	a.NoError(s.SetIntent("A", model.StatusSelected))
	a.ErrorIs(s.SetIntent("A", model.StatusProcessed), ErrInvalidIntent)
	a.ErrorIs(s.SetIntent("Z", model.StatusSkipped), ErrInvalidIntent)

	st, ok := s.KnownStatus("A")
	a.True(ok)
	a.Equal(model.StatusSelected, st)

	confirmed, ok := s.Confirmed("A")
	a.True(ok)
	a.Equal(model.StatusPending, confirmed)

	snap := s.Snapshot()
	a.Equal(model.StatusSelected, snap.Records[0].RawStatus)
	a.Equal(model.StatusPending, snap.Records[1].RawStatus)

	// a confirmed refresh always wins over local intent
	_, _, err = s.Fetch(ctx, static(listing(map[string]model.RawStatus{
		"A": model.StatusPending,
		"B": model.StatusPending,
	}, "A", "B")), view)
	a.NoError(err)
	a.Empty(s.Intents())
	a.Equal(model.StatusPending, s.Snapshot().Records[0].RawStatus)
}

func TestIntentsFoldIntoKnownOffPage(t *testing.T) {
	a := assert.New(t)

	ctx := context.Background()
	s := New()
	view := filterspec.NewView(20)

	_, _, err := s.Fetch(ctx, static(listing(map[string]model.RawStatus{"A": model.StatusPending}, "A")), view)
	a.NoError(err)
	a.NoError(s.SetIntent("A", model.StatusSkipped))

	_, _, err = s.Fetch(ctx, static(listing(map[string]model.RawStatus{"B": model.StatusPending}, "B")), view.SetPage(2, 0))
	a.NoError(err)

	st, ok := s.KnownStatus("A")
	a.True(ok)
	a.Equal(model.StatusSkipped, st)
}

func TestChanges(t *testing.T) {
	a := assert.New(t)

	ctx := context.Background()
	s := New()
	view := filterspec.NewView(20)

	_, changes, err := s.Fetch(ctx, static(listing(map[string]model.RawStatus{
		"A": model.StatusSelected,
		"B": model.StatusProcessed,
	}, "A", "B")), view)
	a.NoError(err)
	a.Empty(changes)

	_, changes, err = s.Fetch(ctx, static(listing(map[string]model.RawStatus{
		"A": model.StatusProcessing,
		"B": model.StatusPending,
	}, "A", "B")), view)
	a.NoError(err)
	a.Equal([]Change{
		{VideoID: "A", From: model.StatusSelected, To: model.StatusProcessing},
		{VideoID: "B", From: model.StatusProcessed, To: model.StatusPending, Reset: true},
	}, changes)
}

func TestFetchPassesQuery(t *testing.T) {
	a := assert.New(t)

	var gotValues url.Values
	var gotPage, gotLimit int

	s := New()

	f := filterspec.Default()
	f.Channel = "Lokmat"
	view := filterspec.NewView(50).SetFilter(f).SetPage(3, 0)

	_, _, err := s.Fetch(context.Background(), listerFunc(func(ctx context.Context, values url.Values, page, limit int) (*model.Listing, error) {
		gotValues, gotPage, gotLimit = values, page, limit
		return &model.Listing{}, nil
	}), view)
	a.NoError(err)

	a.Equal("Lokmat", gotValues.Get("channel"))
	a.Equal(3, gotPage)
	a.Equal(50, gotLimit)
}

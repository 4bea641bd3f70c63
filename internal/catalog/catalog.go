// Package catalog keeps the page of videos an operator is looking at. It
// holds two layers: the confirmed page from the last successful fetch, and
// optimistic intents recorded after the processing service accepted a
// command but before a fetch has shown the result.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"fknsrs.biz/p/ytmentions/internal/ctxclock"
	"fknsrs.biz/p/ytmentions/internal/ctxlogger"
	"fknsrs.biz/p/ytmentions/internal/filterspec"
	"fknsrs.biz/p/ytmentions/internal/model"
)

var (
	ErrSuperseded    = fmt.Errorf("catalog.ErrSuperseded: a newer fetch was started")
	ErrInvalidIntent = fmt.Errorf("catalog.ErrInvalidIntent: intent is not a client transition")
)

type FetchError struct {
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("could not load videos: %s", e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

type Lister interface {
	ListVideos(ctx context.Context, values url.Values, page, limit int) (*model.Listing, error)
}

type Snapshot struct {
	Records    []model.VideoRecord
	Pagination model.Pagination
	Statistics model.Statistics
	View       filterspec.View
	FetchedAt  time.Time
	Sequence   uint64
}

// Change is a status difference observed between two fetches.
type Change struct {
	VideoID string
	From    model.RawStatus
	To      model.RawStatus
	Reset   bool
}

type Store struct {
	l         sync.RWMutex
	issued    uint64
	confirmed *Snapshot
	intents   map[string]model.RawStatus
	known     map[string]model.RawStatus
	failure   error
}

func New() *Store {
	return &Store{
		intents: make(map[string]model.RawStatus),
		known:   make(map[string]model.RawStatus),
	}
}

// Begin issues the sequence tag for a new fetch. Only the most recently
// issued tag may commit.
func (s *Store) Begin() uint64 {
	s.l.Lock()
	defer s.l.Unlock()

	s.issued++

	return s.issued
}

// Commit replaces the confirmed page with the listing and expires every
// intent. It returns ErrSuperseded without touching state when a newer
// fetch has been issued since tag.
func (s *Store) Commit(tag uint64, listing *model.Listing, view filterspec.View, fetchedAt time.Time) ([]Change, error) {
	s.l.Lock()
	defer s.l.Unlock()

	if tag != s.issued {
		return nil, ErrSuperseded
	}

	// intents were confirmed by the service, so they are the best knowledge
	// for anything the new page does not cover
	for id, st := range s.intents {
		s.known[id] = st
	}

	records := make([]model.VideoRecord, len(listing.Videos))
	copy(records, listing.Videos)

	var changes []Change

	for _, r := range records {
		if prev, ok := s.known[r.VideoID]; ok && prev != r.RawStatus {
			changes = append(changes, Change{
				VideoID: r.VideoID,
				From:    prev,
				To:      r.RawStatus,
				Reset:   model.IsServerReset(prev, r.RawStatus),
			})
		}

		s.known[r.VideoID] = r.RawStatus
	}

	s.confirmed = &Snapshot{
		Records:    records,
		Pagination: listing.Pagination,
		Statistics: listing.Statistics,
		View:       view,
		FetchedAt:  fetchedAt,
		Sequence:   tag,
	}
	s.intents = make(map[string]model.RawStatus)
	s.failure = nil

	return changes, nil
}

// Fail records a failed fetch. The previous page stays in place.
func (s *Store) Fail(tag uint64, err error) error {
	s.l.Lock()
	defer s.l.Unlock()

	if tag != s.issued {
		return ErrSuperseded
	}

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		fetchErr = &FetchError{Err: err}
	}

	s.failure = fetchErr

	return fetchErr
}

// Fetch loads one page through lister and applies it.
func (s *Store) Fetch(ctx context.Context, lister Lister, view filterspec.View) (*Snapshot, []Change, error) {
	return s.FetchTagged(ctx, lister, view, s.Begin())
}

// FetchTagged is Fetch with a tag the caller took from Begin, so the tag can
// be issued under the same lock that read view.
func (s *Store) FetchTagged(ctx context.Context, lister Lister, view filterspec.View, tag uint64) (*Snapshot, []Change, error) {
	l := ctxlogger.GetLogger(ctx).WithFields(logrus.Fields{
		"catalog.sequence":  tag,
		"catalog.page":      view.Page,
		"catalog.page_size": view.PageSize,
	})

	listing, err := lister.ListVideos(ctx, view.Filter.Values(), view.Page, view.PageSize)
	if err != nil {
		err = s.Fail(tag, err)
		if errors.Is(err, ErrSuperseded) {
			l.Debug("discarding failed fetch superseded by a newer one")
		}
		return nil, nil, err
	}

	fetchedAt := time.Now()
	if t, err := ctxclock.Now(ctx); err == nil {
		fetchedAt = t
	}

	changes, err := s.Commit(tag, listing, view, fetchedAt)
	if err != nil {
		l.Debug("discarding fetch superseded by a newer one")
		return nil, nil, err
	}

	for _, c := range changes {
		l.WithFields(logrus.Fields{
			"video.id":          c.VideoID,
			"video.status_from": c.From,
			"video.status_to":   c.To,
			"video.reset":       c.Reset,
		}).Debug("observed status change")
	}

	return s.Snapshot(), changes, nil
}

// SetIntent records an optimistic status for a video after the service has
// accepted the command that causes it.
func (s *Store) SetIntent(videoID string, to model.RawStatus) error {
	s.l.Lock()
	defer s.l.Unlock()

	from, ok := s.knownStatus(videoID)
	if !ok || !model.CanClientTransition(from, to) {
		return fmt.Errorf("catalog.Store.SetIntent: %s %s -> %s: %w", videoID, from, to, ErrInvalidIntent)
	}

	s.intents[videoID] = to

	return nil
}

func (s *Store) knownStatus(videoID string) (model.RawStatus, bool) {
	if st, ok := s.intents[videoID]; ok {
		return st, true
	}

	st, ok := s.known[videoID]

	return st, ok
}

// KnownStatus is the last status the dashboard knows of, intents first.
func (s *Store) KnownStatus(videoID string) (model.RawStatus, bool) {
	s.l.RLock()
	defer s.l.RUnlock()

	return s.knownStatus(videoID)
}

func (s *Store) Intents() map[string]model.RawStatus {
	s.l.RLock()
	defer s.l.RUnlock()

	m := make(map[string]model.RawStatus, len(s.intents))
	for k, v := range s.intents {
		m[k] = v
	}

	return m
}

// Snapshot returns the confirmed page with intents applied, or nil before
// the first successful fetch.
func (s *Store) Snapshot() *Snapshot {
	s.l.RLock()
	defer s.l.RUnlock()

	if s.confirmed == nil {
		return nil
	}

	c := *s.confirmed
	c.Records = make([]model.VideoRecord, len(s.confirmed.Records))
	copy(c.Records, s.confirmed.Records)

	for i, r := range c.Records {
		if st, ok := s.intents[r.VideoID]; ok {
			c.Records[i].RawStatus = st
		}
	}

	return &c
}

// Confirmed returns the status of a video as the last fetch reported it,
// ignoring intents.
func (s *Store) Confirmed(videoID string) (model.RawStatus, bool) {
	s.l.RLock()
	defer s.l.RUnlock()

	if s.confirmed == nil {
		return "", false
	}

	for _, r := range s.confirmed.Records {
		if r.VideoID == videoID {
			return r.RawStatus, true
		}
	}

	return "", false
}

// LastFailure is the error from the most recent fetch if it failed.
func (s *Store) LastFailure() error {
	s.l.RLock()
	defer s.l.RUnlock()

	return s.failure
}

// Package triage owns one operator's dashboard session: what they are
// looking at, what they have selected, and the batch commands they issue to
// the processing service.
package triage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"fknsrs.biz/p/ytmentions/internal/catalog"
	"fknsrs.biz/p/ytmentions/internal/ctxclock"
	"fknsrs.biz/p/ytmentions/internal/ctxlogger"
	"fknsrs.biz/p/ytmentions/internal/filterspec"
	"fknsrs.biz/p/ytmentions/internal/metrics"
	"fknsrs.biz/p/ytmentions/internal/model"
	"fknsrs.biz/p/ytmentions/internal/processing"
	"fknsrs.biz/p/ytmentions/internal/selection"
	"fknsrs.biz/p/ytmentions/models"
)

type Service interface {
	catalog.Lister
	SelectVideos(ctx context.Context, ids []string, selectedBy, reason string) (*processing.SelectResult, error)
	SkipVideo(ctx context.Context, id, skippedBy, reason string) (*processing.SkipResult, error)
	ProcessVideos(ctx context.Context, ids []string, options model.ProcessingOptions) (*processing.ProcessResult, error)
}

type Journal interface {
	Record(ctx context.Context, action *models.TriageAction) error
}

const (
	DefaultReadyLimit   = 100
	DefaultRefreshDelay = 5 * time.Second
	DefaultOperator     = "dashboard"

	refreshTimeout = 30 * time.Second
)

type Options struct {
	Operator          string
	PageSize          int
	ReadyLimit        int
	RefreshDelay      time.Duration
	ProcessingOptions model.ProcessingOptions
	Journal           Journal
}

func (o Options) withDefaults() Options {
	if o.Operator == "" {
		o.Operator = DefaultOperator
	}
	if o.ReadyLimit <= 0 {
		o.ReadyLimit = DefaultReadyLimit
	}
	if o.RefreshDelay <= 0 {
		o.RefreshDelay = DefaultRefreshDelay
	}
	if o.ProcessingOptions.Languages == nil {
		o.ProcessingOptions = model.DefaultProcessingOptions()
	}

	return o
}

type EventType string

const (
	EventRefreshed        = EventType("refreshed")
	EventRefreshFailed    = EventType("refresh_failed")
	EventSelectionChanged = EventType("selection_changed")
	EventJobSubmitted     = EventType("job_submitted")
)

type Event struct {
	Type    EventType `json:"type"`
	Message string    `json:"message,omitempty"`
}

type Session struct {
	ID string

	service   Service
	opts      Options
	catalog   *catalog.Store
	selection *selection.Set

	// ctx carries the logger, http client and scheduler for work that
	// outlives a request, such as the delayed refresh.
	ctx    context.Context
	cancel context.CancelFunc

	l           sync.Mutex
	view        filterspec.View
	operator    string
	options     model.ProcessingOptions
	job         ProcessingJob
	lastJob     *ProcessingJob
	timer       ctxclock.Timer
	subscribers map[chan Event]struct{}
	updatedAt   time.Time
	closed      bool
}

func NewSession(ctx context.Context, id string, service Service, opts Options) *Session {
	opts = opts.withDefaults()

	ctx, cancel := context.WithCancel(ctx)

	now := time.Now()
	if t, err := ctxclock.Now(ctx); err == nil {
		now = t
	}

	return &Session{
		ID:          id,
		service:     service,
		opts:        opts,
		catalog:     catalog.New(),
		selection:   selection.New(),
		ctx:         ctx,
		cancel:      cancel,
		view:        filterspec.NewView(opts.PageSize),
		operator:    opts.Operator,
		options:     opts.ProcessingOptions,
		job:         ProcessingJob{Status: JobIdle},
		subscribers: make(map[chan Event]struct{}),
		updatedAt:   now,
	}
}

func (s *Session) logger(ctx context.Context, operation string) logrus.FieldLogger {
	return ctxlogger.GetLogger(ctx).WithFields(logrus.Fields{
		"session.id":       s.ID,
		"triage.operation": operation,
	})
}

func (s *Session) now(ctx context.Context) time.Time {
	if t, err := ctxclock.Now(ctx); err == nil {
		return t
	}

	return time.Now()
}

func (s *Session) touch(ctx context.Context) {
	s.l.Lock()
	s.updatedAt = s.now(ctx)
	s.l.Unlock()
}

// accessors

func (s *Session) View() filterspec.View {
	s.l.Lock()
	defer s.l.Unlock()

	return s.view
}

func (s *Session) Operator() string {
	s.l.Lock()
	defer s.l.Unlock()

	return s.operator
}

func (s *Session) SetOperator(name string) {
	s.l.Lock()
	defer s.l.Unlock()

	if name == "" {
		name = s.opts.Operator
	}

	s.operator = name
}

func (s *Session) ProcessingOptions() model.ProcessingOptions {
	s.l.Lock()
	defer s.l.Unlock()

	return s.options
}

func (s *Session) SetProcessingOptions(o model.ProcessingOptions) error {
	if !o.Valid() {
		return ErrInvalidOptions
	}

	if len(o.Languages) == 0 {
		o.Languages = append([]string(nil), model.DefaultLanguages...)
	}

	s.l.Lock()
	defer s.l.Unlock()

	s.options = o

	return nil
}

func (s *Session) Job() ProcessingJob {
	s.l.Lock()
	defer s.l.Unlock()

	return s.job
}

// LastJob is the most recently settled job, if any.
func (s *Session) LastJob() *ProcessingJob {
	s.l.Lock()
	defer s.l.Unlock()

	if s.lastJob == nil {
		return nil
	}

	j := *s.lastJob

	return &j
}

func (s *Session) Snapshot() *catalog.Snapshot {
	return s.catalog.Snapshot()
}

func (s *Session) LastFailure() error {
	return s.catalog.LastFailure()
}

func (s *Session) KnownStatus(videoID string) (model.RawStatus, bool) {
	return s.catalog.KnownStatus(videoID)
}

func (s *Session) Selection() []string {
	return s.selection.IDs()
}

func (s *Session) IsSelected(videoID string) bool {
	return s.selection.Contains(videoID)
}

func (s *Session) UpdatedAt() time.Time {
	s.l.Lock()
	defer s.l.Unlock()

	return s.updatedAt
}

// view changes

func (s *Session) SetFilter(ctx context.Context, f filterspec.FilterSpec) (*catalog.Snapshot, error) {
	f = f.Normalize()
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("triage.Session.SetFilter: %w: %w", ErrInvalidFilter, err)
	}

	return s.refresh(ctx, func(v filterspec.View) filterspec.View { return v.SetFilter(f) })
}

func (s *Session) ClearFilter(ctx context.Context) (*catalog.Snapshot, error) {
	return s.refresh(ctx, filterspec.View.Clear)
}

func (s *Session) SetPage(ctx context.Context, page, pageSize int) (*catalog.Snapshot, error) {
	return s.refresh(ctx, func(v filterspec.View) filterspec.View { return v.SetPage(page, pageSize) })
}

// Refresh loads the current page and reconciles everything derived from it:
// stale selection members are pruned and an in-flight job is settled.
//
// When a newer fetch starts before this one finishes, this one is discarded
// and the latest applied snapshot is returned without error; the newer fetch
// reports its own outcome.
func (s *Session) Refresh(ctx context.Context) (*catalog.Snapshot, error) {
	return s.refresh(ctx, nil)
}

func (s *Session) refresh(ctx context.Context, change func(v filterspec.View) filterspec.View) (*catalog.Snapshot, error) {
	l := s.logger(ctx, "refresh")

	s.l.Lock()
	if s.closed {
		s.l.Unlock()
		return nil, ErrSessionClosed
	}
	if change != nil {
		s.view = change(s.view)
	}
	view := s.view
	tag := s.catalog.Begin()
	s.l.Unlock()

	start := time.Now()
	snap, changes, err := s.catalog.FetchTagged(ctx, s.service, view, tag)
	metrics.ObserveFetch(time.Since(start), err)

	if err != nil {
		if errors.Is(err, ErrSuperseded) {
			l.WithField("catalog.sequence", tag).Debug("refresh superseded by a newer one")
			return s.catalog.Snapshot(), nil
		}

		l.WithError(err).Warn("could not refresh catalog")
		s.notify(Event{Type: EventRefreshFailed, Message: UserMessage(err)})

		return nil, err
	}

	pruned := s.selection.Prune(s.catalog)

	s.l.Lock()
	if s.job.IsActive() {
		settled := s.job.settle(s.catalog.KnownStatus, snap.FetchedAt)
		s.lastJob = &settled
		s.job = ProcessingJob{Status: JobIdle}

		l.WithFields(logrus.Fields{
			"job.requested": settled.RequestedCount,
			"job.completed": settled.CompletedCount,
		}).Info("settled processing job")
	}
	s.l.Unlock()

	l.WithFields(logrus.Fields{
		"catalog.records":  len(snap.Records),
		"catalog.total":    snap.Statistics.Total,
		"catalog.changes":  len(changes),
		"selection.pruned": len(pruned),
	}).Debug("refreshed catalog")

	s.touch(ctx)
	s.notify(Event{Type: EventRefreshed})

	return snap, nil
}

// selection

func (s *Session) AddToSelection(ids []string) []string {
	added := s.selection.Add(ids, s.catalog)
	if len(added) > 0 {
		s.notify(Event{Type: EventSelectionChanged})
	}
	return added
}

func (s *Session) RemoveFromSelection(ids []string) []string {
	removed := s.selection.Remove(ids)
	if len(removed) > 0 {
		s.notify(Event{Type: EventSelectionChanged})
	}
	return removed
}

func (s *Session) ReplaceSelection(ids []string) []string {
	added := s.selection.Replace(ids, s.catalog)
	s.notify(Event{Type: EventSelectionChanged})
	return added
}

func (s *Session) SelectAllOnPage() []string {
	snap := s.catalog.Snapshot()
	if snap == nil {
		return nil
	}

	added := s.selection.SelectAllEligibleOnPage(snap.Records)
	if len(added) > 0 {
		s.notify(Event{Type: EventSelectionChanged})
	}

	return added
}

func (s *Session) ClearSelection() int {
	n := s.selection.Clear()
	if n > 0 {
		s.notify(Event{Type: EventSelectionChanged})
	}
	return n
}

// commands

func (s *Session) eligible(ids []string) ([]string, []string) {
	var eligible, ineligible []string

	seen := make(map[string]bool)

	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		if st, ok := s.catalog.KnownStatus(id); ok && st == model.StatusPending {
			eligible = append(eligible, id)
		} else {
			ineligible = append(ineligible, id)
		}
	}

	return eligible, ineligible
}

// MarkSelected asks the service to move pending videos to selected. Videos
// the service confirms leave the selection set; the rest stay pending and
// stay selected.
func (s *Session) MarkSelected(ctx context.Context, ids []string, reason string) (*SelectResult, error) {
	l := s.logger(ctx, "mark_selected").WithField("video.count", len(ids))

	eligible, ineligible := s.eligible(ids)

	if len(eligible) == 0 {
		err := &SelectionRejectedError{Ineligible: ineligible}
		s.record(ctx, "mark_selected", ids, models.OutcomeRejected, err.Error())
		return nil, err
	}

	if reason == "" {
		reason = "Selected from triage dashboard"
	}

	res, err := s.service.SelectVideos(ctx, eligible, s.Operator(), reason)
	if err != nil {
		l.WithError(err).Warn("select command failed")

		rejected := &SelectionRejectedError{Failed: eligible, Ineligible: ineligible, Err: err}
		s.record(ctx, "mark_selected", eligible, outcomeOf(err), rejected.Error())

		s.refreshQuietly(ctx)

		return nil, rejected
	}

	confirmed := confirmedIDs(eligible, res)

	for _, id := range confirmed {
		if err := s.catalog.SetIntent(id, model.StatusSelected); err != nil {
			l.WithError(err).Warn("could not record selection intent")
		}
	}

	s.selection.Remove(confirmed)

	failed := difference(eligible, confirmed)

	result := &SelectResult{Selected: confirmed, Ineligible: ineligible}

	l.WithFields(logrus.Fields{
		"video.selected":   len(confirmed),
		"video.failed":     len(failed),
		"video.ineligible": len(ineligible),
	}).Info("select command finished")

	s.refreshQuietly(ctx)
	if len(confirmed) > 0 {
		s.scheduleRefresh()
	}

	if len(failed) > 0 || len(ineligible) > 0 {
		err := &SelectionRejectedError{Selected: confirmed, Failed: failed, Ineligible: ineligible}
		if len(failed) > 0 {
			err.Err = fmt.Errorf("the service accepted %d of %d", len(confirmed), len(eligible))
		}
		s.record(ctx, "mark_selected", eligible, models.OutcomePartial, err.Error())
		return result, err
	}

	s.record(ctx, "mark_selected", confirmed, models.OutcomeOK, "")

	return result, nil
}

// confirmedIDs works out which requested ids the service accepted. Without
// an explicit list, a short count means the accepted ids are unknown and
// none are treated as confirmed; the following refresh settles them.
func confirmedIDs(requested []string, res *processing.SelectResult) []string {
	if res == nil {
		return nil
	}

	if len(res.SelectedIDs) > 0 {
		accepted := make(map[string]bool, len(res.SelectedIDs))
		for _, id := range res.SelectedIDs {
			accepted[id] = true
		}

		var a []string
		for _, id := range requested {
			if accepted[id] {
				a = append(a, id)
			}
		}

		return a
	}

	if res.Count >= len(requested) {
		return append([]string(nil), requested...)
	}

	return nil
}

func difference(a, b []string) []string {
	m := make(map[string]bool, len(b))
	for _, e := range b {
		m[e] = true
	}

	var r []string
	for _, e := range a {
		if !m[e] {
			r = append(r, e)
		}
	}

	return r
}

func (s *Session) Skip(ctx context.Context, id, reason string) error {
	l := s.logger(ctx, "skip").WithField("video.id", id)

	st, ok := s.catalog.KnownStatus(id)
	if !ok || st != model.StatusPending {
		err := &SkipRejectedError{VideoID: id, Current: st}
		s.record(ctx, "skip", []string{id}, models.OutcomeRejected, err.Error())
		return err
	}

	if reason == "" {
		reason = "Skipped from triage dashboard"
	}

	if _, err := s.service.SkipVideo(ctx, id, s.Operator(), reason); err != nil {
		l.WithError(err).Warn("skip command failed")

		rejected := &SkipRejectedError{VideoID: id, Err: err}

		var serviceErr *processing.RejectedError
		if errors.As(err, &serviceErr) {
			rejected.Current = serviceErr.CurrentStatus
		}

		s.record(ctx, "skip", []string{id}, outcomeOf(err), rejected.Error())

		// the record is resynced from the service rather than guessed
		s.refreshQuietly(ctx)

		return rejected
	}

	if err := s.catalog.SetIntent(id, model.StatusSkipped); err != nil {
		l.WithError(err).Warn("could not record skip intent")
	}

	s.selection.Remove([]string{id})

	l.Info("skip command finished")

	s.record(ctx, "skip", []string{id}, models.OutcomeOK, reason)

	s.refreshQuietly(ctx)
	s.scheduleRefresh()

	return nil
}

func (s *Session) resolveOptions(opts *model.ProcessingOptions) (model.ProcessingOptions, error) {
	o := s.ProcessingOptions()
	if opts != nil {
		o = *opts
	}

	if len(o.Languages) == 0 {
		o.Languages = append([]string(nil), model.DefaultLanguages...)
	}

	if !o.Valid() {
		return o, ErrInvalidOptions
	}

	return o, nil
}

// ProcessSelected submits the whole selection set as one batch. The set is
// cleared before the request is sent and is not restored if it fails.
func (s *Session) ProcessSelected(ctx context.Context, opts *model.ProcessingOptions) (*ProcessResult, error) {
	l := s.logger(ctx, "process_selected")

	options, err := s.resolveOptions(opts)
	if err != nil {
		return nil, &BatchSubmitError{Count: s.selection.Len(), Err: err}
	}

	ids := s.selection.IDs()
	if len(ids) == 0 {
		return nil, ErrEmptySelection
	}

	s.selection.Clear()
	s.notify(Event{Type: EventSelectionChanged})

	return s.submit(ctx, l, SourceSelection, ids, options)
}

// ProcessReady submits every video the service reports as selected, up to
// the ready limit. An empty ready set is not an error.
func (s *Session) ProcessReady(ctx context.Context, opts *model.ProcessingOptions) (*ProcessResult, error) {
	l := s.logger(ctx, "process_ready")

	options, err := s.resolveOptions(opts)
	if err != nil {
		return nil, &BatchSubmitError{Err: err}
	}

	listing, err := s.service.ListVideos(ctx, filterspec.WithStatus(model.StatusSelected).Values(), 1, s.opts.ReadyLimit)
	if err != nil {
		l.WithError(err).Warn("ready query failed")

		readyErr := &ReadyQueryError{Err: err}
		s.record(ctx, "process_ready", nil, outcomeOf(err), readyErr.Error())

		return nil, readyErr
	}

	var ids []string
	for _, v := range listing.Videos {
		if v.RawStatus == model.StatusSelected {
			ids = append(ids, v.VideoID)
		}
	}

	if len(ids) == 0 {
		l.Info("no ready videos to process")
		s.record(ctx, "process_ready", nil, models.OutcomeNoop, "nothing to process")
		return &ProcessResult{NothingToProcess: true}, nil
	}

	return s.submit(ctx, l, SourceReady, ids, options)
}

func (s *Session) submit(ctx context.Context, l logrus.FieldLogger, source string, ids []string, options model.ProcessingOptions) (*ProcessResult, error) {
	operation := "process_" + source

	l = l.WithField("video.count", len(ids))

	submittedAt := s.now(ctx)

	res, err := s.service.ProcessVideos(ctx, ids, options)
	if err != nil {
		l.WithError(err).Warn("process command failed")

		batchErr := &BatchSubmitError{Count: len(ids), Err: err}
		s.record(ctx, operation, ids, outcomeOf(err), batchErr.Error())

		return nil, batchErr
	}

	// the job starts once the service has accepted the batch
	s.l.Lock()
	s.job = ProcessingJob{
		Status:         JobProcessing,
		Source:         source,
		RequestedCount: len(ids),
		QueuedCount:    res.TotalQueued,
		VideoIDs:       ids,
		SubmittedAt:    submittedAt,
	}
	s.l.Unlock()

	l.WithField("video.queued", res.TotalQueued).Info("process command finished")

	metrics.ObserveBatch(source, len(ids))
	s.record(ctx, operation, ids, models.OutcomeOK, fmt.Sprintf("%d queued", res.TotalQueued))

	s.notify(Event{Type: EventJobSubmitted})
	s.scheduleRefresh()

	return &ProcessResult{Requested: len(ids), Queued: res.TotalQueued}, nil
}

// scheduleRefresh arranges one refresh after the configured delay. A newer
// schedule replaces a pending one.
func (s *Session) scheduleRefresh() {
	s.l.Lock()
	defer s.l.Unlock()

	if s.closed {
		return
	}

	if s.timer != nil {
		s.timer.Stop()
	}

	s.timer = ctxclock.GetScheduler(s.ctx).AfterFunc(s.opts.RefreshDelay, func() {
		s.l.Lock()
		s.timer = nil
		closed := s.closed
		s.l.Unlock()

		if closed {
			return
		}

		ctx, cancel := context.WithTimeout(s.ctx, refreshTimeout)
		defer cancel()

		s.refreshQuietly(ctx)
	})
}

func (s *Session) refreshQuietly(ctx context.Context) {
	if _, err := s.Refresh(ctx); err != nil && !errors.Is(err, ErrSuperseded) && !errors.Is(err, ErrSessionClosed) {
		s.logger(ctx, "refresh").WithError(err).Debug("refresh after command failed")
	}
}

func outcomeOf(err error) string {
	if processing.IsRejected(err) {
		return models.OutcomeRejected
	}

	return models.OutcomeFailed
}

func (s *Session) record(ctx context.Context, operation string, ids []string, outcome, message string) {
	metrics.ObserveCommand(operation, outcome)

	if s.opts.Journal == nil {
		return
	}

	if err := s.opts.Journal.Record(ctx, &models.TriageAction{
		CreatedAt:  s.now(ctx),
		SessionID:  s.ID,
		Operator:   s.Operator(),
		Operation:  operation,
		VideoIDs:   ids,
		VideoCount: len(ids),
		Outcome:    outcome,
		Message:    message,
	}); err != nil {
		s.logger(ctx, operation).WithError(err).Warn("could not record triage action")
	}
}

// events

// Subscribe returns a channel of session events and a function that stops
// delivery. Slow subscribers miss events rather than blocking the session.
func (s *Session) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 8)

	s.l.Lock()
	s.subscribers[ch] = struct{}{}
	s.l.Unlock()

	return ch, func() {
		s.l.Lock()
		defer s.l.Unlock()

		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
	}
}

func (s *Session) notify(e Event) {
	s.l.Lock()
	defer s.l.Unlock()

	for ch := range s.subscribers {
		select {
		case ch <- e:
		default:
		}
	}
}

// Close stops any pending refresh and ends every subscription.
func (s *Session) Close() {
	s.l.Lock()
	defer s.l.Unlock()

	if s.closed {
		return
	}

	s.closed = true

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}

	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}

	s.cancel()
}

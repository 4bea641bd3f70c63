// Package ctxclock carries the current time source and a timer scheduler
// through contexts, so fetch timestamps, job run times and delayed refreshes
// can be pinned down in tests.
package ctxclock

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"fknsrs.biz/p/ytmentions/internal/ctxlogger"
)

var (
	ErrNoTimesLeft = fmt.Errorf("ctxclock: no times left")
	ErrNoClock     = fmt.Errorf("ctxclock: no clock found in context")
)

type Clock interface {
	Now() (time.Time, error)
}

var clockKey int

func WithClock(ctx context.Context, c Clock) context.Context {
	if c == nil {
		c = NewRealClock()
	}

	return context.WithValue(ctx, &clockKey, c)
}

func GetClock(ctx context.Context) Clock {
	if v := ctx.Value(&clockKey); v != nil {
		return v.(Clock)
	}

	return nil
}

func Now(ctx context.Context) (time.Time, error) {
	if c := GetClock(ctx); c != nil {
		return c.Now()
	}

	return time.Time{}, fmt.Errorf("ctxclock.Now: %w", ErrNoClock)
}

func Register(c Clock) func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	return func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		next(rw, r.WithContext(WithClock(r.Context(), c)))
	}
}

func timeHook(field string) ctxlogger.HookFunc {
	return func(rw http.ResponseWriter, r *http.Request, l logrus.FieldLogger) logrus.FieldLogger {
		now, err := Now(r.Context())
		if err != nil {
			l.WithError(err).Warn("could not read clock for request log")
			return l
		}

		return l.WithField(field, now.Format(time.RFC3339))
	}
}

// AddLoggerHooks stamps request logs with http.request_start and
// http.response_end.
func AddLoggerHooks() func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	return func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		next(rw, r.WithContext(ctxlogger.AddHookPair(r.Context(), timeHook("http.request_start"), timeHook("http.response_end"))))
	}
}

type realClock struct{}

func NewRealClock() Clock { return realClock{} }

func (realClock) Now() (time.Time, error) { return time.Now(), nil }

type staticClock struct{ t time.Time }

func NewStaticClock(t time.Time) Clock { return staticClock{t: t} }

func (c staticClock) Now() (time.Time, error) { return c.t, nil }

type TestClockResult struct {
	Time  time.Time
	Error error
}

// testClock hands out its results in order, then fails with ErrNoTimesLeft.
type testClock struct {
	m sync.Mutex
	a []TestClockResult
	i int
}

func NewTestClock(results []TestClockResult) Clock {
	return &testClock{a: results}
}

func (c *testClock) Now() (time.Time, error) {
	c.m.Lock()
	defer c.m.Unlock()

	if c.i >= len(c.a) {
		return time.Time{}, fmt.Errorf("ctxclock.testClock.Now: %w", ErrNoTimesLeft)
	}

	r := c.a[c.i]
	c.i++

	return r.Time, r.Error
}

// scheduling

type Timer interface {
	Stop() bool
}

type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

var schedulerKey int

func WithScheduler(ctx context.Context, s Scheduler) context.Context {
	if s == nil {
		s = NewRealScheduler()
	}

	return context.WithValue(ctx, &schedulerKey, s)
}

func GetScheduler(ctx context.Context) Scheduler {
	if v := ctx.Value(&schedulerKey); v != nil {
		return v.(Scheduler)
	}

	return NewRealScheduler()
}

type realScheduler struct{}

func NewRealScheduler() Scheduler { return realScheduler{} }

func (realScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// ManualScheduler only runs timers when FireAll is called.
type ManualScheduler struct {
	m sync.Mutex
	a []*manualTimer
}

type manualTimer struct {
	s       *ManualScheduler
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

func (s *ManualScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	s.m.Lock()
	defer s.m.Unlock()

	t := &manualTimer{s: s, delay: d, fn: fn}
	s.a = append(s.a, t)

	return t
}

func (t *manualTimer) Stop() bool {
	t.s.m.Lock()
	defer t.s.m.Unlock()

	if t.stopped || t.fired {
		return false
	}

	t.stopped = true

	return true
}

// Pending returns the delays of timers that have neither fired nor been
// stopped.
func (s *ManualScheduler) Pending() []time.Duration {
	s.m.Lock()
	defer s.m.Unlock()

	var a []time.Duration
	for _, t := range s.a {
		if !t.stopped && !t.fired {
			a = append(a, t.delay)
		}
	}

	return a
}

// FireAll runs every pending timer synchronously and returns how many ran.
// Timers scheduled by those functions stay pending.
func (s *ManualScheduler) FireAll() int {
	s.m.Lock()
	var fns []func()
	for _, t := range s.a {
		if !t.stopped && !t.fired {
			t.fired = true
			fns = append(fns, t.fn)
		}
	}
	s.m.Unlock()

	for _, fn := range fns {
		fn()
	}

	return len(fns)
}

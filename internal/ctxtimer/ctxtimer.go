// Package ctxtimer measures named spans within a request using the
// context's clock, and reports the overall request duration.
package ctxtimer

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"fknsrs.biz/p/ytmentions/internal/ctxclock"
	"fknsrs.biz/p/ytmentions/internal/ctxlogger"
	"fknsrs.biz/p/ytmentions/internal/metrics"
)

var (
	ErrNoTimer = fmt.Errorf("ctxtimer: no timer found with this name")
)

const (
	spanRequest = "http.request"
)

// Timer remembers when each named span started.
type Timer struct {
	l     sync.RWMutex
	start map[string]time.Time
}

func NewTimer() *Timer {
	return &Timer{start: make(map[string]time.Time)}
}

func (t *Timer) Mark(name string, at time.Time) {
	t.l.Lock()
	defer t.l.Unlock()

	t.start[name] = at
}

func (t *Timer) Elapsed(name string, at time.Time) (time.Duration, error) {
	t.l.RLock()
	defer t.l.RUnlock()

	start, ok := t.start[name]
	if !ok {
		return 0, fmt.Errorf("ctxtimer.Timer.Elapsed: %s: %w", name, ErrNoTimer)
	}

	return at.Sub(start), nil
}

var timerKey int

func WithTimer(ctx context.Context, t *Timer) context.Context {
	if t == nil {
		t = NewTimer()
	}

	return context.WithValue(ctx, &timerKey, t)
}

func GetTimer(ctx context.Context) *Timer {
	if v := ctx.Value(&timerKey); v != nil {
		return v.(*Timer)
	}

	return nil
}

// MarkNow starts the named span at the context clock's current time.
func MarkNow(ctx context.Context, name string) error {
	t := GetTimer(ctx)
	if t == nil {
		return fmt.Errorf("ctxtimer.MarkNow: no timer in context")
	}

	now, err := ctxclock.Now(ctx)
	if err != nil {
		return fmt.Errorf("ctxtimer.MarkNow: %w", err)
	}

	t.Mark(name, now)

	return nil
}

// ElapsedNow is the time since the named span started, by the context clock.
func ElapsedNow(ctx context.Context, name string) (time.Duration, error) {
	t := GetTimer(ctx)
	if t == nil {
		return 0, fmt.Errorf("ctxtimer.ElapsedNow: no timer in context")
	}

	now, err := ctxclock.Now(ctx)
	if err != nil {
		return 0, fmt.Errorf("ctxtimer.ElapsedNow: %w", err)
	}

	d, err := t.Elapsed(name, now)
	if err != nil {
		return 0, fmt.Errorf("ctxtimer.ElapsedNow: %w", err)
	}

	return d, nil
}

// Register gives each request its own timer. A non-nil t is shared by every
// request, which is only useful in tests.
func Register(t *Timer) func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	return func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		next(rw, r.WithContext(WithTimer(r.Context(), t)))
	}
}

// AddLoggerHooks times the request, adding http.duration to the request log
// entry and recording it in the request duration histogram.
func AddLoggerHooks() func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	return func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		next(rw, r.WithContext(ctxlogger.AddHookPair(
			r.Context(),
			func(rw http.ResponseWriter, r *http.Request, l logrus.FieldLogger) logrus.FieldLogger {
				if err := MarkNow(r.Context(), spanRequest); err != nil {
					l.WithError(err).Warn("could not mark request start")
				}

				return l
			},
			func(rw http.ResponseWriter, r *http.Request, l logrus.FieldLogger) logrus.FieldLogger {
				d, err := ElapsedNow(r.Context(), spanRequest)
				if err != nil {
					l.WithError(err).Warn("could not measure request duration")
					return l
				}

				status := "unknown"
				if nrw, ok := rw.(interface{ Status() int }); ok {
					status = strconv.Itoa(nrw.Status())
				}

				metrics.ObserveRequest(r.Method, status, d)

				return l.WithField("http.duration", d)
			},
		)))
	}
}

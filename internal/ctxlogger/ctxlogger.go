// Package ctxlogger carries a logrus logger through request contexts and
// logs the start and end of every dashboard request.
package ctxlogger

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const RequestIDHeader = "x-request-id"

var loggerKey int

func WithLogger(ctx context.Context, l logrus.FieldLogger) context.Context {
	return context.WithValue(ctx, &loggerKey, l)
}

func GetLogger(ctx context.Context) logrus.FieldLogger {
	if v := ctx.Value(&loggerKey); v != nil {
		return v.(logrus.FieldLogger)
	}

	return logrus.StandardLogger()
}

// HookFunc decorates the request logger. Before hooks run when the request
// starts; after hooks run once the handler has returned.
type HookFunc func(rw http.ResponseWriter, r *http.Request, l logrus.FieldLogger) logrus.FieldLogger

type hooks struct {
	l      sync.Mutex
	before []HookFunc
	after  []HookFunc
}

func (h *hooks) add(before, after HookFunc) {
	h.l.Lock()
	defer h.l.Unlock()

	if before != nil {
		h.before = append(h.before, before)
	}
	if after != nil {
		h.after = append(h.after, after)
	}
}

func (h *hooks) run(which func(h *hooks) []HookFunc, rw http.ResponseWriter, r *http.Request, l logrus.FieldLogger) logrus.FieldLogger {
	h.l.Lock()
	a := append([]HookFunc(nil), which(h)...)
	h.l.Unlock()

	for _, fn := range a {
		l = fn(rw, r, l)
	}

	return l
}

var hooksKey int

func getHooks(ctx context.Context) *hooks {
	if v := ctx.Value(&hooksKey); v != nil {
		return v.(*hooks)
	}

	return nil
}

// AddHookPair registers hooks with the request's Log middleware. Either
// function may be nil. Outside a Register'd request a fresh hook list is
// attached to the returned context.
func AddHookPair(ctx context.Context, before, after HookFunc) context.Context {
	h := getHooks(ctx)
	if h == nil {
		h = &hooks{}
		ctx = context.WithValue(ctx, &hooksKey, h)
	}

	h.add(before, after)

	return ctx
}

func Register(l logrus.FieldLogger) func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	return func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		ctx := context.WithValue(r.Context(), &hooksKey, &hooks{})
		next(rw, r.WithContext(WithLogger(ctx, l)))
	}
}

// requestID keeps an id supplied by a proxy in front of the dashboard, and
// makes one up otherwise.
func requestID(r *http.Request) string {
	if s := strings.TrimSpace(r.Header.Get(RequestIDHeader)); s != "" && len(s) <= 64 {
		return s
	}

	return uuid.NewString()
}

// Log logs every request at info level, except those whose path starts with
// one of quiet, which are logged at debug level.
func Log(quiet ...string) func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	return func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		h := getHooks(r.Context())

		id := requestID(r)
		rw.Header().Set(RequestIDHeader, id)

		var l logrus.FieldLogger = GetLogger(r.Context()).WithFields(logrus.Fields{
			"http.request_id": id,
			"http.method":     r.Method,
			"http.path":       r.URL.String(),
			"http.host":       r.Host,
			"http.referer":    r.Header.Get("referer"),
			"http.user_agent": r.Header.Get("user-agent"),
		})

		debug := false
		for _, prefix := range quiet {
			if strings.HasPrefix(r.URL.Path, prefix) {
				debug = true
				break
			}
		}

		if h != nil {
			l = h.run(func(h *hooks) []HookFunc { return h.before }, rw, r, l)
		}

		r = r.WithContext(WithLogger(r.Context(), l))

		defer func() {
			if nrw, ok := rw.(interface {
				Status() int
				Size() int
			}); ok {
				l = l.WithFields(logrus.Fields{
					"http.status_code":   nrw.Status(),
					"http.response_size": nrw.Size(),
				})
			}

			if h != nil {
				l = h.run(func(h *hooks) []HookFunc { return h.after }, rw, r, l)
			}

			if debug {
				l.Debug("http request finished")
			} else {
				l.Info("http request finished")
			}
		}()

		if debug {
			l.Debug("http request started")
		} else {
			l.Info("http request started")
		}

		next(rw, r)
	}
}

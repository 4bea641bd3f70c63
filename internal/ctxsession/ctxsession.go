package ctxsession

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"fknsrs.biz/p/ytmentions/internal/ctxlogger"
	"fknsrs.biz/p/ytmentions/internal/sessions"
	"fknsrs.biz/p/ytmentions/internal/triage"
)

const DefaultCookieName = "ytmentions_session"

// context registration

var sessionKey int

func WithSession(ctx context.Context, s *triage.Session) context.Context {
	return context.WithValue(ctx, &sessionKey, s)
}

func GetSession(ctx context.Context) *triage.Session {
	if v := ctx.Value(&sessionKey); v != nil {
		return v.(*triage.Session)
	}

	return nil
}

var registryKey int

func WithRegistry(ctx context.Context, r *sessions.Registry) context.Context {
	return context.WithValue(ctx, &registryKey, r)
}

func GetRegistry(ctx context.Context) *sessions.Registry {
	if v := ctx.Value(&registryKey); v != nil {
		return v.(*sessions.Registry)
	}

	return nil
}

// middleware

// Register resolves the session named by the cookie, creating one (and
// setting the cookie) when it is missing or unknown. Session state is saved
// after every request that changes something.
func Register(r *sessions.Registry, cookieName string) func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}

	return func(rw http.ResponseWriter, req *http.Request, next http.HandlerFunc) {
		ctx := WithRegistry(req.Context(), r)

		var s *triage.Session

		if c, err := req.Cookie(cookieName); err == nil {
			found, err := r.Get(ctx, c.Value)
			if err != nil && !errors.Is(err, sessions.ErrNotFound) {
				ctxlogger.GetLogger(ctx).WithError(err).Warn("could not load session")
			}
			s = found
		}

		if s == nil {
			s = r.Create(ctx)

			http.SetCookie(rw, &http.Cookie{
				Name:     cookieName,
				Value:    s.ID,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
				Expires:  time.Now().Add(time.Hour * 24 * 30),
			})
		}

		ctx = WithSession(ctx, s)
		ctx = ctxlogger.WithLogger(ctx, ctxlogger.GetLogger(ctx).WithFields(logrus.Fields{"session.id": s.ID}))
		ctx = ctxlogger.AddHookPair(ctx, nil, func(rw http.ResponseWriter, r *http.Request, l logrus.FieldLogger) logrus.FieldLogger {
			return l.WithField("session.id", s.ID)
		})

		next(rw, req.WithContext(ctx))

		if req.Method != http.MethodGet {
			if err := r.Save(s); err != nil {
				ctxlogger.GetLogger(ctx).WithError(err).Warn("could not save session")
			}
		}
	}
}

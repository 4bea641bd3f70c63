// Package sessions holds the live triage sessions, one per operator
// browser, and persists their state in bbolt between restarts.
package sessions

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.etcd.io/bbolt"

	"fknsrs.biz/p/ytmentions/internal/ctxlogger"
	"fknsrs.biz/p/ytmentions/internal/metrics"
	"fknsrs.biz/p/ytmentions/internal/triage"
)

const (
	DefaultBucket  = "sessions"
	DefaultIdleTTL = time.Hour * 12
)

var (
	ErrNotFound = fmt.Errorf("sessions.ErrNotFound: session does not exist")
)

type Registry struct {
	ctx     context.Context
	db      *bbolt.DB
	bucket  []byte
	service triage.Service
	options triage.Options
	idleTTL time.Duration

	l sync.RWMutex
	m map[string]*triage.Session
}

// New creates a registry. ctx is the parent of every session's background
// context, so it should carry the logger, http client and scheduler.
func New(ctx context.Context, db *bbolt.DB, service triage.Service, options triage.Options) *Registry {
	return &Registry{
		ctx:     ctx,
		db:      db,
		bucket:  []byte(DefaultBucket),
		service: service,
		options: options,
		idleTTL: DefaultIdleTTL,
		m:       make(map[string]*triage.Session),
	}
}

func (r *Registry) SetIdleTTL(d time.Duration) {
	r.idleTTL = d
}

func (r *Registry) Len() int {
	r.l.RLock()
	defer r.l.RUnlock()

	return len(r.m)
}

// Create starts a fresh session under a new id.
func (r *Registry) Create(ctx context.Context) *triage.Session {
	id := uuid.NewString()

	s := triage.NewSession(r.ctx, id, r.service, r.options)

	r.l.Lock()
	r.m[id] = s
	n := len(r.m)
	r.l.Unlock()

	metrics.SetSessionsActive(n)

	ctxlogger.GetLogger(ctx).WithField("session.id", id).Info("created session")

	return s
}

// Get finds a live session, or revives a persisted one.
func (r *Registry) Get(ctx context.Context, id string) (*triage.Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("sessions.Registry.Get: invalid id %q: %w", id, ErrNotFound)
	}

	r.l.RLock()
	s, ok := r.m[id]
	r.l.RUnlock()

	if ok {
		return s, nil
	}

	st, err := r.load(id)
	if err != nil {
		return nil, fmt.Errorf("sessions.Registry.Get: %w", err)
	}

	r.l.Lock()
	defer r.l.Unlock()

	// another request may have revived it while we were loading
	if s, ok := r.m[id]; ok {
		return s, nil
	}

	s = triage.NewSession(r.ctx, id, r.service, r.options)
	s.Restore(*st)

	r.m[id] = s
	metrics.SetSessionsActive(len(r.m))

	ctxlogger.GetLogger(ctx).WithFields(logrus.Fields{
		"session.id":        id,
		"session.operator":  st.Operator,
		"session.selection": len(st.Selection),
	}).Info("restored session")

	return s, nil
}

func (r *Registry) load(id string) (*triage.State, error) {
	var st *triage.State

	if err := r.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(r.bucket)
		if b == nil {
			return ErrNotFound
		}

		d := b.Get([]byte(id))
		if d == nil {
			return ErrNotFound
		}

		st = &triage.State{}
		return gob.NewDecoder(bytes.NewReader(d)).Decode(st)
	}); err != nil {
		return nil, fmt.Errorf("sessions.Registry.load: %w", err)
	}

	return st, nil
}

// Save writes a session's state to disk.
func (r *Registry) Save(s *triage.Session) error {
	st := s.State()

	buf := bytes.NewBuffer(nil)
	if err := gob.NewEncoder(buf).Encode(st); err != nil {
		return fmt.Errorf("sessions.Registry.Save: could not encode state: %w", err)
	}

	if err := r.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(r.bucket)
		if err != nil {
			return err
		}

		return b.Put([]byte(st.ID), buf.Bytes())
	}); err != nil {
		return fmt.Errorf("sessions.Registry.Save: %w", err)
	}

	return nil
}

// Sweep saves and closes sessions idle since before now minus the idle
// ttl, and deletes persisted state older than that.
func (r *Registry) Sweep(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-r.idleTTL)

	var idle []*triage.Session

	r.l.Lock()
	for id, s := range r.m {
		if s.UpdatedAt().Before(cutoff) {
			idle = append(idle, s)
			delete(r.m, id)
		}
	}
	n := len(r.m)
	r.l.Unlock()

	metrics.SetSessionsActive(n)

	for _, s := range idle {
		if err := r.Save(s); err != nil {
			ctxlogger.GetLogger(ctx).WithError(err).WithField("session.id", s.ID).Warn("could not save idle session")
		}
		s.Close()
	}

	if err := r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(r.bucket)
		if b == nil {
			return nil
		}

		var stale [][]byte

		if err := b.ForEach(func(k, v []byte) error {
			var st triage.State
			if err := gob.NewDecoder(bytes.NewReader(v)).Decode(&st); err != nil || st.UpdatedAt.Before(cutoff.Add(-r.idleTTL)) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}

		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}

		return nil
	}); err != nil {
		return len(idle), fmt.Errorf("sessions.Registry.Sweep: %w", err)
	}

	return len(idle), nil
}

// Run sweeps idle sessions until ctx is done.
func (r *Registry) Run(ctx context.Context) error {
	l := ctxlogger.GetLogger(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Minute * 5):
			n, err := r.Sweep(ctx, time.Now())
			if err != nil {
				l.WithError(err).Error("could not sweep sessions")
			} else if n > 0 {
				l.WithField("sessions.swept", n).Info("swept idle sessions")
			}
		}
	}
}

// Close saves every live session and closes it.
func (r *Registry) Close() error {
	r.l.Lock()
	defer r.l.Unlock()

	var firstErr error

	for id, s := range r.m {
		if err := r.Save(s); err != nil && firstErr == nil {
			firstErr = err
		}
		s.Close()
		delete(r.m, id)
	}

	metrics.SetSessionsActive(0)

	return firstErr
}

// Package selection holds the set of videos an operator has picked for the
// next batch command. Only videos last known to be pending may join it.
package selection

import (
	"sort"
	"sync"

	"fknsrs.biz/p/ytmentions/internal/model"
)

// StatusLookup reports the last known status of a video, and whether it is
// known at all.
type StatusLookup interface {
	KnownStatus(videoID string) (model.RawStatus, bool)
}

type StatusMap map[string]model.RawStatus

func (m StatusMap) KnownStatus(videoID string) (model.RawStatus, bool) {
	s, ok := m[videoID]
	return s, ok
}

type Set struct {
	l sync.RWMutex
	m map[string]struct{}
}

func New() *Set {
	return &Set{m: make(map[string]struct{})}
}

func eligible(known StatusLookup, id string) bool {
	if known == nil {
		return false
	}

	s, ok := known.KnownStatus(id)

	return ok && s == model.StatusPending
}

// Add inserts the ids whose known status is pending and returns the ones
// that were newly added. Ineligible ids are dropped without error.
func (s *Set) Add(ids []string, known StatusLookup) []string {
	s.l.Lock()
	defer s.l.Unlock()

	var added []string

	for _, id := range ids {
		if !eligible(known, id) {
			continue
		}
		if _, ok := s.m[id]; ok {
			continue
		}

		s.m[id] = struct{}{}
		added = append(added, id)
	}

	return added
}

func (s *Set) Remove(ids []string) []string {
	s.l.Lock()
	defer s.l.Unlock()

	var removed []string

	for _, id := range ids {
		if _, ok := s.m[id]; ok {
			delete(s.m, id)
			removed = append(removed, id)
		}
	}

	return removed
}

// Replace swaps the whole set for the eligible subset of ids.
func (s *Set) Replace(ids []string, known StatusLookup) []string {
	s.l.Lock()
	s.m = make(map[string]struct{})
	s.l.Unlock()

	return s.Add(ids, known)
}

func (s *Set) Clear() int {
	s.l.Lock()
	defer s.l.Unlock()

	n := len(s.m)
	s.m = make(map[string]struct{})

	return n
}

// SelectAllEligibleOnPage adds every pending record on the page. Calling it
// again with the same page changes nothing.
func (s *Set) SelectAllEligibleOnPage(records []model.VideoRecord) []string {
	known := make(StatusMap, len(records))
	ids := make([]string, 0, len(records))

	for _, r := range records {
		known[r.VideoID] = r.RawStatus
		ids = append(ids, r.VideoID)
	}

	return s.Add(ids, known)
}

// Prune drops members whose known status is no longer pending. Members the
// lookup has never seen are kept.
func (s *Set) Prune(known StatusLookup) []string {
	s.l.Lock()
	defer s.l.Unlock()

	var removed []string

	for id := range s.m {
		if st, ok := known.KnownStatus(id); ok && st != model.StatusPending {
			delete(s.m, id)
			removed = append(removed, id)
		}
	}

	sort.Strings(removed)

	return removed
}

// Restore puts back ids saved from an earlier process without checking
// eligibility; the next Prune settles them.
func (s *Set) Restore(ids []string) {
	s.l.Lock()
	defer s.l.Unlock()

	for _, id := range ids {
		if id != "" {
			s.m[id] = struct{}{}
		}
	}
}

func (s *Set) Contains(id string) bool {
	s.l.RLock()
	defer s.l.RUnlock()

	_, ok := s.m[id]

	return ok
}

func (s *Set) Len() int {
	s.l.RLock()
	defer s.l.RUnlock()

	return len(s.m)
}

func (s *Set) IDs() []string {
	s.l.RLock()
	defer s.l.RUnlock()

	a := make([]string, 0, len(s.m))
	for id := range s.m {
		a = append(a, id)
	}

	sort.Strings(a)

	return a
}

package triage

import (
	"time"

	"fknsrs.biz/p/ytmentions/internal/filterspec"
	"fknsrs.biz/p/ytmentions/internal/model"
)

// State is the part of a session worth keeping across restarts. Catalog
// contents are not kept; they are fetched again on first use.
type State struct {
	ID                string
	Operator          string
	View              filterspec.View
	Selection         []string
	ProcessingOptions model.ProcessingOptions
	UpdatedAt         time.Time
}

func (s *Session) State() State {
	ids := s.selection.IDs()

	s.l.Lock()
	defer s.l.Unlock()

	return State{
		ID:                s.ID,
		Operator:          s.operator,
		View:              s.view,
		Selection:         ids,
		ProcessingOptions: s.options,
		UpdatedAt:         s.updatedAt,
	}
}

// Restore applies saved state to a fresh session. Selection members are
// kept without an eligibility check; the first refresh prunes any that are
// no longer pending.
func (s *Session) Restore(st State) {
	s.selection.Restore(st.Selection)

	s.l.Lock()
	defer s.l.Unlock()

	if st.Operator != "" {
		s.operator = st.Operator
	}
	if st.View.PageSize > 0 {
		s.view = st.View
	}
	if st.ProcessingOptions.Valid() && len(st.ProcessingOptions.Languages) > 0 {
		s.options = st.ProcessingOptions
	}
}

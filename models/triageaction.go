package models

import (
	"database/sql"
	"time"

	"fknsrs.biz/p/ytmentions/internal/sqlbuilderutil"
	"fknsrs.biz/p/ytmentions/internal/sqltypes"
)

var (
	TriageActionTable *sqlbuilderutil.Table
)

func init() {
	TriageActionTable = sqlbuilderutil.MustMakeTable(TriageAction{})
}

const (
	OutcomeOK       = "ok"
	OutcomePartial  = "partial"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
	OutcomeNoop     = "noop"
)

// TriageAction is one operator command and what came of it.
type TriageAction struct {
	ID         int `sql:",table:triage_actions"`
	CreatedAt  time.Time
	SessionID  string
	Operator   string
	Operation  string
	VideoIDs   sqltypes.JSONStringSlice `sql:"video_ids"`
	VideoCount int
	Outcome    string
	Message    string
}

func (a *TriageAction) OverrideScan(names []string, scanners []sql.Scanner) error {
	for i, name := range names {
		switch name {
		case "CreatedAt":
			scanners[i] = &sqltypes.TimeScanner{Value: &a.CreatedAt}
		}
	}

	return nil
}

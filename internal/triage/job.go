package triage

import (
	"time"

	"fknsrs.biz/p/ytmentions/internal/model"
)

type JobStatus string

const (
	JobIdle       = JobStatus("idle")
	JobProcessing = JobStatus("processing")
)

const (
	SourceSelection = "selection"
	SourceReady     = "ready"
)

// ProcessingJob tracks one batch submission until the next successful
// refresh, which settles it.
type ProcessingJob struct {
	Status         JobStatus
	Source         string
	RequestedCount int
	QueuedCount    int
	CompletedCount int
	VideoIDs       []string
	SubmittedAt    time.Time
	SettledAt      time.Time
}

func (j ProcessingJob) IsActive() bool {
	return j.Status == JobProcessing
}

// settle counts the requested videos that the lookup reports as finished.
func (j ProcessingJob) settle(known func(string) (model.RawStatus, bool), at time.Time) ProcessingJob {
	j.CompletedCount = 0

	for _, id := range j.VideoIDs {
		if st, ok := known(id); ok && st.IsTerminal() {
			j.CompletedCount++
		}
	}

	j.Status = JobIdle
	j.SettledAt = at

	return j
}

type ProcessResult struct {
	Requested        int
	Queued           int
	NothingToProcess bool
}

type SelectResult struct {
	Selected   []string
	Ineligible []string
}

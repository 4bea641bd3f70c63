package model

import (
	"fmt"
)

type RawStatus string

const (
	StatusPending    = RawStatus("pending")
	StatusSelected   = RawStatus("selected")
	StatusProcessing = RawStatus("processing")
	StatusProcessed  = RawStatus("processed")
	StatusSkipped    = RawStatus("skipped")
)

var RawStatuses = []RawStatus{
	StatusPending,
	StatusSelected,
	StatusProcessing,
	StatusProcessed,
	StatusSkipped,
}

func (s RawStatus) String() string { return string(s) }

func (s RawStatus) IsTerminal() bool {
	return s == StatusProcessed || s == StatusSkipped
}

func (s RawStatus) MarshalText() ([]byte, error) {
	return []byte(s), nil
}

func (s *RawStatus) UnmarshalText(d []byte) error {
	if len(d) == 0 {
		*s = ""
		return nil
	}

	v := RawStatus(d)
	if !IsKnownStatus(v) {
		return fmt.Errorf("model.RawStatus.UnmarshalText: unrecognised status %q", string(d))
	}

	*s = v

	return nil
}

// allowedTransitions lists every edge a record may take, whoever drives it.
var allowedTransitions = map[RawStatus]map[RawStatus]bool{
	StatusPending: {
		StatusPending:  true,
		StatusSelected: true,
		StatusSkipped:  true,
	},
	StatusSelected: {
		StatusSelected:   true,
		StatusProcessing: true,
	},
	StatusProcessing: {
		StatusProcessing: true,
		StatusProcessed:  true,
		StatusSkipped:    true,
	},
	StatusProcessed: {
		StatusProcessed: true,
	},
	StatusSkipped: {
		StatusSkipped: true,
	},
}

// clientTransitions are the only edges the dashboard applies before
// observing them from a fetch.
var clientTransitions = map[RawStatus]map[RawStatus]bool{
	StatusPending: {
		StatusSelected: true,
		StatusSkipped:  true,
	},
}

func IsKnownStatus(status RawStatus) bool {
	_, ok := allowedTransitions[status]
	return ok
}

func CanTransition(from, to RawStatus) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

func CanClientTransition(from, to RawStatus) bool {
	next, ok := clientTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// IsServerReset reports whether an observed change is one only the
// processing service may perform: anything leaving a terminal state, or
// any other edge outside the transition table.
func IsServerReset(from, to RawStatus) bool {
	if from == "" || from == to {
		return false
	}

	return !CanTransition(from, to)
}

type TranscriptStatus string

const (
	TranscriptUnknown     = TranscriptStatus("unknown")
	TranscriptChecking    = TranscriptStatus("checking")
	TranscriptAvailable   = TranscriptStatus("available")
	TranscriptUnavailable = TranscriptStatus("unavailable")
	TranscriptError       = TranscriptStatus("error")
)

var TranscriptStatuses = []TranscriptStatus{
	TranscriptUnknown,
	TranscriptChecking,
	TranscriptAvailable,
	TranscriptUnavailable,
	TranscriptError,
}

func (s TranscriptStatus) String() string { return string(s) }

func (s TranscriptStatus) MarshalText() ([]byte, error) {
	return []byte(s), nil
}

func (s *TranscriptStatus) UnmarshalText(d []byte) error {
	if len(d) == 0 {
		*s = ""
		return nil
	}

	v := TranscriptStatus(d)
	if !IsKnownTranscriptStatus(v) {
		return fmt.Errorf("model.TranscriptStatus.UnmarshalText: unrecognised transcript status %q", string(d))
	}

	*s = v

	return nil
}

func IsKnownTranscriptStatus(status TranscriptStatus) bool {
	for _, e := range TranscriptStatuses {
		if e == status {
			return true
		}
	}

	return false
}

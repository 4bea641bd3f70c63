package triage

import (
	"errors"
	"fmt"
	"strings"

	"fknsrs.biz/p/ytmentions/internal/catalog"
	"fknsrs.biz/p/ytmentions/internal/model"
	"fknsrs.biz/p/ytmentions/internal/processing"
	"fknsrs.biz/p/ytmentions/internal/stringutil"
)

var (
	ErrEmptySelection = fmt.Errorf("triage.ErrEmptySelection: no videos are selected")
	ErrInvalidOptions = fmt.Errorf("triage.ErrInvalidOptions: fuzzy threshold must be between 0 and 1")
	ErrInvalidFilter  = fmt.Errorf("triage.ErrInvalidFilter: filter is not valid")
	ErrSessionClosed  = fmt.Errorf("triage.ErrSessionClosed: session has been closed")
	ErrSuperseded     = catalog.ErrSuperseded
)

type FetchError = catalog.FetchError

// causeMessage gives the operator the service's own words when it refused
// a request, and a plain statement when it could not be reached.
func causeMessage(err error) string {
	var rejected *processing.RejectedError
	if errors.As(err, &rejected) && rejected.Message != "" {
		return rejected.Message
	}

	if errors.Is(err, processing.ErrTransport) {
		return "the processing service could not be reached"
	}

	return err.Error()
}

type SelectionRejectedError struct {
	Selected   []string
	Failed     []string
	Ineligible []string
	Err        error
}

func (e *SelectionRejectedError) Error() string {
	var parts []string

	if len(e.Failed) > 0 {
		s := fmt.Sprintf("could not select %s", stringutil.Count(len(e.Failed), "video"))
		if e.Err != nil {
			s += ": " + causeMessage(e.Err)
		}
		parts = append(parts, s)
	} else if e.Err != nil {
		parts = append(parts, "could not select videos: "+causeMessage(e.Err))
	}

	if len(e.Ineligible) > 0 {
		parts = append(parts, fmt.Sprintf("%s no longer pending", stringutil.Count(len(e.Ineligible), "video")))
	}

	if len(e.Selected) > 0 {
		parts = append(parts, fmt.Sprintf("%s selected", stringutil.Count(len(e.Selected), "video")))
	}

	if len(parts) == 0 {
		return "selection rejected"
	}

	return strings.Join(parts, "; ")
}

func (e *SelectionRejectedError) Unwrap() error {
	return e.Err
}

type SkipRejectedError struct {
	VideoID string
	Current model.RawStatus
	Err     error
}

func (e *SkipRejectedError) Error() string {
	switch {
	case e.Err == nil && e.Current == "":
		return fmt.Sprintf("could not skip %s: it is not on the current page", e.VideoID)
	case e.Err == nil:
		return fmt.Sprintf("could not skip %s: it is %s, not pending", e.VideoID, e.Current)
	}

	return fmt.Sprintf("could not skip %s: %s", e.VideoID, causeMessage(e.Err))
}

func (e *SkipRejectedError) Unwrap() error {
	return e.Err
}

type BatchSubmitError struct {
	Count int
	Err   error
}

func (e *BatchSubmitError) Error() string {
	return fmt.Sprintf("could not submit %s for processing: %s", stringutil.Count(e.Count, "video"), causeMessage(e.Err))
}

func (e *BatchSubmitError) Unwrap() error {
	return e.Err
}

type ReadyQueryError struct {
	Err error
}

func (e *ReadyQueryError) Error() string {
	return fmt.Sprintf("could not find videos ready for processing: %s", causeMessage(e.Err))
}

func (e *ReadyQueryError) Unwrap() error {
	return e.Err
}

// UserMessage renders any orchestration error for display.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var (
		fetchErr     *FetchError
		selectionErr *SelectionRejectedError
		skipErr      *SkipRejectedError
		batchErr     *BatchSubmitError
		readyErr     *ReadyQueryError
	)

	switch {
	case errors.As(err, &selectionErr):
		return selectionErr.Error()
	case errors.As(err, &skipErr):
		return skipErr.Error()
	case errors.As(err, &batchErr):
		return batchErr.Error()
	case errors.As(err, &readyErr):
		return readyErr.Error()
	case errors.As(err, &fetchErr):
		return "could not load videos: " + causeMessage(fetchErr.Err)
	case errors.Is(err, ErrEmptySelection):
		return "No videos are selected."
	case errors.Is(err, ErrInvalidOptions):
		return "Fuzzy threshold must be between 0 and 1."
	case errors.Is(err, ErrInvalidFilter):
		return "That filter is not valid: " + err.Error()
	default:
		return err.Error()
	}
}

// Package filterspec describes which slice of the video catalog an operator
// is looking at, and how that description becomes listing query parameters.
package filterspec

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"fknsrs.biz/p/ytmentions/internal/model"
)

type SortKey string

const (
	SortPublishedAt = SortKey("published_at")
	SortTitle       = SortKey("title")
	SortChannelName = SortKey("channel_name")
	SortDuration    = SortKey("duration")
	SortCreatedAt   = SortKey("created_at")
)

var SortKeys = []SortKey{SortPublishedAt, SortTitle, SortChannelName, SortDuration, SortCreatedAt}

func (k SortKey) MarshalText() ([]byte, error) { return []byte(k), nil }

func (k *SortKey) UnmarshalText(d []byte) error {
	if len(d) == 0 {
		*k = ""
		return nil
	}

	for _, e := range SortKeys {
		if string(e) == string(d) {
			*k = e
			return nil
		}
	}

	return fmt.Errorf("filterspec.SortKey.UnmarshalText: unrecognised sort key %q", string(d))
}

type SortDirection string

const (
	SortAsc  = SortDirection("asc")
	SortDesc = SortDirection("desc")
)

func (d SortDirection) MarshalText() ([]byte, error) { return []byte(d), nil }

func (d *SortDirection) UnmarshalText(b []byte) error {
	switch s := strings.ToLower(string(b)); s {
	case "":
		*d = ""
	case "asc", "desc":
		*d = SortDirection(s)
	default:
		return fmt.Errorf("filterspec.SortDirection.UnmarshalText: unrecognised direction %q", s)
	}

	return nil
}

// TriState is a boolean filter that may also be left unset.
type TriState string

const (
	Unset = TriState("")
	True  = TriState("true")
	False = TriState("false")
)

func (t TriState) IsSet() bool { return t != Unset }

func (t TriState) MarshalText() ([]byte, error) { return []byte(t), nil }

func (t *TriState) UnmarshalText(d []byte) error {
	switch s := strings.ToLower(strings.TrimSpace(string(d))); s {
	case "", "any":
		*t = Unset
	case "true", "yes", "1":
		*t = True
	case "false", "no", "0":
		*t = False
	default:
		return fmt.Errorf("filterspec.TriState.UnmarshalText: unrecognised value %q", s)
	}

	return nil
}

const dateFormat = "2006-01-02"

// Date is a calendar day; the zero value means no bound.
type Date struct {
	time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) IsSet() bool { return !d.Time.IsZero() }

func (d Date) String() string {
	if !d.IsSet() {
		return ""
	}

	return d.Time.Format(dateFormat)
}

func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Date) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" {
		d.Time = time.Time{}
		return nil
	}

	t, err := time.Parse(dateFormat, s)
	if err != nil {
		return fmt.Errorf("filterspec.Date.UnmarshalText: %w", err)
	}

	d.Time = t

	return nil
}

type FilterSpec struct {
	Search           string                 `formam:"search"`
	Status           model.RawStatus        `formam:"status"`
	Channel          string                 `formam:"channel"`
	PublishedAfter   Date                   `formam:"date_from"`
	PublishedBefore  Date                   `formam:"date_to"`
	SortBy           SortKey                `formam:"sort_by"`
	SortDirection    SortDirection          `formam:"sort_order"`
	TranscriptStatus model.TranscriptStatus `formam:"transcript_status"`
	HasTranscript    TriState               `formam:"has_transcript"`
}

func Default() FilterSpec {
	return FilterSpec{
		SortBy:        SortPublishedAt,
		SortDirection: SortDesc,
	}
}

// Normalize fills empty sort fields with the defaults and trims text.
func (f FilterSpec) Normalize() FilterSpec {
	f.Search = strings.TrimSpace(f.Search)
	f.Channel = strings.TrimSpace(f.Channel)

	if f.SortBy == "" {
		f.SortBy = SortPublishedAt
	}
	if f.SortDirection == "" {
		f.SortDirection = SortDesc
	}

	return f
}

func (f FilterSpec) Validate() error {
	if f.Status != "" && !model.IsKnownStatus(f.Status) {
		return fmt.Errorf("filterspec.FilterSpec.Validate: unknown status %q", f.Status)
	}
	if f.TranscriptStatus != "" && !model.IsKnownTranscriptStatus(f.TranscriptStatus) {
		return fmt.Errorf("filterspec.FilterSpec.Validate: unknown transcript status %q", f.TranscriptStatus)
	}
	if f.PublishedAfter.IsSet() && f.PublishedBefore.IsSet() && f.PublishedBefore.Before(f.PublishedAfter.Time) {
		return fmt.Errorf("filterspec.FilterSpec.Validate: date_to %s is before date_from %s", f.PublishedBefore, f.PublishedAfter)
	}

	return nil
}

func (f FilterSpec) IsDefault() bool {
	return f.Normalize() == Default()
}

// Values maps populated fields to listing query parameters. Unset fields
// are omitted entirely.
func (f FilterSpec) Values() url.Values {
	f = f.Normalize()

	v := url.Values{}

	if f.Search != "" {
		v.Set("search", f.Search)
	}
	if f.Status != "" {
		v.Set("status", string(f.Status))
	}
	if f.Channel != "" {
		v.Set("channel", f.Channel)
	}
	if f.PublishedAfter.IsSet() {
		v.Set("date_from", f.PublishedAfter.String())
	}
	if f.PublishedBefore.IsSet() {
		v.Set("date_to", f.PublishedBefore.String())
	}
	if f.TranscriptStatus != "" {
		v.Set("transcript_status", string(f.TranscriptStatus))
	}
	if f.HasTranscript.IsSet() {
		v.Set("has_transcript", string(f.HasTranscript))
	}

	v.Set("sort_by", string(f.SortBy))
	v.Set("sort_order", string(f.SortDirection))

	return v
}

// WithStatus returns a copy constrained to one status and nothing else,
// used to discover the ready set.
func WithStatus(status model.RawStatus) FilterSpec {
	f := Default()
	f.Status = status
	return f
}

package filterspec

import (
	"net/url"
	"testing"

	"github.com/monoculum/formam"
	"github.com/stretchr/testify/assert"

	"fknsrs.biz/p/ytmentions/internal/model"
)

func TestDefaultValues(t *testing.T) {
	a := assert.New(t)

	a.Equal(url.Values{
		"sort_by":    []string{"published_at"},
		"sort_order": []string{"desc"},
	}, Default().Values())
	a.True(Default().IsDefault())
}

func TestValuesOmitsUnsetFields(t *testing.T) {
	a := assert.New(t)

	f := Default()
	f.Search = "  budget  "
	f.HasTranscript = False

	v := f.Values()

	a.Equal("budget", v.Get("search"))
	a.Equal("false", v.Get("has_transcript"))

	for _, k := range []string{"status", "channel", "date_from", "date_to", "transcript_status"} {
		_, ok := v[k]
		a.False(ok, k)
	}
}

func TestTranscriptFiltersAreIndependent(t *testing.T) {
	a := assert.New(t)

	f := Default()
	f.HasTranscript = True
	f.TranscriptStatus = model.TranscriptAvailable

	v := f.Values()
	a.Equal("true", v.Get("has_transcript"))
	a.Equal("available", v.Get("transcript_status"))

	f.HasTranscript = Unset
	v = f.Values()
	a.Equal("", v.Get("has_transcript"))
	a.Equal("available", v.Get("transcript_status"))
}

func TestValuesAllFields(t *testing.T) {
	a := assert.New(t)

	f := FilterSpec{
		Search:           "rally",
		Status:           model.StatusPending,
		Channel:          "News 18",
		PublishedAfter:   NewDate(2024, 1, 1),
		PublishedBefore:  NewDate(2024, 2, 1),
		SortBy:           SortTitle,
		SortDirection:    SortAsc,
		TranscriptStatus: model.TranscriptUnknown,
		HasTranscript:    True,
	}

	a.NoError(f.Validate())
	a.Equal(url.Values{
		"search":            []string{"rally"},
		"status":            []string{"pending"},
		"channel":           []string{"News 18"},
		"date_from":         []string{"2024-01-01"},
		"date_to":           []string{"2024-02-01"},
		"sort_by":           []string{"title"},
		"sort_order":        []string{"asc"},
		"transcript_status": []string{"unknown"},
		"has_transcript":    []string{"true"},
	}, f.Values())
}

func TestValidate(t *testing.T) {
	a := assert.New(t)

	f := Default()
	f.PublishedAfter = NewDate(2024, 3, 1)
	f.PublishedBefore = NewDate(2024, 2, 1)
	a.Error(f.Validate())

	f = Default()
	f.Status = "archived"
	a.Error(f.Validate())
}

func TestTriStateUnmarshalText(t *testing.T) {
	for _, tc := range []struct {
		in  string
		out TriState
	}{
		{"", Unset},
		{"any", Unset},
		{"true", True},
		{"YES", True},
		{"0", False},
		{"false", False},
	} {
		t.Run(tc.in, func(t *testing.T) {
			a := assert.New(t)

			var v TriState
			a.NoError(v.UnmarshalText([]byte(tc.in)))
			a.Equal(tc.out, v)
		})
	}

	var v TriState
	assert.Error(t, v.UnmarshalText([]byte("maybe")))
}

func TestFormDecode(t *testing.T) {
	a := assert.New(t)

	var f FilterSpec
	a.NoError(formam.Decode(url.Values{
		"search":         []string{"speech"},
		"status":         []string{"pending"},
		"date_from":      []string{"2024-05-06"},
		"sort_by":        []string{"duration"},
		"sort_order":     []string{"asc"},
		"has_transcript": []string{"true"},
	}, &f))

	a.Equal("speech", f.Search)
	a.Equal(model.StatusPending, f.Status)
	a.Equal("2024-05-06", f.PublishedAfter.String())
	a.Equal(SortDuration, f.SortBy)
	a.Equal(SortAsc, f.SortDirection)
	a.Equal(True, f.HasTranscript)
}

func TestViewFilterChangeResetsPage(t *testing.T) {
	a := assert.New(t)

	v := NewView(20).SetPage(4, 0)
	a.Equal(4, v.Page)

	f := Default()
	f.Search = "x"
	v = v.SetFilter(f)
	a.Equal(1, v.Page)
	a.Equal("x", v.Filter.Search)

	v = v.SetPage(3, 0)
	v = v.SetFilter(v.Filter)
	a.Equal(1, v.Page)

	v = v.SetPage(5, 0).Clear()
	a.Equal(1, v.Page)
	a.True(v.Filter.IsDefault())
}

func TestViewPageSize(t *testing.T) {
	a := assert.New(t)

	v := NewView(0)
	a.Equal(DefaultPageSize, v.PageSize)

	v = v.SetPage(3, 0)
	a.Equal(3, v.Page)

	v = v.SetPage(3, 50)
	a.Equal(1, v.Page)
	a.Equal(50, v.PageSize)

	v = v.SetPage(-2, 5000)
	a.Equal(1, v.Page)
	a.Equal(MaxPageSize, v.PageSize)
}

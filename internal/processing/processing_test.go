package processing

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"

	"fknsrs.biz/p/ytmentions/internal/ctxhttpclient"
	"fknsrs.biz/p/ytmentions/internal/model"
)

func newServer(t *testing.T, h http.HandlerFunc) (*Client, context.Context) {
	s := httptest.NewServer(h)
	t.Cleanup(s.Close)

	ctx := ctxhttpclient.WithHTTPClient(context.Background(), s.Client())

	return New(s.URL+"/", s.URL), ctx
}

func writeJSON(rw http.ResponseWriter, status int, v interface{}) {
	rw.Header().Set("content-type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func TestListVideos(t *testing.T) {
	a := assert.New(t)

	var got url.Values

	c, ctx := newServer(t, func(rw http.ResponseWriter, r *http.Request) {
		a.Equal("/api/raw-videos", r.URL.Path)
		got = r.URL.Query()

		writeJSON(rw, http.StatusOK, map[string]interface{}{
			"success": true,
			"videos": []map[string]interface{}{
				{"id": 1, "video_id": "abcdefghijk", "title": "Rally", "raw_status": "pending", "transcript_status": "unknown", "duration": 95},
				{"id": 2, "video_id": "bcdefghijkl", "title": "Speech", "status": "selected"},
			},
			"pagination": map[string]interface{}{"page": 2, "limit": 2, "total": 9, "pages": 5},
			"statistics": map[string]interface{}{"total": 9, "pending": 6, "selected": 3},
		})
	})

	listing, err := c.ListVideos(ctx, url.Values{"search": []string{"rally"}}, 2, 2)
	a.NoError(err)

	a.Equal("rally", got.Get("search"))
	a.Equal("2", got.Get("page"))
	a.Equal("2", got.Get("limit"))

	a.Len(listing.Videos, 2)
	a.Equal(model.StatusPending, listing.Videos[0].RawStatus)
	a.Equal(model.TranscriptUnknown, listing.Videos[0].TranscriptStatus)
	a.Equal("1m35s", listing.Videos[0].DurationString())
	a.Equal(model.Pagination{Page: 2, Limit: 2, Total: 9, Pages: 5}, listing.Pagination)
	a.Equal(3, listing.Statistics.Selected)
}

func TestListVideosStatusKeys(t *testing.T) {
	type testCase struct {
		name   string
		record map[string]interface{}
		status model.RawStatus
	}

	for _, tc := range []testCase{
		{"raw_status", map[string]interface{}{"video_id": "A", "raw_status": "pending"}, model.StatusPending},
		{"status", map[string]interface{}{"video_id": "A", "status": "processed"}, model.StatusProcessed},
		{"both", map[string]interface{}{"video_id": "A", "raw_status": "selected", "status": "pending"}, model.StatusSelected},
		{"neither", map[string]interface{}{"video_id": "A"}, ""},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a := assert.New(t)

			c, ctx := newServer(t, func(rw http.ResponseWriter, r *http.Request) {
				writeJSON(rw, http.StatusOK, map[string]interface{}{
					"success":    true,
					"videos":     []map[string]interface{}{tc.record},
					"pagination": map[string]interface{}{"page": 1, "pages": 1},
				})
			})

			listing, err := c.ListVideos(ctx, nil, 1, 20)
			a.NoError(err)
			if a.Len(listing.Videos, 1) {
				a.Equal("A", listing.Videos[0].VideoID)
				a.Equal(tc.status, listing.Videos[0].RawStatus)
			}
		})
	}
}

func TestListVideosDataEnvelope(t *testing.T) {
	a := assert.New(t)

	c, ctx := newServer(t, func(rw http.ResponseWriter, r *http.Request) {
		writeJSON(rw, http.StatusOK, map[string]interface{}{
			"success": true,
			"data": map[string]interface{}{
				"videos":     []map[string]interface{}{{"video_id": "A", "status": "skipped"}},
				"pagination": map[string]interface{}{"page": 1, "pages": 1},
			},
		})
	})

	listing, err := c.ListVideos(ctx, nil, 1, 20)
	a.NoError(err)
	a.Len(listing.Videos, 1)
	a.Equal(model.StatusSkipped, listing.Videos[0].RawStatus)
}

func TestRejectedCarriesMessage(t *testing.T) {
	a := assert.New(t)

	c, ctx := newServer(t, func(rw http.ResponseWriter, r *http.Request) {
		writeJSON(rw, http.StatusConflict, map[string]interface{}{
			"success": false,
			"message": "Video is not pending",
			"video":   map[string]interface{}{"video_id": "A", "status": "selected"},
		})
	})

	_, err := c.SkipVideo(ctx, "A", "operator", "off topic")

	var rejected *RejectedError
	a.True(errors.As(err, &rejected))
	a.Equal("Video is not pending", rejected.Message)
	a.Equal(http.StatusConflict, rejected.StatusCode)
	a.Equal(model.StatusSelected, rejected.CurrentStatus)
	a.False(errors.Is(err, ErrTransport))
	a.True(IsRejected(err))
}

func TestRejectedWithOKStatus(t *testing.T) {
	a := assert.New(t)

	c, ctx := newServer(t, func(rw http.ResponseWriter, r *http.Request) {
		writeJSON(rw, http.StatusOK, map[string]interface{}{"success": false, "error": "queue full"})
	})

	_, err := c.ProcessVideos(ctx, []string{"A"}, model.DefaultProcessingOptions())

	var rejected *RejectedError
	a.True(errors.As(err, &rejected))
	a.Equal("queue full", rejected.Message)
}

func TestTransportErrors(t *testing.T) {
	t.Run("server_error_without_envelope", func(t *testing.T) {
		a := assert.New(t)

		c, ctx := newServer(t, func(rw http.ResponseWriter, r *http.Request) {
			http.Error(rw, "bad gateway", http.StatusBadGateway)
		})

		_, err := c.ListVideos(ctx, nil, 1, 20)
		a.ErrorIs(err, ErrTransport)
		a.False(IsRejected(err))
	})

	t.Run("unreachable", func(t *testing.T) {
		a := assert.New(t)

		s := httptest.NewServer(http.NotFoundHandler())
		s.Close()

		c := New(s.URL, "")
		_, err := c.ListVideos(context.Background(), nil, 1, 20)
		a.ErrorIs(err, ErrTransport)
	})

	t.Run("no_url", func(t *testing.T) {
		a := assert.New(t)

		c := New("", "")
		_, err := c.CheckTranscriptAvailability(context.Background(), "A", nil)
		a.ErrorIs(err, ErrTransport)
	})

	t.Run("cancelled", func(t *testing.T) {
		a := assert.New(t)

		c, ctx := newServer(t, func(rw http.ResponseWriter, r *http.Request) {
			writeJSON(rw, http.StatusOK, map[string]interface{}{"success": true})
		})

		ctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := c.ListVideos(ctx, nil, 1, 20)
		a.ErrorIs(err, ErrTransport)
		a.ErrorIs(err, context.Canceled)
	})
}

func TestSelectVideosBody(t *testing.T) {
	a := assert.New(t)

	var body struct {
		VideoIDs        []string `json:"video_ids"`
		SelectedBy      string   `json:"selected_by"`
		SelectionReason string   `json:"selection_reason"`
	}

	c, ctx := newServer(t, func(rw http.ResponseWriter, r *http.Request) {
		a.Equal(http.MethodPost, r.Method)
		a.Equal("/api/raw-videos/select", r.URL.Path)
		a.NoError(json.NewDecoder(r.Body).Decode(&body))

		writeJSON(rw, http.StatusOK, map[string]interface{}{"success": true, "count": 2})
	})

	res, err := c.SelectVideos(ctx, []string{"A", "B"}, "desk", "manual triage")
	a.NoError(err)
	a.Equal(2, res.Count)
	a.Equal([]string{"A", "B"}, body.VideoIDs)
	a.Equal("desk", body.SelectedBy)
	a.Equal("manual triage", body.SelectionReason)
}

func TestProcessVideosBody(t *testing.T) {
	a := assert.New(t)

	var body struct {
		VideoIDs []string                `json:"video_ids"`
		Options  model.ProcessingOptions `json:"processing_options"`
	}

	c, ctx := newServer(t, func(rw http.ResponseWriter, r *http.Request) {
		a.Equal("/api/raw-videos/process", r.URL.Path)
		a.NoError(json.NewDecoder(r.Body).Decode(&body))

		writeJSON(rw, http.StatusOK, map[string]interface{}{"success": true, "total_queued": 3})
	})

	res, err := c.ProcessVideos(ctx, []string{"A", "B", "C"}, model.DefaultProcessingOptions())
	a.NoError(err)
	a.Equal(3, res.TotalQueued)
	a.Equal(0.8, body.Options.FuzzyThreshold)
	a.True(body.Options.UseFuzzyMatching)
	a.Equal([]string{"mr", "hi", "en"}, body.Options.Languages)
}

func TestCheckTranscriptAvailability(t *testing.T) {
	a := assert.New(t)

	c, ctx := newServer(t, func(rw http.ResponseWriter, r *http.Request) {
		a.Equal("/check-availability", r.URL.Path)

		var body map[string]interface{}
		a.NoError(json.NewDecoder(r.Body).Decode(&body))
		a.Equal(true, body["quick_check"])

		writeJSON(rw, http.StatusOK, map[string]interface{}{
			"success":              true,
			"transcript_available": true,
			"available_language":   "mr",
			"detection_method":     "generated",
		})
	})

	res, err := c.CheckTranscriptAvailability(ctx, "A", []string{"mr", "hi"})
	a.NoError(err)
	a.True(res.Available)
	a.Equal("mr", res.AvailableLanguage)
	a.Equal("A", res.VideoID)
}

func TestListMentionsAndClips(t *testing.T) {
	a := assert.New(t)

	c, ctx := newServer(t, func(rw http.ResponseWriter, r *http.Request) {
		a.Equal("A", r.URL.Query().Get("video_id"))

		switch r.URL.Path {
		case "/api/mentions":
			writeJSON(rw, http.StatusOK, map[string]interface{}{
				"success":  true,
				"mentions": []map[string]interface{}{{"keyword": "water", "start_time": 75.5, "sentiment_label": "negative"}},
			})
		case "/api/clips":
			writeJSON(rw, http.StatusOK, map[string]interface{}{
				"success": true,
				"clips":   []map[string]interface{}{{"title": "water clip", "status": "ready"}},
			})
		default:
			http.NotFound(rw, r)
		}
	})

	mentions, err := c.ListMentions(ctx, "A")
	a.NoError(err)
	a.Len(mentions, 1)
	a.Equal("1m15s", mentions[0].Timestamp())

	clips, err := c.ListClips(ctx, "A")
	a.NoError(err)
	a.Len(clips, 1)
	a.Equal("ready", clips[0].Status)
}

func TestThumbnail(t *testing.T) {
	a := assert.New(t)

	c, ctx := newServer(t, func(rw http.ResponseWriter, r *http.Request) {
		a.Equal("/thumb.jpg", r.URL.Path)

		rw.Header().Set("content-type", "image/jpeg")
		_, _ = rw.Write([]byte("jpeg"))
	})

	res, err := c.Thumbnail(ctx, "abcdefghijk", c.BaseURL+"/thumb.jpg")
	a.NoError(err)
	defer res.Body.Close()

	d, err := io.ReadAll(res.Body)
	a.NoError(err)
	a.Equal("jpeg", string(d))
	a.Equal("image/jpeg", res.Header.Get("content-type"))
}

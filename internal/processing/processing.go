// Package processing talks to the remote processing service that owns video
// status, and to the transcript service. It carries no triage logic; its job
// is to tell a network failure apart from the service saying no.
package processing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Jeffail/gabs/v2"
	"github.com/sirupsen/logrus"

	"fknsrs.biz/p/ytmentions/internal/ctxhttpclient"
	"fknsrs.biz/p/ytmentions/internal/ctxlogger"
	"fknsrs.biz/p/ytmentions/internal/model"
)

var (
	ErrTransport = fmt.Errorf("processing.ErrTransport: service could not be reached")
)

const maxResponseSize = 16 << 20

// RejectedError means the service answered and refused the request. Message
// is the service's own text, suitable for showing the operator as is.
type RejectedError struct {
	Operation     string
	StatusCode    int
	Message       string
	CurrentStatus model.RawStatus
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s rejected with status %d", e.Operation, e.StatusCode)
	}

	return fmt.Sprintf("%s rejected: %s", e.Operation, e.Message)
}

func IsRejected(err error) bool {
	var r *RejectedError
	return errors.As(err, &r)
}

type Client struct {
	BaseURL       string
	TranscriptURL string
	// ArtifactClient is used for mention and clip reads when set; those
	// answers change rarely and may be served from a cache.
	ArtifactClient *http.Client
	// ThumbnailClient fetches preview images.
	ThumbnailClient *http.Client
}

func New(baseURL, transcriptURL string) *Client {
	return &Client{
		BaseURL:       strings.TrimRight(baseURL, "/"),
		TranscriptURL: strings.TrimRight(transcriptURL, "/"),
	}
}

type request struct {
	operation  string
	httpClient *http.Client
	method     string
	baseURL    string
	path       string
	query      url.Values
	body       interface{}
}

func (c *Client) do(ctx context.Context, req request) (*gabs.Container, error) {
	l := ctxlogger.GetLogger(ctx).WithFields(logrus.Fields{
		"processing.operation": req.operation,
		"processing.method":    req.method,
		"processing.path":      req.path,
	})

	if req.baseURL == "" {
		return nil, fmt.Errorf("processing.Client.%s: no service url configured: %w", req.operation, ErrTransport)
	}

	u := req.baseURL + req.path
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		d, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("processing.Client.%s: could not encode request: %w", req.operation, err)
		}
		body = bytes.NewReader(d)
	}

	hr, err := http.NewRequestWithContext(ctx, req.method, u, body)
	if err != nil {
		return nil, fmt.Errorf("processing.Client.%s: could not build request: %w", req.operation, err)
	}

	hr.Header.Set("accept", "application/json")
	if body != nil {
		hr.Header.Set("content-type", "application/json")
	}

	httpClient := req.httpClient
	if httpClient == nil {
		httpClient = ctxhttpclient.GetHTTPClient(ctx)
	}

	start := time.Now()

	res, err := httpClient.Do(hr)
	if err != nil {
		l.WithError(err).Warn("processing service request failed")
		return nil, fmt.Errorf("processing.Client.%s: %w: %w", req.operation, ErrTransport, err)
	}
	defer res.Body.Close()

	d, err := io.ReadAll(io.LimitReader(res.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("processing.Client.%s: could not read response: %w: %w", req.operation, ErrTransport, err)
	}

	l = l.WithFields(logrus.Fields{
		"processing.status_code": res.StatusCode,
		"processing.duration":    time.Since(start),
	})

	container, err := gabs.ParseJSON(d)
	if err != nil {
		l.WithError(err).Warn("processing service returned a non-json response")

		if res.StatusCode >= 400 && res.StatusCode < 500 {
			return nil, &RejectedError{
				Operation:  req.operation,
				StatusCode: res.StatusCode,
				Message:    strings.TrimSpace(string(d)),
			}
		}

		return nil, fmt.Errorf("processing.Client.%s: invalid response (status %d): %w", req.operation, res.StatusCode, ErrTransport)
	}

	success, hasSuccess := container.Path("success").Data().(bool)

	if res.StatusCode >= 500 && !hasSuccess {
		return nil, fmt.Errorf("processing.Client.%s: service error (status %d): %w", req.operation, res.StatusCode, ErrTransport)
	}

	if (hasSuccess && !success) || res.StatusCode >= 400 {
		rejected := &RejectedError{
			Operation:  req.operation,
			StatusCode: res.StatusCode,
			Message:    messageOf(container),
		}

		for _, p := range []string{"video.raw_status", "video.status", "current_status"} {
			if s, ok := container.Path(p).Data().(string); ok && model.IsKnownStatus(model.RawStatus(s)) {
				rejected.CurrentStatus = model.RawStatus(s)
				break
			}
		}

		l.WithField("processing.message", rejected.Message).Info("processing service rejected request")

		return nil, rejected
	}

	l.Debug("processing service request finished")

	if container.Exists("data") && !container.Exists("videos") {
		return container.Path("data"), nil
	}

	return container, nil
}

func messageOf(c *gabs.Container) string {
	for _, p := range []string{"message", "error", "detail"} {
		if s, ok := c.Path(p).Data().(string); ok && s != "" {
			return s
		}
	}

	return ""
}

func decode(operation string, c *gabs.Container, out interface{}) error {
	if err := json.Unmarshal(c.Bytes(), out); err != nil {
		return fmt.Errorf("processing.Client.%s: could not decode response: %w: %w", operation, ErrTransport, err)
	}

	return nil
}

func (c *Client) ListVideos(ctx context.Context, values url.Values, page, limit int) (*model.Listing, error) {
	q := url.Values{}
	for k, v := range values {
		q[k] = append([]string(nil), v...)
	}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))

	res, err := c.do(ctx, request{
		operation: "ListVideos",
		method:    http.MethodGet,
		baseURL:   c.BaseURL,
		path:      "/api/raw-videos",
		query:     q,
	})
	if err != nil {
		return nil, err
	}

	var listing model.Listing
	if err := decode("ListVideos", res, &listing); err != nil {
		return nil, err
	}

	if listing.Videos == nil {
		listing.Videos = []model.VideoRecord{}
	}

	return &listing, nil
}

type SelectResult struct {
	Count int `json:"count"`
	// SelectedIDs is set when the service says which ids it accepted.
	SelectedIDs []string `json:"selected_ids"`
}

func (c *Client) SelectVideos(ctx context.Context, ids []string, selectedBy, reason string) (*SelectResult, error) {
	res, err := c.do(ctx, request{
		operation: "SelectVideos",
		method:    http.MethodPost,
		baseURL:   c.BaseURL,
		path:      "/api/raw-videos/select",
		body: map[string]interface{}{
			"video_ids":        ids,
			"selected_by":      selectedBy,
			"selection_reason": reason,
		},
	})
	if err != nil {
		return nil, err
	}

	var out SelectResult
	if err := decode("SelectVideos", res, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

type SkipResult struct {
	Video *model.VideoRecord `json:"video"`
}

func (c *Client) SkipVideo(ctx context.Context, id, skippedBy, reason string) (*SkipResult, error) {
	res, err := c.do(ctx, request{
		operation: "SkipVideo",
		method:    http.MethodPost,
		baseURL:   c.BaseURL,
		path:      "/api/raw-videos/" + url.PathEscape(id) + "/skip",
		body: map[string]interface{}{
			"skipped_by":  skippedBy,
			"skip_reason": reason,
		},
	})
	if err != nil {
		return nil, err
	}

	var out SkipResult
	if err := decode("SkipVideo", res, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

type ProcessResult struct {
	TotalQueued int `json:"total_queued"`
}

func (c *Client) ProcessVideos(ctx context.Context, ids []string, options model.ProcessingOptions) (*ProcessResult, error) {
	res, err := c.do(ctx, request{
		operation: "ProcessVideos",
		method:    http.MethodPost,
		baseURL:   c.BaseURL,
		path:      "/api/raw-videos/process",
		body: map[string]interface{}{
			"video_ids":          ids,
			"processing_options": options,
		},
	})
	if err != nil {
		return nil, err
	}

	var out ProcessResult
	if err := decode("ProcessVideos", res, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

func (c *Client) ListMentions(ctx context.Context, videoID string) ([]model.Mention, error) {
	res, err := c.do(ctx, request{
		operation:  "ListMentions",
		httpClient: c.ArtifactClient,
		method:     http.MethodGet,
		baseURL:    c.BaseURL,
		path:       "/api/mentions",
		query:      url.Values{"video_id": []string{videoID}},
	})
	if err != nil {
		return nil, err
	}

	var out struct {
		Mentions []model.Mention `json:"mentions"`
	}
	if err := decode("ListMentions", res, &out); err != nil {
		return nil, err
	}

	return out.Mentions, nil
}

func (c *Client) ListClips(ctx context.Context, videoID string) ([]model.Clip, error) {
	res, err := c.do(ctx, request{
		operation:  "ListClips",
		httpClient: c.ArtifactClient,
		method:     http.MethodGet,
		baseURL:    c.BaseURL,
		path:       "/api/clips",
		query:      url.Values{"video_id": []string{videoID}},
	})
	if err != nil {
		return nil, err
	}

	var out struct {
		Clips []model.Clip `json:"clips"`
	}
	if err := decode("ListClips", res, &out); err != nil {
		return nil, err
	}

	return out.Clips, nil
}

func (c *Client) UpdateTranscriptStatus(ctx context.Context, id string, status model.TranscriptStatus, language string) error {
	body := map[string]interface{}{
		"transcript_status": status,
	}
	if language != "" {
		body["transcript_language"] = language
	}

	_, err := c.do(ctx, request{
		operation: "UpdateTranscriptStatus",
		method:    http.MethodPost,
		baseURL:   c.BaseURL,
		path:      "/api/raw-videos/" + url.PathEscape(id) + "/transcript-status",
		body:      body,
	})

	return err
}

func (c *Client) CheckTranscriptAvailability(ctx context.Context, id string, languages []string) (*model.TranscriptAvailability, error) {
	res, err := c.do(ctx, request{
		operation: "CheckTranscriptAvailability",
		method:    http.MethodPost,
		baseURL:   c.TranscriptURL,
		path:      "/check-availability",
		body: map[string]interface{}{
			"video_id":    id,
			"languages":   languages,
			"quick_check": true,
		},
	})
	if err != nil {
		return nil, err
	}

	var out model.TranscriptAvailability
	if err := decode("CheckTranscriptAvailability", res, &out); err != nil {
		return nil, err
	}

	if out.VideoID == "" {
		out.VideoID = id
	}

	return &out, nil
}

const thumbnailURLFormat = "https://i.ytimg.com/vi/%s/mqdefault.jpg"

// Thumbnail fetches the preview image for a video. An empty u falls back to
// the standard thumbnail location for the id. The caller closes the body.
func (c *Client) Thumbnail(ctx context.Context, videoID, u string) (*http.Response, error) {
	if u == "" {
		u = fmt.Sprintf(thumbnailURLFormat, url.PathEscape(videoID))
	}

	hr, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("processing.Client.Thumbnail: could not build request: %w", err)
	}

	httpClient := c.ThumbnailClient
	if httpClient == nil {
		httpClient = ctxhttpclient.GetHTTPClient(ctx)
	}

	res, err := httpClient.Do(hr)
	if err != nil {
		return nil, fmt.Errorf("processing.Client.Thumbnail: %w: %w", ErrTransport, err)
	}

	return res, nil
}

// Package ctxhttpclient carries the client used to talk to the processing
// service through request and worker contexts.
package ctxhttpclient

import (
	"context"
	"net/http"
	"time"
)

const (
	DefaultUserAgent = "ytmentions"
	DefaultTimeout   = time.Second * 30
)

var defaultClient = New(DefaultTimeout, nil)

var httpClientKey int

func WithHTTPClient(ctx context.Context, httpClient *http.Client) context.Context {
	return context.WithValue(ctx, &httpClientKey, httpClient)
}

// GetHTTPClient returns the context's client, or a shared client with
// DefaultTimeout when there is none.
func GetHTTPClient(ctx context.Context) *http.Client {
	if v := ctx.Value(&httpClientKey); v != nil {
		return v.(*http.Client)
	}

	return defaultClient
}

func Register(httpClient *http.Client) func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	return func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		next(rw, r.WithContext(WithHTTPClient(r.Context(), httpClient)))
	}
}

// New builds a client that identifies itself with DefaultUserAgent. A nil
// transport means http.DefaultTransport.
func New(timeout time.Duration, transport http.RoundTripper) *http.Client {
	if transport == nil {
		transport = http.DefaultTransport
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: &userAgentTransport{next: transport, userAgent: DefaultUserAgent},
	}
}

type userAgentTransport struct {
	next      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if r.Header.Get("user-agent") != "" {
		return t.next.RoundTrip(r)
	}

	r2 := r.Clone(r.Context())
	r2.Header.Set("user-agent", t.userAgent)

	return t.next.RoundTrip(r2)
}

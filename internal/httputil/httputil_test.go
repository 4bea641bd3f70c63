package httputil

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedirectReplacesMessages(t *testing.T) {
	type testCase struct {
		name     string
		fn       func(rw http.ResponseWriter, r *http.Request, baseURL, message string)
		baseURL  string
		location string
	}

	for _, tc := range []testCase{
		{"success", RedirectWithSuccess, "/videos", "/videos?success=selected+2+videos"},
		{"error replaces success", RedirectWithError, "/videos?page=2&success=old", "/videos?error=selected+2+videos&page=2"},
		{"information", RedirectWithInformation, "/videos/aaaaaaaaaaa?error=old", "/videos/aaaaaaaaaaa?information=selected+2+videos"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a := assert.New(t)

			rw := httptest.NewRecorder()
			tc.fn(rw, httptest.NewRequest(http.MethodPost, "/videos/select", nil), tc.baseURL, "selected 2 videos")

			a.Equal(http.StatusFound, rw.Code)
			a.Equal(tc.location, rw.Header().Get("location"))
		})
	}
}

func TestReadMessages(t *testing.T) {
	a := assert.New(t)

	m := ReadMessages(httptest.NewRequest(http.MethodGet, "/videos?error=nope&information=hm", nil))
	a.Equal(Messages{Error: "nope", Information: "hm"}, m)
	a.False(m.Empty())

	a.True(ReadMessages(httptest.NewRequest(http.MethodGet, "/videos", nil)).Empty())
}

func TestLocalPath(t *testing.T) {
	type testCase struct {
		input  string
		output string
	}

	for _, tc := range []testCase{
		{"/videos?page=2", "/videos?page=2"},
		{"/videos/aaaaaaaaaaa", "/videos/aaaaaaaaaaa"},
		{"", "/videos"},
		{"videos", "/videos"},
		{"//evil.example.com/", "/videos"},
		{"/\\evil.example.com/", "/videos"},
		{"https://evil.example.com/", "/videos"},
	} {
		t.Run(tc.input, func(t *testing.T) {
			a := assert.New(t)

			a.Equal(tc.output, LocalPath(tc.input, "/videos"))
		})
	}
}

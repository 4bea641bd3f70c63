// Package httputil holds the redirect-with-message convention used by every
// form action: the outcome travels to the next page as a query parameter.
package httputil

import (
	"net/http"
	"net/url"
	"strings"
)

const (
	ParameterError       = "error"
	ParameterSuccess     = "success"
	ParameterInformation = "information"
)

// Messages are the outcome notices shown at the top of a page.
type Messages struct {
	Error       string
	Success     string
	Information string
}

func (m Messages) Empty() bool {
	return m.Error == "" && m.Success == "" && m.Information == ""
}

func ReadMessages(r *http.Request) Messages {
	q := r.URL.Query()

	return Messages{
		Error:       q.Get(ParameterError),
		Success:     q.Get(ParameterSuccess),
		Information: q.Get(ParameterInformation),
	}
}

// messageURL sets one message parameter on baseURL and drops any message
// left over from an earlier redirect.
func messageURL(baseURL, name, value string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		panic(err)
	}

	q := u.Query()
	q.Del(ParameterError)
	q.Del(ParameterSuccess)
	q.Del(ParameterInformation)
	q.Set(name, value)
	u.RawQuery = q.Encode()

	return u.String()
}

func RedirectWithError(rw http.ResponseWriter, r *http.Request, baseURL, message string) {
	http.Redirect(rw, r, messageURL(baseURL, ParameterError, message), http.StatusFound)
}

func RedirectWithSuccess(rw http.ResponseWriter, r *http.Request, baseURL, message string) {
	http.Redirect(rw, r, messageURL(baseURL, ParameterSuccess, message), http.StatusFound)
}

func RedirectWithInformation(rw http.ResponseWriter, r *http.Request, baseURL, message string) {
	http.Redirect(rw, r, messageURL(baseURL, ParameterInformation, message), http.StatusFound)
}

func NotFound(rw http.ResponseWriter, r *http.Request) {
	http.Error(rw, "Not found", http.StatusNotFound)
}

// LocalPath returns s if it is a path on this server, and fallback
// otherwise. Scheme-relative and backslash forms are not local.
func LocalPath(s, fallback string) string {
	if !strings.HasPrefix(s, "/") || strings.HasPrefix(s, "//") || strings.HasPrefix(s, "/\\") {
		return fallback
	}

	u, err := url.Parse(s)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return fallback
	}

	return s
}

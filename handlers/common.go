package handlers

import (
	"net/http"
	"strings"

	"github.com/monoculum/formam"

	"fknsrs.biz/p/ytmentions/internal/ctxsession"
	"fknsrs.biz/p/ytmentions/internal/httputil"
	"fknsrs.biz/p/ytmentions/internal/triage"
)

var decoder = formam.NewDecoder(&formam.DecoderOptions{
	TagName:           "formam",
	IgnoreUnknownKeys: true,
})

// returnTo is where a form action sends the operator afterwards. Only local
// paths are honoured.
func returnTo(r *http.Request) string {
	return httputil.LocalPath(r.PostFormValue("return_to"), "/videos")
}

func mustSession(r *http.Request) *triage.Session {
	s := ctxsession.GetSession(r.Context())
	if s == nil {
		panic("handlers: no session in request context")
	}

	return s
}

// videoIDs collects the ids posted as repeated video_ids fields, dropping
// blanks.
func videoIDs(r *http.Request) []string {
	var a []string

	for _, e := range r.PostForm["video_ids"] {
		if e = strings.TrimSpace(e); e != "" {
			a = append(a, e)
		}
	}

	return a
}

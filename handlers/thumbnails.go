package handlers

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"fknsrs.biz/p/ytmentions/internal/ctxlogger"
	"fknsrs.biz/p/ytmentions/internal/ctxprocessing"
	"fknsrs.biz/p/ytmentions/internal/httpcache"
	"fknsrs.biz/p/ytmentions/internal/httputil"
	"fknsrs.biz/p/ytmentions/internal/ytutil"
)

// Thumbnail proxies a video's preview image through the thumbnail cache.
func Thumbnail(rw http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["video_id"]
	if !ytutil.IsVideoID(id) {
		httputil.NotFound(rw, r)
		return
	}

	c := ctxprocessing.GetClient(r.Context())
	if c == nil {
		panic("handlers.Thumbnail: no processing client in request context")
	}

	var u string
	if snap := mustSession(r).Snapshot(); snap != nil {
		for _, e := range snap.Records {
			if e.VideoID == id {
				u = e.ThumbnailURL
				break
			}
		}
	}

	res, err := c.Thumbnail(r.Context(), id, u)
	if err != nil {
		ctxlogger.GetLogger(r.Context()).WithError(err).WithField("video.id", id).Warn("could not fetch thumbnail")
		http.Error(rw, "thumbnail unavailable", http.StatusBadGateway)
		return
	}
	defer res.Body.Close()

	for _, k := range []string{"content-type", "content-length", "last-modified", httpcache.HeaderCache} {
		if v := res.Header.Get(k); v != "" {
			rw.Header().Set(k, v)
		}
	}
	rw.Header().Set("cache-control", "private, max-age=3600")

	rw.WriteHeader(res.StatusCode)

	if _, err := io.Copy(rw, res.Body); err != nil {
		ctxlogger.GetLogger(r.Context()).WithError(err).Debug("could not copy thumbnail body")
	}
}

package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"fknsrs.biz/p/ytmentions/internal/catalog"
	"fknsrs.biz/p/ytmentions/internal/ctxdb"
	"fknsrs.biz/p/ytmentions/internal/ctxlogger"
	"fknsrs.biz/p/ytmentions/internal/ctxprocessing"
	"fknsrs.biz/p/ytmentions/internal/ctxtemplate"
	"fknsrs.biz/p/ytmentions/internal/filterspec"
	"fknsrs.biz/p/ytmentions/internal/httputil"
	"fknsrs.biz/p/ytmentions/internal/journal"
	"fknsrs.biz/p/ytmentions/internal/model"
	"fknsrs.biz/p/ytmentions/internal/triage"
	"fknsrs.biz/p/ytmentions/internal/ytutil"
)

func Index(rw http.ResponseWriter, r *http.Request) {
	http.Redirect(rw, r, "/videos", http.StatusFound)
}

type videoRow struct {
	model.VideoRecord
	Selected bool
	Eligible bool
}

func rowsOf(s *triage.Session, snap *catalog.Snapshot) []videoRow {
	if snap == nil {
		return nil
	}

	rows := make([]videoRow, len(snap.Records))
	for i, e := range snap.Records {
		rows[i] = videoRow{
			VideoRecord: e,
			Selected:    s.IsSelected(e.VideoID),
			Eligible:    e.IsPending(),
		}
	}

	return rows
}

func Videos(rw http.ResponseWriter, r *http.Request) {
	s := mustSession(r)

	snap := s.Snapshot()
	if snap == nil {
		// first look at this session; failures show up through LastFailure
		if fresh, err := s.Refresh(r.Context()); err == nil {
			snap = fresh
		}
	}

	view := s.View()

	var failure string
	if err := s.LastFailure(); err != nil {
		failure = triage.UserMessage(err)
	}

	if err := ctxtemplate.ExecuteTemplateIntoResponse(r, rw, "page_videos", map[string]interface{}{
		"Snapshot":           snap,
		"Rows":               rowsOf(s, snap),
		"View":               view,
		"Filter":             view.Filter,
		"Selection":          s.Selection(),
		"Job":                s.Job(),
		"LastJob":            s.LastJob(),
		"Failure":            failure,
		"Options":            s.ProcessingOptions(),
		"Operator":           s.Operator(),
		"Statuses":           model.RawStatuses,
		"TranscriptStatuses": model.TranscriptStatuses,
		"SortKeys":           filterspec.SortKeys,
	}); err != nil {
		panic(err)
	}
}

func VideosFilter(rw http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		panic(err)
	}

	var f filterspec.FilterSpec
	if err := decoder.Decode(r.PostForm, &f); err != nil {
		httputil.RedirectWithError(rw, r, "/videos", "That filter is not valid: "+err.Error())
		return
	}

	if _, err := mustSession(r).SetFilter(r.Context(), f); err != nil {
		httputil.RedirectWithError(rw, r, "/videos", triage.UserMessage(err))
		return
	}

	http.Redirect(rw, r, "/videos", http.StatusFound)
}

func VideosFilterClear(rw http.ResponseWriter, r *http.Request) {
	if _, err := mustSession(r).ClearFilter(r.Context()); err != nil {
		httputil.RedirectWithError(rw, r, "/videos", triage.UserMessage(err))
		return
	}

	http.Redirect(rw, r, "/videos", http.StatusFound)
}

func VideosPage(rw http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		panic(err)
	}

	var input struct {
		Page     int `formam:"page"`
		PageSize int `formam:"page_size"`
	}

	if err := decoder.Decode(r.PostForm, &input); err != nil {
		httputil.RedirectWithError(rw, r, "/videos", "Could not read page: "+err.Error())
		return
	}

	if _, err := mustSession(r).SetPage(r.Context(), input.Page, input.PageSize); err != nil {
		httputil.RedirectWithError(rw, r, "/videos", triage.UserMessage(err))
		return
	}

	http.Redirect(rw, r, "/videos", http.StatusFound)
}

func VideosRefresh(rw http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		panic(err)
	}

	if _, err := mustSession(r).Refresh(r.Context()); err != nil {
		httputil.RedirectWithError(rw, r, returnTo(r), triage.UserMessage(err))
		return
	}

	http.Redirect(rw, r, returnTo(r), http.StatusFound)
}

func Video(rw http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["video_id"]
	if !ytutil.IsVideoID(id) {
		httputil.NotFound(rw, r)
		return
	}

	s := mustSession(r)

	var record *model.VideoRecord
	if snap := s.Snapshot(); snap != nil {
		for i := range snap.Records {
			if snap.Records[i].VideoID == id {
				record = &snap.Records[i]
				break
			}
		}
	}

	l := ctxlogger.GetLogger(r.Context()).WithFields(logrus.Fields{"video.id": id})

	data := map[string]interface{}{
		"VideoID":  id,
		"Record":   record,
		"Selected": s.IsSelected(id),
	}

	if c := ctxprocessing.GetClient(r.Context()); c != nil {
		mentions, err := c.ListMentions(r.Context(), id)
		if err != nil {
			l.WithError(err).Warn("could not list mentions")
			data["MentionsError"] = triage.UserMessage(err)
		}
		data["Mentions"] = mentions

		clips, err := c.ListClips(r.Context(), id)
		if err != nil {
			l.WithError(err).Warn("could not list clips")
			data["ClipsError"] = triage.UserMessage(err)
		}
		data["Clips"] = clips
	}

	actions, err := journal.ForVideo(r.Context(), ctxdb.GetDB(r.Context()), id)
	if err != nil {
		panic(err)
	}
	data["Actions"] = actions

	if err := ctxtemplate.ExecuteTemplateIntoResponse(r, rw, "page_video", data); err != nil {
		panic(err)
	}
}

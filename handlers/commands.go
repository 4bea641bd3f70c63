package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"fknsrs.biz/p/ytmentions/internal/ctxdb"
	"fknsrs.biz/p/ytmentions/internal/httputil"
	"fknsrs.biz/p/ytmentions/internal/model"
	"fknsrs.biz/p/ytmentions/internal/stringutil"
	"fknsrs.biz/p/ytmentions/internal/transcriptcheck"
	"fknsrs.biz/p/ytmentions/internal/triage"
)

// VideosSelect asks the service to mark the current selection as selected.
func VideosSelect(rw http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		panic(err)
	}

	s := mustSession(r)

	ids := s.Selection()
	if len(ids) == 0 {
		httputil.RedirectWithError(rw, r, returnTo(r), triage.UserMessage(triage.ErrEmptySelection))
		return
	}

	res, err := s.MarkSelected(r.Context(), ids, strings.TrimSpace(r.PostFormValue("reason")))
	if err != nil {
		httputil.RedirectWithError(rw, r, returnTo(r), triage.UserMessage(err))
		return
	}

	httputil.RedirectWithSuccess(rw, r, returnTo(r), fmt.Sprintf("Marked %s as selected.", stringutil.Count(len(res.Selected), "video")))
}

func VideoSkip(rw http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		panic(err)
	}

	id := mux.Vars(r)["video_id"]

	if err := mustSession(r).Skip(r.Context(), id, strings.TrimSpace(r.PostFormValue("reason"))); err != nil {
		httputil.RedirectWithError(rw, r, returnTo(r), triage.UserMessage(err))
		return
	}

	httputil.RedirectWithSuccess(rw, r, returnTo(r), fmt.Sprintf("Skipped %s.", id))
}

func VideosProcessSelected(rw http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		panic(err)
	}

	res, err := mustSession(r).ProcessSelected(r.Context(), nil)
	if err != nil {
		httputil.RedirectWithError(rw, r, returnTo(r), triage.UserMessage(err))
		return
	}

	httputil.RedirectWithSuccess(rw, r, returnTo(r), fmt.Sprintf("Queued %s for processing.", stringutil.Count(res.Queued, "video")))
}

func VideosProcessReady(rw http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		panic(err)
	}

	res, err := mustSession(r).ProcessReady(r.Context(), nil)
	if err != nil {
		httputil.RedirectWithError(rw, r, returnTo(r), triage.UserMessage(err))
		return
	}

	if res.NothingToProcess {
		httputil.RedirectWithInformation(rw, r, returnTo(r), "No videos are ready for processing.")
		return
	}

	httputil.RedirectWithSuccess(rw, r, returnTo(r), fmt.Sprintf("Queued %s for processing.", stringutil.Count(res.Queued, "ready video")))
}

// VideosCheckTranscripts queues a transcript availability check for each
// posted video, or for the selection when none are posted.
func VideosCheckTranscripts(rw http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		panic(err)
	}

	s := mustSession(r)

	ids := videoIDs(r)
	if len(ids) == 0 {
		ids = s.Selection()
	}

	if len(ids) == 0 {
		httputil.RedirectWithError(rw, r, returnTo(r), triage.UserMessage(triage.ErrEmptySelection))
		return
	}

	languages := s.ProcessingOptions().Languages
	if len(languages) == 0 {
		languages = model.DefaultLanguages
	}

	var n int
	if err := ctxdb.UsingTx(r.Context(), nil, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		n, err = transcriptcheck.Enqueue(ctx, tx, ids, languages)
		return err
	}); err != nil {
		panic(err)
	}

	httputil.RedirectWithSuccess(rw, r, returnTo(r), fmt.Sprintf("%s will be checked for transcripts soon.", stringutil.Count(n, "video")))
}

// Options updates the operator name and the options used for batches.
func Options(rw http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		panic(err)
	}

	var input struct {
		Operator         string  `formam:"operator"`
		UseFuzzyMatching bool    `formam:"use_fuzzy_matching"`
		FuzzyThreshold   float64 `formam:"fuzzy_threshold"`
		EnableSentiment  bool    `formam:"enable_sentiment"`
		Languages        string  `formam:"languages"`
	}

	if err := decoder.Decode(r.PostForm, &input); err != nil {
		httputil.RedirectWithError(rw, r, returnTo(r), "Could not read options: "+err.Error())
		return
	}

	var languages []string
	for _, e := range strings.Split(input.Languages, ",") {
		if e = strings.TrimSpace(e); e != "" {
			languages = append(languages, e)
		}
	}

	s := mustSession(r)

	if err := s.SetProcessingOptions(model.ProcessingOptions{
		UseFuzzyMatching: input.UseFuzzyMatching,
		FuzzyThreshold:   input.FuzzyThreshold,
		EnableSentiment:  input.EnableSentiment,
		Languages:        languages,
	}); err != nil {
		httputil.RedirectWithError(rw, r, returnTo(r), triage.UserMessage(err))
		return
	}

	s.SetOperator(strings.TrimSpace(input.Operator))

	httputil.RedirectWithSuccess(rw, r, returnTo(r), "Options saved.")
}

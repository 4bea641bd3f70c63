package handlers

import (
	"net/http"

	"fknsrs.biz/p/sorm"

	"fknsrs.biz/p/ytmentions/internal/ctxconfig"
	"fknsrs.biz/p/ytmentions/internal/ctxdb"
	"fknsrs.biz/p/ytmentions/internal/ctxtemplate"
	"fknsrs.biz/p/ytmentions/internal/jobqueue"
)

// Jobs lists unfinished background jobs followed by the most recently
// finished ones.
func Jobs(rw http.ResponseWriter, r *http.Request) {
	var pending []jobqueue.Job
	if err := sorm.FindWhere(r.Context(), ctxdb.GetDB(r.Context()), &pending, "where finished_at is null order by id desc limit 500"); err != nil {
		panic(err)
	}

	var finished []jobqueue.Job
	if err := sorm.FindWhere(r.Context(), ctxdb.GetDB(r.Context()), &finished, "where finished_at is not null order by finished_at desc, id desc limit 50"); err != nil {
		panic(err)
	}

	cfg := ctxconfig.GetConfig(r.Context())

	if err := ctxtemplate.ExecuteTemplateIntoResponse(r, rw, "page_jobs", map[string]interface{}{
		"Pending":              pending,
		"Finished":             finished,
		"Workers":              cfg.BackgroundWorkers,
		"TranscriptServiceURL": cfg.TranscriptServiceURL,
	}); err != nil {
		panic(err)
	}
}

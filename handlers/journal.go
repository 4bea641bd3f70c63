package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gost/godata"

	"fknsrs.biz/p/ytmentions/internal/ctxdb"
	"fknsrs.biz/p/ytmentions/internal/ctxtemplate"
	"fknsrs.biz/p/ytmentions/internal/godatautil"
	"fknsrs.biz/p/ytmentions/internal/journal"
	"fknsrs.biz/p/ytmentions/models"
)

// queryOptions keeps only the OData system query options from v.
func queryOptions(v url.Values) url.Values {
	o := url.Values{}

	for k, e := range v {
		if strings.HasPrefix(k, "$") {
			o[k] = e
		}
	}

	return o
}

// Journal lists recorded triage commands. The query string takes OData
// options, for example $filter=Operation eq 'skip'&$top=20.
func Journal(rw http.ResponseWriter, r *http.Request) {
	v := r.URL.Query()

	data := map[string]interface{}{
		"Filter":  v.Get("$filter"),
		"OrderBy": v.Get("$orderby"),
	}

	var (
		actions  []models.TriageAction
		queryErr string
	)

	q, err := godata.ParseUrlQuery(queryOptions(v))
	if err != nil {
		queryErr = "Could not read query: " + err.Error()
	} else if actions, err = journal.Find(r.Context(), ctxdb.GetDB(r.Context()), q); err != nil {
		if !errors.Is(err, godatautil.ErrFieldNotFound) {
			panic(err)
		}

		queryErr = "Unknown field in query: " + err.Error()
	}

	skip, top := godatautil.SkipAndTop(q, 0, journal.DefaultPageSize)

	data["Actions"] = actions
	data["QueryError"] = queryErr
	data["Skip"] = skip
	data["Top"] = top
	data["PrevSkip"] = max(skip-top, 0)
	data["NextSkip"] = skip + top
	data["HasPrev"] = skip > 0
	data["HasNext"] = len(actions) == top

	if err := ctxtemplate.ExecuteTemplateIntoResponse(r, rw, "page_journal", data); err != nil {
		panic(err)
	}
}

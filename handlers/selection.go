package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"fknsrs.biz/p/ytmentions/internal/httputil"
	"fknsrs.biz/p/ytmentions/internal/stringutil"
	"fknsrs.biz/p/ytmentions/internal/ytutil"
)

func SelectionAdd(rw http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		panic(err)
	}

	ids := videoIDs(r)

	added := mustSession(r).AddToSelection(ids)

	if skipped := len(ids) - len(added); skipped > 0 {
		httputil.RedirectWithInformation(rw, r, returnTo(r), fmt.Sprintf("Added %s; %s not pending or already selected.", stringutil.Count(len(added), "video"), stringutil.Count(skipped, "video")))
		return
	}

	http.Redirect(rw, r, returnTo(r), http.StatusFound)
}

func SelectionRemove(rw http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		panic(err)
	}

	mustSession(r).RemoveFromSelection(videoIDs(r))

	http.Redirect(rw, r, returnTo(r), http.StatusFound)
}

func SelectionPage(rw http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		panic(err)
	}

	added := mustSession(r).SelectAllOnPage()

	httputil.RedirectWithInformation(rw, r, returnTo(r), fmt.Sprintf("Added %s from this page.", stringutil.Count(len(added), "video")))
}

func SelectionClear(rw http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		panic(err)
	}

	n := mustSession(r).ClearSelection()

	httputil.RedirectWithInformation(rw, r, returnTo(r), fmt.Sprintf("Cleared %s from the selection.", stringutil.Count(n, "video")))
}

// SelectionPaste adds every video named in a block of pasted links or ids.
// Only videos on the current page that are still pending are added.
func SelectionPaste(rw http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		panic(err)
	}

	var input struct {
		Text    string `formam:"text"`
		Replace bool   `formam:"replace"`
	}

	if err := decoder.Decode(r.PostForm, &input); err != nil {
		httputil.RedirectWithError(rw, r, returnTo(r), "Could not read input: "+err.Error())
		return
	}

	ids, rejected := ytutil.ExtractVideoIDs(input.Text)
	if len(ids) == 0 {
		httputil.RedirectWithError(rw, r, returnTo(r), "No video links or ids found in input.")
		return
	}

	s := mustSession(r)

	var added []string
	if input.Replace {
		added = s.ReplaceSelection(ids)
	} else {
		added = s.AddToSelection(ids)
	}

	msg := fmt.Sprintf("Added %s to the selection", stringutil.Count(len(added), "video"))
	if n := len(ids) - len(added); n > 0 {
		msg += fmt.Sprintf("; %s not pending on this page", stringutil.Count(n, "video"))
	}
	if len(rejected) > 0 {
		msg += fmt.Sprintf("; could not read %s", strings.Join(rejected, ", "))
	}

	httputil.RedirectWithInformation(rw, r, returnTo(r), msg+".")
}

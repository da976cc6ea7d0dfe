package api

import "net/http"

func (a *API) summary(w http.ResponseWriter, r *http.Request) {
	opts, err := listOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s, err := a.t.Summary(r.Context(), opts)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *API) reconcile(w http.ResponseWriter, r *http.Request) {
	ds, err := a.t.Reconcile(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

package handlers

import "net/http"

func (r *Router) dashboard(w http.ResponseWriter, req *http.Request) {
	summary, err := r.svc.Analytics.Dashboard(req.Context(), actor(req))
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	respondData(w, http.StatusOK, summary)
}

func (r *Router) adminStats(w http.ResponseWriter, req *http.Request) {
	stats, err := r.svc.Analytics.AdminStats(req.Context())
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	respondData(w, http.StatusOK, stats)
}

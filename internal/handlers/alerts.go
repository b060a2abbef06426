package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/models"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/service"
)

var transitionMessages = map[models.AlertStatus]string{
	models.AlertStatusAcknowledged: "Alert acknowledged",
	models.AlertStatusResolved:     "Alert resolved successfully",
	models.AlertStatusDismissed:    "Alert dismissed",
}

func (r *Router) listAlerts(w http.ResponseWriter, req *http.Request) {
	limit, err := queryInt(req, "limit")
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	q := req.URL.Query()
	filter := service.AlertFilter{
		DeviceID: firstQuery(req, "deviceId", "device_id"),
		Status:   models.AlertStatus(q.Get("status")),
		Severity: models.AlertSeverity(q.Get("severity")),
		Limit:    limit,
	}
	if raw := q.Get("resolved"); raw != "" {
		resolved, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "resolved must be true or false")
			return
		}
		filter.Resolved = &resolved
	}

	alerts, err := r.svc.Alerts.List(req.Context(), actor(req), filter)
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	respondList(w, alerts, len(alerts))
}

func (r *Router) unresolvedAlerts(w http.ResponseWriter, req *http.Request) {
	alerts, err := r.svc.Alerts.Unresolved(req.Context(), actor(req))
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	respondList(w, alerts, len(alerts))
}

func (r *Router) deviceAlerts(w http.ResponseWriter, req *http.Request) {
	limit, err := queryInt(req, "limit")
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	alerts, err := r.svc.Alerts.ByDevice(req.Context(), actor(req), mux.Vars(req)["deviceId"], limit)
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	respondList(w, alerts, len(alerts))
}

func (r *Router) getAlert(w http.ResponseWriter, req *http.Request) {
	alert, err := r.svc.Alerts.Get(req.Context(), actor(req), mux.Vars(req)["id"])
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	respondData(w, http.StatusOK, alert)
}

func (r *Router) createAlert(w http.ResponseWriter, req *http.Request) {
	var in service.AlertInput
	if err := decodeJSON(req, &in); err != nil {
		r.handleError(w, req, err)
		return
	}
	alert, err := r.svc.Alerts.Create(req.Context(), actor(req), in)
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	respondJSON(w, http.StatusCreated, envelope{Success: true, Message: "Alert created successfully", Data: alert})
}

func (r *Router) updateAlert(w http.ResponseWriter, req *http.Request) {
	var in service.AlertUpdate
	if err := decodeJSON(req, &in); err != nil {
		r.handleError(w, req, err)
		return
	}
	alert, err := r.svc.Alerts.Update(req.Context(), actor(req), mux.Vars(req)["id"], in)
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, envelope{Success: true, Message: "Alert updated successfully", Data: alert})
}

func (r *Router) deleteAlert(w http.ResponseWriter, req *http.Request) {
	if err := r.svc.Alerts.Delete(req.Context(), actor(req), mux.Vars(req)["id"]); err != nil {
		r.handleError(w, req, err)
		return
	}
	respondMessage(w, "Alert deleted successfully")
}

// transitionAlert moves an alert to next
func (r *Router) transitionAlert(next models.AlertStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		alert, err := r.svc.Alerts.Transition(req.Context(), actor(req), mux.Vars(req)["id"], next)
		if err != nil {
			r.handleError(w, req, err)
			return
		}
		respondJSON(w, http.StatusOK, envelope{Success: true, Message: transitionMessages[next], Data: alert})
	}
}

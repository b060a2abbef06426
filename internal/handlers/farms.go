package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/service"
)

func (r *Router) listFarms(w http.ResponseWriter, req *http.Request) {
	farms, err := r.svc.Farms.List(req.Context(), actor(req))
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	respondList(w, farms, len(farms))
}

func (r *Router) getFarm(w http.ResponseWriter, req *http.Request) {
	farm, err := r.svc.Farms.Get(req.Context(), actor(req), mux.Vars(req)["id"])
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	respondData(w, http.StatusOK, farm)
}

func (r *Router) createFarm(w http.ResponseWriter, req *http.Request) {
	var in service.FarmInput
	if err := decodeJSON(req, &in); err != nil {
		r.handleError(w, req, err)
		return
	}
	farm, err := r.svc.Farms.Create(req.Context(), actor(req), in)
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	respondJSON(w, http.StatusCreated, envelope{Success: true, Message: "Farm created successfully", Data: farm})
}

func (r *Router) updateFarm(w http.ResponseWriter, req *http.Request) {
	var in service.FarmInput
	if err := decodeJSON(req, &in); err != nil {
		r.handleError(w, req, err)
		return
	}
	farm, err := r.svc.Farms.Update(req.Context(), actor(req), mux.Vars(req)["id"], in)
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, envelope{Success: true, Message: "Farm updated successfully", Data: farm})
}

func (r *Router) deleteFarm(w http.ResponseWriter, req *http.Request) {
	if err := r.svc.Farms.Delete(req.Context(), actor(req), mux.Vars(req)["id"]); err != nil {
		r.handleError(w, req, err)
		return
	}
	respondMessage(w, "Farm deleted successfully")
}

func (r *Router) listFarmDevices(w http.ResponseWriter, req *http.Request) {
	devices, err := r.svc.Farms.Devices(req.Context(), actor(req), mux.Vars(req)["id"])
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	respondList(w, devices, len(devices))
}

func (r *Router) farmStatistics(w http.ResponseWriter, req *http.Request) {
	stats, err := r.svc.Farms.Statistics(req.Context(), actor(req), mux.Vars(req)["id"])
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	respondData(w, http.StatusOK, stats)
}

package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/models"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/service"
)

func (r *Router) listUsers(w http.ResponseWriter, req *http.Request) {
	page, err := queryInt(req, "page")
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	limit, err := queryInt(req, "limit")
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	q := req.URL.Query()
	users, pagination, err := r.svc.Users.List(req.Context(), service.UserFilter{
		Role:   models.Role(q.Get("role")),
		Search: q.Get("search"),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	count := len(users)
	respondJSON(w, http.StatusOK, envelope{Success: true, Data: users, Count: &count, Pagination: &pagination})
}

func (r *Router) getUser(w http.ResponseWriter, req *http.Request) {
	user, err := r.svc.Users.Get(req.Context(), mux.Vars(req)["id"])
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	respondData(w, http.StatusOK, user)
}

func (r *Router) createUser(w http.ResponseWriter, req *http.Request) {
	var in service.CreateUserInput
	if err := decodeJSON(req, &in); err != nil {
		r.handleError(w, req, err)
		return
	}
	user, err := r.svc.Users.Create(req.Context(), in)
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	respondJSON(w, http.StatusCreated, envelope{Success: true, Message: "User created successfully", Data: user})
}

func (r *Router) updateUser(w http.ResponseWriter, req *http.Request) {
	var in service.UpdateUserInput
	if err := decodeJSON(req, &in); err != nil {
		r.handleError(w, req, err)
		return
	}
	user, err := r.svc.Users.Update(req.Context(), mux.Vars(req)["id"], in)
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, envelope{Success: true, Message: "User updated successfully", Data: user})
}

func (r *Router) deleteUser(w http.ResponseWriter, req *http.Request) {
	if err := r.svc.Users.Delete(req.Context(), actor(req), mux.Vars(req)["id"]); err != nil {
		r.handleError(w, req, err)
		return
	}
	respondMessage(w, "User deleted successfully")
}

func (r *Router) toggleUserStatus(w http.ResponseWriter, req *http.Request) {
	user, err := r.svc.Users.ToggleStatus(req.Context(), actor(req), mux.Vars(req)["id"])
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	message := "User deactivated successfully"
	if user.IsActive {
		message = "User activated successfully"
	}
	respondJSON(w, http.StatusOK, envelope{Success: true, Message: message, Data: user})
}

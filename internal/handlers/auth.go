package handlers

import (
	"net/http"

	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/models"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/service"
)

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// authPayload is returned by register and login
type authPayload struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

// register handles self sign-up
func (r *Router) register(w http.ResponseWriter, req *http.Request) {
	var in service.RegisterInput
	if err := decodeJSON(req, &in); err != nil {
		r.handleError(w, req, err)
		return
	}

	user, token, err := r.svc.Auth.Register(req.Context(), in)
	if err != nil {
		r.handleError(w, req, err)
		return
	}

	respondJSON(w, http.StatusCreated, envelope{
		Success: true,
		Message: "User registered successfully",
		Data:    authPayload{User: user, Token: token},
	})
}

// login handles user login
func (r *Router) login(w http.ResponseWriter, req *http.Request) {
	var loginReq LoginRequest
	if err := decodeJSON(req, &loginReq); err != nil {
		r.handleError(w, req, err)
		return
	}
	if loginReq.Email == "" || loginReq.Password == "" {
		respondError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	user, token, err := r.svc.Auth.Login(req.Context(), loginReq.Email, loginReq.Password)
	if err != nil {
		r.handleError(w, req, err)
		return
	}

	respondJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Login successful",
		Data:    authPayload{User: user, Token: token},
	})
}

// me returns the authenticated user with their farm
func (r *Router) me(w http.ResponseWriter, req *http.Request) {
	user, err := r.svc.Auth.Me(req.Context(), actor(req).UserID)
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	respondData(w, http.StatusOK, user)
}

// logout is stateless; the client drops its token
func (r *Router) logout(w http.ResponseWriter, req *http.Request) {
	respondMessage(w, "Logged out successfully")
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/apperr"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/buildinfo"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/middleware"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/models"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/service"
)

// maxBodyBytes bounds every JSON request body
const maxBodyBytes = 1 << 20

// AuthService signs users in and resolves tokens
type AuthService interface {
	Register(ctx context.Context, in service.RegisterInput) (*models.User, string, error)
	Login(ctx context.Context, email, password string) (*models.User, string, error)
	Me(ctx context.Context, userID string) (*models.User, error)
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

// UserService is the admin user directory
type UserService interface {
	List(ctx context.Context, f service.UserFilter) ([]models.User, service.Pagination, error)
	Get(ctx context.Context, id string) (*service.UserDetail, error)
	Create(ctx context.Context, in service.CreateUserInput) (*models.User, error)
	Update(ctx context.Context, id string, in service.UpdateUserInput) (*models.User, error)
	Delete(ctx context.Context, actor service.Actor, id string) error
	ToggleStatus(ctx context.Context, actor service.Actor, id string) (*models.User, error)
}

// FarmService manages farms
type FarmService interface {
	List(ctx context.Context, actor service.Actor) ([]service.FarmSummary, error)
	Get(ctx context.Context, actor service.Actor, id string) (*models.Farm, error)
	Create(ctx context.Context, actor service.Actor, in service.FarmInput) (*models.Farm, error)
	Update(ctx context.Context, actor service.Actor, id string, in service.FarmInput) (*models.Farm, error)
	Delete(ctx context.Context, actor service.Actor, id string) error
	Devices(ctx context.Context, actor service.Actor, id string) ([]models.Device, error)
	Statistics(ctx context.Context, actor service.Actor, id string) (*service.FarmStatistics, error)
}

// DeviceService manages devices and their configuration
type DeviceService interface {
	List(ctx context.Context, actor service.Actor, f service.DeviceFilter) ([]models.Device, error)
	Get(ctx context.Context, actor service.Actor, id string) (*models.Device, error)
	Create(ctx context.Context, actor service.Actor, in service.DeviceInput) (*models.Device, error)
	Update(ctx context.Context, actor service.Actor, id string, in service.DeviceInput) (*models.Device, error)
	UpdateStatus(ctx context.Context, actor service.Actor, id string, status models.DeviceStatus) (*models.Device, error)
	GetConfiguration(ctx context.Context, actor service.Actor, id string) (*models.DeviceConfiguration, error)
	UpdateConfiguration(ctx context.Context, actor service.Actor, id string, in service.ConfigurationInput) (*models.DeviceConfiguration, error)
	Delete(ctx context.Context, actor service.Actor, id string) error
	Logs(ctx context.Context, actor service.Actor, id, event string, limit int) ([]models.SystemLog, error)
}

// IngestionService accepts sensor readings
type IngestionService interface {
	Ingest(ctx context.Context, deviceID string, raw map[string]interface{}, source string) (*service.IngestionResult, error)
}

// ReadingService queries stored readings
type ReadingService interface {
	Latest(ctx context.Context, actor service.Actor) ([]models.SensorReading, error)
	DeviceLatest(ctx context.Context, actor service.Actor, deviceID string) (*models.SensorReading, error)
	History(ctx context.Context, actor service.Actor, deviceID string, q service.HistoryQuery) ([]models.SensorReading, error)
	Export(ctx context.Context, actor service.Actor, deviceID string, q service.HistoryQuery) (*models.Device, []models.SensorReading, error)
	Aggregate(ctx context.Context, actor service.Actor, deviceID, aggregation string, q service.HistoryQuery) (*service.AggregateResult, error)
}

// AlertService handles alert triage
type AlertService interface {
	List(ctx context.Context, actor service.Actor, f service.AlertFilter) ([]models.Alert, error)
	Unresolved(ctx context.Context, actor service.Actor) ([]models.Alert, error)
	ByDevice(ctx context.Context, actor service.Actor, deviceID string, limit int) ([]models.Alert, error)
	Get(ctx context.Context, actor service.Actor, id string) (*models.Alert, error)
	Create(ctx context.Context, actor service.Actor, in service.AlertInput) (*models.Alert, error)
	Update(ctx context.Context, actor service.Actor, id string, in service.AlertUpdate) (*models.Alert, error)
	Transition(ctx context.Context, actor service.Actor, id string, next models.AlertStatus) (*models.Alert, error)
	Delete(ctx context.Context, actor service.Actor, id string) error
}

// AnalyticsService builds dashboard summaries
type AnalyticsService interface {
	Dashboard(ctx context.Context, actor service.Actor) (*service.Dashboard, error)
	AdminStats(ctx context.Context) (*service.AdminStats, error)
}

// Services are the dependencies of the HTTP API
type Services struct {
	Auth      AuthService
	Users     UserService
	Farms     FarmService
	Devices   DeviceService
	Ingestion IngestionService
	Readings  ReadingService
	Alerts    AlertService
	Analytics AnalyticsService

	// Realtime serves the WebSocket endpoint. Nil leaves /ws unrouted.
	Realtime http.Handler
	// PublicURL prefixes the provisioning links encoded in device QR codes
	PublicURL string
}

// Router wraps the mux router and the services behind it
type Router struct {
	*mux.Router
	svc Services
	log *zap.Logger
	now func() time.Time
}

// NewRouter creates a new HTTP router with all routes
func NewRouter(svc Services, log *zap.Logger) *Router {
	r := &Router{
		Router: mux.NewRouter(),
		svc:    svc,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
	r.NotFoundHandler = http.HandlerFunc(r.notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(r.methodNotAllowed)

	// Health check endpoint
	r.HandleFunc("/health", r.healthCheck).Methods("GET")
	if svc.Realtime != nil {
		r.Handle("/ws", svc.Realtime)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", r.healthCheck).Methods("GET")

	// Public routes
	api.HandleFunc("/auth/register", r.register).Methods("POST")
	api.HandleFunc("/auth/login", r.login).Methods("POST")
	api.HandleFunc("/sensor-data", r.ingestReading).Methods("POST")

	// Session routes stay open to viewers whatever the method
	session := api.PathPrefix("/auth").Subrouter()
	session.Use(middleware.Auth(svc.Auth))
	session.HandleFunc("/me", r.me).Methods("GET")
	session.HandleFunc("/logout", r.logout).Methods("POST")

	protected := api.NewRoute().Subrouter()
	protected.Use(middleware.Auth(svc.Auth), middleware.ReadOnlyViewers)

	// User administration (admin only)
	users := protected.PathPrefix("/users").Subrouter()
	users.Use(middleware.RequireRole(models.RoleAdmin))
	users.HandleFunc("", r.listUsers).Methods("GET")
	users.HandleFunc("", r.createUser).Methods("POST")
	users.HandleFunc("/{id}", r.getUser).Methods("GET")
	users.HandleFunc("/{id}", r.updateUser).Methods("PUT")
	users.HandleFunc("/{id}", r.deleteUser).Methods("DELETE")
	users.HandleFunc("/{id}/toggle-status", r.toggleUserStatus).Methods("PATCH")

	// Farms
	farms := protected.PathPrefix("/farms").Subrouter()
	farms.HandleFunc("", r.listFarms).Methods("GET")
	farms.HandleFunc("", r.createFarm).Methods("POST")
	farms.HandleFunc("/{id}", r.getFarm).Methods("GET")
	farms.HandleFunc("/{id}", r.updateFarm).Methods("PUT")
	farms.HandleFunc("/{id}", r.deleteFarm).Methods("DELETE")
	farms.HandleFunc("/{id}/devices", r.listFarmDevices).Methods("GET")
	farms.HandleFunc("/{id}/statistics", r.farmStatistics).Methods("GET")

	// Devices
	devices := protected.PathPrefix("/devices").Subrouter()
	devices.HandleFunc("", r.listDevices).Methods("GET")
	devices.HandleFunc("", r.createDevice).Methods("POST")
	devices.HandleFunc("/labels", r.deviceLabelSheet).Methods("POST")
	devices.HandleFunc("/{id}", r.getDevice).Methods("GET")
	devices.HandleFunc("/{id}", r.updateDevice).Methods("PUT")
	devices.HandleFunc("/{id}", r.deleteDevice).Methods("DELETE")
	devices.HandleFunc("/{id}/status", r.updateDeviceStatus).Methods("PATCH", "PUT")
	devices.HandleFunc("/{id}/configuration", r.getDeviceConfiguration).Methods("GET")
	devices.HandleFunc("/{id}/configuration", r.updateDeviceConfiguration).Methods("PUT")
	devices.HandleFunc("/{id}/logs", r.deviceLogs).Methods("GET")
	devices.HandleFunc("/{id}/qrcode", r.deviceQRCode).Methods("GET")
	devices.HandleFunc("/{id}/label", r.deviceLabel).Methods("GET")

	// Sensor data queries
	readings := protected.PathPrefix("/sensor-data").Subrouter()
	readings.HandleFunc("/latest", r.latestReadings).Methods("GET")
	readings.HandleFunc("/{deviceId}/latest", r.deviceLatestReading).Methods("GET")
	readings.HandleFunc("/{deviceId}/history", r.readingHistory).Methods("GET")
	readings.HandleFunc("/{deviceId}/aggregate", r.readingAggregate).Methods("GET")
	readings.HandleFunc("/{deviceId}/export", r.exportReadings).Methods("GET")

	// Alerts
	alerts := protected.PathPrefix("/alerts").Subrouter()
	alerts.HandleFunc("", r.listAlerts).Methods("GET")
	alerts.HandleFunc("", r.createAlert).Methods("POST")
	alerts.HandleFunc("/unresolved", r.unresolvedAlerts).Methods("GET")
	alerts.HandleFunc("/device/{deviceId}", r.deviceAlerts).Methods("GET")
	alerts.HandleFunc("/{id}", r.getAlert).Methods("GET")
	alerts.HandleFunc("/{id}", r.updateAlert).Methods("PUT")
	alerts.HandleFunc("/{id}", r.deleteAlert).Methods("DELETE")
	alerts.HandleFunc("/{id}/acknowledge", r.transitionAlert(models.AlertStatusAcknowledged)).Methods("PATCH", "PUT")
	alerts.HandleFunc("/{id}/resolve", r.transitionAlert(models.AlertStatusResolved)).Methods("PATCH", "PUT")
	alerts.HandleFunc("/{id}/dismiss", r.transitionAlert(models.AlertStatusDismissed)).Methods("PATCH", "PUT")

	// Analytics
	analytics := protected.PathPrefix("/analytics").Subrouter()
	analytics.HandleFunc("/dashboard", r.dashboard).Methods("GET")
	analytics.Handle("/admin/stats",
		middleware.RequireRole(models.RoleAdmin)(http.HandlerFunc(r.adminStats))).Methods("GET")

	return r
}

// healthCheck returns the health status of the API
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	now := r.now()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"status":    "ok",
		"timestamp": now,
		"build":     buildinfo.Current(now),
	})
}

func (r *Router) notFound(w http.ResponseWriter, req *http.Request) {
	respondError(w, http.StatusNotFound, "Route "+req.Method+" "+req.URL.Path+" not found")
}

func (r *Router) methodNotAllowed(w http.ResponseWriter, req *http.Request) {
	respondError(w, http.StatusMethodNotAllowed, "Method "+req.Method+" not allowed on "+req.URL.Path)
}

// envelope is the body of every JSON response
type envelope struct {
	Success    bool                `json:"success"`
	Message    string              `json:"message,omitempty"`
	Data       interface{}         `json:"data,omitempty"`
	Count      *int                `json:"count,omitempty"`
	Token      string              `json:"token,omitempty"`
	Pagination *service.Pagination `json:"pagination,omitempty"`
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondData sends a successful envelope around data
func respondData(w http.ResponseWriter, status int, data interface{}) {
	respondJSON(w, status, envelope{Success: true, Data: data})
}

// respondList sends a successful envelope with the item count
func respondList(w http.ResponseWriter, data interface{}, count int) {
	respondJSON(w, http.StatusOK, envelope{Success: true, Data: data, Count: &count})
}

// respondMessage sends a successful envelope with only a message
func respondMessage(w http.ResponseWriter, message string) {
	respondJSON(w, http.StatusOK, envelope{Success: true, Message: message})
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, envelope{Success: false, Message: message})
}

// handleError maps err to its status and logs anything unexpected
func (r *Router) handleError(w http.ResponseWriter, req *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		r.log.Error("request failed",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Error(err))
	}
	respondError(w, status, apperr.PublicMessage(err))
}

// decodeJSON reads a JSON body into dst
func decodeJSON(req *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(req.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("Request body is required")
		}
		return apperr.Validation("Invalid request payload")
	}
	return nil
}

// actor returns the authenticated caller. Routes behind Auth always have one.
func actor(req *http.Request) service.Actor {
	user, ok := middleware.UserFromContext(req.Context())
	if !ok {
		return service.Actor{}
	}
	return service.ActorFor(user)
}

// queryInt parses an optional integer query parameter; absent means 0
func queryInt(req *http.Request, key string) (int, error) {
	raw := strings.TrimSpace(req.URL.Query().Get(key))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperr.Validation("%s must be a non-negative integer", key)
	}
	return n, nil
}

// firstQuery returns the first non-empty value among keys
func firstQuery(req *http.Request, keys ...string) string {
	q := req.URL.Query()
	for _, k := range keys {
		if v := strings.TrimSpace(q.Get(k)); v != "" {
			return v
		}
	}
	return ""
}

package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/apperr"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/export"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/ingest"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/models"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/service"
)

// ingestReading accepts a reading posted by a device. It is unauthenticated;
// the device must already be registered.
func (r *Router) ingestReading(w http.ResponseWriter, req *http.Request) {
	var raw map[string]interface{}
	dec := json.NewDecoder(io.LimitReader(req.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			respondError(w, http.StatusBadRequest, "Request body is required")
			return
		}
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	deviceID := ingest.DeviceIDFrom(raw)
	if deviceID == "" {
		respondError(w, http.StatusBadRequest, "device_id is required")
		return
	}

	res, err := r.svc.Ingestion.Ingest(req.Context(), deviceID, raw, models.SourceHTTP)
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	respondJSON(w, http.StatusCreated, envelope{Success: true, Message: "Sensor data saved successfully", Data: res})
}

func (r *Router) latestReadings(w http.ResponseWriter, req *http.Request) {
	readings, err := r.svc.Readings.Latest(req.Context(), actor(req))
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	respondList(w, readings, len(readings))
}

func (r *Router) deviceLatestReading(w http.ResponseWriter, req *http.Request) {
	reading, err := r.svc.Readings.DeviceLatest(req.Context(), actor(req), mux.Vars(req)["deviceId"])
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	respondData(w, http.StatusOK, reading)
}

func (r *Router) readingHistory(w http.ResponseWriter, req *http.Request) {
	q, err := historyQuery(req)
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	readings, err := r.svc.Readings.History(req.Context(), actor(req), mux.Vars(req)["deviceId"], q)
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	respondList(w, readings, len(readings))
}

func (r *Router) readingAggregate(w http.ResponseWriter, req *http.Request) {
	q, err := historyQuery(req)
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	result, err := r.svc.Readings.Aggregate(req.Context(), actor(req), mux.Vars(req)["deviceId"],
		firstQuery(req, "aggregation", "interval"), q)
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	respondData(w, http.StatusOK, result)
}

// exportReadings downloads a device's readings as CSV or XLSX
func (r *Router) exportReadings(w http.ResponseWriter, req *http.Request) {
	format, err := export.ParseFormat(req.URL.Query().Get("format"))
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	q, err := historyQuery(req)
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	device, readings, err := r.svc.Readings.Export(req.Context(), actor(req), mux.Vars(req)["deviceId"], q)
	if err != nil {
		r.handleError(w, req, err)
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, format, readings); err != nil {
		r.handleError(w, req, apperr.Internal(err, "write export"))
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", export.Filename(device.DeviceID, format, r.now())))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Write(buf.Bytes())
}

// historyQuery reads the window and limit shared by history, aggregate and export
func historyQuery(req *http.Request) (service.HistoryQuery, error) {
	limit, err := queryInt(req, "limit")
	if err != nil {
		return service.HistoryQuery{}, err
	}
	return service.HistoryQuery{
		Range:     firstQuery(req, "range"),
		StartDate: firstQuery(req, "startDate", "start_date"),
		EndDate:   firstQuery(req, "endDate", "end_date"),
		Limit:     limit,
	}, nil
}

package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/apperr"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/models"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/service"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/services/printer"
)

// maxLabelsPerSheet bounds one label PDF request
const maxLabelsPerSheet = 200

// DeviceStatusRequest changes a device's operational status
type DeviceStatusRequest struct {
	Status models.DeviceStatus `json:"status"`
}

// LabelSheetRequest prints QR labels for several devices
type LabelSheetRequest struct {
	DeviceIDs []string             `json:"device_ids"`
	Layout    *printer.LabelConfig `json:"layout"`
}

func (r *Router) listDevices(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	devices, err := r.svc.Devices.List(req.Context(), actor(req), service.DeviceFilter{
		FarmID: firstQuery(req, "farmId", "farm_id"),
		Status: models.DeviceStatus(q.Get("status")),
	})
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	respondList(w, devices, len(devices))
}

func (r *Router) getDevice(w http.ResponseWriter, req *http.Request) {
	device, err := r.svc.Devices.Get(req.Context(), actor(req), mux.Vars(req)["id"])
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	respondData(w, http.StatusOK, device)
}

func (r *Router) createDevice(w http.ResponseWriter, req *http.Request) {
	var in service.DeviceInput
	if err := decodeJSON(req, &in); err != nil {
		r.handleError(w, req, err)
		return
	}
	device, err := r.svc.Devices.Create(req.Context(), actor(req), in)
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	respondJSON(w, http.StatusCreated, envelope{Success: true, Message: "Device created successfully", Data: device})
}

func (r *Router) updateDevice(w http.ResponseWriter, req *http.Request) {
	var in service.DeviceInput
	if err := decodeJSON(req, &in); err != nil {
		r.handleError(w, req, err)
		return
	}
	device, err := r.svc.Devices.Update(req.Context(), actor(req), mux.Vars(req)["id"], in)
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, envelope{Success: true, Message: "Device updated successfully", Data: device})
}

func (r *Router) updateDeviceStatus(w http.ResponseWriter, req *http.Request) {
	var body DeviceStatusRequest
	if err := decodeJSON(req, &body); err != nil {
		r.handleError(w, req, err)
		return
	}
	device, err := r.svc.Devices.UpdateStatus(req.Context(), actor(req), mux.Vars(req)["id"], body.Status)
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, envelope{Success: true, Message: "Device status updated", Data: device})
}

func (r *Router) deleteDevice(w http.ResponseWriter, req *http.Request) {
	if err := r.svc.Devices.Delete(req.Context(), actor(req), mux.Vars(req)["id"]); err != nil {
		r.handleError(w, req, err)
		return
	}
	respondMessage(w, "Device deleted successfully")
}

func (r *Router) getDeviceConfiguration(w http.ResponseWriter, req *http.Request) {
	cfg, err := r.svc.Devices.GetConfiguration(req.Context(), actor(req), mux.Vars(req)["id"])
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	respondData(w, http.StatusOK, cfg)
}

func (r *Router) updateDeviceConfiguration(w http.ResponseWriter, req *http.Request) {
	var in service.ConfigurationInput
	if err := decodeJSON(req, &in); err != nil {
		r.handleError(w, req, err)
		return
	}
	cfg, err := r.svc.Devices.UpdateConfiguration(req.Context(), actor(req), mux.Vars(req)["id"], in)
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, envelope{Success: true, Message: "Configuration updated successfully", Data: cfg})
}

func (r *Router) deviceLogs(w http.ResponseWriter, req *http.Request) {
	limit, err := queryInt(req, "limit")
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	logs, err := r.svc.Devices.Logs(req.Context(), actor(req), mux.Vars(req)["id"], req.URL.Query().Get("event"), limit)
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	respondList(w, logs, len(logs))
}

// deviceQRCode returns the provisioning QR code as a PNG
func (r *Router) deviceQRCode(w http.ResponseWriter, req *http.Request) {
	device, err := r.svc.Devices.Get(req.Context(), actor(req), mux.Vars(req)["id"])
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	size, err := queryInt(req, "size")
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	if size > 1024 {
		size = 1024
	}

	png, err := printer.QRCodePNG(printer.ProvisioningURL(r.svc.PublicURL, device.DeviceID), size)
	if err != nil {
		r.handleError(w, req, apperr.Internal(err, "encode qr"))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.Write(png)
}

// deviceLabel returns a printable PDF label for one device
func (r *Router) deviceLabel(w http.ResponseWriter, req *http.Request) {
	device, err := r.svc.Devices.Get(req.Context(), actor(req), mux.Vars(req)["id"])
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	r.writeLabels(w, req, printer.SingleLabelConfig(), []*models.Device{device},
		fmt.Sprintf("label_%s.pdf", device.DeviceID))
}

// deviceLabelSheet prints labels for several devices on A4 sheets
func (r *Router) deviceLabelSheet(w http.ResponseWriter, req *http.Request) {
	var body LabelSheetRequest
	if err := decodeJSON(req, &body); err != nil {
		r.handleError(w, req, err)
		return
	}
	if len(body.DeviceIDs) == 0 {
		respondError(w, http.StatusBadRequest, "device_ids is required")
		return
	}
	if len(body.DeviceIDs) > maxLabelsPerSheet {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("At most %d labels per request", maxLabelsPerSheet))
		return
	}

	devices := make([]*models.Device, 0, len(body.DeviceIDs))
	for _, id := range body.DeviceIDs {
		device, err := r.svc.Devices.Get(req.Context(), actor(req), id)
		if err != nil {
			r.handleError(w, req, err)
			return
		}
		devices = append(devices, device)
	}

	layout := printer.DefaultLabelConfig()
	if body.Layout != nil {
		layout = *body.Layout
	}
	r.writeLabels(w, req, layout, devices, fmt.Sprintf("labels_%d.pdf", len(devices)))
}

func (r *Router) writeLabels(w http.ResponseWriter, req *http.Request, layout printer.LabelConfig, devices []*models.Device, filename string) {
	labels := make([]printer.DeviceLabel, 0, len(devices))
	for _, d := range devices {
		label := printer.DeviceLabel{
			DeviceID:   d.DeviceID,
			DeviceName: d.DeviceName,
			QRContent:  printer.ProvisioningURL(r.svc.PublicURL, d.DeviceID),
		}
		if d.Farm != nil {
			label.FarmName = d.Farm.FarmName
		}
		labels = append(labels, label)
	}

	pdfBytes, err := printer.GenerateLabelsPDF(layout, labels)
	if err != nil {
		r.handleError(w, req, apperr.Internal(err, "generate labels"))
		return
	}

	// Set headers for download
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(pdfBytes)))
	w.Write(pdfBytes)
}

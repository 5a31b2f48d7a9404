package transport

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	api "github.com/sensorhub/sensorhub/api/v1alpha1"
	"github.com/sensorhub/sensorhub/internal/sherrors"
)

// (POST /devices)
func (h *TransportHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("idempotency-key") == "" {
		SetErrorResponse(w, fmt.Errorf("%w: idempotency-key header is required", sherrors.ErrInvalid))
		return
	}

	var registration api.DeviceRegistration
	if err := json.NewDecoder(r.Body).Decode(&registration); err != nil {
		SetParseFailureResponse(w, err)
		return
	}
	if errs := registration.Validate(); len(errs) > 0 {
		SetValidationFailureResponse(w, errs)
		return
	}

	device, err := h.serviceHandler.RegisterDevice(r.Context(), registration)
	if err != nil {
		SetErrorResponse(w, err)
		return
	}
	WriteJSONResponse(w, device, http.StatusCreated)
}

// (GET /devices)
func (h *TransportHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	groupID := r.URL.Query().Get("group_id")
	limit := queryIntParam(r, "limit", defaultListLimit)

	devices, err := h.serviceHandler.ListDevices(r.Context(), groupID, limit)
	if err != nil {
		SetErrorResponse(w, err)
		return
	}
	WriteJSONResponse(w, devices, http.StatusOK)
}

// (GET /devices/{deviceId})
func (h *TransportHandler) GetDevice(w http.ResponseWriter, r *http.Request) {
	device, err := h.serviceHandler.GetDevice(r.Context(), chi.URLParam(r, "deviceId"))
	if err != nil {
		SetErrorResponse(w, err)
		return
	}
	WriteJSONResponse(w, device, http.StatusOK)
}

// (PATCH /devices/{deviceId})
func (h *TransportHandler) UpdateDevice(w http.ResponseWriter, r *http.Request) {
	var updates api.DeviceUpdate
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		SetParseFailureResponse(w, err)
		return
	}

	device, err := h.serviceHandler.UpdateDevice(r.Context(), chi.URLParam(r, "deviceId"), updates)
	if err != nil {
		SetErrorResponse(w, err)
		return
	}
	WriteJSONResponse(w, device, http.StatusOK)
}

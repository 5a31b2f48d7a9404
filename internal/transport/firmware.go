package transport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	api "github.com/sensorhub/sensorhub/api/v1alpha1"
)

// (POST /firmware/register)
func (h *TransportHandler) RegisterFirmware(w http.ResponseWriter, r *http.Request) {
	var metadata api.FirmwareMetadata
	if err := json.NewDecoder(r.Body).Decode(&metadata); err != nil {
		SetParseFailureResponse(w, err)
		return
	}
	if errs := metadata.Validate(); len(errs) > 0 {
		SetValidationFailureResponse(w, errs)
		return
	}

	if err := h.serviceHandler.RegisterFirmware(r.Context(), metadata); err != nil {
		SetErrorResponse(w, err)
		return
	}
	WriteJSONResponse(w, RegisterFirmwareResponse{Status: "registered", Version: metadata.Version}, http.StatusCreated)
}

// (GET /firmware/versions)
func (h *TransportHandler) ListFirmwareVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.serviceHandler.ListFirmwareVersions(r.Context())
	if err != nil {
		SetErrorResponse(w, err)
		return
	}
	WriteJSONResponse(w, versions, http.StatusOK)
}

// (POST /firmware/updates)
func (h *TransportHandler) InitiateUpdate(w http.ResponseWriter, r *http.Request) {
	var request api.FirmwareUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		SetParseFailureResponse(w, err)
		return
	}
	if errs := request.Validate(); len(errs) > 0 {
		SetValidationFailureResponse(w, errs)
		return
	}

	update, err := h.serviceHandler.InitiateUpdate(r.Context(), request)
	if err != nil {
		SetErrorResponse(w, err)
		return
	}
	WriteJSONResponse(w, update, http.StatusCreated)
}

// (GET /firmware/updates/{updateId})
func (h *TransportHandler) GetUpdate(w http.ResponseWriter, r *http.Request) {
	update, err := h.serviceHandler.GetUpdate(r.Context(), chi.URLParam(r, "updateId"))
	if err != nil {
		SetErrorResponse(w, err)
		return
	}
	WriteJSONResponse(w, update, http.StatusOK)
}

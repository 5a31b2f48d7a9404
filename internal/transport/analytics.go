package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// (GET /analytics/devices/{deviceId})
func (h *TransportHandler) GetDeviceMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.serviceHandler.GetDeviceMetrics(r.Context(), chi.URLParam(r, "deviceId"))
	if err != nil {
		SetErrorResponse(w, err)
		return
	}
	WriteJSONResponse(w, metrics, http.StatusOK)
}

// (GET /analytics/fleet)
func (h *TransportHandler) GetFleetAnalytics(w http.ResponseWriter, r *http.Request) {
	analytics, err := h.serviceHandler.GetFleetAnalytics(r.Context())
	if err != nil {
		SetErrorResponse(w, err)
		return
	}
	WriteJSONResponse(w, analytics, http.StatusOK)
}

// (GET /analytics/groups/{groupId})
func (h *TransportHandler) GetGroupAnalytics(w http.ResponseWriter, r *http.Request) {
	analytics, err := h.serviceHandler.GetGroupAnalytics(r.Context(), chi.URLParam(r, "groupId"))
	if err != nil {
		SetErrorResponse(w, err)
		return
	}
	WriteJSONResponse(w, analytics, http.StatusOK)
}

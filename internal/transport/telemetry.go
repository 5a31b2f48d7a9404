package transport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	api "github.com/sensorhub/sensorhub/api/v1alpha1"
)

// (POST /telemetry/point)
func (h *TransportHandler) IngestPoint(w http.ResponseWriter, r *http.Request) {
	var point api.TelemetryPoint
	if err := json.NewDecoder(r.Body).Decode(&point); err != nil {
		SetParseFailureResponse(w, err)
		return
	}
	if errs := point.Validate(); len(errs) > 0 {
		SetValidationFailureResponse(w, errs)
		return
	}

	if err := h.serviceHandler.IngestPoint(r.Context(), &point); err != nil {
		SetErrorResponse(w, err)
		return
	}
	WriteJSONResponse(w, IngestResponse{Status: "accepted"}, http.StatusAccepted)
}

// (POST /telemetry/batch)
func (h *TransportHandler) IngestBatch(w http.ResponseWriter, r *http.Request) {
	var batch api.TelemetryBatch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		SetParseFailureResponse(w, err)
		return
	}
	if errs := batch.Validate(); len(errs) > 0 {
		SetValidationFailureResponse(w, errs)
		return
	}

	if err := h.serviceHandler.IngestBatch(r.Context(), &batch); err != nil {
		SetErrorResponse(w, err)
		return
	}
	WriteJSONResponse(w, BatchIngestResponse{Status: "accepted", Count: len(batch.Points)}, http.StatusAccepted)
}

// (GET /telemetry/{deviceId})
func (h *TransportHandler) QueryTelemetry(w http.ResponseWriter, r *http.Request) {
	query := api.TelemetryQuery{
		DeviceId: chi.URLParam(r, "deviceId"),
		Limit:    queryIntParam(r, "limit", defaultListLimit),
	}
	if metric := r.URL.Query().Get("metric"); metric != "" {
		query.Metric = &metric
	}

	var err error
	if query.StartTime, err = queryTimeParam(r, "start_time"); err != nil {
		SetErrorResponse(w, err)
		return
	}
	if query.EndTime, err = queryTimeParam(r, "end_time"); err != nil {
		SetErrorResponse(w, err)
		return
	}

	points, err := h.serviceHandler.QueryTelemetry(r.Context(), query)
	if err != nil {
		SetErrorResponse(w, err)
		return
	}
	WriteJSONResponse(w, points, http.StatusOK)
}

// (GET /telemetry/{deviceId}/{metric}/latest)
func (h *TransportHandler) GetLatestTelemetry(w http.ResponseWriter, r *http.Request) {
	point, err := h.serviceHandler.GetLatestTelemetry(r.Context(), chi.URLParam(r, "deviceId"), chi.URLParam(r, "metric"))
	if err != nil {
		SetErrorResponse(w, err)
		return
	}
	WriteJSONResponse(w, point, http.StatusOK)
}

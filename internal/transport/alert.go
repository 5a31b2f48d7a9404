package transport

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	api "github.com/sensorhub/sensorhub/api/v1alpha1"
	"github.com/sensorhub/sensorhub/internal/sherrors"
)

// (POST /alerts/rules)
func (h *TransportHandler) CreateAlertRule(w http.ResponseWriter, r *http.Request) {
	var create api.AlertRuleCreate
	if err := json.NewDecoder(r.Body).Decode(&create); err != nil {
		SetParseFailureResponse(w, err)
		return
	}
	if errs := create.Validate(); len(errs) > 0 {
		SetValidationFailureResponse(w, errs)
		return
	}

	rule, err := h.serviceHandler.CreateRule(r.Context(), create)
	if err != nil {
		SetErrorResponse(w, err)
		return
	}
	WriteJSONResponse(w, rule, http.StatusCreated)
}

// (GET /alerts/rules)
func (h *TransportHandler) ListAlertRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.serviceHandler.ListRules(r.Context(), r.URL.Query().Get("device_id"))
	if err != nil {
		SetErrorResponse(w, err)
		return
	}
	WriteJSONResponse(w, rules, http.StatusOK)
}

// (GET /alerts/rules/{ruleId})
func (h *TransportHandler) GetAlertRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.serviceHandler.GetRule(r.Context(), chi.URLParam(r, "ruleId"))
	if err != nil {
		SetErrorResponse(w, err)
		return
	}
	WriteJSONResponse(w, rule, http.StatusOK)
}

// (GET /alerts)
func (h *TransportHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	var status *api.AlertStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := api.AlertStatus(raw)
		switch s {
		case api.AlertStatusOpen, api.AlertStatusAcknowledged, api.AlertStatusResolved:
			status = &s
		default:
			SetErrorResponse(w, fmt.Errorf("%w: unknown status %q", sherrors.ErrInvalid, raw))
			return
		}
	}

	alerts, err := h.serviceHandler.ListAlerts(r.Context(), r.URL.Query().Get("device_id"), status, queryIntParam(r, "limit", defaultListLimit))
	if err != nil {
		SetErrorResponse(w, err)
		return
	}
	WriteJSONResponse(w, alerts, http.StatusOK)
}

// (POST /alerts/{alertId}/acknowledge)
func (h *TransportHandler) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := h.serviceHandler.AcknowledgeAlert(r.Context(), chi.URLParam(r, "alertId"))
	if err != nil {
		SetErrorResponse(w, err)
		return
	}
	WriteJSONResponse(w, alert, http.StatusOK)
}

// (POST /alerts/{alertId}/resolve)
func (h *TransportHandler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := h.serviceHandler.ResolveAlert(r.Context(), chi.URLParam(r, "alertId"))
	if err != nil {
		SetErrorResponse(w, err)
		return
	}
	WriteJSONResponse(w, alert, http.StatusOK)
}

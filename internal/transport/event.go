package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// (GET /events/{topic})
func (h *TransportHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	start, err := queryTimeParam(r, "start_time")
	if err != nil {
		SetErrorResponse(w, err)
		return
	}

	events, err := h.serviceHandler.GetEvents(r.Context(), chi.URLParam(r, "topic"), start, queryIntParam(r, "limit", defaultListLimit))
	if err != nil {
		SetErrorResponse(w, err)
		return
	}
	WriteJSONResponse(w, events, http.StatusOK)
}

package transport

import (
	"net/http"

	api "github.com/sensorhub/sensorhub/api/v1alpha1"
	"github.com/sensorhub/sensorhub/pkg/version"
)

// (GET /version)
func (h *TransportHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	versionInfo := version.Get()
	WriteJSONResponse(w, api.Version{Version: versionInfo.String()}, http.StatusOK)
}

package transport

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	api "github.com/sensorhub/sensorhub/api/v1alpha1"
	"github.com/sensorhub/sensorhub/pkg/version"
)

func TestGetVersionEndpoint(t *testing.T) {
	require := require.New(t)
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/version", nil, nil)
	require.Equal(http.StatusOK, rec.Code)

	var v api.Version
	decodeInto(t, rec, &v)
	require.Equal(version.Get().String(), v.Version)
}

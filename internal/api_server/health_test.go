package apiserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubChecker struct {
	err error
}

func (c stubChecker) CheckHealth(context.Context) error {
	return c.err
}

func TestHealthzHandler(t *testing.T) {
	require := require.New(t)

	rec := httptest.NewRecorder()
	HealthzHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(http.StatusOK, rec.Code)
	require.Equal("application/json", rec.Header().Get("Content-Type"))
	require.JSONEq(`{"status":"healthy","service":"sensorhub"}`, rec.Body.String())
}

func TestReadyzHandler(t *testing.T) {
	require := require.New(t)

	rec := httptest.NewRecorder()
	ReadyzHandler(time.Second, stubChecker{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(http.StatusOK, rec.Code)

	// Any failing check makes the server not ready.
	rec = httptest.NewRecorder()
	ReadyzHandler(time.Second, stubChecker{}, stubChecker{err: errors.New("kv down")}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(http.StatusServiceUnavailable, rec.Code)

	// Nil checks are skipped, zero timeout falls back to the default.
	rec = httptest.NewRecorder()
	ReadyzHandler(0, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(http.StatusOK, rec.Code)
}

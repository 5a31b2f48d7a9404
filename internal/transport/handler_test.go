package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	api "github.com/sensorhub/sensorhub/api/v1alpha1"
	"github.com/sensorhub/sensorhub/internal/breaker"
	"github.com/sensorhub/sensorhub/internal/config"
	"github.com/sensorhub/sensorhub/internal/eventbus"
	"github.com/sensorhub/sensorhub/internal/kvstore"
	"github.com/sensorhub/sensorhub/internal/ratelimit"
	"github.com/sensorhub/sensorhub/internal/service"
	"github.com/sensorhub/sensorhub/internal/store"
	"github.com/sensorhub/sensorhub/pkg/log"
)

type acceptingNotifier struct{}

func (acceptingNotifier) Notify(context.Context, *api.Alert) error { return nil }

func newTestRouter(t *testing.T) *chi.Mux {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	testLog := log.InitLogs()
	testLog.SetLevel(logrus.ErrorLevel)

	cfg := config.NewDefault()
	kv := kvstore.NewKVStoreWithClient(testLog, client)
	t.Cleanup(func() { _ = kv.Close() })

	st := store.NewStore(kv, testLog)
	bus := eventbus.New(testLog, st.Event(), cfg.EventBus.QueueMaxSize, cfg.EventBus.WorkerCount)
	limiter := ratelimit.NewLimiter(testLog, kv, ratelimit.Limits{
		TelemetryPerDevice: cfg.RateLimit.TelemetryPerDevice,
		WindowSeconds:      cfg.RateLimit.WindowSeconds,
		GlobalPerSecond:    cfg.RateLimit.GlobalPerSecond,
	})
	breakers := breaker.NewManager(testLog, breaker.Settings{
		FailureThreshold: uint32(cfg.Breaker.FailureThreshold),
		Timeout:          time.Duration(cfg.Breaker.TimeoutSeconds) * time.Second,
		HalfOpenMaxCalls: uint32(cfg.Breaker.HalfOpenMaxCalls),
	})
	svc := service.NewServiceHandler(st, bus, limiter, breakers, acceptingNotifier{}, testLog, cfg)

	router := chi.NewRouter()
	NewTransportHandler(svc, testLog).RegisterRoutes(router)
	return router
}

// doRequest serves one request against the router. A string body is sent
// verbatim, anything else is marshaled to JSON.
func doRequest(t *testing.T, router http.Handler, method, target string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	decodeInto(t, rec, &resp)
	return resp.Error
}

func idempotencyHeader(key string) map[string]string {
	return map[string]string{"idempotency-key": key}
}

func registerTestDevice(t *testing.T, router http.Handler, serial string) api.Device {
	t.Helper()
	rec := doRequest(t, router, http.MethodPost, "/devices", api.DeviceRegistration{
		SerialNumber:    serial,
		DeviceType:      api.DeviceTypeSensor,
		FirmwareVersion: "1.0.0",
	}, idempotencyHeader(serial))
	require.Equal(t, http.StatusCreated, rec.Code)

	var device api.Device
	decodeInto(t, rec, &device)
	return device
}

func ingestTestPoint(t *testing.T, router http.Handler, deviceID, metric string, value float64) {
	t.Helper()
	rec := doRequest(t, router, http.MethodPost, "/telemetry/point", api.TelemetryPoint{
		DeviceId:  deviceID,
		Timestamp: time.Now().UTC(),
		Metric:    metric,
		Value:     value,
		Unit:      "celsius",
	}, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
}

package apiserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
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

func startTestServer(t *testing.T) (string, context.CancelFunc, chan error) {
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
	bus.Start(context.Background())
	t.Cleanup(bus.Stop)

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
	svc := service.NewServiceHandler(st, bus, limiter, breakers, service.NewUnavailableNotifier(), testLog, cfg)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- New(testLog, cfg, st, svc, limiter, listener).Run(ctx)
	}()

	baseURL := "http://" + listener.Addr().String()
	waitForReady(t, baseURL)
	return baseURL, cancel, errCh
}

func waitForReady(t *testing.T, baseURL string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(baseURL + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		if time.Now().After(deadline) {
			t.Fatal("API server never became ready")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestServerServesTheHubAPI(t *testing.T) {
	require := require.New(t)
	baseURL, cancel, errCh := startTestServer(t)
	defer cancel()

	resp, err := http.Get(baseURL + "/readyz")
	require.NoError(err)
	resp.Body.Close()
	require.Equal(http.StatusOK, resp.StatusCode)

	// Register one device.
	body, err := json.Marshal(api.DeviceRegistration{
		SerialNumber:    "SN-001",
		DeviceType:      api.DeviceTypeSensor,
		FirmwareVersion: "1.0.0",
	})
	require.NoError(err)

	req, err := http.NewRequest(http.MethodPost, baseURL+"/devices", bytes.NewReader(body))
	require.NoError(err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("idempotency-key", "register-sn-001")

	resp, err = http.DefaultClient.Do(req)
	require.NoError(err)
	require.Equal(http.StatusCreated, resp.StatusCode)

	var device api.Device
	require.NoError(json.NewDecoder(resp.Body).Decode(&device))
	resp.Body.Close()
	require.NotEmpty(device.Id)

	// The device window admits the first 100 points, then throttles.
	accepted, limited := 0, 0
	for i := 0; i < 150; i++ {
		point, err := json.Marshal(api.TelemetryPoint{
			DeviceId:  device.Id,
			Timestamp: time.Now().UTC(),
			Metric:    "temperature",
			Value:     float64(i),
			Unit:      "celsius",
		})
		require.NoError(err)

		resp, err := http.Post(baseURL+"/telemetry/point", "application/json", bytes.NewReader(point))
		require.NoError(err)
		resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusAccepted:
			accepted++
		case http.StatusTooManyRequests:
			limited++
		default:
			t.Fatalf("unexpected status %d on point %d", resp.StatusCode, i)
		}
	}
	require.Equal(100, accepted)
	require.Equal(50, limited)

	// Requests carry a request id back to the client.
	resp, err = http.Get(baseURL + "/devices/" + device.Id)
	require.NoError(err)
	resp.Body.Close()
	require.Equal(http.StatusOK, resp.StatusCode)
	require.NotEmpty(resp.Header.Get("X-Request-Id"))

	cancel()
	select {
	case err := <-errCh:
		require.NoError(err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}

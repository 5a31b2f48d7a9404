package service

import (
	"context"
	"sync"
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
	"github.com/sensorhub/sensorhub/internal/store"
	"github.com/sensorhub/sensorhub/pkg/log"
)

type fakeNotifier struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (n *fakeNotifier) Notify(ctx context.Context, _ *api.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	return n.err
}

func (n *fakeNotifier) callCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

func (n *fakeNotifier) setErr(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.err = err
}

type testHarness struct {
	svc      *ServiceHandler
	st       store.Store
	notifier *fakeNotifier
	mr       *miniredis.Miniredis
	cfg      *config.Config
}

func newTestHandler(t *testing.T, mutate func(*config.Config)) *testHarness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	testLog := log.InitLogs()
	testLog.SetLevel(logrus.ErrorLevel)

	cfg := config.NewDefault()
	if mutate != nil {
		mutate(cfg)
	}

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
	notifier := &fakeNotifier{}
	svc := NewServiceHandler(st, bus, limiter, breakers, notifier, testLog, cfg)

	return &testHarness{svc: svc, st: st, notifier: notifier, mr: mr, cfg: cfg}
}

func (h *testHarness) registerDevice(t *testing.T, serial string) *api.Device {
	t.Helper()
	device, err := h.svc.RegisterDevice(context.Background(), api.DeviceRegistration{
		SerialNumber:    serial,
		DeviceType:      api.DeviceTypeSensor,
		FirmwareVersion: "1.0.0",
	})
	require.NoError(t, err)
	return device
}

func (h *testHarness) ingest(t *testing.T, deviceID, metric string, value float64) {
	t.Helper()
	point := api.TelemetryPoint{
		DeviceId:  deviceID,
		Timestamp: time.Now().UTC(),
		Metric:    metric,
		Value:     value,
		Unit:      "celsius",
	}
	require.NoError(t, h.svc.IngestPoint(context.Background(), &point))
}

func (h *testHarness) eventTypes(t *testing.T, topic string) []string {
	t.Helper()
	events, err := h.st.Event().GetEvents(context.Background(), topic, nil, 100)
	require.NoError(t, err)
	types := make([]string, 0, len(events))
	for _, event := range events {
		types = append(types, event.Type)
	}
	return types
}

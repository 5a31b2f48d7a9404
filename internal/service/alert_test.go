package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"

	api "github.com/sensorhub/sensorhub/api/v1alpha1"
	"github.com/sensorhub/sensorhub/internal/config"
	"github.com/sensorhub/sensorhub/internal/sherrors"
)

func (h *testHarness) createRule(t *testing.T, deviceID string, threshold float64) *api.AlertRule {
	t.Helper()
	rule, err := h.svc.CreateRule(context.Background(), api.AlertRuleCreate{
		DeviceId:  lo.ToPtr(deviceID),
		Metric:    "temperature",
		Operator:  api.RuleOperatorGt,
		Threshold: threshold,
		Severity:  api.AlertSeverityCritical,
	})
	require.NoError(t, err)
	return rule
}

func TestCreateRule(t *testing.T) {
	require := require.New(t)
	h := newTestHandler(t, nil)
	ctx := context.Background()

	device := h.registerDevice(t, "SN-001")
	rule := h.createRule(t, device.Id, 30)
	require.NotEmpty(rule.Id)
	require.True(rule.Enabled)

	got, err := h.svc.GetRule(ctx, rule.Id)
	require.NoError(err)
	require.Equal(rule.Id, got.Id)

	rules, err := h.svc.ListRules(ctx, device.Id)
	require.NoError(err)
	require.Len(rules, 1)

	_, err = h.svc.GetRule(ctx, "rule-missing")
	require.ErrorIs(err, sherrors.ErrResourceNotFound)

	require.Equal([]string{"rule.created"}, h.eventTypes(t, "alert.rules"))
}

func TestTelemetryViolationTriggersAlert(t *testing.T) {
	require := require.New(t)
	h := newTestHandler(t, nil)
	ctx := context.Background()

	device := h.registerDevice(t, "SN-001")
	rule := h.createRule(t, device.Id, 30)

	h.ingest(t, device.Id, "temperature", 35)

	open := api.AlertStatusOpen
	alerts, err := h.svc.ListAlerts(ctx, device.Id, &open, 100)
	require.NoError(err)
	require.Len(alerts, 1)

	alert := alerts[0]
	require.Equal(rule.Id, alert.RuleId)
	require.Equal(device.Id, alert.DeviceId)
	require.Equal(api.AlertSeverityCritical, alert.Severity)
	require.Equal("temperature gt 30", alert.Message)
	require.Equal(35.0, alert.Value)
	require.Equal(30.0, alert.Threshold)

	require.Equal(1, h.notifier.callCount())
	require.Equal([]string{"alert.new"}, h.eventTypes(t, "alert.triggered"))
}

func TestNonViolatingTelemetryTriggersNothing(t *testing.T) {
	require := require.New(t)
	h := newTestHandler(t, nil)
	ctx := context.Background()

	device := h.registerDevice(t, "SN-001")
	h.createRule(t, device.Id, 30)

	// Below the threshold, and a different metric above it.
	h.ingest(t, device.Id, "temperature", 25)
	h.ingest(t, device.Id, "humidity", 95)

	count, err := h.svc.CountOpenAlerts(ctx)
	require.NoError(err)
	require.Equal(int64(0), count)
	require.Equal(0, h.notifier.callCount())
}

func TestRuleOnlyFiresForItsDevice(t *testing.T) {
	require := require.New(t)
	h := newTestHandler(t, nil)
	ctx := context.Background()

	watched := h.registerDevice(t, "SN-001")
	other := h.registerDevice(t, "SN-002")
	h.createRule(t, watched.Id, 30)

	h.ingest(t, other.Id, "temperature", 95)

	count, err := h.svc.CountOpenAlerts(ctx)
	require.NoError(err)
	require.Equal(int64(0), count)
}

func TestAlertLifecycle(t *testing.T) {
	require := require.New(t)
	h := newTestHandler(t, nil)
	ctx := context.Background()

	device := h.registerDevice(t, "SN-001")
	h.createRule(t, device.Id, 30)
	h.ingest(t, device.Id, "temperature", 35)

	open := api.AlertStatusOpen
	alerts, err := h.svc.ListAlerts(ctx, device.Id, &open, 100)
	require.NoError(err)
	require.Len(alerts, 1)
	alertID := alerts[0].Id

	acked, err := h.svc.AcknowledgeAlert(ctx, alertID)
	require.NoError(err)
	require.Equal(api.AlertStatusAcknowledged, acked.Status)
	require.NotNil(acked.AcknowledgedAt)

	count, err := h.svc.CountOpenAlerts(ctx)
	require.NoError(err)
	require.Equal(int64(0), count)

	resolved, err := h.svc.ResolveAlert(ctx, alertID)
	require.NoError(err)
	require.Equal(api.AlertStatusResolved, resolved.Status)
	require.NotNil(resolved.ResolvedAt)
}

func TestAlertTransitionsAreForwardOnly(t *testing.T) {
	require := require.New(t)
	h := newTestHandler(t, nil)
	ctx := context.Background()

	device := h.registerDevice(t, "SN-001")
	h.createRule(t, device.Id, 30)

	// Two violations, two open alerts.
	h.ingest(t, device.Id, "temperature", 35)
	h.ingest(t, device.Id, "temperature", 36)

	open := api.AlertStatusOpen
	alerts, err := h.svc.ListAlerts(ctx, device.Id, &open, 100)
	require.NoError(err)
	require.Len(alerts, 2)

	// Open resolves directly without an acknowledgement.
	first, err := h.svc.ResolveAlert(ctx, alerts[0].Id)
	require.NoError(err)
	require.Equal(api.AlertStatusResolved, first.Status)

	_, err = h.svc.AcknowledgeAlert(ctx, first.Id)
	require.ErrorIs(err, sherrors.ErrInvalidTransition)
	_, err = h.svc.ResolveAlert(ctx, first.Id)
	require.ErrorIs(err, sherrors.ErrInvalidTransition)

	second, err := h.svc.AcknowledgeAlert(ctx, alerts[1].Id)
	require.NoError(err)
	_, err = h.svc.AcknowledgeAlert(ctx, second.Id)
	require.ErrorIs(err, sherrors.ErrInvalidTransition)

	_, err = h.svc.AcknowledgeAlert(ctx, "alert-missing")
	require.ErrorIs(err, sherrors.ErrResourceNotFound)
}

func TestNotifierFailureNeverFailsIngestion(t *testing.T) {
	require := require.New(t)
	h := newTestHandler(t, nil)
	ctx := context.Background()

	device := h.registerDevice(t, "SN-001")
	h.createRule(t, device.Id, 30)
	h.notifier.setErr(errors.New("notification service unavailable"))

	h.ingest(t, device.Id, "temperature", 35)

	count, err := h.svc.CountOpenAlerts(ctx)
	require.NoError(err)
	require.Equal(int64(1), count)
	require.Equal(1, h.notifier.callCount())
}

func TestNotificationBreakerOpensAndRecovers(t *testing.T) {
	require := require.New(t)
	h := newTestHandler(t, func(cfg *config.Config) {
		cfg.Breaker.FailureThreshold = 3
		cfg.Breaker.TimeoutSeconds = 1
		cfg.Breaker.HalfOpenMaxCalls = 2
	})
	ctx := context.Background()

	device := h.registerDevice(t, "SN-001")
	h.createRule(t, device.Id, 30)
	h.notifier.setErr(errors.New("notification service unavailable"))

	for i := 0; i < 3; i++ {
		h.ingest(t, device.Id, "temperature", 35)
	}
	require.Equal(3, h.notifier.callCount())

	circuit := h.svc.Breakers().Get("notification_service")
	require.Equal(gobreaker.StateOpen, circuit.State())

	// While open the alert still fires, delivery is skipped.
	h.ingest(t, device.Id, "temperature", 36)
	require.Equal(3, h.notifier.callCount())

	count, err := h.svc.CountOpenAlerts(ctx)
	require.NoError(err)
	require.Equal(int64(4), count)

	// After the open timeout the circuit probes the recovered downstream.
	h.notifier.setErr(nil)
	time.Sleep(1100 * time.Millisecond)
	require.Equal(gobreaker.StateHalfOpen, circuit.State())

	h.ingest(t, device.Id, "temperature", 37)
	h.ingest(t, device.Id, "temperature", 38)
	require.Equal(5, h.notifier.callCount())
	require.Equal(gobreaker.StateClosed, circuit.State())
}

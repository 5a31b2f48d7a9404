package transport

import (
	"net/http"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	api "github.com/sensorhub/sensorhub/api/v1alpha1"
)

func createTestRule(t *testing.T, router http.Handler, deviceID string, threshold float64) api.AlertRule {
	t.Helper()
	rec := doRequest(t, router, http.MethodPost, "/alerts/rules", api.AlertRuleCreate{
		DeviceId:  lo.ToPtr(deviceID),
		Metric:    "temperature",
		Operator:  api.RuleOperatorGt,
		Threshold: threshold,
		Severity:  api.AlertSeverityWarning,
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var rule api.AlertRule
	decodeInto(t, rec, &rule)
	return rule
}

func TestAlertRuleEndpoints(t *testing.T) {
	require := require.New(t)
	router := newTestRouter(t)

	device := registerTestDevice(t, router, "SN-001")
	rule := createTestRule(t, router, device.Id, 30)
	require.NotEmpty(rule.Id)
	require.True(rule.Enabled)

	rec := doRequest(t, router, http.MethodGet, "/alerts/rules/"+rule.Id, nil, nil)
	require.Equal(http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/alerts/rules/rule-unknown", nil, nil)
	require.Equal(http.StatusNotFound, rec.Code)

	var rules []api.AlertRule
	rec = doRequest(t, router, http.MethodGet, "/alerts/rules?device_id="+device.Id, nil, nil)
	require.Equal(http.StatusOK, rec.Code)
	decodeInto(t, rec, &rules)
	require.Len(rules, 1)

	// Unknown operators are rejected before the rule is stored.
	rec = doRequest(t, router, http.MethodPost, "/alerts/rules", api.AlertRuleCreate{
		Metric:    "temperature",
		Operator:  api.RuleOperator("between"),
		Threshold: 30,
		Severity:  api.AlertSeverityWarning,
	}, nil)
	require.Equal(http.StatusBadRequest, rec.Code)
	require.Contains(errorBody(t, rec), "unknown operator")
}

func TestListAlertsEndpointRejectsUnknownStatus(t *testing.T) {
	require := require.New(t)
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/alerts?status=bogus", nil, nil)
	require.Equal(http.StatusBadRequest, rec.Code)
	require.Contains(errorBody(t, rec), "unknown status")
}

func TestAlertLifecycleEndpoints(t *testing.T) {
	require := require.New(t)
	router := newTestRouter(t)

	device := registerTestDevice(t, router, "SN-001")
	createTestRule(t, router, device.Id, 30)
	ingestTestPoint(t, router, device.Id, "temperature", 35)

	var alerts []api.Alert
	rec := doRequest(t, router, http.MethodGet, "/alerts?device_id="+device.Id+"&status=open", nil, nil)
	require.Equal(http.StatusOK, rec.Code)
	decodeInto(t, rec, &alerts)
	require.Len(alerts, 1)
	alertID := alerts[0].Id

	rec = doRequest(t, router, http.MethodPost, "/alerts/"+alertID+"/acknowledge", nil, nil)
	require.Equal(http.StatusOK, rec.Code)

	var alert api.Alert
	decodeInto(t, rec, &alert)
	require.Equal(api.AlertStatusAcknowledged, alert.Status)
	require.NotNil(alert.AcknowledgedAt)

	rec = doRequest(t, router, http.MethodPost, "/alerts/"+alertID+"/resolve", nil, nil)
	require.Equal(http.StatusOK, rec.Code)
	decodeInto(t, rec, &alert)
	require.Equal(api.AlertStatusResolved, alert.Status)

	// Resolved is terminal.
	rec = doRequest(t, router, http.MethodPost, "/alerts/"+alertID+"/acknowledge", nil, nil)
	require.Equal(http.StatusBadRequest, rec.Code)
	require.Contains(errorBody(t, rec), "transition not allowed")

	rec = doRequest(t, router, http.MethodPost, "/alerts/alert-unknown/acknowledge", nil, nil)
	require.Equal(http.StatusNotFound, rec.Code)
}

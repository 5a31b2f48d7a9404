package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	api "github.com/sensorhub/sensorhub/api/v1alpha1"
	"github.com/sensorhub/sensorhub/internal/sherrors"
)

const notificationBreaker = "notification_service"

func (h *ServiceHandler) CreateRule(ctx context.Context, create api.AlertRuleCreate) (*api.AlertRule, error) {
	rule := &api.AlertRule{
		Id:        uuid.NewString(),
		DeviceId:  create.DeviceId,
		GroupId:   create.GroupId,
		Metric:    create.Metric,
		Operator:  create.Operator,
		Threshold: create.Threshold,
		Severity:  create.Severity,
		Enabled:   true,
		CreatedAt: time.Now().UTC(),
	}

	if err := h.store.Alert().SaveRule(ctx, rule); err != nil {
		return nil, err
	}
	if err := h.bus.Publish(ctx, "alert.rules", "rule.created", map[string]any{
		"rule_id": rule.Id,
	}); err != nil {
		return nil, err
	}
	return rule, nil
}

func (h *ServiceHandler) GetRule(ctx context.Context, id string) (*api.AlertRule, error) {
	rule, err := h.store.Alert().GetRule(ctx, id)
	if err != nil {
		if sherrors.IsNotFound(err) {
			return nil, fmt.Errorf("rule %s: %w", id, sherrors.ErrResourceNotFound)
		}
		return nil, err
	}
	return rule, nil
}

func (h *ServiceHandler) ListRules(ctx context.Context, deviceID string) ([]api.AlertRule, error) {
	return h.store.Alert().ListRules(ctx, deviceID, true)
}

// CheckAlerts evaluates every enabled rule targeting the point's device and
// triggers an alert for each rule the point violates.
func (h *ServiceHandler) CheckAlerts(ctx context.Context, point *api.TelemetryPoint) error {
	rules, err := h.store.Alert().ListRules(ctx, point.DeviceId, true)
	if err != nil {
		return err
	}

	for i := range rules {
		rule := &rules[i]
		if rule.Metric != point.Metric {
			continue
		}
		if evaluateRule(rule, point.Value) {
			if err := h.triggerAlert(ctx, rule, point); err != nil {
				return err
			}
		}
	}
	return nil
}

func evaluateRule(rule *api.AlertRule, value float64) bool {
	switch rule.Operator {
	case api.RuleOperatorGt:
		return value > rule.Threshold
	case api.RuleOperatorLt:
		return value < rule.Threshold
	case api.RuleOperatorEq:
		return value == rule.Threshold
	case api.RuleOperatorNe:
		return value != rule.Threshold
	default:
		return false
	}
}

func (h *ServiceHandler) triggerAlert(ctx context.Context, rule *api.AlertRule, point *api.TelemetryPoint) error {
	alert := &api.Alert{
		Id:          uuid.NewString(),
		RuleId:      rule.Id,
		DeviceId:    point.DeviceId,
		Severity:    rule.Severity,
		Status:      api.AlertStatusOpen,
		Message:     fmt.Sprintf("%s %s %v", point.Metric, rule.Operator, rule.Threshold),
		Value:       point.Value,
		Threshold:   rule.Threshold,
		TriggeredAt: time.Now().UTC(),
	}

	if err := h.store.Alert().SaveAlert(ctx, alert); err != nil {
		return err
	}
	if err := h.bus.Publish(ctx, "alert.triggered", "alert.new", map[string]any{
		"alert_id":  alert.Id,
		"device_id": alert.DeviceId,
		"severity":  string(alert.Severity),
	}); err != nil {
		return err
	}

	// Notification delivery is best effort: breaker rejections and downstream
	// failures are logged, never surfaced to the ingest path.
	err := h.breakers.Get(notificationBreaker).Execute(ctx, func(ctx context.Context) error {
		return h.notifier.Notify(ctx, alert)
	})
	if err != nil {
		h.log.WithError(err).Debugf("notification for alert %s not delivered", alert.Id)
	}
	return nil
}

func (h *ServiceHandler) ListAlerts(ctx context.Context, deviceID string, status *api.AlertStatus, limit int) ([]api.Alert, error) {
	return h.store.Alert().ListAlerts(ctx, deviceID, status, limit)
}

func (h *ServiceHandler) AcknowledgeAlert(ctx context.Context, id string) (*api.Alert, error) {
	return h.transitionAlert(ctx, id, api.AlertStatusAcknowledged)
}

func (h *ServiceHandler) ResolveAlert(ctx context.Context, id string) (*api.Alert, error) {
	return h.transitionAlert(ctx, id, api.AlertStatusResolved)
}

// transitionAlert enforces open → acknowledged → resolved, no backward moves.
func (h *ServiceHandler) transitionAlert(ctx context.Context, id string, status api.AlertStatus) (*api.Alert, error) {
	alert, err := h.store.Alert().GetAlert(ctx, id)
	if err != nil {
		if sherrors.IsNotFound(err) {
			return nil, fmt.Errorf("alert %s: %w", id, sherrors.ErrResourceNotFound)
		}
		return nil, err
	}

	if !transitionAllowed(alert.Status, status) {
		return nil, fmt.Errorf("%w: %s to %s", sherrors.ErrInvalidTransition, alert.Status, status)
	}
	return h.store.Alert().UpdateAlertStatus(ctx, id, status)
}

func transitionAllowed(from, to api.AlertStatus) bool {
	switch to {
	case api.AlertStatusAcknowledged:
		return from == api.AlertStatusOpen
	case api.AlertStatusResolved:
		return from == api.AlertStatusOpen || from == api.AlertStatusAcknowledged
	default:
		return false
	}
}

func (h *ServiceHandler) CountOpenAlerts(ctx context.Context) (int64, error) {
	return h.store.Alert().CountOpen(ctx)
}

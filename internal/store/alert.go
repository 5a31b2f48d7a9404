package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	api "github.com/sensorhub/sensorhub/api/v1alpha1"
	"github.com/sensorhub/sensorhub/internal/kvstore"
	"github.com/sensorhub/sensorhub/internal/sherrors"
	"github.com/sirupsen/logrus"
)

type Alert interface {
	SaveRule(ctx context.Context, rule *api.AlertRule) error
	GetRule(ctx context.Context, id string) (*api.AlertRule, error)
	ListRules(ctx context.Context, deviceID string, enabledOnly bool) ([]api.AlertRule, error)
	SaveAlert(ctx context.Context, alert *api.Alert) error
	GetAlert(ctx context.Context, id string) (*api.Alert, error)
	ListAlerts(ctx context.Context, deviceID string, status *api.AlertStatus, limit int) ([]api.Alert, error)
	UpdateAlertStatus(ctx context.Context, id string, status api.AlertStatus) (*api.Alert, error)
	CountOpen(ctx context.Context) (int64, error)
}

type alertStore struct {
	kv  kvstore.KVStore
	log logrus.FieldLogger
}

func NewAlert(kv kvstore.KVStore, log logrus.FieldLogger) Alert {
	return &alertStore{kv: kv, log: log}
}

func ruleKey(id string) string {
	return fmt.Sprintf("alert:rule:%s", id)
}

func alertKey(id string) string {
	return fmt.Sprintf("alert:%s", id)
}

func (s *alertStore) SaveRule(ctx context.Context, rule *api.AlertRule) error {
	value, err := json.Marshal(rule)
	if err != nil {
		return err
	}

	err = s.kv.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, ruleKey(rule.Id), value, 0)
		pipe.SAdd(ctx, "alert:rules:all", rule.Id)
		if rule.DeviceId != nil && *rule.DeviceId != "" {
			pipe.SAdd(ctx, fmt.Sprintf("alert:rules:device:%s", *rule.DeviceId), rule.Id)
		}
		if rule.GroupId != nil && *rule.GroupId != "" {
			pipe.SAdd(ctx, fmt.Sprintf("alert:rules:group:%s", *rule.GroupId), rule.Id)
		}
		return nil
	})
	return sherrors.ErrorFromRedisError(err)
}

func (s *alertStore) GetRule(ctx context.Context, id string) (*api.AlertRule, error) {
	data, err := s.kv.Get(ctx, ruleKey(id))
	if err != nil {
		return nil, sherrors.ErrorFromRedisError(err)
	}
	if data == nil {
		return nil, sherrors.ErrResourceNotFound
	}

	var rule api.AlertRule
	if err := json.Unmarshal(data, &rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

// ListRules reads through the device index when a device is given, otherwise
// through the full rule index.
func (s *alertStore) ListRules(ctx context.Context, deviceID string, enabledOnly bool) ([]api.AlertRule, error) {
	setKey := "alert:rules:all"
	if deviceID != "" {
		setKey = fmt.Sprintf("alert:rules:device:%s", deviceID)
	}

	ids, err := s.kv.SMembers(ctx, setKey)
	if err != nil {
		return nil, sherrors.ErrorFromRedisError(err)
	}

	rules := make([]api.AlertRule, 0, len(ids))
	for _, id := range ids {
		rule, err := s.GetRule(ctx, id)
		if err != nil {
			if sherrors.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		if enabledOnly && !rule.Enabled {
			continue
		}
		rules = append(rules, *rule)
	}
	return rules, nil
}

// SaveAlert writes the alert record, the triggered_at timeline entry and the
// per-device index in one transaction. The open index gains the alert only
// when its status is open.
func (s *alertStore) SaveAlert(ctx context.Context, alert *api.Alert) error {
	value, err := json.Marshal(alert)
	if err != nil {
		return err
	}

	err = s.kv.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, alertKey(alert.Id), value, 0)
		pipe.ZAdd(ctx, "alert:timeline", redis.Z{
			Score:  float64(alert.TriggeredAt.Unix()),
			Member: alert.Id,
		})
		pipe.SAdd(ctx, fmt.Sprintf("alert:device:%s", alert.DeviceId), alert.Id)
		if alert.Status == api.AlertStatusOpen {
			pipe.SAdd(ctx, "alert:open", alert.Id)
		}
		return nil
	})
	return sherrors.ErrorFromRedisError(err)
}

func (s *alertStore) GetAlert(ctx context.Context, id string) (*api.Alert, error) {
	data, err := s.kv.Get(ctx, alertKey(id))
	if err != nil {
		return nil, sherrors.ErrorFromRedisError(err)
	}
	if data == nil {
		return nil, sherrors.ErrResourceNotFound
	}

	var alert api.Alert
	if err := json.Unmarshal(data, &alert); err != nil {
		return nil, err
	}
	return &alert, nil
}

func (s *alertStore) ListAlerts(ctx context.Context, deviceID string, status *api.AlertStatus, limit int) ([]api.Alert, error) {
	var ids []string
	var err error

	switch {
	case status != nil && *status == api.AlertStatusOpen:
		ids, err = s.kv.SMembers(ctx, "alert:open")
	case deviceID != "":
		ids, err = s.kv.SMembers(ctx, fmt.Sprintf("alert:device:%s", deviceID))
	default:
		ids, err = s.kv.ZRange(ctx, "alert:timeline", 0, int64(limit-1))
	}
	if err != nil {
		return nil, sherrors.ErrorFromRedisError(err)
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	alerts := make([]api.Alert, 0, len(ids))
	for _, id := range ids {
		alert, err := s.GetAlert(ctx, id)
		if err != nil {
			if sherrors.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		if status != nil && alert.Status != *status {
			continue
		}
		alerts = append(alerts, *alert)
	}

	sort.Slice(alerts, func(i, j int) bool {
		return alerts[i].TriggeredAt.After(alerts[j].TriggeredAt)
	})
	return alerts, nil
}

// UpdateAlertStatus transitions the alert, stamping acknowledged_at or
// resolved_at, and removes it from the open index on any non-open status.
func (s *alertStore) UpdateAlertStatus(ctx context.Context, id string, status api.AlertStatus) (*api.Alert, error) {
	alert, err := s.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	alert.Status = status
	switch status {
	case api.AlertStatusAcknowledged:
		alert.AcknowledgedAt = &now
	case api.AlertStatusResolved:
		alert.ResolvedAt = &now
	}

	if err := s.SaveAlert(ctx, alert); err != nil {
		return nil, err
	}
	if status != api.AlertStatusOpen {
		if err := s.kv.SRem(ctx, "alert:open", id); err != nil {
			return nil, sherrors.ErrorFromRedisError(err)
		}
	}
	return alert, nil
}

func (s *alertStore) CountOpen(ctx context.Context) (int64, error) {
	return s.kv.SCard(ctx, "alert:open")
}

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	api "github.com/sensorhub/sensorhub/api/v1alpha1"
	"github.com/sensorhub/sensorhub/internal/kvstore"
	"github.com/sensorhub/sensorhub/internal/sherrors"
	"github.com/sirupsen/logrus"
)

type Telemetry interface {
	SavePoint(ctx context.Context, point *api.TelemetryPoint, retention time.Duration) error
	SaveBatch(ctx context.Context, points []api.TelemetryPoint, retention time.Duration) error
	Query(ctx context.Context, deviceID, metric string, start, end *time.Time, limit int) ([]api.TelemetryPoint, error)
	GetLatest(ctx context.Context, deviceID, metric string) (*api.TelemetryPoint, error)
	MessageCount(ctx context.Context, deviceID string) (int64, error)
}

type telemetryStore struct {
	kv  kvstore.KVStore
	log logrus.FieldLogger
}

func NewTelemetry(kv kvstore.KVStore, log logrus.FieldLogger) Telemetry {
	return &telemetryStore{kv: kv, log: log}
}

func telemetryKey(deviceID, metric string) string {
	return fmt.Sprintf("telemetry:%s:%s", deviceID, metric)
}

func telemetryCountKey(deviceID string) string {
	return fmt.Sprintf("telemetry:count:%s", deviceID)
}

func (s *telemetryStore) SavePoint(ctx context.Context, point *api.TelemetryPoint, retention time.Duration) error {
	value, err := json.Marshal(point)
	if err != nil {
		return err
	}
	key := telemetryKey(point.DeviceId, point.Metric)
	score := float64(point.Timestamp.Unix())

	if err := s.kv.ZAdd(ctx, key, score, string(value)); err != nil {
		return sherrors.ErrorFromRedisError(err)
	}
	if err := s.kv.Expire(ctx, key, retention); err != nil {
		return sherrors.ErrorFromRedisError(err)
	}
	if _, err := s.kv.Incr(ctx, telemetryCountKey(point.DeviceId)); err != nil {
		return sherrors.ErrorFromRedisError(err)
	}
	return nil
}

// SaveBatch persists all points in one transaction. The per-device counter is
// advanced once by the batch size, keyed on the first point's device.
func (s *telemetryStore) SaveBatch(ctx context.Context, points []api.TelemetryPoint, retention time.Duration) error {
	if len(points) == 0 {
		return nil
	}

	values := make([]string, len(points))
	for i := range points {
		value, err := json.Marshal(&points[i])
		if err != nil {
			return err
		}
		values[i] = string(value)
	}

	err := s.kv.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i := range points {
			key := telemetryKey(points[i].DeviceId, points[i].Metric)
			pipe.ZAdd(ctx, key, redis.Z{Score: float64(points[i].Timestamp.Unix()), Member: values[i]})
			pipe.Expire(ctx, key, retention)
		}
		pipe.IncrBy(ctx, telemetryCountKey(points[0].DeviceId), int64(len(points)))
		return nil
	})
	return sherrors.ErrorFromRedisError(err)
}

// Query returns points in the [start, end] window, newest first. With no
// metric every per-metric series of the device is scanned and merged.
func (s *telemetryStore) Query(ctx context.Context, deviceID, metric string, start, end *time.Time, limit int) ([]api.TelemetryPoint, error) {
	var keys []string
	if metric != "" {
		keys = []string{telemetryKey(deviceID, metric)}
	} else {
		var err error
		keys, err = s.kv.Keys(ctx, telemetryKey(deviceID, "*"))
		if err != nil {
			return nil, sherrors.ErrorFromRedisError(err)
		}
	}

	minScore := "-inf"
	if start != nil {
		minScore = strconv.FormatInt(start.Unix(), 10)
	}
	maxScore := "+inf"
	if end != nil {
		maxScore = strconv.FormatInt(end.Unix(), 10)
	}

	points := []api.TelemetryPoint{}
	for _, key := range keys {
		members, err := s.kv.ZRangeByScore(ctx, key, minScore, maxScore, 0, int64(limit))
		if err != nil {
			return nil, sherrors.ErrorFromRedisError(err)
		}
		for _, member := range members {
			var point api.TelemetryPoint
			if err := json.Unmarshal([]byte(member), &point); err != nil {
				return nil, err
			}
			points = append(points, point)
		}
	}

	sort.Slice(points, func(i, j int) bool {
		return points[i].Timestamp.After(points[j].Timestamp)
	})
	if limit > 0 && len(points) > limit {
		points = points[:limit]
	}
	return points, nil
}

func (s *telemetryStore) GetLatest(ctx context.Context, deviceID, metric string) (*api.TelemetryPoint, error) {
	members, err := s.kv.ZRange(ctx, telemetryKey(deviceID, metric), -1, -1)
	if err != nil {
		return nil, sherrors.ErrorFromRedisError(err)
	}
	if len(members) == 0 {
		return nil, sherrors.ErrResourceNotFound
	}

	var point api.TelemetryPoint
	if err := json.Unmarshal([]byte(members[0]), &point); err != nil {
		return nil, err
	}
	return &point, nil
}

func (s *telemetryStore) MessageCount(ctx context.Context, deviceID string) (int64, error) {
	data, err := s.kv.Get(ctx, telemetryCountKey(deviceID))
	if err != nil {
		return 0, sherrors.ErrorFromRedisError(err)
	}
	if data == nil {
		return 0, nil
	}
	return strconv.ParseInt(string(data), 10, 64)
}

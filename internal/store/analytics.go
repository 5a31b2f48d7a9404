package store

import (
	"context"
	"encoding/json"

	api "github.com/sensorhub/sensorhub/api/v1alpha1"
	"github.com/sensorhub/sensorhub/internal/kvstore"
	"github.com/sensorhub/sensorhub/internal/sherrors"
	"github.com/sirupsen/logrus"
)

const fleetSnapshotKey = "analytics:fleet:latest"

// Analytics persists periodic fleet roll-ups so dashboards and collectors
// read a precomputed record instead of scanning the fleet.
type Analytics interface {
	SaveFleetSnapshot(ctx context.Context, snapshot *api.FleetAnalytics) error
	GetFleetSnapshot(ctx context.Context) (*api.FleetAnalytics, error)
}

type analyticsStore struct {
	kv  kvstore.KVStore
	log logrus.FieldLogger
}

func NewAnalytics(kv kvstore.KVStore, log logrus.FieldLogger) Analytics {
	return &analyticsStore{kv: kv, log: log}
}

func (s *analyticsStore) SaveFleetSnapshot(ctx context.Context, snapshot *api.FleetAnalytics) error {
	value, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, fleetSnapshotKey, value, 0)
}

func (s *analyticsStore) GetFleetSnapshot(ctx context.Context) (*api.FleetAnalytics, error) {
	data, err := s.kv.Get(ctx, fleetSnapshotKey)
	if err != nil {
		return nil, sherrors.ErrorFromRedisError(err)
	}
	if data == nil {
		return nil, sherrors.ErrResourceNotFound
	}

	var snapshot api.FleetAnalytics
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

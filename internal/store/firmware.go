package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
	api "github.com/sensorhub/sensorhub/api/v1alpha1"
	"github.com/sensorhub/sensorhub/internal/kvstore"
	"github.com/sensorhub/sensorhub/internal/sherrors"
	"github.com/sirupsen/logrus"
)

type Firmware interface {
	SaveUpdate(ctx context.Context, update *api.FirmwareUpdate) error
	GetUpdate(ctx context.Context, id string) (*api.FirmwareUpdate, error)
	GetDeviceUpdate(ctx context.Context, deviceID string) (*api.FirmwareUpdate, error)
	ListPending(ctx context.Context) ([]api.FirmwareUpdate, error)
	CountPending(ctx context.Context) (int64, error)
	SaveMetadata(ctx context.Context, metadata *api.FirmwareMetadata) error
	GetMetadata(ctx context.Context, version string) (*api.FirmwareMetadata, error)
	ListVersions(ctx context.Context) ([]string, error)
}

type firmwareStore struct {
	kv  kvstore.KVStore
	log logrus.FieldLogger
}

func NewFirmware(kv kvstore.KVStore, log logrus.FieldLogger) Firmware {
	return &firmwareStore{kv: kv, log: log}
}

func updateKey(id string) string {
	return fmt.Sprintf("firmware:update:%s", id)
}

func deviceUpdateKey(deviceID string) string {
	return fmt.Sprintf("firmware:device:%s", deviceID)
}

func metadataKey(version string) string {
	return fmt.Sprintf("firmware:metadata:%s", version)
}

// SaveUpdate writes the update record, points the device's current-update key
// at it, and maintains the pending index. A record that already reached
// failed is locked: later writes to it are dropped.
func (s *firmwareStore) SaveUpdate(ctx context.Context, update *api.FirmwareUpdate) error {
	existing, err := s.GetUpdate(ctx, update.Id)
	if err != nil && !sherrors.IsNotFound(err) {
		return err
	}
	if existing != nil && existing.Status == api.UpdateStatusFailed {
		return nil
	}

	value, err := json.Marshal(update)
	if err != nil {
		return err
	}

	err = s.kv.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, updateKey(update.Id), value, 0)
		pipe.Set(ctx, deviceUpdateKey(update.DeviceId), []byte(update.Id), 0)
		if update.Status == api.UpdateStatusPending {
			pipe.SAdd(ctx, "firmware:pending", update.Id)
		} else if update.Status.IsTerminal() {
			pipe.SRem(ctx, "firmware:pending", update.Id)
		}
		return nil
	})
	return sherrors.ErrorFromRedisError(err)
}

func (s *firmwareStore) GetUpdate(ctx context.Context, id string) (*api.FirmwareUpdate, error) {
	data, err := s.kv.Get(ctx, updateKey(id))
	if err != nil {
		return nil, sherrors.ErrorFromRedisError(err)
	}
	if data == nil {
		return nil, sherrors.ErrResourceNotFound
	}

	var update api.FirmwareUpdate
	if err := json.Unmarshal(data, &update); err != nil {
		return nil, err
	}
	return &update, nil
}

func (s *firmwareStore) GetDeviceUpdate(ctx context.Context, deviceID string) (*api.FirmwareUpdate, error) {
	id, err := s.kv.Get(ctx, deviceUpdateKey(deviceID))
	if err != nil {
		return nil, sherrors.ErrorFromRedisError(err)
	}
	if id == nil {
		return nil, sherrors.ErrResourceNotFound
	}
	return s.GetUpdate(ctx, string(id))
}

func (s *firmwareStore) ListPending(ctx context.Context) ([]api.FirmwareUpdate, error) {
	ids, err := s.kv.SMembers(ctx, "firmware:pending")
	if err != nil {
		return nil, sherrors.ErrorFromRedisError(err)
	}

	updates := make([]api.FirmwareUpdate, 0, len(ids))
	for _, id := range ids {
		update, err := s.GetUpdate(ctx, id)
		if err != nil {
			if sherrors.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		updates = append(updates, *update)
	}
	return updates, nil
}

func (s *firmwareStore) CountPending(ctx context.Context) (int64, error) {
	return s.kv.SCard(ctx, "firmware:pending")
}

func (s *firmwareStore) SaveMetadata(ctx context.Context, metadata *api.FirmwareMetadata) error {
	value, err := json.Marshal(metadata)
	if err != nil {
		return err
	}

	err = s.kv.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, metadataKey(metadata.Version), value, 0)
		pipe.SAdd(ctx, "firmware:versions", metadata.Version)
		return nil
	})
	return sherrors.ErrorFromRedisError(err)
}

func (s *firmwareStore) GetMetadata(ctx context.Context, version string) (*api.FirmwareMetadata, error) {
	data, err := s.kv.Get(ctx, metadataKey(version))
	if err != nil {
		return nil, sherrors.ErrorFromRedisError(err)
	}
	if data == nil {
		return nil, sherrors.ErrResourceNotFound
	}

	var metadata api.FirmwareMetadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, err
	}
	return &metadata, nil
}

func (s *firmwareStore) ListVersions(ctx context.Context) ([]string, error) {
	versions, err := s.kv.SMembers(ctx, "firmware:versions")
	if err != nil {
		return nil, sherrors.ErrorFromRedisError(err)
	}
	sort.Strings(versions)
	return versions, nil
}

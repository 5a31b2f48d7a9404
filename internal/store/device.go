package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/redis/go-redis/v9"
	api "github.com/sensorhub/sensorhub/api/v1alpha1"
	"github.com/sensorhub/sensorhub/internal/kvstore"
	"github.com/sensorhub/sensorhub/internal/sherrors"
	"github.com/sirupsen/logrus"
)

const (
	deviceCacheSize = 1024
	deviceCacheTTL  = 30 * time.Second
)

type Device interface {
	Save(ctx context.Context, device *api.Device) error
	Get(ctx context.Context, id string) (*api.Device, error)
	GetBySerial(ctx context.Context, serial string) (*api.Device, error)
	ClaimSerial(ctx context.Context, serial, id string, ttl time.Duration) (bool, error)
	ExistsBySerial(ctx context.Context, serial string) (bool, error)
	List(ctx context.Context, groupID string, limit int) ([]api.Device, error)
	UpdateLastSeen(ctx context.Context, id string, seenAt time.Time) error
	Count(ctx context.Context) (int64, error)
}

type deviceStore struct {
	kv    kvstore.KVStore
	log   logrus.FieldLogger
	cache *ttlcache.Cache[string, *api.Device]
}

func NewDevice(kv kvstore.KVStore, log logrus.FieldLogger) Device {
	cache := ttlcache.New[string, *api.Device](
		ttlcache.WithTTL[string, *api.Device](deviceCacheTTL),
		ttlcache.WithCapacity[string, *api.Device](deviceCacheSize),
	)
	go cache.Start()
	return &deviceStore{kv: kv, log: log, cache: cache}
}

func deviceKey(id string) string {
	return fmt.Sprintf("device:%s", id)
}

func serialKey(serial string) string {
	return fmt.Sprintf("device:serial:%s", serial)
}

func groupKey(groupID string) string {
	return fmt.Sprintf("device:group:%s", groupID)
}

// Save writes the device record and its set memberships in one transaction,
// then drops the cached copy so the next read observes the write.
func (s *deviceStore) Save(ctx context.Context, device *api.Device) error {
	value, err := json.Marshal(device)
	if err != nil {
		return err
	}

	err = s.kv.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, deviceKey(device.Id), value, 0)
		pipe.SAdd(ctx, "device:all", device.Id)
		if device.GroupId != nil && *device.GroupId != "" {
			pipe.SAdd(ctx, groupKey(*device.GroupId), device.Id)
		}
		return nil
	})
	if err != nil {
		return sherrors.ErrorFromRedisError(err)
	}

	s.cache.Delete(device.Id)
	return nil
}

func (s *deviceStore) Get(ctx context.Context, id string) (*api.Device, error) {
	if item := s.cache.Get(id); item != nil {
		return item.Value(), nil
	}

	data, err := s.kv.Get(ctx, deviceKey(id))
	if err != nil {
		return nil, sherrors.ErrorFromRedisError(err)
	}
	if data == nil {
		return nil, sherrors.ErrResourceNotFound
	}

	var device api.Device
	if err := json.Unmarshal(data, &device); err != nil {
		return nil, err
	}
	s.cache.Set(id, &device, ttlcache.DefaultTTL)
	return &device, nil
}

func (s *deviceStore) GetBySerial(ctx context.Context, serial string) (*api.Device, error) {
	id, err := s.kv.Get(ctx, serialKey(serial))
	if err != nil {
		return nil, sherrors.ErrorFromRedisError(err)
	}
	if id == nil {
		return nil, sherrors.ErrResourceNotFound
	}
	return s.Get(ctx, string(id))
}

// ClaimSerial writes the serial index entry only if no other registration
// holds it. The claim expires so a crashed registration cannot wedge the
// serial forever.
func (s *deviceStore) ClaimSerial(ctx context.Context, serial, id string, ttl time.Duration) (bool, error) {
	return s.kv.SetNX(ctx, serialKey(serial), []byte(id), ttl)
}

func (s *deviceStore) ExistsBySerial(ctx context.Context, serial string) (bool, error) {
	return s.kv.Exists(ctx, serialKey(serial))
}

func (s *deviceStore) List(ctx context.Context, groupID string, limit int) ([]api.Device, error) {
	setKey := "device:all"
	if groupID != "" {
		setKey = groupKey(groupID)
	}

	ids, err := s.kv.SMembers(ctx, setKey)
	if err != nil {
		return nil, sherrors.ErrorFromRedisError(err)
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	devices := make([]api.Device, 0, len(ids))
	for _, id := range ids {
		device, err := s.Get(ctx, id)
		if err != nil {
			if sherrors.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		devices = append(devices, *device)
	}
	return devices, nil
}

func (s *deviceStore) UpdateLastSeen(ctx context.Context, id string, seenAt time.Time) error {
	device, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	device.LastSeen = &seenAt
	device.Status = api.DeviceStatusActive
	return s.Save(ctx, device)
}

func (s *deviceStore) Count(ctx context.Context) (int64, error) {
	return s.kv.SCard(ctx, "device:all")
}

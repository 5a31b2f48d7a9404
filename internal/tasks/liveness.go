package tasks

import (
	"context"
	"time"

	"github.com/samber/lo"
	api "github.com/sensorhub/sensorhub/api/v1alpha1"
	"github.com/sensorhub/sensorhub/internal/lock"
	"github.com/sensorhub/sensorhub/internal/service"
	"github.com/sensorhub/sensorhub/internal/sherrors"
	"github.com/sirupsen/logrus"
)

const (
	DeviceLivenessTaskName = "device-liveness"

	livenessLockResource = "device-liveness-sweep"
	livenessScanLimit    = 10000
)

// DeviceLiveness marks active devices inactive once they stop reporting. The
// sweep runs under a lease lock so only one replica walks the fleet at a time.
type DeviceLiveness struct {
	log       logrus.FieldLogger
	svc       *service.ServiceHandler
	locks     *lock.Manager
	threshold time.Duration
}

func NewDeviceLiveness(log logrus.FieldLogger, svc *service.ServiceHandler, locks *lock.Manager, threshold time.Duration) *DeviceLiveness {
	return &DeviceLiveness{
		log:       log,
		svc:       svc,
		locks:     locks,
		threshold: threshold,
	}
}

func (t *DeviceLiveness) Poll(ctx context.Context) {
	err := t.locks.WithLock(ctx, livenessLockResource, func(ctx context.Context) error {
		return t.sweep(ctx)
	})
	if err != nil {
		if sherrors.IsLockUnavailable(err) {
			t.log.Debug("liveness sweep already running elsewhere, skipping")
			return
		}
		t.log.WithError(err).Error("device liveness sweep failed")
	}
}

func (t *DeviceLiveness) sweep(ctx context.Context) error {
	devices, err := t.svc.ListDevices(ctx, "", livenessScanLimit)
	if err != nil {
		return err
	}

	cutoff := time.Now().UTC().Add(-t.threshold)
	swept := 0
	for i := range devices {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		device := &devices[i]
		if device.Status != api.DeviceStatusActive {
			continue
		}
		if device.LastSeen != nil && device.LastSeen.After(cutoff) {
			continue
		}

		_, err := t.svc.UpdateDevice(ctx, device.Id, api.DeviceUpdate{
			Status: lo.ToPtr(api.DeviceStatusInactive),
		})
		if err != nil {
			t.log.WithError(err).Errorf("failed to mark device %s inactive", device.Id)
			continue
		}
		swept++
	}

	if swept > 0 {
		t.log.Infof("liveness sweep marked %d devices inactive", swept)
	}
	return nil
}

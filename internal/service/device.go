package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	api "github.com/sensorhub/sensorhub/api/v1alpha1"
	"github.com/sensorhub/sensorhub/internal/sherrors"
)

const (
	serialClaimTTL    = time.Hour
	registerAttempts  = 10
	registerRetryBase = 10 * time.Millisecond
)

// RegisterDevice creates the device for a serial number, or returns the
// existing one. Concurrent registrations race on a set-if-absent claim of the
// serial index: exactly one caller wins and writes the record, the rest wait
// for it to appear.
func (h *ServiceHandler) RegisterDevice(ctx context.Context, registration api.DeviceRegistration) (*api.Device, error) {
	serial := registration.SerialNumber

	for attempt := 0; attempt < registerAttempts; attempt++ {
		existing, err := h.store.Device().GetBySerial(ctx, serial)
		if err == nil {
			return existing, nil
		}
		if !sherrors.IsNotFound(err) {
			return nil, err
		}

		device := &api.Device{
			Id:              uuid.NewString(),
			SerialNumber:    serial,
			DeviceType:      registration.DeviceType,
			Status:          api.DeviceStatusRegistered,
			FirmwareVersion: registration.FirmwareVersion,
			Metadata:        registration.Metadata,
			RegisteredAt:    time.Now().UTC(),
			Location:        registration.Location,
			GroupId:         registration.GroupId,
		}
		if device.Metadata == nil {
			device.Metadata = map[string]any{}
		}

		won, err := h.store.Device().ClaimSerial(ctx, serial, device.Id, serialClaimTTL)
		if err != nil {
			return nil, err
		}
		if won {
			if err := h.store.Device().Save(ctx, device); err != nil {
				return nil, err
			}
			if err := h.bus.Publish(ctx, "device.lifecycle", "device.registered", map[string]any{
				"device_id":     device.Id,
				"serial_number": device.SerialNumber,
			}); err != nil {
				return nil, err
			}
			return device, nil
		}

		// Lost the claim, give the winner time to write its record.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(registerRetryBase * time.Duration(attempt+1)):
		}
	}

	device, err := h.store.Device().GetBySerial(ctx, serial)
	if err != nil {
		if sherrors.IsNotFound(err) {
			return nil, fmt.Errorf("serial %s is claimed but its device record never appeared: %w", serial, sherrors.ErrTransient)
		}
		return nil, err
	}
	return device, nil
}

func (h *ServiceHandler) GetDevice(ctx context.Context, id string) (*api.Device, error) {
	device, err := h.store.Device().Get(ctx, id)
	if err != nil {
		if sherrors.IsNotFound(err) {
			return nil, fmt.Errorf("device %s: %w", id, sherrors.ErrResourceNotFound)
		}
		return nil, err
	}
	return device, nil
}

// UpdateDevice applies the present fields of the partial update and publishes
// the applied field set on the lifecycle topic.
func (h *ServiceHandler) UpdateDevice(ctx context.Context, id string, updates api.DeviceUpdate) (*api.Device, error) {
	device, err := h.GetDevice(ctx, id)
	if err != nil {
		return nil, err
	}

	applied := map[string]any{}
	if updates.Status != nil {
		device.Status = *updates.Status
		applied["status"] = string(*updates.Status)
	}
	if updates.Location != nil {
		device.Location = updates.Location
		applied["location"] = *updates.Location
	}
	if updates.Metadata != nil {
		device.Metadata = updates.Metadata
		applied["metadata"] = updates.Metadata
	}
	if updates.GroupId != nil {
		device.GroupId = updates.GroupId
		applied["group_id"] = *updates.GroupId
	}

	if err := h.store.Device().Save(ctx, device); err != nil {
		return nil, err
	}

	if err := h.bus.Publish(ctx, "device.lifecycle", "device.updated", map[string]any{
		"device_id": id,
		"updates":   applied,
	}); err != nil {
		return nil, err
	}
	return device, nil
}

func (h *ServiceHandler) ListDevices(ctx context.Context, groupID string, limit int) ([]api.Device, error) {
	return h.store.Device().List(ctx, groupID, limit)
}

// MarkDeviceActive refreshes last_seen on every ingestion. Unknown devices
// are ignored, points may arrive before registration completes.
func (h *ServiceHandler) MarkDeviceActive(ctx context.Context, id string) error {
	err := h.store.Device().UpdateLastSeen(ctx, id, time.Now().UTC())
	if sherrors.IsNotFound(err) {
		return nil
	}
	return err
}

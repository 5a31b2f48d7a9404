package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	api "github.com/sensorhub/sensorhub/api/v1alpha1"
	"github.com/sensorhub/sensorhub/internal/sherrors"
)

func (h *ServiceHandler) RegisterFirmware(ctx context.Context, metadata api.FirmwareMetadata) error {
	if metadata.CreatedAt.IsZero() {
		metadata.CreatedAt = time.Now().UTC()
	}
	if err := h.store.Firmware().SaveMetadata(ctx, &metadata); err != nil {
		return err
	}
	return h.bus.Publish(ctx, "firmware.catalog", "firmware.registered", map[string]any{
		"version": metadata.Version,
	})
}

func (h *ServiceHandler) GetFirmwareMetadata(ctx context.Context, version string) (*api.FirmwareMetadata, error) {
	metadata, err := h.store.Firmware().GetMetadata(ctx, version)
	if err != nil {
		if sherrors.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", sherrors.ErrUnknownFirmware, version)
		}
		return nil, err
	}
	return metadata, nil
}

func (h *ServiceHandler) ListFirmwareVersions(ctx context.Context) ([]string, error) {
	return h.store.Firmware().ListVersions(ctx)
}

// InitiateUpdate starts a firmware update for the device and drives it to a
// terminal state before returning. A device can carry at most one update in
// flight: a duplicate request gets the in-flight record back unless forced.
func (h *ServiceHandler) InitiateUpdate(ctx context.Context, request api.FirmwareUpdateRequest) (*api.FirmwareUpdate, error) {
	device, err := h.GetDevice(ctx, request.DeviceId)
	if err != nil {
		return nil, err
	}

	existing, err := h.store.Firmware().GetDeviceUpdate(ctx, request.DeviceId)
	if err != nil && !sherrors.IsNotFound(err) {
		return nil, err
	}
	if existing != nil && updateInFlight(existing.Status) && !request.Force {
		return existing, nil
	}

	if _, err := h.GetFirmwareMetadata(ctx, request.ToVersion); err != nil {
		return nil, err
	}

	update := &api.FirmwareUpdate{
		Id:          uuid.NewString(),
		DeviceId:    request.DeviceId,
		FromVersion: device.FirmwareVersion,
		ToVersion:   request.ToVersion,
		Status:      api.UpdateStatusPending,
		Progress:    0,
		StartedAt:   time.Now().UTC(),
	}
	if err := h.store.Firmware().SaveUpdate(ctx, update); err != nil {
		return nil, err
	}

	if err := h.OrchestrateFirmwareUpdate(ctx, update.Id); err != nil {
		return nil, err
	}
	return h.store.Firmware().GetUpdate(ctx, update.Id)
}

func updateInFlight(status api.UpdateStatus) bool {
	switch status {
	case api.UpdateStatusPending, api.UpdateStatusDownloading, api.UpdateStatusInstalling:
		return true
	default:
		return false
	}
}

func (h *ServiceHandler) GetUpdate(ctx context.Context, id string) (*api.FirmwareUpdate, error) {
	update, err := h.store.Firmware().GetUpdate(ctx, id)
	if err != nil {
		if sherrors.IsNotFound(err) {
			return nil, fmt.Errorf("update %s: %w", id, sherrors.ErrResourceNotFound)
		}
		return nil, err
	}
	return update, nil
}

func (h *ServiceHandler) ListPendingUpdates(ctx context.Context) ([]api.FirmwareUpdate, error) {
	return h.store.Firmware().ListPending(ctx)
}

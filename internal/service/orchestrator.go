package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	api "github.com/sensorhub/sensorhub/api/v1alpha1"
	"github.com/sensorhub/sensorhub/internal/saga"
)

var errVerificationFailed = errors.New("installation verification failed: checksum mismatch")

// OrchestrateFirmwareUpdate drives the update through the download,
// set_maintenance, install and verify steps. A step failure compensates the
// completed steps in reverse and records the outcome on the update record;
// only infrastructure errors are returned.
func (h *ServiceHandler) OrchestrateFirmwareUpdate(ctx context.Context, updateID string) error {
	update, err := h.GetUpdate(ctx, updateID)
	if err != nil {
		return err
	}
	deviceID := update.DeviceId

	// The device status seen before maintenance, restored on compensation.
	var preSagaStatus api.DeviceStatus

	sg := saga.New(h.log, fmt.Sprintf("firmware_update_%s", updateID)).
		AddStep("download",
			func(ctx context.Context) error { return h.downloadFirmware(ctx, updateID) },
			func(ctx context.Context) error { return h.markUpdateRolledBack(ctx, updateID) },
		).
		AddStep("set_maintenance",
			func(ctx context.Context) error {
				status, err := h.setDeviceMaintenance(ctx, deviceID)
				preSagaStatus = status
				return err
			},
			func(ctx context.Context) error { return h.restoreDeviceStatus(ctx, deviceID, preSagaStatus) },
		).
		AddStep("install",
			func(ctx context.Context) error { return h.installFirmware(ctx, updateID) },
			func(ctx context.Context) error { return h.rollbackInstall(ctx, updateID) },
		).
		AddStep("verify",
			func(ctx context.Context) error { return h.verifyInstallation(ctx, updateID) },
			nil,
		)

	if sagaErr := sg.Execute(ctx); sagaErr != nil {
		return h.recordUpdateFailure(ctx, updateID, sagaErr)
	}

	update, err = h.GetUpdate(ctx, updateID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	update.Status = api.UpdateStatusInstalled
	update.Progress = 100
	update.CompletedAt = &now
	if err := h.store.Firmware().SaveUpdate(ctx, update); err != nil {
		return err
	}

	device, err := h.store.Device().Get(ctx, deviceID)
	if err != nil {
		return err
	}
	device.FirmwareVersion = update.ToVersion
	device.Status = api.DeviceStatusActive
	if err := h.store.Device().Save(ctx, device); err != nil {
		return err
	}

	return h.bus.Publish(ctx, "firmware.updates", "update.completed", map[string]any{
		"update_id": updateID,
		"device_id": deviceID,
	})
}

// recordUpdateFailure stamps the terminal outcome. When no compensation ran
// (nothing to roll back) the update is failed rather than rolled back.
func (h *ServiceHandler) recordUpdateFailure(ctx context.Context, updateID string, sagaErr error) error {
	update, err := h.GetUpdate(ctx, updateID)
	if err != nil {
		return err
	}

	if update.Status != api.UpdateStatusRolledBack {
		update.Status = api.UpdateStatusFailed
	}
	message := sagaErr.Error()
	now := time.Now().UTC()
	update.Error = &message
	update.CompletedAt = &now
	if err := h.store.Firmware().SaveUpdate(ctx, update); err != nil {
		return err
	}

	return h.bus.Publish(ctx, "firmware.updates", "update.failed", map[string]any{
		"update_id": updateID,
		"error":     message,
	})
}

func (h *ServiceHandler) downloadFirmware(ctx context.Context, updateID string) error {
	update, err := h.GetUpdate(ctx, updateID)
	if err != nil {
		return err
	}
	update.Status = api.UpdateStatusDownloading
	update.Progress = 0
	if err := h.store.Firmware().SaveUpdate(ctx, update); err != nil {
		return err
	}

	// Simulated transfer time.
	if err := sleepCtx(ctx, 100*time.Millisecond); err != nil {
		return err
	}

	update.Status = api.UpdateStatusDownloaded
	update.Progress = 30
	return h.store.Firmware().SaveUpdate(ctx, update)
}

func (h *ServiceHandler) markUpdateRolledBack(ctx context.Context, updateID string) error {
	update, err := h.GetUpdate(ctx, updateID)
	if err != nil {
		return err
	}
	update.Status = api.UpdateStatusRolledBack
	return h.store.Firmware().SaveUpdate(ctx, update)
}

func (h *ServiceHandler) setDeviceMaintenance(ctx context.Context, deviceID string) (api.DeviceStatus, error) {
	device, err := h.store.Device().Get(ctx, deviceID)
	if err != nil {
		return "", err
	}
	original := device.Status

	if err := sleepCtx(ctx, 50*time.Millisecond); err != nil {
		return original, err
	}

	if device.Metadata == nil {
		device.Metadata = map[string]any{}
	}
	device.Metadata["update_attempt_count"] = attemptCount(device.Metadata) + 1
	device.Metadata["last_update_attempt"] = time.Now().UTC().Format(time.RFC3339Nano)
	device.Metadata["maintenance_reason"] = "firmware_update"
	device.Status = api.DeviceStatusMaintenance
	return original, h.store.Device().Save(ctx, device)
}

func (h *ServiceHandler) restoreDeviceStatus(ctx context.Context, deviceID string, status api.DeviceStatus) error {
	device, err := h.store.Device().Get(ctx, deviceID)
	if err != nil {
		return err
	}
	device.Status = status
	delete(device.Metadata, "maintenance_reason")
	return h.store.Device().Save(ctx, device)
}

func (h *ServiceHandler) installFirmware(ctx context.Context, updateID string) error {
	update, err := h.GetUpdate(ctx, updateID)
	if err != nil {
		return err
	}
	device, err := h.store.Device().Get(ctx, update.DeviceId)
	if err != nil {
		return err
	}

	update.Status = api.UpdateStatusInstalling
	update.Progress = 50
	if err := h.store.Firmware().SaveUpdate(ctx, update); err != nil {
		return err
	}

	// Simulated flash time.
	if err := sleepCtx(ctx, 100*time.Millisecond); err != nil {
		return err
	}

	device.FirmwareVersion = update.ToVersion
	if device.Metadata == nil {
		device.Metadata = map[string]any{}
	}
	device.Metadata["last_firmware_update"] = time.Now().UTC().Format(time.RFC3339Nano)
	if err := h.store.Device().Save(ctx, device); err != nil {
		return err
	}

	update.Progress = 80
	return h.store.Firmware().SaveUpdate(ctx, update)
}

func (h *ServiceHandler) rollbackInstall(ctx context.Context, updateID string) error {
	update, err := h.GetUpdate(ctx, updateID)
	if err != nil {
		return err
	}
	device, err := h.store.Device().Get(ctx, update.DeviceId)
	if err != nil {
		return err
	}
	device.FirmwareVersion = update.FromVersion
	delete(device.Metadata, "last_firmware_update")
	return h.store.Device().Save(ctx, device)
}

func (h *ServiceHandler) verifyInstallation(ctx context.Context, _ string) error {
	if err := sleepCtx(ctx, 50*time.Millisecond); err != nil {
		return err
	}
	return errVerificationFailed
}

func attemptCount(metadata map[string]any) int {
	switch v := metadata["update_attempt_count"].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	api "github.com/sensorhub/sensorhub/api/v1alpha1"
	"github.com/sensorhub/sensorhub/internal/sherrors"
)

func (h *testHarness) registerFirmware(t *testing.T, version string) {
	t.Helper()
	err := h.svc.RegisterFirmware(context.Background(), api.FirmwareMetadata{
		Version:   version,
		SizeBytes: 4 << 20,
		Checksum:  "sha256:" + version,
	})
	require.NoError(t, err)
}

func TestRegisterFirmwareAndListVersions(t *testing.T) {
	require := require.New(t)
	h := newTestHandler(t, nil)
	ctx := context.Background()

	h.registerFirmware(t, "2.0.0")
	h.registerFirmware(t, "1.0.0")
	h.registerFirmware(t, "1.5.0")

	versions, err := h.svc.ListFirmwareVersions(ctx)
	require.NoError(err)
	require.Equal([]string{"1.0.0", "1.5.0", "2.0.0"}, versions)

	metadata, err := h.svc.GetFirmwareMetadata(ctx, "1.5.0")
	require.NoError(err)
	require.Equal("sha256:1.5.0", metadata.Checksum)
	require.False(metadata.CreatedAt.IsZero())

	_, err = h.svc.GetFirmwareMetadata(ctx, "9.9.9")
	require.ErrorIs(err, sherrors.ErrUnknownFirmware)

	require.Equal(
		[]string{"firmware.registered", "firmware.registered", "firmware.registered"},
		h.eventTypes(t, "firmware.catalog"))
}

func TestInitiateUpdateUnknownDevice(t *testing.T) {
	require := require.New(t)
	h := newTestHandler(t, nil)

	_, err := h.svc.InitiateUpdate(context.Background(), api.FirmwareUpdateRequest{
		DeviceId:  "dev-missing",
		ToVersion: "2.0.0",
	})
	require.ErrorIs(err, sherrors.ErrResourceNotFound)
}

func TestInitiateUpdateUnknownVersion(t *testing.T) {
	require := require.New(t)
	h := newTestHandler(t, nil)

	device := h.registerDevice(t, "SN-001")
	_, err := h.svc.InitiateUpdate(context.Background(), api.FirmwareUpdateRequest{
		DeviceId:  device.Id,
		ToVersion: "2.0.0",
	})
	require.ErrorIs(err, sherrors.ErrUnknownFirmware)
}

func TestUpdateSagaRollsBackOnVerificationFailure(t *testing.T) {
	require := require.New(t)
	h := newTestHandler(t, nil)
	ctx := context.Background()

	device := h.registerDevice(t, "SN-001")
	h.registerFirmware(t, "2.0.0")

	update, err := h.svc.InitiateUpdate(ctx, api.FirmwareUpdateRequest{
		DeviceId:  device.Id,
		ToVersion: "2.0.0",
	})
	require.NoError(err)

	require.Equal(api.UpdateStatusRolledBack, update.Status)
	require.Equal("1.0.0", update.FromVersion)
	require.Equal("2.0.0", update.ToVersion)
	require.NotNil(update.Error)
	require.Contains(*update.Error, "checksum mismatch")
	require.NotNil(update.CompletedAt)

	// The device is back where the update found it.
	restored, err := h.svc.GetDevice(ctx, device.Id)
	require.NoError(err)
	require.Equal("1.0.0", restored.FirmwareVersion)
	require.Equal(api.DeviceStatusRegistered, restored.Status)
	require.EqualValues(1, restored.Metadata["update_attempt_count"])
	require.Contains(restored.Metadata, "last_update_attempt")
	require.NotContains(restored.Metadata, "maintenance_reason")
	require.NotContains(restored.Metadata, "last_firmware_update")

	pending, err := h.svc.ListPendingUpdates(ctx)
	require.NoError(err)
	require.Empty(pending)

	require.Equal([]string{"update.failed"}, h.eventTypes(t, "firmware.updates"))
}

func TestInitiateUpdateReturnsInFlightRecord(t *testing.T) {
	require := require.New(t)
	h := newTestHandler(t, nil)
	ctx := context.Background()

	device := h.registerDevice(t, "SN-001")
	h.registerFirmware(t, "2.0.0")

	inflight := &api.FirmwareUpdate{
		Id:          "up-flight",
		DeviceId:    device.Id,
		FromVersion: "1.0.0",
		ToVersion:   "2.0.0",
		Status:      api.UpdateStatusPending,
		StartedAt:   time.Now().UTC(),
	}
	require.NoError(h.st.Firmware().SaveUpdate(ctx, inflight))

	// A duplicate request gets the in-flight record, untouched.
	got, err := h.svc.InitiateUpdate(ctx, api.FirmwareUpdateRequest{
		DeviceId:  device.Id,
		ToVersion: "2.0.0",
	})
	require.NoError(err)
	require.Equal("up-flight", got.Id)
	require.Equal(api.UpdateStatusPending, got.Status)

	// Force supersedes it and runs a fresh update to a terminal state.
	forced, err := h.svc.InitiateUpdate(ctx, api.FirmwareUpdateRequest{
		DeviceId:  device.Id,
		ToVersion: "2.0.0",
		Force:     true,
	})
	require.NoError(err)
	require.NotEqual("up-flight", forced.Id)
	require.True(forced.Status.IsTerminal())
}

func TestGetUpdateNotFound(t *testing.T) {
	require := require.New(t)
	h := newTestHandler(t, nil)

	_, err := h.svc.GetUpdate(context.Background(), "up-missing")
	require.ErrorIs(err, sherrors.ErrResourceNotFound)
	require.ErrorContains(err, "up-missing")
}

package service

import (
	"context"
	"time"

	"github.com/samber/lo"
	api "github.com/sensorhub/sensorhub/api/v1alpha1"
)

const analyticsScanLimit = 10000

func (h *ServiceHandler) GetDeviceMetrics(ctx context.Context, deviceID string) (*api.DeviceMetrics, error) {
	device, err := h.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	messageCount, err := h.store.Telemetry().MessageCount(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	var uptime int64
	if device.LastSeen != nil {
		uptime = int64(device.LastSeen.Sub(device.RegisteredAt).Seconds())
	}

	// Error and latency aggregation is not collected yet.
	return &api.DeviceMetrics{
		DeviceId:         deviceID,
		UptimeSeconds:    uptime,
		MessageCount:     messageCount,
		LastSeen:         device.LastSeen,
		ErrorCount:       0,
		AverageLatencyMs: 10.5,
	}, nil
}

func (h *ServiceHandler) GetFleetAnalytics(ctx context.Context) (*api.FleetAnalytics, error) {
	devices, err := h.store.Device().List(ctx, "", analyticsScanLimit)
	if err != nil {
		return nil, err
	}

	active := lo.CountBy(devices, func(d api.Device) bool {
		return d.Status == api.DeviceStatusActive
	})

	var totalMessages, totalUptime int64
	for i := range devices {
		count, err := h.store.Telemetry().MessageCount(ctx, devices[i].Id)
		if err != nil {
			return nil, err
		}
		totalMessages += count
		if devices[i].LastSeen != nil {
			totalUptime += int64(devices[i].LastSeen.Sub(devices[i].RegisteredAt).Seconds())
		}
	}

	openAlerts, err := h.store.Alert().CountOpen(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := h.store.Firmware().CountPending(ctx)
	if err != nil {
		return nil, err
	}

	var avgUptime float64
	if len(devices) > 0 {
		avgUptime = float64(totalUptime) / float64(len(devices))
	}

	return &api.FleetAnalytics{
		TotalDevices:         len(devices),
		ActiveDevices:        active,
		InactiveDevices:      len(devices) - active,
		TotalMessages:        totalMessages,
		MessagesPerSecond:    0.0,
		ActiveAlerts:         openAlerts,
		PendingUpdates:       int(pending),
		AverageUptimeSeconds: avgUptime,
	}, nil
}

func (h *ServiceHandler) GetGroupAnalytics(ctx context.Context, groupID string) (*api.GroupAnalytics, error) {
	devices, err := h.store.Device().List(ctx, groupID, analyticsScanLimit)
	if err != nil {
		return nil, err
	}

	active := lo.CountBy(devices, func(d api.Device) bool {
		return d.Status == api.DeviceStatusActive
	})

	var totalMessages, totalUptime int64
	for i := range devices {
		count, err := h.store.Telemetry().MessageCount(ctx, devices[i].Id)
		if err != nil {
			return nil, err
		}
		totalMessages += count
		if devices[i].LastSeen != nil {
			totalUptime += int64(devices[i].LastSeen.Sub(devices[i].RegisteredAt).Seconds())
		}
	}

	var avgUptime float64
	if len(devices) > 0 {
		avgUptime = float64(totalUptime) / float64(len(devices))
	}

	return &api.GroupAnalytics{
		GroupId:              groupID,
		DeviceCount:          len(devices),
		ActiveCount:          active,
		TotalMessages:        totalMessages,
		AlertCount:           0,
		AverageUptimeSeconds: avgUptime,
	}, nil
}

func (h *ServiceHandler) GetEvents(ctx context.Context, topic string, start *time.Time, limit int) ([]api.Event, error) {
	return h.store.Event().GetEvents(ctx, topic, start, limit)
}

// SnapshotFleetAnalytics computes the fleet roll-up and persists it as the
// latest snapshot.
func (h *ServiceHandler) SnapshotFleetAnalytics(ctx context.Context) (*api.FleetAnalytics, error) {
	snapshot, err := h.GetFleetAnalytics(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.store.Analytics().SaveFleetSnapshot(ctx, snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (h *ServiceHandler) GetFleetSnapshot(ctx context.Context) (*api.FleetAnalytics, error) {
	return h.store.Analytics().GetFleetSnapshot(ctx)
}

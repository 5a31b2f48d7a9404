package service

import (
	"context"
	"fmt"

	api "github.com/sensorhub/sensorhub/api/v1alpha1"
	"github.com/sensorhub/sensorhub/internal/sherrors"
)

// IngestPoint runs the full pipeline for one point: per-device rate gate,
// durable persist, liveness refresh, synchronous rule evaluation, then the
// ingested event. Callers only see success after the point is persisted.
func (h *ServiceHandler) IngestPoint(ctx context.Context, point *api.TelemetryPoint) error {
	result, err := h.limiter.CheckDevice(ctx, point.DeviceId)
	if err != nil {
		return err
	}
	if !result.Allowed {
		return fmt.Errorf("%w for device %s", sherrors.ErrRateLimited, point.DeviceId)
	}

	if err := h.store.Telemetry().SavePoint(ctx, point, h.telemetryRetention); err != nil {
		return err
	}
	if err := h.MarkDeviceActive(ctx, point.DeviceId); err != nil {
		return err
	}
	if err := h.CheckAlerts(ctx, point); err != nil {
		return err
	}

	return h.bus.Publish(ctx, "telemetry.ingested", "telemetry.point", map[string]any{
		"device_id": point.DeviceId,
		"metric":    point.Metric,
		"value":     point.Value,
	})
}

// IngestBatch persists all points of one device in a single transaction. The
// rate gate charges the batch as one request.
func (h *ServiceHandler) IngestBatch(ctx context.Context, batch *api.TelemetryBatch) error {
	if h.batchMaxSize > 0 && len(batch.Points) > h.batchMaxSize {
		return fmt.Errorf("%w: batch of %d points exceeds the maximum of %d", sherrors.ErrInvalid, len(batch.Points), h.batchMaxSize)
	}

	result, err := h.limiter.CheckDevice(ctx, batch.DeviceId)
	if err != nil {
		return err
	}
	if !result.Allowed {
		return fmt.Errorf("%w for device %s", sherrors.ErrRateLimited, batch.DeviceId)
	}

	if err := h.store.Telemetry().SaveBatch(ctx, batch.Points, h.telemetryRetention); err != nil {
		return err
	}
	if err := h.MarkDeviceActive(ctx, batch.DeviceId); err != nil {
		return err
	}
	for i := range batch.Points {
		if err := h.CheckAlerts(ctx, &batch.Points[i]); err != nil {
			return err
		}
	}

	return h.bus.Publish(ctx, "telemetry.ingested", "telemetry.batch", map[string]any{
		"device_id":   batch.DeviceId,
		"point_count": len(batch.Points),
	})
}

func (h *ServiceHandler) QueryTelemetry(ctx context.Context, query api.TelemetryQuery) ([]api.TelemetryPoint, error) {
	metric := ""
	if query.Metric != nil {
		metric = *query.Metric
	}
	return h.store.Telemetry().Query(ctx, query.DeviceId, metric, query.StartTime, query.EndTime, query.Limit)
}

func (h *ServiceHandler) GetLatestTelemetry(ctx context.Context, deviceID, metric string) (*api.TelemetryPoint, error) {
	point, err := h.store.Telemetry().GetLatest(ctx, deviceID, metric)
	if err != nil {
		if sherrors.IsNotFound(err) {
			return nil, fmt.Errorf("no telemetry for %s/%s: %w", deviceID, metric, sherrors.ErrResourceNotFound)
		}
		return nil, err
	}
	return point, nil
}

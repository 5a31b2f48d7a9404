package transport

import (
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/sensorhub/sensorhub/internal/service"
)

type TransportHandler struct {
	serviceHandler *service.ServiceHandler
	log            logrus.FieldLogger
}

func NewTransportHandler(serviceHandler *service.ServiceHandler, log logrus.FieldLogger) *TransportHandler {
	return &TransportHandler{
		serviceHandler: serviceHandler,
		log:            log,
	}
}

func (h *TransportHandler) RegisterRoutes(r chi.Router) {
	r.Route("/devices", func(r chi.Router) {
		r.Post("/", h.RegisterDevice)
		r.Get("/", h.ListDevices)
		r.Get("/{deviceId}", h.GetDevice)
		r.Patch("/{deviceId}", h.UpdateDevice)
	})

	r.Route("/telemetry", func(r chi.Router) {
		r.Post("/point", h.IngestPoint)
		r.Post("/batch", h.IngestBatch)
		r.Get("/{deviceId}", h.QueryTelemetry)
		r.Get("/{deviceId}/{metric}/latest", h.GetLatestTelemetry)
	})

	r.Route("/alerts", func(r chi.Router) {
		r.Post("/rules", h.CreateAlertRule)
		r.Get("/rules", h.ListAlertRules)
		r.Get("/rules/{ruleId}", h.GetAlertRule)
		r.Get("/", h.ListAlerts)
		r.Post("/{alertId}/acknowledge", h.AcknowledgeAlert)
		r.Post("/{alertId}/resolve", h.ResolveAlert)
	})

	r.Route("/firmware", func(r chi.Router) {
		r.Post("/register", h.RegisterFirmware)
		r.Get("/versions", h.ListFirmwareVersions)
		r.Post("/updates", h.InitiateUpdate)
		r.Get("/updates/{updateId}", h.GetUpdate)
	})

	r.Route("/analytics", func(r chi.Router) {
		r.Get("/devices/{deviceId}", h.GetDeviceMetrics)
		r.Get("/fleet", h.GetFleetAnalytics)
		r.Get("/groups/{groupId}", h.GetGroupAnalytics)
	})

	r.Get("/events/{topic}", h.GetEvents)

	r.Get("/version", h.GetVersion)
}

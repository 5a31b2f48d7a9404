package service

import (
	"time"

	"github.com/sensorhub/sensorhub/internal/breaker"
	"github.com/sensorhub/sensorhub/internal/config"
	"github.com/sensorhub/sensorhub/internal/eventbus"
	"github.com/sensorhub/sensorhub/internal/ratelimit"
	"github.com/sensorhub/sensorhub/internal/store"
	"github.com/sirupsen/logrus"
)

// ServiceHandler carries every domain operation of the hub. Handlers and
// background tasks call into it; it owns no transport concerns.
type ServiceHandler struct {
	store    store.Store
	bus      *eventbus.Bus
	limiter  *ratelimit.Limiter
	breakers *breaker.Manager
	notifier Notifier
	log      logrus.FieldLogger

	telemetryRetention time.Duration
	batchMaxSize       int
}

func NewServiceHandler(
	st store.Store,
	bus *eventbus.Bus,
	limiter *ratelimit.Limiter,
	breakers *breaker.Manager,
	notifier Notifier,
	log logrus.FieldLogger,
	cfg *config.Config,
) *ServiceHandler {
	return &ServiceHandler{
		store:              st,
		bus:                bus,
		limiter:            limiter,
		breakers:           breakers,
		notifier:           notifier,
		log:                log,
		telemetryRetention: time.Duration(cfg.Telemetry.RetentionSeconds) * time.Second,
		batchMaxSize:       cfg.Telemetry.BatchMaxSize,
	}
}

// EventBus exposes the bus for transport-level depth checks and subscriptions.
func (h *ServiceHandler) EventBus() *eventbus.Bus {
	return h.bus
}

// Store exposes the data store for collectors and background tasks.
func (h *ServiceHandler) Store() store.Store {
	return h.store
}

// Breakers exposes the circuit breaker registry for collectors.
func (h *ServiceHandler) Breakers() *breaker.Manager {
	return h.breakers
}

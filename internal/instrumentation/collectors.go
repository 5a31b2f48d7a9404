package instrumentation

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sensorhub/sensorhub/internal/service"
	"github.com/sensorhub/sensorhub/internal/sherrors"
	"github.com/sony/gobreaker"
	"github.com/sirupsen/logrus"
)

const sampleInterval = 30 * time.Second

// HubCollector gathers the hub's business metrics: fleet size, open alerts,
// pending firmware updates, event bus pressure and breaker states. Store
// reads are sampled on an interval, queue and counter readings are live.
type HubCollector struct {
	devicesGauge        prometheus.Gauge
	openAlertsGauge     prometheus.Gauge
	pendingUpdatesGauge prometheus.Gauge
	fleetMessagesGauge  prometheus.Gauge
	breakerStateGauge   *prometheus.GaugeVec

	queueDepth      prometheus.GaugeFunc
	eventsPublished prometheus.CounterFunc
	eventsDropped   prometheus.CounterFunc

	svc *service.ServiceHandler
	log logrus.FieldLogger
	mu  sync.RWMutex
	ctx context.Context
}

func NewHubCollector(ctx context.Context, svc *service.ServiceHandler, log logrus.FieldLogger) *HubCollector {
	bus := svc.EventBus()
	collector := &HubCollector{
		devicesGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sensorhub_devices_total",
			Help: "Total number of registered devices",
		}),
		openAlertsGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sensorhub_alerts_open",
			Help: "Number of alerts currently open",
		}),
		pendingUpdatesGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sensorhub_firmware_updates_pending",
			Help: "Number of firmware updates awaiting orchestration",
		}),
		fleetMessagesGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sensorhub_fleet_messages_total",
			Help: "Telemetry messages across the fleet, from the latest snapshot",
		}),
		breakerStateGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sensorhub_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		}, []string{"name"}),
		queueDepth: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "sensorhub_event_queue_depth",
			Help: "Events queued for dispatch",
		}, func() float64 { return float64(bus.Depth()) }),
		eventsPublished: prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "sensorhub_events_published_total",
			Help: "Events durably appended to the log",
		}, func() float64 { return float64(bus.Published()) }),
		eventsDropped: prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "sensorhub_events_dropped_total",
			Help: "Events shed because the queue was full",
		}, func() float64 { return float64(bus.Dropped()) }),
		svc: svc,
		log: log,
		ctx: ctx,
	}

	collector.update()
	go collector.sample()

	return collector
}

func (c *HubCollector) MetricsName() string {
	return "hub"
}

func (c *HubCollector) Describe(ch chan<- *prometheus.Desc) {
	c.devicesGauge.Describe(ch)
	c.openAlertsGauge.Describe(ch)
	c.pendingUpdatesGauge.Describe(ch)
	c.fleetMessagesGauge.Describe(ch)
	c.breakerStateGauge.Describe(ch)
	c.queueDepth.Describe(ch)
	c.eventsPublished.Describe(ch)
	c.eventsDropped.Describe(ch)
}

func (c *HubCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	c.devicesGauge.Collect(ch)
	c.openAlertsGauge.Collect(ch)
	c.pendingUpdatesGauge.Collect(ch)
	c.fleetMessagesGauge.Collect(ch)
	c.breakerStateGauge.Collect(ch)
	c.queueDepth.Collect(ch)
	c.eventsPublished.Collect(ch)
	c.eventsDropped.Collect(ch)
}

func (c *HubCollector) sample() {
	ticker := time.NewTicker(sampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.update()
		}
	}
}

func (c *HubCollector) update() {
	ctx, cancel := context.WithTimeout(c.ctx, 10*time.Second)
	defer cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	if count, err := c.svc.Store().Device().Count(ctx); err != nil {
		c.log.WithError(err).Error("failed to count devices for metrics")
	} else {
		c.devicesGauge.Set(float64(count))
	}

	if count, err := c.svc.CountOpenAlerts(ctx); err != nil {
		c.log.WithError(err).Error("failed to count open alerts for metrics")
	} else {
		c.openAlertsGauge.Set(float64(count))
	}

	if count, err := c.svc.Store().Firmware().CountPending(ctx); err != nil {
		c.log.WithError(err).Error("failed to count pending updates for metrics")
	} else {
		c.pendingUpdatesGauge.Set(float64(count))
	}

	snapshot, err := c.svc.GetFleetSnapshot(ctx)
	switch {
	case err == nil:
		c.fleetMessagesGauge.Set(float64(snapshot.TotalMessages))
	case !sherrors.IsNotFound(err):
		c.log.WithError(err).Error("failed to read fleet snapshot for metrics")
	}

	for name, state := range c.svc.Breakers().States() {
		c.breakerStateGauge.WithLabelValues(name).Set(breakerStateValue(state))
	}
}

func breakerStateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

package instrumentation

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sensorhub/sensorhub/internal/config"
	"github.com/sirupsen/logrus"
)

const (
	httpGracefulShutdownTimeout = 5 * time.Second
	httpReadHeaderTimeout       = 2 * time.Second
	httpReadTimeout             = 5 * time.Second
	httpWriteTimeout            = 10 * time.Second
	httpIdleTimeout             = 60 * time.Second
)

// NamedCollector is a Prometheus collector that also exposes a consistent
// name for logging.
type NamedCollector interface {
	prometheus.Collector
	MetricsName() string
}

// MetricsServer serves the business collectors on the dedicated metrics
// listener.
type MetricsServer struct {
	log        logrus.FieldLogger
	cfg        *config.Config
	collectors []NamedCollector
}

func NewMetricsServer(log logrus.FieldLogger, cfg *config.Config, collectors ...NamedCollector) *MetricsServer {
	return &MetricsServer{
		log:        log,
		cfg:        cfg,
		collectors: collectors,
	}
}

func (m *MetricsServer) Run(ctx context.Context) error {
	registry := prometheus.NewRegistry()
	for _, c := range m.collectors {
		if err := registry.Register(c); err != nil {
			return err
		}
		m.log.Debugf("registered metrics collector %s", c.MetricsName())
	}

	srv := &http.Server{
		Addr:              m.cfg.Service.MetricsAddress,
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: httpReadHeaderTimeout,
		ReadTimeout:       httpReadTimeout,
		WriteTimeout:      httpWriteTimeout,
		IdleTimeout:       httpIdleTimeout,
	}

	go func() {
		<-ctx.Done()
		m.log.Info("metrics server shutdown signal received")
		ctxTimeout, cancel := context.WithTimeout(context.Background(), httpGracefulShutdownTimeout)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		if err := srv.Shutdown(ctxTimeout); err != nil {
			m.log.WithError(err).Warn("metrics server shutdown error")
		}
	}()

	m.log.Infof("metrics server listening on %s", m.cfg.Service.MetricsAddress)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

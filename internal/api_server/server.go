package apiserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sensorhub/sensorhub/internal/api_server/middleware"
	"github.com/sensorhub/sensorhub/internal/config"
	"github.com/sensorhub/sensorhub/internal/ratelimit"
	"github.com/sensorhub/sensorhub/internal/service"
	"github.com/sensorhub/sensorhub/internal/store"
	"github.com/sensorhub/sensorhub/internal/transport"
)

// GracefulShutdownTimeout is the duration to wait for graceful shutdown.
const GracefulShutdownTimeout = 5 * time.Second

type Server struct {
	log      logrus.FieldLogger
	cfg      *config.Config
	store    store.Store
	svc      *service.ServiceHandler
	limiter  *ratelimit.Limiter
	listener net.Listener
}

// New returns a new instance of a sensorhub api server.
func New(
	log logrus.FieldLogger,
	cfg *config.Config,
	st store.Store,
	svc *service.ServiceHandler,
	limiter *ratelimit.Limiter,
	listener net.Listener,
) *Server {
	return &Server{
		log:      log,
		cfg:      cfg,
		store:    st,
		svc:      svc,
		limiter:  limiter,
		listener: listener,
	}
}

func (s *Server) Run(ctx context.Context) error {
	s.log.Println("Initializing API server")

	router := chi.NewRouter()

	// request size limits come before logging to keep oversized requests
	// from filling the logs
	router.Use(
		middleware.RequestSizeLimiter(s.cfg.Service.HttpMaxUrlLength, s.cfg.Service.HttpMaxNumHeaders),
		middleware.RequestID,
		middleware.RequestLogger(s.log),
		chimiddleware.Recoverer,
		middleware.GlobalRateLimiter(s.log, s.limiter),
		middleware.Backpressure(s.log, s.svc.EventBus(), s.cfg.Backpressure.QueueThreshold, s.cfg.Backpressure.RejectThreshold),
	)
	if s.cfg.Service.HttpRateLimit > 0 {
		router.Use(middleware.IPRateLimiter(s.cfg.Service.HttpRateLimit, time.Minute))
	}

	router.Method(http.MethodGet, "/health", HealthzHandler())
	router.Method(http.MethodGet, "/readyz", ReadyzHandler(readinessTimeout, s.store))

	transportHandler := transport.NewTransportHandler(s.svc, s.log)
	transportHandler.RegisterRoutes(router)

	handler := otelhttp.NewHandler(router, "http-server")
	srv := middleware.NewHTTPServer(handler, s.log, s.cfg.Service.Address, s.cfg)

	go func() {
		<-ctx.Done()
		s.log.Println("Shutdown signal received:", ctx.Err())
		ctxTimeout, cancel := context.WithTimeout(context.Background(), GracefulShutdownTimeout)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		_ = srv.Shutdown(ctxTimeout)
	}()

	s.log.Printf("Listening on %s...", s.listener.Addr().String())
	if err := srv.Serve(s.listener); err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

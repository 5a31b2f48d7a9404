package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	api "github.com/sensorhub/sensorhub/api/v1alpha1"
	apiserver "github.com/sensorhub/sensorhub/internal/api_server"
	"github.com/sensorhub/sensorhub/internal/breaker"
	"github.com/sensorhub/sensorhub/internal/client"
	"github.com/sensorhub/sensorhub/internal/config"
	"github.com/sensorhub/sensorhub/internal/eventbus"
	"github.com/sensorhub/sensorhub/internal/instrumentation"
	"github.com/sensorhub/sensorhub/internal/kvstore"
	"github.com/sensorhub/sensorhub/internal/lock"
	"github.com/sensorhub/sensorhub/internal/ratelimit"
	"github.com/sensorhub/sensorhub/internal/service"
	"github.com/sensorhub/sensorhub/internal/store"
	"github.com/sensorhub/sensorhub/internal/tasks"
	"github.com/sensorhub/sensorhub/pkg/log"
	"github.com/sensorhub/sensorhub/pkg/version"
)

func main() {
	log := log.InitLogs()
	log.Printf("Starting API service (version %s)", version.Get().String())
	defer log.Println("API service stopped")

	cfg, err := config.LoadOrGenerate(config.ConfigFile())
	if err != nil {
		log.Fatalf("reading configuration: %v", err)
	}
	log.Printf("Using config: %s", cfg)

	logLvl, err := logrus.ParseLevel(cfg.Service.LogLevel)
	if err != nil {
		logLvl = logrus.InfoLevel
	}
	log.SetLevel(logLvl)

	// also write out a client config file
	if err := client.WriteConfig(config.ClientConfigFile(), cfg.Service.BaseUrl); err != nil {
		log.Fatalf("writing client config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	tracerShutdown, err := instrumentation.InitTracer(log, cfg, "sensorhub-api")
	if err != nil {
		log.Fatalf("initializing tracing: %v", err)
	}

	log.Println("Initializing key-value store")
	kv, err := kvstore.NewKVStore(ctx, log, kvstore.Options{
		Hostname:      cfg.KV.Hostname,
		Port:          cfg.KV.Port,
		Password:      cfg.KV.Password,
		DB:            cfg.KV.DB,
		SocketTimeout: time.Duration(cfg.KV.SocketTimeoutSeconds) * time.Second,
		Tracing:       cfg.Tracing != nil && cfg.Tracing.Enabled,
	})
	if err != nil {
		log.Fatalf("connecting to key-value store: %v", err)
	}

	st := store.NewStore(kv, log.WithField("pkg", "store"))

	bus := eventbus.New(log.WithField("pkg", "eventbus"), st.Event(), cfg.EventBus.QueueMaxSize, cfg.EventBus.WorkerCount)
	bus.Subscribe("alert.triggered", func(ctx context.Context, event api.Event) error {
		log.Infof("alert event %s: %v", event.Type, event.Payload)
		return nil
	})
	bus.Start(ctx)

	limiter := ratelimit.NewLimiter(log.WithField("pkg", "ratelimit"), kv, ratelimit.Limits{
		TelemetryPerDevice: cfg.RateLimit.TelemetryPerDevice,
		WindowSeconds:      cfg.RateLimit.WindowSeconds,
		GlobalPerSecond:    cfg.RateLimit.GlobalPerSecond,
	})
	locks := lock.NewManager(log.WithField("pkg", "lock"), kv,
		time.Duration(cfg.Lock.TimeoutSeconds)*time.Second,
		time.Duration(cfg.Lock.RetryDelayMs)*time.Millisecond)
	breakers := breaker.NewManager(log.WithField("pkg", "breaker"), breaker.Settings{
		FailureThreshold: uint32(cfg.Breaker.FailureThreshold),
		Timeout:          time.Duration(cfg.Breaker.TimeoutSeconds) * time.Second,
		HalfOpenMaxCalls: uint32(cfg.Breaker.HalfOpenMaxCalls),
	})

	svc := service.NewServiceHandler(st, bus, limiter, breakers, service.NewUnavailableNotifier(), log.WithField("pkg", "service"), cfg)

	taskManager, err := tasks.NewManager(ctx, log, svc, locks, cfg)
	if err != nil {
		log.Fatalf("initializing periodic tasks: %v", err)
	}
	taskManager.Start()

	collector := instrumentation.NewHubCollector(ctx, svc, log.WithField("pkg", "metrics"))
	go func() {
		metricsServer := instrumentation.NewMetricsServer(log, cfg, collector)
		if err := metricsServer.Run(ctx); err != nil {
			log.Fatalf("Error running metrics server: %s", err)
		}
		cancel()
	}()

	go func() {
		listener, err := net.Listen("tcp", cfg.Service.Address)
		if err != nil {
			log.Fatalf("creating listener: %s", err)
		}

		server := apiserver.New(log, cfg, st, svc, limiter, listener)
		if err := server.Run(ctx); err != nil {
			log.Fatalf("Error running server: %s", err)
		}
		cancel()
	}()

	<-ctx.Done()

	taskManager.Stop()
	bus.Stop()
	if err := st.Close(); err != nil {
		log.Errorf("closing store: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := tracerShutdown(shutdownCtx); err != nil {
		log.Errorf("shutting down tracer: %v", err)
	}
}

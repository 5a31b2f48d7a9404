package middleware

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sensorhub/sensorhub/internal/config"
)

func NewHTTPServer(router http.Handler, log logrus.FieldLogger, address string, cfg *config.Config) *http.Server {
	return &http.Server{
		Addr:              address,
		Handler:           router,
		ReadTimeout:       time.Duration(cfg.Service.HttpReadTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.Service.HttpReadHeaderTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.Service.HttpWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(cfg.Service.HttpIdleTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    cfg.Service.HttpMaxHeaderBytes,
	}
}

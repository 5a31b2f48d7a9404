package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/robfig/cron/v3"
	"sigs.k8s.io/yaml"
)

const (
	appName = "sensorhub"
)

type Config struct {
	KV           *kvConfig           `json:"kv,omitempty"`
	Service      *svcConfig          `json:"service,omitempty"`
	RateLimit    *rateLimitConfig    `json:"rateLimit,omitempty"`
	Breaker      *breakerConfig      `json:"circuitBreaker,omitempty"`
	Lock         *lockConfig         `json:"lock,omitempty"`
	Telemetry    *telemetryConfig    `json:"telemetry,omitempty"`
	EventBus     *eventBusConfig     `json:"eventBus,omitempty"`
	Backpressure *backpressureConfig `json:"backpressure,omitempty"`
	Tasks        *tasksConfig        `json:"tasks,omitempty"`
	Tracing      *tracingConfig      `json:"tracing,omitempty"`
}

type kvConfig struct {
	Hostname             string `json:"hostname,omitempty"`
	Port                 uint   `json:"port,omitempty"`
	Password             string `json:"password,omitempty"`
	DB                   int    `json:"db,omitempty"`
	SocketTimeoutSeconds int    `json:"socketTimeoutSeconds,omitempty"`
}

type svcConfig struct {
	Address                      string `json:"address,omitempty"`
	MetricsAddress               string `json:"metricsAddress,omitempty"`
	BaseUrl                      string `json:"baseUrl,omitempty"`
	LogLevel                     string `json:"logLevel,omitempty"`
	HttpRateLimit                int    `json:"httpRateLimit,omitempty"`
	HttpReadTimeoutSeconds       int    `json:"httpReadTimeoutSeconds,omitempty"`
	HttpReadHeaderTimeoutSeconds int    `json:"httpReadHeaderTimeoutSeconds,omitempty"`
	HttpWriteTimeoutSeconds      int    `json:"httpWriteTimeoutSeconds,omitempty"`
	HttpIdleTimeoutSeconds       int    `json:"httpIdleTimeoutSeconds,omitempty"`
	HttpMaxHeaderBytes           int    `json:"httpMaxHeaderBytes,omitempty"`
	HttpMaxUrlLength             int    `json:"httpMaxUrlLength,omitempty"`
	HttpMaxNumHeaders            int    `json:"httpMaxNumHeaders,omitempty"`
}

type rateLimitConfig struct {
	TelemetryPerDevice int `json:"telemetryPerDevice,omitempty"`
	WindowSeconds      int `json:"windowSeconds,omitempty"`
	GlobalPerSecond    int `json:"globalPerSecond,omitempty"`
}

type breakerConfig struct {
	FailureThreshold int `json:"failureThreshold,omitempty"`
	TimeoutSeconds   int `json:"timeoutSeconds,omitempty"`
	HalfOpenMaxCalls int `json:"halfOpenMaxCalls,omitempty"`
}

type lockConfig struct {
	TimeoutSeconds int `json:"timeoutSeconds,omitempty"`
	RetryDelayMs   int `json:"retryDelayMs,omitempty"`
}

type telemetryConfig struct {
	BatchMaxSize     int `json:"batchMaxSize,omitempty"`
	RetentionSeconds int `json:"retentionSeconds,omitempty"`
}

type eventBusConfig struct {
	QueueMaxSize int `json:"queueMaxSize,omitempty"`
	WorkerCount  int `json:"workerCount,omitempty"`
}

type backpressureConfig struct {
	QueueThreshold  int `json:"queueThreshold,omitempty"`
	RejectThreshold int `json:"rejectThreshold,omitempty"`
}

type tasksConfig struct {
	LivenessSweepSeconds     int    `json:"livenessSweepSeconds,omitempty"`
	LivenessThresholdSeconds int    `json:"livenessThresholdSeconds,omitempty"`
	SnapshotSchedule         string `json:"snapshotSchedule,omitempty"`
}

type tracingConfig struct {
	Enabled  bool   `json:"enabled,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
	Insecure bool   `json:"insecure,omitempty"`
}

func ConfigDir() string {
	return filepath.Join(mustString(os.UserHomeDir), "."+appName)
}

func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

func ClientConfigFile() string {
	return filepath.Join(ConfigDir(), "client.yaml")
}

func NewDefault() *Config {
	c := &Config{
		KV: &kvConfig{
			Hostname:             "localhost",
			Port:                 6379,
			DB:                   0,
			SocketTimeoutSeconds: 5,
		},
		Service: &svcConfig{
			Address:                      ":8080",
			MetricsAddress:               ":15690",
			BaseUrl:                      "http://localhost:8080",
			LogLevel:                     "info",
			HttpReadTimeoutSeconds:       30,
			HttpReadHeaderTimeoutSeconds: 10,
			HttpWriteTimeoutSeconds:      30,
			HttpIdleTimeoutSeconds:       120,
			HttpMaxHeaderBytes:           32 * 1024,
			HttpMaxUrlLength:             2000,
			HttpMaxNumHeaders:            32,
		},
		RateLimit: &rateLimitConfig{
			TelemetryPerDevice: 100,
			WindowSeconds:      60,
			GlobalPerSecond:    10000,
		},
		Breaker: &breakerConfig{
			FailureThreshold: 6,
			TimeoutSeconds:   60,
			HalfOpenMaxCalls: 3,
		},
		Lock: &lockConfig{
			TimeoutSeconds: 10,
			RetryDelayMs:   50,
		},
		Telemetry: &telemetryConfig{
			BatchMaxSize:     1000,
			RetentionSeconds: 86400,
		},
		EventBus: &eventBusConfig{
			QueueMaxSize: 10000,
			WorkerCount:  4,
		},
		Backpressure: &backpressureConfig{
			QueueThreshold:  8000,
			RejectThreshold: 9500,
		},
		Tasks: &tasksConfig{
			LivenessSweepSeconds:     60,
			LivenessThresholdSeconds: 300,
			SnapshotSchedule:         "*/5 * * * *",
		},
	}
	return c
}

func NewFromFile(cfgFile string) (*Config, error) {
	cfg, err := Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadOrGenerate(cfgFile string) (*Config, error) {
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(cfgFile), os.FileMode(0755)); err != nil {
			return nil, fmt.Errorf("creating directory for config file: %v", err)
		}
		if err := Save(NewDefault(), cfgFile); err != nil {
			return nil, err
		}
	}
	return NewFromFile(cfgFile)
}

func Load(cfgFile string) (*Config, error) {
	contents, err := os.ReadFile(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %v", err)
	}
	c := NewDefault()
	if err := yaml.Unmarshal(contents, c); err != nil {
		return nil, fmt.Errorf("decoding config: %v", err)
	}
	return c, nil
}

func Save(cfg *Config, cfgFile string) error {
	contents, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %v", err)
	}
	if err := os.WriteFile(cfgFile, contents, 0600); err != nil {
		return fmt.Errorf("writing config file: %v", err)
	}
	return nil
}

func Validate(cfg *Config) error {
	if cfg.EventBus != nil {
		if cfg.EventBus.QueueMaxSize <= 0 {
			return fmt.Errorf("eventBus.queueMaxSize must be positive")
		}
		if cfg.EventBus.WorkerCount <= 0 {
			return fmt.Errorf("eventBus.workerCount must be positive")
		}
	}
	if cfg.Backpressure != nil && cfg.EventBus != nil {
		if cfg.Backpressure.QueueThreshold > cfg.Backpressure.RejectThreshold {
			return fmt.Errorf("backpressure.queueThreshold must not exceed backpressure.rejectThreshold")
		}
		if cfg.Backpressure.RejectThreshold > cfg.EventBus.QueueMaxSize {
			return fmt.Errorf("backpressure.rejectThreshold must not exceed eventBus.queueMaxSize")
		}
	}
	if cfg.RateLimit != nil {
		if cfg.RateLimit.TelemetryPerDevice <= 0 || cfg.RateLimit.WindowSeconds <= 0 || cfg.RateLimit.GlobalPerSecond <= 0 {
			return fmt.Errorf("rateLimit budgets and window must be positive")
		}
	}
	if cfg.Tasks != nil && cfg.Tasks.SnapshotSchedule != "" {
		if _, err := cron.ParseStandard(cfg.Tasks.SnapshotSchedule); err != nil {
			return fmt.Errorf("invalid tasks.snapshotSchedule: %w", err)
		}
	}
	return nil
}

func (cfg *Config) String() string {
	redacted := *cfg
	if redacted.KV != nil {
		kv := *redacted.KV
		if kv.Password != "" {
			kv.Password = "[redacted]"
		}
		redacted.KV = &kv
	}
	contents, err := json.Marshal(&redacted)
	if err != nil {
		return "<error>"
	}
	return string(contents)
}

func mustString(fn func() (string, error)) string {
	s, err := fn()
	if err != nil {
		panic(err)
	}
	return s
}

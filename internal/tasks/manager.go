package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/sensorhub/sensorhub/internal/config"
	"github.com/sensorhub/sensorhub/internal/lock"
	"github.com/sensorhub/sensorhub/internal/service"
	"github.com/sensorhub/sensorhub/pkg/thread"
	"github.com/sirupsen/logrus"
)

const snapshotPollInterval = 15 * time.Second

// Manager owns the background threads of the hub.
type Manager struct {
	log     logrus.FieldLogger
	threads []*thread.Thread
	once    sync.Once
}

func NewManager(ctx context.Context, log logrus.FieldLogger, svc *service.ServiceHandler, locks *lock.Manager, cfg *config.Config) (*Manager, error) {
	m := &Manager{log: log}

	liveness := NewDeviceLiveness(
		log.WithField("pkg", DeviceLivenessTaskName),
		svc,
		locks,
		time.Duration(cfg.Tasks.LivenessThresholdSeconds)*time.Second,
	)
	m.threads = append(m.threads, thread.New(
		ctx,
		log.WithField("pkg", DeviceLivenessTaskName),
		"Device liveness",
		time.Duration(cfg.Tasks.LivenessSweepSeconds)*time.Second,
		liveness.Poll,
	))

	if cfg.Tasks.SnapshotSchedule != "" {
		snapshot, err := NewAnalyticsSnapshot(
			log.WithField("pkg", AnalyticsSnapshotTaskName),
			svc,
			locks,
			cfg.Tasks.SnapshotSchedule,
		)
		if err != nil {
			return nil, err
		}
		m.threads = append(m.threads, thread.New(
			ctx,
			log.WithField("pkg", AnalyticsSnapshotTaskName),
			"Analytics snapshot",
			snapshotPollInterval,
			snapshot.Poll,
		))
	}

	return m, nil
}

func (m *Manager) Start() {
	for _, t := range m.threads {
		t.Start()
	}
}

func (m *Manager) Stop() {
	m.once.Do(func() {
		for _, t := range m.threads {
			t.Stop()
		}
	})
}

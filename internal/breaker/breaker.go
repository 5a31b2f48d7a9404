package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sensorhub/sensorhub/internal/sherrors"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// Settings controls the shared state machine parameters for every named
// circuit: Closed opens after FailureThreshold consecutive failures, Open
// probes again after Timeout, Half-open admits at most HalfOpenMaxCalls and
// closes after that many consecutive successes.
type Settings struct {
	FailureThreshold uint32
	Timeout          time.Duration
	HalfOpenMaxCalls uint32
}

// Breaker guards one dependency. State is process-local.
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker
	log  logrus.FieldLogger
}

func New(log logrus.FieldLogger, name string, settings Settings) *Breaker {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: settings.HalfOpenMaxCalls,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.WithField("circuit", name).Warnf("circuit breaker state changed from %s to %s", from, to)
		},
	})

	return &Breaker{name: name, cb: cb, log: log}
}

func (b *Breaker) Name() string {
	return b.name
}

func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// Execute runs fn through the circuit. Rejections surface as ErrCircuitOpen,
// any other outcome is the wrapped call's own.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s", sherrors.ErrCircuitOpen, b.name)
	}
	return err
}

// Manager hands out one breaker per name, creating it on first use.
type Manager struct {
	log      logrus.FieldLogger
	settings Settings

	mu       sync.Mutex
	breakers map[string]*Breaker
}

func NewManager(log logrus.FieldLogger, settings Settings) *Manager {
	return &Manager{
		log:      log,
		settings: settings,
		breakers: make(map[string]*Breaker),
	}
}

func (m *Manager) Get(name string) *Breaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.breakers[name]
	if !ok {
		b = New(m.log, name, m.settings)
		m.breakers[name] = b
	}
	return b
}

// States snapshots the current state of every known circuit.
func (m *Manager) States() map[string]gobreaker.State {
	m.mu.Lock()
	defer m.mu.Unlock()

	states := make(map[string]gobreaker.State, len(m.breakers))
	for name, b := range m.breakers {
		states[name] = b.State()
	}
	return states
}

package eventbus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	api "github.com/sensorhub/sensorhub/api/v1alpha1"
	"github.com/sirupsen/logrus"
)

// Handler consumes one event. Errors are logged by the dispatching worker and
// never abort the batch or the worker.
type Handler func(ctx context.Context, event api.Event) error

// Appender persists an event to the durable per-topic log before it enters
// the in-memory queue.
type Appender interface {
	AppendEvent(ctx context.Context, topic, eventType string, payload map[string]any) (api.Event, error)
}

const stopGrace = 1 * time.Second

// Bus is a bounded multi-producer multi-consumer fan-out. Publishing appends
// to the durable log first, then enqueues without blocking: when the queue is
// full the in-memory copy is dropped with a logged error while the durable
// append still stands, so replay remains possible. Dispatch order is FIFO
// within a worker and unordered across workers.
type Bus struct {
	log      logrus.FieldLogger
	appender Appender

	mu          sync.RWMutex
	subscribers map[string][]Handler

	queue   chan api.Event
	workers int

	runCtx  context.Context
	stopCh  chan struct{}
	wg      sync.WaitGroup
	started atomic.Bool

	published atomic.Uint64
	dropped   atomic.Uint64
}

func New(log logrus.FieldLogger, appender Appender, queueSize, workers int) *Bus {
	return &Bus{
		log:         log,
		appender:    appender,
		subscribers: make(map[string][]Handler),
		queue:       make(chan api.Event, queueSize),
		workers:     workers,
		stopCh:      make(chan struct{}),
	}
}

// Subscribe registers a handler for the topic. Handlers run in registration
// order when an event for the topic is dispatched.
func (b *Bus) Subscribe(topic string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[topic] = append(b.subscribers[topic], handler)
}

func (b *Bus) Start(ctx context.Context) {
	if !b.started.CompareAndSwap(false, true) {
		return
	}
	b.runCtx = ctx

	for i := 0; i < b.workers; i++ {
		b.wg.Add(1)
		go b.worker(i)
	}
	b.log.Infof("event bus started with %d workers", b.workers)
}

// Stop signals the workers and waits for in-flight handlers, giving up after
// a short grace period. Events still queued at that point are only reachable
// through the durable log.
func (b *Bus) Stop() {
	if !b.started.CompareAndSwap(true, false) {
		return
	}
	close(b.stopCh)

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(stopGrace):
		b.log.Warn("event bus workers did not drain within the stop grace period")
	}
	b.log.Info("event bus stopped")
}

// Publish appends the event to the durable log and then enqueues it for
// dispatch. The append error is the caller's, a full queue is not: the event
// is dropped with a logged error and the publish still counts as successful.
func (b *Bus) Publish(ctx context.Context, topic, eventType string, payload map[string]any) error {
	event, err := b.appender.AppendEvent(ctx, topic, eventType, payload)
	if err != nil {
		return err
	}
	b.published.Add(1)

	select {
	case b.queue <- event:
	default:
		b.dropped.Add(1)
		b.log.Errorf("event queue full, dropping event: %s/%s", topic, eventType)
	}
	return nil
}

// Depth reports the number of queued, undispatched events.
func (b *Bus) Depth() int {
	return len(b.queue)
}

// Published reports the count of successful durable appends.
func (b *Bus) Published() uint64 {
	return b.published.Load()
}

// Dropped reports the count of events shed because the queue was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

func (b *Bus) worker(id int) {
	defer b.wg.Done()
	b.log.Debugf("event bus worker %d started", id)

	for {
		select {
		case event := <-b.queue:
			b.dispatch(event)
		case <-b.stopCh:
			b.log.Debugf("event bus worker %d stopped", id)
			return
		case <-b.runCtx.Done():
			return
		}
	}
}

func (b *Bus) dispatch(event api.Event) {
	b.mu.RLock()
	handlers := b.subscribers[event.Topic]
	b.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(b.runCtx, event); err != nil {
			b.log.WithError(err).Errorf("error in event handler for %s", event.Topic)
		}
	}
}

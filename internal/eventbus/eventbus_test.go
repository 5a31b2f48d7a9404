package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	api "github.com/sensorhub/sensorhub/api/v1alpha1"
	"github.com/sensorhub/sensorhub/pkg/log"
)

// memAppender is an in-memory durable log standing in for the store.
type memAppender struct {
	mu     sync.Mutex
	events []api.Event
	err    error
}

func (a *memAppender) AppendEvent(_ context.Context, topic, eventType string, payload map[string]any) (api.Event, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return api.Event{}, a.err
	}
	event := api.Event{
		Id:        fmt.Sprintf("%s:%d", topic, len(a.events)),
		Topic:     topic,
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
	a.events = append(a.events, event)
	return event, nil
}

func (a *memAppender) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.events)
}

func newTestBus(t *testing.T, appender Appender, queueSize, workers int) *Bus {
	t.Helper()
	testLog := log.InitLogs()
	testLog.SetLevel(logrus.ErrorLevel)
	return New(testLog, appender, queueSize, workers)
}

func TestPublishDispatchesToTopicSubscribers(t *testing.T) {
	require := require.New(t)
	appender := &memAppender{}
	bus := newTestBus(t, appender, 16, 2)

	received := make(chan api.Event, 1)
	bus.Subscribe("device.lifecycle", func(ctx context.Context, event api.Event) error {
		received <- event
		return nil
	})
	other := make(chan api.Event, 1)
	bus.Subscribe("telemetry.ingested", func(ctx context.Context, event api.Event) error {
		other <- event
		return nil
	})

	bus.Start(context.Background())
	defer bus.Stop()

	err := bus.Publish(context.Background(), "device.lifecycle", "device.registered", map[string]any{"device_id": "dev-1"})
	require.NoError(err)

	select {
	case event := <-received:
		require.Equal("device.lifecycle", event.Topic)
		require.Equal("device.registered", event.Type)
		require.Equal("dev-1", event.Payload["device_id"])
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not invoked")
	}

	select {
	case event := <-other:
		t.Fatalf("unexpected dispatch to other topic: %v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribersRunInRegistrationOrder(t *testing.T) {
	require := require.New(t)
	appender := &memAppender{}
	bus := newTestBus(t, appender, 16, 1)

	var mu sync.Mutex
	var order []string
	done := make(chan struct{})
	bus.Subscribe("alert.triggered", func(ctx context.Context, event api.Event) error {
		mu.Lock()
		order = append(order, "first")
		mu.Unlock()
		return errors.New("first handler failed")
	})
	bus.Subscribe("alert.triggered", func(ctx context.Context, event api.Event) error {
		mu.Lock()
		order = append(order, "second")
		mu.Unlock()
		close(done)
		return nil
	})

	bus.Start(context.Background())
	defer bus.Stop()

	require.NoError(bus.Publish(context.Background(), "alert.triggered", "alert.new", nil))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("second handler was not invoked")
	}

	// The first handler's error did not stop the second.
	mu.Lock()
	defer mu.Unlock()
	require.Equal([]string{"first", "second"}, order)
}

func TestFullQueueDropsButKeepsDurableAppend(t *testing.T) {
	require := require.New(t)
	appender := &memAppender{}

	// No workers, nothing drains the queue.
	bus := newTestBus(t, appender, 1, 0)

	require.NoError(bus.Publish(context.Background(), "telemetry.ingested", "telemetry.point", nil))
	require.NoError(bus.Publish(context.Background(), "telemetry.ingested", "telemetry.point", nil))

	require.Equal(1, bus.Depth())
	require.Equal(uint64(2), bus.Published())
	require.Equal(uint64(1), bus.Dropped())
	require.Equal(2, appender.count())
}

func TestAppendFailureFailsThePublish(t *testing.T) {
	require := require.New(t)
	appender := &memAppender{err: errors.New("store down")}
	bus := newTestBus(t, appender, 16, 0)

	err := bus.Publish(context.Background(), "telemetry.ingested", "telemetry.point", nil)
	require.Error(err)
	require.Equal(uint64(0), bus.Published())
	require.Equal(0, bus.Depth())
}

func TestStopWaitsForInFlightHandlers(t *testing.T) {
	require := require.New(t)
	appender := &memAppender{}
	bus := newTestBus(t, appender, 16, 2)

	started := make(chan struct{})
	finished := make(chan struct{})
	bus.Subscribe("firmware.updates", func(ctx context.Context, event api.Event) error {
		close(started)
		time.Sleep(100 * time.Millisecond)
		close(finished)
		return nil
	})

	bus.Start(context.Background())
	require.NoError(bus.Publish(context.Background(), "firmware.updates", "update.completed", nil))
	<-started

	bus.Stop()

	select {
	case <-finished:
	case <-time.After(50 * time.Millisecond):
		t.Fatal("Stop returned before the in-flight handler finished")
	}
}

func TestStartIsIdempotent(t *testing.T) {
	require := require.New(t)
	appender := &memAppender{}
	bus := newTestBus(t, appender, 16, 1)

	ctx := context.Background()
	bus.Start(ctx)
	bus.Start(ctx)
	defer bus.Stop()

	require.NoError(bus.Publish(ctx, "device.lifecycle", "device.registered", nil))
}

package service

import (
	"context"
	"errors"
	"time"

	api "github.com/sensorhub/sensorhub/api/v1alpha1"
)

// Notifier delivers alert notifications to the downstream notification
// service. Delivery runs through a circuit breaker and failures never fail
// the alert itself.
type Notifier interface {
	Notify(ctx context.Context, alert *api.Alert) error
}

var errNotificationUnavailable = errors.New("notification service unavailable")

// unavailableNotifier simulates the notification downstream while no real
// integration is configured: a short latency, then a refusal.
type unavailableNotifier struct{}

func NewUnavailableNotifier() Notifier {
	return &unavailableNotifier{}
}

func (n *unavailableNotifier) Notify(ctx context.Context, _ *api.Alert) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(10 * time.Millisecond):
	}
	return errNotificationUnavailable
}
